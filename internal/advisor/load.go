package advisor

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/emla-tracker/internal/model"
	"github.com/sells-group/emla-tracker/internal/sanitize"
	"github.com/sells-group/emla-tracker/internal/tabular"
)

// Header spellings accepted by ParseDirectory, lowercased.
var (
	nameHeaders  = []string{"name", "advisor", "onbadvisor", "onboarding advisor", "advisor name"}
	emailHeaders = []string{"email", "e-mail", "advisor email", "mail"}
	keyHeaders   = []string{"advisorkey", "advisor key", "key", "user id", "userid"}
)

// ParseDirectory reads an advisor directory export. Entries are keyed by
// email; rows without an email are skipped and counted, and a repeated
// email keeps its last row.
func ParseDirectory(text string) ([]model.Advisor, int, error) {
	tbl, err := tabular.Parse(text, tabular.Options{
		Header: func(h string) string { return strings.ToLower(strings.TrimSpace(h)) },
	})
	if err != nil {
		return nil, 0, eris.Wrap(err, "advisor: parse directory")
	}

	nameCol := pick(tbl.Headers, nameHeaders)
	emailCol := pick(tbl.Headers, emailHeaders)
	if emailCol == "" {
		return nil, 0, eris.New("advisor: directory has no email column")
	}
	keyCol := pick(tbl.Headers, keyHeaders)

	var (
		out     []model.Advisor
		pos     = make(map[string]int)
		skipped int
	)
	for _, row := range tbl.Rows {
		a := model.Advisor{
			Name:  sanitize.Field(model.FieldBTPAdvisorName, row.Get(nameCol)),
			Email: sanitize.Field(model.FieldBTPAdvisorEmail, row.Get(emailCol)),
			Key:   strings.TrimSpace(row.Get(keyCol)),
		}
		if !strings.Contains(a.Email, "@") {
			skipped++
			continue
		}
		k := fold(a.Email)
		if i, ok := pos[k]; ok {
			out[i] = a
			continue
		}
		pos[k] = len(out)
		out = append(out, a)
	}
	return out, skipped, nil
}

func pick(headers, candidates []string) string {
	for _, c := range candidates {
		for _, h := range headers {
			if h == c {
				return h
			}
		}
	}
	return ""
}
