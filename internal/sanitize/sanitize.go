// Package sanitize cleans mapped customer records and rejects incomplete ones.
package sanitize

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/emla-tracker/internal/model"
)

// ReasonMissingRequired is the row error reported for incomplete records.
const ReasonMissingRequired = "Missing required fields (customerName, customerNumber, emlaType)"

// ErrMissingRequired marks a record without customerName, customerNumber or emlaType.
var ErrMissingRequired = eris.New(ReasonMissingRequired)

var (
	controlRe    = regexp.MustCompile(`[\x{00}-\x{08}\x{0B}\x{0C}\x{0E}-\x{1F}\x{7F}-\x{9F}]`)
	newlineRunRe = regexp.MustCompile(`\n{3,}`)
	spaceRunRe   = regexp.MustCompile(` {2,}`)
)

// Text strips control characters, normalizes line breaks and spacing, and
// truncates to limit characters with a trailing "..." when cut.
func Text(v string, limit int) string {
	s := strings.TrimSpace(v)
	if s == "" {
		return ""
	}

	s = controlRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = newlineRunRe.ReplaceAllString(s, "\n\n")
	s = strings.ReplaceAll(s, "\t", " ")
	s = spaceRunRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	if limit <= 0 {
		limit = model.DefaultMaxLen
	}
	if r := []rune(s); len(r) > limit {
		cut := limit - 3
		if cut < 0 {
			cut = 0
		}
		s = string(r[:cut]) + "..."
	}
	return s
}

// Field sanitizes v against the length budget of f.
func Field(f model.Field, v string) string {
	return Text(v, f.MaxLen())
}

// Clean sanitizes every field of c and checks the mandatory ones. The
// returned record is usable only when err is nil.
func Clean(c model.Customer) (model.Customer, error) {
	// Advisor names often land in the email column.
	if strings.TrimSpace(c.BTPAdvisorName) == "" && LooksLikeName(c.BTPAdvisorEmail) {
		c.BTPAdvisorName, c.BTPAdvisorEmail = c.BTPAdvisorEmail, ""
	}

	for _, f := range model.Fields {
		if f == model.FieldStartDate {
			continue
		}
		c.Set(f, Field(f, c.Get(f)))
	}
	c.StartDate = Date(c.StartDate)

	if !IsMeaningfulAdvisorName(c.ERPAdvisorName) {
		c.ERPAdvisorName = ""
	}
	if !IsMeaningfulAdvisorName(c.BTPAdvisorName) {
		c.BTPAdvisorName = ""
	}
	if !IsMeaningful(c.BTPAdvisorEmail) {
		c.BTPAdvisorEmail = ""
	}

	if c.CustomerName == "" || c.CustomerNumber == "" || c.EMLAType == "" {
		return c, ErrMissingRequired
	}
	return c, nil
}
