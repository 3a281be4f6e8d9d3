package schema

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/emla-tracker/internal/model"
	"github.com/sells-group/emla-tracker/internal/sanitize"
	"github.com/sells-group/emla-tracker/internal/tabular"
)

// ErrUnknownHint is returned for a dialect hint that names no dialect or forced type.
var ErrUnknownHint = eris.New("schema: unknown upload type")

// Plan is the mapping decision for one upload: the dialect every row is read
// with and the engagement type imposed by the caller, if any.
type Plan struct {
	Dialect *DialectTable
	// EMLAType is the caller-forced engagement type, "" when detected per row.
	EMLAType string
	// Detected is true when the dialect came from header scoring.
	Detected bool

	tables    *Tables
	positions map[string]int
}

// Plan selects the dialect for a parsed upload. A non-empty hint always wins;
// otherwise each dialect is scored by the wanted headers present and ties or
// a zero score fall back to the default dialect.
func (t *Tables) Plan(tbl *tabular.Table, hint string) (*Plan, error) {
	p := &Plan{tables: t}

	d, forced, err := t.resolveHint(hint)
	if err != nil {
		return nil, err
	}
	if d != nil {
		p.Dialect, p.EMLAType = d, forced
	} else {
		p.Dialect, p.Detected = t.detect(tbl), true
	}

	p.positions = make(map[string]int, len(p.Dialect.Positional))
	for target, fragment := range p.Dialect.Positional {
		if i := locate(tbl.RawHeaders, fragment); i >= 0 {
			p.positions[target] = i
		}
	}
	return p, nil
}

func (t *Tables) resolveHint(hint string) (*DialectTable, string, error) {
	h := NormalizeHeader(hint)
	if h == "" {
		return nil, "", nil
	}
	for _, d := range t.Dialects {
		if h == strings.ToLower(d.Name) || containsFold(d.Hints, h) {
			return d, d.EMLAType, nil
		}
	}
	for _, ft := range t.ForcedTypes {
		if h == strings.ToLower(ft.EMLAType) || containsFold(ft.Hints, h) {
			return t.byName[ft.Dialect], ft.EMLAType, nil
		}
	}
	return nil, "", eris.Wrapf(ErrUnknownHint, "hint %q", hint)
}

func (t *Tables) detect(tbl *tabular.Table) *DialectTable {
	present := make(map[string]bool, len(tbl.RawHeaders)*2)
	for _, h := range tbl.RawHeaders {
		present[NormalizeHeader(h)] = true
	}
	for _, h := range tbl.Headers {
		present[NormalizeHeader(h)] = true
	}

	best, bestScore, tie := t.byName[t.DefaultDialect], 0, false
	for _, d := range t.Dialects {
		score := 0
		for _, w := range d.wantedNorm {
			if present[w] {
				score++
			}
		}
		switch {
		case score > bestScore:
			best, bestScore, tie = d, score, false
		case score == bestScore && score > 0:
			tie = true
		}
	}
	if bestScore == 0 || tie {
		return t.byName[t.DefaultDialect]
	}
	return best
}

// locate finds the column whose normalized header equals fragment, else the
// first one containing it.
func locate(headers []string, fragment string) int {
	fragment = NormalizeHeader(fragment)
	for i, h := range headers {
		if NormalizeHeader(h) == fragment {
			return i
		}
	}
	for i, h := range headers {
		if strings.Contains(NormalizeHeader(h), fragment) {
			return i
		}
	}
	return -1
}

// Mapped is one row after header mapping, before sanitizing.
type Mapped struct {
	Record model.Customer
	// Extras holds non-canonical targets, such as CRTLink, and unmapped headers.
	Extras []tabular.Cell
	// RecoveredAdvisor is set when the BTP advisor name came from a recovery column.
	RecoveredAdvisor bool
}

// Extra returns the first non-empty extra value under name.
func (m *Mapped) Extra(name string) string {
	for _, c := range m.Extras {
		if c.Header == name && c.Value != "" {
			return c.Value
		}
	}
	return ""
}

// Map reads one row into a record. Table-driven mapping runs first; the
// fallbacks below only fill fields that are still empty, except the CRT pass
// which always runs last and wins when it finds digits.
func (p *Plan) Map(row *tabular.Row) Mapped {
	var m Mapped
	rec := &m.Record
	t, d := p.tables, p.Dialect

	byNorm := make(map[string]string, len(row.Cells()))
	for _, c := range row.Cells() {
		norm := NormalizeHeader(c.Header)
		if byNorm[norm] == "" {
			byNorm[norm] = c.Value
		}

		target := p.target(c.Header, norm)
		if f, ok := model.ParseField(target); ok {
			assign(rec, f, c.Value)
		} else if c.Value != "" {
			m.Extras = append(m.Extras, tabular.Cell{Header: target, Value: c.Value})
		}
	}
	col := func(names ...string) string {
		for _, n := range names {
			if v := strings.TrimSpace(byNorm[NormalizeHeader(n)]); v != "" {
				return v
			}
		}
		return ""
	}

	if rec.ExternalID == "" {
		rec.ExternalID = col(t.IDColumns...)
	}
	if rec.CustomerName == "" {
		rec.CustomerName = col(d.CustomerNameColumns...)
	}

	for target, i := range p.positions {
		if i >= len(row.Tokens) || row.Tokens[i] == "" {
			continue
		}
		v := row.Tokens[i]
		if f, ok := model.ParseField(target); ok {
			if rec.Get(f) == "" {
				rec.Set(f, v)
			}
		} else if m.Extra(target) == "" {
			m.Extras = append(m.Extras, tabular.Cell{Header: target, Value: v})
		}
	}

	for target, cols := range t.Fallbacks {
		if f, ok := model.ParseField(target); ok && rec.Get(f) == "" {
			rec.Set(f, col(cols...))
		}
	}

	if len(d.AdvisorRecoveryColumns) > 0 && !sanitize.IsMeaningfulAdvisorName(rec.BTPAdvisorName) {
		for _, c := range d.AdvisorRecoveryColumns {
			if v := col(c); sanitize.IsMeaningful(v) && !strings.Contains(v, "@") {
				rec.BTPAdvisorName, m.RecoveredAdvisor = v, true
				break
			}
		}
	}
	if !sanitize.IsMeaningful(rec.BTPAdvisorEmail) {
		for _, c := range t.BTPAdvisorColumns {
			if v := col(c); sanitize.IsMeaningful(v) && strings.Contains(v, "@") {
				rec.BTPAdvisorEmail = v
				break
			}
		}
	}
	if !sanitize.IsMeaningfulAdvisorName(rec.ERPAdvisorName) {
		for _, c := range t.ERPAdvisorColumns {
			if v := col(c); sanitize.IsMeaningfulAdvisorName(v) {
				rec.ERPAdvisorName = v
				break
			}
		}
	}

	rec.EMLAType = p.emlaType(rec.EMLAType, col(t.ProductColumns...))

	crt := col(t.CRTColumns...)
	for _, name := range t.CRTColumns {
		crt = firstNonEmpty(crt, m.Extra(name))
	}
	if n := ExtractCRTNumber(crt); n != "" {
		rec.CustomerNumber = n
	}

	return m
}

func (p *Plan) target(header, norm string) string {
	if v, ok := p.Dialect.Rename[header]; ok {
		return v
	}
	if v, ok := p.Dialect.renameNorm[norm]; ok {
		return v
	}
	if v, ok := p.tables.Generic[norm]; ok {
		return v
	}
	return header
}

func (p *Plan) emlaType(mapped, product string) string {
	switch {
	case p.EMLAType != "":
		return p.EMLAType
	case !p.Dialect.DetectProductType:
		return p.Dialect.EMLAType
	}
	if v := p.tables.NormalizeType(firstNonEmpty(mapped, product)); v != "" {
		return v
	}
	return p.Dialect.EMLAType
}

// assign never replaces a value with an empty one. Advisor identities only
// take values that pass the meaningful-token checks.
func assign(rec *model.Customer, f model.Field, v string) {
	if strings.TrimSpace(v) == "" && rec.Get(f) != "" {
		return
	}
	switch f {
	case model.FieldERPAdvisorName, model.FieldBTPAdvisorName:
		if !sanitize.IsMeaningfulAdvisorName(v) {
			return
		}
	case model.FieldBTPAdvisorEmail:
		if !sanitize.IsMeaningful(v) {
			return
		}
	}
	rec.Set(f, v)
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(strings.TrimSpace(s), v) {
			return true
		}
	}
	return false
}
