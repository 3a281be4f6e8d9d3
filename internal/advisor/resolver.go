// Package advisor enriches customer records from the onboarding advisor directory.
package advisor

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/emla-tracker/internal/model"
)

// Directory is the advisor lookup source.
type Directory interface {
	FetchAll(ctx context.Context) ([]model.Advisor, error)
	// FindByNames and FindByEmails match case-insensitively.
	FindByNames(ctx context.Context, names []string) ([]model.Advisor, error)
	FindByEmails(ctx context.Context, emails []string) ([]model.Advisor, error)
}

// Unresolved is a record whose supplied advisor matched no directory entry.
type Unresolved struct {
	Index   int // position in the slice passed to Enrich
	Value   string
	ByEmail bool
}

// Reason is the row diagnostic for u.
func (u Unresolved) Reason() string {
	if u.ByEmail {
		return "Onboarding advisor (email) not found: " + u.Value
	}
	return "Onboarding advisor (name) not found: " + u.Value
}

// Report summarizes one enrichment pass.
type Report struct {
	Enriched   int
	Unresolved []Unresolved
	// Warning is set when the directory lookup failed and enrichment was skipped.
	Warning string
}

// Resolver enriches BTP advisor name/email pairs with at most one directory
// lookup per candidate set.
type Resolver struct {
	dir Directory
}

// NewResolver creates a Resolver backed by dir.
func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Enrich fills advisor names and emails in place. A name match sets both
// fields from the directory entry; otherwise an email match does. Records
// whose supplied advisor matched nothing are reported but left untouched.
func (r *Resolver) Enrich(ctx context.Context, recs []*model.Customer) Report {
	var rep Report

	names, emails := candidates(recs)
	if len(names) == 0 && len(emails) == 0 {
		return rep
	}

	idx, err := r.lookup(ctx, names, emails)
	if err != nil {
		rep.Warning = fmt.Sprintf("advisor lookup failed, enrichment skipped: %v", err)
		zap.L().Warn("advisor: lookup failed", zap.Error(err))
		return rep
	}

	for i, rec := range recs {
		name := strings.TrimSpace(rec.BTPAdvisorName)
		email := strings.TrimSpace(rec.BTPAdvisorEmail)
		if name == "" && email == "" {
			continue
		}

		entry, ok := idx.byName(name)
		if !ok {
			entry, ok = idx.byEmail(email)
		}
		if ok {
			if entry.Name != "" {
				rec.BTPAdvisorName = entry.Name
			}
			if entry.Email != "" {
				rec.BTPAdvisorEmail = entry.Email
			}
			rep.Enriched++
			continue
		}

		u := Unresolved{Index: i, Value: name}
		if name == "" {
			u.Value, u.ByEmail = email, true
		}
		rep.Unresolved = append(rep.Unresolved, u)
	}

	zap.L().Debug("advisor: enrichment complete",
		zap.Int("names", len(names)),
		zap.Int("emails", len(emails)),
		zap.Int("enriched", rep.Enriched),
		zap.Int("unresolved", len(rep.Unresolved)),
	)
	return rep
}

func (r *Resolver) lookup(ctx context.Context, names, emails []string) (*index, error) {
	idx := newIndex()
	if len(names) > 0 {
		found, err := r.dir.FindByNames(ctx, names)
		if err != nil {
			return nil, err
		}
		idx.add(found...)
	}
	if len(emails) > 0 {
		found, err := r.dir.FindByEmails(ctx, emails)
		if err != nil {
			return nil, err
		}
		idx.add(found...)
	}
	return idx, nil
}

// candidates collects the distinct non-empty advisor names and emails.
func candidates(recs []*model.Customer) (names, emails []string) {
	seenName := make(map[string]bool)
	seenEmail := make(map[string]bool)
	for _, rec := range recs {
		if n := strings.TrimSpace(rec.BTPAdvisorName); n != "" && !seenName[strings.ToLower(n)] {
			seenName[strings.ToLower(n)] = true
			names = append(names, n)
		}
		if e := strings.TrimSpace(rec.BTPAdvisorEmail); e != "" && !seenEmail[strings.ToLower(e)] {
			seenEmail[strings.ToLower(e)] = true
			emails = append(emails, e)
		}
	}
	return names, emails
}

// index is a case-insensitive view of directory entries. Names also match
// advisor keys.
type index struct {
	names  map[string]model.Advisor
	emails map[string]model.Advisor
}

func newIndex() *index {
	return &index{
		names:  make(map[string]model.Advisor),
		emails: make(map[string]model.Advisor),
	}
}

func (x *index) add(entries ...model.Advisor) {
	for _, a := range entries {
		if k := fold(a.Name); k != "" {
			x.names[k] = a
		}
		if k := fold(a.Key); k != "" {
			if _, ok := x.names[k]; !ok {
				x.names[k] = a
			}
		}
		if k := fold(a.Email); k != "" {
			x.emails[k] = a
		}
	}
}

func (x *index) byName(name string) (model.Advisor, bool) {
	if name == "" {
		return model.Advisor{}, false
	}
	a, ok := x.names[fold(name)]
	return a, ok
}

func (x *index) byEmail(email string) (model.Advisor, bool) {
	if email == "" {
		return model.Advisor{}, false
	}
	a, ok := x.emails[fold(email)]
	return a, ok
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
