// Package store persists customer engagement records and the onboarding
// advisor directory on Postgres or SQLite.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/sells-group/emla-tracker/internal/model"
)

// CustomerFilter specifies criteria for listing customers.
type CustomerFilter struct {
	Status   string `json:"status,omitempty"`
	EMLAType string `json:"emlaType,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

func (f CustomerFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultListLimit
	case f.Limit > maxListLimit:
		return maxListLimit
	}
	return f.Limit
}

// Store is the persistence interface of the EMLA tracker. It satisfies both
// reconcile.Store and advisor.Directory.
type Store interface {
	// Customers
	FindByCustomerNumbers(ctx context.Context, numbers []string) ([]model.Customer, error)
	Insert(ctx context.Context, c *model.Customer) error
	UpdateFields(ctx context.Context, id string, patch model.Patch) error
	GetCustomer(ctx context.Context, id string) (*model.Customer, error)
	ListCustomers(ctx context.Context, filter CustomerFilter) ([]model.Customer, error)
	// SetCompleted marks the given records completed on day. Unknown IDs are
	// ignored; the number of updated rows is returned.
	SetCompleted(ctx context.Context, ids []string, day time.Time) (int, error)

	// Advisor directory
	FetchAll(ctx context.Context) ([]model.Advisor, error)
	FindByNames(ctx context.Context, names []string) ([]model.Advisor, error)
	FindByEmails(ctx context.Context, emails []string) ([]model.Advisor, error)
	UpsertAdvisors(ctx context.Context, advisors []model.Advisor) (int64, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

const isoDate = "2006-01-02"

// nullable stores "" as NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// dateArg converts an ISO date to a time for DATE columns.
func dateArg(s string) any {
	if s == "" {
		return nil
	}
	t, err := time.Parse(isoDate, s)
	if err != nil {
		return nil
	}
	return t
}

// fieldArg returns the bind value for a patched field.
func fieldArg(f model.Field, v string) any {
	switch f {
	case model.FieldStartDate:
		return dateArg(v)
	case model.FieldCustomerName, model.FieldCustomerNumber, model.FieldEMLAType, model.FieldStatus:
		return v
	}
	return nullable(v)
}

// lowerAll lowercases lookup keys for case-insensitive matching.
func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, strings.ToLower(strings.TrimSpace(s)))
		}
	}
	return out
}
