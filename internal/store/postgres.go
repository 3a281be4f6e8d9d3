package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/emla-tracker/internal/db"
	"github.com/sells-group/emla-tracker/internal/migrate"
	"github.com/sells-group/emla-tracker/internal/model"
	"github.com/sells-group/emla-tracker/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	retry   resilience.RetryConfig
}

var _ Store = (*PostgresStore)(nil)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, retry: resilience.DefaultRetryConfig()}, nil
}

// SetRetry replaces the retry policy used for read lookups.
func (s *PostgresStore) SetRetry(cfg resilience.RetryConfig) {
	s.retry = cfg
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

// Migrate applies the embedded schema migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := migrate.Run(ctx, s.pool)
	return err
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const pgCustomerSelect = `SELECT id, customer_name, customer_number, emla_type,
	COALESCE(region, ''), COALESCE(country, ''), COALESCE(to_char(start_date, 'YYYY-MM-DD'), ''),
	COALESCE(erp_onb_adv_name, ''), COALESCE(btp_onb_adv_name, ''), COALESCE(btp_onb_adv_email, ''),
	COALESCE(external_id, ''), status, COALESCE(to_char(completed_on, 'YYYY-MM-DD'), ''),
	created_at, updated_at
	FROM emla.customers`

type scannable interface {
	Scan(dest ...any) error
}

func scanCustomer(row scannable) (model.Customer, error) {
	var c model.Customer
	err := row.Scan(
		&c.ID, &c.CustomerName, &c.CustomerNumber, &c.EMLAType,
		&c.Region, &c.Country, &c.StartDate,
		&c.ERPAdvisorName, &c.BTPAdvisorName, &c.BTPAdvisorEmail,
		&c.ExternalID, &c.Status, &c.CompletedOn,
		&c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

func (s *PostgresStore) queryCustomers(ctx context.Context, op, sql string, args ...any) ([]model.Customer, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: %s", op)
	}
	defer rows.Close()

	var out []model.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: scan customer")
		}
		out = append(out, c)
	}
	return out, eris.Wrapf(rows.Err(), "postgres: iterate customers")
}

// FindByCustomerNumbers returns every stored record whose customer number is
// in numbers, across all EMLA types.
func (s *PostgresStore) FindByCustomerNumbers(ctx context.Context, numbers []string) ([]model.Customer, error) {
	if len(numbers) == 0 {
		return nil, nil
	}
	return resilience.DoVal(ctx, s.retry, func(ctx context.Context) ([]model.Customer, error) {
		return s.queryCustomers(ctx, "find customers",
			pgCustomerSelect+` WHERE customer_number = ANY($1)`, numbers)
	})
}

// Insert creates a record. c.ID must be set by the caller.
func (s *PostgresStore) Insert(ctx context.Context, c *model.Customer) error {
	status := c.Status
	if status == "" {
		status = model.StatusOpen
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO emla.customers (id, customer_name, customer_number, emla_type, region, country,
			start_date, erp_onb_adv_name, btp_onb_adv_name, btp_onb_adv_email, external_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.CustomerName, c.CustomerNumber, c.EMLAType, nullable(c.Region), nullable(c.Country),
		dateArg(c.StartDate), nullable(c.ERPAdvisorName), nullable(c.BTPAdvisorName),
		nullable(c.BTPAdvisorEmail), nullable(c.ExternalID), status,
	)
	return eris.Wrap(err, "postgres: insert customer")
}

// UpdateFields writes only the patched columns of one record.
func (s *PostgresStore) UpdateFields(ctx context.Context, id string, patch model.Patch) error {
	sets, args := patchSet(patch, func(n int) string { return fmt.Sprintf("$%d", n) }, fieldArg)
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	sql := fmt.Sprintf("UPDATE emla.customers SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return eris.Wrap(err, "postgres: update customer")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("customer not found: %s", id)
	}
	return nil
}

// patchSet renders "column = placeholder" pairs in canonical field order.
func patchSet(patch model.Patch, placeholder func(n int) string, arg func(model.Field, string) any) ([]string, []any) {
	var sets []string
	var args []any
	for _, f := range patch.Fields() {
		col := f.Column()
		if col == "" {
			continue
		}
		args = append(args, arg(f, patch[f]))
		sets = append(sets, col+" = "+placeholder(len(args)))
	}
	return sets, args
}

// GetCustomer returns nil, nil when id does not exist.
func (s *PostgresStore) GetCustomer(ctx context.Context, id string) (*model.Customer, error) {
	c, err := scanCustomer(s.pool.QueryRow(ctx, pgCustomerSelect+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get customer")
	}
	return &c, nil
}

func (s *PostgresStore) ListCustomers(ctx context.Context, filter CustomerFilter) ([]model.Customer, error) {
	var where []string
	var args []any
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.EMLAType != "" {
		args = append(args, filter.EMLAType)
		where = append(where, fmt.Sprintf("emla_type = $%d", len(args)))
	}

	sql := pgCustomerSelect
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.limit(), max(filter.Offset, 0))
	sql += fmt.Sprintf(" ORDER BY customer_name, customer_number LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	return s.queryCustomers(ctx, "list customers", sql, args...)
}

func (s *PostgresStore) SetCompleted(ctx context.Context, ids []string, day time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE emla.customers SET status = $1, completed_on = $2 WHERE id = ANY($3)`,
		model.StatusCompleted, day, ids,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: set completed")
	}
	return int(tag.RowsAffected()), nil
}

const pgAdvisorSelect = `SELECT name, email, COALESCE(advisor_key, '') FROM emla.advisors`

func (s *PostgresStore) queryAdvisors(ctx context.Context, op, sql string, args ...any) ([]model.Advisor, error) {
	return resilience.DoVal(ctx, s.retry, func(ctx context.Context) ([]model.Advisor, error) {
		rows, err := s.pool.Query(ctx, sql, args...)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: %s", op)
		}
		defer rows.Close()

		var out []model.Advisor
		for rows.Next() {
			var a model.Advisor
			if err := rows.Scan(&a.Name, &a.Email, &a.Key); err != nil {
				return nil, eris.Wrap(err, "postgres: scan advisor")
			}
			out = append(out, a)
		}
		return out, eris.Wrap(rows.Err(), "postgres: iterate advisors")
	})
}

func (s *PostgresStore) FetchAll(ctx context.Context) ([]model.Advisor, error) {
	return s.queryAdvisors(ctx, "fetch advisors", pgAdvisorSelect+` ORDER BY name`)
}

// FindByNames matches advisor names or advisor keys case-insensitively.
func (s *PostgresStore) FindByNames(ctx context.Context, names []string) ([]model.Advisor, error) {
	keys := lowerAll(names)
	if len(keys) == 0 {
		return nil, nil
	}
	return s.queryAdvisors(ctx, "find advisors by name",
		pgAdvisorSelect+` WHERE lower(name) = ANY($1) OR lower(advisor_key) = ANY($1)`, keys)
}

func (s *PostgresStore) FindByEmails(ctx context.Context, emails []string) ([]model.Advisor, error) {
	keys := lowerAll(emails)
	if len(keys) == 0 {
		return nil, nil
	}
	return s.queryAdvisors(ctx, "find advisors by email",
		pgAdvisorSelect+` WHERE lower(email) = ANY($1)`, keys)
}

var advisorUpsert = db.UpsertConfig{
	Table:        "emla.advisors",
	Columns:      []string{"email", "name", "advisor_key", "updated_at"},
	ConflictKeys: []string{"email"},
}

// UpsertAdvisors bulk loads directory entries keyed on email.
func (s *PostgresStore) UpsertAdvisors(ctx context.Context, advisors []model.Advisor) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(advisors))
	for _, a := range advisors {
		rows = append(rows, []any{a.Email, a.Name, nullable(a.Key), now})
	}
	n, err := db.BulkUpsert(ctx, s.pool, advisorUpsert, rows)
	return n, eris.Wrap(err, "postgres: upsert advisors")
}
