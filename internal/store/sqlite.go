package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/emla-tracker/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local
// runs and tests; lower() only folds ASCII here.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS customers (
	id                TEXT PRIMARY KEY,
	customer_name     TEXT NOT NULL,
	customer_number   TEXT NOT NULL,
	emla_type         TEXT NOT NULL,
	region            TEXT,
	country           TEXT,
	start_date        TEXT,
	erp_onb_adv_name  TEXT,
	btp_onb_adv_name  TEXT,
	btp_onb_adv_email TEXT,
	external_id       TEXT,
	status            TEXT NOT NULL DEFAULT 'Open',
	completed_on      TEXT,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (customer_number, emla_type)
);

CREATE TABLE IF NOT EXISTS advisors (
	email       TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	advisor_key TEXT,
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_customers_number ON customers(customer_number);
CREATE INDEX IF NOT EXISTS idx_customers_status ON customers(status);
CREATE INDEX IF NOT EXISTS idx_advisors_name ON advisors(lower(name));
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteCustomerSelect = `SELECT id, customer_name, customer_number, emla_type,
	COALESCE(region, ''), COALESCE(country, ''), COALESCE(start_date, ''),
	COALESCE(erp_onb_adv_name, ''), COALESCE(btp_onb_adv_name, ''), COALESCE(btp_onb_adv_email, ''),
	COALESCE(external_id, ''), status, COALESCE(completed_on, ''),
	created_at, updated_at
	FROM customers`

// placeholders returns "?, ?, ..." for n binds.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func (s *SQLiteStore) queryCustomers(ctx context.Context, op, query string, args ...any) ([]model.Customer, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s", op)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan customer")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate customers")
}

func (s *SQLiteStore) FindByCustomerNumbers(ctx context.Context, numbers []string) ([]model.Customer, error) {
	if len(numbers) == 0 {
		return nil, nil
	}
	return s.queryCustomers(ctx, "find customers",
		sqliteCustomerSelect+` WHERE customer_number IN (`+placeholders(len(numbers))+`)`,
		stringArgs(numbers)...)
}

func (s *SQLiteStore) Insert(ctx context.Context, c *model.Customer) error {
	status := c.Status
	if status == "" {
		status = model.StatusOpen
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO customers (id, customer_name, customer_number, emla_type, region, country,
			start_date, erp_onb_adv_name, btp_onb_adv_name, btp_onb_adv_email, external_id, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.CustomerName, c.CustomerNumber, c.EMLAType, nullable(c.Region), nullable(c.Country),
		nullable(c.StartDate), nullable(c.ERPAdvisorName), nullable(c.BTPAdvisorName),
		nullable(c.BTPAdvisorEmail), nullable(c.ExternalID), status,
	)
	return eris.Wrap(err, "sqlite: insert customer")
}

func (s *SQLiteStore) UpdateFields(ctx context.Context, id string, patch model.Patch) error {
	sets, args := patchSet(patch, func(int) string { return "?" }, sqliteFieldArg)
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = datetime('now')")
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE customers SET %s WHERE id = ?", strings.Join(sets, ", ")), args...)
	if err != nil {
		return eris.Wrap(err, "sqlite: update customer")
	}
	return checkRowsAffected(res, "customer", id)
}

// sqliteFieldArg keeps dates as ISO text.
func sqliteFieldArg(f model.Field, v string) any {
	if f == model.FieldStartDate {
		return nullable(v)
	}
	return fieldArg(f, v)
}

func (s *SQLiteStore) GetCustomer(ctx context.Context, id string) (*model.Customer, error) {
	c, err := scanCustomer(s.db.QueryRowContext(ctx, sqliteCustomerSelect+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get customer")
	}
	return &c, nil
}

func (s *SQLiteStore) ListCustomers(ctx context.Context, filter CustomerFilter) ([]model.Customer, error) {
	var where []string
	var args []any
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.EMLAType != "" {
		where = append(where, "emla_type = ?")
		args = append(args, filter.EMLAType)
	}

	query := sqliteCustomerSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY customer_name, customer_number LIMIT ? OFFSET ?"
	args = append(args, filter.limit(), max(filter.Offset, 0))

	return s.queryCustomers(ctx, "list customers", query, args...)
}

func (s *SQLiteStore) SetCompleted(ctx context.Context, ids []string, day time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := append([]any{model.StatusCompleted, day.Format(isoDate)}, stringArgs(ids)...)
	res, err := s.db.ExecContext(ctx,
		`UPDATE customers SET status = ?, completed_on = ?, updated_at = datetime('now')
		WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: set completed")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

const sqliteAdvisorSelect = `SELECT name, email, COALESCE(advisor_key, '') FROM advisors`

func (s *SQLiteStore) queryAdvisors(ctx context.Context, op, query string, args ...any) ([]model.Advisor, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s", op)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Advisor
	for rows.Next() {
		var a model.Advisor
		if err := rows.Scan(&a.Name, &a.Email, &a.Key); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan advisor")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate advisors")
}

func (s *SQLiteStore) FetchAll(ctx context.Context) ([]model.Advisor, error) {
	return s.queryAdvisors(ctx, "fetch advisors", sqliteAdvisorSelect+` ORDER BY name`)
}

func (s *SQLiteStore) FindByNames(ctx context.Context, names []string) ([]model.Advisor, error) {
	keys := lowerAll(names)
	if len(keys) == 0 {
		return nil, nil
	}
	in := placeholders(len(keys))
	args := append(stringArgs(keys), stringArgs(keys)...)
	return s.queryAdvisors(ctx, "find advisors by name",
		sqliteAdvisorSelect+` WHERE lower(name) IN (`+in+`) OR lower(advisor_key) IN (`+in+`)`, args...)
}

func (s *SQLiteStore) FindByEmails(ctx context.Context, emails []string) ([]model.Advisor, error) {
	keys := lowerAll(emails)
	if len(keys) == 0 {
		return nil, nil
	}
	return s.queryAdvisors(ctx, "find advisors by email",
		sqliteAdvisorSelect+` WHERE lower(email) IN (`+placeholders(len(keys))+`)`, stringArgs(keys)...)
}

func (s *SQLiteStore) UpsertAdvisors(ctx context.Context, advisors []model.Advisor) (int64, error) {
	if len(advisors) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO advisors (email, name, advisor_key, updated_at) VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(email) DO UPDATE SET name = excluded.name, advisor_key = excluded.advisor_key,
			updated_at = excluded.updated_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare advisor upsert")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, a := range advisors {
		res, err := stmt.ExecContext(ctx, a.Email, a.Name, nullable(a.Key))
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert advisor %s", a.Email)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit tx")
	}
	return n, nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
