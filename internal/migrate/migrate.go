// Package migrate applies the embedded Postgres schema migrations.
package migrate

import (
	"context"
	"embed"
	"io/fs"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/emla-tracker/internal/db"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// lockKey serializes concurrent migration runs across processes.
const lockKey = 40_100_117

// Result lists the migrations applied by one Run.
type Result struct {
	Applied []string
	Skipped int
}

// Run applies every pending migration in filename order under an advisory
// lock. Each applied file is recorded in emla.schema_migrations.
func Run(ctx context.Context, pool db.Pool) (*Result, error) {
	log := zap.L().With(zap.String("component", "migrate"))

	if _, err := pool.Exec(ctx, "SELECT pg_advisory_lock($1)", lockKey); err != nil {
		return nil, eris.Wrap(err, "migrate: acquire advisory lock")
	}
	defer func() {
		if _, err := pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", lockKey); err != nil {
			log.Warn("migrate: release advisory lock", zap.Error(err))
		}
	}()

	if err := ensureMigrationTable(ctx, pool); err != nil {
		return nil, err
	}

	names, err := Files()
	if err != nil {
		return nil, err
	}
	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for _, name := range names {
		if applied[name] {
			res.Skipped++
			continue
		}
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return res, eris.Wrapf(err, "migrate: read %s", name)
		}

		log.Info("migrate: applying", zap.String("file", name))
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return res, eris.Wrapf(err, "migrate: apply %s", name)
		}
		if _, err := pool.Exec(ctx,
			"INSERT INTO emla.schema_migrations (filename, applied_at) VALUES ($1, now())",
			name,
		); err != nil {
			return res, eris.Wrapf(err, "migrate: record %s", name)
		}
		res.Applied = append(res.Applied, name)
	}

	log.Info("migrate: done", zap.Int("applied", len(res.Applied)), zap.Int("skipped", res.Skipped))
	return res, nil
}

// Files returns the embedded migration filenames in apply order.
func Files() ([]string, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, eris.Wrap(err, "migrate: read migration dir")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func ensureMigrationTable(ctx context.Context, pool db.Pool) error {
	sql := `
		CREATE SCHEMA IF NOT EXISTS emla;
		CREATE TABLE IF NOT EXISTS emla.schema_migrations (
			id         SERIAL PRIMARY KEY,
			filename   TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`
	if _, err := pool.Exec(ctx, sql); err != nil {
		return eris.Wrap(err, "migrate: ensure migration table")
	}
	return nil
}

func appliedMigrations(ctx context.Context, pool db.Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, "SELECT filename FROM emla.schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "migrate: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "migrate: scan migration row")
		}
		applied[name] = true
	}
	return applied, eris.Wrap(rows.Err(), "migrate: iterate applied migrations")
}
