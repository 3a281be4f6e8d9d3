package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig describes a keyed bulk write.
type UpsertConfig struct {
	Table        string   // optionally schema-qualified, e.g. "emla.advisors"
	Columns      []string // columns present in every row
	ConflictKeys []string // columns of the unique constraint
	UpdateCols   []string // columns refreshed on conflict; nil = every non-key column
}

func (c UpsertConfig) validate() error {
	if len(c.Columns) == 0 {
		return eris.New("db: upsert: no columns specified")
	}
	if len(c.ConflictKeys) == 0 {
		return eris.New("db: upsert: no conflict keys specified")
	}
	known := make(map[string]bool, len(c.Columns))
	for _, col := range c.Columns {
		known[col] = true
	}
	for _, k := range c.ConflictKeys {
		if !known[k] {
			return eris.Errorf("db: upsert: conflict key %s is not a column", k)
		}
	}
	return nil
}

func (c UpsertConfig) updateColumns() []string {
	if c.UpdateCols != nil {
		return c.UpdateCols
	}
	keys := make(map[string]bool, len(c.ConflictKeys))
	for _, k := range c.ConflictKeys {
		keys[k] = true
	}
	var out []string
	for _, col := range c.Columns {
		if !keys[col] {
			out = append(out, col)
		}
	}
	return out
}

// stagingTable is the temp table name used for cfg.Table.
func (c UpsertConfig) stagingTable() string {
	return "_stage_" + strings.ReplaceAll(c.Table, ".", "_")
}

// BulkUpsert stages rows with COPY into a transaction-scoped temp table and
// merges them into the target with INSERT ... ON CONFLICT, all in one
// transaction. It returns the number of rows inserted or updated.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := cfg.validate(); err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stage := cfg.stagingTable()
	if _, err := tx.Exec(ctx, createStageSQL(cfg)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: stage %s", cfg.Table)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{stage}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: copy into stage for %s", cfg.Table)
	}

	tag, err := tx.Exec(ctx, mergeSQL(cfg))
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: merge into %s", cfg.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return tag.RowsAffected(), nil
}

func createStageSQL(cfg UpsertConfig) string {
	return fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{cfg.stagingTable()}.Sanitize(),
		sanitizeTable(cfg.Table),
	)
}

func mergeSQL(cfg UpsertConfig) string {
	cols := quoteAndJoin(cfg.Columns)
	action := "DO NOTHING"
	if upd := cfg.updateColumns(); len(upd) > 0 {
		sets := make([]string, len(upd))
		for i, col := range upd {
			id := pgx.Identifier{col}.Sanitize()
			sets[i] = id + " = EXCLUDED." + id
		}
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		sanitizeTable(cfg.Table),
		cols,
		cols,
		pgx.Identifier{cfg.stagingTable()}.Sanitize(),
		quoteAndJoin(cfg.ConflictKeys),
		action,
	)
}

// sanitizeTable quotes a table name, keeping a schema qualifier.
func sanitizeTable(table string) string {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
