// Package ingest runs one upload batch through parsing, mapping, cleaning,
// advisor enrichment and reconciliation.
package ingest

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/emla-tracker/internal/advisor"
	"github.com/sells-group/emla-tracker/internal/model"
	"github.com/sells-group/emla-tracker/internal/reconcile"
	"github.com/sells-group/emla-tracker/internal/result"
	"github.com/sells-group/emla-tracker/internal/sanitize"
	"github.com/sells-group/emla-tracker/internal/schema"
	"github.com/sells-group/emla-tracker/internal/tabular"
)

// Input is one batch of one logical upload.
type Input struct {
	CSVText     string
	DialectHint string
	// RowOffset shifts reported row numbers so batches of a split upload
	// keep numbering from the original file.
	RowOffset int
}

// Config tunes a Pipeline.
type Config struct {
	Reconcile reconcile.Config
	// RequireAdvisor skips records of advisor-required dialects that end up
	// with no BTP advisor. Skipped rows are counted, not reported as errors.
	RequireAdvisor bool
}

// Pipeline is safe for sequential and concurrent Process calls; it keeps no
// state between invocations.
type Pipeline struct {
	tables     *schema.Tables
	resolver   *advisor.Resolver
	reconciler *reconcile.Reconciler
	cfg        Config
}

// New creates a Pipeline.
func New(tables *schema.Tables, dir advisor.Directory, store reconcile.Store, cfg Config) *Pipeline {
	return &Pipeline{
		tables:     tables,
		resolver:   advisor.NewResolver(dir),
		reconciler: reconcile.New(store, cfg.Reconcile),
		cfg:        cfg,
	}
}

// Process ingests one batch. Only empty input, an unknown dialect hint and
// context cancellation return an error; row problems land in the result.
func (p *Pipeline) Process(ctx context.Context, in Input) (*result.UploadResult, error) {
	start := time.Now()

	tbl, err := tabular.Parse(in.CSVText, tabular.Options{Header: p.tables.DisplayHeader})
	if err != nil {
		return nil, eris.Wrap(err, "ingest: parse")
	}
	plan, err := p.tables.Plan(tbl, in.DialectHint)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: plan")
	}

	log := zap.L().With(
		zap.String("dialect", plan.Dialect.Name),
		zap.Bool("detected", plan.Detected),
	)
	res := &result.UploadResult{TotalRows: len(tbl.Rows), Dialect: plan.Dialect.Name}

	var items []reconcile.Item
	for _, row := range tbl.Rows {
		num := row.Number + in.RowOffset
		mapped := plan.Map(row)

		rec, err := sanitize.Clean(mapped.Record)
		if err != nil {
			res.ValidationErrors++
			res.AddError(num, err.Error(), row.Cells())
			continue
		}
		if mapped.RecoveredAdvisor {
			res.RecoveredAdvisorCount++
		}
		items = append(items, reconcile.Item{Row: num, Record: rec, Cells: row.Cells()})
	}

	recs := make([]*model.Customer, len(items))
	for i := range items {
		recs[i] = &items[i].Record
	}
	rep := p.resolver.Enrich(ctx, recs)
	if rep.Warning != "" {
		res.Warnings = append(res.Warnings, rep.Warning)
	}
	for _, u := range rep.Unresolved {
		res.AdvisorNotFoundCount++
		it := items[u.Index]
		res.AddError(it.Row, u.Reason(), it.Cells)
	}

	if p.cfg.RequireAdvisor && plan.Dialect.AdvisorRequired {
		kept := items[:0]
		for _, it := range items {
			if it.Record.BTPAdvisorName == "" && it.Record.BTPAdvisorEmail == "" {
				res.SkippedNoAdvisor++
				continue
			}
			kept = append(kept, it)
		}
		items = kept
	}

	if err := p.reconciler.Apply(ctx, items, res); err != nil {
		return nil, eris.Wrap(err, "ingest: reconcile")
	}

	res.Finalize()
	log.Info("ingest: batch processed",
		zap.Int("rows", res.TotalRows),
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("unchanged", res.Unchanged),
		zap.Int("validation_errors", res.ValidationErrors),
		zap.Int("db_errors", res.DBErrors),
		zap.Int("update_errors", res.UpdateErrors),
		zap.Int("advisor_unresolved", res.AdvisorNotFoundCount),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}
