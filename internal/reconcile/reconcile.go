// Package reconcile applies cleaned upload records to the customer store by
// composite key: insert new engagements, patch changed advisor fields.
package reconcile

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/emla-tracker/internal/model"
	"github.com/sells-group/emla-tracker/internal/result"
	"github.com/sells-group/emla-tracker/internal/tabular"
)

// Store is the customer persistence the reconciler writes through.
type Store interface {
	FindByCustomerNumbers(ctx context.Context, numbers []string) ([]model.Customer, error)
	Insert(ctx context.Context, c *model.Customer) error
	UpdateFields(ctx context.Context, id string, patch model.Patch) error
}

// UpdatableFields are the only fields an upload may change on an existing record.
var UpdatableFields = []model.Field{
	model.FieldBTPAdvisorName,
	model.FieldBTPAdvisorEmail,
	model.FieldERPAdvisorName,
	model.FieldExternalID,
}

// Config bounds store load.
type Config struct {
	ChunkSize       int           // writes per chunk
	ChunkPause      time.Duration // pause between write chunks
	LookupChunkSize int           // customer numbers per lookup call
}

func (c *Config) applyDefaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 10
	}
	if c.LookupChunkSize <= 0 {
		c.LookupChunkSize = 100
	}
	if c.ChunkPause < 0 {
		c.ChunkPause = 0
	}
}

// Item is one cleaned record with the upload row it came from.
type Item struct {
	Row    int
	Record model.Customer
	Cells  []tabular.Cell
}

// Reconciler matches items against stored customers and applies inserts or
// partial updates, one chunk at a time.
type Reconciler struct {
	store Store
	cfg   Config
	newID func() string
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Reconciler.
func New(store Store, cfg Config) *Reconciler {
	cfg.applyDefaults()
	return &Reconciler{
		store: store,
		cfg:   cfg,
		newID: uuid.NewString,
		sleep: sleepCtx,
	}
}

// Apply reconciles items in order and records every outcome on res. Row
// failures never stop the run; only context cancellation between chunks does.
func (r *Reconciler) Apply(ctx context.Context, items []Item, res *result.UploadResult) error {
	if len(items) == 0 {
		return nil
	}
	log := zap.L().With(zap.String("component", "reconcile"))

	existing, err := r.prefetch(ctx, items)
	if err != nil {
		res.AddWarning("existing record lookup failed, treating all rows as new: %v", err)
		log.Warn("reconcile: existing lookup failed", zap.Error(err))
		existing = make(map[string]*model.Customer)
	}
	log.Info("reconcile: start",
		zap.Int("records", len(items)),
		zap.Int("existing_matches", len(existing)),
	)

	for start := 0; start < len(items); start += r.cfg.ChunkSize {
		if start > 0 {
			if err := r.sleep(ctx, r.cfg.ChunkPause); err != nil {
				return err
			}
		}
		end := min(start+r.cfg.ChunkSize, len(items))
		for i := start; i < end; i++ {
			r.applyOne(ctx, &items[i], existing, res, log)
		}
	}
	return nil
}

func (r *Reconciler) applyOne(ctx context.Context, it *Item, existing map[string]*model.Customer, res *result.UploadResult, log *zap.Logger) {
	key := it.Record.Key()

	if cur, ok := existing[key]; ok {
		patch := Diff(cur, &it.Record)
		if len(patch) == 0 {
			res.Unchanged++
			return
		}
		if err := r.store.UpdateFields(ctx, cur.ID, patch); err != nil {
			res.UpdateErrors++
			res.AddError(it.Row, "Update failed: "+ClassifyError(err), it.Cells)
			log.Error("reconcile: update failed",
				zap.String("id", cur.ID),
				zap.Int("row", it.Row),
				zap.Error(err),
			)
			return
		}
		patch.Apply(cur)
		res.Updated++
		return
	}

	rec := it.Record
	rec.ID = r.newID()
	// Uploads always create open records; only the completion toggle moves
	// them on.
	rec.Status = model.StatusOpen
	rec.CompletedOn = ""
	if err := r.store.Insert(ctx, &rec); err != nil {
		res.DBErrors++
		res.AddError(it.Row, ClassifyError(err), it.Cells)
		log.Error("reconcile: insert failed",
			zap.String("key", key),
			zap.Int("row", it.Row),
			zap.Error(err),
		)
		return
	}
	// A repeated key later in the same upload becomes an update or no-op.
	existing[key] = &rec
	res.Inserted++
}

// prefetch loads stored customers for every distinct customer number in
// chunks and indexes them by composite key.
func (r *Reconciler) prefetch(ctx context.Context, items []Item) (map[string]*model.Customer, error) {
	var numbers []string
	seen := make(map[string]bool)
	for _, it := range items {
		n := strings.TrimSpace(it.Record.CustomerNumber)
		if n == "" || it.Record.EMLAType == "" || seen[n] {
			continue
		}
		seen[n] = true
		numbers = append(numbers, n)
	}

	index := make(map[string]*model.Customer)
	for start := 0; start < len(numbers); start += r.cfg.LookupChunkSize {
		end := min(start+r.cfg.LookupChunkSize, len(numbers))
		rows, err := r.store.FindByCustomerNumbers(ctx, numbers[start:end])
		if err != nil {
			return nil, err
		}
		for i := range rows {
			c := rows[i]
			if c.CustomerNumber == "" || c.EMLAType == "" {
				continue
			}
			index[c.Key()] = &c
		}
	}
	return index, nil
}

// Diff returns the updatable fields whose incoming value is non-empty and
// differs from the stored one. Empty incoming values never clear data.
func Diff(stored, incoming *model.Customer) model.Patch {
	patch := model.Patch{}
	for _, f := range UpdatableFields {
		next := strings.TrimSpace(incoming.Get(f))
		if next == "" {
			continue
		}
		if next != strings.TrimSpace(stored.Get(f)) {
			patch[f] = next
		}
	}
	return patch
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
