package mastersync

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/emla-tracker/internal/model"
)

// ReasonMissingRequired is reported for feed records without a name, number
// or EMLA type.
const ReasonMissingRequired = "Missing required fields: customerName, customerNumber or emlaType"

// Source yields the feed records of one sync run.
type Source interface {
	FetchAll(ctx context.Context) ([]Record, error)
}

// Store is what a sync needs from the customer store.
type Store interface {
	FindByCustomerNumbers(ctx context.Context, numbers []string) ([]model.Customer, error)
	Insert(ctx context.Context, c *model.Customer) error
	UpdateFields(ctx context.Context, id string, patch model.Patch) error
	FetchAll(ctx context.Context) ([]model.Advisor, error)
}

// syncFields may change on an existing record during a sync.
var syncFields = []model.Field{
	model.FieldCustomerName,
	model.FieldRegion,
	model.FieldCountry,
	model.FieldStartDate,
	model.FieldERPAdvisorName,
	model.FieldBTPAdvisorName,
	model.FieldBTPAdvisorEmail,
	model.FieldExternalID,
}

// RecordError is one feed record that could not be applied.
type RecordError struct {
	CustomerNumber string `json:"customerNumber,omitempty"`
	Reason         string `json:"reason"`
	Record         Record `json:"record"`
}

// Result summarizes one sync run.
type Result struct {
	Success   bool          `json:"success"`
	Message   string        `json:"message"`
	Processed int           `json:"processed"`
	Inserted  int           `json:"inserted"`
	Updated   int           `json:"updated"`
	Errors    []RecordError `json:"errors"`
	Warnings  []string      `json:"warnings,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Syncer reconciles feed records into the store. Matching uses the same
// composite key as uploads; new records start as "Not Started".
type Syncer struct {
	src             Source
	store           Store
	lookupChunkSize int
	newID           func() string
	now             func() time.Time
}

// NewSyncer creates a Syncer. lookupChunkSize <= 0 defaults to 100.
func NewSyncer(src Source, store Store, lookupChunkSize int) *Syncer {
	if lookupChunkSize <= 0 {
		lookupChunkSize = 100
	}
	return &Syncer{
		src:             src,
		store:           store,
		lookupChunkSize: lookupChunkSize,
		newID:           uuid.NewString,
		now:             time.Now,
	}
}

// Run performs one sync. Feed and prefetch failures abort the run; per-record
// write failures are collected in the result.
func (s *Syncer) Run(ctx context.Context) (*Result, error) {
	log := zap.L().With(zap.String("component", "mastersync"))
	start := s.now()

	records, err := s.src.FetchAll(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "mastersync: fetch feed")
	}
	res := &Result{Processed: len(records), Errors: []RecordError{}}

	batch := make([]normalized, len(records))
	for i, r := range records {
		batch[i] = normalize(r)
	}

	existing, err := s.prefetch(ctx, batch)
	if err != nil {
		return nil, eris.Wrap(err, "mastersync: prefetch existing")
	}

	advisors := map[string]model.Advisor{}
	if dir, err := s.store.FetchAll(ctx); err != nil {
		log.Warn("mastersync: advisor directory unavailable", zap.Error(err))
		res.Warnings = append(res.Warnings, "advisor directory unavailable, user IDs kept as names: "+err.Error())
	} else {
		for _, a := range dir {
			if a.Key != "" {
				advisors[strings.ToLower(a.Key)] = a
			}
		}
	}

	for _, n := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !n.valid() {
			res.Errors = append(res.Errors, RecordError{Reason: ReasonMissingRequired, Record: n.raw})
			continue
		}
		key := n.rec.Key()
		stored := existing[key]
		rec := enrich(n, stored, advisors)

		if stored != nil {
			patch := syncDiff(stored, &rec)
			if len(patch) == 0 {
				continue
			}
			if err := s.store.UpdateFields(ctx, stored.ID, patch); err != nil {
				log.Error("mastersync: update failed", zap.String("customer_number", rec.CustomerNumber), zap.Error(err))
				res.Errors = append(res.Errors, RecordError{CustomerNumber: rec.CustomerNumber, Reason: err.Error(), Record: n.raw})
				continue
			}
			patch.Apply(stored)
			res.Updated++
			continue
		}

		rec.ID = s.newID()
		rec.Status = model.StatusNotStarted
		if err := s.store.Insert(ctx, &rec); err != nil {
			log.Error("mastersync: insert failed", zap.String("customer_number", rec.CustomerNumber), zap.Error(err))
			res.Errors = append(res.Errors, RecordError{CustomerNumber: rec.CustomerNumber, Reason: err.Error(), Record: n.raw})
			continue
		}
		existing[key] = &rec
		res.Inserted++
	}

	res.Success = true
	res.Message = "Sync completed successfully"
	res.Timestamp = s.now().UTC()
	log.Info("mastersync: sync finished",
		zap.Int("processed", res.Processed),
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("errors", len(res.Errors)),
		zap.Duration("elapsed", s.now().Sub(start)),
	)
	return res, nil
}

// enrich derives advisor fields. A user ID wins over stored or raw names and
// is replaced by the directory entry whose key matches it.
func enrich(n normalized, stored *model.Customer, advisors map[string]model.Advisor) model.Customer {
	rec := n.rec
	var storedERP, storedBTP, storedEmail string
	if stored != nil {
		storedERP, storedBTP, storedEmail = stored.ERPAdvisorName, stored.BTPAdvisorName, stored.BTPAdvisorEmail
	}

	rec.ERPAdvisorName = first(n.erpUserID, storedERP, n.raw.ERPAdvisorName.String())
	rec.BTPAdvisorName = first(n.btpUserID, storedBTP, n.raw.BTPAdvisorName.String())
	rec.BTPAdvisorEmail = first(n.raw.BTPAdvisorEmail.String(), storedEmail)

	if n.btpUserID != "" && rec.BTPAdvisorName == n.btpUserID {
		if a, ok := advisors[strings.ToLower(n.btpUserID)]; ok {
			if a.Name != "" {
				rec.BTPAdvisorName = a.Name
			}
			if rec.BTPAdvisorEmail == "" {
				rec.BTPAdvisorEmail = a.Email
			}
		}
	}
	for _, f := range []model.Field{model.FieldERPAdvisorName, model.FieldBTPAdvisorName, model.FieldBTPAdvisorEmail} {
		rec.Set(f, truncateField(f, rec.Get(f)))
	}
	return rec
}

func first(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func truncateField(f model.Field, v string) string {
	if r := []rune(v); len(r) > f.MaxLen() {
		return string(r[:f.MaxLen()])
	}
	return v
}

// syncDiff returns the sync fields whose non-empty incoming value differs.
func syncDiff(stored, incoming *model.Customer) model.Patch {
	patch := model.Patch{}
	for _, f := range syncFields {
		next := strings.TrimSpace(incoming.Get(f))
		if next != "" && next != strings.TrimSpace(stored.Get(f)) {
			patch[f] = next
		}
	}
	return patch
}

func (s *Syncer) prefetch(ctx context.Context, batch []normalized) (map[string]*model.Customer, error) {
	var numbers []string
	seen := map[string]bool{}
	for _, n := range batch {
		num := n.rec.CustomerNumber
		if n.valid() && !seen[num] {
			seen[num] = true
			numbers = append(numbers, num)
		}
	}

	index := map[string]*model.Customer{}
	for start := 0; start < len(numbers); start += s.lookupChunkSize {
		end := min(start+s.lookupChunkSize, len(numbers))
		rows, err := s.store.FindByCustomerNumbers(ctx, numbers[start:end])
		if err != nil {
			return nil, err
		}
		for i := range rows {
			index[rows[i].Key()] = &rows[i]
		}
	}
	return index, nil
}
