// Package uploadsession accumulates the per-batch results of one logical
// upload in Redis so they can be merged into a single summary.
package uploadsession

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/emla-tracker/internal/result"
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("upload session not found")

const keyPrefix = "emla:upload:"

// Summary is the merged view of a session.
type Summary struct {
	ID              string               `json:"id"`
	ExpectedBatches int                  `json:"expectedBatches,omitempty"`
	ReceivedBatches int                  `json:"receivedBatches"`
	Complete        bool                 `json:"complete"`
	CreatedAt       time.Time            `json:"createdAt"`
	Result          *result.UploadResult `json:"result"`
}

// Store keeps sessions in Redis: a hash with the session metadata and a
// list with one JSON-encoded result per batch. Both keys share a TTL that is
// refreshed on every append.
type Store struct {
	rdb   redis.UniversalClient
	ttl   time.Duration
	newID func() string
	now   func() time.Time
}

// New creates a Store. ttl <= 0 defaults to 24h.
func New(rdb redis.UniversalClient, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{rdb: rdb, ttl: ttl, newID: uuid.NewString, now: time.Now}
}

func metaKey(id string) string    { return keyPrefix + id + ":meta" }
func batchesKey(id string) string { return keyPrefix + id + ":batches" }

// Start opens a session. expectedBatches may be 0 when the caller does not
// know the batch count up front.
func (s *Store) Start(ctx context.Context, expectedBatches int) (string, error) {
	id := s.newID()
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, metaKey(id),
			"expected", expectedBatches,
			"created_at", s.now().UTC().Format(time.RFC3339),
		)
		pipe.Expire(ctx, metaKey(id), s.ttl)
		return nil
	})
	if err != nil {
		return "", eris.Wrap(err, "uploadsession: start")
	}
	return id, nil
}

// Exists reports whether the session is open.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.rdb.Exists(ctx, metaKey(id)).Result()
	if err != nil {
		return false, eris.Wrap(err, "uploadsession: check session")
	}
	return n > 0, nil
}

// Append stores one batch result and returns the number of batches received.
func (s *Store) Append(ctx context.Context, id string, res *result.UploadResult) (int, error) {
	ok, err := s.Exists(ctx, id)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNotFound
	}

	data, err := json.Marshal(res)
	if err != nil {
		return 0, eris.Wrap(err, "uploadsession: encode result")
	}

	var push *redis.IntCmd
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		push = pipe.RPush(ctx, batchesKey(id), data)
		pipe.Expire(ctx, batchesKey(id), s.ttl)
		pipe.Expire(ctx, metaKey(id), s.ttl)
		return nil
	})
	if err != nil {
		return 0, eris.Wrap(err, "uploadsession: append batch")
	}
	return int(push.Val()), nil
}

// Get merges every stored batch result of the session.
func (s *Store) Get(ctx context.Context, id string) (*Summary, error) {
	meta, err := s.rdb.HGetAll(ctx, metaKey(id)).Result()
	if err != nil {
		return nil, eris.Wrap(err, "uploadsession: read session")
	}
	if len(meta) == 0 {
		return nil, ErrNotFound
	}
	raw, err := s.rdb.LRange(ctx, batchesKey(id), 0, -1).Result()
	if err != nil {
		return nil, eris.Wrap(err, "uploadsession: read batches")
	}

	sum := &Summary{ID: id, ReceivedBatches: len(raw), Result: &result.UploadResult{}}
	sum.ExpectedBatches, _ = strconv.Atoi(meta["expected"])
	sum.CreatedAt, _ = time.Parse(time.RFC3339, meta["created_at"])
	for i, item := range raw {
		var batch result.UploadResult
		if err := json.Unmarshal([]byte(item), &batch); err != nil {
			return nil, eris.Wrapf(err, "uploadsession: decode batch %d", i+1)
		}
		sum.Result.Merge(&batch)
	}
	sum.Result.Finalize()
	sum.Complete = sum.ExpectedBatches > 0 && sum.ReceivedBatches >= sum.ExpectedBatches
	return sum, nil
}

// Delete drops a session and its batches.
func (s *Store) Delete(ctx context.Context, id string) error {
	return eris.Wrap(s.rdb.Del(ctx, metaKey(id), batchesKey(id)).Err(), "uploadsession: delete")
}
