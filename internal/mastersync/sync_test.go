package mastersync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/emla-tracker/internal/model"
)

type staticSource struct {
	records []Record
	err     error
}

func (s staticSource) FetchAll(context.Context) ([]Record, error) { return s.records, s.err }

type fakeStore struct {
	rows      []*model.Customer
	advisors  []model.Advisor
	advErr    error
	findErr   error
	insertErr error
	patches   map[string]model.Patch
	lookups   [][]string
}

func (f *fakeStore) FindByCustomerNumbers(_ context.Context, numbers []string) ([]model.Customer, error) {
	f.lookups = append(f.lookups, numbers)
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []model.Customer
	for _, c := range f.rows {
		for _, n := range numbers {
			if c.CustomerNumber == n {
				out = append(out, *c)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) Insert(_ context.Context, c *model.Customer) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	cp := *c
	f.rows = append(f.rows, &cp)
	return nil
}

func (f *fakeStore) UpdateFields(_ context.Context, id string, patch model.Patch) error {
	if f.patches == nil {
		f.patches = map[string]model.Patch{}
	}
	f.patches[id] = patch
	return nil
}

func (f *fakeStore) FetchAll(context.Context) ([]model.Advisor, error) { return f.advisors, f.advErr }

func rec(id, number, name, emlaType, btpUser string) Record {
	return Record{
		ID:           Text(id),
		CustomerID:   Text(number),
		CustomerName: Text(name),
		EMLATypeNav:  Text(emlaType),
		BTPUserID:    Text(btpUser),
	}
}

func newTestSyncer(src Source, store Store) *Syncer {
	s := NewSyncer(src, store, 2)
	n := 0
	s.newID = func() string { n++; return "id-" + string(rune('0'+n)) }
	s.now = func() time.Time { return time.Date(2024, 7, 1, 6, 0, 0, 0, time.UTC) }
	return s
}

func TestSyncer_InsertsWithDirectoryEnrichment(t *testing.T) {
	store := &fakeStore{advisors: []model.Advisor{{Name: "Jane Doe", Email: "jane.doe@example.com", Key: "I200"}}}
	src := staticSource{records: []Record{
		rec("g1", "1001", "Acme", model.EMLATypeIntegrationSuite, "i200"),
		rec("g2", "1002", "Globex", model.EMLATypeIntegrationSuite, "I999"),
	}}

	res, err := newTestSyncer(src, store).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "Sync completed successfully", res.Message)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 2, res.Inserted)
	assert.Empty(t, res.Errors)
	assert.Equal(t, time.Date(2024, 7, 1, 6, 0, 0, 0, time.UTC), res.Timestamp)

	require.Len(t, store.rows, 2)
	acme := store.rows[0]
	assert.Equal(t, "id-1", acme.ID)
	assert.Equal(t, model.StatusNotStarted, acme.Status)
	assert.Equal(t, "Jane Doe", acme.BTPAdvisorName)
	assert.Equal(t, "jane.doe@example.com", acme.BTPAdvisorEmail)
	assert.Equal(t, "g1", acme.ExternalID)

	// Unknown user IDs stay as the advisor name.
	assert.Equal(t, "I999", store.rows[1].BTPAdvisorName)
	assert.Empty(t, store.rows[1].BTPAdvisorEmail)
}

func TestSyncer_DeltaUpdate(t *testing.T) {
	store := &fakeStore{rows: []*model.Customer{{
		ID:              "c1",
		CustomerName:    "Acme",
		CustomerNumber:  "1001",
		EMLAType:        model.EMLATypeIntegrationSuite,
		Region:          "EMEA",
		BTPAdvisorName:  "I200",
		BTPAdvisorEmail: "old@example.com",
		ExternalID:      "g1",
		Status:          model.StatusCompleted,
	}}}
	r := rec("g1", "1001", "Acme AG", model.EMLATypeIntegrationSuite, "I200")
	r.Region = "EMEA"

	res, err := newTestSyncer(staticSource{records: []Record{r}}, store).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Updated)
	assert.Zero(t, res.Inserted)
	assert.Equal(t, model.Patch{model.FieldCustomerName: "Acme AG"}, store.patches["c1"])
}

func TestSyncer_Unchanged(t *testing.T) {
	store := &fakeStore{rows: []*model.Customer{{
		ID: "c1", CustomerName: "Acme", CustomerNumber: "1001",
		EMLAType: model.EMLATypeIntegrationSuite, BTPAdvisorName: "I200", ExternalID: "g1",
	}}}
	res, err := newTestSyncer(staticSource{records: []Record{
		rec("g1", "1001", "Acme", model.EMLATypeIntegrationSuite, "I200"),
	}}, store).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Updated)
	assert.Empty(t, store.patches)
}

func TestSyncer_MissingRequired(t *testing.T) {
	store := &fakeStore{}
	res, err := newTestSyncer(staticSource{records: []Record{
		rec("", "", "No Number", model.EMLATypeIntegrationSuite, ""),
		rec("g2", "1002", "", model.EMLATypeIntegrationSuite, ""),
	}}, store).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Processed)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, ReasonMissingRequired, res.Errors[0].Reason)
	assert.Empty(t, store.rows)
	assert.Empty(t, store.lookups)
}

func TestSyncer_DuplicateKeyInFeedUpdatesSecond(t *testing.T) {
	store := &fakeStore{}
	res, err := newTestSyncer(staticSource{records: []Record{
		rec("g1", "1001", "Acme", model.EMLATypeIntegrationSuite, ""),
		rec("g1", "1001", "Acme Renamed", model.EMLATypeIntegrationSuite, ""),
	}}, store).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Updated)
}

func TestSyncer_PrefetchChunks(t *testing.T) {
	store := &fakeStore{}
	var records []Record
	for _, n := range []string{"1", "2", "3", "3", "4", "5"} {
		records = append(records, rec("g"+n, n, "C"+n, model.EMLATypeIntegrationSuite, ""))
	}
	_, err := newTestSyncer(staticSource{records: records}, store).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "2"}, {"3", "4"}, {"5"}}, store.lookups)
}

func TestSyncer_Failures(t *testing.T) {
	t.Run("feed error aborts", func(t *testing.T) {
		_, err := newTestSyncer(staticSource{err: errors.New("token expired")}, &fakeStore{}).Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fetch feed")
	})

	t.Run("prefetch error aborts", func(t *testing.T) {
		store := &fakeStore{findErr: errors.New("db down")}
		_, err := newTestSyncer(staticSource{records: []Record{
			rec("g1", "1001", "Acme", model.EMLATypeIntegrationSuite, ""),
		}}, store).Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "prefetch existing")
	})

	t.Run("directory error is a warning", func(t *testing.T) {
		store := &fakeStore{advErr: errors.New("no table")}
		res, err := newTestSyncer(staticSource{records: []Record{
			rec("g1", "1001", "Acme", model.EMLATypeIntegrationSuite, "I200"),
		}}, store).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, res.Inserted)
		require.Len(t, res.Warnings, 1)
		assert.Equal(t, "I200", store.rows[0].BTPAdvisorName)
	})

	t.Run("insert error is collected", func(t *testing.T) {
		store := &fakeStore{insertErr: errors.New("duplicate key")}
		res, err := newTestSyncer(staticSource{records: []Record{
			rec("g1", "1001", "Acme", model.EMLATypeIntegrationSuite, ""),
		}}, store).Run(context.Background())
		require.NoError(t, err)
		assert.True(t, res.Success)
		require.Len(t, res.Errors, 1)
		assert.Equal(t, "1001", res.Errors[0].CustomerNumber)
		assert.Equal(t, "duplicate key", res.Errors[0].Reason)
	})
}
