package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/emla-tracker/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func sampleCustomer(id, number string) *model.Customer {
	return &model.Customer{
		ID:             id,
		CustomerName:   "Acme " + number,
		CustomerNumber: number,
		EMLAType:       model.EMLATypeIntegrationSuite,
		Region:         "EMEA",
		StartDate:      "2024-03-15",
		BTPAdvisorName: "Jane Doe",
	}
}

// --- Customers ---

func TestSQLite_InsertAndFind(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Insert(ctx, sampleCustomer("c1", "1001")))
	require.NoError(t, st.Insert(ctx, sampleCustomer("c2", "1002")))

	got, err := st.FindByCustomerNumbers(ctx, []string{"1001", "9999"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].ID)
	assert.Equal(t, "2024-03-15", got[0].StartDate)
	assert.Equal(t, model.StatusOpen, got[0].Status)
	assert.Empty(t, got[0].Country)
	assert.False(t, got[0].CreatedAt.IsZero())

	none, err := st.FindByCustomerNumbers(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLite_Insert_DuplicateKey(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Insert(ctx, sampleCustomer("c1", "1001")))
	err := st.Insert(ctx, sampleCustomer("c2", "1001"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UNIQUE constraint failed")

	other := sampleCustomer("c3", "1001")
	other.EMLAType = model.EMLATypePublicCloudERP
	require.NoError(t, st.Insert(ctx, other))
}

func TestSQLite_UpdateFields(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, st.Insert(ctx, sampleCustomer("c1", "1001")))

	err := st.UpdateFields(ctx, "c1", model.Patch{
		model.FieldBTPAdvisorEmail: "jane.doe@example.com",
		model.FieldExternalID:      "EXT-1",
	})
	require.NoError(t, err)

	c, err := st.GetCustomer(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "jane.doe@example.com", c.BTPAdvisorEmail)
	assert.Equal(t, "EXT-1", c.ExternalID)
	assert.Equal(t, "Jane Doe", c.BTPAdvisorName)

	assert.NoError(t, st.UpdateFields(ctx, "c1", model.Patch{}))

	err = st.UpdateFields(ctx, "missing", model.Patch{model.FieldExternalID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "customer not found")
}

func TestSQLite_GetCustomer_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	c, err := st.GetCustomer(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestSQLite_ListCustomers(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	for i, n := range []string{"1003", "1001", "1002"} {
		c := sampleCustomer("c"+n, n)
		if i == 0 {
			c.EMLAType = model.EMLATypePublicCloudERP
		}
		require.NoError(t, st.Insert(ctx, c))
	}

	all, err := st.ListCustomers(ctx, CustomerFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "1001", all[0].CustomerNumber)

	public, err := st.ListCustomers(ctx, CustomerFilter{EMLAType: model.EMLATypePublicCloudERP})
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.Equal(t, "1003", public[0].CustomerNumber)

	page, err := st.ListCustomers(ctx, CustomerFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "1002", page[0].CustomerNumber)
}

func TestSQLite_SetCompleted(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, st.Insert(ctx, sampleCustomer("c1", "1001")))
	require.NoError(t, st.Insert(ctx, sampleCustomer("c2", "1002")))

	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	n, err := st.SetCompleted(ctx, []string{"c1", "unknown"}, day)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	c, err := st.GetCustomer(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, c.Status)
	assert.Equal(t, "2024-06-01", c.CompletedOn)

	open, err := st.ListCustomers(ctx, CustomerFilter{Status: model.StatusOpen})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "c2", open[0].ID)

	n, err = st.SetCompleted(ctx, nil, day)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// --- Advisors ---

func TestSQLite_Advisors(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := st.UpsertAdvisors(ctx, []model.Advisor{
		{Name: "Jane Doe", Email: "jane.doe@example.com", Key: "U100"},
		{Name: "Li Wei", Email: "li.wei@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Re-load updates the name in place.
	_, err = st.UpsertAdvisors(ctx, []model.Advisor{{Name: "Jane Q. Doe", Email: "jane.doe@example.com", Key: "U100"}})
	require.NoError(t, err)

	all, err := st.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, model.Advisor{Name: "Jane Q. Doe", Email: "jane.doe@example.com", Key: "U100"}, all[0])

	byName, err := st.FindByNames(ctx, []string{"LI WEI", "u100", " "})
	require.NoError(t, err)
	assert.Len(t, byName, 2)

	byEmail, err := st.FindByEmails(ctx, []string{"Li.Wei@Example.com"})
	require.NoError(t, err)
	require.Len(t, byEmail, 1)
	assert.Equal(t, "Li Wei", byEmail[0].Name)

	empty, err := st.FindByEmails(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLite_Ping(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Ping(context.Background()))
}
