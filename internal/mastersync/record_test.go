package mastersync

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/emla-tracker/internal/model"
)

func TestText_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want Text
	}{
		{`"Germany"`, "Germany"},
		{`null`, ""},
		{`{"ID": 4, "name": "EMEA"}`, "EMEA"},
		{`{"ID": 4}`, ""},
		{`1042`, "1042"},
		{`{"name": null}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var got Text
			require.NoError(t, json.Unmarshal([]byte(tt.in), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func decodeRecord(t *testing.T, s string) Record {
	t.Helper()
	var r Record
	require.NoError(t, json.Unmarshal([]byte(s), &r))
	return r
}

func TestNormalize(t *testing.T) {
	r := decodeRecord(t, `{
		"ID": "2f1c-guid",
		"customerId": 445566,
		"customerName": "  Acme\tGmbH ",
		"emLAType": {"name": "Public Cloud ERP"},
		"region": {"name": "EMEA"},
		"country": "Germany",
		"startDate": "2024-03-15",
		"onboardingAdvisor_userId": "I100",
		"btpOnboardingAdvisor_userId": "I200"
	}`)

	n := normalize(r)
	assert.True(t, n.valid())
	assert.Equal(t, "445566", n.rec.CustomerNumber)
	assert.Equal(t, "Acme GmbH", n.rec.CustomerName)
	assert.Equal(t, model.EMLATypePublicCloudERP, n.rec.EMLAType)
	assert.Equal(t, "EMEA", n.rec.Region)
	assert.Equal(t, "Germany", n.rec.Country)
	assert.Equal(t, "2024-03-15", n.rec.StartDate)
	assert.Equal(t, "2f1c-guid", n.rec.ExternalID)
	assert.Equal(t, "I100", n.erpUserID)
	assert.Equal(t, "I200", n.btpUserID)
}

func TestNormalize_Fallbacks(t *testing.T) {
	n := normalize(decodeRecord(t, `{"ID": "X1", "customerName": "Acme", "emlaType": "Integration Suite"}`))
	assert.Equal(t, "X1", n.rec.CustomerNumber)
	assert.Equal(t, model.EMLATypeIntegrationSuite, n.rec.EMLAType)

	n = normalize(decodeRecord(t, `{"customerNumber": "C-1", "customerId": "ignored", "customerName": "Acme"}`))
	assert.Equal(t, "C-1", n.rec.CustomerNumber)
	assert.False(t, n.valid())
}

func TestNormalize_TruncatesToBudget(t *testing.T) {
	long := strings.Repeat("x", 60)
	n := normalize(decodeRecord(t, `{"customerId": "1", "customerName": "A", "emlaType": "IS", "region": "`+long+`"}`))
	assert.Len(t, []rune(n.rec.Region), model.FieldRegion.MaxLen())
	assert.True(t, strings.HasSuffix(n.rec.Region, "..."))
}
