package sanitize

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/emla-tracker/internal/model"
)

func TestText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		limit int
		want  string
	}{
		{"empty", "   ", 10, ""},
		{"trims", "  Acme  ", 10, "Acme"},
		{"control chars", "Ac\x00me\x1f\u0085", 10, "Acme"},
		{"crlf and runs", "a\r\nb\r\rc\n\n\n\nd", 50, "a\nb\n\nc\n\nd"},
		{"tabs and spaces", "a\t\tb    c", 50, "a b c"},
		{"truncates with ellipsis", "abcdefghijkl", 8, "abcde..."},
		{"exact fit", "abcdefgh", 8, "abcdefgh"},
		{"multibyte runes", "ÀÉÎÕÜÇÑ", 5, "ÀÉ..."},
		{"default budget", strings.Repeat("x", 5001), 0, strings.Repeat("x", 4997) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Text(tt.input, tt.limit))
		})
	}
}

func TestField_UsesSchemaBudget(t *testing.T) {
	got := Field(model.FieldCustomerNumber, strings.Repeat("9", 25))
	assert.Len(t, got, 20)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestClean_Valid(t *testing.T) {
	c, err := Clean(model.Customer{
		CustomerName:    "  Acme\tCorp ",
		CustomerNumber:  "123",
		EMLAType:        model.EMLATypeIntegrationSuite,
		StartDate:       "15/03/2024",
		BTPAdvisorName:  "Jane Doe",
		BTPAdvisorEmail: "jane@example.com",
		ERPAdvisorName:  "yes",
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", c.CustomerName)
	assert.Equal(t, "2024-03-15", c.StartDate)
	assert.Equal(t, "Jane Doe", c.BTPAdvisorName)
	assert.Equal(t, "jane@example.com", c.BTPAdvisorEmail)
	assert.Empty(t, c.ERPAdvisorName)
}

func TestClean_MissingRequired(t *testing.T) {
	tests := []struct {
		name string
		c    model.Customer
	}{
		{"no number", model.Customer{CustomerName: "Acme", EMLAType: model.EMLATypePublicCloudERP}},
		{"no name", model.Customer{CustomerNumber: "1", EMLAType: model.EMLATypePublicCloudERP}},
		{"no type", model.Customer{CustomerName: "Acme", CustomerNumber: "1"}},
		{"whitespace only", model.Customer{CustomerName: " \t", CustomerNumber: "1", EMLAType: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Clean(tt.c)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMissingRequired))
			assert.Contains(t, err.Error(), "required fields")
		})
	}
}

func TestClean_AdvisorNameInEmailColumn(t *testing.T) {
	c, err := Clean(model.Customer{
		CustomerName:    "Acme",
		CustomerNumber:  "1",
		EMLAType:        model.EMLATypePublicCloudERP,
		BTPAdvisorEmail: "Doe, Jane",
	})
	require.NoError(t, err)
	assert.Equal(t, "Doe, Jane", c.BTPAdvisorName)
	assert.Empty(t, c.BTPAdvisorEmail)
}

func TestClean_DropsPlaceholderAdvisors(t *testing.T) {
	c, err := Clean(model.Customer{
		CustomerName:    "Acme",
		CustomerNumber:  "1",
		EMLAType:        model.EMLATypePublicCloudERP,
		BTPAdvisorName:  "Yes",
		BTPAdvisorEmail: "n/a",
		ERPAdvisorName:  "12345",
	})
	require.NoError(t, err)
	assert.Empty(t, c.BTPAdvisorName)
	assert.Empty(t, c.BTPAdvisorEmail)
	assert.Empty(t, c.ERPAdvisorName)
}

func TestClean_UnparseableDateIsNull(t *testing.T) {
	c, err := Clean(model.Customer{
		CustomerName:   "Acme",
		CustomerNumber: "1",
		EMLAType:       model.EMLATypePublicCloudERP,
		StartDate:      "next quarter",
	})
	require.NoError(t, err)
	assert.Empty(t, c.StartDate)
}
