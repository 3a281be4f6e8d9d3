package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Customer Name", "customer name"},
		{"  CUSTOMER\t  NAME ", "customer name"},
		{"\"Account Name\"", "account name"},
		{"'Region'", "region"},
		{"\ufeffID", "id"},
		{"Café", "café"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeHeader(tt.input))
		})
	}
}

func TestExtractCRTNumber(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"https://x/y?id=445566&foo=1", "445566"},
		{"https://x/y?ID=12&z=99999", "12"},
		{"case 2024-778899", "2024"},
		{"ticket 123", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCRTNumber(tt.input))
		})
	}
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "  ", "b", "c"))
	assert.Empty(t, firstNonEmpty())
}
