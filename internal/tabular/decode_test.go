package tabular

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		want     string
		encoding string
	}{
		{
			name:     "plain utf-8",
			input:    []byte("a,b\r\n1,2"),
			want:     "a,b\n1,2",
			encoding: EncodingUTF8,
		},
		{
			name:     "utf-8 bom",
			input:    append([]byte{0xEF, 0xBB, 0xBF}, []byte("Name\nJosé")...),
			want:     "Name\nJosé",
			encoding: EncodingUTF8BOM,
		},
		{
			name:     "utf-16le bom",
			input:    []byte{0xFF, 0xFE, 'a', 0, ',', 0, 'b', 0, '\r', 0, '\n', 0},
			want:     "a,b\n",
			encoding: EncodingUTF16LE,
		},
		{
			name:     "utf-16be bom",
			input:    []byte{0xFE, 0xFF, 0, 'h', 0, 'i'},
			want:     "hi",
			encoding: EncodingUTF16BE,
		},
		{
			name:     "windows-1252",
			input:    []byte{'S', 0xE3, 'o', ' ', 'P', 'a', 'u', 'l', 'o', '\r'},
			want:     "São Paulo\n",
			encoding: EncodingWindows1252,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, enc, err := Decode(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.encoding, enc)
		})
	}
}
