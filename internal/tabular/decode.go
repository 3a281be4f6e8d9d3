package tabular

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Source encodings reported by Decode.
const (
	EncodingUTF8        = "utf-8"
	EncodingUTF8BOM     = "utf-8-bom"
	EncodingUTF16LE     = "utf-16le"
	EncodingUTF16BE     = "utf-16be"
	EncodingWindows1252 = "windows-1252"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Decode converts uploaded bytes to UTF-8 text with LF line endings and
// reports the detected source encoding. Spreadsheet exports that are not
// valid UTF-8 are read as Windows-1252.
func Decode(data []byte) (string, string, error) {
	var (
		enc  encoding.Encoding
		name = EncodingUTF8
	)
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		data = data[len(bomUTF8):]
		name = EncodingUTF8BOM
	case bytes.HasPrefix(data, bomUTF16LE):
		enc, name = unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM), EncodingUTF16LE
	case bytes.HasPrefix(data, bomUTF16BE):
		enc, name = unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM), EncodingUTF16BE
	case !utf8.Valid(data):
		enc, name = charmap.Windows1252, EncodingWindows1252
	}

	if enc != nil {
		out, _, err := transform.Bytes(enc.NewDecoder(), data)
		if err != nil {
			return "", "", eris.Wrapf(err, "tabular: decode %s", name)
		}
		data = out
	}

	return normalizeNewlines(strings.TrimPrefix(string(data), "\ufeff")), name, nil
}

func normalizeNewlines(s string) string {
	if !strings.Contains(s, "\r") {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
