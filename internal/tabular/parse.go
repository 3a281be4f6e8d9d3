// Package tabular reads delimited and spreadsheet uploads into header-keyed rows.
package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrEmptyInput is returned when the input has no non-empty lines.
var ErrEmptyInput = eris.New("tabular: input is empty")

// delimiters are the auto-detection candidates, comma first.
var delimiters = []rune{',', ';', '|', '\t'}

// HeaderFunc maps a trimmed header cell to the key used in rows.
type HeaderFunc func(string) string

// Options configures Parse.
type Options struct {
	Delimiter rune       // 0 = detect from the header line
	Header    HeaderFunc // nil keeps the trimmed header text
}

// Cell is one header/value pair.
type Cell struct {
	Header string `json:"header"`
	Value  string `json:"value"`
}

// Row is one data line. Keys are unique and keep header order.
type Row struct {
	// Number is the 1-based line position counting the header row, so the
	// first data row is 2.
	Number int
	// Tokens holds the trimmed values by column position, including
	// cells beyond the last header.
	Tokens []string

	cells []Cell
	index map[string]int
}

// NewRow builds a row from ordered cells. A repeated header keeps its first value.
func NewRow(number int, cells []Cell) *Row {
	r := &Row{Number: number, index: make(map[string]int, len(cells))}
	for _, c := range cells {
		if _, dup := r.index[c.Header]; dup {
			continue
		}
		r.index[c.Header] = len(r.cells)
		r.cells = append(r.cells, c)
		r.Tokens = append(r.Tokens, c.Value)
	}
	return r
}

// Get returns the value under header h, or "".
func (r *Row) Get(h string) string {
	v, _ := r.Lookup(h)
	return v
}

// Lookup returns the value under header h and whether the column exists.
func (r *Row) Lookup(h string) (string, bool) {
	i, ok := r.index[h]
	if !ok {
		return "", false
	}
	return r.cells[i].Value, true
}

// Cells returns the row's cells in header order.
func (r *Row) Cells() []Cell {
	return r.cells
}

// Table is a parsed upload.
type Table struct {
	Delimiter  rune
	RawHeaders []string // trimmed header cells as written
	Headers    []string // row keys, after HeaderFunc and de-duplication
	Rows       []*Row
}

// Parse splits delimited text into rows keyed by header. The first non-empty
// line is the header. Quoted fields may contain delimiters, doubled quotes and
// newlines. Lines whose cells are all blank are skipped.
func Parse(text string, opts Options) (*Table, error) {
	text = normalizeNewlines(strings.TrimPrefix(text, "\ufeff"))

	headerLine, offset, ok := firstNonEmptyLine(text)
	if !ok {
		return nil, ErrEmptyInput
	}

	delim := opts.Delimiter
	if delim == 0 {
		delim = DetectDelimiter(headerLine)
	}

	r := csv.NewReader(strings.NewReader(text[offset:]))
	r.Comma = delim
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrap(err, "tabular: read header")
	}

	t := &Table{Delimiter: delim}
	seen := make(map[string]int, len(header))
	for i, h := range header {
		raw := strings.TrimSpace(h)
		key := raw
		if opts.Header != nil {
			key = opts.Header(raw)
		}
		if key == "" {
			key = fmt.Sprintf("Column %d", i+1)
		}
		if n := seen[key]; n > 0 {
			seen[key] = n + 1
			key = fmt.Sprintf("%s_%d", key, n)
		} else {
			seen[key] = 1
		}
		t.RawHeaders = append(t.RawHeaders, raw)
		t.Headers = append(t.Headers, key)
	}

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "tabular: read row")
		}
		if blank(rec) {
			continue
		}
		t.Rows = append(t.Rows, t.row(len(t.Rows)+2, rec))
	}

	return t, nil
}

func (t *Table) row(number int, rec []string) *Row {
	r := &Row{
		Number: number,
		index:  make(map[string]int, len(t.Headers)),
		cells:  make([]Cell, len(t.Headers)),
		Tokens: make([]string, 0, len(rec)),
	}
	for _, v := range rec {
		r.Tokens = append(r.Tokens, strings.TrimSpace(v))
	}
	for i, h := range t.Headers {
		var v string
		if i < len(r.Tokens) {
			v = r.Tokens[i]
		}
		r.cells[i] = Cell{Header: h, Value: v}
		r.index[h] = i
	}
	return r
}

// DetectDelimiter counts each candidate delimiter outside quoted spans of the
// header line. The highest count wins; ties and no matches fall back to comma.
func DetectDelimiter(headerLine string) rune {
	counts := make(map[rune]int, len(delimiters))
	inQuotes := false
	for _, ch := range headerLine {
		if ch == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes {
			counts[ch]++
		}
	}

	best, bestCount, tie := ',', 0, false
	for _, d := range delimiters {
		switch n := counts[d]; {
		case n > bestCount:
			best, bestCount, tie = d, n, false
		case n == bestCount && n > 0:
			tie = true
		}
	}
	if bestCount == 0 || tie {
		return ','
	}
	return best
}

func firstNonEmptyLine(text string) (string, int, bool) {
	offset := 0
	for offset < len(text) {
		end := strings.IndexByte(text[offset:], '\n')
		var line string
		if end < 0 {
			line = text[offset:]
		} else {
			line = text[offset : offset+end]
		}
		if strings.TrimSpace(line) != "" {
			return line, offset, true
		}
		if end < 0 {
			break
		}
		offset += end + 1
	}
	return "", 0, false
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
