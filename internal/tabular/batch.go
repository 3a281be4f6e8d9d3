package tabular

import "strings"

// Default batch limits for one pipeline call.
const (
	DefaultMaxBatchBytes = 90000
	DefaultMaxBatchRows  = 250
)

// SplitLines splits text into logical records. Newlines inside quoted spans
// stay part of the record; blank records are dropped.
func SplitLines(text string) []string {
	text = normalizeNewlines(text)

	var (
		out      []string
		start    int
		inQuotes bool
	)
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '"':
			inQuotes = !inQuotes
		case '\n':
			if inQuotes {
				continue
			}
			if line := text[start:i]; strings.TrimSpace(line) != "" {
				out = append(out, line)
			}
			start = i + 1
		}
	}
	if line := text[start:]; strings.TrimSpace(line) != "" {
		out = append(out, line)
	}
	return out
}

// SplitBatches splits one upload into self-contained batches, each starting
// with the header record and holding at most maxRows data records within
// roughly maxBytes. A record too large for any batch travels alone.
// An upload without data records yields a single header-only batch.
func SplitBatches(text string, maxBytes, maxRows int) []string {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBatchBytes
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxBatchRows
	}

	lines := SplitLines(strings.TrimPrefix(text, "\ufeff"))
	if len(lines) == 0 {
		return nil
	}
	header, rows := lines[0], lines[1:]
	if len(rows) == 0 {
		return []string{header}
	}

	var (
		batches []string
		cur     []string
		base    = len(header) + 1
		size    = base
	)
	flush := func() {
		batches = append(batches, header+"\n"+strings.Join(cur, "\n"))
		cur, size = nil, base
	}
	for _, l := range rows {
		n := len(l) + 1
		if len(cur) > 0 && (size+n > maxBytes || len(cur) >= maxRows) {
			flush()
		}
		cur = append(cur, l)
		size += n
		if len(cur) == 1 && size > maxBytes {
			flush()
		}
	}
	if len(cur) > 0 {
		flush()
	}
	return batches
}
