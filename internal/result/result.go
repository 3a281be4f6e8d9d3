// Package result accumulates upload outcomes across batches.
package result

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sells-group/emla-tracker/internal/tabular"
)

// Failed-row CSV leading columns.
const (
	ColumnRow    = "__row"
	ColumnReason = "__reason"
)

// RowError is one per-row diagnostic. Row is the 1-based file line, counting
// the header.
type RowError struct {
	Row    int               `json:"row"`
	Reason string            `json:"reason"`
	Raw    map[string]string `json:"raw,omitempty"`
}

// FailedRow is a row kept for the failed-rows export, cells in upload order.
type FailedRow struct {
	Row    int            `json:"row"`
	Reason string         `json:"reason"`
	Cells  []tabular.Cell `json:"cells"`
}

// UploadResult is the outcome of one or more pipeline invocations. Counts are
// additive so callers can Merge batch results.
type UploadResult struct {
	TotalRows             int    `json:"totalRows"`
	Inserted              int    `json:"inserted"`
	Updated               int    `json:"updated"`
	Unchanged             int    `json:"unchanged"`
	UpdateErrors          int    `json:"updateErrors"`
	ValidationErrors      int    `json:"validationErrors"`
	DBErrors              int    `json:"dbErrors"`
	SkippedNoAdvisor      int    `json:"skippedNoAdvisor"`
	AdvisorNotFoundCount  int    `json:"advisorNotFoundCount"`
	RecoveredAdvisorCount int    `json:"recoveredAdvisorCount"`
	Dialect               string `json:"dialect,omitempty"`

	Errors     []RowError  `json:"errors"`
	Warnings   []string    `json:"warnings,omitempty"`
	FailedRows []FailedRow `json:"failedRows,omitempty"`

	// Set by Finalize.
	FailedRowsCSV string `json:"failedRowsCsv"`
	Message       string `json:"message"`
}

// AddError records a diagnostic and keeps the row for the failed-rows export.
func (r *UploadResult) AddError(row int, reason string, cells []tabular.Cell) {
	r.Errors = append(r.Errors, RowError{Row: row, Reason: reason, Raw: rawMap(cells)})
	r.FailedRows = append(r.FailedRows, FailedRow{Row: row, Reason: reason, Cells: cells})
}

// AddWarning records a batch-level, non-fatal diagnostic.
func (r *UploadResult) AddWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Merge adds other into r. Errors keep call order. Call Finalize afterwards
// to refresh the CSV and message.
func (r *UploadResult) Merge(other *UploadResult) {
	if other == nil {
		return
	}
	r.TotalRows += other.TotalRows
	r.Inserted += other.Inserted
	r.Updated += other.Updated
	r.Unchanged += other.Unchanged
	r.UpdateErrors += other.UpdateErrors
	r.ValidationErrors += other.ValidationErrors
	r.DBErrors += other.DBErrors
	r.SkippedNoAdvisor += other.SkippedNoAdvisor
	r.AdvisorNotFoundCount += other.AdvisorNotFoundCount
	r.RecoveredAdvisorCount += other.RecoveredAdvisorCount
	if r.Dialect == "" {
		r.Dialect = other.Dialect
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.FailedRows = append(r.FailedRows, other.FailedRows...)
}

// Finalize renders the failed-rows CSV and the summary message.
func (r *UploadResult) Finalize() *UploadResult {
	if r.Errors == nil {
		r.Errors = []RowError{}
	}
	r.FailedRowsCSV = FailedRowsCSV(r.FailedRows)
	r.Message = fmt.Sprintf(
		"Processed %d data rows: inserted %d, updated %d, updateErrors %d, validationErrors %d, dbErrors %d, skippedNoAdvisor %d, advisorUnresolved %d",
		r.TotalRows, r.Inserted, r.Updated, r.UpdateErrors, r.ValidationErrors, r.DBErrors, r.SkippedNoAdvisor, r.AdvisorNotFoundCount,
	)
	return r
}

// FailedRowsCSV serializes failed rows under the union of their headers, in
// first-seen order after the row and reason columns. Every value is quoted.
// An upload column named like one of the leading columns gets a _N suffix.
func FailedRowsCSV(rows []FailedRow) string {
	if len(rows) == 0 {
		return ""
	}

	rename := reservedRenames(rows)
	header := func(h string) string {
		if r, ok := rename[h]; ok {
			return r
		}
		return h
	}

	cols := []string{ColumnRow, ColumnReason}
	seen := map[string]bool{ColumnRow: true, ColumnReason: true}
	for _, fr := range rows {
		for _, c := range fr.Cells {
			h := header(c.Header)
			if !seen[h] {
				seen[h] = true
				cols = append(cols, h)
			}
		}
	}

	var b strings.Builder
	for i, c := range cols {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(quoteHeader(c))
	}
	for _, fr := range rows {
		b.WriteByte('\n')
		vals := map[string]string{
			ColumnRow:    fmt.Sprint(fr.Row),
			ColumnReason: fr.Reason,
		}
		for _, c := range fr.Cells {
			h := header(c.Header)
			if _, ok := vals[h]; !ok {
				vals[h] = c.Value
			}
		}
		for i, c := range cols {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(quote(vals[c]))
		}
	}
	return b.String()
}

// reservedRenames maps upload headers that collide with ColumnRow or
// ColumnReason to the first free name with a _N suffix.
func reservedRenames(rows []FailedRow) map[string]string {
	taken := map[string]bool{ColumnRow: true, ColumnReason: true}
	var clash []string
	for _, fr := range rows {
		for _, c := range fr.Cells {
			if (c.Header == ColumnRow || c.Header == ColumnReason) && !slices.Contains(clash, c.Header) {
				clash = append(clash, c.Header)
			}
			taken[c.Header] = true
		}
	}

	rename := make(map[string]string, len(clash))
	for _, h := range clash {
		for n := 1; ; n++ {
			cand := fmt.Sprintf("%s_%d", h, n)
			if !taken[cand] {
				taken[cand] = true
				rename[h] = cand
				break
			}
		}
	}
	return rename
}

func quote(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

func quoteHeader(h string) string {
	if strings.ContainsAny(h, ",\"\n\r") {
		return quote(h)
	}
	return h
}

func rawMap(cells []tabular.Cell) map[string]string {
	if len(cells) == 0 {
		return nil
	}
	m := make(map[string]string, len(cells))
	for _, c := range cells {
		if _, ok := m[c.Header]; !ok {
			m[c.Header] = c.Value
		}
	}
	return m
}
