package extract

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jmcandrew/avsync/internal/merge"
	"github.com/jmcandrew/avsync/internal/policy"
)

// mdb-export date formats, most specific first. Canonical output is
// ISO-8601 so SQLite date() comparisons work on the stored text.
var dateLayouts = []string{
	"01/02/06 15:04:05",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"01/02/06",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTable reads mdb-export CSV and projects it onto the policy's
// declared column set: undeclared CSV columns are dropped, declared
// columns missing from the CSV become nulls, and every value is coerced
// to the column's kind.
func parseTable(r io.Reader, table policy.Table) (*merge.Batch, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	// Map each declared column to its CSV position, or -1.
	positions := make([]int, len(table.Columns))
	for i, col := range table.Columns {
		positions[i] = -1
		for j, h := range header {
			if NormalizeName(h) == col.Name {
				positions[i] = j
				break
			}
		}
	}

	batch := &merge.Batch{
		Table:   table.Name,
		Columns: table.ColumnNames(),
	}

	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV line %d: %w", line, err)
		}

		row := make([]any, len(table.Columns))
		for i, col := range table.Columns {
			pos := positions[i]
			if pos < 0 || pos >= len(record) {
				continue // stays nil
			}
			row[i] = coerce(record[pos], col)
		}
		batch.Rows = append(batch.Rows, row)
	}

	return batch, nil
}

// coerce converts one CSV field to the column's typed value. Values
// that cannot be represented in the declared kind become null rather
// than failing the archive; the vendor's extracts are not clean.
func coerce(field string, col policy.Column) any {
	field = strings.TrimSpace(field)
	if field == "" {
		return nil
	}

	if col.Kind == policy.Integer {
		if n, err := strconv.ParseInt(field, 10, 64); err == nil {
			return n
		}
		// mdb-export writes integers with trailing .0 on some columns.
		if f, err := strconv.ParseFloat(field, 64); err == nil && f == float64(int64(f)) {
			return int64(f)
		}
		return nil
	}

	if isDateColumn(col.Name) {
		if iso, ok := CanonicalDate(field); ok {
			return iso
		}
	}
	return field
}

// isDateColumn reports whether a column holds vendor dates needing
// canonicalization.
func isDateColumn(name string) bool {
	return strings.Contains(name, "date")
}

// CanonicalDate parses a vendor date string and returns it as
// YYYY-MM-DD. Returns false when the value matches no known layout.
func CanonicalDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}
