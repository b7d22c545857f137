// Package merge implements the idempotent merge engine: the three
// per-table strategies (full replace, keyed upsert, scoped replace) and
// the applier that lands one archive's tables in a single transaction.
package merge

// Batch is the extracted rows for one table from one archive. Rows are
// positional over Columns; values are int64, string, or nil, as
// normalized by the extraction layer. A batch lives for the duration of
// one table's merge and is then discarded.
type Batch struct {
	Table   string
	Columns []string
	Rows    [][]any
}

// Empty reports whether the batch carries no rows. A nil batch (table
// absent from the archive) is empty.
func (b *Batch) Empty() bool {
	return b == nil || len(b.Rows) == 0
}

// Len returns the number of rows.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Rows)
}

// ColumnIndex returns the position of a column, or -1 if absent.
func (b *Batch) ColumnIndex(name string) int {
	for i, c := range b.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// ScopeKeys returns the distinct non-null values of the named column in
// first-seen order. This is the scope key set: computed once from the
// primary table's batch and reused by every scoped-replace child in the
// same archive.
func (b *Batch) ScopeKeys(column string) []any {
	if b.Empty() {
		return nil
	}
	idx := b.ColumnIndex(column)
	if idx < 0 {
		return nil
	}

	seen := make(map[any]struct{}, len(b.Rows))
	keys := make([]any, 0, len(b.Rows))
	for _, row := range b.Rows {
		v := row[idx]
		if v == nil {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		keys = append(keys, v)
	}
	return keys
}
