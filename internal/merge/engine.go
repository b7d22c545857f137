package merge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jmcandrew/avsync/internal/policy"
)

// ErrMergeConflict is returned when a merge writes a different number
// of rows than the batch supplied. Sync has no concurrent writers, so
// a mismatch means the store changed underneath us; the transaction is
// rolled back and the run aborts.
var ErrMergeConflict = errors.New("row count mismatch after merge")

// SQLite's default variable limit is 999; stay well under it when
// expanding scope key sets into IN clauses.
const deleteChunkSize = 500

// Engine executes the merge strategies against an open transaction.
// It is the only component that writes the synced tables.
type Engine struct {
	logger *log.Logger
}

// NewEngine creates a merge engine. If logger is nil, a default logger
// writing to stderr is used.
func NewEngine(logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[merge] ", log.LstdFlags)
	}
	return &Engine{logger: logger}
}

// FullReplace discards every existing row and inserts the batch.
// An empty batch is a no-op, so a transient empty extraction can never
// wipe a populated table.
func (e *Engine) FullReplace(ctx context.Context, tx *sql.Tx, table policy.Table, b *Batch) (int, error) {
	if b.Empty() {
		return 0, nil
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %q", table.Name)); err != nil {
		return 0, fmt.Errorf("failed to clear %s: %w", table.Name, err)
	}
	return e.insertBatch(ctx, tx, table, b)
}

// KeyedUpsert deletes existing rows whose key tuple appears in the
// batch, then inserts the batch. Rows for keys absent from the batch
// are left untouched. Empty batch is a no-op.
func (e *Engine) KeyedUpsert(ctx context.Context, tx *sql.Tx, table policy.Table, b *Batch) (int, error) {
	if b.Empty() {
		return 0, nil
	}
	if len(table.Keys) == 0 {
		return 0, fmt.Errorf("keyed upsert on %s: no key columns declared", table.Name)
	}

	keyIdx := make([]int, len(table.Keys))
	for i, k := range table.Keys {
		idx := b.ColumnIndex(k)
		if idx < 0 {
			return 0, fmt.Errorf("keyed upsert on %s: batch missing key column %q", table.Name, k)
		}
		keyIdx[i] = idx
	}

	conds := make([]string, len(table.Keys))
	for i, k := range table.Keys {
		conds[i] = fmt.Sprintf("%q = ?", k)
	}
	del, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"DELETE FROM %q WHERE %s", table.Name, strings.Join(conds, " AND ")))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare delete for %s: %w", table.Name, err)
	}
	defer del.Close()

	// One delete per distinct key tuple from the batch.
	seen := make(map[string]struct{}, b.Len())
	for _, row := range b.Rows {
		args := make([]any, len(keyIdx))
		var fp strings.Builder
		for i, idx := range keyIdx {
			args[i] = row[idx]
			fmt.Fprintf(&fp, "%v\x1f", row[idx])
		}
		if _, ok := seen[fp.String()]; ok {
			continue
		}
		seen[fp.String()] = struct{}{}
		if _, err := del.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("failed to delete stale rows from %s: %w", table.Name, err)
		}
	}

	return e.insertBatch(ctx, tx, table, b)
}

// ScopedReplace deletes every existing row whose scope column value is
// in scopeKeys, then appends the batch. Deletion is bounded by the
// parent key set from the same archive, so a parent whose child row
// count shrank between revisions loses its stale children.
//
// With an empty scope key set (no primary batch in this archive), it
// falls back to a keyed upsert on the child's own declared keys and
// logs the degraded mode.
func (e *Engine) ScopedReplace(ctx context.Context, tx *sql.Tx, table policy.Table, b *Batch, scopeColumn string, scopeKeys []any) (int, error) {
	if b.Empty() {
		return 0, nil
	}
	if len(scopeKeys) == 0 {
		e.logger.Printf("DEGRADED: no scope keys for %s, falling back to keyed upsert on (%s)",
			table.Name, strings.Join(table.Keys, ", "))
		return e.KeyedUpsert(ctx, tx, table, b)
	}

	for start := 0; start < len(scopeKeys); start += deleteChunkSize {
		end := min(start+deleteChunkSize, len(scopeKeys))
		chunk := scopeKeys[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		stmt := fmt.Sprintf("DELETE FROM %q WHERE %q IN (%s)", table.Name, scopeColumn, placeholders)
		if _, err := tx.ExecContext(ctx, stmt, chunk...); err != nil {
			return 0, fmt.Errorf("failed to delete scoped rows from %s: %w", table.Name, err)
		}
	}

	return e.insertBatch(ctx, tx, table, b)
}

// insertBatch inserts every batch row and verifies the affected count.
func (e *Engine) insertBatch(ctx context.Context, tx *sql.Tx, table policy.Table, b *Batch) (int, error) {
	cols := make([]string, len(b.Columns))
	for i, c := range b.Columns {
		if !table.HasColumn(c) {
			return 0, fmt.Errorf("insert into %s: column %q not declared in policy", table.Name, c)
		}
		cols[i] = fmt.Sprintf("%q", c)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(b.Columns)), ",")

	ins, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %q (%s) VALUES (%s)", table.Name, strings.Join(cols, ", "), placeholders))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert for %s: %w", table.Name, err)
	}
	defer ins.Close()

	inserted := 0
	for _, row := range b.Rows {
		res, err := ins.ExecContext(ctx, row...)
		if err != nil {
			return 0, fmt.Errorf("failed to insert into %s: %w", table.Name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read rows affected for %s: %w", table.Name, err)
		}
		inserted += int(n)
	}

	if inserted != b.Len() {
		return 0, fmt.Errorf("%w: %s inserted %d of %d rows", ErrMergeConflict, table.Name, inserted, b.Len())
	}
	return inserted, nil
}
