package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrDuplicateArchive is returned when an archive name is recorded
// twice. The orchestrator diffs against the ledger before applying, so
// hitting this indicates a double-commit logic error and is fatal.
var ErrDuplicateArchive = errors.New("archive already recorded in sync ledger")

// RecordApplication appends one ledger entry inside tx. It must be the
// final write of an archive application so that a rollback also
// unwinds the ledger entry. The ledger is append-only: there is no
// update or delete counterpart.
func RecordApplication(ctx context.Context, tx *sql.Tx, archiveName string, rowCount int) error {
	var exists int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sync_ledger WHERE archive_name = ?`, archiveName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check sync ledger: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateArchive, archiveName)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sync_ledger (archive_name, row_count) VALUES (?, ?)`,
		archiveName, rowCount)
	if err != nil {
		return fmt.Errorf("failed to record archive %s: %w", archiveName, err)
	}
	return nil
}

// AppliedArchives returns the set of archive names already applied.
func (db *DB) AppliedArchives(ctx context.Context) (map[string]struct{}, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT archive_name FROM sync_ledger`)
	if err != nil {
		return nil, fmt.Errorf("failed to read sync ledger: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		applied[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sync ledger: %w", err)
	}
	return applied, nil
}

// LedgerEntry is one applied-archive record.
type LedgerEntry struct {
	ArchiveName string
	AppliedAt   string
	RowCount    int
}

// LastApplied returns the most recently applied archive, or nil if the
// ledger is empty.
func (db *DB) LastApplied(ctx context.Context) (*LedgerEntry, error) {
	var e LedgerEntry
	err := db.conn.QueryRowContext(ctx, `
		SELECT archive_name, applied_at, row_count
		FROM sync_ledger
		ORDER BY applied_at DESC, archive_name DESC
		LIMIT 1`).Scan(&e.ArchiveName, &e.AppliedAt, &e.RowCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last ledger entry: %w", err)
	}
	return &e, nil
}

// LedgerCount returns the number of applied archives.
func (db *DB) LedgerCount(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_ledger`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}
	return n, nil
}
