package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Summary holds the headline numbers for the stats report. Pointer
// fields are nil when the underlying table has no rows yet.
type Summary struct {
	TotalEvents        int
	TotalAircraft      int
	MostRecentEvent    *string
	EventsLast30Days   int
	EventsLast365Days  int
	FatalLast365Days   int
	ArchivesApplied    int
	LastArchive        *string
	LastArchiveApplied *string
}

// Summary gathers the stats report numbers in one pass. All queries
// tolerate an empty or freshly seeded database.
func (db *DB) Summary(ctx context.Context) (*Summary, error) {
	s := &Summary{}

	counts := []struct {
		dest  *int
		query string
	}{
		{&s.TotalEvents, `SELECT COUNT(*) FROM events`},
		{&s.TotalAircraft, `SELECT COUNT(*) FROM aircraft`},
		{&s.EventsLast30Days, `SELECT COUNT(*) FROM events WHERE ev_date >= date('now', '-30 day')`},
		{&s.EventsLast365Days, `SELECT COUNT(*) FROM events WHERE ev_date >= date('now', '-365 day')`},
		{&s.FatalLast365Days, `SELECT COUNT(*) FROM events WHERE ev_date >= date('now', '-365 day') AND COALESCE(inj_tot_f, 0) > 0`},
		{&s.ArchivesApplied, `SELECT COUNT(*) FROM sync_ledger`},
	}
	for _, c := range counts {
		if err := db.conn.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to gather stats: %w", err)
		}
	}

	var recent sql.NullString
	err := db.conn.QueryRowContext(ctx, `SELECT MAX(ev_date) FROM events`).Scan(&recent)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to find most recent event: %w", err)
	}
	if recent.Valid {
		s.MostRecentEvent = &recent.String
	}

	last, err := db.LastApplied(ctx)
	if err != nil {
		return nil, err
	}
	if last != nil {
		s.LastArchive = &last.ArchiveName
		s.LastArchiveApplied = &last.AppliedAt
	}

	return s, nil
}
