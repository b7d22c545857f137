package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmcandrew/avsync/internal/policy"
)

// InitSchema creates the sync ledger, every table declared in the
// registry, and the user tag/label tables. Idempotent.
//
// Data tables carry no PRIMARY KEY constraint: row identity is enforced
// by the merge engine, and the vendor's extracts occasionally violate
// their own keys mid-publication. The ledger and user tables, which we
// own outright, do declare their keys.
func (db *DB) InitSchema(ctx context.Context, reg *policy.Registry) error {
	if _, err := db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sync_ledger (
			archive_name TEXT PRIMARY KEY,
			applied_at   TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			row_count    INTEGER NOT NULL DEFAULT 0
		)`); err != nil {
		return fmt.Errorf("failed to create sync_ledger: %w", err)
	}

	for _, t := range reg.Tables() {
		if _, err := db.conn.ExecContext(ctx, createTableDDL(t)); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.Name, err)
		}
	}

	if err := db.initUserTables(ctx); err != nil {
		return err
	}
	return nil
}

// createTableDDL builds CREATE TABLE IF NOT EXISTS from a policy entry.
func createTableDDL(t policy.Table) string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = fmt.Sprintf("%q %s", c.Name, c.Kind.SQLType())
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (%s)", t.Name, strings.Join(cols, ", "))
}

// initUserTables creates the tag and label tables. These are disjoint
// from sync: archives never touch them and they survive re-seeds of the
// data tables.
func (db *DB) initUserTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS user_tags (
			ev_id      TEXT NOT NULL,
			tag        TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (ev_id, tag)
		)`,
		`CREATE TABLE IF NOT EXISTS user_labels (
			ev_id      TEXT NOT NULL,
			category   TEXT NOT NULL,
			value      TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (ev_id, category, value)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_user_tags_tag ON user_tags(tag)`,
		`CREATE INDEX IF NOT EXISTS idx_user_labels_category ON user_labels(category)`,
		`CREATE INDEX IF NOT EXISTS idx_user_labels_category_value ON user_labels(category, value)`,
	}
	for _, stmt := range stmts {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create user tables: %w", err)
		}
	}
	return nil
}

// CreateIndices builds the query indices on the synced tables: the
// scope column on every entity table, plus ev_date on the primary
// table. Run after seed, once the tables have their bulk rows.
func (db *DB) CreateIndices(ctx context.Context, reg *policy.Registry) error {
	for _, t := range reg.Tables() {
		if t.Lookup || !t.HasColumn(reg.ScopeColumn) {
			continue
		}
		name := fmt.Sprintf("idx_%s_%s", t.Name, reg.ScopeColumn)
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %q ON %q(%q)", name, t.Name, reg.ScopeColumn)
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index %s: %w", name, err)
		}
	}

	primary := reg.Primary()
	if primary.HasColumn("ev_date") {
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_ev_date ON %q(ev_date)", primary.Name, primary.Name)
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create date index: %w", err)
		}
	}
	return nil
}

// CreateViews (re)builds the reporting views joining events with
// aircraft, narratives, and the user tag/label tables.
func (db *DB) CreateViews(ctx context.Context) error {
	stmts := []string{
		`DROP VIEW IF EXISTS v_full_report`,
		`CREATE VIEW v_full_report AS
		SELECT
			e.ev_id,
			e.ev_date,
			e.ev_city || ', ' || e.ev_state AS location,
			a.regis_no,
			a.acft_make,
			a.acft_model,
			e.inj_tot_t AS injury_total,
			n.narr_cause
		FROM events e
		LEFT JOIN aircraft   a ON e.ev_id = a.ev_id
		LEFT JOIN narratives n ON e.ev_id = n.ev_id`,
		`DROP VIEW IF EXISTS v_labeled_report`,
		`CREATE VIEW v_labeled_report AS
		SELECT
			e.ev_id,
			e.ev_date,
			e.ev_city || ', ' || e.ev_state AS location,
			a.regis_no,
			a.acft_make,
			a.acft_model,
			e.inj_tot_t AS injury_total,
			n.narr_cause,
			GROUP_CONCAT(DISTINCT ut.tag) AS tags,
			GROUP_CONCAT(DISTINCT ul.category || '=' || ul.value) AS labels
		FROM events e
		LEFT JOIN aircraft    a  ON e.ev_id = a.ev_id
		LEFT JOIN narratives  n  ON e.ev_id = n.ev_id
		LEFT JOIN user_tags   ut ON e.ev_id = ut.ev_id
		LEFT JOIN user_labels ul ON e.ev_id = ul.ev_id
		GROUP BY e.ev_id, e.ev_date, location,
			a.regis_no, a.acft_make, a.acft_model,
			e.inj_tot_t, n.narr_cause`,
	}
	for _, stmt := range stmts {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create views: %w", err)
		}
	}
	return nil
}

// TableExists reports whether a table is present in the database.
func (db *DB) TableExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query sqlite_master: %w", err)
	}
	return n > 0, nil
}

// CountRows returns the row count of a table, using the given tx when
// non-nil so in-transaction state is visible.
func (db *DB) CountRows(ctx context.Context, tx *sql.Tx, table string) (int, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %q", table)
	var n int
	var err error
	if tx != nil {
		err = tx.QueryRowContext(ctx, query).Scan(&n)
	} else {
		err = db.conn.QueryRowContext(ctx, query).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", table, err)
	}
	return n, nil
}
