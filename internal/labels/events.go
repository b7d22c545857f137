package labels

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// EventSummary is one row of a browse listing.
type EventSummary struct {
	EvID        string
	Date        string
	City        string
	State       string
	Make        string
	Model       string
	InjuryTotal int
}

// EventDetail is the full view of one event for the show command.
type EventDetail struct {
	EventSummary
	RegisNo       string
	ProbableCause string
	Labels        map[string][]string
	Tags          []string
}

// ShowEvent returns the detail view for one event, or nil when the
// event is unknown.
func (s *Store) ShowEvent(ctx context.Context, evID string) (*EventDetail, error) {
	var d EventDetail
	err := s.db.RawDB().QueryRowContext(ctx, `
		SELECT e.ev_id,
		       COALESCE(e.ev_date, ''),
		       COALESCE(e.ev_city, ''),
		       COALESCE(e.ev_state, ''),
		       COALESCE(a.acft_make, ''),
		       COALESCE(a.acft_model, ''),
		       COALESCE(a.regis_no, ''),
		       COALESCE(e.inj_tot_t, 0),
		       COALESCE(n.narr_cause, '')
		FROM events e
		LEFT JOIN aircraft   a ON e.ev_id = a.ev_id
		LEFT JOIN narratives n ON e.ev_id = n.ev_id
		WHERE e.ev_id = ?
		LIMIT 1`, evID).Scan(
		&d.EvID, &d.Date, &d.City, &d.State,
		&d.Make, &d.Model, &d.RegisNo, &d.InjuryTotal, &d.ProbableCause)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load event %s: %w", evID, err)
	}

	if d.Labels, err = s.Labels(ctx, evID); err != nil {
		return nil, err
	}
	if d.Tags, err = s.Tags(ctx, evID); err != nil {
		return nil, err
	}
	return &d, nil
}

// BrowseOptions filters a browse listing. Dates are ISO YYYY-MM-DD;
// Category/Value restrict to labeled events, Unlabeled to events with
// no labels at all.
type BrowseOptions struct {
	DateFrom  string
	DateTo    string
	Category  string
	Value     string
	Unlabeled bool
	Limit     int
	Offset    int
}

// Browse lists events newest first with optional filters.
func (s *Store) Browse(ctx context.Context, opts BrowseOptions) ([]EventSummary, error) {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}

	var clauses []string
	var args []any

	if opts.DateFrom != "" {
		clauses = append(clauses, "e.ev_date >= ?")
		args = append(args, opts.DateFrom)
	}
	if opts.DateTo != "" {
		clauses = append(clauses, "e.ev_date <= ?")
		args = append(args, opts.DateTo)
	}
	if opts.Category != "" {
		if opts.Value != "" {
			clauses = append(clauses,
				`EXISTS (SELECT 1 FROM user_labels ul WHERE ul.ev_id = e.ev_id AND ul.category = ? AND ul.value = ?)`)
			args = append(args, normalize(opts.Category), normalize(opts.Value))
		} else {
			clauses = append(clauses,
				`EXISTS (SELECT 1 FROM user_labels ul WHERE ul.ev_id = e.ev_id AND ul.category = ?)`)
			args = append(args, normalize(opts.Category))
		}
	}
	if opts.Unlabeled {
		clauses = append(clauses,
			`NOT EXISTS (SELECT 1 FROM user_labels ul WHERE ul.ev_id = e.ev_id)`)
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT e.ev_id,
		       COALESCE(e.ev_date, ''),
		       COALESCE(e.ev_city, ''),
		       COALESCE(e.ev_state, ''),
		       COALESCE(a.acft_make, ''),
		       COALESCE(a.acft_model, ''),
		       COALESCE(e.inj_tot_t, 0)
		FROM events e
		LEFT JOIN aircraft a ON e.ev_id = a.ev_id
		%s
		ORDER BY e.ev_date DESC, e.ev_id DESC
		LIMIT ? OFFSET ?`, where)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.RawDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to browse events: %w", err)
	}
	defer rows.Close()

	var out []EventSummary
	for rows.Next() {
		var e EventSummary
		if err := rows.Scan(&e.EvID, &e.Date, &e.City, &e.State, &e.Make, &e.Model, &e.InjuryTotal); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Filter is one (category, optional value) condition for CountEvents.
type Filter struct {
	Category string
	Value    string
}

// CountEvents counts events matching ALL of the given filters, e.g.
// "accidents in IMC with an engine failure".
func (s *Store) CountEvents(ctx context.Context, filters []Filter) (int, error) {
	var clauses []string
	var args []any

	for i, f := range filters {
		alias := fmt.Sprintf("ul%d", i)
		if f.Value != "" {
			clauses = append(clauses, fmt.Sprintf(
				`EXISTS (SELECT 1 FROM user_labels %s WHERE %s.ev_id = e.ev_id AND %s.category = ? AND %s.value = ?)`,
				alias, alias, alias, alias))
			args = append(args, normalize(f.Category), normalize(f.Value))
		} else {
			clauses = append(clauses, fmt.Sprintf(
				`EXISTS (SELECT 1 FROM user_labels %s WHERE %s.ev_id = e.ev_id AND %s.category = ?)`,
				alias, alias, alias))
			args = append(args, normalize(f.Category))
		}
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var n int
	err := s.db.RawDB().QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(DISTINCT e.ev_id) FROM events e%s`, where), args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}
