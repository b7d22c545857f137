// Package labels implements the user-owned annotation layer: free-form
// tags and taxonomy-validated category:value labels on events, plus the
// browse/show/count queries built on them. These tables are disjoint
// from sync and survive incremental updates untouched.
package labels

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmcandrew/avsync/internal/store"
)

var (
	// ErrUnknownCategory is returned for a label category outside the
	// taxonomy.
	ErrUnknownCategory = errors.New("unknown label category")

	// ErrUnknownValue is returned for a value not allowed in its
	// category.
	ErrUnknownValue = errors.New("unknown label value")
)

// taxonomy fixes the allowed category:value vocabulary. Keeping it
// closed makes label-based counts comparable across users and time.
var taxonomy = map[string][]string{
	"weather": {
		"vmc", "imc", "icing", "wind_shear", "thunderstorm", "fog", "unknown",
	},
	"flight_rules": {
		"vfr", "ifr", "imc", "unknown",
	},
	"phase_of_flight": {
		"taxi", "takeoff", "climb", "cruise", "maneuvering", "approach",
		"go_around", "landing", "unknown",
	},
	"failure_system": {
		"engine", "fuel", "electrical", "flight_controls", "landing_gear",
		"instruments", "structure", "none",
	},
	"pilot_factor": {
		"loss_of_control", "cfit", "fuel_management", "decision_making",
		"spatial_disorientation", "none",
	},
	"operation_type": {
		"personal", "instructional", "business", "agricultural",
		"positioning", "commuter", "other",
	},
}

// Categories returns the taxonomy's category names, sorted.
func Categories() []string {
	cats := make([]string, 0, len(taxonomy))
	for c := range taxonomy {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

// Values returns the allowed values for a category, or an error for an
// unknown category.
func Values(category string) ([]string, error) {
	vals, ok := taxonomy[normalize(category)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (valid: %s)", ErrUnknownCategory, category, strings.Join(Categories(), ", "))
	}
	return append([]string(nil), vals...), nil
}

// Validate normalizes and validates a category:value pair against the
// taxonomy, returning the canonical forms.
func Validate(category, value string) (string, string, error) {
	cat := normalize(category)
	val := normalize(value)

	allowed, ok := taxonomy[cat]
	if !ok {
		return "", "", fmt.Errorf("%w: %q (valid: %s)", ErrUnknownCategory, category, strings.Join(Categories(), ", "))
	}
	for _, v := range allowed {
		if v == val {
			return cat, val, nil
		}
	}
	return "", "", fmt.Errorf("%w: %q for category %q (allowed: %s)", ErrUnknownValue, value, cat, strings.Join(allowed, ", "))
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Store provides label and tag operations over the mirror database.
type Store struct {
	db *store.DB
}

// NewStore wraps an opened mirror database.
func NewStore(db *store.DB) *Store {
	return &Store{db: db}
}

// AddLabel attaches a validated category:value label to an event.
// Returns false when the label was already present.
func (s *Store) AddLabel(ctx context.Context, evID, category, value string) (bool, error) {
	cat, val, err := Validate(category, value)
	if err != nil {
		return false, err
	}

	res, err := s.db.RawDB().ExecContext(ctx,
		`INSERT OR IGNORE INTO user_labels (ev_id, category, value) VALUES (?, ?, ?)`,
		evID, cat, val)
	if err != nil {
		return false, fmt.Errorf("failed to add label: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to add label: %w", err)
	}
	return n > 0, nil
}

// RemoveLabel removes a specific category:value pair, or every value in
// the category when value is empty. Returns the number of rows removed.
func (s *Store) RemoveLabel(ctx context.Context, evID, category, value string) (int, error) {
	cat := normalize(category)

	var res interface{ RowsAffected() (int64, error) }
	var err error
	if value != "" {
		res, err = s.db.RawDB().ExecContext(ctx,
			`DELETE FROM user_labels WHERE ev_id = ? AND category = ? AND value = ?`,
			evID, cat, normalize(value))
	} else {
		res, err = s.db.RawDB().ExecContext(ctx,
			`DELETE FROM user_labels WHERE ev_id = ? AND category = ?`,
			evID, cat)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to remove label: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to remove label: %w", err)
	}
	return int(n), nil
}

// Labels returns an event's labels as category -> sorted values.
func (s *Store) Labels(ctx context.Context, evID string) (map[string][]string, error) {
	rows, err := s.db.RawDB().QueryContext(ctx,
		`SELECT category, value FROM user_labels WHERE ev_id = ? ORDER BY category, value`, evID)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]string)
	for rows.Next() {
		var cat, val string
		if err := rows.Scan(&cat, &val); err != nil {
			return nil, fmt.Errorf("failed to scan label: %w", err)
		}
		result[cat] = append(result[cat], val)
	}
	return result, rows.Err()
}

// FindEvents returns the ev_ids carrying a category (and optionally a
// specific value), sorted.
func (s *Store) FindEvents(ctx context.Context, category, value string) ([]string, error) {
	cat := normalize(category)

	var query string
	var args []any
	if value != "" {
		query = `SELECT ev_id FROM user_labels WHERE category = ? AND value = ? ORDER BY ev_id`
		args = []any{cat, normalize(value)}
	} else {
		query = `SELECT DISTINCT ev_id FROM user_labels WHERE category = ? ORDER BY ev_id`
		args = []any{cat}
	}

	rows, err := s.db.RawDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find events: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan ev_id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LabelUsage is one category:value pair with its usage count.
type LabelUsage struct {
	Category string
	Value    string
	Count    int
}

// ListLabels returns every distinct pair in use with counts, grouped by
// category and ordered by descending use.
func (s *Store) ListLabels(ctx context.Context) ([]LabelUsage, error) {
	rows, err := s.db.RawDB().QueryContext(ctx, `
		SELECT category, value, COUNT(*) AS cnt
		FROM user_labels
		GROUP BY category, value
		ORDER BY category, cnt DESC, value`)
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	defer rows.Close()

	var out []LabelUsage
	for rows.Next() {
		var u LabelUsage
		if err := rows.Scan(&u.Category, &u.Value, &u.Count); err != nil {
			return nil, fmt.Errorf("failed to scan label usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Coverage returns the count of distinct labeled events per category.
func (s *Store) Coverage(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.RawDB().QueryContext(ctx, `
		SELECT category, COUNT(DISTINCT ev_id)
		FROM user_labels GROUP BY category ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to read coverage: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, fmt.Errorf("failed to scan coverage: %w", err)
		}
		out[cat] = n
	}
	return out, rows.Err()
}

// AddTag attaches a free-form tag to an event. Returns false when the
// tag was already present.
func (s *Store) AddTag(ctx context.Context, evID, tag string) (bool, error) {
	tag = normalize(tag)
	if tag == "" {
		return false, errors.New("empty tag")
	}
	res, err := s.db.RawDB().ExecContext(ctx,
		`INSERT OR IGNORE INTO user_tags (ev_id, tag) VALUES (?, ?)`, evID, tag)
	if err != nil {
		return false, fmt.Errorf("failed to add tag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to add tag: %w", err)
	}
	return n > 0, nil
}

// RemoveTag detaches a tag. Returns false when it was not present.
func (s *Store) RemoveTag(ctx context.Context, evID, tag string) (bool, error) {
	res, err := s.db.RawDB().ExecContext(ctx,
		`DELETE FROM user_tags WHERE ev_id = ? AND tag = ?`, evID, normalize(tag))
	if err != nil {
		return false, fmt.Errorf("failed to remove tag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to remove tag: %w", err)
	}
	return n > 0, nil
}

// Tags returns an event's tags, sorted.
func (s *Store) Tags(ctx context.Context, evID string) ([]string, error) {
	rows, err := s.db.RawDB().QueryContext(ctx,
		`SELECT tag FROM user_tags WHERE ev_id = ? ORDER BY tag`, evID)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}
