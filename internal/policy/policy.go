// Package policy defines the static per-table sync configuration: which
// tables the mirror carries, their column sets, their key columns, and
// the merge strategy used when an archive supplies rows for them.
//
// The registry is built once at startup and never mutated. The merge
// engine and the orchestrator consult it; nothing else decides how a
// table is written.
package policy

import (
	"errors"
	"fmt"
)

// ErrUnknownTable is returned when a table name has no registered policy.
// This is a configuration error, fatal at startup, never a data condition.
var ErrUnknownTable = errors.New("no sync policy for table")

// Strategy selects one of the three merge algorithms in internal/merge.
type Strategy int

const (
	// FullReplace discards all existing rows and inserts the batch.
	// Used for every table during seed, and for lookup tables that
	// carry no reliable natural key.
	FullReplace Strategy = iota

	// KeyedUpsert deletes existing rows whose key tuple appears in the
	// batch, then inserts the batch. Rows for keys absent from the
	// batch are untouched.
	KeyedUpsert

	// ScopedReplace deletes existing rows whose scope column value is
	// in the archive's scope key set, then appends the batch. Deletion
	// is driven by the parent table's keys, not the child's own.
	ScopedReplace
)

func (s Strategy) String() string {
	switch s {
	case FullReplace:
		return "full-replace"
	case KeyedUpsert:
		return "keyed-upsert"
	case ScopedReplace:
		return "scoped-replace"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ColumnKind is the storage type of a column. The extraction layer
// coerces every value to integer, text, or null before the core sees it.
type ColumnKind int

const (
	Text ColumnKind = iota
	Integer
)

// SQLType returns the SQLite column type for DDL generation.
func (k ColumnKind) SQLType() string {
	if k == Integer {
		return "INTEGER"
	}
	return "TEXT"
}

// Column is one declared column of a synced table.
type Column struct {
	Name string
	Kind ColumnKind
}

// Table is the sync policy for one logical table. Key columns order the
// identity tuple for KeyedUpsert and the degraded-mode fallback of
// ScopedReplace; they may be empty only for FullReplace tables.
type Table struct {
	Name     string
	Columns  []Column
	Keys     []string
	Strategy Strategy

	// Lookup marks ct_* reference tables. They never participate in
	// scope derivation and are loaded after the entity tables.
	Lookup bool
}

// ColumnNames returns the declared column names in order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// HasColumn reports whether name is a declared column of the table.
func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Registry is the full table configuration for one mirror. PrimaryTable
// names the entity table whose batch yields the scope key set, and
// ScopeColumn the column holding the parent identifier in both the
// primary table and every ScopedReplace child.
type Registry struct {
	PrimaryTable string
	ScopeColumn  string

	tables []Table
	byName map[string]int
}

// NewRegistry builds a registry from an ordered table list. The order is
// preserved by Tables() and determines application order within one
// archive (primary first, then the rest).
func NewRegistry(primaryTable, scopeColumn string, tables []Table) (*Registry, error) {
	r := &Registry{
		PrimaryTable: primaryTable,
		ScopeColumn:  scopeColumn,
		tables:       tables,
		byName:       make(map[string]int, len(tables)),
	}
	for i, t := range tables {
		if _, dup := r.byName[t.Name]; dup {
			return nil, fmt.Errorf("duplicate policy for table %q", t.Name)
		}
		if len(t.Keys) == 0 && t.Strategy != FullReplace {
			return nil, fmt.Errorf("table %q: strategy %s requires key columns", t.Name, t.Strategy)
		}
		for _, k := range t.Keys {
			if !t.HasColumn(k) {
				return nil, fmt.Errorf("table %q: key column %q not declared", t.Name, k)
			}
		}
		if t.Strategy == ScopedReplace && !t.HasColumn(scopeColumn) {
			return nil, fmt.Errorf("table %q: scoped-replace requires column %q", t.Name, scopeColumn)
		}
		r.byName[t.Name] = i
	}
	if _, ok := r.byName[primaryTable]; !ok {
		return nil, fmt.Errorf("primary table %q has no policy", primaryTable)
	}
	return r, nil
}

// PolicyFor returns the policy for a canonical table name.
func (r *Registry) PolicyFor(name string) (Table, error) {
	i, ok := r.byName[name]
	if !ok {
		return Table{}, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	return r.tables[i], nil
}

// Tables returns every policy in registration order.
func (r *Registry) Tables() []Table {
	return r.tables
}

// Primary returns the primary entity table's policy.
func (r *Registry) Primary() Table {
	return r.tables[r.byName[r.PrimaryTable]]
}
