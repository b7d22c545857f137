package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAviationRegistry(t *testing.T) {
	r := Aviation()

	require.Equal(t, "events", r.PrimaryTable)
	require.Equal(t, "ev_id", r.ScopeColumn)

	primary := r.Primary()
	assert.Equal(t, KeyedUpsert, primary.Strategy)
	assert.Equal(t, []string{"ev_id"}, primary.Keys)

	aircraft, err := r.PolicyFor("aircraft")
	require.NoError(t, err)
	assert.Equal(t, ScopedReplace, aircraft.Strategy)
	assert.True(t, aircraft.HasColumn("ev_id"))

	cause, err := r.PolicyFor("ct_accident_cause")
	require.NoError(t, err)
	assert.Equal(t, FullReplace, cause.Strategy)
	assert.True(t, cause.Lookup)
	assert.Empty(t, cause.Keys)
}

func TestPolicyForUnknownTable(t *testing.T) {
	r := Aviation()

	_, err := r.PolicyFor("flight_crew")
	require.ErrorIs(t, err, ErrUnknownTable)
}

func TestNewRegistryRejectsBadConfig(t *testing.T) {
	col := []Column{{Name: "code", Kind: Text}}

	tests := []struct {
		name    string
		primary string
		tables  []Table
	}{
		{
			name:    "duplicate table",
			primary: "a",
			tables: []Table{
				{Name: "a", Columns: col, Keys: []string{"code"}, Strategy: KeyedUpsert},
				{Name: "a", Columns: col, Keys: []string{"code"}, Strategy: KeyedUpsert},
			},
		},
		{
			name:    "keyed upsert without keys",
			primary: "a",
			tables: []Table{
				{Name: "a", Columns: col, Strategy: KeyedUpsert},
			},
		},
		{
			name:    "key column not declared",
			primary: "a",
			tables: []Table{
				{Name: "a", Columns: col, Keys: []string{"missing"}, Strategy: KeyedUpsert},
			},
		},
		{
			name:    "scoped replace without scope column",
			primary: "a",
			tables: []Table{
				{Name: "a", Columns: []Column{{Name: "ev_id", Kind: Text}}, Keys: []string{"ev_id"}, Strategy: KeyedUpsert},
				{Name: "b", Columns: col, Keys: []string{"code"}, Strategy: ScopedReplace},
			},
		},
		{
			name:    "primary without policy",
			primary: "missing",
			tables: []Table{
				{Name: "a", Columns: []Column{{Name: "ev_id", Kind: Text}}, Keys: []string{"ev_id"}, Strategy: KeyedUpsert},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.primary, "ev_id", tt.tables)
			assert.Error(t, err)
		})
	}
}

func TestStrategyString(t *testing.T) {
	assert.Equal(t, "full-replace", FullReplace.String())
	assert.Equal(t, "keyed-upsert", KeyedUpsert.String())
	assert.Equal(t, "scoped-replace", ScopedReplace.String())
}
