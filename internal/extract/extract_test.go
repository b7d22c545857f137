package extract

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcandrew/avsync/internal/merge"
	"github.com/jmcandrew/avsync/internal/policy"
)

var eventsPolicy = policy.Table{
	Name: "events",
	Columns: []policy.Column{
		{Name: "ev_id", Kind: policy.Text},
		{Name: "ev_date", Kind: policy.Text},
		{Name: "ev_city", Kind: policy.Text},
		{Name: "inj_tot_t", Kind: policy.Integer},
	},
	Keys:     []string{"ev_id"},
	Strategy: policy.KeyedUpsert,
}

func TestParseTableProjectsAndCoerces(t *testing.T) {
	csvData := strings.Join([]string{
		// Vendor casing and an undeclared column that must be dropped.
		`Ev_Id,EV_DATE,ev_city,inj_tot_t,undeclared_col`,
		`"20240115X00001","01/15/24 00:00:00","Nome","3","junk"`,
		`"20240116X00002","01/16/2024","Juneau","2.0","junk"`,
		`"20240117X00003","","",not-a-number,"junk"`,
	}, "\n")

	batch, err := parseTable(strings.NewReader(csvData), eventsPolicy)
	require.NoError(t, err)
	require.NotNil(t, batch)

	assert.Equal(t, []string{"ev_id", "ev_date", "ev_city", "inj_tot_t"}, batch.Columns)
	require.Len(t, batch.Rows, 3)

	assert.Equal(t, []any{"20240115X00001", "2024-01-15", "Nome", int64(3)}, batch.Rows[0])
	// Trailing .0 integers and four-digit-year dates both normalize.
	assert.Equal(t, []any{"20240116X00002", "2024-01-16", "Juneau", int64(2)}, batch.Rows[1])
	// Blank fields and unparseable integers become null.
	assert.Equal(t, []any{"20240117X00003", nil, nil, nil}, batch.Rows[2])
}

func TestParseTableMissingDeclaredColumn(t *testing.T) {
	csvData := "ev_id,ev_city\n\"EV001\",\"Nome\"\n"

	batch, err := parseTable(strings.NewReader(csvData), eventsPolicy)
	require.NoError(t, err)
	require.Len(t, batch.Rows, 1)

	// ev_date and inj_tot_t are absent from the CSV: null, positional.
	assert.Equal(t, []any{"EV001", nil, "Nome", nil}, batch.Rows[0])
}

func TestParseTableEmptyInput(t *testing.T) {
	batch, err := parseTable(strings.NewReader(""), eventsPolicy)
	require.NoError(t, err)
	assert.True(t, batch.Empty())

	// Header only: a batch with zero rows, still a no-op downstream.
	batch, err = parseTable(strings.NewReader("ev_id,ev_city\n"), eventsPolicy)
	require.NoError(t, err)
	assert.True(t, batch.Empty())
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Events", "events"},
		{"  CT_Acft_Make  ", "ct_acft_make"},
		{"Seq Of Events", "seq_of_events"},
		{"events", "events"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeName(tt.in), "NormalizeName(%q)", tt.in)
	}
}

func TestCanonicalDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"01/15/24 00:00:00", "2024-01-15", true},
		{"01/15/2024 08:30:00", "2024-01-15", true},
		{"12/31/2023", "2023-12-31", true},
		{"2024-01-15", "2024-01-15", true},
		{"2024-01-15 08:30:00", "2024-01-15", true},
		{" 01/15/24 ", "2024-01-15", true},
		{"not a date", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := CanonicalDate(tt.in)
		assert.Equal(t, tt.ok, ok, "CanonicalDate(%q) ok", tt.in)
		assert.Equal(t, tt.want, got, "CanonicalDate(%q)", tt.in)
	}
}

// fakeMDBTools puts stub mdb-tables/mdb-export scripts first on PATH.
// The stub inventory lists only the events table.
func fakeMDBTools(t *testing.T, exportScript string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub mdbtools scripts need /bin/sh")
	}

	dir := t.TempDir()
	tables := "#!/bin/sh\necho events\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mdb-tables"), []byte(tables), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mdb-export"), []byte(exportScript), 0o755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func testAdapter() *Adapter {
	return NewAdapter(log.New(io.Discard, "", 0))
}

func TestExtractViaMDBExport(t *testing.T) {
	fakeMDBTools(t, `#!/bin/sh
echo 'ev_id,ev_date,ev_city,inj_tot_t'
echo '"EV001","01/15/24 00:00:00","Nome","3"'
echo '"EV002","01/16/24 00:00:00","Juneau","1"'
`)

	batch, err := testAdapter().Extract(context.Background(), "/tmp/fake.mdb", eventsPolicy)
	require.NoError(t, err)
	require.NotNil(t, batch)
	require.Len(t, batch.Rows, 2)
	assert.Equal(t, []any{"EV001", "2024-01-15", "Nome", int64(3)}, batch.Rows[0])
}

func TestExtractSkipsAbsentTable(t *testing.T) {
	fakeMDBTools(t, "#!/bin/sh\nexit 1\n")

	aircraft := eventsPolicy
	aircraft.Name = "aircraft"

	batch, err := testAdapter().Extract(context.Background(), "/tmp/fake.mdb", aircraft)
	require.NoError(t, err)
	assert.Nil(t, batch)
}

// A malformed export must surface an extraction error even when the
// failure happens mid-stream with megabytes of output still buffered
// behind it. The bare quote on line two stops the CSV reader; the bulk
// rows that follow overflow the pipe unless Extract drains it.
func TestExtractMalformedExportReturnsError(t *testing.T) {
	fakeMDBTools(t, `#!/bin/sh
echo 'ev_id,ev_date,ev_city,inj_tot_t'
echo 'EV"BAD,x,y,z'
yes '"EV1","01/15/24 00:00:00","Nome","1"' | head -n 20000
`)

	type result struct {
		batch *merge.Batch
		err   error
	}
	done := make(chan result, 1)
	go func() {
		b, err := testAdapter().Extract(context.Background(), "/tmp/fake.mdb", eventsPolicy)
		done <- result{b, err}
	}()

	select {
	case res := <-done:
		require.Error(t, res.err)
		var exErr *Error
		require.ErrorAs(t, res.err, &exErr)
		assert.Equal(t, "events", exErr.Table)
		assert.Nil(t, res.batch)
	case <-time.After(10 * time.Second):
		t.Fatal("Extract did not return for a malformed export")
	}
}

func TestExtractReportsExportFailure(t *testing.T) {
	fakeMDBTools(t, `#!/bin/sh
echo 'corrupt file' >&2
exit 2
`)

	batch, err := testAdapter().Extract(context.Background(), "/tmp/fake.mdb", eventsPolicy)
	require.Error(t, err)
	assert.Nil(t, batch)

	var exErr *Error
	require.ErrorAs(t, err, &exErr)
	assert.Contains(t, exErr.Error(), "corrupt file")
}

func TestExtractionErrorUnwraps(t *testing.T) {
	inner := assert.AnError
	err := &Error{Table: "events", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "events")
}
