package syncer

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcandrew/avsync/internal/merge"
	"github.com/jmcandrew/avsync/internal/policy"
	"github.com/jmcandrew/avsync/internal/store"
)

func testRegistry(t *testing.T) *policy.Registry {
	t.Helper()
	reg, err := policy.NewRegistry("events", "ev_id", []policy.Table{
		{
			Name: "events",
			Columns: []policy.Column{
				{Name: "ev_id", Kind: policy.Text},
				{Name: "ev_city", Kind: policy.Text},
			},
			Keys:     []string{"ev_id"},
			Strategy: policy.KeyedUpsert,
		},
		{
			Name: "aircraft",
			Columns: []policy.Column{
				{Name: "ev_id", Kind: policy.Text},
				{Name: "aircraft_key", Kind: policy.Integer},
			},
			Keys:     []string{"ev_id", "aircraft_key"},
			Strategy: policy.ScopedReplace,
		},
	})
	require.NoError(t, err)
	return reg
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// fakeFetcher serves a canned archive listing and records download
// order. Download and ExtractMDB return synthetic paths; the fake
// extractor keys its batches off them.
type fakeFetcher struct {
	archives     []string
	downloads    []string
	failDownload string
}

var errDownload = errors.New("download failed")

func (f *fakeFetcher) ListArchives(context.Context) ([]string, error) {
	return f.archives, nil
}

func (f *fakeFetcher) Download(_ context.Context, name string) (string, error) {
	if name == f.failDownload {
		return "", errDownload
	}
	f.downloads = append(f.downloads, name)
	return "/tmp/fake/" + name, nil
}

func (f *fakeFetcher) ExtractMDB(zipPath string) (string, error) {
	return strings.TrimSuffix(zipPath, ".zip") + ".mdb", nil
}

// fakeExtractor serves batches per (mdb path, table) and can fail for a
// whole archive.
type fakeExtractor struct {
	byArchive map[string]map[string]*merge.Batch // mdb path -> table -> batch
	failOn    string                             // mdb path
}

var errExtract = errors.New("extraction failed")

func (f *fakeExtractor) Extract(_ context.Context, mdbPath string, table policy.Table) (*merge.Batch, error) {
	if mdbPath == f.failOn {
		return nil, errExtract
	}
	return f.byArchive[mdbPath][table.Name], nil
}

func events(rows ...[]any) *merge.Batch {
	return &merge.Batch{Table: "events", Columns: []string{"ev_id", "ev_city"}, Rows: rows}
}

func aircraft(rows ...[]any) *merge.Batch {
	return &merge.Batch{Table: "aircraft", Columns: []string{"ev_id", "aircraft_key"}, Rows: rows}
}

func mdbPath(name string) string {
	return "/tmp/fake/" + strings.TrimSuffix(name, ".zip") + ".mdb"
}

func openTestStore(t *testing.T, reg *policy.Registry) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "avsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.InitSchema(context.Background(), reg))
	return db
}

func childCount(t *testing.T, db *store.DB, evID string) int {
	t.Helper()
	var n int
	err := db.RawDB().QueryRow(`SELECT COUNT(*) FROM aircraft WHERE ev_id = ?`, evID).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestSeedThenUpdateEndToEnd(t *testing.T) {
	reg := testRegistry(t)
	db := openTestStore(t, reg)
	ctx := context.Background()

	fetcher := &fakeFetcher{archives: []string{SeedArchive, "up01JAN.zip"}}
	extractor := &fakeExtractor{byArchive: map[string]map[string]*merge.Batch{
		mdbPath(SeedArchive): {
			"events":   events([]any{"EV001", "Nome"}),
			"aircraft": aircraft([]any{"EV001", int64(1)}, []any{"EV001", int64(2)}),
		},
		mdbPath("up01JAN.zip"): {
			"events": events([]any{"EV001", "Nome"}, []any{"EV002", "Juneau"}),
			"aircraft": aircraft(
				[]any{"EV001", int64(1)},
				[]any{"EV002", int64(1)},
			),
		},
	}}

	o := New(db, reg, fetcher, extractor, quietLogger())

	seedRes, err := o.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, seedRes.TotalRows)
	assert.Equal(t, 2, childCount(t, db, "EV001"))

	report, err := o.Update(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pending)
	require.Len(t, report.Applied, 1)

	// EV001 revised down to one child; EV002 arrived with one.
	assert.Equal(t, 1, childCount(t, db, "EV001"))
	assert.Equal(t, 1, childCount(t, db, "EV002"))

	applied, err := db.AppliedArchives(ctx)
	require.NoError(t, err)
	assert.Len(t, applied, 2)
	assert.Contains(t, applied, SeedArchive)
	assert.Contains(t, applied, "up01JAN.zip")
}

func TestUpdateAppliesInSortedOrder(t *testing.T) {
	reg := testRegistry(t)
	db := openTestStore(t, reg)
	ctx := context.Background()

	// Discovery order is shuffled and includes non-incremental names;
	// application order must be the lexicographic sort of the matches.
	fetcher := &fakeFetcher{archives: []string{
		"up15MAR.zip", "avall.zip", "up01JAN.zip", "readme.zip", "up08FEB.zip",
	}}
	batches := map[string]map[string]*merge.Batch{}
	for _, name := range []string{"up01JAN.zip", "up08FEB.zip", "up15MAR.zip"} {
		batches[mdbPath(name)] = map[string]*merge.Batch{
			"events": events([]any{"EV-" + name, "City"}),
		}
	}
	extractor := &fakeExtractor{byArchive: batches}

	o := New(db, reg, fetcher, extractor, quietLogger())
	report, err := o.Update(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Pending)
	assert.Equal(t, []string{"up01JAN.zip", "up08FEB.zip", "up15MAR.zip"}, fetcher.downloads)
}

func TestUpdateSkipsAppliedArchives(t *testing.T) {
	reg := testRegistry(t)
	db := openTestStore(t, reg)
	ctx := context.Background()

	fetcher := &fakeFetcher{archives: []string{"up01JAN.zip", "up08FEB.zip"}}
	extractor := &fakeExtractor{byArchive: map[string]map[string]*merge.Batch{
		mdbPath("up01JAN.zip"): {"events": events([]any{"EV001", "Nome"})},
		mdbPath("up08FEB.zip"): {"events": events([]any{"EV002", "Juneau"})},
	}}

	o := New(db, reg, fetcher, extractor, quietLogger())

	report, err := o.Update(ctx)
	require.NoError(t, err)
	require.Len(t, report.Applied, 2)

	// Second run: everything already in the ledger.
	fetcher.downloads = nil
	report, err = o.Update(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Pending)
	assert.Empty(t, report.Applied)
	assert.Empty(t, fetcher.downloads)
}

func TestUpdateStopsAtFirstFailure(t *testing.T) {
	reg := testRegistry(t)
	db := openTestStore(t, reg)
	ctx := context.Background()

	fetcher := &fakeFetcher{archives: []string{"up01JAN.zip", "up08FEB.zip", "up15MAR.zip"}}
	extractor := &fakeExtractor{
		byArchive: map[string]map[string]*merge.Batch{
			mdbPath("up01JAN.zip"): {"events": events([]any{"EV001", "Nome"})},
			mdbPath("up15MAR.zip"): {"events": events([]any{"EV003", "Kodiak"})},
		},
		failOn: mdbPath("up08FEB.zip"),
	}

	o := New(db, reg, fetcher, extractor, quietLogger())
	report, err := o.Update(ctx)

	require.ErrorIs(t, err, errExtract)
	assert.ErrorContains(t, err, "up08FEB.zip")

	// The archive before the failure stays committed; the one after is
	// never attempted.
	require.Len(t, report.Applied, 1)
	assert.Equal(t, "up01JAN.zip", report.Applied[0].Archive)
	assert.NotContains(t, fetcher.downloads, "up15MAR.zip")

	applied, dbErr := db.AppliedArchives(ctx)
	require.NoError(t, dbErr)
	assert.Len(t, applied, 1)
	assert.Contains(t, applied, "up01JAN.zip")
}

func TestUpdateDownloadFailureAborts(t *testing.T) {
	reg := testRegistry(t)
	db := openTestStore(t, reg)

	fetcher := &fakeFetcher{
		archives:     []string{"up01JAN.zip"},
		failDownload: "up01JAN.zip",
	}
	o := New(db, reg, fetcher, &fakeExtractor{}, quietLogger())

	report, err := o.Update(context.Background())
	require.ErrorIs(t, err, errDownload)
	assert.Empty(t, report.Applied)
}

func TestPrepareSeedTarget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "avsync.db")

	// No file yet: fine with or without force.
	require.NoError(t, PrepareSeedTarget(path, false))

	require.NoError(t, os.WriteFile(path, []byte("db"), 0644))
	require.NoError(t, os.WriteFile(path+"-wal", []byte("wal"), 0644))

	err := PrepareSeedTarget(path, false)
	require.ErrorIs(t, err, ErrStoreExists)

	require.NoError(t, PrepareSeedTarget(path, true))
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(path + "-wal")
	assert.True(t, os.IsNotExist(statErr))
}

func TestRequireStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "avsync.db")

	require.ErrorIs(t, RequireStore(path), ErrStoreMissing)

	require.NoError(t, os.WriteFile(path, []byte("db"), 0644))
	require.NoError(t, RequireStore(path))
}
