// Package syncer drives the two sync flows: the one-shot full seed and
// the repeatable incremental update. It owns archive discovery, the
// ledger diff, and the strict application order; the per-archive work
// happens in internal/merge.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/jmcandrew/avsync/internal/fetch"
	"github.com/jmcandrew/avsync/internal/merge"
	"github.com/jmcandrew/avsync/internal/policy"
	"github.com/jmcandrew/avsync/internal/store"
)

// SeedArchive is the vendor's full snapshot name.
const SeedArchive = "avall.zip"

var (
	// ErrStoreExists is returned by PrepareSeedTarget when the database
	// file already exists and force was not given.
	ErrStoreExists = errors.New("database already exists (use --force to overwrite)")

	// ErrStoreMissing is returned when update runs against a database
	// that was never seeded.
	ErrStoreMissing = errors.New("database not found (run seed first)")
)

// Fetcher is the remote collaborator: list candidate archives, fetch
// one by name, and unpack its MDB payload. Satisfied by *fetch.Client.
type Fetcher interface {
	ListArchives(ctx context.Context) ([]string, error)
	Download(ctx context.Context, name string) (string, error)
	ExtractMDB(zipPath string) (string, error)
}

// UpdateReport summarizes one incremental run.
type UpdateReport struct {
	// Pending is how many unapplied archives discovery found.
	Pending int

	// Applied holds the per-archive results, in application order.
	// On failure it contains the archives committed before the stop.
	Applied []*merge.Result
}

// Orchestrator coordinates one sync run. It keeps no state between
// runs; everything durable lives in the ledger and the store.
type Orchestrator struct {
	db        *store.DB
	reg       *policy.Registry
	fetcher   Fetcher
	extractor merge.Extractor
	applier   *merge.Applier
	logger    *log.Logger
}

// New creates an orchestrator over an opened, schema-initialized store.
// If logger is nil, a default logger writing to stderr is used.
func New(db *store.DB, reg *policy.Registry, fetcher Fetcher, extractor merge.Extractor, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Orchestrator{
		db:        db,
		reg:       reg,
		fetcher:   fetcher,
		extractor: extractor,
		applier:   merge.NewApplier(db, reg, logger),
		logger:    logger,
	}
}

// PrepareSeedTarget enforces the seed precondition on the database
// path before the store is opened: the file must not exist, unless
// force is set, in which case the old store (and its WAL sidecars) is
// discarded.
func PrepareSeedTarget(path string, force bool) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if !force {
		return fmt.Errorf("%w: %s", ErrStoreExists, path)
	}
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	return nil
}

// RequireStore enforces the update precondition: the database file
// must already exist.
func RequireStore(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrStoreMissing, path)
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return nil
}

// Seed performs the initial full load: fetch the snapshot archive,
// apply it with every table forced to full replace, then build the
// query indices and reporting views.
func (o *Orchestrator) Seed(ctx context.Context) (*merge.Result, error) {
	o.logger.Printf("Seeding from %s", SeedArchive)

	zipPath, err := o.fetcher.Download(ctx, SeedArchive)
	if err != nil {
		return nil, err
	}
	mdbPath, err := o.fetcher.ExtractMDB(zipPath)
	if err != nil {
		return nil, err
	}

	res, err := o.applier.Apply(ctx, SeedArchive, mdbPath, o.extractor, true)
	if err != nil {
		return nil, err
	}

	if err := o.db.CreateIndices(ctx, o.reg); err != nil {
		return nil, err
	}
	if err := o.db.CreateViews(ctx); err != nil {
		return nil, err
	}

	o.logger.Printf("Seed complete: %d rows", res.TotalRows)
	return res, nil
}

// Update applies every incremental archive not yet in the ledger, in
// lexicographic name order (the naming convention's publication
// order). The first failing archive stops the run: later archives may
// depend on its parent revisions having landed. Archives committed
// before the failure stay committed and are reported alongside the
// error.
func (o *Orchestrator) Update(ctx context.Context) (*UpdateReport, error) {
	report := &UpdateReport{}

	available, err := o.fetcher.ListArchives(ctx)
	if err != nil {
		return report, err
	}

	applied, err := o.db.AppliedArchives(ctx)
	if err != nil {
		return report, err
	}

	var pending []string
	for _, name := range available {
		if !fetch.IsUpdateArchive(name) {
			continue
		}
		if _, done := applied[name]; done {
			continue
		}
		pending = append(pending, name)
	}
	// Deterministic application order regardless of discovery order.
	sort.Strings(pending)

	report.Pending = len(pending)
	if len(pending) == 0 {
		o.logger.Printf("Store is up to date")
		return report, nil
	}
	o.logger.Printf("%d new archive(s) to apply", len(pending))

	for _, name := range pending {
		res, err := o.applyOne(ctx, name)
		if err != nil {
			return report, fmt.Errorf("stopping run at %s: %w", name, err)
		}
		report.Applied = append(report.Applied, res)
	}

	return report, nil
}

func (o *Orchestrator) applyOne(ctx context.Context, name string) (*merge.Result, error) {
	zipPath, err := o.fetcher.Download(ctx, name)
	if err != nil {
		return nil, err
	}
	mdbPath, err := o.fetcher.ExtractMDB(zipPath)
	if err != nil {
		return nil, err
	}
	return o.applier.Apply(ctx, name, mdbPath, o.extractor, false)
}
