package merge

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/jmcandrew/avsync/internal/policy"
	"github.com/jmcandrew/avsync/internal/store"
)

// Extractor produces the batch for one table from a local archive
// handle. An absent table yields a nil or zero-row batch, not an error.
// Returned batches must carry only columns declared in the policy.
type Extractor interface {
	Extract(ctx context.Context, archivePath string, table policy.Table) (*Batch, error)
}

// TableResult reports one table's contribution to an archive application.
type TableResult struct {
	Table    string
	Strategy policy.Strategy
	Rows     int
}

// Result summarizes one applied archive.
type Result struct {
	Archive   string
	Tables    []TableResult
	TotalRows int
}

// Applier lands one archive in the store as a single transaction:
// extract the primary batch, derive the scope key set, merge every
// configured table by its strategy, then write the ledger entry. Any
// failure rolls back the whole archive, leaving it eligible for retry.
type Applier struct {
	db     *store.DB
	reg    *policy.Registry
	engine *Engine
	logger *log.Logger
}

// NewApplier creates an applier over an initialized store. If logger is
// nil, a default logger writing to stderr is used.
func NewApplier(db *store.DB, reg *policy.Registry, logger *log.Logger) *Applier {
	if logger == nil {
		logger = log.New(os.Stderr, "[apply] ", log.LstdFlags)
	}
	return &Applier{
		db:     db,
		reg:    reg,
		engine: NewEngine(logger),
		logger: logger,
	}
}

// Apply merges one archive into the store and records it in the ledger.
//
// forceFullReplace overrides every table's strategy with FullReplace;
// the orchestrator sets it for the seed snapshot only.
func (a *Applier) Apply(ctx context.Context, archiveName, archivePath string, ext Extractor, forceFullReplace bool) (*Result, error) {
	res := &Result{Archive: archiveName}

	err := a.db.InTx(ctx, func(tx *sql.Tx) error {
		primary := a.reg.Primary()

		primaryBatch, err := ext.Extract(ctx, archivePath, primary)
		if err != nil {
			return fmt.Errorf("extracting %s: %w", primary.Name, err)
		}
		scopeKeys := primaryBatch.ScopeKeys(a.reg.ScopeColumn)

		rows, err := a.applyTable(ctx, tx, primary, primaryBatch, scopeKeys, forceFullReplace)
		if err != nil {
			return err
		}
		if !primaryBatch.Empty() {
			res.Tables = append(res.Tables, TableResult{primary.Name, effective(primary, forceFullReplace), rows})
			res.TotalRows += rows
		}

		for _, t := range a.reg.Tables() {
			if t.Name == primary.Name {
				continue
			}
			batch, err := ext.Extract(ctx, archivePath, t)
			if err != nil {
				return fmt.Errorf("extracting %s: %w", t.Name, err)
			}
			if batch.Empty() {
				continue
			}
			rows, err := a.applyTable(ctx, tx, t, batch, scopeKeys, forceFullReplace)
			if err != nil {
				return err
			}
			res.Tables = append(res.Tables, TableResult{t.Name, effective(t, forceFullReplace), rows})
			res.TotalRows += rows
		}

		return store.RecordApplication(ctx, tx, archiveName, res.TotalRows)
	})
	if err != nil {
		return nil, fmt.Errorf("archive %s: %w", archiveName, err)
	}

	a.logger.Printf("Applied %s: %d rows across %d tables", archiveName, res.TotalRows, len(res.Tables))
	return res, nil
}

// applyTable routes one batch through the table's effective strategy.
func (a *Applier) applyTable(ctx context.Context, tx *sql.Tx, t policy.Table, b *Batch, scopeKeys []any, force bool) (int, error) {
	switch effective(t, force) {
	case policy.FullReplace:
		return a.engine.FullReplace(ctx, tx, t, b)
	case policy.KeyedUpsert:
		return a.engine.KeyedUpsert(ctx, tx, t, b)
	case policy.ScopedReplace:
		return a.engine.ScopedReplace(ctx, tx, t, b, a.reg.ScopeColumn, scopeKeys)
	default:
		return 0, fmt.Errorf("table %s: unknown strategy %v", t.Name, t.Strategy)
	}
}

func effective(t policy.Table, force bool) policy.Strategy {
	if force {
		return policy.FullReplace
	}
	return t.Strategy
}
