// Package extract converts tables inside a vendor MDB file into typed
// merge batches. It shells out to mdbtools (mdb-tables, mdb-export) and
// parses the CSV output, normalizing names, types, and dates at this
// boundary so the core only ever sees canonical table and column names.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/jmcandrew/avsync/internal/merge"
	"github.com/jmcandrew/avsync/internal/policy"
)

// ErrMDBToolsMissing is returned when the mdbtools binaries are not on
// PATH. Fatal at startup, checked before any run begins.
var ErrMDBToolsMissing = errors.New("mdbtools not found on PATH (install mdbtools)")

// Error wraps an extraction failure with the table it occurred on. The
// archive application unit treats it as archive-aborting.
type Error struct {
	Table string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("table %s: %v", e.Table, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CheckTools verifies the mdbtools binaries are available.
func CheckTools() error {
	for _, tool := range []string{"mdb-tables", "mdb-export"} {
		if _, err := exec.LookPath(tool); err != nil {
			return fmt.Errorf("%w: missing %s", ErrMDBToolsMissing, tool)
		}
	}
	return nil
}

// Adapter implements merge.Extractor over a local MDB file.
type Adapter struct {
	logger *log.Logger

	// Table inventories are cached per MDB path; the applier asks for
	// every configured table of the same archive in sequence.
	mu        sync.Mutex
	cachePath string
	cache     map[string]string // normalized name -> actual MDB name
}

// NewAdapter creates an extraction adapter. If logger is nil, a default
// logger writing to stderr is used.
func NewAdapter(logger *log.Logger) *Adapter {
	if logger == nil {
		logger = log.New(os.Stderr, "[extract] ", log.LstdFlags)
	}
	return &Adapter{logger: logger}
}

// Extract exports one table from the MDB at mdbPath and returns its
// batch projected onto the policy's declared columns. A table absent
// from the MDB yields a nil batch, not an error.
func (a *Adapter) Extract(ctx context.Context, mdbPath string, table policy.Table) (*merge.Batch, error) {
	actual, err := a.resolveTable(ctx, mdbPath, table.Name)
	if err != nil {
		return nil, &Error{Table: table.Name, Err: err}
	}
	if actual == "" {
		a.logger.Printf("Table %s not present in %s, skipping", table.Name, mdbPath)
		return nil, nil
	}

	cmd := exec.CommandContext(ctx, "mdb-export", mdbPath, actual)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &Error{Table: table.Name, Err: err}
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, &Error{Table: table.Name, Err: fmt.Errorf("starting mdb-export: %w", err)}
	}

	batch, parseErr := parseTable(stdout, table)
	if parseErr != nil {
		// A mid-stream parse failure leaves unread output in the pipe;
		// mdb-export blocks writing into it until drained, and Wait
		// blocks on mdb-export.
		_, _ = io.Copy(io.Discard, stdout)
	}

	if err := cmd.Wait(); err != nil {
		return nil, &Error{Table: table.Name, Err: fmt.Errorf("mdb-export: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))}
	}
	if parseErr != nil {
		return nil, &Error{Table: table.Name, Err: parseErr}
	}
	return batch, nil
}

// resolveTable maps a canonical table name to the MDB's actual name,
// case-insensitively. Returns "" when the table is absent.
func (a *Adapter) resolveTable(ctx context.Context, mdbPath, name string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cachePath != mdbPath {
		tables, err := listTables(ctx, mdbPath)
		if err != nil {
			return "", err
		}
		a.cache = make(map[string]string, len(tables))
		for _, t := range tables {
			a.cache[NormalizeName(t)] = t
		}
		a.cachePath = mdbPath
	}
	return a.cache[NormalizeName(name)], nil
}

// listTables runs mdb-tables -1 and returns the raw table names.
func listTables(ctx context.Context, mdbPath string) ([]string, error) {
	out, err := exec.CommandContext(ctx, "mdb-tables", "-1", mdbPath).Output()
	if err != nil {
		return nil, fmt.Errorf("mdb-tables: %w", err)
	}

	var tables []string
	for _, line := range strings.Split(string(out), "\n") {
		if t := strings.TrimSpace(line); t != "" {
			tables = append(tables, t)
		}
	}
	return tables, nil
}

// NormalizeName canonicalizes a vendor table or column name: trimmed,
// lowercased, spaces collapsed to underscores.
func NormalizeName(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}
