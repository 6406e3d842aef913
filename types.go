package quarry

import (
	"time"

	"github.com/quarry-dev/quarry/internal/store"
)

// Public type aliases for internal store types surfaced by the Engine API.
// These are Go type aliases (=) — identical to the internal types at
// compile time, so no conversion is needed.

type Store = store.Store
type QueryResult = store.QueryResult
type ViewSchema = store.ViewSchema
type ViewColumn = store.ViewColumn

// FileError records one file that failed extraction during a scan. The
// failure is localized: the rest of the batch still persists.
type FileError struct {
	Path string
	Err  error
}

// ScanResult summarizes one scan.
type ScanResult struct {
	// Discovered counts every source file the root resolved to.
	Discovered int
	// Scanned counts files that were parsed and persisted (new or changed).
	Scanned int
	// Unchanged counts files skipped because their digest matched.
	Unchanged int
	// Removed counts stored files that no longer exist under the root.
	Removed int
	// IndexedEntities counts the derived facts persisted this scan.
	IndexedEntities int
	// FileErrors lists per-file extraction failures. Never aborts the scan.
	FileErrors []FileError
	// Elapsed is the wall-clock duration of the whole scan.
	Elapsed time.Duration
	// StorePath is the SQLite file the facts were written to.
	StorePath string
}

// SchemaDescription is the machine-readable shape of the read surface.
type SchemaDescription struct {
	SchemaVersion int
	Views         []ViewSchema
}
