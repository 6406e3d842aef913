package store

import (
	"time"

	"github.com/quarry-dev/quarry/internal/extract"
)

// Batch is one scan's worth of changes, persisted as a single transaction.
// Files carries the facts for every added or changed file; RemovedPaths
// names files that disappeared since the previous scan.
type Batch struct {
	Files        []*extract.FileFacts
	RemovedPaths []string
	Full         bool // full scan: everything not in Files is stale
	Bookkeeping  ScanRecord
}

// ScanRecord is the per-scan bookkeeping row.
type ScanRecord struct {
	Root         string
	Incremental  bool
	StartedAt    time.Time
	FinishedAt   time.Time
	FilesAdded   int
	FilesChanged int
	FilesRemoved int
	FilesSkipped int
	Errors       int
}

// FileDigest is the stored identity of a previously scanned file, used for
// change detection.
type FileDigest struct {
	Path   string
	Digest string
}

// QueryResult is the bounded result of one read query.
type QueryResult struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
	Elapsed   time.Duration
}

// ViewColumn describes one column of a view.
type ViewColumn struct {
	Name string
	Type string
}

// ViewSchema describes one entity of the read surface. Kind is always
// "view" today; tables are not part of the query contract.
type ViewSchema struct {
	Name    string
	Kind    string
	Columns []ViewColumn
}
