// Package quarry builds and queries a SQLite knowledge base of structural
// facts about C# source code. It parses files with tree-sitter, extracts
// type declarations, implementation units, variables, per-line statistics,
// invocations, and classified symbol references, and persists them behind
// a stable set of read views.
//
// # Pipeline
//
// A scan runs in three phases:
//
//  1. Discover: resolve the root (a single file, a directory, or a
//     quarry.toml manifest) into the set of source files, honoring
//     .gitignore and skipping build-output directories.
//
//  2. Extract: compare each file's SHA-256 digest against the store and
//     re-parse only new or changed files on a worker pool, one tree-sitter
//     parser per worker.
//
//  3. Persist: funnel every extracted fact bundle into a single writer
//     transaction, replacing each file's rows wholesale and recording a
//     scan bookkeeping row.
//
// # Usage
//
// Create an Engine, scan, and query:
//
//	e, err := quarry.New("quarry.db")
//	if err != nil { ... }
//	defer e.Close()
//
//	ctx := context.Background()
//	res, err := e.Scan(ctx, "path/to/project", true)
//
//	qr, err := e.Query(ctx, "SELECT name, kind FROM v_types", 100, 5*time.Second)
//
// Query accepts a single read-only SQL statement against the v_ views;
// anything that could mutate the store is rejected before execution. Rows
// are capped and the call carries a wall-clock budget.
//
// # Incremental scanning
//
// With incremental scanning enabled, unchanged files are skipped and files
// that disappeared since the previous scan are removed from the store.
// A full scan replaces the store's contents entirely.
//
// # Semantic resolution
//
// Identifier classification is syntactic by default. An application that
// has real semantic information (for example from a language service) can
// supply an [extract.SemanticResolver] via [WithResolver] to refine
// reference kinds and attach container and resolved types.
package quarry
