package store

import (
	"database/sql"
	"fmt"

	"github.com/quarry-dev/quarry/internal/qerr"
)

// CurrentSchemaVersion is the version a fresh store is created at.
const CurrentSchemaVersion = 4

// legacyVersion is what an unmarked store with the recognized v1 table
// layout is treated as.
const legacyVersion = 1

// legacyTables is the complete table set of the pre-meta v1 layout. Any
// table outside this set means the database is foreign.
var legacyTables = map[string]bool{
	"files":           true,
	"types":           true,
	"inheritance":     true,
	"implementations": true,
	"variables":       true,
	"lines":           true,
	"line_usages":     true,
	"invocations":     true,
	"scans":           true,
}

type migration struct {
	version int
	steps   []string
}

// migrations is the ordered ladder. Each entry takes a store from
// version-1 to version; steps within an entry run in order, all inside the
// caller's transaction.
var migrations = []migration{
	{
		version: 1,
		steps: []string{
			`CREATE TABLE IF NOT EXISTS quarry_meta (
				key   TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS files (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				path       TEXT NOT NULL UNIQUE,
				language   TEXT NOT NULL,
				digest     TEXT NOT NULL,
				line_count INTEGER NOT NULL,
				scanned_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS types (
				id        INTEGER PRIMARY KEY AUTOINCREMENT,
				file_id   INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
				type_key  TEXT NOT NULL,
				name      TEXT NOT NULL,
				kind      TEXT NOT NULL,
				scope     TEXT NOT NULL,
				fqn       TEXT NOT NULL,
				access    TEXT NOT NULL,
				modifiers TEXT NOT NULL,
				line      INTEGER NOT NULL,
				UNIQUE (file_id, type_key)
			)`,
			`CREATE TABLE IF NOT EXISTS inheritance (
				id        INTEGER PRIMARY KEY AUTOINCREMENT,
				type_id   INTEGER NOT NULL REFERENCES types(id) ON DELETE CASCADE,
				base_name TEXT NOT NULL,
				relation  TEXT NOT NULL,
				position  INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS implementations (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				file_id     INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
				impl_key    TEXT NOT NULL,
				parent_id   INTEGER REFERENCES implementations(id) ON DELETE CASCADE,
				type_id     INTEGER REFERENCES types(id) ON DELETE CASCADE,
				name        TEXT NOT NULL,
				kind        TEXT NOT NULL,
				returns     TEXT NOT NULL,
				signature   TEXT NOT NULL,
				param_count INTEGER NOT NULL,
				access      TEXT NOT NULL,
				modifiers   TEXT NOT NULL,
				start_line  INTEGER NOT NULL,
				end_line    INTEGER NOT NULL,
				start_col   INTEGER NOT NULL,
				UNIQUE (file_id, impl_key)
			)`,
			`CREATE TABLE IF NOT EXISTS variables (
				id       INTEGER PRIMARY KEY AUTOINCREMENT,
				impl_id  INTEGER NOT NULL REFERENCES implementations(id) ON DELETE CASCADE,
				var_key  TEXT NOT NULL,
				name     TEXT NOT NULL,
				kind     TEXT NOT NULL,
				type     TEXT,
				line     INTEGER NOT NULL,
				UNIQUE (impl_id, var_key)
			)`,
			`CREATE TABLE IF NOT EXISTS lines (
				id        INTEGER PRIMARY KEY AUTOINCREMENT,
				file_id   INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
				impl_id   INTEGER REFERENCES implementations(id) ON DELETE CASCADE,
				line      INTEGER NOT NULL,
				depth     INTEGER NOT NULL,
				var_count INTEGER NOT NULL,
				text      TEXT NOT NULL,
				UNIQUE (file_id, line)
			)`,
			`CREATE TABLE IF NOT EXISTS line_usages (
				id      INTEGER PRIMARY KEY AUTOINCREMENT,
				line_id INTEGER NOT NULL REFERENCES lines(id) ON DELETE CASCADE,
				var_id  INTEGER NOT NULL REFERENCES variables(id) ON DELETE CASCADE,
				UNIQUE (line_id, var_id)
			)`,
			`CREATE TABLE IF NOT EXISTS invocations (
				id        INTEGER PRIMARY KEY AUTOINCREMENT,
				file_id   INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
				impl_id   INTEGER REFERENCES implementations(id) ON DELETE CASCADE,
				callee    TEXT NOT NULL,
				call_text TEXT NOT NULL,
				line      INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS scans (
				id            INTEGER PRIMARY KEY AUTOINCREMENT,
				root          TEXT NOT NULL,
				incremental   INTEGER NOT NULL,
				started_at    TEXT NOT NULL,
				finished_at   TEXT NOT NULL,
				files_added   INTEGER NOT NULL,
				files_changed INTEGER NOT NULL,
				files_removed INTEGER NOT NULL,
				files_skipped INTEGER NOT NULL,
				errors        INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_types_file ON types(file_id)`,
			`CREATE INDEX IF NOT EXISTS idx_impls_file ON implementations(file_id)`,
			`CREATE INDEX IF NOT EXISTS idx_impls_type ON implementations(type_id)`,
			`CREATE INDEX IF NOT EXISTS idx_vars_impl ON variables(impl_id)`,
			`CREATE INDEX IF NOT EXISTS idx_lines_file ON lines(file_id)`,
			`CREATE INDEX IF NOT EXISTS idx_usages_line ON line_usages(line_id)`,
			`CREATE INDEX IF NOT EXISTS idx_invocations_file ON invocations(file_id)`,
		},
	},
	{
		version: 2,
		steps: []string{
			`CREATE TABLE IF NOT EXISTS symbol_references (
				id       INTEGER PRIMARY KEY AUTOINCREMENT,
				file_id  INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
				impl_id  INTEGER REFERENCES implementations(id) ON DELETE CASCADE,
				name     TEXT NOT NULL,
				kind     TEXT NOT NULL,
				container_type TEXT NOT NULL DEFAULT '',
				resolved_type  TEXT NOT NULL DEFAULT '',
				line     INTEGER NOT NULL,
				col      INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_refs_file ON symbol_references(file_id)`,
			`CREATE INDEX IF NOT EXISTS idx_refs_name ON symbol_references(name)`,
		},
	},
	{
		version: 3,
		steps:   viewStepsV3(),
	},
	{
		version: 4,
		steps: append(
			[]string{`ALTER TABLE implementations ADD COLUMN end_col INTEGER NOT NULL DEFAULT 0`},
			viewSteps()...,
		),
	},
}

// viewDefs is the stable read surface. Views are dropped and recreated on
// every migration that touches them, so redefining one only needs a new
// schema version repeating this step.
var viewDefs = map[string]string{
	"v_files": `SELECT f.id, f.path, f.language, f.digest, f.line_count, f.scanned_at
		FROM files f`,
	"v_types": `SELECT t.id, f.path AS file_path, t.type_key, t.name, t.kind,
			t.scope, t.fqn, t.access, t.modifiers, t.line
		FROM types t JOIN files f ON f.id = t.file_id`,
	"v_inheritance": `SELECT i.id, t.type_key, t.name AS type_name, f.path AS file_path,
			i.base_name, i.relation, i.position
		FROM inheritance i
		JOIN types t ON t.id = i.type_id
		JOIN files f ON f.id = t.file_id`,
	"v_implementations": `SELECT m.id, f.path AS file_path, m.impl_key, m.name, m.kind,
			m.returns, m.signature, m.param_count, m.access, m.modifiers,
			m.start_line, m.end_line, m.start_col, m.end_col,
			p.impl_key AS parent_key, t.type_key AS type_key
		FROM implementations m
		JOIN files f ON f.id = m.file_id
		LEFT JOIN implementations p ON p.id = m.parent_id
		LEFT JOIN types t ON t.id = m.type_id`,
	"v_variables": `SELECT v.id, f.path AS file_path, m.impl_key, v.var_key,
			v.name, v.kind, v.type, v.line
		FROM variables v
		JOIN implementations m ON m.id = v.impl_id
		JOIN files f ON f.id = m.file_id`,
	"v_lines": `SELECT l.id, f.path AS file_path, l.line, l.depth, l.var_count, l.text,
			m.impl_key
		FROM lines l
		JOIN files f ON f.id = l.file_id
		LEFT JOIN implementations m ON m.id = l.impl_id`,
	"v_line_usages": `SELECT u.id, f.path AS file_path, l.line,
			v.name AS var_name, v.var_key, m.impl_key
		FROM line_usages u
		JOIN lines l ON l.id = u.line_id
		JOIN files f ON f.id = l.file_id
		JOIN variables v ON v.id = u.var_id
		JOIN implementations m ON m.id = v.impl_id`,
	"v_invocations": `SELECT i.id, f.path AS file_path, i.callee, i.call_text, i.line,
			m.impl_key
		FROM invocations i
		JOIN files f ON f.id = i.file_id
		LEFT JOIN implementations m ON m.id = i.impl_id`,
	"v_symbol_references": `SELECT r.id, f.path AS file_path, r.name, r.kind,
			r.container_type, r.resolved_type, r.line, r.col, m.impl_key
		FROM symbol_references r
		JOIN files f ON f.id = r.file_id
		LEFT JOIN implementations m ON m.id = r.impl_id`,
	"v_scans": `SELECT s.id, s.root, s.incremental, s.started_at, s.finished_at,
			s.files_added, s.files_changed, s.files_removed, s.files_skipped, s.errors
		FROM scans s`,
}

func viewSteps() []string {
	return viewStepsFor(viewDefs)
}

// viewStepsV3 is the version 3 rebuild exactly as it shipped: the same
// set, but implementations had no end column yet. Kept frozen so the
// ladder applies cleanly when a fresh store walks through version 3.
func viewStepsV3() []string {
	defs := make(map[string]string, len(viewDefs))
	for name, def := range viewDefs {
		defs[name] = def
	}
	defs["v_implementations"] = `SELECT m.id, f.path AS file_path, m.impl_key, m.name, m.kind,
			m.returns, m.signature, m.param_count, m.access, m.modifiers,
			m.start_line, m.end_line, m.start_col,
			p.impl_key AS parent_key, t.type_key AS type_key
		FROM implementations m
		JOIN files f ON f.id = m.file_id
		LEFT JOIN implementations p ON p.id = m.parent_id
		LEFT JOIN types t ON t.id = m.type_id`
	return viewStepsFor(defs)
}

func viewStepsFor(defs map[string]string) []string {
	// Deterministic order keeps migration output stable.
	names := []string{
		"v_files", "v_types", "v_inheritance", "v_implementations", "v_variables",
		"v_lines", "v_line_usages", "v_invocations", "v_symbol_references", "v_scans",
	}
	steps := make([]string, 0, 2*len(names))
	for _, name := range names {
		steps = append(steps, "DROP VIEW IF EXISTS "+name)
		steps = append(steps, "CREATE VIEW "+name+" AS "+defs[name])
	}
	return steps
}

// applyMigrations runs every migration in (from, to] inside tx and records
// the new schema version last.
func applyMigrations(tx *sql.Tx, from, to int) error {
	for _, m := range migrations {
		if m.version <= from || m.version > to {
			continue
		}
		for _, stmt := range m.steps {
			if _, err := tx.Exec(stmt); err != nil {
				return qerr.Wrap(qerr.Migration, err, "applying schema version %d", m.version)
			}
		}
	}
	_, err := tx.Exec(
		"INSERT INTO quarry_meta (key, value) VALUES ('schema_version', ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value",
		fmt.Sprintf("%d", to),
	)
	if err != nil {
		return qerr.Wrap(qerr.Migration, err, "recording schema version %d", to)
	}
	return nil
}
