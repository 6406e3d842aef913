package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/quarry-dev/quarry/internal/extract"
	"github.com/quarry-dev/quarry/internal/logging"
)

// KnownDigests returns path→digest for every stored file, the input to
// incremental change detection.
func (s *Store) KnownDigests(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT path, digest FROM files")
	if err != nil {
		return nil, fmt.Errorf("load digests: %w", err)
	}
	defer rows.Close()

	known := map[string]string{}
	for rows.Next() {
		var path, digest string
		if err := rows.Scan(&path, &digest); err != nil {
			return nil, fmt.Errorf("scan digest row: %w", err)
		}
		known[path] = digest
	}
	return known, rows.Err()
}

// PersistBatch writes one scan's changes in a single transaction. For a
// full scan everything absent from the batch is removed first; for an
// incremental scan only RemovedPaths and the re-extracted files are
// touched. Cascading foreign keys take care of the dependent fact rows.
func (s *Store) PersistBatch(ctx context.Context, batch *Batch) error {
	started := time.Now()
	err := s.withRetry("persist", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()

		if batch.Full {
			if _, err := tx.ExecContext(ctx, "DELETE FROM files"); err != nil {
				return fmt.Errorf("clear store: %w", err)
			}
		} else {
			for _, path := range batch.RemovedPaths {
				if _, err := tx.ExecContext(ctx, "DELETE FROM files WHERE path=?", path); err != nil {
					return fmt.Errorf("remove %s: %w", path, err)
				}
			}
		}

		for _, facts := range batch.Files {
			if err := insertFile(ctx, tx, facts); err != nil {
				return err
			}
		}

		if err := insertScan(ctx, tx, &batch.Bookkeeping); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return err
	}
	s.log.Debug("persisted batch", logging.Fields{
		"files":      len(batch.Files),
		"removed":    len(batch.RemovedPaths),
		"elapsed_ms": time.Since(started).Milliseconds(),
	})
	return nil
}

// insertFile replaces one file's fact rows. Delete-then-insert keeps the
// write path identical for new and changed files.
func insertFile(ctx context.Context, tx *sql.Tx, f *extract.FileFacts) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM files WHERE path=?", f.Path); err != nil {
		return fmt.Errorf("replace %s: %w", f.Path, err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO files (path, language, digest, line_count, scanned_at)
		 VALUES (?, ?, ?, ?, ?)`,
		f.Path, f.Language, f.Digest, f.LineCount, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert file %s: %w", f.Path, err)
	}
	fileID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("file id for %s: %w", f.Path, err)
	}

	typeIDs := make(map[string]int64, len(f.Types))
	for _, t := range f.Types {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO types (file_id, type_key, name, kind, scope, fqn, access, modifiers, line)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			fileID, t.Key, t.Name, string(t.Kind), t.Namespace, t.FQN,
			t.Access, strings.Join(t.Modifiers, " "), t.Line)
		if err != nil {
			return fmt.Errorf("insert type %s: %w", t.Key, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		typeIDs[t.Key] = id
	}

	position := map[string]int{}
	for _, in := range f.Inheritance {
		typeID, ok := typeIDs[in.TypeKey]
		if !ok {
			return fmt.Errorf("inheritance for unknown type %s in %s", in.TypeKey, f.Path)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO inheritance (type_id, base_name, relation, position)
			 VALUES (?, ?, ?, ?)`,
			typeID, in.BaseName, string(in.Relation), position[in.TypeKey]); err != nil {
			return fmt.Errorf("insert inheritance %s->%s: %w", in.TypeKey, in.BaseName, err)
		}
		position[in.TypeKey]++
	}

	// Implementations arrive in pre-order, so a parent's id is always
	// known before its children insert.
	implIDs := make(map[string]int64, len(f.Implementations))
	for _, m := range f.Implementations {
		var parentID, typeID any
		if m.ParentKey != "" {
			id, ok := implIDs[m.ParentKey]
			if !ok {
				return fmt.Errorf("implementation %s references unknown parent %s in %s",
					m.Key, m.ParentKey, f.Path)
			}
			parentID = id
		}
		if m.TypeKey != "" {
			if id, ok := typeIDs[m.TypeKey]; ok {
				typeID = id
			}
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO implementations
			   (file_id, impl_key, parent_id, type_id, name, kind, returns,
			    signature, param_count, access, modifiers, start_line, end_line, start_col, end_col)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			fileID, m.Key, parentID, typeID, m.Name, string(m.Kind), m.ReturnType,
			m.Signature, m.ParamCount, m.Access, strings.Join(m.Modifiers, " "),
			m.StartLine, m.EndLine, m.StartCol, m.EndCol)
		if err != nil {
			return fmt.Errorf("insert implementation %s: %w", m.Key, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		implIDs[m.Key] = id
	}

	varIDs := make(map[string]int64, len(f.Variables))
	for _, v := range f.Variables {
		implID, ok := implIDs[v.ImplKey]
		if !ok {
			return fmt.Errorf("variable %s owned by unknown implementation %s in %s",
				v.Key, v.ImplKey, f.Path)
		}
		var declared any
		if v.DeclaredType != "" {
			declared = v.DeclaredType
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO variables (impl_id, var_key, name, kind, type, line)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			implID, v.Key, v.Name, string(v.Kind), declared, v.Line)
		if err != nil {
			return fmt.Errorf("insert variable %s: %w", v.Key, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		varIDs[v.Key] = id
	}

	lineIDs := make(map[int]int64, len(f.Lines))
	for _, l := range f.Lines {
		var implID any
		if l.ImplKey != "" {
			if id, ok := implIDs[l.ImplKey]; ok {
				implID = id
			}
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO lines (file_id, impl_id, line, depth, var_count, text)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			fileID, implID, l.LineNo, l.Depth, l.VarCount, l.Text)
		if err != nil {
			return fmt.Errorf("insert line %d of %s: %w", l.LineNo, f.Path, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		lineIDs[l.LineNo] = id
	}

	for _, u := range f.LineUsages {
		lineID, ok := lineIDs[u.LineNo]
		if !ok {
			return fmt.Errorf("usage on unknown line %d of %s", u.LineNo, f.Path)
		}
		varID, ok := varIDs[u.VariableKey]
		if !ok {
			return fmt.Errorf("usage of unknown variable %s in %s", u.VariableKey, f.Path)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO line_usages (line_id, var_id) VALUES (?, ?)`,
			lineID, varID); err != nil {
			return fmt.Errorf("insert usage %s@%d: %w", u.VariableKey, u.LineNo, err)
		}
	}

	for _, inv := range f.Invocations {
		var implID any
		if inv.ImplKey != "" {
			if id, ok := implIDs[inv.ImplKey]; ok {
				implID = id
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO invocations (file_id, impl_id, callee, call_text, line)
			 VALUES (?, ?, ?, ?, ?)`,
			fileID, implID, inv.Callee, inv.CallText, inv.Line); err != nil {
			return fmt.Errorf("insert invocation %s@%d: %w", inv.Callee, inv.Line, err)
		}
	}

	for _, r := range f.References {
		var implID any
		if r.ImplKey != "" {
			if id, ok := implIDs[r.ImplKey]; ok {
				implID = id
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO symbol_references
			   (file_id, impl_id, name, kind, container_type, resolved_type, line, col)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			fileID, implID, r.Name, string(r.Kind), r.ContainerType, r.ResolvedType,
			r.Line, r.Col); err != nil {
			return fmt.Errorf("insert reference %s@%d: %w", r.Name, r.Line, err)
		}
	}
	return nil
}

func insertScan(ctx context.Context, tx *sql.Tx, rec *ScanRecord) error {
	incremental := 0
	if rec.Incremental {
		incremental = 1
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO scans
		   (root, incremental, started_at, finished_at,
		    files_added, files_changed, files_removed, files_skipped, errors)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Root, incremental,
		rec.StartedAt.UTC().Format(time.RFC3339),
		rec.FinishedAt.UTC().Format(time.RFC3339),
		rec.FilesAdded, rec.FilesChanged, rec.FilesRemoved, rec.FilesSkipped, rec.Errors)
	if err != nil {
		return fmt.Errorf("insert scan record: %w", err)
	}
	return nil
}
