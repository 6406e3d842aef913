package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/quarry-dev/quarry/internal/qerr"
	"github.com/quarry-dev/quarry/internal/sqlguard"
)

// ExecuteQuery validates and runs one read-only query with a row cap and a
// wall-clock budget. A capped result sets Truncated rather than erroring.
func (s *Store) ExecuteQuery(ctx context.Context, query string, maxRows int, timeout time.Duration) (*QueryResult, error) {
	if err := sqlguard.Validate(query); err != nil {
		return nil, qerr.Wrap(qerr.Validation, err, "rejected query")
	}
	if maxRows <= 0 {
		maxRows = 1000
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, queryError(ctx, err, timeout)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	result := &QueryResult{Columns: dedupeColumns(cols)}
	scratch := make([]any, len(cols))
	for i := range scratch {
		scratch[i] = new(any)
	}

	for rows.Next() {
		if len(result.Rows) == maxRows {
			result.Truncated = true
			break
		}
		if err := rows.Scan(scratch...); err != nil {
			return nil, queryError(ctx, err, timeout)
		}
		row := make([]any, len(cols))
		for i, cell := range scratch {
			v := *(cell.(*any))
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[i] = v
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError(ctx, err, timeout)
	}
	result.Elapsed = time.Since(started)
	return result, nil
}

// dedupeColumns keeps result column names unique so callers can build maps
// keyed by name: a repeated name gets a _2, _3... suffix.
func dedupeColumns(cols []string) []string {
	seen := map[string]int{}
	out := make([]string, len(cols))
	for i, name := range cols {
		seen[name]++
		if seen[name] == 1 {
			out[i] = name
			continue
		}
		candidate := fmt.Sprintf("%s_%d", name, seen[name])
		for seen[candidate] > 0 {
			seen[name]++
			candidate = fmt.Sprintf("%s_%d", name, seen[name])
		}
		seen[candidate]++
		out[i] = candidate
	}
	return out
}

func queryError(ctx context.Context, err error, timeout time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return qerr.New(qerr.Timeout, "query exceeded %s budget", timeout)
	}
	if isBusy(err) {
		return qerr.Wrap(qerr.Concurrency, err, "query hit a locked database")
	}
	return fmt.Errorf("execute query: %w", err)
}

// DescribeSchema lists every view of the read surface with its columns, in
// name order.
func (s *Store) DescribeSchema(ctx context.Context) ([]ViewSchema, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='view' AND name LIKE 'v\_%' ESCAPE '\' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list views: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan view name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	schemas := make([]ViewSchema, 0, len(names))
	for _, name := range names {
		cols, err := s.viewColumns(ctx, name)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, ViewSchema{Name: name, Kind: "view", Columns: cols})
	}
	return schemas, nil
}

func (s *Store) viewColumns(ctx context.Context, view string) ([]ViewColumn, error) {
	// View names come from sqlite_master, not user input, but quoting
	// keeps PRAGMA table_info well-formed regardless.
	quoted := `"` + strings.ReplaceAll(view, `"`, `""`) + `"`
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info("+quoted+")")
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", view, err)
	}
	defer rows.Close()

	var cols []ViewColumn
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notnull    int
			dfltValue  sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dfltValue, &primaryKey); err != nil {
			return nil, fmt.Errorf("scan column of %s: %w", view, err)
		}
		cols = append(cols, ViewColumn{Name: name, Type: typ})
	}
	return cols, rows.Err()
}
