package quarry

import (
	"context"
	"time"
)

// Query validates and executes one read-only SQL statement against the
// store's views. Results are capped at maxRows (capped results set
// Truncated) and the call is bounded by timeout. maxRows <= 0 and
// timeout <= 0 select the store defaults.
//
// Rejected statements, exceeded budgets, and lock contention surface as
// typed errors carrying ErrValidation, ErrTimeout, and ErrConcurrency.
func (e *Engine) Query(ctx context.Context, sql string, maxRows int, timeout time.Duration) (*QueryResult, error) {
	return e.store.ExecuteQuery(ctx, sql, maxRows, timeout)
}

// DescribeSchema returns the queryable read surface: every view with its
// columns, plus the schema version the store runs at.
func (e *Engine) DescribeSchema(ctx context.Context) (*SchemaDescription, error) {
	views, err := e.store.DescribeSchema(ctx)
	if err != nil {
		return nil, err
	}
	return &SchemaDescription{
		SchemaVersion: e.store.Version(),
		Views:         views,
	}, nil
}
