package quarry

import (
	"fmt"
	"runtime"
	"time"

	"github.com/quarry-dev/quarry/internal/extract"
	"github.com/quarry-dev/quarry/internal/logging"
	"github.com/quarry-dev/quarry/internal/store"
)

// Engine orchestrates the quarry pipeline: root resolution, change
// detection, parallel extraction, single-writer persistence, and bounded
// query access.
type Engine struct {
	store    *store.Store
	resolver extract.SemanticResolver
	log      *logging.Logger

	// workers bounds the extraction pool. 0 means runtime.NumCPU().
	workers int
}

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	resolver    extract.SemanticResolver
	log         *logging.Logger
	workers     int
	version     int
	busyTimeout time.Duration
	retry       *store.RetryPolicy
}

// WithParallel bounds the extraction worker pool. n < 1 restores the
// default of runtime.NumCPU().
func WithParallel(n int) Option {
	return func(c *engineConfig) { c.workers = n }
}

// WithLogger attaches a structured logger to the engine and its store.
func WithLogger(l *logging.Logger) Option {
	return func(c *engineConfig) { c.log = l }
}

// WithResolver installs a semantic resolver consulted during identifier
// classification. Without one, classification is purely syntactic.
func WithResolver(r extract.SemanticResolver) Option {
	return func(c *engineConfig) { c.resolver = r }
}

// WithSchemaVersion overrides the schema version the store targets.
// Intended for tests exercising migration paths.
func WithSchemaVersion(v int) Option {
	return func(c *engineConfig) { c.version = v }
}

// WithBusyTimeout sets the SQLite busy timeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(c *engineConfig) { c.busyTimeout = d }
}

// WithRetryPolicy overrides the store's lock-contention retry policy.
func WithRetryPolicy(p store.RetryPolicy) Option {
	return func(c *engineConfig) { c.retry = &p }
}

// New creates an Engine backed by a SQLite store at dbPath, creating or
// migrating the store as needed.
func New(dbPath string, opts ...Option) (*Engine, error) {
	c := &engineConfig{
		resolver: extract.NoopResolver(),
		log:      logging.Discard(),
		version:  store.CurrentSchemaVersion,
	}
	for _, opt := range opts {
		opt(c)
	}

	storeOpts := []store.Option{
		store.WithVersion(c.version),
		store.WithLogger(c.log),
	}
	if c.busyTimeout > 0 {
		storeOpts = append(storeOpts, store.WithBusyTimeout(c.busyTimeout))
	}
	if c.retry != nil {
		storeOpts = append(storeOpts, store.WithRetryPolicy(*c.retry))
	}

	s, err := store.Open(dbPath, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("quarry: open store: %w", err)
	}

	return &Engine{
		store:    s,
		resolver: c.resolver,
		log:      c.log,
		workers:  c.workers,
	}, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *Store {
	return e.store
}

func (e *Engine) workerCount(items int) int {
	n := e.workers
	if n < 1 {
		n = runtime.NumCPU()
	}
	if n > items {
		n = items
	}
	if n < 1 {
		n = 1
	}
	return n
}
