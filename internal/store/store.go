// Package store owns the single persistent SQLite knowledge base: schema
// creation and migration, transactional fact persistence, the versioned
// read-view surface, and safe bounded query execution.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/quarry-dev/quarry/internal/logging"
	"github.com/quarry-dev/quarry/internal/qerr"
)

// OwnerMarker is the value stored under the "owner" meta key, proving a
// store was created by this engine. A non-empty database without it is
// never adopted.
const OwnerMarker = "quarry"

// Store is the SQLite data access layer. Writes always run inside one
// transaction; concurrency is handled by SQLite's own locking plus bounded
// busy retries, never an application-level mutex.
type Store struct {
	db      *sql.DB
	path    string
	version int
	retry   RetryPolicy
	log     *logging.Logger
}

// Option configures a Store before it opens.
type Option func(*opts)

type opts struct {
	version     int
	busyTimeout time.Duration
	retry       RetryPolicy
	log         *logging.Logger
}

// WithVersion injects the schema version the store targets. Tests use this
// to exercise migrations between explicit versions; production callers
// keep the default CurrentSchemaVersion.
func WithVersion(v int) Option {
	return func(o *opts) { o.version = v }
}

// WithBusyTimeout sets how long reads wait on a locked database before
// SQLite surfaces SQLITE_BUSY.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *opts) { o.busyTimeout = d }
}

// WithRetryPolicy overrides the bounded retry/backoff applied on top of
// the busy timeout.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *opts) { o.retry = p }
}

// WithLogger attaches a structured logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *opts) { o.log = l }
}

// Open opens or creates the store at path. A fresh target gets the schema
// at the configured version; an existing store is gated on the ownership
// marker and migrated forward when older. A store newer than the
// configured version is refused.
func Open(path string, options ...Option) (*Store, error) {
	o := &opts{
		version:     CurrentSchemaVersion,
		busyTimeout: 5 * time.Second,
		retry:       DefaultRetryPolicy(),
		log:         logging.Discard(),
	}
	for _, opt := range options {
		opt(o)
	}

	fresh := true
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		fresh = false
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=%d",
		path, o.busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, path: path, version: o.version, retry: o.retry, log: o.log}

	if fresh {
		if err := s.initialize(); err != nil {
			db.Close()
			return nil, err
		}
		return s, nil
	}
	if err := s.adopt(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the store's file path.
func (s *Store) Path() string { return s.path }

// Version returns the schema version the store is running at.
func (s *Store) Version() int { return s.version }

// DB exposes the underlying handle for tests.
func (s *Store) DB() *sql.DB { return s.db }

// initialize creates the schema on a fresh target, all in one transaction.
func (s *Store) initialize() error {
	err := s.withRetry("initialize", func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()

		if err := applyMigrations(tx, 0, s.version); err != nil {
			return err
		}
		if err := writeMeta(tx, "owner", OwnerMarker); err != nil {
			return err
		}
		if err := writeMeta(tx, "store_id", uuid.NewString()); err != nil {
			return err
		}
		if err := writeMeta(tx, "created_at", time.Now().UTC().Format(time.RFC3339)); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return err
	}
	s.log.Info("created store", logging.Fields{"path": s.path, "schema_version": s.version})
	return nil
}

// adopt gates an existing database: it must carry this engine's ownership
// marker or match the recognized legacy layout, and must not be newer than
// the configured version. Older stores migrate forward transactionally.
func (s *Store) adopt() error {
	stored, owned, err := s.storedState()
	if err != nil {
		return err
	}
	if !owned {
		legacy, err := s.isLegacyLayout()
		if err != nil {
			return err
		}
		if !legacy {
			return qerr.New(qerr.Integrity,
				"%s is not a quarry store; refusing to adopt a foreign database", s.path)
		}
		stored = legacyVersion
	}
	if stored > s.version {
		return qerr.New(qerr.Integrity,
			"store %s is at schema version %d, newer than supported version %d", s.path, stored, s.version)
	}
	if stored == s.version {
		return nil
	}
	return s.migrate(stored)
}

// migrate applies all pending migration steps in one transaction. Either
// every step succeeds and the new version is recorded, or everything rolls
// back and the prior version remains usable.
func (s *Store) migrate(from int) error {
	err := s.withRetry("migrate", func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()

		// Adopted legacy stores predate the meta table.
		if _, err := tx.Exec(
			"CREATE TABLE IF NOT EXISTS quarry_meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)",
		); err != nil {
			return fmt.Errorf("create meta table: %w", err)
		}
		if err := applyMigrations(tx, from, s.version); err != nil {
			return err
		}
		if err := writeMeta(tx, "owner", OwnerMarker); err != nil {
			return err
		}
		var id string
		err = tx.QueryRow("SELECT value FROM quarry_meta WHERE key='store_id'").Scan(&id)
		if err == sql.ErrNoRows {
			if err := writeMeta(tx, "store_id", uuid.NewString()); err != nil {
				return err
			}
		} else if err != nil {
			return fmt.Errorf("read store id: %w", err)
		}
		return tx.Commit()
	})
	if err != nil {
		if _, typed := qerr.CodeOf(err); typed {
			return err
		}
		return qerr.Wrap(qerr.Migration, err, "migrating store from version %d to %d", from, s.version)
	}
	s.log.Info("migrated store", logging.Fields{"from": from, "to": s.version})
	return nil
}

// storedState reads the ownership marker and schema version. owned=false
// means the meta table or marker is absent.
func (s *Store) storedState() (version int, owned bool, err error) {
	var exists int
	err = s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='quarry_meta'",
	).Scan(&exists)
	if err != nil {
		return 0, false, fmt.Errorf("inspect store: %w", err)
	}
	if exists == 0 {
		return 0, false, nil
	}

	var owner string
	err = s.db.QueryRow("SELECT value FROM quarry_meta WHERE key='owner'").Scan(&owner)
	if err == sql.ErrNoRows || (err == nil && owner != OwnerMarker) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read ownership marker: %w", err)
	}

	var stored string
	err = s.db.QueryRow("SELECT value FROM quarry_meta WHERE key='schema_version'").Scan(&stored)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	if _, err := fmt.Sscanf(stored, "%d", &version); err != nil {
		return 0, false, fmt.Errorf("parse schema version %q: %w", stored, err)
	}
	return version, true, nil
}

// isLegacyLayout recognizes the version-1 layout written before the meta
// table existed: the core fact tables with nothing foreign alongside.
func (s *Store) isLegacyLayout() (bool, error) {
	rows, err := s.db.Query("SELECT name FROM sqlite_master WHERE type='table'")
	if err != nil {
		return false, fmt.Errorf("inspect tables: %w", err)
	}
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, fmt.Errorf("scan table name: %w", err)
		}
		if strings.HasPrefix(name, "sqlite_") {
			continue
		}
		if !legacyTables[name] {
			return false, nil
		}
		found[name] = true
	}
	if err := rows.Err(); err != nil {
		return false, err
	}
	return found["files"] && found["implementations"], nil
}

// GetMeta reads one metadata value; "" when absent.
func (s *Store) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM quarry_meta WHERE key=?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get meta %q: %w", key, err)
	}
	return value, nil
}

func writeMeta(tx *sql.Tx, key, value string) error {
	_, err := tx.Exec(
		"INSERT INTO quarry_meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("write meta %q: %w", key, err)
	}
	return nil
}
