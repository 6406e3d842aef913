package store

import (
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/quarry-dev/quarry/internal/logging"
	"github.com/quarry-dev/quarry/internal/qerr"
)

// RetryPolicy bounds how the store reacts to SQLITE_BUSY beyond the
// connection's busy timeout. Backoff doubles per attempt up to MaxBackoff.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy is what Open installs: a handful of attempts with
// short exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseBackoff: 50 * time.Millisecond,
		MaxBackoff:  2 * time.Second,
	}
}

// withRetry runs fn, retrying on lock contention per the policy. Any other
// error returns immediately. Exhausted retries surface as a Concurrency
// error.
func (s *Store) withRetry(op string, fn func() error) error {
	backoff := s.retry.BaseBackoff
	var last error
	for attempt := 1; attempt <= s.retry.MaxAttempts; attempt++ {
		last = fn()
		if last == nil {
			return nil
		}
		if !isBusy(last) {
			return last
		}
		if attempt == s.retry.MaxAttempts {
			break
		}
		s.log.Warn("database locked, retrying", logging.Fields{
			"op": op, "attempt": attempt, "backoff_ms": backoff.Milliseconds(),
		})
		time.Sleep(backoff)
		backoff *= 2
		if backoff > s.retry.MaxBackoff {
			backoff = s.retry.MaxBackoff
		}
	}
	return qerr.Wrap(qerr.Concurrency, last,
		"%s: database still locked after %d attempts", op, s.retry.MaxAttempts)
}

func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}
