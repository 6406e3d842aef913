package quarry

import "github.com/quarry-dev/quarry/internal/qerr"

// Error is the typed failure every Engine operation may return. Aliased
// from the internal taxonomy so callers can match on stable codes.
type Error = qerr.Error

// ErrorCode identifies a failure class.
type ErrorCode = qerr.Code

const (
	ErrValidation  = qerr.Validation
	ErrExtraction  = qerr.Extraction
	ErrConcurrency = qerr.Concurrency
	ErrTimeout     = qerr.Timeout
	ErrIntegrity   = qerr.Integrity
	ErrMigration   = qerr.Migration
)

// ErrorCodeOf extracts the code from err when it is (or wraps) an Error.
func ErrorCodeOf(err error) (ErrorCode, bool) { return qerr.CodeOf(err) }

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool { return qerr.Is(err, code) }
