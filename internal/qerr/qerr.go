// Package qerr defines the stable error taxonomy shared by the engine's
// components. Every surfaced failure carries a code and a human-readable
// message.
package qerr

import (
	"errors"
	"fmt"
)

// Code identifies a failure class.
type Code string

const (
	// Validation covers bad query text, a bad root, or a path escaping
	// the declared root. Nothing is persisted.
	Validation Code = "VALIDATION"
	// Extraction covers a single file that failed to parse or analyze.
	// Localized; never aborts the batch.
	Extraction Code = "EXTRACTION"
	// Concurrency covers lock retries exhausted after bounded backoff.
	Concurrency Code = "CONCURRENCY"
	// Timeout covers a query exceeding its wall-clock budget. Read-only,
	// no side effects; distinct from Concurrency.
	Timeout Code = "TIMEOUT"
	// Integrity covers writing into a non-owned or too-new store. Fails
	// before any mutation.
	Integrity Code = "INTEGRITY"
	// Migration covers a mid-migration fault; the store rolls back to the
	// prior version.
	Migration Code = "MIGRATION"
)

// Error is a typed failure with a stable code.
type Error struct {
	Code    Code
	Message string
	cause   error
}

// New creates an Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error wrapping a cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// CodeOf extracts the failure code, if err is (or wraps) a typed Error.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
