package qerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	err := New(Validation, "bad root %q", "x")
	assert.Equal(t, `[VALIDATION] bad root "x"`, err.Error())

	cause := errors.New("disk full")
	wrapped := Wrap(Migration, cause, "applying schema version %d", 2)
	assert.Equal(t, "[MIGRATION] applying schema version 2: disk full", wrapped.Error())
	assert.Equal(t, cause, errors.Unwrap(wrapped))
}

func TestCodeOf(t *testing.T) {
	err := New(Timeout, "too slow")

	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, Timeout, code)

	// Codes survive wrapping by plain fmt errors.
	code, ok = CodeOf(fmt.Errorf("outer: %w", err))
	require.True(t, ok)
	assert.Equal(t, Timeout, code)

	_, ok = CodeOf(errors.New("untyped"))
	assert.False(t, ok)
	_, ok = CodeOf(nil)
	assert.False(t, ok)
}

func TestIs(t *testing.T) {
	err := Wrap(Concurrency, errors.New("locked"), "persist")
	assert.True(t, Is(err, Concurrency))
	assert.False(t, Is(err, Timeout))
	assert.False(t, Is(nil, Concurrency))
}
