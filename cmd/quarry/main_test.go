package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-dev/quarry"
)

func TestValidateFormat(t *testing.T) {
	assert.NoError(t, validateFormat("json"))
	assert.NoError(t, validateFormat("text"))
	assert.Error(t, validateFormat("yaml"))
	assert.Error(t, validateFormat(""))
}

func TestNewCLIQuery_NormalizesNilRows(t *testing.T) {
	q := newCLIQuery(&quarry.QueryResult{Columns: []string{"a"}})
	require.NotNil(t, q.Rows)
	assert.Zero(t, q.RowCount)
}

func TestFormatQueryText(t *testing.T) {
	var buf bytes.Buffer
	formatQueryText(&buf, CLIQuery{
		Columns:   []string{"name", "kind"},
		Rows:      [][]any{{"Svc", "class"}, {nil, "enum"}},
		RowCount:  2,
		Truncated: true,
	})
	out := buf.String()
	assert.Contains(t, out, "name")
	assert.Contains(t, out, "Svc")
	assert.Contains(t, out, "NULL")
	assert.Contains(t, out, "Truncated at 2 rows")
}

func TestFormatScanText(t *testing.T) {
	var buf bytes.Buffer
	formatScanText(&buf, newCLIScan(&quarry.ScanResult{
		Discovered: 3, Scanned: 2, Unchanged: 1,
		IndexedEntities: 40, Elapsed: 12 * time.Millisecond,
		FileErrors: []quarry.FileError{{Path: "Bad.cs", Err: assert.AnError}},
	}))
	out := buf.String()
	assert.Contains(t, out, "Discovered: 3")
	assert.Contains(t, out, "Bad.cs")
}
