package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chimera/internal/api"
	"chimera/internal/database"
	"chimera/internal/registry"
)

func newTestDB(t *testing.T) (*database.DB, *database.Names) {
	t.Helper()
	db, err := database.Open(context.Background(), "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	names, err := database.NewNames("", nil)
	require.NoError(t, err)
	require.NoError(t, registry.NewStore(db, names).CreateTables(context.Background()))
	return db, names
}

func TestLogger_SuccessAndRecent(t *testing.T) {
	ctx := context.Background()
	db, names := newTestDB(t)
	logger := NewLogger(db, names)

	logger.Success(ctx, "sales_by_region", api.DefaultPersona,
		map[string]any{"since": "2026-01-01"}, `[{"region":"EMEA"}]`)
	logger.Success(ctx, "utility_add", api.DefaultPersona, nil, "3")

	entries, err := logger.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Most recent first.
	assert.Equal(t, "utility_add", entries[0].ToolName)
	assert.Equal(t, api.StatusSuccess, entries[0].Status)
	assert.Equal(t, "{}", entries[0].Arguments)
	assert.Equal(t, "sales_by_region", entries[1].ToolName)
	assert.JSONEq(t, `{"since":"2026-01-01"}`, entries[1].Arguments)
}

func TestLogger_SuccessTruncatesSummary(t *testing.T) {
	ctx := context.Background()
	db, names := newTestDB(t)
	logger := NewLogger(db, names)

	logger.Success(ctx, "big", api.DefaultPersona, nil, strings.Repeat("x", SummaryMaxLen*2))
	entries, err := logger.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Len(t, entries[0].ResultSummary, SummaryMaxLen)
	assert.True(t, strings.HasSuffix(entries[0].ResultSummary, truncationMarker))
}

func TestLogger_FailureKeepsFullTrace(t *testing.T) {
	ctx := context.Background()
	db, names := newTestDB(t)
	logger := NewLogger(db, names)

	longErr := errors.New(strings.Repeat("e", SummaryMaxLen*3))
	logger.Failure(ctx, "fragile", "analyst", map[string]any{"x": 1}, longErr)

	entry, err := logger.LastFailure(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "fragile", entry.ToolName)
	assert.Equal(t, "analyst", entry.Persona)
	assert.Equal(t, api.StatusFailure, entry.Status)
	assert.Equal(t, failureSummary, entry.ResultSummary)
	assert.Len(t, entry.ErrorTrace, SummaryMaxLen*3)
}

func TestLogger_LastFailure(t *testing.T) {
	ctx := context.Background()
	db, names := newTestDB(t)
	logger := NewLogger(db, names)

	// No failures recorded yet: nil entry, nil error.
	entry, err := logger.LastFailure(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, entry)

	logger.Failure(ctx, "a", api.DefaultPersona, nil, fmt.Errorf("first"))
	logger.Failure(ctx, "b", api.DefaultPersona, nil, fmt.Errorf("second"))
	logger.Success(ctx, "c", api.DefaultPersona, nil, "fine")

	entry, err = logger.LastFailure(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "b", entry.ToolName)

	entry, err = logger.LastFailure(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "first", entry.ErrorTrace)

	entry, err = logger.LastFailure(ctx, "never_failed")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestSerializeArguments(t *testing.T) {
	assert.Equal(t, "{}", serializeArguments(nil))
	assert.JSONEq(t, `{"a":1}`, serializeArguments(map[string]any{"a": 1}))
	// Unserializable values degrade to a marker instead of failing the audit.
	out := serializeArguments(map[string]any{"ch": make(chan int)})
	assert.Contains(t, out, "_serialization_error")
}

func TestNotebook_AppendAndGet(t *testing.T) {
	ctx := context.Background()
	db, names := newTestDB(t)
	nb := NewNotebook(db, names)

	content, err := nb.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, content)

	require.NoError(t, nb.Append(ctx, "lessons", "always bind parameters"))
	require.NoError(t, nb.Append(ctx, "lessons", "check the persona"))

	content, err = nb.Get(ctx, "lessons")
	require.NoError(t, err)
	lines := strings.Split(content, "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "always bind parameters")
	assert.Contains(t, lines[1], "check the persona")

	// The second append archived the first content in the history table.
	var history int
	err = db.QueryRowxContext(ctx,
		"SELECT count(*) FROM notebook_history WHERE key = 'lessons'").Scan(&history)
	require.NoError(t, err)
	assert.Equal(t, 1, history)
}

func TestNotebook_RecordFailure(t *testing.T) {
	ctx := context.Background()
	db, names := newTestDB(t)
	nb := NewNotebook(db, names)

	nb.RecordFailure(ctx, "sales_by_region", fmt.Errorf("column gone"))
	content, err := nb.Get(ctx, "sales_by_region_error")
	require.NoError(t, err)
	assert.Contains(t, content, "column gone")
}
