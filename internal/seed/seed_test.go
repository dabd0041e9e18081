package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chimera/internal/api"
	"chimera/internal/artifact"
	"chimera/internal/database"
	"chimera/internal/registry"
)

func newStores(t *testing.T) (*registry.Store, *artifact.Store) {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	names, err := database.NewNames("", nil)
	require.NoError(t, err)
	reg := registry.NewStore(db, names)
	require.NoError(t, reg.CreateTables(ctx))
	return reg, artifact.NewStore(db, names)
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	reg, artifacts := newStores(t)

	needed, err := IsNeeded(ctx, reg)
	require.NoError(t, err)
	assert.True(t, needed)

	require.NoError(t, Run(ctx, reg, artifacts))

	needed, err = IsNeeded(ctx, reg)
	require.NoError(t, err)
	assert.False(t, needed)

	for _, name := range []string{"utility_greet", "utility_add", "sales_by_region"} {
		rec, err := reg.GetTool(ctx, name, api.DefaultPersona)
		require.NoError(t, err, name)
		assert.NotEmpty(t, rec.ArtifactDigest, name)
		assert.Equal(t, api.ToolStateCreated, rec.State, name)

		art, err := artifacts.GetVerified(ctx, rec.ArtifactDigest)
		require.NoError(t, err, name)
		assert.NotEmpty(t, art.Body, name)
	}

	res, err := reg.GetResource(ctx, "chimera://memo/operations", api.DefaultPersona)
	require.NoError(t, err)
	assert.False(t, res.Dynamic)
	assert.NotEmpty(t, res.StaticBody)

	prompt, err := reg.GetPrompt(ctx, "utility_review", api.DefaultPersona)
	require.NoError(t, err)
	assert.Len(t, prompt.Arguments, 2)

	// Re-running is a no-op catalog-wise; every write is an upsert.
	require.NoError(t, Run(ctx, reg, artifacts))
	n, err := reg.CountTools(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
