package specfile

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

func newTestStores(t *testing.T) (*registry.Store, *artifact.Store) {
	t.Helper()
	db, err := database.Open(context.Background(), "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	names, err := database.NewNames("", nil)
	require.NoError(t, err)
	reg := registry.NewStore(db, names)
	require.NoError(t, reg.CreateTables(context.Background()))
	return reg, artifact.NewStore(db, names)
}

func TestLoader_ApplyAndExportRoundTrip(t *testing.T) {
	ctx := context.Background()
	reg, artifacts := newTestStores(t)
	loader := NewLoader(reg, artifacts)

	f, err := Parse([]byte(sampleSpec))
	require.NoError(t, err)

	sum, err := loader.Apply(ctx, f, false)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Tools)
	assert.Equal(t, 1, sum.Resources)
	assert.Equal(t, 1, sum.Prompts)
	assert.Equal(t, 1, sum.Macros)

	// Names are stored group-prefixed.
	rec, err := reg.GetTool(ctx, "sales_by_region", api.DefaultPersona)
	require.NoError(t, err)
	assert.Equal(t, "sales", rec.Group)
	assert.Equal(t, api.ToolStateCreated, rec.State)
	art, err := artifacts.Get(ctx, rec.ArtifactDigest)
	require.NoError(t, err)
	assert.Contains(t, art.Body, "GROUP BY region")

	exported, err := loader.Export(ctx, "")
	require.NoError(t, err)
	require.Len(t, exported.Tools, 1)
	assert.Equal(t, "by_region", exported.Tools[0].Name)
	assert.Equal(t, f.Tools[0].Code, exported.Tools[0].Code)
	assert.Equal(t, f.Tools[0].Parameters, exported.Tools[0].Parameters)
	assert.Empty(t, exported.Tools[0].Persona)

	require.Len(t, exported.Resources, 1)
	assert.Equal(t, f.Resources[0].Content, exported.Resources[0].Content)
	require.Len(t, exported.Prompts, 1)
	assert.Equal(t, f.Prompts[0].Template, exported.Prompts[0].Template)
	require.Len(t, exported.Macros, 1)

	// Re-applying the exported file is an idempotent upsert.
	sum, err = loader.Apply(ctx, exported, false)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Tools)
	count, err := reg.CountTools(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestLoader_ApplyDynamicResource(t *testing.T) {
	ctx := context.Background()
	reg, artifacts := newTestStores(t)
	loader := NewLoader(reg, artifacts)

	f := &File{Resources: []ResourceSpec{{
		URI:     "chimera://status/live",
		Group:   "ops",
		Name:    "live_status",
		Dynamic: true,
		Content: `status = Tool(run = lambda args: "all good")`,
	}}}
	_, err := loader.Apply(ctx, f, false)
	require.NoError(t, err)

	rec, err := reg.GetResource(ctx, "chimera://status/live", api.DefaultPersona)
	require.NoError(t, err)
	assert.True(t, rec.Dynamic)
	assert.Empty(t, rec.StaticBody)
	require.NotEmpty(t, rec.ArtifactDigest)

	exported, err := loader.Export(ctx, "")
	require.NoError(t, err)
	require.Len(t, exported.Resources, 1)
	assert.Equal(t, f.Resources[0].Content, exported.Resources[0].Content)
	assert.True(t, exported.Resources[0].Dynamic)
}

func TestLoader_PrecheckBlocksWholeApply(t *testing.T) {
	ctx := context.Background()
	reg, artifacts := newTestStores(t)
	loader := NewLoader(reg, artifacts)

	f := &File{Tools: []ToolSpec{
		{Name: "good", Group: "g", Kind: "select", Code: "SELECT 1"},
		{Name: "bad", Group: "g", Kind: "select", Code: "DELETE FROM users"},
	}}
	_, err := loader.Apply(ctx, f, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrNotReadOnly)

	// Nothing was written, including the entry that would have passed.
	count, err := reg.CountTools(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestLoader_PrecheckValidatesScripts(t *testing.T) {
	ctx := context.Background()
	reg, artifacts := newTestStores(t)
	loader := NewLoader(reg, artifacts)

	f := &File{Tools: []ToolSpec{
		{Name: "bad", Group: "g", Kind: "script", Code: `t = Tool(run = lambda args: eval(args["x"]))`},
	}}
	_, err := loader.Apply(ctx, f, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrPolicyViolation)
	count, err := reg.CountTools(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestLoader_ApplyWithClear(t *testing.T) {
	ctx := context.Background()
	reg, artifacts := newTestStores(t)
	loader := NewLoader(reg, artifacts)

	first := &File{Tools: []ToolSpec{{Name: "old", Group: "g", Kind: "select", Code: "SELECT 1"}}}
	_, err := loader.Apply(ctx, first, false)
	require.NoError(t, err)

	second := &File{Tools: []ToolSpec{{Name: "new", Group: "g", Kind: "select", Code: "SELECT 2"}}}
	_, err = loader.Apply(ctx, second, true)
	require.NoError(t, err)

	_, err = reg.GetTool(ctx, "g_old", api.DefaultPersona)
	assert.ErrorIs(t, err, api.ErrToolNotFound)
	_, err = reg.GetTool(ctx, "g_new", api.DefaultPersona)
	assert.NoError(t, err)
}
