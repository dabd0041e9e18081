package metatools

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chimera/internal/api"
	"chimera/internal/artifact"
	"chimera/internal/audit"
	"chimera/internal/dashboard"
	"chimera/internal/database"
	"chimera/internal/dispatch"
	"chimera/internal/executor"
	"chimera/internal/registry"
	"chimera/internal/sqltmpl"
)

type fixture struct {
	engine   *dispatch.Dispatcher
	provider *Provider
	registry *registry.Store
	data     *database.DataSession
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithDashboards(t, nil)
}

func newFixtureWithDashboards(t *testing.T, dashboards *dashboard.Manager) *fixture {
	t.Helper()
	ctx := context.Background()

	metaDB, err := database.Open(ctx, "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = metaDB.Close() })
	names, err := database.NewNames("", nil)
	require.NoError(t, err)
	reg := registry.NewStore(metaDB, names)
	require.NoError(t, reg.CreateTables(ctx))
	artifacts := artifact.NewStore(metaDB, names)

	data, err := database.NewDataSession(ctx, "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(data.Close)
	dataDB, err := data.Get()
	require.NoError(t, err)
	_, err = dataDB.ExecContext(ctx, `CREATE TABLE sales (region TEXT, total REAL)`)
	require.NoError(t, err)
	for _, row := range [][]any{
		{"EMEA", 42.5}, {"APAC", 7.5}, {"AMER", 1.0}, {"AMER", 2.0}, {"EMEA", 10.0},
	} {
		_, err = dataDB.ExecContext(ctx, `INSERT INTO sales VALUES (?, ?)`, row...)
		require.NoError(t, err)
	}

	renderer := sqltmpl.NewRenderer(reg)
	engine := dispatch.New(reg, artifacts, audit.NewLogger(metaDB, names),
		audit.NewNotebook(metaDB, names),
		executor.NewSQL(renderer, data), executor.NewScript(), data)
	provider := NewProvider(engine, renderer, dashboards)
	engine.SetBuiltins(provider)
	if dashboards != nil {
		engine.SetDashboards(dashboards)
	}

	return &fixture{engine: engine, provider: provider, registry: reg, data: data}
}

func (f *fixture) call(t *testing.T, name string, args map[string]any) any {
	t.Helper()
	result, err := f.engine.CallTool(context.Background(), name, args)
	require.NoError(t, err)
	return result
}

func (f *fixture) callErr(t *testing.T, name string, args map[string]any) error {
	t.Helper()
	_, err := f.engine.CallTool(context.Background(), name, args)
	require.Error(t, err)
	return err
}

func TestProvider_Has(t *testing.T) {
	p := &Provider{}
	assert.True(t, p.Has("create_new_sql_tool"))
	assert.True(t, p.Has("execute_workflow"))
	assert.True(t, p.Has("get_last_error"))
	assert.False(t, p.Has("sales_by_region"))
}

func TestProvider_ToolsMatchHandlers(t *testing.T) {
	p := &Provider{}
	for _, meta := range p.Tools() {
		assert.True(t, p.Has(meta.Name), "advertised tool %s has no handler", meta.Name)
		assert.NotEmpty(t, meta.Description, "tool %s has no description", meta.Name)
	}
	assert.Len(t, p.Tools(), len(handlerNames))
}

func TestExecute_UnknownBuiltin(t *testing.T) {
	f := newFixture(t)
	_, err := f.provider.Execute(context.Background(), "not_a_builtin", nil, &api.Capabilities{})
	assert.ErrorIs(t, err, api.ErrToolNotFound)
}

func TestCreateSQLTool(t *testing.T) {
	f := newFixture(t)

	result := f.call(t, "create_new_sql_tool", map[string]any{
		"tool_name":   "sales_by_region",
		"description": "Totals per region",
		"sql_query": "SELECT region, sum(total) AS total FROM sales" +
			"{{if .arguments.region}} WHERE region = :region{{end}} GROUP BY region",
		"parameters": map[string]any{
			"region": map[string]any{"type": "string", "description": "Region filter"},
		},
	})
	assert.Contains(t, result.(string), "sales_by_region")

	rec, err := f.registry.GetTool(context.Background(), "sales_by_region", api.DefaultPersona)
	require.NoError(t, err)
	assert.True(t, rec.AutoCreated)
	assert.Equal(t, "auto", rec.Group)
	assert.Equal(t, api.ToolStateCreated, rec.State)

	// The created tool dispatches immediately.
	rows := f.call(t, "sales_by_region", map[string]any{"region": "EMEA"}).([]map[string]any)
	require.Len(t, rows, 1)
	assert.Equal(t, 52.5, rows[0]["total"])
}

func TestCreateSQLTool_Rejections(t *testing.T) {
	f := newFixture(t)

	err := f.callErr(t, "create_new_sql_tool", map[string]any{
		"tool_name": "bad name!", "description": "d", "sql_query": "SELECT 1",
	})
	assert.Contains(t, err.Error(), "must match")

	err = f.callErr(t, "create_new_sql_tool", map[string]any{
		"tool_name": "writer", "description": "d", "sql_query": "DELETE FROM sales",
	})
	assert.ErrorIs(t, err, api.ErrNotReadOnly)

	err = f.callErr(t, "create_new_sql_tool", map[string]any{
		"tool_name": "no_body", "description": "d",
	})
	assert.ErrorIs(t, err, api.ErrMissingArgument)
}

func TestCreateTempTool(t *testing.T) {
	f := newFixture(t)

	err := f.callErr(t, "create_temp_tool", map[string]any{
		"tool_name": "capped", "sql_query": "SELECT * FROM sales LIMIT 10",
	})
	assert.Contains(t, err.Error(), "LIMIT")

	f.call(t, "create_temp_tool", map[string]any{
		"tool_name": "probe", "sql_query": "SELECT * FROM sales",
	})
	rows := f.call(t, "probe", nil).([]map[string]any)
	assert.Len(t, rows, 3)

	// Temporary tools never touch the persistent registry.
	_, err = f.registry.GetTool(context.Background(), "probe", api.DefaultPersona)
	assert.ErrorIs(t, err, api.ErrToolNotFound)
}

func TestCreatePrompt(t *testing.T) {
	f := newFixture(t)
	f.call(t, "create_new_prompt", map[string]any{
		"name":        "review",
		"description": "Code review prompt",
		"template":    "Review {artifact}.",
		"arguments": []any{
			map[string]any{"name": "artifact", "required": true},
		},
	})

	_, text, err := f.engine.GetPrompt(context.Background(), "review",
		map[string]any{"artifact": "the parser"})
	require.NoError(t, err)
	assert.Equal(t, "Review the parser.", text)
}

func TestCreateResource_StaticAndDynamic(t *testing.T) {
	f := newFixture(t)

	f.call(t, "create_new_resource", map[string]any{
		"uri": "chimera://memo", "name": "memo", "content": "static body",
	})
	body, mime, err := f.engine.GetResource(context.Background(), "chimera://memo")
	require.NoError(t, err)
	assert.Equal(t, "static body", body)
	assert.Equal(t, "text/plain", mime)

	f.call(t, "create_new_resource", map[string]any{
		"uri": "chimera://live", "name": "live", "is_dynamic": true,
		"content": `t = Tool(run = lambda args: "computed at read time")`,
	})
	body, _, err = f.engine.GetResource(context.Background(), "chimera://live")
	require.NoError(t, err)
	assert.Equal(t, "computed at read time", body)

	// Dynamic content is validated as a script before anything is stored.
	err = f.callErr(t, "create_new_resource", map[string]any{
		"uri": "chimera://evil", "name": "evil", "is_dynamic": true,
		"content": `t = Tool(run = lambda args: eval(args["x"]))`,
	})
	assert.ErrorIs(t, err, api.ErrPolicyViolation)
}

func TestCreateTempResource(t *testing.T) {
	f := newFixture(t)
	f.call(t, "create_temp_resource", map[string]any{
		"uri": "chimera://scratch", "name": "scratch", "content": "notes",
	})
	body, _, err := f.engine.GetResource(context.Background(), "chimera://scratch")
	require.NoError(t, err)
	assert.Equal(t, "notes", body)
}

func TestRegisterMacro(t *testing.T) {
	f := newFixture(t)

	err := f.callErr(t, "register_macro", map[string]any{
		"name": "broken", "template": "status = 'active'",
	})
	assert.Contains(t, err.Error(), "{{define")

	f.call(t, "register_macro", map[string]any{
		"name":     "emea_only",
		"template": `{{define "emea_only"}}region = 'EMEA'{{end}}`,
	})

	// The macro is usable by the next created tool without a restart.
	f.call(t, "create_new_sql_tool", map[string]any{
		"tool_name":   "emea_sales",
		"description": "EMEA only",
		"sql_query":   `SELECT sum(total) AS total FROM sales WHERE {{template "emea_only" .}}`,
	})
	rows := f.call(t, "emea_sales", nil).([]map[string]any)
	require.Len(t, rows, 1)
	assert.Equal(t, 52.5, rows[0]["total"])
}

func TestUpdateManual(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.call(t, "create_new_sql_tool", map[string]any{
		"tool_name": "count_sales", "description": "d",
		"sql_query": "SELECT count(*) AS n FROM sales",
	})

	err := f.callErr(t, "system_update_manual", map[string]any{
		"tool_name": "count_sales",
		"manual":    map[string]any{"notes": "free text"},
	})
	assert.Contains(t, err.Error(), "unknown manual section")

	f.call(t, "system_update_manual", map[string]any{
		"tool_name": "count_sales",
		"manual": map[string]any{
			"usage_guide": "counts all sales rows",
			"examples": []any{
				map[string]any{"input": map[string]any{}, "expected": "5", "verified": true},
			},
		},
	})

	rec, err := f.registry.GetTool(ctx, "count_sales", api.DefaultPersona)
	require.NoError(t, err)
	require.NotNil(t, rec.Manual)
	assert.Equal(t, "counts all sales rows", rec.Manual.UsageGuide)
	require.Len(t, rec.Manual.Examples, 1)
	// Incoming examples are never trusted as verified.
	assert.False(t, rec.Manual.Examples[0].Verified)
	assert.Equal(t, "AI_Generated", rec.Manual.Examples[0].Source)
	assert.Equal(t, api.ToolStateUpdated, rec.State)

	// Merge mode appends examples and keeps untouched sections.
	f.call(t, "system_update_manual", map[string]any{
		"tool_name": "count_sales",
		"manual": map[string]any{
			"pitfalls": []any{"slow on huge tables"},
			"examples": []any{
				map[string]any{"input": map[string]any{}, "expected": "999"},
			},
		},
	})
	rec, err = f.registry.GetTool(ctx, "count_sales", api.DefaultPersona)
	require.NoError(t, err)
	assert.Equal(t, "counts all sales rows", rec.Manual.UsageGuide)
	assert.Len(t, rec.Manual.Examples, 2)
	assert.Equal(t, []string{"slow on huge tables"}, rec.Manual.Pitfalls)

	// Replace mode drops everything not in the incoming manual.
	f.call(t, "system_update_manual", map[string]any{
		"tool_name": "count_sales",
		"mode":      "replace",
		"manual":    map[string]any{"usage_guide": "fresh start"},
	})
	rec, err = f.registry.GetTool(ctx, "count_sales", api.DefaultPersona)
	require.NoError(t, err)
	assert.Equal(t, "fresh start", rec.Manual.UsageGuide)
	assert.Empty(t, rec.Manual.Examples)
	assert.Empty(t, rec.Manual.Pitfalls)
}

func TestVerifyTool(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.call(t, "create_new_sql_tool", map[string]any{
		"tool_name": "count_sales", "description": "d",
		"sql_query": "SELECT count(*) AS n FROM sales",
	})

	result := f.call(t, "system_verify_tool", map[string]any{"tool_name": "count_sales"})
	assert.Contains(t, result.(string), "no manual examples")

	f.call(t, "system_update_manual", map[string]any{
		"tool_name": "count_sales",
		"manual": map[string]any{
			"examples": []any{
				map[string]any{"input": map[string]any{}, "expected": "5"},
				map[string]any{"input": map[string]any{}, "expected": "999"},
			},
		},
	})

	result = f.call(t, "system_verify_tool", map[string]any{"tool_name": "count_sales"})
	text := result.(string)
	assert.Contains(t, text, "1/2 examples passed")
	assert.Contains(t, text, "example 1: PASSED")
	assert.Contains(t, text, "example 2: FAILED")

	rec, err := f.registry.GetTool(ctx, "count_sales", api.DefaultPersona)
	require.NoError(t, err)
	assert.Equal(t, api.ToolStateUpdated, rec.State)
	assert.True(t, rec.Manual.Examples[0].Verified)
	assert.Equal(t, "Verified", rec.Manual.Examples[0].Source)
	assert.False(t, rec.Manual.Examples[1].Verified)

	// Dropping the failing example and re-verifying promotes the tool.
	f.call(t, "system_update_manual", map[string]any{
		"tool_name": "count_sales",
		"mode":      "replace",
		"manual": map[string]any{
			"examples": []any{
				map[string]any{"input": map[string]any{}, "expected": "5"},
			},
		},
	})
	result = f.call(t, "system_verify_tool", map[string]any{"tool_name": "count_sales"})
	assert.Contains(t, result.(string), "1/1 examples passed")
	rec, err = f.registry.GetTool(ctx, "count_sales", api.DefaultPersona)
	require.NoError(t, err)
	assert.Equal(t, api.ToolStateVerified, rec.State)
}

func TestInspectTool(t *testing.T) {
	f := newFixture(t)
	f.call(t, "create_new_sql_tool", map[string]any{
		"tool_name": "count_sales", "description": "counts rows",
		"sql_query": "SELECT count(*) AS n FROM sales",
	})

	report := f.call(t, "system_inspect_tool",
		map[string]any{"tool_name": "count_sales"}).(map[string]any)
	assert.Equal(t, "count_sales", report["tool_name"])
	assert.Equal(t, "counts rows", report["description"])
	assert.Equal(t, true, report["is_auto_created"])

	err := f.callErr(t, "system_inspect_tool", map[string]any{"tool_name": "ghost"})
	assert.ErrorIs(t, err, api.ErrToolNotFound)
}

func TestGetLastError(t *testing.T) {
	f := newFixture(t)

	result := f.call(t, "get_last_error", nil)
	assert.Contains(t, result.(string), "No errors found")

	// Produce a failure, then read it back.
	f.callErr(t, "ghost_tool", nil)
	result = f.call(t, "get_last_error", nil)
	assert.Contains(t, result.(string), "ghost_tool")
	assert.Contains(t, result.(string), "tool not found")

	result = f.call(t, "get_last_error", map[string]any{"tool_name": "never_ran"})
	assert.Contains(t, result.(string), `No errors found for tool "never_ran"`)
}

func TestDBConnectionTools(t *testing.T) {
	f := newFixture(t)

	result := f.call(t, "test_db_connection", nil)
	assert.Contains(t, result.(string), "metadata database: OK")
	assert.Contains(t, result.(string), "data database: OK")

	result = f.call(t, "reconnect_db", nil)
	assert.Contains(t, result.(string), "reconnected")
}

func TestGeneralMerge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	dataDB, err := f.data.Get()
	require.NoError(t, err)
	_, err = dataDB.ExecContext(ctx, `CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT, n INTEGER)`)
	require.NoError(t, err)

	f.call(t, "general_merge_tool", map[string]any{
		"table_name": "kv", "key_column": "k", "key_value": "alpha",
		"data": map[string]any{"v": "one", "n": 1},
	})
	f.call(t, "general_merge_tool", map[string]any{
		"table_name": "kv", "key_column": "k", "key_value": "alpha",
		"data": map[string]any{"v": "updated", "n": 2},
	})

	var v string
	var n int
	require.NoError(t, dataDB.QueryRowxContext(ctx,
		"SELECT v, n FROM kv WHERE k = 'alpha'").Scan(&v, &n))
	assert.Equal(t, "updated", v)
	assert.Equal(t, 2, n)

	var count int
	require.NoError(t, dataDB.QueryRowxContext(ctx, "SELECT count(*) FROM kv").Scan(&count))
	assert.Equal(t, 1, count)

	err = f.callErr(t, "general_merge_tool", map[string]any{
		"table_name": "kv; DROP TABLE kv", "key_column": "k", "key_value": "x",
		"data": map[string]any{"v": "y"},
	})
	assert.Contains(t, err.Error(), "not a plain identifier")
}

func TestMergeStatement(t *testing.T) {
	all := []string{"k", "a", "b"}
	cols := []string{"a", "b"}

	sqlite := mergeStatement(database.DialectSQLite, "kv", "k", all, cols)
	assert.Equal(t, "INSERT OR REPLACE INTO kv (k, a, b) VALUES (:k, :a, :b)", sqlite)

	pg := mergeStatement(database.DialectPostgres, "kv", "k", all, cols)
	assert.Equal(t,
		"INSERT INTO kv (k, a, b) VALUES (:k, :a, :b) ON CONFLICT (k) DO UPDATE SET a = EXCLUDED.a, b = EXCLUDED.b",
		pg)

	pgKeyOnly := mergeStatement(database.DialectPostgres, "kv", "k", []string{"k"}, nil)
	assert.Equal(t, "INSERT INTO kv (k) VALUES (:k) ON CONFLICT (k) DO NOTHING", pgKeyOnly)

	ansi := mergeStatement(database.Dialect("oracle"), "kv", "k", all, cols)
	assert.True(t, strings.HasPrefix(ansi, "MERGE INTO kv t USING (SELECT :k AS k, :a AS a, :b AS b) s ON t.k = s.k"))
	assert.Contains(t, ansi, "WHEN MATCHED THEN UPDATE SET t.a = s.a, t.b = s.b")
	assert.Contains(t, ansi, "WHEN NOT MATCHED THEN INSERT (k, a, b) VALUES (s.k, s.a, s.b)")
}

func TestExecuteDDL(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	err := f.callErr(t, "execute_ddl_tool", map[string]any{
		"ddl_statement": "CREATE TABLE scratch (id INTEGER)",
		"confirmation":  "yes",
	})
	assert.Contains(t, err.Error(), "confirmation must be exactly YES")

	err = f.callErr(t, "execute_ddl_tool", map[string]any{
		"ddl_statement": "INSERT INTO sales VALUES ('X', 1)",
		"confirmation":  "YES",
	})
	assert.ErrorIs(t, err, api.ErrInvalidStructure)

	f.call(t, "execute_ddl_tool", map[string]any{
		"ddl_statement": "CREATE TABLE scratch (id INTEGER)",
		"confirmation":  "YES",
	})
	dataDB, err := f.data.Get()
	require.NoError(t, err)
	_, err = dataDB.ExecContext(ctx, "INSERT INTO scratch VALUES (1)")
	assert.NoError(t, err)
}

func TestIcons(t *testing.T) {
	f := newFixture(t)
	f.call(t, "create_new_sql_tool", map[string]any{
		"tool_name": "charted", "description": "d", "sql_query": "SELECT 1 AS one",
	})

	err := f.callErr(t, "icon_save", map[string]any{
		"name": "broken", "format": "png", "content": "not base64 !!!",
	})
	assert.Contains(t, err.Error(), "base64")

	err = f.callErr(t, "icon_save", map[string]any{
		"name": "odd", "format": "gif", "content": "x",
	})
	assert.Contains(t, err.Error(), "svg or png")

	f.call(t, "icon_save", map[string]any{
		"name": "chart", "format": "svg", "content": "<svg/>",
	})
	f.call(t, "icon_assign", map[string]any{
		"tool_name": "charted", "icon_name": "chart",
	})

	rec, err := f.registry.GetTool(context.Background(), "charted", api.DefaultPersona)
	require.NoError(t, err)
	assert.Equal(t, "chart", rec.IconName)

	err = f.callErr(t, "icon_assign", map[string]any{
		"tool_name": "charted", "icon_name": "no_such_icon",
	})
	assert.Contains(t, err.Error(), "not found")
}

func TestCreateDashboard(t *testing.T) {
	disabled := newFixture(t)
	err := disabled.callErr(t, "create_dashboard", map[string]any{
		"dashboard_name": "sales", "source": "<html></html>",
	})
	assert.Contains(t, err.Error(), "disabled")

	dir := t.TempDir()
	f := newFixtureWithDashboards(t, dashboard.New(true, dir, "http://localhost:3000"))
	result := f.call(t, "create_dashboard", map[string]any{
		"dashboard_name": "sales", "source": "<html>dash</html>",
	})
	assert.Contains(t, result.(string), "dashboard=sales")

	// Dispatching the registered tool returns the runner URL.
	url := f.call(t, "sales", nil)
	assert.Equal(t, "http://localhost:3000?dashboard=sales", url)
}

func TestExecuteWorkflow(t *testing.T) {
	f := newFixture(t)
	f.call(t, "create_new_sql_tool", map[string]any{
		"tool_name": "count_sales", "description": "d",
		"sql_query": "SELECT count(*) AS n FROM sales",
	})
	f.call(t, "create_new_sql_tool", map[string]any{
		"tool_name": "echo_n", "description": "d",
		"sql_query": "SELECT :n AS echoed",
	})

	result := f.call(t, "execute_workflow", map[string]any{
		"steps": []any{
			map[string]any{"id": "count", "tool": "count_sales"},
			map[string]any{"id": "echo", "tool": "echo_n",
				"args": map[string]any{"n": "${count.0.n}"}},
		},
	})
	text := result.(string)
	assert.Contains(t, text, "Workflow")
	assert.Contains(t, text, "Completed")
	assert.NotContains(t, text, "HALTED")

	// The success report closes with a JSON snapshot of every step result.
	assert.Contains(t, text, "Final State:")
	assert.Contains(t, text, `"count"`)
	assert.Contains(t, text, `"echo"`)
	assert.Contains(t, text, `"echoed"`)

	// A failing step halts the chain and the report says where.
	result = f.call(t, "execute_workflow", map[string]any{
		"steps": []any{
			map[string]any{"id": "boom", "tool": "no_such_tool"},
			map[string]any{"id": "after", "tool": "count_sales"},
		},
	})
	assert.Contains(t, result.(string), "HALTED")

	err := f.callErr(t, "execute_workflow", map[string]any{
		"steps": []any{
			map[string]any{"id": "a", "tool": "count_sales",
				"args": map[string]any{"x": "${later}"}},
			map[string]any{"id": "later", "tool": "count_sales"},
		},
	})
	assert.ErrorIs(t, err, api.ErrForwardReference)
}

func TestPrecheckSQLTemplate(t *testing.T) {
	assert.NoError(t, precheckSQLTemplate("SELECT 1"))
	assert.NoError(t, precheckSQLTemplate(
		"SELECT * FROM t WHERE a = :a{{if .arguments.b}} AND b = :b{{end}}"))
	assert.Error(t, precheckSQLTemplate("UPDATE t SET a = 1"))
	// Template actions are opaque at creation time; a macro hiding a write
	// is caught at render time instead.
	assert.NoError(t, precheckSQLTemplate(`SELECT {{template "anything" .}} FROM t`))
}

func TestSynthesizeSchema(t *testing.T) {
	raw, err := synthesizeSchema(map[string]any{
		"since":  map[string]any{"type": "string", "description": "start", "required": true},
		"region": map[string]any{},
	})
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, `"required":["since"]`)
	assert.Contains(t, text, `"region":{"type":"string"}`)

	// No parameters and all-optional parameters both compile; the required
	// list must be an empty array, never null.
	raw, err = synthesizeSchema(map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"required":[]`)

	raw, err = synthesizeSchema(map[string]any{
		"region": map[string]any{"type": "string"},
	})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"required":[]`)

	_, err = synthesizeSchema(map[string]any{"bad": "not an object"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"bad"`)

	_, err = synthesizeSchema(map[string]any{
		"odd": map[string]any{"type": "no_such_type"},
	})
	require.Error(t, err)
}
