// Package executor runs validated artifacts: SQL templates against the
// data store, scripts inside the embedded Starlark runtime. Both executors
// re-validate before running and neither recovers from failure; the
// dispatcher owns audit and error propagation.
package executor

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"chimera/internal/database"
	"chimera/internal/sqltmpl"
	"chimera/internal/validate"
	"chimera/pkg/logging"
)

const subsystem = "Executor"

// testToolLimit caps rows returned by temporary test tools.
const testToolLimit = 3

// SQL executes select-kind artifacts.
type SQL struct {
	renderer *sqltmpl.Renderer
	data     *database.DataSession
}

// NewSQL binds the SQL executor to the template renderer and data session.
func NewSQL(renderer *sqltmpl.Renderer, data *database.DataSession) *SQL {
	return &SQL{renderer: renderer, data: data}
}

// Execute renders a body with the macro prelude and the argument bag,
// re-validates the rendered statement, binds every :name placeholder, and
// returns rows as column-keyed maps. testTool applies the fixed row cap for
// temporary tools.
func (e *SQL) Execute(ctx context.Context, body string, arguments map[string]any, testTool bool) ([]map[string]any, error) {
	db, err := e.data.Get()
	if err != nil {
		return nil, err
	}

	rendered, err := e.renderer.Render(ctx, body, arguments)
	if err != nil {
		return nil, err
	}
	// Macros could have produced anything; the rendered statement is held
	// to the same discipline as a hand-written one.
	if err := validate.ReadOnlySQL(rendered); err != nil {
		return nil, err
	}
	if testTool {
		rendered = validate.StripTrailingTerminator(rendered) + fmt.Sprintf(" LIMIT %d", testToolLimit)
	}

	query, params, err := bindNamed(rendered, arguments)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryxContext(ctx, db.Rebind(query), params...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	results := []map[string]any{}
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scanning result row: %w", err)
		}
		results = append(results, normalizeRow(row))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading result rows: %w", err)
	}
	logging.Debug(subsystem, "Query returned %d rows", len(results))
	return results, nil
}

// RunReadOnly validates and executes a read-only statement with named
// parameters on an arbitrary session. The capability queries handed to
// scripts (meta_query, data_query) are built on this.
func RunReadOnly(ctx context.Context, db *database.DB, query string, params map[string]any) ([]map[string]any, error) {
	if err := validate.ReadOnlySQL(query); err != nil {
		return nil, err
	}
	bound, args, err := bindNamed(query, params)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryxContext(ctx, db.Rebind(bound), args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	results := []map[string]any{}
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scanning result row: %w", err)
		}
		results = append(results, normalizeRow(row))
	}
	return results, rows.Err()
}

// bindNamed expands :name placeholders into positional parameters. Only
// names the statement actually uses are bound; a placeholder without an
// argument surfaces with its name.
func bindNamed(query string, arguments map[string]any) (string, []any, error) {
	if arguments == nil {
		arguments = map[string]any{}
	}
	bound, params, err := sqlx.Named(query, arguments)
	if err != nil {
		return "", nil, fmt.Errorf("binding named parameters: %w", err)
	}
	return bound, params, nil
}

// normalizeRow converts driver byte slices to strings so rows serialize
// cleanly as JSON.
func normalizeRow(row map[string]any) map[string]any {
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			row[k] = string(b)
		}
	}
	return row
}
