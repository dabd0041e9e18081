package metatools

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"chimera/internal/database"
	"chimera/internal/validate"
	"chimera/pkg/logging"
)

// identifierPattern restricts table and column names passed to the merge
// tool; identifiers interpolate into SQL and must never carry syntax.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func validIdentifier(name, what string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%s %q is not a plain identifier", what, name)
	}
	return nil
}

// handleReconnectDB re-opens the data database from the configured URL.
func (p *Provider) handleReconnectDB(ctx context.Context) (any, error) {
	if err := p.engine.Data().Reconnect(ctx); err != nil {
		return nil, fmt.Errorf("reconnect failed: %w", err)
	}
	logging.Info(subsystem, "Data database reconnected")
	return "Data database reconnected. SQL tools are back online.", nil
}

// handleTestDBConnection pings both stores and reports their status. A
// failing data ping is part of the report, not an error.
func (p *Provider) handleTestDBConnection(ctx context.Context) (any, error) {
	var b strings.Builder

	if err := p.engine.Registry().DB().PingContext(ctx); err != nil {
		fmt.Fprintf(&b, "metadata database: FAILED (%v)\n", err)
	} else {
		b.WriteString("metadata database: OK\n")
	}

	switch err := p.engine.Data().Ping(ctx); {
	case err != nil && !p.engine.Data().Online():
		fmt.Fprintf(&b, "data database: OFFLINE (%v)", err)
	case err != nil:
		fmt.Fprintf(&b, "data database: FAILED (%v)", err)
	default:
		b.WriteString("data database: OK")
	}
	return b.String(), nil
}

// handleGeneralMerge upserts one row in a data-store table using the
// dialect's native merge form. Identifiers are validated and values are
// always bound, never spliced.
func (p *Provider) handleGeneralMerge(ctx context.Context, args map[string]any) (any, error) {
	tableName, err := stringArg(args, "table_name")
	if err != nil {
		return nil, err
	}
	keyColumn, err := stringArg(args, "key_column")
	if err != nil {
		return nil, err
	}
	keyValue, ok := args["key_value"]
	if !ok {
		return nil, fmt.Errorf("argument \"key_value\" is required")
	}
	data, ok := args["data"].(map[string]any)
	if !ok || len(data) == 0 {
		return nil, fmt.Errorf("argument \"data\" must be a non-empty object")
	}

	if err := validIdentifier(tableName, "table name"); err != nil {
		return nil, err
	}
	if err := validIdentifier(keyColumn, "key column"); err != nil {
		return nil, err
	}
	columns := make([]string, 0, len(data)+1)
	for col := range data {
		if err := validIdentifier(col, "column"); err != nil {
			return nil, err
		}
		if col != keyColumn {
			columns = append(columns, col)
		}
	}
	sort.Strings(columns)

	db, err := p.engine.Data().Get()
	if err != nil {
		return nil, err
	}

	values := map[string]any{keyColumn: keyValue}
	for _, col := range columns {
		values[col] = data[col]
	}
	allColumns := append([]string{keyColumn}, columns...)

	query := mergeStatement(db.Dialect, tableName, keyColumn, allColumns, columns)
	bound, bindArgs, err := sqlx.Named(query, values)
	if err != nil {
		return nil, fmt.Errorf("binding merge values: %w", err)
	}
	if _, err := db.ExecContext(ctx, db.Rebind(bound), bindArgs...); err != nil {
		return nil, fmt.Errorf("merging into %s: %w", tableName, err)
	}
	return fmt.Sprintf("Merged 1 row into %s (%s = %v).", tableName, keyColumn, keyValue), nil
}

// mergeStatement builds the dialect-specific upsert. columns excludes the
// key column; allColumns includes it first.
func mergeStatement(dialect database.Dialect, table, keyColumn string, allColumns, columns []string) string {
	placeholders := make([]string, len(allColumns))
	for i, col := range allColumns {
		placeholders[i] = ":" + col
	}
	insert := fmt.Sprintf("(%s) VALUES (%s)",
		strings.Join(allColumns, ", "), strings.Join(placeholders, ", "))

	switch dialect {
	case database.DialectSQLite:
		return fmt.Sprintf("INSERT OR REPLACE INTO %s %s", table, insert)
	case database.DialectPostgres:
		sets := make([]string, len(columns))
		for i, col := range columns {
			sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", col, col)
		}
		if len(sets) == 0 {
			return fmt.Sprintf("INSERT INTO %s %s ON CONFLICT (%s) DO NOTHING",
				table, insert, keyColumn)
		}
		return fmt.Sprintf("INSERT INTO %s %s ON CONFLICT (%s) DO UPDATE SET %s",
			table, insert, keyColumn, strings.Join(sets, ", "))
	default:
		sets := make([]string, len(columns))
		inserts := make([]string, len(allColumns))
		for i, col := range columns {
			sets[i] = fmt.Sprintf("t.%s = s.%s", col, col)
		}
		for i, col := range allColumns {
			inserts[i] = "s." + col
		}
		return fmt.Sprintf(
			"MERGE INTO %s t USING (SELECT %s) s ON t.%s = s.%s WHEN MATCHED THEN UPDATE SET %s WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s)",
			table, namedSelect(allColumns), keyColumn, keyColumn,
			strings.Join(sets, ", "), strings.Join(allColumns, ", "), strings.Join(inserts, ", "))
	}
}

func namedSelect(columns []string) string {
	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = fmt.Sprintf(":%s AS %s", col, col)
	}
	return strings.Join(parts, ", ")
}

// handleExecuteDDL runs one schema-change statement on the data store. The
// caller must confirm with the literal YES.
func (p *Provider) handleExecuteDDL(ctx context.Context, args map[string]any) (any, error) {
	statement, err := stringArg(args, "ddl_statement")
	if err != nil {
		return nil, err
	}
	confirmation, err := stringArg(args, "confirmation")
	if err != nil {
		return nil, err
	}
	if confirmation != "YES" {
		return nil, fmt.Errorf("confirmation must be exactly YES to run DDL")
	}
	if err := validate.DDL(statement); err != nil {
		return nil, err
	}

	db, err := p.engine.Data().Get()
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, statement); err != nil {
		return nil, fmt.Errorf("executing DDL: %w", err)
	}
	logging.Warn(subsystem, "DDL executed on data store: %.80s", statement)
	return "DDL statement executed.", nil
}
