package registry

import (
	"context"
	"fmt"

	"chimera/internal/database"
)

// autoIDColumn returns the dialect's auto-incrementing primary key column.
func autoIDColumn(d database.Dialect) string {
	if d == database.DialectPostgres {
		return "id BIGSERIAL PRIMARY KEY"
	}
	return "id INTEGER PRIMARY KEY AUTOINCREMENT"
}

// schemaStatements builds the CREATE TABLE IF NOT EXISTS set with physical
// table names resolved through the naming layer. Column types are the
// common subset understood by SQLite and PostgreSQL.
func schemaStatements(names *database.Names, dialect database.Dialect) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	digest     TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	kind       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
)`, names.Resolve(database.TableArtifacts)),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	tool_name       TEXT NOT NULL,
	persona         TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	input_schema    TEXT NOT NULL DEFAULT '{}',
	artifact_digest TEXT NOT NULL,
	group_name      TEXT NOT NULL DEFAULT '',
	auto_created    BOOLEAN NOT NULL DEFAULT FALSE,
	state           TEXT NOT NULL DEFAULT 'CREATED',
	manual          TEXT,
	icon_name       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (tool_name, persona)
)`, names.Resolve(database.TableTools)),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	uri             TEXT NOT NULL,
	persona         TEXT NOT NULL,
	name            TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	mime_type       TEXT NOT NULL DEFAULT 'text/plain',
	dynamic         BOOLEAN NOT NULL DEFAULT FALSE,
	static_body     TEXT NOT NULL DEFAULT '',
	artifact_digest TEXT NOT NULL DEFAULT '',
	group_name      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (uri, persona)
)`, names.Resolve(database.TableResources)),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	name             TEXT NOT NULL,
	persona          TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	template         TEXT NOT NULL,
	arguments_schema TEXT NOT NULL DEFAULT '[]',
	group_name       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (name, persona)
)`, names.Resolve(database.TablePrompts)),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	name        TEXT PRIMARY KEY,
	description TEXT NOT NULL DEFAULT '',
	template    TEXT NOT NULL,
	active      BOOLEAN NOT NULL DEFAULT TRUE
)`, names.Resolve(database.TableMacros)),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	icon_name TEXT PRIMARY KEY,
	mime_type TEXT NOT NULL DEFAULT 'image/svg+xml',
	content   TEXT NOT NULL
)`, names.Resolve(database.TableIcons)),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s,
	action  TEXT NOT NULL,
	subject TEXT NOT NULL,
	pattern TEXT NOT NULL
)`, names.Resolve(database.TablePolicies), autoIDColumn(dialect)),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s,
	timestamp      TIMESTAMP NOT NULL,
	tool_name      TEXT NOT NULL,
	persona        TEXT NOT NULL,
	arguments      TEXT NOT NULL DEFAULT '{}',
	status         TEXT NOT NULL,
	result_summary TEXT NOT NULL DEFAULT '',
	error_trace    TEXT NOT NULL DEFAULT ''
)`, names.Resolve(database.TableAuditLog), autoIDColumn(dialect)),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	key        TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`, names.Resolve(database.TableNotebook)),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s,
	key         TEXT NOT NULL,
	content     TEXT NOT NULL,
	recorded_at TIMESTAMP NOT NULL
)`, names.Resolve(database.TableNotebookHistory), autoIDColumn(dialect)),
	}
}

// CreateTables issues the schema DDL. Every statement is idempotent.
func (s *Store) CreateTables(ctx context.Context) error {
	for _, stmt := range schemaStatements(s.names, s.db.Dialect) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating tables: %w", err)
		}
	}
	return nil
}
