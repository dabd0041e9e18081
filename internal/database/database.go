// Package database opens and manages the two SQL stores chimera talks to:
// the metadata store (registry, artifacts, audit) and the optional data
// store that SQL tools query. It hides driver selection behind connection
// URLs and exposes the dialect so callers can emit dialect-specific SQL.
package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	// Database drivers registered by side effect.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect identifies the SQL flavor of an open connection.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DB wraps a sqlx pool with its dialect and origin URL.
type DB struct {
	*sqlx.DB
	Dialect Dialect
	URL     string
}

// Open connects to the database identified by a URL of the form
// sqlite:///relative.db, sqlite:////abs/path.db, sqlite://:memory:,
// postgres://... or postgresql://..., and verifies the connection
// with a ping.
func Open(ctx context.Context, rawURL string) (*DB, error) {
	driver, dsn, dialect, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", dialect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s database: %w", dialect, err)
	}

	if dialect == DialectSQLite {
		// SQLite serializes writers; a single connection avoids
		// SQLITE_BUSY under concurrent request handlers.
		db.SetMaxOpenConns(1)
	}

	return &DB{DB: db, Dialect: dialect, URL: rawURL}, nil
}

// parseURL maps a connection URL to (driver, DSN, dialect).
func parseURL(rawURL string) (string, string, Dialect, error) {
	trimmed := strings.TrimSpace(rawURL)
	switch {
	case strings.HasPrefix(trimmed, "sqlite://"):
		path := strings.TrimPrefix(trimmed, "sqlite://")
		// sqlite:///foo.db is the relative file foo.db; sqlite:////var/x.db
		// is absolute. A single leading slash is the relative marker.
		if strings.HasPrefix(path, "/") && !strings.HasPrefix(path, "//") {
			path = path[1:]
		} else if strings.HasPrefix(path, "//") {
			path = path[1:]
		}
		if path == "" {
			return "", "", "", fmt.Errorf("sqlite URL %q has no path", rawURL)
		}
		return "sqlite3", path, DialectSQLite, nil
	case strings.HasPrefix(trimmed, "postgres://"), strings.HasPrefix(trimmed, "postgresql://"):
		return "pgx", trimmed, DialectPostgres, nil
	case trimmed == "":
		return "", "", "", fmt.Errorf("empty database URL")
	default:
		return "", "", "", fmt.Errorf("unsupported database URL %q (expected sqlite:// or postgres://)", rawURL)
	}
}

// SQLitePath returns the file path behind a sqlite URL, or false for any
// other backend (including :memory:). Used by the registry file watcher.
func SQLitePath(rawURL string) (string, bool) {
	_, dsn, dialect, err := parseURL(rawURL)
	if err != nil || dialect != DialectSQLite || dsn == ":memory:" {
		return "", false
	}
	return dsn, true
}

// Rebind converts :name / ? placeholders to the dialect's own form.
func (d *DB) Rebind(query string) string {
	return d.DB.Rebind(query)
}
