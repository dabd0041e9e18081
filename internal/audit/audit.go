// Package audit records the outcome of every dispatched call and maintains
// the self-correction notebook. Each write is its own short transaction on
// the metadata database, detached from whatever the dispatched tool was
// doing, so the trail survives tool failures and rollbacks.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chimera/internal/api"
	"chimera/internal/database"
	"chimera/pkg/logging"
	pkgstrings "chimera/pkg/strings"
)

const subsystem = "Audit"

// SummaryMaxLen bounds the stored result summary. Error traces are never
// truncated.
const SummaryMaxLen = 2000

const truncationMarker = "... (truncated)"

// failureSummary is the fixed summary stored on FAILURE rows; the detail
// lives in error_trace.
const failureSummary = "Execution failed - see error trace"

// Logger writes execution log rows.
type Logger struct {
	db    *database.DB
	names *database.Names
}

// NewLogger binds a logger to the metadata database.
func NewLogger(db *database.DB, names *database.Names) *Logger {
	return &Logger{db: db, names: names}
}

func (l *Logger) table() string { return l.names.Resolve(database.TableAuditLog) }

// Success records a completed call with a bounded result summary.
func (l *Logger) Success(ctx context.Context, toolName, persona string, args map[string]any, summary string) {
	l.write(ctx, api.AuditEntry{
		Timestamp:     time.Now().UTC(),
		ToolName:      toolName,
		Persona:       persona,
		Arguments:     serializeArguments(args),
		Status:        api.StatusSuccess,
		ResultSummary: pkgstrings.TruncateWithMarker(summary, SummaryMaxLen, truncationMarker),
	})
}

// Failure records a failed call with the full error chain.
func (l *Logger) Failure(ctx context.Context, toolName, persona string, args map[string]any, callErr error) {
	trace := ""
	if callErr != nil {
		trace = callErr.Error()
	}
	l.write(ctx, api.AuditEntry{
		Timestamp:     time.Now().UTC(),
		ToolName:      toolName,
		Persona:       persona,
		Arguments:     serializeArguments(args),
		Status:        api.StatusFailure,
		ResultSummary: failureSummary,
		ErrorTrace:    trace,
	})
}

// write commits one row. Audit failures are logged, never surfaced: the
// dispatched call's own outcome must not depend on the trail.
func (l *Logger) write(ctx context.Context, entry api.AuditEntry) {
	query := l.db.Rebind(fmt.Sprintf(
		`INSERT INTO %s (timestamp, tool_name, persona, arguments, status, result_summary, error_trace)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`, l.table()))
	_, err := l.db.ExecContext(ctx, query, entry.Timestamp, entry.ToolName,
		entry.Persona, entry.Arguments, entry.Status, entry.ResultSummary, entry.ErrorTrace)
	if err != nil {
		logging.Error(subsystem, err, "Could not write audit entry for %s", entry.ToolName)
	}
}

// LastFailure returns the most recent FAILURE row, optionally for one tool.
// A nil entry with nil error means no failure has been recorded.
func (l *Logger) LastFailure(ctx context.Context, toolName string) (*api.AuditEntry, error) {
	query := fmt.Sprintf(
		`SELECT id, timestamp, tool_name, persona, arguments, status, result_summary, error_trace
		 FROM %s WHERE status = '%s'`, l.table(), api.StatusFailure)
	var params []any
	if toolName != "" {
		query += ` AND tool_name = ?`
		params = append(params, toolName)
	}
	query += ` ORDER BY id DESC LIMIT 1`

	var entry api.AuditEntry
	err := l.db.QueryRowxContext(ctx, l.db.Rebind(query), params...).Scan(
		&entry.ID, &entry.Timestamp, &entry.ToolName, &entry.Persona,
		&entry.Arguments, &entry.Status, &entry.ResultSummary, &entry.ErrorTrace)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading last failure: %w", err)
	}
	return &entry, nil
}

// Recent returns the newest entries, most recent first.
func (l *Logger) Recent(ctx context.Context, limit int) ([]api.AuditEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := l.db.Rebind(fmt.Sprintf(
		`SELECT id, timestamp, tool_name, persona, arguments, status, result_summary, error_trace
		 FROM %s ORDER BY id DESC LIMIT ?`, l.table()))
	rows, err := l.db.QueryxContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("reading audit entries: %w", err)
	}
	defer rows.Close()

	var out []api.AuditEntry
	for rows.Next() {
		var entry api.AuditEntry
		if err := rows.Scan(&entry.ID, &entry.Timestamp, &entry.ToolName, &entry.Persona,
			&entry.Arguments, &entry.Status, &entry.ResultSummary, &entry.ErrorTrace); err != nil {
			return nil, fmt.Errorf("scanning audit row: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// serializeArguments renders the argument bag as JSON. A bag that cannot be
// serialized degrades to a marker object instead of failing the audit.
func serializeArguments(args map[string]any) string {
	if args == nil {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		fallback, _ := json.Marshal(map[string]string{
			"_serialization_error": err.Error(),
		})
		return string(fallback)
	}
	return string(data)
}
