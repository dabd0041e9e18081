package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chimera/internal/database"
	"chimera/pkg/logging"
)

// Notebook is the keyed agent memory. The dispatcher's failure handler
// appends to the <tool>_error key; every update also writes the previous
// content to the history table, so nothing is ever lost.
type Notebook struct {
	db    *database.DB
	names *database.Names
}

// NewNotebook binds a notebook to the metadata database.
func NewNotebook(db *database.DB, names *database.Names) *Notebook {
	return &Notebook{db: db, names: names}
}

func (n *Notebook) table() string        { return n.names.Resolve(database.TableNotebook) }
func (n *Notebook) historyTable() string { return n.names.Resolve(database.TableNotebookHistory) }

// Get returns the content stored under a key, or empty string when absent.
func (n *Notebook) Get(ctx context.Context, key string) (string, error) {
	query := n.db.Rebind(fmt.Sprintf(
		`SELECT content FROM %s WHERE key = ?`, n.table()))
	var content string
	err := n.db.QueryRowxContext(ctx, query, key).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading notebook key %s: %w", key, err)
	}
	return content, nil
}

// Append adds a timestamped line under a key, preserving prior content and
// recording it in the history table.
func (n *Notebook) Append(ctx context.Context, key, line string) error {
	previous, err := n.Get(ctx, key)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	entry := fmt.Sprintf("[%s] %s", now.Format(time.RFC3339), line)
	content := entry
	if previous != "" {
		content = previous + "\n" + entry
	}

	query := n.db.Rebind(fmt.Sprintf(
		`INSERT INTO %s (key, content, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET
		   content = excluded.content,
		   updated_at = excluded.updated_at`, n.table()))
	if _, err := n.db.ExecContext(ctx, query, key, content, now); err != nil {
		return fmt.Errorf("writing notebook key %s: %w", key, err)
	}

	if previous != "" {
		history := n.db.Rebind(fmt.Sprintf(
			`INSERT INTO %s (key, content, recorded_at) VALUES (?, ?, ?)`, n.historyTable()))
		if _, err := n.db.ExecContext(ctx, history, key, previous, now); err != nil {
			return fmt.Errorf("writing notebook history for %s: %w", key, err)
		}
	}
	return nil
}

// RecordFailure appends a self-correction lesson for a failed tool call.
// Best-effort: a notebook error is logged, never propagated, because the
// original call error is what the client must see.
func (n *Notebook) RecordFailure(ctx context.Context, toolName string, callErr error) {
	line := fmt.Sprintf("tool %s failed: %v", toolName, callErr)
	if err := n.Append(ctx, toolName+"_error", line); err != nil {
		logging.Error(subsystem, err, "Could not record self-correction note for %s", toolName)
	}
}
