package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"chimera/internal/api"
	"chimera/internal/database"
	"chimera/pkg/logging"
)

// GetPrompt fetches a prompt by its composite key.
func (s *Store) GetPrompt(ctx context.Context, name, persona string) (*api.PromptRecord, error) {
	query := s.db.Rebind(fmt.Sprintf(
		`SELECT name, persona, description, template, arguments_schema, group_name
		 FROM %s WHERE name = ? AND persona = ?`, s.table(database.TablePrompts)))
	rec, err := scanPrompt(s.db.QueryRowxContext(ctx, query, name, persona))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("prompt %q (persona %q): %w", name, persona, api.ErrPromptNotFound)
	}
	return rec, err
}

func scanPrompt(row rowScanner) (*api.PromptRecord, error) {
	var (
		rec     api.PromptRecord
		argsRaw string
	)
	err := row.Scan(&rec.Name, &rec.Persona, &rec.Description, &rec.Template,
		&argsRaw, &rec.Group)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning prompt row: %w", err)
	}
	if argsRaw != "" {
		if err := json.Unmarshal([]byte(argsRaw), &rec.Arguments); err != nil {
			logging.Warn(subsystem, "Prompt %s has an unreadable arguments schema, ignoring: %v", rec.Name, err)
		}
	}
	return &rec, nil
}

// UpsertPrompt inserts or replaces a prompt row keyed by (name, persona).
func (s *Store) UpsertPrompt(ctx context.Context, rec *api.PromptRecord) error {
	if rec.Persona == "" {
		rec.Persona = api.DefaultPersona
	}
	argsRaw, err := json.Marshal(rec.Arguments)
	if err != nil {
		return fmt.Errorf("serializing arguments schema for %s: %w", rec.Name, err)
	}
	query := s.db.Rebind(fmt.Sprintf(
		`INSERT INTO %s (name, persona, description, template, arguments_schema, group_name)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (name, persona) DO UPDATE SET
		   description = excluded.description,
		   template = excluded.template,
		   arguments_schema = excluded.arguments_schema,
		   group_name = excluded.group_name`, s.table(database.TablePrompts)))
	_, err = s.db.ExecContext(ctx, query, rec.Name, rec.Persona, rec.Description,
		rec.Template, string(argsRaw), rec.Group)
	if err != nil {
		return fmt.Errorf("upserting prompt %s/%s: %w", rec.Name, rec.Persona, err)
	}
	return nil
}

// ListPrompts returns every prompt for one persona ordered by (group, name).
func (s *Store) ListPrompts(ctx context.Context, persona string) ([]api.PromptRecord, error) {
	query := s.db.Rebind(fmt.Sprintf(
		`SELECT name, persona, description, template, arguments_schema, group_name
		 FROM %s WHERE persona = ? ORDER BY group_name, name`, s.table(database.TablePrompts)))
	rows, err := s.db.QueryxContext(ctx, query, persona)
	if err != nil {
		return nil, fmt.Errorf("listing prompts: %w", err)
	}
	defer rows.Close()

	var out []api.PromptRecord
	for rows.Next() {
		rec, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}
