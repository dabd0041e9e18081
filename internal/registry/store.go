// Package registry persists chimera's catalog: tools, resources, prompts,
// macros, icons, and validation policies. All rows are persona-scoped where
// the record kind supports it, and every physical table name resolves
// through the database naming layer.
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

const subsystem = "Registry"

// Store provides typed CRUD over the registry tables.
type Store struct {
	db    *database.DB
	names *database.Names
}

// NewStore binds a store to an open metadata database.
func NewStore(db *database.DB, names *database.Names) *Store {
	return &Store{db: db, names: names}
}

// DB exposes the underlying metadata connection (audit and executors share it).
func (s *Store) DB() *database.DB { return s.db }

// Names exposes the naming layer for packages that build their own SQL.
func (s *Store) Names() *database.Names { return s.names }

func (s *Store) table(logical string) string { return s.names.Resolve(logical) }

// rowScanner is the common surface of sqlx.Row and sqlx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// --- Tools ---

// GetTool fetches a tool by its composite key.
func (s *Store) GetTool(ctx context.Context, name, persona string) (*api.ToolRecord, error) {
	query := s.db.Rebind(fmt.Sprintf(
		`SELECT tool_name, persona, description, input_schema, artifact_digest,
		        group_name, auto_created, state, manual, icon_name
		 FROM %s WHERE tool_name = ? AND persona = ?`, s.table(database.TableTools)))
	rec, err := scanTool(s.db.QueryRowxContext(ctx, query, name, persona))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tool %q (persona %q): %w", name, persona, api.ErrToolNotFound)
	}
	return rec, err
}

// GetToolAnyPersona fetches a tool by name alone, preferring the default
// persona. Used by inspection when the default namespace has no row.
func (s *Store) GetToolAnyPersona(ctx context.Context, name string) (*api.ToolRecord, error) {
	rec, err := s.GetTool(ctx, name, api.DefaultPersona)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, api.ErrToolNotFound) {
		return nil, err
	}
	query := s.db.Rebind(fmt.Sprintf(
		`SELECT tool_name, persona, description, input_schema, artifact_digest,
		        group_name, auto_created, state, manual, icon_name
		 FROM %s WHERE tool_name = ? ORDER BY persona LIMIT 1`, s.table(database.TableTools)))
	rec, err = scanTool(s.db.QueryRowxContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tool %q (any persona): %w", name, api.ErrToolNotFound)
	}
	return rec, err
}

func scanTool(row rowScanner) (*api.ToolRecord, error) {
	var (
		rec       api.ToolRecord
		schema    []byte
		manualRaw sql.NullString
	)
	err := row.Scan(&rec.Name, &rec.Persona, &rec.Description, &schema,
		&rec.ArtifactDigest, &rec.Group, &rec.AutoCreated, &rec.State,
		&manualRaw, &rec.IconName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning tool row: %w", err)
	}
	rec.InputSchema = json.RawMessage(schema)
	if manualRaw.Valid && manualRaw.String != "" {
		var m api.Manual
		if err := json.Unmarshal([]byte(manualRaw.String), &m); err != nil {
			logging.Warn(subsystem, "Tool %s has an unreadable manual, ignoring: %v", rec.Name, err)
		} else {
			rec.Manual = &m
		}
	}
	return &rec, nil
}

// artifactExists verifies a digest points at a stored blob before a
// catalog row is allowed to reference it.
func (s *Store) artifactExists(ctx context.Context, digest string) error {
	var n int
	query := s.db.Rebind(fmt.Sprintf(
		`SELECT COUNT(*) FROM %s WHERE digest = ?`, s.table(database.TableArtifacts)))
	if err := s.db.QueryRowxContext(ctx, query, digest).Scan(&n); err != nil {
		return fmt.Errorf("checking artifact %.16s: %w", digest, err)
	}
	if n == 0 {
		return fmt.Errorf("artifact %.16s: %w", digest, api.ErrArtifactMissing)
	}
	return nil
}

// UpsertTool inserts or replaces a tool row keyed by (name, persona). A
// non-empty artifact digest must reference a stored blob.
func (s *Store) UpsertTool(ctx context.Context, rec *api.ToolRecord) error {
	if rec.Persona == "" {
		rec.Persona = api.DefaultPersona
	}
	if rec.State == "" {
		rec.State = api.ToolStateCreated
	}
	if rec.ArtifactDigest != "" {
		if err := s.artifactExists(ctx, rec.ArtifactDigest); err != nil {
			return fmt.Errorf("upserting tool %s/%s: %w", rec.Name, rec.Persona, err)
		}
	}
	schema := rec.InputSchema
	if len(schema) == 0 {
		schema = json.RawMessage(`{}`)
	}
	var manualRaw any
	if rec.Manual != nil {
		data, err := json.Marshal(rec.Manual)
		if err != nil {
			return fmt.Errorf("serializing manual for %s: %w", rec.Name, err)
		}
		manualRaw = string(data)
	}
	query := s.db.Rebind(fmt.Sprintf(
		`INSERT INTO %s (tool_name, persona, description, input_schema, artifact_digest,
		                 group_name, auto_created, state, manual, icon_name)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tool_name, persona) DO UPDATE SET
		   description = excluded.description,
		   input_schema = excluded.input_schema,
		   artifact_digest = excluded.artifact_digest,
		   group_name = excluded.group_name,
		   auto_created = excluded.auto_created,
		   state = excluded.state,
		   manual = excluded.manual,
		   icon_name = excluded.icon_name`, s.table(database.TableTools)))
	_, err := s.db.ExecContext(ctx, query, rec.Name, rec.Persona, rec.Description,
		string(schema), rec.ArtifactDigest, rec.Group, rec.AutoCreated,
		string(rec.State), manualRaw, rec.IconName)
	if err != nil {
		return fmt.Errorf("upserting tool %s/%s: %w", rec.Name, rec.Persona, err)
	}
	return nil
}

// ListTools returns every tool for one persona ordered by (group, name).
func (s *Store) ListTools(ctx context.Context, persona string) ([]api.ToolRecord, error) {
	query := s.db.Rebind(fmt.Sprintf(
		`SELECT tool_name, persona, description, input_schema, artifact_digest,
		        group_name, auto_created, state, manual, icon_name
		 FROM %s WHERE persona = ? ORDER BY group_name, tool_name`, s.table(database.TableTools)))
	rows, err := s.db.QueryxContext(ctx, query, persona)
	if err != nil {
		return nil, fmt.Errorf("listing tools: %w", err)
	}
	defer rows.Close()

	var out []api.ToolRecord
	for rows.Next() {
		rec, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// CountTools reports the number of persistent tools across all personas.
// Startup seeds the registry only when this is zero.
func (s *Store) CountTools(ctx context.Context) (int, error) {
	var n int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table(database.TableTools))
	if err := s.db.QueryRowxContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting tools: %w", err)
	}
	return n, nil
}

// ClearCatalog wipes the catalog tables (tools, resources, prompts,
// macros). Artifacts, audit rows, and the notebook stay.
func (s *Store) ClearCatalog(ctx context.Context) error {
	for _, logical := range []string{
		database.TableTools, database.TableResources,
		database.TablePrompts, database.TableMacros,
	} {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table(logical))); err != nil {
			return fmt.Errorf("clearing %s: %w", logical, err)
		}
	}
	return nil
}

// DeleteTool removes one tool row.
func (s *Store) DeleteTool(ctx context.Context, name, persona string) error {
	query := s.db.Rebind(fmt.Sprintf(
		`DELETE FROM %s WHERE tool_name = ? AND persona = ?`, s.table(database.TableTools)))
	res, err := s.db.ExecContext(ctx, query, name, persona)
	if err != nil {
		return fmt.Errorf("deleting tool %s/%s: %w", name, persona, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("tool %q (persona %q): %w", name, persona, api.ErrToolNotFound)
	}
	return nil
}
