package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"chimera/internal/api"
	"chimera/internal/database"
)

// GetResource fetches a resource by its composite key.
func (s *Store) GetResource(ctx context.Context, uri, persona string) (*api.ResourceRecord, error) {
	query := s.db.Rebind(fmt.Sprintf(
		`SELECT uri, persona, name, description, mime_type, dynamic,
		        static_body, artifact_digest, group_name
		 FROM %s WHERE uri = ? AND persona = ?`, s.table(database.TableResources)))
	rec, err := scanResource(s.db.QueryRowxContext(ctx, query, uri, persona))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resource %q (persona %q): %w", uri, persona, api.ErrResourceNotFound)
	}
	return rec, err
}

func scanResource(row rowScanner) (*api.ResourceRecord, error) {
	var rec api.ResourceRecord
	err := row.Scan(&rec.URI, &rec.Persona, &rec.Name, &rec.Description,
		&rec.MIMEType, &rec.Dynamic, &rec.StaticBody, &rec.ArtifactDigest, &rec.Group)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning resource row: %w", err)
	}
	return &rec, nil
}

// UpsertResource inserts or replaces a resource row keyed by (uri, persona).
// A dynamic resource carries a script artifact digest and no static body; a
// static resource carries a body and no digest.
func (s *Store) UpsertResource(ctx context.Context, rec *api.ResourceRecord) error {
	if rec.Persona == "" {
		rec.Persona = api.DefaultPersona
	}
	if rec.MIMEType == "" {
		rec.MIMEType = "text/plain"
	}
	if rec.Dynamic {
		if rec.StaticBody != "" {
			return fmt.Errorf("resource %s/%s is dynamic and cannot carry a static body", rec.URI, rec.Persona)
		}
		if rec.ArtifactDigest == "" {
			return fmt.Errorf("resource %s/%s is dynamic and needs a script artifact digest", rec.URI, rec.Persona)
		}
		if err := s.artifactExists(ctx, rec.ArtifactDigest); err != nil {
			return fmt.Errorf("upserting resource %s/%s: %w", rec.URI, rec.Persona, err)
		}
	} else if rec.ArtifactDigest != "" {
		return fmt.Errorf("resource %s/%s is static and cannot carry an artifact digest", rec.URI, rec.Persona)
	}
	query := s.db.Rebind(fmt.Sprintf(
		`INSERT INTO %s (uri, persona, name, description, mime_type, dynamic,
		                 static_body, artifact_digest, group_name)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (uri, persona) DO UPDATE SET
		   name = excluded.name,
		   description = excluded.description,
		   mime_type = excluded.mime_type,
		   dynamic = excluded.dynamic,
		   static_body = excluded.static_body,
		   artifact_digest = excluded.artifact_digest,
		   group_name = excluded.group_name`, s.table(database.TableResources)))
	_, err := s.db.ExecContext(ctx, query, rec.URI, rec.Persona, rec.Name,
		rec.Description, rec.MIMEType, rec.Dynamic, rec.StaticBody,
		rec.ArtifactDigest, rec.Group)
	if err != nil {
		return fmt.Errorf("upserting resource %s/%s: %w", rec.URI, rec.Persona, err)
	}
	return nil
}

// ListResources returns every resource for one persona ordered by (group, name).
func (s *Store) ListResources(ctx context.Context, persona string) ([]api.ResourceRecord, error) {
	query := s.db.Rebind(fmt.Sprintf(
		`SELECT uri, persona, name, description, mime_type, dynamic,
		        static_body, artifact_digest, group_name
		 FROM %s WHERE persona = ? ORDER BY group_name, name`, s.table(database.TableResources)))
	rows, err := s.db.QueryxContext(ctx, query, persona)
	if err != nil {
		return nil, fmt.Errorf("listing resources: %w", err)
	}
	defer rows.Close()

	var out []api.ResourceRecord
	for rows.Next() {
		rec, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}
