package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"chimera/internal/api"
	"chimera/internal/database"
)

// GetIcon fetches an icon by name.
func (s *Store) GetIcon(ctx context.Context, name string) (*api.IconRecord, error) {
	query := s.db.Rebind(fmt.Sprintf(
		`SELECT icon_name, mime_type, content FROM %s WHERE icon_name = ?`,
		s.table(database.TableIcons)))
	var rec api.IconRecord
	err := s.db.QueryRowxContext(ctx, query, name).Scan(&rec.Name, &rec.MIMEType, &rec.Content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("icon %q not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning icon row: %w", err)
	}
	return &rec, nil
}

// UpsertIcon inserts or replaces an icon.
func (s *Store) UpsertIcon(ctx context.Context, rec *api.IconRecord) error {
	query := s.db.Rebind(fmt.Sprintf(
		`INSERT INTO %s (icon_name, mime_type, content)
		 VALUES (?, ?, ?)
		 ON CONFLICT (icon_name) DO UPDATE SET
		   mime_type = excluded.mime_type,
		   content = excluded.content`, s.table(database.TableIcons)))
	_, err := s.db.ExecContext(ctx, query, rec.Name, rec.MIMEType, rec.Content)
	if err != nil {
		return fmt.Errorf("upserting icon %s: %w", rec.Name, err)
	}
	return nil
}

// AssignIcon points a tool at an icon. The icon must exist.
func (s *Store) AssignIcon(ctx context.Context, toolName, persona, iconName string) error {
	if _, err := s.GetIcon(ctx, iconName); err != nil {
		return err
	}
	query := s.db.Rebind(fmt.Sprintf(
		`UPDATE %s SET icon_name = ? WHERE tool_name = ? AND persona = ?`,
		s.table(database.TableTools)))
	res, err := s.db.ExecContext(ctx, query, iconName, toolName, persona)
	if err != nil {
		return fmt.Errorf("assigning icon %s to tool %s: %w", iconName, toolName, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("tool %q (persona %q): %w", toolName, persona, api.ErrToolNotFound)
	}
	return nil
}
