package registry

import (
	"context"
	"fmt"

	"chimera/internal/api"
	"chimera/internal/database"
)

// UpsertMacro inserts or replaces a macro. New and updated macros are
// always active; deactivation is an explicit registry edit.
func (s *Store) UpsertMacro(ctx context.Context, rec *api.MacroRecord) error {
	query := s.db.Rebind(fmt.Sprintf(
		`INSERT INTO %s (name, description, template, active)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET
		   description = excluded.description,
		   template = excluded.template,
		   active = excluded.active`, s.table(database.TableMacros)))
	_, err := s.db.ExecContext(ctx, query, rec.Name, rec.Description, rec.Template, rec.Active)
	if err != nil {
		return fmt.Errorf("upserting macro %s: %w", rec.Name, err)
	}
	return nil
}

// ListActiveMacros returns active macros in name order. The order is part
// of the template prelude contract: deterministic across calls.
func (s *Store) ListActiveMacros(ctx context.Context) ([]api.MacroRecord, error) {
	query := fmt.Sprintf(
		`SELECT name, description, template, active FROM %s
		 WHERE active ORDER BY name`, s.table(database.TableMacros))
	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing macros: %w", err)
	}
	defer rows.Close()

	var out []api.MacroRecord
	for rows.Next() {
		var rec api.MacroRecord
		if err := rows.Scan(&rec.Name, &rec.Description, &rec.Template, &rec.Active); err != nil {
			return nil, fmt.Errorf("scanning macro row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
