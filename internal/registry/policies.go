package registry

import (
	"context"
	"fmt"

	"chimera/internal/api"
	"chimera/internal/database"
)

// ListPolicies returns every stored validation policy rule.
func (s *Store) ListPolicies(ctx context.Context) ([]api.PolicyRule, error) {
	query := fmt.Sprintf(
		`SELECT action, subject, pattern FROM %s ORDER BY id`,
		s.table(database.TablePolicies))
	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing policies: %w", err)
	}
	defer rows.Close()

	var out []api.PolicyRule
	for rows.Next() {
		var rec api.PolicyRule
		if err := rows.Scan(&rec.Action, &rec.Subject, &rec.Pattern); err != nil {
			return nil, fmt.Errorf("scanning policy row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AddPolicy appends one policy rule.
func (s *Store) AddPolicy(ctx context.Context, rec *api.PolicyRule) error {
	if rec.Action != api.PolicyActionDeny && rec.Action != api.PolicyActionAllow {
		return fmt.Errorf("policy action must be %q or %q, got %q",
			api.PolicyActionDeny, api.PolicyActionAllow, rec.Action)
	}
	switch rec.Subject {
	case api.PolicySubjectModule, api.PolicySubjectFunction, api.PolicySubjectAttribute:
	default:
		return fmt.Errorf("policy subject must be module, function, or attribute, got %q", rec.Subject)
	}
	query := s.db.Rebind(fmt.Sprintf(
		`INSERT INTO %s (action, subject, pattern) VALUES (?, ?, ?)`,
		s.table(database.TablePolicies)))
	if _, err := s.db.ExecContext(ctx, query, rec.Action, rec.Subject, rec.Pattern); err != nil {
		return fmt.Errorf("adding policy: %w", err)
	}
	return nil
}

// Clear deletes every registry row. Used by spec loading with --clear and
// by tests; the audit log and notebook are deliberately preserved.
func (s *Store) Clear(ctx context.Context) error {
	for _, logical := range []string{
		database.TableTools,
		database.TableResources,
		database.TablePrompts,
		database.TableMacros,
		database.TableIcons,
		database.TablePolicies,
		database.TableArtifacts,
	} {
		query := fmt.Sprintf(`DELETE FROM %s`, s.table(logical))
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("clearing %s: %w", logical, err)
		}
	}
	return nil
}
