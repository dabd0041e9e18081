// Package dashboard stores ui-kind artifacts on disk for the external
// dashboard runner and resolves the URL a dispatched dashboard tool
// returns. The runner itself is outside the engine; the contract is a
// source file named after the tool in the storage directory plus a URL
// carrying the dashboard name.
package dashboard

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"

	"chimera/pkg/logging"
)

const subsystem = "Dashboard"

// namePattern restricts dashboard names to filesystem- and URL-safe forms.
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Manager writes dashboard sources and builds runner URLs.
type Manager struct {
	enabled bool
	dir     string
	baseURL string
}

// New builds a manager. When disabled, Save and URL fail with a clear
// message instead of touching disk.
func New(enabled bool, dir, baseURL string) *Manager {
	return &Manager{enabled: enabled, dir: dir, baseURL: baseURL}
}

// Enabled reports whether the dashboard feature is on.
func (m *Manager) Enabled() bool { return m.enabled }

// ValidateName checks a dashboard name against the allowed pattern.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("dashboard name %q must match %s", name, namePattern.String())
	}
	return nil
}

// Save writes the dashboard source to <dir>/<name> and returns the path.
func (m *Manager) Save(name, source string) (string, error) {
	if !m.enabled {
		return "", fmt.Errorf("dashboards are disabled")
	}
	if err := ValidateName(name); err != nil {
		return "", err
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating dashboard directory %s: %w", m.dir, err)
	}
	path := filepath.Join(m.dir, name)
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		return "", fmt.Errorf("writing dashboard %s: %w", name, err)
	}
	logging.Info(subsystem, "Stored dashboard %s at %s", name, path)
	return path, nil
}

// URL returns the runner URL for a dashboard; dispatching a ui-kind tool
// returns this string.
func (m *Manager) URL(name string) (string, error) {
	if !m.enabled {
		return "", fmt.Errorf("dashboards are disabled")
	}
	if err := ValidateName(name); err != nil {
		return "", err
	}
	u, err := url.Parse(m.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid dashboard base URL %q: %w", m.baseURL, err)
	}
	q := u.Query()
	q.Set("dashboard", name)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
