package database

import (
	"context"
	"fmt"
	"sync"

	"chimera/internal/api"
	"chimera/pkg/logging"
)

const subsystem = "Database"

// DataSession holds the optional data store connection. Unlike the metadata
// store it may be absent (offline mode) and can be re-opened at runtime via
// the reconnect_db meta-tool; every reader goes through Get so a reconnect
// is visible to all subsequent calls.
type DataSession struct {
	mu  sync.RWMutex
	db  *DB
	url string
}

// NewDataSession creates a session for the given URL and tries to connect.
// Connection failure is not fatal: the session starts offline and the error
// is returned for logging.
func NewDataSession(ctx context.Context, url string) (*DataSession, error) {
	s := &DataSession{url: url}
	if url == "" {
		return s, nil
	}
	db, err := Open(ctx, url)
	if err != nil {
		return s, fmt.Errorf("data database unreachable, starting offline: %w", err)
	}
	s.db = db
	return s, nil
}

// Get returns the live connection or ErrDataBackendUnavailable.
func (s *DataSession) Get() (*DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, fmt.Errorf("data store is offline: %w", api.ErrDataBackendUnavailable)
	}
	return s.db, nil
}

// Online reports whether a connection is currently held.
func (s *DataSession) Online() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db != nil
}

// Reconnect re-opens the connection from the configured URL, replacing any
// previous one. Success flips offline mode off for every later call.
func (s *DataSession) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.url == "" {
		return fmt.Errorf("no data database configured: %w", api.ErrDataBackendUnavailable)
	}
	db, err := Open(ctx, s.url)
	if err != nil {
		return fmt.Errorf("reconnecting data database: %w", err)
	}
	if s.db != nil {
		if cerr := s.db.Close(); cerr != nil {
			logging.Warn(subsystem, "Error closing previous data connection: %v", cerr)
		}
	}
	s.db = db
	logging.Info(subsystem, "Data database reconnected (%s)", db.Dialect)
	return nil
}

// Ping verifies the current connection.
func (s *DataSession) Ping(ctx context.Context) error {
	db, err := s.Get()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// Close releases the connection, if any.
func (s *DataSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			logging.Warn(subsystem, "Error closing data connection: %v", err)
		}
		s.db = nil
	}
}
