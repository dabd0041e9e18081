// Package artifact implements chimera's content-addressed blob store.
// Every executable body (script, SQL template, dashboard source) is stored
// once, keyed by the lowercase hex SHA-256 of its bytes. Registry rows
// reference artifacts by digest; the dispatcher re-verifies the digest on
// every call so silent corruption cannot execute.
package artifact

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"chimera/internal/api"
	"chimera/internal/database"
)

// Digest computes the content address of a body.
func Digest(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

// Store persists artifacts in the metadata database.
type Store struct {
	db    *database.DB
	names *database.Names
}

// NewStore binds an artifact store to an open metadata database.
func NewStore(db *database.DB, names *database.Names) *Store {
	return &Store{db: db, names: names}
}

func (s *Store) table() string { return s.names.Resolve(database.TableArtifacts) }

// Put stores a body under its digest and returns the digest. Identical
// bytes are stored once; re-putting with a different kind retags the
// existing row.
func (s *Store) Put(ctx context.Context, body string, kind api.ArtifactKind) (string, error) {
	if _, err := api.ParseArtifactKind(string(kind)); err != nil {
		return "", err
	}
	digest := Digest(body)
	query := s.db.Rebind(fmt.Sprintf(
		`INSERT INTO %s (digest, body, kind, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (digest) DO UPDATE SET kind = excluded.kind`, s.table()))
	if _, err := s.db.ExecContext(ctx, query, digest, body, string(kind), time.Now().UTC()); err != nil {
		return "", fmt.Errorf("storing artifact %s: %w", shortDigest(digest), err)
	}
	return digest, nil
}

// Get loads an artifact by digest.
func (s *Store) Get(ctx context.Context, digest string) (*api.Artifact, error) {
	query := s.db.Rebind(fmt.Sprintf(
		`SELECT digest, body, kind, created_at FROM %s WHERE digest = ?`, s.table()))
	var (
		a    api.Artifact
		kind string
	)
	err := s.db.QueryRowxContext(ctx, query, digest).Scan(&a.Digest, &a.Body, &kind, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("artifact %s: %w", shortDigest(digest), api.ErrArtifactMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("loading artifact %s: %w", shortDigest(digest), err)
	}
	parsed, err := api.ParseArtifactKind(kind)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", shortDigest(digest), err)
	}
	a.Kind = parsed
	return &a, nil
}

// GetVerified loads an artifact and recomputes its digest. A body that no
// longer hashes to its key is reported as corrupt, never returned.
func (s *Store) GetVerified(ctx context.Context, digest string) (*api.Artifact, error) {
	a, err := s.Get(ctx, digest)
	if err != nil {
		return nil, err
	}
	if got := Digest(a.Body); got != digest {
		return nil, fmt.Errorf("artifact %s hashes to %s: %w",
			shortDigest(digest), shortDigest(got), api.ErrArtifactCorrupt)
	}
	return a, nil
}

// List returns every stored artifact, newest first. Used by spec export.
func (s *Store) List(ctx context.Context) ([]api.Artifact, error) {
	query := fmt.Sprintf(
		`SELECT digest, body, kind, created_at FROM %s ORDER BY created_at DESC, digest`, s.table())
	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}
	defer rows.Close()

	var out []api.Artifact
	for rows.Next() {
		var (
			a    api.Artifact
			kind string
		)
		if err := rows.Scan(&a.Digest, &a.Body, &kind, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning artifact row: %w", err)
		}
		parsed, err := api.ParseArtifactKind(kind)
		if err != nil {
			return nil, err
		}
		a.Kind = parsed
		out = append(out, a)
	}
	return out, rows.Err()
}

// shortDigest abbreviates a digest for log and error messages.
func shortDigest(d string) string {
	if len(d) > 16 {
		return d[:16]
	}
	return d
}
