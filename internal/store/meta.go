package store

import (
	"context"
	"database/sql"
	"fmt"
)

// GetMeta returns a meta table value, or "" if unset.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.stmt("getMeta").QueryRowContext(ctx, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying meta %q: %w", key, err)
	}
	return v, nil
}

// SetMeta upserts a meta table key/value pair.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.stmt("upsertMeta").ExecContext(ctx, key, value)
	if err != nil {
		return fmt.Errorf("setting meta %q: %w", key, err)
	}
	return nil
}

// SchemaVersion returns the schema_version recorded by the last successful Open.
func (s *Store) SchemaVersion(ctx context.Context) (string, error) {
	return s.GetMeta(ctx, "schema_version")
}
