package store

import (
	"context"
	"database/sql"
	"fmt"
)

// GetWorldState returns a world_state value, or "" if unset.
func (s *Store) GetWorldState(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM world_state WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying world state %q: %w", key, err)
	}
	return v, nil
}

// SetWorldState upserts a single world_state key/value pair outside of a
// save sync (e.g. a manual override).
func (s *Store) SetWorldState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.stmt("upsertWorldStateEntry").ExecContext(ctx, key, value)
	if err != nil {
		return fmt.Errorf("setting world state %q: %w", key, err)
	}
	return nil
}

// AllWorldState returns every world_state row as a map.
func (s *Store) AllWorldState(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM world_state`)
	if err != nil {
		return nil, fmt.Errorf("listing world state: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}
