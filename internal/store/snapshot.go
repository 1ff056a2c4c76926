package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/savecore/humanitz-core/internal/model"
)

// CreateSnapshot appends an immutable point-in-time payload (spec §4.4
// "Snapshots" — hourly/daily/weekly rollups, or an ad-hoc capture).
func (s *Store) CreateSnapshot(ctx context.Context, snapshotType, accountID, payload string, createdAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if payload == "" {
		payload = "{}"
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (type, account_id, payload, created_at) VALUES (?, ?, ?, ?)`,
		snapshotType, accountID, payload, formatTime(createdAt))
	if err != nil {
		return 0, fmt.Errorf("creating %q snapshot for %q: %w", snapshotType, accountID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading snapshot id: %w", err)
	}
	return id, nil
}

// GetLatestSnapshot returns the newest snapshot of the given type and
// account (accountID == "" matches server-wide snapshots), or nil if none
// exist.
func (s *Store) GetLatestSnapshot(ctx context.Context, snapshotType, accountID string) (*model.Snapshot, error) {
	var snap model.Snapshot
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, type, account_id, payload, created_at
		FROM snapshots
		WHERE type = ? AND account_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, snapshotType, accountID,
	).Scan(&snap.ID, &snap.Type, &snap.AccountID, &snap.Payload, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest %q snapshot for %q: %w", snapshotType, accountID, err)
	}
	snap.CreatedAt = parseTime(createdAt)
	return &snap, nil
}

// PurgeSnapshots deletes every snapshot of the given type older than cutoff.
func (s *Store) PurgeSnapshots(ctx context.Context, snapshotType string, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM snapshots WHERE type = ? AND created_at < ?`, snapshotType, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purging %q snapshots before %s: %w", snapshotType, cutoff, err)
	}
	return res.RowsAffected()
}
