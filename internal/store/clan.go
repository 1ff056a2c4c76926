package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/savecore/humanitz-core/internal/model"
)

// UpsertClan inserts or replaces a clan and its full member list in one
// transaction: the member rows are replaced wholesale rather than diffed,
// mirroring the teacher's clan/subpledge cascade-replace shape.
func (s *Store) UpsertClan(ctx context.Context, clan model.Clan, members []model.ClanMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO clans(name, created_at) VALUES (?, ?)
			ON CONFLICT(name) DO NOTHING`, clan.Name, formatTime(clan.CreatedAt)); err != nil {
			return fmt.Errorf("upserting clan %q: %w", clan.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM clan_members WHERE clan_name = ?`, clan.Name); err != nil {
			return fmt.Errorf("clearing members of %q: %w", clan.Name, err)
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO clan_members (clan_name, account_id, display_name, rank, can_invite, can_kick)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing member insert: %w", err)
		}
		defer stmt.Close()
		for _, m := range members {
			if _, err := stmt.ExecContext(ctx, clan.Name, m.AccountID, m.DisplayName, m.Rank, m.CanInvite, m.CanKick); err != nil {
				return fmt.Errorf("inserting member %q of %q: %w", m.AccountID, clan.Name, err)
			}
		}
		return nil
	})
}

// DeleteClan removes a clan; clan_members cascades via the foreign key.
func (s *Store) DeleteClan(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM clans WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting clan %q: %w", name, err)
	}
	return nil
}

// GetClan returns a clan and its members, or (nil, nil, nil) if absent.
func (s *Store) GetClan(ctx context.Context, name string) (*model.Clan, []model.ClanMember, error) {
	var clan model.Clan
	var createdAt string
	err := s.db.QueryRowContext(ctx, `SELECT name, created_at FROM clans WHERE name = ?`, name).
		Scan(&clan.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("querying clan %q: %w", name, err)
	}
	clan.CreatedAt = parseTime(createdAt)

	rows, err := s.db.QueryContext(ctx, `
		SELECT clan_name, account_id, display_name, rank, can_invite, can_kick
		FROM clan_members WHERE clan_name = ? ORDER BY account_id`, name)
	if err != nil {
		return nil, nil, fmt.Errorf("querying members of %q: %w", name, err)
	}
	defer rows.Close()

	var members []model.ClanMember
	for rows.Next() {
		var m model.ClanMember
		if err := rows.Scan(&m.ClanName, &m.AccountID, &m.DisplayName, &m.Rank, &m.CanInvite, &m.CanKick); err != nil {
			return nil, nil, fmt.Errorf("scanning clan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return &clan, members, nil
}

// ListClans returns every clan name, alphabetically.
func (s *Store) ListClans(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM clans ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing clans: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
