package store

import (
	"context"
	"fmt"

	"github.com/savecore/humanitz-core/internal/model"
)

// Totals computes the single-row server-wide aggregation (spec §4.4
// "Server totals") in one query.
func (s *Store) Totals(ctx context.Context) (*model.ServerTotals, error) {
	var t model.ServerTotals
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(online), 0),
			COALESCE(SUM(lifetime_kills), 0),
			COALESCE(SUM(lifetime_headshots), 0),
			COALESCE(SUM(lifetime_days_survived), 0),
			COALESCE(SUM(deaths), 0),
			COALESCE(SUM(pvp_kills), 0),
			COALESCE(SUM(builds), 0),
			COALESCE(SUM(loots), 0),
			COALESCE(SUM(fish_caught), 0),
			COALESCE(SUM(playtime_seconds), 0)
		FROM players`,
	).Scan(
		&t.TotalPlayers, &t.OnlinePlayers, &t.LifetimeKills, &t.LifetimeHeadshots,
		&t.LifetimeDays, &t.LogDeaths, &t.LogPvPKills, &t.LogBuilds, &t.LogLoots,
		&t.FishCaught, &t.PlaytimeSeconds,
	)
	if err != nil {
		return nil, fmt.Errorf("computing server totals: %w", err)
	}
	return &t, nil
}
