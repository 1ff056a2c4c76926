package store

import (
	"context"
	"fmt"
)

// LeaderboardMetric identifies one of the fixed leaderboard sort columns
// named in spec §4.4 "Leaderboards".
type LeaderboardMetric string

const (
	MetricLifetimeKills       LeaderboardMetric = "lifetime_kills"
	MetricPlaytimeSeconds     LeaderboardMetric = "playtime_seconds"
	MetricLifetimeDaysSurvived LeaderboardMetric = "lifetime_days_survived"
	MetricFishCaught          LeaderboardMetric = "fish_caught"
	MetricTimesBitten         LeaderboardMetric = "times_bitten"
	MetricPvPKills            LeaderboardMetric = "pvp_kills" // spec's "log_pvp_kills" — sourced from the death log, not a save field
)

// leaderboardColumns whitelists the queryable column for each metric;
// the column name is never built from caller input, so this stays a
// plain parameterized query despite the column being interpolated.
var leaderboardColumns = map[LeaderboardMetric]string{
	MetricLifetimeKills:        "lifetime_kills",
	MetricPlaytimeSeconds:      "playtime_seconds",
	MetricLifetimeDaysSurvived: "lifetime_days_survived",
	MetricFishCaught:           "fish_caught",
	MetricTimesBitten:          "times_bitten",
	MetricPvPKills:             "pvp_kills",
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	AccountID string
	Name      string
	Value     int64
}

// Leaderboard returns the top `limit` players by metric, descending.
func (s *Store) Leaderboard(ctx context.Context, metric LeaderboardMetric, limit int) ([]LeaderboardEntry, error) {
	col, ok := leaderboardColumns[metric]
	if !ok {
		return nil, fmt.Errorf("unknown leaderboard metric %q", metric)
	}
	query := fmt.Sprintf(`SELECT account_id, name, %s FROM players ORDER BY %s DESC, account_id ASC LIMIT ?`, col, col)
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying leaderboard %q: %w", metric, err)
	}
	defer rows.Close()

	var out []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.AccountID, &e.Name, &e.Value); err != nil {
			return nil, fmt.Errorf("scanning leaderboard row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
