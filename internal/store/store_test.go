package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/savecore/humanitz-core/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "save.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_WritesSchemaVersion(t *testing.T) {
	s := openTestStore(t)
	v, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	require.Equal(t, schemaVersion, v)
}

func TestUpsertPlayer_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := &model.PlayerRecord{
		AccountID: "76561198000000001",
		Name:      "Wanderer",
		Kills:     3,
		Inventory: []model.InventorySlot{{Item: "Axe", Amount: 1, Durability: 0.8}},
		LastSeen:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.UpsertPlayer(ctx, p))

	got, err := s.GetPlayer(ctx, p.AccountID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "Wanderer", got.Name)
	require.Equal(t, int64(3), got.Kills)
	require.Len(t, got.Inventory, 1)
	require.Equal(t, "Axe", got.Inventory[0].Item)
	firstSeen := got.FirstSeen

	// Re-upsert with new scalars; first_seen must not move, everything else must.
	p.Kills = 9
	p.Name = "Survivor"
	p.LastSeen = time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertPlayer(ctx, p))

	got2, err := s.GetPlayer(ctx, p.AccountID)
	require.NoError(t, err)
	require.Equal(t, "Survivor", got2.Name)
	require.Equal(t, int64(9), got2.Kills)
	require.True(t, firstSeen.Equal(got2.FirstSeen))
}

func TestGetPlayer_Missing(t *testing.T) {
	s := openTestStore(t)
	got, err := s.GetPlayer(context.Background(), "nobody")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSyncFromSave_Atomic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	players := []*model.PlayerRecord{
		{AccountID: "1", Name: "A"},
		{AccountID: "2", Name: "B"},
	}
	worldState := map[string]string{"daysPassed": "12"}
	x := 100.0
	structures := []model.Structure{{ID: 1, BlueprintClass: "Wall", PositionX: &x}}
	vehicles := []model.Vehicle{{ID: 1, Class: "Truck"}}
	companions := []model.Companion{{ID: 1, Type: "dog"}}

	require.NoError(t, s.SyncFromSave(ctx, players, worldState, structures, vehicles, companions))

	all, err := s.ListPlayers(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	v, err := s.GetWorldState(ctx, "daysPassed")
	require.NoError(t, err)
	require.Equal(t, "12", v)

	// A second sync with fewer structures must fully replace the table.
	require.NoError(t, s.SyncFromSave(ctx, players, worldState, nil, vehicles, companions))
	var count int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM structures`).Scan(&count))
	require.Equal(t, 0, count)
}

func TestClan_UpsertAndReplaceMembers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	clan := model.Clan{Name: "Wolves", CreatedAt: time.Now()}
	members := []model.ClanMember{
		{AccountID: "1", DisplayName: "A", Rank: "leader", CanInvite: true, CanKick: true},
		{AccountID: "2", DisplayName: "B", Rank: "member"},
	}
	require.NoError(t, s.UpsertClan(ctx, clan, members))

	got, gotMembers, err := s.GetClan(ctx, "Wolves")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, gotMembers, 2)

	require.NoError(t, s.UpsertClan(ctx, clan, members[:1]))
	_, gotMembers2, err := s.GetClan(ctx, "Wolves")
	require.NoError(t, err)
	require.Len(t, gotMembers2, 1)
}

func TestLeaderboard_OrdersDescending(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ids := []string{"acct-a", "acct-b", "acct-c"}
	for i, kills := range []int64{5, 20, 1} {
		p := &model.PlayerRecord{AccountID: ids[i], Name: ids[i], LifetimeKills: kills}
		require.NoError(t, s.UpsertPlayer(ctx, p))
	}

	top, err := s.Leaderboard(ctx, MetricLifetimeKills, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	require.Equal(t, int64(20), top[0].Value)
	require.Equal(t, int64(5), top[1].Value)
}

func TestTotals_Aggregates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertPlayer(ctx, &model.PlayerRecord{AccountID: "1", LifetimeKills: 10, Online: true}))
	require.NoError(t, s.UpsertPlayer(ctx, &model.PlayerRecord{AccountID: "2", LifetimeKills: 5}))

	totals, err := s.Totals(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), totals.TotalPlayers)
	require.Equal(t, int64(1), totals.OnlinePlayers)
	require.Equal(t, int64(15), totals.LifetimeKills)
}

func TestSnapshot_CreateGetPurge(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	_, err := s.CreateSnapshot(ctx, "daily", "1", `{"kills":1}`, old)
	require.NoError(t, err)
	_, err = s.CreateSnapshot(ctx, "daily", "1", `{"kills":2}`, time.Now())
	require.NoError(t, err)

	latest, err := s.GetLatestSnapshot(ctx, "daily", "1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.JSONEq(t, `{"kills":2}`, latest.Payload)

	purged, err := s.PurgeSnapshots(ctx, "daily", time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), purged)
}
