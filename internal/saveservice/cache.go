package saveservice

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/savecore/humanitz-core/internal/model"
)

// agentCache mirrors the remote parser script's output contract (spec
// §4.8 "Output contract", §6 "Agent cache file").
type agentCache struct {
	V          int64                         `json:"v"`
	Ts         string                        `json:"ts"`
	Mtime      int64                         `json:"mtime"`
	Players    map[string]*model.PlayerRecord `json:"players"`
	WorldState map[string]any                `json:"worldState"`
	Structures []model.Structure             `json:"structures"`
	Vehicles   []model.Vehicle               `json:"vehicles"`
	Companions []model.Companion             `json:"companions"`
	DeadBodies []model.DeadBody              `json:"deadBodies"`
	Containers []model.Container             `json:"containers"`
	LootActors []model.LootActor             `json:"lootActors"`
	Quests     []model.Quest                 `json:"quests"`
}

// decodeAgentCache validates and decodes the cache file's bytes: it must be
// a non-null JSON object with an integer version ≥ 1 (spec §4.5 step 2). Any
// other field is accepted even if this build predates it, since the format
// is explicitly forward-compatible.
func decodeAgentCache(data []byte) (*agentCache, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("saveservice: cache is not a JSON object: %w", err)
	}
	if probe == nil {
		return nil, fmt.Errorf("saveservice: cache decoded to null")
	}

	var cache agentCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, fmt.Errorf("saveservice: decoding cache: %w", err)
	}
	if cache.V < 1 {
		return nil, fmt.Errorf("saveservice: cache version %d is not >= 1", cache.V)
	}
	return &cache, nil
}

// syncFromCache pushes an agent-mode cache through the same store path the
// direct parse uses, skipping the binary parse entirely (spec §4.5 step 2).
// The cache format carries no clan roster, so ClanCount is always 0 here.
func (s *Service) syncFromCache(ctx context.Context, cache *agentCache, start time.Time) error {
	players := playersToSlice(cache.Players, s.cfg.NameOverrides)
	worldState := stringifyWorldState(cache.WorldState)

	if err := s.store.SyncFromSave(ctx, players, worldState, cache.Structures, cache.Vehicles, cache.Companions); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreTransactionFailed, err)
	}
	if err := s.store.ReplaceDeadBodies(ctx, cache.DeadBodies); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreTransactionFailed, err)
	}
	if err := s.store.ReplaceContainers(ctx, cache.Containers); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreTransactionFailed, err)
	}
	if err := s.store.ReplaceLootActors(ctx, cache.LootActors); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreTransactionFailed, err)
	}
	if err := s.store.ReplaceQuests(ctx, cache.Quests); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreTransactionFailed, err)
	}

	s.recordSync(SyncEvent{
		PlayerCount:    len(players),
		StructureCount: len(cache.Structures),
		VehicleCount:   len(cache.Vehicles),
		CompanionCount: len(cache.Companions),
		ClanCount:      0,
		WorldState:     worldState,
		Elapsed:        time.Since(start),
		AccountIDs:     accountIDs(players),
		Mode:           ModeAgent,
	})
	return nil
}
