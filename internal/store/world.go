package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/savecore/humanitz-core/internal/model"
)

// SyncFromSave applies one parsed save in a single transaction: player
// upserts, world-state upserts, and a wholesale replace of structures,
// vehicles, and companions. Dead bodies, containers, loot actors, quests,
// clans, and server settings are synced in their own separate
// transactions around this call (see saveservice), so a failure in one
// of those doesn't roll back a sync this transaction already committed —
// spec §4.4 describes the whole sync as a single transaction; this is a
// deliberate, documented divergence (DESIGN.md), not an oversight.
func (s *Store) SyncFromSave(ctx context.Context, players []*model.PlayerRecord, worldState map[string]string, structures []model.Structure, vehicles []model.Vehicle, companions []model.Companion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning sync transaction: %w", err)
	}
	defer tx.Rollback()

	for _, p := range players {
		if err := upsertPlayerTx(ctx, tx, p); err != nil {
			return err
		}
	}
	for k, v := range worldState {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO world_state(key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			return fmt.Errorf("upserting world_state %q: %w", k, err)
		}
	}
	if err := replaceStructuresTx(ctx, tx, structures); err != nil {
		return err
	}
	if err := replaceVehiclesTx(ctx, tx, vehicles); err != nil {
		return err
	}
	if err := replaceCompanionsTx(ctx, tx, companions); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing sync transaction: %w", err)
	}
	return nil
}

// upsertPlayerTx duplicates UpsertPlayer's column list against a *sql.Tx;
// SyncFromSave needs every write inside one transaction, so the prepared
// top-level statement (bound to s.db, not a Tx) can't be reused here.
func upsertPlayerTx(ctx context.Context, tx *sql.Tx, p *model.PlayerRecord) error {
	nameHistory, _ := json.Marshal(orEmptySlice(p.NameHistory))
	appearance := p.Appearance
	if appearance == "" {
		appearance = "{}"
	}
	statusEffects, _ := json.Marshal(orEmptySlice(p.StatusEffects))
	bodyConditions, _ := json.Marshal(orEmptySlice(p.BodyConditions))
	craftingRecipes, _ := json.Marshal(orEmptySlice(p.CraftingRecipes))
	buildingRecipes, _ := json.Marshal(orEmptySlice(p.BuildingRecipes))
	unlockedProfessions, _ := json.Marshal(orEmptySlice(p.UnlockedProfessions))
	unlockedSkills, _ := json.Marshal(orEmptySlice(p.UnlockedSkills))
	skillTree, _ := json.Marshal(orEmptyMap(p.SkillTree))
	inventory, _ := json.Marshal(orEmptySlotSlice(p.Inventory))
	equipment, _ := json.Marshal(orEmptySlotSlice(p.Equipment))
	quickSlots, _ := json.Marshal(orEmptySlotSlice(p.QuickSlots))
	backpack, _ := json.Marshal(orEmptySlotSlice(p.Backpack))
	lore, _ := json.Marshal(orEmptySlice(p.Lore))
	uniqueLoot, _ := json.Marshal(orEmptySlice(p.UniqueLoot))
	questData, _ := json.Marshal(orEmptyAnyMap(p.QuestData))
	challengeData, _ := json.Marshal(orEmptyAnyMap(p.ChallengeData))
	companions, _ := json.Marshal(orEmptySlice(p.Companions))
	horses, _ := json.Marshal(orEmptySlice(p.Horses))
	extendedStatsRaw, _ := json.Marshal(orEmptyFloatMap(p.ExtendedStatsRaw))
	customData, _ := json.Marshal(orEmptyAnyMap(p.CustomData))
	killTracker, _ := json.Marshal(orEmptyIntMap(p.KillTracker))
	challengeCounters, _ := json.Marshal(orEmptyIntMap(p.ChallengeCounters))

	firstSeen := p.FirstSeen
	if firstSeen.IsZero() {
		firstSeen = p.LastSeen
	}

	_, err := tx.ExecContext(ctx, upsertPlayerSQL,
		p.AccountID, p.Name, string(nameHistory), formatTime(firstSeen), formatTime(p.LastSeen), p.Online,
		p.Male, p.StartingProfession, p.AfflictionIndex, appearance,
		p.Kills, p.Headshots, p.Melee, p.Firearm, p.Blast, p.Unarmed, p.Takedown, p.VehicleKills,
		p.LifetimeKills, p.LifetimeHeadshots, p.LifetimeMelee, p.LifetimeFirearm,
		p.LifetimeBlast, p.LifetimeUnarmed, p.LifetimeTakedown, p.LifetimeVehicle,
		p.LifetimeDaysSurvived, p.HasExtendedStats,
		p.DaysSurvived, p.TimesBitten, p.BiteCount, p.FishCaught, p.PikeCaught,
		p.Health, p.HealthMax, p.Hunger, p.HungerMax, p.Thirst, p.ThirstMax,
		p.Stamina, p.StaminaMax, p.Infection, p.InfectionMax, p.Battery, p.Fatigue,
		p.InfectionBuildup, p.WellRested, p.Energy, p.Hood, p.HypoHandle,
		p.Experience, p.PositionX, p.PositionY, p.PositionZ, p.RotationYaw,
		p.RespawnX, p.RespawnY, p.RespawnZ, p.RadioCooldown,
		string(statusEffects), string(bodyConditions), string(craftingRecipes), string(buildingRecipes),
		string(unlockedProfessions), string(unlockedSkills), string(skillTree), string(inventory), string(equipment),
		string(quickSlots), string(backpack), string(lore), string(uniqueLoot), string(questData), string(challengeData),
		string(companions), string(horses), string(extendedStatsRaw), string(customData), string(killTracker),
		string(challengeCounters), p.Deaths, p.PvPKills, p.PvPDeaths, p.Builds, p.Loots,
		p.DamageTaken, p.RaidsOut, p.RaidsIn, formatTime(p.LastEventAt),
		p.PlaytimeSeconds, p.SessionCount, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upserting player %q in sync: %w", p.AccountID, err)
	}
	return nil
}

func replaceStructuresTx(ctx context.Context, tx *sql.Tx, structures []model.Structure) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM structures`); err != nil {
		return fmt.Errorf("clearing structures: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO structures (
			id, blueprint_class, display_name, owner_account_id,
			position_x, position_y, position_z,
			current_health, max_health, upgrade_level, trailer_attached,
			inventory, no_spawn, extra_data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing structure insert: %w", err)
	}
	defer stmt.Close()

	for _, st := range structures {
		inv, _ := json.Marshal(orEmptySlotSlice(st.Inventory))
		if _, err := stmt.ExecContext(ctx,
			st.ID, st.BlueprintClass, st.DisplayName, st.OwnerAccountID,
			st.PositionX, st.PositionY, st.PositionZ,
			st.CurrentHealth, st.MaxHealth, st.UpgradeLevel, st.TrailerAttached,
			string(inv), st.NoSpawn, st.ExtraData,
		); err != nil {
			return fmt.Errorf("inserting structure %d: %w", st.ID, err)
		}
	}
	return nil
}

func replaceVehiclesTx(ctx context.Context, tx *sql.Tx, vehicles []model.Vehicle) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM vehicles`); err != nil {
		return fmt.Errorf("clearing vehicles: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vehicles (
			id, class, display_name, position_x, position_y, position_z,
			health, max_health, fuel, inventory, upgrades, extra
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing vehicle insert: %w", err)
	}
	defer stmt.Close()

	for _, v := range vehicles {
		inv, _ := json.Marshal(orEmptySlotSlice(v.Inventory))
		upgrades, _ := json.Marshal(orEmptySlice(v.Upgrades))
		if _, err := stmt.ExecContext(ctx,
			v.ID, v.Class, v.DisplayName, v.PositionX, v.PositionY, v.PositionZ,
			v.Health, v.MaxHealth, v.Fuel, string(inv), string(upgrades), v.Extra,
		); err != nil {
			return fmt.Errorf("inserting vehicle %d: %w", v.ID, err)
		}
	}
	return nil
}

func replaceCompanionsTx(ctx context.Context, tx *sql.Tx, companions []model.Companion) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM companions`); err != nil {
		return fmt.Errorf("clearing companions: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO companions (
			id, type, actor_name, owner_account_id,
			position_x, position_y, position_z, health, extra
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing companion insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range companions {
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.Type, c.ActorName, c.OwnerAccountID,
			c.PositionX, c.PositionY, c.PositionZ, c.Health, c.Extra,
		); err != nil {
			return fmt.Errorf("inserting companion %d: %w", c.ID, err)
		}
	}
	return nil
}

// ReplaceDeadBodies replaces the dead_bodies table wholesale; spec §4.4
// treats each of these minor world tables as an independently atomic
// replace rather than folding it into the main SyncFromSave transaction,
// since they're sourced from a different save section and refreshed on a
// different cadence in practice.
func (s *Store) ReplaceDeadBodies(ctx context.Context, bodies []model.DeadBody) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM dead_bodies`); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO dead_bodies (id, owner_name, position_x, position_y, position_z, extra)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, b := range bodies {
			if _, err := stmt.ExecContext(ctx, b.ID, b.OwnerName, b.PositionX, b.PositionY, b.PositionZ, b.Extra); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceContainers replaces the containers table wholesale.
func (s *Store) ReplaceContainers(ctx context.Context, containers []model.Container) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM containers`); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO containers (id, actor_name, items, extra) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, c := range containers {
			items, _ := json.Marshal(orEmptySlotSlice(c.Items))
			if _, err := stmt.ExecContext(ctx, c.ID, c.ActorName, string(items), c.Extra); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceLootActors replaces the loot_actors table wholesale.
func (s *Store) ReplaceLootActors(ctx context.Context, actors []model.LootActor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM loot_actors`); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO loot_actors (id, actor_name, items, extra) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, a := range actors {
			items, _ := json.Marshal(orEmptySlotSlice(a.Items))
			if _, err := stmt.ExecContext(ctx, a.ID, a.ActorName, string(items), a.Extra); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceQuests replaces the quests table wholesale.
func (s *Store) ReplaceQuests(ctx context.Context, quests []model.Quest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM quests`); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO quests (id, name, data) VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, q := range quests {
			data := q.Data
			if data == "" {
				data = "{}"
			}
			if _, err := stmt.ExecContext(ctx, q.ID, q.Name, data); err != nil {
				return err
			}
		}
		return nil
	})
}

// withTx runs fn inside a transaction, committing on success and rolling
// back otherwise. Callers must already hold s.mu.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// UpsertServerSetting sets a single server_settings key/value pair.
func (s *Store) UpsertServerSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.stmt("upsertServerSetting").ExecContext(ctx, key, value)
	if err != nil {
		return fmt.Errorf("upserting server setting %q: %w", key, err)
	}
	return nil
}

// GetServerSetting returns a server_settings value, or "" if unset.
func (s *Store) GetServerSetting(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM server_settings WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying server setting %q: %w", key, err)
	}
	return v, nil
}
