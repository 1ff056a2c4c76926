package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/savecore/humanitz-core/internal/model"
)

const upsertPlayerSQL = `
INSERT INTO players (
	account_id, name, name_history, first_seen, last_seen, online,
	male, starting_profession, affliction_index, appearance,
	kills, headshots, melee, firearm, blast, unarmed, takedown, vehicle_kills,
	lifetime_kills, lifetime_headshots, lifetime_melee, lifetime_firearm,
	lifetime_blast, lifetime_unarmed, lifetime_takedown, lifetime_vehicle_kills,
	lifetime_days_survived, has_extended_stats,
	days_survived, times_bitten, bite_count, fish_caught, pike_caught,
	health, health_max, hunger, hunger_max, thirst, thirst_max,
	stamina, stamina_max, infection, infection_max, battery, fatigue,
	infection_buildup, well_rested, energy, hood, hypo_handle,
	experience, position_x, position_y, position_z, rotation_yaw,
	respawn_x, respawn_y, respawn_z, radio_cooldown,
	status_effects, body_conditions, crafting_recipes, building_recipes,
	unlocked_professions, unlocked_skills, skill_tree, inventory, equipment,
	quick_slots, backpack, lore, unique_loot, quest_data, challenge_data,
	companions, horses, extended_stats_raw, custom_data, kill_tracker,
	challenge_counters, deaths, pvp_kills, pvp_deaths, builds, loots,
	damage_taken, raids_out, raids_in, last_event_at,
	playtime_seconds, session_count, updated_at
) VALUES (
	?, ?, ?, ?, ?, ?,
	?, ?, ?, ?,
	?, ?, ?, ?, ?, ?, ?, ?,
	?, ?, ?, ?,
	?, ?, ?, ?,
	?, ?,
	?, ?, ?, ?, ?,
	?, ?, ?, ?, ?, ?,
	?, ?, ?, ?, ?, ?,
	?, ?, ?, ?, ?,
	?, ?, ?, ?, ?,
	?, ?, ?, ?,
	?, ?, ?, ?,
	?, ?, ?, ?, ?,
	?, ?, ?, ?, ?, ?,
	?, ?, ?, ?, ?,
	?, ?, ?, ?, ?, ?,
	?, ?, ?, ?,
	?, ?, ?
)
ON CONFLICT(account_id) DO UPDATE SET
	name = excluded.name,
	name_history = excluded.name_history,
	last_seen = excluded.last_seen,
	online = excluded.online,
	male = excluded.male,
	starting_profession = excluded.starting_profession,
	affliction_index = excluded.affliction_index,
	appearance = excluded.appearance,
	kills = excluded.kills,
	headshots = excluded.headshots,
	melee = excluded.melee,
	firearm = excluded.firearm,
	blast = excluded.blast,
	unarmed = excluded.unarmed,
	takedown = excluded.takedown,
	vehicle_kills = excluded.vehicle_kills,
	lifetime_kills = excluded.lifetime_kills,
	lifetime_headshots = excluded.lifetime_headshots,
	lifetime_melee = excluded.lifetime_melee,
	lifetime_firearm = excluded.lifetime_firearm,
	lifetime_blast = excluded.lifetime_blast,
	lifetime_unarmed = excluded.lifetime_unarmed,
	lifetime_takedown = excluded.lifetime_takedown,
	lifetime_vehicle_kills = excluded.lifetime_vehicle_kills,
	lifetime_days_survived = excluded.lifetime_days_survived,
	has_extended_stats = excluded.has_extended_stats,
	days_survived = excluded.days_survived,
	times_bitten = excluded.times_bitten,
	bite_count = excluded.bite_count,
	fish_caught = excluded.fish_caught,
	pike_caught = excluded.pike_caught,
	health = excluded.health,
	health_max = excluded.health_max,
	hunger = excluded.hunger,
	hunger_max = excluded.hunger_max,
	thirst = excluded.thirst,
	thirst_max = excluded.thirst_max,
	stamina = excluded.stamina,
	stamina_max = excluded.stamina_max,
	infection = excluded.infection,
	infection_max = excluded.infection_max,
	battery = excluded.battery,
	fatigue = excluded.fatigue,
	infection_buildup = excluded.infection_buildup,
	well_rested = excluded.well_rested,
	energy = excluded.energy,
	hood = excluded.hood,
	hypo_handle = excluded.hypo_handle,
	experience = excluded.experience,
	position_x = excluded.position_x,
	position_y = excluded.position_y,
	position_z = excluded.position_z,
	rotation_yaw = excluded.rotation_yaw,
	respawn_x = excluded.respawn_x,
	respawn_y = excluded.respawn_y,
	respawn_z = excluded.respawn_z,
	radio_cooldown = excluded.radio_cooldown,
	status_effects = excluded.status_effects,
	body_conditions = excluded.body_conditions,
	crafting_recipes = excluded.crafting_recipes,
	building_recipes = excluded.building_recipes,
	unlocked_professions = excluded.unlocked_professions,
	unlocked_skills = excluded.unlocked_skills,
	skill_tree = excluded.skill_tree,
	inventory = excluded.inventory,
	equipment = excluded.equipment,
	quick_slots = excluded.quick_slots,
	backpack = excluded.backpack,
	lore = excluded.lore,
	unique_loot = excluded.unique_loot,
	quest_data = excluded.quest_data,
	challenge_data = excluded.challenge_data,
	companions = excluded.companions,
	horses = excluded.horses,
	extended_stats_raw = excluded.extended_stats_raw,
	custom_data = excluded.custom_data,
	kill_tracker = excluded.kill_tracker,
	challenge_counters = excluded.challenge_counters,
	deaths = excluded.deaths,
	pvp_kills = excluded.pvp_kills,
	pvp_deaths = excluded.pvp_deaths,
	builds = excluded.builds,
	loots = excluded.loots,
	damage_taken = excluded.damage_taken,
	raids_out = excluded.raids_out,
	raids_in = excluded.raids_in,
	last_event_at = excluded.last_event_at,
	playtime_seconds = excluded.playtime_seconds,
	session_count = excluded.session_count,
	updated_at = excluded.updated_at`

const getPlayerSQL = `
SELECT
	account_id, name, name_history, first_seen, last_seen, online,
	male, starting_profession, affliction_index, appearance,
	kills, headshots, melee, firearm, blast, unarmed, takedown, vehicle_kills,
	lifetime_kills, lifetime_headshots, lifetime_melee, lifetime_firearm,
	lifetime_blast, lifetime_unarmed, lifetime_takedown, lifetime_vehicle_kills,
	lifetime_days_survived, has_extended_stats,
	days_survived, times_bitten, bite_count, fish_caught, pike_caught,
	health, health_max, hunger, hunger_max, thirst, thirst_max,
	stamina, stamina_max, infection, infection_max, battery, fatigue,
	infection_buildup, well_rested, energy, hood, hypo_handle,
	experience, position_x, position_y, position_z, rotation_yaw,
	respawn_x, respawn_y, respawn_z, radio_cooldown,
	status_effects, body_conditions, crafting_recipes, building_recipes,
	unlocked_professions, unlocked_skills, skill_tree, inventory, equipment,
	quick_slots, backpack, lore, unique_loot, quest_data, challenge_data,
	companions, horses, extended_stats_raw, custom_data, kill_tracker,
	challenge_counters, deaths, pvp_kills, pvp_deaths, builds, loots,
	damage_taken, raids_out, raids_in, last_event_at,
	playtime_seconds, session_count, updated_at
FROM players WHERE account_id = ?`

// UpsertPlayer inserts or updates a player row in place, per spec §4.4's
// "upsert-per-entity" rule: every scalar is overwritten, collections are
// replaced wholesale, first_seen is never touched once set.
func (s *Store) UpsertPlayer(ctx context.Context, p *model.PlayerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nameHistory, err := json.Marshal(orEmptySlice(p.NameHistory))
	if err != nil {
		return fmt.Errorf("marshaling name history: %w", err)
	}
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

	_, err = s.stmt("upsertPlayer").ExecContext(ctx,
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
		return fmt.Errorf("upserting player %q: %w", p.AccountID, err)
	}
	return nil
}

// GetPlayer returns the player row for accountID, or (nil, nil) if absent.
func (s *Store) GetPlayer(ctx context.Context, accountID string) (*model.PlayerRecord, error) {
	row := s.stmt("getPlayer").QueryRowContext(ctx, accountID)
	p, err := scanPlayer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying player %q: %w", accountID, err)
	}
	return p, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPlayer(row scannable) (*model.PlayerRecord, error) {
	var p model.PlayerRecord
	var (
		firstSeen, lastSeen, lastEventAt, updatedAt                                      string
		nameHistory, appearance, statusEffects, bodyConditions, craftingRecipes          string
		buildingRecipes, unlockedProfessions, unlockedSkills, skillTree                  string
		inventory, equipment, quickSlots, backpack, lore, uniqueLoot                     string
		questData, challengeData, companions, horses, extendedStatsRaw, customData      string
		killTracker, challengeCounters                                                  string
	)
	err := row.Scan(
		&p.AccountID, &p.Name, &nameHistory, &firstSeen, &lastSeen, &p.Online,
		&p.Male, &p.StartingProfession, &p.AfflictionIndex, &appearance,
		&p.Kills, &p.Headshots, &p.Melee, &p.Firearm, &p.Blast, &p.Unarmed, &p.Takedown, &p.VehicleKills,
		&p.LifetimeKills, &p.LifetimeHeadshots, &p.LifetimeMelee, &p.LifetimeFirearm,
		&p.LifetimeBlast, &p.LifetimeUnarmed, &p.LifetimeTakedown, &p.LifetimeVehicle,
		&p.LifetimeDaysSurvived, &p.HasExtendedStats,
		&p.DaysSurvived, &p.TimesBitten, &p.BiteCount, &p.FishCaught, &p.PikeCaught,
		&p.Health, &p.HealthMax, &p.Hunger, &p.HungerMax, &p.Thirst, &p.ThirstMax,
		&p.Stamina, &p.StaminaMax, &p.Infection, &p.InfectionMax, &p.Battery, &p.Fatigue,
		&p.InfectionBuildup, &p.WellRested, &p.Energy, &p.Hood, &p.HypoHandle,
		&p.Experience, &p.PositionX, &p.PositionY, &p.PositionZ, &p.RotationYaw,
		&p.RespawnX, &p.RespawnY, &p.RespawnZ, &p.RadioCooldown,
		&statusEffects, &bodyConditions, &craftingRecipes, &buildingRecipes,
		&unlockedProfessions, &unlockedSkills, &skillTree, &inventory, &equipment,
		&quickSlots, &backpack, &lore, &uniqueLoot, &questData, &challengeData,
		&companions, &horses, &extendedStatsRaw, &customData, &killTracker,
		&challengeCounters, &p.Deaths, &p.PvPKills, &p.PvPDeaths, &p.Builds, &p.Loots,
		&p.DamageTaken, &p.RaidsOut, &p.RaidsIn, &lastEventAt,
		&p.PlaytimeSeconds, &p.SessionCount, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.FirstSeen = parseTime(firstSeen)
	p.LastSeen = parseTime(lastSeen)
	p.LastEventAt = parseTime(lastEventAt)
	p.UpdatedAt = parseTime(updatedAt)
	p.Appearance = appearance

	_ = json.Unmarshal([]byte(nameHistory), &p.NameHistory)
	_ = json.Unmarshal([]byte(statusEffects), &p.StatusEffects)
	_ = json.Unmarshal([]byte(bodyConditions), &p.BodyConditions)
	_ = json.Unmarshal([]byte(craftingRecipes), &p.CraftingRecipes)
	_ = json.Unmarshal([]byte(buildingRecipes), &p.BuildingRecipes)
	_ = json.Unmarshal([]byte(unlockedProfessions), &p.UnlockedProfessions)
	_ = json.Unmarshal([]byte(unlockedSkills), &p.UnlockedSkills)
	_ = json.Unmarshal([]byte(skillTree), &p.SkillTree)
	_ = json.Unmarshal([]byte(inventory), &p.Inventory)
	_ = json.Unmarshal([]byte(equipment), &p.Equipment)
	_ = json.Unmarshal([]byte(quickSlots), &p.QuickSlots)
	_ = json.Unmarshal([]byte(backpack), &p.Backpack)
	_ = json.Unmarshal([]byte(lore), &p.Lore)
	_ = json.Unmarshal([]byte(uniqueLoot), &p.UniqueLoot)
	_ = json.Unmarshal([]byte(questData), &p.QuestData)
	_ = json.Unmarshal([]byte(challengeData), &p.ChallengeData)
	_ = json.Unmarshal([]byte(companions), &p.Companions)
	_ = json.Unmarshal([]byte(horses), &p.Horses)
	_ = json.Unmarshal([]byte(extendedStatsRaw), &p.ExtendedStatsRaw)
	_ = json.Unmarshal([]byte(customData), &p.CustomData)
	_ = json.Unmarshal([]byte(killTracker), &p.KillTracker)
	_ = json.Unmarshal([]byte(challengeCounters), &p.ChallengeCounters)

	return &p, nil
}

// ListPlayers returns every player row, ordered by account_id.
func (s *Store) ListPlayers(ctx context.Context) ([]*model.PlayerRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT account_id FROM players ORDER BY account_id`)
	if err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning player id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*model.PlayerRecord, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetPlayer(ctx, id)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func orEmptySlice[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

func orEmptySlotSlice(v []model.InventorySlot) []model.InventorySlot {
	if v == nil {
		return []model.InventorySlot{}
	}
	return v
}

func orEmptyMap(v map[string]int) map[string]int {
	if v == nil {
		return map[string]int{}
	}
	return v
}

func orEmptyIntMap(v map[string]int64) map[string]int64 {
	if v == nil {
		return map[string]int64{}
	}
	return v
}

func orEmptyFloatMap(v map[string]float64) map[string]float64 {
	if v == nil {
		return map[string]float64{}
	}
	return v
}

func orEmptyAnyMap(v map[string]any) map[string]any {
	if v == nil {
		return map[string]any{}
	}
	return v
}
