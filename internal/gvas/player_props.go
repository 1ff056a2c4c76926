package gvas

import (
	"encoding/json"
	"math"

	"github.com/savecore/humanitz-core/internal/model"
)

// handlePlayerProperty implements spec §4.3.1 point 4: the big per-player
// scalar/collection switch that runs while a SteamID/NetID has established
// ctx.currentAccount for the enclosing property list.
func handlePlayerProperty(ctx *parseContext, name string, prop *Property) {
	p := ctx.player()

	switch name {
	case "PlayerName":
		if s, ok := prop.Value.(string); ok {
			p.Name = s
		}
	case "Male":
		if b, ok := prop.Value.(bool); ok {
			p.Male = b
		}
	case "StartingProfession":
		if s, ok := prop.Value.(string); ok {
			p.StartingProfession = resolveProfession(s, 0, true)
		}
	case "StartingProfessionIndex":
		if v, ok := numeric(prop.Value); ok {
			p.StartingProfession = resolveProfession("", int64(v), false)
		}
	case "AfflictionIndex":
		if v, ok := numeric(prop.Value); ok {
			p.AfflictionIndex = int(v)
		}
	case "CharacterAppearance":
		if sv, ok := prop.Value.(*StructValue); ok {
			if payload, err := json.Marshal(flattenStruct(sv)); err == nil {
				p.Appearance = string(payload)
			}
		}

	case "Kills":
		setI64(prop, &p.Kills)
	case "Headshots":
		setI64(prop, &p.Headshots)
	case "MeleeKills":
		setI64(prop, &p.Melee)
	case "FirearmKills":
		setI64(prop, &p.Firearm)
	case "BlastKills":
		setI64(prop, &p.Blast)
	case "UnarmedKills":
		setI64(prop, &p.Unarmed)
	case "TakedownKills":
		setI64(prop, &p.Takedown)
	case "VehicleKills":
		setI64(prop, &p.VehicleKills)

	case "DayzSurvived":
		setI64(prop, &p.DaysSurvived)
	case "TimesBitten":
		setI64(prop, &p.TimesBitten)
	case "BiteCount":
		setI64(prop, &p.BiteCount)
	case "FishCaught":
		setI64(prop, &p.FishCaught)
	case "PikeCaught":
		setI64(prop, &p.PikeCaught)

	case "Health":
		setRound1(prop, &p.Health)
	case "HealthMax":
		setRound1(prop, &p.HealthMax)
	case "Hunger":
		setRound1(prop, &p.Hunger)
	case "HungerMax":
		setRound1(prop, &p.HungerMax)
	case "Thirst":
		setRound1(prop, &p.Thirst)
	case "ThirstMax":
		setRound1(prop, &p.ThirstMax)
	case "Stamina":
		setRound1(prop, &p.Stamina)
	case "StaminaMax":
		setRound1(prop, &p.StaminaMax)
	case "Infection":
		setRound1(prop, &p.Infection)
	case "InfectionMax":
		setRound1(prop, &p.InfectionMax)
	case "Battery":
		setRound1(prop, &p.Battery)
	case "Fatigue":
		setRound1(prop, &p.Fatigue)
	case "InfectionBuildup":
		setRound1(prop, &p.InfectionBuildup)
	case "WellRested":
		if b, ok := prop.Value.(bool); ok {
			p.WellRested = b
		}
	case "Energy":
		setRound1(prop, &p.Energy)
	case "Hood":
		if b, ok := prop.Value.(bool); ok {
			p.Hood = b
		}
	case "HypoHandle":
		setRound1(prop, &p.HypoHandle)

	case "Experience":
		setI64(prop, &p.Experience)
	case "RadioCooldown":
		setI64(prop, &p.RadioCooldown)

	case "PlayerTransform":
		if sv, ok := prop.Value.(*StructValue); ok && sv.Transform != nil {
			p.PositionX = round2(sv.Transform.Translation.X)
			p.PositionY = round2(sv.Transform.Translation.Y)
			p.PositionZ = round2(sv.Transform.Translation.Z)
			p.RotationYaw = round1(yawFromQuat(sv.Transform.Rotation))
		}
	case "RespawnPoint":
		if sv, ok := prop.Value.(*StructValue); ok && sv.Vector != nil {
			p.RespawnX = round2(sv.Vector.X)
			p.RespawnY = round2(sv.Vector.Y)
			p.RespawnZ = round2(sv.Vector.Z)
		}

	case "StatusEffects":
		p.StatusEffects = append(p.StatusEffects, stringsFromArray(prop)...)
	case "BodyConditions":
		p.BodyConditions = append(p.BodyConditions, stringsFromArray(prop)...)
	case "CraftingRecipes":
		p.CraftingRecipes = append(p.CraftingRecipes, stringsFromArray(prop)...)
	case "BuildingRecipes":
		p.BuildingRecipes = append(p.BuildingRecipes, stringsFromArray(prop)...)
	case "UnlockedProfessions":
		p.UnlockedProfessions = append(p.UnlockedProfessions, stringsFromArray(prop)...)
	case "UnlockedSkills":
		p.UnlockedSkills = append(p.UnlockedSkills, stringsFromArray(prop)...)
	case "Lore":
		p.Lore = append(p.Lore, stringsFromArray(prop)...)
	case "UniqueLoot":
		p.UniqueLoot = append(p.UniqueLoot, stringsFromArray(prop)...)
	case "CompanionList":
		p.Companions = append(p.Companions, stringsFromArray(prop)...)
	case "HorseList":
		p.Horses = append(p.Horses, stringsFromArray(prop)...)

	case "Inventory":
		p.Inventory = append(p.Inventory, slotsFromArray(prop)...)
	case "Equipment":
		p.Equipment = append(p.Equipment, slotsFromArray(prop)...)
	case "QuickSlots":
		p.QuickSlots = append(p.QuickSlots, slotsFromArray(prop)...)
	case "Backpack":
		p.Backpack = append(p.Backpack, slotsFromArray(prop)...)

	case "SkillTree":
		mergeIntMap(prop, p.SkillTree)
	case "GameStats":
		mergeInt64Map(prop, p.KillTracker)
	case "FloatData":
		mergeFloatMap(prop, p.ExtendedStatsRaw)
	case "CustomData":
		mergeAnyMap(prop, p.CustomData)

	case "QuestData":
		mergeAnyMapFromStruct(prop, p.QuestData)
	case "ChallengeData":
		mergeAnyMapFromStruct(prop, p.ChallengeData)

	default:
		if len(name) > 10 && name[:10] == "Challenge_" {
			if v, ok := numeric(prop.Value); ok {
				p.ChallengeCounters[name[10:]] = int64(v)
			}
		}
	}
}

func setI64(prop *Property, dst *int64) {
	if v, ok := numeric(prop.Value); ok {
		*dst = int64(v)
	}
}

func setRound1(prop *Property, dst *float64) {
	if v, ok := numeric(prop.Value); ok {
		*dst = round1(v)
	}
}

// yawFromQuat derives a heading in degrees from a rotation quaternion's yaw
// component (spec §4.3.1 "position": "yaw = atan2(2zw, 1-2z^2) in degrees").
func yawFromQuat(q Quat) float64 {
	return math.Atan2(2*q.Z*q.W, 1-2*q.Z*q.Z) * 180 / math.Pi
}

func slotsFromArray(prop *Property) []model.InventorySlot {
	av, ok := prop.Value.(*ArrayValue)
	if !ok {
		return nil
	}
	out := make([]model.InventorySlot, 0, len(av.Slots))
	for _, raw := range av.Slots {
		out = append(out, model.InventorySlot{Item: raw.Item, Amount: raw.Amount, Durability: raw.Durability})
	}
	return out
}

func mergeIntMap(prop *Property, dst map[string]int) {
	mv, ok := prop.Value.(*MapValue)
	if !ok || mv.Skipped {
		return
	}
	for _, pair := range mv.Pairs {
		k, ok := pair.Key.(string)
		if !ok {
			continue
		}
		if v, ok := numeric(pair.Value); ok {
			dst[k] = int(v)
		}
	}
}

func mergeInt64Map(prop *Property, dst map[string]int64) {
	mv, ok := prop.Value.(*MapValue)
	if !ok || mv.Skipped {
		return
	}
	for _, pair := range mv.Pairs {
		k, ok := pair.Key.(string)
		if !ok {
			continue
		}
		if v, ok := numeric(pair.Value); ok {
			dst[k] = int64(math.Round(v))
		}
	}
}

func mergeFloatMap(prop *Property, dst map[string]float64) {
	mv, ok := prop.Value.(*MapValue)
	if !ok || mv.Skipped {
		return
	}
	for _, pair := range mv.Pairs {
		k, ok := pair.Key.(string)
		if !ok {
			continue
		}
		if v, ok := numeric(pair.Value); ok {
			dst[k] = round2(v)
		}
	}
}

func mergeAnyMap(prop *Property, dst map[string]any) {
	mv, ok := prop.Value.(*MapValue)
	if !ok || mv.Skipped {
		return
	}
	for _, pair := range mv.Pairs {
		k, ok := pair.Key.(string)
		if !ok {
			continue
		}
		dst[k] = pair.Value
	}
}

// mergeAnyMapFromStruct flattens a generic StructProperty's children into
// dst, used for quest/challenge blobs that arrive as a property list rather
// than a MapProperty.
func mergeAnyMapFromStruct(prop *Property, dst map[string]any) {
	sv, ok := prop.Value.(*StructValue)
	if !ok {
		return
	}
	for _, c := range sv.Children {
		dst[cleanName(c.Name)] = propertyScalar(c)
	}
}
