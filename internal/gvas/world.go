package gvas

import (
	"encoding/json"
	"fmt"

	"github.com/savecore/humanitz-core/internal/model"
)

// handleWorldProperty processes a top-level property while no player
// account is active (spec §4.3.1 point 3): structure/vehicle/companion/
// loot parallel arrays are buffered (or extracted immediately where the
// array already carries full structs), and scalar keys populate WorldState.
func handleWorldProperty(ctx *parseContext, name string, prop *Property) {
	switch name {
	case "BuildActorClass":
		ctx.buildClasses = stringsFromArray(prop)
		return
	case "BuildActorTransform":
		if av, ok := prop.Value.(*ArrayValue); ok {
			ctx.buildTransformN = int(av.Count)
			ctx.buildPosX = make([]float64, 0, len(av.InlineStructs))
			ctx.buildPosY = make([]float64, 0, len(av.InlineStructs))
			ctx.buildPosZ = make([]float64, 0, len(av.InlineStructs))
			for _, sv := range av.InlineStructs {
				if sv.Vector != nil {
					ctx.buildPosX = append(ctx.buildPosX, sv.Vector.X)
					ctx.buildPosY = append(ctx.buildPosY, sv.Vector.Y)
					ctx.buildPosZ = append(ctx.buildPosZ, sv.Vector.Z)
				} else if sv.Transform != nil {
					ctx.buildPosX = append(ctx.buildPosX, sv.Transform.Translation.X)
					ctx.buildPosY = append(ctx.buildPosY, sv.Transform.Translation.Y)
					ctx.buildPosZ = append(ctx.buildPosZ, sv.Transform.Translation.Z)
				} else {
					ctx.buildPosX = append(ctx.buildPosX, 0)
					ctx.buildPosY = append(ctx.buildPosY, 0)
					ctx.buildPosZ = append(ctx.buildPosZ, 0)
				}
			}
		}
		return
	case "BuildingCurrentHealth":
		ctx.buildCurHealth = floatsFromArray(prop)
		return
	case "BuildingMaxHealth":
		ctx.buildMaxHealth = floatsFromArray(prop)
		return
	case "BuildingUpgradeLv":
		ctx.buildUpgradeLv = intsFromArray(prop)
		return
	case "AttachedToTrailer":
		ctx.buildTrailer = boolsFromArray(prop)
		return
	case "BuildingStr":
		ctx.buildStr = stringsFromArray(prop)
		return
	case "BuildActorData":
		ctx.buildActorData = stringsFromArray(prop)
		return
	case "BuildActorsNoSpawn":
		ctx.buildNoSpawn = stringsFromArray(prop)
		return
	case "BuildActorInventory":
		extractBuildInventory(ctx, prop)
		return
	case "Cars":
		extractVehicles(ctx, prop)
		return
	case "Dogs":
		extractCompanions(ctx, prop, "dog")
		return
	case "Horses":
		extractCompanions(ctx, prop, "horse")
		return
	case "DeadBodies":
		extractDeadBodies(ctx, prop)
		return
	case "ContainerData":
		extractContainers(ctx, prop)
		return
	case "ModularLootActor":
		extractLootActors(ctx, prop)
		return
	case "QuestSavedData":
		extractQuests(ctx, prop)
		return
	case "Dedi_DaysPassed":
		if v, ok := numeric(prop.Value); ok {
			ctx.worldState["daysPassed"] = int64(v)
		}
		return
	case "CurrentSeason":
		if s, ok := prop.Value.(string); ok {
			if season, ok := seasonEnumTable[s]; ok {
				ctx.worldState["currentSeason"] = season
				return
			}
		}
		if v, ok := prop.Value.(int64); ok {
			if season, ok := seasonByIndex[v]; ok {
				ctx.worldState["currentSeason"] = season
			}
		}
		return
	case "CurrentSeasonDay":
		if v, ok := numeric(prop.Value); ok {
			ctx.worldState["currentSeasonDay"] = int64(v)
		}
		return
	case "RandomSeed":
		if v, ok := numeric(prop.Value); ok {
			ctx.worldState["randomSeed"] = int64(v)
		}
		return
	case "UsesSteamUID":
		if v, ok := prop.Value.(bool); ok {
			ctx.worldState["usesSteamUID"] = v
		}
		return
	case "GameDiff":
		if s, ok := prop.Value.(string); ok {
			ctx.worldState["gameDifficulty"] = s
		} else if v, ok := numeric(prop.Value); ok {
			ctx.worldState["gameDifficulty"] = v
		}
		return
	case "UDSandUDWsave":
		if sv, ok := prop.Value.(*StructValue); ok {
			ctx.worldState["udsUdwSave"] = flattenStruct(sv)
		}
		return
	case "Airdrop":
		if sv, ok := prop.Value.(*StructValue); ok {
			ctx.worldState["airdrop"] = flattenStruct(sv)
		}
		return
	case "DropInSaves":
		if av, ok := prop.Value.(*ArrayValue); ok {
			ctx.worldState["dropInSaveCount"] = len(av.GenericStructs)
		}
		return
	}
}

func stringsFromArray(prop *Property) []string {
	av, ok := prop.Value.(*ArrayValue)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(av.Primitives))
	for _, v := range av.Primitives {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func floatsFromArray(prop *Property) []float64 {
	av, ok := prop.Value.(*ArrayValue)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(av.Primitives))
	for _, v := range av.Primitives {
		if f, ok := numeric(v); ok {
			out = append(out, f)
		}
	}
	return out
}

func intsFromArray(prop *Property) []int64 {
	av, ok := prop.Value.(*ArrayValue)
	if !ok {
		return nil
	}
	out := make([]int64, 0, len(av.Primitives))
	for _, v := range av.Primitives {
		if f, ok := numeric(v); ok {
			out = append(out, int64(f))
		}
	}
	return out
}

func boolsFromArray(prop *Property) []bool {
	av, ok := prop.Value.(*ArrayValue)
	if !ok {
		return nil
	}
	out := make([]bool, 0, len(av.Primitives))
	for _, v := range av.Primitives {
		if b, ok := v.(bool); ok {
			out = append(out, b)
		}
	}
	return out
}

// flattenStruct reduces a generic StructValue child list to a plain map for
// opaque worldState storage, since only a handful of its fields are named
// individually by the save format (rest passes through for debugging/export).
func flattenStruct(sv *StructValue) map[string]any {
	out := make(map[string]any, len(sv.Children))
	for _, c := range sv.Children {
		out[cleanName(c.Name)] = propertyScalar(c)
	}
	return out
}

func propertyScalar(p Property) any {
	switch p.Kind {
	case KindStruct:
		if sv, ok := p.Value.(*StructValue); ok {
			if sv.Vector != nil {
				return *sv.Vector
			}
			return flattenStruct(sv)
		}
	case KindArray:
		if av, ok := p.Value.(*ArrayValue); ok {
			return av.Primitives
		}
	}
	return p.Value
}

func extractBuildInventory(ctx *parseContext, prop *Property) {
	av, ok := prop.Value.(*ArrayValue)
	if !ok {
		return
	}
	for i, children := range av.GenericStructs {
		key := int64(i)
		if v, ok := structFieldInt(children, "BuildActorIndex"); ok {
			key = v
		}
		ctx.buildInventory[key] = structFieldInventory(children, "S_Slots")
	}
}

func structFieldVector(children []Property, name string) (float64, float64, float64, bool) {
	for _, c := range children {
		if cleanName(c.Name) != name {
			continue
		}
		sv, ok := c.Value.(*StructValue)
		if !ok {
			continue
		}
		if sv.Vector != nil {
			return sv.Vector.X, sv.Vector.Y, sv.Vector.Z, true
		}
		if sv.Transform != nil {
			return sv.Transform.Translation.X, sv.Transform.Translation.Y, sv.Transform.Translation.Z, true
		}
	}
	return 0, 0, 0, false
}

func structFieldFloat(children []Property, name string) (float64, bool) {
	for _, c := range children {
		if cleanName(c.Name) == name {
			if v, ok := numeric(c.Value); ok {
				return v, true
			}
		}
	}
	return 0, false
}

func structFieldInt(children []Property, name string) (int64, bool) {
	v, ok := structFieldFloat(children, name)
	return int64(v), ok
}

func structFieldString(children []Property, name string) (string, bool) {
	for _, c := range children {
		if cleanName(c.Name) == name {
			if s, ok := c.Value.(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

func structFieldInventory(children []Property, name string) []model.InventorySlot {
	for _, c := range children {
		if cleanName(c.Name) != name {
			continue
		}
		av, ok := c.Value.(*ArrayValue)
		if !ok {
			continue
		}
		out := make([]model.InventorySlot, 0, len(av.Slots))
		for _, raw := range av.Slots {
			out = append(out, model.InventorySlot{Item: raw.Item, Amount: raw.Amount, Durability: raw.Durability})
		}
		return out
	}
	return nil
}

func extractVehicles(ctx *parseContext, prop *Property) {
	av, ok := prop.Value.(*ArrayValue)
	if !ok {
		return
	}
	for _, children := range av.GenericStructs {
		class, _ := structFieldString(children, "VehicleClass")
		display, _ := structFieldString(children, "DisplayName")
		if display == "" {
			display = simplifyBlueprintClass(class)
		}
		x, y, z, _ := structFieldVector(children, "Transform")
		health, _ := structFieldFloat(children, "CurrentHealth")
		maxHealth, _ := structFieldFloat(children, "MaxHealth")
		fuel, _ := structFieldFloat(children, "Fuel")
		ctx.vehicles = append(ctx.vehicles, model.Vehicle{
			ID: ctx.nextID(), Class: class, DisplayName: display,
			PositionX: round2(x), PositionY: round2(y), PositionZ: round2(z),
			Health: round1(health), MaxHealth: round1(maxHealth), Fuel: round1(fuel),
			Inventory: structFieldInventory(children, "S_Slots"),
		})
	}
}

func extractCompanions(ctx *parseContext, prop *Property, kind string) {
	av, ok := prop.Value.(*ArrayValue)
	if !ok {
		return
	}
	for _, children := range av.GenericStructs {
		actorName, _ := structFieldString(children, "ActorName")
		owner, _ := structFieldString(children, "OwnerSteamID")
		x, y, z, _ := structFieldVector(children, "Transform")
		health, _ := structFieldFloat(children, "CurrentHealth")
		ctx.companions = append(ctx.companions, model.Companion{
			ID: ctx.nextID(), Type: kind, ActorName: actorName, OwnerAccountID: extractAccountID(owner),
			PositionX: round2(x), PositionY: round2(y), PositionZ: round2(z),
			Health: round1(health),
		})
	}
}

func extractDeadBodies(ctx *parseContext, prop *Property) {
	av, ok := prop.Value.(*ArrayValue)
	if !ok {
		return
	}
	for _, children := range av.GenericStructs {
		owner, _ := structFieldString(children, "OwnerName")
		x, y, z, _ := structFieldVector(children, "Transform")
		ctx.deadBodies = append(ctx.deadBodies, model.DeadBody{
			ID: ctx.nextID(), OwnerName: owner,
			PositionX: round2(x), PositionY: round2(y), PositionZ: round2(z),
		})
	}
}

func extractContainers(ctx *parseContext, prop *Property) {
	av, ok := prop.Value.(*ArrayValue)
	if !ok {
		return
	}
	for _, children := range av.GenericStructs {
		actorName, _ := structFieldString(children, "ActorName")
		ctx.containers = append(ctx.containers, model.Container{
			ID: ctx.nextID(), ActorName: actorName,
			Items: structFieldInventory(children, "S_Slots"),
		})
	}
}

func extractLootActors(ctx *parseContext, prop *Property) {
	av, ok := prop.Value.(*ArrayValue)
	if !ok {
		return
	}
	for _, children := range av.GenericStructs {
		actorName, _ := structFieldString(children, "ActorName")
		ctx.lootActors = append(ctx.lootActors, model.LootActor{
			ID: ctx.nextID(), ActorName: actorName,
			Items: structFieldInventory(children, "S_Slots"),
		})
	}
}

func extractQuests(ctx *parseContext, prop *Property) {
	av, ok := prop.Value.(*ArrayValue)
	if !ok {
		return
	}
	for _, children := range av.GenericStructs {
		name, _ := structFieldString(children, "QuestName")
		data := make(map[string]any, len(children))
		for _, c := range children {
			data[cleanName(c.Name)] = propertyScalar(c)
		}
		payload, err := json.Marshal(data)
		if err != nil {
			payload = []byte("{}")
		}
		ctx.quests = append(ctx.quests, model.Quest{ID: ctx.nextID(), Name: name, Data: string(payload)})
	}
}

// stitchStructures zips the BuildActor* parallel arrays into Structure
// records (spec §4.3.3 "Post-pass stitching"). The arrays aren't
// guaranteed equal length, so the loop runs out to the longest of the
// class list and the transform list (i ∈ [0, max(|classes|,
// |transforms|))): a transform-only tail entry still produces a structure
// row, just without a blueprint class. Inventory entries that never match
// a stitched index (BuildActorIndex pointing past every known structure)
// are orphans and surface as Container rows instead of being dropped.
func stitchStructures(ctx *parseContext) []model.Structure {
	n := len(ctx.buildClasses)
	if ctx.buildTransformN > n {
		n = ctx.buildTransformN
	}
	out := make([]model.Structure, 0, n)
	matched := make(map[int64]bool, len(ctx.buildInventory))
	for i := 0; i < n; i++ {
		var class string
		if i < len(ctx.buildClasses) {
			class = ctx.buildClasses[i]
		}
		s := model.Structure{
			ID:             ctx.nextID(),
			BlueprintClass: class,
			DisplayName:    simplifyBlueprintClass(class),
		}
		if i < len(ctx.buildPosX) {
			x, y, z := round2(ctx.buildPosX[i]), round2(ctx.buildPosY[i]), round2(ctx.buildPosZ[i])
			s.PositionX, s.PositionY, s.PositionZ = &x, &y, &z
		}
		if i < len(ctx.buildCurHealth) {
			s.CurrentHealth = round1(ctx.buildCurHealth[i])
		}
		if i < len(ctx.buildMaxHealth) {
			s.MaxHealth = round1(ctx.buildMaxHealth[i])
		}
		if i < len(ctx.buildUpgradeLv) {
			s.UpgradeLevel = ctx.buildUpgradeLv[i]
		}
		if i < len(ctx.buildTrailer) {
			s.TrailerAttached = ctx.buildTrailer[i]
		}
		if i < len(ctx.buildStr) {
			s.OwnerAccountID = extractAccountID(ctx.buildStr[i])
		}
		if i < len(ctx.buildActorData) {
			s.ExtraData = ctx.buildActorData[i]
		}
		for _, marker := range ctx.buildNoSpawn {
			if marker == class || (marker != "" && marker == s.ExtraData) {
				s.NoSpawn = true
				break
			}
		}
		if inv, ok := ctx.buildInventory[int64(i)]; ok {
			s.Inventory = inv
			matched[int64(i)] = true
		}
		out = append(out, s)
	}

	for key, inv := range ctx.buildInventory {
		if matched[key] || len(inv) == 0 {
			continue
		}
		ctx.containers = append(ctx.containers, model.Container{
			ID:        ctx.nextID(),
			ActorName: fmt.Sprintf("BuildActorInventory_%d", key),
			Items:     inv,
		})
	}
	return out
}
