package gvas

import (
	"math"
	"regexp"

	"github.com/savecore/humanitz-core/internal/model"
)

// trailingGuidSuffix strips a "_N_<32-hex>" instance suffix UE appends to
// duplicated property names (spec §4.3.1: "cleaned name").
var trailingGuidSuffix = regexp.MustCompile(`_\d+_[0-9a-fA-F]{32}$`)

func cleanName(name string) string {
	return trailingGuidSuffix.ReplaceAllString(name, "")
}

// ParseResult is the structured output of a full save walk (spec §4.3).
type ParseResult struct {
	Players     map[string]*model.PlayerRecord
	WorldState  map[string]any
	Structures  []model.Structure
	Vehicles    []model.Vehicle
	Companions  []model.Companion
	DeadBodies  []model.DeadBody
	Containers  []model.Container
	LootActors  []model.LootActor
	Quests      []model.Quest
	Header      GvasHeader
}

// parseContext is the explicit mutable state threaded through one parse
// (spec §9: "Currency of the parser via closure over mutable state ->
// explicit state structs"). It replaces what the upstream JS implementation
// keeps in dispatcher-closure variables.
type parseContext struct {
	currentAccount string
	players        map[string]*model.PlayerRecord
	worldState     map[string]any

	// parallel-array buffers for post-pass stitching (spec §4.3.3)
	buildClasses    []string
	buildTransformN int
	buildPosX       []float64
	buildPosY       []float64
	buildPosZ       []float64
	buildCurHealth  []float64
	buildMaxHealth  []float64
	buildUpgradeLv  []int64
	buildTrailer    []bool
	buildStr        []string
	buildActorData  []string
	buildNoSpawn    []string // class or extraData markers
	buildInventory  map[int64][]model.InventorySlot

	vehicles   []model.Vehicle
	companions []model.Companion
	deadBodies []model.DeadBody
	containers []model.Container
	lootActors []model.LootActor
	quests     []model.Quest

	nextWorldID int64
}

func newParseContext() *parseContext {
	return &parseContext{
		players:        make(map[string]*model.PlayerRecord),
		worldState:     make(map[string]any),
		buildInventory: make(map[int64][]model.InventorySlot),
		nextWorldID:    1,
	}
}

// nextID hands out a monotonically increasing synthetic row id for world
// entities, which the save format itself never numbers directly.
func (c *parseContext) nextID() int64 {
	id := c.nextWorldID
	c.nextWorldID++
	return id
}

func newPlayerRecord(accountID string) *model.PlayerRecord {
	return &model.PlayerRecord{
		AccountID:           accountID,
		NameHistory:         []model.NameChange{},
		StatusEffects:       []string{},
		BodyConditions:      []string{},
		CraftingRecipes:     []string{},
		BuildingRecipes:     []string{},
		UnlockedProfessions: []string{},
		UnlockedSkills:      []string{},
		SkillTree:           map[string]int{},
		Inventory:           []model.InventorySlot{},
		Equipment:           []model.InventorySlot{},
		QuickSlots:          []model.InventorySlot{},
		Backpack:            []model.InventorySlot{},
		Lore:                []string{},
		UniqueLoot:          []string{},
		QuestData:           map[string]any{},
		ChallengeData:       map[string]any{},
		Companions:          []string{},
		Horses:              []string{},
		ExtendedStatsRaw:    map[string]float64{},
		CustomData:          map[string]any{},
		KillTracker:         map[string]int64{},
		ChallengeCounters:   map[string]int64{},
	}
}

func (c *parseContext) player() *model.PlayerRecord {
	p, ok := c.players[c.currentAccount]
	if !ok {
		p = newPlayerRecord(c.currentAccount)
		c.players[c.currentAccount] = p
	}
	return p
}

// ParseSave walks buf start-to-end, producing players, world state, and
// world entity lists (spec §4.3). It never returns an error for mid-stream
// decode trouble; only the header is fatal: ErrNotGvas for a missing "GVAS"
// tag, or the reader's error for a header truncated after the tag.
func ParseSave(buf []byte, opts ReaderOptions) (*ParseResult, error) {
	r := NewReader(buf)
	header, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	pr := NewPropertyReader(r, opts)
	ctx := newParseContext()

	for {
		before := r.Mark()
		prop, err := pr.ReadProperty()
		if err != nil {
			if !forwardRecover(r) {
				break
			}
			continue
		}
		if prop == nil {
			if r.Mark() == before {
				// Stuck: PropertyReader made no progress. Try to recover;
				// if no landing spot is found within the scan window, end
				// the walk gracefully with whatever was parsed so far
				// (spec §4.3.2, §7 "Stuck").
				if !forwardRecover(r) {
					break
				}
				continue
			}
			// Clean "None" terminator: end of the (single) top-level
			// property list.
			break
		}
		handleProperty(ctx, prop)
	}

	structures := stitchStructures(ctx)

	result := &ParseResult{
		Players:     ctx.players,
		WorldState:  ctx.worldState,
		Structures:  structures,
		Vehicles:    ctx.vehicles,
		Companions:  ctx.companions,
		DeadBodies:  ctx.deadBodies,
		Containers:  ctx.containers,
		LootActors:  ctx.lootActors,
		Quests:      ctx.quests,
		Header:      header,
	}

	ctx.worldState["totalStructures"] = len(result.Structures)
	ctx.worldState["totalVehicles"] = len(result.Vehicles)
	ctx.worldState["totalCompanions"] = len(result.Companions)
	ctx.worldState["totalDeadBodies"] = len(result.DeadBodies)
	ctx.worldState["totalPlayers"] = len(result.Players)
	result.WorldState = ctx.worldState

	return result, nil
}

// handleProperty is the stateful dispatcher keyed on cleaned property name
// (spec §4.3.1).
func handleProperty(ctx *parseContext, prop *Property) {
	name := cleanName(prop.Name)

	// Pre-scan nested lists for SteamID so the owner is established before
	// sibling properties in the same struct/array are processed (spec
	// §4.3.1 point 1).
	if prop.Kind == KindStruct {
		if sv, ok := prop.Value.(*StructValue); ok && sv.Children != nil {
			prescanSteamID(ctx, sv.Children)
		}
	}
	if prop.Kind == KindArray {
		if av, ok := prop.Value.(*ArrayValue); ok {
			for _, children := range av.GenericStructs {
				prescanSteamID(ctx, children)
			}
		}
	}

	switch name {
	case "SteamID", "NetID":
		if s, ok := prop.Value.(string); ok && isAccountID(s) {
			ctx.currentAccount = s
			ctx.player()
		}
		return
	case "Statistics":
		handleStatistics(ctx, prop)
		return
	}

	if ctx.currentAccount == "" {
		handleWorldProperty(ctx, name, prop)
		return
	}
	handlePlayerProperty(ctx, name, prop)
}

func prescanSteamID(ctx *parseContext, children []Property) {
	for _, c := range children {
		if cleanName(c.Name) == "SteamID" {
			if s, ok := c.Value.(string); ok && isAccountID(s) {
				ctx.currentAccount = s
				ctx.player()
			}
		}
	}
}

// handleStatistics implements spec §4.3.1 point 2: each child of a
// Statistics array is itself a property list carrying a StatisticId.TagName
// (or a direct statistics.* name) plus a CurrentValue.
func handleStatistics(ctx *parseContext, prop *Property) {
	if ctx.currentAccount == "" {
		return
	}
	av, ok := prop.Value.(*ArrayValue)
	if !ok {
		return
	}
	player := ctx.player()
	for _, children := range av.GenericStructs {
		var tag string
		var value float64
		var hasValue bool
		for _, c := range children {
			switch cleanName(c.Name) {
			case "StatisticId":
				if sv, ok := c.Value.(*StructValue); ok {
					for _, ic := range sv.Children {
						if cleanName(ic.Name) == "TagName" {
							if s, ok := ic.Value.(string); ok {
								tag = s
							}
						}
					}
				}
			case "CurrentValue":
				if v, ok := numeric(c.Value); ok {
					value = v
					hasValue = true
				}
			default:
				if len(cleanName(c.Name)) > 11 && cleanName(c.Name)[:11] == "statistics." {
					tag = cleanName(c.Name)
				}
			}
		}
		if tag == "" || !hasValue {
			continue
		}
		field, ok := statTagTable[tag]
		if !ok {
			continue
		}
		rounded := math.Round(value)
		setLifetimeField(player, field.Field, int64(rounded))
		if rounded > 0 {
			player.HasExtendedStats = true
		}
	}
}

func numeric(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

func setLifetimeField(p *model.PlayerRecord, field string, v int64) {
	switch field {
	case "LifetimeKills":
		p.LifetimeKills = v
	case "LifetimeHeadshots":
		p.LifetimeHeadshots = v
	case "LifetimeMelee":
		p.LifetimeMelee = v
	case "LifetimeFirearm":
		p.LifetimeFirearm = v
	case "LifetimeBlast":
		p.LifetimeBlast = v
	case "LifetimeUnarmed":
		p.LifetimeUnarmed = v
	case "LifetimeTakedown":
		p.LifetimeTakedown = v
	case "LifetimeVehicle":
		p.LifetimeVehicle = v
	case "LifetimeDaysSurvived":
		p.LifetimeDaysSurvived = v
	}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
