package gvas

import "regexp"

// seasonEnumTable maps UDS_Season::NewEnumeratorN to its season name (GLOSSARY).
var seasonEnumTable = map[string]string{
	"UDS_Season::NewEnumerator0": "Spring",
	"UDS_Season::NewEnumerator1": "Summer",
	"UDS_Season::NewEnumerator2": "Autumn",
	"UDS_Season::NewEnumerator3": "Winter",
}

// seasonByIndex maps the byte-index encoding of the season enum to its name.
var seasonByIndex = map[int64]string{
	0: "Spring",
	1: "Summer",
	2: "Autumn",
	3: "Winter",
}

// clanRankEnumTable maps E_ClanRank::NewEnumeratorN to its rank name (GLOSSARY).
var clanRankEnumTable = map[string]string{
	"E_ClanRank::NewEnumerator0": "Recruit",
	"E_ClanRank::NewEnumerator1": "Member",
	"E_ClanRank::NewEnumerator2": "Officer",
	"E_ClanRank::NewEnumerator3": "Co-Leader",
	"E_ClanRank::NewEnumerator4": "Leader",
}

// professionEnumTable resolves a starting profession encoded as an
// enum-string (Enum_Professions::NewEnumeratorN), fixed 12-entry table (GLOSSARY).
var professionEnumTable = map[string]string{
	"Enum_Professions::NewEnumerator0":  "Survivor",
	"Enum_Professions::NewEnumerator1":  "Soldier",
	"Enum_Professions::NewEnumerator2":  "Medic",
	"Enum_Professions::NewEnumerator3":  "Engineer",
	"Enum_Professions::NewEnumerator4":  "Scavenger",
	"Enum_Professions::NewEnumerator5":  "Hunter",
	"Enum_Professions::NewEnumerator6":  "Farmer",
	"Enum_Professions::NewEnumerator7":  "Chef",
	"Enum_Professions::NewEnumerator8":  "Mechanic",
	"Enum_Professions::NewEnumerator9":  "Lumberjack",
	"Enum_Professions::NewEnumerator10": "Fisherman",
	"Enum_Professions::NewEnumerator11": "Doctor",
}

// professionByIndex resolves a starting profession encoded as a byte index.
var professionByIndex = map[int64]string{
	0: "Survivor", 1: "Soldier", 2: "Medic", 3: "Engineer",
	4: "Scavenger", 5: "Hunter", 6: "Farmer", 7: "Chef",
	8: "Mechanic", 9: "Lumberjack", 10: "Fisherman", 11: "Doctor",
}

// resolveProfession resolves a starting profession via either encoding
// (spec §4.3.1 point 4).
func resolveProfession(enumStr string, byteIdx int64, hasEnum bool) string {
	if hasEnum {
		if name, ok := professionEnumTable[enumStr]; ok {
			return name
		}
	}
	if name, ok := professionByIndex[byteIdx]; ok {
		return name
	}
	return ""
}

// statTagField names the PlayerRecord field a Statistics tag maps to.
type statTagField struct {
	Field    string
	Lifetime bool
}

// statTagTable maps a dotted Statistics tag (GLOSSARY) to a named player
// field (spec §4.3.1 point 2). Unlisted tags are ignored.
var statTagTable = map[string]statTagField{
	"statistics.stat.game.kills.total":        {"LifetimeKills", true},
	"statistics.stat.game.kills.headshot":     {"LifetimeHeadshots", true},
	"statistics.stat.game.kills.melee":        {"LifetimeMelee", true},
	"statistics.stat.game.kills.firearm":      {"LifetimeFirearm", true},
	"statistics.stat.game.kills.blast":        {"LifetimeBlast", true},
	"statistics.stat.game.kills.unarmed":      {"LifetimeUnarmed", true},
	"statistics.stat.game.kills.takedown":     {"LifetimeTakedown", true},
	"statistics.stat.game.kills.vehicle":      {"LifetimeVehicle", true},
	"statistics.stat.game.days.survived":      {"LifetimeDaysSurvived", true},
}

var accountIDStrictPattern = regexp.MustCompile(`^7656\d+$`)

// isAccountID reports whether s is shaped like the 17-digit account id
// (spec §4.3.1 point 1, §8 invariant 5).
func isAccountID(s string) bool {
	return accountIDStrictPattern.MatchString(s)
}

// extractAccountID pulls the first 7656\d+ match out of s (used for
// NetID/owner-string regex extraction, spec §4.3.3, §4.3.4).
func extractAccountID(s string) string {
	return accountIDPattern.FindString(s)
}

// simplifyBlueprintClass derives a display name from a blueprint class path
// by taking the last path segment and stripping a BP_ prefix and _C suffix
// (spec §4.3.3).
func simplifyBlueprintClass(path string) string {
	name := path
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '.' {
			name = path[i+1:]
			break
		}
	}
	const prefix = "BP_"
	if len(name) > len(prefix) && name[:len(prefix)] == prefix {
		name = name[len(prefix):]
	}
	const suffix = "_C"
	if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
		name = name[:len(name)-len(suffix)]
	}
	return name
}
