package gvas

import "github.com/savecore/humanitz-core/internal/model"

// ClanFile is the decoded contents of a clan save (spec §4.3.4): a header
// plus zero or more clans, each carrying its member roster.
type ClanFile struct {
	Header GvasHeader
	Clans  []ClanEntry
}

// ClanEntry is one clan and its membership, as lifted from the `ClanInfo`
// array-of-struct property.
type ClanEntry struct {
	Clan    model.Clan
	Members []model.ClanMember
}

// ParseClanFile walks a clan save the same way ParseSave walks a player
// save, but looks only for the `ClanInfo` array and lifts each element's
// name/member roster (spec §4.3.4). Anything else in the file is ignored.
func ParseClanFile(buf []byte, opts ReaderOptions) (*ClanFile, error) {
	r := NewReader(buf)
	header, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	pr := NewPropertyReader(r, opts)
	cf := &ClanFile{Header: header}

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
				if !forwardRecover(r) {
					break
				}
				continue
			}
			break
		}
		if cleanName(prop.Name) == "ClanInfo" {
			cf.Clans = append(cf.Clans, liftClanEntries(prop)...)
		}
	}

	return cf, nil
}

func liftClanEntries(prop *Property) []ClanEntry {
	av, ok := prop.Value.(*ArrayValue)
	if !ok {
		return nil
	}
	out := make([]ClanEntry, 0, len(av.GenericStructs))
	for _, children := range av.GenericStructs {
		entry := ClanEntry{}
		name, _ := structFieldString(children, "ClanName")
		entry.Clan = model.Clan{Name: name}
		for _, c := range children {
			if cleanName(c.Name) != "ClanMembers" {
				continue
			}
			mav, ok := c.Value.(*ArrayValue)
			if !ok {
				continue
			}
			for _, mc := range mav.GenericStructs {
				entry.Members = append(entry.Members, liftClanMember(name, mc))
			}
		}
		out = append(out, entry)
	}
	return out
}

func liftClanMember(clanName string, children []Property) model.ClanMember {
	m := model.ClanMember{ClanName: clanName}
	if netID, ok := structFieldString(children, "NetID"); ok {
		m.AccountID = extractAccountID(netID)
	}
	if display, ok := structFieldString(children, "DisplayName"); ok {
		m.DisplayName = display
	}
	for _, c := range children {
		switch cleanName(c.Name) {
		case "Rank":
			if s, ok := c.Value.(string); ok {
				if rank, ok := clanRankEnumTable[s]; ok {
					m.Rank = rank
				}
			} else if v, ok := numeric(c.Value); ok {
				m.Rank = rankByIndex(int64(v))
			}
		case "CanInvite":
			if b, ok := c.Value.(bool); ok {
				m.CanInvite = b
			}
		case "CanKick":
			if b, ok := c.Value.(bool); ok {
				m.CanKick = b
			}
		}
	}
	return m
}

func rankByIndex(i int64) string {
	switch i {
	case 0:
		return "Recruit"
	case 1:
		return "Member"
	case 2:
		return "Officer"
	case 3:
		return "Co-Leader"
	case 4:
		return "Leader"
	}
	return ""
}
