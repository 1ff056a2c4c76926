package gvas

// GvasHeader is the fixed-shape prelude of a GVAS save file (spec §4.3 "Header").
type GvasHeader struct {
	SaveVersion         uint32
	PackageVersion      uint32
	EngineMajor         uint16
	EngineMinor         uint16
	EnginePatch         uint16
	Build               uint32
	Branch              string
	CustomVersionFormat uint32
	CustomVersions      []CustomVersion
	SaveClass           string
}

// CustomVersion is one entry of the header's custom-version table.
type CustomVersion struct {
	GUID    string
	Version int32
}

// readHeader decodes the GVAS header. Returns ErrNotGvas if the leading
// 4-byte tag doesn't match "GVAS" (spec §4.3).
func readHeader(r *Reader) (GvasHeader, error) {
	var h GvasHeader

	tag, err := r.ReadBytes(4)
	if err != nil || string(tag) != "GVAS" {
		return h, ErrNotGvas
	}

	var readErr error
	u32 := func() uint32 {
		v, err := r.ReadU32()
		if err != nil && readErr == nil {
			readErr = err
		}
		return v
	}
	u16 := func() uint16 {
		v, err := r.ReadU16()
		if err != nil && readErr == nil {
			readErr = err
		}
		return v
	}
	fstr := func() string {
		v, err := r.ReadFString()
		if err != nil && readErr == nil {
			readErr = err
		}
		return v
	}

	h.SaveVersion = u32()
	h.PackageVersion = u32()
	h.EngineMajor = u16()
	h.EngineMinor = u16()
	h.EnginePatch = u16()
	h.Build = u32()
	h.Branch = fstr()
	h.CustomVersionFormat = u32()

	count := u32()
	h.CustomVersions = make([]CustomVersion, 0, count)
	for i := uint32(0); i < count && readErr == nil; i++ {
		guid, err := r.ReadGUID()
		if err != nil {
			readErr = err
			break
		}
		version, err := r.ReadI32()
		if err != nil {
			readErr = err
			break
		}
		h.CustomVersions = append(h.CustomVersions, CustomVersion{GUID: guid, Version: version})
	}

	h.SaveClass = fstr()

	if readErr != nil {
		return h, readErr
	}
	return h, nil
}
