package gvas

import (
	"encoding/binary"
	"regexp"
)

const maxRecoveryScan = 50000

// namePattern validates a plausible FString-encoded property name: an
// uppercase-led identifier of 2-60 further characters (spec §4.3.2).
var namePattern = regexp.MustCompile(`^[A-Z][A-Za-z0-9_]{2,60}$`)

// forwardRecover scans up to maxRecoveryScan bytes forward from the reader's
// current position looking for a byte offset that looks like the start of a
// property name FString: a signed int32 length L with 3 < L < 80, followed
// by L-1 bytes matching namePattern (the FString's trailing null terminator
// makes up the remaining byte).
//
// The scan starts at base+1, one byte past the position that got the parser
// stuck: that position already failed to produce forward progress once, so
// re-matching it here would reseek to the same spot and loop forever.
//
// On success the cursor is repositioned there and forwardRecover returns
// true. On failure the cursor is left untouched and it returns false, and
// the caller (SaveParser) ends the scan gracefully with a partial result
// (spec §4.3.2, §7 "Stuck").
func forwardRecover(r *Reader) bool {
	base := r.pos + 1
	limit := len(r.data) - 5
	end := base + maxRecoveryScan
	if end > limit {
		end = limit
	}

	for off := base; off <= end && off >= base; off++ {
		if off+4 > len(r.data) {
			break
		}
		length := int32(binary.LittleEndian.Uint32(r.data[off:]))
		if length <= 3 || length >= 80 {
			continue
		}
		nameLen := int(length) - 1
		start := off + 4
		if start+nameLen > len(r.data) {
			continue
		}
		candidate := r.data[start : start+nameLen]
		if namePattern.Match(candidate) {
			r.Seek(off)
			return true
		}
	}
	return false
}
