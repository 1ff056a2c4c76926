// Package rcon implements the length-prefixed RCON-style TCP client used
// to issue console commands against the game server (spec §4.6).
package rcon

import (
	"encoding/binary"
)

// Packet type constants for the wire protocol (spec §6 "RCON wire protocol").
const (
	TypeResponseValue int32 = 0
	TypeExecCommand   int32 = 2
	TypeAuth          int32 = 3
)

const (
	minPacketSize = 10
	maxPacketSize = 65536
)

// encodePacket builds `size|id|type|body|0x00|0x00`, where size covers
// everything after the size field itself.
func encodePacket(id, typ int32, body string) []byte {
	bodyBytes := []byte(body)
	// 4 (id) + 4 (type) + body + 2 (trailing nulls)
	size := int32(4 + 4 + len(bodyBytes) + 2)

	buf := make([]byte, 4+size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(size))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(id))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(typ))
	copy(buf[12:], bodyBytes)
	// buf[12+len(bodyBytes):] is already zeroed by make
	return buf
}

// decodedPacket is one frame lifted off the wire.
type decodedPacket struct {
	ID   int32
	Type int32
	Body string
}

// readFrame consumes one frame from buf, returning the decoded packet and
// the number of bytes consumed. A size outside [minPacketSize,
// maxPacketSize] is malformed; per spec §4.6, a malformed size
// means the caller should treat the *entire* buffer as raw text and
// discard it, so readFrame returns ok=false and consumed=len(buf) in that
// case rather than trying to resynchronize.
func readFrame(buf []byte) (pkt decodedPacket, consumed int, ok bool) {
	if len(buf) < 4 {
		return decodedPacket{}, 0, false
	}
	size := int32(binary.LittleEndian.Uint32(buf[0:4]))
	if size < minPacketSize || size > maxPacketSize {
		return decodedPacket{}, len(buf), false
	}
	total := 4 + int(size)
	if len(buf) < total {
		// Not enough buffered yet; wait for more data.
		return decodedPacket{}, 0, false
	}
	if size < 10 {
		return decodedPacket{}, total, false
	}
	id := int32(binary.LittleEndian.Uint32(buf[4:8]))
	typ := int32(binary.LittleEndian.Uint32(buf[8:12]))
	bodyLen := int(size) - 4 - 4 - 2
	if bodyLen < 0 {
		return decodedPacket{}, total, false
	}
	body := string(buf[12 : 12+bodyLen])
	return decodedPacket{ID: id, Type: typ, Body: body}, total, true
}

func maskID(id int32) int32 {
	// Keep ids in a positive 31-bit range per spec §4.6 "monotonically
	// increasing id (masked to a positive 31-bit range)".
	return id & 0x7fffffff
}
