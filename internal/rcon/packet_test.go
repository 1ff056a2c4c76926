package rcon

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	pkt := encodePacket(5, TypeExecCommand, "hello")
	decoded, consumed, ok := readFrame(pkt)
	require.True(t, ok)
	require.Equal(t, len(pkt), consumed)
	require.Equal(t, int32(5), decoded.ID)
	require.Equal(t, TypeExecCommand, decoded.Type)
	require.Equal(t, "hello", decoded.Body)
}

func TestReadFrame_EmptyBody(t *testing.T) {
	pkt := encodePacket(1, TypeResponseValue, "")
	decoded, consumed, ok := readFrame(pkt)
	require.True(t, ok)
	require.Equal(t, len(pkt), consumed)
	require.Equal(t, "", decoded.Body)
}

func TestReadFrame_MalformedSmallSize(t *testing.T) {
	buf := encodePacket(1, TypeAuth, "")
	// Overwrite the size header with a value below minPacketSize.
	buf[0] = 5
	buf[1], buf[2], buf[3] = 0, 0, 0
	_, consumed, ok := readFrame(buf)
	require.False(t, ok)
	require.Equal(t, len(buf), consumed)
}

func TestReadFrame_WaitsForMoreData(t *testing.T) {
	pkt := encodePacket(1, TypeAuth, "password")
	_, consumed, ok := readFrame(pkt[:len(pkt)-2])
	require.False(t, ok)
	require.Equal(t, 0, consumed)
}

func TestReadFrame_TooShortForHeader(t *testing.T) {
	_, consumed, ok := readFrame([]byte{0x01, 0x02})
	require.False(t, ok)
	require.Equal(t, 0, consumed)
}

func TestMaskID(t *testing.T) {
	require.Equal(t, int32(0x7fffffff), maskID(-1))
	require.Equal(t, int32(42), maskID(42))
}
