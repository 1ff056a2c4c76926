package gvas

import (
	"encoding/binary"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/require"
)

// appendFStringUTF8 encodes s the way the save format does for the L>0 path:
// length includes the trailing null terminator.
func appendFStringUTF8(buf []byte, s string) []byte {
	raw := append([]byte(s), 0)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(raw)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, raw...)
}

// appendFStringUTF16 encodes s using the L<0 UTF-16LE path.
func appendFStringUTF16(buf []byte, s string) []byte {
	units := utf16.Encode([]rune(s))
	units = append(units, 0)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(int32(-len(units))))
	buf = append(buf, lenBuf[:]...)
	for _, u := range units {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], u)
		buf = append(buf, b[:]...)
	}
	return buf
}

func TestReadFString_Empty(t *testing.T) {
	buf := make([]byte, 4) // L == 0
	r := NewReader(buf)
	s, err := r.ReadFString()
	require.NoError(t, err)
	require.Equal(t, "", s)
	require.Equal(t, 4, r.Position())
}

func TestReadFString_UTF8(t *testing.T) {
	buf := appendFStringUTF8(nil, "SteamID")
	r := NewReader(buf)
	s, err := r.ReadFString()
	require.NoError(t, err)
	require.Equal(t, "SteamID", s)
	require.Equal(t, len(buf), r.Position())
}

func TestReadFString_UTF16(t *testing.T) {
	buf := appendFStringUTF16(nil, "SurvivorName")
	r := NewReader(buf)
	s, err := r.ReadFString()
	require.NoError(t, err)
	require.Equal(t, "SurvivorName", s)
}

func TestReadFString_MalformedLength(t *testing.T) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], 200000) // |L| >= 65536
	r := NewReader(lenBuf[:])
	_, err := r.ReadFString()
	require.ErrorIs(t, err, ErrMalformedString)
	require.Equal(t, 0, r.Position(), "cursor must stay at the length field on failure")
}

func TestReadFString_ShortRead(t *testing.T) {
	buf := appendFStringUTF8(nil, "Name")
	truncated := buf[:len(buf)-2]
	r := NewReader(truncated)
	_, err := r.ReadFString()
	require.Error(t, err)
	require.Equal(t, 0, r.Position(), "cursor restored to start on short read")
}

func TestReaderScalarRoundTrip(t *testing.T) {
	var buf []byte
	buf = append(buf, 1)                                  // bool
	buf = append(buf, 0x7b, 0, 0, 0)                       // u32 = 123
	var f32buf [4]byte
	binary.LittleEndian.PutUint32(f32buf[:], 0x3f800000) // 1.0
	buf = append(buf, f32buf[:]...)

	r := NewReader(buf)
	b, err := r.ReadBool()
	require.NoError(t, err)
	require.True(t, b)

	u, err := r.ReadU32()
	require.NoError(t, err)
	require.Equal(t, uint32(123), u)

	f, err := r.ReadF32()
	require.NoError(t, err)
	require.Equal(t, float32(1.0), f)

	require.Equal(t, 0, r.Remaining())
}

func TestMarkRestore(t *testing.T) {
	buf := appendFStringUTF8(nil, "abc")
	r := NewReader(buf)
	mark := r.Mark()
	_, _ = r.ReadFString()
	require.NotEqual(t, mark, r.Position())
	r.Restore(mark)
	require.Equal(t, mark, r.Position())
}
