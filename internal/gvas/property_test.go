package gvas

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func appendI64(buf []byte, v int64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return append(buf, b[:]...)
}

func appendI32(buf []byte, v int32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	return append(buf, b[:]...)
}

// propertyHeader writes name, type tag, and data_size (patched later).
func propertyHeader(name, typeTag string) (buf []byte, sizePos int) {
	buf = appendFStringUTF8(buf, name)
	buf = appendFStringUTF8(buf, typeTag)
	sizePos = len(buf)
	buf = appendI64(buf, 0) // placeholder, patched by caller via patchSize
	return buf, sizePos
}

func patchSize(buf []byte, sizePos int, size int64) {
	binary.LittleEndian.PutUint64(buf[sizePos:], uint64(size))
}

func buildBoolProperty(name string, v bool) []byte {
	buf, sizePos := propertyHeader(name, "BoolProperty")
	bodyStart := len(buf)
	b := byte(0)
	if v {
		b = 1
	}
	buf = append(buf, b)
	buf = append(buf, 0) // separator
	patchSize(buf, sizePos, int64(len(buf)-bodyStart))
	return buf
}

func buildStrProperty(name, v string) []byte {
	buf, sizePos := propertyHeader(name, "StrProperty")
	bodyStart := len(buf)
	buf = append(buf, 0) // separator
	buf = appendFStringUTF8(buf, v)
	patchSize(buf, sizePos, int64(len(buf)-bodyStart))
	return buf
}

func buildIntProperty(name string, v int32) []byte {
	buf, sizePos := propertyHeader(name, "IntProperty")
	bodyStart := len(buf)
	buf = append(buf, 0) // separator
	buf = appendI32(buf, v)
	patchSize(buf, sizePos, int64(len(buf)-bodyStart))
	return buf
}

func buildNoneTerminator() []byte {
	return appendFStringUTF8(nil, "None")
}

func TestReadProperty_Bool(t *testing.T) {
	buf := buildBoolProperty("WellRested", true)
	r := NewReader(buf)
	pr := NewPropertyReader(r, ReaderOptions{})
	prop, err := pr.ReadProperty()
	require.NoError(t, err)
	require.NotNil(t, prop)
	require.Equal(t, KindBool, prop.Kind)
	require.Equal(t, true, prop.Value)
	require.Equal(t, len(buf), r.Position())
}

func TestReadProperty_Str(t *testing.T) {
	buf := buildStrProperty("PlayerName", "Wanderer")
	pr := NewPropertyReader(NewReader(buf), ReaderOptions{})
	prop, err := pr.ReadProperty()
	require.NoError(t, err)
	require.Equal(t, KindString, prop.Kind)
	require.Equal(t, "Wanderer", prop.Value)
}

func TestReadProperty_Int(t *testing.T) {
	buf := buildIntProperty("Kills", 42)
	pr := NewPropertyReader(NewReader(buf), ReaderOptions{})
	prop, err := pr.ReadProperty()
	require.NoError(t, err)
	require.Equal(t, KindInt, prop.Kind)
	require.Equal(t, int64(42), prop.Value)
}

func TestReadProperty_NoneTerminator(t *testing.T) {
	buf := buildNoneTerminator()
	pr := NewPropertyReader(NewReader(buf), ReaderOptions{})
	prop, err := pr.ReadProperty()
	require.NoError(t, err)
	require.Nil(t, prop)
}

func TestReadProperty_MalformedRestoresCursor(t *testing.T) {
	// A length-prefixed name that cannot possibly be read in full.
	buf := appendI32(nil, 9000)
	r := NewReader(buf)
	pr := NewPropertyReader(r, ReaderOptions{})
	prop, err := pr.ReadProperty()
	require.NoError(t, err)
	require.Nil(t, prop)
	require.Equal(t, 0, r.Position())
}

func TestReadPropertyList_StopsAtNone(t *testing.T) {
	var buf []byte
	buf = append(buf, buildBoolProperty("Hood", true)...)
	buf = append(buf, buildIntProperty("Experience", 10)...)
	buf = append(buf, buildNoneTerminator()...)

	pr := NewPropertyReader(NewReader(buf), ReaderOptions{})
	children := pr.readPropertyList()
	require.Len(t, children, 2)
	require.Equal(t, "Hood", children[0].Name)
	require.Equal(t, "Experience", children[1].Name)
}

func TestIsPrimitiveType(t *testing.T) {
	require.True(t, isPrimitiveType("IntProperty"))
	require.True(t, isPrimitiveType("StrProperty"))
	require.False(t, isPrimitiveType("StructProperty"))
	require.False(t, isPrimitiveType("ArrayProperty"))
}

func TestRoundTo(t *testing.T) {
	require.Equal(t, 1.2, roundTo(1.23456, 1))
	require.Equal(t, 1.23, roundTo(1.234999, 2))
	require.Equal(t, -1.2, roundTo(-1.23456, 1))
}
