package gvas

import (
	"fmt"
	"regexp"
)

// Property is one decoded tagged property (spec §4.2). Value holds a
// type-specific payload: nil, bool, int64, float64, string, *StructValue,
// *ArrayValue, or *MapValue. This is the tagged-variant shape called for by
// design note "Dynamic property types -> tagged variants" (spec §9):
// callers switch on Type/Kind rather than probing an untyped map.
type Property struct {
	Name string
	Type string // raw property type tag, e.g. "IntProperty"
	Kind Kind
	Value any
}

// Kind classifies a Property's Value for callers that want a closed switch
// instead of matching on the raw Type string.
type Kind int

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindStruct
	KindArray
	KindMap
)

// StructValue is the decoded body of a StructProperty (spec §4.2.1).
type StructValue struct {
	StructType string
	// Inline well-known subtypes populate exactly one of the following.
	Vector     *Vector3
	Quat       *Quat
	Color      *LinearColor
	Int64Val   *int64 // DateTime/Timespan
	Vector2D   *Vector2D
	Tags       []string // GameplayTagContainer
	SingleStr  *string  // TimerHandle/SoftClassPath/SoftObjectPath
	Transform  *TransformValue
	// Generic struct: ordered child property list.
	Children []Property
}

// Quat is a quaternion (x, y, z, w).
type Quat struct{ X, Y, Z, W float64 }

// LinearColor is an RGBA color.
type LinearColor struct{ R, G, B, A float64 }

// Vector2D is a 2D float pair.
type Vector2D struct{ X, Y float64 }

// TransformValue is a Translation/Rotation/Scale3D triple lifted from a
// nested Transform property list (spec §4.2.1).
type TransformValue struct {
	Translation Vector3
	Rotation    Quat
	Scale3D     Vector3
}

// ArrayValue is the decoded body of an ArrayProperty (spec §4.2.2).
type ArrayValue struct {
	InnerType string
	Count     int32

	// Inner = primitive: tightly packed scalar values.
	Primitives []any

	// Inner = StructProperty, inline fixed-size subtype.
	InlineStructs []StructValue

	// Inner = StructProperty "S_Slots": lifted inventory slots.
	Slots []InventorySlotRaw

	// Inner = StructProperty, any other subtype: generic child-property lists.
	GenericStructs [][]Property

	// skipLargeArrays hint fired: body wasn't read at all.
	Skipped         bool
	SkippedStructTy string
}

// InventorySlotRaw is one lifted `S_Slots` element (spec §4.2.2).
type InventorySlotRaw struct {
	Item       string
	Amount     int64
	Durability float64
}

// MapValue is the decoded body of a MapProperty (spec §4.2.3).
type MapValue struct {
	KeyType   string
	ValueType string
	Pairs     []MapPair
	Skipped   bool
}

// MapPair is one decoded (key, value) entry of a MapValue.
type MapPair struct {
	Key   any
	Value any
}

// accountIDPattern matches the 17-digit account id shape used throughout
// the save (spec §8 invariant 5: "7656\d+").
var accountIDPattern = regexp.MustCompile(`7656\d+`)

// ReaderOptions tunes PropertyReader behavior.
type ReaderOptions struct {
	// SkipLargeArrays, when > 0, causes ArrayProperty bodies whose element
	// struct type is Transform/Vector/Rotator and whose count exceeds this
	// threshold to be skipped entirely (spec §4.2.2).
	SkipLargeArrays int
}

// PropertyReader decodes tagged properties from a Reader using shared options.
type PropertyReader struct {
	r    *Reader
	opts ReaderOptions
}

// NewPropertyReader wraps r with the given options.
func NewPropertyReader(r *Reader, opts ReaderOptions) *PropertyReader {
	return &PropertyReader{r: r, opts: opts}
}

// captureMapNames is the fixed set of MapProperty names whose contents are
// decoded rather than skipped (spec §4.2.3).
var captureMapNames = []string{
	"GameStats", "FloatData", "CustomData", "LODHouseData",
	"RandQuestConfig", "SGlobalContainerSave",
}

func isCaptureMapName(name string) bool {
	for _, n := range captureMapNames {
		if name == n || matchesSubstring(name, n) {
			return true
		}
	}
	return false
}

func matchesSubstring(name, needle string) bool {
	return len(name) >= len(needle) && indexOf(name, needle) >= 0
}

func indexOf(haystack, needle string) int {
	n, m := len(haystack), len(needle)
	if m == 0 {
		return 0
	}
	for i := 0; i+m <= n; i++ {
		if haystack[i:i+m] == needle {
			return i
		}
	}
	return -1
}

// ReadProperty decodes one tagged property at the current cursor.
//
// Returns (nil, nil) when the "None" terminator or end-of-stream is hit, or
// when a guardrail tripped or the body failed to decode; in those failure
// cases the cursor is restored to the property start (spec §4.2's
// "Guardrails"). The error result is always nil: a restored, non-advancing
// cursor is what sends the parser into its forward-recovery scan (spec §4.3.2).
func (p *PropertyReader) ReadProperty() (*Property, error) {
	start := p.r.Mark()

	name, err := p.r.ReadFString()
	if err != nil {
		p.r.Restore(start)
		return nil, nil
	}
	if name == "None" {
		return nil, nil
	}

	typeTag, err := p.r.ReadFString()
	if err != nil {
		p.r.Restore(start)
		return nil, nil
	}

	dataSize, err := p.r.ReadI64()
	if err != nil {
		p.r.Restore(start)
		return nil, nil
	}
	if dataSize < 0 || dataSize > int64(len(p.r.data)) {
		p.r.Restore(start)
		return nil, nil
	}

	prop := &Property{Name: name, Type: typeTag}

	switch typeTag {
	case "BoolProperty":
		b, err := p.r.ReadBool()
		if err != nil {
			p.r.Restore(start)
			return nil, nil
		}
		if _, err := p.r.ReadU8(); err != nil { // separator byte
			p.r.Restore(start)
			return nil, nil
		}
		prop.Kind, prop.Value = KindBool, b

	case "IntProperty", "UInt32Property":
		if _, err := p.r.ReadU8(); err != nil {
			p.r.Restore(start)
			return nil, nil
		}
		v, err := p.r.ReadI32()
		if err != nil {
			p.r.Restore(start)
			return nil, nil
		}
		prop.Kind, prop.Value = KindInt, int64(v)

	case "Int64Property":
		if _, err := p.r.ReadU8(); err != nil {
			p.r.Restore(start)
			return nil, nil
		}
		v, err := p.r.ReadI64()
		if err != nil {
			p.r.Restore(start)
			return nil, nil
		}
		prop.Kind, prop.Value = KindInt, v

	case "FloatProperty":
		if _, err := p.r.ReadU8(); err != nil {
			p.r.Restore(start)
			return nil, nil
		}
		v, err := p.r.ReadF32()
		if err != nil {
			p.r.Restore(start)
			return nil, nil
		}
		prop.Kind, prop.Value = KindFloat, float64(v)

	case "DoubleProperty":
		if _, err := p.r.ReadU8(); err != nil {
			p.r.Restore(start)
			return nil, nil
		}
		v, err := p.r.ReadF64()
		if err != nil {
			p.r.Restore(start)
			return nil, nil
		}
		prop.Kind, prop.Value = KindFloat, v

	case "StrProperty", "NameProperty", "SoftObjectProperty", "ObjectProperty":
		if _, err := p.r.ReadU8(); err != nil {
			p.r.Restore(start)
			return nil, nil
		}
		s, err := p.r.ReadFString()
		if err != nil {
			p.r.Restore(start)
			return nil, nil
		}
		prop.Kind, prop.Value = KindString, s

	case "EnumProperty":
		if _, err := p.r.ReadFString(); err != nil { // enumType, unused at this layer
			p.r.Restore(start)
			return nil, nil
		}
		if _, err := p.r.ReadU8(); err != nil {
			p.r.Restore(start)
			return nil, nil
		}
		s, err := p.r.ReadFString()
		if err != nil {
			p.r.Restore(start)
			return nil, nil
		}
		prop.Kind, prop.Value = KindString, s

	case "ByteProperty":
		enumName, err := p.r.ReadFString()
		if err != nil {
			p.r.Restore(start)
			return nil, nil
		}
		if _, err := p.r.ReadU8(); err != nil {
			p.r.Restore(start)
			return nil, nil
		}
		if enumName == "None" {
			b, err := p.r.ReadU8()
			if err != nil {
				p.r.Restore(start)
				return nil, nil
			}
			prop.Kind, prop.Value = KindInt, int64(b)
		} else {
			s, err := p.r.ReadFString()
			if err != nil {
				p.r.Restore(start)
				return nil, nil
			}
			prop.Kind, prop.Value = KindString, s
		}

	case "TextProperty":
		if _, err := p.r.ReadU8(); err != nil {
			p.r.Restore(start)
			return nil, nil
		}
		if err := p.r.Skip(int(dataSize)); err != nil {
			p.r.Restore(start)
			return nil, nil
		}
		prop.Kind, prop.Value = KindNil, nil

	case "StructProperty":
		sv, err := p.readStructBody(dataSize)
		if err != nil {
			p.r.Restore(start)
			return nil, nil
		}
		prop.Kind, prop.Value = KindStruct, sv

	case "ArrayProperty":
		av, err := p.readArrayBody(name, dataSize)
		if err != nil {
			p.r.Restore(start)
			return nil, nil
		}
		prop.Kind, prop.Value = KindArray, av

	case "MapProperty":
		mv, err := p.readMapBody(name, dataSize)
		if err != nil {
			p.r.Restore(start)
			return nil, nil
		}
		prop.Kind, prop.Value = KindMap, mv

	case "SetProperty":
		if _, err := p.r.ReadFString(); err != nil { // inner type
			p.r.Restore(start)
			return nil, nil
		}
		if _, err := p.r.ReadU8(); err != nil {
			p.r.Restore(start)
			return nil, nil
		}
		if err := p.r.Skip(int(dataSize)); err != nil {
			p.r.Restore(start)
			return nil, nil
		}
		prop.Kind, prop.Value = KindNil, nil

	default:
		if _, err := p.r.ReadU8(); err != nil {
			p.r.Restore(start)
			return nil, nil
		}
		if err := p.r.Skip(int(dataSize)); err != nil {
			p.r.Restore(start)
			return nil, nil
		}
		prop.Kind, prop.Value = KindNil, nil
	}

	return prop, nil
}

// readPropertyList reads properties until the "None" terminator or EOF,
// used by generic structs, Transform, and array elements. It never returns
// an error: a truncated list simply stops early, matching spec §9's open
// question about Transform possibly over-consuming siblings -- we stop at
// whichever comes first, None or end-of-buffer, rather than run past it.
func (p *PropertyReader) readPropertyList() []Property {
	var out []Property
	for {
		prop, err := p.ReadProperty()
		if err != nil || prop == nil {
			return out
		}
		out = append(out, prop)
	}
}

func (p *PropertyReader) readStructBody(dataSize int64) (*StructValue, error) {
	structType, err := p.r.ReadFString()
	if err != nil {
		return nil, err
	}
	if _, err := p.r.ReadGUID(); err != nil {
		return nil, err
	}
	if _, err := p.r.ReadU8(); err != nil {
		return nil, err
	}

	sv := &StructValue{StructType: structType}

	switch structType {
	case "Vector", "Rotator":
		v, err := p.readVector3()
		if err != nil {
			return nil, err
		}
		sv.Vector = &v
	case "Quat":
		q, err := p.readQuat()
		if err != nil {
			return nil, err
		}
		sv.Quat = &q
	case "Guid":
		if _, err := p.r.ReadGUID(); err != nil {
			return nil, err
		}
	case "LinearColor":
		c, err := p.readColor()
		if err != nil {
			return nil, err
		}
		sv.Color = &c
	case "DateTime", "Timespan":
		v, err := p.r.ReadI64()
		if err != nil {
			return nil, err
		}
		sv.Int64Val = &v
	case "Vector2D":
		v, err := p.readVector2D()
		if err != nil {
			return nil, err
		}
		sv.Vector2D = &v
	case "GameplayTagContainer":
		count, err := p.r.ReadI32()
		if err != nil {
			return nil, err
		}
		tags := make([]string, 0, count)
		for i := int32(0); i < count; i++ {
			s, err := p.r.ReadFString()
			if err != nil {
				return nil, err
			}
			tags = append(tags, s)
		}
		sv.Tags = tags
	case "TimerHandle", "SoftClassPath", "SoftObjectPath":
		s, err := p.r.ReadFString()
		if err != nil {
			return nil, err
		}
		sv.SingleStr = &s
	case "Transform":
		children := p.readPropertyList()
		tv := TransformValue{}
		for _, c := range children {
			switch c.Name {
			case "Translation":
				if inner, ok := c.Value.(*StructValue); ok && inner.Vector != nil {
					tv.Translation = *inner.Vector
				}
			case "Rotation":
				if inner, ok := c.Value.(*StructValue); ok && inner.Quat != nil {
					tv.Rotation = *inner.Quat
				}
			case "Scale3D":
				if inner, ok := c.Value.(*StructValue); ok && inner.Vector != nil {
					tv.Scale3D = *inner.Vector
				}
			}
		}
		sv.Transform = &tv
	default:
		sv.Children = p.readPropertyList()
	}

	return sv, nil
}

func (p *PropertyReader) readVector3() (Vector3, error) {
	x, err := p.r.ReadF32()
	if err != nil {
		return Vector3{}, err
	}
	y, err := p.r.ReadF32()
	if err != nil {
		return Vector3{}, err
	}
	z, err := p.r.ReadF32()
	if err != nil {
		return Vector3{}, err
	}
	return Vector3{X: float64(x), Y: float64(y), Z: float64(z)}, nil
}

func (p *PropertyReader) readVector2D() (Vector2D, error) {
	x, err := p.r.ReadF32()
	if err != nil {
		return Vector2D{}, err
	}
	y, err := p.r.ReadF32()
	if err != nil {
		return Vector2D{}, err
	}
	return Vector2D{X: float64(x), Y: float64(y)}, nil
}

func (p *PropertyReader) readQuat() (Quat, error) {
	x, err := p.r.ReadF32()
	if err != nil {
		return Quat{}, err
	}
	y, err := p.r.ReadF32()
	if err != nil {
		return Quat{}, err
	}
	z, err := p.r.ReadF32()
	if err != nil {
		return Quat{}, err
	}
	w, err := p.r.ReadF32()
	if err != nil {
		return Quat{}, err
	}
	return Quat{X: float64(x), Y: float64(y), Z: float64(z), W: float64(w)}, nil
}

func (p *PropertyReader) readColor() (LinearColor, error) {
	r, err := p.r.ReadF32()
	if err != nil {
		return LinearColor{}, err
	}
	g, err := p.r.ReadF32()
	if err != nil {
		return LinearColor{}, err
	}
	b, err := p.r.ReadF32()
	if err != nil {
		return LinearColor{}, err
	}
	a, err := p.r.ReadF32()
	if err != nil {
		return LinearColor{}, err
	}
	return LinearColor{R: float64(r), G: float64(g), B: float64(b), A: float64(a)}, nil
}

var inlineStructTypes = map[string]bool{
	"Vector": true, "Rotator": true, "Quat": true, "LinearColor": true,
	"DateTime": true, "Timespan": true, "Vector2D": true, "Guid": true,
}

func (p *PropertyReader) readArrayBody(name string, dataSize int64) (*ArrayValue, error) {
	innerType, err := p.r.ReadFString()
	if err != nil {
		return nil, err
	}
	if _, err := p.r.ReadU8(); err != nil {
		return nil, err
	}
	count, err := p.r.ReadI32()
	if err != nil {
		return nil, err
	}

	av := &ArrayValue{InnerType: innerType, Count: count}

	switch innerType {
	case "StructProperty":
		bodyStart := p.r.Mark()
		if _, err := p.r.ReadFString(); err != nil { // element name
			return nil, err
		}
		if _, err := p.r.ReadFString(); err != nil { // element type
			return nil, err
		}
		if _, err := p.r.ReadI64(); err != nil { // element size
			return nil, err
		}
		structType, err := p.r.ReadFString()
		if err != nil {
			return nil, err
		}
		if _, err := p.r.ReadGUID(); err != nil {
			return nil, err
		}
		if _, err := p.r.ReadU8(); err != nil {
			return nil, err
		}

		if p.opts.SkipLargeArrays > 0 && int(count) > p.opts.SkipLargeArrays &&
			(structType == "Transform" || structType == "Vector" || structType == "Rotator") {
			remaining := dataSize - int64(p.r.Mark()-bodyStart)
			if remaining < 0 {
				remaining = 0
			}
			if err := p.r.Skip(int(remaining)); err != nil {
				return nil, err
			}
			av.Skipped = true
			av.SkippedStructTy = structType
			return av, nil
		}

		if structType == "S_Slots" {
			for i := int32(0); i < count; i++ {
				children := p.readPropertyList()
				av.Slots = append(av.Slots, liftInventorySlot(children))
			}
			return av, nil
		}

		if inlineStructTypes[structType] {
			for i := int32(0); i < count; i++ {
				sv, err := p.readInlineFixed(structType)
				if err != nil {
					return nil, err
				}
				av.InlineStructs = append(av.InlineStructs, sv)
			}
			return av, nil
		}

		for i := int32(0); i < count; i++ {
			av.GenericStructs = append(av.GenericStructs, p.readPropertyList())
		}
		return av, nil

	case "NameProperty", "StrProperty", "ObjectProperty":
		for i := int32(0); i < count; i++ {
			s, err := p.r.ReadFString()
			if err != nil {
				return nil, err
			}
			av.Primitives = append(av.Primitives, s)
		}
		return av, nil

	case "IntProperty", "UInt32Property":
		for i := int32(0); i < count; i++ {
			v, err := p.r.ReadI32()
			if err != nil {
				return nil, err
			}
			av.Primitives = append(av.Primitives, int64(v))
		}
		return av, nil

	case "FloatProperty":
		for i := int32(0); i < count; i++ {
			v, err := p.r.ReadF32()
			if err != nil {
				return nil, err
			}
			av.Primitives = append(av.Primitives, float64(v))
		}
		return av, nil

	case "BoolProperty":
		for i := int32(0); i < count; i++ {
			v, err := p.r.ReadBool()
			if err != nil {
				return nil, err
			}
			av.Primitives = append(av.Primitives, v)
		}
		return av, nil

	case "ByteProperty", "EnumProperty":
		for i := int32(0); i < count; i++ {
			v, err := p.r.ReadU8()
			if err != nil {
				return nil, err
			}
			av.Primitives = append(av.Primitives, int64(v))
		}
		return av, nil

	default:
		if err := p.r.Skip(int(dataSize) - 4); err != nil { // dataSize covers count+elements; count already read
			return nil, err
		}
		av.Skipped = true
		return av, nil
	}
}

func (p *PropertyReader) readInlineFixed(structType string) (StructValue, error) {
	sv := StructValue{StructType: structType}
	switch structType {
	case "Vector", "Rotator":
		v, err := p.readVector3()
		if err != nil {
			return sv, err
		}
		sv.Vector = &v
	case "Quat":
		q, err := p.readQuat()
		if err != nil {
			return sv, err
		}
		sv.Quat = &q
	case "LinearColor":
		c, err := p.readColor()
		if err != nil {
			return sv, err
		}
		sv.Color = &c
	case "DateTime", "Timespan":
		v, err := p.r.ReadI64()
		if err != nil {
			return sv, err
		}
		sv.Int64Val = &v
	case "Vector2D":
		v, err := p.readVector2D()
		if err != nil {
			return sv, err
		}
		sv.Vector2D = &v
	case "Guid":
		if _, err := p.r.ReadGUID(); err != nil {
			return sv, err
		}
	}
	return sv, nil
}

// liftInventorySlot pulls {Item.RowName, Amount, Durability} out of a
// generic child-property list for one S_Slots array element (spec §4.2.2).
func liftInventorySlot(children []Property) InventorySlotRaw {
	var slot InventorySlotRaw
	for _, c := range children {
		switch c.Name {
		case "Item":
			if inner, ok := c.Value.(*StructValue); ok {
				for _, ic := range inner.Children {
					if ic.Name == "RowName" {
						if s, ok := ic.Value.(string); ok {
							slot.Item = s
						}
					}
				}
			}
		case "Amount":
			if v, ok := c.Value.(int64); ok {
				slot.Amount = v
			}
		case "Durability":
			if v, ok := c.Value.(float64); ok {
				slot.Durability = roundTo(v, 1)
			}
		}
	}
	return slot
}

func (p *PropertyReader) readMapBody(name string, dataSize int64) (*MapValue, error) {
	keyType, err := p.r.ReadFString()
	if err != nil {
		return nil, err
	}
	valueType, err := p.r.ReadFString()
	if err != nil {
		return nil, err
	}
	if _, err := p.r.ReadU8(); err != nil {
		return nil, err
	}

	mv := &MapValue{KeyType: keyType, ValueType: valueType}

	if !isCaptureMapName(name) || !isPrimitiveType(keyType) || !isPrimitiveType(valueType) {
		if err := p.r.Skip(int(dataSize)); err != nil {
			return nil, err
		}
		mv.Skipped = true
		return mv, nil
	}

	removedCount, err := p.r.ReadI32()
	if err != nil {
		return nil, err
	}
	_ = removedCount

	count, err := p.r.ReadI32()
	if err != nil {
		return nil, err
	}

	for i := int32(0); i < count; i++ {
		k, err := p.readPrimitive(keyType)
		if err != nil {
			return nil, err
		}
		v, err := p.readPrimitive(valueType)
		if err != nil {
			return nil, err
		}
		mv.Pairs = append(mv.Pairs, MapPair{Key: k, Value: v})
	}

	return mv, nil
}

func isPrimitiveType(t string) bool {
	switch t {
	case "IntProperty", "UInt32Property", "Int64Property", "FloatProperty",
		"DoubleProperty", "StrProperty", "NameProperty", "BoolProperty", "ByteProperty":
		return true
	}
	return false
}

func (p *PropertyReader) readPrimitive(t string) (any, error) {
	switch t {
	case "IntProperty", "UInt32Property":
		v, err := p.r.ReadI32()
		return int64(v), err
	case "Int64Property":
		return p.r.ReadI64()
	case "FloatProperty":
		v, err := p.r.ReadF32()
		return float64(v), err
	case "DoubleProperty":
		return p.r.ReadF64()
	case "StrProperty", "NameProperty":
		return p.r.ReadFString()
	case "BoolProperty":
		return p.r.ReadBool()
	case "ByteProperty":
		v, err := p.r.ReadU8()
		return int64(v), err
	}
	return nil, fmt.Errorf("gvas: unsupported primitive type %q", t)
}

func roundTo(v float64, places int) float64 {
	scale := 1.0
	for i := 0; i < places; i++ {
		scale *= 10
	}
	return roundHalfAwayFromZero(v*scale) / scale
}

func roundHalfAwayFromZero(v float64) float64 {
	if v >= 0 {
		return float64(int64(v + 0.5))
	}
	return float64(int64(v - 0.5))
}
