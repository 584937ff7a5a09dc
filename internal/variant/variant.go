// Package variant implements the typed property values carried by instances,
// their fuzzy equality rules, and the JSON encoding used by project files,
// meta files, and model descriptors.
package variant

import (
	"github.com/google/uuid"
)

// Kind identifies the concrete shape of a Value.
type Kind uint8

const (
	KindBool Kind = iota
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindString
	KindBinaryString
	KindContent
	KindTags
	KindAttributes
	KindRef
	KindEnum
	KindVector2
	KindVector3
	KindCFrame
	KindColor3
	KindColor3uint8
	KindBrickColor
	KindUDim
	KindUDim2
	KindRect
	KindRay
	KindNumberRange
	KindNumberSequence
	KindColorSequence
	KindPhysicalProperties
	KindFont
)

var kindNames = map[Kind]string{
	KindBool:               "Bool",
	KindInt32:              "Int32",
	KindInt64:              "Int64",
	KindFloat32:            "Float32",
	KindFloat64:            "Float64",
	KindString:             "String",
	KindBinaryString:       "BinaryString",
	KindContent:            "Content",
	KindTags:               "Tags",
	KindAttributes:         "Attributes",
	KindRef:                "Ref",
	KindEnum:               "Enum",
	KindVector2:            "Vector2",
	KindVector3:            "Vector3",
	KindCFrame:             "CFrame",
	KindColor3:             "Color3",
	KindColor3uint8:        "Color3uint8",
	KindBrickColor:         "BrickColor",
	KindUDim:               "UDim",
	KindUDim2:              "UDim2",
	KindRect:               "Rect",
	KindRay:                "Ray",
	KindNumberRange:        "NumberRange",
	KindNumberSequence:     "NumberSequence",
	KindColorSequence:      "ColorSequence",
	KindPhysicalProperties: "PhysicalProperties",
	KindFont:               "Font",
}

// String returns the tag name used in serialized {"Type": value} forms.
func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "Unknown"
}

// KindByName is the inverse of Kind.String. The second return is false for
// unknown tag names.
func KindByName(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// Value is a typed property value. The set of shapes is closed; see the Kind
// constants.
type Value interface {
	Kind() Kind
}

type Bool bool

func (Bool) Kind() Kind { return KindBool }

type Int32 int32

func (Int32) Kind() Kind { return KindInt32 }

type Int64 int64

func (Int64) Kind() Kind { return KindInt64 }

type Float32 float32

func (Float32) Kind() Kind { return KindFloat32 }

type Float64 float64

func (Float64) Kind() Kind { return KindFloat64 }

type String string

func (String) Kind() Kind { return KindString }

type BinaryString []byte

func (BinaryString) Kind() Kind { return KindBinaryString }

// Content is an asset URI, e.g. "rbxassetid://12345".
type Content string

func (Content) Kind() Kind { return KindContent }

// Tags is the CollectionService tag list. Order is not significant.
type Tags []string

func (Tags) Kind() Kind { return KindTags }

// Attributes is the user attribute map. Keys beginning with "Rojo_" are
// reserved sync-control metadata and are stripped before serialization to
// third parties.
type Attributes map[string]Value

func (Attributes) Kind() Kind { return KindAttributes }

// Ref is a pointer to another instance by referent. The zero value is the nil
// reference.
type Ref uuid.UUID

func (Ref) Kind() Kind { return KindRef }

// NilRef is the null instance reference.
var NilRef = Ref(uuid.Nil)

// IsNil reports whether the reference points at no instance.
func (r Ref) IsNil() bool { return uuid.UUID(r) == uuid.Nil }

// Enum is a raw enum item value, e.g. RunContext.
type Enum uint32

func (Enum) Kind() Kind { return KindEnum }

type Vector2 struct {
	X, Y float32
}

func (Vector2) Kind() Kind { return KindVector2 }

type Vector3 struct {
	X, Y, Z float32
}

func (Vector3) Kind() Kind { return KindVector3 }

// CFrame is a position plus three orthonormal basis vectors.
type CFrame struct {
	Position Vector3
	XVector  Vector3
	YVector  Vector3
	ZVector  Vector3
}

func (CFrame) Kind() Kind { return KindCFrame }

// IdentityCFrame is the identity transform.
var IdentityCFrame = CFrame{
	XVector: Vector3{X: 1},
	YVector: Vector3{Y: 1},
	ZVector: Vector3{Z: 1},
}

type Color3 struct {
	R, G, B float32
}

func (Color3) Kind() Kind { return KindColor3 }

type Color3uint8 struct {
	R, G, B uint8
}

func (Color3uint8) Kind() Kind { return KindColor3uint8 }

type BrickColor uint16

func (BrickColor) Kind() Kind { return KindBrickColor }

type UDim struct {
	Scale  float32
	Offset int32
}

func (UDim) Kind() Kind { return KindUDim }

type UDim2 struct {
	X, Y UDim
}

func (UDim2) Kind() Kind { return KindUDim2 }

type Rect struct {
	Min, Max Vector2
}

func (Rect) Kind() Kind { return KindRect }

type Ray struct {
	Origin    Vector3
	Direction Vector3
}

func (Ray) Kind() Kind { return KindRay }

type NumberRange struct {
	Min, Max float32
}

func (NumberRange) Kind() Kind { return KindNumberRange }

type NumberSequenceKeypoint struct {
	Time     float32
	Value    float32
	Envelope float32
}

type NumberSequence []NumberSequenceKeypoint

func (NumberSequence) Kind() Kind { return KindNumberSequence }

type ColorSequenceKeypoint struct {
	Time  float32
	Color Color3
}

type ColorSequence []ColorSequenceKeypoint

func (ColorSequence) Kind() Kind { return KindColorSequence }

type PhysicalProperties struct {
	Custom           bool
	Density          float32
	Friction         float32
	Elasticity       float32
	FrictionWeight   float32
	ElasticityWeight float32
}

func (PhysicalProperties) Kind() Kind { return KindPhysicalProperties }

type Font struct {
	Family string
	Weight uint16
	Style  string
}

func (Font) Kind() Kind { return KindFont }

// Map is a property map keyed by property name.
type Map map[string]Value

// Clone returns a shallow copy of the map. Values are immutable by
// convention, so a shallow copy is sufficient except for Attributes, which is
// copied one level deep.
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	out := make(Map, len(m))
	for k, v := range m {
		if attrs, ok := v.(Attributes); ok {
			copied := make(Attributes, len(attrs))
			for ak, av := range attrs {
				copied[ak] = av
			}
			out[k] = copied
			continue
		}
		out[k] = v
	}
	return out
}
