package variant

import (
	"bytes"
	"math"
	"sort"
)

const epsilon = 1e-4

// fuzzyEq32 compares floats with an absolute-or-relative epsilon. NaN equals
// NaN so that serialization round-trips of NaN properties do not churn.
func fuzzyEq32(a, b float32) bool {
	if math.IsNaN(float64(a)) {
		return math.IsNaN(float64(b))
	}
	if math.IsNaN(float64(b)) {
		return false
	}
	diff := math.Abs(float64(a - b))
	maxVal := math.Max(math.Abs(float64(a)), math.Max(math.Abs(float64(b)), 1.0))
	return diff < epsilon || diff < maxVal*epsilon
}

func fuzzyEq64(a, b float64) bool {
	if math.IsNaN(a) {
		return math.IsNaN(b)
	}
	if math.IsNaN(b) {
		return false
	}
	diff := math.Abs(a - b)
	maxVal := math.Max(math.Abs(a), math.Max(math.Abs(b), 1.0))
	return diff < epsilon || diff < maxVal*epsilon
}

func vectorEq(a, b Vector3) bool {
	return fuzzyEq32(a.X, b.X) && fuzzyEq32(a.Y, b.Y) && fuzzyEq32(a.Z, b.Z)
}

func vector2Eq(a, b Vector2) bool {
	return fuzzyEq32(a.X, b.X) && fuzzyEq32(a.Y, b.Y)
}

func udimEq(a, b UDim) bool {
	return fuzzyEq32(a.Scale, b.Scale) && a.Offset == b.Offset
}

// Eq compares two values, taking float comparisons into account. Values of
// different kinds are never equal. Tiny numerical noise introduced by format
// round-trips must not register as a difference; that is the reason every
// float-bearing shape goes through the fuzzy comparison.
func Eq(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}

	switch av := a.(type) {
	case Bool:
		return av == b.(Bool)
	case Int32:
		return av == b.(Int32)
	case Int64:
		return av == b.(Int64)
	case Float32:
		return fuzzyEq32(float32(av), float32(b.(Float32)))
	case Float64:
		return fuzzyEq64(float64(av), float64(b.(Float64)))
	case String:
		return av == b.(String)
	case BinaryString:
		return bytes.Equal(av, b.(BinaryString))
	case Content:
		return av == b.(Content)
	case Tags:
		bv := b.(Tags)
		if len(av) != len(bv) {
			return false
		}
		// Tags are a set; order on disk is not significant.
		ak := append(Tags(nil), av...)
		bk := append(Tags(nil), bv...)
		sort.Strings(ak)
		sort.Strings(bk)
		for i := range ak {
			if ak[i] != bk[i] {
				return false
			}
		}
		return true
	case Attributes:
		bv := b.(Attributes)
		if len(av) != len(bv) {
			return false
		}
		for name, aval := range av {
			bval, ok := bv[name]
			if !ok || !Eq(aval, bval) {
				return false
			}
		}
		return true
	case Ref:
		return av == b.(Ref)
	case Enum:
		return av == b.(Enum)
	case Vector2:
		return vector2Eq(av, b.(Vector2))
	case Vector3:
		return vectorEq(av, b.(Vector3))
	case CFrame:
		bv := b.(CFrame)
		return vectorEq(av.Position, bv.Position) &&
			vectorEq(av.XVector, bv.XVector) &&
			vectorEq(av.YVector, bv.YVector) &&
			vectorEq(av.ZVector, bv.ZVector)
	case Color3:
		bv := b.(Color3)
		return fuzzyEq32(av.R, bv.R) && fuzzyEq32(av.G, bv.G) && fuzzyEq32(av.B, bv.B)
	case Color3uint8:
		return av == b.(Color3uint8)
	case BrickColor:
		return av == b.(BrickColor)
	case UDim:
		return udimEq(av, b.(UDim))
	case UDim2:
		bv := b.(UDim2)
		return udimEq(av.X, bv.X) && udimEq(av.Y, bv.Y)
	case Rect:
		bv := b.(Rect)
		return vector2Eq(av.Min, bv.Min) && vector2Eq(av.Max, bv.Max)
	case Ray:
		bv := b.(Ray)
		return vectorEq(av.Origin, bv.Origin) && vectorEq(av.Direction, bv.Direction)
	case NumberRange:
		bv := b.(NumberRange)
		return fuzzyEq32(av.Min, bv.Min) && fuzzyEq32(av.Max, bv.Max)
	case NumberSequence:
		bv := b.(NumberSequence)
		if len(av) != len(bv) {
			return false
		}
		ak := append(NumberSequence(nil), av...)
		bk := append(NumberSequence(nil), bv...)
		sort.Slice(ak, func(i, j int) bool { return ak[i].Time < ak[j].Time })
		sort.Slice(bk, func(i, j int) bool { return bk[i].Time < bk[j].Time })
		for i := range ak {
			if !fuzzyEq32(ak[i].Time, bk[i].Time) ||
				!fuzzyEq32(ak[i].Value, bk[i].Value) ||
				!fuzzyEq32(ak[i].Envelope, bk[i].Envelope) {
				return false
			}
		}
		return true
	case ColorSequence:
		bv := b.(ColorSequence)
		if len(av) != len(bv) {
			return false
		}
		ak := append(ColorSequence(nil), av...)
		bk := append(ColorSequence(nil), bv...)
		sort.Slice(ak, func(i, j int) bool { return ak[i].Time < ak[j].Time })
		sort.Slice(bk, func(i, j int) bool { return bk[i].Time < bk[j].Time })
		for i := range ak {
			if !fuzzyEq32(ak[i].Time, bk[i].Time) ||
				!fuzzyEq32(ak[i].Color.R, bk[i].Color.R) ||
				!fuzzyEq32(ak[i].Color.G, bk[i].Color.G) ||
				!fuzzyEq32(ak[i].Color.B, bk[i].Color.B) {
				return false
			}
		}
		return true
	case PhysicalProperties:
		bv := b.(PhysicalProperties)
		if av.Custom != bv.Custom {
			return false
		}
		if !av.Custom {
			return true
		}
		return fuzzyEq32(av.Density, bv.Density) &&
			fuzzyEq32(av.Friction, bv.Friction) &&
			fuzzyEq32(av.Elasticity, bv.Elasticity) &&
			fuzzyEq32(av.FrictionWeight, bv.FrictionWeight) &&
			fuzzyEq32(av.ElasticityWeight, bv.ElasticityWeight)
	case Font:
		return av == b.(Font)
	}
	return false
}
