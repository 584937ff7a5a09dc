package variant

import (
	"github.com/robloxapi/rbxfile"
)

// FromRbx converts a decoded rbxfile property value into a Value. The second
// return is false for shapes we do not carry (references are resolved by the
// middleware, shared strings and int16 vectors have no tree representation).
func FromRbx(v rbxfile.Value) (Value, bool) {
	switch val := v.(type) {
	case rbxfile.ValueString:
		return String(val), true
	case rbxfile.ValueProtectedString:
		return String(val), true
	case rbxfile.ValueBinaryString:
		return BinaryString(val), true
	case rbxfile.ValueContent:
		return Content(val), true
	case rbxfile.ValueBool:
		return Bool(val), true
	case rbxfile.ValueInt:
		return Int32(val), true
	case rbxfile.ValueInt64:
		return Int64(val), true
	case rbxfile.ValueFloat:
		return Float32(val), true
	case rbxfile.ValueDouble:
		return Float64(val), true
	case rbxfile.ValueToken:
		return Enum(val), true
	case rbxfile.ValueBrickColor:
		return BrickColor(val), true
	case rbxfile.ValueColor3:
		return Color3{R: val.R, G: val.G, B: val.B}, true
	case rbxfile.ValueColor3uint8:
		return Color3uint8{R: val.R, G: val.G, B: val.B}, true
	case rbxfile.ValueVector2:
		return Vector2{X: val.X, Y: val.Y}, true
	case rbxfile.ValueVector3:
		return Vector3{X: val.X, Y: val.Y, Z: val.Z}, true
	case rbxfile.ValueCFrame:
		return CFrame{
			Position: Vector3{X: val.Position.X, Y: val.Position.Y, Z: val.Position.Z},
			XVector:  Vector3{X: val.Rotation[0], Y: val.Rotation[1], Z: val.Rotation[2]},
			YVector:  Vector3{X: val.Rotation[3], Y: val.Rotation[4], Z: val.Rotation[5]},
			ZVector:  Vector3{X: val.Rotation[6], Y: val.Rotation[7], Z: val.Rotation[8]},
		}, true
	case rbxfile.ValueUDim:
		return UDim{Scale: val.Scale, Offset: int32(val.Offset)}, true
	case rbxfile.ValueUDim2:
		return UDim2{
			X: UDim{Scale: val.X.Scale, Offset: int32(val.X.Offset)},
			Y: UDim{Scale: val.Y.Scale, Offset: int32(val.Y.Offset)},
		}, true
	case rbxfile.ValueRect:
		return Rect{
			Min: Vector2{X: val.Min.X, Y: val.Min.Y},
			Max: Vector2{X: val.Max.X, Y: val.Max.Y},
		}, true
	case rbxfile.ValueRay:
		return Ray{
			Origin:    Vector3{X: val.Origin.X, Y: val.Origin.Y, Z: val.Origin.Z},
			Direction: Vector3{X: val.Direction.X, Y: val.Direction.Y, Z: val.Direction.Z},
		}, true
	case rbxfile.ValueNumberRange:
		return NumberRange{Min: val.Min, Max: val.Max}, true
	case rbxfile.ValueNumberSequence:
		seq := make(NumberSequence, len(val))
		for i, kp := range val {
			seq[i] = NumberSequenceKeypoint{Time: kp.Time, Value: kp.Value, Envelope: kp.Envelope}
		}
		return seq, true
	case rbxfile.ValueColorSequence:
		seq := make(ColorSequence, len(val))
		for i, kp := range val {
			seq[i] = ColorSequenceKeypoint{
				Time:  kp.Time,
				Color: Color3{R: kp.Value.R, G: kp.Value.G, B: kp.Value.B},
			}
		}
		return seq, true
	case rbxfile.ValuePhysicalProperties:
		return PhysicalProperties{
			Custom:           val.CustomPhysics,
			Density:          val.Density,
			Friction:         val.Friction,
			Elasticity:       val.Elasticity,
			FrictionWeight:   val.FrictionWeight,
			ElasticityWeight: val.ElasticityWeight,
		}, true
	}
	return nil, false
}

// ToRbx converts a Value into its rbxfile form for model serialization. The
// second return is false for shapes rbxfile cannot carry directly (Ref, Tags
// and Attributes). The model writer converts Tags itself and drops Ref and
// Attributes values.
func ToRbx(v Value) (rbxfile.Value, bool) {
	switch val := v.(type) {
	case String:
		return rbxfile.ValueString(val), true
	case BinaryString:
		return rbxfile.ValueBinaryString(val), true
	case Content:
		return rbxfile.ValueContent(val), true
	case Bool:
		return rbxfile.ValueBool(val), true
	case Int32:
		return rbxfile.ValueInt(val), true
	case Int64:
		return rbxfile.ValueInt64(val), true
	case Float32:
		return rbxfile.ValueFloat(val), true
	case Float64:
		return rbxfile.ValueDouble(val), true
	case Enum:
		return rbxfile.ValueToken(val), true
	case BrickColor:
		return rbxfile.ValueBrickColor(val), true
	case Color3:
		return rbxfile.ValueColor3{R: val.R, G: val.G, B: val.B}, true
	case Color3uint8:
		return rbxfile.ValueColor3uint8{R: val.R, G: val.G, B: val.B}, true
	case Vector2:
		return rbxfile.ValueVector2{X: val.X, Y: val.Y}, true
	case Vector3:
		return rbxfile.ValueVector3{X: val.X, Y: val.Y, Z: val.Z}, true
	case CFrame:
		return rbxfile.ValueCFrame{
			Position: rbxfile.ValueVector3{X: val.Position.X, Y: val.Position.Y, Z: val.Position.Z},
			Rotation: [9]float32{
				val.XVector.X, val.XVector.Y, val.XVector.Z,
				val.YVector.X, val.YVector.Y, val.YVector.Z,
				val.ZVector.X, val.ZVector.Y, val.ZVector.Z,
			},
		}, true
	case UDim:
		return rbxfile.ValueUDim{Scale: val.Scale, Offset: int32(val.Offset)}, true
	case UDim2:
		return rbxfile.ValueUDim2{
			X: rbxfile.ValueUDim{Scale: val.X.Scale, Offset: int32(val.X.Offset)},
			Y: rbxfile.ValueUDim{Scale: val.Y.Scale, Offset: int32(val.Y.Offset)},
		}, true
	case Rect:
		return rbxfile.ValueRect{
			Min: rbxfile.ValueVector2{X: val.Min.X, Y: val.Min.Y},
			Max: rbxfile.ValueVector2{X: val.Max.X, Y: val.Max.Y},
		}, true
	case Ray:
		return rbxfile.ValueRay{
			Origin:    rbxfile.ValueVector3{X: val.Origin.X, Y: val.Origin.Y, Z: val.Origin.Z},
			Direction: rbxfile.ValueVector3{X: val.Direction.X, Y: val.Direction.Y, Z: val.Direction.Z},
		}, true
	case NumberRange:
		return rbxfile.ValueNumberRange{Min: val.Min, Max: val.Max}, true
	case NumberSequence:
		seq := make(rbxfile.ValueNumberSequence, len(val))
		for i, kp := range val {
			seq[i] = rbxfile.ValueNumberSequenceKeypoint{Time: kp.Time, Value: kp.Value, Envelope: kp.Envelope}
		}
		return seq, true
	case ColorSequence:
		seq := make(rbxfile.ValueColorSequence, len(val))
		for i, kp := range val {
			seq[i] = rbxfile.ValueColorSequenceKeypoint{
				Time:  kp.Time,
				Value: rbxfile.ValueColor3{R: kp.Color.R, G: kp.Color.G, B: kp.Color.B},
			}
		}
		return seq, true
	case PhysicalProperties:
		return rbxfile.ValuePhysicalProperties{
			CustomPhysics:    val.Custom,
			Density:          val.Density,
			Friction:         val.Friction,
			Elasticity:       val.Elasticity,
			FrictionWeight:   val.FrictionWeight,
			ElasticityWeight: val.ElasticityWeight,
		}, true
	}
	return nil, false
}
