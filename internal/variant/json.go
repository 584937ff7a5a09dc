package variant

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// DecodeJSON turns a raw JSON value into a Value. Unambiguous scalars are
// inferred (bool, number, string); everything else must use the single-key
// tagged form, e.g. {"Vector3": [1, 2, 3]}.
func DecodeJSON(raw json.RawMessage) (Value, error) {
	var probe any
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}

	switch v := probe.(type) {
	case bool:
		return Bool(v), nil
	case float64:
		return Float64(v), nil
	case string:
		return String(v), nil
	case map[string]any:
		if len(v) != 1 {
			return nil, fmt.Errorf("ambiguous value: tagged form must have exactly one key, got %d", len(v))
		}
		for tag := range v {
			kind, ok := KindByName(tag)
			if !ok {
				return nil, fmt.Errorf("unknown value type %q", tag)
			}
			var outer map[string]json.RawMessage
			if err := json.Unmarshal(raw, &outer); err != nil {
				return nil, err
			}
			return decodeTagged(kind, outer[tag])
		}
	}
	return nil, fmt.Errorf("ambiguous value: use the tagged {\"Type\": ...} form")
}

func floats(raw json.RawMessage, want int) ([]float64, error) {
	var out []float64
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if want > 0 && len(out) != want {
		return nil, fmt.Errorf("expected %d components, got %d", want, len(out))
	}
	return out, nil
}

func vec3(raw json.RawMessage) (Vector3, error) {
	f, err := floats(raw, 3)
	if err != nil {
		return Vector3{}, err
	}
	return Vector3{X: float32(f[0]), Y: float32(f[1]), Z: float32(f[2])}, nil
}

func decodeTagged(kind Kind, raw json.RawMessage) (Value, error) {
	switch kind {
	case KindBool:
		var v bool
		err := json.Unmarshal(raw, &v)
		return Bool(v), err
	case KindInt32:
		var v int32
		err := json.Unmarshal(raw, &v)
		return Int32(v), err
	case KindInt64:
		var v int64
		err := json.Unmarshal(raw, &v)
		return Int64(v), err
	case KindFloat32:
		var v float32
		err := json.Unmarshal(raw, &v)
		return Float32(v), err
	case KindFloat64:
		var v float64
		err := json.Unmarshal(raw, &v)
		return Float64(v), err
	case KindString:
		var v string
		err := json.Unmarshal(raw, &v)
		return String(v), err
	case KindBinaryString:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("BinaryString must be base64: %w", err)
		}
		return BinaryString(decoded), nil
	case KindContent:
		var v string
		err := json.Unmarshal(raw, &v)
		return Content(v), err
	case KindTags:
		var v []string
		err := json.Unmarshal(raw, &v)
		return Tags(v), err
	case KindAttributes:
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, err
		}
		attrs := make(Attributes, len(obj))
		for name, inner := range obj {
			val, err := DecodeJSON(inner)
			if err != nil {
				return nil, fmt.Errorf("attribute %q: %w", name, err)
			}
			attrs[name] = val
		}
		return attrs, nil
	case KindRef:
		var v *string
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		if v == nil || *v == "" {
			return NilRef, nil
		}
		id, err := uuid.Parse(*v)
		if err != nil {
			return nil, fmt.Errorf("Ref must be a UUID: %w", err)
		}
		return Ref(id), nil
	case KindEnum:
		var v uint32
		err := json.Unmarshal(raw, &v)
		return Enum(v), err
	case KindVector2:
		f, err := floats(raw, 2)
		if err != nil {
			return nil, err
		}
		return Vector2{X: float32(f[0]), Y: float32(f[1])}, nil
	case KindVector3:
		return vec3(raw)
	case KindCFrame:
		var obj struct {
			Position    json.RawMessage   `json:"position"`
			Orientation []json.RawMessage `json:"orientation"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, err
		}
		if len(obj.Orientation) != 3 {
			return nil, fmt.Errorf("CFrame orientation must have 3 basis vectors")
		}
		cf := CFrame{}
		var err error
		if cf.Position, err = vec3(obj.Position); err != nil {
			return nil, err
		}
		if cf.XVector, err = vec3(obj.Orientation[0]); err != nil {
			return nil, err
		}
		if cf.YVector, err = vec3(obj.Orientation[1]); err != nil {
			return nil, err
		}
		if cf.ZVector, err = vec3(obj.Orientation[2]); err != nil {
			return nil, err
		}
		return cf, nil
	case KindColor3:
		f, err := floats(raw, 3)
		if err != nil {
			return nil, err
		}
		return Color3{R: float32(f[0]), G: float32(f[1]), B: float32(f[2])}, nil
	case KindColor3uint8:
		f, err := floats(raw, 3)
		if err != nil {
			return nil, err
		}
		return Color3uint8{R: uint8(f[0]), G: uint8(f[1]), B: uint8(f[2])}, nil
	case KindBrickColor:
		var v uint16
		err := json.Unmarshal(raw, &v)
		return BrickColor(v), err
	case KindUDim:
		f, err := floats(raw, 2)
		if err != nil {
			return nil, err
		}
		return UDim{Scale: float32(f[0]), Offset: int32(f[1])}, nil
	case KindUDim2:
		var parts []json.RawMessage
		if err := json.Unmarshal(raw, &parts); err != nil {
			return nil, err
		}
		if len(parts) != 2 {
			return nil, fmt.Errorf("UDim2 must have 2 components")
		}
		var out UDim2
		for i, part := range parts {
			f, err := floats(part, 2)
			if err != nil {
				return nil, err
			}
			u := UDim{Scale: float32(f[0]), Offset: int32(f[1])}
			if i == 0 {
				out.X = u
			} else {
				out.Y = u
			}
		}
		return out, nil
	case KindRect:
		f, err := floats(raw, 4)
		if err != nil {
			return nil, err
		}
		return Rect{
			Min: Vector2{X: float32(f[0]), Y: float32(f[1])},
			Max: Vector2{X: float32(f[2]), Y: float32(f[3])},
		}, nil
	case KindRay:
		var obj struct {
			Origin    json.RawMessage `json:"origin"`
			Direction json.RawMessage `json:"direction"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, err
		}
		ray := Ray{}
		var err error
		if ray.Origin, err = vec3(obj.Origin); err != nil {
			return nil, err
		}
		if ray.Direction, err = vec3(obj.Direction); err != nil {
			return nil, err
		}
		return ray, nil
	case KindNumberRange:
		f, err := floats(raw, 2)
		if err != nil {
			return nil, err
		}
		return NumberRange{Min: float32(f[0]), Max: float32(f[1])}, nil
	case KindNumberSequence:
		var obj struct {
			Keypoints []struct {
				Time     float32 `json:"time"`
				Value    float32 `json:"value"`
				Envelope float32 `json:"envelope"`
			} `json:"keypoints"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, err
		}
		seq := make(NumberSequence, len(obj.Keypoints))
		for i, kp := range obj.Keypoints {
			seq[i] = NumberSequenceKeypoint{Time: kp.Time, Value: kp.Value, Envelope: kp.Envelope}
		}
		return seq, nil
	case KindColorSequence:
		var obj struct {
			Keypoints []struct {
				Time  float32   `json:"time"`
				Color []float32 `json:"color"`
			} `json:"keypoints"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, err
		}
		seq := make(ColorSequence, len(obj.Keypoints))
		for i, kp := range obj.Keypoints {
			if len(kp.Color) != 3 {
				return nil, fmt.Errorf("ColorSequence keypoint color must have 3 components")
			}
			seq[i] = ColorSequenceKeypoint{
				Time:  kp.Time,
				Color: Color3{R: kp.Color[0], G: kp.Color[1], B: kp.Color[2]},
			}
		}
		return seq, nil
	case KindPhysicalProperties:
		var tag string
		if err := json.Unmarshal(raw, &tag); err == nil {
			if tag == "Default" {
				return PhysicalProperties{}, nil
			}
			return nil, fmt.Errorf("unknown PhysicalProperties tag %q", tag)
		}
		var obj struct {
			Density          float32 `json:"density"`
			Friction         float32 `json:"friction"`
			Elasticity       float32 `json:"elasticity"`
			FrictionWeight   float32 `json:"frictionWeight"`
			ElasticityWeight float32 `json:"elasticityWeight"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, err
		}
		return PhysicalProperties{
			Custom:           true,
			Density:          obj.Density,
			Friction:         obj.Friction,
			Elasticity:       obj.Elasticity,
			FrictionWeight:   obj.FrictionWeight,
			ElasticityWeight: obj.ElasticityWeight,
		}, nil
	case KindFont:
		var obj struct {
			Family string `json:"family"`
			Weight uint16 `json:"weight"`
			Style  string `json:"style"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, err
		}
		if obj.Weight == 0 {
			obj.Weight = 400
		}
		if obj.Style == "" {
			obj.Style = "Normal"
		}
		return Font{Family: obj.Family, Weight: obj.Weight, Style: obj.Style}, nil
	}
	return nil, fmt.Errorf("cannot decode value of type %s", kind)
}

// EncodeJSON produces the JSON form of a value. Bool, Float64 and String are
// written untagged since they are unambiguous on read; every other kind uses
// the single-key tagged form.
func EncodeJSON(v Value) (json.RawMessage, error) {
	switch val := v.(type) {
	case Bool:
		return json.Marshal(bool(val))
	case Float64:
		return json.Marshal(float64(val))
	case String:
		return json.Marshal(string(val))
	}
	payload, err := encodePayload(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{v.Kind().String(): payload})
}

func encodePayload(v Value) (any, error) {
	switch val := v.(type) {
	case Bool:
		return bool(val), nil
	case Int32:
		return int32(val), nil
	case Int64:
		return int64(val), nil
	case Float32:
		return float32(val), nil
	case Float64:
		return float64(val), nil
	case String:
		return string(val), nil
	case BinaryString:
		return base64.StdEncoding.EncodeToString(val), nil
	case Content:
		return string(val), nil
	case Tags:
		return []string(val), nil
	case Attributes:
		obj := make(map[string]json.RawMessage, len(val))
		names := make([]string, 0, len(val))
		for name := range val {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			raw, err := EncodeJSON(val[name])
			if err != nil {
				return nil, fmt.Errorf("attribute %q: %w", name, err)
			}
			obj[name] = raw
		}
		return obj, nil
	case Ref:
		if val.IsNil() {
			return nil, nil
		}
		return uuid.UUID(val).String(), nil
	case Enum:
		return uint32(val), nil
	case Vector2:
		return []float32{val.X, val.Y}, nil
	case Vector3:
		return []float32{val.X, val.Y, val.Z}, nil
	case CFrame:
		return map[string]any{
			"position": []float32{val.Position.X, val.Position.Y, val.Position.Z},
			"orientation": [][]float32{
				{val.XVector.X, val.XVector.Y, val.XVector.Z},
				{val.YVector.X, val.YVector.Y, val.YVector.Z},
				{val.ZVector.X, val.ZVector.Y, val.ZVector.Z},
			},
		}, nil
	case Color3:
		return []float32{val.R, val.G, val.B}, nil
	case Color3uint8:
		return []uint8{val.R, val.G, val.B}, nil
	case BrickColor:
		return uint16(val), nil
	case UDim:
		return []float32{val.Scale, float32(val.Offset)}, nil
	case UDim2:
		return [][]float32{
			{val.X.Scale, float32(val.X.Offset)},
			{val.Y.Scale, float32(val.Y.Offset)},
		}, nil
	case Rect:
		return []float32{val.Min.X, val.Min.Y, val.Max.X, val.Max.Y}, nil
	case Ray:
		return map[string]any{
			"origin":    []float32{val.Origin.X, val.Origin.Y, val.Origin.Z},
			"direction": []float32{val.Direction.X, val.Direction.Y, val.Direction.Z},
		}, nil
	case NumberRange:
		return []float32{val.Min, val.Max}, nil
	case NumberSequence:
		kps := make([]map[string]float32, len(val))
		for i, kp := range val {
			kps[i] = map[string]float32{"time": kp.Time, "value": kp.Value, "envelope": kp.Envelope}
		}
		return map[string]any{"keypoints": kps}, nil
	case ColorSequence:
		kps := make([]map[string]any, len(val))
		for i, kp := range val {
			kps[i] = map[string]any{"time": kp.Time, "color": []float32{kp.Color.R, kp.Color.G, kp.Color.B}}
		}
		return map[string]any{"keypoints": kps}, nil
	case PhysicalProperties:
		if !val.Custom {
			return "Default", nil
		}
		return map[string]float32{
			"density":          val.Density,
			"friction":         val.Friction,
			"elasticity":       val.Elasticity,
			"frictionWeight":   val.FrictionWeight,
			"elasticityWeight": val.ElasticityWeight,
		}, nil
	case Font:
		return map[string]any{"family": val.Family, "weight": val.Weight, "style": val.Style}, nil
	}
	return nil, fmt.Errorf("cannot encode value of kind %s", v.Kind())
}

// DecodeJSONMap decodes an object of property name to JSON value.
func DecodeJSONMap(raw map[string]json.RawMessage) (Map, error) {
	out := make(Map, len(raw))
	for name, rv := range raw {
		val, err := DecodeJSON(rv)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		out[name] = val
	}
	return out, nil
}

// EncodeJSONMap encodes a property map with deterministic key order.
func EncodeJSONMap(m Map) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(m))
	for name, v := range m {
		raw, err := EncodeJSON(v)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		out[name] = raw
	}
	return out, nil
}
