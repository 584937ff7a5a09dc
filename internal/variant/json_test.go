package variant

import (
	"encoding/json"
	"testing"
)

func decode(t *testing.T, src string) Value {
	t.Helper()
	v, err := DecodeJSON(json.RawMessage(src))
	if err != nil {
		t.Fatalf("DecodeJSON(%s) failed: %v", src, err)
	}
	return v
}

func TestDecodeUntaggedInference(t *testing.T) {
	if v := decode(t, `true`); v != Bool(true) {
		t.Errorf("expected Bool(true), got %#v", v)
	}
	if v := decode(t, `1.5`); v != Float64(1.5) {
		t.Errorf("expected Float64(1.5), got %#v", v)
	}
	if v := decode(t, `"hello"`); v != String("hello") {
		t.Errorf("expected String(hello), got %#v", v)
	}
}

func TestDecodeTaggedForms(t *testing.T) {
	v := decode(t, `{"Vector3": [1, 2, 3]}`)
	want := Vector3{X: 1, Y: 2, Z: 3}
	if v != want {
		t.Errorf("expected %v, got %#v", want, v)
	}

	v = decode(t, `{"Enum": 2}`)
	if v != Enum(2) {
		t.Errorf("expected Enum(2), got %#v", v)
	}

	v = decode(t, `{"Attributes": {"Flag": true, "Speed": 2.5}}`)
	attrs, ok := v.(Attributes)
	if !ok {
		t.Fatalf("expected Attributes, got %#v", v)
	}
	if attrs["Flag"] != Bool(true) || attrs["Speed"] != Float64(2.5) {
		t.Errorf("attributes decoded wrong: %#v", attrs)
	}
}

func TestDecodeAmbiguousRejected(t *testing.T) {
	if _, err := DecodeJSON(json.RawMessage(`[1, 2, 3]`)); err == nil {
		t.Errorf("bare arrays are ambiguous and must be rejected")
	}
	if _, err := DecodeJSON(json.RawMessage(`{"NotAType": 1}`)); err == nil {
		t.Errorf("unknown tags must be rejected")
	}
}

func TestRoundTripTagged(t *testing.T) {
	values := []Value{
		Int32(-7),
		Int64(1 << 40),
		Float32(1.25),
		Vector2{X: 1, Y: 2},
		Vector3{X: 1, Y: 2, Z: 3},
		Color3{R: 0.5, G: 0.25, B: 1},
		UDim2{X: UDim{Scale: 0.5, Offset: 10}, Y: UDim{Scale: 1, Offset: -4}},
		NumberRange{Min: 1, Max: 2},
		IdentityCFrame,
		PhysicalProperties{},
		PhysicalProperties{Custom: true, Density: 0.7, Friction: 0.3},
		Font{Family: "rbxasset://fonts/families/SourceSansPro.json", Weight: 400, Style: "Normal"},
	}
	for _, v := range values {
		raw, err := EncodeJSON(v)
		if err != nil {
			t.Fatalf("encode %s: %v", v.Kind(), err)
		}
		back, err := DecodeJSON(raw)
		if err != nil {
			t.Fatalf("decode %s (%s): %v", v.Kind(), raw, err)
		}
		if !Eq(v, back) {
			t.Errorf("%s did not round-trip: sent %#v, got %#v", v.Kind(), v, back)
		}
	}
}

func TestEncodeUntaggedScalars(t *testing.T) {
	raw, err := EncodeJSON(Bool(true))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(raw) != "true" {
		t.Errorf("Bool should encode untagged, got %s", raw)
	}
	raw, err = EncodeJSON(String("x"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(raw) != `"x"` {
		t.Errorf("String should encode untagged, got %s", raw)
	}
}
