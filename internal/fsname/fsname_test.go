package fsname

import "testing"

func TestEncodeDecode(t *testing.T) {
	cases := []struct {
		decoded, encoded string
	}{
		{"Plain", "Plain"},
		{"What?Module", "What%QUESTION%Module"},
		{"a:b", "a%COLON%b"},
		{"x/y", "x%SLASH%y"},
		{"?:/", "%QUESTION%%COLON%%SLASH%"},
	}
	for _, c := range cases {
		if got := Encode(c.decoded); got != c.encoded {
			t.Errorf("Encode(%q) = %q, want %q", c.decoded, got, c.encoded)
		}
		if got := Decode(c.encoded); got != c.decoded {
			t.Errorf("Decode(%q) = %q, want %q", c.encoded, got, c.decoded)
		}
	}
}
