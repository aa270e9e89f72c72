package digest

import (
	"strings"
	"testing"
)

func TestSumDeterministic(t *testing.T) {
	data := []byte("hello depot")

	first := Sum(data)
	second := Sum(data)

	if first != second {
		t.Errorf("Sum() not deterministic: %s != %s", first, second)
	}

	other := Sum([]byte("hello depot!"))
	if first == other {
		t.Errorf("Sum() collision for different inputs")
	}
}

func TestStringAndParse(t *testing.T) {
	d := Sum([]byte("round trip"))

	s := d.String()
	if len(s) != HexLen {
		t.Fatalf("String() length = %d, want %d", len(s), HexLen)
	}
	if s != strings.ToLower(s) {
		t.Errorf("String() not lowercase: %s", s)
	}

	parsed, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if parsed != d {
		t.Errorf("Parse(String()) = %s, want %s", parsed, d)
	}

	// Upper case input canonicalizes.
	parsed, err = Parse(strings.ToUpper(s))
	if err != nil {
		t.Fatalf("Parse(upper) error = %v", err)
	}
	if parsed != d {
		t.Errorf("Parse(upper) = %s, want %s", parsed, d)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"too short", "abcdef"},
		{"too long", strings.Repeat("ab", 33)},
		{"non-hex", strings.Repeat("zz", 32)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.input); err == nil {
				t.Errorf("Parse(%q) expected error, got nil", tt.input)
			}
		})
	}
}

func TestIsZero(t *testing.T) {
	var zero Digest
	if !zero.IsZero() {
		t.Error("zero digest should report IsZero")
	}
	if Sum([]byte("x")).IsZero() {
		t.Error("computed digest should not report IsZero")
	}
}

func TestTextRoundTrip(t *testing.T) {
	d := Sum([]byte("marshal me"))

	text, err := d.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText() error = %v", err)
	}

	var back Digest
	if err := back.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	if back != d {
		t.Errorf("text round trip = %s, want %s", back, d)
	}
}
