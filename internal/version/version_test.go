package version

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		version string
		wantErr bool
	}{
		{"basic version", "1.2.3", false},
		{"zero version", "0.0.0", false},
		{"pre-release", "1.2.3-alpha.1", false},
		{"build metadata", "1.2.3+build.5", false},
		{"pre-release and build", "1.2.3-beta.2+build.123", false},
		{"empty string", "", true},
		{"partial two parts", "1.2", true},
		{"partial one part", "1", true},
		{"four parts", "1.2.3.4", true},
		{"leading v", "v1.2.3", true},
		{"non-numeric", "a.b.c", true},
		{"negative", "-1.2.3", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.version)
			if (err != nil) != tt.wantErr {
				t.Errorf("Parse(%q) error = %v, wantErr %v", tt.version, err, tt.wantErr)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"equal", "1.2.3", "1.2.3", 0},
		{"major wins", "2.0.0", "1.9.9", 1},
		{"minor wins", "1.3.0", "1.2.9", 1},
		{"patch wins", "1.2.4", "1.2.3", 1},
		{"pre-release below release", "1.0.0-alpha", "1.0.0", -1},
		{"pre-release ordering", "1.0.0-alpha", "1.0.0-beta", -1},
		{"build metadata ignored", "1.2.3+a", "1.2.3+b", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compare(tt.a, tt.b)
			if err != nil {
				t.Fatalf("Compare(%q, %q) error = %v", tt.a, tt.b, err)
			}
			if got != tt.want {
				t.Errorf("Compare(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSortDescending(t *testing.T) {
	versions := []string{"1.0.0", "2.0.0", "1.2.0", "1.10.0", "2.0.0-rc.1"}

	SortDescending(versions)

	want := []string{"2.0.0", "2.0.0-rc.1", "1.10.0", "1.2.0", "1.0.0"}
	if !reflect.DeepEqual(versions, want) {
		t.Errorf("SortDescending() = %v, want %v", versions, want)
	}
}

func TestSatisfies(t *testing.T) {
	tests := []struct {
		name       string
		version    string
		constraint string
		want       bool
	}{
		{"caret inside range", "1.2.0", "^1.0", true},
		{"caret outside range", "2.0.0", "^1.0", false},
		{"exact match", "1.0.0", "1.0.0", true},
		{"exact mismatch", "1.0.1", "1.0.0", false},
		{"compound range", "1.5.0", ">=1.2 <2", true},
		{"compound range upper bound", "2.0.0", ">=1.2 <2", false},
		{"tilde", "1.2.9", "~1.2.0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Satisfies(tt.version, tt.constraint)
			if err != nil {
				t.Fatalf("Satisfies(%q, %q) error = %v", tt.version, tt.constraint, err)
			}
			if got != tt.want {
				t.Errorf("Satisfies(%q, %q) = %v, want %v", tt.version, tt.constraint, got, tt.want)
			}
		})
	}
}

func TestParseConstraintInvalid(t *testing.T) {
	for _, expr := range []string{"", "abc", "not a constraint", ">=x.y"} {
		if _, err := ParseConstraint(expr); err == nil {
			t.Errorf("ParseConstraint(%q) expected error, got nil", expr)
		}
	}
}

// x, X, and * are wildcard operands, so expressions like ">=x" are
// legal ranges, not malformed input.
func TestParseConstraintWildcards(t *testing.T) {
	for _, expr := range []string{"*", "1.x", ">=x", ">=X.2"} {
		if _, err := ParseConstraint(expr); err != nil {
			t.Errorf("ParseConstraint(%q) error = %v, want nil", expr, err)
		}
	}
}
