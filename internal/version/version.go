package version

import (
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
)

// Parse parses a strict semantic version (MAJOR.MINOR.PATCH with
// optional pre-release and build metadata). Partial forms like "1.0"
// are rejected: published versions must be exact.
func Parse(s string) (*semver.Version, error) {
	if s == "" {
		return nil, fmt.Errorf("version cannot be empty")
	}

	v, err := semver.StrictNewVersion(s)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q: %w", s, err)
	}
	return v, nil
}

// IsValid reports whether s is a valid version under the registry's
// versioning scheme.
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// Compare compares two version strings by precedence:
// -1 if a < b, 0 if equal, 1 if a > b. Build metadata is ignored.
func Compare(a, b string) (int, error) {
	va, err := Parse(a)
	if err != nil {
		return 0, err
	}
	vb, err := Parse(b)
	if err != nil {
		return 0, err
	}
	return va.Compare(vb), nil
}

// SortDescending orders version strings highest precedence first.
// Unparsable entries sort last so callers see valid versions first;
// the index never stores them.
func SortDescending(versions []string) {
	sort.SliceStable(versions, func(i, j int) bool {
		vi, erri := semver.StrictNewVersion(versions[i])
		vj, errj := semver.StrictNewVersion(versions[j])
		if erri != nil {
			return false
		}
		if errj != nil {
			return true
		}
		return vi.GreaterThan(vj)
	})
}

// ParseConstraint parses a version range expression such as "^1.0",
// ">=1.2 <2" or an exact "1.0.0".
func ParseConstraint(s string) (*semver.Constraints, error) {
	if s == "" {
		return nil, fmt.Errorf("constraint cannot be empty")
	}

	c, err := semver.NewConstraint(s)
	if err != nil {
		return nil, fmt.Errorf("invalid constraint %q: %w", s, err)
	}
	return c, nil
}

// Satisfies reports whether version v satisfies the range expression.
func Satisfies(v string, constraint string) (bool, error) {
	ver, err := Parse(v)
	if err != nil {
		return false, err
	}
	c, err := ParseConstraint(constraint)
	if err != nil {
		return false, err
	}
	return c.Check(ver), nil
}
