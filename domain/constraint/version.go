// Package constraint implements semantic versions and the version constraints plugins
// use to declare their dependencies.
//
// Constraints support the caret (^), tilde (~), exact (=, or a bare version),
// comparison (>, >=, <, <=) and wildcard (*) operators. Comparators separated by
// commas or spaces must all hold; alternatives separated by || are OR-ed.
package constraint

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is a parsed semantic version (MAJOR.MINOR.PATCH[-PRERELEASE][+BUILD]).
type Version struct {
	pre   string
	build string
	major int
	minor int
	patch int
}

// ParseVersion parses a full semantic version. A leading "v" is accepted.
func ParseVersion(s string) (Version, error) {
	v, parts, err := parsePartial(s)
	if err != nil {
		return Version{}, err
	}
	if parts != 3 {
		return Version{}, fmt.Errorf("invalid version %q: expected MAJOR.MINOR.PATCH", s)
	}
	return v, nil
}

// MustParseVersion is like ParseVersion but panics on error.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// parsePartial parses "1", "1.2" or "1.2.3" with optional pre-release and build
// suffixes and reports how many numeric components were present.
func parsePartial(s string) (Version, int, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), "v")
	if raw == "" {
		return Version{}, 0, fmt.Errorf("invalid version %q: empty", s)
	}

	core := raw
	var v Version
	if i := strings.IndexByte(core, '+'); i >= 0 {
		v.build = core[i+1:]
		core = core[:i]
	}
	if i := strings.IndexByte(core, '-'); i >= 0 {
		v.pre = core[i+1:]
		core = core[:i]
	}

	fields := strings.Split(core, ".")
	if len(fields) > 3 {
		return Version{}, 0, fmt.Errorf("invalid version %q: too many components", s)
	}
	nums := [3]int{}
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 || (len(f) > 1 && f[0] == '0') {
			return Version{}, 0, fmt.Errorf("invalid version %q: bad component %q", s, f)
		}
		nums[i] = n
	}
	v.major, v.minor, v.patch = nums[0], nums[1], nums[2]

	if (v.pre != "" || v.build != "") && len(fields) != 3 {
		return Version{}, 0, fmt.Errorf("invalid version %q: pre-release requires MAJOR.MINOR.PATCH", s)
	}
	if !semver.IsValid(v.semver()) {
		return Version{}, 0, fmt.Errorf("invalid version %q", s)
	}
	return v, len(fields), nil
}

// semver renders the version in the "v"-prefixed form golang.org/x/mod/semver expects.
func (v Version) semver() string {
	s := fmt.Sprintf("v%d.%d.%d", v.major, v.minor, v.patch)
	if v.pre != "" {
		s += "-" + v.pre
	}
	if v.build != "" {
		s += "+" + v.build
	}
	return s
}

// Major returns the major component.
func (v Version) Major() int { return v.major }

// Minor returns the minor component.
func (v Version) Minor() int { return v.minor }

// Patch returns the patch component.
func (v Version) Patch() int { return v.patch }

// Prerelease returns the pre-release identifier without the leading dash.
func (v Version) Prerelease() string { return v.pre }

// IsZero reports whether v is the zero version 0.0.0 without suffixes.
func (v Version) IsZero() bool { return v == Version{} }

// Compare returns -1, 0 or +1. Build metadata is ignored.
func (v Version) Compare(o Version) int {
	return semver.Compare(v.semver(), o.semver())
}

// sameCore reports whether both versions share MAJOR.MINOR.PATCH.
func (v Version) sameCore(o Version) bool {
	return v.major == o.major && v.minor == o.minor && v.patch == o.patch
}

func (v Version) String() string {
	return strings.TrimPrefix(v.semver(), "v")
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := ParseVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
