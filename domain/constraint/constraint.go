package constraint

import (
	"fmt"
	"strings"
)

type op uint8

const (
	opEQ op = iota
	opGT
	opGTE
	opLT
	opLTE
)

// comparator is a primitive bound. Caret, tilde and partial versions are expanded
// into comparators at parse time.
type comparator struct {
	v  Version
	op op
}

func (c comparator) matches(v Version) bool {
	cmp := v.Compare(c.v)
	switch c.op {
	case opEQ:
		return cmp == 0
	case opGT:
		return cmp > 0
	case opGTE:
		return cmp >= 0
	case opLT:
		return cmp < 0
	case opLTE:
		return cmp <= 0
	default:
		return false
	}
}

// Constraint is a parsed version requirement.
type Constraint struct {
	raw  string
	alts [][]comparator
}

// Parse parses a constraint string such as "^1.2.0", "~0.3", ">=1.0.0, <2.0.0",
// "1.4.2" or "*".
func Parse(s string) (Constraint, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Constraint{}, fmt.Errorf("invalid constraint: empty")
	}

	c := Constraint{raw: raw}
	for _, alt := range strings.Split(raw, "||") {
		terms := strings.FieldsFunc(alt, func(r rune) bool { return r == ',' || r == ' ' })
		if len(terms) == 0 {
			return Constraint{}, fmt.Errorf("invalid constraint %q: empty alternative", raw)
		}
		terms = joinOperators(terms)

		var comps []comparator
		for _, term := range terms {
			expanded, err := parseTerm(term)
			if err != nil {
				return Constraint{}, fmt.Errorf("invalid constraint %q: %w", raw, err)
			}
			comps = append(comps, expanded...)
		}
		c.alts = append(c.alts, comps)
	}
	return c, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Constraint {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// joinOperators merges a bare operator with the version that follows it, so that
// ">= 1.0.0" reads like ">=1.0.0".
func joinOperators(terms []string) []string {
	out := make([]string, 0, len(terms))
	for i := 0; i < len(terms); i++ {
		t := terms[i]
		if strings.Trim(t, "<>=^~") == "" && i+1 < len(terms) {
			t += terms[i+1]
			i++
		}
		out = append(out, t)
	}
	return out
}

func parseTerm(term string) ([]comparator, error) {
	if term == "*" {
		return nil, nil
	}

	var prefix string
	for _, p := range []string{">=", "<=", ">", "<", "=", "^", "~"} {
		if strings.HasPrefix(term, p) {
			prefix = p
			break
		}
	}

	rest := strings.TrimPrefix(term, prefix)
	rest = strings.TrimSuffix(strings.TrimSuffix(rest, ".*"), ".x")
	v, parts, err := parsePartial(rest)
	if err != nil {
		return nil, err
	}

	switch prefix {
	case "^":
		return caret(v, parts), nil
	case "~":
		return tilde(v, parts), nil
	case "", "=":
		if parts == 3 {
			return []comparator{{op: opEQ, v: v}}, nil
		}
		return tilde(v, parts), nil
	case ">":
		if parts < 3 {
			// ">1.2" excludes every 1.2.x
			return []comparator{{op: opGTE, v: bump(v, parts)}}, nil
		}
		return []comparator{{op: opGT, v: v}}, nil
	case ">=":
		return []comparator{{op: opGTE, v: v}}, nil
	case "<":
		return []comparator{{op: opLT, v: v}}, nil
	case "<=":
		if parts < 3 {
			return []comparator{{op: opLT, v: bump(v, parts)}}, nil
		}
		return []comparator{{op: opLTE, v: v}}, nil
	}
	return nil, fmt.Errorf("unsupported operator in %q", term)
}

// caret allows changes that keep the left-most non-zero component:
// ^1.2.3 := >=1.2.3 <2.0.0, ^0.2.3 := >=0.2.3 <0.3.0, ^0.0.3 := >=0.0.3 <0.0.4.
func caret(v Version, parts int) []comparator {
	var upper Version
	switch {
	case v.major > 0 || parts == 1:
		upper = Version{major: v.major + 1}
	case v.minor > 0 || parts == 2:
		upper = Version{minor: v.minor + 1}
	default:
		upper = Version{patch: v.patch + 1}
	}
	return []comparator{{op: opGTE, v: v}, {op: opLT, v: upper}}
}

// tilde allows patch-level changes when a minor is given, minor-level otherwise:
// ~1.2.3 := >=1.2.3 <1.3.0, ~1 := >=1.0.0 <2.0.0.
func tilde(v Version, parts int) []comparator {
	upper := Version{major: v.major, minor: v.minor + 1}
	if parts == 1 {
		upper = Version{major: v.major + 1}
	}
	return []comparator{{op: opGTE, v: v}, {op: opLT, v: upper}}
}

// bump returns the first version after every release matching a partial version.
func bump(v Version, parts int) Version {
	if parts == 1 {
		return Version{major: v.major + 1}
	}
	return Version{major: v.major, minor: v.minor + 1}
}

// Matches reports whether v satisfies the constraint.
//
// A pre-release version only matches an alternative that names a pre-release of
// the same MAJOR.MINOR.PATCH, so "^1.0.0" does not admit "1.1.0-beta".
func (c Constraint) Matches(v Version) bool {
	for _, alt := range c.alts {
		if matchesAll(alt, v) {
			return true
		}
	}
	return false
}

func matchesAll(comps []comparator, v Version) bool {
	preAllowed := v.pre == ""
	for _, comp := range comps {
		if !comp.matches(v) {
			return false
		}
		if comp.v.pre != "" && comp.v.sameCore(v) {
			preAllowed = true
		}
	}
	return preAllowed
}

// IsZero reports whether c was never parsed.
func (c Constraint) IsZero() bool { return c.raw == "" }

func (c Constraint) String() string { return c.raw }

// MarshalText implements encoding.TextMarshaler.
func (c Constraint) MarshalText() ([]byte, error) {
	return []byte(c.raw), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, so malformed constraints are
// rejected while the manifest is decoded.
func (c *Constraint) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
