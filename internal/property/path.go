package property

import (
	"fmt"
	"strconv"
	"strings"
)

// Path is a parsed property name.
//
//	"Gain"          plain
//	"..Gain"        two hops toward the root, then "Gain"
//	"Child.Sub"     "Sub" on the object held by "Child"
//	"Child.List[2]" element 2 of "List" on that object
//
// The index always belongs to the final segment.
type Path struct {
	// Up is the number of hops toward the root (leading dots).
	Up int
	// Segments are the dot-separated names after the leading dots.
	Segments []string
	// Index is the list index, or -1 when absent.
	Index int
}

// ParsePath parses and validates a property name.
// Returns ErrInvalidParameter for empty names, empty segments, an empty
// remainder after leading dots, or a malformed index suffix.
func ParsePath(s string) (Path, error) {
	p := Path{Index: -1}
	if s == "" {
		return p, fmt.Errorf("%w: empty property name", ErrInvalidParameter)
	}

	rest := strings.TrimLeft(s, ".")
	p.Up = len(s) - len(rest)
	if rest == "" {
		return p, fmt.Errorf("%w: %q has no property name after the parent prefix", ErrInvalidParameter, s)
	}

	if strings.HasSuffix(rest, "]") {
		open := strings.LastIndexByte(rest, '[')
		if open <= 0 {
			return p, fmt.Errorf("%w: malformed index in %q", ErrInvalidParameter, s)
		}
		idx, err := strconv.Atoi(rest[open+1 : len(rest)-1])
		if err != nil || idx < 0 {
			return p, fmt.Errorf("%w: index in %q must be a non-negative integer", ErrInvalidParameter, s)
		}
		p.Index = idx
		rest = rest[:open]
	}

	p.Segments = strings.Split(rest, ".")
	for _, seg := range p.Segments {
		if seg == "" || strings.ContainsAny(seg, "[]") {
			return p, fmt.Errorf("%w: malformed segment in %q", ErrInvalidParameter, s)
		}
	}
	return p, nil
}

// HasIndex reports whether the path carries an index suffix.
func (p Path) HasIndex() bool {
	return p.Index >= 0
}

// IsParent reports whether the path starts by navigating toward the root.
func (p Path) IsParent() bool {
	return p.Up > 0
}

// IsChild reports whether the path navigates into an object-valued property.
func (p Path) IsChild() bool {
	return len(p.Segments) > 1
}

// Head returns the first segment.
func (p Path) Head() string {
	return p.Segments[0]
}

// Child returns the path relative to the object held by Head.
func (p Path) Child() Path {
	return Path{Segments: p.Segments[1:], Index: p.Index}
}

// Local returns the path with the parent prefix removed.
func (p Path) Local() Path {
	return Path{Segments: p.Segments, Index: p.Index}
}

func (p Path) String() string {
	var b strings.Builder
	b.WriteString(strings.Repeat(".", p.Up))
	b.WriteString(strings.Join(p.Segments, "."))
	if p.HasIndex() {
		fmt.Fprintf(&b, "[%d]", p.Index)
	}
	return b.String()
}
