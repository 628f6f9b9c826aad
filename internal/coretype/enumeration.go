package coretype

import "fmt"

// EnumerationType is a named set of enumerators, each with a name and an
// integer value.
type EnumerationType struct {
	name   string
	names  []string
	values map[string]int64
}

// NewEnumerationType creates an enumeration type whose enumerators take the
// values 0..n-1 in declaration order.
func NewEnumerationType(name string, enumerators ...string) *EnumerationType {
	t := &EnumerationType{name: name, values: make(map[string]int64, len(enumerators))}
	for i, e := range enumerators {
		t.names = append(t.names, e)
		t.values[e] = int64(i)
	}
	return t
}

// NewEnumerationTypeWithValues creates an enumeration type with explicit
// values. names and values must have the same length.
func NewEnumerationTypeWithValues(name string, names []string, values []int64) (*EnumerationType, error) {
	if len(names) != len(values) {
		return nil, fmt.Errorf("%w: enumeration %s has %d names and %d values",
			ErrUnsupported, name, len(names), len(values))
	}
	t := &EnumerationType{name: name, values: make(map[string]int64, len(names))}
	for i, n := range names {
		if _, dup := t.values[n]; dup {
			return nil, fmt.Errorf("%w: duplicate enumerator %s.%s", ErrUnsupported, name, n)
		}
		t.names = append(t.names, n)
		t.values[n] = values[i]
	}
	return t, nil
}

// TypeName returns the enumeration type's name.
func (t *EnumerationType) TypeName() string {
	return t.name
}

// Names returns the enumerator names in declaration order.
func (t *EnumerationType) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Value returns the integer value of an enumerator.
func (t *EnumerationType) Value(name string) (int64, bool) {
	v, ok := t.values[name]
	return v, ok
}

// Equal reports whether two enumeration types declare the same name and
// enumerators.
func (t *EnumerationType) Equal(other *EnumerationType) bool {
	if t == other {
		return true
	}
	if t == nil || other == nil || t.name != other.name || len(t.names) != len(other.names) {
		return false
	}
	for i, n := range t.names {
		if other.names[i] != n || other.values[n] != t.values[n] {
			return false
		}
	}
	return true
}

// FromName returns the enumerator with the given name.
func (t *EnumerationType) FromName(name string) (Enumeration, error) {
	if _, ok := t.values[name]; !ok {
		return Enumeration{}, fmt.Errorf("%w: %s.%s", ErrUnknownEnumerator, t.name, name)
	}
	return Enumeration{typ: t, name: name}, nil
}

// FromValue returns the enumerator with the given integer value.
func (t *EnumerationType) FromValue(value int64) (Enumeration, error) {
	for _, n := range t.names {
		if t.values[n] == value {
			return Enumeration{typ: t, name: n}, nil
		}
	}
	return Enumeration{}, fmt.Errorf("%w: %s(%d)", ErrUnknownEnumerator, t.name, value)
}

// Enumeration is a value of an enumeration type.
type Enumeration struct {
	typ  *EnumerationType
	name string
}

// CoreType implements Typed.
func (e Enumeration) CoreType() CoreType {
	return TypeEnumeration
}

// Type returns the enumeration's type.
func (e Enumeration) Type() *EnumerationType {
	return e.typ
}

// Name returns the enumerator name.
func (e Enumeration) Name() string {
	return e.name
}

// Value returns the enumerator's integer value.
func (e Enumeration) Value() int64 {
	if e.typ == nil {
		return 0
	}
	return e.typ.values[e.name]
}

func (e Enumeration) String() string {
	if e.typ == nil {
		return e.name
	}
	return e.typ.name + "." + e.name
}
