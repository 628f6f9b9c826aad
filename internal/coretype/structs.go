package coretype

import "fmt"

// StructField describes one field of a struct type.
type StructField struct {
	Name    string
	Type    CoreType
	Default any
}

// StructType is a named, ordered set of typed fields.
type StructType struct {
	name   string
	fields []StructField
}

// NewStructType creates a struct type. Field defaults are normalized.
func NewStructType(name string, fields ...StructField) *StructType {
	t := &StructType{name: name, fields: make([]StructField, len(fields))}
	for i, f := range fields {
		if def, err := Normalize(f.Default); err == nil {
			if f.Type != TypeUndefined && def != nil && TypeOf(def) != f.Type {
				if converted, err := Convert(def, f.Type); err == nil {
					def = converted
				}
			}
			f.Default = def
		}
		t.fields[i] = f
	}
	return t
}

// TypeName returns the struct type's name.
func (t *StructType) TypeName() string {
	return t.name
}

// Fields returns a copy of the field descriptors.
func (t *StructType) Fields() []StructField {
	out := make([]StructField, len(t.fields))
	copy(out, t.fields)
	return out
}

// Equal reports whether two struct types are identical: same name and the
// same field names and types in the same order.
func (t *StructType) Equal(other *StructType) bool {
	if t == other {
		return true
	}
	if t == nil || other == nil || t.name != other.name || len(t.fields) != len(other.fields) {
		return false
	}
	for i := range t.fields {
		if t.fields[i].Name != other.fields[i].Name || t.fields[i].Type != other.fields[i].Type {
			return false
		}
	}
	return true
}

func (t *StructType) fieldIndex(name string) int {
	for i, f := range t.fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// New builds a struct value. Missing fields take their defaults; values are
// converted to the declared field type.
func (t *StructType) New(values map[string]any) (*Struct, error) {
	s := &Struct{typ: t, values: make([]any, len(t.fields))}
	for i, f := range t.fields {
		s.values[i] = Clone(f.Default)
	}
	for name, raw := range values {
		i := t.fieldIndex(name)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, t.name, name)
		}
		v, err := Normalize(raw)
		if err != nil {
			return nil, err
		}
		if ft := t.fields[i].Type; ft != TypeUndefined && v != nil && TypeOf(v) != ft {
			if v, err = Convert(v, ft); err != nil {
				return nil, fmt.Errorf("field %s.%s: %w", t.name, name, err)
			}
		}
		s.values[i] = v
	}
	return s, nil
}

// Struct is an immutable value of a struct type.
type Struct struct {
	typ    *StructType
	values []any
}

// CoreType implements Typed.
func (s *Struct) CoreType() CoreType {
	return TypeStruct
}

// Type returns the struct's type.
func (s *Struct) Type() *StructType {
	return s.typ
}

// Get returns a copy of the named field's value.
func (s *Struct) Get(name string) (any, bool) {
	i := s.typ.fieldIndex(name)
	if i < 0 {
		return nil, false
	}
	return Clone(s.values[i]), true
}

// AsDict returns the fields as an ordered dict.
func (s *Struct) AsDict() *Dict {
	d := NewDict()
	for i, f := range s.typ.fields {
		//nolint:errcheck // field names are strings, always valid keys
		d.Set(f.Name, Clone(s.values[i]))
	}
	return d
}

func (s *Struct) String() string {
	return s.typ.name + s.AsDict().String()
}
