package coretype

import "fmt"

// Dict is an insertion-ordered map. Keys may be any comparable scalar
// core type (bool, int, float, string, ratio, complex, enumeration).
//
// A nil *Dict behaves as an empty dict for reads.
type Dict struct {
	keys   []any
	values map[any]any
}

// NewDict creates an empty dict.
func NewDict() *Dict {
	return &Dict{values: make(map[any]any)}
}

// DictOf builds a dict from alternating key/value arguments.
// It panics on an odd argument count or an invalid key and is intended
// for literals in code and tests.
func DictOf(kv ...any) *Dict {
	if len(kv)%2 != 0 {
		panic("coretype: DictOf requires key/value pairs")
	}
	d := NewDict()
	for i := 0; i < len(kv); i += 2 {
		if err := d.Set(kv[i], kv[i+1]); err != nil {
			panic(err)
		}
	}
	return d
}

// Set inserts or replaces the value stored under key.
// Replacing keeps the key's original position.
func (d *Dict) Set(key, value any) error {
	k, err := normalizeKey(key)
	if err != nil {
		return err
	}
	v, err := Normalize(value)
	if err != nil {
		return err
	}
	if d.values == nil {
		d.values = make(map[any]any)
	}
	if _, exists := d.values[k]; !exists {
		d.keys = append(d.keys, k)
	}
	d.values[k] = v
	return nil
}

// Get returns the value stored under key.
func (d *Dict) Get(key any) (any, bool) {
	if d == nil {
		return nil, false
	}
	k, err := normalizeKey(key)
	if err != nil {
		return nil, false
	}
	v, ok := d.values[k]
	return v, ok
}

// Has reports whether key is present.
func (d *Dict) Has(key any) bool {
	_, ok := d.Get(key)
	return ok
}

// Delete removes key and reports whether it was present.
func (d *Dict) Delete(key any) bool {
	if d == nil {
		return false
	}
	k, err := normalizeKey(key)
	if err != nil {
		return false
	}
	if _, ok := d.values[k]; !ok {
		return false
	}
	delete(d.values, k)
	for i, existing := range d.keys {
		if existing == k {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of entries.
func (d *Dict) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Keys returns the keys in insertion order. The slice is a copy.
func (d *Dict) Keys() []any {
	if d == nil {
		return nil
	}
	out := make([]any, len(d.keys))
	copy(out, d.keys)
	return out
}

// Range calls fn for each entry in insertion order until fn returns false.
func (d *Dict) Range(fn func(key, value any) bool) {
	if d == nil {
		return
	}
	for _, k := range d.keys {
		if !fn(k, d.values[k]) {
			return
		}
	}
}

// Clone returns a deep copy of the dict.
func (d *Dict) Clone() *Dict {
	if d == nil {
		return nil
	}
	out := &Dict{
		keys:   make([]any, len(d.keys)),
		values: make(map[any]any, len(d.values)),
	}
	copy(out.keys, d.keys)
	for k, v := range d.values {
		out.values[k] = Clone(v)
	}
	return out
}

// String renders the dict for diagnostics.
func (d *Dict) String() string {
	s := "{"
	d.Range(func(k, v any) bool {
		if len(s) > 1 {
			s += ", "
		}
		s += fmt.Sprintf("%v: %v", k, v)
		return true
	})
	return s + "}"
}

// normalizeKey widens a key to canonical form and rejects non-scalar keys.
func normalizeKey(key any) (any, error) {
	k, err := Normalize(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	switch k.(type) {
	case bool, int64, float64, string, Ratio, complex128, Enumeration:
		return k, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrInvalidKey, key)
}
