package coretype

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Normalize converts a Go value into its canonical core-type form.
// Canonical values are returned unchanged.
func Normalize(v any) (any, error) {
	switch t := v.(type) {
	case nil, bool, int64, float64, string, Ratio, complex128, Enumeration, *Struct, Func, Proc:
		return v, nil
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case uint:
		return uintToInt(uint64(t))
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint64:
		return uintToInt(t)
	case float32:
		return float64(t), nil
	case complex64:
		return complex128(t), nil
	case []byte:
		return t, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			n, err := Normalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, nil
	case []int:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = int64(n)
		}
		return out, nil
	case []int64:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out, nil
	case []float64:
		out := make([]any, len(t))
		for i, f := range t {
			out[i] = f
		}
		return out, nil
	case *Dict:
		return t, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		d := NewDict()
		for _, k := range keys {
			if err := d.Set(k, t[k]); err != nil {
				return nil, err
			}
		}
		return d, nil
	case map[any]any:
		keys := make([]any, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j])
		})
		d := NewDict()
		for _, k := range keys {
			if err := d.Set(k, t[k]); err != nil {
				return nil, err
			}
		}
		return d, nil
	case func(args ...any) (any, error):
		return Func(t), nil
	case func(args ...any) error:
		return Proc(t), nil
	case Typed:
		return v, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupported, v)
}

func uintToInt(u uint64) (any, error) {
	if u > math.MaxInt64 {
		return nil, fmt.Errorf("%w: %d overflows int64", ErrConversion, u)
	}
	return int64(u), nil
}

// MustNormalize is Normalize for values known to be representable.
// It panics on unsupported values.
func MustNormalize(v any) any {
	n, err := Normalize(v)
	if err != nil {
		panic(err)
	}
	return n
}

// Clone returns a copy of v that shares no mutable state with it.
// Lists, dicts and binary blobs are deep-copied; everything else is
// immutable or identity-based and returned as-is.
func Clone(v any) any {
	switch t := v.(type) {
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Clone(item)
		}
		return out
	case *Dict:
		return t.Clone()
	case []byte:
		if t == nil {
			return t
		}
		out := make([]byte, len(t))
		copy(out, t)
		return out
	}
	return v
}

// Equal reports deep equality of two canonical values. Int and float
// compare by numeric value; objects and callables compare by identity.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case int64:
		switch y := b.(type) {
		case int64:
			return x == y
		case float64:
			return float64(x) == y
		}
		return false
	case float64:
		switch y := b.(type) {
		case float64:
			return x == y
		case int64:
			return x == float64(y)
		}
		return false
	case string:
		y, ok := b.(string)
		return ok && x == y
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case *Dict:
		y, ok := b.(*Dict)
		if !ok || x.Len() != y.Len() {
			return false
		}
		equal := true
		x.Range(func(k, v any) bool {
			other, found := y.Get(k)
			equal = found && Equal(v, other)
			return equal
		})
		return equal
	case Ratio:
		y, ok := b.(Ratio)
		return ok && x.Num*y.Den == y.Num*x.Den
	case complex128:
		y, ok := b.(complex128)
		return ok && x == y
	case []byte:
		y, ok := b.([]byte)
		return ok && bytes.Equal(x, y)
	case *Struct:
		y, ok := b.(*Struct)
		if !ok {
			return false
		}
		if x == y {
			return true
		}
		if !x.typ.Equal(y.typ) {
			return false
		}
		for i := range x.values {
			if !Equal(x.values[i], y.values[i]) {
				return false
			}
		}
		return true
	case Enumeration:
		y, ok := b.(Enumeration)
		return ok && x.name == y.name && x.typ.Equal(y.typ)
	case Func, Proc:
		return reflect.TypeOf(a) == reflect.TypeOf(b) &&
			reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
	}
	if reflect.TypeOf(a).Comparable() && reflect.TypeOf(b).Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// Compare orders two numeric or two string values. It returns -1, 0 or 1.
func Compare(a, b any) (int, error) {
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		if !ok {
			return 0, fmt.Errorf("%w: %T and %T", ErrIncomparable, a, b)
		}
		return strings.Compare(as, bs), nil
	}
	if ai, ok := a.(int64); ok {
		if bi, ok := b.(int64); ok {
			switch {
			case ai < bi:
				return -1, nil
			case ai > bi:
				return 1, nil
			}
			return 0, nil
		}
	}
	af, okA := numeric(a)
	bf, okB := numeric(b)
	if !okA || !okB {
		return 0, fmt.Errorf("%w: %T and %T", ErrIncomparable, a, b)
	}
	switch {
	case af < bf:
		return -1, nil
	case af > bf:
		return 1, nil
	}
	return 0, nil
}

func numeric(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case Ratio:
		if t.Den == 0 {
			return 0, false
		}
		return t.Float(), true
	}
	return 0, false
}

// fitsInt64 reports whether f truncates to a representable int64.
// NaN fails both comparisons.
func fitsInt64(f float64) bool {
	return f >= -(1<<63) && f < 1<<63
}

// Convert coerces a canonical value to the requested core type.
// Values already of that type are returned unchanged.
func Convert(v any, to CoreType) (any, error) {
	from := TypeOf(v)
	if from == to {
		return v, nil
	}
	fail := func() (any, error) {
		return nil, fmt.Errorf("%w: %s to %s", ErrConversion, from, to)
	}
	if v == nil {
		return fail()
	}

	switch to {
	case TypeInt:
		switch t := v.(type) {
		case float64:
			if !fitsInt64(t) {
				return fail()
			}
			return int64(t), nil
		case bool:
			if t {
				return int64(1), nil
			}
			return int64(0), nil
		case string:
			if i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
				return i, nil
			}
			if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil && fitsInt64(f) {
				return int64(f), nil
			}
		case Ratio:
			if t.Den != 0 {
				return t.Num / t.Den, nil
			}
		case Enumeration:
			return t.Value(), nil
		}
	case TypeFloat:
		switch t := v.(type) {
		case int64:
			return float64(t), nil
		case bool:
			if t {
				return 1.0, nil
			}
			return 0.0, nil
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				return f, nil
			}
		case Ratio:
			if t.Den != 0 {
				return t.Float(), nil
			}
		}
	case TypeBool:
		switch t := v.(type) {
		case int64:
			return t != 0, nil
		case float64:
			return t != 0, nil
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
				return b, nil
			}
		}
	case TypeString:
		switch t := v.(type) {
		case bool:
			return strconv.FormatBool(t), nil
		case int64:
			return strconv.FormatInt(t, 10), nil
		case float64:
			return strconv.FormatFloat(t, 'g', -1, 64), nil
		case Ratio:
			return t.String(), nil
		case Enumeration:
			return t.Name(), nil
		}
	case TypeRatio:
		switch t := v.(type) {
		case int64:
			return Ratio{Num: t, Den: 1}, nil
		case float64:
			if t == math.Trunc(t) && !math.IsInf(t, 0) {
				return Ratio{Num: int64(t), Den: 1}, nil
			}
		case string:
			return parseRatio(t)
		}
	case TypeComplex:
		switch t := v.(type) {
		case int64:
			return complex(float64(t), 0), nil
		case float64:
			return complex(t, 0), nil
		}
	}
	return fail()
}

func parseRatio(s string) (any, error) {
	num, den, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		den = "1"
	}
	n, err := strconv.ParseInt(strings.TrimSpace(num), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: ratio %q", ErrConversion, s)
	}
	d, err := strconv.ParseInt(strings.TrimSpace(den), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: ratio %q", ErrConversion, s)
	}
	r, err := NewRatio(n, d)
	if err != nil {
		return nil, err
	}
	return r, nil
}
