package coretype

import (
	"errors"
	"math"
	"testing"
)

func TestTypeOf(t *testing.T) {
	mode := NewEnumerationType("Mode", "Off", "On")
	on, _ := mode.FromName("On")
	rng := NewStructType("Range", StructField{Name: "Low", Type: TypeFloat, Default: 0.0})
	rv, _ := rng.New(nil)

	tests := []struct {
		name  string
		value any
		want  CoreType
	}{
		{"nil", nil, TypeUndefined},
		{"bool", true, TypeBool},
		{"int", int64(3), TypeInt},
		{"float", 1.5, TypeFloat},
		{"string", "x", TypeString},
		{"list", []any{int64(1)}, TypeList},
		{"dict", NewDict(), TypeDict},
		{"ratio", Ratio{Num: 1, Den: 2}, TypeRatio},
		{"complex", complex(1, 2), TypeComplex},
		{"binary", []byte{1}, TypeBinary},
		{"struct", rv, TypeStruct},
		{"enumeration", on, TypeEnumeration},
		{"func", Func(func(...any) (any, error) { return nil, nil }), TypeFunc},
		{"proc", Proc(func(...any) error { return nil }), TypeProc},
		{"native int is not canonical", 3, TypeUndefined},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TypeOf(tt.value); got != tt.want {
				t.Errorf("TypeOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseCoreType(t *testing.T) {
	tests := []struct {
		input   string
		want    CoreType
		wantErr bool
	}{
		{"int", TypeInt, false},
		{"Integer", TypeInt, false},
		{"float", TypeFloat, false},
		{"enumeration", TypeEnumeration, false},
		{"object", TypeObject, false},
		{"widget", TypeUndefined, true},
		{"undefined", TypeUndefined, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCoreType(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCoreType() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseCoreType() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Run("widens integers", func(t *testing.T) {
		got, err := Normalize(int32(7))
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if got != int64(7) {
			t.Errorf("Normalize() = %#v, want int64(7)", got)
		}
	})

	t.Run("converts string slices to lists", func(t *testing.T) {
		got, err := Normalize([]string{"a", "b"})
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if !Equal(got, []any{"a", "b"}) {
			t.Errorf("Normalize() = %v", got)
		}
	})

	t.Run("converts maps to sorted dicts", func(t *testing.T) {
		got, err := Normalize(map[string]any{"b": 2, "a": 1})
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		d := got.(*Dict)
		keys := d.Keys()
		if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
			t.Errorf("Keys() = %v, want [a b]", keys)
		}
		if v, _ := d.Get("b"); v != int64(2) {
			t.Errorf("Get(b) = %#v, want int64(2)", v)
		}
	})

	t.Run("rejects unsupported values", func(t *testing.T) {
		_, err := Normalize(struct{}{})
		if !errors.Is(err, ErrUnsupported) {
			t.Errorf("Normalize() error = %v, want ErrUnsupported", err)
		}
	})

	t.Run("rejects uint64 overflow", func(t *testing.T) {
		_, err := Normalize(uint64(1 << 63))
		if !errors.Is(err, ErrConversion) {
			t.Errorf("Normalize() error = %v, want ErrConversion", err)
		}
	})
}

func TestClone_DoesNotAlias(t *testing.T) {
	inner := []any{int64(1)}
	list := []any{inner, "x"}

	cloned := Clone(list).([]any)
	cloned[0].([]any)[0] = int64(99)

	if inner[0] != int64(1) {
		t.Errorf("nested list mutated through clone: %v", inner)
	}

	d := DictOf("k", []any{int64(1)})
	dc := Clone(d).(*Dict)
	v, _ := dc.Get("k")
	v.([]any)[0] = int64(5)
	orig, _ := d.Get("k")
	if orig.([]any)[0] != int64(1) {
		t.Errorf("dict value mutated through clone: %v", orig)
	}
}

func TestEqual(t *testing.T) {
	mode := NewEnumerationType("Mode", "Off", "On")
	off, _ := mode.FromName("Off")
	on, _ := mode.FromName("On")

	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"int equals float", int64(2), 2.0, true},
		{"different ints", int64(2), int64(3), false},
		{"lists", []any{int64(1), "a"}, []any{int64(1), "a"}, true},
		{"list length", []any{int64(1)}, []any{int64(1), int64(2)}, false},
		{"dicts ignore order", DictOf("a", 1, "b", 2), DictOf("b", 2, "a", 1), true},
		{"dict values", DictOf("a", 1), DictOf("a", 2), false},
		{"ratios by value", Ratio{Num: 1, Den: 2}, Ratio{Num: 2, Den: 4}, true},
		{"enumerations", on, on, true},
		{"different enumerators", on, off, false},
		{"binary", []byte{1, 2}, []byte{1, 2}, true},
		{"nil and nil", nil, nil, true},
		{"nil and value", nil, int64(0), false},
		{"string and int", "1", int64(1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name    string
		a, b    any
		want    int
		wantErr bool
	}{
		{"ints", int64(1), int64(2), -1, false},
		{"mixed numeric", 2.5, int64(2), 1, false},
		{"ratio", Ratio{Num: 1, Den: 2}, 0.5, 0, false},
		{"strings", "b", "a", 1, false},
		{"incomparable", "a", int64(1), 0, true},
		{"bools", true, false, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compare(tt.a, tt.b)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Compare() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Compare() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestConvert(t *testing.T) {
	mode := NewEnumerationType("Mode", "Off", "On", "Auto")
	auto, _ := mode.FromName("Auto")

	tests := []struct {
		name    string
		value   any
		to      CoreType
		want    any
		wantErr bool
	}{
		{"same type", int64(4), TypeInt, int64(4), false},
		{"float to int truncates", 2.9, TypeInt, int64(2), false},
		{"string to int", " 12 ", TypeInt, int64(12), false},
		{"bool to int", true, TypeInt, int64(1), false},
		{"enumeration to int", auto, TypeInt, int64(2), false},
		{"int to float", int64(3), TypeFloat, 3.0, false},
		{"string to bool", "true", TypeBool, true, false},
		{"int to string", int64(5), TypeString, "5", false},
		{"string to ratio", "3/4", TypeRatio, Ratio{Num: 3, Den: 4}, false},
		{"int to complex", int64(2), TypeComplex, complex(2, 0), false},
		{"bad string to int", "abc", TypeInt, nil, true},
		{"huge float to int", 1e300, TypeInt, nil, true},
		{"float at int64 max to int", 9223372036854775808.0, TypeInt, nil, true},
		{"float below int64 min to int", -1e19, TypeInt, nil, true},
		{"float at int64 min to int", -9223372036854775808.0, TypeInt, int64(math.MinInt64), false},
		{"NaN to int", math.NaN(), TypeInt, nil, true},
		{"huge float string to int", "1e300", TypeInt, nil, true},
		{"list to int", []any{}, TypeInt, nil, true},
		{"nil to string", nil, TypeString, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Convert(tt.value, tt.to)
			if tt.wantErr {
				if !errors.Is(err, ErrConversion) {
					t.Errorf("Convert() error = %v, want ErrConversion", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Convert() error = %v", err)
			}
			if !Equal(got, tt.want) || TypeOf(got) != tt.to {
				t.Errorf("Convert() = %#v, want %#v", got, tt.want)
			}
		})
	}
}
