package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nerrad567/propcore/internal/coretype"
	"github.com/nerrad567/propcore/internal/property"
)

func loadTestdata(t *testing.T) *coretype.Manager {
	t.Helper()
	mgr := coretype.NewManager()
	if err := LoadInto(mgr, []string{"testdata"}); err != nil {
		t.Fatalf("LoadInto() error = %v", err)
	}
	return mgr
}

func TestLoadInto_RegistersTypes(t *testing.T) {
	mgr := loadTestdata(t)

	for _, name := range []string{"Coupling", "Range", "Window", "Daq", "Device", "Channel", "Trigger"} {
		if !mgr.HasType(name) {
			t.Errorf("HasType(%s) = false, want true", name)
		}
	}

	rng, err := mgr.EnumerationType("Range")
	if err != nil {
		t.Fatalf("EnumerationType() error = %v", err)
	}
	if v, _ := rng.Value("High"); v != 20 {
		t.Errorf("Range.High = %d, want 20", v)
	}
}

func TestLoadInto_ClassDefaults(t *testing.T) {
	mgr := loadTestdata(t)
	obj, err := property.NewObjectOfClass(mgr, "Daq")
	if err != nil {
		t.Fatalf("NewObjectOfClass() error = %v", err)
	}

	tests := []struct {
		path string
		want any
	}{
		{"Rate", int64(1000)},
		{"RateAlias", int64(1000)},
		{"Serial", "SN-0"},
		{"Secret", ""},
		{"Channel.Gain", 1.0},
		{"Channel.Filter", int64(1)},
		{"Channel.Percent", 50.0},
		{"Channel.Tags", []any{}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := obj.GetPropertyValue(tt.path)
			if err != nil {
				t.Fatalf("GetPropertyValue() error = %v", err)
			}
			if !coretype.Equal(got, tt.want) {
				t.Errorf("GetPropertyValue() = %#v, want %#v", got, tt.want)
			}
		})
	}

	coupling, err := obj.GetPropertyValue("Channel.Coupling")
	if err != nil {
		t.Fatalf("GetPropertyValue(Coupling) error = %v", err)
	}
	if e, ok := coupling.(coretype.Enumeration); !ok || e.Name() != "AC" {
		t.Errorf("Coupling = %v, want AC", coupling)
	}

	rng, _ := obj.GetPropertyValue("Channel.Range")
	if e, ok := rng.(coretype.Enumeration); !ok || e.Name() != "High" {
		t.Errorf("Range = %v, want High", rng)
	}

	window, _ := obj.GetPropertyValue("Channel.Window")
	s, ok := window.(*coretype.Struct)
	if !ok {
		t.Fatalf("Window = %T, want *coretype.Struct", window)
	}
	if v, _ := s.Get("Length"); !coretype.Equal(v, 2.5) {
		t.Errorf("Window.Length = %v, want 2.5", v)
	}
	if v, _ := s.Get("Start"); !coretype.Equal(v, 0.0) {
		t.Errorf("Window.Start = %v, want 0", v)
	}

	sel, err := obj.GetPropertySelectionValue("Channel.Filter")
	if err != nil {
		t.Fatalf("GetPropertySelectionValue() error = %v", err)
	}
	if sel != "LowPass" {
		t.Errorf("GetPropertySelectionValue() = %v, want LowPass", sel)
	}
}

func TestLoadInto_PropertyAttributes(t *testing.T) {
	mgr := loadTestdata(t)
	obj, err := property.NewObjectOfClass(mgr, "Daq")
	if err != nil {
		t.Fatalf("NewObjectOfClass() error = %v", err)
	}

	rate, err := obj.GetProperty("Rate")
	if err != nil {
		t.Fatalf("GetProperty() error = %v", err)
	}
	if rate.Unit() != "Hz" || rate.Description() != "Sample rate" {
		t.Errorf("Rate unit/description = %q/%q", rate.Unit(), rate.Description())
	}

	if r := obj.SetPropertyValue("Rate", 500000); !r.OK() {
		t.Fatalf("SetPropertyValue(Rate) = %v", r)
	}
	if v, _ := obj.GetPropertyValue("Rate"); v != int64(100000) {
		t.Errorf("Rate after clamp = %v, want 100000", v)
	}

	if r := obj.SetPropertyValue("Serial", "SN-9"); r.Kind() != property.KindAccessDenied {
		t.Errorf("SetPropertyValue(Serial) kind = %v, want access_denied", r.Kind())
	}

	if r := obj.SetPropertyValue("Channel.Gain", 1.7); !r.OK() {
		t.Fatalf("SetPropertyValue(Gain) = %v", r)
	}
	if v, _ := obj.GetPropertyValue("Channel.Gain"); !coretype.Equal(v, 1.5) {
		t.Errorf("Gain after snap = %v, want 1.5", v)
	}

	if r := obj.SetPropertyValue("Channel.Percent", 150.0); r.Kind() != property.KindValidateFailed {
		t.Errorf("SetPropertyValue(Percent) kind = %v, want validate_failed", r.Kind())
	}

	for _, p := range obj.GetVisibleProperties() {
		if p.Name() == "Secret" {
			t.Error("GetVisibleProperties() includes hidden Secret")
		}
	}
}

func TestLoadInto_TOML(t *testing.T) {
	mgr := loadTestdata(t)
	obj, err := property.NewObjectOfClass(mgr, "Trigger")
	if err != nil {
		t.Fatalf("NewObjectOfClass() error = %v", err)
	}
	if v, _ := obj.GetPropertyValue("Level"); !coretype.Equal(v, 0.25) {
		t.Errorf("Level = %v, want 0.25", v)
	}
	if v, _ := obj.GetPropertyValue("Armed"); v != false {
		t.Errorf("Armed = %v, want false", v)
	}
	if !obj.HasProperty("Serial") {
		t.Error("HasProperty(Serial) = false, want inherited from Device")
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		data   string
	}{
		{"yaml unknown key", FormatYAML, "classes:\n  - name: A\n    colour: red\n"},
		{"yaml malformed", FormatYAML, "classes: [\n"},
		{"toml unknown key", FormatTOML, "[[classes]]\nname = \"A\"\ncolour = \"red\"\n"},
		{"toml malformed", FormatTOML, "[[classes]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data), tt.format); !errors.Is(err, ErrInvalidDefinition) {
				t.Errorf("Parse() error = %v, want ErrInvalidDefinition", err)
			}
		})
	}

	if _, err := Parse(nil, "json"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Parse(json) error = %v, want ErrUnsupportedFormat", err)
	}
	if f, err := Parse(nil, FormatYAML); err != nil || len(f.Classes) != 0 {
		t.Errorf("Parse(empty) = %v, %v, want empty file", f, err)
	}
}

func TestRegister_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown core type", "classes:\n  - name: A\n    properties:\n      - {name: X, type: widget}\n"},
		{"func property", "classes:\n  - name: A\n    properties:\n      - {name: X, type: func}\n"},
		{"missing struct type", "classes:\n  - name: A\n    properties:\n      - {name: X, type: struct, struct_type: Nope}\n"},
		{"object without class", "classes:\n  - name: A\n    properties:\n      - {name: X, type: object}\n"},
		{"bad default", "classes:\n  - name: A\n    properties:\n      - {name: X, type: int, default: abc}\n"},
		{"bad coercer", "classes:\n  - name: A\n    properties:\n      - {name: X, type: float, coercer: \"round(2)\"}\n"},
		{"unknown enumerator", "enumerations:\n  - {name: E, values: [A]}\nclasses:\n  - name: A\n    properties:\n      - {name: X, type: enumeration, enumeration: E, default: B}\n"},
		{"parent cycle", "classes:\n  - {name: A, parent: B}\n  - {name: B, parent: A}\n"},
		{"missing parent", "classes:\n  - {name: A, parent: Nope}\n"},
		{"empty enumeration", "enumerations:\n  - {name: E}\n"},
		{"duplicate property", "classes:\n  - name: A\n    properties:\n      - {name: X, type: int}\n      - {name: X, type: int}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse([]byte(tt.yaml), FormatYAML)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if err := f.Register(coretype.NewManager()); !errors.Is(err, ErrInvalidDefinition) {
				t.Errorf("Register() error = %v, want ErrInvalidDefinition", err)
			}
		})
	}
}

func TestRegister_DuplicateType(t *testing.T) {
	mgr := coretype.NewManager()
	if err := mgr.AddType(coretype.NewEnumerationType("Coupling", "DC")); err != nil {
		t.Fatalf("AddType() error = %v", err)
	}
	err := LoadInto(mgr, []string{filepath.Join("testdata", "daq.yaml")})
	if !errors.Is(err, coretype.ErrTypeExists) {
		t.Errorf("LoadInto() error = %v, want ErrTypeExists", err)
	}
}

func TestLoad_Paths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.yml")
	if err := os.WriteFile(path, []byte("enumerations:\n  - {name: E, values: [A, B]}\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	f, err := Load([]string{path, filepath.Join("testdata", "extra.toml")})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(f.Enumerations) != 1 || len(f.Classes) != 1 {
		t.Errorf("Load() merged %d enumerations, %d classes, want 1, 1", len(f.Enumerations), len(f.Classes))
	}

	if _, err := Load([]string{filepath.Join(dir, "missing.yaml")}); err == nil {
		t.Error("Load() missing path should fail")
	}
	if _, err := LoadFile(filepath.Join("testdata", "README.txt")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("LoadFile(txt) error = %v, want ErrUnsupportedFormat", err)
	}
}
