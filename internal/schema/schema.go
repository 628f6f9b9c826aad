package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/nerrad567/propcore/internal/coretype"
	"github.com/nerrad567/propcore/internal/property"
)

// Schema errors.
var (
	// ErrInvalidDefinition is returned when a definition cannot be turned
	// into a registered type.
	ErrInvalidDefinition = errors.New("schema: invalid definition")

	// ErrUnsupportedFormat is returned for files that are neither YAML nor TOML.
	ErrUnsupportedFormat = errors.New("schema: unsupported file format")
)

// Format identifies the encoding of a definition file.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatOf returns the format implied by a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// File is the content of one or more merged definition files.
type File struct {
	Enumerations []EnumerationDef `yaml:"enumerations" toml:"enumerations"`
	Structs      []StructDef      `yaml:"structs" toml:"structs"`
	Classes      []ClassDef       `yaml:"classes" toml:"classes"`
}

// EnumerationDef declares an enumeration type. Numbers, when given,
// assigns an explicit value to each enumerator.
type EnumerationDef struct {
	Name    string   `yaml:"name" toml:"name"`
	Values  []string `yaml:"values" toml:"values"`
	Numbers []int64  `yaml:"numbers" toml:"numbers"`
}

// StructDef declares a struct type.
type StructDef struct {
	Name   string     `yaml:"name" toml:"name"`
	Fields []FieldDef `yaml:"fields" toml:"fields"`
}

// FieldDef declares one struct field.
type FieldDef struct {
	Name    string `yaml:"name" toml:"name"`
	Type    string `yaml:"type" toml:"type"`
	Default any    `yaml:"default" toml:"default"`
}

// ClassDef declares a property class.
type ClassDef struct {
	Name       string        `yaml:"name" toml:"name"`
	Parent     string        `yaml:"parent" toml:"parent"`
	Properties []PropertyDef `yaml:"properties" toml:"properties"`
}

// PropertyDef declares a property of a class.
type PropertyDef struct {
	Name        string `yaml:"name" toml:"name"`
	Type        string `yaml:"type" toml:"type"`
	Default     any    `yaml:"default" toml:"default"`
	Description string `yaml:"description" toml:"description"`
	Unit        string `yaml:"unit" toml:"unit"`
	Min         any    `yaml:"min" toml:"min"`
	Max         any    `yaml:"max" toml:"max"`
	ReadOnly    bool   `yaml:"read_only" toml:"read_only"`
	Hidden      bool   `yaml:"hidden" toml:"hidden"`
	ItemType    string `yaml:"item_type" toml:"item_type"`
	KeyType     string `yaml:"key_type" toml:"key_type"`

	// Selection is a list (index selection) or a map (key selection).
	Selection any `yaml:"selection" toml:"selection"`

	// Coercer is "snap(step)" or "clamp(min,max)".
	Coercer string `yaml:"coercer" toml:"coercer"`

	// Validator is a CUE constraint expression such as ">=0 & <=100".
	Validator string `yaml:"validator" toml:"validator"`

	StructType  string `yaml:"struct_type" toml:"struct_type"`
	Enumeration string `yaml:"enumeration" toml:"enumeration"`

	// Class names the class of an object-typed property's default child.
	Class string `yaml:"class" toml:"class"`

	// Reference makes the property an alias of another property path.
	Reference string `yaml:"reference" toml:"reference"`
}

// Parse decodes definition data. Unknown keys are rejected.
func Parse(data []byte, format Format) (*File, error) {
	var f File
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), &f)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%w: unknown key %s", ErrInvalidDefinition, undecoded[0])
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return &f, nil
}

// LoadFile reads and parses a single definition file.
func LoadFile(path string) (*File, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // schema paths come from trusted configuration
	if err != nil {
		return nil, fmt.Errorf("reading schema file %s: %w", path, err)
	}
	f, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Load reads every path and merges the results. A directory contributes
// its YAML and TOML files in name order; other files in it are skipped.
func Load(paths []string) (*File, error) {
	merged := &File{}
	for _, path := range paths {
		files, err := expand(path)
		if err != nil {
			return nil, err
		}
		for _, name := range files {
			f, err := LoadFile(name)
			if err != nil {
				return nil, err
			}
			merged.Merge(f)
		}
	}
	return merged, nil
}

func expand(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("schema path %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema directory %s: %w", path, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := FormatOf(e.Name()); err == nil {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// LoadInto loads paths and registers the definitions with mgr.
func LoadInto(mgr *coretype.Manager, paths []string) error {
	f, err := Load(paths)
	if err != nil {
		return err
	}
	return f.Register(mgr)
}

// Merge appends other's definitions to f.
func (f *File) Merge(other *File) {
	f.Enumerations = append(f.Enumerations, other.Enumerations...)
	f.Structs = append(f.Structs, other.Structs...)
	f.Classes = append(f.Classes, other.Classes...)
}

// Register adds the enumeration, struct and class definitions to mgr, in
// that order. Classes are registered after their parent and after the
// classes their object properties instantiate, regardless of file order.
func (f *File) Register(mgr *coretype.Manager) error {
	for _, def := range f.Enumerations {
		t, err := def.build()
		if err != nil {
			return err
		}
		if err := mgr.AddType(t); err != nil {
			return fmt.Errorf("enumeration %s: %w", def.Name, err)
		}
	}
	for _, def := range f.Structs {
		t, err := def.build()
		if err != nil {
			return err
		}
		if err := mgr.AddType(t); err != nil {
			return fmt.Errorf("struct %s: %w", def.Name, err)
		}
	}
	return registerClasses(mgr, f.Classes)
}

func registerClasses(mgr *coretype.Manager, defs []ClassDef) error {
	pending := make([]ClassDef, len(defs))
	copy(pending, defs)
	for len(pending) > 0 {
		var next []ClassDef
		for _, def := range pending {
			if !def.ready(mgr) {
				next = append(next, def)
				continue
			}
			cls, err := def.build(mgr)
			if err != nil {
				return err
			}
			if err := mgr.AddType(cls); err != nil {
				return fmt.Errorf("class %s: %w", def.Name, err)
			}
		}
		if len(next) == len(pending) {
			names := make([]string, len(next))
			for i, def := range next {
				names[i] = def.Name
			}
			return fmt.Errorf("%w: unresolved parent or object class for %s", ErrInvalidDefinition, strings.Join(names, ", "))
		}
		pending = next
	}
	return nil
}

func (d EnumerationDef) build() (*coretype.EnumerationType, error) {
	if d.Name == "" || len(d.Values) == 0 {
		return nil, fmt.Errorf("%w: enumeration %q needs a name and values", ErrInvalidDefinition, d.Name)
	}
	if len(d.Numbers) == 0 {
		return coretype.NewEnumerationType(d.Name, d.Values...), nil
	}
	t, err := coretype.NewEnumerationTypeWithValues(d.Name, d.Values, d.Numbers)
	if err != nil {
		return nil, fmt.Errorf("%w: enumeration %s: %w", ErrInvalidDefinition, d.Name, err)
	}
	return t, nil
}

func (d StructDef) build() (*coretype.StructType, error) {
	if d.Name == "" {
		return nil, fmt.Errorf("%w: struct without a name", ErrInvalidDefinition)
	}
	fields := make([]coretype.StructField, len(d.Fields))
	for i, fd := range d.Fields {
		t, err := coretype.ParseCoreType(fd.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: struct %s field %s: %w", ErrInvalidDefinition, d.Name, fd.Name, err)
		}
		def, err := coretype.Normalize(fd.Default)
		if err != nil {
			return nil, fmt.Errorf("%w: struct %s field %s: %w", ErrInvalidDefinition, d.Name, fd.Name, err)
		}
		fields[i] = coretype.StructField{Name: fd.Name, Type: t, Default: def}
	}
	return coretype.NewStructType(d.Name, fields...), nil
}

// ready reports whether every class d depends on is registered.
func (d ClassDef) ready(mgr *coretype.Manager) bool {
	if d.Parent != "" && !mgr.HasType(d.Parent) {
		return false
	}
	for _, p := range d.Properties {
		if p.Class != "" && !mgr.HasType(p.Class) {
			return false
		}
	}
	return true
}

func (d ClassDef) build(mgr *coretype.Manager) (*property.Class, error) {
	props := make([]*property.Property, 0, len(d.Properties))
	for _, pd := range d.Properties {
		p, err := pd.build(mgr)
		if err != nil {
			return nil, fmt.Errorf("class %s: %w", d.Name, err)
		}
		props = append(props, p)
	}
	cls, err := property.NewClass(d.Name, d.Parent, props...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	return cls, nil
}

func (d PropertyDef) build(mgr *coretype.Manager) (*property.Property, error) {
	fail := func(format string, args ...any) (*property.Property, error) {
		return nil, fmt.Errorf("%w: property %s: %s", ErrInvalidDefinition, d.Name, fmt.Sprintf(format, args...))
	}

	opts, err := d.options()
	if err != nil {
		return fail("%v", err)
	}
	if d.Reference != "" {
		return property.Reference(d.Name, d.Reference, opts...), nil
	}

	t, err := coretype.ParseCoreType(d.Type)
	if err != nil {
		return fail("%v", err)
	}

	var def any
	switch t {
	case coretype.TypeFunc, coretype.TypeProc:
		return fail("%s properties cannot be declared in a schema file", t)
	case coretype.TypeObject:
		if d.Class == "" {
			return fail("object property needs a class")
		}
		child, err := property.NewObjectOfClass(mgr, d.Class)
		if err != nil {
			return fail("%v", err)
		}
		def = child
	case coretype.TypeStruct:
		st, err := mgr.StructType(d.StructType)
		if err != nil {
			return fail("%v", err)
		}
		values, ok := d.Default.(map[string]any)
		if d.Default != nil && !ok {
			return fail("struct default must be a map")
		}
		s, err := st.New(values)
		if err != nil {
			return fail("%v", err)
		}
		opts = append(opts, property.WithStructType(st))
		def = s
	case coretype.TypeEnumeration:
		et, err := mgr.EnumerationType(d.Enumeration)
		if err != nil {
			return fail("%v", err)
		}
		e, err := enumerator(et, d.Default)
		if err != nil {
			return fail("%v", err)
		}
		opts = append(opts, property.WithEnumerationType(et))
		def = e
	default:
		def = d.Default
		if def == nil {
			def = zero(t)
		}
		if t == coretype.TypeBinary {
			if s, ok := def.(string); ok {
				def = []byte(s)
			}
		}
	}

	p := property.New(d.Name, t, def, opts...)
	if err := p.Err(); err != nil {
		return fail("%v", err)
	}
	return p, nil
}

func (d PropertyDef) options() ([]property.Option, error) {
	var opts []property.Option
	if d.Description != "" {
		opts = append(opts, property.WithDescription(d.Description))
	}
	if d.Unit != "" {
		opts = append(opts, property.WithUnit(d.Unit))
	}
	if d.Min != nil {
		opts = append(opts, property.WithMin(d.Min))
	}
	if d.Max != nil {
		opts = append(opts, property.WithMax(d.Max))
	}
	if d.ReadOnly {
		opts = append(opts, property.ReadOnly())
	}
	if d.Hidden {
		opts = append(opts, property.Hidden())
	}
	if d.ItemType != "" {
		t, err := coretype.ParseCoreType(d.ItemType)
		if err != nil {
			return nil, err
		}
		opts = append(opts, property.WithItemType(t))
	}
	if d.KeyType != "" {
		t, err := coretype.ParseCoreType(d.KeyType)
		if err != nil {
			return nil, err
		}
		opts = append(opts, property.WithKeyType(t))
	}
	if d.Selection != nil {
		opts = append(opts, property.WithSelection(d.Selection))
	}
	if d.Coercer != "" {
		c, err := property.ParseCoercer(d.Coercer)
		if err != nil {
			return nil, err
		}
		opts = append(opts, property.WithCoercer(c))
	}
	if d.Validator != "" {
		v, err := property.ParseValidator(d.Validator)
		if err != nil {
			return nil, err
		}
		opts = append(opts, property.WithValidator(v))
	}
	return opts, nil
}

// enumerator resolves a default given by name or value. No default selects
// the first enumerator.
func enumerator(t *coretype.EnumerationType, def any) (coretype.Enumeration, error) {
	switch v := def.(type) {
	case nil:
		return t.FromName(t.Names()[0])
	case string:
		return t.FromName(v)
	}
	n, err := coretype.Normalize(def)
	if err != nil {
		return coretype.Enumeration{}, err
	}
	i, ok := n.(int64)
	if !ok {
		return coretype.Enumeration{}, fmt.Errorf("enumeration default must be a name or an integer, got %T", def)
	}
	return t.FromValue(i)
}

func zero(t coretype.CoreType) any {
	switch t {
	case coretype.TypeBool:
		return false
	case coretype.TypeInt:
		return int64(0)
	case coretype.TypeFloat:
		return 0.0
	case coretype.TypeString:
		return ""
	case coretype.TypeList:
		return []any{}
	case coretype.TypeDict:
		return coretype.NewDict()
	case coretype.TypeRatio:
		return coretype.Ratio{Num: 0, Den: 1}
	case coretype.TypeComplex:
		return complex(0, 0)
	case coretype.TypeBinary:
		return []byte{}
	}
	return nil
}
