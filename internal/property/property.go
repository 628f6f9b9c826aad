package property

import (
	"fmt"
	"strings"

	"github.com/nerrad567/propcore/internal/coretype"
)

// Deferred is a default value computed when it is read, bound to the
// object that owns the property.
type Deferred func(owner *Object) (any, error)

// Property is a named, typed, constrained slot in an object's schema.
//
// A Property is immutable once it is added to an object or class. Adding
// it produces an owner-bound copy that shares the class-level emitters
// returned by OnWrite and OnRead.
type Property struct {
	name        string
	valueType   coretype.CoreType
	def         any
	deferred    Deferred
	min         any
	max         any
	selection   any // []any or *coretype.Dict
	readOnly    bool
	hidden      bool
	description string
	unit        string
	itemType    coretype.CoreType
	keyType     coretype.CoreType
	refTarget   string
	coercer     Coercer
	validator   Validator
	structType  *coretype.StructType
	enumType    *coretype.EnumerationType

	onWrite *Emitter[*ValueEventArgs]
	onRead  *Emitter[*ValueEventArgs]

	owner *Object
	err   error
}

// Option configures a Property under construction.
type Option func(*Property)

// WithMin sets the lower clamp bound of a numeric property.
func WithMin(v any) Option {
	return func(p *Property) { p.min = v }
}

// WithMax sets the upper clamp bound of a numeric property.
func WithMax(v any) Option {
	return func(p *Property) { p.max = v }
}

// ReadOnly rejects unprotected writes.
func ReadOnly() Option {
	return func(p *Property) { p.readOnly = true }
}

// Hidden excludes the property from GetVisibleProperties.
func Hidden() Option {
	return func(p *Property) { p.hidden = true }
}

// WithDescription sets a human-readable description.
func WithDescription(s string) Option {
	return func(p *Property) { p.description = s }
}

// WithUnit sets the unit symbol shown next to the value.
func WithUnit(s string) Option {
	return func(p *Property) { p.unit = s }
}

// WithItemType constrains the element type of list and dict values.
func WithItemType(t coretype.CoreType) Option {
	return func(p *Property) { p.itemType = t }
}

// WithKeyType constrains the key type of dict values.
func WithKeyType(t coretype.CoreType) Option {
	return func(p *Property) { p.keyType = t }
}

// WithSelection turns an int property into a selection over values,
// which must be a list (index selection) or a dict (key selection).
func WithSelection(values any) Option {
	return func(p *Property) { p.selection = values }
}

// WithCoercer attaches a coercer run on every explicit write.
func WithCoercer(c Coercer) Option {
	return func(p *Property) { p.coercer = c }
}

// WithValidator attaches a validator run on every explicit write.
func WithValidator(v Validator) Option {
	return func(p *Property) { p.validator = v }
}

// WithStructType declares the struct type of a struct property.
func WithStructType(t *coretype.StructType) Option {
	return func(p *Property) { p.structType = t }
}

// WithEnumerationType declares the enumeration type of an enumeration property.
func WithEnumerationType(t *coretype.EnumerationType) Option {
	return func(p *Property) { p.enumType = t }
}

// WithDeferredDefault computes the default when it is read.
func WithDeferredDefault(fn Deferred) Option {
	return func(p *Property) { p.deferred = fn }
}

// New creates a property definition. An invalid definition is reported by
// Err and rejected when the property is added to an object or class.
func New(name string, t coretype.CoreType, def any, opts ...Option) *Property {
	p := &Property{
		name:      name,
		valueType: t,
		onWrite:   NewEmitter[*ValueEventArgs](),
		onRead:    NewEmitter[*ValueEventArgs](),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.err = p.init(def)
	return p
}

// Int creates an int property.
func Int(name string, def int64, opts ...Option) *Property {
	return New(name, coretype.TypeInt, def, opts...)
}

// Float creates a float property.
func Float(name string, def float64, opts ...Option) *Property {
	return New(name, coretype.TypeFloat, def, opts...)
}

// Bool creates a bool property.
func Bool(name string, def bool, opts ...Option) *Property {
	return New(name, coretype.TypeBool, def, opts...)
}

// String creates a string property.
func String(name, def string, opts ...Option) *Property {
	return New(name, coretype.TypeString, def, opts...)
}

// List creates a list property.
func List(name string, def []any, opts ...Option) *Property {
	if def == nil {
		def = []any{}
	}
	return New(name, coretype.TypeList, def, opts...)
}

// Dict creates a dict property.
func Dict(name string, def *coretype.Dict, opts ...Option) *Property {
	if def == nil {
		def = coretype.NewDict()
	}
	return New(name, coretype.TypeDict, def, opts...)
}

// Ratio creates a ratio property.
func Ratio(name string, def coretype.Ratio, opts ...Option) *Property {
	return New(name, coretype.TypeRatio, def, opts...)
}

// Selection creates an int property whose value indexes values.
func Selection(name string, values []any, def int64, opts ...Option) *Property {
	return New(name, coretype.TypeInt, def, append([]Option{WithSelection(values)}, opts...)...)
}

// SparseSelection creates an int property whose value is a key of values.
func SparseSelection(name string, values *coretype.Dict, def int64, opts ...Option) *Property {
	return New(name, coretype.TypeInt, def, append([]Option{WithSelection(values)}, opts...)...)
}

// ObjectProp creates an object-typed property. The default becomes the
// live child of the object the property is added to.
func ObjectProp(name string, def *Object, opts ...Option) *Property {
	var v any
	if def != nil {
		v = def
	}
	return New(name, coretype.TypeObject, v, opts...)
}

// Reference creates a property whose reads and writes go to target.
func Reference(name, target string, opts ...Option) *Property {
	opts = append(opts, func(p *Property) { p.refTarget = target })
	return New(name, coretype.TypeUndefined, nil, opts...)
}

// StructProp creates a struct property typed by its default.
func StructProp(name string, def *coretype.Struct, opts ...Option) *Property {
	var v any
	if def != nil {
		v = def
	}
	return New(name, coretype.TypeStruct, v, opts...)
}

// EnumerationProp creates an enumeration property typed by its default.
func EnumerationProp(name string, def coretype.Enumeration, opts ...Option) *Property {
	return New(name, coretype.TypeEnumeration, def, opts...)
}

// FuncProp creates a callable property returning a result.
func FuncProp(name string, fn coretype.Func, opts ...Option) *Property {
	var v any
	if fn != nil {
		v = fn
	}
	return New(name, coretype.TypeFunc, v, opts...)
}

// ProcProp creates a callable property without a result.
func ProcProp(name string, fn coretype.Proc, opts ...Option) *Property {
	var v any
	if fn != nil {
		v = fn
	}
	return New(name, coretype.TypeProc, v, opts...)
}

// Binary creates a binary blob property.
func Binary(name string, def []byte, opts ...Option) *Property {
	if def == nil {
		def = []byte{}
	}
	return New(name, coretype.TypeBinary, def, opts...)
}

func (p *Property) init(def any) error {
	if p.name == "" || strings.ContainsAny(p.name, ".[]") {
		return fmt.Errorf("%w: invalid property name %q", ErrInvalidParameter, p.name)
	}
	if d, ok := def.(Deferred); ok {
		p.deferred, def = d, nil
	} else if d, ok := def.(func(*Object) (any, error)); ok {
		p.deferred, def = d, nil
	}

	if p.refTarget != "" {
		if def != nil || p.deferred != nil {
			return fmt.Errorf("%w: reference property %s cannot have a default", ErrInvalidParameter, p.name)
		}
		return nil
	}

	if def != nil {
		v, err := coretype.Normalize(def)
		if err != nil {
			return fmt.Errorf("%w: default of %s: %w", ErrInvalidParameter, p.name, err)
		}
		if p.valueType == coretype.TypeUndefined {
			p.valueType = coretype.TypeOf(v)
		}
		if v, err = p.checkDefault(v); err != nil {
			return err
		}
		p.def = v
	}

	switch p.valueType {
	case coretype.TypeUndefined:
		return fmt.Errorf("%w: property %s has no value type", ErrInvalidParameter, p.name)
	case coretype.TypeFunc, coretype.TypeProc:
	default:
		if p.def == nil && p.deferred == nil {
			return fmt.Errorf("%w: property %s requires a default value", ErrInvalidParameter, p.name)
		}
	}

	if p.valueType == coretype.TypeStruct && p.structType == nil {
		return fmt.Errorf("%w: struct property %s requires a struct type", ErrInvalidParameter, p.name)
	}
	if p.valueType == coretype.TypeEnumeration && p.enumType == nil {
		return fmt.Errorf("%w: enumeration property %s requires an enumeration type", ErrInvalidParameter, p.name)
	}

	if err := p.initBounds(); err != nil {
		return err
	}
	return p.initSelection()
}

func (p *Property) checkDefault(v any) (any, error) {
	switch p.valueType {
	case coretype.TypeObject:
		if _, ok := v.(*Object); !ok {
			return nil, fmt.Errorf("%w: default of object property %s must be an object", ErrInvalidParameter, p.name)
		}
		return v, nil
	case coretype.TypeStruct:
		s, ok := v.(*coretype.Struct)
		if !ok {
			return nil, fmt.Errorf("%w: default of %s must be a struct", ErrInvalidParameter, p.name)
		}
		if p.structType == nil {
			p.structType = s.Type()
		} else if !p.structType.Equal(s.Type()) {
			return nil, fmt.Errorf("%w: default of %s is not a %s", ErrInvalidType, p.name, p.structType.TypeName())
		}
		return v, nil
	case coretype.TypeEnumeration:
		e, ok := v.(coretype.Enumeration)
		if !ok {
			return nil, fmt.Errorf("%w: default of %s must be an enumeration", ErrInvalidParameter, p.name)
		}
		if p.enumType == nil {
			p.enumType = e.Type()
		} else if !p.enumType.Equal(e.Type()) {
			return nil, fmt.Errorf("%w: default of %s is not a %s", ErrInvalidType, p.name, p.enumType.TypeName())
		}
		return v, nil
	}
	if coretype.TypeOf(v) == p.valueType {
		return v, nil
	}
	converted, err := coretype.Convert(v, p.valueType)
	if err != nil {
		return nil, fmt.Errorf("%w: default of %s: %w", ErrInvalidParameter, p.name, err)
	}
	return converted, nil
}

func (p *Property) initBounds() error {
	for _, bound := range []*any{&p.min, &p.max} {
		if *bound == nil {
			continue
		}
		if !p.valueType.IsNumeric() {
			return fmt.Errorf("%w: min/max on non-numeric property %s", ErrInvalidParameter, p.name)
		}
		v, err := coretype.Normalize(*bound)
		if err != nil || !coretype.TypeOf(v).IsNumeric() {
			return fmt.Errorf("%w: min/max of %s must be numeric", ErrInvalidParameter, p.name)
		}
		*bound = v
	}
	return nil
}

func (p *Property) initSelection() error {
	if p.selection == nil {
		return nil
	}
	if p.valueType != coretype.TypeInt {
		return fmt.Errorf("%w: selection values on non-int property %s", ErrInvalidParameter, p.name)
	}
	sel, err := coretype.Normalize(p.selection)
	if err != nil {
		return fmt.Errorf("%w: selection values of %s: %w", ErrInvalidParameter, p.name, err)
	}
	switch sel.(type) {
	case []any, *coretype.Dict:
	default:
		return fmt.Errorf("%w: selection values of %s must be a list or dict", ErrInvalidParameter, p.name)
	}
	p.selection = sel
	if p.def != nil {
		if _, err := selectionLookup(sel, p.def); err != nil {
			return fmt.Errorf("%w: default of %s is not a selection key", ErrInvalidParameter, p.name)
		}
	}
	return nil
}

// selectionLookup returns the entry of a selection list or dict at key.
func selectionLookup(sel, key any) (any, error) {
	switch s := sel.(type) {
	case []any:
		i, ok := key.(int64)
		if !ok || i < 0 || i >= int64(len(s)) {
			return nil, fmt.Errorf("%w: selection index %v", ErrNotFound, key)
		}
		return coretype.Clone(s[i]), nil
	case *coretype.Dict:
		v, ok := s.Get(key)
		if !ok {
			return nil, fmt.Errorf("%w: selection key %v", ErrNotFound, key)
		}
		return coretype.Clone(v), nil
	}
	return nil, fmt.Errorf("%w: not a selection property", ErrInvalidType)
}

// Err reports why the definition is invalid, or nil.
func (p *Property) Err() error {
	return p.err
}

// Name returns the property name.
func (p *Property) Name() string { return p.name }

// ValueType returns the declared core type. Reference properties report
// TypeUndefined; their target's type applies.
func (p *Property) ValueType() coretype.CoreType { return p.valueType }

// ReadOnly reports whether unprotected writes are rejected.
func (p *Property) ReadOnly() bool { return p.readOnly }

// Visible reports whether the property is listed by GetVisibleProperties.
func (p *Property) Visible() bool { return !p.hidden }

// Description returns the human-readable description.
func (p *Property) Description() string { return p.description }

// Unit returns the unit symbol.
func (p *Property) Unit() string { return p.unit }

// ItemType returns the declared element type of list and dict values.
func (p *Property) ItemType() coretype.CoreType { return p.itemType }

// KeyType returns the declared key type of dict values.
func (p *Property) KeyType() coretype.CoreType { return p.keyType }

// Min returns the lower clamp bound, or nil.
func (p *Property) Min() any { return p.min }

// Max returns the upper clamp bound, or nil.
func (p *Property) Max() any { return p.max }

// SelectionValues returns a copy of the selection list or dict, or nil.
func (p *Property) SelectionValues() any { return coretype.Clone(p.selection) }

// IsSelection reports whether the property selects from a value set.
func (p *Property) IsSelection() bool { return p.selection != nil }

// ReferencedProperty returns the name of the reference target, or "".
func (p *Property) ReferencedProperty() string { return p.refTarget }

// IsReference reports whether reads and writes go to another property.
func (p *Property) IsReference() bool { return p.refTarget != "" }

// Coercer returns the attached coercer, or nil.
func (p *Property) Coercer() Coercer { return p.coercer }

// Validator returns the attached validator, or nil.
func (p *Property) Validator() Validator { return p.validator }

// StructType returns the declared struct type, or nil.
func (p *Property) StructType() *coretype.StructType { return p.structType }

// EnumerationType returns the declared enumeration type, or nil.
func (p *Property) EnumerationType() *coretype.EnumerationType { return p.enumType }

// IsDeferred reports whether the default is computed on read.
func (p *Property) IsDeferred() bool { return p.deferred != nil }

// ChildDefaultIsObject reports whether the default is a property object.
func (p *Property) ChildDefaultIsObject() bool {
	_, ok := p.def.(*Object)
	return ok && p.valueType == coretype.TypeObject
}

// Owner returns the object the property is bound to, or nil.
func (p *Property) Owner() *Object { return p.owner }

// OnWrite returns the class-level write event. For class properties it
// fires on every object of the class.
func (p *Property) OnWrite() *Emitter[*ValueEventArgs] { return p.onWrite }

// OnRead returns the class-level read event.
func (p *Property) OnRead() *Emitter[*ValueEventArgs] { return p.onRead }

// Default returns a copy of the static default, without evaluating a
// deferred one. Object defaults are returned as-is.
func (p *Property) Default() any {
	return coretype.Clone(p.def)
}

// DefaultValue returns the effective default. Deferred defaults are
// evaluated against the owner and converted to the declared type.
func (p *Property) DefaultValue() (any, error) {
	if p.deferred == nil {
		return coretype.Clone(p.def), nil
	}
	if p.owner == nil {
		return nil, fmt.Errorf("%w: deferred default of %s needs an owner", ErrInvalidState, p.name)
	}
	v, err := p.deferred(p.owner)
	if err != nil {
		return nil, err
	}
	if v, err = coretype.Normalize(v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	if v != nil && p.valueType.IsNumeric() && coretype.TypeOf(v) != p.valueType {
		return coretype.Convert(v, p.valueType)
	}
	return v, nil
}

// Value reads the property's value from its owner.
func (p *Property) Value() (any, error) {
	if p.owner == nil {
		return nil, fmt.Errorf("%w: property %s is not bound", ErrInvalidState, p.name)
	}
	return p.owner.GetPropertyValue(p.name)
}

// SetValue writes the property's value on its owner.
func (p *Property) SetValue(v any) Result {
	if p.owner == nil {
		return failed(fmt.Errorf("%w: property %s is not bound", ErrInvalidState, p.name))
	}
	return p.owner.SetPropertyValue(p.name, v)
}

// bind returns a copy of p owned by o. Emitters are shared.
func (p *Property) bind(o *Object) *Property {
	c := *p
	c.owner = o
	return &c
}

// withDefault returns an unbound copy with a different static default.
func (p *Property) withDefault(def any) *Property {
	c := *p
	c.def = def
	c.owner = nil
	return &c
}

func (p *Property) String() string {
	if p.refTarget != "" {
		return fmt.Sprintf("%s -> %s", p.name, p.refTarget)
	}
	return fmt.Sprintf("%s(%s)", p.name, p.valueType)
}
