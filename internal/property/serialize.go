package property

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/nerrad567/propcore/internal/coretype"
	"github.com/nerrad567/propcore/internal/permission"
)

// Tags of encoded non-JSON values.
const (
	tagKey         = "__type"
	tagRatio       = "Ratio"
	tagComplex     = "Complex"
	tagStruct      = "Struct"
	tagEnumeration = "Enumeration"
	tagDict        = "Dict"
	tagBinary      = "Binary"
)

// Serialize writes the object as a document: class name, frozen flag,
// readable explicit values, custom order and local property definitions.
//
// Returns ErrAccessDenied if user may not read the object. Child objects
// user may not read are left out.
func (o *Object) Serialize(user permission.User) (*Document, error) {
	o.cfg.Lock()
	defer o.cfg.Unlock()
	return o.serialize(user, true)
}

// SerializeForUpdate is Serialize without local property definitions, for
// documents applied with Update to an object of the same shape.
func (o *Object) SerializeForUpdate(user permission.User) (*Document, error) {
	o.cfg.Lock()
	defer o.cfg.Unlock()
	return o.serialize(user, false)
}

func (o *Object) serialize(user permission.User, withProperties bool) (*Document, error) {
	if !o.perm.IsAuthorized(user, permission.Read) {
		return nil, fmt.Errorf("%w: user %s may not read %s", ErrAccessDenied, user.ID, o.describe())
	}

	doc := &Document{Type: DocumentType, ClassName: o.className, Frozen: o.frozen.Load()}
	values := NewValues()
	for _, name := range o.serializedOrder() {
		v := o.values[name]
		if child, ok := v.(*Object); ok {
			cd, err := child.serializeChild(user, withProperties)
			if err != nil {
				return nil, fmt.Errorf("property %s: %w", name, err)
			}
			if cd != nil {
				values.Set(name, cd)
			}
			continue
		}
		if ct := coretype.TypeOf(v); ct == coretype.TypeFunc || ct == coretype.TypeProc {
			// Callables have no document form; the default is used on load.
			continue
		}
		enc, err := encodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", name, err)
		}
		values.Set(name, enc)
	}
	if values.Len() > 0 {
		doc.PropValues = values
	}
	if len(o.customOrder) > 0 {
		doc.PropertyOrder = slices.Clone(o.customOrder)
	}
	if !withProperties {
		return doc, nil
	}
	for _, p := range o.local {
		pd, err := o.encodeProperty(p, user)
		if err != nil {
			return nil, fmt.Errorf("definition %s: %w", p.name, err)
		}
		doc.Properties = append(doc.Properties, pd)
	}
	return doc, nil
}

// serializeChild returns nil when user may not read the child.
func (o *Object) serializeChild(user permission.User, withProperties bool) (*Document, error) {
	o.cfg.Lock()
	defer o.cfg.Unlock()
	if !o.perm.IsAuthorized(user, permission.Read) {
		return nil, nil
	}
	return o.serialize(user, withProperties)
}

func (o *Object) describe() string {
	switch {
	case o.path != "":
		return o.path
	case o.className != "":
		return o.className
	}
	return "object"
}

// serializedOrder lists names with explicit values: custom order first,
// then insertion order.
func (o *Object) serializedOrder() []string {
	out := make([]string, 0, len(o.valueOrder))
	placed := make(map[string]bool, len(o.valueOrder))
	for _, name := range o.customOrder {
		if _, ok := o.values[name]; ok && !placed[name] {
			out = append(out, name)
			placed[name] = true
		}
	}
	for _, name := range o.valueOrder {
		if !placed[name] {
			out = append(out, name)
		}
	}
	return out
}

func (o *Object) encodeProperty(p *Property, user permission.User) (PropertyDocument, error) {
	pd := PropertyDocument{
		Name:        p.name,
		ReadOnly:    p.readOnly,
		Hidden:      p.hidden,
		Description: p.description,
		Unit:        p.unit,
		Reference:   p.refTarget,
	}
	if p.IsReference() {
		return pd, nil
	}
	pd.ValueType = p.valueType.String()
	if p.itemType != coretype.TypeUndefined {
		pd.ItemType = p.itemType.String()
	}
	if p.keyType != coretype.TypeUndefined {
		pd.KeyType = p.keyType.String()
	}
	if p.structType != nil {
		pd.StructType = p.structType.TypeName()
	}
	if p.enumType != nil {
		pd.EnumerationType = p.enumType.TypeName()
	}

	var err error
	switch {
	case p.deferred != nil:
		return pd, fmt.Errorf("%w: deferred defaults cannot be serialized", ErrInvalidState)
	case p.valueType == coretype.TypeFunc || p.valueType == coretype.TypeProc:
	case p.ChildDefaultIsObject():
		child := p.def.(*Object)
		child.cfg.Lock()
		pd.Default, err = child.serialize(user, true)
		child.cfg.Unlock()
	default:
		pd.Default, err = encodeValue(p.def)
	}
	if err != nil {
		return pd, err
	}
	if pd.Min, err = encodeValue(p.min); err != nil {
		return pd, err
	}
	if pd.Max, err = encodeValue(p.max); err != nil {
		return pd, err
	}
	if pd.Selection, err = encodeValue(p.selection); err != nil {
		return pd, err
	}

	if e, ok := p.coercer.(Expression); ok {
		pd.Coercer = e.Expression()
	} else if p.coercer != nil {
		o.logger.Debug("coercer has no expression form, not serialized", "property", p.name)
	}
	if e, ok := p.validator.(Expression); ok {
		pd.Validator = e.Expression()
	} else if p.validator != nil {
		o.logger.Debug("validator has no expression form, not serialized", "property", p.name)
	}
	return pd, nil
}

// encodeValue lowers a core value to JSON-compatible data. Values without
// a JSON form become maps tagged with "__type".
func encodeValue(v any) (any, error) {
	switch t := v.(type) {
	case nil, bool, int64, string:
		return v, nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, fmt.Errorf("%w: %v has no encoded form", ErrInvalidValue, t)
		}
		return t, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			enc, err := encodeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = enc
		}
		return out, nil
	case *coretype.Dict:
		items := make([]any, 0, t.Len())
		var err error
		t.Range(func(k, item any) bool {
			var ek, ev any
			if ek, err = encodeValue(k); err != nil {
				return false
			}
			if ev, err = encodeValue(item); err != nil {
				return false
			}
			items = append(items, []any{ek, ev})
			return true
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{tagKey: tagDict, "items": items}, nil
	case coretype.Ratio:
		return map[string]any{tagKey: tagRatio, "num": t.Num, "den": t.Den}, nil
	case complex128:
		return map[string]any{tagKey: tagComplex, "real": real(t), "imag": imag(t)}, nil
	case []byte:
		return map[string]any{tagKey: tagBinary, "data": base64.StdEncoding.EncodeToString(t)}, nil
	case coretype.Enumeration:
		return map[string]any{tagKey: tagEnumeration, "type": t.Type().TypeName(), "value": t.Name()}, nil
	case *coretype.Struct:
		fields := make(map[string]any)
		for _, f := range t.Type().Fields() {
			fv, _ := t.Get(f.Name)
			enc, err := encodeValue(fv)
			if err != nil {
				return nil, err
			}
			fields[f.Name] = enc
		}
		return map[string]any{tagKey: tagStruct, "type": t.Type().TypeName(), "fields": fields}, nil
	}
	return nil, fmt.Errorf("%w: %s values cannot be serialized", ErrInvalidType, coretype.TypeOf(v))
}

// EncodeValue lowers a core value to the JSON and CBOR compatible form
// used in documents.
func EncodeValue(v any) (any, error) {
	return encodeValue(v)
}

// DecodeValue raises an encoded value for the property at path. The
// property's struct and enumeration types and the holder's type manager
// resolve tagged values.
func (o *Object) DecodeValue(path string, enc any) (any, error) {
	p, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	o.cfg.Lock()
	defer o.cfg.Unlock()

	var d decoder
	var hint *Property
	err = o.route(p, func(h *Object, lp Path) error {
		d = decoder{opts: DeserializeOptions{Manager: h.manager, Logger: h.logger}}
		if !lp.HasIndex() {
			hint, _ = h.lookup(lp.Head())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d.value(enc, hint)
}

// DeserializeOptions configure Deserialize.
type DeserializeOptions struct {
	// Manager resolves classes, struct types and enumeration types.
	Manager *coretype.Manager
	// Logger is given to every created object.
	Logger Logger
}

// decoder raises encoded data back to core values.
type decoder struct {
	opts DeserializeOptions
}

func (d decoder) structType(name string, hint *coretype.StructType) (*coretype.StructType, error) {
	if hint != nil && hint.TypeName() == name {
		return hint, nil
	}
	if d.opts.Manager == nil {
		return nil, fmt.Errorf("%w: struct type %s", ErrNotFound, name)
	}
	st, err := d.opts.Manager.StructType(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return st, nil
}

func (d decoder) enumType(name string, hint *coretype.EnumerationType) (*coretype.EnumerationType, error) {
	if hint != nil && hint.TypeName() == name {
		return hint, nil
	}
	if d.opts.Manager == nil {
		return nil, fmt.Errorf("%w: enumeration type %s", ErrNotFound, name)
	}
	et, err := d.opts.Manager.EnumerationType(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return et, nil
}

// value decodes enc. hint supplies the struct and enumeration types of
// the property being decoded, if any.
func (d decoder) value(enc any, hint *Property) (any, error) {
	switch t := enc.(type) {
	case nil:
		return nil, nil
	case *Document:
		return Deserialize(t, d.opts)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: number %s", ErrInvalidValue, t)
		}
		return f, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			v, err := d.value(item, nil)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, v := range t {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("%w: map key %v", ErrInvalidValue, k)
			}
			m[ks] = v
		}
		return d.tagged(m, hint)
	case map[string]any:
		return d.tagged(t, hint)
	}
	v, err := coretype.Normalize(enc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	return v, nil
}

func (d decoder) tagged(m map[string]any, hint *Property) (any, error) {
	tag, _ := m[tagKey].(string)
	var st *coretype.StructType
	var et *coretype.EnumerationType
	if hint != nil {
		st, et = hint.structType, hint.enumType
	}

	switch tag {
	case "":
		dict := coretype.NewDict()
		for _, k := range sortedKeys(m) {
			v, err := d.value(m[k], nil)
			if err != nil {
				return nil, err
			}
			//nolint:errcheck // string keys are always valid
			dict.Set(k, v)
		}
		return dict, nil
	case tagDict:
		items, _ := m["items"].([]any)
		dict := coretype.NewDict()
		for _, raw := range items {
			pair, ok := raw.([]any)
			if !ok || len(pair) != 2 {
				return nil, fmt.Errorf("%w: dict item %v", ErrInvalidValue, raw)
			}
			k, err := d.value(pair[0], nil)
			if err != nil {
				return nil, err
			}
			v, err := d.value(pair[1], nil)
			if err != nil {
				return nil, err
			}
			if err := dict.Set(k, v); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidValue, err)
			}
		}
		return dict, nil
	case tagRatio:
		num, err1 := d.int(m["num"])
		den, err2 := d.int(m["den"])
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("%w: ratio %v", ErrInvalidValue, m)
		}
		r, err := coretype.NewRatio(num, den)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidValue, err)
		}
		return r, nil
	case tagComplex:
		re, err1 := d.float(m["real"])
		im, err2 := d.float(m["imag"])
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("%w: complex %v", ErrInvalidValue, m)
		}
		return complex(re, im), nil
	case tagBinary:
		s, _ := m["data"].(string)
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: binary: %w", ErrInvalidValue, err)
		}
		return b, nil
	case tagEnumeration:
		name, _ := m["type"].(string)
		t, err := d.enumType(name, et)
		if err != nil {
			return nil, err
		}
		value, _ := m["value"].(string)
		e, err := t.FromName(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidValue, err)
		}
		return e, nil
	case tagStruct:
		name, _ := m["type"].(string)
		t, err := d.structType(name, st)
		if err != nil {
			return nil, err
		}
		var fields map[string]any
		switch f := m["fields"].(type) {
		case map[string]any:
			fields = f
		case map[any]any:
			fields = make(map[string]any, len(f))
			for k, v := range f {
				if ks, ok := k.(string); ok {
					fields[ks] = v
				}
			}
		}
		decoded := make(map[string]any, len(fields))
		for k, raw := range fields {
			v, err := d.value(raw, nil)
			if err != nil {
				return nil, err
			}
			decoded[k] = v
		}
		s, err := t.New(decoded)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidValue, err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: unknown value tag %q", ErrInvalidValue, tag)
}

func (d decoder) int(enc any) (int64, error) {
	v, err := d.value(enc, nil)
	if err != nil {
		return 0, err
	}
	i, err := coretype.Convert(v, coretype.TypeInt)
	if err != nil {
		return 0, err
	}
	return i.(int64), nil
}

func (d decoder) float(enc any) (float64, error) {
	v, err := d.value(enc, nil)
	if err != nil {
		return 0, err
	}
	f, err := coretype.Convert(v, coretype.TypeFloat)
	if err != nil {
		return 0, err
	}
	return f.(float64), nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (d decoder) property(pd PropertyDocument) (*Property, error) {
	var opts []Option
	if pd.ReadOnly {
		opts = append(opts, ReadOnly())
	}
	if pd.Hidden {
		opts = append(opts, Hidden())
	}
	if pd.Description != "" {
		opts = append(opts, WithDescription(pd.Description))
	}
	if pd.Unit != "" {
		opts = append(opts, WithUnit(pd.Unit))
	}
	if pd.Reference != "" {
		p := Reference(pd.Name, pd.Reference, opts...)
		return p, p.Err()
	}

	t, err := coretype.ParseCoreType(pd.ValueType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}
	for _, tc := range []struct {
		name string
		opt  func(coretype.CoreType) Option
	}{{pd.ItemType, WithItemType}, {pd.KeyType, WithKeyType}} {
		if tc.name == "" {
			continue
		}
		ct, err := coretype.ParseCoreType(tc.name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, err)
		}
		opts = append(opts, tc.opt(ct))
	}

	hint := &Property{}
	if pd.StructType != "" {
		if hint.structType, err = d.structType(pd.StructType, nil); err != nil {
			return nil, err
		}
		opts = append(opts, WithStructType(hint.structType))
	}
	if pd.EnumerationType != "" {
		if hint.enumType, err = d.enumType(pd.EnumerationType, nil); err != nil {
			return nil, err
		}
		opts = append(opts, WithEnumerationType(hint.enumType))
	}

	for _, b := range []struct {
		enc any
		opt func(any) Option
	}{{pd.Min, WithMin}, {pd.Max, WithMax}, {pd.Selection, WithSelection}} {
		if b.enc == nil {
			continue
		}
		v, err := d.value(b.enc, nil)
		if err != nil {
			return nil, err
		}
		opts = append(opts, b.opt(v))
	}

	if pd.Coercer != "" {
		c, err := ParseCoercer(pd.Coercer)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithCoercer(c))
	}
	if pd.Validator != "" {
		v, err := ParseValidator(pd.Validator)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithValidator(v))
	}

	def, err := d.value(pd.Default, hint)
	if err != nil {
		return nil, err
	}
	p := New(pd.Name, t, def, opts...)
	return p, p.Err()
}

// Deserialize builds an object from a document. The class, if named, is
// resolved through opts.Manager. The steps run in a fixed order: property
// order, local property definitions, explicit values (written with
// protected access), then freeze.
func Deserialize(doc *Document, opts DeserializeOptions) (*Object, error) {
	if doc == nil || doc.Type != DocumentType {
		return nil, fmt.Errorf("%w: not a %s document", ErrInvalidParameter, DocumentType)
	}
	var objOpts []ObjectOption
	if opts.Logger != nil {
		objOpts = append(objOpts, WithLogger(opts.Logger))
	}

	var o *Object
	if doc.ClassName != "" {
		var err error
		if o, err = NewObjectOfClass(opts.Manager, doc.ClassName, objOpts...); err != nil {
			return nil, err
		}
	} else {
		o = NewObject(objOpts...)
	}
	o.cfg.Lock()
	defer o.cfg.Unlock()

	if len(doc.PropertyOrder) > 0 {
		o.customOrder = slices.Clone(doc.PropertyOrder)
	}
	d := decoder{opts: opts}
	for _, pd := range doc.Properties {
		p, err := d.property(pd)
		if err != nil {
			return nil, fmt.Errorf("definition %s: %w", pd.Name, err)
		}
		if err := o.AddProperty(p); err != nil {
			return nil, err
		}
	}
	for _, name := range doc.PropValues.Names() {
		enc, _ := doc.PropValues.Get(name)
		hint, _ := o.lookup(name)
		v, err := d.value(enc, hint)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", name, err)
		}
		if r := o.setPath(name, v, true); !r.OK() {
			return nil, fmt.Errorf("property %s: %w", name, r.Err)
		}
	}
	if doc.Frozen {
		o.frozen.Store(true)
	}
	return o, nil
}

// Update applies a document produced by SerializeForUpdate inside one
// update transaction. Properties absent from the document are cleared;
// reference, func and proc properties are skipped and child objects are
// updated in place. Values are written with protected access.
//
// Returns StatusIgnored for frozen objects.
func (o *Object) Update(doc *Document) Result {
	o.cfg.Lock()
	defer o.cfg.Unlock()

	if o.frozen.Load() {
		return resultIgnored
	}
	if doc == nil {
		return failed(fmt.Errorf("%w: nil document", ErrInvalidParameter))
	}
	if err := o.beginUpdate(false); err != nil {
		return failed(err)
	}
	if len(doc.PropertyOrder) > 0 {
		o.customOrder = slices.Clone(doc.PropertyOrder)
	}

	d := decoder{opts: DeserializeOptions{Manager: o.manager, Logger: o.logger}}
	var errs []error
	for _, prop := range o.orderedProperties() {
		if prop.IsReference() || prop.valueType == coretype.TypeFunc || prop.valueType == coretype.TypeProc {
			continue
		}
		path := Path{Segments: []string{prop.name}, Index: -1}
		enc, ok := doc.PropValues.Get(prop.name)
		if !ok {
			if _, explicit := o.values[prop.name]; explicit && prop.valueType != coretype.TypeObject {
				o.clearValue(path, true, true, false)
			}
			continue
		}
		if cd, isDoc := enc.(*Document); isDoc {
			if child, err := o.childObject(prop.name); err == nil {
				if r := child.Update(cd); !r.OK() {
					errs = append(errs, fmt.Errorf("%s: %w", prop.name, r.Err))
				}
				continue
			}
		}
		v, err := d.value(enc, prop)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", prop.name, err))
			continue
		}
		o.setValue(path, v, true, true, false)
	}

	if err := o.endUpdate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return failed(errors.Join(errs...))
	}
	return resultApplied
}
