package property

import (
	"errors"
	"fmt"
	"slices"

	"github.com/nerrad567/propcore/internal/coretype"
)

// check runs a candidate value through the write pipeline: conversion to
// the declared type, container and selection checks, coercion, validation
// and min/max clamping. The returned value is owned by the caller.
func (o *Object) check(prop *Property, v any) (any, error) {
	v, err := convertValue(prop, v)
	if err != nil {
		return nil, err
	}
	if err := checkShape(prop, v); err != nil {
		return nil, err
	}

	if prop.coercer != nil {
		c, err := prop.coercer.Coerce(o, v)
		if err != nil {
			return nil, wrapAs(ErrCoerceFailed, err)
		}
		if c, err = coretype.Normalize(c); err != nil {
			return nil, wrapAs(ErrCoerceFailed, err)
		}
		if v, err = convertValue(prop, c); err != nil {
			return nil, wrapAs(ErrCoerceFailed, err)
		}
	}
	if prop.validator != nil {
		if err := prop.validator.Validate(o, v); err != nil {
			return nil, wrapAs(ErrValidateFailed, err)
		}
	}

	v = o.clamp(prop, v)
	switch v.(type) {
	case []any, *coretype.Dict, []byte:
		v = coretype.Clone(v)
	}
	return v, nil
}

func wrapAs(sentinel, err error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

func convertValue(prop *Property, v any) (any, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil value for %s", ErrInvalidParameter, prop.name)
	}
	want := prop.valueType
	if coretype.TypeOf(v) == want {
		return convertElements(prop, v)
	}

	switch want {
	case coretype.TypeEnumeration:
		return toEnumeration(prop, v)
	case coretype.TypeStruct:
		d, ok := v.(*coretype.Dict)
		if !ok {
			break
		}
		fields := make(map[string]any, d.Len())
		var keyErr error
		d.Range(func(k, val any) bool {
			name, ok := k.(string)
			if !ok {
				keyErr = fmt.Errorf("%w: struct field key %v", ErrInvalidValue, k)
				return false
			}
			fields[name] = val
			return true
		})
		if keyErr != nil {
			return nil, keyErr
		}
		s, err := prop.structType.New(fields)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidValue, err)
		}
		return s, nil
	case coretype.TypeObject:
		return nil, fmt.Errorf("%w: %s expects an object, got %s", ErrInvalidType, prop.name, coretype.TypeOf(v))
	}

	c, err := coretype.Convert(v, want)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidValue, prop.name, err)
	}
	return convertElements(prop, c)
}

// convertElements converts numeric list items and dict keys and items to
// the declared numeric item and key types, so 2 is accepted where 2.0 is
// expected. Other mismatches are left for checkShape. The input is not
// modified; a copy is returned when anything changes.
func convertElements(prop *Property, v any) (any, error) {
	switch t := v.(type) {
	case []any:
		if !prop.itemType.IsNumeric() {
			return v, nil
		}
		var out []any
		for i, item := range t {
			c, changed, err := convertNumeric(item, prop.itemType)
			if err != nil {
				return nil, fmt.Errorf("%w: %s[%d]: %w", ErrInvalidValue, prop.name, i, err)
			}
			if !changed {
				continue
			}
			if out == nil {
				out = slices.Clone(t)
			}
			out[i] = c
		}
		if out == nil {
			return v, nil
		}
		return out, nil
	case *coretype.Dict:
		if !prop.keyType.IsNumeric() && !prop.itemType.IsNumeric() {
			return v, nil
		}
		out := coretype.NewDict()
		var err error
		t.Range(func(k, item any) bool {
			var ck, ci any
			if ck, _, err = convertNumeric(k, prop.keyType); err != nil {
				err = fmt.Errorf("%w: %s key %v: %w", ErrInvalidValue, prop.name, k, err)
				return false
			}
			if ci, _, err = convertNumeric(item, prop.itemType); err != nil {
				err = fmt.Errorf("%w: %s[%v]: %w", ErrInvalidValue, prop.name, k, err)
				return false
			}
			err = out.Set(ck, ci)
			return err == nil
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return v, nil
}

// convertNumeric converts v to want when both are numeric core types.
func convertNumeric(v any, want coretype.CoreType) (any, bool, error) {
	have := coretype.TypeOf(v)
	if !want.IsNumeric() || !have.IsNumeric() || have == want {
		return v, false, nil
	}
	c, err := coretype.Convert(v, want)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

func toEnumeration(prop *Property, v any) (any, error) {
	if s, ok := v.(string); ok {
		if e, err := prop.enumType.FromName(s); err == nil {
			return e, nil
		}
	}
	i, err := coretype.Convert(v, coretype.TypeInt)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidValue, prop.name, err)
	}
	e, err := prop.enumType.FromValue(i.(int64))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidValue, prop.name, err)
	}
	return e, nil
}

// checkShape enforces item and key types, object identity, selection keys
// and struct/enumeration type equality.
func checkShape(prop *Property, v any) error {
	switch prop.valueType {
	case coretype.TypeList:
		if prop.itemType == coretype.TypeUndefined {
			break
		}
		for i, item := range v.([]any) {
			if coretype.TypeOf(item) != prop.itemType {
				return fmt.Errorf("%w: %s[%d] is %s, want %s", ErrInvalidType, prop.name, i, coretype.TypeOf(item), prop.itemType)
			}
		}
	case coretype.TypeDict:
		var err error
		v.(*coretype.Dict).Range(func(k, item any) bool {
			if prop.keyType != coretype.TypeUndefined && coretype.TypeOf(k) != prop.keyType {
				err = fmt.Errorf("%w: %s key %v is %s, want %s", ErrInvalidType, prop.name, k, coretype.TypeOf(k), prop.keyType)
				return false
			}
			if prop.itemType != coretype.TypeUndefined && coretype.TypeOf(item) != prop.itemType {
				err = fmt.Errorf("%w: %s[%v] is %s, want %s", ErrInvalidType, prop.name, k, coretype.TypeOf(item), prop.itemType)
				return false
			}
			return true
		})
		if err != nil {
			return err
		}
	case coretype.TypeObject:
		if _, ok := v.(*Object); !ok {
			return fmt.Errorf("%w: %s accepts property objects only", ErrInvalidType, prop.name)
		}
	case coretype.TypeStruct:
		if s := v.(*coretype.Struct); !s.Type().Equal(prop.structType) {
			return fmt.Errorf("%w: %s expects struct %s, got %s", ErrInvalidType, prop.name, prop.structType.TypeName(), s.Type().TypeName())
		}
	case coretype.TypeEnumeration:
		if e := v.(coretype.Enumeration); !e.Type().Equal(prop.enumType) {
			return fmt.Errorf("%w: %s expects enumeration %s, got %s", ErrInvalidType, prop.name, prop.enumType.TypeName(), e.Type().TypeName())
		}
	}

	if prop.selection != nil {
		if _, err := selectionLookup(prop.selection, v); err != nil {
			return err
		}
	}
	return nil
}

// clamp limits numeric values to the property's bounds. Comparison
// failures leave the value unchanged.
func (o *Object) clamp(prop *Property, v any) any {
	if !prop.valueType.IsNumeric() {
		return v
	}
	bound := func(limit any, outside int, label string) {
		if limit == nil {
			return
		}
		c, err := coretype.Compare(v, limit)
		if err != nil {
			o.logger.Debug("clamp skipped", "property", prop.name, "bound", label, "error", err)
			return
		}
		if c != outside {
			return
		}
		b, err := coretype.Convert(limit, prop.valueType)
		if err != nil {
			o.logger.Debug("clamp skipped", "property", prop.name, "bound", label, "error", err)
			return
		}
		v = b
	}
	bound(prop.min, -1, "min")
	bound(prop.max, 1, "max")
	return v
}
