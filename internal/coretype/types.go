package coretype

import (
	"fmt"
	"strings"
)

// CoreType identifies one member of the closed value type set.
type CoreType int

// Core types.
const (
	TypeUndefined CoreType = iota
	TypeBool
	TypeInt
	TypeFloat
	TypeString
	TypeList
	TypeDict
	TypeRatio
	TypeComplex
	TypeStruct
	TypeEnumeration
	TypeObject
	TypeFunc
	TypeProc
	TypeBinary
)

var coreTypeNames = map[CoreType]string{
	TypeUndefined:   "undefined",
	TypeBool:        "bool",
	TypeInt:         "int",
	TypeFloat:       "float",
	TypeString:      "string",
	TypeList:        "list",
	TypeDict:        "dict",
	TypeRatio:       "ratio",
	TypeComplex:     "complex",
	TypeStruct:      "struct",
	TypeEnumeration: "enumeration",
	TypeObject:      "object",
	TypeFunc:        "func",
	TypeProc:        "proc",
	TypeBinary:      "binary",
}

// String returns the lower-case name used in schema files and serialized documents.
func (t CoreType) String() string {
	if name, ok := coreTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("coretype(%d)", int(t))
}

// ParseCoreType converts a type name back into a CoreType.
// Matching is case-insensitive; "integer", "boolean", "double" and "object"
// aliases are accepted.
func ParseCoreType(name string) (CoreType, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "integer":
		return TypeInt, nil
	case "boolean":
		return TypeBool, nil
	case "double":
		return TypeFloat, nil
	case "enum":
		return TypeEnumeration, nil
	}
	for t, s := range coreTypeNames {
		if s == n && t != TypeUndefined {
			return t, nil
		}
	}
	return TypeUndefined, fmt.Errorf("%w: unknown core type %q", ErrUnsupported, name)
}

// IsNumeric reports whether values of the type take part in min/max clamping.
func (t CoreType) IsNumeric() bool {
	return t == TypeInt || t == TypeFloat || t == TypeRatio
}

// Typed is implemented by values that report their own core type.
// Property objects implement it to register as TypeObject.
type Typed interface {
	CoreType() CoreType
}

// Func is a callable property value returning a result.
type Func func(args ...any) (any, error)

// Proc is a callable property value without a result.
type Proc func(args ...any) error

// Type is a named type registered with a Manager.
type Type interface {
	TypeName() string
}

// TypeOf returns the core type of a canonical value.
// Values outside the canonical form report TypeUndefined.
func TypeOf(v any) CoreType {
	switch t := v.(type) {
	case nil:
		return TypeUndefined
	case bool:
		return TypeBool
	case int64:
		return TypeInt
	case float64:
		return TypeFloat
	case string:
		return TypeString
	case []any:
		return TypeList
	case *Dict:
		return TypeDict
	case Ratio:
		return TypeRatio
	case complex128:
		return TypeComplex
	case []byte:
		return TypeBinary
	case Func:
		return TypeFunc
	case Proc:
		return TypeProc
	case Typed:
		return t.CoreType()
	}
	return TypeUndefined
}
