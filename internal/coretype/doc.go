// Package coretype provides the closed value type system used by property
// objects.
//
// Every value stored in a property object is one of a small, fixed set of
// core types. Values are plain Go values in a canonical form:
//
//	bool         bool
//	int          int64
//	float        float64
//	string       string
//	list         []any
//	dict         *Dict (ordered, keys of any comparable core type)
//	ratio        Ratio
//	complex      complex128
//	struct       *Struct (bound to a *StructType)
//	enumeration  Enumeration (bound to an *EnumerationType)
//	object       any value implementing Typed that reports TypeObject
//	func / proc  Func / Proc
//	binary       []byte
//
// Normalize widens Go natives (int, float32, []string, map[string]any, ...)
// into the canonical form. Clone, Equal, Compare and Convert operate on
// canonical values only.
//
// # Type Manager
//
// Named types (struct types, enumeration types and property classes) are
// registered with a Manager and looked up by name:
//
//	types := coretype.NewManager()
//	if err := types.AddType(coretype.NewEnumerationType("Mode", "Off", "On")); err != nil {
//	    return err
//	}
//
// The Manager is safe for concurrent use.
package coretype
