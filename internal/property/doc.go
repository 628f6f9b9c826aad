// Package property implements the property object engine.
//
// A property object is a mutable, schema-aware configuration object. Its
// schema is the union of the properties of its class (registered with a
// coretype.Manager) and any local properties added at runtime. Each
// property has a core type, a default and optional constraints; the object
// stores explicit values only for properties that differ from their
// default.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────────┐
//	│                            Object                                    │
//	│                                                                      │
//	│  ┌───────────────┐   ┌────────────────┐   ┌───────────────────────┐  │
//	│  │  Schema       │   │  Values        │   │  Events               │  │
//	│  │ (object.go)   │   │ (value.go)     │   │ (event.go)            │  │
//	│  │ • class props │──▶│ • get/set/clear│──▶│ • per-name write/read │  │
//	│  │ • local props │   │ • pipeline.go  │   │ • any write/read      │  │
//	│  │ • references  │   │ • update stack │   │ • end update          │  │
//	│  └───────────────┘   └────────────────┘   │ • core event trigger  │  │
//	│                              │            └───────────────────────┘  │
//	│                              ▼                                       │
//	│                      ┌────────────────┐                              │
//	│                      │ Transactions   │                              │
//	│                      │ (update.go)    │                              │
//	│                      └────────────────┘                              │
//	└──────────────────────────────────────────────────────────────────────┘
//
// # Paths
//
// Names passed to the value operations are paths:
//
//	Gain               property of this object
//	Channel.Gain       property of the child object held by Channel
//	.Rate              property of the owner (one leading dot per hop)
//	Coefficients[2]    element of a list property
//
// Parent paths are read-only.
//
// # Writes
//
// A write converts the value to the property's core type, checks container
// item types, selection keys and struct/enumeration types, runs the
// coercer and validator, clamps to min/max, then raises the write events.
// A handler may replace the value; a handler that writes the same property
// supersedes the outer write. Writing the current value is reported as
// StatusIgnored.
//
// Between BeginUpdate and EndUpdate writes are queued and replayed when
// the outermost transaction ends, followed by one OnEndUpdate event and
// one CoreUpdateEnd event carrying the final values.
//
// # Concurrency
//
// Every public method takes the object's reentrant configuration lock, so
// handlers run inline and may call back into the same object. Calls that
// cross into another object which calls back from a different goroutine
// can deadlock; ConfigureDeadlockDetection reports such waits.
//
// # Usage
//
//	types := coretype.NewManager()
//	cls, err := property.NewClass("Channel", "",
//	    property.Float("Gain", 1, property.WithMin(0.1), property.WithMax(100)),
//	    property.Selection("Range", []any{"±1V", "±10V"}, 1),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := types.AddType(cls); err != nil {
//	    return err
//	}
//
//	ch, err := property.NewObjectOfClass(types, "Channel")
//	if err != nil {
//	    return err
//	}
//	if r := ch.SetPropertyValue("Gain", 250); !r.OK() {
//	    return r.Err
//	}
//	gain, _ := ch.GetPropertyValue("Gain") // 100.0, clamped
package property
