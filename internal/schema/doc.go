// Package schema loads type definitions from YAML and TOML files into a
// coretype.Manager.
//
// A definition file has three optional sections: enumerations, structs
// and classes. Enumerations and structs are registered first so class
// properties can refer to them by name.
//
// # YAML
//
//	enumerations:
//	  - name: Coupling
//	    values: [DC, AC]
//	classes:
//	  - name: Channel
//	    properties:
//	      - {name: Gain, type: float, default: 1, min: 0.1, max: 100}
//	      - {name: Coupling, type: enumeration, enumeration: Coupling}
//
// # TOML
//
//	[[classes]]
//	name = "Channel"
//
//	[[classes.properties]]
//	name = "Gain"
//	type = "float"
//	default = 1.0
//
// Unknown keys are rejected in both formats. Properties without a default
// take the zero value of their type; enumeration properties default to
// the first enumerator.
package schema
