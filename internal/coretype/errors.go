package coretype

import "errors"

// Sentinel errors for the coretype package.
var (
	// ErrConversion is returned when a value cannot be converted to the requested core type.
	ErrConversion = errors.New("coretype: conversion failed")

	// ErrIncomparable is returned when two values have no defined ordering.
	ErrIncomparable = errors.New("coretype: values are not comparable")

	// ErrUnsupported is returned when a Go value has no core type representation.
	ErrUnsupported = errors.New("coretype: unsupported value")

	// ErrInvalidKey is returned when a dict key is not a comparable scalar.
	ErrInvalidKey = errors.New("coretype: invalid dict key")

	// ErrTypeNotFound is returned when a named type is not registered.
	ErrTypeNotFound = errors.New("coretype: type not found")

	// ErrTypeExists is returned when registering a type name twice.
	ErrTypeExists = errors.New("coretype: type already exists")

	// ErrInvalidTypeName is returned for empty type names.
	ErrInvalidTypeName = errors.New("coretype: invalid type name")

	// ErrUnknownField is returned when a struct field does not exist.
	ErrUnknownField = errors.New("coretype: unknown struct field")

	// ErrUnknownEnumerator is returned when an enumeration name or value is not declared.
	ErrUnknownEnumerator = errors.New("coretype: unknown enumerator")

	// ErrInvalidRatio is returned for a zero denominator.
	ErrInvalidRatio = errors.New("coretype: invalid ratio")
)
