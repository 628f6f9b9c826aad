package store

import "errors"

// Domain errors for the store package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, store.ErrObjectNotFound) {
//	    // handle not found case
//	}
var (
	// ErrObjectNotFound is returned when an object ID or name does not exist.
	ErrObjectNotFound = errors.New("store: object not found")

	// ErrObjectExists is returned when creating an object whose ID or name is taken.
	ErrObjectExists = errors.New("store: object already exists")

	// ErrInvalidName is returned when an object name is empty or too long.
	ErrInvalidName = errors.New("store: invalid object name")

	// ErrAccessDenied is returned when a user lacks the permission an
	// operation needs.
	ErrAccessDenied = errors.New("store: access denied")
)
