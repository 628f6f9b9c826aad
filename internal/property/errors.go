package property

import (
	"errors"

	"github.com/nerrad567/propcore/internal/coretype"
)

// Domain errors for the property package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, property.ErrFrozen) {
//	    // object no longer accepts writes
//	}
var (
	// ErrNotFound is returned for unknown property names, unresolvable
	// parent/child paths, unknown selection keys and missing values.
	ErrNotFound = errors.New("property: not found")

	// ErrAccessDenied is returned for unprotected writes to read-only or
	// object-typed properties, writes through parent-relative paths and
	// reads the requesting user is not authorized for.
	ErrAccessDenied = errors.New("property: access denied")

	// ErrFrozen is returned for any mutation of a frozen object.
	ErrFrozen = errors.New("property: object is frozen")

	// ErrInvalidType is returned for container element, struct or
	// enumeration type mismatches.
	ErrInvalidType = errors.New("property: invalid type")

	// ErrInvalidState is returned when an operation is not legal in the
	// object's current state.
	ErrInvalidState = errors.New("property: invalid state")

	// ErrOutOfRange is returned for list indices past the end of the list.
	ErrOutOfRange = errors.New("property: index out of range")

	// ErrAlreadyExists is returned for duplicate property names and
	// duplicate reference targets.
	ErrAlreadyExists = errors.New("property: already exists")

	// ErrInvalidParameter is returned for malformed paths and invalid
	// property definitions.
	ErrInvalidParameter = errors.New("property: invalid parameter")

	// ErrInvalidValue is returned when a value cannot be converted to the
	// property's declared type.
	ErrInvalidValue = errors.New("property: invalid value")

	// ErrCoerceFailed is returned when an attached coercer rejects a value.
	ErrCoerceFailed = errors.New("property: coercion failed")

	// ErrValidateFailed is returned when an attached validator rejects a value.
	ErrValidateFailed = errors.New("property: validation failed")

	// ErrGeneral is returned for uncategorized failures, including panics
	// recovered from event handlers.
	ErrGeneral = errors.New("property: general error")
)

// ErrorKind classifies an error returned by the engine.
type ErrorKind int

// Error kinds.
const (
	KindNone ErrorKind = iota
	KindNotFound
	KindAccessDenied
	KindFrozen
	KindInvalidType
	KindInvalidState
	KindOutOfRange
	KindAlreadyExists
	KindInvalidParameter
	KindInvalidValue
	KindCoerceFailed
	KindValidateFailed
	KindGeneral
)

var kindNames = map[ErrorKind]string{
	KindNone:             "none",
	KindNotFound:         "not_found",
	KindAccessDenied:     "access_denied",
	KindFrozen:           "frozen",
	KindInvalidType:      "invalid_type",
	KindInvalidState:     "invalid_state",
	KindOutOfRange:       "out_of_range",
	KindAlreadyExists:    "already_exists",
	KindInvalidParameter: "invalid_parameter",
	KindInvalidValue:     "invalid_value",
	KindCoerceFailed:     "coerce_failed",
	KindValidateFailed:   "validate_failed",
	KindGeneral:          "general",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

var kindErrors = []struct {
	err  error
	kind ErrorKind
}{
	{ErrNotFound, KindNotFound},
	{ErrAccessDenied, KindAccessDenied},
	{ErrFrozen, KindFrozen},
	{ErrInvalidType, KindInvalidType},
	{ErrInvalidState, KindInvalidState},
	{ErrOutOfRange, KindOutOfRange},
	{ErrAlreadyExists, KindAlreadyExists},
	{ErrInvalidParameter, KindInvalidParameter},
	{ErrInvalidValue, KindInvalidValue},
	{ErrCoerceFailed, KindCoerceFailed},
	{ErrValidateFailed, KindValidateFailed},
	{coretype.ErrConversion, KindInvalidValue},
	{coretype.ErrTypeNotFound, KindNotFound},
	{coretype.ErrTypeExists, KindAlreadyExists},
}

// KindOf classifies err. It returns KindNone for nil and KindGeneral for
// errors the engine does not recognise.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, ke := range kindErrors {
		if errors.Is(err, ke.err) {
			return ke.kind
		}
	}
	return KindGeneral
}

// Status is the outcome of a mutating value operation.
type Status int

// Statuses.
const (
	// StatusApplied means the operation took effect.
	StatusApplied Status = iota
	// StatusIgnored means no observable change occurred. It is not a failure.
	StatusIgnored
	// StatusFailed means the operation was rejected; Result.Err says why.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusApplied:
		return "applied"
	case StatusIgnored:
		return "ignored"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Result is returned by every mutating value operation.
type Result struct {
	Status Status
	Err    error
}

var (
	resultApplied = Result{Status: StatusApplied}
	resultIgnored = Result{Status: StatusIgnored}
)

func failed(err error) Result {
	return Result{Status: StatusFailed, Err: err}
}

// OK reports whether the operation succeeded, with or without effect.
func (r Result) OK() bool {
	return r.Status != StatusFailed
}

// Applied reports whether the operation took effect.
func (r Result) Applied() bool {
	return r.Status == StatusApplied
}

// Ignored reports whether the operation succeeded without observable change.
func (r Result) Ignored() bool {
	return r.Status == StatusIgnored
}

// Kind classifies the failure, or returns KindNone.
func (r Result) Kind() ErrorKind {
	return KindOf(r.Err)
}

func (r Result) String() string {
	if r.Err != nil {
		return r.Status.String() + ": " + r.Err.Error()
	}
	return r.Status.String()
}
