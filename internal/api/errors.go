package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/propcore/internal/codec"
	"github.com/nerrad567/propcore/internal/property"
	"github.com/nerrad567/propcore/internal/store"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeForbidden      = "forbidden"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeMethodNotAllow = "method_not_allowed"
	ErrCodeUnsupported    = "unsupported_media_type"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeObjectError maps registry, codec and property engine errors to a
// response. Property errors carry their kind.
func writeObjectError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrObjectNotFound):
		writeNotFound(w, err.Error())
		return
	case errors.Is(err, store.ErrAccessDenied):
		writeError(w, http.StatusForbidden, ErrCodeForbidden, err.Error())
		return
	case errors.Is(err, store.ErrObjectExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
		return
	case errors.Is(err, store.ErrInvalidName):
		writeBadRequest(w, err.Error())
		return
	case errors.Is(err, codec.ErrUnsupportedContentType):
		writeError(w, http.StatusUnsupportedMediaType, ErrCodeUnsupported, err.Error())
		return
	}

	kind := property.KindOf(err)
	status, code := statusForKind(kind)
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Kind:    kind.String(),
		Message: err.Error(),
	})
}

func statusForKind(kind property.ErrorKind) (int, string) {
	switch kind {
	case property.KindNotFound:
		return http.StatusNotFound, ErrCodeNotFound
	case property.KindAccessDenied:
		return http.StatusForbidden, ErrCodeForbidden
	case property.KindFrozen, property.KindInvalidState, property.KindAlreadyExists:
		return http.StatusConflict, ErrCodeConflict
	case property.KindInvalidType, property.KindInvalidValue, property.KindInvalidParameter,
		property.KindOutOfRange, property.KindCoerceFailed, property.KindValidateFailed:
		return http.StatusUnprocessableEntity, ErrCodeValidation
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}
