package errors

import "net/http"

// Kind classifies an operation failure so handlers can map it to a
// transport status without string matching.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindAuthorization Kind = "authorization"
	KindInvalidState  Kind = "invalid_state"
	KindConflict      Kind = "conflict"
	KindInvariant     Kind = "invariant"
	KindInternal      Kind = "internal"
)

// AppError is the typed failure returned by every service operation.
// Failures are detected before any mutation is applied; an AppError is
// never produced mid-write.
type AppError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

// Status maps the error kind to an HTTP status code.
func (e *AppError) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthorization:
		return http.StatusForbidden
	case KindInvalidState, KindConflict, KindInvariant:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new AppError
func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// Helper functions to create specific errors
func Validation(msg string) *AppError    { return New(KindValidation, msg) }
func NotFound(msg string) *AppError      { return New(KindNotFound, msg) }
func Authorization(msg string) *AppError { return New(KindAuthorization, msg) }
func InvalidState(msg string) *AppError  { return New(KindInvalidState, msg) }
func Conflict(msg string) *AppError      { return New(KindConflict, msg) }
func Invariant(msg string) *AppError     { return New(KindInvariant, msg) }
func Internal(msg string) *AppError      { return New(KindInternal, msg) }

// Common errors
var (
	ErrUnauthorized = Authorization("Access denied")
	ErrNotFound     = NotFound("Resource not found")
	ErrInternal     = Internal("Internal server error")
)
