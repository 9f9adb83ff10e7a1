package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a request that violates business rules.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidState indicates an illegal status transition.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrConflict indicates a lost race against a concurrent write.
	ErrConflict = errors.New("conflict")
)

// FieldError is one rule violation, optionally scoped to a payload field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// FieldReporter is implemented by errors that carry per-field violations.
type FieldReporter interface {
	Fields() []FieldError
}
