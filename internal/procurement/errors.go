package procurement

import (
	"fmt"
	"strings"

	"github.com/odyssey-erp/procurement/internal/shared"
)

type sentinel struct {
	msg  string
	kind error
}

func (e *sentinel) Error() string { return e.msg }
func (e *sentinel) Unwrap() error { return e.kind }

var (
	// ErrInvalidState occurs when action violates status workflow.
	ErrInvalidState error = &sentinel{msg: "procurement: invalid state transition", kind: shared.ErrInvalidState}
	// ErrNotFound indicates record missing.
	ErrNotFound error = &sentinel{msg: "procurement: not found", kind: shared.ErrNotFound}
	// ErrValidation indicates invalid input.
	ErrValidation error = &sentinel{msg: "procurement: invalid input", kind: shared.ErrValidation}
	// ErrConflict indicates a guarded write lost against a concurrent change.
	ErrConflict error = &sentinel{msg: "procurement: concurrent update", kind: shared.ErrConflict}
)

// FieldError is a single rule violation.
type FieldError = shared.FieldError

// ValidationError collects every violation found for one document.
type ValidationError struct {
	Document string
	Errors   []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fe.Message)
	}
	return strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Fields exposes the collected violations to transport layers.
func (e *ValidationError) Fields() []FieldError { return e.Errors }

// NotFoundError reports a missing document addressed by an action.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// TransitionError reports an illegal status change.
type TransitionError struct {
	Message string
	From    string
	Action  string
}

func (e *TransitionError) Error() string { return e.Message }
func (e *TransitionError) Unwrap() error { return ErrInvalidState }

// ConflictError reports a guarded update that matched no rows.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }
func (e *ConflictError) Unwrap() error { return ErrConflict }

func notFound(format string, args ...any) error {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

func invalidTransition(from, action, format string, args ...any) error {
	return &TransitionError{Message: fmt.Sprintf(format, args...), From: from, Action: action}
}

func conflict(format string, args ...any) error {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

func rejected(format string, args ...any) error {
	return &ValidationError{Errors: []FieldError{{Message: fmt.Sprintf(format, args...)}}}
}

// violations accumulates FieldErrors for one document. Checks keep running
// after a failure; the request is rejected once all checks have run.
type violations struct {
	document string
	list     []FieldError
}

func (v *violations) add(field, format string, args ...any) {
	v.list = append(v.list, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (v *violations) merge(other *violations) {
	v.list = append(v.list, other.list...)
}

func (v *violations) empty() bool { return len(v.list) == 0 }

func (v *violations) err() error {
	if v.empty() {
		return nil
	}
	return &ValidationError{Document: v.document, Errors: v.list}
}
