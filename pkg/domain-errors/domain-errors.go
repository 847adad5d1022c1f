package domainerrors

import "errors"

// Code represents a domain error category independent of transport layer.
// These codes describe what went wrong in business logic terms, not HTTP terms.
type Code string

const (
	CodeNotFound           Code = "not_found"
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_failed"
	CodeConflict           Code = "conflict"
	CodeUnavailable        Code = "unavailable" // backing store timed out or is unreachable
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal_error"
)

// Error wraps domain or infrastructure failures with a stable code.
// It is transport-agnostic and can be used across service, store, and other layers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code is preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// UnavailableMessage is the only description callers see for CodeUnavailable.
const UnavailableMessage = "service unavailable, try again"

// Unavailable wraps a backing-store or collaborator failure. The cause stays
// in the chain for logs; callers only ever see UnavailableMessage.
func Unavailable(err error) error {
	return &Error{Code: CodeUnavailable, Message: UnavailableMessage, Err: err}
}

// Retryable reports whether the same request may succeed if sent again later.
// Only unavailability is retryable; every other code is a final answer.
func Retryable(err error) bool {
	return HasCode(err, CodeUnavailable)
}

// CodeOf returns the code of the outermost domain error in the chain,
// or CodeInternal when err carries no domain code.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
