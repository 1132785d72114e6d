// Package errors defines structured error types for the OCTOREFLEX agent.
// Errors carry a stable machine-readable code so callers can branch on the
// failure class without string matching, plus a cause chain compatible with
// the standard errors.Is/errors.As machinery.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code is a stable error classification.
type Code string

const (
	// CodeConfigInvalid marks construction-time parameter violations.
	// Fatal to the instance being constructed; never retried.
	CodeConfigInvalid Code = "config_invalid"

	// CodeDimensionMismatch marks a feature vector whose length disagrees
	// with its baseline. Per-call and caller-recoverable: the score that
	// accompanies it must not be used to escalate.
	CodeDimensionMismatch Code = "dimension_mismatch"

	// CodeStorage marks a baseline store read/write failure.
	CodeStorage Code = "storage_error"

	// CodeStaleEnvelope marks a gossip envelope older than the intake TTL.
	CodeStaleEnvelope Code = "stale_envelope"

	// CodeInvalidEnvelope marks a gossip envelope failing field validation.
	CodeInvalidEnvelope Code = "invalid_envelope"

	// CodeInternal marks unexpected failures.
	CodeInternal Code = "internal_error"
)

// Error is the structured error type returned across package boundaries.
type Error struct {
	code    Code
	message string
	cause   error
}

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(cause error, code Code, message string) *Error {
	return &Error{code: code, message: message, cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

// Code returns the error classification.
func (e *Error) Code() Code {
	return e.code
}

// Unwrap returns the underlying cause for errors.Is/As traversal.
func (e *Error) Unwrap() error {
	return e.cause
}

// WithCause returns a copy of the error carrying the given cause.
func (e *Error) WithCause(cause error) *Error {
	return &Error{code: e.code, message: e.message, cause: cause}
}

// IsCode reports whether any error in err's chain carries the given code.
func IsCode(err error, code Code) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.code == code
	}
	return false
}

// CodeOf returns the code of the first structured error in err's chain,
// or CodeInternal when the chain carries none.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.code
	}
	return CodeInternal
}
