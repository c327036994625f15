// Package domainerrors carries machine-readable error codes across service
// boundaries. Domain services return these instead of panicking or leaking
// raw infrastructure errors; transport adapters translate codes to HTTP
// statuses in one place.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for programmatic handling.
type Code string

const (
	// CodeValidation marks malformed or semantically invalid input
	// (non-positive amounts, bad precision, missing headers).
	CodeValidation Code = "validation_error"

	// CodeBadRequest marks requests that cannot be parsed at all.
	CodeBadRequest Code = "bad_request"

	// CodeInvalidInput marks identifier parsing failures at trust boundaries.
	CodeInvalidInput Code = "invalid_input"

	// CodeNotFound marks a referenced aggregate that does not exist.
	CodeNotFound Code = "not_found"

	// CodeConflict marks lifecycle state conflicts: duplicate settlement
	// initiation, confirming a confirmed settlement, negative-payout blocks.
	CodeConflict Code = "conflict"

	// CodeConcurrencyConflict marks a failed optimistic version precondition.
	// The caller must refetch and retry with the current version.
	CodeConcurrencyConflict Code = "concurrency_conflict"

	// CodeAlreadyPaid marks a payment against a due that is already settled.
	CodeAlreadyPaid Code = "already_paid"

	// CodeInvalidState marks an operation not valid for the aggregate's
	// current lifecycle state (e.g. paying a Missed due).
	CodeInvalidState Code = "invalid_state"

	// CodeNoMembers marks cycle generation against a fund with no active members.
	CodeNoMembers Code = "no_members"

	// CodeUnauthorized marks missing or invalid caller identity.
	CodeUnauthorized Code = "unauthorized"

	// CodeForbidden marks a caller without the required fund role.
	CodeForbidden Code = "forbidden"

	// CodeInvariantViolation marks an aggregate invariant breach detected
	// inside domain logic. Surfaces as a conflict or validation error.
	CodeInvariantViolation Code = "invariant_violation"

	// CodeInternal marks infrastructure faults. Details are logged, never
	// returned to callers.
	CodeInternal Code = "internal_error"
)

// Error is a coded domain error. Details, when present, carry structured
// data for the response payload (e.g. the members blocking a confirmation).
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs a coded error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying cause, preserving the
// chain for errors.Is/As.
func Wrap(cause error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithDetails returns a copy of the error carrying structured payload data.
func (e *Error) WithDetails(details map[string]any) *Error {
	clone := *e
	clone.Details = details
	return &clone
}

// HasCode reports whether err or anything it wraps carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for
// un-coded errors so faults never masquerade as business conditions.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// DetailsOf extracts structured details from err, or nil.
func DetailsOf(err error) map[string]any {
	var de *Error
	if errors.As(err, &de) {
		return de.Details
	}
	return nil
}
