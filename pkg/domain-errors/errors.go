// Package domainerrors provides coded errors for the service layer.
//
// Stores return sentinel errors (pkg/platform/sentinel); services translate
// them into coded errors so transports can map codes to status codes without
// string matching. Codes are stable API: handlers, logs, and clients key off
// them.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for transport mapping and retry decisions.
type Code string

const (
	// CodeInvalidInput marks malformed identifiers or payloads. Never retried.
	CodeInvalidInput Code = "invalid_input"
	// CodeBadRequest marks a structurally valid but unprocessable request.
	CodeBadRequest Code = "bad_request"
	// CodeNotFound marks a missing entity.
	CodeNotFound Code = "not_found"
	// CodeConflict marks a uniqueness or state conflict.
	CodeConflict Code = "conflict"
	// CodeIdentityConflict marks an ambiguous canonical-identifier resolution
	// that would match more than one existing record. Never auto-resolved.
	CodeIdentityConflict Code = "identity_conflict"
	// CodePermissionDenied marks a membership or tier failure. Rejected before
	// any external side effect.
	CodePermissionDenied Code = "permission_denied"
	// CodeAdapterContent marks a failed content-store step. The push aborts
	// with nothing externally visible.
	CodeAdapterContent Code = "adapter_content_error"
	// CodeAdapterLedger marks a failed or timed-out ledger step after a
	// confirmed content step. The push degrades to pending, never rolls back.
	CodeAdapterLedger Code = "adapter_ledger_error"
	// CodeInvariantViolation marks a domain invariant breach.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeUnavailable marks a temporarily unavailable dependency.
	CodeUnavailable Code = "unavailable"
	// CodeInternal marks an unexpected failure.
	CodeInternal Code = "internal"
)

// Error is a coded domain error, optionally wrapping a cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message, preserving the cause chain.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias for HasCode kept for call-site readability
// (dErrors.Is(err, dErrors.CodeBadRequest)).
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf extracts the code from err, defaulting to CodeInternal for
// uncoded errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
