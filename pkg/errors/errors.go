package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Detail  string `json:"detail,omitempty"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors of the same code, so taxonomy sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e != nil && e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Transition check tags carried in Error.Detail so callers can tell exactly
// which precondition failed.
const (
	CheckTerminalState = "terminal_state"
	CheckUnknownAction = "unknown_action"
	CheckRoleDenied    = "role_denied"
	CheckReasonMissing = "reason_missing"
	CheckGuardFailed   = "guard_failed"
)

// Predefined errors for common scenarios.
var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict     = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	// Workflow transition taxonomy.
	ErrIllegalTransition = New("ILLEGAL_TRANSITION", http.StatusUnprocessableEntity, "transition not permitted")
	ErrStaleVersion      = New("STALE_VERSION", http.StatusConflict, "state changed, please refresh")
	ErrAlreadyResolved   = New("ALREADY_RESOLVED", http.StatusConflict, "instance already transitioned")
	ErrPayloadLocked     = New("PAYLOAD_LOCKED", http.StatusConflict, "signed contract payload is immutable")
	ErrSideEffectFailure = New("SIDE_EFFECT_FAILURE", http.StatusInternalServerError, "side effect failed")
)

// IllegalTransition tags an ILLEGAL_TRANSITION error with the failed check.
func IllegalTransition(check, message string) *Error {
	e := *ErrIllegalTransition
	e.Detail = check
	if message != "" {
		e.Message = message
	}
	return &e
}

// ValidationFailed tags a VALIDATION_ERROR with the failed check.
func ValidationFailed(check, message string) *Error {
	e := *ErrValidation
	e.Detail = check
	if message != "" {
		e.Message = message
	}
	return &e
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
