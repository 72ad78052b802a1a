// Package domainerrors defines the typed error taxonomy shared by every domain
// module. Services return these errors; the HTTP layer translates them into the
// JSON error envelope without inspecting error strings.
//
// Two kinds of codes exist:
//   - fixed codes (INVALID_TRANSITION, PERMISSION_DENIED, ...) declared below
//   - resource-prefixed codes built with NotFound/Inactive/Mismatch/
//     NumberUnavailable helpers (CLAIM_NOT_FOUND, AFFILIATE_INACTIVE, ...)
//
// HTTP status resolution first consults the fixed-code table, then falls back
// to suffix rules so resource-prefixed codes map consistently.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Code is a stable machine-readable error identifier.
type Code string

const (
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodePermissionDenied   Code = "PERMISSION_DENIED"
	CodeFieldNotEditable   Code = "FIELD_NOT_EDITABLE"
	CodeInvalidTransition  Code = "INVALID_TRANSITION"
	CodeReasonRequired     Code = "REASON_REQUIRED"
	CodeInvariantViolation Code = "INVARIANT_VIOLATION"
	CodeTransitionConflict Code = "TRANSITION_CONFLICT"
	CodeInternal           Code = "INTERNAL_ERROR"
)

// Suffixes used by resource-prefixed codes.
const (
	suffixNotFound          = "_NOT_FOUND"
	suffixInactive          = "_INACTIVE"
	suffixMismatch          = "_MISMATCH"
	suffixNumberUnavailable = "_NUMBER_UNAVAILABLE"
)

// NotFound builds the 404 code for a resource, e.g. NotFound("claim") ==
// "CLAIM_NOT_FOUND".
func NotFound(resource string) Code {
	return Code(strings.ToUpper(resource) + suffixNotFound)
}

// Inactive builds the 422 code for a referenced entity that exists but is not
// active, e.g. Inactive("affiliate") == "AFFILIATE_INACTIVE".
func Inactive(resource string) Code {
	return Code(strings.ToUpper(resource) + suffixInactive)
}

// Mismatch builds the 422 code for a referenced entity that fails a business
// precondition, e.g. Mismatch("patient") == "PATIENT_MISMATCH".
func Mismatch(resource string) Code {
	return Code(strings.ToUpper(resource) + suffixMismatch)
}

// NumberUnavailable builds the 409 code for a unique-constraint conflict on a
// human-facing identifier, e.g. NumberUnavailable("claim") ==
// "CLAIM_NUMBER_UNAVAILABLE".
func NumberUnavailable(resource string) Code {
	return Code(strings.ToUpper(resource) + suffixNumberUnavailable)
}

var fixedStatus = map[Code]int{
	CodeValidation:         http.StatusBadRequest,
	CodeUnauthorized:       http.StatusUnauthorized,
	CodePermissionDenied:   http.StatusForbidden,
	CodeFieldNotEditable:   http.StatusUnprocessableEntity,
	CodeInvalidTransition:  http.StatusUnprocessableEntity,
	CodeReasonRequired:     http.StatusUnprocessableEntity,
	CodeInvariantViolation: http.StatusUnprocessableEntity,
	CodeTransitionConflict: http.StatusConflict,
	CodeInternal:           http.StatusInternalServerError,
}

// ToHTTPStatus maps a code to its HTTP status. Unknown codes without a
// recognized suffix are treated as internal errors so nothing leaks as a 200.
func ToHTTPStatus(code Code) int {
	if status, ok := fixedStatus[code]; ok {
		return status
	}
	s := string(code)
	switch {
	case strings.HasSuffix(s, suffixNotFound):
		return http.StatusNotFound
	case strings.HasSuffix(s, suffixInactive), strings.HasSuffix(s, suffixMismatch):
		return http.StatusUnprocessableEntity
	case strings.HasSuffix(s, suffixNumberUnavailable):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// Error carries a code plus a human-readable message. It optionally wraps an
// underlying cause for logging; the cause is never serialized to clients.
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

// New creates a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) is a domain error with
// the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for
// non-domain errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the client-safe message from err. Non-domain errors get a
// generic message so internals never leak.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal server error"
}
