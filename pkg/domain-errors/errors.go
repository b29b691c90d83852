// Package domainerrors defines the coded error type the engine's services
// return. Stores and infrastructure return pkg/platform/sentinel errors;
// services wrap them here so transports can translate codes without string
// matching, and so callers can tell "already done" apart from "insufficient
// funds" apart from "tampered request".
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error.
type Code string

const (
	// Validation errors: recoverable by fixing the input.
	CodeBadRequest Code = "bad_request"

	// Authorization errors: recoverable by using the correct role.
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"

	// State errors: facts about engine state at call time.
	CodeNotFound              Code = "not_found"
	CodeAlreadyCompleted      Code = "already_completed"
	CodeInsufficientFunds     Code = "insufficient_funds"
	CodeInsufficientLiquidity Code = "insufficient_liquidity"
	CodePayloadMismatch       Code = "payload_mismatch"

	// Throttling.
	CodeRateLimited Code = "rate_limited"

	// External-collaborator and infrastructure failures.
	CodeUnavailable Code = "unavailable"
	CodeInternal    Code = "internal_error"
)

// Error is a coded domain error. Message is safe to return to callers for
// every code except CodeInternal.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code and message, so errors.Is works
// against sentinel values built with New.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// New creates a domain error with a code and caller-facing message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the code from an error chain, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the caller-facing message from an error chain.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}

// ToHTTPStatus maps a domain error code to an HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyCompleted, CodeInsufficientFunds, CodeInsufficientLiquidity:
		return http.StatusConflict
	case CodePayloadMismatch:
		return http.StatusUnprocessableEntity
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
