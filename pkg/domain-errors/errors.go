// Package domainerrors provides coded errors shared by all services.
//
// Services wrap infrastructure failures and validation problems into a
// DomainError carrying a Code; the HTTP layer translates codes to status
// codes via ToHTTPStatus without inspecting error strings.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error for transport mapping and caller branching.
type Code string

const (
	// CodeInvalidInput: malformed or missing caller input. No state change.
	CodeInvalidInput Code = "invalid_input"
	// CodeBadRequest: request is syntactically fine but semantically unusable.
	CodeBadRequest Code = "bad_request"
	// CodeUnauthorized: no authenticated actor.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden: actor authenticated but not allowed (wrong role,
	// wrong university, two-person-integrity violation).
	CodeForbidden Code = "forbidden"
	// CodeNotFound: referenced entity does not exist.
	CodeNotFound Code = "not_found"
	// CodeConflict: operation attempted from the wrong state.
	CodeConflict Code = "conflict"
	// CodeUnprocessable: business rule rejected the operation.
	CodeUnprocessable Code = "unprocessable"
	// CodeInternal: storage or transport failure. Details are never
	// surfaced to callers.
	CodeInternal Code = "internal_error"
)

// DomainError is an error with a classification code and a caller-safe message.
type DomainError struct {
	Code    Code
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error { return e.Err }

// New creates a DomainError with no underlying cause.
func New(code Code, message string) error {
	return &DomainError{Code: code, Message: message}
}

// Wrap annotates an underlying error with a code and caller-safe message.
func Wrap(err error, code Code, message string) error {
	return &DomainError{Code: code, Message: message, Err: err}
}

// CodeOf extracts the Code from an error chain, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the caller-safe message, empty for non-domain errors.
func MessageOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}

// HasCode reports whether the error chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// ToHTTPStatus maps a Code to its HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput, CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeUnprocessable:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
