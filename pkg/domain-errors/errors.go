// Package domainerrors defines the typed error taxonomy shared by services and
// the HTTP boundary. Services return *Error values; transport maps the Code to
// an HTTP status and a status-info envelope.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code classifies a domain failure. Codes are stable strings so they can be
// logged and asserted on in tests.
type Code string

const (
	CodeUnauthorized          Code = "unauthorized"
	CodeForbidden             Code = "forbidden"
	CodeBadRequest            Code = "bad_request"
	CodeValidation            Code = "validation_error"
	CodeInvalidQueryParameter Code = "invalid_query_parameter"
	CodeNotFound              Code = "not_found"
	CodeConflict              Code = "conflict"
	CodeDuplicateIssuance     Code = "duplicate_issuance"
	CodeSeedTooLarge          Code = "seed_too_large"
	CodeNoValidAddress        Code = "no_valid_address"
	CodeChainUnavailable      Code = "chain_unavailable"
	CodeRateLimited           Code = "rate_limited"
	CodeInternal              Code = "internal_error"
)

// Error is a domain error carrying a Code, a client-safe message and an
// optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns a domain error without a cause.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// As extracts the outermost domain error from err.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// CodeOf returns the code of err, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to its HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeBadRequest, CodeValidation, CodeInvalidQueryParameter, CodeSeedTooLarge:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeDuplicateIssuance:
		return http.StatusConflict
	case CodeChainUnavailable:
		return http.StatusServiceUnavailable
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// IsRetryable reports whether the caller may retry the operation that
// produced err. Only transient ledger failures qualify.
func IsRetryable(err error) bool {
	return HasCode(err, CodeChainUnavailable)
}
