package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// APIError indicates an upstream LLM call failed or returned an
	// unexpected response shape
	APIError ErrorCode = "API_ERROR"
	// FileAccess indicates a path was unreadable or missing
	FileAccess ErrorCode = "FILE_ACCESS"
	// ConfigInvalid indicates invalid settings, fatal at startup
	ConfigInvalid ErrorCode = "CONFIG_INVALID"
	// TokenLimit indicates admission was denied by the rate limiter
	TokenLimit ErrorCode = "TOKEN_LIMIT"
	// Internal indicates an unexpected error
	Internal ErrorCode = "INTERNAL_ERROR"
)

// Error is a typed error with a stable code and optional cause.
type Error struct {
	Code    ErrorCode
	Message string

	// Status is the upstream HTTP status for API errors, 0 otherwise.
	Status int
	// Retryable reports whether the caller may reasonably retry.
	// Network-class API failures are retryable; malformed response
	// shapes and admission denials are not.
	Retryable bool

	cause error
}

// New creates an Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error wrapping an underlying cause.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.cause
}

// WithStatus records the upstream HTTP status on the error.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// AsRetryable marks the error as retryable.
func (e *Error) AsRetryable() *Error {
	e.Retryable = true
	return e
}

// CodeOf extracts the ErrorCode from err, or Internal if err carries none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}

// IsRetryable reports whether err is a retryable Error.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
