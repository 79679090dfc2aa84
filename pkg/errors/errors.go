package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
)

// ErrorType represents different types of errors that can occur during a crawl
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeTimeout     ErrorType = "timeout"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeStorage     ErrorType = "storage"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error is a typed crawl error. Code carries the HTTP status when one is known.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Type) + " error"
	if e.Code != 0 {
		msg = fmt.Sprintf("%s (code %d)", msg, e.Code)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error without a cause
func New(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Wrap attaches a type to an underlying error
func Wrap(t ErrorType, message string, err error) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

// FromStatus builds a typed error from an HTTP status code
func FromStatus(code int, message string) *Error {
	var t ErrorType
	switch {
	case code == 429:
		t = ErrorTypeRateLimit
	case code == 408:
		t = ErrorTypeTimeout
	case code == 401 || code == 403:
		t = ErrorTypeAuth
	case code == 404 || code == 410:
		t = ErrorTypeNotFound
	case code == 0:
		t = ErrorTypeNetwork
	case IsRetryableStatusCode(code):
		t = ErrorTypeServerError
	default:
		t = ErrorTypeUnknown
	}
	return &Error{Type: t, Message: message, Code: code}
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 408, 429:
		return true
	case 401, 403, 404, 410:
		return false
	default:
		return statusCode >= 500
	}
}

// TypeOf returns the type of the first typed error in the chain, or
// ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	var typed *Error
	if stderrors.As(err, &typed) {
		return typed.Type
	}
	return ErrorTypeUnknown
}

// IsTransient reports whether err is a fetch failure worth retrying after a
// session restart. Cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil || IsCancelled(err) {
		return false
	}
	var typed *Error
	if stderrors.As(err, &typed) {
		return IsRetryable(typed.Type)
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// IsCancelled reports whether err stems from context cancellation.
func IsCancelled(err error) bool {
	return stderrors.Is(err, context.Canceled)
}

// IsStorage reports whether err is a persistent I/O failure.
func IsStorage(err error) bool {
	return TypeOf(err) == ErrorTypeStorage
}
