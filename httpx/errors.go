package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// APIError represents different types of REST client errors
type APIError interface {
	error
	Kind() ErrorKind
}

// ErrorKind defines the category of client error
type ErrorKind string

const (
	NetworkError      ErrorKind = "network"
	TimeoutError      ErrorKind = "timeout"
	NotFoundError     ErrorKind = "not_found"
	ForbiddenError    ErrorKind = "forbidden"
	UnauthorizedError ErrorKind = "unauthorized"
	ValidationError   ErrorKind = "validation"
	ServerError       ErrorKind = "server"
)

// networkError represents network-related errors
type networkError struct {
	message string
	wrapped error
}

func (e *networkError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("network error: %s: %v", e.message, e.wrapped)
	}
	return fmt.Sprintf("network error: %s", e.message)
}

func (e *networkError) Kind() ErrorKind {
	return NetworkError
}

func (e *networkError) Unwrap() error {
	return e.wrapped
}

// timeoutError represents timeout-related errors
type timeoutError struct {
	message string
	timeout time.Duration
}

func (e *timeoutError) Error() string {
	return fmt.Sprintf("timeout error: %s (timeout: %v)", e.message, e.timeout)
}

func (e *timeoutError) Kind() ErrorKind {
	return TimeoutError
}

// statusError represents errors derived from a non-2xx HTTP response.
type statusError struct {
	kind       ErrorKind
	statusCode int
	body       []byte
	// fields holds per-field messages decoded from a validation response body
	fields map[string][]string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s error (status: %d)", e.kind, e.statusCode)
}

func (e *statusError) Kind() ErrorKind {
	return e.kind
}

func (e *statusError) StatusCode() int {
	return e.statusCode
}

func (e *statusError) Body() []byte {
	return e.body
}

// Fields returns per-field validation messages, when the server provided them.
func (e *statusError) Fields() map[string][]string {
	return e.fields
}

// NewNetworkError creates a new network error
func NewNetworkError(message string, wrapped error) APIError {
	return &networkError{
		message: message,
		wrapped: wrapped,
	}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, timeout time.Duration) APIError {
	return &timeoutError{
		message: message,
		timeout: timeout,
	}
}

// NewStatusError classifies a non-2xx response into the error taxonomy.
// 400/409/422 bodies are decoded for per-field validation messages.
func NewStatusError(statusCode int, body []byte) APIError {
	e := &statusError{statusCode: statusCode, body: body}

	switch {
	case statusCode == 401:
		e.kind = UnauthorizedError
	case statusCode == 403:
		e.kind = ForbiddenError
	case statusCode == 404:
		e.kind = NotFoundError
	case statusCode >= 500:
		e.kind = ServerError
	default:
		e.kind = ValidationError
		e.fields = decodeFieldErrors(body)
	}

	return e
}

// decodeFieldErrors decodes the API's validation error shape:
// {"name": ["msg", ...], ...}. Non-conforming bodies yield nil.
func decodeFieldErrors(body []byte) map[string][]string {
	if len(body) == 0 {
		return nil
	}
	var fields map[string][]string
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil
	}
	return fields
}

// KindOf returns the error kind, or an empty kind for non-API errors.
func KindOf(err error) ErrorKind {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind()
	}
	return ""
}

// IsKind checks if an error belongs to a specific kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// IsNotFound reports whether err came from a 404 response.
func IsNotFound(err error) bool { return IsKind(err, NotFoundError) }

// IsForbidden reports whether err came from a 403 response.
func IsForbidden(err error) bool { return IsKind(err, ForbiddenError) }

// IsUnauthorized reports whether err came from a 401 response.
func IsUnauthorized(err error) bool { return IsKind(err, UnauthorizedError) }

// IsValidation reports whether err is a validation rejection of a write.
func IsValidation(err error) bool { return IsKind(err, ValidationError) }

// IsRetryable reports whether err is transient: network failures, timeouts,
// and 5xx responses. Everything else requires a user decision.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case NetworkError, TimeoutError, ServerError:
		return true
	default:
		return false
	}
}

// StatusCodeOf returns the HTTP status carried by err, or 0 when err did not
// originate from a response.
func StatusCodeOf(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.StatusCode()
	}
	return 0
}

// FieldsOf returns per-field validation messages carried by err, if any.
func FieldsOf(err error) map[string][]string {
	var se *statusError
	if errors.As(err, &se) {
		return se.Fields()
	}
	return nil
}

// IsSuccessStatus checks if a status code represents success (2xx)
func IsSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
