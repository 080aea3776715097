package errors

import "fmt"

type httpError struct {
	message string
}

func (e *httpError) Error() string {
	return e.message
}

// ValidationError is returned for malformed admin input (HTTP 400)
type ValidationError struct {
	httpError
}

func NewValidationError(message string) *ValidationError {
	return &ValidationError{httpError{message: message}}
}

func NewValidationErrorf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{httpError{message: fmt.Sprintf(format, args...)}}
}

// UnauthorizedError is returned for a missing or wrong admin token (HTTP 401)
type UnauthorizedError struct {
	httpError
}

func NewUnauthorizedError(message string) *UnauthorizedError {
	return &UnauthorizedError{httpError{message: message}}
}

// NotFoundError represents a not found error (HTTP 404)
type NotFoundError struct {
	httpError
}

func NewNotFoundError(message string) *NotFoundError {
	return &NotFoundError{httpError{message: message}}
}

// ConflictError represents a conflict error (HTTP 409)
type ConflictError struct {
	httpError
}

func NewConflictErrorf(format string, args ...interface{}) *ConflictError {
	return &ConflictError{httpError{message: fmt.Sprintf(format, args...)}}
}

// TooManyRequestsError is returned while a client is locked out (HTTP 429)
type TooManyRequestsError struct {
	httpError
	RetryAfterSeconds int
}

func NewTooManyRequestsError(message string, retryAfterSeconds int) *TooManyRequestsError {
	return &TooManyRequestsError{httpError: httpError{message: message}, RetryAfterSeconds: retryAfterSeconds}
}

// InternalError represents an internal server error (HTTP 500)
type InternalError struct {
	httpError
}

func NewInternalError(message string) *InternalError {
	return &InternalError{httpError{message: message}}
}

func NewInternalErrorf(format string, args ...interface{}) *InternalError {
	return &InternalError{httpError{message: fmt.Sprintf(format, args...)}}
}

// ServiceUnavailableError represents a service unavailable error (HTTP 503)
type ServiceUnavailableError struct {
	httpError
}

func NewServiceUnavailableError(message string) *ServiceUnavailableError {
	return &ServiceUnavailableError{httpError{message: message}}
}
