package utils

import (
	"context"
	"errors"
	"net/http"

	"github.com/sony/gobreaker/v2"
)

type AppError struct {
	Code    string
	Message string
	Origin  error // Original error that caused this error, if any
}

func (appErr *AppError) Error() string {
	if appErr.Origin != nil {
		return appErr.Message + ": " + appErr.Origin.Error()
	}
	return appErr.Message
}

func (appErr *AppError) Unwrap() error {
	return appErr.Origin
}

// Standard error codes for the application
const (
	ErrInvalidArgument = "INVALID_ARGUMENT"
	ErrUnauthenticated = "UNAUTHENTICATED"
	ErrForbidden       = "FORBIDDEN" // Authenticated but not the owner, or the target is locked
	ErrNotFound        = "NOT_FOUND"
	ErrConflict        = "CONFLICT"

	// Rate limiting
	ErrTooManyRequests = "TOO_MANY_REQUESTS"

	// Storage failures, open breaker and timeouts. Safe for the client to retry.
	ErrUnavailable = "SERVICE_UNAVAILABLE"

	ErrInternal = "INTERNAL"
)

// Error creation helper functions
func NewAppError(code string, message string, originalErr error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Origin:  originalErr,
	}
}

func NewInvalidArgumentError(message string) *AppError {
	return &AppError{Code: ErrInvalidArgument, Message: message}
}

func NewNotFoundError(message string) *AppError {
	return &AppError{Code: ErrNotFound, Message: message}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{Code: ErrForbidden, Message: message}
}

func NewUnauthenticatedError(message string) *AppError {
	return &AppError{Code: ErrUnauthenticated, Message: message}
}

func NewConflictError(message string) *AppError {
	return &AppError{Code: ErrConflict, Message: message}
}

// NewUnavailableError wraps a storage failure. Deadline and breaker errors keep
// their origin so they show up in the logs.
func NewUnavailableError(operation string, err error) *AppError {
	return &AppError{
		Code:    ErrUnavailable,
		Message: "Service temporarily unavailable, please retry (" + operation + ")",
		Origin:  err,
	}
}

// AsAppError finds the AppError in err's chain. Anything that is not already
// classified becomes ServiceUnavailable when it looks like a timeout or an open
// breaker, and Internal otherwise.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if IsTransient(err) {
		return NewUnavailableError("storage", err)
	}
	return NewAppError(ErrInternal, "An unexpected error occurred", err)
}

// IsTransient reports whether err is a timeout or breaker rejection.
func IsTransient(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Helper method to check if an error is of a specific type
func IsErrorCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Helper method to check if an error is related to authentication
func IsAuthError(err error) bool {
	return IsErrorCode(err, ErrUnauthenticated) || IsErrorCode(err, ErrForbidden)
}

// AppErrorToHTTPStatus converts an AppError code to an HTTP status code.
func AppErrorToHTTPStatus(errorCode string) int {
	switch errorCode {
	case ErrInvalidArgument:
		return http.StatusBadRequest
	case ErrUnauthenticated:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict:
		return http.StatusConflict
	case ErrTooManyRequests:
		return http.StatusTooManyRequests
	case ErrUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
