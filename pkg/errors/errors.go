// Package errors provides a structured application error carrying a
// stable code for API boundaries, adapted from the gateway's original
// AppError. It has no mapping from PRRE's provider.ErrorKind.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable, API-facing error classification.
type ErrorCode string

const (
	CodeInvalidInput   ErrorCode = "INVALID_INPUT"
	CodeNotFound       ErrorCode = "NOT_FOUND"
	CodeUnauthorized   ErrorCode = "UNAUTHORIZED"
	CodeInternal       ErrorCode = "INTERNAL_ERROR"
	CodeServiceUnavail ErrorCode = "SERVICE_UNAVAILABLE"
)

// AppError is the error type returned across package boundaries.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewInvalidInputError(message string) *AppError {
	return &AppError{Code: CodeInvalidInput, Message: message}
}

func NewNotFoundError(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message}
}

func NewInternalError(message string) *AppError {
	return &AppError{Code: CodeInternal, Message: message}
}

func NewInternalErrorWithCause(message string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: message, Err: cause}
}

func NewServiceUnavailableError(message string, cause error) *AppError {
	return &AppError{Code: CodeServiceUnavail, Message: message, Err: cause}
}

// IsNotFound reports whether err is an AppError with CodeNotFound.
func IsNotFound(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == CodeNotFound
	}
	return false
}

// IsInvalidInput reports whether err is an AppError with CodeInvalidInput.
func IsInvalidInput(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == CodeInvalidInput
	}
	return false
}
