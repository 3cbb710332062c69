package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound      = errors.New("resource not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrNotConfigured = errors.New("not configured")
	ErrInternal      = errors.New("internal error")
	ErrDatabase      = errors.New("database error")
	ErrExternal      = errors.New("external service error")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ConfigError marks a missing or unusable credential/setting. Services built
// with a ConfigError fail every call fast with the same message.
func ConfigError(message string) error {
	return NewAppError("CONFIG_ERROR", message, ErrNotConfigured)
}

// AuthError marks a missing or unrefreshable token for a provider.
func AuthError(message string, cause error) error {
	if cause == nil {
		cause = ErrUnauthorized
	}
	return NewAppError("AUTH_ERROR", message, cause)
}

// ExternalError marks a failed call to the mailbox, model or blob-store API.
// These are absorbed at the pipeline-item boundary, never thrown past it.
func ExternalError(message string, cause error) error {
	if cause == nil {
		cause = ErrExternal
	}
	return NewAppError("EXTERNAL_ERROR", message, cause)
}

func NotFoundError(message string) error {
	return NewAppError("NOT_FOUND", message, ErrNotFound)
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
