package apperrors

import (
	"errors"
	"fmt"
)

// Base errors, mapped to status codes by the error middleware
var (
	ErrResourceNotFound   = errors.New("resource not found")
	ErrConflict           = errors.New("conflict")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrValidationFailed   = errors.New("validation failed")
	ErrBadRequest         = errors.New("bad request")
	ErrStorage            = errors.New("storage failure")
	ErrUpstream           = errors.New("upstream failure")
	ErrRateLimited        = errors.New("rate limited")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrInvalidFormat      = errors.New("invalid token format")
)

// Chat errors
var (
	ErrChatNotFound     = fmt.Errorf("chat not found: %w", ErrResourceNotFound)
	ErrMessageNotFound  = fmt.Errorf("message not found: %w", ErrResourceNotFound)
	ErrReplyCycle       = fmt.Errorf("message cannot reply to itself: %w", ErrValidationFailed)
	ErrNotChatMember    = fmt.Errorf("user is not a member of this chat: %w", ErrPermissionDenied)
	ErrMembersRequired  = fmt.Errorf("members required: %w", ErrValidationFailed)
	ErrDuplicateMessage = fmt.Errorf("message id already used in chat: %w", ErrConflict)
)

// User errors
var (
	ErrUserNotFound       = fmt.Errorf("user not found: %w", ErrResourceNotFound)
	ErrEmailAlreadyExists = fmt.Errorf("email already exists: %w", ErrConflict)
)

// NewResourceNotFoundError creates a custom not-found error with a message
func NewResourceNotFoundError(message string) error {
	return &CustomError{
		Err:     ErrResourceNotFound,
		Message: message,
	}
}

// NewConflictError creates a custom conflict error with a message
func NewConflictError(message string) error {
	return &CustomError{
		Err:     ErrConflict,
		Message: message,
	}
}

// NewForbiddenError creates a custom permission error with a message
func NewForbiddenError(message string) error {
	return &CustomError{
		Err:     ErrPermissionDenied,
		Message: message,
	}
}

// NewValidationError creates a custom validation error for a single field
func NewValidationError(field, message string) error {
	return &CustomError{
		Err:     ErrValidationFailed,
		Message: message,
		Details: map[string]interface{}{"field": field},
	}
}

// NewStorageError wraps an attachment write failure
func NewStorageError(err error) error {
	return &CustomError{
		Err:     errors.Join(ErrStorage, err),
		Message: "failed to store attachment",
	}
}

// NewUpstreamError wraps an assistant backend failure
func NewUpstreamError(message string, err error) error {
	return &CustomError{
		Err:     errors.Join(ErrUpstream, err),
		Message: message,
	}
}

// Is reports whether err matches target or any of errList
func Is(err, target error, errList ...error) bool {
	if errors.Is(err, target) {
		return true
	}

	for _, e := range errList {
		if errors.Is(err, e) {
			return true
		}
	}

	return false
}

// CustomError represents application-specific errors with additional context
type CustomError struct {
	Err     error
	Message string
	Code    string
	Details map[string]interface{}
}

// Error implements error interface
func (e *CustomError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

// Unwrap implements errors.Unwrap interface
func (e *CustomError) Unwrap() error {
	return e.Err
}

// WithDetails adds context details to the error
func (e *CustomError) WithDetails(details map[string]interface{}) *CustomError {
	e.Details = details
	return e
}

// WithCode adds an error code
func (e *CustomError) WithCode(code string) *CustomError {
	e.Code = code
	return e
}
