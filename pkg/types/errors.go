package types

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeConflict       ErrorType = "conflict"
	ErrorTypeTransition     ErrorType = "transition"
	ErrorTypeStore          ErrorType = "store"
	ErrorTypeInternal       ErrorType = "internal"
)

// ClinicError represents a structured error raised by the front-desk core
type ClinicError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *ClinicError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *ClinicError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new validation error
func NewValidationError(code, message string, details map[string]interface{}) *ClinicError {
	return &ClinicError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewAuthenticationError creates a new authentication error
func NewAuthenticationError(code, message string) *ClinicError {
	return &ClinicError{
		Type:    ErrorTypeAuthentication,
		Code:    code,
		Message: message,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(code, message string) *ClinicError {
	return &ClinicError{
		Type:    ErrorTypeNotFound,
		Code:    code,
		Message: message,
	}
}

// NewConflictError creates a new conflict error. The row store raises it
// when a unique key is violated; nothing has been written in that case.
func NewConflictError(code, message string, cause error) *ClinicError {
	return &ClinicError{
		Type:    ErrorTypeConflict,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewTransitionError creates an error for a queue status change the
// lifecycle does not allow
func NewTransitionError(from, to QueueStatus) *ClinicError {
	return &ClinicError{
		Type:    ErrorTypeTransition,
		Code:    ErrCodeInvalidTransition,
		Message: fmt.Sprintf("cannot move queue entry from %s to %s", from, to),
		Details: map[string]interface{}{"from": string(from), "to": string(to)},
	}
}

// NewStoreError wraps a row store failure without altering it
func NewStoreError(op, table string, cause error) *ClinicError {
	return &ClinicError{
		Type:    ErrorTypeStore,
		Code:    ErrCodeStoreFailure,
		Message: fmt.Sprintf("%s %s failed", op, table),
		Cause:   cause,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(code, message string, cause error) *ClinicError {
	return &ClinicError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ErrorTypeOf returns the ErrorType of the first ClinicError in err's chain,
// or ErrorTypeInternal when there is none
func ErrorTypeOf(err error) ErrorType {
	var ce *ClinicError
	if errors.As(err, &ce) {
		return ce.Type
	}
	return ErrorTypeInternal
}

func IsValidation(err error) bool { return err != nil && ErrorTypeOf(err) == ErrorTypeValidation }
func IsNotFound(err error) bool   { return err != nil && ErrorTypeOf(err) == ErrorTypeNotFound }
func IsConflict(err error) bool   { return err != nil && ErrorTypeOf(err) == ErrorTypeConflict }
func IsTransition(err error) bool { return err != nil && ErrorTypeOf(err) == ErrorTypeTransition }
func IsStoreError(err error) bool { return err != nil && ErrorTypeOf(err) == ErrorTypeStore }

// Common error codes
const (
	ErrCodeInvalidInput         = "INVALID_INPUT"
	ErrCodeMissingPatient       = "MISSING_PATIENT"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeConflict             = "CONFLICT"
	ErrCodeRowChanged           = "ROW_CHANGED"
	ErrCodeDuplicateTicket      = "DUPLICATE_TICKET"
	ErrCodeInvalidTransition    = "INVALID_TRANSITION"
	ErrCodeStoreFailure         = "STORE_FAILURE"
	ErrCodeInternalError        = "INTERNAL_ERROR"
	ErrCodeValidationFailed     = "VALIDATION_FAILED"
	ErrCodeAuthenticationFailed = "AUTHENTICATION_FAILED"
)
