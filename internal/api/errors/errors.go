// Package errors defines the wire format for API errors.
package errors

import (
	"fmt"
	"net/http"
)

// ErrorType defines the type of error
type ErrorType string

const (
	// ErrorTypeValidation represents a validation error
	ErrorTypeValidation ErrorType = "validation"

	// ErrorTypeNotFound represents a not found error
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeConflict represents a conflict error
	ErrorTypeConflict ErrorType = "conflict"

	// ErrorTypeUpstream represents a provider or metadata backend failure
	ErrorTypeUpstream ErrorType = "upstream"

	// ErrorTypeInternal represents an internal server error
	ErrorTypeInternal ErrorType = "internal"
)

// APIError represents a standardized API error
type APIError struct {
	Type     ErrorType `json:"type"`
	Code     string    `json:"code"`
	Message  string    `json:"message"`
	Details  any       `json:"details,omitempty"`
	HTTPCode int       `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Code, e.Message)
}

// WithDetails adds details to the error
func (e *APIError) WithDetails(details any) *APIError {
	e.Details = details
	return e
}

// ValidationError creates a new validation error
func ValidationError(code string, message string) *APIError {
	return &APIError{
		Type:     ErrorTypeValidation,
		Code:     code,
		Message:  message,
		HTTPCode: http.StatusBadRequest,
	}
}

// NotFoundError creates a new not found error
func NotFoundError(code string, message string) *APIError {
	return &APIError{
		Type:     ErrorTypeNotFound,
		Code:     code,
		Message:  message,
		HTTPCode: http.StatusNotFound,
	}
}

// ConflictError creates a new conflict error
func ConflictError(code string, message string) *APIError {
	return &APIError{
		Type:     ErrorTypeConflict,
		Code:     code,
		Message:  message,
		HTTPCode: http.StatusConflict,
	}
}

// UpstreamError creates a new upstream failure error
func UpstreamError(code string, message string) *APIError {
	return &APIError{
		Type:     ErrorTypeUpstream,
		Code:     code,
		Message:  message,
		HTTPCode: http.StatusBadGateway,
	}
}

// InternalError creates a new internal server error
func InternalError(code string, message string) *APIError {
	return &APIError{
		Type:     ErrorTypeInternal,
		Code:     code,
		Message:  message,
		HTTPCode: http.StatusInternalServerError,
	}
}

// FromError creates a new API error from a Go error
func FromError(err error) *APIError {
	if err == nil {
		return nil
	}

	if apiErr, ok := err.(*APIError); ok {
		return apiErr
	}

	return InternalError("internal_error", err.Error())
}
