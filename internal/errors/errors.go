// Package errors provides structured error handling with context propagation and HTTP status code mapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of error for metrics and response formatting.
type ErrorType string

const (
	// TypeAcquisition indicates an upstream data source failure (HTTP 502)
	TypeAcquisition ErrorType = "acquisition"
	// TypeInsufficientData indicates too few observations for an estimator (HTTP 422)
	TypeInsufficientData ErrorType = "insufficient_data"
	// TypeConfig indicates invalid configuration or input (HTTP 400)
	TypeConfig ErrorType = "config"
	// TypeMissingUpstream indicates a required artifact has not been produced yet (HTTP 404)
	TypeMissingUpstream ErrorType = "missing_upstream"
	// TypeInternal indicates an unexpected pipeline error (HTTP 500)
	TypeInternal ErrorType = "internal"
)

// Error represents a structured error with type, message, and context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the appropriate HTTP status code for this error type.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeAcquisition:
		return http.StatusBadGateway
	case TypeInsufficientData:
		return http.StatusUnprocessableEntity
	case TypeConfig:
		return http.StatusBadRequest
	case TypeMissingUpstream:
		return http.StatusNotFound
	case TypeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// AcquisitionError creates a new upstream acquisition error (HTTP 502).
func AcquisitionError(message string, cause error) *Error {
	return &Error{
		Type:    TypeAcquisition,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// InsufficientDataError creates a new insufficient-data error (HTTP 422).
func InsufficientDataError(message string) *Error {
	return &Error{
		Type:    TypeInsufficientData,
		Message: message,
		Context: make(map[string]any),
	}
}

// ConfigError creates a new configuration error (HTTP 400).
func ConfigError(message string) *Error {
	return &Error{
		Type:    TypeConfig,
		Message: message,
		Context: make(map[string]any),
	}
}

// MissingUpstreamError creates a new missing-artifact error (HTTP 404).
// The path and the workflow that produces it end up in the error context so
// the operator knows which step to run first.
func MissingUpstreamError(path, producedBy string) *Error {
	e := &Error{
		Type:    TypeMissingUpstream,
		Message: "required artifact is missing",
		Context: make(map[string]any),
	}
	return e.WithField("path", path).WithField("produced_by", producedBy)
}

// InternalError creates a new internal error (HTTP 500).
func InternalError(message string, cause error) *Error {
	return &Error{
		Type:    TypeInternal,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// WithContext adds context fields to the error (chainable).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithField is an alias for WithContext (chainable).
func (e *Error) WithField(key string, value any) *Error {
	return e.WithContext(key, value)
}

// WithComponent tags the error with the pipeline component it came from (chainable).
func (e *Error) WithComponent(component string) *Error {
	return e.WithContext("component", component)
}

// WithCause attaches an underlying cause so errors.Is keeps matching
// sentinel errors through the structured wrapper (chainable).
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// ErrorResponse represents the JSON structure sent to clients.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Type    ErrorType      `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

// ToResponse converts an Error to an ErrorResponse for JSON serialization.
func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:   e.Message,
		Type:    e.Type,
		Context: e.Context,
	}
}

// AsStructuredError converts any error into a structured Error.
// If err is already an *Error, returns it unchanged.
// Otherwise wraps it as an internal error.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	return InternalError("internal error", err)
}

// TypeOf reports the category of err, or TypeInternal for plain errors.
func TypeOf(err error) ErrorType {
	if err == nil {
		return ""
	}
	return AsStructuredError(err).Type
}
