// Package errors defines the error types shared across apiwarden packages.
package errors

import (
	"errors"
	"fmt"
)

// Common error types used across the apiwarden library

var (
	// ErrAlreadyRegistered indicates a duplicate API registration without an explicit reset
	ErrAlreadyRegistered = errors.New("api already registered")

	// ErrNotRegistered indicates an operation referencing an unknown API name
	ErrNotRegistered = errors.New("api not registered")

	// ErrInvalidConfiguration indicates invalid configuration parameters
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrPersistenceUnavailable indicates a snapshot store I/O failure;
	// the limiter keeps operating in memory
	ErrPersistenceUnavailable = errors.New("persistence unavailable")

	// ErrRateLimited indicates that a request was rate limited
	ErrRateLimited = errors.New("rate limited")
)

// IsTemporary returns true if the error indicates a condition that might
// clear on its own without operator intervention
func IsTemporary(err error) bool {
	return errors.Is(err, ErrPersistenceUnavailable) || errors.Is(err, ErrRateLimited)
}

// IsNotRegistered reports whether err stems from an unknown API name
func IsNotRegistered(err error) bool {
	return errors.Is(err, ErrNotRegistered)
}

// ValidationError describes a configuration field that failed validation.
type ValidationError struct {
	Module string
	Field  string
	Value  interface{}
	Reason string
	Hint   string
}

// NewValidationError creates a ValidationError for the given module and field.
func NewValidationError(module, field string, value interface{}, reason string) *ValidationError {
	return &ValidationError{
		Module: module,
		Field:  field,
		Value:  value,
		Reason: reason,
	}
}

// WithHint attaches a remediation hint and returns the same error for chaining.
func (e *ValidationError) WithHint(hint string) *ValidationError {
	e.Hint = hint
	return e
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: invalid %s=%v (%s)", e.Module, e.Field, e.Value, e.Reason)
	if e.Hint != "" {
		msg += " - " + e.Hint
	}
	return msg
}

// Unwrap makes every ValidationError match ErrInvalidConfiguration.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfiguration
}

// IsValidationError returns true if err is or wraps a ValidationError
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// OperationError wraps a failure of a named operation with optional context.
type OperationError struct {
	Module    string
	Operation string
	Cause     error
	Context   string
}

// NewOperationError creates an OperationError for the given module and operation.
func NewOperationError(module, operation string, cause error) *OperationError {
	return &OperationError{
		Module:    module,
		Operation: operation,
		Cause:     cause,
	}
}

// WithContext attaches additional context and returns the same error for chaining.
func (e *OperationError) WithContext(ctx string) *OperationError {
	e.Context = ctx
	return e
}

func (e *OperationError) Error() string {
	msg := fmt.Sprintf("%s.%s failed: %v", e.Module, e.Operation, e.Cause)
	if e.Context != "" {
		msg += " (" + e.Context + ")"
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *OperationError) Unwrap() error {
	return e.Cause
}
