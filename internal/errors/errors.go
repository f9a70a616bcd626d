// Package errors provides a lightweight structured error type (PrestoError)
// for category-based classification of publish failures and CLI exit codes.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory represents the category of a Presto error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// Publish pipeline errors
	CategoryCache      ErrorCategory = "cache"
	CategoryDocument   ErrorCategory = "document"
	CategoryDirective  ErrorCategory = "directive"
	CategoryFileSystem ErrorCategory = "filesystem"

	// Runtime and infrastructure errors
	CategoryRuntime  ErrorCategory = "runtime"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops the run before any file is processed
	SeverityError   ErrorSeverity = "error"   // Isolated to one document or item
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// PrestoError is a structured error with category, severity and context
type PrestoError struct {
	Category ErrorCategory `json:"category"`
	Severity ErrorSeverity `json:"severity"`
	Message  string        `json:"message"`
	Cause    error         `json:"cause,omitempty"`
	Context  ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for PrestoError
type ContextFields map[string]any

// Error implements the error interface
func (e *PrestoError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *PrestoError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *PrestoError) WithContext(key string, value any) *PrestoError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new PrestoError
func New(category ErrorCategory, severity ErrorSeverity, message string) *PrestoError {
	return &PrestoError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new PrestoError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *PrestoError {
	return &PrestoError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// As reports whether err (or anything it wraps) is a PrestoError.
func As(err error) (*PrestoError, bool) {
	var pe *PrestoError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if pe, ok := As(err); ok {
		return pe.Category == category
	}
	return false
}

// IsFatal reports whether the error must abort the run.
func IsFatal(err error) bool {
	if pe, ok := As(err); ok {
		return pe.Severity == SeverityFatal
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal if not a PrestoError
func GetCategory(err error) ErrorCategory {
	if pe, ok := As(err); ok {
		return pe.Category
	}
	return CategoryInternal
}
