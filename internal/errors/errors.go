// Package errors provides a lightweight structured error type (ForgeError)
// for category-based classification in HTTP adapters and the CLI.
package errors

import (
	"fmt"
)

// ErrorCategory represents the category of an osforge error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"
	CategoryNotFound   ErrorCategory = "not_found"

	// Build and pipeline errors
	CategoryStage     ErrorCategory = "stage"
	CategoryIntegrity ErrorCategory = "integrity"
	CategoryToolchain ErrorCategory = "toolchain"

	// Runtime and infrastructure errors
	CategoryStorage  ErrorCategory = "storage"
	CategoryDaemon   ErrorCategory = "daemon"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// ContextFields carries structured context for ForgeError
type ContextFields map[string]any

// ForgeError is a structured error with category, severity, and context
type ForgeError struct {
	Category ErrorCategory `json:"category"`
	Severity ErrorSeverity `json:"severity"`
	Message  string        `json:"message"`
	Cause    error         `json:"cause,omitempty"`
	Context  ContextFields `json:"context,omitempty"`
}

// Error implements the error interface
func (e *ForgeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *ForgeError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *ForgeError) WithContext(key string, value any) *ForgeError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new ForgeError
func New(category ErrorCategory, severity ErrorSeverity, message string) *ForgeError {
	return &ForgeError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new ForgeError that wraps an existing error
func Wrap(err error, category ErrorCategory, message string) *ForgeError {
	return &ForgeError{
		Category: category,
		Severity: SeverityError,
		Message:  message,
		Cause:    err,
	}
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if fe, ok := err.(*ForgeError); ok {
		return fe.Category == category
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal if not a ForgeError
func GetCategory(err error) ErrorCategory {
	if fe, ok := err.(*ForgeError); ok {
		return fe.Category
	}
	return CategoryInternal
}

// ValidationError creates a new validation error (400 Bad Request)
func ValidationError(message string) *ForgeError {
	return &ForgeError{
		Category: CategoryValidation,
		Severity: SeverityWarning,
		Message:  message,
	}
}

// NotFoundError creates a new not-found error (404)
func NotFoundError(message string) *ForgeError {
	return &ForgeError{
		Category: CategoryNotFound,
		Severity: SeverityWarning,
		Message:  message,
	}
}

// StageError creates a new pipeline stage error
func StageError(message string) *ForgeError {
	return &ForgeError{
		Category: CategoryStage,
		Severity: SeverityError,
		Message:  message,
	}
}

// IntegrityError creates a new artifact integrity error
func IntegrityError(message string) *ForgeError {
	return &ForgeError{
		Category: CategoryIntegrity,
		Severity: SeverityError,
		Message:  message,
	}
}

// DaemonError creates a new daemon error (service unavailable)
func DaemonError(message string) *ForgeError {
	return &ForgeError{
		Category: CategoryDaemon,
		Severity: SeverityError,
		Message:  message,
	}
}
