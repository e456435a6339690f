package errors

import (
	"fmt"
)

// WikidexError is the structured error type for the pipeline.
// It provides context for error handling, logging, and user presentation.
type WikidexError struct {
	// Code is the unique error code (e.g., "ERR_201_FILE_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *WikidexError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *WikidexError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *WikidexError) Is(target error) bool {
	if t, ok := target.(*WikidexError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *WikidexError) WithDetail(key, value string) *WikidexError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *WikidexError) WithSuggestion(suggestion string) *WikidexError {
	e.Suggestion = suggestion
	return e
}

// New creates a new WikidexError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *WikidexError {
	return &WikidexError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a WikidexError from an existing error.
// The error's message becomes the WikidexError message.
func Wrap(code string, err error) *WikidexError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *WikidexError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StorageError creates a store-related error.
func StorageError(message string, cause error) *WikidexError {
	return New(ErrCodeStoreFailed, message, cause)
}

// NetworkError creates a network-related error.
// Network errors are typically retryable.
func NetworkError(message string, cause error) *WikidexError {
	return New(ErrCodeNetworkTimeout, message, cause)
}

// ParseError creates a data parse error. Parse errors are recoverable:
// the offending record is skipped and processing continues.
func ParseError(message string, cause error) *WikidexError {
	return New(ErrCodeMalformedEntity, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *WikidexError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *WikidexError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a WikidexError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if we, ok := err.(*WikidexError); ok {
		return we.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors abort the current stage.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if we, ok := err.(*WikidexError); ok {
		return we.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a WikidexError.
// Returns empty string if not a WikidexError.
func GetCode(err error) string {
	if we, ok := err.(*WikidexError); ok {
		return we.Code
	}
	return ""
}

// GetCategory extracts the category from a WikidexError.
// Returns empty string if not a WikidexError.
func GetCategory(err error) Category {
	if we, ok := err.(*WikidexError); ok {
		return we.Category
	}
	return ""
}
