package errors

import (
	stderrors "errors"
	"fmt"
)

// Error is the structured error type for smartfolder.
// It provides rich context for error handling, logging, and API responses.
type Error struct {
	// Code is the unique error code (e.g., "ERR_201_PATH_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Path, Collaborator, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with Error.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new Error with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an Error from an existing error.
// The error's message becomes the Error message.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// PathError creates a path-related error (missing or unreadable path).
func PathError(message string, cause error) *Error {
	return New(ErrCodePathNotFound, message, cause)
}

// ExtractionError creates a text-extraction collaborator error.
func ExtractionError(message string, cause error) *Error {
	return New(ErrCodeExtractionFailed, message, cause)
}

// EmbeddingError creates an embedding collaborator error.
func EmbeddingError(message string, cause error) *Error {
	return New(ErrCodeEmbeddingFailed, message, cause)
}

// FaceDetectionError creates a face-detection collaborator error.
func FaceDetectionError(message string, cause error) *Error {
	return New(ErrCodeFaceDetectionFailed, message, cause)
}

// QueryError creates a request validation error.
func QueryError(message string) *Error {
	return New(ErrCodeQueryEmpty, message, nil)
}

// ConcurrentScanError signals a scan requested while one is running.
func ConcurrentScanError() *Error {
	return New(ErrCodeConcurrentScan, "a scan is already in progress", nil)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error chain contains an Error with Retryable set.
func IsRetryable(err error) bool {
	var se *Error
	if stderrors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// GetCode extracts the error code from the first Error in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var se *Error
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}

// GetCategory extracts the category from the first Error in the chain.
// Returns empty string if there is none.
func GetCategory(err error) Category {
	var se *Error
	if stderrors.As(err, &se) {
		return se.Category
	}
	return ""
}
