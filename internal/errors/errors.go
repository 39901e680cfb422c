// Package errors provides structured error types for tripload.
// All errors include a category, code and message so the driver can
// report what failed without string matching.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryConfig   ErrorCategory = "CONFIG"
	ErrCategoryStore    ErrorCategory = "STORE"
	ErrCategoryInput    ErrorCategory = "INPUT"
	ErrCategoryOutput   ErrorCategory = "OUTPUT"
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Config codes
	CodeInvalidConfig = "INVALID_CONFIG"

	// Store codes
	CodeConnectFailed     = "CONNECT_FAILED"
	CodeCreateTableFailed = "CREATE_TABLE_FAILED"
	CodeWriteFailed       = "WRITE_FAILED"

	// Input codes
	CodeOpenFailed   = "OPEN_FAILED"
	CodeMalformedRow = "MALFORMED_ROW"
	CodeReadFailed   = "READ_FAILED"

	// Output codes
	CodeWriteResultFailed = "WRITE_RESULT_FAILED"
	CodePublishFailed     = "PUBLISH_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// LoadError is the structured error type used throughout the loader.
type LoadError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error returns a formatted error string.
func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *LoadError) Is(target error) bool {
	var t *LoadError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new LoadError.
func New(category ErrorCategory, code, message string) *LoadError {
	return &LoadError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// Wrap creates a new LoadError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *LoadError {
	return &LoadError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *LoadError) WithDetails(details map[string]interface{}) *LoadError {
	cp := *e
	cp.Details = details
	return &cp
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a LoadError.
func GetCategory(err error) ErrorCategory {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a LoadError.
func GetCode(err error) string {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// Convenience constructors for common errors.

func NewConfigError(message string) *LoadError {
	return New(ErrCategoryConfig, CodeInvalidConfig, message)
}

func NewStoreError(code, message string, cause error) *LoadError {
	return Wrap(ErrCategoryStore, code, message, cause)
}

func NewInputError(code, message string, cause error) *LoadError {
	return Wrap(ErrCategoryInput, code, message, cause)
}

func NewOutputError(code, message string, cause error) *LoadError {
	return Wrap(ErrCategoryOutput, code, message, cause)
}

func NewInternalError(message string, cause error) *LoadError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
