package common

import (
	"errors"
	"fmt"
)

// ValidationError is returned for inputs rejected before any job state is
// created (bad extension, oversized payload, unreadable content).
type ValidationError struct {
	Code    string
	Message string
	Cause   error
}

func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

func NewValidationError(code, message string, cause error) *ValidationError {
	return &ValidationError{Code: code, Message: message, Cause: cause}
}

// Validation error codes.
const (
	CodeUnsupportedExtension = "UNSUPPORTED_EXTENSION"
	CodeFileTooLarge         = "FILE_TOO_LARGE"
	CodeEmptyFile            = "EMPTY_FILE"
	CodeTooManyTransactions  = "TOO_MANY_TRANSACTIONS"
	CodeTooManyPages         = "TOO_MANY_PAGES"
	CodeUnreadableContent    = "UNREADABLE_CONTENT"
)

// Common application errors.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrExtractionFailed  = errors.New("text extraction failed")
	ErrStructuringFailed = errors.New("structuring failed")
	// ErrNoTransactions marks a provider response that parsed but yielded
	// zero valid candidates; recoverable, distinct from a hard provider error.
	ErrNoTransactions = errors.New("no valid transactions in response")
	ErrDatabase       = errors.New("database error")
)

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsValidationError reports whether err carries a ValidationError anywhere
// in its chain.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
