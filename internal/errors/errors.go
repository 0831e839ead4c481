package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
)

// CineError is the structured error type used across CineSphere.
type CineError struct {
	// Code is the unique error code (e.g., "ERR_207_CATALOG_INVALID").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context such as row numbers or field names.
	Details map[string]string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates the caller may repeat the operation unchanged.
	Retryable bool

	// Suggestion is an actionable hint for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *CineError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *CineError) Unwrap() error {
	return e.Cause
}

// Is matches another *CineError by code, so sentinels declared with New
// work with errors.Is regardless of message.
func (e *CineError) Is(target error) bool {
	if t, ok := target.(*CineError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *CineError) WithDetail(key, value string) *CineError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *CineError) WithSuggestion(suggestion string) *CineError {
	e.Suggestion = suggestion
	return e
}

// New creates a CineError. Category, severity and the retryable flag are
// derived from the code.
func New(code string, message string, cause error) *CineError {
	return &CineError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a CineError from an existing error, reusing its message.
func Wrap(code string, err error) *CineError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// MarkRetryable sets Retryable when the cause looks transient: a deadline,
// a network timeout, or a refused connection.
func (e *CineError) MarkRetryable() *CineError {
	if isTransient(e.Cause) {
		e.Retryable = true
		e.Severity = SeverityWarning
	}
	return e
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return stderrors.As(err, &opErr)
}

// IsRetryable reports whether any CineError in the chain is retryable.
func IsRetryable(err error) bool {
	var ce *CineError
	if stderrors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// IsFatal reports whether the error has fatal severity.
func IsFatal(err error) bool {
	var ce *CineError
	if stderrors.As(err, &ce) {
		return ce.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code, or "" if err is not a CineError.
func GetCode(err error) string {
	var ce *CineError
	if stderrors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
