// Package errors defines the application error taxonomy and its reporting helpers.
package errors

import (
	stderrors "errors"
	"fmt"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

const (
	CodeValidation = "E100"
	CodeStore      = "E200"
	CodeTransport  = "E300"
	CodeState      = "E400"
	CodeRateLimit  = "E500"
	CodeInternal   = "E900"
)

// AppError carries a stable code and severity next to the underlying cause.
type AppError struct {
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

func (e *AppError) Cause() error {
	return e.Unwrap()
}

func NewValidationError(msg string) *AppError {
	return &AppError{
		Code:        CodeValidation,
		Message:     msg,
		UserMessage: fmt.Sprintf("Invalid input. %s", msg),
		Severity:    SeverityLow,
		Retryable:   false,
	}
}

// NewStoreError wraps a session store failure. Store errors are retryable.
func NewStoreError(op string, cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        CodeStore,
		Message:     fmt.Sprintf("session store %s: %s", op, underlyingMsg),
		UserMessage: "Temporary problem, please try again later",
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

// NewTransportError wraps a failed call to the chat provider.
func NewTransportError(op string, cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        CodeTransport,
		Message:     fmt.Sprintf("transport %s: %s", op, underlyingMsg),
		UserMessage: "Service is temporarily unavailable",
		Severity:    SeverityMedium,
		Retryable:   false,
		cause:       cause,
	}
}

func NewStateError(msg string) *AppError {
	return &AppError{
		Code:        CodeState,
		Message:     msg,
		UserMessage: "This action is not available right now",
		Severity:    SeverityMedium,
		Retryable:   false,
	}
}

func NewRateLimitError(retryAfter int) *AppError {
	return &AppError{
		Code:        CodeRateLimit,
		Message:     fmt.Sprintf("rate limit exceeded: retry after %d seconds", retryAfter),
		UserMessage: fmt.Sprintf("Too many requests. Try again in %d seconds", retryAfter),
		Severity:    SeverityLow,
		Retryable:   false,
	}
}

// Classify returns the AppError in err's chain, or describes err as an
// internal failure. It returns nil for a nil err.
func Classify(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) && appErr != nil {
		return appErr
	}

	return &AppError{
		Code:        CodeInternal,
		Message:     err.Error(),
		UserMessage: defaultUserMessage,
		Severity:    SeverityHigh,
		cause:       err,
	}
}
