// Package errors provides the structured error type shared by the queue, the
// pipeline stages and the HTTP surface.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeQueueUnavailable   ErrorCode = "QUEUE_UNAVAILABLE"
	ErrCodeMalformedJob       ErrorCode = "MALFORMED_JOB"
	ErrCodeContextFetchFailed ErrorCode = "CONTEXT_FETCH_FAILED"

	ErrCodeGenerationFailed  ErrorCode = "GENERATION_FAILED"
	ErrCodeGenerationTimeout ErrorCode = "GENERATION_TIMEOUT"

	ErrCodeValidationDenied    ErrorCode = "VALIDATION_DENIED"
	ErrCodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"

	ErrCodePersistenceFailed ErrorCode = "PERSISTENCE_FAILED"
	ErrCodeArchiveFailed     ErrorCode = "ARCHIVE_FAILED"

	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeInternal               ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying error so errors.Is keeps working on
// package sentinels.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata returns e with key set in its metadata.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message string, retryable bool, cause error) *StandardError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// ==========================
// 2. Error Constructors
// ==========================

// NewQueueUnavailableError wraps a backing store failure on enqueue or dequeue.
func NewQueueUnavailableError(err error) *StandardError {
	return newError(ErrCodeQueueUnavailable, "Job queue is unavailable", true, err)
}

// NewMalformedJobError reports a payload that does not match the job wire format.
func NewMalformedJobError(details string) *StandardError {
	e := newError(ErrCodeMalformedJob, "Job payload is malformed", false, nil)
	e.Details = details
	return e
}

func NewContextFetchFailedError(err error) *StandardError {
	return newError(ErrCodeContextFetchFailed, "Failed to load conversation context", true, err)
}

func NewGenerationFailedError(err error) *StandardError {
	return newError(ErrCodeGenerationFailed, "Response generation failed", true, err)
}

func NewGenerationTimeoutError(err error) *StandardError {
	return newError(ErrCodeGenerationTimeout, "Response generation timed out", true, err)
}

// NewValidationDeniedError is a business outcome, not a fault. The reason is
// one of the subscription reason codes.
func NewValidationDeniedError(reason, message string) *StandardError {
	e := newError(ErrCodeValidationDenied, message, false, nil)
	e.Details = "reason: " + reason
	return e.WithMetadata("reason", reason)
}

func NewProviderUnavailableError(provider string, err error) *StandardError {
	return newError(ErrCodeProviderUnavailable, "Billing provider is unavailable", true, err).
		WithMetadata("provider", provider)
}

func NewPersistenceFailedError(err error) *StandardError {
	return newError(ErrCodePersistenceFailed, "Failed to persist conversation turn", true, err)
}

func NewArchiveFailedError(err error) *StandardError {
	return newError(ErrCodeArchiveFailed, "Failed to archive reading", true, err)
}

func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Failed to send notification", true, err).
		WithMetadata("channel", channel)
}

// ==========================
// 3. Classification
// ==========================

// AsStandardError returns err as a *StandardError, wrapping unknown errors as
// INTERNAL_ERROR.
func AsStandardError(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	return newError(ErrCodeInternal, "Unexpected error", false, err)
}

// IsInfrastructure reports whether err points at a broken backing service
// rather than a bad job. These count toward the readiness threshold.
func IsInfrastructure(err error) bool {
	stdErr := AsStandardError(err)
	if stdErr == nil {
		return false
	}
	switch stdErr.Code {
	case ErrCodeQueueUnavailable, ErrCodePersistenceFailed, ErrCodeContextFetchFailed:
		return true
	default:
		return false
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "QUEUE") || code == ErrCodeMalformedJob:
		return "QUEUE"
	case strings.HasPrefix(codeStr, "GENERATION"):
		return "AI"
	case code == ErrCodeValidationDenied || code == ErrCodeProviderUnavailable:
		return "BILLING"
	case code == ErrCodePersistenceFailed || code == ErrCodeContextFetchFailed:
		return "DATABASE"
	case code == ErrCodeArchiveFailed:
		return "SEARCH"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	default:
		return "OTHER"
	}
}
