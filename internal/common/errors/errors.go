// Package errors provides standardized error handling for the conversation pipeline.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeNoMoreQuestions ErrorCode = "NO_MORE_QUESTIONS"

	ErrCodeRateLimitTimeout ErrorCode = "RATE_LIMIT_TIMEOUT"
	ErrCodeCatalogError     ErrorCode = "CATALOG_ERROR"
	ErrCodeSendFailure      ErrorCode = "SEND_FAILURE"

	// Programming invariant: an intent without a registered handler.
	ErrCodeHandlerNotRegistered ErrorCode = "HANDLER_NOT_REGISTERED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewNoMoreQuestionsError signals that every clarification constraint has been asked.
func NewNoMoreQuestionsError(conversationID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNoMoreQuestions,
		Message:   "Clarification constraints exhausted",
		Retryable: false,
		Metadata:  map[string]interface{}{"conversationId": conversationID},
		Timestamp: time.Now().UTC(),
	}
}

// NewRateLimitTimeoutError creates a soft throttling error for catalog calls.
func NewRateLimitTimeoutError(merchantID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRateLimitTimeout,
		Message:   "Rate limiter acquire timed out",
		Retryable: true,
		Metadata:  map[string]interface{}{"merchantId": merchantID},
		Timestamp: time.Now().UTC(),
	}
}

// NewCatalogError creates a recoverable commerce-provider error.
func NewCatalogError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCatalogError,
		Message:   fmt.Sprintf("Catalog operation '%s' failed", operation),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSendFailureError creates a send error; logged, never blocks the turn.
func NewSendFailureError(conversationID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSendFailure,
		Message:   "Outbound message delivery failed",
		Details:   err.Error(),
		Retryable: true,
		Metadata:  map[string]interface{}{"conversationId": conversationID},
		Timestamp: time.Now().UTC(),
	}
}

// NewHandlerNotRegisteredError marks a dispatch against an unregistered intent.
// Registration completeness is checked at startup, so seeing this at runtime
// means the intent set and the handler table diverged.
func NewHandlerNotRegisteredError(intent string) *StandardError {
	return &StandardError{
		Code:      ErrCodeHandlerNotRegistered,
		Message:   fmt.Sprintf("No handler registered for intent '%s'", intent),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// IsCode reports whether err is a StandardError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code == code
	}
	return false
}
