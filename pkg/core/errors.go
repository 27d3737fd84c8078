package core

import (
	"fmt"
)

// Error is the canonical error surfaced by the engine.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes engine errors.
type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAuthentication ErrorType = "authentication_error"
	ErrNotFound       ErrorType = "not_found_error"
	ErrConnection     ErrorType = "connection_error"
	ErrSessionEnded   ErrorType = "session_ended_error"
	ErrUsageReport    ErrorType = "usage_report_error"
	ErrAIExchange     ErrorType = "ai_exchange_error"
	ErrCapture        ErrorType = "capture_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewAuthenticationError creates an authentication error (join credential rejected).
func NewAuthenticationError(message string) *Error {
	return &Error{
		Type:    ErrAuthentication,
		Message: message,
	}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *Error {
	return &Error{
		Type:    ErrNotFound,
		Message: message,
	}
}

// NewConnectionError creates a connection error (join rejected, transport dropped).
func NewConnectionError(message string) *Error {
	return &Error{
		Type:    ErrConnection,
		Message: message,
	}
}

// NewSessionEndedError creates a session ended error.
func NewSessionEndedError(message string) *Error {
	return &Error{
		Type:    ErrSessionEnded,
		Message: message,
	}
}

// NewUsageReportError creates a usage report error.
func NewUsageReportError(message string) *Error {
	return &Error{
		Type:    ErrUsageReport,
		Message: message,
	}
}

// NewAIExchangeError creates an AI exchange error for a failed request.
func NewAIExchangeError(message string) *Error {
	return &Error{
		Type:    ErrAIExchange,
		Message: message,
	}
}

// NewCaptureError creates a capture error (media or device failure).
func NewCaptureError(message string) *Error {
	return &Error{
		Type:    ErrCapture,
		Message: message,
	}
}

// IsRetryable reports whether the user may retry the failed action as-is.
// Session-ended and invalid-request failures will fail again identically.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrConnection, ErrUsageReport, ErrAIExchange, ErrCapture:
		return true
	default:
		return false
	}
}
