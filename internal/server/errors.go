package server

import (
	"errors"
	"fmt"

	"github.com/edulink/classchat/internal/database"
)

type ErrorCode string

const (
	CodeAuth          ErrorCode = "AUTH"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeConnection    ErrorCode = "CONNECTION"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeUnauthorized  ErrorCode = "UNAUTHORIZED"
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeLimitExceeded ErrorCode = "LIMIT_EXCEEDED"
	CodeRateLimited   ErrorCode = "RATE_LIMITED"
	CodeInternal      ErrorCode = "INTERNAL"
)

// ChatError is the failure form surfaced to the triggering connection. It is
// never broadcast.
type ChatError struct {
	Code         ErrorCode `json:"code"`
	Message      string    `json:"message"`
	RetryAfterMs int64     `json:"retry_after_ms,omitempty"`
	Err          error     `json:"-"`
}

func (e *ChatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Err.Error())
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ChatError) Unwrap() error {
	return e.Err
}

func NewAuthError(msg string) *ChatError {
	return &ChatError{Code: CodeAuth, Message: msg}
}

func NewValidationError(msg string) *ChatError {
	return &ChatError{Code: CodeValidation, Message: msg}
}

func NewUnauthorizedError(msg string) *ChatError {
	return &ChatError{Code: CodeUnauthorized, Message: msg}
}

func NewNotFoundError(msg string) *ChatError {
	return &ChatError{Code: CodeNotFound, Message: msg}
}

func NewLimitExceededError(msg string) *ChatError {
	return &ChatError{Code: CodeLimitExceeded, Message: msg}
}

func NewRateLimitedError(retryAfterMs int64) *ChatError {
	return &ChatError{
		Code:         CodeRateLimited,
		Message:      "rate limit exceeded",
		RetryAfterMs: retryAfterMs,
	}
}

func NewConfigurationError(err error) *ChatError {
	return &ChatError{Code: CodeConfiguration, Message: "tenant not configured", Err: err}
}

func NewConnectionError(err error) *ChatError {
	return &ChatError{Code: CodeConnection, Message: "storage unreachable", Err: err}
}

func NewInternalError(err error) *ChatError {
	return &ChatError{Code: CodeInternal, Message: "internal error", Err: err}
}

// asChatError maps storage-layer sentinels onto the error taxonomy so that
// every ack carries a stable code.
func asChatError(err error) *ChatError {
	var chatErr *ChatError
	if errors.As(err, &chatErr) {
		return chatErr
	}

	switch {
	case errors.Is(err, database.ErrNotFound):
		return NewNotFoundError("message not found")
	case errors.Is(err, database.ErrPinLimit):
		return NewLimitExceededError("pin limit reached")
	case errors.Is(err, database.ErrTenantNotConfigured):
		return NewConfigurationError(err)
	case errors.Is(err, database.ErrTenantUnreachable):
		return NewConnectionError(err)
	default:
		return NewInternalError(err)
	}
}
