package command

import (
	"errors"
	"fmt"
	"net/http"

	"customizer/internal/models"
)

// CommandError represents a failure from the command core with HTTP context.
// Code is always one of the models.ErrorCode* taxonomy constants; nothing
// escapes the dispatcher boundary as an untyped error.
type CommandError struct {
	Code       string
	Message    string
	StatusCode int
	Err        error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure class is eligible for the retry
// queue. Only handler failures are; admission denials and payload rejections
// are terminal for the call.
func (e *CommandError) Retryable() bool {
	return e.Code == models.ErrorCodeRequestFailed
}

// Error constructors for the closed taxonomy.

func NewInvalidTokenError() *CommandError {
	return &CommandError{
		Code:       models.ErrorCodeInvalidToken,
		Message:    "anti-forgery token is missing, expired, or does not match the action",
		StatusCode: http.StatusForbidden,
	}
}

func NewInsufficientAuthorizationError(action string) *CommandError {
	return &CommandError{
		Code:       models.ErrorCodeInsufficientAuth,
		Message:    fmt.Sprintf("actor lacks the authorization required for action '%s'", action),
		StatusCode: http.StatusForbidden,
	}
}

func NewRateLimitedError() *CommandError {
	return &CommandError{
		Code:       models.ErrorCodeRateLimited,
		Message:    "rate limit exceeded for this action, try again in the next window",
		StatusCode: http.StatusTooManyRequests,
	}
}

func NewInvalidPayloadError(err error) *CommandError {
	return &CommandError{
		Code:       models.ErrorCodeInvalidPayload,
		Message:    "payload failed validation",
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

func NewUnknownActionError(action string) *CommandError {
	return &CommandError{
		Code:       models.ErrorCodeUnknownAction,
		Message:    fmt.Sprintf("no handler registered for action '%s'", action),
		StatusCode: http.StatusNotFound,
	}
}

func NewRequestFailedError(err error) *CommandError {
	return &CommandError{
		Code:       models.ErrorCodeRequestFailed,
		Message:    "request failed",
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewQueueFullError wraps ErrQueueFull so callers can match the sentinel
// with errors.Is while the taxonomy code travels with it.
func NewQueueFullError() *CommandError {
	return &CommandError{
		Code:       models.ErrorCodeQueueFull,
		Message:    "retry queue is at capacity",
		StatusCode: http.StatusServiceUnavailable,
		Err:        ErrQueueFull,
	}
}

func NewMaxRetriesReachedError(ticketID string) *CommandError {
	return &CommandError{
		Code:       models.ErrorCodeMaxRetriesReached,
		Message:    fmt.Sprintf("ticket %s exhausted its retry attempts", ticketID),
		StatusCode: http.StatusGone,
	}
}

// AsCommandError converts any error into a *CommandError. Errors already in
// the taxonomy pass through; anything else is wrapped as request_failed so
// the closed taxonomy holds at the dispatcher boundary.
func AsCommandError(err error) *CommandError {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce
	}
	return NewRequestFailedError(err)
}
