// Package models - response envelope and error code taxonomy.
// This file defines the uniform wrapper returned by every command dispatch.
//
// Envelope Design Principles:
// - One shape for every outcome, success or error
// - Machine-readable error codes from a closed taxonomy, never free-form
// - Request ID on every envelope for client-side polling and tracing
// - RFC3339 timestamps for international compatibility
// - Execution time reported in milliseconds for client display
package models

import (
	"time"
)

// Envelope is the uniform response wrapper for every dispatched command.
//
// Success envelopes carry Data and ExecutionTimeMS; error envelopes carry
// Error. RequestID and Timestamp are always present so a consumer can
// reconstruct the outcome without extra context.
type Envelope struct {
	Success         bool           `json:"success"`
	Data            map[string]any `json:"data,omitempty"`
	Error           *EnvelopeError `json:"error,omitempty"`
	RequestID       string         `json:"request_id"`
	Timestamp       time.Time      `json:"timestamp"`
	ExecutionTimeMS int64          `json:"execution_time_ms,omitempty"`
}

// EnvelopeError is the error branch of the envelope. Code is always one of
// the ErrorCode* constants below. Data optionally carries field-level detail
// (e.g. which payload fields failed sanitization, or a retry ticket id).
type EnvelopeError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Data    map[string]string `json:"data,omitempty"`
}

// Command error codes.
//
// This is a closed taxonomy: handlers raise typed failures and the
// dispatcher maps them to one of these codes. Nothing else may appear in an
// envelope's error code field.
//
//   - invalid_token, insufficient_authorization, rate_limited: admission
//     denials, terminal for the call, never retried
//   - invalid_payload: sanitization failure, never retried
//   - unknown_action: no handler registered for the action
//   - request_failed: handler failure, retried when the registration allows
//   - max_retries_reached: a retry ticket exhausted its attempts
//   - queue_full: ticket could not be persisted, retry queue at capacity
const (
	ErrorCodeInvalidToken      = "invalid_token"
	ErrorCodeInsufficientAuth  = "insufficient_authorization"
	ErrorCodeRateLimited       = "rate_limited"
	ErrorCodeInvalidPayload    = "invalid_payload"
	ErrorCodeUnknownAction     = "unknown_action"
	ErrorCodeRequestFailed     = "request_failed"
	ErrorCodeMaxRetriesReached = "max_retries_reached"
	ErrorCodeQueueFull         = "queue_full"
)

// NewSuccessEnvelope builds a success envelope with the handler's result and
// the measured execution time.
func NewSuccessEnvelope(requestID string, data map[string]any, took time.Duration) *Envelope {
	return &Envelope{
		Success:         true,
		Data:            data,
		RequestID:       requestID,
		Timestamp:       time.Now().UTC(),
		ExecutionTimeMS: took.Milliseconds(),
	}
}

// NewErrorEnvelope builds an error envelope for the given taxonomy code.
func NewErrorEnvelope(requestID, code, message string) *Envelope {
	return &Envelope{
		Success:   false,
		Error:     &EnvelopeError{Code: code, Message: message},
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	}
}

// WithErrorData attaches field-level detail to an error envelope. It is a
// no-op on success envelopes.
func (e *Envelope) WithErrorData(data map[string]string) *Envelope {
	if e.Error != nil {
		e.Error.Data = data
	}
	return e
}

// HealthCheckResponse reports service health for the /health endpoint.
type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
	Metrics    map[string]any             `json:"metrics,omitempty"`
}

type ComponentHealth struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Health status constants.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDegraded  = "degraded"
)

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
	}
}

func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
}
