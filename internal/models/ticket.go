package models

import (
	"time"

	"github.com/google/uuid"
)

// RetryTicket is the persisted record of one retryable failed command
// awaiting re-attempt.
//
// Lifecycle:
//   - created by the dispatcher when a retry-enabled handler fails
//   - mutated only by the queue processor (attempt count and backoff)
//   - removed on success, on attempt exhaustion, or by the retention sweep
//
// Invariants: Attempts never exceeds the configured maximum, and NextRetry
// is non-decreasing across successive failures of the same ticket.
type RetryTicket struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	Payload   map[string]any `json:"payload"`
	Attempts  int            `json:"attempts"`
	NextRetry time.Time      `json:"next_retry"`
	Created   time.Time      `json:"created"`
}

// NewRetryTicket creates a ticket for a failed command. The payload snapshot
// must already be sanitized; the queue processor replays it as-is. The first
// re-attempt is scheduled at firstRetry.
func NewRetryTicket(action string, payload map[string]any, now, firstRetry time.Time) *RetryTicket {
	return &RetryTicket{
		ID:        uuid.New().String(),
		Action:    action,
		Payload:   payload,
		Attempts:  0,
		NextRetry: firstRetry,
		Created:   now,
	}
}

// Due reports whether the ticket is eligible for a re-attempt at the given
// sweep time.
func (t *RetryTicket) Due(now time.Time) bool {
	return !t.NextRetry.After(now)
}

// Exhausted reports whether the ticket has spent all its attempts.
func (t *RetryTicket) Exhausted(maxRetries int) bool {
	return t.Attempts >= maxRetries
}

// Defer records a failed re-attempt: it increments the attempt count and
// schedules the next retry with exponential backoff, doubling the base delay
// per attempt up to the ceiling.
func (t *RetryTicket) Defer(now time.Time, baseDelay, maxDelay time.Duration) {
	t.Attempts++
	delay := baseDelay << uint(t.Attempts)
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}
	t.NextRetry = now.Add(delay)
}

// Expired reports whether the ticket is older than the retention horizon,
// regardless of attempt count.
func (t *RetryTicket) Expired(now time.Time, retention time.Duration) bool {
	return now.Sub(t.Created) > retention
}

// Ticket status states reported by the polling API. A ticket that is no
// longer present reports completed; callers track their own request IDs to
// distinguish "finished" from "never existed".
const (
	TicketStateQueued    = "queued"
	TicketStateCompleted = "completed"
)

// TicketStatus is the polling response for a single retry ticket.
type TicketStatus struct {
	TicketID  string     `json:"ticket_id"`
	State     string     `json:"state"`
	Attempts  int        `json:"attempts,omitempty"`
	NextRetry *time.Time `json:"next_retry,omitempty"`
}

// QueueSummary reports the outcome of one queue processor sweep.
type QueueSummary struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Deferred  int `json:"deferred"`
}
