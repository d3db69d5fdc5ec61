// Package ratelimit provides the two rate limiting layers of the service:
// a persisted fixed-window counter per (action, actor) pair consulted by the
// command admission gate, and an in-memory token bucket with HTTP middleware
// that throttles clients at the transport layer before dispatch.
package ratelimit

import (
	"context"
	"time"
)

// Limiter is the admission-gate contract: one call per dispatch attempt.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Check records one call for the (action, actor) pair and reports
	// whether it is within the configured limit. The counter increments
	// even when the call is denied, so sustained abuse keeps the counter
	// climbing without disturbing the next window's timing.
	Check(ctx context.Context, action, actor string) (Decision, error)
}

// Decision carries the outcome of one rate check.
type Decision struct {
	Allowed   bool      // Whether the call is within the limit
	Limit     int       // Maximum calls per window
	Count     int       // Calls recorded in the current window, this one included
	WindowEnd time.Time // When the current window rolls over
}

// Remaining returns the calls left in the current window, never negative.
func (d Decision) Remaining() int {
	if d.Count >= d.Limit {
		return 0
	}
	return d.Limit - d.Count
}
