package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"customizer/internal/storage"
)

// WindowLimiter is a fixed-window counter persisted in the shared key-value
// store. The window is identified by floor(now/width); when a stored counter
// belongs to an older window it resets to zero before counting.
//
// This is a fixed-window counter, not a sliding log: callers accept the
// known edge burst at window boundaries as an explicit tradeoff. Counters
// are never explicitly destroyed; they expire with the underlying store's
// own retention.
type WindowLimiter struct {
	store  storage.Store
	limit  int
	window time.Duration
	now    func() time.Time
}

// counter is the persisted per-pair state: the window it was counted in and
// the number of calls seen within it.
type counter struct {
	Window int64 `json:"window"`
	Count  int   `json:"count"`
}

// NewWindowLimiter creates a store-backed fixed-window limiter.
func NewWindowLimiter(store storage.Store, limit int, window time.Duration) *WindowLimiter {
	return &WindowLimiter{
		store:  store,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Check records one call for the (action, actor) pair. The increment happens
// unconditionally; the decision compares the incremented count to the limit.
func (w *WindowLimiter) Check(ctx context.Context, action, actor string) (Decision, error) {
	key := fmt.Sprintf("ratelimit:%s:%s", action, actor)
	now := w.now()
	// Nanosecond arithmetic keeps sub-second windows from dividing by zero.
	windowID := now.UnixNano() / int64(w.window)

	var c counter
	raw, err := w.store.Get(ctx, key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// First call for this pair; counter starts at zero.
	case err != nil:
		return Decision{}, fmt.Errorf("failed to load rate counter: %w", err)
	default:
		if err := json.Unmarshal(raw, &c); err != nil {
			return Decision{}, fmt.Errorf("failed to decode rate counter: %w", err)
		}
	}

	if c.Window != windowID {
		c.Window = windowID
		c.Count = 0
	}
	c.Count++

	updated, err := json.Marshal(&c)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to encode rate counter: %w", err)
	}
	if err := w.store.Set(ctx, key, updated); err != nil {
		return Decision{}, fmt.Errorf("failed to save rate counter: %w", err)
	}

	return Decision{
		Allowed:   c.Count <= w.limit,
		Limit:     w.limit,
		Count:     c.Count,
		WindowEnd: time.Unix(0, (windowID+1)*int64(w.window)),
	}, nil
}
