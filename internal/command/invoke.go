package command

import (
	"context"
	"fmt"
	"time"
)

// Invoke runs a registration's handler under its execution budget. It is
// shared by the dispatcher and the queue processor so a re-attempt runs
// under the same timeout discipline as the original call.
//
// A panicking handler is converted into an error rather than taking down
// the request; the deadline is enforced even if the handler ignores its
// context, in which case the handler goroutine is abandoned to finish on
// its own.
func Invoke(ctx context.Context, reg Registration, defaultTimeout time.Duration, payload map[string]any) (map[string]any, error) {
	timeout := reg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		data map[string]any
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		data, err := reg.Handler(ctx, payload)
		done <- outcome{data: data, err: err}
	}()

	select {
	case o := <-done:
		return o.data, o.err
	case <-ctx.Done():
		return nil, fmt.Errorf("handler for %s exceeded its %s budget: %w", reg.Action, timeout, ctx.Err())
	}
}
