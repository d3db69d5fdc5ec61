package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"customizer/internal/models"
)

// stubQueue records enqueued tickets; it can be scripted to reject.
type stubQueue struct {
	tickets []*models.RetryTicket
	err     error
}

func (s *stubQueue) Enqueue(_ context.Context, ticket *models.RetryTicket) error {
	if s.err != nil {
		return s.err
	}
	s.tickets = append(s.tickets, ticket)
	return nil
}

type dispatchFixture struct {
	dispatcher *Dispatcher
	registry   *Registry
	queue      *stubQueue
	actor      *models.Actor
	token      func(action string) string
}

func newDispatchFixture(t *testing.T, regs ...Registration) *dispatchFixture {
	t.Helper()

	registry := NewRegistry()
	for _, r := range regs {
		require.NoError(t, registry.Register(r))
	}
	registry.Freeze()

	gate, tokens := admissionFixture(nil)
	queue := &stubQueue{}
	dispatcher := NewDispatcher(registry, gate, queue, models.DispatchConfig{Timeout: time.Second}, nil)
	actor := testActor("admin")

	return &dispatchFixture{
		dispatcher: dispatcher,
		registry:   registry,
		queue:      queue,
		actor:      actor,
		token:      func(action string) string { return tokens.Issue(action, actor.ID) },
	}
}

func TestDispatchSuccess(t *testing.T) {
	f := newDispatchFixture(t, Registration{
		Action: "save_settings",
		Handler: func(_ context.Context, payload map[string]any) (map[string]any, error) {
			return map[string]any{"saved": len(payload)}, nil
		},
	})

	env := f.dispatcher.Dispatch(context.Background(), &models.CommandRequest{
		Action:  "save_settings",
		Payload: map[string]any{"theme": "dark"},
		Token:   f.token("save_settings"),
	}, f.actor)

	assert.True(t, env.Success)
	assert.NotEmpty(t, env.RequestID)
	assert.False(t, env.Timestamp.IsZero())
	require.NotNil(t, env.Data)
	assert.Equal(t, 1, env.Data["saved"])
	assert.Nil(t, env.Error)
	assert.Empty(t, f.queue.tickets)
}

func TestDispatchInvalidTokenNeverRunsHandler(t *testing.T) {
	handlerRan := false
	f := newDispatchFixture(t, Registration{
		Action: "save_settings",
		Handler: func(_ context.Context, _ map[string]any) (map[string]any, error) {
			handlerRan = true
			return nil, nil
		},
		RetryEnabled: true,
	})

	env := f.dispatcher.Dispatch(context.Background(), &models.CommandRequest{
		Action: "save_settings",
		Token:  "forged",
	}, f.actor)

	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, models.ErrorCodeInvalidToken, env.Error.Code)
	assert.False(t, handlerRan)
	assert.Empty(t, f.queue.tickets, "denials never enqueue retries")
}

func TestDispatchUnknownAction(t *testing.T) {
	f := newDispatchFixture(t)

	env := f.dispatcher.Dispatch(context.Background(), &models.CommandRequest{
		Action: "no_such_action",
		Token:  f.token("no_such_action"),
	}, f.actor)

	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, models.ErrorCodeUnknownAction, env.Error.Code)
}

func TestDispatchInvalidActionName(t *testing.T) {
	f := newDispatchFixture(t)

	env := f.dispatcher.Dispatch(context.Background(), &models.CommandRequest{
		Action: "../../etc/passwd",
	}, f.actor)

	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, models.ErrorCodeInvalidPayload, env.Error.Code)
}

func TestDispatchSanitizeFailure(t *testing.T) {
	f := newDispatchFixture(t, Registration{
		Action:  "save_settings",
		Handler: noopHandler,
		Sanitize: func(_ map[string]any) (map[string]any, error) {
			return nil, errors.New("missing required field: options")
		},
		RetryEnabled: true,
	})

	env := f.dispatcher.Dispatch(context.Background(), &models.CommandRequest{
		Action: "save_settings",
		Token:  f.token("save_settings"),
	}, f.actor)

	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, models.ErrorCodeInvalidPayload, env.Error.Code)
	assert.Empty(t, f.queue.tickets, "rejected payloads never enqueue retries")
}

func TestDispatchRetryableFailureEnqueuesTicket(t *testing.T) {
	f := newDispatchFixture(t, Registration{
		Action: "save_settings",
		Handler: func(_ context.Context, _ map[string]any) (map[string]any, error) {
			return nil, errors.New("backend unavailable")
		},
		Sanitize: func(payload map[string]any) (map[string]any, error) {
			return map[string]any{"options": payload["options"]}, nil
		},
		RetryEnabled: true,
	})

	env := f.dispatcher.Dispatch(context.Background(), &models.CommandRequest{
		Action:  "save_settings",
		Payload: map[string]any{"options": map[string]any{"theme": "dark"}, "junk": "dropped"},
		Token:   f.token("save_settings"),
	}, f.actor)

	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, models.ErrorCodeRequestFailed, env.Error.Code)

	require.Len(t, f.queue.tickets, 1)
	ticket := f.queue.tickets[0]
	assert.Equal(t, "save_settings", ticket.Action)
	assert.Contains(t, ticket.Payload, "options")
	assert.NotContains(t, ticket.Payload, "junk", "ticket snapshots the sanitized payload")
	assert.Equal(t, ticket.ID, env.Error.Data["ticket_id"])
}

func TestDispatchNonRetryableActionFailure(t *testing.T) {
	f := newDispatchFixture(t, Registration{
		Action: "export_settings",
		Handler: func(_ context.Context, _ map[string]any) (map[string]any, error) {
			return nil, errors.New("backend unavailable")
		},
	})

	env := f.dispatcher.Dispatch(context.Background(), &models.CommandRequest{
		Action: "export_settings",
		Token:  f.token("export_settings"),
	}, f.actor)

	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, models.ErrorCodeRequestFailed, env.Error.Code)
	assert.Empty(t, f.queue.tickets)
}

func TestDispatchQueueFullStillReportsFailure(t *testing.T) {
	f := newDispatchFixture(t, Registration{
		Action: "save_settings",
		Handler: func(_ context.Context, _ map[string]any) (map[string]any, error) {
			return nil, errors.New("backend unavailable")
		},
		RetryEnabled: true,
	})
	f.queue.err = ErrQueueFull

	env := f.dispatcher.Dispatch(context.Background(), &models.CommandRequest{
		Action: "save_settings",
		Token:  f.token("save_settings"),
	}, f.actor)

	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, models.ErrorCodeRequestFailed, env.Error.Code)
	assert.NotContains(t, env.Error.Data, "ticket_id", "no ticket id when the queue rejected the ticket")
}

func TestDispatchHandlerTimeout(t *testing.T) {
	f := newDispatchFixture(t, Registration{
		Action: "save_settings",
		Handler: func(ctx context.Context, _ map[string]any) (map[string]any, error) {
			select {
			case <-time.After(5 * time.Second):
				return map[string]any{}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
		Timeout: 20 * time.Millisecond,
	})

	start := time.Now()
	env := f.dispatcher.Dispatch(context.Background(), &models.CommandRequest{
		Action: "save_settings",
		Token:  f.token("save_settings"),
	}, f.actor)

	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, models.ErrorCodeRequestFailed, env.Error.Code)
}

func TestDispatchHandlerPanicIsContained(t *testing.T) {
	f := newDispatchFixture(t, Registration{
		Action: "save_settings",
		Handler: func(_ context.Context, _ map[string]any) (map[string]any, error) {
			panic("boom")
		},
	})

	env := f.dispatcher.Dispatch(context.Background(), &models.CommandRequest{
		Action: "save_settings",
		Token:  f.token("save_settings"),
	}, f.actor)

	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, models.ErrorCodeRequestFailed, env.Error.Code)
}

func TestDispatchNilActorTreatedAsAnonymous(t *testing.T) {
	f := newDispatchFixture(t, Registration{
		Action:         "export_settings",
		Handler:        noopHandler,
		AllowAnonymous: true,
	})

	env := f.dispatcher.Dispatch(context.Background(), &models.CommandRequest{
		Action: "export_settings",
		Token:  "",
	}, nil)

	// Anonymous without a token fails the token check, not with a nil
	// pointer panic.
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, models.ErrorCodeInvalidToken, env.Error.Code)
}
