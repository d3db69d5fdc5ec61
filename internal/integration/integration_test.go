package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"customizer/internal/api"
	"customizer/internal/command"
	"customizer/internal/models"
	"customizer/internal/queue"
	"customizer/internal/ratelimit"
	"customizer/internal/settings"
	"customizer/internal/storage"
	"customizer/internal/token"
)

// flakyStore wraps a memory store and fails writes to one key while the
// outage flag is set, simulating a backend that drops and recovers.
type flakyStore struct {
	storage.Store
	failKey string
	outage  atomic.Bool
}

func (f *flakyStore) Set(ctx context.Context, key string, value []byte) error {
	if f.outage.Load() && key == f.failKey {
		return errors.New("backend unavailable")
	}
	return f.Store.Set(ctx, key, value)
}

// stack is the whole service composed over one store, as the server's main
// does it, minus listeners and schedulers.
type stack struct {
	router    *mux.Router
	processor *queue.Processor
	tickets   *queue.TicketStore
	settings  *settings.Service
	flaky     *flakyStore
}

func newStack(t *testing.T, cfg *models.Config) *stack {
	t.Helper()

	memory, err := storage.NewMemoryStore(storage.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { memory.Close() })
	flaky := &flakyStore{Store: memory, failKey: "settings"}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := settings.NewService(flaky)
	registry := command.NewRegistry()
	require.NoError(t, settings.Register(registry, svc))
	registry.Freeze()

	tokens := token.NewIssuer(cfg.Security.TokenSecret, cfg.Security.TokenLifetime)
	limiter := ratelimit.NewWindowLimiter(flaky, cfg.RateLimit.Limit, cfg.RateLimit.Window)
	gate := command.NewGate(tokens, limiter)

	tickets := queue.NewTicketStore(flaky, cfg.Queue)
	dispatcher := command.NewDispatcher(registry, gate, tickets, cfg.Dispatch, log)
	processor := queue.NewProcessor(tickets, registry, cfg.Queue, cfg.Dispatch.Timeout, log)

	directory := api.NewDirectory(flaky)
	require.NoError(t, directory.Seed(context.Background(), cfg.Security.BootstrapKey))

	handlers := api.NewHandlers(dispatcher, processor, tickets, tokens, registry)
	return &stack{
		router:    api.SetupRoutes(handlers, directory, cfg),
		processor: processor,
		tickets:   tickets,
		settings:  svc,
		flaky:     flaky,
	}
}

func defaultTestConfig() *models.Config {
	cfg := models.NewDefaultConfig()
	cfg.Security.TokenSecret = "integration-secret"
	cfg.Security.BootstrapKey = "cst_integration"
	cfg.Queue.BaseDelay = 20 * time.Millisecond
	cfg.Queue.MaxDelay = time.Second
	return cfg
}

func (s *stack) post(t *testing.T, path string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest("POST", path, bytes.NewReader(raw)))
	return rec
}

func (s *stack) token(t *testing.T, action string) string {
	t.Helper()
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/commands/"+action+"/token", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["token"].(string)
}

func envelope(t *testing.T, rec *httptest.ResponseRecorder) *models.Envelope {
	t.Helper()
	var env models.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return &env
}

func TestSaveExportRoundTrip(t *testing.T) {
	s := newStack(t, defaultTestConfig())

	rec := s.post(t, "/api/v1/commands/save_settings", map[string]any{
		"token":   s.token(t, "save_settings"),
		"payload": map[string]any{"options": map[string]any{"theme": "dark"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, envelope(t, rec).Success)

	rec = s.post(t, "/api/v1/commands/export_settings", map[string]any{
		"token": s.token(t, "export_settings"),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	env := envelope(t, rec)
	require.True(t, env.Success)
	options, ok := env.Data["options"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "dark", options["theme"])
}

func TestOutageQueuesTicketAndSweepRecovers(t *testing.T) {
	s := newStack(t, defaultTestConfig())
	s.flaky.outage.Store(true)
	ctx := context.Background()

	rec := s.post(t, "/api/v1/commands/save_settings", map[string]any{
		"token":   s.token(t, "save_settings"),
		"payload": map[string]any{"options": map[string]any{"theme": "dark"}},
	})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	env := envelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, models.ErrorCodeRequestFailed, env.Error.Code)
	ticketID := env.Error.Data["ticket_id"]
	require.NotEmpty(t, ticketID, "retryable failures hand back a ticket")

	// The sweep before the backend recovers defers the ticket.
	time.Sleep(50 * time.Millisecond)
	summary, err := s.processor.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Deferred)

	// Backend recovers; the next due sweep replays the save.
	s.flaky.outage.Store(false)
	time.Sleep(100 * time.Millisecond)
	summary, err = s.processor.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)

	doc, err := s.settings.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dark", doc.Options["theme"], "the queued save landed")

	status, err := s.processor.Status(ctx, ticketID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketStateCompleted, status.State)
}

func TestInvalidPayloadIsNeverQueued(t *testing.T) {
	s := newStack(t, defaultTestConfig())

	rec := s.post(t, "/api/v1/commands/save_settings", map[string]any{
		"token":   s.token(t, "save_settings"),
		"payload": map[string]any{"options": map[string]any{}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := envelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, models.ErrorCodeInvalidPayload, env.Error.Code)

	n, err := s.tickets.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "sanitization failures are terminal")
}

func TestAdmissionRateLimitAcrossDispatches(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.RateLimit.Limit = 2
	s := newStack(t, cfg)

	payload := map[string]any{"options": map[string]any{"theme": "dark"}}

	for i := 0; i < 2; i++ {
		rec := s.post(t, "/api/v1/commands/save_settings", map[string]any{
			"token":   s.token(t, "save_settings"),
			"payload": payload,
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := s.post(t, "/api/v1/commands/save_settings", map[string]any{
		"token":   s.token(t, "save_settings"),
		"payload": payload,
	})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	env := envelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, models.ErrorCodeRateLimited, env.Error.Code)

	// Limits are per action; a different action still goes through.
	rec = s.post(t, "/api/v1/commands/export_settings", map[string]any{
		"token": s.token(t, "export_settings"),
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSchemaConflictRejectedAtDispatch(t *testing.T) {
	s := newStack(t, defaultTestConfig())

	rec := s.post(t, "/api/v1/commands/save_settings", map[string]any{
		"token": s.token(t, "save_settings"),
		"payload": map[string]any{
			"options":        map[string]any{"theme": "dark"},
			"schema_version": "2.0.0",
		},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := envelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, models.ErrorCodeInvalidPayload, env.Error.Code)
}
