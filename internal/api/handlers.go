package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"customizer/internal/command"
	"customizer/internal/models"
	"customizer/internal/queue"
	"customizer/internal/token"
	"customizer/internal/version"
)

// Handlers contains HTTP handlers for the customizer API
type Handlers struct {
	dispatcher *command.Dispatcher
	processor  *queue.Processor
	tickets    *queue.TicketStore
	tokens     *token.Issuer
	registry   *command.Registry
}

// NewHandlers creates a new handlers instance
func NewHandlers(dispatcher *command.Dispatcher, processor *queue.Processor, tickets *queue.TicketStore, tokens *token.Issuer, registry *command.Registry) *Handlers {
	return &Handlers{
		dispatcher: dispatcher,
		processor:  processor,
		tickets:    tickets,
		tokens:     tokens,
		registry:   registry,
	}
}

// dispatchBody is the request body for command dispatch. The action comes
// from the URL; the anti-forgery token and payload travel in the body.
type dispatchBody struct {
	Payload map[string]any `json:"payload"`
	Token   string         `json:"token"`
}

// DispatchCommand handles command dispatch requests
// POST /api/v1/commands/{action}
func (h *Handlers) DispatchCommand(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	action := vars["action"]

	// An absent body is a valid payload-free dispatch; only malformed
	// JSON is rejected here.
	var body dispatchBody
	if r.Body != nil {
		err := json.NewDecoder(r.Body).Decode(&body)
		if err != nil && !errors.Is(err, io.EOF) {
			writeEnvelope(w, http.StatusBadRequest,
				models.NewErrorEnvelope("", models.ErrorCodeInvalidPayload, "Request body must be valid JSON"))
			return
		}
	}

	req := &models.CommandRequest{
		Action:  action,
		Payload: body.Payload,
		Token:   body.Token,
	}

	env := h.dispatcher.Dispatch(r.Context(), req, ActorFromRequest(r))
	writeEnvelope(w, statusForEnvelope(env), env)
}

// IssueToken handles anti-forgery token issuance
// GET /api/v1/commands/{action}/token
func (h *Handlers) IssueToken(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	action := vars["action"]

	if _, ok := h.registry.Lookup(action); !ok {
		writeEnvelope(w, http.StatusNotFound,
			models.NewErrorEnvelope("", models.ErrorCodeUnknownAction, "No handler registered for action"))
		return
	}

	actor := ActorFromRequest(r)
	tok := h.tokens.Issue(action, actor.ID)

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"action":      action,
		"token":       tok,
		"lifetime_ms": h.tokens.Lifetime().Milliseconds(),
	})
}

// ListActions handles the registered action listing
// GET /api/v1/commands
func (h *Handlers) ListActions(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"actions": h.registry.Actions(),
	})
}

// ListQueue handles retry queue listing
// GET /api/v1/queue
func (h *Handlers) ListQueue(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.tickets.List(r.Context())
	if err != nil {
		writeEnvelope(w, http.StatusInternalServerError,
			models.NewErrorEnvelope("", models.ErrorCodeRequestFailed, "Failed to read retry queue"))
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"count":   len(tickets),
		"tickets": tickets,
	})
}

// TicketStatus handles ticket status polling
// GET /api/v1/queue/{ticket_id}
func (h *Handlers) TicketStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	status, err := h.processor.Status(r.Context(), vars["ticket_id"])
	if err != nil {
		writeEnvelope(w, http.StatusInternalServerError,
			models.NewErrorEnvelope("", models.ErrorCodeRequestFailed, "Failed to read ticket status"))
		return
	}

	writeJSONResponse(w, http.StatusOK, status)
}

// RetryTicket handles manual ticket re-attempts
// POST /api/v1/queue/{ticket_id}/retry
func (h *Handlers) RetryTicket(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	env := h.processor.Retry(r.Context(), vars["ticket_id"])
	writeEnvelope(w, statusForEnvelope(env), env)
}

// ProcessQueue handles on-demand queue sweeps
// POST /api/v1/queue/process
func (h *Handlers) ProcessQueue(w http.ResponseWriter, r *http.Request) {
	summary, err := h.processor.ProcessQueue(r.Context())
	if err != nil {
		writeEnvelope(w, http.StatusInternalServerError,
			models.NewErrorEnvelope("", models.ErrorCodeRequestFailed, "Queue sweep failed"))
		return
	}

	writeJSONResponse(w, http.StatusOK, summary)
}

// CleanupQueue handles on-demand retention cleanup
// POST /api/v1/queue/cleanup
func (h *Handlers) CleanupQueue(w http.ResponseWriter, r *http.Request) {
	removed, err := h.processor.Cleanup(r.Context())
	if err != nil {
		writeEnvelope(w, http.StatusInternalServerError,
			models.NewErrorEnvelope("", models.ErrorCodeRequestFailed, "Queue cleanup failed"))
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"removed": removed,
	})
}

// HealthCheck handles health check requests
// GET /health and GET /api/v1/health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = version.GetInfo().Version

	response.AddComponent("api", models.StatusHealthy, "API is operational")

	queued, err := h.tickets.Len(r.Context())
	if err != nil {
		response.Status = models.StatusDegraded
		response.AddComponent("storage", models.StatusUnhealthy, "Storage is unreachable")
	} else {
		response.AddComponent("storage", models.StatusHealthy, "Storage is operational")
		response.AddComponent("queue", models.StatusHealthy, "Retry queue is operational")
		if response.Metrics == nil {
			response.Metrics = make(map[string]any)
		}
		response.Metrics["queued_tickets"] = queued
	}

	status := http.StatusOK
	if response.Status != models.StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, response)
}

// statusForEnvelope maps an envelope to its HTTP status code. Error codes
// come from the closed taxonomy, so the mapping is total.
func statusForEnvelope(env *models.Envelope) int {
	if env.Success {
		return http.StatusOK
	}
	if env.Error == nil {
		return http.StatusInternalServerError
	}
	switch env.Error.Code {
	case models.ErrorCodeInvalidToken, models.ErrorCodeInsufficientAuth:
		return http.StatusForbidden
	case models.ErrorCodeRateLimited:
		return http.StatusTooManyRequests
	case models.ErrorCodeInvalidPayload:
		return http.StatusBadRequest
	case models.ErrorCodeUnknownAction:
		return http.StatusNotFound
	case models.ErrorCodeMaxRetriesReached:
		return http.StatusGone
	case models.ErrorCodeQueueFull:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSONResponse writes a JSON response
func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
