package command

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"customizer/internal/models"
)

// ErrQueueFull is returned by a TicketQueue when the retry queue is at
// capacity. The dispatch still reports request_failed to the caller; the
// failure simply carries no retry guarantee.
var ErrQueueFull = errors.New("retry queue is full")

// TicketQueue persists retry tickets for failed retryable commands. It is
// implemented by the queue package's ticket store; the dispatcher only needs
// enqueue.
type TicketQueue interface {
	Enqueue(ctx context.Context, ticket *models.RetryTicket) error
}

// Dispatcher is the single synchronous entry point for client-issued
// actions: admission, sanitization, handler execution under a timeout, and
// a uniform response envelope for every outcome.
type Dispatcher struct {
	registry *Registry
	gate     *Gate
	queue    TicketQueue
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewDispatcher creates a dispatcher. A nil queue disables retry
// persistence: retryable failures then report request_failed with no
// ticket, the same degraded-but-safe outcome as a full queue.
func NewDispatcher(registry *Registry, gate *Gate, queue TicketQueue, cfg models.DispatchConfig, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		gate:     gate,
		queue:    queue,
		timeout:  cfg.Timeout,
		logger:   logger,
		now:      time.Now,
	}
}

// Dispatch runs one command through the full pipeline and always returns an
// envelope; no error escapes this boundary.
func (d *Dispatcher) Dispatch(ctx context.Context, req *models.CommandRequest, actor *models.Actor) *models.Envelope {
	requestID := uuid.New().String()
	start := d.now()

	if actor == nil {
		actor = models.AnonymousActor()
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		return d.fail(requestID, req, actor, start, NewInvalidPayloadError(err))
	}

	reg, ok := d.registry.Lookup(req.Action)
	if !ok {
		return d.fail(requestID, req, actor, start, NewUnknownActionError(req.Action))
	}

	if err := d.gate.Admit(ctx, req, actor, reg); err != nil {
		return d.fail(requestID, req, actor, start, AsCommandError(err))
	}

	payload := req.Payload
	if reg.Sanitize != nil {
		clean, err := reg.Sanitize(payload)
		if err != nil {
			return d.fail(requestID, req, actor, start, NewInvalidPayloadError(err))
		}
		payload = clean
	}

	result, err := Invoke(ctx, reg, d.timeout, payload)
	took := d.now().Sub(start)

	if err != nil {
		cerr := NewRequestFailedError(err)
		env := models.NewErrorEnvelope(requestID, cerr.Code, cerr.Message)
		if reg.RetryEnabled {
			if ticketID, qerr := d.enqueueRetry(ctx, req.Action, payload); qerr != nil {
				d.logger.Warn("retry ticket not persisted",
					"action", req.Action,
					"request_id", requestID,
					"error", qerr,
				)
			} else {
				env.WithErrorData(map[string]string{"ticket_id": ticketID})
			}
		}
		d.logOutcome(req, actor, requestID, "error", took, payload)
		return env
	}

	d.logOutcome(req, actor, requestID, "success", took, payload)
	return models.NewSuccessEnvelope(requestID, result, took)
}

// enqueueRetry persists a ticket snapshotting the sanitized payload. The
// first re-attempt is scheduled one base delay out; the queue store applies
// that schedule so backoff policy lives in one place.
func (d *Dispatcher) enqueueRetry(ctx context.Context, action string, payload map[string]any) (string, error) {
	ticket := models.NewRetryTicket(action, payload, d.now(), time.Time{})
	if err := d.queueTicket(ctx, ticket); err != nil {
		return "", err
	}
	return ticket.ID, nil
}

func (d *Dispatcher) queueTicket(ctx context.Context, ticket *models.RetryTicket) error {
	if d.queue == nil {
		return errors.New("no retry queue configured")
	}
	return d.queue.Enqueue(ctx, ticket)
}

// fail builds a denial/error envelope and logs the outcome. Denials never
// reach the handler and never enqueue a ticket.
func (d *Dispatcher) fail(requestID string, req *models.CommandRequest, actor *models.Actor, start time.Time, cerr *CommandError) *models.Envelope {
	d.logger.Info("command denied",
		"action", req.Action,
		"actor", actor.ID,
		"request_id", requestID,
		"code", cerr.Code,
		"duration_ms", d.now().Sub(start).Milliseconds(),
	)
	return models.NewErrorEnvelope(requestID, cerr.Code, cerr.Message)
}

// logOutcome records the dispatch result. Only sanitized field names are
// logged, never payload values, so sensitive input stays out of the logs.
func (d *Dispatcher) logOutcome(req *models.CommandRequest, actor *models.Actor, requestID, status string, took time.Duration, payload map[string]any) {
	d.logger.Info("command dispatched",
		"action", req.Action,
		"actor", actor.ID,
		"request_id", requestID,
		"status", status,
		"duration_ms", took.Milliseconds(),
		"fields", payloadFields(payload),
	)
}

func payloadFields(payload map[string]any) []string {
	fields := make([]string, 0, len(payload))
	for k := range payload {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}
