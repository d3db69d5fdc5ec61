package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"customizer/internal/command"
	"customizer/internal/models"
)

// Processor drives queued tickets through their re-attempts. Sweeps run the
// registered handler directly without repeating admission; the original
// request already passed the gate, and the delayed re-run is an internal
// recovery action rather than a new client request.
type Processor struct {
	tickets  *TicketStore
	registry *command.Registry
	cfg      models.QueueConfig
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewProcessor creates a queue processor. The timeout bounds each
// re-attempted handler, same as a live dispatch.
func NewProcessor(tickets *TicketStore, registry *command.Registry, cfg models.QueueConfig, timeout time.Duration, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		tickets:  tickets,
		registry: registry,
		cfg:      cfg,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
	}
}

// ProcessQueue sweeps the queue once. Every ticket counts as processed.
// Tickets whose retry time has not arrived are left untouched and counted
// as deferred; due tickets that have exhausted their attempts are dropped,
// the rest are re-attempted, and a failed re-attempt is deferred with
// exponentially grown delay.
func (p *Processor) ProcessQueue(ctx context.Context) (models.QueueSummary, error) {
	var summary models.QueueSummary

	tickets, err := p.tickets.List(ctx)
	if err != nil {
		return summary, err
	}

	now := p.now()
	for _, ticket := range tickets {
		summary.Processed++
		if !ticket.Due(now) {
			summary.Deferred++
			continue
		}

		if ticket.Exhausted(p.cfg.MaxRetries) {
			if err := p.tickets.Delete(ctx, ticket.ID); err != nil {
				return summary, err
			}
			summary.Failed++
			p.logger.Warn("ticket dropped after exhausting retries",
				"ticket_id", ticket.ID,
				"action", ticket.Action,
				"attempts", ticket.Attempts,
			)
			continue
		}

		reg, ok := p.registry.Lookup(ticket.Action)
		if !ok {
			// The action disappeared from the registry, likely a
			// deploy that removed a command. Leave the ticket for
			// retention cleanup instead of guessing.
			summary.Deferred++
			p.logger.Warn("queued ticket references unknown action",
				"ticket_id", ticket.ID,
				"action", ticket.Action,
			)
			continue
		}

		if _, err := command.Invoke(ctx, reg, p.timeout, ticket.Payload); err != nil {
			ticket.Defer(p.now(), p.cfg.BaseDelay, p.cfg.MaxDelay)
			if err := p.tickets.Update(ctx, ticket); err != nil {
				return summary, err
			}
			summary.Deferred++
			p.logger.Info("re-attempt failed, ticket deferred",
				"ticket_id", ticket.ID,
				"action", ticket.Action,
				"attempts", ticket.Attempts,
				"next_retry", ticket.NextRetry,
			)
			continue
		}

		if err := p.tickets.Delete(ctx, ticket.ID); err != nil {
			return summary, err
		}
		summary.Succeeded++
		p.logger.Info("re-attempt succeeded",
			"ticket_id", ticket.ID,
			"action", ticket.Action,
		)
	}

	return summary, nil
}

// Retry re-attempts one ticket immediately, ignoring its schedule. On
// success the ticket is removed and the handler's result returned; on
// failure the ticket is left exactly as it was, so the periodic sweep's
// backoff schedule is unaffected by manual prodding.
func (p *Processor) Retry(ctx context.Context, ticketID string) *models.Envelope {
	requestID := uuid.NewString()
	started := p.now()

	ticket, err := p.tickets.Get(ctx, ticketID)
	if errors.Is(err, ErrTicketNotFound) {
		return models.NewErrorEnvelope(requestID, models.ErrorCodeRequestFailed, "No such retry ticket")
	}
	if err != nil {
		p.logger.Error("failed to load ticket for manual retry", "ticket_id", ticketID, "error", err)
		return models.NewErrorEnvelope(requestID, models.ErrorCodeRequestFailed, "Failed to load retry ticket")
	}

	if ticket.Exhausted(p.cfg.MaxRetries) {
		// The next sweep will drop this ticket; refusing here keeps the
		// attempt invariant intact for manual prodding too.
		cerr := command.NewMaxRetriesReachedError(ticket.ID)
		return models.NewErrorEnvelope(requestID, cerr.Code, cerr.Message).
			WithErrorData(map[string]string{"ticket_id": ticket.ID})
	}

	reg, ok := p.registry.Lookup(ticket.Action)
	if !ok {
		return models.NewErrorEnvelope(requestID, models.ErrorCodeUnknownAction, "Queued action is no longer registered").
			WithErrorData(map[string]string{"ticket_id": ticket.ID})
	}

	result, err := command.Invoke(ctx, reg, p.timeout, ticket.Payload)
	if err != nil {
		p.logger.Info("manual retry failed",
			"ticket_id", ticket.ID,
			"action", ticket.Action,
			"request_id", requestID,
		)
		return models.NewErrorEnvelope(requestID, models.ErrorCodeRequestFailed, "Retry attempt failed").
			WithErrorData(map[string]string{"ticket_id": ticket.ID})
	}

	if err := p.tickets.Delete(ctx, ticket.ID); err != nil {
		p.logger.Error("failed to remove ticket after successful retry", "ticket_id", ticket.ID, "error", err)
	}
	return models.NewSuccessEnvelope(requestID, result, p.now().Sub(started))
}

// Status reports a ticket's queue state. An id that is not in the queue is
// reported completed; the queue only holds pending work, so absence means
// the command either succeeded or aged out.
func (p *Processor) Status(ctx context.Context, ticketID string) (*models.TicketStatus, error) {
	ticket, err := p.tickets.Get(ctx, ticketID)
	if errors.Is(err, ErrTicketNotFound) {
		return &models.TicketStatus{
			TicketID: ticketID,
			State:    models.TicketStateCompleted,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	next := ticket.NextRetry
	return &models.TicketStatus{
		TicketID:  ticket.ID,
		State:     models.TicketStateQueued,
		Attempts:  ticket.Attempts,
		NextRetry: &next,
	}, nil
}

// Cleanup removes tickets older than the retention period and returns how
// many were dropped.
func (p *Processor) Cleanup(ctx context.Context) (int, error) {
	tickets, err := p.tickets.List(ctx)
	if err != nil {
		return 0, err
	}

	now := p.now()
	removed := 0
	for _, ticket := range tickets {
		if !ticket.Expired(now, p.cfg.Retention) {
			continue
		}
		if err := p.tickets.Delete(ctx, ticket.ID); err != nil {
			return removed, err
		}
		removed++
		p.logger.Info("expired ticket removed",
			"ticket_id", ticket.ID,
			"action", ticket.Action,
			"created", ticket.Created,
		)
	}
	return removed, nil
}
