// Package queue persists retry tickets and drives their re-attempts. The
// whole queue is one JSON document under one key in the shared key-value
// store; every operation is a read-merge-write of the full collection, which
// keeps the failure mode under racing writers "lose one update" rather than
// "corrupt the stored structure".
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"customizer/internal/command"
	"customizer/internal/models"
	"customizer/internal/storage"
)

// queueKey is the single store key holding the full ticket collection.
const queueKey = "retry_queue"

// ErrTicketNotFound is returned when a ticket id is absent from the queue.
var ErrTicketNotFound = errors.New("ticket not found")

// queueDocument is the persisted shape of the retry queue.
type queueDocument struct {
	Tickets     map[string]*models.RetryTicket `json:"tickets"`
	LastUpdated time.Time                      `json:"last_updated"`
}

// TicketStore persists retry tickets in the shared key-value store, bounded
// at the configured queue size. The in-process mutex serializes
// read-merge-write cycles within this process; cross-process races are
// tolerated per the last-write-wins model, not prevented.
type TicketStore struct {
	store storage.Store
	cfg   models.QueueConfig
	mu    sync.Mutex
	now   func() time.Time
}

// NewTicketStore creates a ticket store over the shared persistence layer.
func NewTicketStore(store storage.Store, cfg models.QueueConfig) *TicketStore {
	return &TicketStore{
		store: store,
		cfg:   cfg,
		now:   time.Now,
	}
}

// Enqueue adds a new ticket to the queue. A ticket without a scheduled
// retry gets its first attempt one base delay out. Returns
// command.ErrQueueFull when the queue is at capacity; the collection is
// left untouched in that case.
func (s *TicketStore) Enqueue(ctx context.Context, ticket *models.RetryTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return err
	}
	if len(doc.Tickets) >= s.cfg.MaxSize {
		return command.NewQueueFullError()
	}

	if ticket.Created.IsZero() {
		ticket.Created = s.now()
	}
	if ticket.NextRetry.IsZero() {
		ticket.NextRetry = ticket.Created.Add(s.cfg.BaseDelay)
	}

	doc.Tickets[ticket.ID] = ticket
	return s.save(ctx, doc)
}

// Get returns the ticket with the given id, or ErrTicketNotFound.
func (s *TicketStore) Get(ctx context.Context, id string) (*models.RetryTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	ticket, ok := doc.Tickets[id]
	if !ok {
		return nil, ErrTicketNotFound
	}
	copied := *ticket
	return &copied, nil
}

// Update replaces an existing ticket's record after a failed re-attempt.
func (s *TicketStore) Update(ctx context.Context, ticket *models.RetryTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return err
	}
	if _, ok := doc.Tickets[ticket.ID]; !ok {
		return ErrTicketNotFound
	}
	doc.Tickets[ticket.ID] = ticket
	return s.save(ctx, doc)
}

// Delete removes a ticket. Deleting an absent ticket is not an error; a
// concurrent sweep may already have removed it.
func (s *TicketStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return err
	}
	if _, ok := doc.Tickets[id]; !ok {
		return nil
	}
	delete(doc.Tickets, id)
	return s.save(ctx, doc)
}

// List returns all tickets ordered by creation time.
func (s *TicketStore) List(ctx context.Context) ([]*models.RetryTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	tickets := make([]*models.RetryTicket, 0, len(doc.Tickets))
	for _, t := range doc.Tickets {
		copied := *t
		tickets = append(tickets, &copied)
	}
	sort.Slice(tickets, func(i, j int) bool {
		return tickets[i].Created.Before(tickets[j].Created)
	})
	return tickets, nil
}

// Len returns the number of queued tickets.
func (s *TicketStore) Len(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return 0, err
	}
	return len(doc.Tickets), nil
}

// load reads the full queue document; an absent key is an empty queue.
// Callers must hold the mutex.
func (s *TicketStore) load(ctx context.Context) (*queueDocument, error) {
	raw, err := s.store.Get(ctx, queueKey)
	if errors.Is(err, storage.ErrNotFound) {
		return &queueDocument{Tickets: make(map[string]*models.RetryTicket)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load retry queue: %w", err)
	}

	var doc queueDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode retry queue: %w", err)
	}
	if doc.Tickets == nil {
		doc.Tickets = make(map[string]*models.RetryTicket)
	}
	return &doc, nil
}

// save writes the full queue document back. Callers must hold the mutex.
func (s *TicketStore) save(ctx context.Context, doc *queueDocument) error {
	doc.LastUpdated = s.now()
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode retry queue: %w", err)
	}
	if err := s.store.Set(ctx, queueKey, raw); err != nil {
		return fmt.Errorf("failed to save retry queue: %w", err)
	}
	return nil
}
