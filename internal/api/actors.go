package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"customizer/internal/models"
	"customizer/internal/storage"
)

// actorsKey is the store key holding the actor directory document.
const actorsKey = "actors"

// ErrActorNotFound is returned when no enabled actor matches a session key.
var ErrActorNotFound = errors.New("actor not found")

// actorsDocument is the persisted shape of the directory, keyed by the
// SHA-256 hash of each actor's session key.
type actorsDocument struct {
	Actors      map[string]*models.Actor `json:"actors"`
	LastUpdated time.Time                `json:"last_updated"`
}

// Directory resolves session keys to actors. Raw keys are never stored;
// lookup hashes the presented key and matches against stored hashes.
type Directory struct {
	store storage.Store
	mu    sync.Mutex
}

// NewDirectory creates an actor directory over the shared store.
func NewDirectory(store storage.Store) *Directory {
	return &Directory{store: store}
}

// Lookup resolves a raw session key to its enabled actor.
func (d *Directory) Lookup(ctx context.Context, rawKey string) (*models.Actor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	doc, err := d.load(ctx)
	if err != nil {
		return nil, err
	}
	actor, ok := doc.Actors[models.HashSessionKey(rawKey)]
	if !ok || !actor.Enabled {
		return nil, ErrActorNotFound
	}
	copied := *actor
	return &copied, nil
}

// Save stores or replaces an actor record.
func (d *Directory) Save(ctx context.Context, actor *models.Actor) error {
	if actor.KeyHash == "" {
		return errors.New("actor has no session key hash")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	doc, err := d.load(ctx)
	if err != nil {
		return err
	}
	doc.Actors[actor.KeyHash] = actor
	return d.save(ctx, doc)
}

// Seed ensures the bootstrap key resolves to an enabled admin actor. It is
// idempotent: an existing record for the key is left as-is, so operators
// can edit the bootstrap actor without restarts reverting it.
func (d *Directory) Seed(ctx context.Context, bootstrapKey string) error {
	if bootstrapKey == "" {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	doc, err := d.load(ctx)
	if err != nil {
		return err
	}
	hash := models.HashSessionKey(bootstrapKey)
	if _, ok := doc.Actors[hash]; ok {
		return nil
	}

	actor := models.NewActor(models.NewActorID(), "bootstrap", bootstrapKey, []string{string(models.PermissionAdmin)})
	doc.Actors[actor.KeyHash] = actor
	return d.save(ctx, doc)
}

func (d *Directory) load(ctx context.Context) (*actorsDocument, error) {
	raw, err := d.store.Get(ctx, actorsKey)
	if errors.Is(err, storage.ErrNotFound) {
		return &actorsDocument{Actors: make(map[string]*models.Actor)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load actor directory: %w", err)
	}

	var doc actorsDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode actor directory: %w", err)
	}
	if doc.Actors == nil {
		doc.Actors = make(map[string]*models.Actor)
	}
	return &doc, nil
}

func (d *Directory) save(ctx context.Context, doc *actorsDocument) error {
	doc.LastUpdated = time.Now()
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode actor directory: %w", err)
	}
	if err := d.store.Set(ctx, actorsKey, raw); err != nil {
		return fmt.Errorf("failed to save actor directory: %w", err)
	}
	return nil
}
