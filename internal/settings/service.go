// Package settings stores the customization options the command surface
// manages. Options live as one JSON document in the shared key-value store,
// versioned by a semver schema string so saves from a stale client schema
// can be rejected before they clobber newer data.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"

	"customizer/internal/storage"
)

// SchemaVersion is the options schema this build reads and writes. Saves
// carrying a schema with a different major version are refused.
const SchemaVersion = "1.2.0"

// settingsKey is the store key holding the options document.
const settingsKey = "settings"

// ErrSchemaIncompatible is returned when a save carries a schema version
// whose major differs from SchemaVersion.
var ErrSchemaIncompatible = errors.New("settings schema version is incompatible")

// Document is the persisted options collection.
type Document struct {
	SchemaVersion string         `json:"schema_version"`
	Options       map[string]any `json:"options"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Service reads and writes the options document.
type Service struct {
	store storage.Store
	mu    sync.Mutex
	now   func() time.Time
}

// NewService creates a settings service over the shared store.
func NewService(store storage.Store) *Service {
	return &Service{
		store: store,
		now:   time.Now,
	}
}

// Get returns the current options document. An absent document is returned
// as empty defaults at the current schema, not an error.
func (s *Service) Get(ctx context.Context) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Save merges the given options into the stored document. The caller's
// schema version must be major-compatible with this build's schema;
// an empty schema version is treated as current.
func (s *Service) Save(ctx context.Context, schemaVersion string, options map[string]any) (*Document, error) {
	if err := checkSchema(schemaVersion); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	for key, value := range options {
		doc.Options[key] = value
	}
	doc.SchemaVersion = SchemaVersion
	doc.UpdatedAt = s.now()

	if err := s.save(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Reset drops all stored options and returns the empty document.
func (s *Service) Reset(ctx context.Context) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := &Document{
		SchemaVersion: SchemaVersion,
		Options:       make(map[string]any),
		UpdatedAt:     s.now(),
	}
	if err := s.save(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Service) load(ctx context.Context) (*Document, error) {
	raw, err := s.store.Get(ctx, settingsKey)
	if errors.Is(err, storage.ErrNotFound) {
		return &Document{
			SchemaVersion: SchemaVersion,
			Options:       make(map[string]any),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	if doc.Options == nil {
		doc.Options = make(map[string]any)
	}
	return &doc, nil
}

func (s *Service) save(ctx context.Context, doc *Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := s.store.Set(ctx, settingsKey, raw); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// checkSchema verifies major-version compatibility between the caller's
// schema and this build's.
func checkSchema(version string) error {
	if version == "" {
		return nil
	}
	theirs, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("invalid schema version %q: %w", version, err)
	}
	ours := semver.MustParse(SchemaVersion)
	if theirs.Major() != ours.Major() {
		return fmt.Errorf("%w: got %s, want major %d", ErrSchemaIncompatible, version, ours.Major())
	}
	return nil
}
