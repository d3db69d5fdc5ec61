package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// JSONStore implements the Store interface using a single JSON file for
// persistence. It keeps an in-memory cache for performance and supports
// concurrent access.
type JSONStore struct {
	filePath     string
	cacheTTL     time.Duration
	mu           sync.RWMutex
	data         *jsonDocument
	lastModified time.Time
	cacheExpiry  time.Time
}

// jsonDocument is the on-disk structure: every key's value is stored as raw
// JSON under one top-level object.
type jsonDocument struct {
	Entries     map[string]json.RawMessage `json:"entries"`
	LastUpdated time.Time                  `json:"last_updated"`
}

// NewJSONStore creates a new JSON file-based store instance.
func NewJSONStore(config Config) (*JSONStore, error) {
	cacheTTL := 5 * time.Minute
	if config.CacheTTL != "" {
		if duration, err := time.ParseDuration(config.CacheTTL); err == nil {
			cacheTTL = duration
		}
	}

	store := &JSONStore{
		filePath: config.Path,
		cacheTTL: cacheTTL,
	}

	if err := store.ensureFileExists(); err != nil {
		return nil, fmt.Errorf("failed to ensure file exists: %w", err)
	}

	if err := store.loadData(); err != nil {
		return nil, fmt.Errorf("failed to load initial data: %w", err)
	}

	return store, nil
}

// ensureFileExists creates the JSON file with an empty document if needed.
func (j *JSONStore) ensureFileExists() error {
	if _, err := os.Stat(j.filePath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(j.filePath), 0700); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		empty := &jsonDocument{
			Entries:     make(map[string]json.RawMessage),
			LastUpdated: time.Now(),
		}
		return j.saveData(empty)
	}
	return nil
}

// loadData loads the document from disk with caching. It uses double-checked
// locking: a fast read-lock path for cache hits, and a write-lock slow path
// with re-validation to prevent TOCTOU races.
func (j *JSONStore) loadData() error {
	// Fast path: cache is still valid.
	j.mu.RLock()
	if j.data != nil && time.Now().Before(j.cacheExpiry) {
		j.mu.RUnlock()
		return nil
	}
	j.mu.RUnlock()

	// Slow path: acquire write lock and re-validate before doing any I/O.
	j.mu.Lock()
	defer j.mu.Unlock()

	// Another goroutine may have loaded while we waited for the write lock.
	if j.data != nil && time.Now().Before(j.cacheExpiry) {
		return nil
	}

	info, err := os.Stat(j.filePath)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	// If the file hasn't changed, extend the cache and return.
	if j.data != nil && !info.ModTime().After(j.lastModified) {
		j.cacheExpiry = time.Now().Add(j.cacheTTL)
		return nil
	}

	fileData, err := os.ReadFile(j.filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var doc jsonDocument
	if err := json.Unmarshal(fileData, &doc); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	if doc.Entries == nil {
		doc.Entries = make(map[string]json.RawMessage)
	}

	j.data = &doc
	j.lastModified = info.ModTime()
	j.cacheExpiry = time.Now().Add(j.cacheTTL)
	return nil
}

// saveData writes the document to disk. Callers must hold the write lock.
func (j *JSONStore) saveData(doc *jsonDocument) error {
	doc.LastUpdated = time.Now()

	fileData, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(j.filePath, fileData, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// Get returns the value stored under key, or ErrNotFound.
func (j *JSONStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := j.loadData(); err != nil {
		return nil, err
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	raw, exists := j.data.Entries[key]
	if !exists {
		return nil, ErrNotFound
	}

	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

// Set stores value under key. The value must be valid JSON; the whole
// document is rewritten per write, which keeps the failure mode under
// concurrent writers "lose one update" rather than "corrupt the file".
func (j *JSONStore) Set(ctx context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("value for key %s is not valid JSON", key)
	}

	if err := j.loadData(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	stored := make(json.RawMessage, len(value))
	copy(stored, value)
	j.data.Entries[key] = stored
	return j.saveData(j.data)
}

// Delete removes the value under key.
func (j *JSONStore) Delete(ctx context.Context, key string) error {
	if err := j.loadData(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, exists := j.data.Entries[key]; !exists {
		return nil
	}
	delete(j.data.Entries, key)
	return j.saveData(j.data)
}

// Ping verifies the backing file is accessible.
func (j *JSONStore) Ping(_ context.Context) error {
	_, err := os.Stat(j.filePath)
	return err
}

// Close clears the cache and releases resources.
func (j *JSONStore) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.data = nil
	j.cacheExpiry = time.Time{}
	return nil
}
