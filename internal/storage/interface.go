package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key has no value in the store.
var ErrNotFound = errors.New("key not found")

// Store defines the shared key-value persistence contract. Each logical
// collection (retry queue, rate counters, settings, actor directory) is held
// as one document under one key; callers read, merge, and write the whole
// document per operation. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any existing value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes the value under key. Deleting an absent key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// Ping verifies the storage backend is reachable and operational.
	Ping(ctx context.Context) error

	// Close closes the storage connection and cleans up resources.
	Close() error
}

// Config holds configuration for storage backends.
type Config struct {
	// Type specifies the storage backend type (json, memory, postgres,
	// sqlite, redis).
	Type string `json:"type" yaml:"type"`

	// Path is used for file-based storage backends.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// ConnectionString is used for database and redis backends. For redis
	// it is a redis:// URL.
	ConnectionString string `json:"connection_string,omitempty" yaml:"connection_string,omitempty"`

	// CacheTTL specifies how long file-based backends cache data in memory.
	CacheTTL string `json:"cache_ttl,omitempty" yaml:"cache_ttl,omitempty"`
}
