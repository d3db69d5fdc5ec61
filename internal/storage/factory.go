package storage

import (
	"fmt"

	"customizer/internal/models"
)

// Factory provides a centralized way to create store instances based on
// configuration. This allows provider swapping without code changes.
type Factory struct{}

// NewFactory creates a new storage factory.
func NewFactory() *Factory {
	return &Factory{}
}

// Create instantiates a store based on the provided configuration.
// Supported providers:
//   - json: single-file JSON storage (thread-safe with caching)
//   - memory: in-memory storage (for testing/development)
//   - sqlite: SQLite database storage (lightweight, durable)
//   - postgres: PostgreSQL database storage (production-ready)
//   - redis: Redis-backed storage (shared cache deployments)
func (f *Factory) Create(config models.StorageConfig) (Store, error) {
	storeConfig := Config{
		Type:             config.Type,
		Path:             config.Path,
		ConnectionString: config.Database.DSN,
		CacheTTL:         config.CacheTTL.String(),
	}

	switch config.Type {
	case models.StorageTypeJSON:
		return NewJSONStore(storeConfig)
	case models.StorageTypeMemory:
		return NewMemoryStore(storeConfig)
	case models.StorageTypeSQLite:
		return NewSQLiteStore(storeConfig)
	case models.StorageTypePostgres:
		return NewPostgresStore(storeConfig)
	case models.StorageTypeRedis:
		return NewRedisStore(storeConfig)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Type)
	}
}

// GetSupportedProviders returns all supported storage provider types.
func (f *Factory) GetSupportedProviders() []string {
	return []string{
		models.StorageTypeJSON,
		models.StorageTypeMemory,
		models.StorageTypeSQLite,
		models.StorageTypePostgres,
		models.StorageTypeRedis,
	}
}

// ValidateConfig validates that a storage configuration is usable for its
// type before any connection is attempted.
func (f *Factory) ValidateConfig(config models.StorageConfig) error {
	switch config.Type {
	case models.StorageTypeJSON:
		if config.Path == "" {
			return fmt.Errorf("path is required for JSON storage")
		}
	case models.StorageTypeMemory:
		// Memory storage requires no additional configuration.
	case models.StorageTypeSQLite, models.StorageTypePostgres, models.StorageTypeRedis:
		if config.Database.DSN == "" {
			return fmt.Errorf("database DSN is required for %s storage", config.Type)
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", config.Type)
	}
	return nil
}
