// Package models - service configuration and operational settings.
// This file defines configuration structures for all service components.
//
// Configuration Philosophy:
// - Hierarchical configuration with logical grouping (server, storage, queue...)
// - Environment-friendly defaults that work out of the box
// - Comprehensive validation to catch misconfigurations early
// - Security-first approach with safe defaults
package models

import (
	"errors"
	"fmt"
	"time"
)

// Storage type constants
const (
	StorageTypeJSON     = "json"
	StorageTypeMemory   = "memory"
	StorageTypePostgres = "postgres"
	StorageTypeSQLite   = "sqlite"
	StorageTypeRedis    = "redis"
)

// Config is the root configuration structure containing all service settings.
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`               // HTTP server configuration
	Storage       StorageConfig       `yaml:"storage" json:"storage"`             // Key-value persistence settings
	Security      SecurityConfig      `yaml:"security" json:"security"`           // Sessions, tokens, transport limits
	Dispatch      DispatchConfig      `yaml:"dispatch" json:"dispatch"`           // Handler execution budget
	Queue         QueueConfig         `yaml:"queue" json:"queue"`                 // Retry queue and backoff policy
	RateLimit     RateLimitConfig     `yaml:"rate_limit" json:"rate_limit"`       // Per-action admission rate limit
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`             // Structured logging
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`             // Prometheus metrics endpoint
	Observability ObservabilityConfig `yaml:"observability" json:"observability"` // Tracing
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
	CORS         CORSConfig    `yaml:"cors" json:"cors"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
	MaxAge         int      `yaml:"max_age" json:"max_age"`
}

type StorageConfig struct {
	Type     string         `yaml:"type" json:"type"`
	Path     string         `yaml:"path" json:"path"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	CacheTTL time.Duration  `yaml:"cache_ttl" json:"cache_ttl"`
}

type DatabaseConfig struct {
	DSN          string `yaml:"dsn" json:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns" json:"max_idle_conns"`
}

type SecurityConfig struct {
	// EnableAuth requires a session key on every non-anonymous endpoint.
	EnableAuth bool `yaml:"enable_auth" json:"enable_auth"`

	// TokenSecret signs anti-forgery tokens. Required when auth is enabled.
	TokenSecret string `yaml:"token_secret" json:"token_secret"`

	// TokenLifetime is the width of one token validity window; tokens from
	// the previous window are also accepted.
	TokenLifetime time.Duration `yaml:"token_lifetime" json:"token_lifetime"`

	// BootstrapKey is seeded into the actor directory at startup with admin
	// permissions, for first-run provisioning.
	BootstrapKey string `yaml:"bootstrap_key" json:"bootstrap_key"`

	// Transport applies a token-bucket limit per client at the HTTP layer,
	// upstream of the per-action admission rate limit.
	Transport TransportLimitConfig `yaml:"transport_limit" json:"transport_limit"`
}

type TransportLimitConfig struct {
	Enabled           bool          `yaml:"enabled" json:"enabled"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int           `yaml:"burst_size" json:"burst_size"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
}

type DispatchConfig struct {
	// Timeout is the default handler execution budget. Registrations may
	// override it per action.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

type QueueConfig struct {
	MaxRetries int           `yaml:"max_retries" json:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay" json:"max_delay"`
	MaxSize    int           `yaml:"max_size" json:"max_size"`
	Retention  time.Duration `yaml:"retention" json:"retention"`

	// SweepInterval and CleanupInterval drive the scheduler in the
	// composition root. The queue processor itself carries no timers.
	SweepInterval   time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
}

type RateLimitConfig struct {
	// Limit is the number of admitted calls per (action, actor) pair within
	// one fixed window.
	Limit int `yaml:"limit" json:"limit"`

	// Window is the fixed window width. Counters reset when the window
	// rolls over; the boundary burst is an accepted tradeoff.
	Window time.Duration `yaml:"window" json:"window"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"` // stdout or otlp
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration with production-ready defaults.
//
// The queue and rate-limit defaults are deliberately conservative: three
// retries with 1s base delay capped at 30s, a 100-ticket queue, 24h ticket
// retention, and 60 admitted calls per actor per action per minute.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			TLSEnabled:   false,
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"*"},
				MaxAge:         86400,
			},
		},
		Storage: StorageConfig{
			Type:     StorageTypeJSON,
			Path:     "./data/customizer.json",
			CacheTTL: 5 * time.Minute,
			Database: DatabaseConfig{
				MaxOpenConns: 25,
				MaxIdleConns: 5,
			},
		},
		Security: SecurityConfig{
			EnableAuth:    false,
			TokenLifetime: 15 * time.Minute,
			Transport: TransportLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 120,
				BurstSize:         20,
				CleanupInterval:   5 * time.Minute,
			},
		},
		Dispatch: DispatchConfig{
			Timeout: 30 * time.Second,
		},
		Queue: QueueConfig{
			MaxRetries:      3,
			BaseDelay:       time.Second,
			MaxDelay:        30 * time.Second,
			MaxSize:         100,
			Retention:       24 * time.Hour,
			SweepInterval:   30 * time.Second,
			CleanupInterval: 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Limit:  60,
			Window: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "customizer",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}
	if err := c.Security.Validate(); err != nil {
		return fmt.Errorf("invalid security config: %w", err)
	}
	if err := c.Dispatch.Validate(); err != nil {
		return fmt.Errorf("invalid dispatch config: %w", err)
	}
	if err := c.Queue.Validate(); err != nil {
		return fmt.Errorf("invalid queue config: %w", err)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("invalid rate limit config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}
	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}
	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}
	if sc.ReadTimeout < 0 || sc.WriteTimeout < 0 || sc.IdleTimeout < 0 {
		return errors.New("timeouts cannot be negative")
	}
	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}
	return nil
}

func (stc *StorageConfig) Validate() error {
	switch stc.Type {
	case StorageTypeMemory:
		// No additional configuration required.
	case StorageTypeJSON:
		if stc.Path == "" {
			return errors.New("path is required for JSON storage")
		}
	case StorageTypePostgres, StorageTypeSQLite, StorageTypeRedis:
		if stc.Database.DSN == "" {
			return fmt.Errorf("database DSN is required for %s storage", stc.Type)
		}
	default:
		return fmt.Errorf("invalid storage type: %s", stc.Type)
	}
	if stc.CacheTTL < 0 {
		return errors.New("cache TTL cannot be negative")
	}
	return nil
}

func (sec *SecurityConfig) Validate() error {
	if sec.EnableAuth && sec.TokenSecret == "" {
		return errors.New("token secret is required when auth is enabled")
	}
	if sec.TokenLifetime <= 0 {
		return errors.New("token lifetime must be positive")
	}
	if sec.Transport.Enabled {
		if sec.Transport.RequestsPerMinute <= 0 {
			return errors.New("transport requests per minute must be positive")
		}
		if sec.Transport.BurstSize <= 0 {
			return errors.New("transport burst size must be positive")
		}
	}
	return nil
}

func (dc *DispatchConfig) Validate() error {
	if dc.Timeout <= 0 {
		return errors.New("dispatch timeout must be positive")
	}
	return nil
}

func (qc *QueueConfig) Validate() error {
	if qc.MaxRetries < 0 {
		return errors.New("max retries cannot be negative")
	}
	if qc.BaseDelay <= 0 {
		return errors.New("base delay must be positive")
	}
	if qc.MaxDelay < qc.BaseDelay {
		return errors.New("max delay cannot be less than base delay")
	}
	if qc.MaxSize <= 0 {
		return errors.New("queue size must be positive")
	}
	if qc.Retention <= 0 {
		return errors.New("retention must be positive")
	}
	return nil
}

func (rc *RateLimitConfig) Validate() error {
	if rc.Limit <= 0 {
		return errors.New("rate limit must be positive")
	}
	if rc.Window <= 0 {
		return errors.New("rate limit window must be positive")
	}
	return nil
}

func (lc *LoggingConfig) Validate() error {
	switch lc.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}
	switch lc.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}
	switch lc.Output {
	case "stdout", "stderr", "file":
	default:
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}
	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}
	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}
	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}
	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}
	return nil
}

func (oc *ObservabilityConfig) Validate() error {
	if !oc.Tracing.Enabled {
		return nil
	}
	switch oc.Tracing.Exporter {
	case "stdout":
	case "otlp":
		if oc.Tracing.OTLPEndpoint == "" {
			return errors.New("OTLP endpoint is required for the otlp exporter")
		}
	default:
		return fmt.Errorf("invalid trace exporter: %s", oc.Tracing.Exporter)
	}
	if oc.Tracing.SampleRate < 0 || oc.Tracing.SampleRate > 1 {
		return errors.New("sample rate must be between 0 and 1")
	}
	return nil
}
