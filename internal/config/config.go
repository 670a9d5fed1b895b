// Package config loads the service configuration from a YAML file, applies
// defaults and environment overrides, and validates the result.
//
// Environment variables follow the naming convention RULEVALIDATOR_SECTION_FIELD
// (e.g., RULEVALIDATOR_STORAGE_BACKEND). PORT, DATABASE_URL and LOG_LEVEL are
// honoured as well. Environment variables always take precedence over the file.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Engine  EngineConfig  `yaml:"engine"`
	Tenants TenantsConfig `yaml:"tenants"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
	Owner   OwnerConfig   `yaml:"owner"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	ListenAddress   string        `yaml:"listen_address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// SlowRequestThreshold marks requests to log as slow. Zero disables it.
	SlowRequestThreshold time.Duration `yaml:"slow_request_threshold"`

	// MaxBodyBytes bounds request bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// StorageConfig selects where tenants and rules are kept.
type StorageConfig struct {
	// Backend is one of memory, postgres or sqlite.
	Backend string `yaml:"backend"`

	// DSN is the connection string for postgres, or the database file for sqlite.
	DSN string `yaml:"dsn"`

	// AutoMigrate applies pending migrations on startup.
	AutoMigrate *bool `yaml:"auto_migrate"`
}

// EngineConfig configures rule evaluation.
type EngineConfig struct {
	// LegacyComparisons is the default evaluation policy for new tenants and
	// for the default tenant.
	LegacyComparisons bool `yaml:"legacy_comparisons"`

	// CacheTTL bounds how long a tenant's active rule list is cached.
	// Zero caches until the next mutation.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// TenantsConfig configures the tenant manager.
type TenantsConfig struct {
	// ResyncSchedule is a standard cron expression. When set, tenants are
	// reloaded from storage on that schedule. Empty disables resync.
	ResyncSchedule string `yaml:"resync_schedule"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   *bool  `yaml:"enabled"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// IsEnabled reports whether metrics are served.
func (m MetricsConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level           string `yaml:"level"`
	ErrorSampleRate int    `yaml:"error_sample_rate"`
	OTEL            bool   `yaml:"otel"`
	ServiceName     string `yaml:"service_name"`
}

// OwnerConfig is the profile served on the index route.
type OwnerConfig struct {
	Name    string `yaml:"name" json:"name"`
	Github  string `yaml:"github" json:"github"`
	Email   string `yaml:"email" json:"email"`
	Mobile  string `yaml:"mobile" json:"mobile"`
	Twitter string `yaml:"twitter" json:"twitter"`
}
