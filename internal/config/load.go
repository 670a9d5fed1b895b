package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "RULEVALIDATOR_"

// Load reads the YAML file at path, applies defaults and environment
// overrides, and validates the result. An empty path loads defaults and
// environment overrides only.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// The unprefixed PORT, DATABASE_URL and LOG_LEVEL are applied first so the
// prefixed variables win when both are set.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("PORT"); val != "" {
		cfg.Server.ListenAddress = ":" + val
	}
	if val := os.Getenv("DATABASE_URL"); val != "" {
		cfg.Storage.DSN = val
		if cfg.Storage.Backend == BackendMemory {
			cfg.Storage.Backend = BackendPostgres
		}
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("OTEL_ENABLED"); val != "" {
		setBool(&cfg.Logging.OTEL, val)
	}
	if val := os.Getenv("OTEL_SERVICE_NAME"); val != "" {
		cfg.Logging.ServiceName = val
	}

	// Server
	setString(&cfg.Server.ListenAddress, "SERVER_LISTEN_ADDRESS")
	setDuration(&cfg.Server.ReadTimeout, "SERVER_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "SERVER_WRITE_TIMEOUT")
	setDuration(&cfg.Server.IdleTimeout, "SERVER_IDLE_TIMEOUT")
	setDuration(&cfg.Server.RequestTimeout, "SERVER_REQUEST_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "SERVER_SHUTDOWN_TIMEOUT")
	setDuration(&cfg.Server.SlowRequestThreshold, "SERVER_SLOW_REQUEST_THRESHOLD")
	if val := os.Getenv(envPrefix + "SERVER_MAX_BODY_BYTES"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Server.MaxBodyBytes = n
		}
	}

	// Storage
	setString(&cfg.Storage.Backend, "STORAGE_BACKEND")
	setString(&cfg.Storage.DSN, "STORAGE_DSN")
	if val := os.Getenv(envPrefix + "STORAGE_AUTO_MIGRATE"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Storage.AutoMigrate = &b
		}
	}

	// Engine
	if val := os.Getenv(envPrefix + "ENGINE_LEGACY_COMPARISONS"); val != "" {
		setBool(&cfg.Engine.LegacyComparisons, val)
	}
	setDuration(&cfg.Engine.CacheTTL, "ENGINE_CACHE_TTL")

	// Tenants
	setString(&cfg.Tenants.ResyncSchedule, "TENANTS_RESYNC_SCHEDULE")

	// Metrics
	if val := os.Getenv(envPrefix + "METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Metrics.Enabled = &b
		}
	}
	setString(&cfg.Metrics.Path, "METRICS_PATH")
	setString(&cfg.Metrics.Namespace, "METRICS_NAMESPACE")

	// Logging
	setString(&cfg.Logging.Level, "LOGGING_LEVEL")
	if val := os.Getenv(envPrefix + "LOGGING_ERROR_SAMPLE_RATE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Logging.ErrorSampleRate = n
		}
	}
	if val := os.Getenv(envPrefix + "LOGGING_OTEL"); val != "" {
		setBool(&cfg.Logging.OTEL, val)
	}
}

func setString(dst *string, name string) {
	if val := os.Getenv(envPrefix + name); val != "" {
		*dst = val
	}
}

func setDuration(dst *time.Duration, name string) {
	if val := os.Getenv(envPrefix + name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func setBool(dst *bool, val string) {
	if b, err := strconv.ParseBool(val); err == nil {
		*dst = b
	}
}
