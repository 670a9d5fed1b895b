package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/liamcoop/rulevalidator/internal/logger"
)

// FieldError is a validation error for one configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "storage.dsn").
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every FieldError found in a configuration.
type ValidationError struct {
	Errors []FieldError
}

func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// Validate checks the configuration and returns a ValidationError listing
// every problem, or nil.
func Validate(cfg *Config) error {
	var errs []FieldError
	add := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if cfg.Server.ListenAddress == "" {
		add("server.listen_address", "must not be empty")
	}
	timeouts := []struct {
		field string
		value time.Duration
	}{
		{"server.read_timeout", cfg.Server.ReadTimeout},
		{"server.write_timeout", cfg.Server.WriteTimeout},
		{"server.idle_timeout", cfg.Server.IdleTimeout},
		{"server.request_timeout", cfg.Server.RequestTimeout},
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeout},
	}
	for _, timeout := range timeouts {
		if timeout.value <= 0 {
			add(timeout.field, "must be positive")
		}
	}
	if cfg.Server.SlowRequestThreshold < 0 {
		add("server.slow_request_threshold", "must not be negative")
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		add("server.max_body_bytes", "must be positive")
	}

	switch cfg.Storage.Backend {
	case BackendMemory:
	case BackendPostgres, BackendSQLite:
		if cfg.Storage.DSN == "" {
			add("storage.dsn", "is required for the %s backend", cfg.Storage.Backend)
		}
	default:
		add("storage.backend", "must be one of %s, %s, %s (got %q)", BackendMemory, BackendPostgres, BackendSQLite, cfg.Storage.Backend)
	}

	if cfg.Engine.CacheTTL < 0 {
		add("engine.cache_ttl", "must not be negative")
	}

	if cfg.Tenants.ResyncSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Tenants.ResyncSchedule); err != nil {
			add("tenants.resync_schedule", "invalid cron expression %q: %v", cfg.Tenants.ResyncSchedule, err)
		}
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		add("metrics.path", "must start with /")
	}

	if _, err := logger.ParseLevel(cfg.Logging.Level); err != nil {
		add("logging.level", "%v", err)
	}
	if cfg.Logging.ErrorSampleRate < 1 {
		add("logging.error_sample_rate", "must be at least 1")
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}
