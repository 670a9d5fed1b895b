package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultListenAddress, cfg.Server.ListenAddress)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.True(t, *cfg.Storage.AutoMigrate)
	assert.True(t, cfg.Metrics.IsEnabled())
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.False(t, cfg.Engine.LegacyComparisons)
	assert.NoError(t, Validate(cfg))
}

func TestApplyDefaultsIdempotent(t *testing.T) {
	cfg := &Config{Server: ServerConfig{ListenAddress: ":9000"}}
	ApplyDefaults(cfg)
	first := *cfg
	ApplyDefaults(cfg)

	assert.Equal(t, first.Server, cfg.Server)
	assert.Equal(t, ":9000", cfg.Server.ListenAddress)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
server:
  listen_address: ":8080"
  request_timeout: 5s
storage:
  backend: sqlite
  dsn: /tmp/rules.db
  auto_migrate: false
engine:
  legacy_comparisons: true
  cache_ttl: 30s
tenants:
  resync_schedule: "*/5 * * * *"
metrics:
  enabled: false
logging:
  level: debug
owner:
  name: Ada
  github: "@ada"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.ListenAddress)
	assert.Equal(t, 5*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, DefaultReadTimeout, cfg.Server.ReadTimeout)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.False(t, *cfg.Storage.AutoMigrate)
	assert.True(t, cfg.Engine.LegacyComparisons)
	assert.Equal(t, 30*time.Second, cfg.Engine.CacheTTL)
	assert.Equal(t, "*/5 * * * *", cfg.Tenants.ResyncSchedule)
	assert.False(t, cfg.Metrics.IsEnabled())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "Ada", cfg.Owner.Name)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultListenAddress, cfg.Server.ListenAddress)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read")

	_, err = Load(writeConfig(t, dir, "server: [not a map"))
	assert.ErrorContains(t, err, "failed to parse")
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
server:
  listen_address: ":8080"
`)

	t.Setenv("PORT", "4000")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/rules?sslmode=disable")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("RULEVALIDATOR_ENGINE_LEGACY_COMPARISONS", "true")
	t.Setenv("RULEVALIDATOR_ENGINE_CACHE_TTL", "1m")
	t.Setenv("RULEVALIDATOR_METRICS_ENABLED", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":4000", cfg.Server.ListenAddress)
	assert.Equal(t, BackendPostgres, cfg.Storage.Backend)
	assert.Equal(t, "postgres://u:p@localhost/rules?sslmode=disable", cfg.Storage.DSN)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Engine.LegacyComparisons)
	assert.Equal(t, time.Minute, cfg.Engine.CacheTTL)
	assert.False(t, cfg.Metrics.IsEnabled())
}

// Prefixed variables win over the legacy unprefixed ones.
func TestLoadEnvPrecedence(t *testing.T) {
	t.Setenv("PORT", "4000")
	t.Setenv("RULEVALIDATOR_SERVER_LISTEN_ADDRESS", "127.0.0.1:5000")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("RULEVALIDATOR_LOGGING_LEVEL", "error")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:5000", cfg.Server.ListenAddress)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "mongo" }, "storage.backend"},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = BackendPostgres }, "storage.dsn"},
		{"sqlite without dsn", func(c *Config) { c.Storage.Backend = BackendSQLite }, "storage.dsn"},
		{"bad cron", func(c *Config) { c.Tenants.ResyncSchedule = "every minute" }, "tenants.resync_schedule"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"negative ttl", func(c *Config) { c.Engine.CacheTTL = -time.Second }, "engine.cache_ttl"},
		{"relative metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, "metrics.path"},
		{"negative timeout", func(c *Config) { c.Server.ReadTimeout = -1 }, "server.read_timeout"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)

			err := Validate(cfg)
			var verr ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			require.Len(t, verr.Errors, 1)
			assert.Equal(t, tc.field, verr.Errors[0].Field)
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = "mongo"
	cfg.Logging.Level = "loud"

	err := Validate(cfg)
	var verr ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Errors, 2)
	assert.Contains(t, err.Error(), "2 errors")
}

func TestWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "logging:\n  level: info\n")

	w, err := NewWatcher(path, 20*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- w.Watch(ctx, func(cfg *Config) {
			select {
			case reloaded <- cfg:
			default:
			}
		})
	}()

	// Invalid content is skipped.
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0o644))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o644))

	// A truncate may be observed on its own; wait for the final content.
	timeout := time.After(5 * time.Second)
	for level := ""; level != "debug"; {
		select {
		case cfg := <-reloaded:
			assert.NotEqual(t, "loud", cfg.Logging.Level)
			level = cfg.Logging.Level
		case <-timeout:
			t.Fatal("config was not reloaded")
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
