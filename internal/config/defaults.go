package config

import "time"

// Default values applied by ApplyDefaults.
const (
	DefaultListenAddress        = ":3000"
	DefaultReadTimeout          = 10 * time.Second
	DefaultWriteTimeout         = 10 * time.Second
	DefaultIdleTimeout          = 60 * time.Second
	DefaultRequestTimeout       = 30 * time.Second
	DefaultShutdownTimeout      = 15 * time.Second
	DefaultSlowRequestThreshold = time.Second
	DefaultMaxBodyBytes         = 1 << 20
	DefaultBackend              = BackendMemory
	DefaultMetricsPath          = "/metrics"
	DefaultMetricsNamespace     = "rulevalidator"
	DefaultLogLevel             = "info"
	DefaultErrorSampleRate      = 1
	DefaultServiceName          = "rulevalidator"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every unset field. It is idempotent.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.SlowRequestThreshold == 0 {
		cfg.Server.SlowRequestThreshold = DefaultSlowRequestThreshold
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultBackend
	}
	if cfg.Storage.AutoMigrate == nil {
		autoMigrate := true
		cfg.Storage.AutoMigrate = &autoMigrate
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.ErrorSampleRate == 0 {
		cfg.Logging.ErrorSampleRate = DefaultErrorSampleRate
	}
	if cfg.Logging.ServiceName == "" {
		cfg.Logging.ServiceName = DefaultServiceName
	}
}
