package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/liamcoop/rulevalidator/internal/config"
	"github.com/liamcoop/rulevalidator/internal/database"
	"github.com/liamcoop/rulevalidator/internal/logger"
	"github.com/liamcoop/rulevalidator/internal/metrics"
	"github.com/liamcoop/rulevalidator/multitenantengine"
	"github.com/liamcoop/rulevalidator/rules"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand creates the root command. Without a subcommand it serves
// the HTTP API.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:          "rulevalidator",
		Short:        "Rule validation API",
		Long:         "Evaluates field/condition rules against JSON payloads over HTTP.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, opts)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", os.Getenv("RULEVALIDATOR_CONFIG"), "path to the YAML configuration file")

	cmd.AddCommand(NewCheckCommand(opts))

	return cmd
}

func runServer(ctx context.Context, opts *RootOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	if err := logger.Configure(ctx, logger.Options{
		Level:           cfg.Logging.Level,
		ErrorSampleRate: cfg.Logging.ErrorSampleRate,
		OTEL:            cfg.Logging.OTEL,
		ServiceName:     cfg.Logging.ServiceName,
	}); err != nil {
		logger.Warn("logger configuration incomplete", "error", err)
	}
	defer logger.Shutdown(context.Background())

	tenants, ruleStores, db, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	var collector *metrics.Collector
	managerOpts := []multitenantengine.ManagerOption{
		multitenantengine.WithDefaultOptions(rules.Options{LegacyComparisons: cfg.Engine.LegacyComparisons}),
		multitenantengine.WithCacheConfig(rules.CacheConfig{TTL: cfg.Engine.CacheTTL}),
	}
	if cfg.Metrics.IsEnabled() {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, nil)
		managerOpts = append(managerOpts, multitenantengine.WithEngineOptions(rules.WithObserver(collector)))
	}

	manager := multitenantengine.NewMultiTenantEngineManager(tenants, ruleStores, managerOpts...)

	logger.Info("loading tenants", "storage", cfg.Storage.Backend)
	if err := manager.EnsureDefaultTenant(ctx); err != nil {
		return fmt.Errorf("failed to ensure default tenant: %w", err)
	}
	if err := manager.LoadAllTenants(ctx); err != nil {
		return fmt.Errorf("failed to load tenants: %w", err)
	}

	if collector != nil {
		collector.RegisterTenantGauge(manager.Count)
	}

	resync := multitenantengine.NewResyncScheduler(manager, cfg.Tenants.ResyncSchedule)
	if err := resync.Start(ctx); err != nil {
		return err
	}
	defer resync.Stop()

	if opts.ConfigPath != "" {
		watchConfig(ctx, opts.ConfigPath)
	}

	server := NewServer(cfg, manager, db, collector)

	httpServer := &http.Server{
		Addr:         cfg.Server.ListenAddress,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Rules Validation server started", "address", cfg.Server.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// openStorage builds the tenant and rule stores for the configured backend.
// db is nil for the memory backend.
func openStorage(ctx context.Context, cfg config.StorageConfig) (multitenantengine.TenantStore, multitenantengine.RuleStoreProvider, *sql.DB, error) {
	if cfg.Backend == config.BackendMemory {
		return multitenantengine.NewInMemoryTenantStore(), multitenantengine.NewInMemoryRuleStores(), nil, nil
	}

	dialect, err := database.ParseDialect(cfg.Backend)
	if err != nil {
		return nil, nil, nil, err
	}

	db, err := database.Open(ctx, dialect, cfg.DSN)
	if err != nil {
		return nil, nil, nil, err
	}

	if cfg.AutoMigrate == nil || *cfg.AutoMigrate {
		if err := database.Migrate(db, dialect); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		logger.Info("database migrations applied", "dialect", dialect)
	}

	return multitenantengine.NewSQLTenantStore(db, dialect), multitenantengine.NewSQLRuleStores(db, dialect), db, nil
}

// watchConfig re-applies the log level whenever the configuration file
// changes. Other settings take effect on restart.
func watchConfig(ctx context.Context, path string) {
	watcher, err := config.NewWatcher(path, config.DefaultDebounceInterval)
	if err != nil {
		logger.Warn("config watcher disabled", "error", err)
		return
	}

	go func() {
		err := watcher.Watch(ctx, func(cfg *config.Config) {
			level, err := logger.ParseLevel(cfg.Logging.Level)
			if err != nil {
				return
			}
			if level != logger.GetLevel() {
				logger.SetLevel(level)
				logger.Info("log level changed", "level", cfg.Logging.Level)
			}
		})
		if err != nil {
			logger.Error("config watcher stopped", "error", err)
		}
	}()
}

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
