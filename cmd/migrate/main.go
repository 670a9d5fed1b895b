package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/liamcoop/rulevalidator/internal/config"
	"github.com/liamcoop/rulevalidator/internal/database"
	"github.com/liamcoop/rulevalidator/internal/logger"
)

type migrateOptions struct {
	ConfigPath string
	DSN        string
	Dialect    string
}

func newRootCommand() *cobra.Command {
	opts := &migrateOptions{}

	cmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the rule validator database schema",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", os.Getenv("RULEVALIDATOR_CONFIG"), "path to the YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", os.Getenv("DATABASE_URL"), "database DSN; overrides the configuration")
	cmd.PersistentFlags().StringVar(&opts.Dialect, "dialect", "", "postgres or sqlite; overrides the configuration")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply every pending migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd.Context(), opts, func(m *migrate.Migrate) error {
					logger.Info("running migrations up")
					err := m.Up()
					if errors.Is(err, migrate.ErrNoChange) {
						logger.Info("no migrations to run, database is up to date")
						return nil
					}
					if err != nil {
						return fmt.Errorf("failed to run migrations: %w", err)
					}
					logger.Info("migrations completed")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd.Context(), opts, func(m *migrate.Migrate) error {
					logger.Info("rolling back migrations")
					if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
						return fmt.Errorf("failed to roll back migrations: %w", err)
					}
					logger.Info("rollback completed")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd.Context(), opts, func(m *migrate.Migrate) error {
					version, dirty, err := m.Version()
					if errors.Is(err, migrate.ErrNilVersion) {
						fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
						return nil
					}
					if err != nil {
						return fmt.Errorf("failed to get version: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %v)\n", version, dirty)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Set the schema version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version number %q: %w", args[0], err)
				}
				return withMigrator(cmd.Context(), opts, func(m *migrate.Migrate) error {
					if err := m.Force(version); err != nil {
						return fmt.Errorf("failed to force version: %w", err)
					}
					logger.Info("forced schema version", "version", version)
					return nil
				})
			},
		},
	)

	return cmd
}

// withMigrator resolves the target database from flags and configuration,
// and runs fn against a migrator over the embedded migrations.
func withMigrator(ctx context.Context, opts *migrateOptions, fn func(*migrate.Migrate) error) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	if level, err := logger.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}

	backend, dsn := cfg.Storage.Backend, cfg.Storage.DSN
	if opts.Dialect != "" {
		backend = opts.Dialect
	}
	if opts.DSN != "" {
		dsn = opts.DSN
		if opts.Dialect == "" && backend == config.BackendMemory {
			backend = config.BackendPostgres
		}
	}

	dialect, err := database.ParseDialect(backend)
	if err != nil {
		return err
	}

	logger.Info("connecting to database", "dialect", dialect)
	db, err := database.Open(ctx, dialect, dsn)
	if err != nil {
		return err
	}

	m, err := database.NewMigrator(db, dialect)
	if err != nil {
		db.Close()
		return err
	}
	defer m.Close()

	return fn(m)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
