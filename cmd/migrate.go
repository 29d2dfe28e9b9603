package cmd

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	infralogger "github.com/jonesrussell/north-cloud/orchestrator/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/database"
)

func newMigrateCommand(v *viper.Viper) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	migrateCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return withMigrator(v, func(m *database.Migrator, _ infralogger.Logger) error {
					return m.Up()
				})
			},
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Roll back migrations (default 1)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				steps := 1
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil {
						return fmt.Errorf("invalid steps %q: %w", args[0], err)
					}
					steps = n
				}
				return withMigrator(v, func(m *database.Migrator, _ infralogger.Logger) error {
					return m.Down(steps)
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied migration version",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return withMigrator(v, func(m *database.Migrator, log infralogger.Logger) error {
					version, dirty, err := m.Version()
					if err != nil {
						return err
					}
					log.Info("Migration version",
						infralogger.Int("version", int(version)),
						infralogger.Bool("dirty", dirty),
					)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the migration version without running it",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				version, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return withMigrator(v, func(m *database.Migrator, _ infralogger.Logger) error {
					return m.Force(version)
				})
			},
		},
	)

	return migrateCmd
}

func withMigrator(v *viper.Viper, fn func(*database.Migrator, infralogger.Logger) error) error {
	cfg, err := bootstrap.LoadConfig(configPath(v))
	if err != nil {
		return err
	}

	log, err := bootstrap.CreateLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, err := sql.Open("postgres", cfg.Database.Postgres().DSN())
	if err != nil {
		return fmt.Errorf("open database connection: %w", err)
	}

	migrator, err := database.NewMigrator(db, v.GetString(keyMigrationsPath), log)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer func() { _ = migrator.Close() }()

	return fn(migrator, log)
}
