// Package cmd implements the orchestrator command-line interface.
package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	infraconfig "github.com/jonesrussell/north-cloud/orchestrator/infrastructure/config"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/database"
)

// Viper keys.
const (
	keyConfig         = "config"
	keyMigrationsPath = "migrations.path"
)

// NewRootCommand builds the command tree. Running it without a subcommand serves.
func NewRootCommand() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:           "orchestrator",
		Short:         "Scheduled workflow orchestrator",
		Long:          `Runs cron-scheduled workflows and records their content, publish history and logs in PostgreSQL.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return bootstrap.Start(cmd.Context(), configPath(v))
		},
	}

	root.PersistentFlags().String(keyConfig, "", "config file (default $CONFIG_PATH or ./config.yml)")
	root.PersistentFlags().String("migrations", database.DefaultMigrationsPath, "migrations directory")
	_ = v.BindPFlag(keyConfig, root.PersistentFlags().Lookup(keyConfig))
	_ = v.BindPFlag(keyMigrationsPath, root.PersistentFlags().Lookup("migrations"))
	_ = v.BindEnv(keyConfig, infraconfig.DefaultPathEnv)
	_ = v.BindEnv(keyMigrationsPath, "MIGRATIONS_PATH")

	root.AddCommand(newServeCommand(v), newMigrateCommand(v))
	return root
}

// Execute runs the root command until SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return NewRootCommand().ExecuteContext(ctx)
}

func configPath(v *viper.Viper) string {
	if p := v.GetString(keyConfig); p != "" {
		return p
	}
	return bootstrap.DefaultConfigPath
}
