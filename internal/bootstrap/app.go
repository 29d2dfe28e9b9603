// Package bootstrap handles application initialization and lifecycle management
// for the orchestrator service.
package bootstrap

import (
	"context"
	"fmt"

	infralogger "github.com/jonesrussell/north-cloud/orchestrator/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/orchestrator/infrastructure/profiling"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/config"
)

// Start initializes and runs the orchestrator service until ctx is cancelled
// or a termination signal arrives.
func Start(ctx context.Context, configPath string) error {
	cfg, configErr := LoadConfig(configPath)
	if configErr != nil {
		return fmt.Errorf("config: %w", configErr)
	}

	log, logErr := CreateLogger(cfg)
	if logErr != nil {
		return fmt.Errorf("logger: %w", logErr)
	}
	defer func() { _ = log.Sync() }()

	profiler, profErr := profiling.Start(cfg.Service.Name, cfg.Service.Version, cfg.Profiling, log)
	if profErr != nil {
		log.Warn("Profiling disabled", infralogger.Error(profErr))
	} else {
		defer func() { _ = profiler.Stop() }()
	}

	log.Info("Starting Orchestrator Service",
		infralogger.String("name", cfg.Service.Name),
		infralogger.String("version", cfg.Service.Version),
		infralogger.Int("port", cfg.Service.Port),
		infralogger.String("timezone", cfg.Scheduler.Timezone),
	)

	db, dbErr := SetupDatabase(ctx, cfg)
	if dbErr != nil {
		return fmt.Errorf("database: %w", dbErr)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("Failed to close database", infralogger.Error(closeErr))
		}
	}()
	log.Info("Database connection established")

	redisClient := SetupRedis(ctx, cfg, log)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	services, svcErr := SetupServices(cfg, db, redisClient, log)
	if svcErr != nil {
		return fmt.Errorf("services: %w", svcErr)
	}

	report, reconcileErr := services.Manager.Reconcile(ctx)
	if reconcileErr != nil {
		return fmt.Errorf("reconcile: %w", reconcileErr)
	}
	log.Info("Scheduler state restored",
		infralogger.Int("loaded", report.Loaded),
		infralogger.Int("armed", report.Armed),
		infralogger.Int("failed", report.Failed),
	)

	services.Registry.Start()
	defer shutdownServices(services, cfg, log)

	server := SetupHTTPServer(cfg, db, redisClient, services, log)

	if runErr := server.Run(ctx); runErr != nil {
		log.Error("Server error", infralogger.Error(runErr))
		return fmt.Errorf("server: %w", runErr)
	}

	log.Info("Orchestrator Service stopped")
	return nil
}

// shutdownServices stops cron firings first, then cancels and drains in-flight runs.
func shutdownServices(services *Services, cfg *config.Config, log infralogger.Logger) {
	//nolint:contextcheck // the serve context is already done
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Scheduler.ShutdownTimeout)
	defer cancel()

	if err := services.Registry.Stop(ctx); err != nil {
		log.Warn("Scheduler did not stop cleanly", infralogger.Error(err))
	}
	if err := services.Manager.Shutdown(ctx); err != nil {
		log.Warn("In-flight runs did not finish before shutdown timeout", infralogger.Error(err))
	}
}
