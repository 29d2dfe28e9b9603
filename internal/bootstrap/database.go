package bootstrap

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	infralogger "github.com/jonesrussell/north-cloud/orchestrator/infrastructure/logger"
	infraredis "github.com/jonesrussell/north-cloud/orchestrator/infrastructure/redis"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/config"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/database"
)

// SetupDatabase creates a database connection from config.
func SetupDatabase(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	db, connErr := database.NewPostgresConnection(ctx, cfg.Database.Postgres())
	if connErr != nil {
		return nil, fmt.Errorf("database connection: %w", connErr)
	}

	return db, nil
}

// SetupRedis connects to Redis when enabled. Redis only carries digest
// publishing, so a failed connection is logged and the service runs without it.
func SetupRedis(ctx context.Context, cfg *config.Config, log infralogger.Logger) *redis.Client {
	if !cfg.Redis.Enabled {
		log.Info("Redis disabled, web-digest publishing will be skipped")
		return nil
	}

	client, err := infraredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Warn("Redis unavailable, web-digest publishing will be skipped",
			infralogger.String("address", cfg.Redis.Address),
			infralogger.Error(err),
		)
		return nil
	}

	log.Info("Redis connection established", infralogger.String("address", cfg.Redis.Address))
	return client
}
