package bootstrap

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	infragin "github.com/jonesrussell/north-cloud/orchestrator/infrastructure/gin"
	infralogger "github.com/jonesrussell/north-cloud/orchestrator/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/orchestrator/infrastructure/metrics"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/api"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/config"
)

const (
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 60 * time.Second
	defaultIdleTimeout  = 120 * time.Second
	metricsNamespace    = "orchestrator"
)

// SetupHTTPServer creates the HTTP server with all handlers wired.
func SetupHTTPServer(
	cfg *config.Config,
	db *sqlx.DB,
	redisClient *redis.Client,
	services *Services,
	log infralogger.Logger,
) *infragin.Server {
	workflowHandler := api.NewWorkflowHandler(services.Manager, log)
	recordsHandler := api.NewRecordsHandler(
		services.Publishes, services.SystemLogs, services.Contents, services.Registry.Location(), log,
	)
	httpMetrics := metrics.NewHTTPMetrics(services.Telemetry.Registerer(), metricsNamespace)

	builder := infragin.NewServerBuilder(cfg.Service.Name, cfg.Service.Port).
		WithLogger(log).
		WithDebug(cfg.Service.Debug).
		WithVersion(cfg.Service.Version).
		WithTimeouts(defaultReadTimeout, defaultWriteTimeout, defaultIdleTimeout).
		WithShutdownTimeout(cfg.Scheduler.ShutdownTimeout).
		WithDatabaseHealthCheck(db.PingContext).
		WithRoutes(func(router *gin.Engine) {
			router.Use(httpMetrics.Middleware())
			api.SetupRoutes(router, workflowHandler, recordsHandler, services.Telemetry.Handler(), cfg.Auth.JWTSecret)
		})

	if redisClient != nil {
		builder = builder.WithHealthCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	return builder.Build()
}
