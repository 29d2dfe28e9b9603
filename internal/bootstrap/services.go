package bootstrap

import (
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/jonesrussell/north-cloud/orchestrator/infrastructure/circuitbreaker"
	"github.com/jonesrussell/north-cloud/orchestrator/infrastructure/httpclient"
	infralogger "github.com/jonesrussell/north-cloud/orchestrator/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/orchestrator/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/config"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/database"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/domain"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/persistence"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/scheduler"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/steps"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/telemetry"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/workflow"
)

// Services is the wired application graph.
type Services struct {
	Telemetry  *telemetry.Provider
	Registry   *scheduler.Registry
	Manager    *workflow.Manager
	Contents   *database.ContentRepository
	Publishes  *database.PublishHistoryRepository
	SystemLogs *database.SystemLogRepository
}

// SetupServices wires repositories, the persistence adapter, the workflow
// catalog, the scheduler registry and the lifecycle manager.
func SetupServices(
	cfg *config.Config,
	db *sqlx.DB,
	redisClient *redis.Client,
	log infralogger.Logger,
) (*Services, error) {
	loc, locErr := cfg.Scheduler.Location()
	if locErr != nil {
		return nil, locErr
	}

	provider := telemetry.NewProvider()

	workflows := database.NewWorkflowRepository(db)
	contents := database.NewContentRepository(db)
	publishes := database.NewPublishHistoryRepository(db)
	systemLogs := database.NewSystemLogRepository(db)

	adapter := persistence.NewAdapter(contents, publishes, systemLogs, log,
		persistence.WithLocation(loc),
		persistence.WithTelemetry(provider),
	)

	catalog := NewCatalog(steps.Dependencies{
		HTTPClient: httpclient.NewClient(httpclient.Config{
			Timeout:   cfg.Steps.HTTPTimeout,
			UserAgent: steps.UserAgent,
		}),
		Redis:          redisClient,
		FetchLimiter:   rate.NewLimiter(rate.Limit(cfg.Steps.FetchRPS), cfg.Steps.FetchBurst),
		PublishBreaker: newPublishBreaker(cfg, log),
		Retry: retry.Config{
			MaxAttempts:  cfg.Steps.RetryAttempts,
			InitialDelay: cfg.Steps.RetryDelay,
		},
		Logger:    log,
		Telemetry: provider,
	})

	registry := scheduler.NewRegistry(loc, log)
	manager := workflow.NewManager(workflows, catalog, registry, adapter, log,
		workflow.WithTelemetry(provider),
	)

	return &Services{
		Telemetry:  provider,
		Registry:   registry,
		Manager:    manager,
		Contents:   contents,
		Publishes:  publishes,
		SystemLogs: systemLogs,
	}, nil
}

func newPublishBreaker(cfg *config.Config, log infralogger.Logger) *circuitbreaker.Breaker {
	return circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.Steps.PublishFailureThreshold,
		OpenTimeout:      cfg.Steps.PublishOpenTimeout,
		OnStateChange: func(from, to circuitbreaker.State) {
			log.Warn("Digest publish breaker changed state",
				infralogger.String("from", from.String()),
				infralogger.String("to", to.String()),
			)
		},
	})
}

// NewCatalog registers the built-in workflow types.
func NewCatalog(deps steps.Dependencies) *workflow.Catalog {
	catalog := workflow.NewCatalog()
	catalog.Register(domain.TypeWebDigest,
		"Fetch a web page, extract article links and publish a digest to Redis",
		func(w *domain.Workflow) steps.Instance { return steps.NewWebDigest(deps, w.ID) },
	)
	catalog.Register(domain.TypeHeartbeat,
		"Record a heartbeat log line",
		func(w *domain.Workflow) steps.Instance { return steps.NewHeartbeat(deps, w.ID) },
	)
	return catalog
}
