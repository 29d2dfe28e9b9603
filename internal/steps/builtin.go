package steps

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/jonesrussell/north-cloud/orchestrator/infrastructure/circuitbreaker"
	"github.com/jonesrussell/north-cloud/orchestrator/infrastructure/httpclient"
	"github.com/jonesrussell/north-cloud/orchestrator/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/orchestrator/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/telemetry"
)

// Dependencies are the shared clients built-in steps use.
type Dependencies struct {
	HTTPClient *http.Client
	// Redis is optional. Without it web-digest records a warning instead of publishing.
	Redis *redis.Client
	// FetchLimiter paces page fetches across every web-digest instance. Nil means unlimited.
	FetchLimiter *rate.Limiter
	// PublishBreaker is shared by every web-digest instance so a Redis outage fails fast.
	PublishBreaker *circuitbreaker.Breaker
	Retry          retry.Config
	Logger         logger.Logger
	Telemetry      *telemetry.Provider
}

func (d Dependencies) withDefaults() Dependencies {
	if d.HTTPClient == nil {
		d.HTTPClient = httpclient.NewClient(httpclient.Config{UserAgent: UserAgent})
	}
	if d.Retry.MaxAttempts == 0 {
		d.Retry = retry.DefaultConfig()
	}
	if d.Logger == nil {
		d.Logger = logger.NewNop()
	}
	return d
}

// NewHeartbeat builds the heartbeat workflow: a single step that records one info line.
func NewHeartbeat(deps Dependencies, workflowID int64) Instance {
	deps = deps.withDefaults()
	return NewRunner(workflowID, []Step{{Name: "heartbeat", Run: heartbeat}}, deps.Logger,
		WithTelemetry(deps.Telemetry))
}

func heartbeat(_ context.Context, rc *RunContext) error {
	var cfg heartbeatConfig
	if err := decodeConfig(rc.Event.Payload, &cfg); err != nil {
		return err
	}

	details := map[string]any{"event_time": rc.Event.Timestamp.UTC().Format(time.RFC3339)}
	if msg := strings.TrimSpace(cfg.Message); msg != "" {
		details["message"] = msg
	}
	rc.Recorder.Info("heartbeat", "heartbeat", details)
	return nil
}

// NewWebDigest builds the web-digest workflow: fetch a page, extract links, publish a digest.
func NewWebDigest(deps Dependencies, workflowID int64) Instance {
	deps = deps.withDefaults()
	d := &webDigest{deps: deps}
	return NewRunner(workflowID, []Step{
		{Name: "fetch", Run: d.fetch},
		{Name: "publish", Run: d.publish},
	}, deps.Logger, WithTelemetry(deps.Telemetry))
}
