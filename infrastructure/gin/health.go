package gin

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck checks one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// CheckResult is the outcome of one HealthCheck.
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency"`
}

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Service string                 `json:"service"`
	Version string                 `json:"version"`
	Uptime  string                 `json:"uptime"`
	Checks  map[string]CheckResult `json:"checks,omitempty"`
}

// RegisterHealthRoutes adds GET and HEAD /health.
// Any failing check turns the response into 503 unhealthy.
func RegisterHealthRoutes(router *gin.Engine, service, version string, checks map[string]HealthCheck) {
	started := time.Now()

	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	router.GET("/health", func(c *gin.Context) {
		resp := HealthResponse{
			Status:  "healthy",
			Service: service,
			Version: version,
			Uptime:  time.Since(started).Truncate(time.Second).String(),
		}

		if len(names) > 0 {
			resp.Checks = make(map[string]CheckResult, len(names))
		}
		for _, name := range names {
			ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
			begin := time.Now()
			err := checks[name](ctx)
			cancel()

			result := CheckResult{Status: "healthy", Latency: time.Since(begin).String()}
			if err != nil {
				result.Status = "unhealthy"
				result.Message = err.Error()
				resp.Status = "unhealthy"
			}
			resp.Checks[name] = result
		}

		code := http.StatusOK
		if resp.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, resp)
	})

	router.HEAD("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
}
