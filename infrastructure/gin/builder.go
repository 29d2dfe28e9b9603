package gin

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/orchestrator/infrastructure/jwt"
	"github.com/jonesrussell/north-cloud/orchestrator/infrastructure/logger"
)

// ServerBuilder assembles a Server with a fluent API.
type ServerBuilder struct {
	cfg         Config
	log         logger.Logger
	checks      map[string]HealthCheck
	setupRoutes func(*gin.Engine)
}

// NewServerBuilder starts a builder for the named service on port.
func NewServerBuilder(serviceName string, port int) *ServerBuilder {
	return &ServerBuilder{
		cfg:    Config{ServiceName: serviceName, Port: port},
		checks: make(map[string]HealthCheck),
	}
}

// WithLogger sets the logger used by middleware and lifecycle messages.
func (b *ServerBuilder) WithLogger(log logger.Logger) *ServerBuilder {
	b.log = log
	return b
}

// WithDebug toggles gin debug mode.
func (b *ServerBuilder) WithDebug(debug bool) *ServerBuilder {
	b.cfg.Debug = debug
	return b
}

// WithVersion sets the version reported by /health.
func (b *ServerBuilder) WithVersion(version string) *ServerBuilder {
	b.cfg.ServiceVersion = version
	return b
}

// WithTimeouts sets the http.Server read, write and idle timeouts.
func (b *ServerBuilder) WithTimeouts(read, write, idle time.Duration) *ServerBuilder {
	b.cfg.ReadTimeout = read
	b.cfg.WriteTimeout = write
	b.cfg.IdleTimeout = idle
	return b
}

// WithShutdownTimeout bounds graceful shutdown.
func (b *ServerBuilder) WithShutdownTimeout(d time.Duration) *ServerBuilder {
	b.cfg.ShutdownTimeout = d
	return b
}

// WithHealthCheck registers a named dependency check for /health.
func (b *ServerBuilder) WithHealthCheck(name string, check HealthCheck) *ServerBuilder {
	b.checks[name] = check
	return b
}

// WithDatabaseHealthCheck is WithHealthCheck("database", ping).
func (b *ServerBuilder) WithDatabaseHealthCheck(ping func(ctx context.Context) error) *ServerBuilder {
	return b.WithHealthCheck("database", ping)
}

// WithRoutes sets the service-specific route registration.
func (b *ServerBuilder) WithRoutes(setup func(*gin.Engine)) *ServerBuilder {
	b.setupRoutes = setup
	return b
}

// Build creates the Server.
func (b *ServerBuilder) Build() *Server {
	if b.log == nil {
		b.log = logger.NewNop()
	}

	cfg := b.cfg
	checks := b.checks
	setup := b.setupRoutes

	return NewServer(cfg, b.log, func(router *gin.Engine) {
		RegisterHealthRoutes(router, cfg.ServiceName, cfg.ServiceVersion, checks)
		if setup != nil {
			setup(router)
		}
	})
}

// ProtectedGroup creates a router group guarded by JWT when jwtSecret is set.
func ProtectedGroup(router *gin.Engine, path, jwtSecret string) *gin.RouterGroup {
	group := router.Group(path)
	if jwtSecret != "" {
		group.Use(jwt.Middleware(jwtSecret))
	}
	return group
}
