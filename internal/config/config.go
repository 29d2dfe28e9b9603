// Package config loads the orchestrator service configuration.
package config

import (
	"fmt"
	"time"

	infraconfig "github.com/jonesrussell/north-cloud/orchestrator/infrastructure/config"
	"github.com/jonesrussell/north-cloud/orchestrator/infrastructure/profiling"
	infraredis "github.com/jonesrussell/north-cloud/orchestrator/infrastructure/redis"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/database"
)

// Default service configuration values.
const (
	defaultServiceName    = "orchestrator"
	defaultServiceVersion = "1.0.0"
	defaultServicePort    = 8090
	defaultLogLevel       = "info"
	defaultLogFormat      = "json"
)

// Default database configuration values.
const (
	defaultDBHost         = "localhost"
	defaultDBPort         = 5432
	defaultDBUser         = "postgres"
	defaultDBName         = "orchestrator"
	defaultDBSSLMode      = "disable"
	defaultDBMaxConns     = 25
	defaultDBMaxIdleConns = 5
	defaultDBConnLifetime = time.Hour
)

// Default scheduler and step configuration values.
const (
	DefaultTimezone        = "Asia/Shanghai"
	defaultShutdownTimeout = 30 * time.Second
	defaultHTTPTimeout     = 30 * time.Second
	defaultRetryAttempts   = 3
	defaultRetryDelay      = 500 * time.Millisecond
	defaultRedisAddress    = "localhost:6379"
	defaultFetchRPS        = 2
	defaultFetchBurst      = 4
	defaultPublishFailures = 5
	defaultPublishOpen     = time.Minute
)

// Config holds the application configuration.
type Config struct {
	Service   ServiceConfig     `yaml:"service"`
	Database  DatabaseConfig    `yaml:"database"`
	Auth      AuthConfig        `yaml:"auth"`
	Logging   LoggingConfig     `yaml:"logging"`
	Scheduler SchedulerConfig   `yaml:"scheduler"`
	Steps     StepsConfig       `yaml:"steps"`
	Redis     infraredis.Config `yaml:"redis"`
	Profiling profiling.Config  `yaml:"profiling"`
}

// ServiceConfig holds service identity and runtime settings.
type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Port    int    `env:"ORCHESTRATOR_PORT" yaml:"port"`
	Debug   bool   `env:"APP_DEBUG"         yaml:"debug"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host                  string        `env:"POSTGRES_ORCHESTRATOR_HOST"     yaml:"host"`
	Port                  int           `env:"POSTGRES_ORCHESTRATOR_PORT"     yaml:"port"`
	User                  string        `env:"POSTGRES_ORCHESTRATOR_USER"     yaml:"user"`
	Password              string        `env:"POSTGRES_ORCHESTRATOR_PASSWORD" yaml:"password"`
	Database              string        `env:"POSTGRES_ORCHESTRATOR_DB"       yaml:"database"`
	SSLMode               string        `yaml:"sslmode"`
	MaxConnections        int           `yaml:"max_connections"`
	MaxIdleConns          int           `yaml:"max_idle_connections"`
	ConnectionMaxLifetime time.Duration `yaml:"connection_max_lifetime"`
}

// Postgres converts the section into connection settings.
func (d DatabaseConfig) Postgres() database.Config {
	return database.Config{
		Host:            d.Host,
		Port:            d.Port,
		User:            d.User,
		Password:        d.Password,
		Database:        d.Database,
		SSLMode:         d.SSLMode,
		MaxOpenConns:    d.MaxConnections,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnectionMaxLifetime,
	}
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET" yaml:"jwt_secret"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL"  yaml:"level"`
	Format string `env:"LOG_FORMAT" yaml:"format"`
}

// SchedulerConfig controls cron evaluation and shutdown.
type SchedulerConfig struct {
	// Timezone is the IANA zone cron expressions are evaluated in.
	Timezone        string        `env:"SCHEDULER_TIMEZONE"         yaml:"timezone"`
	ShutdownTimeout time.Duration `env:"SCHEDULER_SHUTDOWN_TIMEOUT" yaml:"shutdown_timeout"`
}

// Location resolves Timezone. Validate has already rejected unknown zones.
func (s SchedulerConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// StepsConfig tunes the built-in workflow steps.
type StepsConfig struct {
	HTTPTimeout   time.Duration `env:"STEPS_HTTP_TIMEOUT"   yaml:"http_timeout"`
	RetryAttempts int           `env:"STEPS_RETRY_ATTEMPTS" yaml:"retry_attempts"`
	RetryDelay    time.Duration `env:"STEPS_RETRY_DELAY"    yaml:"retry_delay"`
	// FetchRPS paces page fetches across all web-digest runs.
	FetchRPS   float64 `yaml:"fetch_rps"`
	FetchBurst int     `yaml:"fetch_burst"`
	// PublishFailureThreshold consecutive digest publish failures open the publish breaker.
	PublishFailureThreshold int           `yaml:"publish_failure_threshold"`
	PublishOpenTimeout      time.Duration `yaml:"publish_open_timeout"`
}

// Load loads configuration from a YAML file, applies defaults, then env overrides.
func Load(path string) (*Config, error) {
	cfg, loadErr := infraconfig.LoadWithDefaults(path, setDefaults)
	if loadErr != nil {
		return nil, fmt.Errorf("load config: %w", loadErr)
	}

	if validateErr := cfg.Validate(); validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if err := infraconfig.ValidatePort("service.port", c.Service.Port); err != nil {
		return err
	}

	if err := infraconfig.ValidateRequired("database.host", c.Database.Host); err != nil {
		return err
	}

	if err := infraconfig.ValidateRequired("database.database", c.Database.Database); err != nil {
		return err
	}

	if err := infraconfig.ValidateLogLevel("logging.level", c.Logging.Level); err != nil {
		return err
	}

	if err := infraconfig.ValidateTimezone("scheduler.timezone", c.Scheduler.Timezone); err != nil {
		return err
	}

	if c.Steps.RetryAttempts < 1 {
		return &infraconfig.ValidationError{Field: "steps.retry_attempts", Message: "must be at least 1"}
	}

	if c.Steps.FetchRPS < 0 || c.Steps.FetchBurst < 1 {
		return &infraconfig.ValidationError{Field: "steps.fetch_rps", Message: "rate must be positive with a burst of at least 1"}
	}

	return nil
}

// setDefaults applies default values to all configuration sections.
func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	setDatabaseDefaults(&cfg.Database)
	setLoggingDefaults(&cfg.Logging)
	setSchedulerDefaults(&cfg.Scheduler)
	setStepsDefaults(&cfg.Steps)

	if cfg.Redis.Address == "" {
		cfg.Redis.Address = defaultRedisAddress
	}
}

func setServiceDefaults(s *ServiceConfig) {
	if s.Name == "" {
		s.Name = defaultServiceName
	}

	if s.Version == "" {
		s.Version = defaultServiceVersion
	}

	if s.Port == 0 {
		s.Port = defaultServicePort
	}
}

func setDatabaseDefaults(d *DatabaseConfig) {
	if d.Host == "" {
		d.Host = defaultDBHost
	}

	if d.Port == 0 {
		d.Port = defaultDBPort
	}

	if d.User == "" {
		d.User = defaultDBUser
	}

	if d.Database == "" {
		d.Database = defaultDBName
	}

	if d.SSLMode == "" {
		d.SSLMode = defaultDBSSLMode
	}

	if d.MaxConnections == 0 {
		d.MaxConnections = defaultDBMaxConns
	}

	if d.MaxIdleConns == 0 {
		d.MaxIdleConns = defaultDBMaxIdleConns
	}

	if d.ConnectionMaxLifetime == 0 {
		d.ConnectionMaxLifetime = defaultDBConnLifetime
	}
}

func setLoggingDefaults(l *LoggingConfig) {
	if l.Level == "" {
		l.Level = defaultLogLevel
	}

	if l.Format == "" {
		l.Format = defaultLogFormat
	}
}

func setSchedulerDefaults(s *SchedulerConfig) {
	if s.Timezone == "" {
		s.Timezone = DefaultTimezone
	}

	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = defaultShutdownTimeout
	}
}

func setStepsDefaults(s *StepsConfig) {
	if s.HTTPTimeout == 0 {
		s.HTTPTimeout = defaultHTTPTimeout
	}

	if s.RetryAttempts == 0 {
		s.RetryAttempts = defaultRetryAttempts
	}

	if s.RetryDelay == 0 {
		s.RetryDelay = defaultRetryDelay
	}

	if s.FetchRPS == 0 {
		s.FetchRPS = defaultFetchRPS
	}

	if s.FetchBurst == 0 {
		s.FetchBurst = defaultFetchBurst
	}

	if s.PublishFailureThreshold == 0 {
		s.PublishFailureThreshold = defaultPublishFailures
	}

	if s.PublishOpenTimeout == 0 {
		s.PublishOpenTimeout = defaultPublishOpen
	}
}
