package domain

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "CASEWATCH_"

// Config holds the complete Casewatch configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" envPrefix:"SERVER_"`

	// Tier determines the default backing services
	Tier Tier `json:"tier" env:"TIER"`

	// Component configurations
	Repository   RepositoryConfig   `json:"repository" envPrefix:"DB_"`
	Cache        CacheConfig        `json:"cache" envPrefix:"CACHE_"`
	EventBus     EventBusConfig     `json:"eventBus" envPrefix:"BUS_"`
	Notification NotificationConfig `json:"-" envPrefix:"NOTIFY_"`
	Auth         AuthConfig         `json:"-" envPrefix:"AUTH_"`
	Policy       PolicyConfig       `json:"policy" envPrefix:"POLICY_"`
	Intake       IntakeConfig       `json:"intake" envPrefix:"INTAKE_"`

	// Observability
	Logging LoggingConfig `json:"logging" envPrefix:"LOG_"`
	Tracing TracingConfig `json:"tracing" envPrefix:"TRACING_"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" env:"HOST"`
	Port         int    `json:"port" env:"PORT"`
	ReadTimeout  int    `json:"readTimeout" env:"READ_TIMEOUT"`   // seconds
	WriteTimeout int    `json:"writeTimeout" env:"WRITE_TIMEOUT"` // seconds

	// AllowedOrigins restricts live feed handshakes. Empty accepts any origin.
	AllowedOrigins []string `json:"allowedOrigins" env:"ALLOWED_ORIGINS"`
}

// AuthConfig holds session token and bootstrap account settings.
type AuthConfig struct {
	JWTSecret     string        `env:"JWT_SECRET"`
	TokenTTL      time.Duration `env:"TOKEN_TTL"`
	Issuer        string        `env:"ISSUER"`
	BcryptCost    int           `env:"BCRYPT_COST"`
	AdminUsername string        `env:"ADMIN_USERNAME"`
	AdminPassword string        `env:"ADMIN_PASSWORD"`
}

// PolicyConfig selects the transition policy.
type PolicyConfig struct {
	// Mode is "permissive", "graph" or "cel".
	Mode string `json:"mode" env:"MODE"`

	// Expression is the CEL guard used when Mode is "cel".
	Expression string `json:"expression,omitempty" env:"EXPRESSION"`
}

// IntakeConfig throttles complaint filing per victim phone.
type IntakeConfig struct {
	MaxPerPhone int           `json:"maxPerPhone" env:"MAX_PER_PHONE"`
	Window      time.Duration `json:"window" env:"WINDOW"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" env:"LEVEL"`   // debug, info, warn, error
	Format string `json:"format" env:"FORMAT"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" env:"ENABLED"`
	ServiceName string `json:"serviceName" env:"SERVICE_NAME"`

	// Endpoint is the OTLP/HTTP collector URL. Empty uses the exporter's
	// OTEL_EXPORTER_OTLP_* environment defaults.
	Endpoint string `json:"endpoint,omitempty" env:"ENDPOINT"`
}

// Tier represents the deployment profile.
type Tier string

const (
	// TierCommunity runs on SQLite, in-process channels and a memory cache.
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL, NATS and Redis with live senders.
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./casewatch.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			ComplaintTTL: 2 * time.Minute,
			StatsTTL:     30 * time.Second,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Notification: NotificationConfig{
			Sender:      "log",
			Channels:    []string{string(ChannelSMS), string(ChannelEmail), string(ChannelPush)},
			MaxAttempts: 3,
			RetryDelay:  2 * time.Second,
			FromName:    "Cyber Crime Cell",

			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Auth: AuthConfig{
			TokenTTL:      12 * time.Hour,
			Issuer:        "casewatch",
			BcryptCost:    10,
			AdminUsername: "admin",
		},
		Policy: PolicyConfig{
			Mode: "permissive",
		},
		Intake: IntakeConfig{
			MaxPerPhone: 5,
			Window:      24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "casewatch",
		},
	}
}

// ProConfig returns a configuration for pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "casewatch",
		MaxOpenConns: 25,
		MaxIdleConns: 5,
	}
	cfg.Cache.Type = "redis"
	cfg.Cache.RedisAddr = "localhost:6379"
	cfg.Cache.EnableTwoPhase = true
	cfg.Cache.LocalMaxSize = 1000
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSQueueGroup:    "casewatch-workers",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Notification.Sender = "live"
	cfg.Tracing.Enabled = true
	return cfg
}

// LoadConfig picks the tier profile from CASEWATCH_TIER and applies
// CASEWATCH_* environment overrides on top of it.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()
	if Tier(os.Getenv(EnvPrefix+"TIER")) == TierPro {
		cfg = ProConfig()
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d out of range", ErrValidation, c.Server.Port)
	}
	switch c.Policy.Mode {
	case "", "permissive", "graph":
	case "cel":
		if c.Policy.Expression == "" {
			return fmt.Errorf("%w: policy mode cel requires an expression", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown policy mode %q", ErrValidation, c.Policy.Mode)
	}
	for _, ch := range c.Notification.Channels {
		if _, err := ParseChannel(ch); err != nil {
			return err
		}
	}
	return nil
}
