// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// Cache (Redis)
	RedisURL string `env:"REDIS_URL,required,notEmpty"`

	// Public root of this service, used for portal _links.
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Rate limiting
	RateLimitAPIEnabled    bool `env:"RATE_LIMIT_API_ENABLED" envDefault:"true"`
	RateLimitPortalEnabled bool `env:"RATE_LIMIT_PORTAL_ENABLED" envDefault:"true"`
	RateLimitPortalRPS     int  `env:"RATE_LIMIT_PORTAL_RPS" envDefault:"50"`
	RateLimitPortalBurst   int  `env:"RATE_LIMIT_PORTAL_BURST" envDefault:"20"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`

	// Kafka. An empty broker list disables event publishing and consumption.
	KafkaBrokers           string `env:"KAFKA_BROKERS" envDefault:""`
	KafkaClientID          string `env:"KAFKA_CLIENT_ID" envDefault:"apim-management"`
	KafkaEventsTopic       string `env:"KAFKA_EVENTS_TOPIC" envDefault:"apim.management.events"`
	KafkaConsumerGroup     string `env:"KAFKA_CONSUMER_GROUP" envDefault:"apim-management"`
	KafkaTopicPartitions   int32  `env:"KAFKA_TOPIC_PARTITIONS" envDefault:"6"`
	KafkaReplicationFactor int16  `env:"KAFKA_REPLICATION_FACTOR" envDefault:"-1"`

	// Produced events not acknowledged within this window are dropped.
	KafkaDeliveryTimeout time.Duration `env:"KAFKA_DELIVERY_TIMEOUT" envDefault:"30s"`

	// Management domain
	DefaultOrganizationID string `env:"DEFAULT_ORGANIZATION_ID" envDefault:"DEFAULT"`
	// USER or GROUP
	ApiPrimaryOwnerMode string `env:"API_PRIMARY_OWNER_MODE" envDefault:"USER"`
	UpgradersEnabled    bool   `env:"UPGRADERS_ENABLED" envDefault:"true"`
	// Standard 5-field cron expression. Empty disables the expiry job.
	SubscriptionExpiryCron string `env:"SUBSCRIPTION_EXPIRY_CRON" envDefault:"*/5 * * * *"`

	// Developer portal
	// Comma-separated gateway base URLs advertised as API entrypoints.
	GatewayEntrypoints string        `env:"GATEWAY_ENTRYPOINTS" envDefault:"http://localhost:8082"`
	PortalCacheSize    int           `env:"PORTAL_CACHE_SIZE" envDefault:"1024"`
	PortalCacheTTL     time.Duration `env:"PORTAL_CACHE_TTL" envDefault:"30s"`
	PortalRedisTTL     time.Duration `env:"PORTAL_REDIS_TTL" envDefault:"5m"`
	PortalCacheMaxAge  time.Duration `env:"PORTAL_CACHE_MAX_AGE" envDefault:"0s"`

	// Webhook notifications. An empty URL disables the notifier.
	NotifierWebhookURL    string `env:"NOTIFIER_WEBHOOK_URL" envDefault:""`
	NotifierWebhookSecret string `env:"NOTIFIER_WEBHOOK_SECRET" envDefault:""`
	NotifierMaxAttempts   int    `env:"NOTIFIER_MAX_ATTEMPTS" envDefault:"5"`
	NotifierQueueSize     int    `env:"NOTIFIER_QUEUE_SIZE" envDefault:"256"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

// GetKafkaBrokers returns the seed brokers.
func (c *Config) GetKafkaBrokers() []string {
	return splitList(c.KafkaBrokers)
}

// KafkaEnabled reports whether at least one broker is configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.GetKafkaBrokers()) > 0
}

// GetGatewayEntrypoints returns the gateway base URLs without trailing slashes.
func (c *Config) GetGatewayEntrypoints() []string {
	entrypoints := splitList(c.GatewayEntrypoints)
	for i, e := range entrypoints {
		entrypoints[i] = strings.TrimRight(e, "/")
	}
	return entrypoints
}

// NotifierEnabled reports whether webhook notifications are configured.
func (c *Config) NotifierEnabled() bool {
	return c.NotifierWebhookURL != ""
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	if c.AppPort <= 0 || c.AppPort > 65535 {
		return fmt.Errorf("APP_PORT out of range: %d", c.AppPort)
	}
	switch c.ApiPrimaryOwnerMode {
	case "USER", "GROUP":
	default:
		return fmt.Errorf("API_PRIMARY_OWNER_MODE must be USER or GROUP, got %q", c.ApiPrimaryOwnerMode)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	if c.KafkaEnabled() && c.KafkaEventsTopic == "" {
		return fmt.Errorf("KAFKA_EVENTS_TOPIC is required when KAFKA_BROKERS is set")
	}
	if c.NotifierEnabled() && c.NotifierWebhookSecret == "" {
		return fmt.Errorf("NOTIFIER_WEBHOOK_SECRET is required when NOTIFIER_WEBHOOK_URL is set")
	}
	return nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Load parses environment variables and returns a validated Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
