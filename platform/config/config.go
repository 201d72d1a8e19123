// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for the authorization gate.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// AuthServiceConfig provides settings needed by the sign-in service.
type AuthServiceConfig interface {
	JWTConfig
	GetAccessTokenTTL() time.Duration
}

// GateConfig provides the redirect targets used when a request is rejected.
type GateConfig interface {
	GetLoginPath() string
	GetDefaultLandingPath() string
}

// EmailConfig provides settings for email sending.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// NotificationConfig provides settings for notification rendering.
type NotificationConfig interface {
	GetAppBaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the Redis-backed task queue.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetOutboxPollInterval() time.Duration
}

// LeadsConfig provides settings used by the lead automation rules.
type LeadsConfig interface {
	GetBusinessLocation() *time.Location
	GetPhoneDefaultRegion() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                string        `env:"APP_ENV" envDefault:"development"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`
	HTTPAddr           string        `env:"HTTP_ADDR" envDefault:":8080"`
	DatabaseURL        string        `env:"DATABASE_URL"`
	JWTAccessSecret    string        `env:"JWT_ACCESS_SECRET"`
	AccessTokenTTL     time.Duration `env:"JWT_ACCESS_TTL" envDefault:"15m"`
	CORSAllowAll       bool          `env:"CORS_ALLOW_ALL" envDefault:"false"`
	CORSOrigins        []string      `env:"CORS_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
	CORSAllowCreds     bool          `env:"CORS_ALLOW_CREDENTIALS" envDefault:"true"`
	AppBaseURL         string        `env:"APP_BASE_URL" envDefault:"http://localhost:3000"`
	LoginPath          string        `env:"LOGIN_PATH" envDefault:"/login"`
	DefaultLandingPath string        `env:"DEFAULT_LANDING_PATH" envDefault:"/dashboard"`
	EmailEnabled       bool          `env:"EMAIL_ENABLED" envDefault:"false"`
	SMTPHost           string        `env:"SMTP_HOST"`
	SMTPPort           int           `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername       string        `env:"SMTP_USERNAME"`
	SMTPPassword       string        `env:"SMTP_PASSWORD"`
	EmailFromName      string        `env:"EMAIL_FROM_NAME" envDefault:"Broker CRM"`
	EmailFromAddress   string        `env:"EMAIL_FROM_ADDRESS"`
	RedisURL           string        `env:"REDIS_URL"`
	RedisTLSInsecure   bool          `env:"REDIS_TLS_INSECURE" envDefault:"false"`
	AsynqQueueName     string        `env:"ASYNQ_QUEUE" envDefault:"default"`
	AsynqConcurrency   int           `env:"ASYNQ_CONCURRENCY" envDefault:"10"`
	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"2s"`
	BusinessTimezone   string        `env:"BUSINESS_TIMEZONE" envDefault:"UTC"`
	PhoneDefaultRegion string        `env:"PHONE_DEFAULT_REGION" envDefault:"US"`

	businessLocation *time.Location
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// AuthServiceConfig implementation
func (c *Config) GetJWTAccessSecret() string       { return c.JWTAccessSecret }
func (c *Config) GetAccessTokenTTL() time.Duration { return c.AccessTokenTTL }

// GateConfig implementation
func (c *Config) GetLoginPath() string          { return c.LoginPath }
func (c *Config) GetDefaultLandingPath() string { return c.DefaultLandingPath }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

// NotificationConfig implementation
func (c *Config) GetAppBaseURL() string { return c.AppBaseURL }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string                  { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool            { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string            { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int             { return c.AsynqConcurrency }
func (c *Config) GetOutboxPollInterval() time.Duration { return c.OutboxPollInterval }

// LeadsConfig implementation
func (c *Config) GetPhoneDefaultRegion() string { return c.PhoneDefaultRegion }
func (c *Config) GetBusinessLocation() *time.Location {
	if c.businessLocation == nil {
		return time.UTC
	}
	return c.businessLocation
}

// Load reads configuration from the environment (and an optional .env file).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) finalize() error {
	c.CORSOrigins = trimAll(c.CORSOrigins)
	if containsWildcard(c.CORSOrigins) {
		c.CORSAllowAll = true
	}

	loc, err := time.LoadLocation(strings.TrimSpace(c.BusinessTimezone))
	if err != nil {
		return fmt.Errorf("BUSINESS_TIMEZONE is invalid: %w", err)
	}
	c.businessLocation = loc

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTAccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if c.EmailEnabled && c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST is required when EMAIL_ENABLED is true")
	}
	if c.EmailEnabled && c.EmailFromAddress == "" {
		return fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if c.CORSAllowAll && c.CORSAllowCreds {
		return fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	return nil
}

func trimAll(values []string) []string {
	results := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
