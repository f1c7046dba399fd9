// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Cache      CacheConfig
	Upstream   UpstreamConfig
	Generation GenerationConfig
	Webhook    WebhookConfig
	Scheduler  SchedulerConfig
	Notify     NotifyConfig
	Rate       RateLimitConfig
	Security   SecurityConfig
	Logging    LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response (default: 90s,
	// longer than one job invocation)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"90s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 75s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"75s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. When empty, jobs and sync
	// configurations are kept in memory and lost on restart.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate applies pending migrations on startup (default: true)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"true"`
}

// CacheConfig holds spreadsheet snapshot cache settings.
type CacheConfig struct {
	// Backend is "memory" or "redis" (default: memory)
	Backend string `env:"CACHE_BACKEND" default:"memory"`

	// TTL is how long a snapshot is served without re-reading (default: 5m)
	TTL time.Duration `env:"CACHE_TTL" default:"5m"`

	// MaxEntries bounds the in-memory cache (default: 256)
	MaxEntries int `env:"CACHE_MAX_ENTRIES" default:"256"`

	// RedisURL is the redis connection URL, required for the redis backend
	RedisURL string `env:"REDIS_URL"`
}

// UpstreamConfig holds settings for the spreadsheet and presentation APIs.
type UpstreamConfig struct {
	// MinInterval is the minimum spacing between upstream reads (default: 1s)
	MinInterval time.Duration `env:"UPSTREAM_MIN_INTERVAL" default:"1s"`

	// MaxRetries is how many times a rate-limited read is retried (default: 3)
	MaxRetries int `env:"UPSTREAM_MAX_RETRIES" default:"3"`

	// ReadRetries is how many times a failed read is retried (default: 2)
	ReadRetries int `env:"UPSTREAM_READ_RETRIES" default:"2"`

	// Timeout bounds a single upstream call (default: 30s)
	Timeout time.Duration `env:"UPSTREAM_TIMEOUT" default:"30s"`

	// CredentialsFile is a service account JSON key. When empty, application
	// default credentials are used.
	CredentialsFile string `env:"GOOGLE_APPLICATION_CREDENTIALS"`

	// AccessToken is a pre-issued OAuth access token. It takes precedence
	// over CredentialsFile and is never refreshed.
	AccessToken string `env:"GOOGLE_ACCESS_TOKEN"`
}

// GenerationConfig holds batch generation settings.
type GenerationConfig struct {
	// InvocationBudget bounds one job invocation (default: 50s)
	InvocationBudget time.Duration `env:"GENERATION_INVOCATION_BUDGET" default:"50s"`

	// ClaimLease is how long an invocation holds a job (default: 2m)
	ClaimLease time.Duration `env:"GENERATION_CLAIM_LEASE" default:"2m"`

	// DefaultMode is per_row or single_deck (default: per_row)
	DefaultMode string `env:"GENERATION_DEFAULT_MODE" default:"per_row"`

	// MaxConcurrent is how many job invocations may run at once (default: 4)
	MaxConcurrent int `env:"GENERATION_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long an invocation waits for a slot (default: 10s)
	MaxWaitTime time.Duration `env:"GENERATION_MAX_WAIT_TIME" default:"10s"`
}

// WebhookConfig holds the source-changed webhook settings.
type WebhookConfig struct {
	// Secret must match the X-Webhook-Secret header. Empty disables the webhook.
	Secret string `env:"WEBHOOK_SECRET"`
}

// SchedulerConfig holds background scheduling settings.
type SchedulerConfig struct {
	// Enabled controls whether automatic syncs run on a schedule (default: true)
	Enabled bool `env:"SCHEDULER_ENABLED" default:"true"`

	// Spec is the cron schedule of scheduler ticks (default: @every 1m)
	Spec string `env:"SCHEDULER_SPEC" default:"@every 1m"`

	// DrainLimit is how many runnable jobs one tick invokes (default: 10)
	DrainLimit int `env:"SCHEDULER_DRAIN_LIMIT" default:"10"`
}

// NotifyConfig holds job notification settings.
type NotifyConfig struct {
	// Enabled controls whether notifications are sent (default: false)
	Enabled bool `env:"NOTIFY_ENABLED" default:"false"`

	// AWSRegion is the region of the SES and SNS clients (default: us-east-1)
	AWSRegion string `env:"NOTIFY_AWS_REGION" envAlt:"AWS_REGION" default:"us-east-1"`

	// Sender is the verified SES sender address
	Sender string `env:"NOTIFY_SENDER"`
}

// RateLimitConfig holds API rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per client (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// GenerationLimit is requests per minute for endpoints that write
	// documents: previews, generations, job runs (default: 20)
	GenerationLimit int `env:"RATE_LIMIT_GENERATION" default:"20"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey enables X-API-Key authentication (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of owner:key pairs. The owner part
	// identifies who owns the jobs and configurations created with the key.
	APIKeys []string `env:"API_KEYS"`

	// DefaultOwner is the owner used when API keys are not required (default: local)
	DefaultOwner string `env:"DEFAULT_OWNER" default:"local"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// OwnerKeys parses APIKeys into a key to owner map.
func (c *SecurityConfig) OwnerKeys() (map[string]string, error) {
	out := make(map[string]string, len(c.APIKeys))
	for _, pair := range c.APIKeys {
		owner, key, ok := strings.Cut(pair, ":")
		owner, key = strings.TrimSpace(owner), strings.TrimSpace(key)
		if !ok || owner == "" || key == "" {
			return nil, fmt.Errorf("API_KEYS entry %q must be owner:key", maskKey(pair))
		}
		out[key] = owner
	}
	return out, nil
}

// maskKey hides everything after the owner part of an API key entry.
func maskKey(pair string) string {
	if owner, _, ok := strings.Cut(pair, ":"); ok {
		return owner + ":***"
	}
	return "***"
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
