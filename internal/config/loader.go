package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		// Skip unexported fields
		if !fieldVal.CanSet() {
			continue
		}

		// Recurse into nested structs
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		// Get tags
		envName := field.Tag.Get("env")
		envAlt := field.Tag.Get("envAlt")
		defaultVal := field.Tag.Get("default")
		required := field.Tag.Get("required") == "true"

		if envName == "" {
			continue
		}

		// Try primary env var, then alternate
		value := os.Getenv(envName)
		if value == "" && envAlt != "" {
			value = os.Getenv(envAlt)
		}

		// Apply default if not set
		if value == "" {
			if required {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = defaultVal
		}

		if value == "" {
			continue
		}

		// Set the field value
		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		// Handle time.Duration specially
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			// Split comma-separated values, trim whitespace
			parts := strings.Split(value, ",")
			result := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					result = append(result, p)
				}
			}
			field.Set(reflect.ValueOf(result))
		} else {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Cache validation
	switch strings.ToLower(c.Cache.Backend) {
	case "memory":
		if c.Cache.MaxEntries <= 0 {
			errs = append(errs, "CACHE_MAX_ENTRIES must be positive")
		}
	case "redis":
		if c.Cache.RedisURL == "" {
			errs = append(errs, "REDIS_URL is required when CACHE_BACKEND is redis")
		}
	default:
		errs = append(errs, fmt.Sprintf("CACHE_BACKEND (%q) must be one of: memory, redis", c.Cache.Backend))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, "CACHE_TTL must be positive")
	}

	// Upstream validation
	if c.Upstream.MinInterval <= 0 {
		errs = append(errs, "UPSTREAM_MIN_INTERVAL must be positive")
	}
	if c.Upstream.MaxRetries < 0 {
		errs = append(errs, "UPSTREAM_MAX_RETRIES must be non-negative")
	}
	if c.Upstream.ReadRetries < 0 {
		errs = append(errs, "UPSTREAM_READ_RETRIES must be non-negative")
	}
	if c.Upstream.Timeout <= 0 {
		errs = append(errs, "UPSTREAM_TIMEOUT must be positive")
	}

	// Generation validation
	if c.Generation.InvocationBudget <= 0 {
		errs = append(errs, "GENERATION_INVOCATION_BUDGET must be positive")
	}
	if c.Generation.ClaimLease <= c.Generation.InvocationBudget {
		errs = append(errs, fmt.Sprintf("GENERATION_CLAIM_LEASE (%s) must exceed GENERATION_INVOCATION_BUDGET (%s)",
			c.Generation.ClaimLease, c.Generation.InvocationBudget))
	}
	if m := c.Generation.DefaultMode; m != "per_row" && m != "single_deck" {
		errs = append(errs, fmt.Sprintf("GENERATION_DEFAULT_MODE (%q) must be one of: per_row, single_deck", m))
	}
	if c.Generation.MaxConcurrent <= 0 {
		errs = append(errs, "GENERATION_MAX_CONCURRENT must be positive")
	}
	if c.Generation.MaxWaitTime <= 0 {
		errs = append(errs, "GENERATION_MAX_WAIT_TIME must be positive")
	}

	// Scheduler validation
	if c.Scheduler.Enabled {
		if _, err := cron.ParseStandard(c.Scheduler.Spec); err != nil {
			errs = append(errs, fmt.Sprintf("SCHEDULER_SPEC (%q) is invalid: %v", c.Scheduler.Spec, err))
		}
		if c.Scheduler.DrainLimit <= 0 {
			errs = append(errs, "SCHEDULER_DRAIN_LIMIT must be positive")
		}
	}

	// Notification validation
	if c.Notify.Enabled {
		if c.Notify.AWSRegion == "" {
			errs = append(errs, "NOTIFY_AWS_REGION is required when NOTIFY_ENABLED is true")
		}
		if c.Notify.Sender == "" {
			errs = append(errs, "NOTIFY_SENDER is required when NOTIFY_ENABLED is true")
		}
	}

	// Rate limit validation
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.Rate.Enabled && c.Rate.GenerationLimit <= 0 {
		errs = append(errs, "RATE_LIMIT_GENERATION must be positive when rate limiting is enabled")
	}

	// Security validation
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one owner:key pair or disable auth")
	}
	if _, err := c.Security.OwnerKeys(); err != nil {
		errs = append(errs, err.Error())
	}
	if !c.Security.RequireAPIKey && c.Security.DefaultOwner == "" {
		errs = append(errs, "DEFAULT_OWNER is required when REQUIRE_API_KEY is false")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// URLs, tokens, API keys and the webhook secret are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("Database: {URL: %s, MaxConns: %d, MinConns: %d}, ",
		masked(c.Database.URL), c.Database.MaxConns, c.Database.MinConns))
	b.WriteString(fmt.Sprintf("Cache: {Backend: %q, TTL: %s, RedisURL: %s}, ",
		c.Cache.Backend, c.Cache.TTL, masked(c.Cache.RedisURL)))
	b.WriteString(fmt.Sprintf("Upstream: {MinInterval: %s, MaxRetries: %d, ReadRetries: %d, AccessToken: %s}, ",
		c.Upstream.MinInterval, c.Upstream.MaxRetries, c.Upstream.ReadRetries, masked(c.Upstream.AccessToken)))
	b.WriteString(fmt.Sprintf("Generation: {InvocationBudget: %s, ClaimLease: %s, DefaultMode: %q}, ",
		c.Generation.InvocationBudget, c.Generation.ClaimLease, c.Generation.DefaultMode))
	b.WriteString(fmt.Sprintf("Webhook: {Secret: %s}, ", masked(c.Webhook.Secret)))
	b.WriteString(fmt.Sprintf("Scheduler: {Enabled: %v, Spec: %q}, ", c.Scheduler.Enabled, c.Scheduler.Spec))
	b.WriteString(fmt.Sprintf("Notify: {Enabled: %v, Region: %q}, ", c.Notify.Enabled, c.Notify.AWSRegion))
	b.WriteString(fmt.Sprintf("Rate: {Enabled: %v, RequestsPerMinute: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute))
	b.WriteString(fmt.Sprintf("Security: {RequireAPIKey: %v, APIKeys: %d configured}, ",
		c.Security.RequireAPIKey, len(c.Security.APIKeys)))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}

func masked(v string) string {
	if v == "" {
		return "[UNSET]"
	}
	return "[MASKED]"
}
