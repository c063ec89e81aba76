package config

import (
	"fmt"
	"time"
)

// EngineConfig holds the automation engine's complete runtime configuration,
// loaded from environment variables per the documented key set.
type EngineConfig struct {
	TrackerBaseURL   string
	TrackerEmail     string
	TrackerAPIToken  string
	TrackerOAuthToken string

	RequestTimeout time.Duration
	MaxRetries     int
	RetryDelay     time.Duration

	RetentionDays           int
	MaxConcurrentExecutions int
	ExecutionTimeout        time.Duration

	AuditDir     string
	AuditEnabled bool

	LogLevel string

	// ListenAddr and EventsSharedSecret configure the `serve` subcommand's
	// HTTP surface: webhook inlets, the tracker-native issue-event relay,
	// and health checks. An empty EventsSharedSecret leaves the event
	// relay route unauthenticated, which Load does not reject outright
	// (a deployment behind a private network may accept that), but serve
	// logs a warning at startup.
	ListenAddr         string
	EventsSharedSecret string
}

// Load populates an EngineConfig from the environment, applying the documented
// defaults and range validation. Out-of-range values become configuration
// errors rather than silently clamping, so misconfiguration fails fast at
// startup instead of producing a confusing runtime value.
func Load() (*EngineConfig, error) {
	cfg := &EngineConfig{
		TrackerBaseURL:    GetEnv("TRACKER_BASE_URL", ""),
		TrackerEmail:      GetEnv("TRACKER_EMAIL", ""),
		TrackerAPIToken:   GetEnv("TRACKER_API_TOKEN", ""),
		TrackerOAuthToken: GetEnv("TRACKER_OAUTH_TOKEN", ""),

		RequestTimeout: time.Duration(GetEnvInt("REQUEST_TIMEOUT_MS", 30000)) * time.Millisecond,
		MaxRetries:     GetEnvInt("MAX_RETRIES", 3),
		RetryDelay:     time.Duration(GetEnvInt("RETRY_DELAY_MS", 1000)) * time.Millisecond,

		RetentionDays:           GetEnvInt("RETENTION_DAYS", 30),
		MaxConcurrentExecutions: GetEnvInt("MAX_CONCURRENT_EXECUTIONS", 10),
		ExecutionTimeout:        time.Duration(GetEnvInt("EXECUTION_TIMEOUT_MS", 300000)) * time.Millisecond,

		AuditDir:     GetEnv("AUDIT_DIR", "./logs/audit"),
		AuditEnabled: GetEnvBool("AUDIT_ENABLED", true),

		LogLevel: GetEnv("LOG_LEVEL", "info"),

		ListenAddr:         GetEnv("LISTEN_ADDR", ":8080"),
		EventsSharedSecret: GetEnv("EVENTS_SHARED_SECRET", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EngineConfig) validate() error {
	if c.TrackerBaseURL == "" {
		return fmt.Errorf("TRACKER_BASE_URL is required")
	}
	hasBasicAuth := c.TrackerEmail != "" && c.TrackerAPIToken != ""
	hasOAuth := c.TrackerOAuthToken != ""
	if !hasBasicAuth && !hasOAuth {
		return fmt.Errorf("either TRACKER_EMAIL+TRACKER_API_TOKEN or TRACKER_OAUTH_TOKEN is required")
	}

	if ms := c.RequestTimeout.Milliseconds(); ms < 1000 || ms > 300000 {
		return fmt.Errorf("REQUEST_TIMEOUT_MS must be between 1000 and 300000, got %d", ms)
	}
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("MAX_RETRIES must be between 0 and 10, got %d", c.MaxRetries)
	}
	if ms := c.RetryDelay.Milliseconds(); ms < 100 || ms > 10000 {
		return fmt.Errorf("RETRY_DELAY_MS must be between 100 and 10000, got %d", ms)
	}

	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace,debug,info,warn,error,fatal, got %q", c.LogLevel)
	}

	return nil
}
