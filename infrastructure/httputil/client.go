package httputil

import (
	"fmt"
	"net/http"
	"time"
)

// ClientConfig holds standard client configuration used across the engine's
// outbound HTTP collaborators (the tracker client, webhook delivery).
type ClientConfig struct {
	// BaseURL is the base URL for the remote service (will be normalized).
	BaseURL string

	// Timeout is the request timeout. Zero means use default.
	Timeout time.Duration

	// HTTPClient is the base HTTP client to use. If nil, a default client is created.
	HTTPClient *http.Client

	// MaxBodyBytes caps response body size to prevent memory exhaustion.
	// Zero means use default.
	MaxBodyBytes int64
}

// ClientDefaults holds default values applied when a ClientConfig field is unset.
type ClientDefaults struct {
	Timeout      time.Duration
	MaxBodyBytes int64
}

// DefaultClientDefaults returns standard default values.
func DefaultClientDefaults() ClientDefaults {
	return ClientDefaults{
		Timeout:      30 * time.Second,
		MaxBodyBytes: 1 << 20, // 1MiB
	}
}

// NewClient creates an HTTP client with standardized configuration: timeout
// defaults and transport TLS floor, without mutating the caller-provided client.
func NewClient(cfg ClientConfig, defaults ClientDefaults) *http.Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaults.Timeout
	}
	forceTimeout := cfg.Timeout != 0

	return CopyHTTPClientWithTimeout(cfg.HTTPClient, timeout, forceTimeout)
}

// NewClientWithBaseURL creates a client with base URL normalization applied.
// This is the standard construction path for the tracker client and any
// other outbound collaborator.
func NewClientWithBaseURL(cfg ClientConfig, defaults ClientDefaults) (*http.Client, string, error) {
	normalizedURL, _, err := NormalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("normalize base URL: %w", err)
	}

	client := NewClient(ClientConfig{
		BaseURL:    normalizedURL,
		Timeout:    cfg.Timeout,
		HTTPClient: cfg.HTTPClient,
	}, defaults)

	return client, normalizedURL, nil
}

// ResolveMaxBodyBytes returns the effective max body size from config and defaults.
func ResolveMaxBodyBytes(cfg int64, defaultBytes int64) int64 {
	if cfg <= 0 {
		return defaultBytes
	}
	return cfg
}
