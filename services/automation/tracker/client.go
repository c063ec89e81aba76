// Package tracker is the opaque HTTP collaborator: every call the engine
// makes against the external issue tracker's REST API funnels through this
// client, which owns authentication, the outbound rate-limit leg, circuit
// breaking, and HTTP-status-to-error-category mapping.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	svcerrors "github.com/trackerflow/automation-engine/infrastructure/errors"
	"github.com/trackerflow/automation-engine/infrastructure/httputil"
	"github.com/trackerflow/automation-engine/infrastructure/ratelimit"
	"github.com/trackerflow/automation-engine/infrastructure/resilience"
)

// Config configures the tracker collaborator.
type Config struct {
	BaseURL       string
	Email         string
	APIToken      string
	OAuthToken    string
	RequestTimeout time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
}

// Client wraps *http.Client with auth, throttling, and circuit breaking.
// All action adapters share one Client; none construct their own.
type Client struct {
	httpClient *http.Client
	baseURL    string
	email      string
	apiToken   string
	oauthToken string
	limiter    *ratelimit.RateLimiter
	breaker    *resilience.CircuitBreaker
	retry      resilience.RetryConfig
}

// New constructs a Client. BaseURL is normalized; at least one auth pair
// (email+token, or OAuth bearer) must be set, enforced by config.Load at
// startup rather than here.
func New(cfg Config) (*Client, error) {
	httpClient, baseURL, err := httputil.NewClientWithBaseURL(httputil.ClientConfig{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.RequestTimeout,
	}, httputil.DefaultClientDefaults())
	if err != nil {
		return nil, svcerrors.ConfigInvalid("tracker_base_url", err.Error())
	}

	retryCfg := resilience.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retryCfg.MaxAttempts = cfg.MaxRetries + 1
	}
	if cfg.RetryDelay > 0 {
		retryCfg.InitialDelay = cfg.RetryDelay
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		email:      cfg.Email,
		apiToken:   cfg.APIToken,
		oauthToken: cfg.OAuthToken,
		limiter:    ratelimit.New(ratelimit.DefaultConfig()),
		breaker:    resilience.New(resilience.DefaultConfig()),
		retry:      retryCfg,
	}, nil
}

// Do issues one request against path (relative to BaseURL) with an optional
// JSON body, decoding a JSON response into out (nil to discard the body).
// Errors are mapped to category-tagged ServiceErrors per the status code.
// Connection and rate-limit failures are retried per the configured
// MAX_RETRIES/RETRY_DELAY_MS; validation/auth/permission/not-found failures
// are not, since a retry cannot change their outcome.
func (c *Client) Do(ctx context.Context, method, path string, body any, out any) error {
	var lastErr error
	delay := c.retry.InitialDelay

	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		var reqErr error
		execErr := c.breaker.Execute(ctx, func() error {
			reqErr = c.once(ctx, method, path, body, out)
			return reqErr
		})
		if execErr == resilience.ErrCircuitOpen || execErr == resilience.ErrTooManyRequests {
			lastErr = svcerrors.Wrap("tracker_unavailable", svcerrors.CategoryConnection, "tracker circuit open", 503, execErr)
		} else {
			lastErr = reqErr
		}

		if lastErr == nil || !retryable(lastErr) {
			return lastErr
		}
		if attempt < c.retry.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = nextDelay(delay, c.retry)
		}
	}
	return lastErr
}

func nextDelay(current time.Duration, cfg resilience.RetryConfig) time.Duration {
	next := time.Duration(float64(current) * cfg.Multiplier)
	if next > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return next
}

// retryable reports whether a tracker error is worth retrying: connection
// failures and rate limits, not validation/auth/permission/not-found.
func retryable(err error) bool {
	switch svcerrors.GetCategory(err) {
	case svcerrors.CategoryConnection, svcerrors.CategoryRateLimit:
		return true
	default:
		return false
	}
}

func (c *Client) once(ctx context.Context, method, path string, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return svcerrors.Wrap("rate_limit_wait", svcerrors.CategoryRateLimit, "outbound rate limiter wait failed", 429, err)
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return svcerrors.InvalidInput("body", "failed to encode request body")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return svcerrors.Wrap("tracker_request", svcerrors.CategoryConnection, "failed to build tracker request", 0, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "trackerflow-automation-engine/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return svcerrors.Wrap("tracker_unreachable", svcerrors.CategoryConnection, "tracker request failed", 0, err)
	}
	defer resp.Body.Close()

	raw, _, err := httputil.ReadAllWithLimit(resp.Body, httputil.ResolveMaxBodyBytes(0, 1<<20))
	if err != nil {
		return svcerrors.Wrap("tracker_response", svcerrors.CategoryConnection, "failed to read tracker response", 0, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out != nil && len(raw) > 0 {
			if err := json.Unmarshal(raw, out); err != nil {
				return svcerrors.Wrap("tracker_decode", svcerrors.CategoryConnection, "failed to decode tracker response", 0, err)
			}
		}
		return nil
	}

	return statusToError(resp.StatusCode, resp.Header.Get("Retry-After"), string(raw))
}

func (c *Client) setAuth(req *http.Request) {
	switch {
	case c.oauthToken != "":
		req.Header.Set("Authorization", "Bearer "+c.oauthToken)
	case c.email != "" && c.apiToken != "":
		req.SetBasicAuth(c.email, c.apiToken)
	}
}

func statusToError(status int, retryAfter, body string) error {
	msg := fmt.Sprintf("tracker returned status %d", status)
	switch status {
	case http.StatusUnauthorized:
		return svcerrors.Unauthorized(msg)
	case http.StatusForbidden:
		return svcerrors.Forbidden(msg)
	case http.StatusNotFound:
		return svcerrors.NotFound("tracker resource", body)
	case http.StatusTooManyRequests:
		secs := 0
		if retryAfter != "" {
			secs, _ = strconv.Atoi(retryAfter)
		}
		return svcerrors.RateLimitExceeded(0, fmt.Sprintf("%ds", secs)).WithDetails("body", body)
	case http.StatusBadRequest:
		return svcerrors.InvalidInput("request", msg+": "+body)
	default:
		return svcerrors.New("tracker_error", svcerrors.CategoryConnection, msg, status)
	}
}
