// Package webhook holds the registered outbound delivery target shape
// owned exclusively by the Outbound Webhook Dispatcher.
package webhook

import "time"

// RetryPolicy governs the Dispatcher's per-integration backoff.
type RetryPolicy struct {
	MaxRetries        int
	InitialDelayMs    int
	BackoffMultiplier float64
	MaxDelayMs        int
}

// DefaultRetryPolicy mirrors the documented retry defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        3,
		InitialDelayMs:    1000,
		BackoffMultiplier: 2,
		MaxDelayMs:        30000,
	}
}

// Delay computes delay(attempt) = min(initial * multiplier^attempt, max_delay).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.InitialDelayMs)
	for i := 0; i < attempt; i++ {
		d *= p.BackoffMultiplier
	}
	maxD := float64(p.MaxDelayMs)
	if d > maxD {
		d = maxD
	}
	return time.Duration(d) * time.Millisecond
}

// Integration is a registered outbound delivery target.
type Integration struct {
	ID         string
	Name       string
	URL        string
	Secret     string
	Events     map[string]struct{} // empty = all
	Headers    map[string]string
	RetryPolicy RetryPolicy
	Enabled    bool

	// Observability fields surfaced by the CLI's test subcommand and the
	// health monitor.
	LastDeliveryAt     *time.Time
	LastDeliveryStatus string
}

// Subscribed reports whether the integration wants deliveries for event.
// An empty Events set subscribes to every event.
func (i *Integration) Subscribed(event string) bool {
	if len(i.Events) == 0 {
		return true
	}
	_, ok := i.Events[event]
	return ok
}
