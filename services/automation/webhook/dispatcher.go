package webhook

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/trackerflow/automation-engine/infrastructure/logging"
	"github.com/trackerflow/automation-engine/infrastructure/resilience"
	domainwebhook "github.com/trackerflow/automation-engine/domain/webhook"
)

const userAgent = "trackerflow-automation-engine/1.0"

// queueItem is one pending delivery attempt.
type queueItem struct {
	event   string
	data    any
	attempt int
}

// integrationState tracks the per-integration FIFO queue, in-flight timer
// and circuit breaker. Everything here is guarded by mu; the Dispatcher's
// own lock only protects the states map itself, not each integration's
// queue/timer/breaker.
type integrationState struct {
	mu      sync.Mutex
	queue   []queueItem
	timer   *time.Timer
	breaker *resilience.CircuitBreaker
}

// Integrations resolves a registered integration by id; the Dispatcher
// reads integration records through it (Registry implements it) and keeps
// only the retry queues itself.
type Integrations interface {
	Get(id string) (*domainwebhook.Integration, bool)
	MarkDelivery(id string, at time.Time, status string)
}

// Dispatcher is the Outbound Webhook Dispatcher (C5).
type Dispatcher struct {
	mu           sync.Mutex
	states       map[string]*integrationState
	integrations Integrations
	client       *http.Client
	logger       *logging.Logger
	now          func() time.Time
}

func New(integrations Integrations, client *http.Client, logger *logging.Logger) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Dispatcher{
		states:       make(map[string]*integrationState),
		integrations: integrations,
		client:       client,
		logger:       logger,
		now:          time.Now,
	}
}

func (d *Dispatcher) stateFor(id string) *integrationState {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.states[id]
	if !ok {
		st = &integrationState{
			breaker: resilience.New(resilience.Config{MaxFailures: 5, Timeout: 30 * time.Second}),
		}
		d.states[id] = st
	}
	return st
}

// Send performs the initial delivery attempt (attempt=0) for event/data
// against integrationID, if that integration exists, is enabled and is
// subscribed to event. Failures are enqueued for
// background retry; Send itself never returns the delivery error to the
// caller, matching the dispatcher's fire-and-forget contract.
func (d *Dispatcher) Send(ctx context.Context, integrationID, event string, data any) {
	integ, ok := d.integrations.Get(integrationID)
	if !ok || !integ.Enabled || !integ.Subscribed(event) {
		return
	}
	st := d.stateFor(integrationID)
	d.attempt(ctx, integ, st, queueItem{event: event, data: data, attempt: 0})
}

// attempt performs exactly one delivery try. On success it records
// observability state; on failure it enqueues a retry and arms the
// integration's single timer if none is pending.
func (d *Dispatcher) attempt(ctx context.Context, integ *domainwebhook.Integration, st *integrationState, item queueItem) {
	err := st.breaker.Execute(ctx, func() error {
		return d.deliver(ctx, integ, item.event, item.data)
	})

	now := d.now()
	if err == nil {
		d.integrations.MarkDelivery(integ.ID, now, "success")
		if d.logger != nil {
			d.logger.WithField("integration", integ.ID).WithField("event", item.event).Info("webhook delivered")
		}
		return
	}

	d.integrations.MarkDelivery(integ.ID, now, "failed")
	if d.logger != nil {
		d.logger.WithField("integration", integ.ID).WithField("event", item.event).WithField("error", err.Error()).Warn("webhook delivery failed")
	}

	policy := integ.RetryPolicy
	if item.attempt >= policy.MaxRetries {
		if d.logger != nil {
			d.logger.WithField("integration", integ.ID).WithField("event", item.event).Error("webhook delivery exhausted retries")
		}
		return
	}

	st.mu.Lock()
	st.queue = append(st.queue, queueItem{event: item.event, data: item.data, attempt: item.attempt + 1})
	needsTimer := st.timer == nil
	if needsTimer {
		delay := policy.Delay(item.attempt)
		st.timer = time.AfterFunc(delay, func() { d.runQueue(context.Background(), integ.ID) })
	}
	st.mu.Unlock()
}

// runQueue dequeues exactly one item (FIFO: one retry in flight at a time
// per integration) and, if more remain, arms the next timer.
func (d *Dispatcher) runQueue(ctx context.Context, integrationID string) {
	integ, ok := d.integrations.Get(integrationID)
	if !ok {
		return
	}
	st := d.stateFor(integrationID)

	st.mu.Lock()
	if len(st.queue) == 0 {
		st.timer = nil
		st.mu.Unlock()
		return
	}
	item := st.queue[0]
	st.queue = st.queue[1:]
	st.timer = nil
	st.mu.Unlock()

	d.attempt(ctx, integ, st, item)

	st.mu.Lock()
	if len(st.queue) > 0 && st.timer == nil {
		delay := integ.RetryPolicy.Delay(st.queue[0].attempt - 1)
		st.timer = time.AfterFunc(delay, func() { d.runQueue(context.Background(), integrationID) })
	}
	st.mu.Unlock()
}

// deliver performs one signed HTTP POST. A non-2xx status or transport
// error is a delivery failure.
func (d *Dispatcher) deliver(ctx context.Context, integ *domainwebhook.Integration, event string, data any) error {
	payload := NewPayload(event, data, integ.ID, d.now())
	serialized, err := payload.Serialize()
	if err != nil {
		return fmt.Errorf("serialize webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, integ.URL, bytes.NewReader(serialized))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Webhook-Event", event)
	req.Header.Set("X-Webhook-ID", integ.ID)
	for k, v := range integ.Headers {
		req.Header.Set(k, v)
	}
	if integ.Secret != "" {
		req.Header.Set("X-Webhook-Signature", Sign(serialized, integ.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// QueueDepth reports the current number of pending retries for an
// integration.
func (d *Dispatcher) QueueDepth(integrationID string) int {
	st := d.stateFor(integrationID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.queue)
}
