package webhook

import (
	"context"
	"fmt"
	"sync"
	"time"

	domainwebhook "github.com/trackerflow/automation-engine/domain/webhook"
)

// Registry is the Dispatcher's exclusive store of WebhookIntegration
// records; the Webhook Dispatcher owns integration state and retry
// queues, nothing else mutates them directly.
type Registry struct {
	mu           sync.RWMutex
	integrations map[string]*domainwebhook.Integration
	idSeq        int
}

func NewRegistry() *Registry {
	return &Registry{integrations: make(map[string]*domainwebhook.Integration)}
}

func (r *Registry) Get(id string) (*domainwebhook.Integration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.integrations[id]
	return i, ok
}

func (r *Registry) MarkDelivery(id string, at time.Time, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.integrations[id]; ok {
		i.LastDeliveryAt = &at
		i.LastDeliveryStatus = status
	}
}

func (r *Registry) SecretFor(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.integrations[id]
	if !ok {
		return "", false
	}
	return i.Secret, true
}

// Register stores a new integration, assigning it an id.
func (r *Registry) Register(integ domainwebhook.Integration) *domainwebhook.Integration {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idSeq++
	integ.ID = fmt.Sprintf("wh-%d", r.idSeq)
	if integ.RetryPolicy == (domainwebhook.RetryPolicy{}) {
		integ.RetryPolicy = domainwebhook.DefaultRetryPolicy()
	}
	stored := integ
	r.integrations[stored.ID] = &stored
	return &stored
}

// Update replaces an existing integration's mutable fields. id is immutable.
func (r *Registry) Update(id string, patch func(*domainwebhook.Integration)) (*domainwebhook.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.integrations[id]
	if !ok {
		return nil, fmt.Errorf("integration %q not found", id)
	}
	patch(i)
	i.ID = id
	return i, nil
}

func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.integrations, id)
}

func (r *Registry) List() []*domainwebhook.Integration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domainwebhook.Integration, 0, len(r.integrations))
	for _, i := range r.integrations {
		out = append(out, i)
	}
	return out
}

// Test sends a synthetic delivery and reports whether it succeeded,
// synchronously (unlike Send, which is fire-and-forget with background
// retry) — this is the CLI's `integration test` subcommand's contract.
func (d *Dispatcher) Test(ctx context.Context, integrationID string) error {
	integ, ok := d.integrations.Get(integrationID)
	if !ok {
		return fmt.Errorf("integration %q not found", integrationID)
	}
	return d.deliver(ctx, integ, "test", map[string]any{"message": "test delivery"})
}
