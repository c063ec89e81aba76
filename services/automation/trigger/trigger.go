// Package trigger implements the Trigger Manager (C9): the four
// subsystems that can cause a rule to fire — event subscriptions,
// scheduled timers, webhook inlets, and manual/API invocation.
package trigger

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/trackerflow/automation-engine/domain/execution"
	"github.com/trackerflow/automation-engine/domain/rule"
)

// FireFunc is how the Manager hands a triggered rule back to its owner
// (the Engine's internal execution pipeline). The Manager never runs
// rules itself.
type FireFunc func(ctx context.Context, ruleID string, ectx *execution.Context)

// eventBinding is one rule's event-trigger registration.
type eventBinding struct {
	ruleID string
	config map[string]any
}

// Manager owns the four trigger subsystems and their teardown.
type Manager struct {
	mu sync.RWMutex

	// event subscriptions, keyed by trigger type then a list of bindings.
	eventBindings map[rule.TriggerType][]eventBinding

	// scheduled timers: one cron entry per (rule, trigger-index).
	cronEngine    *cron.Cron
	scheduleEntry map[string][]cron.EntryID

	// webhook inlets: inlet id -> bound rule ids.
	inlets map[string][]string

	// per-rule trigger-type index, so Unbind can find everything without
	// scanning every subsystem.
	ruleTriggerTypes map[string]map[rule.TriggerType]bool

	fire FireFunc
}

func New(fire FireFunc) *Manager {
	c := cron.New()
	c.Start()
	return &Manager{
		eventBindings:    make(map[rule.TriggerType][]eventBinding),
		cronEngine:       c,
		scheduleEntry:    make(map[string][]cron.EntryID),
		inlets:           make(map[string][]string),
		ruleTriggerTypes: make(map[string]map[rule.TriggerType]bool),
		fire:             fire,
	}
}

// Bind installs every trigger of r into its matching subsystem. Bind is
// not idempotent: binding the same rule twice registers its triggers
// twice, so callers must Unbind before re-Bind on update.
func (m *Manager) Bind(r *rule.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	types := make(map[rule.TriggerType]bool)
	for _, t := range r.Triggers {
		types[t.Type] = true
		switch t.Type {
		case rule.TriggerScheduled:
			if err := m.bindScheduledLocked(r.ID, t); err != nil {
				return err
			}
		case rule.TriggerWebhook:
			m.bindWebhookLocked(r.ID, t)
		case rule.TriggerManual:
			// no subsystem registration: Engine invokes execute() directly.
		default:
			m.eventBindings[t.Type] = append(m.eventBindings[t.Type], eventBinding{ruleID: r.ID, config: t.Config})
		}
	}
	m.ruleTriggerTypes[r.ID] = types
	return nil
}

func (m *Manager) bindScheduledLocked(ruleID string, t rule.Trigger) error {
	cronExpr, _ := t.Config["cron_expression"].(string)
	if cronExpr == "" {
		return fmt.Errorf("SCHEDULED trigger requires cron_expression")
	}
	spec := cronExpr
	if tz, _ := t.Config["timezone"].(string); tz != "" {
		spec = "CRON_TZ=" + tz + " " + cronExpr
	}
	payload, _ := t.Config["payload"].(map[string]any)

	entryID, err := m.cronEngine.AddFunc(spec, func() {
		m.fire(context.Background(), ruleID, &execution.Context{TriggerPayload: payload})
	})
	if err != nil {
		return fmt.Errorf("invalid cron_expression %q: %w", cronExpr, err)
	}
	m.scheduleEntry[ruleID] = append(m.scheduleEntry[ruleID], entryID)
	return nil
}

func (m *Manager) bindWebhookLocked(ruleID string, t rule.Trigger) {
	inletID, _ := t.Config["inlet_id"].(string)
	if inletID == "" {
		return
	}
	m.inlets[inletID] = append(m.inlets[inletID], ruleID)
}

// Unbind removes ruleID's registrations from all four subsystems.
func (m *Manager) Unbind(ruleID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.scheduleEntry[ruleID] {
		m.cronEngine.Remove(id)
	}
	delete(m.scheduleEntry, ruleID)

	for t, bindings := range m.eventBindings {
		filtered := bindings[:0]
		for _, b := range bindings {
			if b.ruleID != ruleID {
				filtered = append(filtered, b)
			}
		}
		m.eventBindings[t] = filtered
	}

	for inlet, ruleIDs := range m.inlets {
		filtered := ruleIDs[:0]
		for _, id := range ruleIDs {
			if id != ruleID {
				filtered = append(filtered, id)
			}
		}
		m.inlets[inlet] = filtered
	}

	delete(m.ruleTriggerTypes, ruleID)
}

// eventTypeForKind maps an incoming event kind string to its trigger type.
var eventTypeForKind = map[string]rule.TriggerType{
	"issue-created":      rule.TriggerIssueCreated,
	"issue-updated":      rule.TriggerIssueUpdated,
	"issue-transitioned": rule.TriggerIssueTransitioned,
	"issue-commented":    rule.TriggerIssueCommented,
	"field-changed":      rule.TriggerFieldChanged,
}

// HandleEvent matches kind against registered event triggers and fires
// every bound rule whose sub-filters accept issuePayload.
func (m *Manager) HandleEvent(ctx context.Context, kind string, issuePayload map[string]any) {
	triggerType, ok := eventTypeForKind[kind]
	if !ok {
		return
	}

	m.mu.RLock()
	bindings := append([]eventBinding(nil), m.eventBindings[triggerType]...)
	m.mu.RUnlock()

	for _, b := range bindings {
		if !matchesSubFilters(triggerType, b.config, issuePayload) {
			continue
		}
		m.fire(ctx, b.ruleID, &execution.Context{IssuePayload: issuePayload})
	}
}

func matchesSubFilters(t rule.TriggerType, config, issuePayload map[string]any) bool {
	if !matchesProjectKeys(config, issuePayload) {
		return false
	}
	if !matchesIssueTypes(config, issuePayload) {
		return false
	}
	if t == rule.TriggerIssueTransitioned && !matchesTransition(config, issuePayload) {
		return false
	}
	if t == rule.TriggerFieldChanged && !matchesFieldChange(config, issuePayload) {
		return false
	}
	return true
}

func matchesProjectKeys(config, issuePayload map[string]any) bool {
	raw, ok := config["project_keys"].([]any)
	if !ok || len(raw) == 0 {
		return true
	}
	projectKey, _ := issuePayload["project_key"].(string)
	for _, v := range raw {
		if s, _ := v.(string); s == projectKey {
			return true
		}
	}
	return false
}

func matchesIssueTypes(config, issuePayload map[string]any) bool {
	raw, ok := config["issue_types"].([]any)
	if !ok || len(raw) == 0 {
		return true
	}
	issueType, _ := issuePayload["issue_type"].(string)
	for _, v := range raw {
		if s, _ := v.(string); s == issueType {
			return true
		}
	}
	return false
}

func matchesTransition(config, issuePayload map[string]any) bool {
	if from, ok := config["from_status"].(string); ok && from != "" {
		if actual, _ := issuePayload["from_status"].(string); actual != from {
			return false
		}
	}
	if to, ok := config["to_status"].(string); ok && to != "" {
		if actual, _ := issuePayload["to_status"].(string); actual != to {
			return false
		}
	}
	return true
}

func matchesFieldChange(config, issuePayload map[string]any) bool {
	fieldID, ok := config["field_id"].(string)
	if !ok || fieldID == "" {
		return true
	}
	actualField, _ := issuePayload["field_id"].(string)
	if actualField != fieldID {
		return false
	}
	if oldVal, ok := config["old_value"]; ok {
		if fmt.Sprintf("%v", issuePayload["old_value"]) != fmt.Sprintf("%v", oldVal) {
			return false
		}
	}
	if newVal, ok := config["new_value"]; ok {
		if fmt.Sprintf("%v", issuePayload["new_value"]) != fmt.Sprintf("%v", newVal) {
			return false
		}
	}
	return true
}

// HandleWebhook fires every rule bound to inletID with the raw payload.
// Signature verification happens upstream (the HTTP inlet handler), not
// here: by the time a payload reaches HandleWebhook it is already trusted.
func (m *Manager) HandleWebhook(ctx context.Context, inletID string, payload map[string]any) {
	m.mu.RLock()
	ruleIDs := append([]string(nil), m.inlets[inletID]...)
	m.mu.RUnlock()

	for _, ruleID := range ruleIDs {
		m.fire(ctx, ruleID, &execution.Context{WebhookPayload: payload})
	}
}

// Shutdown stops the cron engine. Idempotent.
func (m *Manager) Shutdown() {
	ctx := m.cronEngine.Stop()
	<-ctx.Done()
}
