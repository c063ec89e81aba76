package engine

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	svcerrors "github.com/trackerflow/automation-engine/infrastructure/errors"

	"github.com/trackerflow/automation-engine/domain/execution"
	"github.com/trackerflow/automation-engine/domain/metrics"
	"github.com/trackerflow/automation-engine/domain/rule"
	"github.com/trackerflow/automation-engine/services/automation/audit"
	"github.com/trackerflow/automation-engine/services/automation/condition"
)

// validateRule composes the rule's own structural checks with the
// CUSTOM_SCRIPT deny-by-default check, since a rule is not valid end to
// end just because its fields are well-formed.
func (e *Engine) validateRule(r *rule.Rule) []*rule.ValidationError {
	errs := r.Validate()
	for i, c := range r.Conditions {
		if c.Type != rule.ConditionCustomScript {
			continue
		}
		if err := condition.ValidateCustomScript(c, e.evaluator != nil && e.evaluatorHasCustomScript()); err != nil {
			errs = append(errs, &rule.ValidationError{
				Field: fmt.Sprintf("conditions[%d]", i),
				Code:  "custom_script_denied",
				Msg:   err.Error(),
			})
		}
	}
	return errs
}

// evaluatorHasCustomScript is a conservative stand-in: the Engine does not
// introspect the Evaluator's internals, so validate_rule's CUSTOM_SCRIPT
// check always requires the explicit acknowledgement flag regardless of
// whether a script evaluator happens to be wired in.
func (e *Engine) evaluatorHasCustomScript() bool { return false }

func (e *Engine) checkPermission(principal, opName string) error {
	if e.gate == nil {
		return nil
	}
	d := e.gate.Check(principal, opName)
	if !d.Allowed {
		if e.audit != nil {
			e.audit.Record(audit.KindBlockedAuthorization, audit.OutcomeBlocked, principal, opName, "", "",
				map[string]any{"reason": d.Reason})
		}
		return svcerrors.Forbidden(d.Reason)
	}
	return nil
}

// CreateRule validates spec, assigns id/timestamps, zero-initializes
// counters, persists it, and binds its triggers if enabled.
func (e *Engine) CreateRule(principal string, r *rule.Rule) (*rule.Rule, error) {
	if err := e.checkNotClosed(); err != nil {
		return nil, err
	}
	if err := e.checkPermission(principal, "create_rule"); err != nil {
		return nil, err
	}
	if errs := e.validateRule(r); len(errs) > 0 {
		return nil, svcerrors.InvalidInput("rule", errs[0].Error())
	}

	now := e.now()
	clone := *r
	clone.ID = uuid.NewString()
	clone.CreatedAt = now
	clone.UpdatedAt = now
	clone.ExecutionCount = 0
	clone.FailureCount = 0
	clone.LastExecuted = nil
	clone.CreatedBy = principal

	e.mu.Lock()
	e.rules[clone.ID] = &clone
	e.metrics[clone.ID] = metrics.New(clone.ID)
	e.mu.Unlock()

	if clone.Enabled {
		if err := e.triggers.Bind(&clone); err != nil {
			e.mu.Lock()
			delete(e.rules, clone.ID)
			delete(e.metrics, clone.ID)
			e.mu.Unlock()
			return nil, svcerrors.InvalidInput("triggers", err.Error())
		}
	}

	if e.audit != nil {
		e.audit.Record(audit.KindConfigurationChange, audit.OutcomeSuccess, principal, "create_rule", clone.ID, "", nil)
	}
	return &clone, nil
}

// UpdateRule requires the rule to exist, applies the patch with id
// immutable, re-validates, and rebinds triggers if enabled or the
// trigger set changed. In-flight executions of the prior version are left
// untouched.
func (e *Engine) UpdateRule(principal, id string, patch func(*rule.Rule)) (*rule.Rule, error) {
	if err := e.checkNotClosed(); err != nil {
		return nil, err
	}
	if err := e.checkPermission(principal, "update_rule"); err != nil {
		return nil, err
	}

	e.mu.Lock()
	existing, ok := e.rules[id]
	if !ok {
		e.mu.Unlock()
		return nil, svcerrors.NotFound("rule", id)
	}
	updated := *existing
	e.mu.Unlock()

	patch(&updated)
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	updated.CreatedBy = existing.CreatedBy
	updated.ExecutionCount = existing.ExecutionCount
	updated.FailureCount = existing.FailureCount
	updated.LastExecuted = existing.LastExecuted
	updated.UpdatedAt = e.now()

	if errs := e.validateRule(&updated); len(errs) > 0 {
		return nil, svcerrors.InvalidInput("rule", errs[0].Error())
	}

	e.triggers.Unbind(id)
	if updated.Enabled {
		if err := e.triggers.Bind(&updated); err != nil {
			// Best effort: restore the previous binding so the rule is not
			// left silently unreachable.
			_ = e.triggers.Bind(existing)
			return nil, svcerrors.InvalidInput("triggers", err.Error())
		}
	}

	e.mu.Lock()
	e.rules[id] = &updated
	e.mu.Unlock()

	if e.audit != nil {
		e.audit.Record(audit.KindConfigurationChange, audit.OutcomeSuccess, principal, "update_rule", id, "", nil)
	}
	return &updated, nil
}

// DeleteRule tears down trigger bindings, marks in-flight executions of
// this rule CANCELLED, and removes the rule and its metrics. Execution
// history is retained for later inspection.
func (e *Engine) DeleteRule(principal, id string) error {
	if err := e.checkNotClosed(); err != nil {
		return err
	}
	if err := e.checkPermission(principal, "delete_rule"); err != nil {
		return err
	}

	e.mu.Lock()
	if _, ok := e.rules[id]; !ok {
		e.mu.Unlock()
		return svcerrors.NotFound("rule", id)
	}
	delete(e.rules, id)
	delete(e.metrics, id)
	for _, ex := range e.executions {
		if ex.RuleID == id && !ex.Status.Terminal() {
			ex.Status = execution.StatusCancelled
		}
	}
	e.mu.Unlock()

	e.triggers.Unbind(id)

	if e.audit != nil {
		e.audit.Record(audit.KindDestructiveExecution, audit.OutcomeSuccess, principal, "delete_rule", id, "", nil)
	}
	return nil
}

// GetRule returns the rule by id.
func (e *Engine) GetRule(id string) (*rule.Rule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.rules[id]
	if !ok {
		return nil, svcerrors.NotFound("rule", id)
	}
	clone := *r
	return &clone, nil
}

// GetRules lists rules matching filter, sorted by name for stable output.
func (e *Engine) GetRules(filter RuleFilter) []*rule.Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*rule.Rule, 0, len(e.rules))
	for _, r := range e.rules {
		if filter.ProjectKey != "" && !r.InScope(filter.ProjectKey) {
			continue
		}
		if filter.Tag != "" && !r.HasTag(filter.Tag) {
			continue
		}
		if filter.Enabled != nil && r.Enabled != *filter.Enabled {
			continue
		}
		clone := *r
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ValidateRule runs the same checks CreateRule would, without persisting
// anything — used by the CLI's dry-run validate subcommand.
func (e *Engine) ValidateRule(r *rule.Rule) []*rule.ValidationError {
	return e.validateRule(r)
}

// GetMetrics returns one rule's metrics, or all of them if ruleID is empty.
func (e *Engine) GetMetrics(ruleID string) ([]*metrics.Metrics, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if ruleID != "" {
		m, ok := e.metrics[ruleID]
		if !ok {
			return nil, svcerrors.NotFound("rule", ruleID)
		}
		clone := *m
		return []*metrics.Metrics{&clone}, nil
	}

	out := make([]*metrics.Metrics, 0, len(e.metrics))
	for _, m := range e.metrics {
		clone := *m
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RuleID < out[j].RuleID })
	return out, nil
}

// GetExecutions lists executions matching filter, most recently triggered
// first, capped at limit (0 means unbounded).
func (e *Engine) GetExecutions(filter ExecutionFilter, limit int) []*execution.Execution {
	e.mu.RLock()
	defer e.mu.RUnlock()

	matches := make([]*execution.Execution, 0, len(e.executions))
	for _, ex := range e.executions {
		if filter.RuleID != "" && ex.RuleID != filter.RuleID {
			continue
		}
		if filter.Status != "" && ex.Status != filter.Status {
			continue
		}
		clone := *ex
		matches = append(matches, &clone)
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].TriggeredAt.After(matches[j].TriggeredAt)
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
