// Package executor implements the Action Executor (C6): a thin dispatcher
// over a closed registry of Action Adapters, one per rule.ActionType. This
// replaces dynamic string-keyed dispatch with a fixed enum + adapter map
// (a deliberate redesign from a single hard-coded adapter).
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/trackerflow/automation-engine/domain/execution"
	"github.com/trackerflow/automation-engine/domain/rule"
	"github.com/trackerflow/automation-engine/services/automation/smartvalue"
)

// Adapter executes one action type against a resolved config and an
// execution context, returning the data to attach to the ActionResult.
type Adapter interface {
	Execute(ctx context.Context, config map[string]any, ectx *execution.Context) (map[string]any, error)
}

// Executor dispatches to the adapter registered for an action's type.
type Executor struct {
	adapters map[rule.ActionType]Adapter
	resolver *smartvalue.Resolver
	now      func() time.Time
}

// New builds an Executor with an empty adapter registry; NewWithTracker
// registers the full set. Adapters are registered individually via
// Register so tests can substitute fakes.
func New() *Executor {
	return &Executor{
		adapters: make(map[rule.ActionType]Adapter),
		resolver: smartvalue.New(),
		now:      time.Now,
	}
}

// Register installs (or replaces) the adapter for an action type.
func (e *Executor) Register(t rule.ActionType, a Adapter) {
	e.adapters[t] = a
}

// Execute resolves smart values in action.Config, invokes the registered
// adapter, and produces a timed, panic-safe ActionResult. An unregistered
// or failing adapter never escapes as a Go error: it is captured into the
// result, after condition evaluation and before metrics are recorded.
func (e *Executor) Execute(ctx context.Context, action rule.Action, ectx *execution.Context) (result execution.ActionResult) {
	start := e.now()
	result.ActionType = string(action.Type)

	defer func() {
		if r := recover(); r != nil {
			result.Status = execution.ActionFailed
			result.Message = fmt.Sprintf("action panicked: %v", r)
		}
		result.DurationMs = e.now().Sub(start).Milliseconds()
	}()

	adapter, ok := e.adapters[action.Type]
	if !ok {
		result.Status = execution.ActionFailed
		result.Message = fmt.Sprintf("no adapter registered for action type %q", action.Type)
		return result
	}

	resolvedAny := e.resolver.Resolve(map[string]any(action.Config), ectx)
	resolved, _ := resolvedAny.(map[string]any)

	data, err := adapter.Execute(ctx, resolved, ectx)
	if err != nil {
		result.Status = execution.ActionFailed
		result.Message = err.Error()
		return result
	}

	result.Status = execution.ActionSuccess
	result.Data = data
	return result
}

// requireString fetches a required non-empty string field from config,
// returning a uniform "<field> required" error on miss.
func requireString(config map[string]any, field string) (string, error) {
	v, _ := config[field].(string)
	if v == "" {
		return "", fmt.Errorf("%s required", field)
	}
	return v, nil
}

func optionalString(config map[string]any, field string) string {
	v, _ := config[field].(string)
	return v
}

func optionalBool(config map[string]any, field string) bool {
	v, _ := config[field].(bool)
	return v
}

func optionalMap(config map[string]any, field string) map[string]any {
	v, _ := config[field].(map[string]any)
	return v
}
