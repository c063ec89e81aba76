package condition

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/trackerflow/automation-engine/domain/execution"
)

// GojaEvaluator is an optional, separately-constructed CUSTOM_SCRIPT
// evaluator. It is never reachable from default engine construction; an
// operator wires it in explicitly. Scripts run with no host bindings
// beyond a read-only "context" object built from the execution context,
// under a deadline.
type GojaEvaluator struct {
	timeout time.Duration
}

func NewGojaEvaluator(timeout time.Duration) *GojaEvaluator {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &GojaEvaluator{timeout: timeout}
}

// Evaluate runs script in a fresh VM per call (no state leaks between
// rules) and expects it to produce a boolean value as its final
// expression.
func (g *GojaEvaluator) Evaluate(ctx context.Context, script string, ectx *execution.Context) (result bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("custom script panicked: %v", r)
		}
	}()

	vm := goja.New()
	vm.Set("context", map[string]any{
		"issueKey":   ectx.IssueKey,
		"projectKey": ectx.ProjectKey,
		"userId":     ectx.UserID,
		"issue":      ectx.IssuePayload,
		"webhook":    ectx.WebhookPayload,
		"trigger":    ectx.TriggerPayload,
		"custom":     ectx.Custom,
	})

	timer := time.AfterFunc(g.timeout, func() {
		vm.Interrupt("custom script exceeded deadline")
	})
	defer timer.Stop()

	val, err := vm.RunString(script)
	if err != nil {
		return false, fmt.Errorf("custom script error: %w", err)
	}
	return val.ToBoolean(), nil
}
