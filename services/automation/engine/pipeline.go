package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	svcerrors "github.com/trackerflow/automation-engine/infrastructure/errors"

	"github.com/trackerflow/automation-engine/domain/execution"
	"github.com/trackerflow/automation-engine/domain/metrics"
	"github.com/trackerflow/automation-engine/domain/rule"
	"github.com/trackerflow/automation-engine/services/automation/audit"
)

// ExecuteRule runs a rule's pipeline on demand (TriggerManual), failing if
// the rule does not exist or is disabled.
func (e *Engine) ExecuteRule(principal, ruleID string, ectx *execution.Context) (*execution.Execution, error) {
	if err := e.checkNotClosed(); err != nil {
		return nil, err
	}
	if err := e.checkPermission(principal, "execute_rule"); err != nil {
		return nil, err
	}

	e.mu.RLock()
	r, ok := e.rules[ruleID]
	e.mu.RUnlock()
	if !ok {
		return nil, svcerrors.NotFound("rule", ruleID)
	}
	if !r.Enabled {
		return nil, svcerrors.InvalidInput("rule", "rule is disabled")
	}

	if ectx == nil {
		ectx = &execution.Context{}
	}
	return e.runPipeline(context.Background(), ruleID, ectx, "manual"), nil
}

// runPipeline is the six-step internal execution pipeline: allocate the
// Execution, resolve smart values, evaluate conditions, run actions in
// ascending order, update metrics, and emit the final record.
func (e *Engine) runPipeline(ctx context.Context, ruleID string, ectx *execution.Context, triggeredBy string) *execution.Execution {
	start := e.now()

	e.mu.RLock()
	r, ok := e.rules[ruleID]
	e.mu.RUnlock()
	if !ok {
		// The rule was deleted between firing and pipeline start; nothing
		// to execute or record.
		return nil
	}
	ruleCopy := *r

	ex := &execution.Execution{
		ID:          uuid.NewString(),
		RuleID:      ruleID,
		TriggeredAt: start,
		TriggeredBy: triggeredBy,
		Status:      execution.StatusRunning,
		Context:     *ectx,
	}
	e.appendExecution(ex)

	if e.logger != nil {
		e.logger.Info(ctx, "rule execution started", map[string]any{"rule_id": ruleID, "execution_id": ex.ID})
	}

	matched := true
	var condErr error
	if len(ruleCopy.Conditions) > 0 && e.evaluator != nil {
		matched, condErr = e.evaluator.Evaluate(ctx, ruleCopy.Conditions, ectx)
	}
	if condErr != nil {
		e.finishExecution(ex, execution.StatusFailed, condErr.Error(), start)
		e.recordMetrics(ruleID, ex, start)
		return ex
	}
	if !matched {
		ex.AppendResult(execution.ActionResult{ActionType: "conditions", Status: execution.ActionSkipped, Message: "conditions not met"})
		e.finishExecution(ex, execution.StatusCompleted, "", start)
		e.recordMetrics(ruleID, ex, start)
		return ex
	}

	deadline := start.Add(e.cfg.ExecutionTimeout)
	actions := append([]rule.Action(nil), ruleCopy.Actions...)
	sortActionsByOrder(actions)

	failed := false
	var failureMsg string
	for _, action := range actions {
		if e.now().After(deadline) {
			failed = true
			failureMsg = "execution timeout"
			break
		}

		var result execution.ActionResult
		if action.Type == rule.ActionBulkOperation {
			result = e.runBulkOperationAction(ctx, ruleID, action, ectx)
		} else {
			result = e.executor.Execute(ctx, action, ectx)
		}
		ex.AppendResult(result)

		if result.Status == execution.ActionFailed && !action.ContinueOnError {
			failed = true
			failureMsg = result.Message
			break
		}
	}

	if failed {
		e.finishExecution(ex, execution.StatusFailed, failureMsg, start)
	} else {
		e.finishExecution(ex, execution.StatusCompleted, "", start)
	}
	e.recordMetrics(ruleID, ex, start)

	if failed && e.logger != nil {
		e.logger.Warn(ctx, "rule execution failed", map[string]any{"rule_id": ruleID, "execution_id": ex.ID, "error": failureMsg})
	}
	return ex
}

func sortActionsByOrder(actions []rule.Action) {
	for i := 1; i < len(actions); i++ {
		for j := i; j > 0 && actions[j].Order < actions[j-1].Order; j-- {
			actions[j], actions[j-1] = actions[j-1], actions[j]
		}
	}
}

func (e *Engine) appendExecution(ex *execution.Execution) {
	e.mu.Lock()
	e.executions = append(e.executions, ex)
	if r, ok := e.rules[ex.RuleID]; ok {
		now := ex.TriggeredAt
		r.LastExecuted = &now
		r.ExecutionCount++
	}
	e.mu.Unlock()
}

func (e *Engine) finishExecution(ex *execution.Execution, status execution.Status, errMsg string, start time.Time) {
	ex.Status = status
	ex.Error = errMsg
	ex.DurationMs = e.now().Sub(start).Milliseconds()

	if status == execution.StatusFailed {
		e.mu.Lock()
		if r, ok := e.rules[ex.RuleID]; ok {
			r.FailureCount++
		}
		e.mu.Unlock()
		e.notifyFailure(ex, errMsg)
	}
}

func (e *Engine) recordMetrics(ruleID string, ex *execution.Execution, start time.Time) {
	e.mu.Lock()
	m, ok := e.metrics[ruleID]
	if !ok {
		m = metrics.New(ruleID)
		e.metrics[ruleID] = m
	}
	if ex.Status == execution.StatusFailed {
		m.RecordFailure(ex.DurationMs, e.now(), ex.Error)
	} else {
		m.RecordSuccess(ex.DurationMs, e.now())
	}
	e.mu.Unlock()

	e.telemetry.RecordExecution(ruleID, string(ex.Status), time.Duration(ex.DurationMs)*time.Millisecond)
	if ex.Status == execution.StatusFailed {
		e.telemetry.RecordFailureReason(ruleID, ex.Error)
	}
}

// notifyFailure audits a failed execution; a dedicated webhook
// notification is left to the rule author (a SEND_NOTIFICATION action),
// this is the engine's own observability trail, not a user-facing alert.
func (e *Engine) notifyFailure(ex *execution.Execution, reason string) {
	if e.audit != nil {
		e.audit.Record(audit.KindError, audit.OutcomeFailure, "", "execute_rule", ex.RuleID, "",
			map[string]any{"execution_id": ex.ID, "reason": reason})
	}
}
