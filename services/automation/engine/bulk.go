package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	svcerrors "github.com/trackerflow/automation-engine/infrastructure/errors"

	"github.com/trackerflow/automation-engine/domain/bulkop"
	"github.com/trackerflow/automation-engine/domain/execution"
	"github.com/trackerflow/automation-engine/domain/rule"
)

const defaultBulkBatchSize = 100

// runBulkOperationAction is the ACTION_BULK_OPERATION handler: unlike the
// other action types it is not registered in the executor's adapter
// registry because bulk operations need their own bulkop.Progress record,
// which the engine owns.
func (e *Engine) runBulkOperationAction(ctx context.Context, ruleID string, action rule.Action, ectx *execution.Context) execution.ActionResult {
	start := e.now()

	jql, _ := action.Config["jql"].(string)
	if jql == "" {
		return execution.ActionResult{
			ActionType: string(action.Type), Status: execution.ActionFailed,
			Message: "bulk-operation requires a jql field", DurationMs: e.now().Sub(start).Milliseconds(),
		}
	}
	batchSize := defaultBulkBatchSize
	if v, ok := action.Config["batch_size"].(int); ok && v > 0 {
		batchSize = v
	}
	maxIssues := 0
	if v, ok := action.Config["max_issues"].(int); ok && v > 0 {
		maxIssues = v
	}
	itemActionConfig, _ := action.Config["item_action"].(map[string]any)
	var itemAction rule.Action
	if itemActionConfig != nil {
		itemType, _ := itemActionConfig["type"].(string)
		itemAction = rule.Action{Type: rule.ActionType(itemType), Config: itemActionConfig}
	}

	if e.trackerC == nil {
		return execution.ActionResult{
			ActionType: string(action.Type), Status: execution.ActionFailed,
			Message: "no tracker client configured for bulk operations", DurationMs: e.now().Sub(start).Milliseconds(),
		}
	}

	progress := &bulkop.Progress{
		ID:        uuid.NewString(),
		RuleID:    ruleID,
		Status:    bulkop.StatusRunning,
		StartedAt: start,
	}
	e.mu.Lock()
	e.bulkProg[progress.ID] = progress
	e.mu.Unlock()

	_, total, err := e.trackerC.SearchKeys(ctx, jql, 0, 0)
	if err != nil {
		return execution.ActionResult{
			ActionType: string(action.Type), Status: execution.ActionFailed,
			Message: fmt.Sprintf("bulk query failed: %v", err), DurationMs: e.now().Sub(start).Milliseconds(),
		}
	}
	if maxIssues > 0 && total > maxIssues {
		total = maxIssues
	}
	progress.Total = total

	// avgItem is an exponential moving average of per-item duration,
	// weighting each new observation at 0.3.
	var avgItem time.Duration
	startAt := 0
	processed := 0
	for processed < total {
		pageSize := batchSize
		if remaining := total - processed; pageSize > remaining {
			pageSize = remaining
		}
		pageKeys, _, err := e.trackerC.SearchKeys(ctx, jql, startAt, pageSize)
		if err != nil {
			progress.RecordFailure(fmt.Sprintf("batch@%d", startAt), err, e.now())
			break
		}
		if len(pageKeys) == 0 {
			break
		}

		for _, key := range pageKeys {
			itemStart := e.now()
			itemCtx := *ectx
			itemCtx.IssueKey = key
			if itemAction.Type != "" {
				if _, execErr := e.runBulkItem(ctx, itemAction, &itemCtx); execErr != nil {
					progress.RecordFailure(key, execErr, e.now())
				} else {
					progress.RecordSuccess()
				}
			} else {
				progress.RecordSuccess()
			}
			itemDur := e.now().Sub(itemStart)
			if processed == 0 {
				avgItem = itemDur
			} else {
				avgItem = (7*avgItem + 3*itemDur) / 10
			}
			processed++
		}

		progress.UpdateEstimate(e.now(), avgItem)
		startAt += pageSize
	}

	progress.Finalize()

	status := execution.ActionSuccess
	msg := fmt.Sprintf("processed %d/%d issues (%d failed)", progress.Processed, progress.Total, progress.Failed)
	if progress.Status == bulkop.StatusFailed {
		status = execution.ActionFailed
	}

	return execution.ActionResult{
		ActionType: string(action.Type),
		Status:     status,
		Message:    msg,
		Data: map[string]any{
			"bulk_operation_id": progress.ID,
			"total":             progress.Total,
			"succeeded":         progress.Succeeded,
			"failed":            progress.Failed,
		},
		DurationMs: e.now().Sub(start).Milliseconds(),
	}
}

func (e *Engine) runBulkItem(ctx context.Context, action rule.Action, ectx *execution.Context) (execution.ActionResult, error) {
	result := e.executor.Execute(ctx, action, ectx)
	if result.Status == execution.ActionFailed {
		return result, fmt.Errorf("%s", result.Message)
	}
	return result, nil
}

// GetBulkProgress returns the progress record for an in-flight or
// completed bulk operation.
func (e *Engine) GetBulkProgress(id string) (*bulkop.Progress, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.bulkProg[id]
	if !ok {
		return nil, svcerrors.NotFound("bulk_operation", id)
	}
	clone := *p
	return &clone, nil
}
