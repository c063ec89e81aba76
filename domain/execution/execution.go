// Package execution holds the record of one rule firing against one
// context, and the context itself.
package execution

import "time"

// Status is the lifecycle state of an Execution.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ActionResultStatus is the per-action outcome recorded in an Execution.
type ActionResultStatus string

const (
	ActionSuccess ActionResultStatus = "success"
	ActionFailed  ActionResultStatus = "failed"
	ActionSkipped ActionResultStatus = "skipped"
)

// ActionResult is one action's outcome within an Execution's ordered
// results list.
type ActionResult struct {
	ActionType string
	Status     ActionResultStatus
	Message    string
	Data       map[string]any
	DurationMs int64
}

// Context is the tagged record handed to condition evaluation, smart-value
// resolution, and action execution. Well-known slots cover the common
// cases; Custom carries anything else a smart-value lookup might need.
type Context struct {
	IssueKey       string
	ProjectKey     string
	UserID         string
	WebhookPayload map[string]any
	TriggerPayload map[string]any
	IssuePayload   map[string]any
	Custom         map[string]any
}

// Execution is one run of a rule against one Context.
type Execution struct {
	ID          string
	RuleID      string
	TriggeredAt time.Time
	TriggeredBy string // source tag: "event", "cron", "webhook", "manual"
	Status      Status
	Context     Context
	Results     []ActionResult
	Error       string
	DurationMs  int64
}

// AppendResult appends one action result, preserving insertion order —
// execution results must mirror the ascending order of the rule's actions.
func (e *Execution) AppendResult(r ActionResult) {
	e.Results = append(e.Results, r)
}

// HasFailure reports whether any attempted result failed.
func (e *Execution) HasFailure() bool {
	for _, r := range e.Results {
		if r.Status == ActionFailed {
			return true
		}
	}
	return false
}
