// Package rule defines the automation rule shape: triggers, conditions and
// actions composed into one ordered pipeline.
package rule

import (
	"strconv"
	"time"
)

// TriggerType identifies the source of a rule firing.
type TriggerType string

const (
	TriggerIssueCreated      TriggerType = "ISSUE_CREATED"
	TriggerIssueUpdated      TriggerType = "ISSUE_UPDATED"
	TriggerIssueTransitioned TriggerType = "ISSUE_TRANSITIONED"
	TriggerIssueCommented    TriggerType = "ISSUE_COMMENTED"
	TriggerFieldChanged      TriggerType = "FIELD_CHANGED"
	TriggerSLABreach         TriggerType = "SLA_BREACH"
	TriggerScheduled         TriggerType = "SCHEDULED"
	TriggerWebhook           TriggerType = "WEBHOOK"
	TriggerManual            TriggerType = "MANUAL"
)

func (t TriggerType) Valid() bool {
	switch t {
	case TriggerIssueCreated, TriggerIssueUpdated, TriggerIssueTransitioned,
		TriggerIssueCommented, TriggerFieldChanged, TriggerSLABreach,
		TriggerScheduled, TriggerWebhook, TriggerManual:
		return true
	}
	return false
}

// Trigger is a tagged record; required Config sub-fields depend on Type
// (SCHEDULED needs cron_expression/timezone, WEBHOOK needs inlet_id).
type Trigger struct {
	Type   TriggerType
	Config map[string]any
}

// ConditionType enumerates the closed condition taxonomy.
type ConditionType string

const (
	ConditionTrackerQuery    ConditionType = "TRACKER_QUERY"
	ConditionFieldValue      ConditionType = "FIELD_VALUE"
	ConditionUserInGroup     ConditionType = "USER_IN_GROUP"
	ConditionProjectCategory ConditionType = "PROJECT_CATEGORY"
	ConditionIssueAge        ConditionType = "ISSUE_AGE"
	ConditionSmartValue      ConditionType = "SMART_VALUE"
	ConditionCustomScript    ConditionType = "CUSTOM_SCRIPT"
)

func (t ConditionType) Valid() bool {
	switch t {
	case ConditionTrackerQuery, ConditionFieldValue, ConditionUserInGroup,
		ConditionProjectCategory, ConditionIssueAge, ConditionSmartValue, ConditionCustomScript:
		return true
	}
	return false
}

// Comparator is used by FIELD_VALUE conditions.
type Comparator string

const (
	CompareEQ       Comparator = "eq"
	CompareNE       Comparator = "ne"
	CompareContains Comparator = "contains"
	CompareGT       Comparator = "gt"
	CompareLT       Comparator = "lt"
)

// Combinator joins consecutive conditions in a left-to-right fold.
type Combinator string

const (
	CombinatorAND Combinator = "AND"
	CombinatorOR  Combinator = "OR"
	// CombinatorNone marks the first condition, which has no preceding
	// combinator to apply.
	CombinatorNone Combinator = ""
)

type Condition struct {
	Type       ConditionType
	Config     map[string]any
	Combinator Combinator
}

// ActionType enumerates the closed action taxonomy (§9 redesign: dynamic
// dispatch replaced by a fixed enum + adapter registry).
type ActionType string

const (
	ActionUpdateIssue      ActionType = "update-issue"
	ActionTransitionIssue  ActionType = "transition-issue"
	ActionCreateIssue      ActionType = "create-issue"
	ActionAddComment       ActionType = "add-comment"
	ActionAssignIssue      ActionType = "assign-issue"
	ActionSendNotification ActionType = "send-notification"
	ActionWebhookCall      ActionType = "webhook-call"
	ActionBulkOperation    ActionType = "bulk-operation"
	ActionCreateSubtask    ActionType = "create-subtask"
	ActionLinkIssues       ActionType = "link-issues"
	ActionUpdateCustomField ActionType = "update-custom-field"
)

func (t ActionType) Valid() bool {
	switch t {
	case ActionUpdateIssue, ActionTransitionIssue, ActionCreateIssue, ActionAddComment,
		ActionAssignIssue, ActionSendNotification, ActionWebhookCall, ActionBulkOperation,
		ActionCreateSubtask, ActionLinkIssues, ActionUpdateCustomField:
		return true
	}
	return false
}

type Action struct {
	Type            ActionType
	Config          map[string]any
	Order           int
	ContinueOnError bool
}

// Rule is a complete, user-defined automation definition. Id is assigned
// and made immutable by the owning engine; everything else may be updated.
//
// Invariants: Id unique and immutable; UpdatedAt >= CreatedAt;
// ExecutionCount >= FailureCount; a disabled rule is never fired.
type Rule struct {
	ID             string
	Name           string
	Description    string
	Enabled        bool
	ProjectScope   []string // empty = global
	Triggers       []Trigger
	Conditions     []Condition
	Actions        []Action
	Tags           []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CreatedBy      string
	ExecutionCount int
	FailureCount   int
	LastExecuted   *time.Time
}

// ValidationError carries a machine-readable field path and code, per
// the create_rule contract.
type ValidationError struct {
	Field string
	Code  string
	Msg   string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Msg }

// Validate checks structural well-formedness: it does not know about
// per-action-type or per-trigger-type config contracts (the engine's
// validator composes this with adapter/trigger-specific checks).
func (r *Rule) Validate() []*ValidationError {
	var errs []*ValidationError
	if r.Name == "" {
		errs = append(errs, &ValidationError{Field: "name", Code: "required", Msg: "name must not be empty"})
	}
	if len(r.Triggers) == 0 {
		errs = append(errs, &ValidationError{Field: "triggers", Code: "min_length", Msg: "at least one trigger is required"})
	}
	for i, tr := range r.Triggers {
		if !tr.Type.Valid() {
			errs = append(errs, &ValidationError{Field: fieldAt("triggers", i, "type"), Code: "invalid_enum", Msg: "unknown trigger type"})
		}
	}
	if len(r.Actions) == 0 {
		errs = append(errs, &ValidationError{Field: "actions", Code: "min_length", Msg: "at least one action is required"})
	}
	for i, a := range r.Actions {
		if !a.Type.Valid() {
			errs = append(errs, &ValidationError{Field: fieldAt("actions", i, "type"), Code: "invalid_enum", Msg: "unknown action type"})
		}
	}
	for i, c := range r.Conditions {
		if !c.Type.Valid() {
			errs = append(errs, &ValidationError{Field: fieldAt("conditions", i, "type"), Code: "invalid_enum", Msg: "unknown condition type"})
		}
		if i == 0 && c.Combinator != CombinatorNone {
			errs = append(errs, &ValidationError{Field: fieldAt("conditions", i, "combinator"), Code: "invalid_value", Msg: "first condition must not carry a combinator"})
		}
		if i > 0 && c.Combinator != CombinatorAND && c.Combinator != CombinatorOR {
			errs = append(errs, &ValidationError{Field: fieldAt("conditions", i, "combinator"), Code: "required", Msg: "non-first condition requires AND or OR"})
		}
	}
	return errs
}

func fieldAt(base string, idx int, leaf string) string {
	return base + "[" + strconv.Itoa(idx) + "]." + leaf
}

// InScope reports whether the rule applies to the given project key.
func (r *Rule) InScope(projectKey string) bool {
	if len(r.ProjectScope) == 0 {
		return true
	}
	for _, p := range r.ProjectScope {
		if p == projectKey {
			return true
		}
	}
	return false
}

// HasTag reports whether the rule carries the given tag, used by
// get_rules(filter)'s tag dimension.
func (r *Rule) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
