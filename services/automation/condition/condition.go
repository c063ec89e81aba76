// Package condition implements the Condition Evaluator (C8): a
// left-to-right fold over a rule's conditions using their declared
// combinators, with no implicit precedence.
package condition

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/trackerflow/automation-engine/domain/execution"
	"github.com/trackerflow/automation-engine/domain/rule"
	"github.com/trackerflow/automation-engine/services/automation/smartvalue"
)

// TrackerQuerier issues the tracker-side lookups FIELD_VALUE-adjacent
// condition types need. The engine wires a tracker.Client-backed
// implementation; tests supply a fake.
type TrackerQuerier interface {
	CountMatching(ctx context.Context, jql string) (int, error)
	UserInGroup(ctx context.Context, userID, group string) (bool, error)
	ProjectCategory(ctx context.Context, projectKey string) (string, error)
}

// CustomScriptEvaluator is the optional sandboxed evaluator for
// CUSTOM_SCRIPT conditions. The Engine's default wiring leaves this nil,
// in which case every CUSTOM_SCRIPT condition evaluates false and
// validation requires an explicit acknowledgement.
type CustomScriptEvaluator interface {
	Evaluate(ctx context.Context, script string, ectx *execution.Context) (bool, error)
}

// Evaluator evaluates a rule's ordered Condition list.
type Evaluator struct {
	tracker    TrackerQuerier
	resolver   *smartvalue.Resolver
	customEval CustomScriptEvaluator
}

func New(tracker TrackerQuerier, customEval CustomScriptEvaluator) *Evaluator {
	return &Evaluator{
		tracker:    tracker,
		resolver:   smartvalue.New(),
		customEval: customEval,
	}
}

// Evaluate folds conditions left to right. On any per-condition evaluation
// error, the whole rule is treated as not-matched (skip, not failure) —
// the caller cannot distinguish this from a clean false result, since the
// error return is nil in both cases.
func (e *Evaluator) Evaluate(ctx context.Context, conditions []rule.Condition, ectx *execution.Context) (bool, error) {
	if len(conditions) == 0 {
		return true, nil
	}

	result, err := e.evalOne(ctx, conditions[0], ectx)
	if err != nil {
		return false, nil
	}

	for _, c := range conditions[1:] {
		next, err := e.evalOne(ctx, c, ectx)
		if err != nil {
			return false, nil
		}
		switch c.Combinator {
		case rule.CombinatorOR:
			result = result || next
		default: // AND is the default fold for any non-OR combinator
			result = result && next
		}
	}
	return result, nil
}

func (e *Evaluator) evalOne(ctx context.Context, c rule.Condition, ectx *execution.Context) (bool, error) {
	switch c.Type {
	case rule.ConditionTrackerQuery:
		return e.evalTrackerQuery(ctx, c)
	case rule.ConditionFieldValue:
		return e.evalFieldValue(c, ectx)
	case rule.ConditionUserInGroup:
		return e.evalUserInGroup(ctx, c, ectx)
	case rule.ConditionProjectCategory:
		return e.evalProjectCategory(ctx, c, ectx)
	case rule.ConditionIssueAge:
		return e.evalIssueAge(c, ectx)
	case rule.ConditionSmartValue:
		return e.evalSmartValue(c, ectx)
	case rule.ConditionCustomScript:
		return e.evalCustomScript(ctx, c, ectx)
	default:
		return false, fmt.Errorf("unknown condition type %q", c.Type)
	}
}

func (e *Evaluator) evalTrackerQuery(ctx context.Context, c rule.Condition) (bool, error) {
	jql, _ := c.Config["jql"].(string)
	if jql == "" {
		return false, fmt.Errorf("TRACKER_QUERY requires jql")
	}
	count, err := e.tracker.CountMatching(ctx, jql)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (e *Evaluator) evalFieldValue(c rule.Condition, ectx *execution.Context) (bool, error) {
	field, _ := c.Config["field"].(string)
	comparator, _ := c.Config["comparator"].(string)
	expected := c.Config["value"]
	if field == "" {
		return false, fmt.Errorf("FIELD_VALUE requires field")
	}
	actual := lookupField(ectx.IssuePayload, field)
	return compare(actual, expected, rule.Comparator(comparator))
}

func lookupField(payload map[string]any, field string) any {
	if payload == nil {
		return nil
	}
	v, ok := payload[field]
	if !ok {
		if fields, ok := payload["fields"].(map[string]any); ok {
			return fields[field]
		}
		return nil
	}
	return v
}

func compare(actual, expected any, cmp rule.Comparator) (bool, error) {
	switch cmp {
	case rule.CompareEQ:
		return fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", expected), nil
	case rule.CompareNE:
		return fmt.Sprintf("%v", actual) != fmt.Sprintf("%v", expected), nil
	case rule.CompareContains:
		actualStr, _ := actual.(string)
		expectedStr, _ := expected.(string)
		return strings.Contains(actualStr, expectedStr), nil
	case rule.CompareGT, rule.CompareLT:
		af, aok := toFloat(actual)
		ef, eok := toFloat(expected)
		if !aok || !eok {
			return false, fmt.Errorf("gt/lt comparator requires numeric values")
		}
		if cmp == rule.CompareGT {
			return af > ef, nil
		}
		return af < ef, nil
	default:
		return false, fmt.Errorf("unknown comparator %q", cmp)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func (e *Evaluator) evalUserInGroup(ctx context.Context, c rule.Condition, ectx *execution.Context) (bool, error) {
	group, _ := c.Config["group"].(string)
	if group == "" {
		return false, fmt.Errorf("USER_IN_GROUP requires group")
	}
	return e.tracker.UserInGroup(ctx, ectx.UserID, group)
}

func (e *Evaluator) evalProjectCategory(ctx context.Context, c rule.Condition, ectx *execution.Context) (bool, error) {
	expected, _ := c.Config["category_id"].(string)
	if expected == "" {
		return false, fmt.Errorf("PROJECT_CATEGORY requires category_id")
	}
	actual, err := e.tracker.ProjectCategory(ctx, ectx.ProjectKey)
	if err != nil {
		return false, err
	}
	return actual == expected, nil
}

func (e *Evaluator) evalIssueAge(c rule.Condition, ectx *execution.Context) (bool, error) {
	days, ok := c.Config["days"].(float64)
	if !ok {
		if i, ok := c.Config["days"].(int); ok {
			days = float64(i)
		} else {
			return false, fmt.Errorf("ISSUE_AGE requires days")
		}
	}
	createdRaw := lookupField(ectx.IssuePayload, "created")
	createdStr, ok := createdRaw.(string)
	if !ok {
		return false, fmt.Errorf("ISSUE_AGE requires issue.created")
	}
	created, err := time.Parse(time.RFC3339, createdStr)
	if err != nil {
		return false, fmt.Errorf("ISSUE_AGE: invalid created timestamp: %w", err)
	}
	age := time.Since(created)
	return age >= time.Duration(days*24)*time.Hour, nil
}

func (e *Evaluator) evalSmartValue(c rule.Condition, ectx *execution.Context) (bool, error) {
	expr, _ := c.Config["expression"].(string)
	if expr == "" {
		return false, fmt.Errorf("SMART_VALUE requires expression")
	}
	resolved := e.resolver.ResolveString(expr, ectx)
	return resolved == "true", nil
}

func (e *Evaluator) evalCustomScript(ctx context.Context, c rule.Condition, ectx *execution.Context) (bool, error) {
	if e.customEval == nil {
		return false, nil
	}
	script, _ := c.Config["script"].(string)
	return e.customEval.Evaluate(ctx, script, ectx)
}

// ValidateCustomScript enforces deny-by-default at validation time: a
// CUSTOM_SCRIPT condition is only accepted if its config carries an
// explicit acknowledged_unimplemented flag, or an evaluator is wired.
func ValidateCustomScript(c rule.Condition, hasEvaluator bool) error {
	if c.Type != rule.ConditionCustomScript {
		return nil
	}
	if hasEvaluator {
		return nil
	}
	ack, _ := c.Config["acknowledged_unimplemented"].(bool)
	if !ack {
		return fmt.Errorf("CUSTOM_SCRIPT condition requires acknowledged_unimplemented=true when no evaluator is configured")
	}
	return nil
}
