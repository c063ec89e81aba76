package condition

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackerflow/automation-engine/domain/execution"
	"github.com/trackerflow/automation-engine/domain/rule"
)

type fakeTracker struct {
	count    int
	countErr error
	inGroup  bool
	category string
}

func (f *fakeTracker) CountMatching(ctx context.Context, jql string) (int, error) {
	return f.count, f.countErr
}
func (f *fakeTracker) UserInGroup(ctx context.Context, userID, group string) (bool, error) {
	return f.inGroup, nil
}
func (f *fakeTracker) ProjectCategory(ctx context.Context, projectKey string) (string, error) {
	return f.category, nil
}

func TestEvaluate_EmptyConditions_True(t *testing.T) {
	e := New(&fakeTracker{}, nil)
	ok, err := e.Evaluate(context.Background(), nil, &execution.Context{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_FieldValue_EQ(t *testing.T) {
	e := New(&fakeTracker{}, nil)
	ectx := &execution.Context{IssuePayload: map[string]any{"status": "Open"}}
	conds := []rule.Condition{
		{Type: rule.ConditionFieldValue, Config: map[string]any{"field": "status", "comparator": "eq", "value": "Open"}},
	}
	ok, err := e.Evaluate(context.Background(), conds, ectx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_LeftToRightFold_AndOr(t *testing.T) {
	e := New(&fakeTracker{}, nil)
	ectx := &execution.Context{IssuePayload: map[string]any{"status": "Open", "priority": "High"}}

	conds := []rule.Condition{
		{Type: rule.ConditionFieldValue, Config: map[string]any{"field": "status", "comparator": "eq", "value": "Closed"}},
		{Type: rule.ConditionFieldValue, Combinator: rule.CombinatorOR, Config: map[string]any{"field": "priority", "comparator": "eq", "value": "High"}},
	}
	ok, err := e.Evaluate(context.Background(), conds, ectx)
	require.NoError(t, err)
	assert.True(t, ok, "false OR true = true")
}

func TestEvaluate_TrackerQuery(t *testing.T) {
	e := New(&fakeTracker{count: 2}, nil)
	conds := []rule.Condition{{Type: rule.ConditionTrackerQuery, Config: map[string]any{"jql": "project = ACME"}}}
	ok, err := e.Evaluate(context.Background(), conds, &execution.Context{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_ErrorSkipsNotFails(t *testing.T) {
	e := New(&fakeTracker{countErr: errors.New("boom")}, nil)
	conds := []rule.Condition{{Type: rule.ConditionTrackerQuery, Config: map[string]any{"jql": "project = ACME"}}}
	ok, err := e.Evaluate(context.Background(), conds, &execution.Context{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluate_IssueAge(t *testing.T) {
	e := New(&fakeTracker{}, nil)
	old := time.Now().Add(-10 * 24 * time.Hour).Format(time.RFC3339)
	ectx := &execution.Context{IssuePayload: map[string]any{"created": old}}
	conds := []rule.Condition{{Type: rule.ConditionIssueAge, Config: map[string]any{"days": float64(5)}}}
	ok, err := e.Evaluate(context.Background(), conds, ectx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_CustomScript_NilEvaluator_Denies(t *testing.T) {
	e := New(&fakeTracker{}, nil)
	conds := []rule.Condition{{Type: rule.ConditionCustomScript, Config: map[string]any{}}}
	ok, err := e.Evaluate(context.Background(), conds, &execution.Context{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateCustomScript_DeniesWithoutAcknowledgement(t *testing.T) {
	c := rule.Condition{Type: rule.ConditionCustomScript, Config: map[string]any{}}
	assert.Error(t, ValidateCustomScript(c, false))

	acked := rule.Condition{Type: rule.ConditionCustomScript, Config: map[string]any{"acknowledged_unimplemented": true}}
	assert.NoError(t, ValidateCustomScript(acked, false))

	assert.NoError(t, ValidateCustomScript(c, true))
}

func TestGojaEvaluator_Evaluate(t *testing.T) {
	g := NewGojaEvaluator(time.Second)
	ectx := &execution.Context{IssueKey: "ACME-1"}
	ok, err := g.Evaluate(context.Background(), `context.issueKey === "ACME-1"`, ectx)
	require.NoError(t, err)
	assert.True(t, ok)
}
