package executor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackerflow/automation-engine/domain/execution"
	"github.com/trackerflow/automation-engine/domain/rule"
	"github.com/trackerflow/automation-engine/services/automation/tracker"
)

type fakeTrackerOps struct {
	updateIssueErr error
	transitions    []tracker.Transition
	createdIssue   *tracker.CreatedIssue
	issueDetail    *tracker.IssueDetail
	calls          []string
}

func (f *fakeTrackerOps) UpdateIssue(ctx context.Context, issueKey string, fields map[string]any) error {
	f.calls = append(f.calls, "UpdateIssue")
	return f.updateIssueErr
}
func (f *fakeTrackerOps) Transitions(ctx context.Context, issueKey string) ([]tracker.Transition, error) {
	return f.transitions, nil
}
func (f *fakeTrackerOps) TransitionIssue(ctx context.Context, issueKey, transitionID string) error {
	f.calls = append(f.calls, "TransitionIssue:"+transitionID)
	return nil
}
func (f *fakeTrackerOps) CreateIssue(ctx context.Context, projectKey, issueType, summary string, extra map[string]any) (*tracker.CreatedIssue, error) {
	return f.createdIssue, nil
}
func (f *fakeTrackerOps) AddComment(ctx context.Context, issueKey, body string, internalOnly bool) error {
	f.calls = append(f.calls, "AddComment")
	return nil
}
func (f *fakeTrackerOps) AssignIssue(ctx context.Context, issueKey, accountID string) error {
	f.calls = append(f.calls, "AssignIssue:"+accountID)
	return nil
}
func (f *fakeTrackerOps) GetIssue(ctx context.Context, issueKey string) (*tracker.IssueDetail, error) {
	return f.issueDetail, nil
}
func (f *fakeTrackerOps) CreateSubtask(ctx context.Context, projectKey, parentIssueKey, summary string, extra map[string]any) (*tracker.CreatedIssue, error) {
	return f.createdIssue, nil
}
func (f *fakeTrackerOps) LinkIssues(ctx context.Context, linkType, inwardKey, outwardKey string) error {
	f.calls = append(f.calls, "LinkIssues:"+linkType)
	return nil
}
func (f *fakeTrackerOps) UpdateCustomField(ctx context.Context, issueKey, customFieldID string, value any) error {
	f.calls = append(f.calls, "UpdateCustomField:"+customFieldID)
	return nil
}

func TestExecutor_UpdateIssue_Success(t *testing.T) {
	fake := &fakeTrackerOps{}
	e := NewWithTracker(fake, nil, nil)
	ectx := &execution.Context{IssueKey: "ACME-1"}
	action := rule.Action{Type: rule.ActionUpdateIssue, Config: map[string]any{"fields": map[string]any{"status": "Done"}}}

	result := e.Execute(context.Background(), action, ectx)
	assert.Equal(t, execution.ActionSuccess, result.Status)
	assert.Contains(t, fake.calls, "UpdateIssue")
	assert.GreaterOrEqual(t, result.DurationMs, int64(0))
}

func TestExecutor_UpdateIssue_MissingFields(t *testing.T) {
	fake := &fakeTrackerOps{}
	e := NewWithTracker(fake, nil, nil)
	ectx := &execution.Context{IssueKey: "ACME-1"}
	action := rule.Action{Type: rule.ActionUpdateIssue, Config: map[string]any{}}

	result := e.Execute(context.Background(), action, ectx)
	assert.Equal(t, execution.ActionFailed, result.Status)
	assert.Equal(t, "fields required", result.Message)
}

func TestExecutor_TransitionIssue_ByName(t *testing.T) {
	fake := &fakeTrackerOps{transitions: []tracker.Transition{{ID: "5", Name: "Done"}}}
	e := NewWithTracker(fake, nil, nil)
	ectx := &execution.Context{IssueKey: "ACME-1"}
	action := rule.Action{Type: rule.ActionTransitionIssue, Config: map[string]any{"transition_name": "Done"}}

	result := e.Execute(context.Background(), action, ectx)
	require.Equal(t, execution.ActionSuccess, result.Status)
	assert.Contains(t, fake.calls, "TransitionIssue:5")
}

func TestExecutor_TransitionIssue_UnknownName(t *testing.T) {
	fake := &fakeTrackerOps{transitions: []tracker.Transition{{ID: "5", Name: "Done"}}}
	e := NewWithTracker(fake, nil, nil)
	ectx := &execution.Context{IssueKey: "ACME-1"}
	action := rule.Action{Type: rule.ActionTransitionIssue, Config: map[string]any{"transition_name": "Nope"}}

	result := e.Execute(context.Background(), action, ectx)
	assert.Equal(t, execution.ActionFailed, result.Status)
}

func TestExecutor_NoAdapterRegistered(t *testing.T) {
	e := New()
	ectx := &execution.Context{}
	action := rule.Action{Type: rule.ActionBulkOperation, Config: map[string]any{}}

	result := e.Execute(context.Background(), action, ectx)
	assert.Equal(t, execution.ActionFailed, result.Status)
	assert.Contains(t, result.Message, "no adapter registered")
}

func TestExecutor_SendNotification_RequiresRecipients(t *testing.T) {
	e := NewWithTracker(&fakeTrackerOps{}, nil, nil)
	ectx := &execution.Context{}
	action := rule.Action{Type: rule.ActionSendNotification, Config: map[string]any{}}

	result := e.Execute(context.Background(), action, ectx)
	assert.Equal(t, execution.ActionFailed, result.Status)
}

func TestExecutor_SendNotification_Success(t *testing.T) {
	e := NewWithTracker(&fakeTrackerOps{}, nil, nil)
	ectx := &execution.Context{}
	action := rule.Action{Type: rule.ActionSendNotification, Config: map[string]any{
		"recipients": []any{"a@example.com", "b@example.com"},
	}}

	result := e.Execute(context.Background(), action, ectx)
	assert.Equal(t, execution.ActionSuccess, result.Status)
	assert.Equal(t, 2, result.Data["recipient_count"])
}

func TestExecutor_WebhookCall_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := NewWithTracker(&fakeTrackerOps{}, srv.Client(), nil)
	ectx := &execution.Context{}
	action := rule.Action{Type: rule.ActionWebhookCall, Config: map[string]any{"url": srv.URL, "body": map[string]any{"a": 1}}}

	result := e.Execute(context.Background(), action, ectx)
	assert.Equal(t, execution.ActionSuccess, result.Status)
}

func TestExecutor_WebhookCall_MissingURL(t *testing.T) {
	e := NewWithTracker(&fakeTrackerOps{}, nil, nil)
	ectx := &execution.Context{}
	action := rule.Action{Type: rule.ActionWebhookCall, Config: map[string]any{}}

	result := e.Execute(context.Background(), action, ectx)
	assert.Equal(t, execution.ActionFailed, result.Status)
	assert.Equal(t, "url required", result.Message)
}

func TestExecutor_CreateSubtask_UsesContextIssueKeyAsParent(t *testing.T) {
	fake := &fakeTrackerOps{
		issueDetail: &tracker.IssueDetail{Key: "ACME-1"},
	}
	fake.issueDetail.Fields.Project.Key = "ACME"
	fake.createdIssue = &tracker.CreatedIssue{Key: "ACME-2", ID: "1002"}
	e := NewWithTracker(fake, nil, nil)
	ectx := &execution.Context{IssueKey: "ACME-1"}
	action := rule.Action{Type: rule.ActionCreateSubtask, Config: map[string]any{"summary": "follow up"}}

	result := e.Execute(context.Background(), action, ectx)
	require.Equal(t, execution.ActionSuccess, result.Status)
	assert.Equal(t, "ACME-1", result.Data["parent_issue_key"])
}

func TestExecutor_LinkIssues_DefaultsRelatesType(t *testing.T) {
	fake := &fakeTrackerOps{}
	e := NewWithTracker(fake, nil, nil)
	ectx := &execution.Context{IssueKey: "ACME-1"}
	action := rule.Action{Type: rule.ActionLinkIssues, Config: map[string]any{"target_issue_key": "ACME-2"}}

	result := e.Execute(context.Background(), action, ectx)
	require.Equal(t, execution.ActionSuccess, result.Status)
	assert.Contains(t, fake.calls, "LinkIssues:Relates")
}
