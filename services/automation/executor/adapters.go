package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/trackerflow/automation-engine/domain/execution"
	"github.com/trackerflow/automation-engine/services/automation/tracker"
)

// TrackerIssueOps is the subset of tracker.Client the issue-mutating
// adapters need, so tests can substitute a fake without constructing a
// real HTTP collaborator.
type TrackerIssueOps interface {
	UpdateIssue(ctx context.Context, issueKey string, fields map[string]any) error
	Transitions(ctx context.Context, issueKey string) ([]tracker.Transition, error)
	TransitionIssue(ctx context.Context, issueKey, transitionID string) error
	CreateIssue(ctx context.Context, projectKey, issueType, summary string, extra map[string]any) (*tracker.CreatedIssue, error)
	AddComment(ctx context.Context, issueKey, body string, internalOnly bool) error
	AssignIssue(ctx context.Context, issueKey, accountID string) error
	GetIssue(ctx context.Context, issueKey string) (*tracker.IssueDetail, error)
	CreateSubtask(ctx context.Context, projectKey, parentIssueKey, summary string, extra map[string]any) (*tracker.CreatedIssue, error)
	LinkIssues(ctx context.Context, linkType, inwardKey, outwardKey string) error
	UpdateCustomField(ctx context.Context, issueKey, customFieldID string, value any) error
}

// UpdateIssueAdapter implements the "update-issue" action type.
type UpdateIssueAdapter struct{ Tracker TrackerIssueOps }

func (a *UpdateIssueAdapter) Execute(ctx context.Context, config map[string]any, ectx *execution.Context) (map[string]any, error) {
	if ectx.IssueKey == "" {
		return nil, fmt.Errorf("issue_key required")
	}
	fields := optionalMap(config, "fields")
	if len(fields) == 0 {
		return nil, fmt.Errorf("fields required")
	}
	if err := a.Tracker.UpdateIssue(ctx, ectx.IssueKey, fields); err != nil {
		return nil, err
	}
	return map[string]any{"issue_key": ectx.IssueKey}, nil
}

// TransitionIssueAdapter implements "transition-issue".
type TransitionIssueAdapter struct{ Tracker TrackerIssueOps }

func (a *TransitionIssueAdapter) Execute(ctx context.Context, config map[string]any, ectx *execution.Context) (map[string]any, error) {
	if ectx.IssueKey == "" {
		return nil, fmt.Errorf("issue_key required")
	}
	transitionID := optionalString(config, "transition_id")
	if transitionID == "" {
		name := optionalString(config, "transition_name")
		if name == "" {
			return nil, fmt.Errorf("transition_id or transition_name required")
		}
		transitions, err := a.Tracker.Transitions(ctx, ectx.IssueKey)
		if err != nil {
			return nil, err
		}
		for _, t := range transitions {
			if t.Name == name {
				transitionID = t.ID
				break
			}
		}
		if transitionID == "" {
			return nil, fmt.Errorf("no transition named %q available", name)
		}
	}
	if err := a.Tracker.TransitionIssue(ctx, ectx.IssueKey, transitionID); err != nil {
		return nil, err
	}
	return map[string]any{"issue_key": ectx.IssueKey, "transition_id": transitionID}, nil
}

// CreateIssueAdapter implements "create-issue".
type CreateIssueAdapter struct{ Tracker TrackerIssueOps }

func (a *CreateIssueAdapter) Execute(ctx context.Context, config map[string]any, ectx *execution.Context) (map[string]any, error) {
	projectKey, err := requireString(config, "project_key")
	if err != nil {
		return nil, err
	}
	issueType, err := requireString(config, "issue_type")
	if err != nil {
		return nil, err
	}
	summary, err := requireString(config, "summary")
	if err != nil {
		return nil, err
	}
	created, err := a.Tracker.CreateIssue(ctx, projectKey, issueType, summary, optionalMap(config, "extra_fields"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"issue_key": created.Key, "issue_id": created.ID}, nil
}

// AddCommentAdapter implements "add-comment".
type AddCommentAdapter struct{ Tracker TrackerIssueOps }

func (a *AddCommentAdapter) Execute(ctx context.Context, config map[string]any, ectx *execution.Context) (map[string]any, error) {
	if ectx.IssueKey == "" {
		return nil, fmt.Errorf("issue_key required")
	}
	body, err := requireString(config, "body")
	if err != nil {
		return nil, err
	}
	internal := optionalString(config, "visibility") == "internal"
	if err := a.Tracker.AddComment(ctx, ectx.IssueKey, body, internal); err != nil {
		return nil, err
	}
	return map[string]any{"issue_key": ectx.IssueKey}, nil
}

// AssignIssueAdapter implements "assign-issue".
type AssignIssueAdapter struct{ Tracker TrackerIssueOps }

func (a *AssignIssueAdapter) Execute(ctx context.Context, config map[string]any, ectx *execution.Context) (map[string]any, error) {
	if ectx.IssueKey == "" {
		return nil, fmt.Errorf("issue_key required")
	}
	accountID := optionalString(config, "assignee_id")
	if accountID == "" {
		accountID = optionalString(config, "assignee_email")
	}
	if err := a.Tracker.AssignIssue(ctx, ectx.IssueKey, accountID); err != nil {
		return nil, err
	}
	return map[string]any{"issue_key": ectx.IssueKey, "assignee": accountID}, nil
}

// Notifier sends a notification through whatever out-of-band channel the
// engine is configured with. The default wiring never has a real provider
// (this adapter is an allowed side-effect stub); only the
// recipient-count contract is enforced here.
type Notifier interface {
	Notify(ctx context.Context, channel string, recipients []string, message string) error
}

// SendNotificationAdapter implements "send-notification".
type SendNotificationAdapter struct{ Notifier Notifier }

func (a *SendNotificationAdapter) Execute(ctx context.Context, config map[string]any, ectx *execution.Context) (map[string]any, error) {
	recipientsRaw, _ := config["recipients"].([]any)
	if len(recipientsRaw) == 0 {
		return nil, fmt.Errorf("recipients required")
	}
	recipients := make([]string, 0, len(recipientsRaw))
	for _, r := range recipientsRaw {
		if s, ok := r.(string); ok && s != "" {
			recipients = append(recipients, s)
		}
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("recipients required")
	}
	channel := optionalString(config, "channel")
	if channel == "" {
		channel = "email"
	}
	message := optionalString(config, "message")
	if a.Notifier != nil {
		if err := a.Notifier.Notify(ctx, channel, recipients, message); err != nil {
			return nil, err
		}
	}
	return map[string]any{"channel": channel, "recipient_count": len(recipients)}, nil
}

// WebhookCallAdapter implements the per-action "webhook-call" type: a
// one-shot POST to an arbitrary URL, distinct from the Outbound Webhook
// Dispatcher's managed, retried integrations.
type WebhookCallAdapter struct{ HTTPClient *http.Client }

func (a *WebhookCallAdapter) Execute(ctx context.Context, config map[string]any, ectx *execution.Context) (map[string]any, error) {
	url, err := requireString(config, "url")
	if err != nil {
		return nil, err
	}
	bodyValue := config["body"]
	encoded, err := json.Marshal(bodyValue)
	if err != nil {
		return nil, fmt.Errorf("encode webhook-call body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build webhook-call request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if headers := optionalMap(config, "headers"); headers != nil {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	client := a.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook-call request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("webhook-call endpoint returned status %d", resp.StatusCode)
	}
	return map[string]any{"status_code": resp.StatusCode}, nil
}

// CreateSubtaskAdapter implements "create-subtask".
type CreateSubtaskAdapter struct{ Tracker TrackerIssueOps }

func (a *CreateSubtaskAdapter) Execute(ctx context.Context, config map[string]any, ectx *execution.Context) (map[string]any, error) {
	summary, err := requireString(config, "summary")
	if err != nil {
		return nil, err
	}
	parentKey := optionalString(config, "parent_issue_key")
	if parentKey == "" {
		parentKey = ectx.IssueKey
	}
	if parentKey == "" {
		return nil, fmt.Errorf("parent_issue_key required")
	}
	parent, err := a.Tracker.GetIssue(ctx, parentKey)
	if err != nil {
		return nil, err
	}
	created, err := a.Tracker.CreateSubtask(ctx, parent.Fields.Project.Key, parentKey, summary, optionalMap(config, "extra_fields"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"issue_key": created.Key, "issue_id": created.ID, "parent_issue_key": parentKey}, nil
}

// LinkIssuesAdapter implements "link-issues".
type LinkIssuesAdapter struct{ Tracker TrackerIssueOps }

func (a *LinkIssuesAdapter) Execute(ctx context.Context, config map[string]any, ectx *execution.Context) (map[string]any, error) {
	if ectx.IssueKey == "" {
		return nil, fmt.Errorf("issue_key required")
	}
	targetKey, err := requireString(config, "target_issue_key")
	if err != nil {
		return nil, err
	}
	linkType := optionalString(config, "link_type")
	if linkType == "" {
		linkType = "Relates"
	}
	if err := a.Tracker.LinkIssues(ctx, linkType, ectx.IssueKey, targetKey); err != nil {
		return nil, err
	}
	return map[string]any{"source": ectx.IssueKey, "target": targetKey, "link_type": linkType}, nil
}

// UpdateCustomFieldAdapter implements "update-custom-field".
type UpdateCustomFieldAdapter struct{ Tracker TrackerIssueOps }

func (a *UpdateCustomFieldAdapter) Execute(ctx context.Context, config map[string]any, ectx *execution.Context) (map[string]any, error) {
	if ectx.IssueKey == "" {
		return nil, fmt.Errorf("issue_key required")
	}
	fieldID, err := requireString(config, "custom_field_id")
	if err != nil {
		return nil, err
	}
	value, ok := config["value"]
	if !ok {
		return nil, fmt.Errorf("value required")
	}
	if err := a.Tracker.UpdateCustomField(ctx, ectx.IssueKey, fieldID, value); err != nil {
		return nil, err
	}
	return map[string]any{"issue_key": ectx.IssueKey, "custom_field_id": fieldID}, nil
}
