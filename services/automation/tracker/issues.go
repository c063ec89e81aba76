package tracker

import (
	"context"
	"fmt"
)

// UpdateIssue PUTs a partial field update.
func (c *Client) UpdateIssue(ctx context.Context, issueKey string, fields map[string]any) error {
	body := map[string]any{"fields": fields}
	return c.Do(ctx, "PUT", fmt.Sprintf("/rest/api/3/issue/%s", issueKey), body, nil)
}

// Transition is one entry of an issue's available workflow transitions.
type Transition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type transitionList struct {
	Transitions []Transition `json:"transitions"`
}

// Transitions lists the transitions currently available on an issue.
func (c *Client) Transitions(ctx context.Context, issueKey string) ([]Transition, error) {
	var out transitionList
	if err := c.Do(ctx, "GET", fmt.Sprintf("/rest/api/3/issue/%s/transitions", issueKey), nil, &out); err != nil {
		return nil, err
	}
	return out.Transitions, nil
}

// TransitionIssue executes a transition by id.
func (c *Client) TransitionIssue(ctx context.Context, issueKey, transitionID string) error {
	body := map[string]any{"transition": map[string]any{"id": transitionID}}
	return c.Do(ctx, "POST", fmt.Sprintf("/rest/api/3/issue/%s/transitions", issueKey), body, nil)
}

// CreatedIssue is the tracker's response to a create-issue call.
type CreatedIssue struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// CreateIssue creates a new issue.
func (c *Client) CreateIssue(ctx context.Context, projectKey, issueType, summary string, extraFields map[string]any) (*CreatedIssue, error) {
	fields := map[string]any{
		"project":   map[string]any{"key": projectKey},
		"issuetype": map[string]any{"name": issueType},
		"summary":   summary,
	}
	for k, v := range extraFields {
		fields[k] = v
	}
	var out CreatedIssue
	if err := c.Do(ctx, "POST", "/rest/api/3/issue", map[string]any{"fields": fields}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddComment posts a comment on an issue. When internalOnly is set, comment
// visibility is restricted to administrators.
func (c *Client) AddComment(ctx context.Context, issueKey, body string, internalOnly bool) error {
	payload := map[string]any{"body": body}
	if internalOnly {
		payload["visibility"] = map[string]any{"type": "role", "value": "Administrators"}
	}
	return c.Do(ctx, "POST", fmt.Sprintf("/rest/api/3/issue/%s/comment", issueKey), payload, nil)
}

// AssignIssue sets or clears an issue's assignee. An empty accountID
// unassigns the issue.
func (c *Client) AssignIssue(ctx context.Context, issueKey, accountID string) error {
	var body map[string]any
	if accountID == "" {
		body = map[string]any{"accountId": nil}
	} else {
		body = map[string]any{"accountId": accountID}
	}
	return c.Do(ctx, "PUT", fmt.Sprintf("/rest/api/3/issue/%s/assignee", issueKey), body, nil)
}

// IssueDetail is the minimal shape needed to resolve a parent issue's
// project for subtask creation.
type IssueDetail struct {
	Key    string `json:"key"`
	Fields struct {
		Project struct {
			Key string `json:"key"`
		} `json:"project"`
	} `json:"fields"`
}

// GetIssue fetches an issue by key.
func (c *Client) GetIssue(ctx context.Context, issueKey string) (*IssueDetail, error) {
	var out IssueDetail
	if err := c.Do(ctx, "GET", fmt.Sprintf("/rest/api/3/issue/%s", issueKey), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateSubtask creates a sub-task under parentIssueKey.
func (c *Client) CreateSubtask(ctx context.Context, projectKey, parentIssueKey, summary string, extraFields map[string]any) (*CreatedIssue, error) {
	fields := map[string]any{
		"project":   map[string]any{"key": projectKey},
		"parent":    map[string]any{"key": parentIssueKey},
		"issuetype": map[string]any{"name": "Sub-task"},
		"summary":   summary,
	}
	for k, v := range extraFields {
		fields[k] = v
	}
	var out CreatedIssue
	if err := c.Do(ctx, "POST", "/rest/api/3/issue", map[string]any{"fields": fields}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LinkIssues creates a typed link from inward (source) to outward (target).
func (c *Client) LinkIssues(ctx context.Context, linkType, inwardKey, outwardKey string) error {
	body := map[string]any{
		"type":         map[string]any{"name": linkType},
		"inwardIssue":  map[string]any{"key": inwardKey},
		"outwardIssue": map[string]any{"key": outwardKey},
	}
	return c.Do(ctx, "POST", "/rest/api/3/issueLink", body, nil)
}

// UpdateCustomField sets a single custom field's value.
func (c *Client) UpdateCustomField(ctx context.Context, issueKey, customFieldID string, value any) error {
	body := map[string]any{"fields": map[string]any{customFieldID: value}}
	return c.Do(ctx, "PUT", fmt.Sprintf("/rest/api/3/issue/%s", issueKey), body, nil)
}
