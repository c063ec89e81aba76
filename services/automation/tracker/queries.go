package tracker

import (
	"context"
	"fmt"
	"net/url"
)

// searchResult is the minimal shape needed from a tracker search endpoint.
type searchResult struct {
	Total  int `json:"total"`
	Issues []struct {
		Key string `json:"key"`
	} `json:"issues"`
}

// CountMatching runs a tracker query and returns how many issues match,
// satisfying condition.TrackerQuerier for TRACKER_QUERY conditions.
func (c *Client) CountMatching(ctx context.Context, jql string) (int, error) {
	var out searchResult
	path := fmt.Sprintf("/rest/api/3/search?jql=%s&maxResults=0", url.QueryEscape(jql))
	if err := c.Do(ctx, "GET", path, nil, &out); err != nil {
		return 0, err
	}
	return out.Total, nil
}

// SearchKeys runs jql and returns one page of matching issue keys
// (startAt/maxResults pagination) plus the total match count, used by
// bulk-operation orchestration to iterate in batches.
func (c *Client) SearchKeys(ctx context.Context, jql string, startAt, maxResults int) (keys []string, total int, err error) {
	var out searchResult
	path := fmt.Sprintf("/rest/api/3/search?jql=%s&startAt=%d&maxResults=%d", url.QueryEscape(jql), startAt, maxResults)
	if err := c.Do(ctx, "GET", path, nil, &out); err != nil {
		return nil, 0, err
	}
	keys = make([]string, len(out.Issues))
	for i, issue := range out.Issues {
		keys[i] = issue.Key
	}
	return keys, out.Total, nil
}

type groupMembership struct {
	Members []struct {
		AccountID string `json:"accountId"`
	} `json:"values"`
}

// UserInGroup satisfies condition.TrackerQuerier for USER_IN_GROUP conditions.
func (c *Client) UserInGroup(ctx context.Context, userID, group string) (bool, error) {
	var out groupMembership
	path := fmt.Sprintf("/rest/api/3/group/member?groupname=%s", url.QueryEscape(group))
	if err := c.Do(ctx, "GET", path, nil, &out); err != nil {
		return false, err
	}
	for _, m := range out.Members {
		if m.AccountID == userID {
			return true, nil
		}
	}
	return false, nil
}

type projectDetail struct {
	ProjectCategory struct {
		ID string `json:"id"`
	} `json:"projectCategory"`
}

// ProjectCategory satisfies condition.TrackerQuerier for PROJECT_CATEGORY
// conditions.
func (c *Client) ProjectCategory(ctx context.Context, projectKey string) (string, error) {
	var out projectDetail
	path := fmt.Sprintf("/rest/api/3/project/%s", projectKey)
	if err := c.Do(ctx, "GET", path, nil, &out); err != nil {
		return "", err
	}
	return out.ProjectCategory.ID, nil
}
