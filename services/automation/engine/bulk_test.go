package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackerflow/automation-engine/domain/execution"
	"github.com/trackerflow/automation-engine/domain/rule"
	"github.com/trackerflow/automation-engine/services/automation/audit"
	"github.com/trackerflow/automation-engine/services/automation/condition"
	"github.com/trackerflow/automation-engine/services/automation/executor"
	"github.com/trackerflow/automation-engine/services/automation/permission"
	"github.com/trackerflow/automation-engine/services/automation/tracker"
	"github.com/trackerflow/automation-engine/services/automation/webhook"
)

// newSearchServer serves /rest/api/3/search returning keyCount issue keys
// total, paginated by startAt/maxResults.
func newSearchServer(t *testing.T, keyCount int) *httptest.Server {
	t.Helper()
	allKeys := make([]map[string]string, keyCount)
	for i := 0; i < keyCount; i++ {
		allKeys[i] = map[string]string{"key": "ACME-" + string(rune('A'+i))}
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		startAt := 0
		maxResults := keyCount
		if v := q.Get("startAt"); v != "" {
			json.Unmarshal([]byte(v), &startAt)
		}
		if v := q.Get("maxResults"); v != "" {
			json.Unmarshal([]byte(v), &maxResults)
		}

		page := []map[string]string{}
		if maxResults > 0 && startAt < len(allKeys) {
			end := startAt + maxResults
			if end > len(allKeys) {
				end = len(allKeys)
			}
			page = allKeys[startAt:end]
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"total":  keyCount,
			"issues": page,
		})
	}))
}

func TestEngine_BulkOperation_ProcessesAllMatchingIssues(t *testing.T) {
	srv := newSearchServer(t, 3)
	defer srv.Close()

	trackerClient, err := tracker.New(tracker.Config{BaseURL: srv.URL, Email: "bot@example.com", APIToken: "tok"})
	require.NoError(t, err)

	adapter := &recordingAdapter{}
	exec := executor.New()
	exec.Register(rule.ActionAddComment, adapter)
	evaluator := condition.New(nil, nil)
	gate := permission.New(permission.DefaultPolicy{AllowAll: true})
	auditSink, err := audit.New(t.TempDir())
	require.NoError(t, err)
	registry := webhook.NewRegistry()
	dispatch := webhook.New(registry, http.DefaultClient, nil)

	e := New(DefaultConfig(), evaluator, exec, dispatch, registry, gate, auditSink, trackerClient, nil, nil)
	defer e.Shutdown()

	r := &rule.Rule{
		Name:     "bulk-comment",
		Enabled:  true,
		Triggers: []rule.Trigger{{Type: rule.TriggerManual}},
		Actions: []rule.Action{{
			Type:  rule.ActionBulkOperation,
			Order: 0,
			Config: map[string]any{
				"jql":        "project = ACME",
				"batch_size": 2,
				"item_action": map[string]any{
					"type": string(rule.ActionAddComment),
				},
			},
		}},
	}
	created, err := e.CreateRule("alice", r)
	require.NoError(t, err)

	ex, err := e.ExecuteRule("alice", created.ID, &execution.Context{})
	require.NoError(t, err)
	assert.Equal(t, execution.StatusCompleted, ex.Status)
	require.Len(t, ex.Results, 1)
	assert.Equal(t, execution.ActionSuccess, ex.Results[0].Status)
	assert.Len(t, adapter.calls, 3)

	bulkID, _ := ex.Results[0].Data["bulk_operation_id"].(string)
	require.NotEmpty(t, bulkID)
	progress, err := e.GetBulkProgress(bulkID)
	require.NoError(t, err)
	assert.Equal(t, 3, progress.Total)
	assert.Equal(t, 3, progress.Succeeded)
	assert.Equal(t, 0, progress.Failed)
}

func TestEngine_BulkOperation_MissingJQLFails(t *testing.T) {
	e, _ := newTestEngine(t)
	result := e.runBulkOperationAction(context.Background(), "r1", rule.Action{Type: rule.ActionBulkOperation, Config: map[string]any{}}, &execution.Context{})
	assert.Equal(t, execution.ActionFailed, result.Status)
}

// keyFailAdapter fails for a fixed set of issue keys and succeeds for the
// rest, modeling a bulk operation where some items error and some don't.
type keyFailAdapter struct {
	failKeys map[string]bool
}

func (a *keyFailAdapter) Execute(ctx context.Context, config map[string]any, ectx *execution.Context) (map[string]any, error) {
	if a.failKeys[ectx.IssueKey] {
		return nil, fmt.Errorf("adapter configured to fail for %s", ectx.IssueKey)
	}
	return map[string]any{"ok": true}, nil
}

// TestEngine_BulkOperation_PartialFailureMarksActionFailed covers
// scenario D: 2 succeeded / 1 failed must surface as an ActionFailed
// result and a FAILED execution, not a full success.
func TestEngine_BulkOperation_PartialFailureMarksActionFailed(t *testing.T) {
	srv := newSearchServer(t, 3)
	defer srv.Close()

	trackerClient, err := tracker.New(tracker.Config{BaseURL: srv.URL, Email: "bot@example.com", APIToken: "tok"})
	require.NoError(t, err)

	adapter := &keyFailAdapter{failKeys: map[string]bool{"ACME-A": true}}
	exec := executor.New()
	exec.Register(rule.ActionAddComment, adapter)
	evaluator := condition.New(nil, nil)
	gate := permission.New(permission.DefaultPolicy{AllowAll: true})
	auditSink, err := audit.New(t.TempDir())
	require.NoError(t, err)
	registry := webhook.NewRegistry()
	dispatch := webhook.New(registry, http.DefaultClient, nil)

	e := New(DefaultConfig(), evaluator, exec, dispatch, registry, gate, auditSink, trackerClient, nil, nil)
	defer e.Shutdown()

	r := &rule.Rule{
		Name:     "bulk-comment-partial",
		Enabled:  true,
		Triggers: []rule.Trigger{{Type: rule.TriggerManual}},
		Actions: []rule.Action{{
			Type:  rule.ActionBulkOperation,
			Order: 0,
			Config: map[string]any{
				"jql":        "project = ACME",
				"batch_size": 2,
				"item_action": map[string]any{
					"type": string(rule.ActionAddComment),
				},
			},
		}},
	}
	created, err := e.CreateRule("alice", r)
	require.NoError(t, err)

	ex, err := e.ExecuteRule("alice", created.ID, &execution.Context{})
	require.NoError(t, err)
	require.Len(t, ex.Results, 1)
	assert.Equal(t, execution.ActionFailed, ex.Results[0].Status, "2 succeeded / 1 failed must mark the action result failed")
	assert.Equal(t, execution.StatusFailed, ex.Status, "a failed bulk action must fail the execution")

	bulkID, _ := ex.Results[0].Data["bulk_operation_id"].(string)
	require.NotEmpty(t, bulkID)
	progress, err := e.GetBulkProgress(bulkID)
	require.NoError(t, err)
	assert.Equal(t, 3, progress.Total)
	assert.Equal(t, 2, progress.Succeeded)
	assert.Equal(t, 1, progress.Failed)
}
