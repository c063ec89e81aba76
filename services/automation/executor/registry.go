package executor

import (
	"net/http"

	"github.com/trackerflow/automation-engine/domain/rule"
)

// NewWithTracker builds an Executor with every tracker-backed adapter
// registered against a single shared collaborator, matching the
// "all action adapters share this client" requirement. webhookClient is
// used only by the ad-hoc "webhook-call" action type (nil falls back to a
// default-timeout client); notifier may be nil, in which case
// send-notification is a pure recipient-count check.
func NewWithTracker(t TrackerIssueOps, webhookClient *http.Client, notifier Notifier) *Executor {
	e := New()
	e.Register(rule.ActionUpdateIssue, &UpdateIssueAdapter{Tracker: t})
	e.Register(rule.ActionTransitionIssue, &TransitionIssueAdapter{Tracker: t})
	e.Register(rule.ActionCreateIssue, &CreateIssueAdapter{Tracker: t})
	e.Register(rule.ActionAddComment, &AddCommentAdapter{Tracker: t})
	e.Register(rule.ActionAssignIssue, &AssignIssueAdapter{Tracker: t})
	e.Register(rule.ActionSendNotification, &SendNotificationAdapter{Notifier: notifier})
	e.Register(rule.ActionWebhookCall, &WebhookCallAdapter{HTTPClient: webhookClient})
	e.Register(rule.ActionCreateSubtask, &CreateSubtaskAdapter{Tracker: t})
	e.Register(rule.ActionLinkIssues, &LinkIssuesAdapter{Tracker: t})
	e.Register(rule.ActionUpdateCustomField, &UpdateCustomFieldAdapter{Tracker: t})
	// ActionBulkOperation has no adapter: the engine (C10), which owns
	// bulk-operation orchestration, runs that action type itself.
	return e
}
