// Package smartvalue implements the Smart-Value Resolver (C7): substitution
// of {path.to.field} placeholders in action configs from the execution
// context. Also used by the Condition Evaluator for SMART_VALUE conditions.
package smartvalue

import (
	"fmt"
	"regexp"

	"github.com/PaesslerAG/jsonpath"

	"github.com/trackerflow/automation-engine/domain/execution"
)

var placeholder = regexp.MustCompile(`\{([a-zA-Z0-9_.]+)\}`)

// Resolver walks a config tree and substitutes smart-value placeholders.
type Resolver struct{}

func New() *Resolver { return &Resolver{} }

// Resolve walks config recursively (maps and slices are walked, strings
// are substituted; every other type is returned as-is) and replaces every
// {path.to.field} occurrence found in a string value. Expansion is
// single-pass: the replacement text is never itself rescanned for further
// placeholders, which is what makes double-application idempotent.
func (r *Resolver) Resolve(config any, ctx *execution.Context) any {
	root := buildRoot(ctx)
	return r.walk(config, root)
}

// ResolveString resolves placeholders in a single string, used directly by
// the Condition Evaluator's SMART_VALUE condition type.
func (r *Resolver) ResolveString(s string, ctx *execution.Context) string {
	return substitute(s, buildRoot(ctx))
}

func (r *Resolver) walk(node any, root map[string]any) any {
	switch v := node.(type) {
	case string:
		return substitute(v, root)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = r.walk(val, root)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = r.walk(val, root)
		}
		return out
	default:
		return v
	}
}

func substitute(s string, root map[string]any) string {
	return placeholder.ReplaceAllStringFunc(s, func(match string) string {
		path := placeholder.FindStringSubmatch(match)[1]
		value, err := jsonpath.Get("$."+path, root)
		if err != nil || value == nil {
			return ""
		}
		if str, ok := value.(string); ok {
			return str
		}
		return toStringValue(value)
	})
}

func toStringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", t)
	}
}

func buildRoot(ctx *execution.Context) map[string]any {
	root := make(map[string]any)
	if ctx == nil {
		return root
	}
	if ctx.IssuePayload != nil {
		root["issue"] = ctx.IssuePayload
	}
	if ctx.WebhookPayload != nil {
		root["webhook"] = ctx.WebhookPayload
	}
	if ctx.TriggerPayload != nil {
		root["trigger"] = ctx.TriggerPayload
	}
	for k, v := range ctx.Custom {
		root[k] = v
	}
	if ctx.IssueKey != "" {
		root["issue_key"] = ctx.IssueKey
	}
	if ctx.ProjectKey != "" {
		root["project_key"] = ctx.ProjectKey
	}
	if ctx.UserID != "" {
		root["user_id"] = ctx.UserID
	}
	return root
}
