// Package permission implements the Permission Gate (C2): whether a
// principal may invoke a named operation, with rate-limiting delegated to
// the inbound leg of the Rate Limiter.
package permission

import (
	"strings"
	"sync"

	"github.com/trackerflow/automation-engine/infrastructure/ratelimit"
)

// PrincipalPolicy is one principal's access configuration.
type PrincipalPolicy struct {
	AllowList []string
	DenyList  []string
	ReadOnly  bool
	MaxRPM    int
}

// DefaultPolicy applies to any principal with no PrincipalPolicy entry.
type DefaultPolicy struct {
	AllowAll bool
	ReadOnly bool
	MaxRPM   int
}

// writeSubstrings classifies an operation name as a write operation by
// substring match — deliberately coarse, overridable by explicit allow/deny.
var writeSubstrings = []string{
	"create", "update", "delete", "transition", "add", "remove",
	"set", "assign", "execute", "send", "upload", "move", "merge",
}

// destructiveSubstrings classifies an operation as destructive.
var destructiveSubstrings = []string{"delete", "remove", "merge"}

// Decision is the outcome of Check.
type Decision struct {
	Allowed              bool
	Reason               string
	RequiresConfirmation bool
	RetryAfterMs         int64
}

// Gate holds the per-principal and default policy configuration. Step 1 of
// Check (the rate-limit delegation to C1) uses a shared limiter sized to
// DefaultPolicy.MaxRPM; a principal whose policy overrides MaxRPM gets its
// own limiter, created when SetPolicy installs that policy.
type Gate struct {
	mu          sync.RWMutex
	principal   map[string]PrincipalPolicy
	defaultP    DefaultPolicy
	limiter     *ratelimit.PrincipalLimiter
	perPrincLim map[string]*ratelimit.PrincipalLimiter
}

func New(defaultPolicy DefaultPolicy) *Gate {
	window := ratelimit.DefaultPrincipalLimiterConfig().Window
	maxRPM := defaultPolicy.MaxRPM
	if maxRPM <= 0 {
		maxRPM = ratelimit.DefaultPrincipalLimiterConfig().MaxRequests
	}
	return &Gate{
		principal:   make(map[string]PrincipalPolicy),
		defaultP:    defaultPolicy,
		limiter:     ratelimit.NewPrincipalLimiter(ratelimit.PrincipalLimiterConfig{MaxRequests: maxRPM, Window: window}),
		perPrincLim: make(map[string]*ratelimit.PrincipalLimiter),
	}
}

// SetPolicy installs or replaces a principal's policy.
func (g *Gate) SetPolicy(principal string, p PrincipalPolicy) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.principal[principal] = p
	if p.MaxRPM > 0 {
		window := ratelimit.DefaultPrincipalLimiterConfig().Window
		g.perPrincLim[principal] = ratelimit.NewPrincipalLimiter(ratelimit.PrincipalLimiterConfig{MaxRequests: p.MaxRPM, Window: window})
	} else {
		delete(g.perPrincLim, principal)
	}
}

// Check decides whether principal may invoke opName.
func (g *Gate) Check(principal, opName string) Decision {
	g.mu.RLock()
	lim, hasOwnLimiter := g.perPrincLim[principal]
	g.mu.RUnlock()
	if !hasOwnLimiter {
		lim = g.limiter
	}
	if !lim.Allow(principal) {
		return Decision{Allowed: false, Reason: "rate limit"}
	}

	g.mu.RLock()
	policy, hasPolicy := g.principal[principal]
	def := g.defaultP
	g.mu.RUnlock()

	if hasPolicy {
		for _, denied := range policy.DenyList {
			if denied == opName {
				return Decision{Allowed: false, Reason: "denied by explicit deny_list"}
			}
		}
	}

	allowed := def.AllowAll
	if hasPolicy {
		for _, a := range policy.AllowList {
			if a == opName {
				allowed = true
				break
			}
		}
	}
	if !allowed {
		return Decision{Allowed: false, Reason: "not in allow_list and default policy denies"}
	}

	readOnly := def.ReadOnly
	if hasPolicy {
		readOnly = policy.ReadOnly
	}

	isWrite := containsAny(opName, writeSubstrings)
	isDestructive := containsAny(opName, destructiveSubstrings)

	if isWrite && readOnly {
		return Decision{Allowed: false, Reason: "write operation blocked by read-only policy"}
	}
	if isDestructive {
		return Decision{Allowed: true, RequiresConfirmation: true}
	}
	return Decision{Allowed: true}
}

func containsAny(opName string, substrings []string) bool {
	lower := strings.ToLower(opName)
	for _, s := range substrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
