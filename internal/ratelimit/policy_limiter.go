package ratelimit

import (
	"context"
	"fmt"
)

// LimitExceeded describes the limit a denied request ran into.
type LimitExceeded struct {
	Scope Scope
	Limit int
}

// PolicyLimiter enforces a Policy over the scopes resolved for a request.
type PolicyLimiter struct {
	checker Checker
	policy  *Policy
}

// NewPolicyLimiter creates a new policy-based rate limiter.
func NewPolicyLimiter(checker Checker, policy *Policy) *PolicyLimiter {
	return &PolicyLimiter{
		checker: checker,
		policy:  policy,
	}
}

// Allow checks the client against the limit of every scope in order and
// stops at the first denial. Scopes without a configured limit are skipped.
func (l *PolicyLimiter) Allow(ctx context.Context, clientKey string, scopes []Scope) (bool, *LimitExceeded) {
	for _, scope := range scopes {
		limit, ok := l.policy.Limits[scope]
		if !ok {
			continue
		}

		if !l.checker.Check(ctx, limit, scopeKey(clientKey, scope)) {
			return false, &LimitExceeded{Scope: scope, Limit: limit}
		}
	}

	return true, nil
}

// AllowCustom checks the client against an endpoint-specific limit.
//
// The key uses the route template (e.g. "/v1/items/{id}"), so every path
// matching the same route shares one counter per client.
func (l *PolicyLimiter) AllowCustom(ctx context.Context, clientKey, route string, limit int) (bool, *LimitExceeded) {
	if l.checker.Check(ctx, limit, fmt.Sprintf("%s:%s:%s", clientKey, ScopeCustom, route)) {
		return true, nil
	}

	return false, &LimitExceeded{Scope: ScopeCustom, Limit: limit}
}

// Policy returns the enforced policy.
func (l *PolicyLimiter) Policy() *Policy {
	return l.policy
}

func scopeKey(clientKey string, scope Scope) string {
	return clientKey + ":" + string(scope)
}
