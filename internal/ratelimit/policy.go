package ratelimit

// Policy maps scopes to the number of requests a client may make in each
// scope within the limiter's window.
type Policy struct {
	Limits map[Scope]int
}

// DefaultPolicy returns the limits applied when no per-endpoint override exists.
func DefaultPolicy() *Policy {
	return &Policy{
		Limits: map[Scope]int{
			ScopeGlobal: 100,
			ScopeRead:   80,
			ScopeWrite:  20,
		},
	}
}
