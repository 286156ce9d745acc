package ratelimit

import "context"

// Backend decides admission for a key against a limit.
type Backend interface {
	// Allow reports whether one more request for key fits under limit and
	// records it when it does.
	Allow(ctx context.Context, limit int, key string) (allowed bool, err error)
}

// Resetter is implemented by backends whose state can be cleared.
type Resetter interface {
	Reset(ctx context.Context) error
}
