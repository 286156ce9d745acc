package ratelimit

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Mode names the backend a Limiter decides with.
type Mode string

const (
	// ModeLocal decides with the in-memory window limiter only.
	ModeLocal Mode = "local"
	// ModeRemote decides with a remote backend and falls back to memory on error.
	ModeRemote Mode = "remote"
)

// Checker answers admission checks for a key.
type Checker interface {
	Check(ctx context.Context, limit int, key string) bool
}

// Limiter dispatches admission checks to a remote backend when one is
// configured and to the in-memory window limiter otherwise.
//
// A remote error never reaches the caller: the check fails open to the
// local limiter for that call and the error is logged.
type Limiter struct {
	local  *WindowLimiter
	remote Backend
	logger *zap.Logger

	onDecision func(allowed bool)
	onFallback func(err error)
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithRemote makes the limiter decide with backend, keeping the local limiter as fallback.
func WithRemote(backend Backend) Option {
	return func(l *Limiter) {
		l.remote = backend
	}
}

// WithLogger sets the logger used to report remote failures.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// WithOnDecision sets a callback invoked with every decision.
func WithOnDecision(fn func(allowed bool)) Option {
	return func(l *Limiter) {
		l.onDecision = fn
	}
}

// WithOnFallback sets a callback invoked each time a remote error forces a local decision.
func WithOnFallback(fn func(err error)) Option {
	return func(l *Limiter) {
		l.onFallback = fn
	}
}

// NewLimiter creates a limiter around the given local window limiter.
func NewLimiter(local *WindowLimiter, opts ...Option) *Limiter {
	l := &Limiter{
		local:  local,
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Check reports whether a request for key is admitted under limit.
func (l *Limiter) Check(ctx context.Context, limit int, key string) bool {
	allowed := l.decide(ctx, limit, key)

	if l.onDecision != nil {
		l.onDecision(allowed)
	}

	return allowed
}

func (l *Limiter) decide(ctx context.Context, limit int, key string) bool {
	if l.remote == nil {
		return l.local.Check(limit, key)
	}

	allowed, err := l.remote.Allow(ctx, limit, key)
	if err == nil {
		return allowed
	}

	l.logger.Warn("remote rate limit failed, falling back to memory",
		zap.Int("limit", limit),
		zap.Error(err),
	)

	if l.onFallback != nil {
		l.onFallback(err)
	}

	return l.local.Check(limit, key)
}

// Reset clears the local limiter and, when it supports it, the remote backend.
func (l *Limiter) Reset(ctx context.Context) error {
	l.local.Reset()

	if r, ok := l.remote.(Resetter); ok {
		if err := r.Reset(ctx); err != nil {
			return fmt.Errorf("reset remote backend: %w", err)
		}
	}

	return nil
}

// Mode reports which backend decides admission.
func (l *Limiter) Mode() Mode {
	if l.remote != nil {
		return ModeRemote
	}

	return ModeLocal
}

// Local returns the in-memory window limiter.
func (l *Limiter) Local() *WindowLimiter {
	return l.local
}

var _ Checker = (*Limiter)(nil)
