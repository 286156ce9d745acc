package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/serroba/keythrottle/internal/audit"
	"github.com/serroba/keythrottle/internal/messaging"
	"github.com/serroba/keythrottle/internal/ratelimit"
	"go.uber.org/zap"
)

// RateLimiter returns a Huma middleware that applies policy-based rate
// limiting per client.
//
// Per-endpoint configuration can be provided via operation metadata using
// ratelimit.MetadataKey. This allows endpoints to:
//   - Disable rate limiting entirely (Disabled: true)
//   - Override the scope detection (Scope: ratelimit.ScopeRead)
//   - Replace the policy with a single limit (Limit: 5)
//
// Denied requests are logged, published as audit.DeniedEvent and answered
// with 429. A publish failure is logged and does not change the response.
func RateLimiter(
	api huma.API,
	limiter *ratelimit.PolicyLimiter,
	resolver ratelimit.ScopeResolver,
	publish messaging.Publish[audit.DeniedEvent],
	logger *zap.Logger,
) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		cfg := ratelimit.EndpointConfigFrom(ctx)
		route := operationPath(ctx)

		if cfg != nil && cfg.Disabled {
			logger.Debug("rate limiting disabled for endpoint",
				zap.String("path", route), zap.String("method", ctx.Method()))
			next(ctx)

			return
		}

		meta := metaFor(ctx)
		key := clientKey(meta)

		var (
			allowed  bool
			exceeded *ratelimit.LimitExceeded
		)

		if cfg != nil && cfg.HasCustomLimit() {
			allowed, exceeded = limiter.AllowCustom(ctx.Context(), key, route, cfg.Limit)
		} else {
			allowed, exceeded = limiter.Allow(ctx.Context(), key, resolver.Resolve(ctx))
		}

		if !allowed {
			reject(api, ctx, key, meta, route, exceeded, publish, logger)

			return
		}

		next(ctx)
	}
}

func reject(
	api huma.API,
	ctx huma.Context,
	key string,
	meta Meta,
	route string,
	exceeded *ratelimit.LimitExceeded,
	publish messaging.Publish[audit.DeniedEvent],
	logger *zap.Logger,
) {
	event := &audit.DeniedEvent{
		ID:        uuid.NewString(),
		Key:       key,
		Limit:     exceeded.Limit,
		Scope:     string(exceeded.Scope),
		Path:      route,
		Method:    ctx.Method(),
		ClientIP:  meta.ClientIP,
		UserAgent: meta.UserAgent,
		RequestID: meta.RequestID,
		DeniedAt:  time.Now().UTC(),
	}

	logger.Warn("rate limit exceeded",
		zap.String("path", route),
		zap.String("method", event.Method),
		zap.String("scope", event.Scope),
		zap.Int("limit", event.Limit),
		zap.String("client_ip", meta.ClientIP),
		zap.String("request_id", meta.RequestID),
	)

	if err := publish(ctx.Context(), event); err != nil {
		logger.Error("failed to publish denied event",
			zap.String("id", event.ID),
			zap.Error(err),
		)
	}

	msg := fmt.Sprintf("rate limit exceeded: %s scope allows %d requests", exceeded.Scope, exceeded.Limit)
	if exceeded.Limit <= 0 {
		msg = fmt.Sprintf("rate limit exceeded: %s scope is blocked", exceeded.Scope)
	}

	_ = huma.WriteErr(api, ctx, http.StatusTooManyRequests, msg)
}

// operationPath returns the route template of the operation, if available.
func operationPath(ctx huma.Context) string {
	if op := ctx.Operation(); op != nil {
		return op.Path
	}

	return ctx.URL().Path
}

// clientKey derives an opaque rate limit key from the client IP and User-Agent.
func clientKey(meta Meta) string {
	hash := sha256.Sum256([]byte(meta.ClientIP + "|" + meta.UserAgent))

	return hex.EncodeToString(hash[:])
}
