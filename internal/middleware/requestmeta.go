package middleware

import (
	"context"
	"net"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// HeaderRequestID carries the request ID on requests and responses.
const HeaderRequestID = "X-Request-ID"

const maxRequestIDLength = 64

type metaKey struct{}

// Meta holds per-request client details used for rate limit keys and audit events.
type Meta struct {
	ClientIP  string
	UserAgent string
	RequestID string
}

// ContextWithMeta adds request metadata to context.
func ContextWithMeta(ctx context.Context, meta Meta) context.Context {
	return context.WithValue(ctx, metaKey{}, meta)
}

// MetaFromContext extracts request metadata from context.
func MetaFromContext(ctx context.Context) (Meta, bool) {
	meta, ok := ctx.Value(metaKey{}).(Meta)

	return meta, ok
}

// RequestMeta is a middleware that stores the client IP, user agent and a
// request ID in the request context. An inbound X-Request-ID is kept when it
// looks sane, otherwise newID generates one. The ID is echoed on the response.
//
// X-Forwarded-For and X-Real-IP are honored only when trustProxy is set.
// Otherwise any client could rotate them to get a fresh rate limit key.
func RequestMeta(newID func() string, trustProxy bool) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		requestID := ctx.Header(HeaderRequestID)
		if !validRequestID(requestID) {
			requestID = newID()
		}

		meta := Meta{
			ClientIP:  clientIP(ctx, trustProxy),
			UserAgent: ctx.Header("User-Agent"),
			RequestID: requestID,
		}

		ctx.SetHeader(HeaderRequestID, requestID)
		ctx = huma.WithContext(ctx, ContextWithMeta(ctx.Context(), meta))

		next(ctx)
	}
}

func metaFor(ctx huma.Context) Meta {
	if meta, ok := MetaFromContext(ctx.Context()); ok {
		return meta
	}

	return Meta{
		ClientIP:  clientIP(ctx, false),
		UserAgent: ctx.Header("User-Agent"),
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}

	for _, r := range id {
		if r < 0x21 || r > 0x7e {
			return false
		}
	}

	return true
}

// clientIP returns the peer address, or the proxy-reported client when
// trustProxy is set.
func clientIP(ctx huma.Context, trustProxy bool) string {
	if trustProxy {
		// First X-Forwarded-For entry is the original client.
		if xff := ctx.Header("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")

			return strings.TrimSpace(first)
		}

		if xri := ctx.Header("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	addr := ctx.RemoteAddr()

	ip, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}

	return ip
}
