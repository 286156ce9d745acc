package middleware

import "github.com/danielgtaylor/huma/v2"

// SecurityHeaders sets browser hardening headers on every response,
// including rejected ones.
func SecurityHeaders() func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		ctx.SetHeader("X-Content-Type-Options", "nosniff")
		ctx.SetHeader("X-XSS-Protection", "1; mode=block")
		ctx.SetHeader("X-Frame-Options", "DENY")

		next(ctx)
	}
}
