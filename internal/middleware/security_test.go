package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/serroba/keythrottle/internal/middleware"
	"github.com/serroba/keythrottle/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestSecurityHeaders(t *testing.T) {
	router := chi.NewMux()
	api := humachi.New(router, huma.DefaultConfig("Test", "1.0.0"))
	limiter := newWindowPolicyLimiter(map[ratelimit.Scope]int{ratelimit.ScopeGlobal: 1})
	api.UseMiddleware(
		middleware.SecurityHeaders(),
		middleware.RateLimiter(api, limiter, ratelimit.NewMethodScopeResolver(), (&publishRecorder{}).publish(), zap.NewNop()),
	)
	huma.Get(api, "/test", func(_ context.Context, _ *struct{}) (*testOutput, error) {
		return &testOutput{Body: "ok"}, nil
	})

	for _, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		w := serve(router, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, want, w.Code)
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "1; mode=block", w.Header().Get("X-XSS-Protection"))
		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	}
}
