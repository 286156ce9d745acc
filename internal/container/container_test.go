package container_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/samber/do"
	"github.com/serroba/keythrottle/internal/container"
	"github.com/serroba/keythrottle/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localOptions() *container.Options {
	return &container.Options{
		Port:        8888,
		RedisAddr:   "localhost:6379",
		LogFormat:   "console",
		Backend:     container.BackendLocal,
		WindowMS:    10000,
		Capacity:    500,
		GlobalLimit: 100,
		ReadLimit:   80,
		WriteLimit:  20,
	}
}

func newInjector(opts *container.Options) *do.Injector {
	injector := do.New()
	do.ProvideValue(injector, opts)
	container.LoggerPackage(injector)
	container.RedisPackage(injector)
	container.PostgresPackage(injector)
	container.MetricsPackage(injector)
	container.RateLimitPackage(injector)
	container.PublisherGroupPackage(injector)
	container.HTTPPackage(injector)

	return injector
}

func TestOptions(t *testing.T) {
	opts := localOptions()

	assert.Equal(t, ratelimit.Config{Window: 10 * time.Second, Capacity: 500}, opts.LimiterConfig())
	assert.Equal(t, 20, opts.Policy().Limits[ratelimit.ScopeWrite])
}

func servingRouter(router http.Handler) func(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	return func(method, path, body string, headers ...string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}

		for i := 0; i+1 < len(headers); i += 2 {
			req.Header.Set(headers[i], headers[i+1])
		}

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		return w
	}
}

func TestHTTPPackage_LocalBackend(t *testing.T) {
	injector := newInjector(localOptions())
	t.Cleanup(func() { _ = injector.Shutdown() })

	router := do.MustInvoke[*chi.Mux](injector)
	_ = do.MustInvoke[huma.API](injector)

	serve := servingRouter(router)

	t.Run("check decides locally", func(t *testing.T) {
		w := serve(http.MethodPost, "/v1/check", `{"key":"k","limit":1}`)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"allowed":true`)
		assert.Contains(t, w.Body.String(), `"backend":"local"`)
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		assert.Equal(t, "1; mode=block", w.Header().Get("X-XSS-Protection"))
	})

	t.Run("admin routes are disabled without a token", func(t *testing.T) {
		w := serve(http.MethodPost, "/admin/reset", "", "X-Admin-Token", "")

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("health reports local backend", func(t *testing.T) {
		w := serve(http.MethodGet, "/health", "")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"backend":"local"`)
	})

	t.Run("metrics are exposed", func(t *testing.T) {
		w := serve(http.MethodGet, "/metrics", "")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `ratelimit_decisions_total{outcome="allowed"} 1`)
		assert.Contains(t, w.Body.String(), "ratelimit_tracked_keys 1")
	})
}

func TestRateLimitPackage_UnknownBackend(t *testing.T) {
	opts := localOptions()
	opts.Backend = "memcached"

	injector := newInjector(opts)

	_, err := do.Invoke[*ratelimit.Limiter](injector)

	assert.ErrorContains(t, err, "unknown backend")
}

func TestHTTPPackage_AdminToken(t *testing.T) {
	opts := localOptions()
	opts.AdminToken = "ops-secret"

	injector := newInjector(opts)
	t.Cleanup(func() { _ = injector.Shutdown() })

	router := do.MustInvoke[*chi.Mux](injector)
	_ = do.MustInvoke[huma.API](injector)
	serve := servingRouter(router)

	assert.Equal(t, http.StatusUnauthorized, serve(http.MethodPost, "/admin/reset", "").Code)
	assert.Equal(t, http.StatusNoContent, serve(http.MethodPost, "/admin/reset", "", "X-Admin-Token", "ops-secret").Code)
}
