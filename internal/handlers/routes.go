package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/keythrottle/internal/ratelimit"
)

// AdminResetLimit is the number of resets a client may issue per window.
const AdminResetLimit = 2

// RegisterRoutes registers the limiter routes with per-endpoint rate limit configuration.
func RegisterRoutes(api huma.API, h *ThrottleHandler) {
	// The check endpoint is the limiter itself, so the middleware stays out of its way.
	huma.Register(api, huma.Operation{
		OperationID: "check",
		Method:      http.MethodPost,
		Path:        "/v1/check",
		Summary:     "Check a key",
		Description: "Admits and records one request for key when fewer than limit requests were admitted within the window.",
		Tags:        []string{"Limiter"},
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{Disabled: true},
		},
	}, h.Check)

	huma.Register(api, huma.Operation{
		OperationID: "stats",
		Method:      http.MethodGet,
		Path:        "/v1/stats",
		Summary:     "Limiter statistics",
		Tags:        []string{"Limiter"},
	}, h.Stats)
}

// RegisterAdminRoutes registers operator routes. Callers leave them out
// entirely when no admin token is configured.
func RegisterAdminRoutes(api huma.API, h *AdminHandler) {
	huma.Register(api, huma.Operation{
		OperationID:   "reset",
		Method:        http.MethodPost,
		Path:          "/admin/reset",
		Summary:       "Reset the limiter",
		Description:   "Forgets every tracked key in memory and, when configured, in the remote backend. Requires the X-Admin-Token header.",
		Tags:          []string{"Admin"},
		DefaultStatus: http.StatusNoContent,
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{
				Scope: ratelimit.ScopeWrite,
				Limit: AdminResetLimit,
			},
		},
	}, h.Reset)
}
