package handlers

import (
	"context"
	"crypto/subtle"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/keythrottle/internal/ratelimit"
	"go.uber.org/zap"
)

// HeaderAdminToken carries the shared secret for admin routes.
const HeaderAdminToken = "X-Admin-Token"

// ResetRequest is the input for a limiter reset.
type ResetRequest struct {
	AdminToken string `doc:"Shared admin secret" header:"X-Admin-Token"`
}

// AdminHandler serves operator endpoints guarded by a shared token.
type AdminHandler struct {
	limiter *ratelimit.Limiter
	token   []byte
	logger  *zap.Logger
}

// NewAdminHandler returns a handler that accepts only requests presenting
// token. An empty token rejects every request.
func NewAdminHandler(limiter *ratelimit.Limiter, token string, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		limiter: limiter,
		token:   []byte(token),
		logger:  logger,
	}
}

func (h *AdminHandler) authorized(presented string) bool {
	if len(h.token) == 0 {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(presented), h.token) == 1
}

// Reset forgets every tracked key.
func (h *AdminHandler) Reset(ctx context.Context, req *ResetRequest) (*struct{}, error) {
	if !h.authorized(req.AdminToken) {
		h.logger.Warn("rejected admin reset", zap.Bool("token_present", req.AdminToken != ""))

		return nil, huma.Error401Unauthorized("missing or invalid admin token")
	}

	if err := h.limiter.Reset(ctx); err != nil {
		h.logger.Error("failed to reset limiter", zap.Error(err))

		return nil, huma.Error500InternalServerError("failed to reset rate limiter")
	}

	h.logger.Info("limiter reset", zap.String("backend", string(h.limiter.Mode())))

	return nil, nil
}
