package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/keythrottle/internal/ratelimit"
	"go.uber.org/zap"
)

// ThrottleHandler exposes the limiter over HTTP.
type ThrottleHandler struct {
	limiter *ratelimit.Limiter
	logger  *zap.Logger
}

// NewThrottleHandler creates a new throttle handler.
func NewThrottleHandler(limiter *ratelimit.Limiter, logger *zap.Logger) *ThrottleHandler {
	return &ThrottleHandler{
		limiter: limiter,
		logger:  logger,
	}
}

// Check records one request for the key when it fits under the limit.
func (h *ThrottleHandler) Check(ctx context.Context, req *CheckRequest) (*CheckResponse, error) {
	key := SanitizeKey(req.Body.Key)
	if key == "" {
		return nil, huma.Error422UnprocessableEntity("key is empty once control characters are removed")
	}

	req.Body.Key = key
	allowed := h.limiter.Check(ctx, req.Body.Limit, key)

	h.logger.Debug("check",
		zap.String("key", req.Body.Key),
		zap.Int("limit", req.Body.Limit),
		zap.Bool("allowed", allowed),
	)

	resp := &CheckResponse{}
	resp.Body.Allowed = allowed
	resp.Body.Key = req.Body.Key
	resp.Body.Limit = req.Body.Limit
	resp.Body.Backend = string(h.limiter.Mode())

	return resp, nil
}

// Stats reports how many keys the in-memory limiter holds and how it is
// configured. Remote state is not inspected.
func (h *ThrottleHandler) Stats(_ context.Context, _ *struct{}) (*StatsResponse, error) {
	local := h.limiter.Local()
	cfg := local.Config()

	resp := &StatsResponse{}
	resp.Body.TrackedKeys = local.Len()
	resp.Body.Capacity = cfg.Capacity
	resp.Body.WindowMS = cfg.Window.Milliseconds()
	resp.Body.Backend = string(h.limiter.Mode())

	return resp, nil
}
