package store

import (
	"context"

	"github.com/serroba/keythrottle/internal/audit"
	"go.uber.org/zap"
)

// Noop is an audit.Store that only logs the events it receives.
type Noop struct {
	logger *zap.Logger
}

// NewNoop creates a new logging-only audit store.
func NewNoop(logger *zap.Logger) *Noop {
	return &Noop{logger: logger}
}

func (n *Noop) SaveDenied(_ context.Context, event *audit.DeniedEvent) error {
	n.logger.Info("denied event received",
		zap.String("id", event.ID),
		zap.String("scope", event.Scope),
		zap.Int("limit", event.Limit),
		zap.String("path", event.Path),
		zap.String("clientIp", event.ClientIP),
		zap.Time("deniedAt", event.DeniedAt),
	)

	return nil
}

var _ audit.Store = (*Noop)(nil)
