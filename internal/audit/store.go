package audit

import (
	"context"
	"fmt"

	"github.com/serroba/keythrottle/internal/messaging"
)

// ErrInvalidEvent is returned for events missing the fields needed to store
// them. It is permanent, so consumers drop such events instead of retrying.
var ErrInvalidEvent = fmt.Errorf("invalid denied event: %w", messaging.ErrPermanent)

// Store persists deny decisions.
type Store interface {
	SaveDenied(ctx context.Context, event *DeniedEvent) error
}
