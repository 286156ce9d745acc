package audit

import (
	"context"
	"fmt"
)

// NewDeniedHandler returns a consumer handler that validates denied events
// and saves them to store.
func NewDeniedHandler(store Store) func(ctx context.Context, event *DeniedEvent) error {
	return func(ctx context.Context, event *DeniedEvent) error {
		if event.ID == "" || event.DeniedAt.IsZero() {
			return fmt.Errorf("%w: id and deniedAt are required", ErrInvalidEvent)
		}

		if err := store.SaveDenied(ctx, event); err != nil {
			return fmt.Errorf("save denied event %s: %w", event.ID, err)
		}

		return nil
	}
}
