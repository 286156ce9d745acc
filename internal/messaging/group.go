package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// Worker is a background component with a start and stop lifecycle.
type Worker interface {
	Start(ctx context.Context) error
	Shutdown() error
}

// ConsumerGroup runs the workers sharing one subscriber and closes the
// subscriber after they stop.
type ConsumerGroup struct {
	subscriber message.Subscriber
	logger     *zap.Logger
	workers    []Worker
	running    []Worker
}

// NewConsumerGroup returns an empty group owning subscriber.
func NewConsumerGroup(subscriber message.Subscriber, logger *zap.Logger) *ConsumerGroup {
	return &ConsumerGroup{
		subscriber: subscriber,
		logger:     logger,
	}
}

// Add registers w. Workers added after Start are not started.
func (g *ConsumerGroup) Add(w Worker) {
	g.workers = append(g.workers, w)
}

// Start starts the workers in the order they were added. If one fails, the
// ones already running are stopped again.
func (g *ConsumerGroup) Start(ctx context.Context) error {
	for i, w := range g.workers {
		if err := w.Start(ctx); err != nil {
			return errors.Join(fmt.Errorf("start worker %d: %w", i, err), g.stopRunning())
		}

		g.running = append(g.running, w)
	}

	g.logger.Info("consumer group started", zap.Int("workers", len(g.running)))

	return nil
}

// Shutdown stops running workers newest first, then closes the subscriber.
func (g *ConsumerGroup) Shutdown() error {
	g.logger.Info("stopping consumer group", zap.Int("workers", len(g.running)))

	err := g.stopRunning()

	if closeErr := g.subscriber.Close(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("close subscriber: %w", closeErr))
	}

	return err
}

func (g *ConsumerGroup) stopRunning() error {
	var errs []error

	for i := len(g.running) - 1; i >= 0; i-- {
		errs = append(errs, g.running[i].Shutdown())
	}

	g.running = nil

	return errors.Join(errs...)
}

// PublisherGroup owns the publisher shared by every Publish function.
type PublisherGroup struct {
	publisher message.Publisher
}

func NewPublisherGroup(publisher message.Publisher) *PublisherGroup {
	return &PublisherGroup{publisher: publisher}
}

func (g *PublisherGroup) Publisher() message.Publisher {
	return g.publisher
}

// Shutdown closes the publisher, flushing anything it buffers.
func (g *PublisherGroup) Shutdown() error {
	if err := g.publisher.Close(); err != nil {
		return fmt.Errorf("close publisher: %w", err)
	}

	return nil
}
