package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// ErrPermanent marks failures that redelivery cannot fix. A message whose
// handling fails with an error wrapping it is acknowledged and dropped.
var ErrPermanent = errors.New("permanent failure")

// Handler processes one decoded event.
type Handler[T any] func(ctx context.Context, event *T) error

// Consumer decodes messages from one topic into T and hands them to a handler.
// Successful and permanently failed messages are acked, others nacked for
// redelivery.
type Consumer[T any] struct {
	subscriber message.Subscriber
	topic      string
	handler    Handler[T]
	logger     *zap.Logger

	stop context.CancelFunc
	done chan struct{}
}

// NewConsumer returns a consumer for topic. It does nothing until Start.
func NewConsumer[T any](
	subscriber message.Subscriber,
	topic string,
	handler Handler[T],
	logger *zap.Logger,
) *Consumer[T] {
	return &Consumer[T]{
		subscriber: subscriber,
		topic:      topic,
		handler:    handler,
		logger:     logger.With(zap.String("topic", topic)),
	}
}

// Topic returns the topic the consumer subscribes to.
func (c *Consumer[T]) Topic() string {
	return c.topic
}

// Start subscribes and processes messages in the background until ctx is
// done or Shutdown is called.
func (c *Consumer[T]) Start(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)

	msgs, err := c.subscriber.Subscribe(ctx, c.topic)
	if err != nil {
		stop()

		return fmt.Errorf("subscribe to %s: %w", c.topic, err)
	}

	c.stop = stop
	c.done = make(chan struct{})

	go c.run(ctx, msgs)

	return nil
}

func (c *Consumer[T]) run(ctx context.Context, msgs <-chan *message.Message) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}

			c.settle(msg, c.process(ctx, msg))
		}
	}
}

func (c *Consumer[T]) process(ctx context.Context, msg *message.Message) error {
	var event T
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return fmt.Errorf("%w: decode payload: %w", ErrPermanent, err)
	}

	return c.handler(ctx, &event)
}

func (c *Consumer[T]) settle(msg *message.Message, err error) {
	id := zap.String("message_id", msg.UUID)

	switch {
	case err == nil:
		c.logger.Debug("processed event", id)
		msg.Ack()
	case errors.Is(err, ErrPermanent):
		c.logger.Error("dropping event", id, zap.Error(err))
		msg.Ack()
	default:
		c.logger.Warn("event handling failed, requesting redelivery", id, zap.Error(err))
		msg.Nack()
	}
}

// Shutdown stops consuming and waits for the in-flight message. It is a
// no-op when the consumer never started.
func (c *Consumer[T]) Shutdown() error {
	if c.stop == nil {
		return nil
	}

	c.stop()
	<-c.done

	return nil
}
