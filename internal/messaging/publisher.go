package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Metadata keys set on every published message.
const (
	MetadataTopic     = "topic"
	MetadataEventType = "event_type"
)

// ErrNilEvent is returned when asked to publish a nil event.
var ErrNilEvent = errors.New("nil event")

// Publish sends one typed event. The context travels with the message.
type Publish[T any] func(ctx context.Context, event *T) error

// Identity returns the stable ID of an event. It becomes the message UUID so
// consumers see the same ID on redelivery.
type Identity[T any] func(event *T) string

// PublishOption configures NewPublishFunc.
type PublishOption[T any] func(*publishConfig[T])

type publishConfig[T any] struct {
	identity Identity[T]
}

// WithIdentity uses fn to derive message UUIDs. An empty ID falls back to a
// generated one.
func WithIdentity[T any](fn Identity[T]) PublishOption[T] {
	return func(c *publishConfig[T]) {
		c.identity = fn
	}
}

// NewPublishFunc returns a Publish that JSON-encodes events onto topic.
func NewPublishFunc[T any](publisher message.Publisher, topic string, opts ...PublishOption[T]) Publish[T] {
	var cfg publishConfig[T]
	for _, opt := range opts {
		opt(&cfg)
	}

	eventType := fmt.Sprintf("%T", *new(T))

	return func(ctx context.Context, event *T) error {
		if event == nil {
			return fmt.Errorf("publish to %s: %w", topic, ErrNilEvent)
		}

		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("encode %s: %w", eventType, err)
		}

		msg := message.NewMessage(cfg.messageID(event), payload)
		msg.Metadata.Set(MetadataTopic, topic)
		msg.Metadata.Set(MetadataEventType, eventType)
		msg.SetContext(ctx)

		if err := publisher.Publish(topic, msg); err != nil {
			return fmt.Errorf("publish to %s: %w", topic, err)
		}

		return nil
	}
}

func (c publishConfig[T]) messageID(event *T) string {
	if c.identity != nil {
		if id := c.identity(event); id != "" {
			return id
		}
	}

	return watermill.NewUUID()
}
