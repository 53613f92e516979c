// Package eventbus carries job lifecycle events from the trigger engine to their consumer.
package eventbus

import (
	"context"

	"github.com/dukex/jobflow/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventHandler consumes one lifecycle event. Events arrive one at a time, in publish order.
type EventHandler func(ctx context.Context, event events.JobEvent) error

type EventSubscriber interface {
	Subscribe(ctx context.Context, handler EventHandler) error
}

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
