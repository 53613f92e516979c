package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/dukex/jobflow/pkg/events"
)

// ErrAlreadySubscribed is returned when a second handler subscribes to the bus.
var ErrAlreadySubscribed = errors.New("event bus already has a subscriber")

type WatermillEventBus struct {
	logger     *slog.Logger
	publisher  message.Publisher
	subscriber message.Subscriber

	mu         sync.Mutex
	subscribed bool
	consumed   chan struct{}
}

func NewWatermillEventBus(logger *slog.Logger, pub message.Publisher, sub message.Subscriber) *WatermillEventBus {
	return &WatermillEventBus{
		logger:     logger.With("module", "eventbus"),
		publisher:  pub,
		subscriber: sub,
		consumed:   make(chan struct{}),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	err = eb.publisher.Publish(events.Topic, msg)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.GetType(), err)
	}

	return nil
}

// Subscribe starts the single consumer of the lifecycle topic. Every message is acknowledged,
// including those the handler fails on, so one bad event never blocks the stream.
func (eb *WatermillEventBus) Subscribe(ctx context.Context, handler EventHandler) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.subscribed {
		return ErrAlreadySubscribed
	}

	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", events.Topic, err)
	}

	eb.subscribed = true

	go func() {
		defer close(eb.consumed)

		for msg := range messages {
			eb.consume(ctx, msg, handler)
		}
	}()

	return nil
}

func (eb *WatermillEventBus) consume(ctx context.Context, msg *message.Message, handler EventHandler) {
	defer msg.Ack()

	var event events.JobEvent

	err := json.Unmarshal(msg.Payload, &event)
	if err != nil {
		eb.logger.ErrorContext(ctx, "Dropping undecodable event",
			"message_id", msg.UUID,
			"event_type", msg.Metadata.Get(events.EventTypeMetadataKey),
			"error", err)

		return
	}

	err = handler(ctx, event)
	if err != nil {
		eb.logger.ErrorContext(ctx, "Event handler failed",
			"event_id", event.ID,
			"event_type", event.Type,
			"job_id", event.JobID,
			"error", err)
	}
}

// Close closes the publisher and subscriber and waits for the consumer to finish.
func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return fmt.Errorf("failed to close publisher: %w", err)
	}

	err = eb.subscriber.Close()
	if err != nil {
		return fmt.Errorf("failed to close subscriber: %w", err)
	}

	eb.mu.Lock()
	subscribed := eb.subscribed
	eb.mu.Unlock()

	if subscribed {
		<-eb.consumed
	}

	return nil
}
