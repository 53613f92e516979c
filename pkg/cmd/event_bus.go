package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/dukex/jobflow/pkg/channels/gochannel"
	"github.com/dukex/jobflow/pkg/channels/kafka"
	"github.com/dukex/jobflow/pkg/eventbus"
)

const consumerGroup = "cg-jobflow"

// NewEventBus builds the lifecycle event bus for provider: "gochannel" (default) or "kafka".
func NewEventBus(provider string, logger *slog.Logger, kafkaBrokers []string) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "", "gochannel":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-process pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(logger, pub, sub), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, kafkaBrokers, consumerGroup)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(logger, pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
