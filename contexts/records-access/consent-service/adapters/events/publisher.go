package events

import (
	"context"
	"log/slog"

	"medvault/contexts/records-access/consent-service/ports"
)

// Publisher logs access-changed events. It is wired when no event bus is configured.
type Publisher struct {
	logger *slog.Logger
}

func NewPublisher(logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{logger: logger}
}

func (p Publisher) PublishAccessChanged(_ context.Context, event ports.AccessChangedEvent) error {
	p.logger.Info("access changed event published",
		"event", "consent_access_changed_published",
		"module", "records-access/consent-service",
		"layer", "adapter",
		"event_id", event.EventID,
		"event_type", event.EventType,
		"partition_key", event.PartitionKey,
	)
	return nil
}

// BusPublisher forwards access-changed events to a topic on the event bus.
type BusPublisher struct {
	Bus   Bus
	Topic string
}

// Bus is the subset of the platform event bus the publisher needs.
type Bus interface {
	Publish(ctx context.Context, topic string, event ports.AccessChangedEvent) error
}

func (p BusPublisher) PublishAccessChanged(ctx context.Context, event ports.AccessChangedEvent) error {
	topic := p.Topic
	if topic == "" {
		topic = event.EventType
	}
	return p.Bus.Publish(ctx, topic, event)
}
