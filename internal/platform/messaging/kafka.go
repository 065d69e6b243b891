package messaging

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"

	"medvault/internal/shared/events"
)

// ErrNoSubscribers is returned when a topic has no consumer group to deliver to.
// The relay leaves the outbox row pending instead of marking a lost event published.
var ErrNoSubscribers = errors.New("no consumer group subscribed to topic")

const memberBuffer = 128

// Handler consumes one envelope. A returned error is logged; the event is not redelivered.
type Handler func(context.Context, events.Envelope) error

// Kafka is the in-process event bus behind the outbox relay. It keeps Kafka's
// delivery shape: every consumer group receives each event once, and within a
// group the partition key picks the member, so one document's events stay in order.
// The configured brokers are recorded for diagnostics only.
type Kafka struct {
	mu      sync.RWMutex
	topics  map[string]map[string][]*member
	brokers []string
	logger  *slog.Logger
}

type member struct {
	inbox chan events.Envelope
}

func NewKafka(brokers []string, logger *slog.Logger) (*Kafka, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("event bus initialized",
		"event", "kafka_init",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"brokers", brokers,
	)
	return &Kafka{
		topics:  make(map[string]map[string][]*member),
		brokers: append([]string(nil), brokers...),
		logger:  logger,
	}, nil
}

// Brokers returns the configured broker addresses.
func (k *Kafka) Brokers() []string {
	return append([]string(nil), k.brokers...)
}

// Publish hands the event to one member of every group subscribed to topic. It
// blocks while a chosen member's inbox is full and gives up when ctx ends.
func (k *Kafka) Publish(ctx context.Context, topic string, event events.Envelope) error {
	targets := k.route(topic, event.PartitionKey)
	if len(targets) == 0 {
		return fmt.Errorf("publish %s to %s: %w", event.EventID, topic, ErrNoSubscribers)
	}
	for group, target := range targets {
		select {
		case target.inbox <- event:
		case <-ctx.Done():
			return fmt.Errorf("publish %s to %s for group %s: %w", event.EventID, topic, group, ctx.Err())
		}
	}

	k.logger.Debug("event published",
		"event", "kafka_publish",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"topic", topic,
		"event_id", event.EventID,
		"event_type", event.EventType,
		"groups", len(targets),
	)
	return nil
}

// route picks the member of each group that owns the partition key.
func (k *Kafka) route(topic string, partitionKey string) map[string]*member {
	k.mu.RLock()
	defer k.mu.RUnlock()

	groups := k.topics[topic]
	if len(groups) == 0 {
		return nil
	}
	hash := fnv.New32a()
	_, _ = hash.Write([]byte(partitionKey))
	slot := hash.Sum32()

	targets := make(map[string]*member, len(groups))
	for group, members := range groups {
		targets[group] = members[slot%uint32(len(members))]
	}
	return targets
}

// Subscribe joins consumerGroup on topic and runs handler for each delivered event
// until ctx ends, at which point the member leaves the group.
func (k *Kafka) Subscribe(ctx context.Context, topic string, consumerGroup string, handler Handler) error {
	if topic == "" || consumerGroup == "" {
		return errors.New("subscribe requires a topic and a consumer group")
	}
	m := &member{inbox: make(chan events.Envelope, memberBuffer)}

	k.mu.Lock()
	groups, ok := k.topics[topic]
	if !ok {
		groups = make(map[string][]*member)
		k.topics[topic] = groups
	}
	groups[consumerGroup] = append(groups[consumerGroup], m)
	k.mu.Unlock()

	k.logger.Info("consumer joined group",
		"event", "kafka_subscribe",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"topic", topic,
		"consumer_group", consumerGroup,
	)

	go func() {
		defer k.leave(topic, consumerGroup, m)
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-m.inbox:
				if err := handler(ctx, event); err != nil {
					k.logger.Error("consumer handler failed",
						"event", "kafka_consume_failed",
						"module", "internal/platform/messaging",
						"layer", "platform",
						"topic", topic,
						"consumer_group", consumerGroup,
						"event_id", event.EventID,
						"event_type", event.EventType,
						"error", err.Error(),
					)
				}
			}
		}
	}()
	return nil
}

func (k *Kafka) leave(topic string, consumerGroup string, target *member) {
	k.mu.Lock()
	defer k.mu.Unlock()

	groups := k.topics[topic]
	remaining := groups[consumerGroup][:0:0]
	for _, m := range groups[consumerGroup] {
		if m != target {
			remaining = append(remaining, m)
		}
	}
	if len(remaining) == 0 {
		delete(groups, consumerGroup)
	} else {
		groups[consumerGroup] = remaining
	}
	if len(groups) == 0 {
		delete(k.topics, topic)
	}
}
