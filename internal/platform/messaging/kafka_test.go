package messaging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"medvault/internal/shared/events"
)

func newTestBus(t *testing.T) *Kafka {
	t.Helper()
	bus, err := NewKafka([]string{"localhost:9092"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new kafka: %v", err)
	}
	return bus
}

func TestKafkaDeliversToTopicSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)
	if brokers := bus.Brokers(); len(brokers) != 1 || brokers[0] != "localhost:9092" {
		t.Fatalf("unexpected brokers: %v", brokers)
	}

	received := make(chan events.Envelope, 1)
	if err := bus.Subscribe(ctx, "consent.access_changed", "audit-projection", func(_ context.Context, event events.Envelope) error {
		received <- event
		return nil
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := bus.Publish(ctx, "consent.access_changed", events.Envelope{EventID: "evt-1", PartitionKey: "42"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case event := <-received:
		if event.EventID != "evt-1" || event.PartitionKey != "42" {
			t.Fatalf("unexpected event: %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("event was not delivered")
	}
}

func TestKafkaPublishWithoutSubscribersFails(t *testing.T) {
	bus := newTestBus(t)
	err := bus.Publish(context.Background(), "consent.access_changed", events.Envelope{EventID: "evt-1"})
	if !errors.Is(err, ErrNoSubscribers) {
		t.Fatalf("expected ErrNoSubscribers, got %v", err)
	}
	if err := bus.Subscribe(context.Background(), "", "group", nil); err == nil {
		t.Fatalf("expected empty topic to be rejected")
	}
}

func TestKafkaConsumerGroupsSplitByPartitionKey(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := newTestBus(t)

	var mu sync.Mutex
	var wg sync.WaitGroup
	byMember := map[string][]string{}
	record := func(name string) Handler {
		return func(_ context.Context, event events.Envelope) error {
			mu.Lock()
			byMember[name] = append(byMember[name], event.PartitionKey+"/"+event.EventID)
			mu.Unlock()
			wg.Done()
			return nil
		}
	}
	for _, name := range []string{"projection-a", "projection-b"} {
		if err := bus.Subscribe(ctx, "consent.access_changed", "projection", record(name)); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}
	if err := bus.Subscribe(ctx, "consent.access_changed", "notifier", record("notifier")); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	keys := []string{"41", "42", "43", "41", "42", "43"}
	wg.Add(2 * len(keys))
	for i, key := range keys {
		if err := bus.Publish(ctx, "consent.access_changed", events.Envelope{EventID: string(rune('a' + i)), PartitionKey: key}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	waitGroup(t, &wg)

	mu.Lock()
	defer mu.Unlock()
	if got := len(byMember["notifier"]); got != len(keys) {
		t.Fatalf("every group must see every event, notifier got %d", got)
	}
	if got := len(byMember["projection-a"]) + len(byMember["projection-b"]); got != len(keys) {
		t.Fatalf("a group must see each event once, projection got %d", got)
	}
	owner := map[string]string{}
	for _, name := range []string{"projection-a", "projection-b"} {
		for _, item := range byMember[name] {
			key := item[:2]
			if prev, ok := owner[key]; ok && prev != name {
				t.Fatalf("key %s delivered to both %s and %s", key, prev, name)
			}
			owner[key] = name
		}
	}
}

func TestKafkaMemberLeavesOnCancel(t *testing.T) {
	bus := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	if err := bus.Subscribe(ctx, "consent.access_changed", "projection", func(context.Context, events.Envelope) error { return nil }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for {
		err := bus.Publish(context.Background(), "consent.access_changed", events.Envelope{EventID: "evt-1"})
		if errors.Is(err, ErrNoSubscribers) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("member did not leave after cancel, last publish err=%v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestKafkaPublishHonoursContextWhenInboxIsFull(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := newTestBus(t)

	release := make(chan struct{})
	if err := bus.Subscribe(ctx, "consent.access_changed", "slow", func(context.Context, events.Envelope) error {
		<-release
		return nil
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer close(release)

	// One event is held by the handler and memberBuffer more fill the inbox.
	for i := 0; i <= memberBuffer; i++ {
		if err := bus.Publish(ctx, "consent.access_changed", events.Envelope{EventID: "fill"}); err != nil {
			t.Fatalf("fill %d: %v", i, err)
		}
	}

	publishCtx, publishCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer publishCancel()
	err := bus.Publish(publishCtx, "consent.access_changed", events.Envelope{EventID: "blocked"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected a full inbox to block until the deadline, got %v", err)
	}
}

func waitGroup(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("events were not delivered")
	}
}
