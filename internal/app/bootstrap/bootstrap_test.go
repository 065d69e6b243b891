package bootstrap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	consent "medvault/contexts/records-access/consent-service"
	eventsadapter "medvault/contexts/records-access/consent-service/adapters/events"
	"medvault/contexts/records-access/consent-service/adapters/memory"
	"medvault/contexts/records-access/consent-service/domain/entities"
	consenthttp "medvault/contexts/records-access/consent-service/transport/http"
	"medvault/internal/platform/config"
	"medvault/internal/platform/messaging"
)

type countingRelay struct {
	calls int
	err   error
}

func (r *countingRelay) RunOnce(context.Context) error {
	r.calls++
	return r.err
}

type countingSweeper struct {
	calls int
}

func (s *countingSweeper) RunOnce(context.Context) (int, error) {
	s.calls++
	return 0, nil
}

func TestWorkerTickHonoursSweepFlag(t *testing.T) {
	relay := &countingRelay{}
	sweeper := &countingSweeper{}
	worker := &WorkerApp{outboxRelay: relay, sweeper: sweeper}

	if err := worker.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if relay.calls != 1 || sweeper.calls != 0 {
		t.Fatalf("sweep must be opt-in, relay=%d sweep=%d", relay.calls, sweeper.calls)
	}

	worker.sweepEnabled = true
	relay.err = errors.New("bus down")
	if err := worker.tick(context.Background()); !errors.Is(err, relay.err) {
		t.Fatalf("expected relay error, got %v", err)
	}
	if relay.calls != 2 || sweeper.calls != 1 {
		t.Fatalf("unexpected calls relay=%d sweep=%d", relay.calls, sweeper.calls)
	}
}

func TestBuildStorageSelectsBackend(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if _, _, err := buildStorage(context.Background(), config.Config{}, logger); !errors.Is(err, config.ErrNoStorage) {
		t.Fatalf("expected ErrNoStorage, got %v", err)
	}

	cfg := config.Config{SQLitePath: filepath.Join(t.TempDir(), "consent.db"), OutboxBatchSize: 10}
	deps, closer, err := buildStorage(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("build sqlite storage: %v", err)
	}
	defer closer.Close()
	if deps.Permissions == nil || deps.AuditLog == nil || deps.Outbox == nil || deps.Documents == nil {
		t.Fatalf("sqlite storage must provide every port: %+v", deps)
	}
	if deps.BatchSize != 10 {
		t.Fatalf("expected batch size 10, got %d", deps.BatchSize)
	}
}

func TestNormalizeAddr(t *testing.T) {
	cases := map[string]string{"": ":8080", "9090": ":9090", ":7070": ":7070", " 8081 ": ":8081"}
	for in, want := range cases {
		if got := normalizeAddr(in); got != want {
			t.Fatalf("normalizeAddr(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWorkerRelaysAccessChangesIntoProjection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	bus, err := messaging.NewKafka(nil, logger)
	if err != nil {
		t.Fatalf("new kafka: %v", err)
	}
	auditLog := memory.NewAuditLog()
	store := memory.NewStore(auditLog)
	documents := memory.NewDocumentRegistry()
	documents.Register("42", "pt-7")
	module := consent.NewModule(consent.Dependencies{
		Permissions: store,
		AuditLog:    auditLog,
		Outbox:      store,
		Documents:   documents,
		Publisher:   eventsadapter.BusPublisher{Bus: bus},
		Clock:       store,
		IDGenerator: store,
		Logger:      logger,
	})
	worker := &WorkerApp{
		outboxRelay: module.Relay,
		sweeper:     module.Sweeper,
		bus:         bus,
		projection:  eventsadapter.NewAccessProjection(logger),
		logger:      logger,
	}

	resp, err := module.Handler.RequestAccessHandler(ctx, "dr-1", consenthttp.RequestAccessRequest{DocumentID: "42", Reason: "follow-up"})
	if err != nil {
		t.Fatalf("request access: %v", err)
	}

	// Without a consumer group the relay must fail and keep the row pending.
	if err := worker.tick(ctx); !errors.Is(err, messaging.ErrNoSubscribers) {
		t.Fatalf("expected ErrNoSubscribers, got %v", err)
	}
	if pending, _ := store.ListPendingOutbox(ctx, 10); len(pending) != 1 {
		t.Fatalf("undelivered event must stay pending, got %d rows", len(pending))
	}

	if err := worker.subscribe(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := worker.tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if pending, _ := store.ListPendingOutbox(ctx, 10); len(pending) != 0 {
		t.Fatalf("delivered event must be marked published, %d rows pending", len(pending))
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if status, ok := worker.projection.Status(resp.Permission.PermissionID); ok {
			if status != entities.PermissionStatusPending {
				t.Fatalf("expected pending in projection, got %s", status)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("projection never saw the access change")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
