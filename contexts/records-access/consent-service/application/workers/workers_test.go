package workers_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"medvault/contexts/records-access/consent-service/adapters/memory"
	"medvault/contexts/records-access/consent-service/application/commands"
	"medvault/contexts/records-access/consent-service/application/workers"
	"medvault/contexts/records-access/consent-service/domain/entities"
	"medvault/contexts/records-access/consent-service/ports"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.now
}

type recordingPublisher struct {
	events []ports.AccessChangedEvent
	failOn int
}

func (p *recordingPublisher) PublishAccessChanged(_ context.Context, event ports.AccessChangedEvent) error {
	if p.failOn > 0 && len(p.events)+1 == p.failOn {
		return errors.New("broker unavailable")
	}
	p.events = append(p.events, event)
	return nil
}

type fixture struct {
	clock    *fixedClock
	store    *memory.Store
	auditLog *memory.AuditLog
	request  commands.RequestAccessUseCase
	grant    commands.GrantAccessUseCase
}

func newFixture() fixture {
	clock := &fixedClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	auditLog := memory.NewAuditLog()
	store := memory.NewStore(auditLog)
	documents := memory.NewDocumentRegistry()
	documents.Register("42", "pt-7")
	documents.Register("43", "pt-7")
	return fixture{
		clock:    clock,
		store:    store,
		auditLog: auditLog,
		request:  commands.RequestAccessUseCase{Repository: store, Documents: documents, Clock: clock, IDGenerator: store},
		grant:    commands.GrantAccessUseCase{Repository: store, Clock: clock, IDGenerator: store},
	}
}

func (f fixture) grantFor(t *testing.T, documentID string, expiresInDays *int) string {
	t.Helper()
	requested, err := f.request.Execute(context.Background(), commands.RequestAccessCommand{
		DocumentID:  documentID,
		RequesterID: "dr-1",
		Reason:      "follow-up",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := f.grant.Execute(context.Background(), commands.GrantAccessCommand{
		PermissionID:  requested.Permission.PermissionID,
		OwnerID:       "pt-7",
		ExpiresInDays: expiresInDays,
	}); err != nil {
		t.Fatalf("grant: %v", err)
	}
	return requested.Permission.PermissionID
}

func TestOutboxRelayPublishesInOrderAndStopsOnFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.grantFor(t, "42", nil)

	publisher := &recordingPublisher{failOn: 2}
	relay := workers.OutboxRelay{Outbox: f.store, Publisher: publisher, Clock: f.clock}
	if err := relay.RunOnce(ctx); err == nil {
		t.Fatalf("expected publish failure")
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected one published event before the failure, got %d", len(publisher.events))
	}
	pending, _ := f.store.ListPendingOutbox(ctx, 10)
	if len(pending) != 1 {
		t.Fatalf("expected the failed row to stay pending, got %d rows", len(pending))
	}

	publisher.failOn = 0
	if err := relay.RunOnce(ctx); err != nil {
		t.Fatalf("relay: %v", err)
	}
	if len(publisher.events) != 2 {
		t.Fatalf("expected two published events, got %d", len(publisher.events))
	}
	if publisher.events[0].EventType != "consent.access_changed" || publisher.events[1].PartitionKey != "42" {
		t.Fatalf("unexpected events: %+v", publisher.events)
	}
	pending, _ = f.store.ListPendingOutbox(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("expected empty outbox, got %d rows", len(pending))
	}
}

func TestExpirySweeperExpiresElapsedGrants(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	oneDay := 1
	elapsedID := f.grantFor(t, "42", &oneDay)
	openID := f.grantFor(t, "43", nil)

	sweeper := workers.ExpirySweeper{Permissions: f.store, IDGenerator: f.store, Clock: f.clock}
	expired, err := sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if expired != 0 {
		t.Fatalf("nothing has elapsed yet, expired %d", expired)
	}

	f.clock.now = f.clock.now.Add(25 * time.Hour)
	expired, err = sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected one expired grant, got %d", expired)
	}

	swept, _ := f.store.GetPermission(ctx, elapsedID)
	if swept.Status != entities.PermissionStatusExpired {
		t.Fatalf("expected expired, got %s", swept.Status)
	}
	open, _ := f.store.GetPermission(ctx, openID)
	if open.Status != entities.PermissionStatusActive {
		t.Fatalf("open-ended grant must stay active, got %s", open.Status)
	}

	entries, _ := f.auditLog.Query(ctx, ports.AuditFilter{Action: entities.AuditActionExpireAccess})
	if len(entries) != 1 || entries[0].PermissionID != elapsedID || entries[0].ActorID != workers.SweeperActorID || entries[0].ActorRole != entities.ActorRoleSystem {
		t.Fatalf("unexpected expiry audit: %+v", entries)
	}

	expired, err = sweeper.RunOnce(ctx)
	if err != nil || expired != 0 {
		t.Fatalf("second sweep must be a no-op, got %d, %v", expired, err)
	}
}
