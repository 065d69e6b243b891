package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"medvault/contexts/records-access/consent-service/domain/entities"
	domainerrors "medvault/contexts/records-access/consent-service/domain/errors"
	"medvault/contexts/records-access/consent-service/ports"
)

var base = time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)

type failingAudit struct {
	err error
}

func (f failingAudit) Append(context.Context, entities.AuditEntry) error {
	return f.err
}

func (f failingAudit) Query(context.Context, ports.AuditFilter) ([]entities.AuditEntry, error) {
	return nil, f.err
}

func createInput(id string, documentID string, requesterID string, at time.Time) ports.CreatePermissionInput {
	return ports.CreatePermissionInput{
		Permission: entities.AccessPermission{
			PermissionID: id,
			DocumentID:   documentID,
			RequesterID:  requesterID,
			OwnerID:      "pt-7",
			Status:       entities.PermissionStatusPending,
			Reason:       "consult",
			CreatedAt:    at,
			UpdatedAt:    at,
		},
		Audit: entities.AuditEntry{
			EntryID:      "audit-" + id,
			ActorID:      requesterID,
			ActorRole:    entities.ActorRoleRequester,
			DocumentID:   documentID,
			PermissionID: id,
			Action:       entities.AuditActionRequestAccess,
			Timestamp:    at,
		},
		Outbox: ports.OutboxMessage{
			OutboxID:  "outbox-" + id,
			EventType: "consent.access_changed",
			Payload:   []byte(`{}`),
			CreatedAt: at,
		},
	}
}

func transitionInput(current entities.AccessPermission, status entities.PermissionStatus, suffix string) ports.TransitionInput {
	next := current
	next.Status = status
	return ports.TransitionInput{
		Permission: next,
		FromStatus: current.Status,
		Audit: entities.AuditEntry{
			EntryID:      "audit-" + current.PermissionID + "-" + suffix,
			ActorID:      current.OwnerID,
			ActorRole:    entities.ActorRoleOwner,
			DocumentID:   current.DocumentID,
			PermissionID: current.PermissionID,
			Action:       entities.AuditActionGrantAccess,
			Timestamp:    base,
		},
		Outbox: ports.OutboxMessage{
			OutboxID:  "outbox-" + current.PermissionID + "-" + suffix,
			EventType: "consent.access_changed",
			Payload:   []byte(`{}`),
			CreatedAt: base,
		},
	}
}

func TestStoreRejectsSecondLivePermissionForPair(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)

	if err := store.CreatePermission(ctx, createInput("p1", "42", "dr-1", base)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.CreatePermission(ctx, createInput("p2", "42", "dr-1", base)); !errors.Is(err, domainerrors.ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}
	if err := store.CreatePermission(ctx, createInput("p3", "43", "dr-1", base)); err != nil {
		t.Fatalf("other document must be allowed: %v", err)
	}

	current, _ := store.GetPermission(ctx, "p1")
	if err := store.TransitionPermission(ctx, transitionInput(current, entities.PermissionStatusRevoked, "revoke")); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := store.CreatePermission(ctx, createInput("p4", "42", "dr-1", base)); err != nil {
		t.Fatalf("re-request after revoke must be allowed: %v", err)
	}
}

func TestStoreConcurrentRequestsForSamePair(t *testing.T) {
	ctx := context.Background()
	auditLog := NewAuditLog()
	store := NewStore(auditLog)

	const attempts = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.CreatePermission(ctx, createInput(fmt.Sprintf("p%d", i), "42", "dr-1", base))
			if err != nil && !errors.Is(err, domainerrors.ErrDuplicateRequest) {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if succeeded != 1 {
		t.Fatalf("expected exactly one live permission, got %d", succeeded)
	}
	if auditLog.Len() != 1 {
		t.Fatalf("expected one audit entry, got %d", auditLog.Len())
	}
}

func TestStoreTransitionCompareAndSet(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)
	if err := store.CreatePermission(ctx, createInput("p1", "42", "dr-1", base)); err != nil {
		t.Fatalf("create: %v", err)
	}
	current, _ := store.GetPermission(ctx, "p1")

	if err := store.TransitionPermission(ctx, transitionInput(current, entities.PermissionStatusActive, "grant")); err != nil {
		t.Fatalf("grant: %v", err)
	}
	// A second writer still holding the pending snapshot loses.
	if err := store.TransitionPermission(ctx, transitionInput(current, entities.PermissionStatusRevoked, "stale")); !errors.Is(err, domainerrors.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	missing := current
	missing.PermissionID = "nope"
	if err := store.TransitionPermission(ctx, transitionInput(missing, entities.PermissionStatusActive, "x")); !errors.Is(err, domainerrors.ErrPermissionNotFound) {
		t.Fatalf("expected ErrPermissionNotFound, got %v", err)
	}

	stored, _ := store.GetPermission(ctx, "p1")
	if stored.Status != entities.PermissionStatusActive {
		t.Fatalf("expected active, got %s", stored.Status)
	}
}

func TestStoreAuditFailureLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	store := NewStore(failingAudit{err: domainerrors.ErrStorageUnavailable})

	err := store.CreatePermission(ctx, createInput("p1", "42", "dr-1", base))
	if !errors.Is(err, domainerrors.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if _, err := store.GetPermission(ctx, "p1"); !errors.Is(err, domainerrors.ErrPermissionNotFound) {
		t.Fatalf("permission must not exist, got %v", err)
	}
	pending, _ := store.ListPendingOutbox(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("outbox must stay empty, got %d", len(pending))
	}
}

func TestStoreAuditFailureKeepsPriorStatus(t *testing.T) {
	ctx := context.Background()
	working := NewStore(nil)
	if err := working.CreatePermission(ctx, createInput("p1", "42", "dr-1", base)); err != nil {
		t.Fatalf("create: %v", err)
	}
	current, _ := working.GetPermission(ctx, "p1")

	working.audit = failingAudit{err: domainerrors.ErrStorageUnavailable}
	err := working.TransitionPermission(ctx, transitionInput(current, entities.PermissionStatusActive, "grant"))
	if !errors.Is(err, domainerrors.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	stored, _ := working.GetPermission(ctx, "p1")
	if stored.Status != entities.PermissionStatusPending {
		t.Fatalf("expected pending after failed audit, got %s", stored.Status)
	}
}

func TestStoreListsNewestFirstAndCounts(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)
	for i, doc := range []string{"40", "41", "42"} {
		if err := store.CreatePermission(ctx, createInput("p"+doc, doc, "dr-1", base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	items, err := store.ListByRequester(ctx, "dr-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 3 || items[0].PermissionID != "p42" || items[2].PermissionID != "p40" {
		t.Fatalf("expected newest first, got %+v", items)
	}
	owned, _ := store.ListByOwner(ctx, "pt-7")
	if len(owned) != 3 {
		t.Fatalf("expected 3 owned, got %d", len(owned))
	}

	current, _ := store.GetPermission(ctx, "p41")
	_ = store.TransitionPermission(ctx, transitionInput(current, entities.PermissionStatusRevoked, "revoke"))
	stats, _ := store.CountByStatus(ctx)
	if stats.Total != 3 || stats.Pending != 2 || stats.Revoked != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestStoreLatestPermissionAndElapsedGrants(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)
	if err := store.CreatePermission(ctx, createInput("p1", "42", "dr-1", base)); err != nil {
		t.Fatalf("create: %v", err)
	}
	first, _ := store.GetPermission(ctx, "p1")
	_ = store.TransitionPermission(ctx, transitionInput(first, entities.PermissionStatusRevoked, "revoke"))
	// Same timestamp: insertion order breaks the tie.
	if err := store.CreatePermission(ctx, createInput("p2", "42", "dr-1", base)); err != nil {
		t.Fatalf("create: %v", err)
	}
	latest, found, err := store.LatestPermission(ctx, "42", "dr-1")
	if err != nil || !found || latest.PermissionID != "p2" {
		t.Fatalf("expected p2 latest, got %+v found=%v err=%v", latest, found, err)
	}
	if _, found, _ := store.LatestPermission(ctx, "42", "dr-9"); found {
		t.Fatalf("expected no permission for unknown requester")
	}

	second, _ := store.GetPermission(ctx, "p2")
	grant := transitionInput(second, entities.PermissionStatusActive, "grant")
	expiresAt := base.Add(24 * time.Hour)
	grant.Permission.ExpiresAt = &expiresAt
	if err := store.TransitionPermission(ctx, grant); err != nil {
		t.Fatalf("grant: %v", err)
	}

	elapsed, _ := store.ListElapsedGrants(ctx, base.Add(23*time.Hour), 10)
	if len(elapsed) != 0 {
		t.Fatalf("expected nothing elapsed yet, got %d", len(elapsed))
	}
	elapsed, _ = store.ListElapsedGrants(ctx, base.Add(25*time.Hour), 10)
	if len(elapsed) != 1 || elapsed[0].PermissionID != "p2" {
		t.Fatalf("expected p2 elapsed, got %+v", elapsed)
	}
}

func TestStoreOutboxRelayOrder(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)
	for _, id := range []string{"a", "b", "c"} {
		if err := store.CreatePermission(ctx, createInput(id, "doc-"+id, "dr-1", base)); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	pending, _ := store.ListPendingOutbox(ctx, 2)
	if len(pending) != 2 || pending[0].OutboxID != "outbox-a" || pending[1].OutboxID != "outbox-b" {
		t.Fatalf("expected insertion order, got %+v", pending)
	}
	if err := store.MarkOutboxPublished(ctx, "outbox-a", base); err != nil {
		t.Fatalf("mark: %v", err)
	}
	pending, _ = store.ListPendingOutbox(ctx, 10)
	if len(pending) != 2 || pending[0].OutboxID != "outbox-b" {
		t.Fatalf("unexpected pending after publish: %+v", pending)
	}
	if err := store.MarkOutboxPublished(ctx, "missing", base); err == nil {
		t.Fatalf("expected error for unknown outbox id")
	}
}
