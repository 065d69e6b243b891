package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"medvault/contexts/records-access/consent-service/application"
	"medvault/contexts/records-access/consent-service/domain/entities"
	"medvault/contexts/records-access/consent-service/ports"
)

func accessChangedEvent(t *testing.T, eventID string, status entities.PermissionStatus, action entities.AuditAction, at time.Time) ports.AccessChangedEvent {
	t.Helper()
	message, err := application.BuildAccessChangedOutbox(eventID, entities.AccessPermission{
		PermissionID: "p1",
		DocumentID:   "42",
		RequesterID:  "dr-1",
		OwnerID:      "pt-7",
		Status:       status,
	}, action, at)
	if err != nil {
		t.Fatalf("build outbox: %v", err)
	}
	var event ports.AccessChangedEvent
	if err := json.Unmarshal(message.Payload, &event); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return event
}

func TestAccessProjectionTracksLatestStatus(t *testing.T) {
	ctx := context.Background()
	projection := NewAccessProjection(slog.New(slog.NewTextHandler(io.Discard, nil)))
	t0 := time.Date(2025, 5, 20, 14, 30, 0, 0, time.UTC)

	requested := accessChangedEvent(t, "evt-1", entities.PermissionStatusPending, entities.AuditActionRequestAccess, t0)
	granted := accessChangedEvent(t, "evt-2", entities.PermissionStatusActive, entities.AuditActionGrantAccess, t0.Add(time.Hour))

	for _, event := range []ports.AccessChangedEvent{requested, granted, granted} {
		if err := projection.Handle(ctx, event); err != nil {
			t.Fatalf("handle %s: %v", event.EventID, err)
		}
	}
	if status, ok := projection.Status("p1"); !ok || status != entities.PermissionStatusActive {
		t.Fatalf("expected active, got %q ok=%v", status, ok)
	}
	if projection.Applied() != 2 {
		t.Fatalf("redelivery must not be applied twice, applied=%d", projection.Applied())
	}

	// A late copy of an older transition must not roll the permission back.
	late := accessChangedEvent(t, "evt-0", entities.PermissionStatusPending, entities.AuditActionRequestAccess, t0.Add(-time.Minute))
	if err := projection.Handle(ctx, late); err != nil {
		t.Fatalf("handle late: %v", err)
	}
	if status, _ := projection.Status("p1"); status != entities.PermissionStatusActive {
		t.Fatalf("stale event rolled status back to %q", status)
	}
	if _, ok := projection.Status("unknown"); ok {
		t.Fatalf("unknown permission must not be projected")
	}
}

func TestAccessProjectionRejectsMalformedEvents(t *testing.T) {
	projection := NewAccessProjection(slog.New(slog.NewTextHandler(io.Discard, nil)))
	cases := []ports.AccessChangedEvent{
		{EventID: "evt-1", EventType: "billing.invoice_paid", Data: json.RawMessage(`{"permission_id":"p1"}`)},
		{EventID: "evt-2", EventType: application.EventTypeAccessChanged, Data: json.RawMessage(`{"permission_id":`)},
		{EventID: "evt-3", EventType: application.EventTypeAccessChanged, Data: json.RawMessage(`{"status":"active"}`)},
	}
	for _, event := range cases {
		if err := projection.Handle(context.Background(), event); err == nil {
			t.Fatalf("expected %s to be rejected", event.EventID)
		}
	}
	if projection.Applied() != 0 {
		t.Fatalf("rejected events must not be applied")
	}
}
