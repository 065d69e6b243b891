package services

import (
	"errors"
	"math"
	"testing"
	"time"

	"medvault/contexts/records-access/consent-service/domain/entities"
	domainerrors "medvault/contexts/records-access/consent-service/domain/errors"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func days(n int) *int { return &n }

func pending(t *testing.T) entities.AccessPermission {
	t.Helper()
	p, err := NewPendingPermission("perm-1", "42", "dr-1", "pt-7", "follow-up consult", t0)
	if err != nil {
		t.Fatalf("new pending: %v", err)
	}
	return p
}

func TestNewPendingPermissionValidation(t *testing.T) {
	cases := []struct {
		name                   string
		doc, requester, reason string
		want                   error
	}{
		{"missing document", "", "dr-1", "r", domainerrors.ErrInvalidDocumentID},
		{"missing requester", "42", " ", "r", domainerrors.ErrInvalidRequesterID},
		{"missing reason", "42", "dr-1", "  ", domainerrors.ErrReasonRequired},
		{"owner asks self", "42", "pt-7", "r", domainerrors.ErrSelfRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewPendingPermission("perm-1", tc.doc, tc.requester, "pt-7", tc.reason, t0)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	p := pending(t)
	if p.Status != entities.PermissionStatusPending || p.GrantedAt != nil || p.ExpiresAt != nil {
		t.Fatalf("unexpected pending permission: %+v", p)
	}
}

func TestGrantSetsExpiryFromGrantTime(t *testing.T) {
	grantAt := t0.Add(time.Hour)
	next, err := Grant(pending(t), "pt-7", grantAt, days(30))
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if next.Status != entities.PermissionStatusActive {
		t.Fatalf("expected active, got %s", next.Status)
	}
	if next.GrantedAt == nil || !next.GrantedAt.Equal(grantAt) {
		t.Fatalf("unexpected granted_at: %v", next.GrantedAt)
	}
	if next.ExpiresAt == nil || !next.ExpiresAt.Equal(grantAt.Add(30*24*time.Hour)) {
		t.Fatalf("unexpected expires_at: %v", next.ExpiresAt)
	}
	if !next.ExpiresAt.After(*next.GrantedAt) {
		t.Fatalf("expiry must follow grant")
	}

	open, err := Grant(pending(t), "pt-7", grantAt, nil)
	if err != nil {
		t.Fatalf("grant without expiry: %v", err)
	}
	if open.ExpiresAt != nil {
		t.Fatalf("expected no expiry, got %v", open.ExpiresAt)
	}
}

func TestGrantExpiryBounds(t *testing.T) {
	cases := []struct {
		name string
		days int
		ok   bool
	}{
		{"zero", 0, false},
		{"negative", -5, false},
		{"one day", 1, true},
		{"upper bound", MaxExpiresInDays, true},
		{"just over upper bound", MaxExpiresInDays + 1, false},
		{"max int", math.MaxInt, false},
		{"min int", math.MinInt, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Grant(pending(t), "pt-7", t0, days(tc.days))
			if !tc.ok {
				if !errors.Is(err, domainerrors.ErrInvalidExpiry) {
					t.Fatalf("expected ErrInvalidExpiry, got %v (expires_at=%v)", err, next.ExpiresAt)
				}
				return
			}
			if err != nil {
				t.Fatalf("grant: %v", err)
			}
			if next.ExpiresAt == nil || !next.ExpiresAt.After(*next.GrantedAt) {
				t.Fatalf("expires_at %v must be after granted_at %v", next.ExpiresAt, next.GrantedAt)
			}
		})
	}
}

func TestGrantRejections(t *testing.T) {
	if _, err := Grant(pending(t), "pt-7", t0, days(0)); !errors.Is(err, domainerrors.ErrInvalidExpiry) {
		t.Fatalf("expected ErrInvalidExpiry, got %v", err)
	}
	if _, err := Grant(pending(t), "dr-9", t0, nil); !errors.Is(err, domainerrors.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	active, err := Grant(pending(t), "pt-7", t0, nil)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	// State is checked before ownership, so any caller sees ErrInvalidState.
	for _, caller := range []string{"pt-7", "dr-9"} {
		if _, err := Grant(active, caller, t0, nil); !errors.Is(err, domainerrors.ErrInvalidState) {
			t.Fatalf("caller %s: expected ErrInvalidState, got %v", caller, err)
		}
		if _, err := Grant(active, caller, t0, days(0)); !errors.Is(err, domainerrors.ErrInvalidState) {
			t.Fatalf("caller %s with bad expiry: expected ErrInvalidState, got %v", caller, err)
		}
	}
}

func TestRevokeTransitions(t *testing.T) {
	revokedPending, err := Revoke(pending(t), "pt-7", t0)
	if err != nil || revokedPending.Status != entities.PermissionStatusRevoked {
		t.Fatalf("revoke pending: %+v err=%v", revokedPending, err)
	}

	active, _ := Grant(pending(t), "pt-7", t0, days(1))
	lateRevoke, err := Revoke(active, "pt-7", t0.Add(72*time.Hour))
	if err != nil {
		t.Fatalf("revoke elapsed active: %v", err)
	}
	if lateRevoke.Status != entities.PermissionStatusRevoked {
		t.Fatalf("expected revoked, got %s", lateRevoke.Status)
	}

	if _, err := Revoke(active, "dr-1", t0); !errors.Is(err, domainerrors.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if _, err := Revoke(lateRevoke, "pt-7", t0); !errors.Is(err, domainerrors.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on revoked, got %v", err)
	}
}

func TestExpireRequiresElapsedActive(t *testing.T) {
	active, _ := Grant(pending(t), "pt-7", t0, days(1))
	if _, err := Expire(active, t0.Add(24*time.Hour)); !errors.Is(err, domainerrors.ErrInvalidState) {
		t.Fatalf("expiry instant itself is not elapsed, got %v", err)
	}
	expired, err := Expire(active, t0.Add(25*time.Hour))
	if err != nil || expired.Status != entities.PermissionStatusExpired {
		t.Fatalf("expire: %+v err=%v", expired, err)
	}
	if _, err := Expire(pending(t), t0.Add(48*time.Hour)); !errors.Is(err, domainerrors.ErrInvalidState) {
		t.Fatalf("pending cannot expire, got %v", err)
	}
	open, _ := Grant(pending(t), "pt-7", t0, nil)
	if _, err := Expire(open, t0.AddDate(10, 0, 0)); !errors.Is(err, domainerrors.ErrInvalidState) {
		t.Fatalf("grant without expiry never expires, got %v", err)
	}
}
