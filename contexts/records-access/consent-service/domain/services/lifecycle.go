package services

import (
	"strings"
	"time"

	"medvault/contexts/records-access/consent-service/domain/entities"
	domainerrors "medvault/contexts/records-access/consent-service/domain/errors"
)

// NewPendingPermission builds the initial state of a consent relationship.
func NewPendingPermission(
	permissionID string,
	documentID string,
	requesterID string,
	ownerID string,
	reason string,
	now time.Time,
) (entities.AccessPermission, error) {
	if strings.TrimSpace(documentID) == "" {
		return entities.AccessPermission{}, domainerrors.ErrInvalidDocumentID
	}
	if strings.TrimSpace(requesterID) == "" {
		return entities.AccessPermission{}, domainerrors.ErrInvalidRequesterID
	}
	if strings.TrimSpace(ownerID) == "" {
		return entities.AccessPermission{}, domainerrors.ErrInvalidOwnerID
	}
	if strings.TrimSpace(reason) == "" {
		return entities.AccessPermission{}, domainerrors.ErrReasonRequired
	}
	if requesterID == ownerID {
		return entities.AccessPermission{}, domainerrors.ErrSelfRequest
	}
	now = now.UTC()
	return entities.AccessPermission{
		PermissionID: permissionID,
		DocumentID:   documentID,
		RequesterID:  requesterID,
		OwnerID:      ownerID,
		Status:       entities.PermissionStatusPending,
		Reason:       strings.TrimSpace(reason),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// MaxExpiresInDays bounds a grant window to roughly one hundred years.
const MaxExpiresInDays = 36500

// ValidateExpiresInDays accepts nil (no expiry) or a day count in [1, MaxExpiresInDays].
func ValidateExpiresInDays(expiresInDays *int) error {
	if expiresInDays != nil && (*expiresInDays < 1 || *expiresInDays > MaxExpiresInDays) {
		return domainerrors.ErrInvalidExpiry
	}
	return nil
}

// Grant moves a Pending permission to Active. State is checked before ownership and
// expiry so a grant on a processed permission reports ErrInvalidState to every caller.
func Grant(
	permission entities.AccessPermission,
	ownerID string,
	now time.Time,
	expiresInDays *int,
) (entities.AccessPermission, error) {
	if permission.Status != entities.PermissionStatusPending {
		return entities.AccessPermission{}, domainerrors.ErrInvalidState
	}
	if permission.OwnerID != ownerID {
		return entities.AccessPermission{}, domainerrors.ErrNotOwner
	}
	if err := ValidateExpiresInDays(expiresInDays); err != nil {
		return entities.AccessPermission{}, err
	}

	now = now.UTC()
	next := permission
	next.Status = entities.PermissionStatusActive
	grantedAt := now
	next.GrantedAt = &grantedAt
	next.ExpiresAt = nil
	if expiresInDays != nil {
		expiresAt := now.AddDate(0, 0, *expiresInDays)
		if !expiresAt.After(grantedAt) {
			return entities.AccessPermission{}, domainerrors.ErrInvalidExpiry
		}
		next.ExpiresAt = &expiresAt
	}
	next.UpdatedAt = now
	return next, nil
}

// Revoke moves a Pending or Active permission to Revoked. An Active permission whose
// expiry elapsed but was never swept is still Active in storage and may be revoked.
func Revoke(permission entities.AccessPermission, ownerID string, now time.Time) (entities.AccessPermission, error) {
	if !permission.Status.IsLive() {
		return entities.AccessPermission{}, domainerrors.ErrInvalidState
	}
	if permission.OwnerID != ownerID {
		return entities.AccessPermission{}, domainerrors.ErrNotOwner
	}
	next := permission
	next.Status = entities.PermissionStatusRevoked
	next.UpdatedAt = now.UTC()
	return next, nil
}

// Expire moves an Active permission whose window elapsed at now to Expired.
func Expire(permission entities.AccessPermission, now time.Time) (entities.AccessPermission, error) {
	if permission.Status != entities.PermissionStatusActive || !permission.ExpiredAt(now) {
		return entities.AccessPermission{}, domainerrors.ErrInvalidState
	}
	next := permission
	next.Status = entities.PermissionStatusExpired
	next.UpdatedAt = now.UTC()
	return next, nil
}
