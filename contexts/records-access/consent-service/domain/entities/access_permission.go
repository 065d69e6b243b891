package entities

import "time"

// PermissionStatus is the stored lifecycle state of an access permission.
type PermissionStatus string

const (
	PermissionStatusPending PermissionStatus = "pending"
	PermissionStatusActive  PermissionStatus = "active"
	PermissionStatusRevoked PermissionStatus = "revoked"
	PermissionStatusExpired PermissionStatus = "expired"
)

// IsLive reports whether the status still occupies the (document, requester) slot.
func (s PermissionStatus) IsLive() bool {
	return s == PermissionStatusPending || s == PermissionStatusActive
}

// IsTerminal reports whether no transition may leave the status.
func (s PermissionStatus) IsTerminal() bool {
	return s == PermissionStatusRevoked || s == PermissionStatusExpired
}

func (s PermissionStatus) Valid() bool {
	switch s {
	case PermissionStatusPending, PermissionStatusActive, PermissionStatusRevoked, PermissionStatusExpired:
		return true
	default:
		return false
	}
}

// AccessPermission is one consent relationship between a requester and the owner of one document.
type AccessPermission struct {
	PermissionID string           `json:"permission_id"`
	DocumentID   string           `json:"document_id"`
	RequesterID  string           `json:"requester_id"`
	OwnerID      string           `json:"owner_id"`
	Status       PermissionStatus `json:"status"`
	Reason       string           `json:"reason"`
	CreatedAt    time.Time        `json:"created_at"`
	GrantedAt    *time.Time       `json:"granted_at,omitempty"`
	ExpiresAt    *time.Time       `json:"expires_at,omitempty"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// ExpiredAt reports whether the grant window has elapsed at asOf.
func (p AccessPermission) ExpiredAt(asOf time.Time) bool {
	return p.ExpiresAt != nil && asOf.After(*p.ExpiresAt)
}
