package entities

import "time"

type DecisionReason string

const (
	DecisionReasonOwner         DecisionReason = "owner"
	DecisionReasonActiveGrant   DecisionReason = "active_grant"
	DecisionReasonNoActiveGrant DecisionReason = "no_active_grant"
	DecisionReasonExpired       DecisionReason = "expired"
)

// AccessDecision is returned by CanAccess. It is never persisted.
type AccessDecision struct {
	DocumentID   string         `json:"document_id"`
	RequesterID  string         `json:"requester_id"`
	Allowed      bool           `json:"allowed"`
	Reason       DecisionReason `json:"reason"`
	PermissionID string         `json:"permission_id,omitempty"`
	CheckedAt    time.Time      `json:"checked_at"`
}

// PermissionStats counts stored permissions by status.
type PermissionStats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Active  int `json:"active"`
	Revoked int `json:"revoked"`
	Expired int `json:"expired"`
}

// Add counts one permission with the given stored status.
func (s *PermissionStats) Add(status PermissionStatus, n int) {
	s.Total += n
	switch status {
	case PermissionStatusPending:
		s.Pending += n
	case PermissionStatusActive:
		s.Active += n
	case PermissionStatusRevoked:
		s.Revoked += n
	case PermissionStatusExpired:
		s.Expired += n
	}
}
