package httptransport

import "time"

// RequestAccessRequest is the request body for asking a document owner for access.
type RequestAccessRequest struct {
	DocumentID string `json:"document_id"`
	Reason     string `json:"reason"`
}

// GrantAccessRequest optionally bounds the grant; omitted means no expiry.
type GrantAccessRequest struct {
	ExpiresInDays *int `json:"expires_in_days,omitempty"`
}

// RecordDocumentAccessRequest names the document action being performed.
type RecordDocumentAccessRequest struct {
	Action string `json:"action"`
}

type PermissionDTO struct {
	PermissionID string     `json:"permission_id"`
	DocumentID   string     `json:"document_id"`
	RequesterID  string     `json:"requester_id"`
	OwnerID      string     `json:"owner_id"`
	Status       string     `json:"status"`
	Reason       string     `json:"reason"`
	CreatedAt    time.Time  `json:"created_at"`
	GrantedAt    *time.Time `json:"granted_at,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type PermissionMutationResponse struct {
	Permission   PermissionDTO `json:"permission"`
	AuditEntryID string        `json:"audit_entry_id"`
}

type ListPermissionsResponse struct {
	Permissions []PermissionDTO `json:"permissions"`
}

type AccessDecisionResponse struct {
	DocumentID   string    `json:"document_id"`
	RequesterID  string    `json:"requester_id"`
	Allowed      bool      `json:"allowed"`
	Reason       string    `json:"reason"`
	PermissionID string    `json:"permission_id,omitempty"`
	CheckedAt    time.Time `json:"checked_at"`
}

type RecordDocumentAccessResponse struct {
	Decision     AccessDecisionResponse `json:"decision"`
	AuditEntryID string                 `json:"audit_entry_id"`
}

type AuditEntryDTO struct {
	EntryID      string    `json:"entry_id"`
	ActorID      string    `json:"actor_id"`
	ActorRole    string    `json:"actor_role"`
	DocumentID   string    `json:"document_id,omitempty"`
	PermissionID string    `json:"permission_id,omitempty"`
	Action       string    `json:"action"`
	Detail       string    `json:"detail,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

type QueryAuditResponse struct {
	Entries []AuditEntryDTO `json:"entries"`
}

type PermissionStatsResponse struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Active  int `json:"active"`
	Revoked int `json:"revoked"`
	Expired int `json:"expired"`
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
