package entities

import "time"

// ActorRole tags the capability an actor exercised, resolved once at the boundary.
type ActorRole string

const (
	ActorRoleOwner     ActorRole = "owner"
	ActorRoleRequester ActorRole = "requester"
	ActorRoleSystem    ActorRole = "system"
)

type AuditAction string

const (
	AuditActionRequestAccess    AuditAction = "request_access"
	AuditActionGrantAccess      AuditAction = "grant_access"
	AuditActionRevokeAccess     AuditAction = "revoke_access"
	AuditActionExpireAccess     AuditAction = "expire_access"
	AuditActionViewDocument     AuditAction = "view_document"
	AuditActionDownloadDocument AuditAction = "download_document"
	AuditActionUploadDiagnosis  AuditAction = "upload_diagnosis"
)

// IsDocumentAccess reports whether the action records a document-serving attempt
// rather than a consent transition.
func (a AuditAction) IsDocumentAccess() bool {
	switch a {
	case AuditActionViewDocument, AuditActionDownloadDocument, AuditActionUploadDiagnosis:
		return true
	default:
		return false
	}
}

// AuditEntry is an immutable fact about one state-changing operation.
// DocumentID and PermissionID are empty when the action has no such subject.
type AuditEntry struct {
	EntryID      string      `json:"entry_id"`
	ActorID      string      `json:"actor_id"`
	ActorRole    ActorRole   `json:"actor_role"`
	DocumentID   string      `json:"document_id,omitempty"`
	PermissionID string      `json:"permission_id,omitempty"`
	Action       AuditAction `json:"action"`
	Detail       string      `json:"detail"`
	Timestamp    time.Time   `json:"timestamp"`
}
