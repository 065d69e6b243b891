package postgresadapter

import (
	"time"

	"medvault/contexts/records-access/consent-service/domain/entities"
	"medvault/contexts/records-access/consent-service/ports"
)

type permissionModel struct {
	PermissionID string     `gorm:"column:permission_id;primaryKey"`
	DocumentID   string     `gorm:"column:document_id"`
	RequesterID  string     `gorm:"column:requester_id"`
	OwnerID      string     `gorm:"column:owner_id"`
	Status       string     `gorm:"column:status"`
	Reason       string     `gorm:"column:reason"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	GrantedAt    *time.Time `gorm:"column:granted_at"`
	ExpiresAt    *time.Time `gorm:"column:expires_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at"`
}

func (permissionModel) TableName() string {
	return "access_permissions"
}

func permissionModelFromEntity(p entities.AccessPermission) permissionModel {
	return permissionModel{
		PermissionID: p.PermissionID,
		DocumentID:   p.DocumentID,
		RequesterID:  p.RequesterID,
		OwnerID:      p.OwnerID,
		Status:       string(p.Status),
		Reason:       p.Reason,
		CreatedAt:    p.CreatedAt.UTC(),
		GrantedAt:    utcPtr(p.GrantedAt),
		ExpiresAt:    utcPtr(p.ExpiresAt),
		UpdatedAt:    p.UpdatedAt.UTC(),
	}
}

func (m permissionModel) toEntity() entities.AccessPermission {
	return entities.AccessPermission{
		PermissionID: m.PermissionID,
		DocumentID:   m.DocumentID,
		RequesterID:  m.RequesterID,
		OwnerID:      m.OwnerID,
		Status:       entities.PermissionStatus(m.Status),
		Reason:       m.Reason,
		CreatedAt:    m.CreatedAt.UTC(),
		GrantedAt:    utcPtr(m.GrantedAt),
		ExpiresAt:    utcPtr(m.ExpiresAt),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
}

type auditModel struct {
	EntryID      string    `gorm:"column:entry_id;primaryKey"`
	ActorID      string    `gorm:"column:actor_id"`
	ActorRole    string    `gorm:"column:actor_role"`
	DocumentID   string    `gorm:"column:document_id"`
	PermissionID string    `gorm:"column:permission_id"`
	Action       string    `gorm:"column:action"`
	Detail       string    `gorm:"column:detail"`
	OccurredAt   time.Time `gorm:"column:occurred_at"`
}

func (auditModel) TableName() string {
	return "consent_audit_entries"
}

func auditModelFromEntity(entry entities.AuditEntry) auditModel {
	return auditModel{
		EntryID:      entry.EntryID,
		ActorID:      entry.ActorID,
		ActorRole:    string(entry.ActorRole),
		DocumentID:   entry.DocumentID,
		PermissionID: entry.PermissionID,
		Action:       string(entry.Action),
		Detail:       entry.Detail,
		OccurredAt:   entry.Timestamp.UTC(),
	}
}

func (m auditModel) toEntity() entities.AuditEntry {
	return entities.AuditEntry{
		EntryID:      m.EntryID,
		ActorID:      m.ActorID,
		ActorRole:    entities.ActorRole(m.ActorRole),
		DocumentID:   m.DocumentID,
		PermissionID: m.PermissionID,
		Action:       entities.AuditAction(m.Action),
		Detail:       m.Detail,
		Timestamp:    m.OccurredAt.UTC(),
	}
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "consent_outbox"
}

func (m outboxModel) toPort() ports.OutboxMessage {
	return ports.OutboxMessage{
		OutboxID:     m.OutboxID,
		EventType:    m.EventType,
		PartitionKey: m.PartitionKey,
		Payload:      append([]byte(nil), m.Payload...),
		CreatedAt:    m.CreatedAt.UTC(),
	}
}

type documentModel struct {
	ID      string `gorm:"column:id;primaryKey"`
	OwnerID string `gorm:"column:owner_id"`
}

func (documentModel) TableName() string {
	return "medical_reports"
}

type statusCountModel struct {
	Status string `gorm:"column:status"`
	Count  int    `gorm:"column:count"`
}

func utcPtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	out := value.UTC()
	return &out
}
