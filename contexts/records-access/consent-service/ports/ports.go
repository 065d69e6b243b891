package ports

import (
	"context"
	"time"

	"medvault/contexts/records-access/consent-service/domain/entities"
	"medvault/internal/shared/events"
)

// Clock abstracts current time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator abstracts UUID generation for permissions, audit entries and outbox rows.
type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// DocumentRegistry resolves the owning subject of a document. It is owned by the
// document-serving collaborator and is never mutated by this module.
type DocumentRegistry interface {
	GetOwner(ctx context.Context, documentID string) (string, error)
}

// AuditFilter narrows AuditLog.Query. Zero values mean "any".
type AuditFilter struct {
	ActorID    string
	DocumentID string
	Action     entities.AuditAction
	Since      *time.Time
	Until      *time.Time
	Limit      int
}

// AuditLog is the append-only record of permission and document events.
type AuditLog interface {
	Append(ctx context.Context, entry entities.AuditEntry) error
	Query(ctx context.Context, filter AuditFilter) ([]entities.AuditEntry, error)
}

// OutboxMessage represents a pending relay message.
type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

// CreatePermissionInput is persisted atomically: the pending permission, its audit
// entry and its outbox row are either all recorded or none is.
type CreatePermissionInput struct {
	Permission entities.AccessPermission
	Audit      entities.AuditEntry
	Outbox     OutboxMessage
}

// TransitionInput applies a compare-and-set status change. The write only succeeds
// while the stored status still equals FromStatus.
type TransitionInput struct {
	Permission entities.AccessPermission
	FromStatus entities.PermissionStatus
	Audit      entities.AuditEntry
	Outbox     OutboxMessage
}

// PermissionRepository owns AccessPermission records and their transitions.
type PermissionRepository interface {
	CreatePermission(ctx context.Context, input CreatePermissionInput) error
	TransitionPermission(ctx context.Context, input TransitionInput) error
	GetPermission(ctx context.Context, permissionID string) (entities.AccessPermission, error)
	// LatestPermission returns the newest permission for the pair. Because at most one
	// live permission exists per pair, a live permission is always the newest.
	LatestPermission(ctx context.Context, documentID string, requesterID string) (entities.AccessPermission, bool, error)
	ListByOwner(ctx context.Context, ownerID string) ([]entities.AccessPermission, error)
	ListByRequester(ctx context.Context, requesterID string) ([]entities.AccessPermission, error)
	ListElapsedGrants(ctx context.Context, now time.Time, limit int) ([]entities.AccessPermission, error)
	CountByStatus(ctx context.Context) (entities.PermissionStats, error)
}

// OutboxRepository supports worker relay polling and acknowledgement.
type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

// AccessChangedEvent reuses the shared event envelope.
type AccessChangedEvent = events.Envelope

// AccessChangedPublisher emits access change events to the event bus adapter.
type AccessChangedPublisher interface {
	PublishAccessChanged(ctx context.Context, event AccessChangedEvent) error
}
