package commands

import (
	"context"

	application "medvault/contexts/records-access/consent-service/application"
	"medvault/contexts/records-access/consent-service/domain/entities"
	"medvault/contexts/records-access/consent-service/ports"
)

// TransitionResult captures the post-transition permission and its audit entry id.
type TransitionResult struct {
	Permission   entities.AccessPermission `json:"permission"`
	AuditEntryID string                    `json:"audit_entry_id"`
}

type transitionRecord struct {
	ActorID   string
	ActorRole entities.ActorRole
	Action    entities.AuditAction
	Detail    string
}

// commitTransition persists current -> next with its audit entry and outbox row.
// The repository rejects the write when current.Status is no longer stored.
func commitTransition(
	ctx context.Context,
	repository ports.PermissionRepository,
	ids ports.IDGenerator,
	current entities.AccessPermission,
	next entities.AccessPermission,
	record transitionRecord,
) (TransitionResult, error) {
	auditEntryID, err := ids.NewID(ctx)
	if err != nil {
		return TransitionResult{}, err
	}
	outboxID, err := ids.NewID(ctx)
	if err != nil {
		return TransitionResult{}, err
	}
	outboxMessage, err := application.BuildAccessChangedOutbox(outboxID, next, record.Action, next.UpdatedAt)
	if err != nil {
		return TransitionResult{}, err
	}

	if err := repository.TransitionPermission(ctx, ports.TransitionInput{
		Permission: next,
		FromStatus: current.Status,
		Audit: entities.AuditEntry{
			EntryID:      auditEntryID,
			ActorID:      record.ActorID,
			ActorRole:    record.ActorRole,
			DocumentID:   next.DocumentID,
			PermissionID: next.PermissionID,
			Action:       record.Action,
			Detail:       record.Detail,
			Timestamp:    next.UpdatedAt,
		},
		Outbox: outboxMessage,
	}); err != nil {
		return TransitionResult{}, err
	}
	return TransitionResult{
		Permission:   next,
		AuditEntryID: auditEntryID,
	}, nil
}
