package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	application "medvault/contexts/records-access/consent-service/application"
	"medvault/contexts/records-access/consent-service/domain/entities"
	domainerrors "medvault/contexts/records-access/consent-service/domain/errors"
	"medvault/contexts/records-access/consent-service/domain/services"
	"medvault/contexts/records-access/consent-service/ports"
)

// RequestAccessCommand is transport-agnostic input for opening a consent request.
type RequestAccessCommand struct {
	DocumentID  string
	RequesterID string
	Reason      string
}

// RequestAccessResult captures the pending permission and its audit entry id.
type RequestAccessResult struct {
	Permission   entities.AccessPermission `json:"permission"`
	AuditEntryID string                    `json:"audit_entry_id"`
}

// RequestAccessUseCase opens a Pending permission for (document, requester).
type RequestAccessUseCase struct {
	Repository  ports.PermissionRepository
	Documents   ports.DocumentRegistry
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Logger      *slog.Logger
}

// Execute resolves the document owner, then inserts the permission, its audit entry and
// outbox row as one unit. Uniqueness of the live pair is enforced by the repository.
func (u RequestAccessUseCase) Execute(ctx context.Context, cmd RequestAccessCommand) (RequestAccessResult, error) {
	logger := application.ResolveLogger(u.Logger)
	logger.Info("request access started",
		"event", "consent_request_access_started",
		"module", application.LogModule,
		"layer", "application",
		"document_id", cmd.DocumentID,
		"requester_id", cmd.RequesterID,
	)

	if strings.TrimSpace(cmd.DocumentID) == "" {
		return RequestAccessResult{}, domainerrors.ErrInvalidDocumentID
	}
	if strings.TrimSpace(cmd.RequesterID) == "" {
		return RequestAccessResult{}, domainerrors.ErrInvalidRequesterID
	}
	if strings.TrimSpace(cmd.Reason) == "" {
		return RequestAccessResult{}, domainerrors.ErrReasonRequired
	}

	ownerID, err := u.Documents.GetOwner(ctx, cmd.DocumentID)
	if err != nil {
		logger.Warn("request access document lookup failed",
			"event", "consent_request_access_document_lookup_failed",
			"module", application.LogModule,
			"layer", "application",
			"document_id", cmd.DocumentID,
			"requester_id", cmd.RequesterID,
			"error", err.Error(),
		)
		return RequestAccessResult{}, err
	}

	now := u.now()
	permissionID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return RequestAccessResult{}, err
	}
	auditEntryID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return RequestAccessResult{}, err
	}
	outboxID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return RequestAccessResult{}, err
	}

	permission, err := services.NewPendingPermission(
		permissionID,
		cmd.DocumentID,
		cmd.RequesterID,
		ownerID,
		cmd.Reason,
		now,
	)
	if err != nil {
		return RequestAccessResult{}, err
	}

	outboxMessage, err := application.BuildAccessChangedOutbox(outboxID, permission, entities.AuditActionRequestAccess, now)
	if err != nil {
		return RequestAccessResult{}, err
	}

	if err := u.Repository.CreatePermission(ctx, ports.CreatePermissionInput{
		Permission: permission,
		Audit: entities.AuditEntry{
			EntryID:      auditEntryID,
			ActorID:      cmd.RequesterID,
			ActorRole:    entities.ActorRoleRequester,
			DocumentID:   cmd.DocumentID,
			PermissionID: permissionID,
			Action:       entities.AuditActionRequestAccess,
			Detail:       fmt.Sprintf("requested access to document %s: %s", cmd.DocumentID, permission.Reason),
			Timestamp:    now,
		},
		Outbox: outboxMessage,
	}); err != nil {
		logger.Error("request access write failed",
			"event", "consent_request_access_write_failed",
			"module", application.LogModule,
			"layer", "application",
			"document_id", cmd.DocumentID,
			"requester_id", cmd.RequesterID,
			"error", err.Error(),
		)
		return RequestAccessResult{}, err
	}

	logger.Info("request access completed",
		"event", "consent_request_access_completed",
		"module", application.LogModule,
		"layer", "application",
		"permission_id", permissionID,
		"document_id", cmd.DocumentID,
		"requester_id", cmd.RequesterID,
	)
	return RequestAccessResult{
		Permission:   permission,
		AuditEntryID: auditEntryID,
	}, nil
}

func (u RequestAccessUseCase) now() time.Time {
	if u.Clock != nil {
		return u.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
