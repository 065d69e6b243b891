package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	application "medvault/contexts/records-access/consent-service/application"
	"medvault/contexts/records-access/consent-service/application/queries"
	"medvault/contexts/records-access/consent-service/domain/entities"
	domainerrors "medvault/contexts/records-access/consent-service/domain/errors"
	"medvault/contexts/records-access/consent-service/ports"
)

// RecordDocumentAccessCommand records a view, download or diagnosis upload attempt by
// a document-serving collaborator.
type RecordDocumentAccessCommand struct {
	DocumentID string
	ActorID    string
	Action     entities.AuditAction
}

type RecordDocumentAccessResult struct {
	Decision     entities.AccessDecision `json:"decision"`
	AuditEntryID string                  `json:"audit_entry_id"`
}

// RecordDocumentAccessUseCase gates the attempt on CanAccess and appends one audit
// entry when it is allowed. Denied attempts leave the audit log untouched.
type RecordDocumentAccessUseCase struct {
	CanAccess   queries.CanAccessUseCase
	AuditLog    ports.AuditLog
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Logger      *slog.Logger
}

func (u RecordDocumentAccessUseCase) Execute(
	ctx context.Context,
	cmd RecordDocumentAccessCommand,
) (RecordDocumentAccessResult, error) {
	logger := application.ResolveLogger(u.Logger)

	if !cmd.Action.IsDocumentAccess() {
		return RecordDocumentAccessResult{}, domainerrors.ErrInvalidAccessAction
	}
	if strings.TrimSpace(cmd.ActorID) == "" {
		return RecordDocumentAccessResult{}, domainerrors.ErrInvalidRequesterID
	}

	now := u.now()
	decision, err := u.CanAccess.Execute(ctx, queries.CanAccessQuery{
		DocumentID:  cmd.DocumentID,
		RequesterID: cmd.ActorID,
		AsOf:        &now,
	})
	if err != nil {
		return RecordDocumentAccessResult{}, err
	}
	if !decision.Allowed {
		return RecordDocumentAccessResult{Decision: decision},
			fmt.Errorf("%w: %s", domainerrors.ErrAccessDenied, decision.Reason)
	}

	role := entities.ActorRoleRequester
	if decision.Reason == entities.DecisionReasonOwner {
		if cmd.Action == entities.AuditActionUploadDiagnosis {
			return RecordDocumentAccessResult{Decision: decision}, domainerrors.ErrInvalidAccessAction
		}
		role = entities.ActorRoleOwner
	}

	entryID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return RecordDocumentAccessResult{}, err
	}
	if err := u.AuditLog.Append(ctx, entities.AuditEntry{
		EntryID:      entryID,
		ActorID:      cmd.ActorID,
		ActorRole:    role,
		DocumentID:   cmd.DocumentID,
		PermissionID: decision.PermissionID,
		Action:       cmd.Action,
		Detail:       fmt.Sprintf("%s on document %s", strings.ReplaceAll(string(cmd.Action), "_", " "), cmd.DocumentID),
		Timestamp:    now,
	}); err != nil {
		logger.Error("document access audit append failed",
			"event", "consent_document_access_audit_failed",
			"module", application.LogModule,
			"layer", "application",
			"document_id", cmd.DocumentID,
			"actor_id", cmd.ActorID,
			"action", string(cmd.Action),
			"error", err.Error(),
		)
		return RecordDocumentAccessResult{}, err
	}

	return RecordDocumentAccessResult{
		Decision:     decision,
		AuditEntryID: entryID,
	}, nil
}

func (u RecordDocumentAccessUseCase) now() time.Time {
	if u.Clock != nil {
		return u.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
