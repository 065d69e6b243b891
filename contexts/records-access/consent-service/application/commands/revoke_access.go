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

type RevokeAccessCommand struct {
	PermissionID string
	OwnerID      string
}

// RevokeAccessUseCase moves a Pending or Active permission to Revoked.
// Revoking twice is an error: one transition produces exactly one audit entry.
type RevokeAccessUseCase struct {
	Repository  ports.PermissionRepository
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Logger      *slog.Logger
}

func (u RevokeAccessUseCase) Execute(ctx context.Context, cmd RevokeAccessCommand) (TransitionResult, error) {
	logger := application.ResolveLogger(u.Logger)

	if strings.TrimSpace(cmd.PermissionID) == "" {
		return TransitionResult{}, domainerrors.ErrInvalidPermissionID
	}
	if strings.TrimSpace(cmd.OwnerID) == "" {
		return TransitionResult{}, domainerrors.ErrInvalidOwnerID
	}

	current, err := u.Repository.GetPermission(ctx, cmd.PermissionID)
	if err != nil {
		return TransitionResult{}, err
	}

	next, err := services.Revoke(current, cmd.OwnerID, u.now())
	if err != nil {
		logger.Warn("revoke access rejected",
			"event", "consent_revoke_access_rejected",
			"module", application.LogModule,
			"layer", "application",
			"permission_id", cmd.PermissionID,
			"owner_id", cmd.OwnerID,
			"status", string(current.Status),
			"error", err.Error(),
		)
		return TransitionResult{}, err
	}

	result, err := commitTransition(ctx, u.Repository, u.IDGenerator, current, next, transitionRecord{
		ActorID:   cmd.OwnerID,
		ActorRole: entities.ActorRoleOwner,
		Action:    entities.AuditActionRevokeAccess,
		Detail: fmt.Sprintf("revoked %s access from %s to document %s",
			current.Status, current.RequesterID, current.DocumentID),
	})
	if err != nil {
		logger.Error("revoke access write failed",
			"event", "consent_revoke_access_write_failed",
			"module", application.LogModule,
			"layer", "application",
			"permission_id", cmd.PermissionID,
			"owner_id", cmd.OwnerID,
			"error", err.Error(),
		)
		return TransitionResult{}, err
	}

	logger.Info("revoke access completed",
		"event", "consent_revoke_access_completed",
		"module", application.LogModule,
		"layer", "application",
		"permission_id", cmd.PermissionID,
		"document_id", next.DocumentID,
		"requester_id", next.RequesterID,
	)
	return result, nil
}

func (u RevokeAccessUseCase) now() time.Time {
	if u.Clock != nil {
		return u.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
