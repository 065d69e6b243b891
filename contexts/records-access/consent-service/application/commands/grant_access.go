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

// GrantAccessCommand contains transport-agnostic input for consenting to a request.
// A nil ExpiresInDays grants access with no expiry.
type GrantAccessCommand struct {
	PermissionID  string
	OwnerID       string
	ExpiresInDays *int
}

// GrantAccessUseCase moves a Pending permission to Active on behalf of its owner.
type GrantAccessUseCase struct {
	Repository  ports.PermissionRepository
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Logger      *slog.Logger
}

func (u GrantAccessUseCase) Execute(ctx context.Context, cmd GrantAccessCommand) (TransitionResult, error) {
	logger := application.ResolveLogger(u.Logger)
	logger.Info("grant access started",
		"event", "consent_grant_access_started",
		"module", application.LogModule,
		"layer", "application",
		"permission_id", cmd.PermissionID,
		"owner_id", cmd.OwnerID,
	)

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

	next, err := services.Grant(current, cmd.OwnerID, u.now(), cmd.ExpiresInDays)
	if err != nil {
		logger.Warn("grant access rejected",
			"event", "consent_grant_access_rejected",
			"module", application.LogModule,
			"layer", "application",
			"permission_id", cmd.PermissionID,
			"owner_id", cmd.OwnerID,
			"status", string(current.Status),
			"error", err.Error(),
		)
		return TransitionResult{}, err
	}

	detail := fmt.Sprintf("granted %s access to document %s", current.RequesterID, current.DocumentID)
	if next.ExpiresAt != nil {
		detail += " until " + next.ExpiresAt.Format(time.RFC3339)
	}
	result, err := commitTransition(ctx, u.Repository, u.IDGenerator, current, next, transitionRecord{
		ActorID:   cmd.OwnerID,
		ActorRole: entities.ActorRoleOwner,
		Action:    entities.AuditActionGrantAccess,
		Detail:    detail,
	})
	if err != nil {
		logger.Error("grant access write failed",
			"event", "consent_grant_access_write_failed",
			"module", application.LogModule,
			"layer", "application",
			"permission_id", cmd.PermissionID,
			"owner_id", cmd.OwnerID,
			"error", err.Error(),
		)
		return TransitionResult{}, err
	}

	logger.Info("grant access completed",
		"event", "consent_grant_access_completed",
		"module", application.LogModule,
		"layer", "application",
		"permission_id", cmd.PermissionID,
		"document_id", next.DocumentID,
		"requester_id", next.RequesterID,
	)
	return result, nil
}

func (u GrantAccessUseCase) now() time.Time {
	if u.Clock != nil {
		return u.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
