package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	application "medvault/contexts/records-access/consent-service/application"
	"medvault/contexts/records-access/consent-service/domain/entities"
	domainerrors "medvault/contexts/records-access/consent-service/domain/errors"
	"medvault/contexts/records-access/consent-service/domain/services"
	"medvault/contexts/records-access/consent-service/ports"
)

// SweeperActorID is recorded as the actor of expire_access audit entries.
const SweeperActorID = "system:expiry-sweeper"

// ExpirySweeper moves Active permissions whose expiry elapsed to Expired, one audited
// transition per permission. Authorization never depends on it having run.
type ExpirySweeper struct {
	Permissions ports.PermissionRepository
	IDGenerator ports.IDGenerator
	Clock       ports.Clock
	BatchSize   int
	Logger      *slog.Logger
}

func (e ExpirySweeper) RunOnce(ctx context.Context) (int, error) {
	logger := application.ResolveLogger(e.Logger)
	now := time.Now().UTC()
	if e.Clock != nil {
		now = e.Clock.Now().UTC()
	}
	limit := e.BatchSize
	if limit <= 0 {
		limit = 100
	}

	elapsed, err := e.Permissions.ListElapsedGrants(ctx, now, limit)
	if err != nil {
		logger.Error("consent expiry sweep list failed",
			"event", "consent_expiry_sweep_list_failed",
			"module", application.LogModule,
			"layer", "worker",
			"error", err.Error(),
		)
		return 0, err
	}

	expired := 0
	for _, permission := range elapsed {
		next, err := services.Expire(permission, now)
		if err != nil {
			continue
		}
		if err := e.expireOne(ctx, permission, next); err != nil {
			if errors.Is(err, domainerrors.ErrInvalidState) || errors.Is(err, domainerrors.ErrPermissionNotFound) {
				// Revoked concurrently by its owner.
				continue
			}
			logger.Error("consent expiry sweep write failed",
				"event", "consent_expiry_sweep_write_failed",
				"module", application.LogModule,
				"layer", "worker",
				"permission_id", permission.PermissionID,
				"error", err.Error(),
			)
			return expired, err
		}
		expired++
	}

	if expired > 0 {
		logger.Info("consent expiry sweep completed",
			"event", "consent_expiry_sweep_completed",
			"module", application.LogModule,
			"layer", "worker",
			"expired_count", expired,
		)
	}
	return expired, nil
}

func (e ExpirySweeper) expireOne(ctx context.Context, current entities.AccessPermission, next entities.AccessPermission) error {
	auditEntryID, err := e.IDGenerator.NewID(ctx)
	if err != nil {
		return err
	}
	outboxID, err := e.IDGenerator.NewID(ctx)
	if err != nil {
		return err
	}
	outboxMessage, err := application.BuildAccessChangedOutbox(outboxID, next, entities.AuditActionExpireAccess, next.UpdatedAt)
	if err != nil {
		return err
	}
	return e.Permissions.TransitionPermission(ctx, ports.TransitionInput{
		Permission: next,
		FromStatus: current.Status,
		Audit: entities.AuditEntry{
			EntryID:      auditEntryID,
			ActorID:      SweeperActorID,
			ActorRole:    entities.ActorRoleSystem,
			DocumentID:   next.DocumentID,
			PermissionID: next.PermissionID,
			Action:       entities.AuditActionExpireAccess,
			Detail: fmt.Sprintf("access of %s to document %s expired at %s",
				next.RequesterID, next.DocumentID, next.ExpiresAt.Format(time.RFC3339)),
			Timestamp: next.UpdatedAt,
		},
		Outbox: outboxMessage,
	})
}
