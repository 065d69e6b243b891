package queries

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "medvault/contexts/records-access/consent-service/application"
	"medvault/contexts/records-access/consent-service/domain/entities"
	domainerrors "medvault/contexts/records-access/consent-service/domain/errors"
	"medvault/contexts/records-access/consent-service/domain/services"
	"medvault/contexts/records-access/consent-service/ports"
)

// CanAccessQuery asks whether requester may access document at AsOf (nil = now).
type CanAccessQuery struct {
	DocumentID  string
	RequesterID string
	AsOf        *time.Time
}

// CanAccessUseCase is the authorization gate every document-serving operation calls.
// It never writes: no audit entry, no status change.
type CanAccessUseCase struct {
	Repository ports.PermissionRepository
	Documents  ports.DocumentRegistry
	Clock      ports.Clock
	Logger     *slog.Logger
}

// Execute returns a decision, or an error when the decision inputs cannot be read.
// Lookup failures are never turned into an allow.
func (u CanAccessUseCase) Execute(ctx context.Context, query CanAccessQuery) (entities.AccessDecision, error) {
	if strings.TrimSpace(query.DocumentID) == "" {
		return entities.AccessDecision{}, domainerrors.ErrInvalidDocumentID
	}
	if strings.TrimSpace(query.RequesterID) == "" {
		return entities.AccessDecision{}, domainerrors.ErrInvalidRequesterID
	}

	logger := application.ResolveLogger(u.Logger)
	asOf := u.now()
	if query.AsOf != nil {
		asOf = query.AsOf.UTC()
	}

	ownerID, err := u.Documents.GetOwner(ctx, query.DocumentID)
	if err != nil {
		logger.Error("access check document lookup failed",
			"event", "consent_check_document_lookup_failed",
			"module", application.LogModule,
			"layer", "application",
			"document_id", query.DocumentID,
			"requester_id", query.RequesterID,
			"error", err.Error(),
		)
		return entities.AccessDecision{}, err
	}

	var live *entities.AccessPermission
	if ownerID != query.RequesterID {
		latest, found, err := u.Repository.LatestPermission(ctx, query.DocumentID, query.RequesterID)
		if err != nil {
			logger.Error("access check permission lookup failed",
				"event", "consent_check_permission_lookup_failed",
				"module", application.LogModule,
				"layer", "application",
				"document_id", query.DocumentID,
				"requester_id", query.RequesterID,
				"error", err.Error(),
			)
			return entities.AccessDecision{}, err
		}
		if found {
			live = &latest
		}
	}

	decision := services.Decide(query.DocumentID, ownerID, query.RequesterID, live, asOf)
	if !decision.Allowed {
		logger.Warn("access check denied",
			"event", "consent_check_denied",
			"module", application.LogModule,
			"layer", "application",
			"document_id", query.DocumentID,
			"requester_id", query.RequesterID,
			"reason", string(decision.Reason),
		)
	} else {
		logger.Debug("access check allowed",
			"event", "consent_check_allowed",
			"module", application.LogModule,
			"layer", "application",
			"document_id", query.DocumentID,
			"requester_id", query.RequesterID,
			"reason", string(decision.Reason),
		)
	}
	return decision, nil
}

func (u CanAccessUseCase) now() time.Time {
	if u.Clock != nil {
		return u.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
