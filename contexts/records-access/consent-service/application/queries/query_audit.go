package queries

import (
	"context"
	"strings"
	"time"

	"medvault/contexts/records-access/consent-service/domain/entities"
	domainerrors "medvault/contexts/records-access/consent-service/domain/errors"
	"medvault/contexts/records-access/consent-service/ports"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 500
)

// QueryAuditQuery is scoped to a viewer: without DocumentID it returns the viewer's own
// actions; with DocumentID it returns every entry for that document, owner only.
type QueryAuditQuery struct {
	ViewerID   string
	DocumentID string
	Action     entities.AuditAction
	Since      *time.Time
	Until      *time.Time
	Limit      int
}

type QueryAuditUseCase struct {
	AuditLog  ports.AuditLog
	Documents ports.DocumentRegistry
}

func (u QueryAuditUseCase) Execute(ctx context.Context, query QueryAuditQuery) ([]entities.AuditEntry, error) {
	if strings.TrimSpace(query.ViewerID) == "" {
		return nil, domainerrors.ErrInvalidRequesterID
	}

	filter := ports.AuditFilter{
		Action: query.Action,
		Since:  query.Since,
		Until:  query.Until,
		Limit:  NormalizeAuditLimit(query.Limit),
	}
	if strings.TrimSpace(query.DocumentID) != "" {
		ownerID, err := u.Documents.GetOwner(ctx, query.DocumentID)
		if err != nil {
			return nil, err
		}
		if ownerID != query.ViewerID {
			return nil, domainerrors.ErrNotOwner
		}
		filter.DocumentID = query.DocumentID
	} else {
		filter.ActorID = query.ViewerID
	}
	return u.AuditLog.Query(ctx, filter)
}

// NormalizeAuditLimit applies the default page size and the hard cap.
func NormalizeAuditLimit(limit int) int {
	if limit <= 0 {
		return defaultAuditLimit
	}
	if limit > maxAuditLimit {
		return maxAuditLimit
	}
	return limit
}
