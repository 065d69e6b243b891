package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"medvault/contexts/records-access/consent-service/application"
	"medvault/contexts/records-access/consent-service/domain/entities"
	"medvault/contexts/records-access/consent-service/ports"
)

// AccessProjection consumes access-changed events from the bus and keeps the
// latest known status per permission. Redelivered events are ignored by event id,
// and an event older than the one already applied never rolls a permission back.
type AccessProjection struct {
	mu      sync.RWMutex
	seen    map[string]struct{}
	latest  map[string]projectedPermission
	applied int
	logger  *slog.Logger
}

type projectedPermission struct {
	status     entities.PermissionStatus
	occurredAt time.Time
}

func NewAccessProjection(logger *slog.Logger) *AccessProjection {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessProjection{
		seen:   make(map[string]struct{}),
		latest: make(map[string]projectedPermission),
		logger: logger,
	}
}

// Handle matches the bus consumer signature.
func (p *AccessProjection) Handle(_ context.Context, event ports.AccessChangedEvent) error {
	data, err := application.DecodeAccessChangedData(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if _, dup := p.seen[event.EventID]; dup {
		p.mu.Unlock()
		return nil
	}
	p.seen[event.EventID] = struct{}{}
	current, known := p.latest[data.PermissionID]
	stale := known && event.OccurredAt.Before(current.occurredAt)
	if !stale {
		p.latest[data.PermissionID] = projectedPermission{status: data.Status, occurredAt: event.OccurredAt}
		p.applied++
	}
	p.mu.Unlock()

	p.logger.Info("access changed event consumed",
		"event", "consent_access_changed_consumed",
		"module", "records-access/consent-service",
		"layer", "adapter",
		"event_id", event.EventID,
		"permission_id", data.PermissionID,
		"document_id", data.DocumentID,
		"status", string(data.Status),
		"action_type", string(data.ActionType),
		"stale", stale,
	)
	return nil
}

// Status returns the projected status of a permission.
func (p *AccessProjection) Status(permissionID string) (entities.PermissionStatus, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	current, ok := p.latest[permissionID]
	return current.status, ok
}

// Applied counts events that changed the projection.
func (p *AccessProjection) Applied() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.applied
}
