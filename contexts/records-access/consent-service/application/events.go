package application

import (
	"encoding/json"
	"fmt"
	"time"

	"medvault/contexts/records-access/consent-service/domain/entities"
	"medvault/contexts/records-access/consent-service/ports"
)

const (
	EventTypeAccessChanged = "consent.access_changed"
	sourceService          = "consent-service"
)

// AccessChangedData is the data section of a consent.access_changed event.
type AccessChangedData struct {
	PermissionID string                    `json:"permission_id"`
	DocumentID   string                    `json:"document_id"`
	RequesterID  string                    `json:"requester_id"`
	OwnerID      string                    `json:"owner_id"`
	Status       entities.PermissionStatus `json:"status"`
	ActionType   entities.AuditAction      `json:"action_type"`
	ExpiresAt    *time.Time                `json:"expires_at,omitempty"`
}

// BuildAccessChangedOutbox encodes the post-transition permission state as an outbox row.
// The outbox id doubles as the event id so relays stay idempotent downstream.
func BuildAccessChangedOutbox(
	outboxID string,
	permission entities.AccessPermission,
	action entities.AuditAction,
	occurredAt time.Time,
) (ports.OutboxMessage, error) {
	data, err := json.Marshal(AccessChangedData{
		PermissionID: permission.PermissionID,
		DocumentID:   permission.DocumentID,
		RequesterID:  permission.RequesterID,
		OwnerID:      permission.OwnerID,
		Status:       permission.Status,
		ActionType:   action,
		ExpiresAt:    permission.ExpiresAt,
	})
	if err != nil {
		return ports.OutboxMessage{}, err
	}
	payload, err := json.Marshal(ports.AccessChangedEvent{
		EventID:          outboxID,
		EventType:        EventTypeAccessChanged,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    sourceService,
		SchemaVersion:    1,
		PartitionKeyPath: "document_id",
		PartitionKey:     permission.DocumentID,
		Data:             data,
	})
	if err != nil {
		return ports.OutboxMessage{}, err
	}
	return ports.OutboxMessage{
		OutboxID:     outboxID,
		EventType:    EventTypeAccessChanged,
		PartitionKey: permission.DocumentID,
		Payload:      payload,
		CreatedAt:    occurredAt.UTC(),
	}, nil
}

// DecodeAccessChangedData reads the data section of an access-changed event.
func DecodeAccessChangedData(event ports.AccessChangedEvent) (AccessChangedData, error) {
	if event.EventType != EventTypeAccessChanged {
		return AccessChangedData{}, fmt.Errorf("unexpected event type %q", event.EventType)
	}
	var data AccessChangedData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return AccessChangedData{}, fmt.Errorf("decoding %s data: %w", event.EventID, err)
	}
	if data.PermissionID == "" {
		return AccessChangedData{}, fmt.Errorf("event %s has no permission_id", event.EventID)
	}
	return data, nil
}
