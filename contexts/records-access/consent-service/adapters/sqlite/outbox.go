package sqliteadapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medvault/contexts/records-access/consent-service/ports"
	"medvault/internal/shared/outbox"
)

func (s *Store) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT outbox_id, event_type, partition_key, payload, created_at
         FROM consent_outbox WHERE status = ? ORDER BY seq ASC LIMIT ?`, outbox.StatusPending, limit)
	if err != nil {
		return nil, mapStorageError(err)
	}
	defer rows.Close()

	items := make([]ports.OutboxMessage, 0)
	for rows.Next() {
		var (
			message   ports.OutboxMessage
			createdAt string
		)
		if err := rows.Scan(&message.OutboxID, &message.EventType, &message.PartitionKey,
			&message.Payload, &createdAt); err != nil {
			return nil, err
		}
		if message.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		items = append(items, message)
	}
	return items, rows.Err()
}

func (s *Store) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE consent_outbox SET status = ?, published_at = ? WHERE outbox_id = ?`,
		outbox.StatusPublished, formatTime(publishedAt), outboxID)
	if err != nil {
		return mapStorageError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.New("outbox record not found")
	}
	return nil
}

func insertOutbox(ctx context.Context, db execer, message ports.OutboxMessage) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO consent_outbox (outbox_id, event_type, partition_key, payload, status, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		message.OutboxID, message.EventType, message.PartitionKey, message.Payload, outbox.StatusPending, formatTime(message.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting outbox row: %w", err)
	}
	return nil
}
