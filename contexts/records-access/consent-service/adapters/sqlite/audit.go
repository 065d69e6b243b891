package sqliteadapter

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"medvault/contexts/records-access/consent-service/domain/entities"
	domainerrors "medvault/contexts/records-access/consent-service/domain/errors"
	"medvault/contexts/records-access/consent-service/ports"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) Append(ctx context.Context, entry entities.AuditEntry) error {
	if err := insertAudit(ctx, s.db, entry); err != nil {
		s.logger.Error("consent audit append failed",
			"event", "consent_audit_append_failed",
			"module", "records-access/consent-service",
			"layer", "adapter",
			"entry_id", entry.EntryID,
			"error", err.Error(),
		)
		return mapStorageError(err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, filter ports.AuditFilter) ([]entities.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	if filter.ActorID != "" {
		where = append(where, "actor_id = ?")
		args = append(args, filter.ActorID)
	}
	if filter.DocumentID != "" {
		where = append(where, "document_id = ?")
		args = append(args, filter.DocumentID)
	}
	if filter.Action != "" {
		where = append(where, "action = ?")
		args = append(args, string(filter.Action))
	}
	if filter.Since != nil {
		where = append(where, "occurred_at >= ?")
		args = append(args, formatTime(*filter.Since))
	}
	if filter.Until != nil {
		where = append(where, "occurred_at <= ?")
		args = append(args, formatTime(*filter.Until))
	}

	query := `SELECT entry_id, actor_id, actor_role, document_id, permission_id, action, detail, occurred_at
              FROM consent_audit_entries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY occurred_at DESC, seq DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapStorageError(fmt.Errorf("querying audit entries: %w", err))
	}
	defer rows.Close()

	items := make([]entities.AuditEntry, 0)
	for rows.Next() {
		var (
			entry             entities.AuditEntry
			role, action, at string
		)
		if err := rows.Scan(&entry.EntryID, &entry.ActorID, &role, &entry.DocumentID,
			&entry.PermissionID, &action, &entry.Detail, &at); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		entry.ActorRole = entities.ActorRole(role)
		entry.Action = entities.AuditAction(action)
		if entry.Timestamp, err = parseTime(at); err != nil {
			return nil, err
		}
		items = append(items, entry)
	}
	return items, rows.Err()
}

func insertAudit(ctx context.Context, db execer, entry entities.AuditEntry) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO consent_audit_entries
         (entry_id, actor_id, actor_role, document_id, permission_id, action, detail, occurred_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.EntryID, entry.ActorID, string(entry.ActorRole), entry.DocumentID,
		entry.PermissionID, string(entry.Action), entry.Detail, formatTime(entry.Timestamp),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrDuplicateAuditEntry
		}
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}
