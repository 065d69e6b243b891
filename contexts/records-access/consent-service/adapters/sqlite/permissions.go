package sqliteadapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"medvault/contexts/records-access/consent-service/domain/entities"
	domainerrors "medvault/contexts/records-access/consent-service/domain/errors"
	"medvault/contexts/records-access/consent-service/ports"
)

const permissionColumns = `permission_id, document_id, requester_id, owner_id, status, reason,
    created_at, granted_at, expires_at, updated_at`

func (s *Store) CreatePermission(ctx context.Context, input ports.CreatePermissionInput) error {
	if err := checkPermissionTimes(input.Permission); err != nil {
		return err
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		p := input.Permission
		_, err := tx.ExecContext(ctx,
			`INSERT INTO access_permissions (`+permissionColumns+`)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.PermissionID, p.DocumentID, p.RequesterID, p.OwnerID, string(p.Status), p.Reason,
			formatTime(p.CreatedAt), formatTimePtr(p.GrantedAt), formatTimePtr(p.ExpiresAt), formatTime(p.UpdatedAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrDuplicateRequest
			}
			return fmt.Errorf("inserting permission: %w", err)
		}
		if err := insertAudit(ctx, tx, input.Audit); err != nil {
			return err
		}
		return insertOutbox(ctx, tx, input.Outbox)
	})
	if err != nil {
		s.logWriteFailure("create", input.Permission.PermissionID, err)
	}
	return err
}

func (s *Store) TransitionPermission(ctx context.Context, input ports.TransitionInput) error {
	if err := checkPermissionTimes(input.Permission); err != nil {
		return err
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		p := input.Permission
		result, err := tx.ExecContext(ctx,
			`UPDATE access_permissions
             SET status = ?, granted_at = ?, expires_at = ?, updated_at = ?
             WHERE permission_id = ? AND status = ?`,
			string(p.Status), formatTimePtr(p.GrantedAt), formatTimePtr(p.ExpiresAt), formatTime(p.UpdatedAt),
			p.PermissionID, string(input.FromStatus),
		)
		if err != nil {
			return fmt.Errorf("updating permission: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			var status string
			err := tx.QueryRowContext(ctx,
				`SELECT status FROM access_permissions WHERE permission_id = ?`, p.PermissionID,
			).Scan(&status)
			if errors.Is(err, sql.ErrNoRows) {
				return domainerrors.ErrPermissionNotFound
			}
			if err != nil {
				return err
			}
			return domainerrors.ErrInvalidState
		}
		if err := insertAudit(ctx, tx, input.Audit); err != nil {
			return err
		}
		return insertOutbox(ctx, tx, input.Outbox)
	})
	if err != nil && !errors.Is(err, domainerrors.ErrInvalidState) && !errors.Is(err, domainerrors.ErrPermissionNotFound) {
		s.logWriteFailure("transition", input.Permission.PermissionID, err)
	}
	return err
}

func (s *Store) GetPermission(ctx context.Context, permissionID string) (entities.AccessPermission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+permissionColumns+` FROM access_permissions WHERE permission_id = ?`, permissionID)
	p, err := scanPermission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.AccessPermission{}, domainerrors.ErrPermissionNotFound
	}
	if err != nil {
		return entities.AccessPermission{}, mapStorageError(err)
	}
	return p, nil
}

func (s *Store) LatestPermission(ctx context.Context, documentID string, requesterID string) (entities.AccessPermission, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+permissionColumns+` FROM access_permissions
         WHERE document_id = ? AND requester_id = ?
         ORDER BY created_at DESC, rowid DESC LIMIT 1`, documentID, requesterID)
	p, err := scanPermission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.AccessPermission{}, false, nil
	}
	if err != nil {
		return entities.AccessPermission{}, false, mapStorageError(err)
	}
	return p, true, nil
}

func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]entities.AccessPermission, error) {
	return s.queryPermissions(ctx,
		`SELECT `+permissionColumns+` FROM access_permissions
         WHERE owner_id = ? ORDER BY created_at DESC, rowid DESC`, ownerID)
}

func (s *Store) ListByRequester(ctx context.Context, requesterID string) ([]entities.AccessPermission, error) {
	return s.queryPermissions(ctx,
		`SELECT `+permissionColumns+` FROM access_permissions
         WHERE requester_id = ? ORDER BY created_at DESC, rowid DESC`, requesterID)
}

func (s *Store) ListElapsedGrants(ctx context.Context, now time.Time, limit int) ([]entities.AccessPermission, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryPermissions(ctx,
		`SELECT `+permissionColumns+` FROM access_permissions
         WHERE status = ? AND expires_at IS NOT NULL AND expires_at < ?
         ORDER BY expires_at ASC LIMIT ?`,
		string(entities.PermissionStatusActive), formatTime(now), limit)
}

func (s *Store) CountByStatus(ctx context.Context) (entities.PermissionStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM access_permissions GROUP BY status`)
	if err != nil {
		return entities.PermissionStats{}, mapStorageError(err)
	}
	defer rows.Close()

	var stats entities.PermissionStats
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return entities.PermissionStats{}, err
		}
		stats.Add(entities.PermissionStatus(status), count)
	}
	return stats, rows.Err()
}

func (s *Store) queryPermissions(ctx context.Context, query string, args ...any) ([]entities.AccessPermission, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapStorageError(err)
	}
	defer rows.Close()

	items := make([]entities.AccessPermission, 0)
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPermission(row scanner) (entities.AccessPermission, error) {
	var (
		p                    entities.AccessPermission
		status               string
		createdAt, updatedAt string
		grantedAt, expiresAt sql.NullString
	)
	if err := row.Scan(
		&p.PermissionID, &p.DocumentID, &p.RequesterID, &p.OwnerID, &status, &p.Reason,
		&createdAt, &grantedAt, &expiresAt, &updatedAt,
	); err != nil {
		return entities.AccessPermission{}, err
	}
	p.Status = entities.PermissionStatus(status)

	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return entities.AccessPermission{}, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return entities.AccessPermission{}, err
	}
	if p.GrantedAt, err = parseTimePtr(grantedAt); err != nil {
		return entities.AccessPermission{}, err
	}
	if p.ExpiresAt, err = parseTimePtr(expiresAt); err != nil {
		return entities.AccessPermission{}, err
	}
	return p, nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapStorageError(fmt.Errorf("beginning transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return mapStorageError(err)
	}
	if err := tx.Commit(); err != nil {
		return mapStorageError(fmt.Errorf("committing transaction: %w", err))
	}
	return nil
}

func (s *Store) logWriteFailure(operation string, permissionID string, err error) {
	if errors.Is(err, domainerrors.ErrDuplicateRequest) {
		return
	}
	s.logger.Error("consent permission write failed",
		"event", "consent_permission_write_failed",
		"module", "records-access/consent-service",
		"layer", "adapter",
		"operation", operation,
		"permission_id", permissionID,
		"error", err.Error(),
	)
}


func checkPermissionTimes(p entities.AccessPermission) error {
	if err := checkStorable(&p.CreatedAt, &p.UpdatedAt, p.GrantedAt, p.ExpiresAt); err != nil {
		return fmt.Errorf("permission %s: %w", p.PermissionID, err)
	}
	return nil
}
