package postgresadapter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"medvault/contexts/records-access/consent-service/domain/entities"
	domainerrors "medvault/contexts/records-access/consent-service/domain/errors"
	"medvault/contexts/records-access/consent-service/ports"
	"medvault/internal/shared/outbox"

	"gorm.io/gorm"
)

// Repository implements the permission, audit and outbox ports on Postgres.
// Each mutation runs in one transaction together with its audit and outbox rows.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) CreatePermission(ctx context.Context, input ports.CreatePermissionInput) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := permissionModelFromEntity(input.Permission)
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) && constraintName(err) != LivePairIndex {
				r.logger.Warn("consent permission id collision",
					"event", "consent_permission_id_collision",
					"module", "records-access/consent-service",
					"layer", "adapter",
					"permission_id", row.PermissionID,
					"constraint", constraintName(err),
				)
			}
			return classifyPermissionInsertError(err)
		}
		if err := insertAudit(tx, input.Audit); err != nil {
			return err
		}
		return insertOutbox(tx, input.Outbox)
	})
	if err != nil {
		r.logWriteFailure("create", input.Permission.PermissionID, err)
		return mapStorageError(err)
	}
	return nil
}

func (r *Repository) TransitionPermission(ctx context.Context, input ports.TransitionInput) error {
	next := permissionModelFromEntity(input.Permission)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&permissionModel{}).
			Where("permission_id = ? AND status = ?", next.PermissionID, string(input.FromStatus)).
			Updates(map[string]any{
				"status":     next.Status,
				"granted_at": next.GrantedAt,
				"expires_at": next.ExpiresAt,
				"updated_at": next.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var current permissionModel
			err := tx.Where("permission_id = ?", next.PermissionID).First(&current).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainerrors.ErrPermissionNotFound
			}
			if err != nil {
				return err
			}
			return domainerrors.ErrInvalidState
		}
		if err := insertAudit(tx, input.Audit); err != nil {
			return err
		}
		return insertOutbox(tx, input.Outbox)
	})
	if err != nil {
		if !errors.Is(err, domainerrors.ErrInvalidState) && !errors.Is(err, domainerrors.ErrPermissionNotFound) {
			r.logWriteFailure("transition", input.Permission.PermissionID, err)
		}
		return mapStorageError(err)
	}
	return nil
}

func (r *Repository) GetPermission(ctx context.Context, permissionID string) (entities.AccessPermission, error) {
	var row permissionModel
	err := r.db.WithContext(ctx).
		Where("permission_id = ?", permissionID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.AccessPermission{}, domainerrors.ErrPermissionNotFound
		}
		return entities.AccessPermission{}, mapStorageError(err)
	}
	return row.toEntity(), nil
}

func (r *Repository) LatestPermission(ctx context.Context, documentID string, requesterID string) (entities.AccessPermission, bool, error) {
	var row permissionModel
	err := r.db.WithContext(ctx).
		Where("document_id = ? AND requester_id = ?", documentID, requesterID).
		Order(newestPermissionFirst).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.AccessPermission{}, false, nil
		}
		return entities.AccessPermission{}, false, mapStorageError(err)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) ListByOwner(ctx context.Context, ownerID string) ([]entities.AccessPermission, error) {
	return r.listPermissions(ctx, "owner_id = ?", ownerID)
}

func (r *Repository) ListByRequester(ctx context.Context, requesterID string) ([]entities.AccessPermission, error) {
	return r.listPermissions(ctx, "requester_id = ?", requesterID)
}

func (r *Repository) ListElapsedGrants(ctx context.Context, now time.Time, limit int) ([]entities.AccessPermission, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []permissionModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", string(entities.PermissionStatusActive), now.UTC()).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).
		Error; err != nil {
		return nil, mapStorageError(err)
	}
	return toEntities(rows), nil
}

func (r *Repository) CountByStatus(ctx context.Context) (entities.PermissionStats, error) {
	var rows []statusCountModel
	if err := r.db.WithContext(ctx).
		Model(&permissionModel{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).
		Error; err != nil {
		return entities.PermissionStats{}, mapStorageError(err)
	}
	var stats entities.PermissionStats
	for _, row := range rows {
		stats.Add(entities.PermissionStatus(row.Status), row.Count)
	}
	return stats, nil
}

func (r *Repository) Append(ctx context.Context, entry entities.AuditEntry) error {
	if err := insertAudit(r.db.WithContext(ctx), entry); err != nil {
		r.logger.Error("consent audit append failed",
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

func (r *Repository) Query(ctx context.Context, filter ports.AuditFilter) ([]entities.AuditEntry, error) {
	tx := r.db.WithContext(ctx).Model(&auditModel{})
	if filter.ActorID != "" {
		tx = tx.Where("actor_id = ?", filter.ActorID)
	}
	if filter.DocumentID != "" {
		tx = tx.Where("document_id = ?", filter.DocumentID)
	}
	if filter.Action != "" {
		tx = tx.Where("action = ?", string(filter.Action))
	}
	if filter.Since != nil {
		tx = tx.Where("occurred_at >= ?", filter.Since.UTC())
	}
	if filter.Until != nil {
		tx = tx.Where("occurred_at <= ?", filter.Until.UTC())
	}
	if filter.Limit > 0 {
		tx = tx.Limit(filter.Limit)
	}

	var rows []auditModel
	if err := tx.Order("occurred_at DESC").Order("seq DESC").Find(&rows).Error; err != nil {
		return nil, mapStorageError(err)
	}
	items := make([]entities.AuditEntry, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outbox.StatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).
		Error; err != nil {
		return nil, mapStorageError(err)
	}

	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toPort())
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", outboxID).
		Updates(map[string]any{
			"status":       outbox.StatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return mapStorageError(result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.New("outbox record not found")
	}
	return nil
}

func (r *Repository) listPermissions(ctx context.Context, where string, value string) ([]entities.AccessPermission, error) {
	var rows []permissionModel
	if err := r.db.WithContext(ctx).
		Where(where, value).
		Order(newestPermissionFirst).
		Find(&rows).
		Error; err != nil {
		return nil, mapStorageError(err)
	}
	return toEntities(rows), nil
}

func (r *Repository) logWriteFailure(operation string, permissionID string, err error) {
	if errors.Is(err, domainerrors.ErrDuplicateRequest) {
		return
	}
	r.logger.Error("consent permission write failed",
		"event", "consent_permission_write_failed",
		"module", "records-access/consent-service",
		"layer", "adapter",
		"operation", operation,
		"permission_id", permissionID,
		"error", err.Error(),
	)
}

func insertAudit(tx *gorm.DB, entry entities.AuditEntry) error {
	row := auditModelFromEntity(entry)
	if err := tx.Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrDuplicateAuditEntry
		}
		return err
	}
	return nil
}

func insertOutbox(tx *gorm.DB, message ports.OutboxMessage) error {
	row := outboxModel{
		OutboxID:     message.OutboxID,
		EventType:    message.EventType,
		PartitionKey: message.PartitionKey,
		Payload:      message.Payload,
		Status:       outbox.StatusPending,
		CreatedAt:    message.CreatedAt.UTC(),
	}
	return tx.Create(&row).Error
}

func toEntities(rows []permissionModel) []entities.AccessPermission {
	items := make([]entities.AccessPermission, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items
}
