package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"medvault/contexts/records-access/consent-service/domain/entities"
	domainerrors "medvault/contexts/records-access/consent-service/domain/errors"
	"medvault/contexts/records-access/consent-service/ports"

	"github.com/google/uuid"
)

// Store is an in-memory adapter implementing the permission and outbox ports.
// It is intended for tests and local development wiring.
//
// Every mutation appends its audit entry before the permission change is applied,
// all under the store lock, so a failed append leaves the store untouched.
type Store struct {
	mu sync.RWMutex

	audit       ports.AuditLog
	permissions map[string]permissionRow
	outbox      map[string]outboxRow
	seq         int64
}

type permissionRow struct {
	entities.AccessPermission
	Seq int64
}

type outboxRow struct {
	ports.OutboxMessage
	Seq         int64
	PublishedAt *time.Time
}

// NewStore builds an empty store writing audit entries to auditLog.
// A nil auditLog gets a fresh in-memory AuditLog.
func NewStore(auditLog ports.AuditLog) *Store {
	if auditLog == nil {
		auditLog = NewAuditLog()
	}
	return &Store{
		audit:       auditLog,
		permissions: make(map[string]permissionRow),
		outbox:      make(map[string]outboxRow),
	}
}

func (s *Store) CreatePermission(ctx context.Context, input ports.CreatePermissionInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	permission := input.Permission
	if _, exists := s.permissions[permission.PermissionID]; exists {
		return domainerrors.ErrDuplicateRequest
	}
	for _, row := range s.permissions {
		if row.DocumentID == permission.DocumentID &&
			row.RequesterID == permission.RequesterID &&
			row.Status.IsLive() {
			return domainerrors.ErrDuplicateRequest
		}
	}
	if err := s.checkOutbox(input.Outbox.OutboxID); err != nil {
		return err
	}
	if err := s.audit.Append(ctx, input.Audit); err != nil {
		return err
	}

	s.seq++
	s.permissions[permission.PermissionID] = permissionRow{AccessPermission: clonePermission(permission), Seq: s.seq}
	s.appendOutbox(input.Outbox)
	return nil
}

func (s *Store) TransitionPermission(ctx context.Context, input ports.TransitionInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.permissions[input.Permission.PermissionID]
	if !ok {
		return domainerrors.ErrPermissionNotFound
	}
	if row.Status != input.FromStatus {
		return domainerrors.ErrInvalidState
	}
	if err := s.checkOutbox(input.Outbox.OutboxID); err != nil {
		return err
	}
	if err := s.audit.Append(ctx, input.Audit); err != nil {
		return err
	}

	row.AccessPermission = clonePermission(input.Permission)
	s.permissions[row.PermissionID] = row
	s.appendOutbox(input.Outbox)
	return nil
}

func (s *Store) GetPermission(_ context.Context, permissionID string) (entities.AccessPermission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.permissions[permissionID]
	if !ok {
		return entities.AccessPermission{}, domainerrors.ErrPermissionNotFound
	}
	return clonePermission(row.AccessPermission), nil
}

func (s *Store) LatestPermission(_ context.Context, documentID string, requesterID string) (entities.AccessPermission, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		latest permissionRow
		found  bool
	)
	for _, row := range s.permissions {
		if row.DocumentID != documentID || row.RequesterID != requesterID {
			continue
		}
		if !found || newerRow(row, latest) {
			latest = row
			found = true
		}
	}
	if !found {
		return entities.AccessPermission{}, false, nil
	}
	return clonePermission(latest.AccessPermission), true, nil
}

func (s *Store) ListByOwner(_ context.Context, ownerID string) ([]entities.AccessPermission, error) {
	return s.list(func(p entities.AccessPermission) bool { return p.OwnerID == ownerID }), nil
}

func (s *Store) ListByRequester(_ context.Context, requesterID string) ([]entities.AccessPermission, error) {
	return s.list(func(p entities.AccessPermission) bool { return p.RequesterID == requesterID }), nil
}

// ListElapsedGrants returns Active permissions whose expiry is strictly before now, oldest expiry first.
func (s *Store) ListElapsedGrants(_ context.Context, now time.Time, limit int) ([]entities.AccessPermission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]entities.AccessPermission, 0)
	for _, row := range s.permissions {
		if row.Status == entities.PermissionStatusActive && row.ExpiredAt(now) {
			items = append(items, clonePermission(row.AccessPermission))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].ExpiresAt.Before(*items[j].ExpiresAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) CountByStatus(_ context.Context) (entities.PermissionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats entities.PermissionStats
	for _, row := range s.permissions {
		stats.Add(row.Status, 1)
	}
	return stats, nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows := make([]outboxRow, 0, len(s.outbox))
	for _, row := range s.outbox {
		if row.PublishedAt == nil {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Seq < rows[j].Seq
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.OutboxMessage)
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, publishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.outbox[outboxID]
	if !ok {
		return errors.New("outbox record not found")
	}
	value := publishedAt.UTC()
	row.PublishedAt = &value
	s.outbox[outboxID] = row
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (s *Store) list(match func(entities.AccessPermission) bool) []entities.AccessPermission {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]permissionRow, 0)
	for _, row := range s.permissions {
		if match(row.AccessPermission) {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		return newerRow(rows[i], rows[j])
	})
	items := make([]entities.AccessPermission, 0, len(rows))
	for _, row := range rows {
		items = append(items, clonePermission(row.AccessPermission))
	}
	return items
}

func (s *Store) checkOutbox(outboxID string) error {
	if _, exists := s.outbox[outboxID]; exists {
		return errors.New("outbox record already exists")
	}
	return nil
}

func (s *Store) appendOutbox(message ports.OutboxMessage) {
	s.seq++
	message.Payload = append([]byte(nil), message.Payload...)
	s.outbox[message.OutboxID] = outboxRow{OutboxMessage: message, Seq: s.seq}
}

func newerRow(a permissionRow, b permissionRow) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.Seq > b.Seq
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func clonePermission(p entities.AccessPermission) entities.AccessPermission {
	if p.GrantedAt != nil {
		value := *p.GrantedAt
		p.GrantedAt = &value
	}
	if p.ExpiresAt != nil {
		value := *p.ExpiresAt
		p.ExpiresAt = &value
	}
	return p
}
