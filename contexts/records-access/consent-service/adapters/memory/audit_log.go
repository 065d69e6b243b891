package memory

import (
	"context"
	"sort"
	"sync"

	"medvault/contexts/records-access/consent-service/domain/entities"
	domainerrors "medvault/contexts/records-access/consent-service/domain/errors"
	"medvault/contexts/records-access/consent-service/ports"
)

// AuditLog is an append-only in-memory audit trail.
type AuditLog struct {
	mu      sync.RWMutex
	entries []auditRow
	seq     int64
}

type auditRow struct {
	entities.AuditEntry
	Seq int64
}

func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

func (l *AuditLog) Append(_ context.Context, entry entities.AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, row := range l.entries {
		if row.EntryID == entry.EntryID {
			return domainerrors.ErrDuplicateAuditEntry
		}
	}
	l.seq++
	entry.Timestamp = entry.Timestamp.UTC()
	l.entries = append(l.entries, auditRow{AuditEntry: entry, Seq: l.seq})
	return nil
}

// Query returns matching entries newest first; ties on timestamp keep reverse append order.
func (l *AuditLog) Query(_ context.Context, filter ports.AuditFilter) ([]entities.AuditEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rows := make([]auditRow, 0)
	for _, row := range l.entries {
		if filter.ActorID != "" && row.ActorID != filter.ActorID {
			continue
		}
		if filter.DocumentID != "" && row.DocumentID != filter.DocumentID {
			continue
		}
		if filter.Action != "" && row.Action != filter.Action {
			continue
		}
		if filter.Since != nil && row.Timestamp.Before(filter.Since.UTC()) {
			continue
		}
		if filter.Until != nil && row.Timestamp.After(filter.Until.UTC()) {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Timestamp.Equal(rows[j].Timestamp) {
			return rows[i].Seq > rows[j].Seq
		}
		return rows[i].Timestamp.After(rows[j].Timestamp)
	})
	if filter.Limit > 0 && len(rows) > filter.Limit {
		rows = rows[:filter.Limit]
	}

	items := make([]entities.AuditEntry, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.AuditEntry)
	}
	return items, nil
}

// Len reports the number of appended entries.
func (l *AuditLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
