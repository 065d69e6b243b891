package sqliteadapter

import (
	"context"
	"database/sql"
	"errors"

	domainerrors "medvault/contexts/records-access/consent-service/domain/errors"
)

func (s *Store) GetOwner(ctx context.Context, documentID string) (string, error) {
	var ownerID string
	err := s.db.QueryRowContext(ctx, `SELECT owner_id FROM medical_reports WHERE id = ?`, documentID).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domainerrors.ErrDocumentNotFound
	}
	if err != nil {
		return "", mapStorageError(err)
	}
	return ownerID, nil
}

// RegisterDocument upserts a medical_reports row. The consent core never calls it;
// it seeds embedded deployments and tests in place of the document service.
func (s *Store) RegisterDocument(ctx context.Context, documentID string, ownerID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO medical_reports (id, owner_id) VALUES (?, ?)
         ON CONFLICT(id) DO UPDATE SET owner_id = excluded.owner_id`, documentID, ownerID)
	return mapStorageError(err)
}
