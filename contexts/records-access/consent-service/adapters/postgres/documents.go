package postgresadapter

import (
	"context"
	"errors"

	domainerrors "medvault/contexts/records-access/consent-service/domain/errors"

	"gorm.io/gorm"
)

// DocumentRegistry reads document ownership from medical_reports, which the
// document-serving collaborator owns. This adapter never writes to it.
type DocumentRegistry struct {
	db *gorm.DB
}

func NewDocumentRegistry(db *gorm.DB) *DocumentRegistry {
	return &DocumentRegistry{db: db}
}

func (r *DocumentRegistry) GetOwner(ctx context.Context, documentID string) (string, error) {
	var row documentModel
	err := r.db.WithContext(ctx).
		Where("id = ?", documentID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", domainerrors.ErrDocumentNotFound
		}
		return "", mapStorageError(err)
	}
	return row.OwnerID, nil
}
