package memory

import (
	"context"
	"sync"

	domainerrors "medvault/contexts/records-access/consent-service/domain/errors"
)

// DocumentRegistry is a development/testing stand-in for the document owner lookup.
type DocumentRegistry struct {
	mu     sync.RWMutex
	owners map[string]string
}

func NewDocumentRegistry() *DocumentRegistry {
	return &DocumentRegistry{owners: make(map[string]string)}
}

// Register records ownerID as the owning subject of documentID.
func (r *DocumentRegistry) Register(documentID string, ownerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[documentID] = ownerID
}

func (r *DocumentRegistry) GetOwner(_ context.Context, documentID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ownerID, ok := r.owners[documentID]
	if !ok {
		return "", domainerrors.ErrDocumentNotFound
	}
	return ownerID, nil
}
