package queries

import (
	"context"
	"sort"
	"strings"
	"time"

	"medvault/contexts/records-access/consent-service/domain/entities"
	domainerrors "medvault/contexts/records-access/consent-service/domain/errors"
	"medvault/contexts/records-access/consent-service/domain/services"
	"medvault/contexts/records-access/consent-service/ports"
)

// ListForOwnerUseCase returns every permission over the owner's documents, newest first.
// Listing reports stored status as-is and never applies derived expiry.
type ListForOwnerUseCase struct {
	Repository ports.PermissionRepository
}

func (u ListForOwnerUseCase) Execute(ctx context.Context, ownerID string) ([]entities.AccessPermission, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, domainerrors.ErrInvalidOwnerID
	}
	items, err := u.Repository.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(items)
	return items, nil
}

// ListForRequesterUseCase returns the requester's permissions, newest first.
type ListForRequesterUseCase struct {
	Repository ports.PermissionRepository
}

func (u ListForRequesterUseCase) Execute(ctx context.Context, requesterID string) ([]entities.AccessPermission, error) {
	if strings.TrimSpace(requesterID) == "" {
		return nil, domainerrors.ErrInvalidRequesterID
	}
	items, err := u.Repository.ListByRequester(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(items)
	return items, nil
}

// ListAccessibleDocumentsUseCase returns the requester's permissions that currently
// allow access, applying derived expiry.
type ListAccessibleDocumentsUseCase struct {
	Repository ports.PermissionRepository
	Clock      ports.Clock
}

func (u ListAccessibleDocumentsUseCase) Execute(ctx context.Context, requesterID string) ([]entities.AccessPermission, error) {
	if strings.TrimSpace(requesterID) == "" {
		return nil, domainerrors.ErrInvalidRequesterID
	}
	items, err := u.Repository.ListByRequester(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	now := u.now()
	accessible := make([]entities.AccessPermission, 0, len(items))
	for i := range items {
		item := items[i]
		if services.Decide(item.DocumentID, item.OwnerID, requesterID, &item, now).Allowed {
			accessible = append(accessible, item)
		}
	}
	sortNewestFirst(accessible)
	return accessible, nil
}

func (u ListAccessibleDocumentsUseCase) now() time.Time {
	if u.Clock != nil {
		return u.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

// PermissionStatsUseCase counts permissions by stored status.
type PermissionStatsUseCase struct {
	Repository ports.PermissionRepository
}

func (u PermissionStatsUseCase) Execute(ctx context.Context) (entities.PermissionStats, error) {
	return u.Repository.CountByStatus(ctx)
}

func sortNewestFirst(items []entities.AccessPermission) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}
