package httpadapter

import (
	"context"
	"log/slog"
	"time"

	application "medvault/contexts/records-access/consent-service/application"
	"medvault/contexts/records-access/consent-service/application/commands"
	"medvault/contexts/records-access/consent-service/application/queries"
	"medvault/contexts/records-access/consent-service/domain/entities"
	httptransport "medvault/contexts/records-access/consent-service/transport/http"
)

// Handler maps HTTP DTOs to application commands/queries.
type Handler struct {
	RequestAccess        commands.RequestAccessUseCase
	GrantAccess          commands.GrantAccessUseCase
	RevokeAccess         commands.RevokeAccessUseCase
	RecordDocumentAccess commands.RecordDocumentAccessUseCase
	CanAccess            queries.CanAccessUseCase
	ListForOwner         queries.ListForOwnerUseCase
	ListForRequester     queries.ListForRequesterUseCase
	ListAccessible       queries.ListAccessibleDocumentsUseCase
	QueryAudit           queries.QueryAuditUseCase
	Stats                queries.PermissionStatsUseCase
	Logger               *slog.Logger
}

// AuditQueryParams carries the optional filters of the audit route.
type AuditQueryParams struct {
	DocumentID string
	Action     string
	Since      *time.Time
	Until      *time.Time
	Limit      int
}

// RequestAccessHandler files a pending access request for the caller.
func (h Handler) RequestAccessHandler(
	ctx context.Context,
	requesterID string,
	request httptransport.RequestAccessRequest,
) (httptransport.PermissionMutationResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	logger.Debug("http consent request received",
		"event", "consent_http_request_received",
		"module", application.LogModule,
		"layer", "transport",
		"requester_id", requesterID,
		"document_id", request.DocumentID,
	)

	result, err := h.RequestAccess.Execute(ctx, commands.RequestAccessCommand{
		DocumentID:  request.DocumentID,
		RequesterID: requesterID,
		Reason:      request.Reason,
	})
	if err != nil {
		h.logFailure(logger, "consent_http_request_failed", requesterID, err)
		return httptransport.PermissionMutationResponse{}, err
	}
	return httptransport.PermissionMutationResponse{
		Permission:   toPermissionDTO(result.Permission),
		AuditEntryID: result.AuditEntryID,
	}, nil
}

// GrantAccessHandler activates a pending permission on behalf of the document owner.
func (h Handler) GrantAccessHandler(
	ctx context.Context,
	ownerID string,
	permissionID string,
	request httptransport.GrantAccessRequest,
) (httptransport.PermissionMutationResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	result, err := h.GrantAccess.Execute(ctx, commands.GrantAccessCommand{
		PermissionID:  permissionID,
		OwnerID:       ownerID,
		ExpiresInDays: request.ExpiresInDays,
	})
	if err != nil {
		h.logFailure(logger, "consent_http_grant_failed", ownerID, err)
		return httptransport.PermissionMutationResponse{}, err
	}
	return httptransport.PermissionMutationResponse{
		Permission:   toPermissionDTO(result.Permission),
		AuditEntryID: result.AuditEntryID,
	}, nil
}

func (h Handler) RevokeAccessHandler(
	ctx context.Context,
	ownerID string,
	permissionID string,
) (httptransport.PermissionMutationResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	result, err := h.RevokeAccess.Execute(ctx, commands.RevokeAccessCommand{
		PermissionID: permissionID,
		OwnerID:      ownerID,
	})
	if err != nil {
		h.logFailure(logger, "consent_http_revoke_failed", ownerID, err)
		return httptransport.PermissionMutationResponse{}, err
	}
	return httptransport.PermissionMutationResponse{
		Permission:   toPermissionDTO(result.Permission),
		AuditEntryID: result.AuditEntryID,
	}, nil
}

// ListOwnerRequestsHandler is the owner's inbox over every document they own.
func (h Handler) ListOwnerRequestsHandler(ctx context.Context, ownerID string) (httptransport.ListPermissionsResponse, error) {
	items, err := h.ListForOwner.Execute(ctx, ownerID)
	if err != nil {
		h.logFailure(application.ResolveLogger(h.Logger), "consent_http_list_owner_failed", ownerID, err)
		return httptransport.ListPermissionsResponse{}, err
	}
	return toListResponse(items), nil
}

func (h Handler) ListRequesterPermissionsHandler(ctx context.Context, requesterID string) (httptransport.ListPermissionsResponse, error) {
	items, err := h.ListForRequester.Execute(ctx, requesterID)
	if err != nil {
		h.logFailure(application.ResolveLogger(h.Logger), "consent_http_list_requester_failed", requesterID, err)
		return httptransport.ListPermissionsResponse{}, err
	}
	return toListResponse(items), nil
}

func (h Handler) ListAccessibleHandler(ctx context.Context, requesterID string) (httptransport.ListPermissionsResponse, error) {
	items, err := h.ListAccessible.Execute(ctx, requesterID)
	if err != nil {
		h.logFailure(application.ResolveLogger(h.Logger), "consent_http_list_accessible_failed", requesterID, err)
		return httptransport.ListPermissionsResponse{}, err
	}
	return toListResponse(items), nil
}

// CanAccessHandler reports the caller's current decision for a document.
func (h Handler) CanAccessHandler(
	ctx context.Context,
	requesterID string,
	documentID string,
) (httptransport.AccessDecisionResponse, error) {
	decision, err := h.CanAccess.Execute(ctx, queries.CanAccessQuery{
		DocumentID:  documentID,
		RequesterID: requesterID,
	})
	if err != nil {
		h.logFailure(application.ResolveLogger(h.Logger), "consent_http_can_access_failed", requesterID, err)
		return httptransport.AccessDecisionResponse{}, err
	}
	return toDecisionResponse(decision), nil
}

// RecordDocumentAccessHandler records a view, download or upload performed by the caller.
func (h Handler) RecordDocumentAccessHandler(
	ctx context.Context,
	actorID string,
	documentID string,
	request httptransport.RecordDocumentAccessRequest,
) (httptransport.RecordDocumentAccessResponse, error) {
	result, err := h.RecordDocumentAccess.Execute(ctx, commands.RecordDocumentAccessCommand{
		DocumentID: documentID,
		ActorID:    actorID,
		Action:     entities.AuditAction(request.Action),
	})
	if err != nil {
		h.logFailure(application.ResolveLogger(h.Logger), "consent_http_record_access_failed", actorID, err)
		return httptransport.RecordDocumentAccessResponse{}, err
	}
	return httptransport.RecordDocumentAccessResponse{
		Decision:     toDecisionResponse(result.Decision),
		AuditEntryID: result.AuditEntryID,
	}, nil
}

func (h Handler) QueryAuditHandler(
	ctx context.Context,
	viewerID string,
	params AuditQueryParams,
) (httptransport.QueryAuditResponse, error) {
	entries, err := h.QueryAudit.Execute(ctx, queries.QueryAuditQuery{
		ViewerID:   viewerID,
		DocumentID: params.DocumentID,
		Action:     entities.AuditAction(params.Action),
		Since:      params.Since,
		Until:      params.Until,
		Limit:      params.Limit,
	})
	if err != nil {
		h.logFailure(application.ResolveLogger(h.Logger), "consent_http_audit_failed", viewerID, err)
		return httptransport.QueryAuditResponse{}, err
	}
	items := make([]httptransport.AuditEntryDTO, 0, len(entries))
	for _, entry := range entries {
		items = append(items, httptransport.AuditEntryDTO{
			EntryID:      entry.EntryID,
			ActorID:      entry.ActorID,
			ActorRole:    string(entry.ActorRole),
			DocumentID:   entry.DocumentID,
			PermissionID: entry.PermissionID,
			Action:       string(entry.Action),
			Detail:       entry.Detail,
			Timestamp:    entry.Timestamp,
		})
	}
	return httptransport.QueryAuditResponse{Entries: items}, nil
}

func (h Handler) StatsHandler(ctx context.Context) (httptransport.PermissionStatsResponse, error) {
	stats, err := h.Stats.Execute(ctx)
	if err != nil {
		h.logFailure(application.ResolveLogger(h.Logger), "consent_http_stats_failed", "", err)
		return httptransport.PermissionStatsResponse{}, err
	}
	return httptransport.PermissionStatsResponse{
		Total:   stats.Total,
		Pending: stats.Pending,
		Active:  stats.Active,
		Revoked: stats.Revoked,
		Expired: stats.Expired,
	}, nil
}

func (h Handler) logFailure(logger *slog.Logger, event string, userID string, err error) {
	logger.Warn("http consent request failed",
		"event", event,
		"module", application.LogModule,
		"layer", "transport",
		"user_id", userID,
		"error", err.Error(),
	)
}

func toPermissionDTO(p entities.AccessPermission) httptransport.PermissionDTO {
	return httptransport.PermissionDTO{
		PermissionID: p.PermissionID,
		DocumentID:   p.DocumentID,
		RequesterID:  p.RequesterID,
		OwnerID:      p.OwnerID,
		Status:       string(p.Status),
		Reason:       p.Reason,
		CreatedAt:    p.CreatedAt,
		GrantedAt:    p.GrantedAt,
		ExpiresAt:    p.ExpiresAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func toListResponse(items []entities.AccessPermission) httptransport.ListPermissionsResponse {
	out := make([]httptransport.PermissionDTO, 0, len(items))
	for _, item := range items {
		out = append(out, toPermissionDTO(item))
	}
	return httptransport.ListPermissionsResponse{Permissions: out}
}

func toDecisionResponse(decision entities.AccessDecision) httptransport.AccessDecisionResponse {
	return httptransport.AccessDecisionResponse{
		DocumentID:   decision.DocumentID,
		RequesterID:  decision.RequesterID,
		Allowed:      decision.Allowed,
		Reason:       string(decision.Reason),
		PermissionID: decision.PermissionID,
		CheckedAt:    decision.CheckedAt,
	}
}
