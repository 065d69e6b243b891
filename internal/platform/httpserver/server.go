package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	consent "medvault/contexts/records-access/consent-service"
	consenthttpadapter "medvault/contexts/records-access/consent-service/adapters/http"
	consenterrors "medvault/contexts/records-access/consent-service/domain/errors"
	consenthttp "medvault/contexts/records-access/consent-service/transport/http"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "medvault/internal/platform/httpserver/docs"
)

type Server struct {
	mux     *http.ServeMux
	logger  *slog.Logger
	addr    string
	consent consent.Module
	server  *http.Server
}

func New(consentModule consent.Module, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:     http.NewServeMux(),
		logger:  logger,
		addr:    addr,
		consent: consentModule,
	}
	s.registerRoutes()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("POST /api/access/v1/requests", s.handleRequestAccess)
	s.mux.HandleFunc("GET /api/access/v1/requests", s.handleListOwnerRequests)
	s.mux.HandleFunc("GET /api/access/v1/permissions", s.handleListRequesterPermissions)
	s.mux.HandleFunc("GET /api/access/v1/permissions/accessible", s.handleListAccessible)
	s.mux.HandleFunc("POST /api/access/v1/permissions/{permission_id}/grant", s.handleGrantAccess)
	s.mux.HandleFunc("POST /api/access/v1/permissions/{permission_id}/revoke", s.handleRevokeAccess)
	s.mux.HandleFunc("GET /api/access/v1/documents/{document_id}/access", s.handleCanAccess)
	s.mux.HandleFunc("POST /api/access/v1/documents/{document_id}/events", s.handleRecordDocumentAccess)
	s.mux.HandleFunc("GET /api/access/v1/audit", s.handleQueryAudit)
	s.mux.HandleFunc("GET /api/access/v1/stats", s.handleStats)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRequestAccess godoc
// @Summary Request access to a document
// @Tags consent
// @Accept json
// @Produce json
// @Param request body consenthttp.RequestAccessRequest true "access request"
// @Success 201 {object} consenthttp.PermissionMutationResponse
// @Failure 400 {object} consenthttp.ErrorResponse
// @Failure 404 {object} consenthttp.ErrorResponse
// @Failure 409 {object} consenthttp.ErrorResponse
// @Router /api/access/v1/requests [post]
func (s *Server) handleRequestAccess(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireConsentCaller(w, r)
	if !ok {
		return
	}
	var req consenthttp.RequestAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeConsentError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.consent.Handler.RequestAccessHandler(r.Context(), userID, req)
	if err != nil {
		writeConsentDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListOwnerRequests(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireConsentCaller(w, r)
	if !ok {
		return
	}
	resp, err := s.consent.Handler.ListOwnerRequestsHandler(r.Context(), userID)
	if err != nil {
		writeConsentDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListRequesterPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireConsentCaller(w, r)
	if !ok {
		return
	}
	resp, err := s.consent.Handler.ListRequesterPermissionsHandler(r.Context(), userID)
	if err != nil {
		writeConsentDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListAccessible(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireConsentCaller(w, r)
	if !ok {
		return
	}
	resp, err := s.consent.Handler.ListAccessibleHandler(r.Context(), userID)
	if err != nil {
		writeConsentDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGrantAccess godoc
// @Summary Grant a pending access request
// @Tags consent
// @Accept json
// @Produce json
// @Param permission_id path string true "permission id"
// @Param request body consenthttp.GrantAccessRequest false "optional expiry"
// @Success 200 {object} consenthttp.PermissionMutationResponse
// @Failure 403 {object} consenthttp.ErrorResponse
// @Failure 409 {object} consenthttp.ErrorResponse
// @Router /api/access/v1/permissions/{permission_id}/grant [post]
func (s *Server) handleGrantAccess(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireConsentCaller(w, r)
	if !ok {
		return
	}
	// The body is optional; an empty one, chunked or not, means no expiry.
	var req consenthttp.GrantAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeConsentError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.consent.Handler.GrantAccessHandler(r.Context(), userID, r.PathValue("permission_id"), req)
	if err != nil {
		writeConsentDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRevokeAccess(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireConsentCaller(w, r)
	if !ok {
		return
	}
	resp, err := s.consent.Handler.RevokeAccessHandler(r.Context(), userID, r.PathValue("permission_id"))
	if err != nil {
		writeConsentDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCanAccess godoc
// @Summary Check whether the caller may access a document now
// @Tags consent
// @Produce json
// @Param document_id path string true "document id"
// @Success 200 {object} consenthttp.AccessDecisionResponse
// @Failure 404 {object} consenthttp.ErrorResponse
// @Router /api/access/v1/documents/{document_id}/access [get]
func (s *Server) handleCanAccess(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireConsentCaller(w, r)
	if !ok {
		return
	}
	resp, err := s.consent.Handler.CanAccessHandler(r.Context(), userID, r.PathValue("document_id"))
	if err != nil {
		writeConsentDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecordDocumentAccess(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireConsentCaller(w, r)
	if !ok {
		return
	}
	var req consenthttp.RecordDocumentAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeConsentError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.consent.Handler.RecordDocumentAccessHandler(r.Context(), userID, r.PathValue("document_id"), req)
	if err != nil {
		writeConsentDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleQueryAudit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireConsentCaller(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	params := consenthttpadapter.AuditQueryParams{
		DocumentID: query.Get("document_id"),
		Action:     query.Get("action"),
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeConsentError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		params.Limit = limit
	}
	for name, target := range map[string]**time.Time{"since": &params.Since, "until": &params.Until} {
		raw := query.Get(name)
		if raw == "" {
			continue
		}
		value, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeConsentError(w, http.StatusBadRequest, "invalid_"+name, name+" must be an RFC 3339 timestamp")
			return
		}
		*target = &value
	}

	resp, err := s.consent.Handler.QueryAuditHandler(r.Context(), userID, params)
	if err != nil {
		writeConsentDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireConsentCaller(w, r); !ok {
		return
	}
	resp, err := s.consent.Handler.StatsHandler(r.Context())
	if err != nil {
		writeConsentDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// requireConsentCaller checks the bearer token, request id and caller identity headers in that order.
func requireConsentCaller(w http.ResponseWriter, r *http.Request) (string, bool) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		writeConsentError(w, http.StatusUnauthorized, "unauthorized", "Authorization bearer token is required")
		return "", false
	}
	if strings.TrimSpace(r.Header.Get("X-Request-Id")) == "" {
		writeConsentError(w, http.StatusBadRequest, "request_id_required", "X-Request-Id header is required")
		return "", false
	}
	userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if userID == "" {
		writeConsentError(w, http.StatusUnauthorized, "user_required", "X-User-Id header is required")
		return "", false
	}
	return userID, true
}

func writeConsentDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, consenterrors.ErrInvalidDocumentID),
		errors.Is(err, consenterrors.ErrInvalidRequesterID),
		errors.Is(err, consenterrors.ErrInvalidOwnerID),
		errors.Is(err, consenterrors.ErrInvalidPermissionID),
		errors.Is(err, consenterrors.ErrReasonRequired),
		errors.Is(err, consenterrors.ErrInvalidExpiry),
		errors.Is(err, consenterrors.ErrSelfRequest),
		errors.Is(err, consenterrors.ErrInvalidAccessAction):
		writeConsentError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, consenterrors.ErrNotOwner):
		writeConsentError(w, http.StatusForbidden, "not_owner", err.Error())
	case errors.Is(err, consenterrors.ErrAccessDenied):
		writeConsentError(w, http.StatusForbidden, "access_denied", err.Error())
	case errors.Is(err, consenterrors.ErrPermissionNotFound):
		writeConsentError(w, http.StatusNotFound, "permission_not_found", err.Error())
	case errors.Is(err, consenterrors.ErrDocumentNotFound):
		writeConsentError(w, http.StatusNotFound, "document_not_found", err.Error())
	case errors.Is(err, consenterrors.ErrDuplicateRequest):
		writeConsentError(w, http.StatusConflict, "duplicate_request", err.Error())
	case errors.Is(err, consenterrors.ErrInvalidState):
		writeConsentError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, consenterrors.ErrStorageUnavailable):
		writeConsentError(w, http.StatusServiceUnavailable, "storage_unavailable", "storage temporarily unavailable")
	default:
		writeConsentError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeConsentError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, consenthttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
