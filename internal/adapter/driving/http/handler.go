package httphandler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/keyledger/internal/application"
	"github.com/ericfisherdev/keyledger/internal/domain/model"
	"github.com/ericfisherdev/keyledger/internal/metrics"
)

const (
	// APIKeyHeader carries the presented key on protected endpoints.
	APIKeyHeader = "X-API-Key"

	maxBodyBytes = 1 << 16

	protectedResource = "protected-data"
)

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	lifecycle *application.LifecycleService
	audit     *application.AuditService
	logger    *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	lifecycle *application.LifecycleService,
	audit *application.AuditService,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		lifecycle: lifecycle,
		audit:     audit,
		logger:    logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with request ID, logging, recovery, and metrics middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/generate-key", h.GenerateKey)
	mux.HandleFunc("POST /api/validate-key", h.ValidateKey)
	mux.HandleFunc("POST /api/regenerate-key", h.RegenerateKey)
	mux.HandleFunc("DELETE /api/delete-key", h.DeleteKey)
	mux.HandleFunc("GET /api/keys", h.ListKeys)
	mux.HandleFunc("GET /api/protected-data", h.ProtectedData)
	mux.HandleFunc("GET /api/audit", h.ListAudit)
	mux.HandleFunc("GET /api/rotations", h.ListRotations)
	mux.HandleFunc("GET /api/health", h.Health)
	mux.Handle("GET /metrics", metrics.Handler())

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)
	wrapped = requestIDMiddleware(wrapped)
	wrapped = metrics.InstrumentHandler(wrapped)

	return wrapped
}

// callerFrom describes the requester for audit purposes.
func callerFrom(r *http.Request) model.Caller {
	return model.Caller{
		Origin:    r.RemoteAddr,
		ClientID:  r.UserAgent(),
		RequestID: requestIDFrom(r.Context()),
	}
}

// decodeBody reads a bounded JSON body into v. An empty body leaves v zeroed.
// An undecodable body is audited as a rejected call on endpoint and answered
// with 400.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, endpoint string, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}

	h.logger.Debug("invalid request body", "path", r.URL.Path, "error", err)
	h.writeServiceError(w, r, h.lifecycle.RejectRequest(r.Context(), callerFrom(r), endpoint, "invalid request body"))
	return false
}

// writeServiceError maps a typed service error to its HTTP status.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		vErr *model.ValidationError
		iErr *model.InvalidCredentialError
		nErr *model.NotFoundError
	)

	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, vErr.Message)
	case errors.As(err, &iErr):
		writeError(w, http.StatusUnauthorized, iErr.Message)
	case errors.As(err, &nErr):
		writeError(w, http.StatusNotFound, nErr.Message)
	default:
		h.logger.Error("request failed",
			"path", r.URL.Path,
			"request_id", requestIDFrom(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// GenerateKey issues a new credential and discloses its key and secret once.
func (h *Handler) GenerateKey(w http.ResponseWriter, r *http.Request) {
	var req IssueRequest
	if !h.decodeBody(w, r, application.EndpointIssue, &req) {
		return
	}

	issued, err := h.lifecycle.Issue(r.Context(), callerFrom(r), req.owner(), req.Label)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toIssueResponse(*issued))
}

// ValidateKey checks a presented key and returns the credential's metadata.
func (h *Handler) ValidateKey(w http.ResponseWriter, r *http.Request) {
	var req KeyRequest
	if !h.decodeBody(w, r, application.EndpointValidate, &req) {
		return
	}

	info, err := h.lifecycle.Validate(r.Context(), callerFrom(r), req.key())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toValidateResponse(*info))
}

// RegenerateKey rotates a credential and discloses the replacement pair once.
func (h *Handler) RegenerateKey(w http.ResponseWriter, r *http.Request) {
	var req KeyRequest
	if !h.decodeBody(w, r, application.EndpointRotate, &req) {
		return
	}

	oldKey := strings.TrimSpace(req.key())
	rotated, err := h.lifecycle.Rotate(r.Context(), callerFrom(r), oldKey, req.Reason)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toRotateResponse(oldKey, *rotated))
}

// DeleteKey revokes a credential.
func (h *Handler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	var req KeyRequest
	if !h.decodeBody(w, r, application.EndpointRevoke, &req) {
		return
	}

	if err := h.lifecycle.Revoke(r.Context(), callerFrom(r), req.key()); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "api key deleted"})
}

// ListKeys returns stored credentials without any key material.
func (h *Handler) ListKeys(w http.ResponseWriter, r *http.Request) {
	creds, err := h.lifecycle.List(r.Context(), callerFrom(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	keys := make([]CredentialResponse, 0, len(creds))
	for _, c := range creds {
		keys = append(keys, toCredentialResponse(c))
	}

	writeJSON(w, http.StatusOK, ListResponse{Success: true, Count: len(keys), Keys: keys})
}

// ProtectedData serves a resource gated behind the X-API-Key header. Every
// refusal, including a missing header, is a 401.
func (h *Handler) ProtectedData(w http.ResponseWriter, r *http.Request) {
	info, err := h.lifecycle.AccessProtectedResource(r.Context(), callerFrom(r), r.Header.Get(APIKeyHeader), protectedResource)
	if err != nil {
		var vErr *model.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, http.StatusUnauthorized, "api key required")
			return
		}
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ProtectedResponse{
		Success: true,
		Message: "access granted",
		Owner:   info.Owner,
		Label:   info.Label,
		Data:    "protected content for " + info.Owner,
	})
}

// ListAudit returns audit entries filtered by subject, event, and outcome.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, ok := parseLimit(w, q.Get("limit"))
	if !ok {
		return
	}

	entries, err := h.audit.ListEntries(r.Context(), model.AuditFilter{
		SubjectID: q.Get("subject"),
		EventType: model.EventType(q.Get("event")),
		Outcome:   model.Outcome(q.Get("outcome")),
		Limit:     limit,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, toAuditEntryResponse(e))
	}

	writeJSON(w, http.StatusOK, AuditListResponse{Success: true, Count: len(resp), Entries: resp})
}

// ListRotations returns rotation edges filtered by replacement or retired ID.
func (h *Handler) ListRotations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, ok := parseLimit(w, q.Get("limit"))
	if !ok {
		return
	}

	edges, err := h.audit.ListRotations(r.Context(), model.RotationFilter{
		ReplacementID: q.Get("replacement"),
		RetiredID:     q.Get("retired"),
		Limit:         limit,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := make([]RotationResponse, 0, len(edges))
	for _, e := range edges {
		resp = append(resp, toRotationResponse(e))
	}

	writeJSON(w, http.StatusOK, RotationListResponse{Success: true, Count: len(resp), Rotations: resp})
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Success: true,
		Status:  "ok",
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

func parseLimit(w http.ResponseWriter, raw string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return 0, false
	}
	return limit, true
}
