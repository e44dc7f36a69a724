package validation

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rtoassure/backend/internal/auth"
	"github.com/rtoassure/backend/internal/domain"
	"github.com/rtoassure/backend/internal/httpapi"
	"github.com/rtoassure/backend/internal/repository"

	"github.com/google/uuid"
)

// Handler exposes the session and validation endpoints.
type Handler struct {
	service  *Service
	sessions repository.SessionRepository
}

func NewHTTPHandler(service *Service, sessions repository.SessionRepository) http.Handler {
	return &Handler{service: service, sessions: sessions}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/sessions"):
		h.handleCreateSession(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/sessions"):
		h.handleListSessions(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/records"):
		h.handleCreateRecords(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/run"):
		h.handleRun(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/revalidate"):
		h.handleRevalidate(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/questions"):
		h.handleRegenerateQuestions(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/workflow"):
		h.handleTriggerWorkflow(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/results"):
		h.handleResults(w, r)
	case r.Method == http.MethodGet:
		h.handleSessionStatus(w, r)
	default:
		httpapi.WriteError(w, http.StatusNotFound, errors.New("not found"))
	}
}

func (h *Handler) tenant(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	rtoID, ok := auth.RTOIDFromContext(r.Context())
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, errors.New("missing tenant scope"))
		return uuid.Nil, false
	}
	return rtoID, true
}

func sessionIDFromQuery(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if raw == "" {
		return uuid.Nil, fmt.Errorf("session_id is required")
	}
	return uuid.Parse(raw)
}

type createSessionPayload struct {
	UnitCode string `json:"unit_code" validate:"required"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	rtoID, ok := h.tenant(w, r)
	if !ok {
		return
	}

	var payload createSessionPayload
	if err := httpapi.DecodeAndValidate(r, &payload); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, err)
		return
	}

	session, err := h.sessions.Create(r.Context(), domain.NewValidationSession(rtoID, strings.ToUpper(strings.TrimSpace(payload.UnitCode))))
	if err != nil {
		httpapi.WriteError(w, validationStatus(err), err)
		return
	}
	httpapi.WriteSuccess(w, map[string]any{
		"session": session,
		"stage":   session.Stage(),
	})
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	rtoID, ok := h.tenant(w, r)
	if !ok {
		return
	}

	sessions, err := h.sessions.ListByRTO(r.Context(), rtoID, 50, 0)
	if err != nil {
		httpapi.WriteError(w, validationStatus(err), err)
		return
	}
	httpapi.WriteSuccess(w, map[string]any{"sessions": sessions})
}

func (h *Handler) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	rtoID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	sessionID, err := sessionIDFromQuery(r)
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, err)
		return
	}

	session, err := h.sessions.GetByID(r.Context(), sessionID)
	if err != nil {
		httpapi.WriteError(w, validationStatus(err), err)
		return
	}
	if session.RTOID != rtoID {
		httpapi.WriteError(w, http.StatusNotFound, repository.ErrNotFound)
		return
	}
	httpapi.WriteSuccess(w, map[string]any{
		"session": session,
		"stage":   session.Stage(),
	})
}

type sessionPayload struct {
	SessionID string `json:"session_id" validate:"required,uuid"`
}

func (h *Handler) sessionFromPayload(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	var payload sessionPayload
	if err := httpapi.DecodeAndValidate(r, &payload); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, err)
		return uuid.Nil, false
	}
	sessionID, err := uuid.Parse(payload.SessionID)
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid session_id: %w", err))
		return uuid.Nil, false
	}
	return sessionID, true
}

func (h *Handler) handleCreateRecords(w http.ResponseWriter, r *http.Request) {
	rtoID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	sessionID, ok := h.sessionFromPayload(w, r)
	if !ok {
		return
	}

	count, err := h.service.CreateRecords(r.Context(), rtoID, sessionID)
	if err != nil {
		httpapi.WriteError(w, validationStatus(err), err)
		return
	}
	httpapi.WriteSuccess(w, map[string]any{"requirements": count})
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	rtoID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	sessionID, ok := h.sessionFromPayload(w, r)
	if !ok {
		return
	}

	results, err := h.service.Run(r.Context(), rtoID, sessionID)
	if err != nil {
		httpapi.WriteError(w, validationStatus(err), err)
		return
	}
	httpapi.WriteSuccess(w, map[string]any{"results": results})
}

type requirementPayload struct {
	SessionID         string `json:"session_id" validate:"required,uuid"`
	RequirementType   string `json:"requirement_type" validate:"required"`
	RequirementNumber string `json:"requirement_number" validate:"required"`
}

func (h *Handler) requirementFromPayload(w http.ResponseWriter, r *http.Request) (uuid.UUID, domain.RequirementType, string, bool) {
	var payload requirementPayload
	if err := httpapi.DecodeAndValidate(r, &payload); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, err)
		return uuid.Nil, "", "", false
	}
	sessionID, err := uuid.Parse(payload.SessionID)
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid session_id: %w", err))
		return uuid.Nil, "", "", false
	}
	if !domain.IsValidRequirementType(payload.RequirementType) {
		httpapi.WriteError(w, http.StatusBadRequest, fmt.Errorf("unknown requirement type %q", payload.RequirementType))
		return uuid.Nil, "", "", false
	}
	return sessionID, domain.RequirementType(payload.RequirementType), strings.TrimSpace(payload.RequirementNumber), true
}

func (h *Handler) handleRevalidate(w http.ResponseWriter, r *http.Request) {
	rtoID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	sessionID, reqType, number, ok := h.requirementFromPayload(w, r)
	if !ok {
		return
	}

	result, err := h.service.Revalidate(r.Context(), rtoID, sessionID, reqType, number)
	if err != nil {
		httpapi.WriteError(w, validationStatus(err), err)
		return
	}
	httpapi.WriteSuccess(w, map[string]any{"result": result})
}

func (h *Handler) handleRegenerateQuestions(w http.ResponseWriter, r *http.Request) {
	rtoID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	sessionID, reqType, number, ok := h.requirementFromPayload(w, r)
	if !ok {
		return
	}

	result, err := h.service.RegenerateQuestions(r.Context(), rtoID, sessionID, reqType, number)
	if err != nil {
		httpapi.WriteError(w, validationStatus(err), err)
		return
	}
	httpapi.WriteSuccess(w, map[string]any{"result": result})
}

func (h *Handler) handleTriggerWorkflow(w http.ResponseWriter, r *http.Request) {
	rtoID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	sessionID, ok := h.sessionFromPayload(w, r)
	if !ok {
		return
	}

	if err := h.service.TriggerWorkflow(r.Context(), rtoID, sessionID); err != nil {
		httpapi.WriteError(w, validationStatus(err), err)
		return
	}
	httpapi.WriteSuccess(w, map[string]any{"triggered": true})
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	rtoID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	sessionID, err := sessionIDFromQuery(r)
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, err)
		return
	}

	results, err := h.service.Results(r.Context(), rtoID, sessionID)
	if err != nil {
		httpapi.WriteError(w, validationStatus(err), err)
		return
	}
	httpapi.WriteSuccess(w, map[string]any{"results": results})
}

func validationStatus(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrInsufficientCredits):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}
