package indexing

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rtoassure/backend/internal/auth"
	"github.com/rtoassure/backend/internal/httpapi"
	"github.com/rtoassure/backend/internal/repository"

	"github.com/google/uuid"
)

// Handler exposes the document upload, reindex and operation-status endpoints.
type Handler struct {
	service    *Service
	reconciler *Reconciler
	documents  repository.DocumentRepository
	sessions   repository.SessionRepository
}

func NewHTTPHandler(service *Service, reconciler *Reconciler, documents repository.DocumentRepository, sessions repository.SessionRepository) http.Handler {
	return &Handler{service: service, reconciler: reconciler, documents: documents, sessions: sessions}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/upload"):
		h.handleUpload(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/reindex"):
		h.handleReindex(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/query"):
		h.handleQuery(w, r)
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/operations/"):
		h.handleOperationStatus(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/operations"):
		h.handleSessionOperations(w, r)
	case r.Method == http.MethodGet:
		h.handleList(w, r)
	default:
		httpapi.WriteError(w, http.StatusNotFound, errors.New("not found"))
	}
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	rtoID, ok := auth.RTOIDFromContext(r.Context())
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, errors.New("missing tenant scope"))
		return
	}

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid multipart form: %w", err))
		return
	}
	sessionID, err := uuid.Parse(strings.TrimSpace(r.FormValue("session_id")))
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid session_id: %w", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, fmt.Errorf("missing file: %w", err))
		return
	}
	defer file.Close()

	doc, op, err := h.service.Upload(r.Context(), rtoID, sessionID, header.Filename, file)
	if err != nil {
		httpapi.WriteError(w, statusForError(err), err)
		return
	}
	httpapi.WriteSuccess(w, map[string]any{
		"document":  doc,
		"operation": op,
	})
}

type reindexPayload struct {
	DocumentID string `json:"document_id" validate:"required,uuid"`
}

func (h *Handler) handleReindex(w http.ResponseWriter, r *http.Request) {
	rtoID, ok := auth.RTOIDFromContext(r.Context())
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, errors.New("missing tenant scope"))
		return
	}

	var payload reindexPayload
	if err := httpapi.DecodeAndValidate(r, &payload); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, err)
		return
	}
	documentID, err := uuid.Parse(payload.DocumentID)
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid document_id: %w", err))
		return
	}

	op, err := h.service.Reindex(r.Context(), rtoID, documentID)
	if err != nil {
		httpapi.WriteError(w, statusForError(err), err)
		return
	}
	httpapi.WriteSuccess(w, map[string]any{"operation": op})
}

type queryPayload struct {
	Query string `json:"query" validate:"required"`
	Limit int    `json:"limit"`
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.RTOIDFromContext(r.Context()); !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, errors.New("missing tenant scope"))
		return
	}

	var payload queryPayload
	if err := httpapi.DecodeAndValidate(r, &payload); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, err)
		return
	}

	hits, err := h.service.Query(r.Context(), payload.Query, payload.Limit)
	if err != nil {
		httpapi.WriteError(w, statusForError(err), err)
		return
	}
	httpapi.WriteSuccess(w, map[string]any{"hits": hits})
}

// handleOperationStatus reconciles and returns one operation.
func (h *Handler) handleOperationStatus(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	idx := strings.LastIndex(path, "/")
	if idx == -1 || idx == len(path)-1 {
		httpapi.WriteError(w, http.StatusBadRequest, errors.New("missing operation identifier"))
		return
	}
	operationID, err := uuid.Parse(path[idx+1:])
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid operation identifier: %w", err))
		return
	}

	op, err := h.reconciler.Check(r.Context(), operationID)
	if err != nil {
		httpapi.WriteError(w, statusForError(err), err)
		return
	}
	httpapi.WriteSuccess(w, map[string]any{"operation": op})
}

// scopedSession resolves the session_id query parameter and hides sessions
// that belong to another tenant.
func (h *Handler) scopedSession(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	rtoID, ok := auth.RTOIDFromContext(r.Context())
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, errors.New("missing tenant scope"))
		return uuid.Nil, false
	}
	sessionID, err := uuid.Parse(strings.TrimSpace(r.URL.Query().Get("session_id")))
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid session_id: %w", err))
		return uuid.Nil, false
	}
	session, err := h.sessions.GetByID(r.Context(), sessionID)
	if err != nil {
		httpapi.WriteError(w, statusForError(err), err)
		return uuid.Nil, false
	}
	if session.RTOID != rtoID {
		httpapi.WriteError(w, http.StatusNotFound, repository.ErrNotFound)
		return uuid.Nil, false
	}
	return sessionID, true
}

// handleSessionOperations reconciles every open operation for a session.
func (h *Handler) handleSessionOperations(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.scopedSession(w, r)
	if !ok {
		return
	}

	operations, err := h.reconciler.CheckAll(r.Context(), sessionID)
	if err != nil {
		httpapi.WriteError(w, statusForError(err), err)
		return
	}
	httpapi.WriteSuccess(w, map[string]any{"operations": operations})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.scopedSession(w, r)
	if !ok {
		return
	}

	documents, err := h.documents.ListBySession(r.Context(), sessionID)
	if err != nil {
		httpapi.WriteError(w, statusForError(err), err)
		return
	}
	httpapi.WriteSuccess(w, map[string]any{"documents": documents})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrInsufficientCredits):
		return http.StatusPaymentRequired
	case errors.Is(err, repository.ErrOperationStatusConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
