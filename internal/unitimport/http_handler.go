package unitimport

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rtoassure/backend/internal/auth"
	"github.com/rtoassure/backend/internal/domain"
	"github.com/rtoassure/backend/internal/httpapi"
	"github.com/rtoassure/backend/internal/repository"
)

const maxImportBytes = 16 << 20

// Handler exposes the requirements-import endpoints.
type Handler struct {
	service    *Service
	importLogs repository.ImportLogRepository
}

func NewHTTPHandler(service *Service, importLogs repository.ImportLogRepository) http.Handler {
	return &Handler{service: service, importLogs: importLogs}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost:
		h.handleImport(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/logs"):
		h.handleLogs(w, r)
	default:
		httpapi.WriteError(w, http.StatusNotFound, errors.New("not found"))
	}
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	rtoID, ok := auth.RTOIDFromContext(r.Context())
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, errors.New("tenant scope is required"))
		return
	}

	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, errors.New("expected multipart form upload"))
		return
	}

	unitCode := strings.TrimSpace(r.FormValue("unit_code"))
	if unitCode == "" {
		httpapi.WriteError(w, http.StatusBadRequest, errors.New("unit_code is required"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, errors.New("file is required"))
		return
	}
	defer file.Close()

	summary, err := h.service.Import(r.Context(), Request{
		RTOID:     rtoID,
		UnitCode:  unitCode,
		UnitTitle: strings.TrimSpace(r.FormValue("unit_title")),
		Release:   strings.TrimSpace(r.FormValue("release")),
		FileName:  header.Filename,
		Data:      file,
	})
	if err != nil {
		httpapi.WriteError(w, importStatus(err), err)
		return
	}

	httpapi.WriteSuccess(w, map[string]any{"import": summary})
}

func (h *Handler) handleLogs(w http.ResponseWriter, r *http.Request) {
	rtoID, ok := auth.RTOIDFromContext(r.Context())
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, errors.New("tenant scope is required"))
		return
	}

	query := r.URL.Query()
	unitCode := strings.ToUpper(strings.TrimSpace(query.Get("unit_code")))

	limit := 100
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httpapi.WriteError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	offset := 0
	if raw := strings.TrimSpace(query.Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			httpapi.WriteError(w, http.StatusBadRequest, errors.New("offset must be zero or positive"))
			return
		}
		offset = parsed
	}

	entries, err := h.importLogs.List(r.Context(), rtoID, unitCode, limit, offset)
	if err != nil {
		httpapi.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []domain.ImportLogEntry{}
	}
	httpapi.WriteSuccess(w, map[string]any{"logs": entries})
}

func importStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
