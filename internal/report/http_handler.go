package report

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rtoassure/backend/internal/auth"
	"github.com/rtoassure/backend/internal/domain"
	"github.com/rtoassure/backend/internal/httpapi"
	"github.com/rtoassure/backend/internal/repository"

	"github.com/google/uuid"
)

// Handler exposes the report job endpoints.
type Handler struct {
	service *Service
}

func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/cancel"):
		h.handleCancel(w, r)
	case r.Method == http.MethodPost:
		h.handleQueue(w, r)
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/files/"):
		h.handleDownload(w, r)
	case r.Method == http.MethodGet && trailingID(r.URL.Path) != uuid.Nil:
		h.handleGet(w, r)
	case r.Method == http.MethodGet:
		h.handleList(w, r)
	default:
		httpapi.WriteError(w, http.StatusNotFound, errors.New("not found"))
	}
}

type queuePayload struct {
	SessionID string `json:"session_id" validate:"required,uuid"`
	Format    string `json:"format" validate:"required,oneof=xlsx csv"`
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	rtoID, ok := auth.RTOIDFromContext(r.Context())
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, errors.New("tenant scope is required"))
		return
	}

	var payload queuePayload
	if err := httpapi.DecodeAndValidate(r, &payload); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, err)
		return
	}
	sessionID, err := uuid.Parse(payload.SessionID)
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, errors.New("session_id must be a uuid"))
		return
	}

	job, err := h.service.Queue(r.Context(), QueueRequest{
		RTOID:     rtoID,
		SessionID: sessionID,
		Format:    domain.ReportFormat(payload.Format),
	})
	if err != nil {
		httpapi.WriteError(w, reportStatus(err), err)
		return
	}
	httpapi.WriteSuccess(w, jobView(h.service, job))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	jobID := trailingID(r.URL.Path)
	job, err := h.service.Get(r.Context(), jobID)
	if err != nil {
		httpapi.WriteError(w, reportStatus(err), err)
		return
	}
	if !scopedToRequest(r, job) {
		httpapi.WriteError(w, http.StatusNotFound, repository.ErrNotFound)
		return
	}
	httpapi.WriteSuccess(w, jobView(h.service, job))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	rtoID, ok := auth.RTOIDFromContext(r.Context())
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, errors.New("tenant scope is required"))
		return
	}

	query := r.URL.Query()
	var statuses []domain.ReportJobStatus
	for _, raw := range query["status"] {
		for _, value := range strings.Split(raw, ",") {
			value = strings.TrimSpace(value)
			if value != "" {
				statuses = append(statuses, domain.ReportJobStatus(value))
			}
		}
	}

	limit := 50
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

	jobs, err := h.service.List(r.Context(), &rtoID, statuses, limit, offset)
	if err != nil {
		httpapi.WriteError(w, reportStatus(err), err)
		return
	}
	views := make([]map[string]any, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, jobView(h.service, job))
	}
	httpapi.WriteSuccess(w, map[string]any{"jobs": views})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.TrimSuffix(r.URL.Path, "/cancel")
	jobID := trailingID(trimmed)
	if jobID == uuid.Nil {
		httpapi.WriteError(w, http.StatusBadRequest, errors.New("job id is required"))
		return
	}

	job, err := h.service.Get(r.Context(), jobID)
	if err != nil {
		httpapi.WriteError(w, reportStatus(err), err)
		return
	}
	if !scopedToRequest(r, job) {
		httpapi.WriteError(w, http.StatusNotFound, repository.ErrNotFound)
		return
	}

	job, err = h.service.Cancel(r.Context(), jobID)
	if err != nil {
		httpapi.WriteError(w, reportStatus(err), err)
		return
	}
	httpapi.WriteSuccess(w, jobView(h.service, job))
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	jobID := trailingID(r.URL.Path)
	if jobID == uuid.Nil {
		httpapi.WriteError(w, http.StatusBadRequest, errors.New("job id is required"))
		return
	}

	job, err := h.service.Get(r.Context(), jobID)
	if err != nil {
		httpapi.WriteError(w, reportStatus(err), err)
		return
	}
	if err := h.service.ValidateDownloadToken(jobID, r.URL.Query().Get("token")); err != nil {
		httpapi.WriteError(w, http.StatusForbidden, err)
		return
	}

	file, err := h.service.OpenJobFile(job)
	if err != nil {
		httpapi.WriteError(w, http.StatusConflict, err)
		return
	}
	defer file.Close()

	mime := "application/octet-stream"
	if job.FileMimeType != nil {
		mime = *job.FileMimeType
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", downloadName(job)))
	if job.FileByteSize != nil {
		w.Header().Set("Content-Length", strconv.FormatInt(*job.FileByteSize, 10))
	}
	if _, err := io.Copy(w, file); err != nil {
		return
	}
}

func downloadName(job domain.ReportJob) string {
	return fmt.Sprintf("compliance-report-%s.%s", job.ID.String(), job.Format)
}

// scopedToRequest hides jobs belonging to other tenants.
func scopedToRequest(r *http.Request, job domain.ReportJob) bool {
	rtoID, ok := auth.RTOIDFromContext(r.Context())
	if !ok {
		return false
	}
	return job.RTOID == rtoID
}

func jobView(service *Service, job domain.ReportJob) map[string]any {
	view := map[string]any{"job": job}
	if url, err := service.BuildDownloadURL(job); err == nil && url != nil {
		view["download_url"] = *url
	}
	return view
}

func trailingID(path string) uuid.UUID {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) == 0 {
		return uuid.Nil
	}
	id, err := uuid.Parse(segments[len(segments)-1])
	if err != nil {
		return uuid.Nil
	}
	return id
}

func reportStatus(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrReportJobStatusConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
