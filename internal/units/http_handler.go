package units

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rtoassure/backend/internal/httpapi"
	"github.com/rtoassure/backend/internal/repository"
)

// Handler exposes the unit-of-competency read endpoints.
type Handler struct {
	service *Service
}

func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/requirements"):
		h.handleRequirements(w, r)
	case r.Method == http.MethodGet:
		h.handleList(w, r)
	default:
		httpapi.WriteError(w, http.StatusNotFound, errors.New("not found"))
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if code := strings.TrimSpace(query.Get("code")); code != "" {
		unit, err := h.service.Get(r.Context(), code)
		if err != nil {
			httpapi.WriteError(w, unitStatus(err), err)
			return
		}
		httpapi.WriteSuccess(w, map[string]any{"unit": unit})
		return
	}

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

	units, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		httpapi.WriteError(w, unitStatus(err), err)
		return
	}
	httpapi.WriteSuccess(w, map[string]any{"units": units})
}

func (h *Handler) handleRequirements(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" {
		httpapi.WriteError(w, http.StatusBadRequest, fmt.Errorf("code is required"))
		return
	}

	requirements, err := h.service.Requirements(r.Context(), code)
	if err != nil {
		httpapi.WriteError(w, unitStatus(err), err)
		return
	}
	httpapi.WriteSuccess(w, map[string]any{"requirements": requirements})
}

func unitStatus(err error) int {
	if errors.Is(err, repository.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
