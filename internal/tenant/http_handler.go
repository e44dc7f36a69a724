package tenant

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rtoassure/backend/internal/httpapi"
	"github.com/rtoassure/backend/internal/repository"
)

// Handler exposes the tenant endpoints.
type Handler struct {
	service *Service
}

func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost:
		h.handleRegister(w, r)
	case r.Method == http.MethodGet:
		h.handleGet(w, r)
	default:
		httpapi.WriteError(w, http.StatusNotFound, errors.New("not found"))
	}
}

type registerPayload struct {
	Code         string `json:"code" validate:"required"`
	Name         string `json:"name" validate:"required"`
	ContactEmail string `json:"contact_email" validate:"omitempty,email"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload registerPayload
	if err := httpapi.DecodeAndValidate(r, &payload); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, err)
		return
	}

	rto, err := h.service.Register(r.Context(), payload.Code, payload.Name, payload.ContactEmail)
	if err != nil {
		httpapi.WriteError(w, tenantStatus(err), err)
		return
	}
	httpapi.WriteSuccess(w, map[string]any{"rto": rto})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	if code := strings.TrimSpace(r.URL.Query().Get("code")); code != "" {
		rto, err := h.service.GetByCode(r.Context(), code)
		if err != nil {
			httpapi.WriteError(w, tenantStatus(err), err)
			return
		}
		httpapi.WriteSuccess(w, map[string]any{"rto": rto})
		return
	}

	rtos, err := h.service.List(r.Context())
	if err != nil {
		httpapi.WriteError(w, tenantStatus(err), err)
		return
	}
	httpapi.WriteSuccess(w, map[string]any{"rtos": rtos})
}

func tenantStatus(err error) int {
	if errors.Is(err, repository.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
