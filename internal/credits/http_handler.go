package credits

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

// Handler exposes the credit balance, adjustment and promo endpoints.
type Handler struct {
	service *Service
}

func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/consume"):
		h.handleAdjust(w, r, -1)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/add"):
		h.handleAdjust(w, r, +1)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/remove"):
		h.handleAdjust(w, r, -1)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/promo"):
		h.handlePromo(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/transactions"):
		h.handleTransactions(w, r)
	case r.Method == http.MethodGet:
		h.handleGet(w, r)
	default:
		httpapi.WriteError(w, http.StatusNotFound, errors.New("not found"))
	}
}

func tenantFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	rtoID, ok := auth.RTOIDFromContext(r.Context())
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, errors.New("missing tenant scope"))
		return uuid.Nil, false
	}
	return rtoID, true
}

func kindFromRequest(r *http.Request) (domain.CreditKind, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("kind"))
	if raw == "" {
		return "", fmt.Errorf("kind is required (ai or validation)")
	}
	if !domain.IsValidCreditKind(raw) {
		return "", fmt.Errorf("unknown credit kind %q", raw)
	}
	return domain.CreditKind(raw), nil
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	rtoID, ok := tenantFromRequest(w, r)
	if !ok {
		return
	}
	kind, err := kindFromRequest(r)
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, err)
		return
	}

	account, err := h.service.Get(r.Context(), rtoID, kind)
	if err != nil {
		httpapi.WriteError(w, creditStatus(err), err)
		return
	}
	httpapi.WriteSuccess(w, map[string]any{
		"kind":            account.Kind,
		"current_credits": account.CurrentCredits,
		"total_credits":   account.TotalCredits,
	})
}

type adjustPayload struct {
	Kind   string `json:"kind" validate:"required"`
	Amount int    `json:"amount" validate:"required,gt=0"`
	Reason string `json:"reason"`
}

// handleAdjust serves both grant and consume endpoints; sign fixes direction.
func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request, sign int) {
	rtoID, ok := tenantFromRequest(w, r)
	if !ok {
		return
	}

	var payload adjustPayload
	if err := httpapi.DecodeAndValidate(r, &payload); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, err)
		return
	}
	if !domain.IsValidCreditKind(payload.Kind) {
		httpapi.WriteError(w, http.StatusBadRequest, fmt.Errorf("unknown credit kind %q", payload.Kind))
		return
	}
	reason := strings.TrimSpace(payload.Reason)
	if reason == "" {
		reason = "manual adjustment"
	}

	account, err := h.service.Adjust(r.Context(), rtoID, domain.CreditKind(payload.Kind), sign*payload.Amount, reason)
	if err != nil {
		httpapi.WriteError(w, creditStatus(err), err)
		return
	}
	httpapi.WriteSuccess(w, map[string]any{
		"kind":            account.Kind,
		"current_credits": account.CurrentCredits,
		"total_credits":   account.TotalCredits,
	})
}

type promoPayload struct {
	Code string `json:"code" validate:"required"`
}

func (h *Handler) handlePromo(w http.ResponseWriter, r *http.Request) {
	rtoID, ok := tenantFromRequest(w, r)
	if !ok {
		return
	}

	var payload promoPayload
	if err := httpapi.DecodeAndValidate(r, &payload); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, err)
		return
	}

	account, err := h.service.RedeemPromo(r.Context(), rtoID, strings.TrimSpace(payload.Code))
	if err != nil {
		httpapi.WriteError(w, creditStatus(err), err)
		return
	}
	httpapi.WriteSuccess(w, map[string]any{
		"kind":            account.Kind,
		"current_credits": account.CurrentCredits,
		"total_credits":   account.TotalCredits,
	})
}

func (h *Handler) handleTransactions(w http.ResponseWriter, r *http.Request) {
	rtoID, ok := tenantFromRequest(w, r)
	if !ok {
		return
	}
	kind, err := kindFromRequest(r)
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, err)
		return
	}

	transactions, err := h.service.Transactions(r.Context(), rtoID, kind, 50, 0)
	if err != nil {
		httpapi.WriteError(w, creditStatus(err), err)
		return
	}
	httpapi.WriteSuccess(w, map[string]any{"transactions": transactions})
}

func creditStatus(err error) int {
	switch {
	case errors.Is(err, repository.ErrInsufficientCredits):
		return http.StatusPaymentRequired
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPromoNotRedeemable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
