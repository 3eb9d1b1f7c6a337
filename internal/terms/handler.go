package terms

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gemvault/gemvault/internal/platform/httpx"
	"github.com/gemvault/gemvault/internal/rbac"
	"github.com/gemvault/gemvault/internal/shared"
)

// Handler exposes payment term endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers payment term routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermBillingConfigView))
		r.Get("/payment-terms", h.list)
		r.Get("/payment-terms/{id}", h.get)
		r.Post("/payment-terms/validate", h.validate)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermBillingConfigEdit))
		r.Post("/payment-terms", h.create)
		r.Put("/payment-terms/{id}", h.update)
		r.Post("/payment-terms/{id}/deactivate", h.deactivate)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		Search:     strings.TrimSpace(r.URL.Query().Get("search")),
		ActiveOnly: r.URL.Query().Get("active") == "true",
		Page:       httpx.QueryInt(r, "page", 1),
		Limit:      httpx.QueryInt(r, "limit", 25),
	}
	terms, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list payment terms", err)
		return
	}
	if terms == nil {
		terms = []PaymentTerm{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       terms,
		"pagination": shared.NewPagination(filter.Page, filter.Limit, total),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid payment term id")
		return
	}
	term, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get payment term", err)
		return
	}
	httpx.JSON(w, http.StatusOK, term)
}

// validate runs the term rules without saving.
func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	var in TermInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.BadRequest(w, "malformed request body")
		return
	}
	err := in.normalize()
	var verr *ValidationError
	switch {
	case err == nil:
		httpx.JSON(w, http.StatusOK, map[string]any{"valid": true})
	case errors.As(err, &verr):
		httpx.JSON(w, http.StatusOK, map[string]any{"valid": false, "problems": verr.Problems})
	default:
		h.fail(w, "validate payment term", err)
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in TermInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.BadRequest(w, "malformed request body")
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	term, err := h.service.Create(r.Context(), actor, in)
	if err != nil {
		h.fail(w, "create payment term", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, term)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid payment term id")
		return
	}
	var in TermInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.BadRequest(w, "malformed request body")
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	term, err := h.service.Update(r.Context(), actor, id, in)
	if err != nil {
		h.fail(w, "update payment term", err)
		return
	}
	httpx.JSON(w, http.StatusOK, term)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid payment term id")
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.Deactivate(r.Context(), actor, id); err != nil {
		h.fail(w, "deactivate payment term", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if !shared.IsDomainError(err) {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
