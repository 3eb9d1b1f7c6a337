package charges

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gemvault/gemvault/internal/platform/httpx"
	"github.com/gemvault/gemvault/internal/rbac"
	"github.com/gemvault/gemvault/internal/shared"
)

// Handler exposes tax, fee and discount configuration endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers configuration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermBillingConfigView))
		r.Get("/taxes", h.listTaxes)
		r.Get("/taxes/{id}", h.getTax)
		r.Get("/fees", h.listFees)
		r.Get("/fees/{id}", h.getFee)
		r.Get("/discounts", h.listDiscounts)
		r.Get("/discounts/{id}", h.getDiscount)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermBillingConfigEdit))
		r.Post("/taxes", h.createTax)
		r.Put("/taxes/{id}", h.updateTax)
		r.Delete("/taxes/{id}", h.deleteTax)
		r.Post("/fees", h.createFee)
		r.Put("/fees/{id}", h.updateFee)
		r.Delete("/fees/{id}", h.deleteFee)
		r.Post("/discounts", h.createDiscount)
		r.Put("/discounts/{id}", h.updateDiscount)
		r.Delete("/discounts/{id}", h.deleteDiscount)
	})
}

type listResponse[T any] struct {
	Data       []T               `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func newListResponse[T any](data []T, filter ListFilter, total int) listResponse[T] {
	if data == nil {
		data = []T{}
	}
	return listResponse[T]{Data: data, Pagination: shared.NewPagination(filter.Page, filter.Limit, total)}
}

func parseFilter(r *http.Request) ListFilter {
	q := r.URL.Query()
	filter := ListFilter{
		Search:     strings.TrimSpace(q.Get("search")),
		ActiveOnly: q.Get("active") == "true",
		Page:       httpx.QueryInt(r, "page", 1),
		Limit:      httpx.QueryInt(r, "limit", 25),
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 100 {
		filter.Limit = 25
	}
	return filter
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if !shared.IsDomainError(err) {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func actorOf(r *http.Request) shared.Actor {
	actor, _ := shared.ActorFromContext(r.Context())
	return actor
}

// --- Taxes ---

func (h *Handler) listTaxes(w http.ResponseWriter, r *http.Request) {
	filter := parseFilter(r)
	taxes, total, err := h.service.ListTaxes(r.Context(), filter)
	if err != nil {
		h.fail(w, "list taxes", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newListResponse(taxes, filter, total))
}

func (h *Handler) getTax(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid tax id")
		return
	}
	tax, err := h.service.GetTax(r.Context(), id)
	if err != nil {
		h.fail(w, "get tax", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tax)
}

func (h *Handler) createTax(w http.ResponseWriter, r *http.Request) {
	var in TaxInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.BadRequest(w, "malformed request body")
		return
	}
	tax, err := h.service.CreateTax(r.Context(), actorOf(r), in)
	if err != nil {
		h.fail(w, "create tax", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tax)
}

func (h *Handler) updateTax(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid tax id")
		return
	}
	var in TaxInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.BadRequest(w, "malformed request body")
		return
	}
	tax, err := h.service.UpdateTax(r.Context(), actorOf(r), id, in)
	if err != nil {
		h.fail(w, "update tax", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tax)
}

func (h *Handler) deleteTax(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid tax id")
		return
	}
	if err := h.service.DeleteTax(r.Context(), actorOf(r), id); err != nil {
		h.fail(w, "delete tax", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Fees ---

func (h *Handler) listFees(w http.ResponseWriter, r *http.Request) {
	filter := parseFilter(r)
	fees, total, err := h.service.ListFees(r.Context(), filter)
	if err != nil {
		h.fail(w, "list fees", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newListResponse(fees, filter, total))
}

func (h *Handler) getFee(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid fee id")
		return
	}
	fee, err := h.service.GetFee(r.Context(), id)
	if err != nil {
		h.fail(w, "get fee", err)
		return
	}
	httpx.JSON(w, http.StatusOK, fee)
}

func (h *Handler) createFee(w http.ResponseWriter, r *http.Request) {
	var in FeeInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.BadRequest(w, "malformed request body")
		return
	}
	fee, err := h.service.CreateFee(r.Context(), actorOf(r), in)
	if err != nil {
		h.fail(w, "create fee", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, fee)
}

func (h *Handler) updateFee(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid fee id")
		return
	}
	var in FeeInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.BadRequest(w, "malformed request body")
		return
	}
	fee, err := h.service.UpdateFee(r.Context(), actorOf(r), id, in)
	if err != nil {
		h.fail(w, "update fee", err)
		return
	}
	httpx.JSON(w, http.StatusOK, fee)
}

func (h *Handler) deleteFee(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid fee id")
		return
	}
	if err := h.service.DeleteFee(r.Context(), actorOf(r), id); err != nil {
		h.fail(w, "delete fee", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Discounts ---

func (h *Handler) listDiscounts(w http.ResponseWriter, r *http.Request) {
	filter := parseFilter(r)
	discounts, total, err := h.service.ListDiscounts(r.Context(), filter)
	if err != nil {
		h.fail(w, "list discounts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newListResponse(discounts, filter, total))
}

func (h *Handler) getDiscount(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid discount id")
		return
	}
	d, err := h.service.GetDiscount(r.Context(), id)
	if err != nil {
		h.fail(w, "get discount", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) createDiscount(w http.ResponseWriter, r *http.Request) {
	var in DiscountInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.BadRequest(w, "malformed request body")
		return
	}
	d, err := h.service.CreateDiscount(r.Context(), actorOf(r), in)
	if err != nil {
		h.fail(w, "create discount", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, d)
}

func (h *Handler) updateDiscount(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid discount id")
		return
	}
	var in DiscountInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.BadRequest(w, "malformed request body")
		return
	}
	d, err := h.service.UpdateDiscount(r.Context(), actorOf(r), id, in)
	if err != nil {
		h.fail(w, "update discount", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) deleteDiscount(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid discount id")
		return
	}
	if err := h.service.DeleteDiscount(r.Context(), actorOf(r), id); err != nil {
		h.fail(w, "delete discount", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
