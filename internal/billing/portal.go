package billing

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gemvault/gemvault/internal/platform/httpx"
	"github.com/gemvault/gemvault/internal/rbac"
	"github.com/gemvault/gemvault/internal/shared"
)

// PortalHandler serves the customer portal. Every query is scoped to the
// customer of the calling actor by the service.
type PortalHandler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewPortalHandler builds PortalHandler instance.
func NewPortalHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *PortalHandler {
	return &PortalHandler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers portal routes.
func (h *PortalHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermPortalView))
		r.Get("/invoices", h.listInvoices)
		r.Get("/invoices/{id}", h.getInvoice)
		r.Get("/invoices/{id}/schedules", h.listSchedules)
		r.Get("/payments", h.listPayments)
		r.Get("/payments/{id}", h.getPayment)
	})
	r.With(h.rbac.RequireAll(shared.PermPortalView, shared.PermBillingPaymentSubmit)).
		Post("/invoices/{id}/payments", h.submitPayment)
}

func (h *PortalHandler) listInvoices(w http.ResponseWriter, r *http.Request) {
	filter := parseInvoiceFilter(r)
	invoices, total, err := h.service.ListInvoices(r.Context(), actorOf(r), filter)
	if err != nil {
		fail(h.logger, w, "portal list invoices", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newListResponse(invoices, filter.Page, filter.Limit, total))
}

func (h *PortalHandler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid invoice id")
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), actorOf(r), id)
	if err != nil {
		fail(h.logger, w, "portal get invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *PortalHandler) listSchedules(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid invoice id")
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), actorOf(r), id)
	if err != nil {
		fail(h.logger, w, "portal list schedules", err)
		return
	}
	schedules := inv.Schedules
	if schedules == nil {
		schedules = []Schedule{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":                  schedules,
		"remaining_balance":     inv.RemainingBalance,
		"next_payment_due_date": inv.NextPaymentDueDate,
	})
}

func (h *PortalHandler) listPayments(w http.ResponseWriter, r *http.Request) {
	filter := parsePaymentFilter(r)
	payments, total, err := h.service.ListPayments(r.Context(), actorOf(r), filter)
	if err != nil {
		fail(h.logger, w, "portal list payments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newListResponse(payments, filter.Page, filter.Limit, total))
}

func (h *PortalHandler) getPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid payment id")
		return
	}
	p, err := h.service.GetPayment(r.Context(), actorOf(r), id)
	if err != nil {
		fail(h.logger, w, "portal get payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *PortalHandler) submitPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid invoice id")
		return
	}
	var in SubmitPaymentInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.BadRequest(w, "malformed request body")
		return
	}
	in.InvoiceID = id
	in.IdempotencyKey = r.Header.Get(HeaderIdempotencyKey)
	p, err := h.service.SubmitPayment(r.Context(), actorOf(r), in)
	if err != nil {
		fail(h.logger, w, "portal submit payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}
