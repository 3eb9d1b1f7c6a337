package billing

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/gemvault/gemvault/internal/platform/httpx"
	"github.com/gemvault/gemvault/internal/rbac"
	"github.com/gemvault/gemvault/internal/shared"
)

// HeaderIdempotencyKey carries the client key of a payment submission.
const HeaderIdempotencyKey = "Idempotency-Key"

// Handler exposes back-office billing endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers back-office billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermBillingView))
		r.Get("/invoices", h.listInvoices)
		r.Get("/invoices/{id}", h.getInvoice)
		r.Get("/payments", h.listPayments)
		r.Get("/payments/{id}", h.getPayment)
		r.Get("/payments/{id}/history", h.paymentHistory)
		r.Get("/receivables/summary", h.summary)
		r.Post("/plan-preview", h.previewPlan)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermBillingInvoiceEdit))
		r.Post("/invoices", h.createInvoice)
		r.Put("/invoices/{id}/items", h.updateItems)
		r.Post("/invoices/{id}/recalculate", h.recalculate)
		r.Post("/invoices/{id}/payment-plan", h.generatePlan)
		r.Post("/invoices/{id}/send", h.sendInvoice)
		r.Post("/invoices/{id}/cancel", h.cancelInvoice)
		r.Post("/invoices/{id}/refresh-status", h.refreshStatus)
		r.Post("/overdue-sweep", h.sweepOverdue)
	})

	r.With(h.rbac.RequireAll(shared.PermBillingPaymentSubmit)).Post("/payments", h.submitPayment)

	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermBillingPaymentReview))
		r.Post("/payments/{id}/approve", h.approvePayment)
		r.Post("/payments/{id}/confirm", h.confirmPayment)
		r.Post("/payments/{id}/reject", h.rejectPayment)
	})
}

type listResponse[T any] struct {
	Data       []T               `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func newListResponse[T any](data []T, page, limit, total int) listResponse[T] {
	if data == nil {
		data = []T{}
	}
	return listResponse[T]{Data: data, Pagination: shared.NewPagination(page, limit, total)}
}

func pageParams(r *http.Request) (int, int) {
	page := httpx.QueryInt(r, "page", 1)
	limit := httpx.QueryInt(r, "limit", 25)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 25
	}
	return page, limit
}

func parseInvoiceFilter(r *http.Request) InvoiceFilter {
	q := r.URL.Query()
	page, limit := pageParams(r)
	filter := InvoiceFilter{
		Search: strings.TrimSpace(q.Get("search")),
		Page:   page,
		Limit:  limit,
	}
	if status := InvoiceStatus(q.Get("status")); status.Valid() {
		filter.Status = status
	}
	if ps := PaymentStatus(q.Get("payment_status")); ps.Valid() {
		filter.PaymentStatus = ps
	}
	filter.CustomerID = int64(httpx.QueryInt(r, "customer_id", 0))
	return filter
}

func parsePaymentFilter(r *http.Request) PaymentFilter {
	q := r.URL.Query()
	page, limit := pageParams(r)
	filter := PaymentFilter{Page: page, Limit: limit}
	if state := PaymentState(q.Get("status")); state.Valid() {
		filter.Status = state
	}
	filter.InvoiceID = int64(httpx.QueryInt(r, "invoice_id", 0))
	filter.CustomerID = int64(httpx.QueryInt(r, "customer_id", 0))
	return filter
}

func fail(logger *slog.Logger, w http.ResponseWriter, msg string, err error) {
	if !shared.IsDomainError(err) {
		logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func actorOf(r *http.Request) shared.Actor {
	actor, _ := shared.ActorFromContext(r.Context())
	return actor
}

// --- Invoices ---

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	filter := parseInvoiceFilter(r)
	invoices, total, err := h.service.ListInvoices(r.Context(), actorOf(r), filter)
	if err != nil {
		fail(h.logger, w, "list invoices", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newListResponse(invoices, filter.Page, filter.Limit, total))
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid invoice id")
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), actorOf(r), id)
	if err != nil {
		fail(h.logger, w, "get invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var in CreateInvoiceInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.BadRequest(w, "malformed request body")
		return
	}
	inv, err := h.service.CreateInvoice(r.Context(), actorOf(r), in)
	if err != nil {
		fail(h.logger, w, "create invoice", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

type itemsRequest struct {
	Items []ItemInput `json:"items"`
}

func (h *Handler) updateItems(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid invoice id")
		return
	}
	var req itemsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, "malformed request body")
		return
	}
	inv, err := h.service.UpdateItems(r.Context(), actorOf(r), id, req.Items)
	if err != nil {
		fail(h.logger, w, "update invoice items", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) recalculate(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid invoice id")
		return
	}
	inv, err := h.service.RecalculateTotals(r.Context(), actorOf(r), id)
	if err != nil {
		fail(h.logger, w, "recalculate invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

type planRequest struct {
	PaymentTermID *int64 `json:"payment_term_id"`
}

func (h *Handler) generatePlan(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid invoice id")
		return
	}
	var req planRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.BadRequest(w, "malformed request body")
			return
		}
	}
	inv, err := h.service.GeneratePaymentPlan(r.Context(), actorOf(r), id, req.PaymentTermID)
	if err != nil {
		fail(h.logger, w, "generate payment plan", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) sendInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid invoice id")
		return
	}
	inv, err := h.service.SendInvoice(r.Context(), actorOf(r), id)
	if err != nil {
		fail(h.logger, w, "send invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancelInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid invoice id")
		return
	}
	var req reasonRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, "malformed request body")
		return
	}
	inv, err := h.service.CancelInvoice(r.Context(), actorOf(r), id, req.Reason)
	if err != nil {
		fail(h.logger, w, "cancel invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) refreshStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid invoice id")
		return
	}
	inv, err := h.service.RefreshPaymentStatus(r.Context(), id)
	if err != nil {
		fail(h.logger, w, "refresh payment status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) sweepOverdue(w http.ResponseWriter, r *http.Request) {
	today := time.Now().UTC()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.BadRequest(w, "as_of must be YYYY-MM-DD")
			return
		}
		today = parsed
	}
	result, err := h.service.SweepOverdue(r.Context(), today)
	if err != nil {
		fail(h.logger, w, "overdue sweep", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.ReceivablesSummary(r.Context())
	if err != nil {
		fail(h.logger, w, "receivables summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

type previewRequest struct {
	TotalAmount   decimal.Decimal `json:"total_amount"`
	IssueDate     string          `json:"issue_date"`
	PaymentTermID int64           `json:"payment_term_id"`
}

func (h *Handler) previewPlan(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, "malformed request body")
		return
	}
	issue, err := time.Parse("2006-01-02", req.IssueDate)
	if err != nil {
		httpx.BadRequest(w, "issue_date must be YYYY-MM-DD")
		return
	}
	if req.PaymentTermID <= 0 {
		httpx.BadRequest(w, "payment_term_id is required")
		return
	}
	preview, err := h.service.PreviewPaymentPlan(r.Context(), req.TotalAmount, issue, req.PaymentTermID)
	if err != nil {
		fail(h.logger, w, "preview payment plan", err)
		return
	}
	httpx.JSON(w, http.StatusOK, preview)
}

// --- Payments ---

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	filter := parsePaymentFilter(r)
	payments, total, err := h.service.ListPayments(r.Context(), actorOf(r), filter)
	if err != nil {
		fail(h.logger, w, "list payments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newListResponse(payments, filter.Page, filter.Limit, total))
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid payment id")
		return
	}
	p, err := h.service.GetPayment(r.Context(), actorOf(r), id)
	if err != nil {
		fail(h.logger, w, "get payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) paymentHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid payment id")
		return
	}
	logs, err := h.service.PaymentHistory(r.Context(), actorOf(r), id)
	if err != nil {
		fail(h.logger, w, "payment history", err)
		return
	}
	if logs == nil {
		logs = []shared.ApprovalLog{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": logs})
}

func (h *Handler) submitPayment(w http.ResponseWriter, r *http.Request) {
	var in SubmitPaymentInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.BadRequest(w, "malformed request body")
		return
	}
	in.IdempotencyKey = r.Header.Get(HeaderIdempotencyKey)
	p, err := h.service.SubmitPayment(r.Context(), actorOf(r), in)
	if err != nil {
		fail(h.logger, w, "submit payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) approvePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid payment id")
		return
	}
	p, err := h.service.ApprovePayment(r.Context(), actorOf(r), id)
	if err != nil {
		fail(h.logger, w, "approve payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid payment id")
		return
	}
	result, err := h.service.ConfirmPayment(r.Context(), actorOf(r), id)
	if err != nil {
		fail(h.logger, w, "confirm payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) rejectPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid payment id")
		return
	}
	var req reasonRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, "malformed request body")
		return
	}
	p, err := h.service.RejectPayment(r.Context(), actorOf(r), id, req.Reason)
	if err != nil {
		fail(h.logger, w, "reject payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}
