package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/gemvault/gemvault/internal/charges"
	"github.com/gemvault/gemvault/internal/money"
	"github.com/gemvault/gemvault/internal/observability"
	"github.com/gemvault/gemvault/internal/shared"
	"github.com/gemvault/gemvault/internal/terms"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, int, error)
	GetPayment(ctx context.Context, id int64) (Payment, error)
	ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, int, error)
	ReceivablesByStatus(ctx context.Context) ([]StatusSummary, int, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// ChargeResolver turns tax, fee and discount references into descriptors.
type ChargeResolver interface {
	ResolveForInvoice(ctx context.Context, taxID, feeID, discountID *int64) (charges.Resolved, error)
	ResolveStored(ctx context.Context, taxID, feeID, discountID *int64) (charges.Resolved, error)
}

// TermProvider loads payment terms for plan generation.
type TermProvider interface {
	GetActive(ctx context.Context, id int64) (terms.PaymentTerm, error)
}

// AuditRecorder appends audit entries after a change is committed.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ApprovalRecorder keeps the review history of payments.
type ApprovalRecorder interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
	List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error)
}

// IdempotencyGuard rejects replayed submissions.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Notifier hands payment events to the background queue.
type Notifier interface {
	NotifyPayment(ctx context.Context, event PaymentEvent) error
}

// SummaryCache stores the receivables summary.
type SummaryCache interface {
	BuildKey(ctx context.Context, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
	Bump(ctx context.Context) error
}

// PaymentEvent describes a payment change customers are told about.
type PaymentEvent struct {
	PaymentID     int64        `json:"payment_id"`
	InvoiceID     int64        `json:"invoice_id"`
	InvoiceNumber string       `json:"invoice_number"`
	CustomerID    int64        `json:"customer_id"`
	State         PaymentState `json:"state"`
	Amount        string       `json:"amount"`
	Reason        string       `json:"reason,omitempty"`
}

// Options carries the optional collaborators of Service.
type Options struct {
	Charges         ChargeResolver
	Terms           TermProvider
	Audit           AuditRecorder
	Approvals       ApprovalRecorder
	Idempotency     IdempotencyGuard
	Notifier        Notifier
	Cache           SummaryCache
	Metrics         *observability.BillingMetrics
	Logger          *slog.Logger
	Clock           func() time.Time
	DefaultCurrency string
}

// ApprovalModule keys payment entries in the approval history.
const ApprovalModule = "billing.payment"

// Service orchestrates invoices, payment plans and payments.
type Service struct {
	repo RepositoryPort
	opts Options
	log  *slog.Logger
	now  func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = "USD"
	}
	return &Service{repo: repo, opts: opts, log: logger, now: now}
}

// --- Queries ---

// GetInvoice returns an invoice the actor may see.
func (s *Service) GetInvoice(ctx context.Context, actor shared.Actor, id int64) (Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	if !actor.CanAccessCustomer(inv.CustomerID) {
		return Invoice{}, ErrInvoiceNotFound
	}
	return inv, nil
}

// ListInvoices returns invoices matching filter. Customers only see their own.
func (s *Service) ListInvoices(ctx context.Context, actor shared.Actor, filter InvoiceFilter) ([]Invoice, int, error) {
	if actor.IsCustomer() {
		filter.CustomerID = actor.CustomerID
	} else if err := actor.RequireStaff(); err != nil {
		return nil, 0, err
	}
	return s.repo.ListInvoices(ctx, filter)
}

// GetPayment returns a payment the actor may see.
func (s *Service) GetPayment(ctx context.Context, actor shared.Actor, id int64) (Payment, error) {
	p, err := s.repo.GetPayment(ctx, id)
	if err != nil {
		return Payment{}, err
	}
	if !actor.CanAccessCustomer(p.CustomerID) {
		return Payment{}, ErrPaymentNotFound
	}
	return p, nil
}

// ListPayments returns payments matching filter. Customers only see their own.
func (s *Service) ListPayments(ctx context.Context, actor shared.Actor, filter PaymentFilter) ([]Payment, int, error) {
	if actor.IsCustomer() {
		filter.CustomerID = actor.CustomerID
	} else if err := actor.RequireStaff(); err != nil {
		return nil, 0, err
	}
	return s.repo.ListPayments(ctx, filter)
}

// PaymentHistory returns the review trail of a payment.
func (s *Service) PaymentHistory(ctx context.Context, actor shared.Actor, paymentID int64) ([]shared.ApprovalLog, error) {
	p, err := s.GetPayment(ctx, actor, paymentID)
	if err != nil {
		return nil, err
	}
	if s.opts.Approvals == nil {
		return nil, nil
	}
	return s.opts.Approvals.List(ctx, ApprovalModule, p.Ref)
}

// --- Invoice lifecycle ---

// CreateInvoice validates the input, resolves charges, calculates totals and
// stores the invoice in draft. A payment term generates the plan in the same
// transaction.
func (s *Service) CreateInvoice(ctx context.Context, actor shared.Actor, in CreateInvoiceInput) (Invoice, error) {
	if err := actor.RequireStaff(); err != nil {
		return Invoice{}, err
	}
	if err := shared.ValidateStruct(in); err != nil {
		return Invoice{}, err
	}
	issueDate, dueDate, err := parseDates(in.IssueDate, in.DueDate)
	if err != nil {
		return Invoice{}, err
	}
	code, err := s.normalizeCurrency(in.Currency)
	if err != nil {
		return Invoice{}, err
	}
	items, err := normalizeItems(in.Items)
	if err != nil {
		return Invoice{}, err
	}

	resolved, err := s.resolveNew(ctx, in.TaxID, in.FeeID, in.DiscountID)
	if err != nil {
		return Invoice{}, err
	}
	totals := CalculateTotals(items, resolved.Tax, resolved.Fee, resolved.Discount)
	if err := totals.Validate(); err != nil {
		return Invoice{}, err
	}

	inv := Invoice{
		CustomerID:      in.CustomerID,
		TaxID:           in.TaxID,
		FeeID:           in.FeeID,
		DiscountID:      in.DiscountID,
		PaymentTermID:   in.PaymentTermID,
		Currency:        code,
		IssueDate:       issueDate,
		DueDate:         dueDate,
		Status:          InvoiceDraft,
		PaymentStatus:   PaymentUnpaid,
		TotalPaidAmount: decimal.Zero,
		Notes:           strings.TrimSpace(in.Notes),
		CreatedBy:       actor.ID,
	}
	inv.ApplyTotals(totals)
	inv.RemainingBalance = inv.TotalAmount

	var schedules []Schedule
	if in.PaymentTermID != nil {
		term, err := s.loadTerm(ctx, *in.PaymentTermID)
		if err != nil {
			return Invoice{}, err
		}
		if schedules, err = GenerateSchedules(&inv, term); err != nil {
			return Invoice{}, err
		}
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextInvoiceNumber(ctx, issueDate)
		if err != nil {
			return err
		}
		inv.Number = number
		id, err := tx.InsertInvoice(ctx, inv)
		if err != nil {
			return err
		}
		inv.ID = id
		if err := tx.ReplaceItems(ctx, id, items); err != nil {
			return err
		}
		if inv.DiscountID != nil {
			if err := tx.RedeemDiscount(ctx, *inv.DiscountID); err != nil {
				return err
			}
		}
		if len(schedules) > 0 {
			return tx.InsertSchedules(ctx, id, schedules)
		}
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}

	s.opts.Metrics.InvoiceCreated()
	s.opts.Metrics.SchedulesGenerated(len(schedules))
	s.record(ctx, actor, "invoice.created", "invoice", inv.ID, map[string]any{
		"number": inv.Number,
		"total":  money.Format(inv.TotalAmount),
		"plan":   inv.PaymentPlanCreated,
	})
	s.bumpSummary(ctx)
	return s.repo.GetInvoice(ctx, inv.ID)
}

// UpdateItems replaces the lines of a draft invoice and recalculates its totals.
func (s *Service) UpdateItems(ctx context.Context, actor shared.Actor, invoiceID int64, in []ItemInput) (Invoice, error) {
	if err := actor.RequireStaff(); err != nil {
		return Invoice{}, err
	}
	if len(in) == 0 {
		return Invoice{}, fmt.Errorf("%w: at least one item is required", shared.ErrValidation)
	}
	for i := range in {
		if err := shared.ValidateStruct(in[i]); err != nil {
			return Invoice{}, err
		}
	}
	items, err := normalizeItems(in)
	if err != nil {
		return Invoice{}, err
	}

	var before Totals
	var inv Invoice
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err = tx.LockInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if !inv.Editable() {
			return ErrInvoiceLocked
		}
		resolved, err := s.resolveStored(ctx, inv)
		if err != nil {
			return err
		}
		totals := CalculateTotals(items, resolved.Tax, resolved.Fee, resolved.Discount)
		if err := totals.Validate(); err != nil {
			return err
		}
		before = inv.Totals()
		inv.ApplyTotals(totals)
		inv.Items = items
		inv.ApplyStatus(AggregatePaymentStatus(inv, inv.Payments, inv.Schedules, s.now()))
		if err := tx.ReplaceItems(ctx, invoiceID, items); err != nil {
			return err
		}
		return tx.UpdateInvoice(ctx, inv)
	})
	if err != nil {
		return Invoice{}, err
	}
	s.record(ctx, actor, "invoice.items_updated", "invoice", invoiceID, map[string]any{
		"items":          len(items),
		"previous_total": money.Format(before.TotalAmount),
		"total":          money.Format(inv.TotalAmount),
	})
	s.bumpSummary(ctx)
	return s.repo.GetInvoice(ctx, invoiceID)
}

// RecalculateTotals recomputes the totals of an invoice from its stored items
// and charges. It changes nothing when the stored totals are already current.
func (s *Service) RecalculateTotals(ctx context.Context, actor shared.Actor, invoiceID int64) (Invoice, error) {
	if err := actor.RequireStaff(); err != nil {
		return Invoice{}, err
	}
	var inv Invoice
	changed := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.LockInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if !inv.Editable() {
			return ErrInvoiceLocked
		}
		resolved, err := s.resolveStored(ctx, inv)
		if err != nil {
			return err
		}
		totals := CalculateTotals(inv.Items, resolved.Tax, resolved.Fee, resolved.Discount)
		if totalsEqual(totals, inv.Totals()) {
			return nil
		}
		if err := totals.Validate(); err != nil {
			return err
		}
		changed = true
		inv.ApplyTotals(totals)
		inv.ApplyStatus(AggregatePaymentStatus(inv, inv.Payments, inv.Schedules, s.now()))
		return tx.UpdateInvoice(ctx, inv)
	})
	if err != nil {
		return Invoice{}, err
	}
	if changed {
		s.record(ctx, actor, "invoice.recalculated", "invoice", invoiceID, map[string]any{"total": money.Format(inv.TotalAmount)})
		s.bumpSummary(ctx)
	}
	return inv, nil
}

// GeneratePaymentPlan creates the schedule rows of an invoice from a payment
// term. termID overrides the term stored on the invoice. A second call fails
// with ErrPlanExists.
func (s *Service) GeneratePaymentPlan(ctx context.Context, actor shared.Actor, invoiceID int64, termID *int64) (Invoice, error) {
	if err := actor.RequireStaff(); err != nil {
		return Invoice{}, err
	}
	var inv Invoice
	var generated int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.LockInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status == InvoiceCancelled {
			return ErrInvoiceLocked
		}
		if inv.PaymentPlanCreated {
			return ErrPlanExists
		}
		id := inv.PaymentTermID
		if termID != nil {
			id = termID
		}
		if id == nil {
			return ErrNoPaymentTerm
		}
		term, err := s.loadTerm(ctx, *id)
		if err != nil {
			return err
		}
		schedules, err := GenerateSchedules(&inv, term)
		if err != nil {
			return err
		}
		if err := tx.InsertSchedules(ctx, invoiceID, schedules); err != nil {
			return err
		}
		generated = len(schedules)
		inv.Schedules = schedules
		inv.ApplyStatus(AggregatePaymentStatus(inv, inv.Payments, schedules, s.now()))
		return tx.UpdateInvoice(ctx, inv)
	})
	if err != nil {
		return Invoice{}, err
	}
	s.opts.Metrics.SchedulesGenerated(generated)
	s.record(ctx, actor, "invoice.plan_generated", "invoice", invoiceID, map[string]any{
		"payment_term_id": inv.PaymentTermID,
		"rows":            generated,
	})
	s.bumpSummary(ctx)
	return s.repo.GetInvoice(ctx, invoiceID)
}

// SendInvoice issues a draft invoice to the customer.
func (s *Service) SendInvoice(ctx context.Context, actor shared.Actor, invoiceID int64) (Invoice, error) {
	if err := actor.RequireStaff(); err != nil {
		return Invoice{}, err
	}
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.LockInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status != InvoiceDraft {
			return fmt.Errorf("%w: only draft invoices can be sent", shared.ErrConflict)
		}
		inv.Status = InvoiceSent
		inv.ApplyStatus(AggregatePaymentStatus(inv, inv.Payments, inv.Schedules, s.now()))
		return tx.UpdateInvoice(ctx, inv)
	})
	if err != nil {
		return Invoice{}, err
	}
	s.record(ctx, actor, "invoice.sent", "invoice", invoiceID, map[string]any{"number": inv.Number})
	s.bumpSummary(ctx)
	return inv, nil
}

// CancelInvoice voids an invoice without confirmed payments. Open payments are
// rejected with the cancellation reason.
func (s *Service) CancelInvoice(ctx context.Context, actor shared.Actor, invoiceID int64, reason string) (Invoice, error) {
	if err := actor.RequireStaff(); err != nil {
		return Invoice{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Invoice{}, fmt.Errorf("%w: cancellation reason is required", shared.ErrValidation)
	}
	now := s.now()
	var inv Invoice
	var rejected []Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.LockInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status == InvoiceCancelled {
			return ErrInvoiceLocked
		}
		for _, p := range inv.Payments {
			if p.Status == PaymentConfirmed {
				return ErrHasConfirmed
			}
		}
		for i := range inv.Payments {
			p := &inv.Payments[i]
			if p.Status.Terminal() {
				continue
			}
			if err := p.Reject("invoice cancelled: "+reason, now); err != nil {
				return err
			}
			if err := tx.UpdatePayment(ctx, *p); err != nil {
				return err
			}
			rejected = append(rejected, *p)
		}
		inv.Status = InvoiceCancelled
		inv.ApplyStatus(AggregatePaymentStatus(inv, inv.Payments, inv.Schedules, now))
		return tx.UpdateInvoice(ctx, inv)
	})
	if err != nil {
		return Invoice{}, err
	}
	for _, p := range rejected {
		s.afterTransition(ctx, actor, inv, p, shared.ApprovalReject, p.RejectionReason)
	}
	s.record(ctx, actor, "invoice.cancelled", "invoice", invoiceID, map[string]any{"reason": reason, "rejected_payments": len(rejected)})
	s.bumpSummary(ctx)
	return inv, nil
}

// RefreshPaymentStatus re-runs the payment status aggregation of an invoice
// under a row lock.
func (s *Service) RefreshPaymentStatus(ctx context.Context, invoiceID int64) (Invoice, error) {
	var inv Invoice
	changed := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.LockInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		beforeStatus, beforePayment := inv.Status, inv.PaymentStatus
		beforeRemaining := inv.RemainingBalance
		inv.ApplyStatus(AggregatePaymentStatus(inv, inv.Payments, inv.Schedules, s.now()))
		changed = beforeStatus != inv.Status || beforePayment != inv.PaymentStatus || !beforeRemaining.Equal(inv.RemainingBalance)
		return tx.UpdateInvoice(ctx, inv)
	})
	if err != nil {
		return Invoice{}, err
	}
	if changed {
		s.bumpSummary(ctx)
	}
	return inv, nil
}

// SweepOverdue marks pending schedule rows due before today as overdue and
// refreshes the payment status of every affected invoice.
func (s *Service) SweepOverdue(ctx context.Context, today time.Time) (SweepResult, error) {
	var marked int
	var invoiceIDs []int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		marked, invoiceIDs, err = tx.MarkOverdueSchedules(ctx, dateOnly(today))
		return err
	})
	if err != nil {
		return SweepResult{}, err
	}
	result := SweepResult{SchedulesMarked: marked}
	for _, id := range invoiceIDs {
		if _, err := s.RefreshPaymentStatus(ctx, id); err != nil {
			return result, fmt.Errorf("refresh invoice %d: %w", id, err)
		}
		result.InvoicesRefreshed++
	}
	s.opts.Metrics.OverdueMarked(marked)
	if marked > 0 {
		s.record(ctx, shared.SystemActor(), "billing.overdue_sweep", "billing", 0, map[string]any{
			"schedules": marked,
			"invoices":  result.InvoicesRefreshed,
			"as_of":     dateOnly(today).Format("2006-01-02"),
		})
		s.bumpSummary(ctx)
	}
	return result, nil
}

// ReceivablesSummary returns counts and outstanding amounts per payment status.
func (s *Service) ReceivablesSummary(ctx context.Context) (ReceivablesSummary, error) {
	loader := func(ctx context.Context) (any, error) {
		return s.buildSummary(ctx)
	}
	if s.opts.Cache == nil {
		return s.buildSummary(ctx)
	}
	key, err := s.opts.Cache.BuildKey(ctx, "receivables")
	if err != nil {
		s.log.Warn("billing summary cache key", slog.Any("error", err))
		return s.buildSummary(ctx)
	}
	var summary ReceivablesSummary
	if err := s.opts.Cache.FetchJSON(ctx, key, &summary, loader); err != nil {
		return ReceivablesSummary{}, err
	}
	return summary, nil
}

func (s *Service) buildSummary(ctx context.Context) (ReceivablesSummary, error) {
	rows, pending, err := s.repo.ReceivablesByStatus(ctx)
	if err != nil {
		return ReceivablesSummary{}, err
	}
	byStatus := make(map[PaymentStatus]StatusSummary, len(rows))
	for _, row := range rows {
		byStatus[row.PaymentStatus] = row
	}
	summary := ReceivablesSummary{TotalOutstanding: decimal.Zero, PendingPayments: pending, GeneratedAt: s.now().UTC()}
	for _, status := range PaymentStatuses() {
		row, ok := byStatus[status]
		if !ok {
			row = StatusSummary{PaymentStatus: status, Total: decimal.Zero, Outstanding: decimal.Zero}
		}
		row.Label = status.Label()
		summary.ByStatus = append(summary.ByStatus, row)
		summary.TotalOutstanding = summary.TotalOutstanding.Add(row.Outstanding)
	}
	return summary, nil
}

// --- helpers ---

func (s *Service) resolveNew(ctx context.Context, taxID, feeID, discountID *int64) (charges.Resolved, error) {
	if taxID == nil && feeID == nil && discountID == nil {
		return charges.Resolved{}, nil
	}
	if s.opts.Charges == nil {
		return charges.Resolved{}, errors.New("billing: charge resolver not configured")
	}
	return s.opts.Charges.ResolveForInvoice(ctx, taxID, feeID, discountID)
}

func (s *Service) resolveStored(ctx context.Context, inv Invoice) (charges.Resolved, error) {
	if s.opts.Charges == nil {
		return charges.Resolved{}, nil
	}
	return s.opts.Charges.ResolveStored(ctx, inv.TaxID, inv.FeeID, inv.DiscountID)
}

func (s *Service) loadTerm(ctx context.Context, id int64) (terms.PaymentTerm, error) {
	if s.opts.Terms == nil {
		return terms.PaymentTerm{}, errors.New("billing: payment terms not configured")
	}
	return s.opts.Terms.GetActive(ctx, id)
}

func (s *Service) normalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = s.opts.DefaultCurrency
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("%w: unknown currency %q", shared.ErrValidation, code)
	}
	return unit.String(), nil
}

func (s *Service) record(ctx context.Context, actor shared.Actor, action, entity string, id int64, meta map[string]any) {
	if s.opts.Audit == nil {
		return
	}
	if err := s.opts.Audit.Record(ctx, shared.NewAuditLog(actor, action, entity, strconv.FormatInt(id, 10), meta)); err != nil {
		s.log.Warn("billing audit", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) bumpSummary(ctx context.Context) {
	if s.opts.Cache == nil {
		return
	}
	if err := s.opts.Cache.Bump(ctx); err != nil {
		s.log.Warn("billing summary cache bump", slog.Any("error", err))
	}
}

func parseDates(issue, due string) (time.Time, *time.Time, error) {
	issueDate, err := time.Parse("2006-01-02", issue)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("%w: issue_date must be YYYY-MM-DD", shared.ErrValidation)
	}
	if due == "" {
		return issueDate, nil, nil
	}
	dueDate, err := time.Parse("2006-01-02", due)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("%w: due_date must be YYYY-MM-DD", shared.ErrValidation)
	}
	if dueDate.Before(issueDate) {
		return time.Time{}, nil, fmt.Errorf("%w: due_date must not precede issue_date", shared.ErrValidation)
	}
	return issueDate, &dueDate, nil
}

func normalizeItems(in []ItemInput) ([]InvoiceItem, error) {
	items := make([]InvoiceItem, 0, len(in))
	for _, item := range in {
		name := strings.TrimSpace(item.ProductName)
		if name == "" {
			return nil, fmt.Errorf("%w: product name is required", shared.ErrValidation)
		}
		if item.Price.IsNegative() {
			return nil, ErrNegativePrice
		}
		items = append(items, InvoiceItem{
			ProductName: name,
			Description: strings.TrimSpace(item.Description),
			Price:       money.Round2(item.Price),
		})
	}
	return items, nil
}

func totalsEqual(a, b Totals) bool {
	return a.Subtotal.Equal(b.Subtotal) && a.TaxAmount.Equal(b.TaxAmount) && a.FeeAmount.Equal(b.FeeAmount) &&
		a.DiscountAmount.Equal(b.DiscountAmount) && a.TotalAmount.Equal(b.TotalAmount)
}

// PreviewPaymentPlan shows the rows a payment term would produce for total
// without storing anything.
func (s *Service) PreviewPaymentPlan(ctx context.Context, total decimal.Decimal, issueDate time.Time, termID int64) (PlanPreview, error) {
	if total.IsNegative() {
		return PlanPreview{}, ErrNegativeTotal
	}
	term, err := s.loadTerm(ctx, termID)
	if err != nil {
		return PlanPreview{}, err
	}
	return PreviewPlan(total, issueDate, term)
}
