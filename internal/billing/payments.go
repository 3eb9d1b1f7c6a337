package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gemvault/gemvault/internal/money"
	"github.com/gemvault/gemvault/internal/shared"
)

const idempotencyModule = "billing.payment.submit"

// PaymentResult is returned by ConfirmPayment.
type PaymentResult struct {
	Payment     Payment         `json:"payment"`
	Invoice     Invoice         `json:"invoice"`
	Applied     []Allocation    `json:"applied"`
	Unallocated decimal.Decimal `json:"unallocated"`
}

// SubmitPayment records a payment against an invoice in pending state.
// Customers may only pay their own invoices. Selected schedule rows must
// belong to the invoice and still be open.
func (s *Service) SubmitPayment(ctx context.Context, actor shared.Actor, in SubmitPaymentInput) (payment Payment, err error) {
	if !actor.IsStaff() && !actor.IsCustomer() {
		return Payment{}, shared.ErrForbidden
	}
	if err := shared.ValidateStruct(in); err != nil {
		return Payment{}, err
	}
	amount := money.Round2(in.AmountPaid)
	if !amount.IsPositive() {
		return Payment{}, ErrInvalidAmount
	}
	reference := strings.TrimSpace(in.ReferenceNumber)
	if reference == "" {
		return Payment{}, fmt.Errorf("%w: reference_number is required", shared.ErrValidation)
	}

	if key := strings.TrimSpace(in.IdempotencyKey); key != "" && s.opts.Idempotency != nil {
		if err := s.opts.Idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			return Payment{}, err
		}
		defer func() {
			if err == nil {
				return
			}
			if derr := s.opts.Idempotency.Delete(context.WithoutCancel(ctx), key); derr != nil {
				s.log.Warn("release idempotency key", slog.Any("error", derr))
			}
		}()
	}

	images := in.ReceiptImages
	if images == nil {
		images = []string{}
	}
	var inv Invoice
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.LockInvoice(ctx, in.InvoiceID)
		if err != nil {
			return err
		}
		if !actor.CanAccessCustomer(inv.CustomerID) {
			return ErrInvoiceNotFound
		}
		if !inv.AcceptsPayments() {
			return ErrInvoiceClosed
		}
		selected, expected, err := selectSchedules(inv, in.SelectedSchedules)
		if err != nil {
			return err
		}
		payment = Payment{
			Ref:               uuid.New(),
			InvoiceID:         inv.ID,
			CustomerID:        inv.CustomerID,
			PaymentType:       in.PaymentType,
			AmountPaid:        amount,
			ExpectedAmount:    expected,
			ReferenceNumber:   reference,
			ReceiptImages:     images,
			SelectedSchedules: selected,
			Status:            PaymentPending,
			SubmittedBy:       actor.ID,
		}
		if payment.PaymentType == "" {
			payment.PaymentType = derivePaymentType(inv, selected, amount)
		}
		id, err := tx.InsertPayment(ctx, payment)
		if err != nil {
			return err
		}
		payment.ID = id
		return nil
	})
	if err != nil {
		return Payment{}, err
	}

	s.afterTransition(ctx, actor, inv, payment, shared.ApprovalSubmit, payment.ReferenceNumber)
	s.record(ctx, actor, "payment.submitted", "payment", payment.ID, map[string]any{
		"invoice_id": inv.ID,
		"amount":     money.Format(payment.AmountPaid),
		"expected":   money.Format(payment.ExpectedAmount),
		"schedules":  payment.SelectedSchedules,
	})
	s.bumpSummary(ctx)
	return payment, nil
}

// ApprovePayment moves a pending payment to approved.
func (s *Service) ApprovePayment(ctx context.Context, actor shared.Actor, paymentID int64) (Payment, error) {
	now := s.now()
	inv, p, err := s.transitionPayment(ctx, actor, paymentID, func(ctx context.Context, tx TxRepository, inv *Invoice, p *Payment) error {
		if err := p.Approve(actor.ID, now); err != nil {
			return err
		}
		return tx.UpdatePayment(ctx, *p)
	})
	if err != nil {
		return Payment{}, err
	}
	s.afterTransition(ctx, actor, inv, p, shared.ApprovalApprove, "")
	s.record(ctx, actor, "payment.approved", "payment", p.ID, map[string]any{"invoice_id": inv.ID})
	return p, nil
}

// RejectPayment closes a pending or approved payment with a reason and
// refreshes the invoice payment status under the same lock.
func (s *Service) RejectPayment(ctx context.Context, actor shared.Actor, paymentID int64, reason string) (Payment, error) {
	if strings.TrimSpace(reason) == "" {
		return Payment{}, ErrReasonRequired
	}
	now := s.now()
	inv, p, err := s.transitionPayment(ctx, actor, paymentID, func(ctx context.Context, tx TxRepository, inv *Invoice, p *Payment) error {
		if err := p.Reject(reason, now); err != nil {
			return err
		}
		if err := tx.UpdatePayment(ctx, *p); err != nil {
			return err
		}
		inv.ApplyStatus(AggregatePaymentStatus(*inv, inv.Payments, inv.Schedules, now))
		return tx.UpdateInvoice(ctx, *inv)
	})
	if err != nil {
		return Payment{}, err
	}
	s.afterTransition(ctx, actor, inv, p, shared.ApprovalReject, p.RejectionReason)
	s.record(ctx, actor, "payment.rejected", "payment", p.ID, map[string]any{"invoice_id": inv.ID, "reason": p.RejectionReason})
	s.bumpSummary(ctx)
	return p, nil
}

// ConfirmPayment moves an approved payment to confirmed, allocates its amount
// over the selected schedule rows (all open rows when none were selected) and
// refreshes the invoice payment status. Everything happens under the invoice
// row lock.
func (s *Service) ConfirmPayment(ctx context.Context, actor shared.Actor, paymentID int64) (PaymentResult, error) {
	now := s.now()
	var alloc AllocationResult
	inv, p, err := s.transitionPayment(ctx, actor, paymentID, func(ctx context.Context, tx TxRepository, inv *Invoice, p *Payment) error {
		if err := p.Confirm(actor.ID, now); err != nil {
			return err
		}
		ids := p.SelectedSchedules
		if len(ids) == 0 {
			ids = OutstandingIDs(inv.Schedules)
		}
		alloc = Allocate(inv.Schedules, ids, p.AmountPaid)
		if err := tx.UpdateSchedules(ctx, alloc.Changed()); err != nil {
			return err
		}
		inv.Schedules = alloc.Schedules
		if err := tx.UpdatePayment(ctx, *p); err != nil {
			return err
		}
		inv.ApplyStatus(AggregatePaymentStatus(*inv, inv.Payments, inv.Schedules, now))
		return tx.UpdateInvoice(ctx, *inv)
	})
	if err != nil {
		return PaymentResult{}, err
	}

	s.opts.Metrics.Allocated(alloc.Total())
	s.afterTransition(ctx, actor, inv, p, shared.ApprovalConfirm, "")
	s.record(ctx, actor, "payment.confirmed", "payment", p.ID, map[string]any{
		"invoice_id":     inv.ID,
		"amount":         money.Format(p.AmountPaid),
		"allocated":      money.Format(alloc.Total()),
		"unallocated":    money.Format(alloc.Remaining),
		"payment_status": string(inv.PaymentStatus),
	})
	if alloc.Remaining.IsPositive() {
		s.log.Info("payment exceeds selected schedules",
			slog.Int64("payment_id", p.ID),
			slog.String("unallocated", money.Format(alloc.Remaining)))
	}
	s.bumpSummary(ctx)
	return PaymentResult{Payment: p, Invoice: inv, Applied: alloc.Applied, Unallocated: alloc.Remaining}, nil
}

type paymentStep func(ctx context.Context, tx TxRepository, inv *Invoice, p *Payment) error

// transitionPayment locks the invoice owning the payment and runs step on the
// locked aggregate.
func (s *Service) transitionPayment(ctx context.Context, actor shared.Actor, paymentID int64, step paymentStep) (Invoice, Payment, error) {
	if err := actor.RequireStaff(); err != nil {
		return Invoice{}, Payment{}, err
	}
	current, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return Invoice{}, Payment{}, err
	}
	var inv Invoice
	var payment Payment
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.LockInvoice(ctx, current.InvoiceID)
		if err != nil {
			return err
		}
		idx := -1
		for i := range inv.Payments {
			if inv.Payments[i].ID == paymentID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return ErrPaymentNotFound
		}
		if err := step(ctx, tx, &inv, &inv.Payments[idx]); err != nil {
			return err
		}
		payment = inv.Payments[idx]
		return nil
	})
	if err != nil {
		return Invoice{}, Payment{}, err
	}
	return inv, payment, nil
}

// afterTransition publishes the side effects of a committed payment change.
// Failures are logged; the change itself already stands.
func (s *Service) afterTransition(ctx context.Context, actor shared.Actor, inv Invoice, p Payment, action shared.ApprovalAction, note string) {
	s.opts.Metrics.PaymentTransition(string(p.Status))
	if s.opts.Approvals != nil {
		entry := shared.ApprovalLog{Module: ApprovalModule, RefID: p.Ref, ActorID: actor.ID, ActorRole: actor.Role, Action: action, Note: note, At: s.now()}
		if err := s.opts.Approvals.Record(ctx, entry); err != nil {
			s.log.Warn("record payment approval", slog.Int64("payment_id", p.ID), slog.Any("error", err))
		}
	}
	if s.opts.Notifier != nil {
		event := PaymentEvent{
			PaymentID:     p.ID,
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.Number,
			CustomerID:    inv.CustomerID,
			State:         p.Status,
			Amount:        money.Format(p.AmountPaid),
			Reason:        p.RejectionReason,
		}
		if err := s.opts.Notifier.NotifyPayment(ctx, event); err != nil {
			s.log.Warn("enqueue payment notification", slog.Int64("payment_id", p.ID), slog.Any("error", err))
		}
	}
}

// selectSchedules checks the requested rows against the invoice and returns
// them deduplicated with the amount they still expect. Without a selection the
// expected amount is the remaining balance.
func selectSchedules(inv Invoice, ids []int64) ([]int64, decimal.Decimal, error) {
	if len(ids) == 0 {
		return []int64{}, inv.RemainingBalance, nil
	}
	rows := make(map[int64]Schedule, len(inv.Schedules))
	for _, row := range inv.Schedules {
		rows[row.ID] = row
	}
	seen := make(map[int64]bool, len(ids))
	selected := make([]int64, 0, len(ids))
	expected := decimal.Zero
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		row, ok := rows[id]
		if !ok {
			return nil, decimal.Zero, fmt.Errorf("%w (id %d)", ErrUnknownSchedule, id)
		}
		if row.Status == SchedulePaid {
			return nil, decimal.Zero, fmt.Errorf("%w (id %d)", ErrScheduleSettled, id)
		}
		selected = append(selected, id)
		expected = expected.Add(row.Outstanding())
	}
	return selected, money.Round2(expected), nil
}

func derivePaymentType(inv Invoice, selected []int64, amount decimal.Decimal) PaymentType {
	if len(selected) > 0 {
		onlyDown := true
		for _, id := range selected {
			for _, row := range inv.Schedules {
				if row.ID == id && row.PaymentType != ScheduleDownPayment {
					onlyDown = false
				}
			}
		}
		if onlyDown {
			return PaymentTypeDownPayment
		}
		return PaymentTypeInstallment
	}
	if amount.GreaterThanOrEqual(inv.RemainingBalance) || len(inv.Schedules) == 0 {
		return PaymentTypeFull
	}
	return PaymentTypeInstallment
}

// IsTransitionError reports whether err was caused by a refused payment transition.
func IsTransitionError(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}
