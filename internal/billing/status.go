package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/gemvault/gemvault/internal/money"
)

// StatusSnapshot holds the payment fields recomputed by AggregatePaymentStatus.
type StatusSnapshot struct {
	TotalPaidAmount    decimal.Decimal `json:"total_paid_amount"`
	RemainingBalance   decimal.Decimal `json:"remaining_balance"`
	PaymentStatus      PaymentStatus   `json:"payment_status"`
	NextPaymentDueDate *time.Time      `json:"next_payment_due_date,omitempty"`
}

// AggregatePaymentStatus derives the payment fields of inv from its confirmed
// payments and its schedule rows as of today.
func AggregatePaymentStatus(inv Invoice, payments []Payment, schedules []Schedule, today time.Time) StatusSnapshot {
	paid := decimal.Zero
	for _, p := range payments {
		if p.Status == PaymentConfirmed {
			paid = paid.Add(p.AmountPaid)
		}
	}
	paid = money.Round2(paid)

	snap := StatusSnapshot{
		TotalPaidAmount:  paid,
		RemainingBalance: inv.TotalAmount.Sub(paid),
	}
	switch {
	case paid.GreaterThanOrEqual(inv.TotalAmount):
		snap.PaymentStatus = PaymentFullyPaid
	case paid.IsPositive():
		snap.PaymentStatus = PaymentPartiallyPaid
	default:
		snap.PaymentStatus = PaymentUnpaid
	}

	day := dateOnly(today)
	if snap.PaymentStatus != PaymentFullyPaid {
		for _, s := range schedules {
			if s.Status != SchedulePaid && dateOnly(s.DueDate).Before(day) {
				snap.PaymentStatus = PaymentOverdue
				break
			}
		}
	}

	for _, s := range schedules {
		if s.Status != SchedulePending {
			continue
		}
		due := dateOnly(s.DueDate)
		if snap.NextPaymentDueDate == nil || due.Before(*snap.NextPaymentDueDate) {
			snap.NextPaymentDueDate = &due
		}
	}
	return snap
}

// ApplyStatus copies the snapshot onto the invoice and keeps the document
// status in step with it.
func (inv *Invoice) ApplyStatus(snap StatusSnapshot) {
	inv.TotalPaidAmount = snap.TotalPaidAmount
	inv.RemainingBalance = snap.RemainingBalance
	inv.PaymentStatus = snap.PaymentStatus
	inv.NextPaymentDueDate = snap.NextPaymentDueDate
	inv.Status = InvoiceStatusFor(inv.Status, snap.PaymentStatus)
}

// InvoiceStatusFor maps a payment status onto the document status. Draft and
// cancelled invoices keep their status.
func InvoiceStatusFor(current InvoiceStatus, ps PaymentStatus) InvoiceStatus {
	switch current {
	case InvoiceDraft, InvoiceCancelled:
		return current
	}
	switch ps {
	case PaymentFullyPaid:
		return InvoicePaid
	case PaymentOverdue:
		return InvoiceOverdue
	default:
		return InvoiceSent
	}
}
