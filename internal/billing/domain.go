// Package billing issues invoices, generates payment plans from payment terms
// and takes customer payments through review into the schedule.
package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus is the document lifecycle of an invoice.
type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "draft"
	InvoiceSent      InvoiceStatus = "sent"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceOverdue   InvoiceStatus = "overdue"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// Valid reports whether the status is known.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceDraft, InvoiceSent, InvoicePaid, InvoiceOverdue, InvoiceCancelled:
		return true
	}
	return false
}

// Label returns the display text shown in the portals.
func (s InvoiceStatus) Label() string {
	switch s {
	case InvoiceDraft:
		return "Draft"
	case InvoiceSent:
		return "Sent"
	case InvoicePaid:
		return "Paid"
	case InvoiceOverdue:
		return "Overdue"
	case InvoiceCancelled:
		return "Cancelled"
	}
	return "Unknown"
}

// PaymentStatus summarises how much of an invoice has been paid.
type PaymentStatus string

const (
	PaymentUnpaid        PaymentStatus = "unpaid"
	PaymentPartiallyPaid PaymentStatus = "partially_paid"
	PaymentFullyPaid     PaymentStatus = "fully_paid"
	PaymentOverdue       PaymentStatus = "overdue"
)

// Valid reports whether the status is known.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentUnpaid, PaymentPartiallyPaid, PaymentFullyPaid, PaymentOverdue:
		return true
	}
	return false
}

// Label returns the display text shown in the portals.
func (s PaymentStatus) Label() string {
	switch s {
	case PaymentUnpaid:
		return "Unpaid"
	case PaymentPartiallyPaid:
		return "Partially paid"
	case PaymentFullyPaid:
		return "Fully paid"
	case PaymentOverdue:
		return "Overdue"
	}
	return "Unknown"
}

// PaymentStatuses lists every payment status in display order.
func PaymentStatuses() []PaymentStatus {
	return []PaymentStatus{PaymentUnpaid, PaymentPartiallyPaid, PaymentFullyPaid, PaymentOverdue}
}

// ScheduleType distinguishes the down payment from monthly instalments.
type ScheduleType string

const (
	ScheduleDownPayment ScheduleType = "downpayment"
	ScheduleMonthly     ScheduleType = "monthly"
)

// Valid reports whether the type is known.
func (t ScheduleType) Valid() bool {
	return t == ScheduleDownPayment || t == ScheduleMonthly
}

// Label returns the display text shown in the portals.
func (t ScheduleType) Label() string {
	switch t {
	case ScheduleDownPayment:
		return "Down payment"
	case ScheduleMonthly:
		return "Monthly instalment"
	}
	return "Unknown"
}

// ScheduleStatus is the state of a single instalment.
type ScheduleStatus string

const (
	SchedulePending ScheduleStatus = "pending"
	SchedulePaid    ScheduleStatus = "paid"
	ScheduleOverdue ScheduleStatus = "overdue"
)

// Valid reports whether the status is known.
func (s ScheduleStatus) Valid() bool {
	switch s {
	case SchedulePending, SchedulePaid, ScheduleOverdue:
		return true
	}
	return false
}

// Label returns the display text shown in the portals.
func (s ScheduleStatus) Label() string {
	switch s {
	case SchedulePending:
		return "Pending"
	case SchedulePaid:
		return "Paid"
	case ScheduleOverdue:
		return "Overdue"
	}
	return "Unknown"
}

// PaymentState is the review workflow of a submitted payment.
type PaymentState string

const (
	PaymentPending   PaymentState = "pending"
	PaymentApproved  PaymentState = "approved"
	PaymentConfirmed PaymentState = "confirmed"
	PaymentRejected  PaymentState = "rejected"
)

// Valid reports whether the state is known.
func (s PaymentState) Valid() bool {
	switch s {
	case PaymentPending, PaymentApproved, PaymentConfirmed, PaymentRejected:
		return true
	}
	return false
}

// Label returns the display text shown in the portals.
func (s PaymentState) Label() string {
	switch s {
	case PaymentPending:
		return "Waiting for review"
	case PaymentApproved:
		return "Approved"
	case PaymentConfirmed:
		return "Confirmed"
	case PaymentRejected:
		return "Rejected"
	}
	return "Unknown"
}

// Terminal reports whether no further transition is possible.
func (s PaymentState) Terminal() bool {
	return s == PaymentConfirmed || s == PaymentRejected
}

// PaymentType describes what a payment was meant to cover.
type PaymentType string

const (
	PaymentTypeDownPayment PaymentType = "downpayment"
	PaymentTypeInstallment PaymentType = "installment"
	PaymentTypeFull        PaymentType = "full"
)

// Valid reports whether the type is known.
func (t PaymentType) Valid() bool {
	switch t {
	case PaymentTypeDownPayment, PaymentTypeInstallment, PaymentTypeFull:
		return true
	}
	return false
}

// Label returns the display text shown in the portals.
func (t PaymentType) Label() string {
	switch t {
	case PaymentTypeDownPayment:
		return "Down payment"
	case PaymentTypeInstallment:
		return "Instalment"
	case PaymentTypeFull:
		return "Full payment"
	}
	return "Unknown"
}

// Invoice is the aggregate root of billing.
type Invoice struct {
	ID                 int64           `json:"id"`
	Number             string          `json:"number"`
	CustomerID         int64           `json:"customer_id"`
	TaxID              *int64          `json:"tax_id,omitempty"`
	FeeID              *int64          `json:"fee_id,omitempty"`
	DiscountID         *int64          `json:"discount_id,omitempty"`
	PaymentTermID      *int64          `json:"payment_term_id,omitempty"`
	Currency           string          `json:"currency"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	TaxAmount          decimal.Decimal `json:"tax_amount"`
	FeeAmount          decimal.Decimal `json:"fee_amount"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	IssueDate          time.Time       `json:"issue_date"`
	DueDate            *time.Time      `json:"due_date,omitempty"`
	Status             InvoiceStatus   `json:"status"`
	PaymentStatus      PaymentStatus   `json:"payment_status"`
	TotalPaidAmount    decimal.Decimal `json:"total_paid_amount"`
	RemainingBalance   decimal.Decimal `json:"remaining_balance"`
	NextPaymentDueDate *time.Time      `json:"next_payment_due_date,omitempty"`
	PaymentPlanCreated bool            `json:"payment_plan_created"`
	Notes              string          `json:"notes,omitempty"`
	Version            int             `json:"version"`
	CreatedBy          int64           `json:"created_by"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`

	Items     []InvoiceItem `json:"items,omitempty"`
	Schedules []Schedule    `json:"schedules,omitempty"`
	Payments  []Payment     `json:"payments,omitempty"`
}

// Editable reports whether items and charges may still change.
func (inv Invoice) Editable() bool {
	return inv.Status == InvoiceDraft && !inv.PaymentPlanCreated
}

// AcceptsPayments reports whether customers may submit payments against the invoice.
func (inv Invoice) AcceptsPayments() bool {
	return (inv.Status == InvoiceSent || inv.Status == InvoiceOverdue) && inv.PaymentStatus != PaymentFullyPaid
}

// InvoiceItem is a line of an invoice. Price is the line total.
type InvoiceItem struct {
	ID          int64           `json:"id"`
	InvoiceID   int64           `json:"invoice_id"`
	ProductName string          `json:"product_name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
}

// Schedule is one dated instalment of an invoice payment plan.
type Schedule struct {
	ID             int64           `json:"id"`
	InvoiceID      int64           `json:"invoice_id"`
	PaymentType    ScheduleType    `json:"payment_type"`
	DueDate        time.Time       `json:"due_date"`
	ExpectedAmount decimal.Decimal `json:"expected_amount"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	PaymentOrder   int             `json:"payment_order"`
	Status         ScheduleStatus  `json:"status"`
}

// Outstanding returns what is still owed on the row, never negative.
func (s Schedule) Outstanding() decimal.Decimal {
	left := s.ExpectedAmount.Sub(s.PaidAmount)
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}

// Payment is a customer payment submitted for review.
type Payment struct {
	ID                int64           `json:"id"`
	Ref               uuid.UUID       `json:"ref"`
	InvoiceID         int64           `json:"invoice_id"`
	CustomerID        int64           `json:"customer_id"`
	PaymentType       PaymentType     `json:"payment_type"`
	AmountPaid        decimal.Decimal `json:"amount_paid"`
	ExpectedAmount    decimal.Decimal `json:"expected_amount"`
	ReferenceNumber   string          `json:"reference_number"`
	ReceiptImages     []string        `json:"receipt_images"`
	SelectedSchedules []int64         `json:"selected_schedules"`
	Status            PaymentState    `json:"status"`
	RejectionReason   string          `json:"rejection_reason,omitempty"`
	ApprovedAt        *time.Time      `json:"approved_at,omitempty"`
	ApprovedBy        *int64          `json:"approved_by,omitempty"`
	ConfirmedAt       *time.Time      `json:"confirmed_at,omitempty"`
	ConfirmedBy       *int64          `json:"confirmed_by,omitempty"`
	SubmittedBy       int64           `json:"submitted_by"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// --- Inputs and filters ---

// ItemInput describes an invoice line.
type ItemInput struct {
	ProductName string          `json:"product_name" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=1000"`
	Price       decimal.Decimal `json:"price"`
}

// CreateInvoiceInput carries a new invoice.
type CreateInvoiceInput struct {
	CustomerID    int64       `json:"customer_id" validate:"required,gt=0"`
	IssueDate     string      `json:"issue_date" validate:"required,datetime=2006-01-02"`
	DueDate       string      `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	TaxID         *int64      `json:"tax_id"`
	FeeID         *int64      `json:"fee_id"`
	DiscountID    *int64      `json:"discount_id"`
	PaymentTermID *int64      `json:"payment_term_id"`
	Currency      string      `json:"currency" validate:"omitempty,len=3"`
	Notes         string      `json:"notes" validate:"max=2000"`
	Items         []ItemInput `json:"items" validate:"required,min=1,dive"`
}

// SubmitPaymentInput carries a payment submitted from the portal or the back-office.
type SubmitPaymentInput struct {
	InvoiceID         int64           `json:"invoice_id" validate:"required,gt=0"`
	PaymentType       PaymentType     `json:"payment_type" validate:"omitempty,oneof=downpayment installment full"`
	AmountPaid        decimal.Decimal `json:"amount_paid"`
	ReferenceNumber   string          `json:"reference_number" validate:"required,max=100"`
	ReceiptImages     []string        `json:"receipt_images" validate:"max=10,dive,required,max=500"`
	SelectedSchedules []int64         `json:"selected_schedules" validate:"dive,gt=0"`
	IdempotencyKey    string          `json:"-"`
}

// InvoiceFilter narrows invoice listings.
type InvoiceFilter struct {
	Status        InvoiceStatus
	PaymentStatus PaymentStatus
	CustomerID    int64
	Search        string
	Page          int
	Limit         int
}

// PaymentFilter narrows payment listings.
type PaymentFilter struct {
	Status     PaymentState
	InvoiceID  int64
	CustomerID int64
	Page       int
	Limit      int
}

// StatusSummary aggregates receivables for one payment status.
type StatusSummary struct {
	PaymentStatus PaymentStatus   `json:"payment_status"`
	Label         string          `json:"label"`
	Invoices      int             `json:"invoices"`
	Total         decimal.Decimal `json:"total"`
	Outstanding   decimal.Decimal `json:"outstanding"`
}

// ReceivablesSummary is the dashboard view of open receivables.
type ReceivablesSummary struct {
	ByStatus         []StatusSummary `json:"by_status"`
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
	PendingPayments  int             `json:"pending_payments"`
	GeneratedAt      time.Time       `json:"generated_at"`
}

// SweepResult reports what an overdue sweep changed.
type SweepResult struct {
	SchedulesMarked   int `json:"schedules_marked"`
	InvoicesRefreshed int `json:"invoices_refreshed"`
}
