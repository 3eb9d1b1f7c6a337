package billing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gemvault/gemvault/internal/money"
	"github.com/gemvault/gemvault/internal/terms"
)

// GenerateSchedules builds the payment plan of inv from term and marks the
// invoice as planned. The down payment is due on the issue date with
// payment_order 1; month N is due N calendar months later with order N+1.
//
// The remaining amount is the total less the rounded down payment. Monthly rows
// split it in proportion to their percentages using cumulative rounding, so
// the plan adds up to the invoice total exactly.
func GenerateSchedules(inv *Invoice, term terms.PaymentTerm) ([]Schedule, error) {
	if inv.PaymentPlanCreated {
		return nil, ErrPlanExists
	}
	if inv.TotalAmount.IsNegative() {
		return nil, ErrNegativeTotal
	}
	if err := terms.Validate(term); err != nil {
		return nil, err
	}

	issue := dateOnly(inv.IssueDate)
	total := inv.TotalAmount
	down := money.ApplyPercentage(total, term.DownPaymentPercentage)
	remaining := total.Sub(down)

	rows := term.Sorted()
	out := make([]Schedule, 0, len(rows)+1)
	out = append(out, newSchedule(inv.ID, ScheduleDownPayment, issue, down, 1))

	whole := term.ScheduleTotal()
	cumulativePct := decimal.Zero
	allocated := decimal.Zero
	for i, row := range rows {
		cumulativePct = cumulativePct.Add(row.Percentage)
		target := money.Share(remaining, cumulativePct, whole)
		if i == len(rows)-1 {
			target = remaining
		}
		amount := target.Sub(allocated)
		allocated = target
		out = append(out, newSchedule(inv.ID, ScheduleMonthly, AddMonths(issue, row.MonthNumber), amount, row.MonthNumber+1))
	}

	inv.PaymentPlanCreated = true
	if term.ID != 0 {
		inv.PaymentTermID = ptrInt64(term.ID)
	}
	next := issue
	inv.NextPaymentDueDate = &next
	inv.RemainingBalance = total
	return out, nil
}

func newSchedule(invoiceID int64, kind ScheduleType, due time.Time, amount decimal.Decimal, order int) Schedule {
	s := Schedule{
		InvoiceID:      invoiceID,
		PaymentType:    kind,
		DueDate:        due,
		ExpectedAmount: amount,
		PaidAmount:     decimal.Zero,
		PaymentOrder:   order,
		Status:         SchedulePending,
	}
	if !amount.IsPositive() {
		s.Status = SchedulePaid
	}
	return s
}

// AddMonths moves t forward by n calendar months. Days past the end of the
// target month are clamped to its last day, so Jan 31 + 1 month is Feb 28/29.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, t.Location())
}

// PlanPreview is an unsaved payment plan for a total and a term.
type PlanPreview struct {
	TotalAmount     decimal.Decimal `json:"total_amount"`
	DownPayment     decimal.Decimal `json:"down_payment"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	Schedules       []Schedule      `json:"schedules"`
}

// PreviewPlan generates the schedule rows for total without an invoice.
func PreviewPlan(total decimal.Decimal, issueDate time.Time, term terms.PaymentTerm) (PlanPreview, error) {
	inv := Invoice{TotalAmount: money.Round2(total), IssueDate: issueDate}
	rows, err := GenerateSchedules(&inv, term)
	if err != nil {
		return PlanPreview{}, err
	}
	if len(rows) == 0 {
		return PlanPreview{}, errors.New("billing: empty plan")
	}
	return PlanPreview{
		TotalAmount:     inv.TotalAmount,
		DownPayment:     rows[0].ExpectedAmount,
		RemainingAmount: inv.TotalAmount.Sub(rows[0].ExpectedAmount),
		Schedules:       rows,
	}, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptrInt64(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}
