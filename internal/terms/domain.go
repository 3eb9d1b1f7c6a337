// Package terms manages payment term templates: a down payment plus monthly instalments.
package terms

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentTerm is the template an invoice payment plan is generated from.
type PaymentTerm struct {
	ID                    int64           `json:"id"`
	Name                  string          `json:"name"`
	Description           string          `json:"description,omitempty"`
	DownPaymentPercentage decimal.Decimal `json:"down_payment_percentage"`
	RemainingPercentage   decimal.Decimal `json:"remaining_percentage"`
	TermMonths            int             `json:"term_months"`
	Active                bool            `json:"active"`
	Schedule              []ScheduleRow   `json:"schedule"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// ScheduleRow is the share of the remaining percentage due in a given month.
type ScheduleRow struct {
	MonthNumber int             `json:"month_number"`
	Percentage  decimal.Decimal `json:"percentage"`
}

// Sorted returns the schedule rows ordered by month number.
func (t PaymentTerm) Sorted() []ScheduleRow {
	rows := make([]ScheduleRow, len(t.Schedule))
	copy(rows, t.Schedule)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].MonthNumber < rows[j].MonthNumber })
	return rows
}

// ScheduleTotal sums the schedule row percentages.
func (t PaymentTerm) ScheduleTotal() decimal.Decimal {
	total := decimal.Zero
	for _, row := range t.Schedule {
		total = total.Add(row.Percentage)
	}
	return total
}

// TermInput creates or updates a payment term.
type TermInput struct {
	Name                  string          `json:"name" validate:"required,max=120"`
	Description           string          `json:"description" validate:"max=500"`
	DownPaymentPercentage decimal.Decimal `json:"down_payment_percentage"`
	RemainingPercentage   decimal.Decimal `json:"remaining_percentage"`
	TermMonths            int             `json:"term_months" validate:"gte=0,lte=120"`
	Active                bool            `json:"active"`
	Schedule              []ScheduleRow   `json:"schedule" validate:"dive"`
}

// Term converts the input into a domain value.
func (in TermInput) Term() PaymentTerm {
	return PaymentTerm{
		Name:                  in.Name,
		Description:           in.Description,
		DownPaymentPercentage: in.DownPaymentPercentage,
		RemainingPercentage:   in.RemainingPercentage,
		TermMonths:            in.TermMonths,
		Active:                in.Active,
		Schedule:              in.Schedule,
	}
}

// ListFilter narrows term listings.
type ListFilter struct {
	Search     string
	ActiveOnly bool
	Page       int
	Limit      int
}
