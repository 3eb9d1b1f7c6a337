package terms

import (
	"fmt"
	"strings"

	"github.com/gemvault/gemvault/internal/money"
	"github.com/gemvault/gemvault/internal/shared"
)

var (
	ErrTermNotFound = fmt.Errorf("%w: payment term", shared.ErrNotFound)
	ErrTermInactive = fmt.Errorf("%w: payment term is inactive", shared.ErrValidation)
)

// ValidationError lists every rule a payment term breaks.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "payment term invalid: " + strings.Join(e.Problems, "; ")
}

// Unwrap lets callers match shared.ErrValidation.
func (e *ValidationError) Unwrap() error {
	return shared.ErrValidation
}

// Validate checks the percentage and schedule rules of a payment term.
func Validate(term PaymentTerm) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if !money.IsPercentage(term.DownPaymentPercentage) {
		add("down payment percentage must be between 0 and 100")
	}
	if !money.IsPercentage(term.RemainingPercentage) {
		add("remaining percentage must be between 0 and 100")
	}
	sum := term.DownPaymentPercentage.Add(term.RemainingPercentage)
	if !money.WithinTolerance(sum, money.Hundred(), money.PercentTolerance) {
		add("down payment and remaining percentages must total 100, got %s", sum.String())
	}
	if term.TermMonths < 0 {
		add("term months must not be negative")
	}
	if len(term.Schedule) != term.TermMonths {
		add("schedule must have %d rows, got %d", term.TermMonths, len(term.Schedule))
	}

	seen := make(map[int]bool, len(term.Schedule))
	for _, row := range term.Schedule {
		if row.MonthNumber < 1 || row.MonthNumber > term.TermMonths {
			add("month %d is outside 1..%d", row.MonthNumber, term.TermMonths)
		} else if seen[row.MonthNumber] {
			add("month %d appears more than once", row.MonthNumber)
		}
		seen[row.MonthNumber] = true
		if !money.IsPercentage(row.Percentage) {
			add("month %d percentage must be between 0 and 100", row.MonthNumber)
		}
	}
	if len(term.Schedule) > 0 {
		total := term.ScheduleTotal()
		if !money.WithinTolerance(total, term.RemainingPercentage, money.PercentTolerance) {
			add("schedule percentages total %s, expected %s", total.String(), term.RemainingPercentage.String())
		}
	} else if term.RemainingPercentage.IsPositive() {
		add("remaining percentage %s has no monthly schedule", term.RemainingPercentage.String())
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func (in *TermInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if err := shared.ValidateStruct(in); err != nil {
		return err
	}
	in.DownPaymentPercentage = in.DownPaymentPercentage.Round(money.PercentageScale)
	in.RemainingPercentage = in.RemainingPercentage.Round(money.PercentageScale)
	for i := range in.Schedule {
		in.Schedule[i].Percentage = in.Schedule[i].Percentage.Round(money.PercentageScale)
	}
	return Validate(in.Term())
}

// Normalized trims and rounds the input, validates it and returns the term it
// describes.
func (in TermInput) Normalized() (PaymentTerm, error) {
	if err := in.normalize(); err != nil {
		return PaymentTerm{}, err
	}
	return in.Term(), nil
}
