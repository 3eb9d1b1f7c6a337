package terms

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gemvault/gemvault/internal/shared"
)

func pct(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func thirtySeventy() PaymentTerm {
	return PaymentTerm{
		Name:                  "30/70 over 5 months",
		DownPaymentPercentage: pct("30"),
		RemainingPercentage:   pct("70"),
		TermMonths:            5,
		Active:                true,
		Schedule: []ScheduleRow{
			{MonthNumber: 3, Percentage: pct("22")},
			{MonthNumber: 1, Percentage: pct("10")},
			{MonthNumber: 5, Percentage: pct("3")},
			{MonthNumber: 2, Percentage: pct("20")},
			{MonthNumber: 4, Percentage: pct("15")},
		},
	}
}

func TestValidateAcceptsWellFormedTerm(t *testing.T) {
	require.NoError(t, Validate(thirtySeventy()))

	cash := PaymentTerm{Name: "Cash", DownPaymentPercentage: pct("100"), RemainingPercentage: pct("0")}
	require.NoError(t, Validate(cash))
}

func TestValidateTolerance(t *testing.T) {
	term := thirtySeventy()
	term.DownPaymentPercentage = pct("29.995")
	require.NoError(t, Validate(term))

	term.DownPaymentPercentage = pct("29.98")
	err := Validate(term)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	term := thirtySeventy()
	term.RemainingPercentage = pct("60")
	term.Schedule[0].MonthNumber = 1
	term.Schedule = append(term.Schedule, ScheduleRow{MonthNumber: 9, Percentage: pct("-1")})

	err := Validate(term)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.ErrorIs(t, err, shared.ErrValidation)
	joined := verr.Error()
	require.Contains(t, joined, "must total 100")
	require.Contains(t, joined, "schedule must have 5 rows, got 6")
	require.Contains(t, joined, "month 1 appears more than once")
	require.Contains(t, joined, "month 9 is outside 1..5")
	require.Contains(t, joined, "month 9 percentage must be between 0 and 100")
	require.Contains(t, joined, "schedule percentages total")
}

func TestValidateRequiresScheduleForRemainder(t *testing.T) {
	term := PaymentTerm{DownPaymentPercentage: pct("40"), RemainingPercentage: pct("60")}
	require.ErrorIs(t, Validate(term), shared.ErrValidation)
}

func TestSortedDoesNotMutate(t *testing.T) {
	term := thirtySeventy()
	sorted := term.Sorted()
	for i, row := range sorted {
		require.Equal(t, i+1, row.MonthNumber)
	}
	require.Equal(t, 3, term.Schedule[0].MonthNumber)
	require.True(t, pct("70").Equal(term.ScheduleTotal()))
}
