package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gemvault/gemvault/internal/terms"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func thirtySeventy() terms.PaymentTerm {
	return terms.PaymentTerm{
		ID:                    7,
		Name:                  "30/70 over 5 months",
		DownPaymentPercentage: dec("30"),
		RemainingPercentage:   dec("70"),
		TermMonths:            5,
		Active:                true,
		Schedule: []terms.ScheduleRow{
			{MonthNumber: 1, Percentage: dec("10")},
			{MonthNumber: 2, Percentage: dec("20")},
			{MonthNumber: 3, Percentage: dec("22")},
			{MonthNumber: 4, Percentage: dec("15")},
			{MonthNumber: 5, Percentage: dec("3")},
		},
	}
}

func TestGenerateSchedulesThirtySeventy(t *testing.T) {
	inv := Invoice{ID: 11, TotalAmount: dec("1000.00"), IssueDate: date("2024-03-15")}

	rows, err := GenerateSchedules(&inv, thirtySeventy())
	require.NoError(t, err)
	require.Len(t, rows, 6)

	want := []string{"300.00", "100.00", "200.00", "220.00", "150.00", "30.00"}
	monthly := decimal.Zero
	for i, row := range rows {
		require.Equal(t, want[i], row.ExpectedAmount.StringFixed(2), "row %d", i)
		require.Equal(t, i+1, row.PaymentOrder)
		require.Equal(t, int64(11), row.InvoiceID)
		require.Equal(t, SchedulePending, row.Status)
		require.True(t, row.PaidAmount.IsZero())
		if i > 0 {
			require.Equal(t, ScheduleMonthly, row.PaymentType)
			monthly = monthly.Add(row.ExpectedAmount)
		}
	}
	require.Equal(t, ScheduleDownPayment, rows[0].PaymentType)
	require.Equal(t, date("2024-03-15"), rows[0].DueDate)
	require.Equal(t, date("2024-04-15"), rows[1].DueDate)
	require.Equal(t, date("2024-08-15"), rows[5].DueDate)
	require.True(t, monthly.Equal(dec("700.00")))

	require.True(t, inv.PaymentPlanCreated)
	require.NotNil(t, inv.PaymentTermID)
	require.Equal(t, int64(7), *inv.PaymentTermID)
	require.NotNil(t, inv.NextPaymentDueDate)
	require.Equal(t, date("2024-03-15"), *inv.NextPaymentDueDate)
	require.True(t, inv.RemainingBalance.Equal(dec("1000.00")))
}

func TestGenerateSchedulesAbsorbsRoundingDrift(t *testing.T) {
	term := terms.PaymentTerm{
		DownPaymentPercentage: dec("10"),
		RemainingPercentage:   dec("90"),
		TermMonths:            3,
		Schedule: []terms.ScheduleRow{
			{MonthNumber: 1, Percentage: dec("30")},
			{MonthNumber: 2, Percentage: dec("30")},
			{MonthNumber: 3, Percentage: dec("30")},
		},
	}
	inv := Invoice{TotalAmount: dec("100.01"), IssueDate: date("2024-01-10")}

	rows, err := GenerateSchedules(&inv, term)
	require.NoError(t, err)

	sum := decimal.Zero
	for _, row := range rows[1:] {
		sum = sum.Add(row.ExpectedAmount)
	}
	remaining := inv.TotalAmount.Sub(rows[0].ExpectedAmount)
	require.Equal(t, "10.00", rows[0].ExpectedAmount.StringFixed(2))
	require.True(t, sum.Equal(dec("90.01")))
	require.True(t, sum.Equal(remaining))
}

func TestGenerateSchedulesClampsMonthEnd(t *testing.T) {
	term := terms.PaymentTerm{
		DownPaymentPercentage: dec("40"),
		RemainingPercentage:   dec("60"),
		TermMonths:            3,
		Schedule: []terms.ScheduleRow{
			{MonthNumber: 1, Percentage: dec("20")},
			{MonthNumber: 2, Percentage: dec("20")},
			{MonthNumber: 3, Percentage: dec("20")},
		},
	}
	inv := Invoice{TotalAmount: dec("300"), IssueDate: date("2024-01-31")}

	rows, err := GenerateSchedules(&inv, term)
	require.NoError(t, err)
	require.Equal(t, date("2024-02-29"), rows[1].DueDate)
	require.Equal(t, date("2024-03-31"), rows[2].DueDate)
	require.Equal(t, date("2024-04-30"), rows[3].DueDate)
}

func TestGenerateSchedulesZeroDownPayment(t *testing.T) {
	term := terms.PaymentTerm{
		DownPaymentPercentage: dec("0"),
		RemainingPercentage:   dec("100"),
		TermMonths:            2,
		Schedule: []terms.ScheduleRow{
			{MonthNumber: 1, Percentage: dec("50")},
			{MonthNumber: 2, Percentage: dec("50")},
		},
	}
	inv := Invoice{TotalAmount: dec("800"), IssueDate: date("2024-05-01")}

	rows, err := GenerateSchedules(&inv, term)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.True(t, rows[0].ExpectedAmount.IsZero())
	require.Equal(t, SchedulePaid, rows[0].Status)
	require.Equal(t, "400.00", rows[1].ExpectedAmount.StringFixed(2))
	require.Equal(t, "400.00", rows[2].ExpectedAmount.StringFixed(2))
}

func TestGenerateSchedulesCashTerm(t *testing.T) {
	term := terms.PaymentTerm{DownPaymentPercentage: dec("100"), RemainingPercentage: dec("0")}
	inv := Invoice{TotalAmount: dec("250.75"), IssueDate: date("2024-05-01")}

	rows, err := GenerateSchedules(&inv, term)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.True(t, rows[0].ExpectedAmount.Equal(dec("250.75")))
	require.Nil(t, inv.PaymentTermID)
}

func TestGenerateSchedulesRejectsSecondRun(t *testing.T) {
	inv := Invoice{TotalAmount: dec("1000"), IssueDate: date("2024-03-15")}
	_, err := GenerateSchedules(&inv, thirtySeventy())
	require.NoError(t, err)

	_, err = GenerateSchedules(&inv, thirtySeventy())
	require.ErrorIs(t, err, ErrPlanExists)
}

func TestGenerateSchedulesRejectsInvalidTerm(t *testing.T) {
	term := thirtySeventy()
	term.RemainingPercentage = dec("60")
	inv := Invoice{TotalAmount: dec("1000"), IssueDate: date("2024-03-15")}

	_, err := GenerateSchedules(&inv, term)
	require.Error(t, err)
	require.False(t, inv.PaymentPlanCreated)

	negative := Invoice{TotalAmount: dec("-1"), IssueDate: date("2024-03-15")}
	_, err = GenerateSchedules(&negative, thirtySeventy())
	require.ErrorIs(t, err, ErrNegativeTotal)
}

func TestAddMonths(t *testing.T) {
	cases := []struct {
		from string
		n    int
		want string
	}{
		{"2024-01-15", 1, "2024-02-15"},
		{"2024-01-31", 1, "2024-02-29"},
		{"2023-01-31", 1, "2023-02-28"},
		{"2024-11-30", 3, "2025-02-28"},
		{"2024-08-31", 1, "2024-09-30"},
		{"2024-12-01", 12, "2025-12-01"},
	}
	for _, tc := range cases {
		require.Equal(t, date(tc.want), AddMonths(date(tc.from), tc.n), "%s + %d", tc.from, tc.n)
	}
}

func TestPreviewPlan(t *testing.T) {
	preview, err := PreviewPlan(dec("1000"), date("2024-03-15"), thirtySeventy())
	require.NoError(t, err)
	require.Equal(t, "300.00", preview.DownPayment.StringFixed(2))
	require.Equal(t, "700.00", preview.RemainingAmount.StringFixed(2))
	require.Len(t, preview.Schedules, 6)
}
