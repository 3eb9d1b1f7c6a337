package billing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func row(id int64, order int, expected, paid string) Schedule {
	s := Schedule{ID: id, PaymentOrder: order, ExpectedAmount: dec(expected), PaidAmount: dec(paid), Status: SchedulePending}
	if s.PaidAmount.GreaterThanOrEqual(s.ExpectedAmount) {
		s.Status = SchedulePaid
	}
	return s
}

func applied(res AllocationResult) []string {
	out := make([]string, len(res.Applied))
	for i, a := range res.Applied {
		out[i] = fmt.Sprintf("%d:%s", a.ScheduleID, a.Amount.StringFixed(2))
	}
	return out
}

func formatAlloc(scheduleID int64, amount string) string {
	return fmt.Sprintf("%d:%s", scheduleID, amount)
}

func TestAllocateFillsInOrder(t *testing.T) {
	rows := []Schedule{row(1, 1, "300.00", "0"), row(2, 2, "200.00", "0")}

	res := Allocate(rows, []int64{1, 2}, dec("450.00"))

	require.Equal(t, "300.00", res.Schedules[0].PaidAmount.StringFixed(2))
	require.Equal(t, SchedulePaid, res.Schedules[0].Status)
	require.Equal(t, "150.00", res.Schedules[1].PaidAmount.StringFixed(2))
	require.Equal(t, SchedulePending, res.Schedules[1].Status)
	require.True(t, res.Remaining.IsZero())
	require.Len(t, res.Applied, 2)
	require.True(t, res.Total().Equal(dec("450")))

	require.True(t, rows[0].PaidAmount.IsZero(), "input must not change")
}

func TestAllocateSortsByPaymentOrder(t *testing.T) {
	rows := []Schedule{row(10, 3, "100", "0"), row(11, 1, "100", "0"), row(12, 2, "100", "0")}

	res := Allocate(rows, []int64{10, 12, 11}, dec("150"))

	require.Equal(t, []string{"11:100.00", "12:50.00"}, applied(res))
	require.True(t, res.Schedules[0].PaidAmount.IsZero())
}

func TestAllocateNeverExceedsExpected(t *testing.T) {
	rows := []Schedule{row(1, 1, "100", "80"), row(2, 2, "50", "0")}

	res := Allocate(rows, []int64{1, 2}, dec("500"))

	require.Equal(t, "100.00", res.Schedules[0].PaidAmount.StringFixed(2))
	require.Equal(t, "50.00", res.Schedules[1].PaidAmount.StringFixed(2))
	require.Equal(t, "430.00", res.Remaining.StringFixed(2))
	for _, s := range res.Schedules {
		require.True(t, s.PaidAmount.LessThanOrEqual(s.ExpectedAmount))
		require.Equal(t, SchedulePaid, s.Status)
	}
}

func TestAllocateSkipsUnknownAndDuplicateIDs(t *testing.T) {
	rows := []Schedule{row(1, 1, "100", "0")}

	res := Allocate(rows, []int64{99, 1, 1}, dec("60"))

	require.Equal(t, []int64{99}, res.Skipped)
	require.Len(t, res.Applied, 1)
	require.Equal(t, "60.00", res.Schedules[0].PaidAmount.StringFixed(2))
	require.Len(t, res.Changed(), 1)
}

func TestAllocateIgnoresPaidRowsAndNonPositiveAmounts(t *testing.T) {
	rows := []Schedule{row(1, 1, "100", "100"), row(2, 2, "100", "0")}

	res := Allocate(rows, []int64{1, 2}, dec("-5"))
	require.Empty(t, res.Applied)
	require.True(t, res.Remaining.IsZero())

	res = Allocate(rows, []int64{1, 2}, dec("40"))
	require.Equal(t, []string{"2:40.00"}, applied(res))
	require.Empty(t, Allocate(rows, nil, dec("40")).Applied)
}

func TestOutstandingIDs(t *testing.T) {
	rows := []Schedule{row(5, 3, "10", "0"), row(6, 1, "10", "10"), row(7, 2, "10", "4")}
	require.Equal(t, []int64{7, 5}, OutstandingIDs(rows))
}
