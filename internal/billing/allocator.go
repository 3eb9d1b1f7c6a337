package billing

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/gemvault/gemvault/internal/money"
)

// Allocation is the part of a payment applied to one schedule row.
type Allocation struct {
	ScheduleID int64           `json:"schedule_id"`
	Amount     decimal.Decimal `json:"amount"`
}

// AllocationResult is the outcome of Allocate.
type AllocationResult struct {
	// Schedules holds every input row, with allocations applied.
	Schedules []Schedule
	// Applied lists the rows that received money, in allocation order.
	Applied []Allocation
	// Remaining is the amount that could not be placed on any selected row.
	Remaining decimal.Decimal
	// Skipped lists requested ids with no matching row.
	Skipped []int64
}

// Changed returns the rows that received money.
func (r AllocationResult) Changed() []Schedule {
	touched := make(map[int64]bool, len(r.Applied))
	for _, a := range r.Applied {
		touched[a.ScheduleID] = true
	}
	var out []Schedule
	for _, s := range r.Schedules {
		if touched[s.ID] {
			out = append(out, s)
		}
	}
	return out
}

// Total returns the allocated amount.
func (r AllocationResult) Total() decimal.Decimal {
	total := decimal.Zero
	for _, a := range r.Applied {
		total = total.Add(a.Amount)
	}
	return total
}

// Allocate distributes amount over the schedule rows named by ids. Rows are
// filled in ascending payment_order whatever the order of ids; each row takes
// at most its outstanding balance and becomes paid once fully covered.
// Unknown and repeated ids are ignored. The input slice is not modified.
func Allocate(schedules []Schedule, ids []int64, amount decimal.Decimal) AllocationResult {
	rows := make([]Schedule, len(schedules))
	copy(rows, schedules)
	index := make(map[int64]int, len(rows))
	for i, s := range rows {
		index[s.ID] = i
	}

	seen := make(map[int64]bool, len(ids))
	var selected []int
	var skipped []int64
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		i, ok := index[id]
		if !ok {
			skipped = append(skipped, id)
			continue
		}
		selected = append(selected, i)
	}
	sort.SliceStable(selected, func(a, b int) bool {
		return rows[selected[a]].PaymentOrder < rows[selected[b]].PaymentOrder
	})

	left := money.Round2(amount)
	if left.IsNegative() {
		left = decimal.Zero
	}
	var applied []Allocation
	for _, i := range selected {
		if !left.IsPositive() {
			break
		}
		row := &rows[i]
		share := money.Min(left, row.Outstanding())
		if !share.IsPositive() {
			continue
		}
		row.PaidAmount = row.PaidAmount.Add(share)
		if row.PaidAmount.GreaterThanOrEqual(row.ExpectedAmount) {
			row.Status = SchedulePaid
		}
		left = left.Sub(share)
		applied = append(applied, Allocation{ScheduleID: row.ID, Amount: share})
	}

	return AllocationResult{Schedules: rows, Applied: applied, Remaining: left, Skipped: skipped}
}

// OutstandingIDs returns the ids of unpaid rows in payment order.
func OutstandingIDs(schedules []Schedule) []int64 {
	rows := make([]Schedule, 0, len(schedules))
	for _, s := range schedules {
		if s.Status != SchedulePaid && s.Outstanding().IsPositive() {
			rows = append(rows, s)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].PaymentOrder < rows[j].PaymentOrder })
	ids := make([]int64, len(rows))
	for i, s := range rows {
		ids[i] = s.ID
	}
	return ids
}
