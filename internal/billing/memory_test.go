package billing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gemvault/gemvault/internal/charges"
	"github.com/gemvault/gemvault/internal/shared"
	"github.com/gemvault/gemvault/internal/terms"
)

type memoryState struct {
	invoices  map[int64]Invoice
	items     map[int64][]InvoiceItem
	schedules map[int64]Schedule
	payments  map[int64]Payment
	redeemed  map[int64]int
	seq       int64
	nextID    int64
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		invoices:  make(map[int64]Invoice, len(s.invoices)),
		items:     make(map[int64][]InvoiceItem, len(s.items)),
		schedules: make(map[int64]Schedule, len(s.schedules)),
		payments:  make(map[int64]Payment, len(s.payments)),
		redeemed:  make(map[int64]int, len(s.redeemed)),
		seq:       s.seq,
		nextID:    s.nextID,
	}
	for k, v := range s.invoices {
		out.invoices[k] = v
	}
	for k, v := range s.items {
		out.items[k] = append([]InvoiceItem(nil), v...)
	}
	for k, v := range s.schedules {
		out.schedules[k] = v
	}
	for k, v := range s.payments {
		out.payments[k] = v
	}
	for k, v := range s.redeemed {
		out.redeemed[k] = v
	}
	return out
}

// memoryRepo keeps billing rows in maps. WithTx runs on a copy and swaps it in
// when fn succeeds.
type memoryRepo struct {
	mu     sync.Mutex
	state  memoryState
	failOn string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: memoryState{}.clone()}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{state: r.state.clone(), failOn: r.failOn}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.state = tx.state
	return nil
}

func (r *memoryRepo) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.aggregate(id)
}

func (r *memoryRepo) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Invoice
	for _, inv := range r.state.invoices {
		if filter.CustomerID != 0 && inv.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		if filter.PaymentStatus != "" && inv.PaymentStatus != filter.PaymentStatus {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r *memoryRepo) GetPayment(ctx context.Context, id int64) (Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.state.payments[id]
	if !ok {
		return Payment{}, ErrPaymentNotFound
	}
	return p, nil
}

func (r *memoryRepo) ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Payment
	for _, p := range r.state.payments {
		if filter.CustomerID != 0 && p.CustomerID != filter.CustomerID {
			continue
		}
		if filter.InvoiceID != 0 && p.InvoiceID != filter.InvoiceID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r *memoryRepo) ReceivablesByStatus(ctx context.Context) ([]StatusSummary, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byStatus := make(map[PaymentStatus]StatusSummary)
	for _, inv := range r.state.invoices {
		if inv.Status == InvoiceCancelled || inv.Status == InvoiceDraft {
			continue
		}
		row := byStatus[inv.PaymentStatus]
		row.PaymentStatus = inv.PaymentStatus
		row.Invoices++
		row.Total = row.Total.Add(inv.TotalAmount)
		row.Outstanding = row.Outstanding.Add(inv.RemainingBalance)
		byStatus[inv.PaymentStatus] = row
	}
	var out []StatusSummary
	for _, row := range byStatus {
		out = append(out, row)
	}
	pending := 0
	for _, p := range r.state.payments {
		if p.Status == PaymentPending || p.Status == PaymentApproved {
			pending++
		}
	}
	return out, pending, nil
}

func (s memoryState) aggregate(id int64) (Invoice, error) {
	inv, ok := s.invoices[id]
	if !ok {
		return Invoice{}, ErrInvoiceNotFound
	}
	inv.Items = append([]InvoiceItem(nil), s.items[id]...)
	inv.Schedules = nil
	for _, row := range s.schedules {
		if row.InvoiceID == id {
			inv.Schedules = append(inv.Schedules, row)
		}
	}
	sort.Slice(inv.Schedules, func(i, j int) bool { return inv.Schedules[i].PaymentOrder < inv.Schedules[j].PaymentOrder })
	inv.Payments = nil
	for _, p := range s.payments {
		if p.InvoiceID == id {
			inv.Payments = append(inv.Payments, p)
		}
	}
	sort.Slice(inv.Payments, func(i, j int) bool { return inv.Payments[i].ID < inv.Payments[j].ID })
	return inv, nil
}

type memoryTx struct {
	state  memoryState
	failOn string
}

func (tx *memoryTx) id() int64 {
	tx.state.nextID++
	return tx.state.nextID
}

func (tx *memoryTx) fail(op string) error {
	if tx.failOn == op {
		return fmt.Errorf("memory: %s failed", op)
	}
	return nil
}

func (tx *memoryTx) NextInvoiceNumber(ctx context.Context, issueDate time.Time) (string, error) {
	tx.state.seq++
	return fmt.Sprintf("INV-%s-%06d", issueDate.Format("200601"), tx.state.seq), nil
}

func (tx *memoryTx) InsertInvoice(ctx context.Context, inv Invoice) (int64, error) {
	if err := tx.fail("InsertInvoice"); err != nil {
		return 0, err
	}
	inv.ID = tx.id()
	inv.Version = 1
	inv.Items, inv.Schedules, inv.Payments = nil, nil, nil
	tx.state.invoices[inv.ID] = inv
	return inv.ID, nil
}

func (tx *memoryTx) UpdateInvoice(ctx context.Context, inv Invoice) error {
	if err := tx.fail("UpdateInvoice"); err != nil {
		return err
	}
	existing, ok := tx.state.invoices[inv.ID]
	if !ok {
		return ErrInvoiceNotFound
	}
	inv.Version = existing.Version + 1
	inv.Items, inv.Schedules, inv.Payments = nil, nil, nil
	tx.state.invoices[inv.ID] = inv
	return nil
}

func (tx *memoryTx) ReplaceItems(ctx context.Context, invoiceID int64, items []InvoiceItem) error {
	rows := make([]InvoiceItem, len(items))
	for i, item := range items {
		item.ID = tx.id()
		item.InvoiceID = invoiceID
		rows[i] = item
	}
	tx.state.items[invoiceID] = rows
	return nil
}

func (tx *memoryTx) LockInvoice(ctx context.Context, id int64) (Invoice, error) {
	return tx.state.aggregate(id)
}

func (tx *memoryTx) InsertSchedules(ctx context.Context, invoiceID int64, schedules []Schedule) error {
	if err := tx.fail("InsertSchedules"); err != nil {
		return err
	}
	for _, s := range schedules {
		s.ID = tx.id()
		s.InvoiceID = invoiceID
		tx.state.schedules[s.ID] = s
	}
	return nil
}

func (tx *memoryTx) UpdateSchedules(ctx context.Context, schedules []Schedule) error {
	for _, s := range schedules {
		if _, ok := tx.state.schedules[s.ID]; !ok {
			return fmt.Errorf("memory: schedule %d missing", s.ID)
		}
		tx.state.schedules[s.ID] = s
	}
	return nil
}

func (tx *memoryTx) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	if err := tx.fail("InsertPayment"); err != nil {
		return 0, err
	}
	p.ID = tx.id()
	tx.state.payments[p.ID] = p
	return p.ID, nil
}

func (tx *memoryTx) UpdatePayment(ctx context.Context, p Payment) error {
	if _, ok := tx.state.payments[p.ID]; !ok {
		return ErrPaymentNotFound
	}
	tx.state.payments[p.ID] = p
	return nil
}

func (tx *memoryTx) RedeemDiscount(ctx context.Context, discountID int64) error {
	tx.state.redeemed[discountID]++
	return nil
}

func (tx *memoryTx) MarkOverdueSchedules(ctx context.Context, today time.Time) (int, []int64, error) {
	marked := 0
	seen := map[int64]bool{}
	var ids []int64
	keys := make([]int64, 0, len(tx.state.schedules))
	for id := range tx.state.schedules {
		keys = append(keys, id)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, id := range keys {
		s := tx.state.schedules[id]
		inv := tx.state.invoices[s.InvoiceID]
		if s.Status != SchedulePending || !s.DueDate.Before(today) {
			continue
		}
		if inv.Status == InvoiceDraft || inv.Status == InvoiceCancelled {
			continue
		}
		s.Status = ScheduleOverdue
		tx.state.schedules[id] = s
		marked++
		if !seen[s.InvoiceID] {
			seen[s.InvoiceID] = true
			ids = append(ids, s.InvoiceID)
		}
	}
	return marked, ids, nil
}

// --- collaborators ---

type stubCharges struct {
	tax      map[int64]*charges.Descriptor
	discount map[int64]*charges.Descriptor
}

func (c stubCharges) ResolveForInvoice(ctx context.Context, taxID, feeID, discountID *int64) (charges.Resolved, error) {
	var out charges.Resolved
	if taxID != nil {
		d, ok := c.tax[*taxID]
		if !ok {
			return charges.Resolved{}, charges.ErrTaxNotFound
		}
		out.Tax = d
	}
	if discountID != nil {
		d, ok := c.discount[*discountID]
		if !ok {
			return charges.Resolved{}, charges.ErrDiscountNotFound
		}
		out.Discount = d
	}
	return out, nil
}

func (c stubCharges) ResolveStored(ctx context.Context, taxID, feeID, discountID *int64) (charges.Resolved, error) {
	var out charges.Resolved
	if taxID != nil {
		out.Tax = c.tax[*taxID]
	}
	if discountID != nil {
		out.Discount = c.discount[*discountID]
	}
	return out, nil
}

type stubTerms map[int64]terms.PaymentTerm

func (s stubTerms) GetActive(ctx context.Context, id int64) (terms.PaymentTerm, error) {
	t, ok := s[id]
	if !ok {
		return terms.PaymentTerm{}, terms.ErrTermNotFound
	}
	return t, nil
}

type recordingAudit struct {
	entries []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.entries = append(a.entries, log)
	return nil
}

func (a *recordingAudit) actions() []string {
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.Action
	}
	return out
}

type memoryApprovals struct {
	logs []shared.ApprovalLog
}

func (m *memoryApprovals) Record(ctx context.Context, log shared.ApprovalLog) error {
	m.logs = append(m.logs, log)
	return nil
}

func (m *memoryApprovals) List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error) {
	var out []shared.ApprovalLog
	for _, l := range m.logs {
		if l.Module == module && l.RefID == ref {
			out = append(out, l)
		}
	}
	return out, nil
}

type memoryIdempotency struct {
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

type recordingNotifier struct {
	events []PaymentEvent
}

func (n *recordingNotifier) NotifyPayment(ctx context.Context, event PaymentEvent) error {
	n.events = append(n.events, event)
	return nil
}
