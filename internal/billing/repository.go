package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gemvault/gemvault/internal/charges"
	"github.com/gemvault/gemvault/internal/platform/db"
)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	NextInvoiceNumber(ctx context.Context, issueDate time.Time) (string, error)
	InsertInvoice(ctx context.Context, inv Invoice) (int64, error)
	UpdateInvoice(ctx context.Context, inv Invoice) error
	ReplaceItems(ctx context.Context, invoiceID int64, items []InvoiceItem) error
	// LockInvoice loads the invoice with items, schedules and payments and
	// holds a row lock on it until the transaction ends.
	LockInvoice(ctx context.Context, id int64) (Invoice, error)
	InsertSchedules(ctx context.Context, invoiceID int64, schedules []Schedule) error
	UpdateSchedules(ctx context.Context, schedules []Schedule) error
	InsertPayment(ctx context.Context, p Payment) (int64, error)
	UpdatePayment(ctx context.Context, p Payment) error
	RedeemDiscount(ctx context.Context, discountID int64) error
	MarkOverdueSchedules(ctx context.Context, today time.Time) (int, []int64, error)
}

// Repository persists billing data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a read-committed transaction. Writers
// serialize on LockInvoice, which re-reads the latest committed invoice row.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxLevel(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const invoiceColumns = `id, number, customer_id, tax_id, fee_id, discount_id, payment_term_id, currency,
subtotal, tax_amount, fee_amount, discount_amount, total_amount, issue_date, due_date, status, payment_status,
total_paid_amount, remaining_balance, next_payment_due_date, payment_plan_created, notes, version, created_by,
created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	var subtotal, tax, fee, discount, total, paid, remaining pgtype.Numeric
	var dueDate, nextDue pgtype.Date
	if err := row.Scan(&inv.ID, &inv.Number, &inv.CustomerID, &inv.TaxID, &inv.FeeID, &inv.DiscountID, &inv.PaymentTermID,
		&inv.Currency, &subtotal, &tax, &fee, &discount, &total, &inv.IssueDate, &dueDate, &inv.Status, &inv.PaymentStatus,
		&paid, &remaining, &nextDue, &inv.PaymentPlanCreated, &inv.Notes, &inv.Version, &inv.CreatedBy,
		&inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return Invoice{}, err
	}
	inv.Subtotal = db.NumericToDecimal(subtotal)
	inv.TaxAmount = db.NumericToDecimal(tax)
	inv.FeeAmount = db.NumericToDecimal(fee)
	inv.DiscountAmount = db.NumericToDecimal(discount)
	inv.TotalAmount = db.NumericToDecimal(total)
	inv.TotalPaidAmount = db.NumericToDecimal(paid)
	inv.RemainingBalance = db.NumericToDecimal(remaining)
	inv.DueDate = db.DatePtr(dueDate)
	inv.NextPaymentDueDate = db.DatePtr(nextDue)
	return inv, nil
}

const scheduleColumns = `id, invoice_id, payment_type, due_date, expected_amount, paid_amount, payment_order, status`

func scanSchedule(row pgx.Row) (Schedule, error) {
	var s Schedule
	var expected, paid pgtype.Numeric
	if err := row.Scan(&s.ID, &s.InvoiceID, &s.PaymentType, &s.DueDate, &expected, &paid, &s.PaymentOrder, &s.Status); err != nil {
		return Schedule{}, err
	}
	s.ExpectedAmount = db.NumericToDecimal(expected)
	s.PaidAmount = db.NumericToDecimal(paid)
	return s, nil
}

const paymentColumns = `id, ref, invoice_id, customer_id, payment_type, amount_paid, expected_amount, reference_number,
receipt_images, selected_schedules, status, rejection_reason, approved_at, approved_by, confirmed_at, confirmed_by,
submitted_by, created_at, updated_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	var amount, expected pgtype.Numeric
	var approvedAt, confirmedAt pgtype.Timestamptz
	var approvedBy, confirmedBy pgtype.Int8
	if err := row.Scan(&p.ID, &p.Ref, &p.InvoiceID, &p.CustomerID, &p.PaymentType, &amount, &expected, &p.ReferenceNumber,
		&p.ReceiptImages, &p.SelectedSchedules, &p.Status, &p.RejectionReason, &approvedAt, &approvedBy, &confirmedAt, &confirmedBy,
		&p.SubmittedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Payment{}, err
	}
	p.AmountPaid = db.NumericToDecimal(amount)
	p.ExpectedAmount = db.NumericToDecimal(expected)
	p.ApprovedAt = db.TimePtr(approvedAt)
	p.ApprovedBy = db.Int8Ptr(approvedBy)
	p.ConfirmedAt = db.TimePtr(confirmedAt)
	p.ConfirmedBy = db.Int8Ptr(confirmedBy)
	return p, nil
}

// GetInvoice loads an invoice with its items, schedules and payments.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return loadInvoice(ctx, r.pool, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
}

func loadInvoice(ctx context.Context, q db.Querier, query string, id int64) (Invoice, error) {
	inv, err := scanInvoice(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrInvoiceNotFound
	}
	if err != nil {
		return Invoice{}, err
	}
	if inv.Items, err = listItems(ctx, q, id); err != nil {
		return Invoice{}, err
	}
	if inv.Schedules, err = listSchedules(ctx, q, id); err != nil {
		return Invoice{}, err
	}
	if inv.Payments, _, err = listPayments(ctx, q, PaymentFilter{InvoiceID: id}); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

func listItems(ctx context.Context, q db.Querier, invoiceID int64) ([]InvoiceItem, error) {
	rows, err := q.Query(ctx, `SELECT id, invoice_id, product_name, description, price FROM invoice_items WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []InvoiceItem
	for rows.Next() {
		var item InvoiceItem
		var price pgtype.Numeric
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.ProductName, &item.Description, &price); err != nil {
			return nil, err
		}
		item.Price = db.NumericToDecimal(price)
		out = append(out, item)
	}
	return out, rows.Err()
}

func listSchedules(ctx context.Context, q db.Querier, invoiceID int64) ([]Schedule, error) {
	rows, err := q.Query(ctx, `SELECT `+scheduleColumns+` FROM invoice_payment_schedules WHERE invoice_id = $1 ORDER BY payment_order`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func listPayments(ctx context.Context, q db.Querier, filter PaymentFilter) ([]Payment, int, error) {
	where := []string{"1=1"}
	var args []any
	if filter.InvoiceID > 0 {
		args = append(args, filter.InvoiceID)
		where = append(where, "invoice_id = $"+strconv.Itoa(len(args)))
	}
	if filter.CustomerID > 0 {
		args = append(args, filter.CustomerID)
		where = append(where, "customer_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	clause := ` WHERE ` + strings.Join(where, " AND ")
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM payments`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + paymentColumns + ` FROM payments` + clause + ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		offset := (filter.Page - 1) * filter.Limit
		if offset < 0 {
			offset = 0
		}
		args = append(args, filter.Limit, offset)
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// ListInvoices returns invoice headers matching filter.
func (r *Repository) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, int, error) {
	where := []string{"1=1"}
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	if filter.PaymentStatus != "" {
		args = append(args, string(filter.PaymentStatus))
		where = append(where, "payment_status = $"+strconv.Itoa(len(args)))
	}
	if filter.CustomerID > 0 {
		args = append(args, filter.CustomerID)
		where = append(where, "customer_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, "number ILIKE $"+strconv.Itoa(len(args)))
	}
	clause := ` WHERE ` + strings.Join(where, " AND ")
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM invoices`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + invoiceColumns + ` FROM invoices` + clause + ` ORDER BY issue_date DESC, id DESC`
	if filter.Limit > 0 {
		offset := (filter.Page - 1) * filter.Limit
		if offset < 0 {
			offset = 0
		}
		args = append(args, filter.Limit, offset)
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, inv)
	}
	return out, total, rows.Err()
}

// GetPayment loads a payment.
func (r *Repository) GetPayment(ctx context.Context, id int64) (Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrPaymentNotFound
	}
	return p, err
}

// ListPayments returns payments matching filter.
func (r *Repository) ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, int, error) {
	return listPayments(ctx, r.pool, filter)
}

// ReceivablesByStatus aggregates invoice totals per payment status, cancelled and draft invoices excluded.
func (r *Repository) ReceivablesByStatus(ctx context.Context) ([]StatusSummary, int, error) {
	rows, err := r.pool.Query(ctx, `SELECT payment_status, COUNT(*), COALESCE(SUM(total_amount), 0), COALESCE(SUM(remaining_balance), 0)
FROM invoices WHERE status NOT IN ('draft', 'cancelled') GROUP BY payment_status`)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []StatusSummary
	for rows.Next() {
		var s StatusSummary
		var total, outstanding pgtype.Numeric
		if err := rows.Scan(&s.PaymentStatus, &s.Invoices, &total, &outstanding); err != nil {
			return nil, 0, err
		}
		s.Total = db.NumericToDecimal(total)
		s.Outstanding = db.NumericToDecimal(outstanding)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	var pending int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM payments WHERE status IN ('pending', 'approved')`).Scan(&pending); err != nil {
		return nil, 0, err
	}
	return out, pending, nil
}

func (t *txRepo) NextInvoiceNumber(ctx context.Context, issueDate time.Time) (string, error) {
	var seq int64
	if err := t.tx.QueryRow(ctx, `SELECT nextval('invoice_number_seq')`).Scan(&seq); err != nil {
		return "", err
	}
	return fmt.Sprintf("INV-%s-%06d", issueDate.Format("200601"), seq), nil
}

func (t *txRepo) InsertInvoice(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO invoices (number, customer_id, tax_id, fee_id, discount_id, payment_term_id, currency,
subtotal, tax_amount, fee_amount, discount_amount, total_amount, issue_date, due_date, status, payment_status,
total_paid_amount, remaining_balance, next_payment_due_date, payment_plan_created, notes, version, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, 1, $22, NOW(), NOW())
RETURNING id`,
		inv.Number, inv.CustomerID, inv.TaxID, inv.FeeID, inv.DiscountID, inv.PaymentTermID, inv.Currency,
		inv.Subtotal, inv.TaxAmount, inv.FeeAmount, inv.DiscountAmount, inv.TotalAmount, inv.IssueDate, inv.DueDate,
		string(inv.Status), string(inv.PaymentStatus), inv.TotalPaidAmount, inv.RemainingBalance, inv.NextPaymentDueDate,
		inv.PaymentPlanCreated, inv.Notes, inv.CreatedBy).Scan(&id)
	return id, err
}

func (t *txRepo) UpdateInvoice(ctx context.Context, inv Invoice) error {
	tag, err := t.tx.Exec(ctx, `UPDATE invoices SET payment_term_id=$2, subtotal=$3, tax_amount=$4, fee_amount=$5,
discount_amount=$6, total_amount=$7, status=$8, payment_status=$9, total_paid_amount=$10, remaining_balance=$11,
next_payment_due_date=$12, payment_plan_created=$13, notes=$14, version=version+1, updated_at=NOW() WHERE id=$1`,
		inv.ID, inv.PaymentTermID, inv.Subtotal, inv.TaxAmount, inv.FeeAmount, inv.DiscountAmount, inv.TotalAmount,
		string(inv.Status), string(inv.PaymentStatus), inv.TotalPaidAmount, inv.RemainingBalance, inv.NextPaymentDueDate,
		inv.PaymentPlanCreated, inv.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (t *txRepo) ReplaceItems(ctx context.Context, invoiceID int64, items []InvoiceItem) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, invoiceID); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(`INSERT INTO invoice_items (invoice_id, product_name, description, price) VALUES ($1, $2, $3, $4)`,
			invoiceID, item.ProductName, item.Description, item.Price)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *txRepo) LockInvoice(ctx context.Context, id int64) (Invoice, error) {
	return loadInvoice(ctx, t.tx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id)
}

func (t *txRepo) InsertSchedules(ctx context.Context, invoiceID int64, schedules []Schedule) error {
	batch := &pgx.Batch{}
	for _, s := range schedules {
		batch.Queue(`INSERT INTO invoice_payment_schedules (invoice_id, payment_type, due_date, expected_amount, paid_amount, payment_order, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			invoiceID, string(s.PaymentType), s.DueDate, s.ExpectedAmount, s.PaidAmount, s.PaymentOrder, string(s.Status))
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *txRepo) UpdateSchedules(ctx context.Context, schedules []Schedule) error {
	if len(schedules) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, s := range schedules {
		batch.Queue(`UPDATE invoice_payment_schedules SET paid_amount=$2, status=$3, updated_at=NOW() WHERE id=$1`,
			s.ID, s.PaidAmount, string(s.Status))
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *txRepo) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO payments (ref, invoice_id, customer_id, payment_type, amount_paid, expected_amount,
reference_number, receipt_images, selected_schedules, status, rejection_reason, submitted_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, '', $11, NOW(), NOW()) RETURNING id`,
		p.Ref, p.InvoiceID, p.CustomerID, string(p.PaymentType), p.AmountPaid, p.ExpectedAmount,
		p.ReferenceNumber, p.ReceiptImages, p.SelectedSchedules, string(p.Status), p.SubmittedBy).Scan(&id)
	return id, err
}

func (t *txRepo) UpdatePayment(ctx context.Context, p Payment) error {
	tag, err := t.tx.Exec(ctx, `UPDATE payments SET status=$2, rejection_reason=$3, approved_at=$4, approved_by=$5,
confirmed_at=$6, confirmed_by=$7, updated_at=NOW() WHERE id=$1`,
		p.ID, string(p.Status), p.RejectionReason, p.ApprovedAt, p.ApprovedBy, p.ConfirmedAt, p.ConfirmedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (t *txRepo) RedeemDiscount(ctx context.Context, discountID int64) error {
	return charges.RedeemDiscount(ctx, t.tx, discountID)
}

func (t *txRepo) MarkOverdueSchedules(ctx context.Context, today time.Time) (int, []int64, error) {
	rows, err := t.tx.Query(ctx, `UPDATE invoice_payment_schedules s SET status='overdue', updated_at=NOW()
FROM invoices i
WHERE s.invoice_id = i.id AND s.status = 'pending' AND s.due_date < $1 AND i.status NOT IN ('draft', 'cancelled')
RETURNING s.invoice_id`, today)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()
	marked := 0
	seen := make(map[int64]bool)
	var invoiceIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, nil, err
		}
		marked++
		if !seen[id] {
			seen[id] = true
			invoiceIDs = append(invoiceIDs, id)
		}
	}
	return marked, invoiceIDs, rows.Err()
}
