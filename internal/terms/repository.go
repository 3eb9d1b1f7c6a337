package terms

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gemvault/gemvault/internal/platform/db"
)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	InsertTerm(ctx context.Context, term PaymentTerm) (int64, error)
	UpdateTerm(ctx context.Context, term PaymentTerm) error
	ReplaceSchedule(ctx context.Context, termID int64, rows []ScheduleRow) error
	SetActive(ctx context.Context, termID int64, active bool) error
}

// Repository persists payment terms in PostgreSQL.
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

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const termColumns = `id, name, description, down_payment_percentage, remaining_percentage, term_months, active, created_at, updated_at`

func scanTerm(row pgx.Row) (PaymentTerm, error) {
	var t PaymentTerm
	var down, remaining pgtype.Numeric
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &down, &remaining, &t.TermMonths, &t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return PaymentTerm{}, err
	}
	t.DownPaymentPercentage = db.NumericToDecimal(down)
	t.RemainingPercentage = db.NumericToDecimal(remaining)
	return t, nil
}

// Get loads a term with its schedule rows.
func (r *Repository) Get(ctx context.Context, id int64) (PaymentTerm, error) {
	term, err := scanTerm(r.pool.QueryRow(ctx, `SELECT `+termColumns+` FROM payment_terms WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return PaymentTerm{}, ErrTermNotFound
	}
	if err != nil {
		return PaymentTerm{}, err
	}
	rows, err := r.loadSchedules(ctx, []int64{id})
	if err != nil {
		return PaymentTerm{}, err
	}
	term.Schedule = rows[id]
	return term, nil
}

// List returns terms matching filter, schedules included.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]PaymentTerm, int, error) {
	where := ` WHERE 1=1`
	var args []any
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where += ` AND name ILIKE $1`
	}
	if filter.ActiveOnly {
		where += ` AND active`
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM payment_terms`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + termColumns + ` FROM payment_terms` + where + ` ORDER BY name, id`
	if filter.Limit > 0 {
		offset := (filter.Page - 1) * filter.Limit
		if offset < 0 {
			offset = 0
		}
		args = append(args, filter.Limit, offset)
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []PaymentTerm
	var ids []int64
	for rows.Next() {
		t, err := scanTerm(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
		ids = append(ids, t.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return out, total, nil
	}
	schedules, err := r.loadSchedules(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range out {
		out[i].Schedule = schedules[out[i].ID]
	}
	return out, total, nil
}

func (r *Repository) loadSchedules(ctx context.Context, termIDs []int64) (map[int64][]ScheduleRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT payment_term_id, month_number, percentage
FROM payment_term_schedules WHERE payment_term_id = ANY($1) ORDER BY payment_term_id, month_number`, termIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64][]ScheduleRow, len(termIDs))
	for rows.Next() {
		var termID int64
		var row ScheduleRow
		var pct pgtype.Numeric
		if err := rows.Scan(&termID, &row.MonthNumber, &pct); err != nil {
			return nil, err
		}
		row.Percentage = db.NumericToDecimal(pct)
		out[termID] = append(out[termID], row)
	}
	return out, rows.Err()
}

func (t *txRepo) InsertTerm(ctx context.Context, term PaymentTerm) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO payment_terms (name, description, down_payment_percentage, remaining_percentage, term_months, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW()) RETURNING id`,
		term.Name, term.Description, term.DownPaymentPercentage, term.RemainingPercentage, term.TermMonths, term.Active).Scan(&id)
	return id, err
}

func (t *txRepo) UpdateTerm(ctx context.Context, term PaymentTerm) error {
	tag, err := t.tx.Exec(ctx, `UPDATE payment_terms SET name=$2, description=$3, down_payment_percentage=$4,
remaining_percentage=$5, term_months=$6, active=$7, updated_at=NOW() WHERE id=$1`,
		term.ID, term.Name, term.Description, term.DownPaymentPercentage, term.RemainingPercentage, term.TermMonths, term.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTermNotFound
	}
	return nil
}

func (t *txRepo) ReplaceSchedule(ctx context.Context, termID int64, rows []ScheduleRow) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM payment_term_schedules WHERE payment_term_id = $1`, termID); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`INSERT INTO payment_term_schedules (payment_term_id, month_number, percentage) VALUES ($1, $2, $3)`,
			termID, row.MonthNumber, row.Percentage)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *txRepo) SetActive(ctx context.Context, termID int64, active bool) error {
	tag, err := t.tx.Exec(ctx, `UPDATE payment_terms SET active=$2, updated_at=NOW() WHERE id=$1`, termID, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTermNotFound
	}
	return nil
}
