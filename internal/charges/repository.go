package charges

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gemvault/gemvault/internal/platform/db"
)

// Repository defines charge configuration data access.
type Repository interface {
	ListTaxes(ctx context.Context, filter ListFilter) ([]Tax, int, error)
	GetTax(ctx context.Context, id int64) (Tax, error)
	CreateTax(ctx context.Context, in TaxInput) (Tax, error)
	UpdateTax(ctx context.Context, id int64, in TaxInput) (Tax, error)
	DeleteTax(ctx context.Context, id int64) error

	ListFees(ctx context.Context, filter ListFilter) ([]Fee, int, error)
	GetFee(ctx context.Context, id int64) (Fee, error)
	CreateFee(ctx context.Context, in FeeInput) (Fee, error)
	UpdateFee(ctx context.Context, id int64, in FeeInput) (Fee, error)
	DeleteFee(ctx context.Context, id int64) error

	ListDiscounts(ctx context.Context, filter ListFilter) ([]Discount, int, error)
	GetDiscount(ctx context.Context, id int64) (Discount, error)
	CreateDiscount(ctx context.Context, in DiscountInput) (Discount, error)
	UpdateDiscount(ctx context.Context, id int64, in DiscountInput) (Discount, error)
	DeleteDiscount(ctx context.Context, id int64) error
}

var _ Repository = (*pgRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

// RedeemDiscount increments used_count inside the caller's transaction. It fails
// when the usage limit has been reached in the meantime.
func RedeemDiscount(ctx context.Context, q db.Querier, id int64) error {
	tag, err := q.Exec(ctx, `UPDATE discounts SET used_count = used_count + 1, updated_at = NOW()
WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDiscountExhausted
	}
	return nil
}

// listQuery appends search and paging clauses the same way for every table.
func listQuery(base, countBase, searchCol string, filter ListFilter) (string, string, []any, []any) {
	where := ` WHERE 1=1`
	var args []any
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where += ` AND ` + searchCol + ` ILIKE $1`
	}
	if filter.ActiveOnly {
		where += ` AND active`
	}
	countArgs := append([]any(nil), args...)
	query := base + where + ` ORDER BY id`
	if filter.Limit > 0 {
		offset := (filter.Page - 1) * filter.Limit
		if offset < 0 {
			offset = 0
		}
		args = append(args, filter.Limit, offset)
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}
	return query, countBase + where, args, countArgs
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- Taxes ---

const taxColumns = `id, name, kind, rate, active, created_at, updated_at`

func scanTax(row pgx.Row) (Tax, error) {
	var t Tax
	var rate pgtype.Numeric
	if err := row.Scan(&t.ID, &t.Name, &t.Kind, &rate, &t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Tax{}, err
	}
	t.Rate = db.NumericToDecimal(rate)
	return t, nil
}

func (r *pgRepository) ListTaxes(ctx context.Context, filter ListFilter) ([]Tax, int, error) {
	query, countQuery, args, countArgs := listQuery(`SELECT `+taxColumns+` FROM taxes`, `SELECT COUNT(*) FROM taxes`, "name", filter)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Tax
	for rows.Next() {
		t, err := scanTax(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func (r *pgRepository) GetTax(ctx context.Context, id int64) (Tax, error) {
	t, err := scanTax(r.pool.QueryRow(ctx, `SELECT `+taxColumns+` FROM taxes WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Tax{}, ErrTaxNotFound
	}
	return t, err
}

func (r *pgRepository) CreateTax(ctx context.Context, in TaxInput) (Tax, error) {
	return scanTax(r.pool.QueryRow(ctx, `INSERT INTO taxes (name, kind, rate, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, NOW(), NOW()) RETURNING `+taxColumns, in.Name, in.Kind, in.Rate, in.Active))
}

func (r *pgRepository) UpdateTax(ctx context.Context, id int64, in TaxInput) (Tax, error) {
	t, err := scanTax(r.pool.QueryRow(ctx, `UPDATE taxes SET name=$2, kind=$3, rate=$4, active=$5, updated_at=NOW()
WHERE id=$1 RETURNING `+taxColumns, id, in.Name, in.Kind, in.Rate, in.Active))
	if errors.Is(err, pgx.ErrNoRows) {
		return Tax{}, ErrTaxNotFound
	}
	return t, err
}

func (r *pgRepository) DeleteTax(ctx context.Context, id int64) error {
	return r.deleteByID(ctx, "taxes", id, ErrTaxNotFound)
}

// --- Fees ---

const feeColumns = `id, name, kind, amount, active, created_at, updated_at`

func scanFee(row pgx.Row) (Fee, error) {
	var f Fee
	var amount pgtype.Numeric
	if err := row.Scan(&f.ID, &f.Name, &f.Kind, &amount, &f.Active, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return Fee{}, err
	}
	f.Amount = db.NumericToDecimal(amount)
	return f, nil
}

func (r *pgRepository) ListFees(ctx context.Context, filter ListFilter) ([]Fee, int, error) {
	query, countQuery, args, countArgs := listQuery(`SELECT `+feeColumns+` FROM fees`, `SELECT COUNT(*) FROM fees`, "name", filter)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Fee
	for rows.Next() {
		f, err := scanFee(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, f)
	}
	return out, total, rows.Err()
}

func (r *pgRepository) GetFee(ctx context.Context, id int64) (Fee, error) {
	f, err := scanFee(r.pool.QueryRow(ctx, `SELECT `+feeColumns+` FROM fees WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Fee{}, ErrFeeNotFound
	}
	return f, err
}

func (r *pgRepository) CreateFee(ctx context.Context, in FeeInput) (Fee, error) {
	return scanFee(r.pool.QueryRow(ctx, `INSERT INTO fees (name, kind, amount, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, NOW(), NOW()) RETURNING `+feeColumns, in.Name, in.Kind, in.Amount, in.Active))
}

func (r *pgRepository) UpdateFee(ctx context.Context, id int64, in FeeInput) (Fee, error) {
	f, err := scanFee(r.pool.QueryRow(ctx, `UPDATE fees SET name=$2, kind=$3, amount=$4, active=$5, updated_at=NOW()
WHERE id=$1 RETURNING `+feeColumns, id, in.Name, in.Kind, in.Amount, in.Active))
	if errors.Is(err, pgx.ErrNoRows) {
		return Fee{}, ErrFeeNotFound
	}
	return f, err
}

func (r *pgRepository) DeleteFee(ctx context.Context, id int64) error {
	return r.deleteByID(ctx, "fees", id, ErrFeeNotFound)
}

// --- Discounts ---

const discountColumns = `id, code, name, kind, amount, valid_from, valid_until, usage_limit, used_count, active, created_at, updated_at`

func scanDiscount(row pgx.Row) (Discount, error) {
	var d Discount
	var amount pgtype.Numeric
	var from, until pgtype.Timestamptz
	var limit pgtype.Int4
	if err := row.Scan(&d.ID, &d.Code, &d.Name, &d.Kind, &amount, &from, &until, &limit, &d.UsedCount, &d.Active, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return Discount{}, err
	}
	d.Amount = db.NumericToDecimal(amount)
	d.ValidFrom = db.TimePtr(from)
	d.ValidUntil = db.TimePtr(until)
	if limit.Valid {
		v := int(limit.Int32)
		d.UsageLimit = &v
	}
	return d, nil
}

func (r *pgRepository) ListDiscounts(ctx context.Context, filter ListFilter) ([]Discount, int, error) {
	query, countQuery, args, countArgs := listQuery(`SELECT `+discountColumns+` FROM discounts`, `SELECT COUNT(*) FROM discounts`, "(name || ' ' || code)", filter)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Discount
	for rows.Next() {
		d, err := scanDiscount(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

func (r *pgRepository) GetDiscount(ctx context.Context, id int64) (Discount, error) {
	d, err := scanDiscount(r.pool.QueryRow(ctx, `SELECT `+discountColumns+` FROM discounts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Discount{}, ErrDiscountNotFound
	}
	return d, err
}

func (r *pgRepository) CreateDiscount(ctx context.Context, in DiscountInput) (Discount, error) {
	d, err := scanDiscount(r.pool.QueryRow(ctx, `INSERT INTO discounts (code, name, kind, amount, valid_from, valid_until, usage_limit, used_count, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, NOW(), NOW()) RETURNING `+discountColumns,
		in.Code, in.Name, in.Kind, in.Amount, in.ValidFrom, in.ValidUntil, in.UsageLimit, in.Active))
	if isUniqueViolation(err) {
		return Discount{}, ErrDuplicateCode
	}
	return d, err
}

func (r *pgRepository) UpdateDiscount(ctx context.Context, id int64, in DiscountInput) (Discount, error) {
	d, err := scanDiscount(r.pool.QueryRow(ctx, `UPDATE discounts SET code=$2, name=$3, kind=$4, amount=$5, valid_from=$6, valid_until=$7, usage_limit=$8, active=$9, updated_at=NOW()
WHERE id=$1 RETURNING `+discountColumns,
		id, in.Code, in.Name, in.Kind, in.Amount, in.ValidFrom, in.ValidUntil, in.UsageLimit, in.Active))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return Discount{}, ErrDiscountNotFound
	case isUniqueViolation(err):
		return Discount{}, ErrDuplicateCode
	}
	return d, err
}

func (r *pgRepository) DeleteDiscount(ctx context.Context, id int64) error {
	return r.deleteByID(ctx, "discounts", id, ErrDiscountNotFound)
}

func (r *pgRepository) deleteByID(ctx context.Context, table string, id int64, notFound error) error {
	switch table {
	case "taxes", "fees", "discounts":
	default:
		return fmt.Errorf("charges: unknown table %s", table)
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound
	}
	return nil
}
