package charges

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gemvault/gemvault/internal/shared"
)

type memoryRepo struct {
	taxes     map[int64]Tax
	fees      map[int64]Fee
	discounts map[int64]Discount
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{taxes: map[int64]Tax{}, fees: map[int64]Fee{}, discounts: map[int64]Discount{}}
}

func (r *memoryRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryRepo) ListTaxes(ctx context.Context, filter ListFilter) ([]Tax, int, error) {
	var out []Tax
	for _, t := range r.taxes {
		if filter.ActiveOnly && !t.Active {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r *memoryRepo) GetTax(ctx context.Context, id int64) (Tax, error) {
	t, ok := r.taxes[id]
	if !ok {
		return Tax{}, ErrTaxNotFound
	}
	return t, nil
}

func (r *memoryRepo) CreateTax(ctx context.Context, in TaxInput) (Tax, error) {
	t := Tax{ID: r.id(), Name: in.Name, Kind: in.Kind, Rate: in.Rate, Active: in.Active}
	r.taxes[t.ID] = t
	return t, nil
}

func (r *memoryRepo) UpdateTax(ctx context.Context, id int64, in TaxInput) (Tax, error) {
	if _, ok := r.taxes[id]; !ok {
		return Tax{}, ErrTaxNotFound
	}
	t := Tax{ID: id, Name: in.Name, Kind: in.Kind, Rate: in.Rate, Active: in.Active}
	r.taxes[id] = t
	return t, nil
}

func (r *memoryRepo) DeleteTax(ctx context.Context, id int64) error {
	if _, ok := r.taxes[id]; !ok {
		return ErrTaxNotFound
	}
	delete(r.taxes, id)
	return nil
}

func (r *memoryRepo) ListFees(ctx context.Context, filter ListFilter) ([]Fee, int, error) {
	var out []Fee
	for _, f := range r.fees {
		out = append(out, f)
	}
	return out, len(out), nil
}

func (r *memoryRepo) GetFee(ctx context.Context, id int64) (Fee, error) {
	f, ok := r.fees[id]
	if !ok {
		return Fee{}, ErrFeeNotFound
	}
	return f, nil
}

func (r *memoryRepo) CreateFee(ctx context.Context, in FeeInput) (Fee, error) {
	f := Fee{ID: r.id(), Name: in.Name, Kind: in.Kind, Amount: in.Amount, Active: in.Active}
	r.fees[f.ID] = f
	return f, nil
}

func (r *memoryRepo) UpdateFee(ctx context.Context, id int64, in FeeInput) (Fee, error) {
	if _, ok := r.fees[id]; !ok {
		return Fee{}, ErrFeeNotFound
	}
	f := Fee{ID: id, Name: in.Name, Kind: in.Kind, Amount: in.Amount, Active: in.Active}
	r.fees[id] = f
	return f, nil
}

func (r *memoryRepo) DeleteFee(ctx context.Context, id int64) error {
	if _, ok := r.fees[id]; !ok {
		return ErrFeeNotFound
	}
	delete(r.fees, id)
	return nil
}

func (r *memoryRepo) ListDiscounts(ctx context.Context, filter ListFilter) ([]Discount, int, error) {
	var out []Discount
	for _, d := range r.discounts {
		out = append(out, d)
	}
	return out, len(out), nil
}

func (r *memoryRepo) GetDiscount(ctx context.Context, id int64) (Discount, error) {
	d, ok := r.discounts[id]
	if !ok {
		return Discount{}, ErrDiscountNotFound
	}
	return d, nil
}

func (r *memoryRepo) CreateDiscount(ctx context.Context, in DiscountInput) (Discount, error) {
	for _, existing := range r.discounts {
		if existing.Code == in.Code {
			return Discount{}, ErrDuplicateCode
		}
	}
	d := Discount{ID: r.id(), Code: in.Code, Name: in.Name, Kind: in.Kind, Amount: in.Amount,
		ValidFrom: in.ValidFrom, ValidUntil: in.ValidUntil, UsageLimit: in.UsageLimit, Active: in.Active}
	r.discounts[d.ID] = d
	return d, nil
}

func (r *memoryRepo) UpdateDiscount(ctx context.Context, id int64, in DiscountInput) (Discount, error) {
	d, ok := r.discounts[id]
	if !ok {
		return Discount{}, ErrDiscountNotFound
	}
	d.Code, d.Name, d.Kind, d.Amount = in.Code, in.Name, in.Kind, in.Amount
	d.ValidFrom, d.ValidUntil, d.UsageLimit, d.Active = in.ValidFrom, in.ValidUntil, in.UsageLimit, in.Active
	r.discounts[id] = d
	return d, nil
}

func (r *memoryRepo) DeleteDiscount(ctx context.Context, id int64) error {
	if _, ok := r.discounts[id]; !ok {
		return ErrDiscountNotFound
	}
	delete(r.discounts, id)
	return nil
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

var staff = shared.Actor{ID: 7, Role: shared.RoleStaff}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCreateTaxValidates(t *testing.T) {
	audit := &recordingAudit{}
	svc := NewService(newMemoryRepo(), audit, nil)
	ctx := context.Background()

	_, err := svc.CreateTax(ctx, staff, TaxInput{Name: "VAT", Kind: KindPercentage, Rate: dec("120")})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateTax(ctx, staff, TaxInput{Name: "  ", Kind: KindPercentage, Rate: dec("10")})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateTax(ctx, staff, TaxInput{Name: "VAT", Kind: "tiered", Rate: dec("10")})
	require.ErrorIs(t, err, shared.ErrValidation)

	tax, err := svc.CreateTax(ctx, staff, TaxInput{Name: " VAT ", Kind: KindPercentage, Rate: dec("8.51239"), Active: true})
	require.NoError(t, err)
	require.Equal(t, "VAT", tax.Name)
	require.True(t, dec("8.5124").Equal(tax.Rate))
	require.Len(t, audit.logs, 1)
	require.Equal(t, "tax.created", audit.logs[0].Action)
	require.Equal(t, staff.ID, audit.logs[0].ActorID)
}

func TestCustomerCannotEditConfiguration(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	customer := shared.Actor{ID: 3, Role: shared.RoleCustomer, CustomerID: 11}

	_, err := svc.CreateFee(context.Background(), customer, FeeInput{Name: "Polish", Kind: KindFixed, Amount: dec("5")})
	require.ErrorIs(t, err, shared.ErrForbidden)
	require.ErrorIs(t, svc.DeleteDiscount(context.Background(), customer, 1), shared.ErrForbidden)
}

func TestFixedFeeRejectsNegative(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	_, err := svc.CreateFee(context.Background(), staff, FeeInput{Name: "Engraving", Kind: KindFixed, Amount: dec("-1")})
	require.ErrorIs(t, err, shared.ErrValidation)

	fee, err := svc.CreateFee(context.Background(), staff, FeeInput{Name: "Engraving", Kind: KindFixed, Amount: dec("12.345"), Active: true})
	require.NoError(t, err)
	require.Equal(t, "12.35", fee.Amount.StringFixed(2))
}

func TestDiscountInputWindow(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	from := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	until := from.AddDate(0, 0, -1)
	_, err := svc.CreateDiscount(context.Background(), staff, DiscountInput{
		Code: "may", Name: "May sale", Kind: KindFixed, Amount: dec("25"), ValidFrom: &from, ValidUntil: &until,
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	d, err := svc.CreateDiscount(context.Background(), staff, DiscountInput{Code: " may ", Name: "May sale", Kind: KindFixed, Amount: dec("25"), Active: true})
	require.NoError(t, err)
	require.Equal(t, "MAY", d.Code)

	_, err = svc.CreateDiscount(context.Background(), staff, DiscountInput{Code: "MAY", Name: "Again", Kind: KindFixed, Amount: dec("5")})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestDiscountIsValid(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)
	limit := 2

	require.True(t, Discount{Active: true}.IsValid(now))
	require.False(t, Discount{Active: false}.IsValid(now))
	require.False(t, Discount{Active: true, ValidFrom: &after}.IsValid(now))
	require.False(t, Discount{Active: true, ValidUntil: &before}.IsValid(now))
	require.True(t, Discount{Active: true, ValidFrom: &before, ValidUntil: &after}.IsValid(now))
	require.True(t, Discount{Active: true, ValidFrom: &now, ValidUntil: &now}.IsValid(now))
	require.True(t, Discount{Active: true, UsageLimit: &limit, UsedCount: 1}.IsValid(now))
	require.False(t, Discount{Active: true, UsageLimit: &limit, UsedCount: 2}.IsValid(now))

	require.Equal(t, -1, Discount{}.RemainingUses())
	require.Equal(t, 0, Discount{UsageLimit: &limit, UsedCount: 5}.RemainingUses())
}

func TestResolveForInvoice(t *testing.T) {
	repo := newMemoryRepo()
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	svc := NewService(repo, nil, nil).WithClock(func() time.Time { return now })
	ctx := context.Background()

	tax, err := svc.CreateTax(ctx, staff, TaxInput{Name: "Sales tax", Kind: KindPercentage, Rate: dec("8.5"), Active: true})
	require.NoError(t, err)
	discount, err := svc.CreateDiscount(ctx, staff, DiscountInput{Code: "SUMMER", Name: "Summer", Kind: KindFixed, Amount: dec("25"), Active: true})
	require.NoError(t, err)
	inactiveFee, err := svc.CreateFee(ctx, staff, FeeInput{Name: "Rush", Kind: KindFixed, Amount: dec("10"), Active: false})
	require.NoError(t, err)

	resolved, err := svc.ResolveForInvoice(ctx, &tax.ID, nil, &discount.ID)
	require.NoError(t, err)
	require.Nil(t, resolved.Fee)
	base := dec("500")
	require.Equal(t, "42.50", Resolve(base, resolved.Tax).StringFixed(2))
	require.Equal(t, "25.00", Resolve(base, resolved.Discount).StringFixed(2))

	_, err = svc.ResolveForInvoice(ctx, nil, &inactiveFee.ID, nil)
	require.ErrorIs(t, err, ErrChargeInactive)

	missing := int64(999)
	_, err = svc.ResolveForInvoice(ctx, &missing, nil, nil)
	require.True(t, IsNotFound(err))

	expired := now.Add(-time.Hour)
	d := repo.discounts[discount.ID]
	d.ValidUntil = &expired
	repo.discounts[discount.ID] = d
	_, err = svc.ResolveForInvoice(ctx, nil, nil, &discount.ID)
	require.ErrorIs(t, err, ErrDiscountInvalid)
}

func TestResolveStoredIsLenient(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	fee, err := svc.CreateFee(ctx, staff, FeeInput{Name: "Sizing", Kind: KindPercentage, Amount: dec("2"), Active: false})
	require.NoError(t, err)
	missing := int64(404)

	resolved, err := svc.ResolveStored(ctx, &missing, &fee.ID, &missing)
	require.NoError(t, err)
	require.Nil(t, resolved.Tax)
	require.Nil(t, resolved.Discount)
	require.NotNil(t, resolved.Fee)
	require.Equal(t, "10.00", Resolve(dec("500"), resolved.Fee).StringFixed(2))
}
