package charges

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/gemvault/gemvault/internal/shared"
)

// AuditRecorder appends audit entries after a change is committed.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages taxes, fees and discounts.
type Service struct {
	repo   Repository
	audit  AuditRecorder
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service instance.
func NewService(repo Repository, audit AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) record(ctx context.Context, actor shared.Actor, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.NewAuditLog(actor, action, entity, strconv.FormatInt(id, 10), meta)); err != nil {
		s.logger.Warn("charges audit", slog.String("action", action), slog.Any("error", err))
	}
}

// --- Taxes ---

// ListTaxes returns taxes matching filter.
func (s *Service) ListTaxes(ctx context.Context, filter ListFilter) ([]Tax, int, error) {
	return s.repo.ListTaxes(ctx, filter)
}

// GetTax returns a tax by id.
func (s *Service) GetTax(ctx context.Context, id int64) (Tax, error) {
	return s.repo.GetTax(ctx, id)
}

// CreateTax validates and stores a tax.
func (s *Service) CreateTax(ctx context.Context, actor shared.Actor, in TaxInput) (Tax, error) {
	if err := actor.RequireStaff(); err != nil {
		return Tax{}, err
	}
	if err := in.normalize(); err != nil {
		return Tax{}, err
	}
	tax, err := s.repo.CreateTax(ctx, in)
	if err != nil {
		return Tax{}, err
	}
	s.record(ctx, actor, "tax.created", "tax", tax.ID, map[string]any{"kind": tax.Kind, "rate": tax.Rate.String()})
	return tax, nil
}

// UpdateTax validates and updates a tax.
func (s *Service) UpdateTax(ctx context.Context, actor shared.Actor, id int64, in TaxInput) (Tax, error) {
	if err := actor.RequireStaff(); err != nil {
		return Tax{}, err
	}
	if err := in.normalize(); err != nil {
		return Tax{}, err
	}
	tax, err := s.repo.UpdateTax(ctx, id, in)
	if err != nil {
		return Tax{}, err
	}
	s.record(ctx, actor, "tax.updated", "tax", id, map[string]any{"kind": tax.Kind, "rate": tax.Rate.String(), "active": tax.Active})
	return tax, nil
}

// DeleteTax removes a tax.
func (s *Service) DeleteTax(ctx context.Context, actor shared.Actor, id int64) error {
	if err := actor.RequireStaff(); err != nil {
		return err
	}
	if err := s.repo.DeleteTax(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor, "tax.deleted", "tax", id, nil)
	return nil
}

// --- Fees ---

// ListFees returns fees matching filter.
func (s *Service) ListFees(ctx context.Context, filter ListFilter) ([]Fee, int, error) {
	return s.repo.ListFees(ctx, filter)
}

// GetFee returns a fee by id.
func (s *Service) GetFee(ctx context.Context, id int64) (Fee, error) {
	return s.repo.GetFee(ctx, id)
}

// CreateFee validates and stores a fee.
func (s *Service) CreateFee(ctx context.Context, actor shared.Actor, in FeeInput) (Fee, error) {
	if err := actor.RequireStaff(); err != nil {
		return Fee{}, err
	}
	if err := in.normalize(); err != nil {
		return Fee{}, err
	}
	fee, err := s.repo.CreateFee(ctx, in)
	if err != nil {
		return Fee{}, err
	}
	s.record(ctx, actor, "fee.created", "fee", fee.ID, map[string]any{"kind": fee.Kind, "amount": fee.Amount.String()})
	return fee, nil
}

// UpdateFee validates and updates a fee.
func (s *Service) UpdateFee(ctx context.Context, actor shared.Actor, id int64, in FeeInput) (Fee, error) {
	if err := actor.RequireStaff(); err != nil {
		return Fee{}, err
	}
	if err := in.normalize(); err != nil {
		return Fee{}, err
	}
	fee, err := s.repo.UpdateFee(ctx, id, in)
	if err != nil {
		return Fee{}, err
	}
	s.record(ctx, actor, "fee.updated", "fee", id, map[string]any{"kind": fee.Kind, "amount": fee.Amount.String(), "active": fee.Active})
	return fee, nil
}

// DeleteFee removes a fee.
func (s *Service) DeleteFee(ctx context.Context, actor shared.Actor, id int64) error {
	if err := actor.RequireStaff(); err != nil {
		return err
	}
	if err := s.repo.DeleteFee(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor, "fee.deleted", "fee", id, nil)
	return nil
}

// --- Discounts ---

// ListDiscounts returns discounts matching filter.
func (s *Service) ListDiscounts(ctx context.Context, filter ListFilter) ([]Discount, int, error) {
	return s.repo.ListDiscounts(ctx, filter)
}

// GetDiscount returns a discount by id.
func (s *Service) GetDiscount(ctx context.Context, id int64) (Discount, error) {
	return s.repo.GetDiscount(ctx, id)
}

// CreateDiscount validates and stores a discount.
func (s *Service) CreateDiscount(ctx context.Context, actor shared.Actor, in DiscountInput) (Discount, error) {
	if err := actor.RequireStaff(); err != nil {
		return Discount{}, err
	}
	if err := in.normalize(); err != nil {
		return Discount{}, err
	}
	d, err := s.repo.CreateDiscount(ctx, in)
	if err != nil {
		return Discount{}, err
	}
	s.record(ctx, actor, "discount.created", "discount", d.ID, map[string]any{"code": d.Code, "kind": d.Kind, "amount": d.Amount.String()})
	return d, nil
}

// UpdateDiscount validates and updates a discount.
func (s *Service) UpdateDiscount(ctx context.Context, actor shared.Actor, id int64, in DiscountInput) (Discount, error) {
	if err := actor.RequireStaff(); err != nil {
		return Discount{}, err
	}
	if err := in.normalize(); err != nil {
		return Discount{}, err
	}
	d, err := s.repo.UpdateDiscount(ctx, id, in)
	if err != nil {
		return Discount{}, err
	}
	s.record(ctx, actor, "discount.updated", "discount", id, map[string]any{"code": d.Code, "active": d.Active})
	return d, nil
}

// DeleteDiscount removes a discount.
func (s *Service) DeleteDiscount(ctx context.Context, actor shared.Actor, id int64) error {
	if err := actor.RequireStaff(); err != nil {
		return err
	}
	if err := s.repo.DeleteDiscount(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor, "discount.deleted", "discount", id, nil)
	return nil
}

// ResolveForInvoice loads the referenced charges and returns their descriptors.
// Nil ids are skipped. Inactive charges and invalid discounts are rejected.
func (s *Service) ResolveForInvoice(ctx context.Context, taxID, feeID, discountID *int64) (Resolved, error) {
	var out Resolved
	if taxID != nil {
		tax, err := s.repo.GetTax(ctx, *taxID)
		if err != nil {
			return Resolved{}, err
		}
		if !tax.Active {
			return Resolved{}, ErrChargeInactive
		}
		out.Tax = tax.Descriptor()
	}
	if feeID != nil {
		fee, err := s.repo.GetFee(ctx, *feeID)
		if err != nil {
			return Resolved{}, err
		}
		if !fee.Active {
			return Resolved{}, ErrChargeInactive
		}
		out.Fee = fee.Descriptor()
	}
	if discountID != nil {
		d, err := s.repo.GetDiscount(ctx, *discountID)
		if err != nil {
			return Resolved{}, err
		}
		if !d.IsValid(s.now()) {
			return Resolved{}, ErrDiscountInvalid
		}
		out.Discount = d.Descriptor()
	}
	return out, nil
}

// ResolveStored returns the descriptors of charges already attached to an
// invoice. Missing records resolve to no charge and activity is not checked,
// so recalculating an existing invoice never fails on configuration drift.
func (s *Service) ResolveStored(ctx context.Context, taxID, feeID, discountID *int64) (Resolved, error) {
	var out Resolved
	if taxID != nil {
		tax, err := s.repo.GetTax(ctx, *taxID)
		switch {
		case err == nil:
			out.Tax = tax.Descriptor()
		case !IsNotFound(err):
			return Resolved{}, err
		}
	}
	if feeID != nil {
		fee, err := s.repo.GetFee(ctx, *feeID)
		switch {
		case err == nil:
			out.Fee = fee.Descriptor()
		case !IsNotFound(err):
			return Resolved{}, err
		}
	}
	if discountID != nil {
		d, err := s.repo.GetDiscount(ctx, *discountID)
		switch {
		case err == nil:
			out.Discount = d.Descriptor()
		case !IsNotFound(err):
			return Resolved{}, err
		}
	}
	return out, nil
}
