package charges

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/gemvault/gemvault/internal/money"
	"github.com/gemvault/gemvault/internal/shared"
)

var (
	ErrTaxNotFound       = fmt.Errorf("%w: tax", shared.ErrNotFound)
	ErrFeeNotFound       = fmt.Errorf("%w: fee", shared.ErrNotFound)
	ErrDiscountNotFound  = fmt.Errorf("%w: discount", shared.ErrNotFound)
	ErrChargeInactive    = fmt.Errorf("%w: charge is inactive", shared.ErrValidation)
	ErrDiscountInvalid   = fmt.Errorf("%w: discount is not valid", shared.ErrValidation)
	ErrDiscountExhausted = fmt.Errorf("%w: discount usage limit reached", shared.ErrConflict)
	ErrDuplicateCode     = fmt.Errorf("%w: discount code already exists", shared.ErrConflict)
)

func roundValue(kind Kind, value decimal.Decimal) decimal.Decimal {
	if kind == KindPercentage {
		return value.Round(money.PercentageScale)
	}
	return money.Round2(value)
}

func validateValue(kind Kind, value decimal.Decimal, field string) error {
	switch kind {
	case KindPercentage:
		if !money.IsPercentage(value) {
			return fmt.Errorf("%w: %s must be between 0 and 100", shared.ErrValidation, field)
		}
	case KindFixed:
		if value.IsNegative() {
			return fmt.Errorf("%w: %s must not be negative", shared.ErrValidation, field)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", shared.ErrValidation, kind)
	}
	return nil
}

func (in *TaxInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	if err := shared.ValidateStruct(in); err != nil {
		return err
	}
	in.Rate = roundValue(in.Kind, in.Rate)
	return validateValue(in.Kind, in.Rate, "rate")
}

func (in *FeeInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	if err := shared.ValidateStruct(in); err != nil {
		return err
	}
	in.Amount = roundValue(in.Kind, in.Amount)
	return validateValue(in.Kind, in.Amount, "amount")
}

func (in *DiscountInput) normalize() error {
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	in.Name = strings.TrimSpace(in.Name)
	if err := shared.ValidateStruct(in); err != nil {
		return err
	}
	in.Amount = roundValue(in.Kind, in.Amount)
	if err := validateValue(in.Kind, in.Amount, "amount"); err != nil {
		return err
	}
	if in.ValidFrom != nil && in.ValidUntil != nil && in.ValidUntil.Before(*in.ValidFrom) {
		return fmt.Errorf("%w: valid_until must not precede valid_from", shared.ErrValidation)
	}
	return nil
}

// IsNotFound reports whether err denotes a missing configuration record.
func IsNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}
