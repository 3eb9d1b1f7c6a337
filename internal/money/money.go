// Package money provides the fixed-point helpers shared by every billing calculation.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale constants for persisted values.
const (
	CurrencyScale   int32 = 2
	PercentageScale int32 = 4
)

var (
	hundred = decimal.NewFromInt(100)

	// PercentTolerance is the slack allowed when comparing percentage sums.
	PercentTolerance = decimal.RequireFromString("0.01")

	// ErrInvalidAmount indicates an amount string could not be parsed.
	ErrInvalidAmount = errors.New("money: invalid amount")
)

// Round2 rounds half away from zero to two decimal places.
func Round2(x decimal.Decimal) decimal.Decimal {
	return x.Round(CurrencyScale)
}

// ApplyPercentage returns Round2(base * pct / 100).
func ApplyPercentage(base, pct decimal.Decimal) decimal.Decimal {
	return Round2(base.Mul(pct).Div(hundred))
}

// Share returns Round2(amount * part / whole). A zero whole yields zero.
func Share(amount, part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return Round2(amount.Mul(part).Div(whole))
}

// WithinTolerance reports whether |a-b| <= tol.
func WithinTolerance(a, b, tol decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tol)
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// IsPercentage reports whether pct lies in [0, 100].
func IsPercentage(pct decimal.Decimal) bool {
	return !pct.IsNegative() && pct.LessThanOrEqual(hundred)
}

// Hundred returns 100.
func Hundred() decimal.Decimal {
	return hundred
}

// Parse reads a decimal amount from user input.
func Parse(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: empty value", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return d, nil
}

// Format renders an amount with two decimals.
func Format(x decimal.Decimal) string {
	return Round2(x).StringFixed(CurrencyScale)
}
