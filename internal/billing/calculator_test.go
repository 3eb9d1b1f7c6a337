package billing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gemvault/gemvault/internal/charges"
	"github.com/gemvault/gemvault/internal/shared"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func items(prices ...string) []InvoiceItem {
	out := make([]InvoiceItem, len(prices))
	for i, p := range prices {
		out[i] = InvoiceItem{ProductName: "Item", Price: dec(p)}
	}
	return out
}

func TestCalculateTotalsTaxAndFixedDiscount(t *testing.T) {
	totals := CalculateTotals(items("150.00", "50.00", "300.00"),
		charges.Percentage(dec("8.5")), nil, charges.Fixed(dec("25.00")))

	require.True(t, totals.Subtotal.Equal(dec("500.00")))
	require.True(t, totals.TaxAmount.Equal(dec("42.50")))
	require.True(t, totals.FeeAmount.IsZero())
	require.True(t, totals.DiscountAmount.Equal(dec("25.00")))
	require.True(t, totals.TotalAmount.Equal(dec("517.50")))
	require.NoError(t, totals.Validate())
}

func TestCalculateTotalsRoundsEachCharge(t *testing.T) {
	totals := CalculateTotals(items("99.99", "0.01", "33.33"),
		charges.Percentage(dec("7.25")), charges.Percentage(dec("2.5")), charges.Percentage(dec("10")))

	require.Equal(t, "133.33", totals.Subtotal.StringFixed(2))
	require.Equal(t, "9.67", totals.TaxAmount.StringFixed(2))
	require.Equal(t, "3.33", totals.FeeAmount.StringFixed(2))
	require.Equal(t, "13.33", totals.DiscountAmount.StringFixed(2))
	expected := totals.Subtotal.Add(totals.TaxAmount).Add(totals.FeeAmount).Sub(totals.DiscountAmount)
	require.True(t, totals.TotalAmount.Equal(expected))
}

func TestCalculateTotalsIsIdempotent(t *testing.T) {
	lines := items("1250.00", "75.50")
	tax := charges.Percentage(dec("11"))
	fee := charges.Fixed(dec("15.00"))

	first := CalculateTotals(lines, tax, fee, nil)
	inv := Invoice{}
	inv.ApplyTotals(first)
	second := CalculateTotals(lines, tax, fee, nil)

	require.True(t, totalsEqual(first, second))
	require.True(t, totalsEqual(inv.Totals(), second))
}

func TestCalculateTotalsWithoutItems(t *testing.T) {
	totals := CalculateTotals(nil, charges.Percentage(dec("10")), charges.Fixed(dec("5")), nil)
	require.True(t, totals.Subtotal.IsZero())
	require.True(t, totals.TaxAmount.IsZero())
	require.True(t, totals.TotalAmount.Equal(dec("5")))
}

func TestTotalsRejectOversizedDiscount(t *testing.T) {
	totals := CalculateTotals(items("20.00"), nil, nil, charges.Fixed(dec("25.00")))
	require.True(t, totals.TotalAmount.Equal(dec("-5.00")))

	err := totals.Validate()
	require.ErrorIs(t, err, ErrNegativeTotal)
	require.True(t, errors.Is(err, shared.ErrValidation))
}
