package billing

import (
	"github.com/shopspring/decimal"

	"github.com/gemvault/gemvault/internal/charges"
	"github.com/gemvault/gemvault/internal/money"
)

// Totals are the derived amounts of an invoice.
type Totals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	FeeAmount      decimal.Decimal `json:"fee_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
}

// CalculateTotals sums the item prices and applies tax, fee and discount to the
// subtotal. Absent charges contribute zero.
func CalculateTotals(items []InvoiceItem, tax, fee, discount *charges.Descriptor) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Price)
	}
	subtotal = money.Round2(subtotal)
	t := Totals{
		Subtotal:       subtotal,
		TaxAmount:      money.Round2(charges.Resolve(subtotal, tax)),
		FeeAmount:      money.Round2(charges.Resolve(subtotal, fee)),
		DiscountAmount: money.Round2(charges.Resolve(subtotal, discount)),
	}
	t.TotalAmount = money.Round2(t.Subtotal.Add(t.TaxAmount).Add(t.FeeAmount).Sub(t.DiscountAmount))
	return t
}

// Validate rejects totals that cannot be billed.
func (t Totals) Validate() error {
	if t.TotalAmount.IsNegative() {
		return ErrNegativeTotal
	}
	return nil
}

// ApplyTotals copies the derived amounts onto the invoice.
func (inv *Invoice) ApplyTotals(t Totals) {
	inv.Subtotal = t.Subtotal
	inv.TaxAmount = t.TaxAmount
	inv.FeeAmount = t.FeeAmount
	inv.DiscountAmount = t.DiscountAmount
	inv.TotalAmount = t.TotalAmount
}

// Totals returns the derived amounts currently stored on the invoice.
func (inv Invoice) Totals() Totals {
	return Totals{
		Subtotal:       inv.Subtotal,
		TaxAmount:      inv.TaxAmount,
		FeeAmount:      inv.FeeAmount,
		DiscountAmount: inv.DiscountAmount,
		TotalAmount:    inv.TotalAmount,
	}
}
