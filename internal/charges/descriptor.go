// Package charges holds taxes, fees and discounts and resolves them against a base amount.
package charges

import (
	"github.com/shopspring/decimal"

	"github.com/gemvault/gemvault/internal/money"
)

// Kind tells whether a charge is an absolute amount or a share of the base.
type Kind string

const (
	KindFixed      Kind = "fixed"
	KindPercentage Kind = "percentage"
)

// Valid reports whether the kind is known.
func (k Kind) Valid() bool {
	switch k {
	case KindFixed, KindPercentage:
		return true
	}
	return false
}

// Label returns the display text of the kind.
func (k Kind) Label() string {
	switch k {
	case KindFixed:
		return "Fixed amount"
	case KindPercentage:
		return "Percentage"
	}
	return "Unknown"
}

// Descriptor is the resolved form of a tax, fee or discount. Percentage values
// are on a 0-100 scale; fixed values are currency amounts.
type Descriptor struct {
	Kind  Kind
	Value decimal.Decimal
}

// Fixed builds a fixed descriptor.
func Fixed(amount decimal.Decimal) *Descriptor {
	return &Descriptor{Kind: KindFixed, Value: amount}
}

// Percentage builds a percentage descriptor.
func Percentage(pct decimal.Decimal) *Descriptor {
	return &Descriptor{Kind: KindPercentage, Value: pct}
}

// Resolve returns the amount the descriptor applies to base. A nil descriptor
// means no charge is assigned and resolves to zero.
func Resolve(base decimal.Decimal, d *Descriptor) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	switch d.Kind {
	case KindFixed:
		return d.Value
	case KindPercentage:
		return money.ApplyPercentage(base, d.Value)
	}
	return decimal.Zero
}
