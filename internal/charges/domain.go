package charges

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tax is a configured tax rule.
type Tax struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Kind      Kind            `json:"kind"`
	Rate      decimal.Decimal `json:"rate"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Descriptor returns the resolver form of the tax.
func (t Tax) Descriptor() *Descriptor {
	return &Descriptor{Kind: t.Kind, Value: t.Rate}
}

// Fee is a configured service or handling fee.
type Fee struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Kind      Kind            `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Descriptor returns the resolver form of the fee.
func (f Fee) Descriptor() *Descriptor {
	return &Descriptor{Kind: f.Kind, Value: f.Amount}
}

// Discount is a promotional reduction with optional validity window and usage cap.
type Discount struct {
	ID         int64           `json:"id"`
	Code       string          `json:"code"`
	Name       string          `json:"name"`
	Kind       Kind            `json:"kind"`
	Amount     decimal.Decimal `json:"amount"`
	ValidFrom  *time.Time      `json:"valid_from,omitempty"`
	ValidUntil *time.Time      `json:"valid_until,omitempty"`
	UsageLimit *int            `json:"usage_limit,omitempty"`
	UsedCount  int             `json:"used_count"`
	Active     bool            `json:"active"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Descriptor returns the resolver form of the discount.
func (d Discount) Descriptor() *Descriptor {
	return &Descriptor{Kind: d.Kind, Value: d.Amount}
}

// IsValid reports whether the discount can be applied at now.
func (d Discount) IsValid(now time.Time) bool {
	if !d.Active {
		return false
	}
	if d.ValidFrom != nil && now.Before(*d.ValidFrom) {
		return false
	}
	if d.ValidUntil != nil && now.After(*d.ValidUntil) {
		return false
	}
	if d.UsageLimit != nil && d.UsedCount >= *d.UsageLimit {
		return false
	}
	return true
}

// RemainingUses returns how many more redemptions are allowed, or -1 when unlimited.
func (d Discount) RemainingUses() int {
	if d.UsageLimit == nil {
		return -1
	}
	left := *d.UsageLimit - d.UsedCount
	if left < 0 {
		return 0
	}
	return left
}

// --- Input DTOs ---

// TaxInput creates or updates a tax.
type TaxInput struct {
	Name   string          `json:"name" validate:"required,max=120"`
	Kind   Kind            `json:"kind" validate:"required,oneof=fixed percentage"`
	Rate   decimal.Decimal `json:"rate"`
	Active bool            `json:"active"`
}

// FeeInput creates or updates a fee.
type FeeInput struct {
	Name   string          `json:"name" validate:"required,max=120"`
	Kind   Kind            `json:"kind" validate:"required,oneof=fixed percentage"`
	Amount decimal.Decimal `json:"amount"`
	Active bool            `json:"active"`
}

// DiscountInput creates or updates a discount.
type DiscountInput struct {
	Code       string          `json:"code" validate:"required,max=40"`
	Name       string          `json:"name" validate:"required,max=120"`
	Kind       Kind            `json:"kind" validate:"required,oneof=fixed percentage"`
	Amount     decimal.Decimal `json:"amount"`
	ValidFrom  *time.Time      `json:"valid_from"`
	ValidUntil *time.Time      `json:"valid_until"`
	UsageLimit *int            `json:"usage_limit" validate:"omitempty,gte=0"`
	Active     bool            `json:"active"`
}

// ListFilter narrows configuration listings.
type ListFilter struct {
	Search     string
	ActiveOnly bool
	Page       int
	Limit      int
}

// Resolved bundles the descriptors selected for an invoice.
type Resolved struct {
	Tax      *Descriptor
	Fee      *Descriptor
	Discount *Descriptor
}
