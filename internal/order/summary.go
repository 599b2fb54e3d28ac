// Package order derives order totals from cart entries.
package order

import (
	"github.com/buildmart/storefront/internal/catalog"
	"github.com/buildmart/storefront/internal/pricing"
	"github.com/buildmart/storefront/internal/state"
	"github.com/shopspring/decimal"
)

// Policy selects which unit price a cart entry contributes.
type Policy int

const (
	// PolicySnapshot uses the price stored on the entry for every line.
	PolicySnapshot Policy = iota
	// PolicyRecompute keeps the snapshot for bulk-priced entries and
	// reprices the rest from the current catalog.
	PolicyRecompute
)

// ParsePolicy maps a query value to a Policy, defaulting to snapshot.
func ParsePolicy(v string) Policy {
	if v == "recompute" {
		return PolicyRecompute
	}
	return PolicySnapshot
}

func (p Policy) String() string {
	if p == PolicyRecompute {
		return "recompute"
	}
	return "snapshot"
}

// Summary is derived from a cart and never mutated independently.
type Summary struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// Calculator holds the flat shipping fee and tax rate.
type Calculator struct {
	ShippingFee decimal.Decimal
	TaxRate     decimal.Decimal
}

// DefaultCalculator charges 500 shipping and 20% tax.
func DefaultCalculator() Calculator {
	return Calculator{
		ShippingFee: decimal.NewFromInt(500),
		TaxRate:     decimal.RequireFromString("0.20"),
	}
}

// UnitPrice resolves the price an entry contributes under policy.
// The bool is false when the product is required but unknown.
func UnitPrice(e state.CartEntry, lookup catalog.Lookup, policy Policy) (decimal.Decimal, bool) {
	if policy == PolicySnapshot || e.BulkPrice {
		return e.Price, true
	}
	if lookup == nil {
		return e.Price, true
	}
	p, ok := lookup.Product(e.ProductID)
	if !ok {
		return decimal.Zero, false
	}
	return pricing.EffectiveUnitPrice(p, e.Quantity, false), true
}

// Summarize totals the entries. Empty input yields all zeros, shipping
// included. Entries whose product cannot be resolved are skipped under
// PolicyRecompute. Amounts are exact; rounding is left to presentation.
func (c Calculator) Summarize(entries []state.CartEntry, lookup catalog.Lookup, policy Policy) Summary {
	if len(entries) == 0 {
		return Summary{
			Subtotal: decimal.Zero,
			Shipping: decimal.Zero,
			Tax:      decimal.Zero,
			Total:    decimal.Zero,
		}
	}
	subtotal := decimal.Zero
	for _, e := range entries {
		price, ok := UnitPrice(e, lookup, policy)
		if !ok {
			continue
		}
		subtotal = subtotal.Add(price.Mul(decimal.NewFromInt(int64(e.Quantity))))
	}
	tax := subtotal.Mul(c.TaxRate)
	return Summary{
		Subtotal: subtotal,
		Shipping: c.ShippingFee,
		Tax:      tax,
		Total:    subtotal.Add(c.ShippingFee).Add(tax),
	}
}
