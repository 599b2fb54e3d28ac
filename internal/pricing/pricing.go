// Package pricing derives effective unit prices and line totals.
// Every function here is pure.
package pricing

import (
	"sort"

	"github.com/buildmart/storefront/internal/catalog"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// EffectiveUnitPrice returns the unit price for quantity.
// With useBulk the highest qualifying tier wins, falling back to the base
// price. Otherwise an active sale discounts the base price.
func EffectiveUnitPrice(p catalog.Product, quantity int, useBulk bool) decimal.Decimal {
	if useBulk && len(p.Price.BulkPrices) > 0 {
		if tier, ok := SelectTier(p.Price.BulkPrices, quantity); ok {
			return tier.Price
		}
		return p.Price.Value
	}
	if SaleActive(p) {
		return SalePrice(p.Price.Value, p.Status.OnSale.DiscountPercent)
	}
	return p.Price.Value
}

// LineTotal is EffectiveUnitPrice times quantity.
func LineTotal(p catalog.Product, quantity int, useBulk bool) decimal.Decimal {
	if quantity <= 0 {
		return decimal.Zero
	}
	return EffectiveUnitPrice(p, quantity, useBulk).Mul(decimal.NewFromInt(int64(quantity)))
}

// SelectTier picks the tier with the largest threshold not above quantity.
// The input slice is not modified.
func SelectTier(tiers []catalog.BulkTier, quantity int) (catalog.BulkTier, bool) {
	sorted := make([]catalog.BulkTier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Quantity > sorted[j].Quantity
	})
	for _, tier := range sorted {
		if quantity >= tier.Quantity {
			return tier, true
		}
	}
	return catalog.BulkTier{}, false
}

// SaleActive reports whether the product carries a usable sale.
func SaleActive(p catalog.Product) bool {
	return p.Status.OnSale != nil && p.Status.OnSale.DiscountPercent.IsPositive()
}

// SalePrice applies a percentage discount to base.
func SalePrice(base, discountPercent decimal.Decimal) decimal.Decimal {
	return base.Mul(decimal.NewFromInt(1).Sub(discountPercent.Div(hundred)))
}

// Discount summarises a sale for display.
type Discount struct {
	Original   decimal.Decimal `json:"original"`
	Discounted decimal.Decimal `json:"discounted"`
	Savings    decimal.Decimal `json:"savings"`
	Percent    decimal.Decimal `json:"percent"`
	EndDate    string          `json:"endDate,omitempty"`
}

// DiscountFor returns the sale breakdown, or false when no sale applies.
func DiscountFor(p catalog.Product) (Discount, bool) {
	if !SaleActive(p) {
		return Discount{}, false
	}
	discounted := SalePrice(p.Price.Value, p.Status.OnSale.DiscountPercent)
	return Discount{
		Original:   p.Price.Value,
		Discounted: discounted,
		Savings:    p.Price.Value.Sub(discounted),
		Percent:    p.Status.OnSale.DiscountPercent,
		EndDate:    p.Status.OnSale.EndDate,
	}, true
}

// TiersAscending returns bulk tiers sorted by threshold for display.
func TiersAscending(tiers []catalog.BulkTier) []catalog.BulkTier {
	out := make([]catalog.BulkTier, len(tiers))
	copy(out, tiers)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Quantity < out[j].Quantity
	})
	return out
}

// Quote is a priced request for a quantity of a product.
type Quote struct {
	ProductID int64           `json:"productId"`
	Quantity  int             `json:"quantity"`
	Bulk      bool            `json:"bulk"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	LineTotal decimal.Decimal `json:"lineTotal"`
	TierMin   *int            `json:"tierMinQuantity,omitempty"`
}

// QuoteFor prices quantity units of p.
func QuoteFor(p catalog.Product, quantity int, useBulk bool) Quote {
	q := Quote{
		ProductID: p.ID,
		Quantity:  quantity,
		Bulk:      useBulk,
		UnitPrice: EffectiveUnitPrice(p, quantity, useBulk),
		LineTotal: LineTotal(p, quantity, useBulk),
	}
	if useBulk {
		if tier, ok := SelectTier(p.Price.BulkPrices, quantity); ok {
			threshold := tier.Quantity
			q.TierMin = &threshold
		}
	}
	return q
}
