package order

import (
	"testing"

	"github.com/buildmart/storefront/internal/catalog"
	"github.com/buildmart/storefront/internal/state"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func TestSummarizeEmptyCart(t *testing.T) {
	t.Parallel()

	got := DefaultCalculator().Summarize(nil, nil, PolicySnapshot)
	assert.True(t, got.Subtotal.IsZero())
	assert.True(t, got.Shipping.IsZero(), "shipping must be zero for an empty cart")
	assert.True(t, got.Tax.IsZero())
	assert.True(t, got.Total.IsZero())
}

func TestSummarizeBulkCementScenario(t *testing.T) {
	t.Parallel()

	entries := []state.CartEntry{{ProductID: 1001, Quantity: 10, Price: dec(360), BulkPrice: true}}
	got := DefaultCalculator().Summarize(entries, nil, PolicySnapshot)

	assert.True(t, got.Subtotal.Equal(dec(3600)), "subtotal %s", got.Subtotal)
	assert.True(t, got.Shipping.Equal(dec(500)), "shipping %s", got.Shipping)
	assert.True(t, got.Tax.Equal(dec(720)), "tax %s", got.Tax)
	assert.True(t, got.Total.Equal(dec(4820)), "total %s", got.Total)
}

func TestSummarizeInvariants(t *testing.T) {
	t.Parallel()

	entries := []state.CartEntry{
		{ProductID: 1, Quantity: 3, Price: decimal.RequireFromString("361")},
		{ProductID: 2, Quantity: 50, Price: dec(24)},
		{ProductID: 3, Quantity: 7, Price: decimal.RequireFromString("1150.5")},
	}
	calc := DefaultCalculator()
	got := calc.Summarize(entries, nil, PolicySnapshot)

	assert.True(t, got.Shipping.Equal(calc.ShippingFee))
	assert.True(t, got.Tax.Equal(got.Subtotal.Mul(calc.TaxRate)))
	assert.True(t, got.Total.Equal(got.Subtotal.Add(got.Shipping).Add(got.Tax)))
}

func TestSummarizeKeepsSubCentTax(t *testing.T) {
	t.Parallel()

	entries := []state.CartEntry{{ProductID: 1, Quantity: 1, Price: decimal.RequireFromString("1.03")}}
	got := DefaultCalculator().Summarize(entries, nil, PolicySnapshot)

	assert.Equal(t, "0.206", got.Tax.String())
	assert.Equal(t, "501.236", got.Total.String())
}

type lookupMap map[int64]catalog.Product

func (m lookupMap) Product(id int64) (catalog.Product, bool) {
	p, ok := m[id]
	return p, ok
}

func TestSummarizeRecomputePolicy(t *testing.T) {
	t.Parallel()

	lookup := lookupMap{
		1: {ID: 1, Price: catalog.Price{Value: dec(400)}},
		2: {ID: 2, Price: catalog.Price{Value: dec(100)}, Status: catalog.Status{OnSale: &catalog.Sale{DiscountPercent: dec(10)}}},
	}
	entries := []state.CartEntry{
		{ProductID: 1, Quantity: 1, Price: dec(380)},
		{ProductID: 2, Quantity: 2, Price: dec(100)},
		{ProductID: 3, Quantity: 10, Price: dec(5), BulkPrice: true},
		{ProductID: 4, Quantity: 1, Price: dec(999)},
	}

	snap := DefaultCalculator().Summarize(entries, lookup, PolicySnapshot)
	require.True(t, snap.Subtotal.Equal(dec(380+200+50+999)), "snapshot subtotal %s", snap.Subtotal)

	re := DefaultCalculator().Summarize(entries, lookup, PolicyRecompute)
	// 400 + 2*90 + bulk snapshot 50; unknown product 4 skipped
	assert.True(t, re.Subtotal.Equal(dec(400+180+50)), "recompute subtotal %s", re.Subtotal)
}

func TestParsePolicy(t *testing.T) {
	t.Parallel()

	assert.Equal(t, PolicyRecompute, ParsePolicy("recompute"))
	assert.Equal(t, PolicySnapshot, ParsePolicy(""))
	assert.Equal(t, PolicySnapshot, ParsePolicy("bogus"))
	assert.Equal(t, "snapshot", PolicySnapshot.String())
}
