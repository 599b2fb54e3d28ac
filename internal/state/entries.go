package state

import "github.com/shopspring/decimal"

// Collection names double as the durable storage keys.
const (
	CollectionCart      = "cart"
	CollectionFavorites = "favorites"
)

// CartEntry is one product line in a session cart. Price is the unit price
// captured when the entry was written and is used as-is at checkout.
type CartEntry struct {
	ProductID int64           `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	BulkPrice bool            `json:"bulkPrice"`
}

// FavoriteEntry marks a product as liked.
type FavoriteEntry struct {
	ProductID int64 `json:"productId"`
}

func cloneCart(in []CartEntry) []CartEntry {
	out := make([]CartEntry, len(in))
	copy(out, in)
	return out
}

func cloneFavorites(in []FavoriteEntry) []FavoriteEntry {
	out := make([]FavoriteEntry, len(in))
	copy(out, in)
	return out
}

// normalizeCart drops rows that could not have been produced by the
// reconciliation operations: non-positive ids/quantities and duplicates.
func normalizeCart(in []CartEntry) ([]CartEntry, int) {
	out := make([]CartEntry, 0, len(in))
	seen := make(map[int64]struct{}, len(in))
	dropped := 0
	for _, e := range in {
		if e.ProductID <= 0 || e.Quantity <= 0 {
			dropped++
			continue
		}
		if _, ok := seen[e.ProductID]; ok {
			dropped++
			continue
		}
		seen[e.ProductID] = struct{}{}
		out = append(out, e)
	}
	return out, dropped
}

func normalizeFavorites(in []FavoriteEntry) ([]FavoriteEntry, int) {
	out := make([]FavoriteEntry, 0, len(in))
	seen := make(map[int64]struct{}, len(in))
	dropped := 0
	for _, e := range in {
		if e.ProductID <= 0 {
			dropped++
			continue
		}
		if _, ok := seen[e.ProductID]; ok {
			dropped++
			continue
		}
		seen[e.ProductID] = struct{}{}
		out = append(out, e)
	}
	return out, dropped
}
