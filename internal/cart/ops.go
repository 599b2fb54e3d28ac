package cart

import (
	"github.com/buildmart/storefront/internal/catalog"
	"github.com/buildmart/storefront/internal/state"
	pkgerrors "github.com/buildmart/storefront/pkg/errors"
)

type (
	Entry    = state.CartEntry
	Favorite = state.FavoriteEntry
)

func indexOf(cart []Entry, productID int64) int {
	for i, e := range cart {
		if e.ProductID == productID {
			return i
		}
	}
	return -1
}

// ReplaceEntry overwrites the entry for the same product or appends it.
// Used by explicit quantity edits.
func ReplaceEntry(cart []Entry, entry Entry) []Entry {
	out := append([]Entry(nil), cart...)
	if i := indexOf(out, entry.ProductID); i >= 0 {
		out[i] = entry
		return out
	}
	return append(out, entry)
}

// AccumulateEntry overwrites the entry for the same product, adding the
// previous quantity to the new one, or appends it. Used by add-to-cart.
func AccumulateEntry(cart []Entry, entry Entry) []Entry {
	out := append([]Entry(nil), cart...)
	if i := indexOf(out, entry.ProductID); i >= 0 {
		entry.Quantity += out[i].Quantity
		out[i] = entry
		return out
	}
	return append(out, entry)
}

// ClampQuantity bounds q to the product's order limits.
func ClampQuantity(p catalog.Product, q int) int {
	if q > p.Stock.MaxOrder {
		q = p.Stock.MaxOrder
	}
	if q < p.Stock.MinOrder {
		q = p.Stock.MinOrder
	}
	return q
}

// ChangeQuantity sets the clamped quantity on the product's entry. The
// entry is never removed here; absent entries leave the cart unchanged.
func ChangeQuantity(cart []Entry, p catalog.Product, quantity int) []Entry {
	out := append([]Entry(nil), cart...)
	if i := indexOf(out, p.ID); i >= 0 {
		out[i].Quantity = ClampQuantity(p, quantity)
	}
	return out
}

// RemoveEntry filters out the product. Missing entries are a no-op.
func RemoveEntry(cart []Entry, productID int64) []Entry {
	out := make([]Entry, 0, len(cart))
	for _, e := range cart {
		if e.ProductID != productID {
			out = append(out, e)
		}
	}
	return out
}

// ValidateQuantity rejects quantities outside [MinOrder, MaxOrder].
func ValidateQuantity(p catalog.Product, quantity int) error {
	if quantity < p.Stock.MinOrder || quantity > p.Stock.MaxOrder {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity out of range").WithDetails(map[string]any{
			"productId": p.ID,
			"quantity":  quantity,
			"minOrder":  p.Stock.MinOrder,
			"maxOrder":  p.Stock.MaxOrder,
		})
	}
	return nil
}

func favoriteIndex(favs []Favorite, productID int64) int {
	for i, f := range favs {
		if f.ProductID == productID {
			return i
		}
	}
	return -1
}

// AddFavorite appends the product unless it is already present.
func AddFavorite(favs []Favorite, fav Favorite) []Favorite {
	out := append([]Favorite(nil), favs...)
	if favoriteIndex(out, fav.ProductID) >= 0 {
		return out
	}
	return append(out, fav)
}

// ReplaceFavorite overwrites the matching favorite in place or appends it.
func ReplaceFavorite(favs []Favorite, fav Favorite) []Favorite {
	out := append([]Favorite(nil), favs...)
	if i := favoriteIndex(out, fav.ProductID); i >= 0 {
		out[i] = fav
		return out
	}
	return append(out, fav)
}

// RemoveFavorite filters out the product. Missing entries are a no-op.
func RemoveFavorite(favs []Favorite, productID int64) []Favorite {
	out := make([]Favorite, 0, len(favs))
	for _, f := range favs {
		if f.ProductID != productID {
			out = append(out, f)
		}
	}
	return out
}
