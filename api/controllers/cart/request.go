package cart

import (
	cartsvc "github.com/buildmart/storefront/internal/cart"
)

type itemRequest struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,min=1"`
	Bulk      bool  `json:"bulk"`
}

func (r itemRequest) toInput() cartsvc.ItemInput {
	return cartsvc.ItemInput{ProductID: r.ProductID, Quantity: r.Quantity, Bulk: r.Bulk}
}

type replaceCartRequest struct {
	Items []itemRequest `json:"items" validate:"dive"`
}

type entryRequest struct {
	Quantity int  `json:"quantity" validate:"required,min=1"`
	Bulk     bool `json:"bulk"`
}

// quantityRequest accepts any integer; the service clamps it into the
// product's order bounds.
type quantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

type replaceFavoritesRequest struct {
	ProductIDs []int64 `json:"productIds" validate:"dive,gt=0"`
}

type favoriteRequest struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
}
