package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/buildmart/storefront/api/responses"
	"github.com/buildmart/storefront/api/validators"
	"github.com/buildmart/storefront/internal/catalog"
	"github.com/buildmart/storefront/internal/pricing"
	pkgerrors "github.com/buildmart/storefront/pkg/errors"
	"github.com/buildmart/storefront/pkg/logger"
)

const maxQuoteQuantity = 1_000_000

// CatalogReader is the read side of the product catalog.
type CatalogReader interface {
	Get(id int64) (catalog.Product, error)
	List(f catalog.Filter) []catalog.Product
	Categories() []catalog.CategoryNode
}

type productView struct {
	catalog.Product
	BulkTiers []catalog.BulkTier `json:"bulkTiers"`
	Discount  *pricing.Discount  `json:"discount,omitempty"`
}

func newProductView(p catalog.Product) productView {
	view := productView{Product: p, BulkTiers: pricing.TiersAscending(p.Price.BulkPrices)}
	if d, ok := pricing.DiscountFor(p); ok {
		view.Discount = &d
	}
	return view
}

// ListProducts returns the catalog narrowed by category and availability.
func ListProducts(cat CatalogReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cat == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		inStock, err := validators.ParseQueryBool(r, "inStock", false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		q := r.URL.Query()
		products := cat.List(catalog.Filter{
			Main:    validators.CleanFilter(q.Get("category")),
			Sub:     validators.CleanFilter(q.Get("sub")),
			InStock: inStock,
		})
		views := make([]productView, 0, len(products))
		for _, p := range products {
			views = append(views, newProductView(p))
		}
		responses.WriteSuccess(w, views)
	}
}

// GetProduct returns one product with its tiers and sale breakdown.
func GetProduct(cat CatalogReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseID(chi.URLParam(r, "productId"), "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		p, err := cat.Get(id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newProductView(p))
	}
}

// QuoteProduct prices a quantity without touching the cart.
func QuoteProduct(cat CatalogReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseID(chi.URLParam(r, "productId"), "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		p, err := cat.Get(id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		qty, err := validators.ParseQueryInt(r, "quantity", p.Stock.MinOrder, 1, maxQuoteQuantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bulk, err := validators.ParseQueryBool(r, "bulk", false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, pricing.QuoteFor(p, qty, bulk))
	}
}

// ListCategories returns the category tree with product counts.
func ListCategories(cat CatalogReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cat == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		responses.WriteSuccess(w, cat.Categories())
	}
}
