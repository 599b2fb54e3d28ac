package cart

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/buildmart/storefront/api/middleware"
	"github.com/buildmart/storefront/api/responses"
	"github.com/buildmart/storefront/api/validators"
	cartsvc "github.com/buildmart/storefront/internal/cart"
	"github.com/buildmart/storefront/internal/order"
	pkgerrors "github.com/buildmart/storefront/pkg/errors"
	"github.com/buildmart/storefront/pkg/logger"
)

func sessionFromContext(r *http.Request) (string, error) {
	sessionID := middleware.SessionIDFromContext(r.Context())
	if sessionID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "session context missing")
	}
	return sessionID, nil
}

func productIDParam(r *http.Request) (int64, error) {
	return validators.ParseID(chi.URLParam(r, "productId"), "productId")
}

// CartFetch returns the session cart with its order summary.
func CartFetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		sessionID, err := sessionFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		policy := order.ParsePolicy(r.URL.Query().Get("pricing"))
		view, err := svc.GetCart(r.Context(), sessionID, policy)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CartReplace overwrites the cart. Prices are recomputed server side.
func CartReplace(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := sessionFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload replaceCartRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]cartsvc.ItemInput, 0, len(payload.Items))
		for _, item := range payload.Items {
			items = append(items, item.toInput())
		}
		view, err := svc.SetCart(r.Context(), sessionID, items)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CartClear empties the cart.
func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := sessionFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.ClearCart(r.Context(), sessionID); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeStorage) {
				responses.WriteSuccessWarnings(w, map[string]bool{"cleared": true}, []string{"cart was cleared but the change could not be saved"})
				return
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"cleared": true})
	}
}

// CartAddItem accumulates quantity onto an existing entry.
func CartAddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := sessionFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload itemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithProductID(ctx, payload.ProductID)
		}
		mutation, err := svc.AddToCart(ctx, sessionID, payload.toInput())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, mutation)
	}
}

// CartSetItem replaces the entry for a product.
func CartSetItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := sessionFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := productIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload entryRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		mutation, err := svc.SetCartEntry(r.Context(), sessionID, cartsvc.ItemInput{
			ProductID: productID,
			Quantity:  payload.Quantity,
			Bulk:      payload.Bulk,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mutation)
	}
}

// CartUpdateQuantity clamps the requested quantity into the product's order
// bounds. The stored unit price is kept.
func CartUpdateQuantity(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := sessionFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := productIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload quantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.UpdateQuantity(r.Context(), sessionID, productID, *payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CartRemoveItem drops a product from the cart.
func CartRemoveItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := sessionFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := productIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.RemoveFromCart(r.Context(), sessionID, productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
