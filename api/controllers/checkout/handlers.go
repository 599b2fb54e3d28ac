package checkout

import (
	"encoding/base64"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/buildmart/storefront/api/middleware"
	"github.com/buildmart/storefront/api/responses"
	"github.com/buildmart/storefront/api/validators"
	checkoutsvc "github.com/buildmart/storefront/internal/checkout"
	"github.com/buildmart/storefront/internal/order"
	pkgerrors "github.com/buildmart/storefront/pkg/errors"
	"github.com/buildmart/storefront/pkg/logger"
)

// submitRequest mirrors what storefront clients post. Only the summary is
// read, and only to flag drift from the session cart.
type submitRequest struct {
	CartProducts []cartProduct  `json:"cartProducts"`
	OrderSummary *summaryFields `json:"orderSummary"`
}

type cartProduct struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	CartInfo struct {
		Quantity int             `json:"quantity"`
		Price    decimal.Decimal `json:"price"`
	} `json:"cartInfo"`
}

type summaryFields struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

type submitResponse struct {
	Success   bool           `json:"success"`
	PDFBuffer string         `json:"pdfBuffer,omitempty"`
	Reference string         `json:"reference,omitempty"`
	Pages     int            `json:"pages,omitempty"`
	Summary   *order.Summary `json:"orderSummary,omitempty"`
	Warnings  []string       `json:"warnings,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Submit runs the order pipeline and answers with the generated document.
func Submit(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			writeFailure(w, r, logg, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		sessionID := middleware.SessionIDFromContext(r.Context())
		if sessionID == "" {
			writeFailure(w, r, logg, pkgerrors.New(pkgerrors.CodeValidation, "session context missing"))
			return
		}

		var payload submitRequest
		if _, err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
			writeFailure(w, r, logg, err)
			return
		}
		input := checkoutsvc.Input{ClientItems: len(payload.CartProducts)}
		if s := payload.OrderSummary; s != nil {
			input.ClientSummary = &order.Summary{Subtotal: s.Subtotal, Shipping: s.Shipping, Tax: s.Tax, Total: s.Total}
		}

		result, err := svc.Submit(r.Context(), sessionID, input)
		if err != nil {
			writeFailure(w, r, logg, err)
			return
		}
		summary := result.Summary
		responses.WriteJSON(w, http.StatusOK, submitResponse{
			Success:   true,
			PDFBuffer: base64.StdEncoding.EncodeToString(result.Document),
			Reference: result.Reference,
			Pages:     result.Pages,
			Summary:   &summary,
			Warnings:  result.Warnings,
		})
	}
}

// Status reports the pipeline state of the caller's session.
func Status(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := middleware.SessionIDFromContext(r.Context())
		if sessionID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "session context missing"))
			return
		}
		responses.WriteSuccess(w, svc.Status(sessionID))
	}
}

// writeFailure answers in the checkout shape, {success:false, error:<msg>}.
func writeFailure(w http.ResponseWriter, r *http.Request, logg *logger.Logger, err error) {
	status := responses.LogFailure(r.Context(), logg, err)
	responses.WriteJSON(w, status, submitResponse{Success: false, Error: pkgerrors.PublicMessage(err)})
}
