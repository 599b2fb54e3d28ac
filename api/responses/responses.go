package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	pkgerrors "github.com/buildmart/storefront/pkg/errors"
	"github.com/buildmart/storefront/pkg/logger"
	"github.com/buildmart/storefront/pkg/types"
)

// encodeFallback is written when a payload cannot be marshalled.
const encodeFallback = `{"success":false,"error":{"code":"INTERNAL_ERROR","message":"internal server error"}}` + "\n"

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Success: true, Data: data})
}

// WriteSuccessWarnings answers 200 with non-fatal warnings, e.g. a cart
// change that did not reach the durable backend.
func WriteSuccessWarnings(w http.ResponseWriter, data any, warnings []string) {
	writeJSON(w, http.StatusOK, types.SuccessEnvelope{Success: true, Data: data, Warnings: warnings})
}

// WriteJSON writes payload as-is, without an envelope.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, status, payload)
}

// WriteError maps err onto its code's status and public message and logs it.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	typed := pkgerrors.Classify(err)
	meta := pkgerrors.MetadataFor(typed.Code())

	apiErr := types.APIError{
		Code:    string(typed.Code()),
		Message: pkgerrors.PublicMessage(typed),
	}
	if meta.DetailsAllowed {
		apiErr.Details = typed.Details()
	}

	LogFailure(ctx, logg, err)
	writeJSON(w, meta.HTTPStatus, types.ErrorEnvelope{Error: apiErr})
}

// LogFailure records err with its unwrapped chain and returns the status it
// maps to. 5xx log at error with a stack, everything else at warn.
func LogFailure(ctx context.Context, logg *logger.Logger, err error) int {
	typed := pkgerrors.Classify(err)
	status := pkgerrors.MetadataFor(typed.Code()).HTTPStatus
	if logg == nil {
		return status
	}

	dump := pkgerrors.Dump(typed)
	fields := map[string]any{
		"error":       dump.TopMessage,
		"error_code":  string(typed.Code()),
		"error_chain": dump.Chain,
		"status":      status,
	}
	if dump.Backend != "" {
		fields["backend"] = dump.Backend
	}
	if dump.PG != nil {
		fields["pg"] = dump.PG
	}
	ctx = logg.WithFields(ctx, fields)

	if status >= http.StatusInternalServerError {
		logg.Error(ctx, "request.error", typed)
	} else {
		logg.Warn(ctx, "request.rejected")
	}
	return status
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		status = http.StatusInternalServerError
		buf.Reset()
		buf.WriteString(encodeFallback)
	}
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
