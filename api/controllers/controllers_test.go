package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/buildmart/storefront/internal/catalog"
)

func defaultCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return cat
}

func withProductID(req *http.Request, id string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add("productId", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestQuoteProductBulkTier(t *testing.T) {
	handler := QuoteProduct(defaultCatalog(t), nil)
	req := withProductID(httptest.NewRequest(http.MethodGet, "/api/v1/products/1001/price?quantity=10&bulk=true", nil), "1001")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data struct {
			UnitPrice decimal.Decimal `json:"unitPrice"`
			LineTotal decimal.Decimal `json:"lineTotal"`
			TierMin   *int            `json:"tierMinQuantity"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !envelope.Data.UnitPrice.Equal(decimal.NewFromInt(360)) {
		t.Fatalf("unexpected unit price %s", envelope.Data.UnitPrice)
	}
	if !envelope.Data.LineTotal.Equal(decimal.NewFromInt(3600)) {
		t.Fatalf("unexpected line total %s", envelope.Data.LineTotal)
	}
	if envelope.Data.TierMin == nil || *envelope.Data.TierMin != 10 {
		t.Fatalf("expected tier threshold 10, got %v", envelope.Data.TierMin)
	}
}

func TestGetProductNotFound(t *testing.T) {
	handler := GetProduct(defaultCatalog(t), nil)
	req := withProductID(httptest.NewRequest(http.MethodGet, "/api/v1/products/9999", nil), "9999")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestGetProductBadID(t *testing.T) {
	handler := GetProduct(defaultCatalog(t), nil)
	req := withProductID(httptest.NewRequest(http.MethodGet, "/api/v1/products/abc", nil), "abc")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestListProductsFiltersInStock(t *testing.T) {
	cat := defaultCatalog(t)
	handler := ListProducts(cat, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/products?inStock=true", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data []struct {
			ID     int64 `json:"id"`
			Status struct {
				InStock bool `json:"inStock"`
			} `json:"status"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data) == 0 || len(envelope.Data) > cat.Len() {
		t.Fatalf("unexpected product count %d", len(envelope.Data))
	}
	for _, p := range envelope.Data {
		if !p.Status.InStock {
			t.Fatalf("product %d is out of stock", p.ID)
		}
	}
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestHealthReadyReportsDependencies(t *testing.T) {
	ok := HealthReady("test", map[string]Pinger{"state": stubPinger{}}, nil)
	resp := httptest.NewRecorder()
	ok.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	down := HealthReady("test", map[string]Pinger{"state": stubPinger{}, "redis": stubPinger{err: errors.New("refused")}}, nil)
	resp = httptest.NewRecorder()
	down.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}
