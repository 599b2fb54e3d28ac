package cart

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/buildmart/storefront/api/middleware"
	cartsvc "github.com/buildmart/storefront/internal/cart"
	"github.com/buildmart/storefront/internal/catalog"
	"github.com/buildmart/storefront/internal/state"
	pkgerrors "github.com/buildmart/storefront/pkg/errors"
)

func newService(t *testing.T) (cartsvc.Service, *state.MemoryKV) {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	kv := state.NewMemoryKV()
	reg, err := state.NewRegistry(state.RegistryParams{KV: kv})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	svc, err := cartsvc.NewService(cartsvc.ServiceParams{Sessions: reg, Catalog: cat})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return svc, kv
}

func sessionRequest(method, target, body, productID string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	ctx := middleware.WithSessionID(req.Context(), "sess-1")
	if productID != "" {
		rc := chi.NewRouteContext()
		rc.URLParams.Add("productId", productID)
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rc)
	}
	return req.WithContext(ctx)
}

type cartEnvelope struct {
	Data struct {
		Items []struct {
			ProductID int64           `json:"productId"`
			Quantity  int             `json:"quantity"`
			Price     decimal.Decimal `json:"price"`
			BulkPrice bool            `json:"bulkPrice"`
		} `json:"items"`
		Summary struct {
			Total decimal.Decimal `json:"total"`
		} `json:"summary"`
		Warnings     []string `json:"warnings"`
		Notification *struct {
			ProductName string `json:"productName"`
		} `json:"notification"`
	} `json:"data"`
}

func decodeCart(t *testing.T, resp *httptest.ResponseRecorder) cartEnvelope {
	t.Helper()
	var envelope cartEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return envelope
}

func TestCartAddItemThenFetch(t *testing.T) {
	svc, _ := newService(t)

	resp := httptest.NewRecorder()
	CartAddItem(svc, nil).ServeHTTP(resp, sessionRequest(http.MethodPost, "/api/v1/cart/items", `{"productId":1001,"quantity":10,"bulk":true}`, ""))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	added := decodeCart(t, resp)
	if added.Data.Notification == nil || added.Data.Notification.ProductName == "" {
		t.Fatalf("expected added-to-cart notification")
	}

	resp = httptest.NewRecorder()
	CartFetch(svc, nil).ServeHTTP(resp, sessionRequest(http.MethodGet, "/api/v1/cart", "", ""))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	got := decodeCart(t, resp)
	if len(got.Data.Items) != 1 || got.Data.Items[0].Quantity != 10 || !got.Data.Items[0].BulkPrice {
		t.Fatalf("unexpected items %+v", got.Data.Items)
	}
	if !got.Data.Summary.Total.Equal(decimal.NewFromInt(4820)) {
		t.Fatalf("unexpected total %s", got.Data.Summary.Total)
	}
}

func TestCartAddItemValidation(t *testing.T) {
	svc, _ := newService(t)

	resp := httptest.NewRecorder()
	CartAddItem(svc, nil).ServeHTTP(resp, sessionRequest(http.MethodPost, "/api/v1/cart/items", `{"productId":1001,"quantity":0}`, ""))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	CartAddItem(svc, nil).ServeHTTP(resp, sessionRequest(http.MethodPost, "/api/v1/cart/items", `{"productId":9999,"quantity":1}`, ""))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestCartMissingSession(t *testing.T) {
	svc, _ := newService(t)
	resp := httptest.NewRecorder()
	CartFetch(svc, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCartRemoveAndClear(t *testing.T) {
	svc, kv := newService(t)
	ctx := context.Background()
	if _, err := svc.AddToCart(ctx, "sess-1", cartsvc.ItemInput{ProductID: 1001, Quantity: 10}); err != nil {
		t.Fatalf("seed cart: %v", err)
	}
	if _, err := svc.AddToCart(ctx, "sess-1", cartsvc.ItemInput{ProductID: 1005, Quantity: 1}); err != nil {
		t.Fatalf("seed cart: %v", err)
	}

	resp := httptest.NewRecorder()
	CartRemoveItem(svc, nil).ServeHTTP(resp, sessionRequest(http.MethodDelete, "/api/v1/cart/items/1001", "", "1001"))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if got := decodeCart(t, resp); len(got.Data.Items) != 1 {
		t.Fatalf("expected one item left, got %d", len(got.Data.Items))
	}

	kv.SetErr = errors.New("redis unavailable")
	resp = httptest.NewRecorder()
	CartClear(svc, nil).ServeHTTP(resp, sessionRequest(http.MethodDelete, "/api/v1/cart", "", ""))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Warnings []string `json:"warnings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Warnings) != 1 {
		t.Fatalf("expected storage warning, got %v", envelope.Warnings)
	}
}

func TestCartUpdateQuantityUnknownEntry(t *testing.T) {
	svc, _ := newService(t)
	resp := httptest.NewRecorder()
	CartUpdateQuantity(svc, nil).ServeHTTP(resp, sessionRequest(http.MethodPatch, "/api/v1/cart/items/1001", `{"quantity":3}`, "1001"))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestCartUpdateQuantityClampsToMinOrder(t *testing.T) {
	svc, _ := newService(t)
	if _, err := svc.AddToCart(context.Background(), "sess-1", cartsvc.ItemInput{ProductID: 1002, Quantity: 20}); err != nil {
		t.Fatalf("seed cart: %v", err)
	}

	for _, body := range []string{`{"quantity":0}`, `{"quantity":-2}`} {
		resp := httptest.NewRecorder()
		CartUpdateQuantity(svc, nil).ServeHTTP(resp, sessionRequest(http.MethodPatch, "/api/v1/cart/items/1002", body, "1002"))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d: %s", body, resp.Code, resp.Body.String())
		}
		got := decodeCart(t, resp)
		if len(got.Data.Items) != 1 || got.Data.Items[0].Quantity != 5 {
			t.Fatalf("%s: expected quantity clamped to min order 5, got %+v", body, got.Data.Items)
		}
	}
}

func TestCartUpdateQuantityRequiresQuantity(t *testing.T) {
	svc, _ := newService(t)
	if _, err := svc.AddToCart(context.Background(), "sess-1", cartsvc.ItemInput{ProductID: 1002, Quantity: 20}); err != nil {
		t.Fatalf("seed cart: %v", err)
	}
	resp := httptest.NewRecorder()
	CartUpdateQuantity(svc, nil).ServeHTTP(resp, sessionRequest(http.MethodPatch, "/api/v1/cart/items/1002", `{}`, "1002"))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestFavoritesMoveToCart(t *testing.T) {
	svc, _ := newService(t)

	resp := httptest.NewRecorder()
	FavoritesAdd(svc, nil).ServeHTTP(resp, sessionRequest(http.MethodPost, "/api/v1/favorites", `{"productId":1002}`, ""))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	FavoritesMoveToCart(svc, nil).ServeHTTP(resp, sessionRequest(http.MethodPost, "/api/v1/favorites/1002/cart", "", "1002"))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	got := decodeCart(t, resp)
	if len(got.Data.Items) != 1 || got.Data.Items[0].ProductID != 1002 {
		t.Fatalf("unexpected cart %+v", got.Data.Items)
	}

	fav, err := svc.GetFavorites(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("favorites: %v", err)
	}
	if len(fav.IDs) != 1 {
		t.Fatalf("favorite should be kept, got %v", fav.IDs)
	}
}

func TestFavoritesReplaceRejectsBadIDs(t *testing.T) {
	svc, _ := newService(t)
	resp := httptest.NewRecorder()
	FavoritesReplace(svc, nil).ServeHTTP(resp, sessionRequest(http.MethodPut, "/api/v1/favorites", `{"productIds":[1001,0]}`, ""))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Error.Code != string(pkgerrors.CodeValidation) {
		t.Fatalf("unexpected code %s", envelope.Error.Code)
	}
}
