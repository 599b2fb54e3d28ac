package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildmart/storefront/pkg/logger"
)

func TestRecovererWritesInternalEnvelope(t *testing.T) {
	handler := Recoverer(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil catalog")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
	assert.NotContains(t, rec.Body.String(), "nil catalog")
}

func TestRecovererReraisesAbort(t *testing.T) {
	handler := Recoverer(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithError(t, http.ErrAbortHandler.Error(), func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestRequestIDPropagatesValidIDs(t *testing.T) {
	handler := RequestID(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))

	for _, bad := range []string{"", "has space", strings.Repeat("x", maxRequestIDLength+1), "line\nbreak"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, bad)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		got := rec.Header().Get(RequestIDHeader)
		assert.NotEqual(t, bad, got)
		assert.Len(t, got, 36, "expected a minted uuid for %q", bad)
	}
}

func TestLoggingRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &buf})
	handler := Logging(logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil))
	out := buf.String()
	require.Contains(t, out, "request.failed")
	assert.Contains(t, out, `"status":502`)
	assert.Contains(t, out, `"path":"/api/v1/checkout"`)
}

func TestLoggingQuietsHealthChecks(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &buf})
	handler := Logging(logg)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Empty(t, buf.String())
}

func TestNormalizeOrigins(t *testing.T) {
	got, wildcard := normalizeOrigins([]string{" https://shop.buildmart.com/ ", "https://SHOP.buildmart.com", "", "http://localhost:3000"})
	assert.False(t, wildcard)
	assert.Equal(t, []string{"https://shop.buildmart.com", "http://localhost:3000"}, got)

	got, wildcard = normalizeOrigins(nil)
	assert.False(t, wildcard)
	assert.Equal(t, []string{localStorefront}, got)

	opts := corsOptions([]string{"https://shop.buildmart.com", "*"})
	assert.Equal(t, []string{"*"}, opts.AllowedOrigins)
	assert.False(t, opts.AllowCredentials)
}

func TestCORSPreflightAllowsSessionHeader(t *testing.T) {
	handler := CORS([]string{"https://shop.buildmart.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("preflight must not reach the handler")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/cart", nil)
	req.Header.Set("Origin", "https://shop.buildmart.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	req.Header.Set("Access-Control-Request-Headers", SessionHeader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://shop.buildmart.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}
