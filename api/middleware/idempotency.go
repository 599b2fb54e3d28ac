package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/buildmart/storefront/api/responses"
	pkgerrors "github.com/buildmart/storefront/pkg/errors"
	"github.com/buildmart/storefront/pkg/logger"
	pkgredis "github.com/buildmart/storefront/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	ReplayedHeader    = "Idempotent-Replayed"

	maxIdempotencyKeyLength = 128
	maxIdempotentBody       = 1 << 20

	cartReplayTTL     = 24 * time.Hour
	checkoutReplayTTL = 7 * 24 * time.Hour
	// pendingReplayTTL bounds how long a crashed request blocks its key.
	pendingReplayTTL = 2 * time.Minute
)

type replayState string

const (
	replayPending  replayState = "pending"
	replayComplete replayState = "complete"
)

type replayRoute struct {
	method   string
	segments []string
	ttl      time.Duration
}

func newReplayRoute(method, path string, ttl time.Duration) replayRoute {
	return replayRoute{method: method, segments: splitPath(path), ttl: ttl}
}

// Mutating storefront routes whose responses are replayed for a repeated
// Idempotency-Key. Requests without the header pass through unguarded.
var replayRoutes = []replayRoute{
	newReplayRoute(http.MethodPut, "/api/v1/cart", cartReplayTTL),
	newReplayRoute(http.MethodPost, "/api/v1/cart/items", cartReplayTTL),
	newReplayRoute(http.MethodPut, "/api/v1/favorites", cartReplayTTL),
	newReplayRoute(http.MethodPost, "/api/v1/favorites/{productId}/cart", cartReplayTTL),
	newReplayRoute(http.MethodPost, "/api/v1/checkout", checkoutReplayTTL),
}

func (rr replayRoute) matches(method string, segments []string) bool {
	if rr.method != method || len(rr.segments) != len(segments) {
		return false
	}
	for i, want := range rr.segments {
		if strings.HasPrefix(want, "{") && strings.HasSuffix(want, "}") {
			if segments[i] == "" {
				return false
			}
			continue
		}
		if want != segments[i] {
			return false
		}
	}
	return true
}

func replayRouteFor(method, path string) (replayRoute, bool) {
	segments := splitPath(path)
	for _, rr := range replayRoutes {
		if rr.matches(method, segments) {
			return rr, true
		}
	}
	return replayRoute{}, false
}

func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

type replayRecord struct {
	State       replayState `json:"state"`
	Fingerprint string      `json:"fingerprint"`
	Status      int         `json:"status,omitempty"`
	ContentType string      `json:"contentType,omitempty"`
	Body        []byte      `json:"body,omitempty"`
}

// Idempotency replays the first completed response for a repeated
// Idempotency-Key within the session. A key is claimed before the handler
// runs, so a concurrent duplicate is rejected instead of executed twice.
// Server failures release the key so the client can retry with it.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rr, ok := replayRouteFor(r.Method, r.URL.Path)
			idemKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if !ok || store == nil || idemKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			if len(idemKey) > maxIdempotencyKeyLength {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is too long"))
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIdempotentBody))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "request body could not be read"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			fingerprint := fingerprintBody(body)
			key := store.IdempotencyKey(replayScope(r), idemKey)

			claimed, err := claim(ctx, store, key, fingerprint)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				replay(ctx, store, key, fingerprint, logg, w, r, next)
				return
			}

			var captured bytes.Buffer
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&captured)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status >= http.StatusInternalServerError {
				if delErr := store.Del(context.WithoutCancel(ctx), key); delErr != nil {
					logError(ctx, logg, "release idempotency key", delErr)
				}
				return
			}

			payload, err := json.Marshal(replayRecord{
				State:       replayComplete,
				Fingerprint: fingerprint,
				Status:      status,
				ContentType: ww.Header().Get("Content-Type"),
				Body:        captured.Bytes(),
			})
			if err != nil {
				logError(ctx, logg, "encode idempotency record", err)
				return
			}
			if err := store.Set(context.WithoutCancel(ctx), key, string(payload), rr.ttl); err != nil {
				logError(ctx, logg, "persist idempotency record", err)
			}
		})
	}
}

func claim(ctx context.Context, store pkgredis.IdempotencyStore, key, fingerprint string) (bool, error) {
	pending, err := json.Marshal(replayRecord{State: replayPending, Fingerprint: fingerprint})
	if err != nil {
		return false, err
	}
	return store.SetNX(ctx, key, string(pending), pendingReplayTTL)
}

func replay(
	ctx context.Context,
	store pkgredis.IdempotencyStore,
	key, fingerprint string,
	logg *logger.Logger,
	w http.ResponseWriter,
	r *http.Request,
	next http.Handler,
) {
	stored, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// released between claim and read; run unguarded
		next.ServeHTTP(w, r)
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read idempotency record"))
		return
	}
	var record replayRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	if record.Fingerprint != fingerprint {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return
	}
	if record.State == replayPending {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "a request with this idempotency key is still in progress").
			WithDetails(map[string]any{"reason": "IN_PROGRESS"}))
		return
	}

	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(record.Status)
	_, _ = w.Write(record.Body)
}

func replayScope(r *http.Request) string {
	return strings.Join([]string{
		SessionIDFromContext(r.Context()),
		r.Method,
		strings.TrimSuffix(r.URL.Path, "/"),
	}, "|")
}

func fingerprintBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
