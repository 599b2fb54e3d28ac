package middleware

import (
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/buildmart/storefront/pkg/logger"
)

// quietPrefixes are probed by the platform every few seconds and are only
// logged at debug level.
var quietPrefixes = []string{"/health/", "/metrics"}

// Logging writes one structured line per request with its outcome. Server
// errors are logged at warn so they surface next to the handler's error line.
func Logging(logg *logger.Logger) func(http.Handler) http.Handler {
	if logg == nil {
		logg = logger.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logg.WithFields(r.Context(), map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
			})

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			ctx = logg.WithFields(ctx, map[string]any{
				"status":      status,
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
			})

			switch {
			case status >= http.StatusInternalServerError:
				logg.Warn(ctx, "request.failed")
			case quiet(r.URL.Path):
				logg.Debug(ctx, "request.complete")
			default:
				logg.Info(ctx, "request.complete")
			}
		})
	}
}

func quiet(path string) bool {
	for _, prefix := range quietPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
