package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/buildmart/storefront/api/responses"
	pkgerrors "github.com/buildmart/storefront/pkg/errors"
	"github.com/buildmart/storefront/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(env string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-BuildMart-Env", env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every named dependency. Any failure answers 503 with
// the per-dependency status in the error details.
func HealthReady(env string, deps map[string]Pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-BuildMart-Env", env)
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		status := make(map[string]string, len(deps))
		healthy := true
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				healthy = false
				status[name] = "unavailable"
				continue
			}
			status[name] = "ok"
		}
		if !healthy {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "dependency unavailable").WithDetails(status))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "dependencies": status})
	}
}
