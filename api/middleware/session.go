package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/buildmart/storefront/api/responses"
	pkgerrors "github.com/buildmart/storefront/pkg/errors"
	"github.com/buildmart/storefront/pkg/logger"
)

const (
	SessionHeader     = "X-Session-Id"
	SessionCookie     = "bm_session"
	maxSessionIDLen   = 64
	sessionCookieLife = 30 * 24 * time.Hour
)

// Session resolves the storefront session from the X-Session-Id header or
// the session cookie, minting a new one when neither is present. The id is
// echoed back in the header so script clients can keep it.
func Session(logg *logger.Logger, secureCookie bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := strings.TrimSpace(r.Header.Get(SessionHeader))
			if sessionID == "" {
				if c, err := r.Cookie(SessionCookie); err == nil {
					sessionID = strings.TrimSpace(c.Value)
				}
			}
			if len(sessionID) > maxSessionIDLen {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "session id too long"))
				return
			}
			if sessionID == "" {
				sessionID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookie,
					Value:    sessionID,
					Path:     "/",
					MaxAge:   int(sessionCookieLife.Seconds()),
					HttpOnly: true,
					Secure:   secureCookie,
					SameSite: http.SameSiteLaxMode,
				})
			}
			w.Header().Set(SessionHeader, sessionID)

			ctx := WithSessionID(r.Context(), sessionID)
			if logg != nil {
				ctx = logg.WithSessionID(ctx, sessionID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
