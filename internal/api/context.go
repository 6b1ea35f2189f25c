package api

import (
	"context"
	"net/http"

	"github.com/mondominator/opsdec/internal/cryptokit"
)

type ctxKey string

const (
	ctxUserID   ctxKey = "api_user_id"
	ctxUsername ctxKey = "api_username"
	ctxIsAdmin  ctxKey = "api_is_admin"
)

// userFromContext returns the authenticated caller's ID, username, and
// admin flag, as attached by requireAuth.
func userFromContext(ctx context.Context) (userID, username string, isAdmin bool) {
	userID, _ = ctx.Value(ctxUserID).(string)
	username, _ = ctx.Value(ctxUsername).(string)
	isAdmin, _ = ctx.Value(ctxIsAdmin).(bool)
	return
}

// requireAuth verifies the caller's access token (bearer header or cookie)
// and injects its claims into the request context. Unauthenticated requests
// get a 401 with the literal body the HTTP surface contract expects.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerOrCookie(r)
		if token == "" {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}

		claims, err := a.tokens.Verify(token)
		if err != nil {
			status := http.StatusUnauthorized
			msg := "invalid token"
			if err == cryptokit.ErrTokenExpired {
				msg = "token is expired"
			}
			writeError(w, r, status, msg)
			return
		}

		ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID)
		ctx = context.WithValue(ctx, ctxUsername, claims.Username)
		ctx = context.WithValue(ctx, ctxIsAdmin, claims.IsAdmin)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin must run after requireAuth; it rejects non-admin callers with
// a 403.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _, isAdmin := userFromContext(r.Context())
		if !isAdmin {
			writeError(w, r, http.StatusForbidden, "administrator access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
