package authapi

import (
	"context"
	"net/http"
	"strings"
	"time"
)

type ctxKey int

const userIDKey ctxKey = 0

// UserID returns the authenticated user id stored by RequireAuth, or ""
// when the request did not pass through it.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// RequireAuth guards next behind a valid access token. The token comes
// from the Authorization header (Bearer) or, for browser clients, the
// access_token cookie; the header wins when both are present.
//
// Verification is stateless: no store is consulted. A revoked refresh
// token only locks the user out once the current access token expires.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := bearerToken(r)
		if tok == "" {
			tok = h.accessTokenFromCookie(r)
		}
		if tok == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing access token")
			return
		}

		claims, err := h.svc.Authenticate(tok, time.Now().UTC())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) accessTokenFromCookie(r *http.Request) string {
	if !h.cfg.CookiesEnabled {
		return ""
	}
	c, err := r.Cookie(AccessCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
