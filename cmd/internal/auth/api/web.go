package authapi

import (
	"net/http"
	"strings"
	"time"

	"gate/cmd/internal/auth/service"
)

// setSessionCookies mirrors the token pair into HttpOnly cookies for
// browser clients. Non-browser clients ignore them and use the JSON body.
func (h *Handler) setSessionCookies(w http.ResponseWriter, pair service.Pair) {
	if !h.cfg.CookiesEnabled {
		return
	}
	h.setCookie(w, AccessCookieName, pair.AccessToken, pair.AccessExp)
	h.setCookie(w, RefreshCookieName, pair.RefreshToken, pair.RefreshExp)
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	if !h.cfg.CookiesEnabled {
		return
	}
	h.expireCookie(w, AccessCookieName)
	h.expireCookie(w, RefreshCookieName)
}

func (h *Handler) refreshTokenFromCookie(r *http.Request) (string, bool) {
	if !h.cfg.CookiesEnabled {
		return "", false
	}
	c, err := r.Cookie(RefreshCookieName)
	if err != nil {
		return "", false
	}
	v := strings.TrimSpace(c.Value)
	if v == "" {
		return "", false
	}
	return v, true
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, exp time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  exp,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	})
}

func (h *Handler) expireCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	})
}
