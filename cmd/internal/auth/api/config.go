package authapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
)

// Cookie names for the browser transport.
const (
	AccessCookieName  = "access_token"
	RefreshCookieName = "refresh_token"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	MaxBodyBytes int64
	TrustProxy   bool

	// CookiesEnabled turns on the browser transport: the token pair is
	// mirrored into HttpOnly cookies alongside the JSON body.
	CookiesEnabled bool
	CookieSecure   bool
	CookieDomain   string
	CookiePath     string
	CookieSameSite http.SameSite
}

// LoadConfigFromEnv loads API config from environment variables with safe
// defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		MaxBodyBytes:   envInt64("GATE_AUTH_MAX_BODY_BYTES", 1<<20), // 1 MiB
		TrustProxy:     envBool("GATE_AUTH_TRUST_PROXY", false),
		CookiesEnabled: envBool("GATE_AUTH_COOKIES_ENABLED", true),
		CookieSecure:   envBool("GATE_AUTH_COOKIE_SECURE", true),
		CookieDomain:   strings.TrimSpace(os.Getenv("GATE_AUTH_COOKIE_DOMAIN")),
		CookiePath:     "/",
		CookieSameSite: http.SameSiteLaxMode,
	}

	if p := strings.TrimSpace(os.Getenv("GATE_AUTH_COOKIE_PATH")); p != "" {
		cfg.CookiePath = p
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	return cfg
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
