package authapi

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"gate/cmd/identity"
	"gate/cmd/internal/auth/reset"
	"gate/cmd/internal/auth/service"
	"gate/cmd/internal/auth/throttle"
)

// Handler wires HTTP auth endpoints to the auth service.
type Handler struct {
	log *slog.Logger
	cfg Config

	svc     *service.Service
	resets  *reset.Service
	limiter *throttle.Limiter
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithResetService enables the password reset endpoints.
func WithResetService(r *reset.Service) HandlerOption {
	return func(h *Handler) { h.resets = r }
}

// WithLoginLimiter enables login throttling.
func WithLoginLimiter(l *throttle.Limiter) HandlerOption {
	return func(h *Handler) { h.limiter = l }
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, svc *service.Service, opts ...HandlerOption) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("authapi: nil service")
	}
	if log == nil {
		log = slog.Default()
	}

	h := &Handler{log: log, cfg: cfg, svc: svc}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /auth/register", h.handleRegister)
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("POST /auth/refresh", h.handleRefresh)
	mux.HandleFunc("POST /auth/logout", h.handleLogout)
	mux.Handle("POST /auth/logout_all", h.RequireAuth(http.HandlerFunc(h.handleLogoutAll)))
	mux.HandleFunc("POST /auth/reset/request", h.handleResetRequest)
	mux.HandleFunc("POST /auth/reset/confirm", h.handleResetConfirm)
	mux.Handle("GET /auth/me", h.RequireAuth(http.HandlerFunc(h.handleMe)))
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	u, pair, err := h.svc.Register(r.Context(), time.Now().UTC(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrDuplicateEmail):
			writeError(w, http.StatusConflict, "email_taken", "email already registered")
		case errors.Is(err, identity.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid email or password")
		default:
			h.log.Error("auth.register.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	// A 201 is a live session: the new account is signed in right away.
	h.setSessionCookies(w, pair)
	writeJSON(w, http.StatusCreated, registerResponse{
		User:   toUserResponse(u),
		Tokens: toTokenResponse(pair),
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	email := identity.NormalizeEmail(req.Email)
	ip := clientIP(r, h.cfg.TrustProxy)

	if h.limiter != nil {
		if err := h.limiter.Allow(ctx, email, ip); err != nil {
			if errors.Is(err, throttle.ErrRateLimited) {
				writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts, try again later")
				return
			}
			// Redis down: fail open, throttling is best-effort.
			h.log.Error("auth.login.throttle.fail", "err", err)
		}
	}

	u, pair, err := h.svc.Login(ctx, now, email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			if h.limiter != nil {
				if err := h.limiter.RecordFailure(ctx, email, ip); err != nil {
					h.log.Error("auth.login.throttle.record.fail", "err", err)
				}
			}
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		h.log.Error("auth.login.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	if h.limiter != nil {
		if err := h.limiter.Reset(ctx, email, ip); err != nil {
			h.log.Error("auth.login.throttle.reset.fail", "err", err)
		}
	}

	h.setSessionCookies(w, pair)
	writeJSON(w, http.StatusOK, loginResponse{
		User:   toUserResponse(u),
		Tokens: toTokenResponse(pair),
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
	}

	refreshToken := strings.TrimSpace(req.RefreshToken)
	if refreshToken == "" {
		if cookieToken, ok := h.refreshTokenFromCookie(r); ok {
			refreshToken = cookieToken
		}
	}
	if refreshToken == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	u, pair, err := h.svc.Refresh(r.Context(), time.Now().UTC(), refreshToken)
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			h.clearSessionCookies(w)
			writeError(w, http.StatusUnauthorized, "invalid_refresh_token", "invalid refresh token")
			return
		}
		h.log.Error("auth.refresh.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.setSessionCookies(w, pair)
	writeJSON(w, http.StatusOK, refreshResponse{
		User:   toUserResponse(u),
		Tokens: toTokenResponse(pair),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
	}

	refreshToken := strings.TrimSpace(req.RefreshToken)
	if refreshToken == "" {
		refreshToken, _ = h.refreshTokenFromCookie(r)
	}

	// Logout always succeeds: the client clears its state either way, and
	// an attacker learns nothing from the response.
	if refreshToken != "" {
		if err := h.svc.Logout(r.Context(), time.Now().UTC(), refreshToken); err != nil {
			h.log.Error("auth.logout.fail", "err", err)
		}
	}

	h.clearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())

	if _, err := h.svc.LogoutAll(r.Context(), time.Now().UTC(), userID); err != nil {
		h.log.Error("auth.logout_all.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.clearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	if h.resets == nil {
		writeError(w, http.StatusNotFound, "not_found", "password reset not available")
		return
	}

	var req resetRequestRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email is required")
		return
	}

	// 202 whether or not the email exists.
	if err := h.resets.Request(r.Context(), time.Now().UTC(), req.Email); err != nil {
		h.log.Error("auth.reset.request.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleResetConfirm(w http.ResponseWriter, r *http.Request) {
	if h.resets == nil {
		writeError(w, http.StatusNotFound, "not_found", "password reset not available")
		return
	}

	var req resetConfirmRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Token) == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "token and new_password are required")
		return
	}

	err := h.resets.Confirm(r.Context(), time.Now().UTC(), req.Token, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, reset.ErrInvalidToken):
			writeError(w, http.StatusUnauthorized, "invalid_reset_token", "invalid or expired reset token")
		case errors.Is(err, identity.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid password")
		default:
			h.log.Error("auth.reset.confirm.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.CurrentUser(r.Context(), UserID(r.Context()))
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			// Token outlived the account.
			writeError(w, http.StatusNotFound, "user_not_found", "user not found")
			return
		}
		h.log.Error("auth.me.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(u)})
}

// ---- helpers ----

func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != "" {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip.String()
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip.String()
		}
	}
	return ""
}

func parseForwardedIP(raw string) string {
	if raw == "" {
		return ""
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip.String()
		}
	}
	return ""
}
