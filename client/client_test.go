package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeGate is a scripted stand-in for the server. Refresh tokens are
// single use, like the real ledger.
type fakeGate struct {
	mu           sync.Mutex
	seq          int
	liveAccess   map[string]bool
	liveRefresh  map[string]bool
	refreshCalls int
}

func newFakeGate() *fakeGate {
	return &fakeGate{
		liveAccess:  make(map[string]bool),
		liveRefresh: make(map[string]bool),
	}
}

func (f *fakeGate) issuePair() TokenPair {
	f.seq++
	pair := TokenPair{
		AccessToken:      fmt.Sprintf("access-%d", f.seq),
		AccessExpiresAt:  time.Now().Add(10 * time.Minute),
		RefreshToken:     fmt.Sprintf("refresh-%d", f.seq),
		RefreshExpiresAt: time.Now().Add(7 * 24 * time.Hour),
	}
	f.liveAccess[pair.AccessToken] = true
	f.liveRefresh[pair.RefreshToken] = true
	return pair
}

func (f *fakeGate) handler() http.Handler {
	mux := http.NewServeMux()

	writeErr := func(w http.ResponseWriter, status int, code string) {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"code": code, "message": code},
		})
	}

	mux.HandleFunc("POST /auth/register", func(w http.ResponseWriter, r *http.Request) {
		var req struct{ Email, Password string }
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		pair := f.issuePair()
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user":   User{ID: "u1", Email: req.Email},
			"tokens": pair,
		})
	})

	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct{ Email, Password string }
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "correct-horse" {
			writeErr(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		f.mu.Lock()
		pair := f.issuePair()
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user":   User{ID: "u1", Email: req.Email},
			"tokens": pair,
		})
	})

	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		f.mu.Lock()
		defer f.mu.Unlock()
		f.refreshCalls++
		if !f.liveRefresh[req.RefreshToken] {
			writeErr(w, http.StatusUnauthorized, "invalid_refresh_token")
			return
		}
		delete(f.liveRefresh, req.RefreshToken)
		pair := f.issuePair()
		_ = json.NewEncoder(w).Encode(map[string]any{"tokens": pair})
	})

	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		delete(f.liveRefresh, req.RefreshToken)
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /auth/me", func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		f.mu.Lock()
		ok := f.liveAccess[token]
		f.mu.Unlock()
		if !ok {
			writeErr(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user": User{ID: "u1", Email: "sdk@example.com"},
		})
	})

	return mux
}

func newTestClient(t *testing.T) (*Client, *fakeGate) {
	t.Helper()
	f := newFakeGate()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	c, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, f
}

func TestRegisterStartsSession(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	u, err := c.Register(ctx, "new@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.ID != "u1" {
		t.Fatalf("user ID = %q", u.ID)
	}

	// The registration pair is a live session: Me works without Login.
	if c.Tokens().AccessToken == "" || c.Tokens().RefreshToken == "" {
		t.Fatal("register must store the issued token pair")
	}
	if _, err := c.Me(ctx); err != nil {
		t.Fatalf("Me after register: %v", err)
	}
}

func TestLoginAndMe(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	u, err := c.Login(ctx, "sdk@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if u.ID != "u1" {
		t.Fatalf("user ID = %q", u.ID)
	}
	if c.Tokens().AccessToken == "" || c.Tokens().RefreshToken == "" {
		t.Fatal("token pair not stored")
	}

	me, err := c.Me(ctx)
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if me.Email != "sdk@example.com" {
		t.Fatalf("email = %q", me.Email)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.Login(context.Background(), "sdk@example.com", "wrong")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "invalid_credentials" {
		t.Fatalf("err = %v, want invalid_credentials", err)
	}
}

func TestMeWithoutLogin(t *testing.T) {
	c, _ := newTestClient(t)

	if _, err := c.Me(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
}

func TestAutoRefreshOn401(t *testing.T) {
	c, f := newTestClient(t)
	ctx := context.Background()

	if _, err := c.Login(ctx, "sdk@example.com", "correct-horse"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	// Simulate the access token aging out server-side.
	f.mu.Lock()
	delete(f.liveAccess, c.Tokens().AccessToken)
	f.mu.Unlock()

	if _, err := c.Me(ctx); err != nil {
		t.Fatalf("Me after expiry: %v", err)
	}
	f.mu.Lock()
	calls := f.refreshCalls
	f.mu.Unlock()
	if calls != 1 {
		t.Fatalf("refresh calls = %d, want 1", calls)
	}
}

func TestConcurrentRefreshCoalesces(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	if _, err := c.Login(ctx, "sdk@example.com", "correct-horse"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	// The fake server treats refresh tokens as single use, so more than
	// one real rotation here would fail some goroutine.
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = c.Refresh(ctx)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("goroutine %d: %v", i, err)
		}
	}

	if _, err := c.Me(ctx); err != nil {
		t.Fatalf("Me after refresh: %v", err)
	}
}

func TestRefreshWithSpentToken(t *testing.T) {
	c, f := newTestClient(t)
	ctx := context.Background()

	if _, err := c.Login(ctx, "sdk@example.com", "correct-horse"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	f.mu.Lock()
	delete(f.liveRefresh, c.Tokens().RefreshToken)
	f.mu.Unlock()

	if err := c.Refresh(ctx); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
}

func TestLogoutClearsTokens(t *testing.T) {
	c, f := newTestClient(t)
	ctx := context.Background()

	if _, err := c.Login(ctx, "sdk@example.com", "correct-horse"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	rt := c.Tokens().RefreshToken

	if err := c.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if c.Tokens() != (TokenPair{}) {
		t.Fatal("tokens not cleared")
	}
	f.mu.Lock()
	stillLive := f.liveRefresh[rt]
	f.mu.Unlock()
	if stillLive {
		t.Fatal("refresh token not revoked server-side")
	}

	// Second logout without a session is a no-op.
	if err := c.Logout(ctx); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
}
