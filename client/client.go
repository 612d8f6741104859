package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrUnauthorized is returned when the server rejects the credentials
// or the session cannot be refreshed.
var ErrUnauthorized = errors.New("client: unauthorized")

// APIError carries a structured error response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("client: %s (%s, http %d)", e.Message, e.Code, e.Status)
}

// Is lets errors.Is(err, ErrUnauthorized) match any 401 response.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// User is an account as reported by the server.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenPair is an access/refresh token pair with expiry times.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Client talks to a gate server. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client

	mu     sync.Mutex
	tokens TokenPair

	refresh singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New constructs a Client for the given base URL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("client: empty base URL")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("client: cookie jar: %w", err)
	}

	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second, Jar: jar},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Tokens returns a copy of the current token pair.
func (c *Client) Tokens() TokenPair {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens
}

// SetTokens seeds the client with a previously saved token pair.
func (c *Client) SetTokens(pair TokenPair) {
	c.mu.Lock()
	c.tokens = pair
	c.mu.Unlock()
}

// Register creates an account and stores the session pair the server
// issues with it; no separate Login call is needed.
func (c *Client) Register(ctx context.Context, email, password string) (User, error) {
	var out struct {
		User   User      `json:"user"`
		Tokens TokenPair `json:"tokens"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/auth/register", map[string]string{
		"email":    email,
		"password": password,
	}, &out, "")
	if err != nil {
		return User{}, err
	}
	c.SetTokens(out.Tokens)
	return out.User, nil
}

// Login verifies credentials and stores the returned token pair.
func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	var out struct {
		User   User      `json:"user"`
		Tokens TokenPair `json:"tokens"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &out, "")
	if err != nil {
		return User{}, err
	}
	c.SetTokens(out.Tokens)
	return out.User, nil
}

// Refresh rotates the stored refresh token for a new pair. Concurrent
// calls holding the same refresh token share a single server request,
// so only one rotation reaches the ledger.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	rt := c.tokens.RefreshToken
	c.mu.Unlock()
	if rt == "" {
		return ErrUnauthorized
	}

	_, err, _ := c.refresh.Do(rt, func() (any, error) {
		var out struct {
			Tokens TokenPair `json:"tokens"`
		}
		err := c.doJSON(ctx, http.MethodPost, "/auth/refresh", map[string]string{
			"refresh_token": rt,
		}, &out, "")
		if err != nil {
			return nil, err
		}
		c.SetTokens(out.Tokens)
		return nil, nil
	})
	return err
}

// Logout revokes the stored refresh token and clears local state.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	rt := c.tokens.RefreshToken
	c.tokens = TokenPair{}
	c.mu.Unlock()

	if rt == "" {
		return nil
	}
	return c.doJSON(ctx, http.MethodPost, "/auth/logout", map[string]string{
		"refresh_token": rt,
	}, nil, "")
}

// LogoutAll revokes every live session for the authenticated user and
// clears local state.
func (c *Client) LogoutAll(ctx context.Context) error {
	err := c.authorizedJSON(ctx, http.MethodPost, "/auth/logout_all", struct{}{}, nil)
	c.SetTokens(TokenPair{})
	return err
}

// Me returns the account behind the current access token.
func (c *Client) Me(ctx context.Context) (User, error) {
	var out struct {
		User User `json:"user"`
	}
	err := c.authorizedJSON(ctx, http.MethodGet, "/auth/me", nil, &out)
	return out.User, err
}

// RequestPasswordReset asks the server to mail a reset token. The
// server answers the same whether or not the email exists.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	return c.doJSON(ctx, http.MethodPost, "/auth/reset/request", map[string]string{
		"email": email,
	}, nil, "")
}

// ConfirmPasswordReset redeems a reset token for a new password.
func (c *Client) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	return c.doJSON(ctx, http.MethodPost, "/auth/reset/confirm", map[string]string{
		"token":        token,
		"new_password": newPassword,
	}, nil, "")
}

// authorizedJSON issues an authenticated request, refreshing the token
// pair and retrying once on 401.
func (c *Client) authorizedJSON(ctx context.Context, method, path string, in, out any) error {
	c.mu.Lock()
	at := c.tokens.AccessToken
	c.mu.Unlock()
	if at == "" {
		return ErrUnauthorized
	}

	err := c.doJSON(ctx, method, path, in, out, at)
	if !errors.Is(err, ErrUnauthorized) {
		return err
	}

	if rerr := c.Refresh(ctx); rerr != nil {
		return rerr
	}

	c.mu.Lock()
	at = c.tokens.AccessToken
	c.mu.Unlock()
	return c.doJSON(ctx, method, path, in, out, at)
}

// doJSON issues one request. A non-empty accessToken becomes the
// Bearer header. out may be nil for endpoints with empty bodies.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any, accessToken string) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	var wire struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&wire); err == nil {
		apiErr.Code = wire.Error.Code
		apiErr.Message = wire.Error.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
