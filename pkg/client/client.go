// Package client is the session-aware HTTP client for the identity
// service. It holds the current token pair, attaches the access token as a
// bearer credential, and on an expired access token performs exactly one
// refresh followed by one retry of the original request. When the refresh
// itself fails the stored tokens are cleared and the caller must log in
// again.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/launchkit/identity/internal/dto"
)

var (
	// ErrNotAuthenticated is returned when an operation needs a session
	// and none is held
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrSessionExpired is returned when the refresh token was rejected;
	// the session is cleared and the user must log in again
	ErrSessionExpired = errors.New("session expired, login required")
)

// APIError carries the structured error payload returned by the service
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tokens returns the currently held pair, for persistence across restarts
func (c *Client) Tokens() (accessToken, refreshToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken, c.refreshToken
}

// Authenticated reports whether a token pair is held
func (c *Client) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshToken != ""
}

func (c *Client) setTokens(resp *dto.AuthResponse) {
	c.mu.Lock()
	c.accessToken = resp.AccessToken
	c.refreshToken = resp.RefreshToken
	c.mu.Unlock()
}

func (c *Client) clearTokens() {
	c.mu.Lock()
	c.accessToken = ""
	c.refreshToken = ""
	c.mu.Unlock()
}

// Register creates an account and stores the issued session
func (c *Client) Register(ctx context.Context, req dto.RegisterRequest) error {
	var resp dto.AuthResponse
	if err := c.post(ctx, "/api/auth/register", req, &resp, ""); err != nil {
		return err
	}
	c.setTokens(&resp)
	return nil
}

// Login authenticates and stores the issued session
func (c *Client) Login(ctx context.Context, email, password string) error {
	var resp dto.AuthResponse
	req := dto.LoginRequest{Email: email, Password: password}
	if err := c.post(ctx, "/api/auth/login", req, &resp, ""); err != nil {
		return err
	}
	c.setTokens(&resp)
	return nil
}

// Refresh rotates the held refresh token. On rejection the session is
// cleared: the old value is single-use and must never be retried.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	refresh := c.refreshToken
	c.mu.Unlock()

	if refresh == "" {
		return ErrNotAuthenticated
	}

	var resp dto.AuthResponse
	req := dto.RefreshTokenRequest{RefreshToken: refresh}
	if err := c.post(ctx, "/api/auth/refresh", req, &resp, ""); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			c.clearTokens()
			return ErrSessionExpired
		}
		return err
	}

	c.setTokens(&resp)
	return nil
}

// Logout revokes the session server-side and clears the held tokens
func (c *Client) Logout(ctx context.Context) error {
	err := c.Do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	c.clearTokens()
	return err
}

// CurrentUser resolves the session into a profile
func (c *Client) CurrentUser(ctx context.Context) (*dto.UserResponse, error) {
	var profile dto.UserResponse
	if err := c.Do(ctx, http.MethodGet, "/api/auth/me", nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Restore resumes a persisted session from a stored refresh token: it
// rotates the token and resolves the current user before any protected
// call is made.
func (c *Client) Restore(ctx context.Context, refreshToken string) (*dto.UserResponse, error) {
	c.mu.Lock()
	c.accessToken = ""
	c.refreshToken = refreshToken
	c.mu.Unlock()

	if err := c.Refresh(ctx); err != nil {
		return nil, err
	}

	return c.CurrentUser(ctx)
}

// Do performs an authenticated request. On a 401 it attempts exactly one
// refresh and one retry; a second 401 or a failed refresh surfaces as
// ErrSessionExpired.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	c.mu.Lock()
	access := c.accessToken
	c.mu.Unlock()

	if access == "" {
		return ErrNotAuthenticated
	}

	err := c.doOnce(ctx, method, path, body, out, access)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		return err
	}

	if err := c.Refresh(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	access = c.accessToken
	c.mu.Unlock()

	err = c.doOnce(ctx, method, path, body, out, access)
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		c.clearTokens()
		return ErrSessionExpired
	}
	return err
}

// post issues an unauthenticated (or explicitly authenticated) POST
func (c *Client) post(ctx context.Context, path string, body, out any, bearer string) error {
	return c.doOnce(ctx, http.MethodPost, path, body, out, bearer)
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out any, bearer string) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if data, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<16)); readErr == nil {
			_ = json.Unmarshal(data, apiErr)
		}
		return apiErr
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
