package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spec-kit/token-lifecycle/internal/api/dto"
	"github.com/spec-kit/token-lifecycle/internal/client/refresh"
)

// APIError is a non-2xx response from the issuer.
type APIError struct {
	Status  int
	Code    string
	Reason  string
	Message string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("server error (%d %s): %s", e.Status, e.Reason, e.Message)
	}
	return fmt.Sprintf("server error (%d): %s", e.Status, e.Message)
}

// Is lets a 401 match refresh.ErrUnauthorized.
func (e *APIError) Is(target error) bool {
	return target == refresh.ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// ReasonOf returns the issuer's reason tag carried by err, if any.
func ReasonOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Reason
	}
	return ""
}

// Client talks to the issuer over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates an API client for baseURL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register creates an account and returns its first token pair.
func (c *Client) Register(ctx context.Context, req dto.RegisterRequest) (*dto.AuthResponse, error) {
	var resp dto.AuthResponse
	if err := c.doRequest(ctx, http.MethodPost, "/auth/register", "", req, &resp); err != nil {
		return nil, fmt.Errorf("register request failed: %w", err)
	}
	return &resp, nil
}

// Login authenticates with email and password.
func (c *Client) Login(ctx context.Context, req dto.LoginRequest) (*dto.AuthResponse, error) {
	var resp dto.AuthResponse
	if err := c.doRequest(ctx, http.MethodPost, "/auth/login", "", req, &resp); err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	return &resp, nil
}

// Refresh exchanges a refresh token for a new access token. It never
// attaches an access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*dto.RefreshResponse, error) {
	var resp dto.RefreshResponse
	if err := c.doRequest(ctx, http.MethodPost, "/auth/refresh", "", dto.RefreshRequest{RefreshToken: refreshToken}, &resp); err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	return &resp, nil
}

// Logout revokes the refresh token on the issuer.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	if err := c.doRequest(ctx, http.MethodPost, "/auth/logout", "", dto.RefreshRequest{RefreshToken: refreshToken}, nil); err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	return nil
}

// Me returns the identity behind accessToken.
func (c *Client) Me(ctx context.Context, accessToken string) (*dto.MeResponse, error) {
	var resp dto.MeResponse
	if err := c.doRequest(ctx, http.MethodGet, "/user/me", accessToken, nil, &resp); err != nil {
		return nil, fmt.Errorf("whoami request failed: %w", err)
	}
	return &resp, nil
}

func (c *Client) doRequest(ctx context.Context, method, path, accessToken string, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var errResp dto.ErrorBody
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			apiErr.Code = errResp.Error.Code
			apiErr.Reason = errResp.Error.Reason
			apiErr.Message = errResp.Error.Message
		}
		return apiErr
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
