package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/token-lifecycle/internal/api/dto"
	"github.com/spec-kit/token-lifecycle/internal/client/refresh"
)

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:4000", 0)

	assert.Equal(t, "http://localhost:4000", client.baseURL)
	assert.Equal(t, 30*time.Second, client.httpClient.Timeout)

	custom := &http.Client{}
	client = NewClient("http://localhost:4000", time.Second, WithHTTPClient(custom))
	assert.Same(t, custom, client.httpClient)
}

func TestClient_Login(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/login", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Authorization"))

		var req dto.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alice@example.com", req.Email)
		assert.Equal(t, "password", req.Password)

		_ = json.NewEncoder(w).Encode(dto.AuthResponse{
			AccessToken:  "access",
			RefreshToken: "refresh",
			User:         dto.User{ID: "u-1", Email: "alice@example.com", Name: "Alice"},
		})
	}))
	defer server.Close()

	resp, err := NewClient(server.URL, time.Second).Login(context.Background(), dto.LoginRequest{Email: "alice@example.com", Password: "password"})
	require.NoError(t, err)
	assert.Equal(t, "access", resp.AccessToken)
	assert.Equal(t, "refresh", resp.RefreshToken)
	assert.Equal(t, "Alice", resp.User.Name)
}

func TestClient_MeAttachesBearer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/user/me", r.URL.Path)
		assert.Equal(t, "Bearer access-token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(dto.MeResponse{User: dto.User{ID: "u-1", Email: "alice@example.com", Name: "Alice"}})
	}))
	defer server.Close()

	resp, err := NewClient(server.URL, time.Second).Me(context.Background(), "access-token")
	require.NoError(t, err)
	assert.Equal(t, "u-1", resp.User.ID)
}

func TestClient_RefreshNeverAttachesBearer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/refresh", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var req dto.RefreshRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "refresh-token", req.RefreshToken)
		_ = json.NewEncoder(w).Encode(dto.RefreshResponse{AccessToken: "new-access"})
	}))
	defer server.Close()

	resp, err := NewClient(server.URL, time.Second).Refresh(context.Background(), "refresh-token")
	require.NoError(t, err)
	assert.Equal(t, "new-access", resp.AccessToken)
	assert.Empty(t, resp.RefreshToken)
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		reason       string
		message      string
		unauthorized bool
	}{
		{
			name:         "unauthorized envelope",
			status:       http.StatusUnauthorized,
			body:         `{"error":{"code":"UNAUTHORIZED","reason":"invalid-or-expired","message":"invalid or expired token"}}`,
			reason:       "invalid-or-expired",
			message:      "invalid or expired token",
			unauthorized: true,
		},
		{
			name:    "conflict envelope",
			status:  http.StatusConflict,
			body:    `{"error":{"code":"CONFLICT","reason":"email-taken","message":"email already registered"}}`,
			reason:  "email-taken",
			message: "email already registered",
		},
		{
			name:    "non json body",
			status:  http.StatusBadGateway,
			body:    `upstream unavailable`,
			message: http.StatusText(http.StatusBadGateway),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient(server.URL, time.Second).Me(context.Background(), "token")
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.Equal(t, tt.reason, ReasonOf(err))
			assert.Equal(t, tt.unauthorized, errors.Is(err, refresh.ErrUnauthorized))
		})
	}
}

func TestClient_LogoutIgnoresBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/logout", r.URL.Path)
		_ = json.NewEncoder(w).Encode(dto.LogoutResponse{OK: true, Message: "logged out successfully"})
	}))
	defer server.Close()

	assert.NoError(t, NewClient(server.URL, time.Second).Logout(context.Background(), "refresh"))
}

func TestClient_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewClient(url, time.Second).Me(context.Background(), "token")
	require.Error(t, err)
	assert.False(t, errors.Is(err, refresh.ErrUnauthorized))
}
