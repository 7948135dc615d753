package dto

import "github.com/spec-kit/token-lifecycle/internal/domain"

// RegisterRequest payload for new accounts.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest carries the refresh token for refresh and logout.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// User is the public identity shape.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         User   `json:"user"`
}

// RefreshResponse carries the new access token. RefreshToken is set only
// when the issuer rotates refresh tokens.
type RefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// LogoutResponse is always returned by logout.
type LogoutResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// MeResponse wraps the caller's identity.
type MeResponse struct {
	User User `json:"user"`
}

// ErrorBody is the error envelope emitted for every failed call.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failure.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Reason  string         `json:"reason,omitempty"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// FromIdentity maps a domain identity to its wire form.
func FromIdentity(identity domain.Identity) User {
	return User{ID: identity.ID, Email: identity.Email, Name: identity.DisplayName}
}

// FromAuthResult maps a login or registration result to its wire form.
func FromAuthResult(res *domain.AuthResult) AuthResponse {
	return AuthResponse{
		AccessToken:  res.Tokens.Access.Value,
		RefreshToken: res.Tokens.Refresh.Value,
		User:         FromIdentity(res.Identity),
	}
}
