package domain

import "time"

// TokenClass differentiates access vs refresh tokens.
type TokenClass string

const (
	TokenClassAccess  TokenClass = "access"
	TokenClassRefresh TokenClass = "refresh"
)

// IssuedToken is a signed token value together with its validity window.
type IssuedToken struct {
	Value     string
	Class     TokenClass
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenPair is returned by login and registration.
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}

// AuthResult bundles the identity with freshly minted tokens.
type AuthResult struct {
	Identity Identity
	Tokens   TokenPair
}

// RefreshResult is returned by a successful refresh. Refresh is nil unless
// refresh-token rotation is enabled.
type RefreshResult struct {
	Access  IssuedToken
	Refresh *IssuedToken
}
