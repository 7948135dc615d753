package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/token-lifecycle/internal/domain"
)

// Verification failure kinds. Match with errors.Is.
var (
	ErrSignatureInvalid = errors.New("signature invalid")
	ErrExpired          = errors.New("token expired")
	ErrMalformed        = errors.New("token malformed")
	ErrWrongClass       = errors.New("token class mismatch")
)

// VerificationError reports why a token of a given class was rejected.
type VerificationError struct {
	Class domain.TokenClass
	Err   error
	cause error
}

func (e *VerificationError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s token: %v: %v", e.Class, e.Err, e.cause)
	}
	return fmt.Sprintf("%s token: %v", e.Class, e.Err)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// Claims describes the JWT payload shared by both token classes.
type Claims struct {
	Email string            `json:"email"`
	Class domain.TokenClass `json:"typ"`
	jwt.RegisteredClaims
}

// Identity returns the identity asserted by the claims. Display names are
// not embedded in tokens.
func (c *Claims) Identity() domain.Identity {
	return domain.Identity{ID: c.Subject, Email: c.Email}
}

// Signer issues and validates access and refresh tokens. Each class has its
// own secret and lifetime, and verification always uses the secret of the
// class the caller expects.
type Signer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// SignerOption customizes a Signer.
type SignerOption func(*Signer)

// WithClock replaces time.Now for issuing and expiry checks.
func WithClock(now func() time.Time) SignerOption {
	return func(s *Signer) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSigner builds a new signer.
func NewSigner(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, opts ...SignerOption) *Signer {
	if accessTTL <= 0 {
		accessTTL = 60 * time.Second
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	s := &Signer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueAccess signs a short-lived access token for identity.
func (s *Signer) IssueAccess(identity domain.Identity) (domain.IssuedToken, error) {
	return s.issue(identity, domain.TokenClassAccess)
}

// IssueRefresh signs a long-lived refresh token for identity.
func (s *Signer) IssueRefresh(identity domain.Identity) (domain.IssuedToken, error) {
	return s.issue(identity, domain.TokenClassRefresh)
}

// AccessTTL returns the access token lifetime.
func (s *Signer) AccessTTL() time.Duration {
	return s.accessTTL
}

func (s *Signer) issue(identity domain.Identity, class domain.TokenClass) (domain.IssuedToken, error) {
	secret, ttl := s.keyFor(class)
	issuedAt := jwt.NewNumericDate(s.now())
	expiresAt := jwt.NewNumericDate(issuedAt.Add(ttl))

	claims := &Claims{
		Email: identity.Email,
		Class: class,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identity.ID,
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		return domain.IssuedToken{}, fmt.Errorf("sign %s token: %w", class, err)
	}
	return domain.IssuedToken{
		Value:     tokenString,
		Class:     class,
		IssuedAt:  issuedAt.Time,
		ExpiresAt: expiresAt.Time,
	}, nil
}

// VerifyAccess validates an access token.
func (s *Signer) VerifyAccess(tokenStr string) (*Claims, error) {
	return s.Verify(tokenStr, domain.TokenClassAccess)
}

// VerifyRefresh validates a refresh token's signature and expiry. Registry
// membership is checked by the caller.
func (s *Signer) VerifyRefresh(tokenStr string) (*Claims, error) {
	return s.Verify(tokenStr, domain.TokenClassRefresh)
}

// Verify checks signature integrity and expiry against the secret for class.
func (s *Signer) Verify(tokenStr string, class domain.TokenClass) (*Claims, error) {
	secret, _ := s.keyFor(class)

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, &VerificationError{Class: class, Err: classify(err), cause: err}
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, &VerificationError{Class: class, Err: ErrMalformed}
	}
	if claims.Class != class {
		return nil, &VerificationError{Class: class, Err: ErrWrongClass}
	}
	if claims.Subject == "" {
		return nil, &VerificationError{Class: class, Err: ErrMalformed}
	}
	return claims, nil
}

func (s *Signer) keyFor(class domain.TokenClass) ([]byte, time.Duration) {
	if class == domain.TokenClassRefresh {
		return s.refreshSecret, s.refreshTTL
	}
	return s.accessSecret, s.accessTTL
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrSignatureInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return ErrMalformed
	}
}
