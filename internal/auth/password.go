package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/token-lifecycle/internal/config"
)

// ErrPasswordMismatch is returned when a password does not match its stored form.
var ErrPasswordMismatch = errors.New("password mismatch")

// PasswordHasher turns passwords into their stored form and compares them.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(stored, plain string) error
}

// NewPasswordHasher returns the hasher selected by policy.
func NewPasswordHasher(policy string, bcryptCost int) (PasswordHasher, error) {
	switch policy {
	case config.PasswordHashingBcrypt, "":
		return NewBcryptHasher(bcryptCost), nil
	case config.PasswordHashingPlaintext:
		return PlaintextHasher{}, nil
	default:
		return nil, fmt.Errorf("unknown password hashing policy %q", policy)
	}
}

// BcryptHasher stores salted bcrypt hashes. Passwords are reduced to a
// base64 SHA-256 digest first so bcrypt's 72-byte input limit never applies.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher hashes with cost, falling back to bcrypt.DefaultCost when out of range.
func NewBcryptHasher(cost int) BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return BcryptHasher{cost: cost}
}

// Hash hashes a plaintext password with configured cost.
func (h BcryptHasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword(prehash(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Compare verifies a password against its hashed value.
func (h BcryptHasher) Compare(stored, plain string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(stored), prehash(plain)); err != nil {
		return ErrPasswordMismatch
	}
	return nil
}

// prehash yields a 44-byte bcrypt input for any password length.
func prehash(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sum)))
	base64.StdEncoding.Encode(out, sum[:])
	return out
}

// PlaintextHasher stores passwords verbatim. It exists for parity with
// deployments that have not migrated to hashed storage.
type PlaintextHasher struct{}

// Hash returns the password unchanged.
func (PlaintextHasher) Hash(password string) (string, error) {
	return password, nil
}

// Compare does a constant-time equality check.
func (PlaintextHasher) Compare(stored, plain string) error {
	if subtle.ConstantTimeCompare([]byte(stored), []byte(plain)) != 1 {
		return ErrPasswordMismatch
	}
	return nil
}
