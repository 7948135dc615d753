package domain

import "time"

// Identity is the public view of an account.
type Identity struct {
	ID          string
	Email       string
	DisplayName string
}

// Account is an identity plus its credential secret. PasswordHash holds the
// output of the configured hasher, which may be the plaintext password itself.
type Account struct {
	Identity
	PasswordHash string
	CreatedAt    time.Time
}
