package storage

import (
	"context"
	"errors"
	"sync"
)

// ErrRefreshTokenNotFound indicates the durable refresh slot is empty.
var ErrRefreshTokenNotFound = errors.New("refresh token not found")

// RefreshStore is the durable slot holding the client's refresh token
// across restarts.
type RefreshStore interface {
	// SaveRefreshToken overwrites the slot.
	SaveRefreshToken(ctx context.Context, token string) error

	// GetRefreshToken returns ErrRefreshTokenNotFound when the slot is empty.
	GetRefreshToken(ctx context.Context) (string, error)

	// DeleteRefreshToken empties the slot. Deleting an empty slot is not an error.
	DeleteRefreshToken(ctx context.Context) error
}

// MemoryStore is a RefreshStore that lives only as long as the process.
type MemoryStore struct {
	mu    sync.Mutex
	token string
}

// NewMemoryStore returns an empty in-memory slot.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) SaveRefreshToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemoryStore) GetRefreshToken(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return "", ErrRefreshTokenNotFound
	}
	return s.token, nil
}

func (s *MemoryStore) DeleteRefreshToken(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}
