package boltdb

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/spec-kit/token-lifecycle/internal/client/storage"
)

var (
	bucketAuth      = []byte("auth")
	refreshTokenKey = []byte("refresh_token")
)

// Storage is a bbolt-backed storage.RefreshStore.
type Storage struct {
	db *bbolt.DB
}

var _ storage.RefreshStore = (*Storage)(nil)

// New opens (or creates) the database file at dbPath with owner-only permissions.
func New(_ context.Context, dbPath string) (*Storage, error) {
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	s := &Storage{db: db}
	if err := s.initBuckets(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}
	return s, nil
}

// Close closes the database file.
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketAuth); err != nil {
			return fmt.Errorf("failed to create auth bucket: %w", err)
		}
		return nil
	})
}

// SaveRefreshToken overwrites the stored refresh token.
func (s *Storage) SaveRefreshToken(_ context.Context, token string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketAuth)
		if bucket == nil {
			return fmt.Errorf("auth bucket not found")
		}
		if err := bucket.Put(refreshTokenKey, []byte(token)); err != nil {
			return fmt.Errorf("failed to save refresh token: %w", err)
		}
		return nil
	})
}

// GetRefreshToken returns storage.ErrRefreshTokenNotFound when nothing is stored.
func (s *Storage) GetRefreshToken(_ context.Context) (string, error) {
	var token string
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketAuth)
		if bucket == nil {
			return fmt.Errorf("auth bucket not found")
		}
		data := bucket.Get(refreshTokenKey)
		if len(data) == 0 {
			return storage.ErrRefreshTokenNotFound
		}
		// data is only valid inside the transaction
		token = string(data)
		return nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// DeleteRefreshToken removes the stored refresh token, if any.
func (s *Storage) DeleteRefreshToken(_ context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketAuth)
		if bucket == nil {
			return fmt.Errorf("auth bucket not found")
		}
		if err := bucket.Delete(refreshTokenKey); err != nil {
			return fmt.Errorf("failed to delete refresh token: %w", err)
		}
		return nil
	})
}
