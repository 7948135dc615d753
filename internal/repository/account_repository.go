package repository

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/token-lifecycle/internal/domain"
)

var (
	// ErrNotFound is returned when no account matches the lookup.
	ErrNotFound = errors.New("account not found")
	// ErrEmailTaken is returned when creating an account whose email already exists.
	ErrEmailTaken = errors.New("email already registered")
)

// AccountRepository defines access to the account set.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
}

type accountRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.Account
	byEmail map[string]string
	now     func() time.Time
}

// NewAccountRepository returns an in-memory implementation that lives for the
// lifetime of the process.
func NewAccountRepository() AccountRepository {
	return &accountRepository{
		byID:    make(map[string]*domain.Account),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

// Create assigns an ID when empty and enforces email uniqueness atomically.
func (r *accountRepository) Create(_ context.Context, account *domain.Account) error {
	key := emailKey(account.Email)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[key]; exists {
		return ErrEmailTaken
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = r.now()
	}

	stored := *account
	r.byID[stored.ID] = &stored
	r.byEmail[key] = stored.ID
	return nil
}

func (r *accountRepository) GetByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *account
	return &copied, nil
}

func (r *accountRepository) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[emailKey(email)]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *r.byID[id]
	return &copied, nil
}

// emailKey folds case so Alice@Example.com and alice@example.com collide.
func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
