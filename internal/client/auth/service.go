package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/token-lifecycle/internal/api/dto"
	"github.com/spec-kit/token-lifecycle/internal/client/api"
	"github.com/spec-kit/token-lifecycle/internal/client/refresh"
	"github.com/spec-kit/token-lifecycle/internal/client/storage"
	"github.com/spec-kit/token-lifecycle/internal/client/tokens"
)

// ErrNotAuthenticated means there is no stored session to resume.
var ErrNotAuthenticated = errors.New("not authenticated")

// Service is the consumer-side session: it owns the access cache and the
// durable refresh slot and routes authenticated calls through the
// refresh coordinator.
type Service struct {
	apiClient *api.Client
	cache     *tokens.AccessCache
	store     storage.RefreshStore
	coord     *refresh.Coordinator
	logger    *zap.Logger
}

// NewService wires a session around apiClient and store.
func NewService(apiClient *api.Client, store storage.RefreshStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		apiClient: apiClient,
		cache:     tokens.NewAccessCache(),
		store:     store,
		logger:    logger,
	}
	s.coord = refresh.NewCoordinator(s.cache, store, refresh.RefresherFunc(s.exchange), logger)
	return s
}

// Register creates an account and keeps the returned credentials.
func (s *Service) Register(ctx context.Context, email, password, name string) (*dto.User, error) {
	resp, err := s.apiClient.Register(ctx, dto.RegisterRequest{Email: email, Password: password, Name: name})
	if err != nil {
		return nil, err
	}
	if err := s.keep(ctx, resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// Login authenticates and keeps the returned credentials.
func (s *Service) Login(ctx context.Context, email, password string) (*dto.User, error) {
	resp, err := s.apiClient.Login(ctx, dto.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	if err := s.keep(ctx, resp); err != nil {
		return nil, err
	}
	s.logger.Info("logged in", zap.String("user_id", resp.User.ID))
	return &resp.User, nil
}

// Resume restores a session from the durable refresh slot: it refreshes
// the access token and then asks the issuer who we are.
func (s *Service) Resume(ctx context.Context) (*dto.User, error) {
	if _, err := s.store.GetRefreshToken(ctx); err != nil {
		if errors.Is(err, storage.ErrRefreshTokenNotFound) {
			return nil, ErrNotAuthenticated
		}
		return nil, err
	}
	if _, err := s.coord.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	}
	return s.WhoAmI(ctx)
}

// WhoAmI returns the current identity, refreshing the access token once if needed.
func (s *Service) WhoAmI(ctx context.Context) (*dto.User, error) {
	var user dto.User
	err := s.coord.Do(ctx, func(ctx context.Context, accessToken string) error {
		resp, err := s.apiClient.Me(ctx, accessToken)
		if err != nil {
			return err
		}
		user = resp.User
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout revokes the session on the issuer if it can and always clears
// local credentials.
func (s *Service) Logout(ctx context.Context) error {
	refreshToken, err := s.store.GetRefreshToken(ctx)
	if err == nil {
		if err := s.apiClient.Logout(ctx, refreshToken); err != nil {
			s.logger.Warn("server logout failed, clearing local credentials anyway", zap.Error(err))
		}
	}

	s.cache.Clear()
	if err := s.store.DeleteRefreshToken(ctx); err != nil {
		return fmt.Errorf("failed to clear refresh token: %w", err)
	}
	return nil
}

// Stats exposes refresh counters.
func (s *Service) Stats() refresh.Stats {
	return s.coord.Stats()
}

func (s *Service) keep(ctx context.Context, resp *dto.AuthResponse) error {
	if err := s.store.SaveRefreshToken(ctx, resp.RefreshToken); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	s.cache.Set(resp.AccessToken)
	return nil
}

func (s *Service) exchange(ctx context.Context, refreshToken string) (refresh.Tokens, error) {
	resp, err := s.apiClient.Refresh(ctx, refreshToken)
	if err != nil {
		return refresh.Tokens{}, err
	}
	return refresh.Tokens{Access: resp.AccessToken, Refresh: resp.RefreshToken}, nil
}
