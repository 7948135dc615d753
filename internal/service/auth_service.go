package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/token-lifecycle/internal/auth"
	"github.com/spec-kit/token-lifecycle/internal/config"
	"github.com/spec-kit/token-lifecycle/internal/domain"
	"github.com/spec-kit/token-lifecycle/internal/events"
	"github.com/spec-kit/token-lifecycle/internal/ratelimit"
	"github.com/spec-kit/token-lifecycle/internal/repository"
	"github.com/spec-kit/token-lifecycle/internal/session"
	apperrors "github.com/spec-kit/token-lifecycle/pkg/util"
)

// AuthService issues, refreshes and revokes credentials. It never retries;
// retry policy belongs to callers.
type AuthService struct {
	accounts          repository.AccountRepository
	sessions          session.Registry
	signer            *auth.Signer
	hasher            auth.PasswordHasher
	limiter           ratelimit.LoginLimiter
	dispatcher        events.Dispatcher
	logger            *zap.Logger
	rotate            bool
	minPasswordLength int
	dummyHash         string
	now               func() time.Time
}

// AuthDependencies encapsulates collaborators for the auth service. Nil
// fields are replaced with in-memory or no-op defaults.
type AuthDependencies struct {
	Accounts   repository.AccountRepository
	Sessions   session.Registry
	Signer     *auth.Signer
	Hasher     auth.PasswordHasher
	Limiter    ratelimit.LoginLimiter
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Clock      func() time.Time
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) (*AuthService, error) {
	s := &AuthService{
		accounts:          deps.Accounts,
		sessions:          deps.Sessions,
		signer:            deps.Signer,
		hasher:            deps.Hasher,
		limiter:           deps.Limiter,
		dispatcher:        deps.Dispatcher,
		logger:            deps.Logger,
		rotate:            cfg.RotateRefreshTokens,
		minPasswordLength: cfg.MinPasswordLength,
		now:               deps.Clock,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.accounts == nil {
		s.accounts = repository.NewAccountRepository()
	}
	if s.sessions == nil {
		s.sessions = session.NewMemoryRegistry()
	}
	if s.signer == nil {
		s.signer = auth.NewSigner(cfg.AccessSecret, cfg.RefreshSecret, cfg.AccessTTL(), cfg.RefreshTTL(), auth.WithClock(s.now))
	}
	if s.hasher == nil {
		hasher, err := auth.NewPasswordHasher(cfg.PasswordHashing, cfg.BcryptCost)
		if err != nil {
			return nil, err
		}
		s.hasher = hasher
	}
	if s.limiter == nil {
		s.limiter = ratelimit.Noop{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.minPasswordLength <= 0 {
		s.minPasswordLength = 6
	}

	dummy, err := s.hasher.Hash("unused-" + uuid.NewString())
	if err != nil {
		return nil, err
	}
	s.dummyHash = dummy
	return s, nil
}

// Register creates a new account and opens a session for it.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*domain.AuthResult, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	s.logger.Info("register attempt", zap.String("email", email))

	if email == "" || password == "" || name == "" {
		s.logger.Warn("register failed: missing fields", zap.String("email", email))
		return nil, apperrors.NewValidationError(apperrors.ReasonMissingField, "email, password, and name are required", nil)
	}
	if utf8.RuneCountInString(password) < s.minPasswordLength {
		s.logger.Warn("register failed: password too short", zap.String("email", email))
		return nil, apperrors.NewValidationError(apperrors.ReasonWeakPassword, "password is too short",
			map[string]any{"min_length": s.minPasswordLength})
	}

	account, err := s.createAccount(ctx, email, password, name)
	if err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			s.logger.Warn("register failed: email already exists", zap.String("email", email))
			return nil, apperrors.NewConflict(apperrors.ReasonEmailTaken, "email already registered", nil)
		}
		return nil, apperrors.NewInternalError(err)
	}

	result, err := s.openSession(ctx, account.Identity, "register")
	if err != nil {
		return nil, err
	}
	s.logger.Info("register successful", zap.String("email", email), zap.Int("sessions", s.sessions.Len()))
	return result, nil
}

// EnsureAccount creates an account without opening a session. Existing
// accounts are left untouched.
func (s *AuthService) EnsureAccount(ctx context.Context, email, password, name string) error {
	_, err := s.createAccount(ctx, email, password, name)
	if errors.Is(err, repository.ErrEmailTaken) {
		return nil
	}
	return err
}

func (s *AuthService) createAccount(ctx context.Context, email, password, name string) (*domain.Account, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	account := &domain.Account{
		Identity:     domain.Identity{Email: email, DisplayName: name},
		PasswordHash: hash,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// Login authenticates by email and password. Unknown email and wrong
// password fail identically.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.AuthResult, error) {
	email = strings.TrimSpace(email)
	s.logger.Info("login attempt", zap.String("email", email))

	if email == "" || password == "" {
		s.logger.Warn("login failed: missing credentials", zap.String("email", email))
		return nil, apperrors.NewValidationError(apperrors.ReasonMissingField, "email and password are required", nil)
	}

	// reserved before the password compare; parallel guesses share one budget
	if err := s.limiter.Reserve(ctx, email); err != nil {
		if errors.Is(err, ratelimit.ErrRateLimited) {
			s.logger.Warn("login throttled", zap.String("email", email))
			s.publish(ctx, events.EventLoginFailed, domain.Identity{Email: email}, events.LoginFailedPayload{Throttled: true})
			return nil, apperrors.NewTooManyRequests("too many failed login attempts, try again later")
		}
		s.logger.Warn("login throttle unavailable, continuing", zap.Error(err))
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		_ = s.hasher.Compare(s.dummyHash, password)
		return nil, s.loginFailed(ctx, email)
	case err != nil:
		return nil, apperrors.NewInternalError(err)
	}
	if err := s.hasher.Compare(account.PasswordHash, password); err != nil {
		return nil, s.loginFailed(ctx, email)
	}

	if err := s.limiter.Reset(ctx, email); err != nil {
		s.logger.Warn("login throttle reset failed", zap.Error(err))
	}

	result, err := s.openSession(ctx, account.Identity, "login")
	if err != nil {
		return nil, err
	}
	s.logger.Info("login successful", zap.String("email", email), zap.Int("sessions", s.sessions.Len()))
	return result, nil
}

func (s *AuthService) loginFailed(ctx context.Context, email string) error {
	s.logger.Warn("login failed: invalid credentials", zap.String("email", email))
	s.publish(ctx, events.EventLoginFailed, domain.Identity{Email: email}, events.LoginFailedPayload{})
	return apperrors.NewUnauthorized(apperrors.ReasonInvalidCredentials, "invalid credentials")
}

func (s *AuthService) openSession(ctx context.Context, identity domain.Identity, via string) (*domain.AuthResult, error) {
	access, err := s.signer.IssueAccess(identity)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	refresh, err := s.signer.IssueRefresh(identity)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	s.sessions.Add(refresh.Value, refresh.ExpiresAt)

	s.publish(ctx, events.EventSessionOpened, identity, events.SessionOpenedPayload{Via: via, RefreshExpires: refresh.ExpiresAt})
	return &domain.AuthResult{
		Identity: identity,
		Tokens:   domain.TokenPair{Access: access, Refresh: refresh},
	}, nil
}

// Refresh exchanges an active refresh token for a new access token. A token
// that fails verification is dropped from the registry. Unless rotation is
// enabled the presented refresh token stays active.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.RefreshResult, error) {
	s.logger.Info("token refresh attempt")

	if refreshToken == "" {
		s.logger.Warn("token refresh failed: no refresh token provided")
		return nil, apperrors.NewValidationError(apperrors.ReasonMissingToken, "refresh token is required", nil)
	}
	if !s.sessions.Contains(refreshToken) {
		s.logger.Warn("token refresh failed: unknown or revoked refresh token")
		return nil, apperrors.NewUnauthorized(apperrors.ReasonUnknownOrRevoked, "invalid or revoked refresh token")
	}

	claims, err := s.signer.VerifyRefresh(refreshToken)
	if err != nil {
		s.sessions.Remove(refreshToken)
		s.logger.Warn("token refresh failed: token validation error", zap.Error(err))
		s.publish(ctx, events.EventSessionRevoked, domain.Identity{}, events.SessionRevokedPayload{Reason: events.RevokeReasonInvalid, Count: 1})
		return nil, apperrors.NewUnauthorized(apperrors.ReasonInvalidToken, "refresh token expired or invalid")
	}
	identity := claims.Identity()

	result := &domain.RefreshResult{}
	if s.rotate {
		if !s.sessions.Remove(refreshToken) {
			s.logger.Warn("token refresh failed: refresh token revoked concurrently", zap.String("email", identity.Email))
			return nil, apperrors.NewUnauthorized(apperrors.ReasonUnknownOrRevoked, "invalid or revoked refresh token")
		}
		next, err := s.signer.IssueRefresh(identity)
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		s.sessions.Add(next.Value, next.ExpiresAt)
		result.Refresh = &next
		s.publish(ctx, events.EventSessionRevoked, identity, events.SessionRevokedPayload{Reason: events.RevokeReasonRotated, Count: 1})
	}

	access, err := s.signer.IssueAccess(identity)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	result.Access = access

	s.publish(ctx, events.EventAccessRefreshed, identity, events.AccessRefreshedPayload{Rotated: s.rotate})
	s.logger.Info("token refresh successful", zap.String("email", identity.Email), zap.Int("sessions", s.sessions.Len()))
	return result, nil
}

// Logout revokes refreshToken if it is active. It always succeeds.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) {
	s.logger.Info("logout attempt")
	if refreshToken == "" {
		s.logger.Warn("logout: no refresh token provided")
		return
	}
	if s.sessions.Remove(refreshToken) {
		s.publish(ctx, events.EventSessionRevoked, domain.Identity{}, events.SessionRevokedPayload{Reason: events.RevokeReasonLogout, Count: 1})
	}
	s.logger.Info("logout successful", zap.Int("sessions", s.sessions.Len()))
}

// WhoAmI resolves the full identity behind a verified access token.
func (s *AuthService) WhoAmI(ctx context.Context, subjectID string) (*domain.Identity, error) {
	account, err := s.accounts.GetByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Error("user info request failed: user not found", zap.String("subject", subjectID))
			return nil, apperrors.NewNotFound("user", nil)
		}
		return nil, apperrors.NewInternalError(err)
	}
	identity := account.Identity
	return &identity, nil
}

// SweepExpiredSessions drops registry entries whose refresh token has expired.
func (s *AuthService) SweepExpiredSessions(ctx context.Context) int {
	removed := s.sessions.Sweep(s.now())
	if removed > 0 {
		s.publish(ctx, events.EventSessionRevoked, domain.Identity{}, events.SessionRevokedPayload{Reason: events.RevokeReasonExpired, Count: removed})
	}
	return removed
}

// Signer exposes the credential signer for the access guard.
func (s *AuthService) Signer() *auth.Signer {
	return s.signer
}

// ActiveSessions reports the registry size.
func (s *AuthService) ActiveSessions() int {
	return s.sessions.Len()
}

func (s *AuthService) publish(ctx context.Context, eventType events.EventType, identity domain.Identity, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		SubjectID: identity.ID,
		Email:     identity.Email,
		Timestamp: s.now(),
		Payload:   payload,
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(eventType)), zap.Error(err))
	}
}
