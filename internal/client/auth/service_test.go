package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	issuerhttp "github.com/spec-kit/token-lifecycle/internal/api/http"
	"github.com/spec-kit/token-lifecycle/internal/api/http/handlers"
	issuerauth "github.com/spec-kit/token-lifecycle/internal/auth"
	"github.com/spec-kit/token-lifecycle/internal/client/api"
	"github.com/spec-kit/token-lifecycle/internal/client/refresh"
	"github.com/spec-kit/token-lifecycle/internal/client/storage"
	"github.com/spec-kit/token-lifecycle/internal/client/storage/boltdb"
	"github.com/spec-kit/token-lifecycle/internal/config"
	"github.com/spec-kit/token-lifecycle/internal/service"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type issuer struct {
	url   string
	clock *clock
	svc   *service.AuthService

	// refreshGate, when set, runs before every /auth/refresh is served.
	refreshGate atomic.Pointer[func()]
	meCalls     atomic.Int64
	refreshes   atomic.Int64
}

func newIssuer(t *testing.T, rotate bool) *issuer {
	t.Helper()

	clk := &clock{now: time.Now().Truncate(time.Second)}
	svc, err := service.NewAuthService(config.AuthConfig{
		AccessSecret:          "access-secret",
		RefreshSecret:         "refresh-secret",
		AccessTokenTTLSeconds: 60,
		RefreshTokenTTLHours:  168,
		PasswordHashing:       config.PasswordHashingBcrypt,
		BcryptCost:            bcrypt.MinCost,
		RotateRefreshTokens:   rotate,
	}, service.AuthDependencies{Clock: clk.Now})
	require.NoError(t, err)
	require.NoError(t, svc.EnsureAccount(context.Background(), "alice@example.com", "password", "Alice"))

	app := issuerhttp.NewServer(issuerhttp.ServerOptions{
		AppName:        "issuer-test",
		RequestTimeout: 5 * time.Second,
		Routes: issuerhttp.RouteConfig{
			Health:      handlers.NewHealthHandler(handlers.HealthOptions{ServiceName: "issuer-test"}),
			Auth:        handlers.NewAuthHandler(svc),
			Users:       handlers.NewUserHandler(svc, nil),
			AccessGuard: issuerauth.NewAccessGuard(svc.Signer(), nil),
		},
	})

	iss := &issuer{clock: clk, svc: svc}
	fiberHandler := adaptor.FiberApp(app)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/user/me":
			iss.meCalls.Add(1)
		case "/auth/refresh":
			iss.refreshes.Add(1)
			if gate := iss.refreshGate.Load(); gate != nil {
				(*gate)()
			}
		}
		fiberHandler(w, r)
	}))
	t.Cleanup(server.Close)

	iss.url = server.URL
	return iss
}

func newSession(iss *issuer, store storage.RefreshStore) *Service {
	return NewService(api.NewClient(iss.url, 5*time.Second), store, nil)
}

func TestService_LoginWhoAmILogout(t *testing.T) {
	iss := newIssuer(t, false)
	store := storage.NewMemoryStore()
	sess := newSession(iss, store)
	ctx := context.Background()

	user, err := sess.Login(ctx, "alice@example.com", "password")
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.Name)

	me, err := sess.WhoAmI(ctx)
	require.NoError(t, err)
	assert.Equal(t, user.ID, me.ID)
	assert.Equal(t, refresh.Stats{}, sess.Stats())

	refreshToken, err := store.GetRefreshToken(ctx)
	require.NoError(t, err)

	require.NoError(t, sess.Logout(ctx))
	_, err = store.GetRefreshToken(ctx)
	assert.ErrorIs(t, err, storage.ErrRefreshTokenNotFound)

	// the issuer forgot the session too
	_, err = api.NewClient(iss.url, time.Second).Refresh(ctx, refreshToken)
	assert.True(t, errors.Is(err, refresh.ErrUnauthorized))

	_, err = sess.Resume(ctx)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestService_RegisterKeepsCredentials(t *testing.T) {
	iss := newIssuer(t, false)
	store := storage.NewMemoryStore()
	sess := newSession(iss, store)
	ctx := context.Background()

	user, err := sess.Register(ctx, "carol@example.com", "password123", "Carol")
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", user.Email)

	me, err := sess.WhoAmI(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Carol", me.Name)

	_, err = sess.Register(ctx, "carol@example.com", "password123", "Carol")
	require.Error(t, err)
	assert.Equal(t, "email-taken", api.ReasonOf(err))
}

func TestService_ExpiredAccessBurstRefreshesOnce(t *testing.T) {
	iss := newIssuer(t, false)
	sess := newSession(iss, storage.NewMemoryStore())
	ctx := context.Background()

	_, err := sess.Login(ctx, "alice@example.com", "password")
	require.NoError(t, err)
	iss.clock.Advance(61 * time.Second)

	const callers = 20
	gate := func() {
		// hold the refresh until every caller has been rejected once
		deadline := time.Now().Add(2 * time.Second)
		for iss.meCalls.Load() < callers && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		time.Sleep(100 * time.Millisecond)
	}
	iss.refreshGate.Store(&gate)

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			me, err := sess.WhoAmI(ctx)
			if err == nil && me.Name != "Alice" {
				err = errors.New("unexpected identity " + me.Name)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int64(1), iss.refreshes.Load())
	assert.Equal(t, refresh.Stats{Refreshes: 1}, sess.Stats())
	assert.Equal(t, int64(2*callers), iss.meCalls.Load())
}

func TestService_RevokedSessionForcesReauthentication(t *testing.T) {
	iss := newIssuer(t, false)
	store := storage.NewMemoryStore()
	sess := newSession(iss, store)
	ctx := context.Background()

	_, err := sess.Login(ctx, "alice@example.com", "password")
	require.NoError(t, err)

	refreshToken, err := store.GetRefreshToken(ctx)
	require.NoError(t, err)
	iss.svc.Logout(ctx, refreshToken)
	iss.clock.Advance(61 * time.Second)

	_, err = sess.WhoAmI(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, refresh.ErrUnauthorized))
	assert.Equal(t, "invalid-or-expired", api.ReasonOf(err))

	_, err = store.GetRefreshToken(ctx)
	assert.ErrorIs(t, err, storage.ErrRefreshTokenNotFound)
	assert.Equal(t, refresh.Stats{Refreshes: 1, Failures: 1}, sess.Stats())
}

func TestService_ResumeFromDurableSlot(t *testing.T) {
	iss := newIssuer(t, false)
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "client-state.db")

	store, err := boltdb.New(ctx, dbPath)
	require.NoError(t, err)
	_, err = newSession(iss, store).Login(ctx, "alice@example.com", "password")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// a new process only has the state file
	reopened, err := boltdb.New(ctx, dbPath)
	require.NoError(t, err)
	defer func() { require.NoError(t, reopened.Close()) }()

	sess := newSession(iss, reopened)
	me, err := sess.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", me.Email)
	assert.Equal(t, refresh.Stats{Refreshes: 1}, sess.Stats())
}

func TestService_RotationUpdatesDurableSlot(t *testing.T) {
	iss := newIssuer(t, true)
	store := storage.NewMemoryStore()
	sess := newSession(iss, store)
	ctx := context.Background()

	_, err := sess.Login(ctx, "alice@example.com", "password")
	require.NoError(t, err)
	before, err := store.GetRefreshToken(ctx)
	require.NoError(t, err)

	iss.clock.Advance(61 * time.Second)
	_, err = sess.WhoAmI(ctx)
	require.NoError(t, err)

	after, err := store.GetRefreshToken(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)

	// the previous refresh token was consumed by rotation
	_, err = api.NewClient(iss.url, time.Second).Refresh(ctx, before)
	assert.True(t, errors.Is(err, refresh.ErrUnauthorized))
}

func TestService_LogoutWithoutSession(t *testing.T) {
	iss := newIssuer(t, false)
	sess := newSession(iss, storage.NewMemoryStore())

	assert.NoError(t, sess.Logout(context.Background()))
}
