package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/spec-kit/token-lifecycle/internal/client/storage"
	"github.com/spec-kit/token-lifecycle/internal/client/tokens"
)

// ErrUnauthorized is matched with errors.Is against errors returned by a
// call to decide whether the access token needs refreshing.
var ErrUnauthorized = errors.New("unauthorized")

// ErrRefreshFailed is delivered to waiters when the refresh could not
// produce a new access token.
var ErrRefreshFailed = errors.New("refresh failed")

// Tokens is what a successful refresh returns. Refresh is empty unless the
// issuer rotated the refresh token.
type Tokens struct {
	Access  string
	Refresh string
}

// Refresher exchanges a refresh token for new credentials. It must not go
// through a Coordinator.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, refreshToken string) (Tokens, error)

func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	return f(ctx, refreshToken)
}

// Call is an outbound request made with the given access token, which may
// be empty when none is cached.
type Call func(ctx context.Context, accessToken string) error

// Stats counts refresh activity.
type Stats struct {
	Refreshes int64
	Failures  int64
}

type outcome struct {
	token string
	err   error
}

// Coordinator guarantees at most one refresh in flight. Calls that fail as
// unauthorized while a refresh is running queue behind it and are replayed
// once, with the new access token, in the order they queued.
type Coordinator struct {
	cache     *tokens.AccessCache
	store     storage.RefreshStore
	refresher Refresher
	logger    *zap.Logger

	mu         sync.Mutex
	refreshing bool
	waiters    []chan outcome

	refreshes atomic.Int64
	failures  atomic.Int64
}

// NewCoordinator wires the coordinator to the access cache and the durable refresh slot.
func NewCoordinator(cache *tokens.AccessCache, store storage.RefreshStore, refresher Refresher, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		cache:     cache,
		store:     store,
		refresher: refresher,
		logger:    logger,
	}
}

// Do runs call with the cached access token. If it fails as unauthorized,
// Do waits for a refresh (starting one if none is running) and retries
// call exactly once. When the refresh fails the original unauthorized
// error is returned.
func (c *Coordinator) Do(ctx context.Context, call Call) error {
	access, _ := c.cache.Get()
	err := call(ctx, access)
	if err == nil || !errors.Is(err, ErrUnauthorized) {
		return err
	}

	fresh, refreshErr := c.await(ctx)
	if refreshErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return call(ctx, fresh)
}

// Refresh joins the in-flight refresh or starts one, returning the new access token.
func (c *Coordinator) Refresh(ctx context.Context) (string, error) {
	return c.await(ctx)
}

// Stats returns a snapshot of refresh counters.
func (c *Coordinator) Stats() Stats {
	return Stats{Refreshes: c.refreshes.Load(), Failures: c.failures.Load()}
}

func (c *Coordinator) await(ctx context.Context) (string, error) {
	ch := make(chan outcome, 1)

	c.mu.Lock()
	c.waiters = append(c.waiters, ch)
	if !c.refreshing {
		c.refreshing = true
		// detached so one caller going away does not fail every waiter
		go c.run(context.WithoutCancel(ctx))
	}
	c.mu.Unlock()

	select {
	case res := <-ch:
		return res.token, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Coordinator) run(ctx context.Context) {
	token, err := c.refresh(ctx)
	if err != nil {
		c.failures.Add(1)
		c.logger.Warn("refresh failed, clearing credentials", zap.Error(err))
		c.cache.Clear()
		if delErr := c.store.DeleteRefreshToken(ctx); delErr != nil {
			c.logger.Error("failed to clear refresh token", zap.Error(delErr))
		}
		err = fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	} else {
		c.cache.Set(token)
		c.logger.Debug("access token refreshed")
	}

	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.refreshing = false
	c.mu.Unlock()

	for _, w := range waiters {
		w <- outcome{token: token, err: err}
	}
}

func (c *Coordinator) refresh(ctx context.Context) (string, error) {
	refreshToken, err := c.store.GetRefreshToken(ctx)
	if err != nil {
		return "", err
	}

	c.refreshes.Add(1)
	issued, err := c.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		return "", err
	}
	if issued.Access == "" {
		return "", errors.New("refresh returned no access token")
	}
	if issued.Refresh != "" {
		if err := c.store.SaveRefreshToken(ctx, issued.Refresh); err != nil {
			return "", fmt.Errorf("failed to store rotated refresh token: %w", err)
		}
	}
	return issued.Access, nil
}
