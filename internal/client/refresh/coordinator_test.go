package refresh

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/token-lifecycle/internal/client/storage"
	"github.com/spec-kit/token-lifecycle/internal/client/tokens"
)

// fakeIssuer accepts only the current access token and blocks refreshes
// until release is closed.
type fakeIssuer struct {
	mu      sync.Mutex
	current string
	rotate  bool
	fail    error
	release chan struct{}
	calls   atomic.Int64
}

func newFakeIssuer() *fakeIssuer {
	return &fakeIssuer{current: "access-1", release: make(chan struct{})}
}

func (f *fakeIssuer) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	f.calls.Add(1)
	select {
	case <-f.release:
	case <-ctx.Done():
		return Tokens{}, ctx.Err()
	}
	if f.fail != nil {
		return Tokens{}, f.fail
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.calls.Load()
	f.current = fmt.Sprintf("access-%d", n+1)
	out := Tokens{Access: f.current}
	if f.rotate {
		out.Refresh = fmt.Sprintf("%s-rotated", refreshToken)
	}
	return out, nil
}

func (f *fakeIssuer) accepts(token string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return token != "" && token == f.current
}

var errUnauthorizedCall = fmt.Errorf("GET /user/me: %w", ErrUnauthorized)

type fixture struct {
	cache  *tokens.AccessCache
	store  *storage.MemoryStore
	issuer *fakeIssuer
	coord  *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		cache:  tokens.NewAccessCache(),
		store:  storage.NewMemoryStore(),
		issuer: newFakeIssuer(),
	}
	require.NoError(t, f.store.SaveRefreshToken(context.Background(), "refresh-1"))
	f.cache.Set("stale")
	f.coord = NewCoordinator(f.cache, f.store, f.issuer, nil)
	return f
}

func waitForWaiters(t *testing.T, c *Coordinator, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.refreshing && len(c.waiters) == n
	}, 2*time.Second, 5*time.Millisecond)
}

// call records every token it was invoked with.
func (f *fixture) call(seen *[]string, mu *sync.Mutex) Call {
	return func(_ context.Context, access string) error {
		mu.Lock()
		*seen = append(*seen, access)
		mu.Unlock()
		if !f.issuer.accepts(access) {
			return errUnauthorizedCall
		}
		return nil
	}
}

func TestDo_PassesThroughWithValidToken(t *testing.T) {
	f := newFixture(t)
	f.cache.Set("access-1")

	var seen []string
	var mu sync.Mutex
	require.NoError(t, f.coord.Do(context.Background(), f.call(&seen, &mu)))

	assert.Equal(t, []string{"access-1"}, seen)
	assert.Equal(t, Stats{}, f.coord.Stats())
}

func TestDo_OtherErrorsAreNotRetried(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("connection refused")

	calls := 0
	err := f.coord.Do(context.Background(), func(context.Context, string) error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Zero(t, f.issuer.calls.Load())
}

func TestDo_ConcurrentFailuresShareOneRefresh(t *testing.T) {
	f := newFixture(t)

	const callers = 25
	var seen []string
	var mu sync.Mutex
	errs := make(chan error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.coord.Do(context.Background(), f.call(&seen, &mu))
		}()
	}

	// every caller has failed once and is queued behind the refresh
	waitForWaiters(t, f.coord, callers)
	close(f.issuer.release)

	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	assert.Equal(t, int64(1), f.issuer.calls.Load())
	assert.Equal(t, Stats{Refreshes: 1}, f.coord.Stats())
	token, ok := f.cache.Get()
	assert.True(t, ok)
	assert.Equal(t, "access-2", token)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 2*callers)
	for _, tok := range seen[callers:] {
		assert.Equal(t, "access-2", tok)
	}
}

func TestDo_FailedRefreshFailsEveryWaiterWithOriginalError(t *testing.T) {
	f := newFixture(t)
	f.issuer.fail = errors.New("refresh rejected")

	const callers = 10
	var seen []string
	var mu sync.Mutex
	errs := make(chan error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.coord.Do(context.Background(), f.call(&seen, &mu))
		}()
	}
	waitForWaiters(t, f.coord, callers)
	close(f.issuer.release)

	wg.Wait()
	close(errs)
	for err := range errs {
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.Equal(t, errUnauthorizedCall, err)
	}

	assert.Equal(t, int64(1), f.issuer.calls.Load())
	_, ok := f.cache.Get()
	assert.False(t, ok)
	_, err := f.store.GetRefreshToken(context.Background())
	assert.ErrorIs(t, err, storage.ErrRefreshTokenNotFound)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, callers, "no call is replayed after a failed refresh")
}

func TestDo_RetriesAtMostOnce(t *testing.T) {
	f := newFixture(t)
	close(f.issuer.release)

	calls := 0
	err := f.coord.Do(context.Background(), func(context.Context, string) error {
		calls++
		return errUnauthorizedCall
	})

	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 2, calls)
	assert.Equal(t, int64(1), f.issuer.calls.Load())
}

func TestDo_MissingRefreshTokenFails(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.DeleteRefreshToken(context.Background()))

	var seen []string
	var mu sync.Mutex
	err := f.coord.Do(context.Background(), f.call(&seen, &mu))

	assert.Equal(t, errUnauthorizedCall, err)
	assert.Zero(t, f.issuer.calls.Load())
	assert.Equal(t, Stats{Failures: 1}, f.coord.Stats())
	_, ok := f.cache.Get()
	assert.False(t, ok)
}

func TestDo_CancelledWaiterDoesNotAffectOthers(t *testing.T) {
	f := newFixture(t)

	var seen []string
	var mu sync.Mutex

	ctx, cancel := context.WithCancel(context.Background())
	cancelled := make(chan error, 1)
	go func() { cancelled <- f.coord.Do(ctx, f.call(&seen, &mu)) }()

	waitForWaiters(t, f.coord, 1)

	other := make(chan error, 1)
	go func() { other <- f.coord.Do(context.Background(), f.call(&seen, &mu)) }()
	waitForWaiters(t, f.coord, 2)

	cancel()
	assert.ErrorIs(t, <-cancelled, context.Canceled)

	close(f.issuer.release)
	assert.NoError(t, <-other)
	assert.Equal(t, int64(1), f.issuer.calls.Load())
}

func TestDo_StoresRotatedRefreshToken(t *testing.T) {
	f := newFixture(t)
	f.issuer.rotate = true
	close(f.issuer.release)

	var seen []string
	var mu sync.Mutex
	require.NoError(t, f.coord.Do(context.Background(), f.call(&seen, &mu)))

	stored, err := f.store.GetRefreshToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refresh-1-rotated", stored)
}

func TestRefresh_SequentialRefreshesAreIndependent(t *testing.T) {
	f := newFixture(t)
	close(f.issuer.release)

	first, err := f.coord.Refresh(context.Background())
	require.NoError(t, err)
	second, err := f.coord.Refresh(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, Stats{Refreshes: 2}, f.coord.Stats())
}

func TestRun_ResolvesWaitersInEnqueueOrder(t *testing.T) {
	f := newFixture(t)
	close(f.issuer.release)

	const waiters = 8
	queued := make([]chan outcome, waiters)
	cases := make([]reflect.SelectCase, waiters)
	for i := range queued {
		// unbuffered, so each resolution blocks until it is observed below
		queued[i] = make(chan outcome)
		cases[i] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(queued[i])}
	}

	f.coord.mu.Lock()
	f.coord.refreshing = true
	f.coord.waiters = queued
	f.coord.mu.Unlock()

	go f.coord.run(context.Background())

	var order []int
	for len(order) < waiters {
		chosen, v, ok := reflect.Select(cases)
		require.True(t, ok)
		res := v.Interface().(outcome)
		require.NoError(t, res.err)
		assert.Equal(t, "access-2", res.token)

		order = append(order, chosen)
		cases[chosen].Chan = reflect.Value{}
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, order)
	assert.Equal(t, int64(1), f.issuer.calls.Load())
}
