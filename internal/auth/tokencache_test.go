package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTokenState(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("expired at the exact expiry instant", func(t *testing.T) {
		t.Parallel()
		st := TokenState{AccessToken: "a", ExpiresAt: now}
		assert.True(t, st.Expired(now))
		assert.False(t, st.Expired(now.Add(-time.Nanosecond)))
	})

	t.Run("zero expiry is already expired", func(t *testing.T) {
		t.Parallel()
		assert.True(t, TokenState{AccessToken: "a"}.Expired(now))
	})

	t.Run("refresh requires a refresh token", func(t *testing.T) {
		t.Parallel()
		assert.False(t, TokenState{AccessToken: "a"}.CanRefresh(now))
		assert.True(t, TokenState{RefreshToken: "r"}.CanRefresh(now))
	})

	t.Run("refresh token expiry", func(t *testing.T) {
		t.Parallel()
		st := TokenState{RefreshToken: "r", RefreshExpiresAt: now.Add(time.Minute)}
		assert.True(t, st.CanRefresh(now))
		assert.False(t, st.CanRefresh(now.Add(time.Minute)))
	})

	t.Run("age", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, time.Duration(0), TokenState{}.Age(now))
		st := TokenState{ObtainedAt: now.Add(-30 * time.Second)}
		assert.Equal(t, 30*time.Second, st.Age(now))
	})
}

func TestTokenCache_GetOrRefresh(t *testing.T) {
	t.Parallel()

	t.Run("fresh token is served without refresh", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		cache := NewTokenCache(WithCacheClock(clock.Now))
		cache.Store(TokenState{AccessToken: "a", ExpiresAt: clock.Now().Add(time.Minute)})

		st, err := cache.GetOrRefresh(context.Background(), func(context.Context, TokenState, bool) (TokenState, error) {
			t.Fatal("refresh must not run")
			return TokenState{}, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "a", st.AccessToken)
		assert.Equal(t, int64(0), cache.Refreshes())
	})

	t.Run("empty cache refreshes", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		cache := NewTokenCache(WithCacheClock(clock.Now))

		st, err := cache.GetOrRefresh(context.Background(), func(_ context.Context, _ TokenState, ok bool) (TokenState, error) {
			assert.False(t, ok)
			return TokenState{AccessToken: "new", ExpiresAt: clock.Now().Add(time.Minute)}, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "new", st.AccessToken)

		current, ok := cache.Current()
		require.True(t, ok)
		assert.Equal(t, "new", current.AccessToken)
		assert.Equal(t, int64(1), cache.Refreshes())
	})

	t.Run("expired token is passed to refresh", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		cache := NewTokenCache(WithCacheClock(clock.Now))
		cache.Store(TokenState{AccessToken: "old", RefreshToken: "abc", ExpiresAt: clock.Now()})

		st, err := cache.GetOrRefresh(context.Background(), func(_ context.Context, cur TokenState, ok bool) (TokenState, error) {
			assert.True(t, ok)
			assert.Equal(t, "abc", cur.RefreshToken)
			return TokenState{AccessToken: "new", ExpiresAt: clock.Now().Add(time.Minute)}, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "new", st.AccessToken)
	})

	t.Run("failure keeps stored state", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		cache := NewTokenCache(WithCacheClock(clock.Now))
		cache.Store(TokenState{AccessToken: "old", ExpiresAt: clock.Now()})

		boom := errors.New("boom")
		_, err := cache.GetOrRefresh(context.Background(), func(context.Context, TokenState, bool) (TokenState, error) {
			return TokenState{}, boom
		})
		assert.ErrorIs(t, err, boom)

		current, ok := cache.Current()
		require.True(t, ok)
		assert.Equal(t, "old", current.AccessToken)
	})

	t.Run("immediately expiring token refreshes on every call", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		cache := NewTokenCache(WithCacheClock(clock.Now))
		refresh := func(context.Context, TokenState, bool) (TokenState, error) {
			return TokenState{AccessToken: "t", ExpiresAt: clock.Now()}, nil
		}

		for i := 0; i < 3; i++ {
			_, err := cache.GetOrRefresh(context.Background(), refresh)
			require.NoError(t, err)
		}
		assert.Equal(t, int64(3), cache.Refreshes())
	})

	t.Run("invalidate", func(t *testing.T) {
		t.Parallel()

		cache := NewTokenCache()
		cache.Store(TokenState{AccessToken: "a"})
		cache.Invalidate()
		_, ok := cache.Current()
		assert.False(t, ok)
	})
}

func TestTokenCache_SingleFlight(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	cache := NewTokenCache(WithCacheClock(clock.Now))

	release := make(chan struct{})
	var calls atomic.Int32
	refresh := func(context.Context, TokenState, bool) (TokenState, error) {
		calls.Add(1)
		<-release
		return TokenState{AccessToken: "shared", ExpiresAt: clock.Now().Add(time.Hour)}, nil
	}

	const callers = 20
	results := make([]TokenState, callers)
	errs := make([]error, callers)

	var started, done sync.WaitGroup
	started.Add(callers)
	done.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer done.Done()
			started.Done()
			results[i], errs[i] = cache.GetOrRefresh(context.Background(), refresh)
		}(i)
	}

	started.Wait()
	time.Sleep(50 * time.Millisecond)
	close(release)
	done.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int64(1), cache.Refreshes())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", results[i].AccessToken)
	}
}

func TestTokenCache_SharedFailure(t *testing.T) {
	t.Parallel()

	cache := NewTokenCache()
	release := make(chan struct{})
	boom := errors.New("token endpoint down")

	var calls atomic.Int32
	refresh := func(context.Context, TokenState, bool) (TokenState, error) {
		calls.Add(1)
		<-release
		return TokenState{}, boom
	}

	const callers = 5
	errs := make([]error, callers)
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = cache.GetOrRefresh(context.Background(), refresh)
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, boom)
	}
	assert.LessOrEqual(t, calls.Load(), int32(callers))
}

func TestTokenCache_CancelledCallerDoesNotCancelRefresh(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	cache := NewTokenCache(WithCacheClock(clock.Now))

	release := make(chan struct{})
	refreshCtxErr := make(chan error, 1)
	refresh := func(ctx context.Context, _ TokenState, _ bool) (TokenState, error) {
		<-release
		refreshCtxErr <- ctx.Err()
		return TokenState{AccessToken: "late", ExpiresAt: clock.Now().Add(time.Hour)}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := cache.GetOrRefresh(ctx, refresh)
		errCh <- err
	}()

	// A second caller joins the same flight with a live context.
	resultCh := make(chan TokenState, 1)
	go func() {
		st, _ := cache.GetOrRefresh(context.Background(), refresh)
		resultCh <- st
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	err := <-errCh
	assert.ErrorIs(t, err, ErrAuthPending)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	assert.NoError(t, <-refreshCtxErr)
	assert.Equal(t, "late", (<-resultCh).AccessToken)

	current, ok := cache.Current()
	require.True(t, ok)
	assert.Equal(t, "late", current.AccessToken)
}
