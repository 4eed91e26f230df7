package auth

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// TokenState is one obtained token and its lifetime. A zero ExpiresAt
// marks a token that expired on arrival; a zero RefreshExpiresAt means the
// refresh token does not expire.
type TokenState struct {
	AccessToken      string
	RefreshToken     string
	ExpiresAt        time.Time
	RefreshExpiresAt time.Time
	ObtainedAt       time.Time
}

// Expired reports whether the access token must be replaced before use.
func (s TokenState) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// CanRefresh reports whether a refresh grant may be attempted.
func (s TokenState) CanRefresh(now time.Time) bool {
	if s.RefreshToken == "" {
		return false
	}
	return s.RefreshExpiresAt.IsZero() || now.Before(s.RefreshExpiresAt)
}

// Age returns how long ago the token was obtained.
func (s TokenState) Age(now time.Time) time.Duration {
	if s.ObtainedAt.IsZero() {
		return 0
	}
	return now.Sub(s.ObtainedAt)
}

// RefreshFunc obtains a new token. current is the stored state, valid only
// when ok is true.
type RefreshFunc func(ctx context.Context, current TokenState, ok bool) (TokenState, error)

// TokenCache holds the token state of one scheme instance and runs at most
// one refresh at a time.
type TokenCache struct {
	mu    sync.RWMutex
	state TokenState
	has   bool

	group     singleflight.Group
	refreshes atomic.Int64
	clock     func() time.Time
}

// TokenCacheOption is a functional option for configuring the token cache.
type TokenCacheOption func(*TokenCache)

// WithCacheClock sets the time source used for expiry checks.
func WithCacheClock(clock func() time.Time) TokenCacheOption {
	return func(c *TokenCache) {
		c.clock = clock
	}
}

// NewTokenCache creates an empty token cache.
func NewTokenCache(opts ...TokenCacheOption) *TokenCache {
	c := &TokenCache{clock: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Current returns the stored state, expired or not.
func (c *TokenCache) Current() (TokenState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state, c.has
}

// Store replaces the stored state.
func (c *TokenCache) Store(state TokenState) {
	c.mu.Lock()
	c.state = state
	c.has = true
	c.mu.Unlock()
}

// Invalidate drops the stored state.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.state = TokenState{}
	c.has = false
	c.mu.Unlock()
}

// Refreshes returns how many times a RefreshFunc has been run.
func (c *TokenCache) Refreshes() int64 {
	return c.refreshes.Load()
}

// GetOrRefresh returns the stored state while it is unexpired. Otherwise it
// joins the in-flight refresh or starts one. The refresh runs detached from
// ctx: a caller whose ctx ends stops waiting and gets ErrAuthPending, while
// the refresh completes for everyone else. A failed refresh leaves the
// stored state untouched and its error is returned to every waiter.
func (c *TokenCache) GetOrRefresh(ctx context.Context, refresh RefreshFunc) (TokenState, error) {
	if st, ok := c.Current(); ok && !st.Expired(c.clock()) {
		return st, nil
	}

	ch := c.group.DoChan("refresh", func() (interface{}, error) {
		// A flight that finished after our first check may have
		// published a fresh token already.
		current, ok := c.Current()
		if ok && !current.Expired(c.clock()) {
			return current, nil
		}

		c.refreshes.Add(1)
		next, err := refresh(context.WithoutCancel(ctx), current, ok)
		if err != nil {
			return nil, err
		}
		c.Store(next)
		return next, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return TokenState{}, res.Err
		}
		return res.Val.(TokenState), nil
	case <-ctx.Done():
		return TokenState{}, fmt.Errorf("%w: %w", ErrAuthPending, ctx.Err())
	}
}
