// Package credentials caches the anchor bearer token and coordinates its
// refresh so that concurrent callers trigger at most one authentication.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// ErrExpiredToken is returned when the anchor hands out a token that has
// already expired.
var ErrExpiredToken = errors.New("anchor returned an expired token")

const (
	DefaultLeadTime       = 60 * time.Second
	DefaultValidity       = 24 * time.Hour
	DefaultRefreshTimeout = 30 * time.Second
)

// Authenticator obtains a fresh bearer token.
type Authenticator interface {
	Authenticate(ctx context.Context) (string, error)
}

type Option func(*Cache)

func WithLeadTime(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.leadTime = d
		}
	}
}

// WithDefaultValidity sets the lifetime assumed for tokens that carry no
// readable exp claim.
func WithDefaultValidity(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.defaultValidity = d
		}
	}
}

func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.refreshTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithRefreshHook registers fn to be called after every refresh attempt.
func WithRefreshHook(fn func(err error)) Option {
	return func(c *Cache) { c.onRefresh = fn }
}

// Cache holds one token and its expiry.
type Cache struct {
	auth            Authenticator
	leadTime        time.Duration
	defaultValidity time.Duration
	refreshTimeout  time.Duration
	now             func() time.Time
	onRefresh       func(err error)

	group singleflight.Group

	mu     sync.Mutex
	token  string
	expiry time.Time
	// lead is the lead time applied to the cached token, shortened for
	// tokens that live less than twice the configured one
	lead time.Duration
}

func New(auth Authenticator, opts ...Option) *Cache {
	c := &Cache{
		auth:            auth,
		leadTime:        DefaultLeadTime,
		defaultValidity: DefaultValidity,
		refreshTimeout:  DefaultRefreshTimeout,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the cached token when it is valid for longer than the lead
// time. Otherwise the caller joins the single in-flight refresh. A refresh
// failure is returned to every caller waiting on it.
func (c *Cache) Token(ctx context.Context) (string, error) {
	if token, ok := c.cached(); ok {
		return token, nil
	}

	ch := c.group.DoChan("token", c.refresh)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate forces the next Token call to refresh if token is still the
// cached one. Reports about older tokens are ignored.
func (c *Cache) Invalidate(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == token {
		c.expiry = time.Time{}
	}
}

func (c *Cache) cached() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.expiry.Sub(c.now()) > c.lead {
		return c.token, true
	}
	return "", false
}

// refresh runs detached from any caller's context so that one caller giving
// up does not fail the others.
func (c *Cache) refresh() (any, error) {
	if token, ok := c.cached(); ok {
		return token, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
	defer cancel()

	token, err := c.auth.Authenticate(ctx)
	if c.onRefresh != nil {
		c.onRefresh(err)
	}
	if err != nil {
		return nil, fmt.Errorf("refresh anchor token: %w", err)
	}

	expiry := c.expiryOf(token)
	lifetime := expiry.Sub(c.now())
	if lifetime <= 0 {
		return nil, fmt.Errorf("refresh anchor token: %w (exp %s)", ErrExpiredToken, expiry.Format(time.RFC3339))
	}

	c.mu.Lock()
	c.token, c.expiry = token, expiry
	c.lead = min(c.leadTime, lifetime/2)
	c.mu.Unlock()
	return token, nil
}

func (c *Cache) expiryOf(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return c.now().Add(c.defaultValidity)
}
