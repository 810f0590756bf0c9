package refresh

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-agent-client/internal/errors"
	"github.com/rs/zerolog/log"
)

// RefreshFunc exchanges a refresh token for a new access token.
type RefreshFunc func(ctx context.Context, refreshToken string) (string, error)

// TokenStore is the subset of the credential store the coordinator needs.
type TokenStore interface {
	GetRefreshToken() string
	SetAuthToken(token string, ttl time.Duration) bool
	ClearTokens()
}

const DefaultTimeout = 15 * time.Second

// Coordinator makes sure at most one refresh is in flight. Callers arriving
// while a refresh is running wait for it and all observe the same token or
// the same error.
type Coordinator struct {
	store     TokenStore
	refresh   RefreshFunc
	timeout   time.Duration
	onFailure func(error)

	mu       sync.Mutex
	inflight *flight
}

type flight struct {
	done    chan struct{}
	waiters int
	token   string
	err     error
}

type CoordinatorOption func(*Coordinator)

// WithTimeout bounds a single refresh. When it elapses every waiter is
// rejected with ErrRefreshTimeout and the credentials are cleared.
func WithTimeout(timeout time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.timeout = timeout
	}
}

// WithFailureHandler is called once per failed refresh, after the
// credentials have been cleared and every waiter released.
func WithFailureHandler(fn func(error)) CoordinatorOption {
	return func(c *Coordinator) {
		c.onFailure = fn
	}
}

func NewCoordinator(store TokenStore, fn RefreshFunc, options ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store:   store,
		refresh: fn,
		timeout: DefaultTimeout,
	}
	for _, opt := range options {
		opt(c)
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	return c
}

// Refresh starts a refresh or joins the one in flight and returns its outcome.
// Cancelling ctx abandons the wait but never the shared refresh.
func (c *Coordinator) Refresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	f := c.inflight
	if f == nil {
		f = &flight{done: make(chan struct{})}
		c.inflight = f
		go c.run(context.WithoutCancel(ctx), f)
	} else {
		f.waiters++
	}
	c.mu.Unlock()

	select {
	case <-f.done:
		return f.token, f.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// InFlight reports whether a refresh is currently running.
func (c *Coordinator) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight != nil
}

// Waiters is the number of callers that joined the running refresh.
func (c *Coordinator) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight == nil {
		return 0
	}
	return c.inflight.waiters
}

type outcome struct {
	token string
	err   error
}

func (c *Coordinator) run(ctx context.Context, f *flight) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	token, err := c.exchange(ctx)
	if err == nil {
		c.store.SetAuthToken(token, 0)
	} else {
		c.store.ClearTokens()
	}

	c.mu.Lock()
	f.token, f.err = token, err
	waiters := f.waiters
	c.inflight = nil
	c.mu.Unlock()
	close(f.done)

	if err != nil {
		log.Warn().Err(err).Int("waiters", waiters).Msg("credential refresh failed, session cleared")
		if c.onFailure != nil {
			c.onFailure(err)
		}
		return
	}
	log.Debug().Int("waiters", waiters).Msg("credential refreshed")
}

func (c *Coordinator) exchange(ctx context.Context) (string, error) {
	refreshToken := c.store.GetRefreshToken()
	if refreshToken == "" {
		return "", apperrors.ErrNoRefreshToken
	}

	result := make(chan outcome, 1)
	go func() {
		token, err := c.refresh(ctx, refreshToken)
		result <- outcome{token: token, err: err}
	}()

	select {
	case r := <-result:
		if r.err != nil {
			if ctx.Err() != nil {
				return "", apperrors.Wrapf(apperrors.ErrRefreshTimeout, "refresh after %s", c.timeout)
			}
			return "", r.err
		}
		if r.token == "" {
			return "", apperrors.ErrInvalidToken
		}
		return r.token, nil
	case <-ctx.Done():
		return "", apperrors.Wrapf(apperrors.ErrRefreshTimeout, "refresh after %s", c.timeout)
	}
}
