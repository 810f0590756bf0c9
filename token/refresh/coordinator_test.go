package refresh_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/go-agent-client/internal/errors"
	"github.com/jrsteele09/go-agent-client/storage"
	"github.com/jrsteele09/go-agent-client/storage/backendfake"
	"github.com/jrsteele09/go-agent-client/token"
	"github.com/jrsteele09/go-agent-client/token/refresh"
	"github.com/stretchr/testify/require"
)

func newTokenStore(t *testing.T) *token.Store {
	t.Helper()
	s := token.NewStore(storage.NewStore(backendfake.NewFakeBackend()))
	s.SetAuthToken("stale", 0)
	s.SetRefreshToken("refresh-1")
	return s
}

// waitFor polls until cond holds or the test times out.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, time.Millisecond)
}

func TestCoordinator_SingleFlight(t *testing.T) {
	store := newTokenStore(t)
	var calls atomic.Int32
	var seen atomic.Value
	release := make(chan struct{})

	c := refresh.NewCoordinator(store, func(ctx context.Context, refreshToken string) (string, error) {
		calls.Add(1)
		seen.Store(refreshToken)
		<-release
		return "fresh", nil
	})

	const n = 8
	results := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Refresh(context.Background())
		}(i)
	}

	waitFor(t, func() bool { return c.Waiters() == n-1 })
	require.True(t, c.InFlight())
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, "refresh-1", seen.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "fresh", results[i])
	}
	require.Equal(t, "fresh", store.GetAuthToken())
	require.False(t, c.InFlight())
	require.Zero(t, c.Waiters())
}

func TestCoordinator_FailureRejectsAllAndClears(t *testing.T) {
	store := newTokenStore(t)
	release := make(chan struct{})
	refreshErr := errors.New("refresh rejected")
	var failures atomic.Int32

	c := refresh.NewCoordinator(store, func(ctx context.Context, _ string) (string, error) {
		<-release
		return "", refreshErr
	}, refresh.WithFailureHandler(func(err error) {
		if errors.Is(err, refreshErr) {
			failures.Add(1)
		}
	}))

	const n = 3
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := c.Refresh(context.Background())
			errs <- err
		}()
	}
	waitFor(t, func() bool { return c.Waiters() == n-1 })
	close(release)

	for i := 0; i < n; i++ {
		require.ErrorIs(t, <-errs, refreshErr)
	}
	waitFor(t, func() bool { return failures.Load() == 1 })
	require.Empty(t, store.GetAuthToken())
	require.Empty(t, store.GetRefreshToken())
	require.False(t, c.InFlight())
}

func TestCoordinator_Timeout(t *testing.T) {
	store := newTokenStore(t)
	c := refresh.NewCoordinator(store, func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}, refresh.WithTimeout(20*time.Millisecond))

	_, err := c.Refresh(context.Background())
	require.True(t, apperrors.Is(err, apperrors.ErrRefreshTimeout))
	require.Empty(t, store.GetRefreshToken())
	require.False(t, c.InFlight())
}

func TestCoordinator_NoRefreshToken(t *testing.T) {
	store := token.NewStore(storage.NewStore(backendfake.NewFakeBackend()))
	var calls atomic.Int32
	c := refresh.NewCoordinator(store, func(ctx context.Context, _ string) (string, error) {
		calls.Add(1)
		return "x", nil
	})

	_, err := c.Refresh(context.Background())
	require.True(t, apperrors.Is(err, apperrors.ErrNoRefreshToken))
	require.Zero(t, calls.Load())
}

func TestCoordinator_CallerCancelDoesNotAbortRefresh(t *testing.T) {
	store := newTokenStore(t)
	release := make(chan struct{})
	c := refresh.NewCoordinator(store, func(ctx context.Context, _ string) (string, error) {
		<-release
		return "fresh", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Refresh(ctx)
		done <- err
	}()
	waitFor(t, c.InFlight)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(release)
	waitFor(t, func() bool { return !c.InFlight() })
	require.Equal(t, "fresh", store.GetAuthToken())
}

func TestCoordinator_SequentialRefreshesAreIndependent(t *testing.T) {
	store := newTokenStore(t)
	var calls atomic.Int32
	c := refresh.NewCoordinator(store, func(ctx context.Context, _ string) (string, error) {
		n := calls.Add(1)
		if n == 1 {
			return "first", nil
		}
		return "second", nil
	})

	tok, err := c.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "first", tok)
	tok, err = c.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "second", tok)
}
