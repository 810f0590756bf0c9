package refreshtokens_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-agent-client/devserver/refreshtokens"
	refreshrepofake "github.com/jrsteele09/go-agent-client/devserver/refreshtokens/repofake"
	apperrors "github.com/jrsteele09/go-agent-client/internal/errors"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	expiry time.Duration
}

func (c testConfig) GetRefreshTokenLength() int           { return 16 }
func (c testConfig) GetRefreshTokenExpiry() time.Duration { return c.expiry }

func TestManager_CreateReplacesUserToken(t *testing.T) {
	m := refreshtokens.NewManager(refreshrepofake.NewFakeRefreshTokenRepo(), testConfig{expiry: time.Hour})

	first, err := m.Create("user-1")
	require.NoError(t, err)
	require.Len(t, first, 32)

	second, err := m.Create("user-1")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	_, err = m.Get(first)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	rt, err := m.Get(second)
	require.NoError(t, err)
	require.Equal(t, "user-1", rt.UserID)
}

func TestManager_Rotate(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	refreshtokens.NowTimeFunc = func() time.Time { return now }
	t.Cleanup(func() { refreshtokens.NowTimeFunc = time.Now })

	m := refreshtokens.NewManager(refreshrepofake.NewFakeRefreshTokenRepo(), testConfig{expiry: time.Hour})
	token, err := m.Create("user-1")
	require.NoError(t, err)

	stored, next, err := m.Rotate(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", stored.UserID)
	require.NotEqual(t, token, next)

	_, _, err = m.Rotate(token)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)

	now = now.Add(2 * time.Hour)
	_, _, err = m.Rotate(next)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)
	_, err = m.Get(next)
	require.ErrorIs(t, err, apperrors.ErrNotFound, "expired tokens are removed")
}
