package sealed_test

import (
	"bytes"
	"strings"
	"testing"

	apperrors "github.com/jrsteele09/go-agent-client/internal/errors"
	"github.com/jrsteele09/go-agent-client/storage"
	"github.com/jrsteele09/go-agent-client/storage/backendfake"
	"github.com/jrsteele09/go-agent-client/storage/sealed"
	"github.com/stretchr/testify/require"
)

var testKey = strings.Repeat("ab", 32)

func TestBackend_RoundTripAndCiphertext(t *testing.T) {
	inner := backendfake.NewFakeBackend()
	b, err := sealed.NewFromHex(inner, testKey)
	require.NoError(t, err)

	require.NoError(t, b.Set("agentdash_refresh_token", []byte("super-secret")))

	raw, ok := inner.Raw("agentdash_refresh_token")
	require.True(t, ok)
	require.False(t, bytes.Contains(raw, []byte("super-secret")))

	plain, err := b.Get("agentdash_refresh_token")
	require.NoError(t, err)
	require.Equal(t, "super-secret", string(plain))
}

func TestBackend_ValueBoundToKey(t *testing.T) {
	inner := backendfake.NewFakeBackend()
	b, err := sealed.NewFromHex(inner, testKey)
	require.NoError(t, err)

	require.NoError(t, b.Set("a", []byte("value")))
	raw, _ := inner.Raw("a")
	require.NoError(t, inner.Set("b", raw))

	_, err = b.Get("b")
	require.True(t, apperrors.Is(err, apperrors.ErrSealedValue))
}

func TestBackend_WrongKeyLength(t *testing.T) {
	_, err := sealed.New(backendfake.NewFakeBackend(), []byte("short"))
	require.Error(t, err)
	_, err = sealed.NewFromHex(backendfake.NewFakeBackend(), "zz")
	require.Error(t, err)
}

func TestBackend_WithStore(t *testing.T) {
	b, err := sealed.NewFromHex(backendfake.NewFakeBackend(), testKey)
	require.NoError(t, err)
	s := storage.NewStore(b)
	require.True(t, s.SetItem("k", map[string]int{"n": 1}, 0))
	got, ok := storage.Get[map[string]int](s, "k")
	require.True(t, ok)
	require.Equal(t, 1, got["n"])
}
