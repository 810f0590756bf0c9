package sqlitebackend_test

import (
	"path/filepath"
	"testing"

	apperrors "github.com/jrsteele09/go-agent-client/internal/errors"
	"github.com/jrsteele09/go-agent-client/storage"
	"github.com/jrsteele09/go-agent-client/storage/sqlitebackend"
	"github.com/stretchr/testify/require"
)

func TestBackend_CRUD(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	b, err := sqlitebackend.Open(path)
	require.NoError(t, err)

	require.NoError(t, b.Set("agentdash_x", []byte("one")))
	require.NoError(t, b.Set("agentdash_x", []byte("two")))
	require.NoError(t, b.Set("agentdash_y", []byte{0, 1, 2}))
	require.NoError(t, b.Set("elsewhere", []byte("z")))

	v, err := b.Get("agentdash_x")
	require.NoError(t, err)
	require.Equal(t, "two", string(v))

	keys, err := b.Keys("agentdash_")
	require.NoError(t, err)
	require.Equal(t, []string{"agentdash_x", "agentdash_y"}, keys)

	require.NoError(t, b.Delete("agentdash_x"))
	_, err = b.Get("agentdash_x")
	require.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	require.NoError(t, b.Close())

	reopened, err := sqlitebackend.Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	v, err = reopened.Get("agentdash_y")
	require.NoError(t, err)
	require.Equal(t, []byte{0, 1, 2}, v)
}

func TestBackend_WithStore(t *testing.T) {
	b, err := sqlitebackend.Open(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	defer b.Close()

	s := storage.NewStore(b)
	require.True(t, s.Available())
	require.True(t, s.SetItem("auth_token", "tok", 0))
	got, ok := storage.Get[string](s, "auth_token")
	require.True(t, ok)
	require.Equal(t, "tok", got)
}
