package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bnema/pocketfi-claimer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRejectsInvalidKeys(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	for _, key := range []string{"", "   ", "/absolute/path", "../escape", "pocketfi://../../escape"} {
		err := store.Put(context.Background(), key, "value")
		assert.Error(t, err, key)
	}
}

func TestStorePutGetRoundTripAndPermissions(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := NewStore(root)
	key := "pocketfi://acc-1/session"
	want := "query_id=AAE&user=%7B%22id%22%3A1%7D&hash=abc"

	require.NoError(t, store.Put(context.Background(), key, want+"\n"))

	got, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	info, err := os.Stat(filepath.Join(root, "pocketfi", "acc-1", "session"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(secretFileMode), info.Mode().Perm())
}

func TestStoreGetMissingSecret(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())

	_, err := store.Get(context.Background(), "pocketfi://acc-1/session")
	require.ErrorIs(t, err, domain.ErrSecretNotFound)
}

func TestStoreDeleteIsIdempotentWhenSecretMissing(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	key := "pocketfi://acc-1/session"

	require.NoError(t, store.Put(context.Background(), key, "value"))
	require.NoError(t, store.Delete(context.Background(), key))
	require.NoError(t, store.Delete(context.Background(), key))

	_, err := store.Get(context.Background(), key)
	require.ErrorIs(t, err, domain.ErrSecretNotFound)
}
