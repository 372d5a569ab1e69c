package pass

import (
	"context"
	"errors"
	"testing"

	"github.com/bnema/pocketfi-claimer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scripted(t *testing.T, wantArgs []string, wantInput, stdout, stderr string, err error) *Store {
	t.Helper()

	return &Store{
		run: func(_ context.Context, input string, args ...string) (string, string, error) {
			assert.Equal(t, wantArgs, args)
			assert.Equal(t, wantInput, input)
			return stdout, stderr, err
		},
	}
}

func TestStorePutUsesPassInsertWithEntryPath(t *testing.T) {
	t.Parallel()

	store := scripted(t, []string{"insert", "-m", "-f", "pocketfi/acc-1/session"}, "query_id=1\n", "", "", nil)

	require.NoError(t, store.Put(context.Background(), "pocketfi://acc-1/session", "query_id=1\n"))
}

func TestStoreGetReturnsFirstLine(t *testing.T) {
	t.Parallel()

	store := scripted(t, []string{"show", "pocketfi/acc-1/session"}, "", "query_id=1\r\nnote: phone\n", "", nil)

	value, err := store.Get(context.Background(), "pocketfi://acc-1/session")
	require.NoError(t, err)
	assert.Equal(t, "query_id=1", value)
}

func TestStoreGetMapsMissingEntry(t *testing.T) {
	t.Parallel()

	store := scripted(t, []string{"show", "pocketfi/acc-1/session"}, "", "", "Error: pocketfi/acc-1/session is not in the password store.", errors.New("exit status 1"))

	_, err := store.Get(context.Background(), "pocketfi://acc-1/session")
	require.ErrorIs(t, err, domain.ErrSecretNotFound)
}

func TestStoreGetReturnsClearError(t *testing.T) {
	t.Parallel()

	store := scripted(t, []string{"show", "pocketfi/acc-1/session"}, "", "", "gpg: decryption failed", errors.New("exit status 2"))

	_, err := store.Get(context.Background(), "pocketfi://acc-1/session")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrSecretNotFound)
	assert.ErrorContains(t, err, "pass get")
	assert.ErrorContains(t, err, "gpg: decryption failed")
}

func TestStoreDeleteIgnoresMissingEntry(t *testing.T) {
	t.Parallel()

	store := scripted(t, []string{"rm", "-f", "pocketfi/acc-1/session"}, "", "", "Error: pocketfi/acc-1/session is not in the password store.", errors.New("exit status 1"))

	require.NoError(t, store.Delete(context.Background(), "pocketfi://acc-1/session"))
}

func TestStoreRejectsInvalidKey(t *testing.T) {
	t.Parallel()

	store := &Store{run: func(context.Context, string, ...string) (string, string, error) {
		t.Fatal("pass must not run for an invalid key")
		return "", "", nil
	}}

	assert.Error(t, store.Put(context.Background(), "../escape", "value"))
}
