package pebble

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/swarmchat/internal/domain"
)

func TestStoreRoundTripSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, domain.KeyAccessToken, "tok1"))
	require.NoError(t, store.Put(ctx, domain.KeyUserID, "@alice:local"))
	require.NoError(t, store.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	token, err := reopened.Get(ctx, domain.KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "tok1", token)

	userID, err := reopened.Get(ctx, domain.KeyUserID)
	require.NoError(t, err)
	assert.Equal(t, "@alice:local", userID)
}

func TestStoreMissingAndDeletedKeysAreNotFound(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	_, err = store.Get(ctx, domain.KeyMuteList)
	require.ErrorIs(t, err, domain.ErrCredentialNotFound)

	require.NoError(t, store.Put(ctx, domain.KeyMuteList, `["@bob:local"]`))
	require.NoError(t, store.Delete(ctx, domain.KeyMuteList))
	require.NoError(t, store.Delete(ctx, domain.KeyMuteList))

	_, err = store.Get(ctx, domain.KeyMuteList)
	require.ErrorIs(t, err, domain.ErrCredentialNotFound)
}

func TestStoreRejectsUseAfterClose(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err = store.Get(context.Background(), domain.KeyUserID)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, store.Put(context.Background(), domain.KeyUserID, "x"), ErrClosed)
}
