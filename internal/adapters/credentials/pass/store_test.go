package pass

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/swarmchat/internal/domain"
)

func TestStorePutUsesPassInsert(t *testing.T) {
	t.Parallel()

	called := false
	store := &Store{
		prefix: DefaultPrefix,
		run: func(ctx context.Context, input string, args ...string) (string, string, error) {
			called = true
			assert.Equal(t, []string{"insert", "-m", "-f", "swarmchat/swarmchat_access_token"}, args)
			assert.Equal(t, "tok1\n", input)
			return "", "", nil
		},
	}

	require.NoError(t, store.Put(context.Background(), domain.KeyAccessToken, "tok1"))
	assert.True(t, called)
}

func TestStoreGetUsesPassShowAndTrimsTrailingNewline(t *testing.T) {
	t.Parallel()

	store := &Store{
		prefix: "chat",
		run: func(ctx context.Context, input string, args ...string) (string, string, error) {
			assert.Equal(t, []string{"show", "chat/swarmchat_user_id"}, args)
			assert.Empty(t, input)
			return "@alice:local\n", "", nil
		},
	}

	value, err := store.Get(context.Background(), domain.KeyUserID)
	require.NoError(t, err)
	assert.Equal(t, "@alice:local", value)
}

func TestStoreMissingEntryIsNotFound(t *testing.T) {
	t.Parallel()

	store := &Store{
		prefix: DefaultPrefix,
		run: func(ctx context.Context, input string, args ...string) (string, string, error) {
			return "", "Error: swarmchat/swarmchat_user_id is not in the password store.", errors.New("exit status 1")
		},
	}

	_, err := store.Get(context.Background(), domain.KeyUserID)
	require.ErrorIs(t, err, domain.ErrCredentialNotFound)

	require.NoError(t, store.Delete(context.Background(), domain.KeyUserID))
}

func TestStoreGetReturnsClearError(t *testing.T) {
	t.Parallel()

	store := &Store{
		prefix: DefaultPrefix,
		run: func(ctx context.Context, input string, args ...string) (string, string, error) {
			return "", "gpg: decryption failed: No secret key", errors.New("exit status 2")
		},
	}

	_, err := store.Get(context.Background(), domain.KeyAccessToken)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrCredentialNotFound)
	assert.ErrorContains(t, err, "pass get")
	assert.ErrorContains(t, err, "swarmchat/swarmchat_access_token")
	assert.ErrorContains(t, err, "No secret key")
}

func TestStoreHonoursCanceledContext(t *testing.T) {
	t.Parallel()

	store := &Store{
		run: func(context.Context, string, ...string) (string, string, error) {
			t.Fatal("pass must not run")
			return "", "", nil
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, store.Delete(ctx, domain.KeyAccessToken), context.Canceled)
}
