package application

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/swarmchat/internal/domain"
	"github.com/bnema/swarmchat/internal/ports/mocks"
)

const blockListType = "org.swarmchat.block_list"

func newTestModeration(t *testing.T, client *fakeChatClient, store *memStore) (*ModerationSync, *fakeSessions) {
	t.Helper()

	sessions := &fakeSessions{}
	if client != nil {
		sessions.setClient(client)
	}
	moderation := NewModerationSync(sessions, store, zerolog.Nop())
	t.Cleanup(moderation.Close)
	return moderation, sessions
}

func TestModerationGetReadsRemoteListShapes(t *testing.T) {
	client := newFakeChatClient("@alice:local")
	client.accountData[blockListType] = []byte(`{"blocked":["@bob:local","@carol:local"]}`)
	moderation, _ := newTestModeration(t, client, newMemStore())

	ids, err := moderation.Get(context.Background(), domain.ListBlocked)
	require.NoError(t, err)
	assert.Equal(t, []string{"@bob:local", "@carol:local"}, ids)
	assert.True(t, moderation.IsBlocked("@bob:local"))

	client.mu.Lock()
	client.accountData[blockListType] = []byte(`["@dave:local"]`)
	client.mu.Unlock()
	ids, err = moderation.Get(context.Background(), domain.ListBlocked)
	require.NoError(t, err)
	assert.Equal(t, []string{"@dave:local"}, ids)
	assert.False(t, moderation.IsBlocked("@bob:local"))
}

func TestModerationGetFallsBackToLocalCache(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Put(context.Background(), domain.KeyMuteList, `["@bob:local"]`))

	offline, _ := newTestModeration(t, nil, store)
	ids, err := offline.Get(context.Background(), domain.ListMuted)
	require.NoError(t, err)
	assert.Equal(t, []string{"@bob:local"}, ids)

	client := newFakeChatClient("@alice:local")
	client.accountDataErr = errUnreachable
	failing, _ := newTestModeration(t, client, store)
	ids, err = failing.Get(context.Background(), domain.ListMuted)
	require.NoError(t, err)
	assert.Equal(t, []string{"@bob:local"}, ids)
	assert.True(t, failing.IsMuted("@bob:local"))
}

func TestModerationAddWritesFullSetRemotely(t *testing.T) {
	client := newFakeChatClient("@alice:local")
	client.accountData[blockListType] = []byte(`{"blocked":["@bob:local"]}`)
	store := newMemStore()
	moderation, _ := newTestModeration(t, client, store)

	ids, err := moderation.Add(context.Background(), domain.ListBlocked, "@carol:local")
	require.NoError(t, err)
	assert.Equal(t, []string{"@bob:local", "@carol:local"}, ids)

	var remote map[string][]string
	require.NoError(t, json.Unmarshal(client.accountData[blockListType], &remote))
	assert.Equal(t, map[string][]string{"blocked": {"@bob:local", "@carol:local"}}, remote)

	local, ok := store.value(domain.KeyBlockList)
	require.True(t, ok, "remote write goes through to the local cache")
	assert.JSONEq(t, `["@bob:local","@carol:local"]`, local)
}

func TestModerationAddSeedsAbsentRemoteFromLocal(t *testing.T) {
	client := newFakeChatClient("@alice:local")
	store := newMemStore()
	require.NoError(t, store.Put(context.Background(), domain.KeyBlockList, `["@bob:local"]`))
	moderation, _ := newTestModeration(t, client, store)

	ids, err := moderation.Add(context.Background(), domain.ListBlocked, "@carol:local")
	require.NoError(t, err)
	assert.Equal(t, []string{"@bob:local", "@carol:local"}, ids)
	assert.JSONEq(t, `{"blocked":["@bob:local","@carol:local"]}`, string(client.accountData[blockListType]))
}

func TestModerationDuplicateAddAndAbsentRemoveAreNoOps(t *testing.T) {
	client := newFakeChatClient("@alice:local")
	client.accountData[blockListType] = []byte(`{"blocked":["@bob:local"]}`)
	moderation, _ := newTestModeration(t, client, newMemStore())

	ids, err := moderation.Add(context.Background(), domain.ListBlocked, "@bob:local")
	require.NoError(t, err)
	assert.Equal(t, []string{"@bob:local"}, ids)

	ids, err = moderation.Remove(context.Background(), domain.ListBlocked, "@zed:local")
	require.NoError(t, err)
	assert.Equal(t, []string{"@bob:local"}, ids)
	assert.Zero(t, client.setDataCalls)
}

func TestModerationRejectsInvalidUserID(t *testing.T) {
	moderation, _ := newTestModeration(t, nil, newMemStore())

	_, err := moderation.Add(context.Background(), domain.ListBlocked, "bob")
	require.ErrorIs(t, err, domain.ErrInvalidUserID)

	_, err = moderation.Remove(context.Background(), domain.ListMuted, "@bob")
	require.ErrorIs(t, err, domain.ErrInvalidUserID)

	_, err = moderation.Get(context.Background(), domain.ListKind("ignored"))
	require.Error(t, err)
}

func TestModerationUnreachableRemoteDegradesToLocal(t *testing.T) {
	client := newFakeChatClient("@alice:local")
	client.accountDataErr = errUnreachable
	client.setDataErr = errUnreachable
	store := newMemStore()
	moderation, _ := newTestModeration(t, client, store)

	ids, err := moderation.Add(context.Background(), domain.ListBlocked, "@bob:local")
	require.NoError(t, err)
	assert.Equal(t, []string{"@bob:local"}, ids)
	assert.Zero(t, client.setDataCalls, "unreadable remote is not overwritten")

	ids, err = moderation.Get(context.Background(), domain.ListBlocked)
	require.NoError(t, err)
	assert.Equal(t, []string{"@bob:local"}, ids)

	ids, err = moderation.Remove(context.Background(), domain.ListBlocked, "@bob:local")
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = moderation.Get(context.Background(), domain.ListBlocked)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestModerationRemoteWriteFailureFallsBackToLocal(t *testing.T) {
	client := newFakeChatClient("@alice:local")
	client.setDataErr = errors.New("M_LIMIT_EXCEEDED")
	store := newMemStore()
	moderation, _ := newTestModeration(t, client, store)

	ids, err := moderation.Add(context.Background(), domain.ListMuted, "@bob:local")
	require.NoError(t, err)
	assert.Equal(t, []string{"@bob:local"}, ids)
	assert.Equal(t, 1, client.setDataCalls)

	local, _ := store.value(domain.KeyMuteList)
	assert.JSONEq(t, `["@bob:local"]`, local)
}

func TestModerationOfflineMutatesLocalCache(t *testing.T) {
	store := newMemStore()
	moderation, _ := newTestModeration(t, nil, store)

	_, err := moderation.Add(context.Background(), domain.ListBlocked, "@bob:local")
	require.NoError(t, err)
	_, err = moderation.Add(context.Background(), domain.ListBlocked, "@carol:local")
	require.NoError(t, err)
	ids, err := moderation.Remove(context.Background(), domain.ListBlocked, "@bob:local")
	require.NoError(t, err)
	assert.Equal(t, []string{"@carol:local"}, ids)

	local, _ := store.value(domain.KeyBlockList)
	assert.JSONEq(t, `["@carol:local"]`, local)
}

func TestModerationOfflineLocalFailureIsReported(t *testing.T) {
	store := newMemStore()
	store.putErr = errors.New("disk full")
	moderation, _ := newTestModeration(t, nil, store)

	_, err := moderation.Add(context.Background(), domain.ListBlocked, "@bob:local")
	require.ErrorContains(t, err, "disk full")
	assert.False(t, moderation.IsBlocked("@bob:local"))
}

func TestModerationAnonymousClientUsesLocalCache(t *testing.T) {
	client := newFakeChatClient("")
	store := newMemStore()
	moderation, _ := newTestModeration(t, client, store)

	_, err := moderation.Add(context.Background(), domain.ListBlocked, "@bob:local")
	require.NoError(t, err)
	assert.Zero(t, client.setDataCalls)
}

func TestModerationRefreshesOnSessionChange(t *testing.T) {
	store := newMemStore()
	moderation, sessions := newTestModeration(t, nil, store)
	require.NoError(t, moderation.Open(context.Background()))

	var (
		mu      sync.Mutex
		updates []ModerationUpdate
	)
	moderation.Subscribe(func(u ModerationUpdate) {
		mu.Lock()
		defer mu.Unlock()
		updates = append(updates, u)
	})

	client := newFakeChatClient("@alice:local")
	client.accountData[blockListType] = []byte(`{"blocked":{"@bob:local":{}}}`)
	sessions.setClient(client)

	require.Eventually(t, func() bool { return moderation.IsBlocked("@bob:local") }, time.Second, time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, updates)
	assert.Equal(t, ModerationUpdate{Kind: domain.ListBlocked, IDs: []string{"@bob:local"}}, updates[len(updates)-1])
}

type watchingStore struct {
	*memStore
	changes chan string
}

func (s *watchingStore) Watch(ctx context.Context, onChange func(key string)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case key := <-s.changes:
			onChange(key)
		}
	}
}

func TestModerationFollowsLocalChangeFeed(t *testing.T) {
	store := &watchingStore{memStore: newMemStore(), changes: make(chan string)}
	sessions := &fakeSessions{}
	moderation := NewModerationSync(sessions, store, zerolog.Nop())
	defer moderation.Close()
	require.NoError(t, moderation.Open(context.Background()))
	require.False(t, moderation.IsBlocked("@bob:local"))

	require.NoError(t, store.Put(context.Background(), domain.KeyBlockList, `["@bob:local"]`))
	store.changes <- domain.KeyBlockList

	require.Eventually(t, func() bool { return moderation.IsBlocked("@bob:local") }, time.Second, time.Millisecond)
}

func TestModerationSyncSatisfiesBlockChecker(t *testing.T) {
	var _ BlockChecker = (*ModerationSync)(nil)
	store := mocks.NewMockCredentialStore(t)
	moderation := NewModerationSync(&fakeSessions{}, store, zerolog.Nop())
	defer moderation.Close()

	store.EXPECT().Get(mockAnyContext(), domain.KeyBlockList).Return("", errUnreachable).Once()
	ids, err := moderation.Get(context.Background(), domain.ListBlocked)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
