package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bnema/swarmchat/internal/domain"
	"github.com/bnema/swarmchat/internal/ports/mocks"
)

const roomID = "!dm:local"

var reconcilerNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

type staticBlocks map[string]bool

func (b staticBlocks) IsBlocked(userID string) bool {
	return b[userID]
}

func newTestReconciler(t *testing.T, client *fakeChatClient, blocks BlockChecker, txnIDs ...string) (*TimelineReconciler, *fakeSessions) {
	t.Helper()

	ids := mocks.NewMockIDGenerator(t)
	for _, id := range txnIDs {
		ids.EXPECT().NewTransactionID().Return(id).Once()
	}

	sessions := &fakeSessions{}
	if client != nil {
		sessions.setClient(client)
	}
	cfg := TimelineConfig{ReceiptInterval: time.Hour}
	r := NewTimelineReconciler(sessions, blocks, ids, fixedClock{now: reconcilerNow}, cfg, zerolog.Nop())
	t.Cleanup(r.Close)
	return r, sessions
}

func liveMessage(id, sender, body string, ts time.Time) domain.TimelineEvent {
	return domain.TimelineEvent{ID: id, Type: domain.EventTypeMessage, RoomID: roomID, Sender: sender, Body: body, Timestamp: ts}
}

func messageIDs(messages []domain.Message) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.ID
	}
	return out
}

func TestSelectRoomLoadsHistoryAndSubscribes(t *testing.T) {
	client := newFakeChatClient("@alice:local")
	client.backfillErr = errors.New("backfill not supported")
	client.events[roomID] = []domain.TimelineEvent{
		liveMessage("$2", "@bob:local", "second", reconcilerNow.Add(-time.Minute)),
		{ID: "$topic", Type: "m.room.topic", RoomID: roomID, Timestamp: reconcilerNow.Add(-3 * time.Minute)},
		liveMessage("$1", "@alice:local", "first", reconcilerNow.Add(-2*time.Minute)),
	}
	r, _ := newTestReconciler(t, client, nil)

	require.NoError(t, r.SelectRoom(context.Background(), roomID))

	assert.Equal(t, []string{"$1", "$2"}, messageIDs(r.Messages()))
	assert.Equal(t, []string{roomID}, client.backfills)
	assert.Equal(t, 1, client.subscriptions(roomID))
	assert.Equal(t, roomID, r.CurrentRoom())
}

func TestSelectRoomKeepsEventArrivingWhileHistoryLoads(t *testing.T) {
	client := newFakeChatClient("@alice:local")
	client.events[roomID] = []domain.TimelineEvent{
		liveMessage("$1", "@bob:local", "old", reconcilerNow.Add(-time.Minute)),
	}
	late := liveMessage("$late", "@bob:local", "just now", reconcilerNow)
	client.afterRoomEvents = func(string) {
		client.mu.Lock()
		client.events[roomID] = append(client.events[roomID], late)
		client.mu.Unlock()
		client.emit(late)
	}
	r, _ := newTestReconciler(t, client, nil)

	require.NoError(t, r.SelectRoom(context.Background(), roomID))
	assert.Equal(t, []string{"$1", "$late"}, messageIDs(r.Messages()))

	client.afterRoomEvents = nil
	client.emit(late)
	assert.Equal(t, []string{"$1", "$late"}, messageIDs(r.Messages()))
}

func TestTimelineUpdatesCarryIncreasingSeq(t *testing.T) {
	client := newFakeChatClient("@alice:local")
	r, _ := newTestReconciler(t, client, nil)

	var mu sync.Mutex
	var seqs []uint64
	sub := r.Subscribe(func(u TimelineUpdate) {
		mu.Lock()
		defer mu.Unlock()
		seqs = append(seqs, u.Seq)
	})
	defer sub.Close()

	require.NoError(t, r.SelectRoom(context.Background(), roomID))
	client.emit(liveMessage("$1", "@bob:local", "one", reconcilerNow))
	client.emit(liveMessage("$2", "@bob:local", "two", reconcilerNow.Add(time.Second)))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seqs, 3)
	for i := 1; i < len(seqs); i++ {
		assert.Greater(t, seqs[i], seqs[i-1])
	}
}

func TestSelectRoomReleasesPreviousSubscriptionOnce(t *testing.T) {
	client := newFakeChatClient("@alice:local")
	r, _ := newTestReconciler(t, client, nil)

	require.NoError(t, r.SelectRoom(context.Background(), roomID))
	require.NoError(t, r.SelectRoom(context.Background(), "!other:local"))
	require.NoError(t, r.SelectRoom(context.Background(), roomID))

	assert.Equal(t, 1, client.subscriptions(roomID))
	assert.Equal(t, 0, client.subscriptions("!other:local"))

	r.Close()
	assert.Equal(t, 0, client.subscriptions(roomID))
}

func TestSendMessageUpgradedByLiveEcho(t *testing.T) {
	client := newFakeChatClient("@alice:local")
	r, _ := newTestReconciler(t, client, nil, "t1")
	require.NoError(t, r.SelectRoom(context.Background(), roomID))

	client.onSend = func(room, body, txnID string) (string, error) {
		pending := r.Messages()
		require.Len(t, pending, 1)
		assert.Equal(t, "t1", pending[0].ID)
		assert.Equal(t, domain.MessagePending, pending[0].Status)

		client.emit(liveMessage("$ev1", "@alice:local", body, reconcilerNow.Add(2*time.Second)))
		return "$ev1", nil
	}

	sent, err := r.SendMessage(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "$ev1", sent.ID)

	messages := r.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "$ev1", messages[0].ID)
	assert.Equal(t, domain.MessageSent, messages[0].Status)
	assert.Equal(t, "t1", messages[0].TransactionID)
}

func TestSendMessageKeepsPendingSlotWhenEchoArrivesFirst(t *testing.T) {
	client := newFakeChatClient("@alice:local")
	r, _ := newTestReconciler(t, client, nil, "t1")
	require.NoError(t, r.SelectRoom(context.Background(), roomID))

	client.onSend = func(room, body, txnID string) (string, error) {
		client.emit(liveMessage("$bob", "@bob:local", "interleaved", reconcilerNow))
		client.emit(liveMessage("$ev1", "@alice:local", body, reconcilerNow))
		client.emit(liveMessage("$ev1", "@alice:local", body, reconcilerNow))
		return "$ev1", nil
	}

	_, err := r.SendMessage(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []string{"$ev1", "$bob"}, messageIDs(r.Messages()))
}

func TestSendMessageFailureLeavesFailedEntryAndRetrySucceeds(t *testing.T) {
	client := newFakeChatClient("@alice:local")
	r, _ := newTestReconciler(t, client, nil, "t1", "t2")
	require.NoError(t, r.SelectRoom(context.Background(), roomID))

	client.onSend = func(string, string, string) (string, error) {
		return "", errUnreachable
	}
	failed, err := r.SendMessage(context.Background(), "hi")
	require.ErrorIs(t, err, domain.ErrSendFailure)
	assert.Equal(t, domain.MessageFailed, failed.Status)

	messages := r.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, domain.MessageFailed, messages[0].Status)

	client.onSend = func(_, body, txnID string) (string, error) {
		assert.Equal(t, "hi", body)
		assert.Equal(t, "t2", txnID)
		return "$ev9", nil
	}
	sent, err := r.RetrySend(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "$ev9", sent.ID)
	assert.Equal(t, domain.MessageSent, sent.Status)
	assert.Equal(t, []string{"$ev9"}, messageIDs(r.Messages()))
}

func TestRetrySendRejectsNonFailedEntries(t *testing.T) {
	client := newFakeChatClient("@alice:local")
	r, _ := newTestReconciler(t, client, nil, "t1", "t2", "t3")
	require.NoError(t, r.SelectRoom(context.Background(), roomID))

	sent, err := r.SendMessage(context.Background(), "hi")
	require.NoError(t, err)

	_, err = r.RetrySend(context.Background(), sent.ID)
	require.ErrorIs(t, err, domain.ErrMessageNotRetryable)

	_, err = r.RetrySend(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrMessageNotFound)
	assert.Equal(t, 1, client.sendCount())
}

func TestSendMessagePreconditions(t *testing.T) {
	client := newFakeChatClient("@alice:local")
	r, sessions := newTestReconciler(t, client, nil)

	_, err := r.SendMessage(context.Background(), "hi")
	require.ErrorIs(t, err, domain.ErrNoRoomSelected)

	require.NoError(t, r.SelectRoom(context.Background(), roomID))
	_, err = r.SendMessage(context.Background(), "   ")
	require.ErrorIs(t, err, domain.ErrEmptyMessage)

	sessions.setClient(nil)
	_, err = r.SendMessage(context.Background(), "hi")
	require.ErrorIs(t, err, domain.ErrNotConnected)
	assert.Zero(t, client.sendCount())
}

func TestSendMessageToBlockedDirectPartnerIsRejected(t *testing.T) {
	client := newFakeChatClient("@alice:local")
	client.members[roomID] = []string{"@alice:local", "@mallory:local"}
	r, _ := newTestReconciler(t, client, staticBlocks{"@mallory:local": true})
	require.NoError(t, r.SelectRoom(context.Background(), roomID))

	_, err := r.SendMessage(context.Background(), "hi")
	require.ErrorIs(t, err, domain.ErrBlockedParticipant)
	assert.Zero(t, client.sendCount())
	assert.Empty(t, r.Messages())
}

func TestSendMessageInGroupRoomIgnoresBlockedMember(t *testing.T) {
	client := newFakeChatClient("@alice:local")
	client.members[roomID] = []string{"@alice:local", "@mallory:local", "@bob:local"}
	r, _ := newTestReconciler(t, client, staticBlocks{"@mallory:local": true}, "t1")
	require.NoError(t, r.SelectRoom(context.Background(), roomID))

	_, err := r.SendMessage(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, 1, client.sendCount())
}

func TestVisibleHidesBlockedSenders(t *testing.T) {
	client := newFakeChatClient("@alice:local")
	client.events[roomID] = []domain.TimelineEvent{
		liveMessage("$1", "@bob:local", "hello", reconcilerNow.Add(-2*time.Minute)),
		liveMessage("$2", "@mallory:local", "spam", reconcilerNow.Add(-time.Minute)),
	}
	r, _ := newTestReconciler(t, client, staticBlocks{"@mallory:local": true})
	require.NoError(t, r.SelectRoom(context.Background(), roomID))

	assert.Equal(t, []string{"$1", "$2"}, messageIDs(r.Messages()))
	assert.Equal(t, []string{"$1"}, messageIDs(r.Visible()))
}

func TestReceiptPollingMergesAndSurvivesFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	client := newFakeChatClient("@alice:local")
	client.events[roomID] = []domain.TimelineEvent{
		liveMessage("$1", "@alice:local", "one", reconcilerNow.Add(-3*time.Minute)),
		liveMessage("$2", "@mallory:local", "two", reconcilerNow.Add(-2*time.Minute)),
		liveMessage("$3", "@bob:local", "three", reconcilerNow.Add(-time.Minute)),
	}
	client.receiptErrs["$1"] = errors.New("receipt query failed")
	client.setReceipts("$2", "@alice:local")
	client.setReceipts("$3", "@alice:local", "@carol:local")

	sessions := &fakeSessions{}
	sessions.setClient(client)
	cfg := TimelineConfig{ReceiptInterval: 5 * time.Millisecond}
	r := NewTimelineReconciler(sessions, staticBlocks{"@mallory:local": true}, mocks.NewMockIDGenerator(t), fixedClock{now: reconcilerNow}, cfg, zerolog.Nop())

	var (
		mu      sync.Mutex
		updates int
	)
	r.Subscribe(func(TimelineUpdate) {
		mu.Lock()
		defer mu.Unlock()
		updates++
	})

	require.NoError(t, r.SelectRoom(context.Background(), roomID))
	require.Eventually(t, func() bool {
		for _, m := range r.Messages() {
			if m.ID == "$3" {
				return len(m.Receipts) == 2
			}
		}
		return false
	}, time.Second, time.Millisecond)

	client.setReceipts("$1", "@bob:local")
	client.mu.Lock()
	delete(client.receiptErrs, "$1")
	client.mu.Unlock()
	require.Eventually(t, func() bool {
		return len(r.Messages()[0].Receipts) == 1
	}, time.Second, time.Millisecond)

	messages := r.Messages()
	assert.Empty(t, messages[1].Receipts, "blocked sender is skipped")
	assert.Equal(t, []string{"@alice:local", "@carol:local"}, messages[2].Receipts)

	r.Close()
	mu.Lock()
	settled := updates
	mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, settled, updates, "no updates after Close")
}

func TestClientChangeReattachesSelectedRoom(t *testing.T) {
	first := newFakeChatClient("@alice:local")
	first.events[roomID] = []domain.TimelineEvent{liveMessage("$old", "@bob:local", "old", reconcilerNow)}
	r, sessions := newTestReconciler(t, first, nil)
	require.NoError(t, r.SelectRoom(context.Background(), roomID))
	require.Equal(t, []string{"$old"}, messageIDs(r.Messages()))

	sessions.setClient(nil)
	assert.Equal(t, 0, first.subscriptions(roomID))
	assert.Empty(t, r.Messages())

	second := newFakeChatClient("@alice:local")
	second.events[roomID] = []domain.TimelineEvent{liveMessage("$new", "@bob:local", "new", reconcilerNow)}
	sessions.setClient(second)

	require.Eventually(t, func() bool { return second.subscriptions(roomID) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"$new"}, messageIDs(r.Messages()))

	first.emit(liveMessage("$stale", "@bob:local", "stale", reconcilerNow))
	assert.Equal(t, []string{"$new"}, messageIDs(r.Messages()))
}

func TestRoomsListsJoinedRooms(t *testing.T) {
	client := newFakeChatClient("@alice:local")
	client.rooms = []domain.Room{{ID: roomID, Name: "bob"}}
	r, sessions := newTestReconciler(t, client, nil)

	rooms, err := r.Rooms(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Room{{ID: roomID, Name: "bob"}}, rooms)

	sessions.setClient(nil)
	_, err = r.Rooms(context.Background())
	require.ErrorIs(t, err, domain.ErrNotConnected)
}
