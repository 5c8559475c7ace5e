package tui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/swarmchat/internal/application"
	"github.com/bnema/swarmchat/internal/domain"
	"github.com/bnema/swarmchat/internal/ports"
)

type fakeTimeline struct {
	mu       sync.Mutex
	rooms    []domain.Room
	current  string
	messages map[string][]domain.Message
	sent     []string
	retried  []string
}

func (f *fakeTimeline) Rooms(context.Context) ([]domain.Room, error) {
	return f.rooms, nil
}

func (f *fakeTimeline) SelectRoom(_ context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = roomID
	return nil
}

func (f *fakeTimeline) CurrentRoom() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeTimeline) Messages() []domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[f.current]
}

func (f *fakeTimeline) SendMessage(_ context.Context, body string) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, body)
	return domain.Message{Body: body, Status: domain.MessagePending}, nil
}

func (f *fakeTimeline) RetrySend(_ context.Context, idOrTxn string) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retried = append(f.retried, idOrTxn)
	return domain.Message{}, nil
}

func (f *fakeTimeline) Subscribe(func(application.TimelineUpdate)) ports.Subscription {
	return ports.NewSubscription(nil)
}

type fakeModeration struct {
	mu      sync.Mutex
	blocked map[string]bool
	err     error
}

func (f *fakeModeration) Add(_ context.Context, _ domain.ListKind, id string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.blocked[id] = true
	return nil, nil
}

func (f *fakeModeration) Remove(_ context.Context, _ domain.ListKind, id string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blocked, id)
	return nil, nil
}

func (f *fakeModeration) IsBlocked(userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blocked[userID]
}

func (f *fakeModeration) Subscribe(func(application.ModerationUpdate)) ports.Subscription {
	return ports.NewSubscription(nil)
}

type fakeSessions struct{}

func (fakeSessions) Session() domain.Session {
	return domain.Session{State: domain.SessionConnected, UserID: "@alice:local", Authenticated: true}
}

func (fakeSessions) Subscribe(func(application.SessionEvent)) ports.Subscription {
	return ports.NewSubscription(nil)
}

var testNow = time.Date(2026, 2, 14, 11, 0, 0, 0, time.UTC)

func newTestModel(t *testing.T) (Model, *fakeTimeline, *fakeModeration) {
	t.Helper()

	timeline := &fakeTimeline{
		rooms: []domain.Room{{ID: "!general:local", Name: "General"}, {ID: "!dm:local"}},
		messages: map[string][]domain.Message{
			"!general:local": {
				{ID: "$1", Sender: "@bob:local", Body: "hello there", Timestamp: testNow, Status: domain.MessageSent},
				{ID: "$2", Sender: "@mallory:local", Body: "spam", Timestamp: testNow, Status: domain.MessageSent},
				{ID: "txn-9", TransactionID: "txn-9", Sender: "@alice:local", Body: "lost reply", Timestamp: testNow, Status: domain.MessageFailed},
			},
		},
	}
	moderation := &fakeModeration{blocked: map[string]bool{"@mallory:local": true}}

	m := NewModel(context.Background(), Deps{
		Timeline:   timeline,
		Moderation: moderation,
		Sessions:   fakeSessions{},
		Now:        func() time.Time { return testNow },
	})
	m = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 30})
	return m, timeline, moderation
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model
}

// press sends msg and runs the resulting command once, feeding its message back.
func press(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, cmd := m.Update(msg)
	model := next.(Model)
	if cmd == nil {
		return model
	}
	return update(t, model, cmd())
}

func enter() tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyEnter}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func loadRooms(t *testing.T, m Model) Model {
	t.Helper()
	m = press(t, m, roomsLoadedMsg{rooms: m.deps.Timeline.(*fakeTimeline).rooms})
	require.Equal(t, "!general:local", m.roomID)
	return m
}

func TestModelSelectsFirstRoomAndHidesBlockedSenders(t *testing.T) {
	m, _, _ := newTestModel(t)
	m = loadRooms(t, m)

	view := m.View()
	assert.Contains(t, view, "General")
	assert.Contains(t, view, "!dm:local")
	assert.Contains(t, view, "hello there")
	assert.Contains(t, view, "lost reply [failed]")
	assert.NotContains(t, view, "spam")
	assert.Contains(t, view, "@alice:local")
}

func TestModelModerationChangeRefilters(t *testing.T) {
	m, _, moderation := newTestModel(t)
	m = loadRooms(t, m)

	moderation.mu.Lock()
	delete(moderation.blocked, "@mallory:local")
	moderation.mu.Unlock()

	m = update(t, m, moderationMsg{Kind: domain.ListBlocked})
	assert.Contains(t, m.View(), "spam")
}

func TestModelEnterSendsComposerText(t *testing.T) {
	m, timeline, _ := newTestModel(t)
	m = loadRooms(t, m)

	m.input.SetValue("  see you soon ")
	m = press(t, m, enter())

	assert.Equal(t, []string{"see you soon"}, timeline.sent)
	assert.Empty(t, m.input.Value())
	assert.NoError(t, m.err)
}

func TestModelRetryCommandTargetsLastFailedMessage(t *testing.T) {
	m, timeline, _ := newTestModel(t)
	m = loadRooms(t, m)

	m.input.SetValue("/retry")
	m = press(t, m, enter())

	assert.Equal(t, []string{"txn-9"}, timeline.retried)
	assert.Contains(t, m.View(), "resent")
}

func TestModelBlockSelectedSender(t *testing.T) {
	m, _, moderation := newTestModel(t)
	m = loadRooms(t, m)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, focusMessages, m.focus)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	selected, ok := m.selectedMessage()
	require.True(t, ok)
	require.Equal(t, "@bob:local", selected.Sender)

	m = press(t, m, runes("b"))
	assert.True(t, moderation.IsBlocked("@bob:local"))
	assert.Contains(t, m.View(), "blocked @bob:local")
}

func TestModelRefusesToBlockSelf(t *testing.T) {
	m, _, moderation := newTestModel(t)
	m = loadRooms(t, m)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyUp})

	m = press(t, m, runes("b"))
	assert.ErrorContains(t, m.err, "cannot block yourself")
	assert.False(t, moderation.IsBlocked("@alice:local"))
}

func TestModelUnblockAndErrors(t *testing.T) {
	m, _, moderation := newTestModel(t)
	m = loadRooms(t, m)

	m.input.SetValue("/unblock @mallory:local")
	m = press(t, m, enter())
	assert.False(t, moderation.IsBlocked("@mallory:local"))

	moderation.err = domain.ErrInvalidUserID
	m.input.SetValue("/block bob")
	m = press(t, m, enter())
	assert.True(t, errors.Is(m.err, domain.ErrInvalidUserID))

	m.input.SetValue("/dance")
	m = press(t, m, enter())
	assert.Contains(t, m.View(), "unknown command /dance")
}

func TestModelIgnoresOtherRoomUpdates(t *testing.T) {
	m, _, _ := newTestModel(t)
	m = loadRooms(t, m)

	m = update(t, m, timelineMsg{RoomID: "!dm:local", Messages: []domain.Message{{ID: "$x", Sender: "@bob:local", Body: "elsewhere"}}})
	assert.NotContains(t, m.View(), "elsewhere")

	m = update(t, m, timelineMsg{RoomID: "!general:local", Messages: []domain.Message{{ID: "$y", Sender: "@bob:local", Body: "fresh", Timestamp: testNow, Status: domain.MessageSent}}})
	assert.Contains(t, m.View(), "fresh")
}

func TestModelDropsStaleTimelineUpdates(t *testing.T) {
	m, _, _ := newTestModel(t)
	m = loadRooms(t, m)

	newer := []domain.Message{{ID: "$b", Sender: "@bob:local", Body: "second", Timestamp: testNow, Status: domain.MessageSent}}
	older := []domain.Message{{ID: "$a", Sender: "@bob:local", Body: "first only", Timestamp: testNow, Status: domain.MessageSent}}

	m = update(t, m, timelineMsg{Seq: 7, RoomID: "!general:local", Messages: newer})
	m = update(t, m, timelineMsg{Seq: 6, RoomID: "!general:local", Messages: older})
	assert.Contains(t, m.View(), "second")
	assert.NotContains(t, m.View(), "first only")
	assert.Equal(t, uint64(7), m.timelineSeq)

	m = update(t, m, timelineMsg{Seq: 8, RoomID: "!general:local", Messages: older})
	assert.Contains(t, m.View(), "first only")
}

func TestModelRoomPaneNavigation(t *testing.T) {
	m, timeline, _ := newTestModel(t)
	m = loadRooms(t, m)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, focusRooms, m.focus)
	m = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m = press(t, m, enter())

	assert.Equal(t, "!dm:local", m.roomID)
	assert.Equal(t, "!dm:local", timeline.CurrentRoom())
	assert.Contains(t, m.View(), "No messages.")
}
