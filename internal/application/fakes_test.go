package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/bnema/swarmchat/internal/domain"
	"github.com/bnema/swarmchat/internal/ports"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

func mockAnyContext() interface{} {
	return mock.Anything
}

func notFound(key string) error {
	return fmt.Errorf("%w: %s", domain.ErrCredentialNotFound, key)
}

type memStore struct {
	mu     sync.Mutex
	values map[string]string
	putErr error
}

func newMemStore() *memStore {
	return &memStore{values: map[string]string{}}
}

func (s *memStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	if !ok {
		return "", notFound(key)
	}
	return value, nil
}

func (s *memStore) Put(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.values[key] = value
	return nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return notFound(key)
	}
	delete(s.values, key)
	return nil
}

func (s *memStore) value(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	return value, ok
}

// fakeNode publishes scripted snapshots the way NodeMonitor does.
type fakeNode struct {
	mu        sync.Mutex
	snapshot  NodeSnapshot
	listeners listeners[NodeSnapshot]
}

func (n *fakeNode) Snapshot() NodeSnapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.snapshot
}

func (n *fakeNode) Subscribe(fn func(NodeSnapshot)) ports.Subscription {
	return n.listeners.add(fn)
}

func (n *fakeNode) set(status domain.NodeStatus) {
	n.mu.Lock()
	n.snapshot = NodeSnapshot{Seq: n.snapshot.Seq + 1, Status: status, Ready: status.Ready(true)}
	snapshot := n.snapshot
	n.mu.Unlock()
	n.listeners.notify(snapshot)
}

func runningOn(port int) domain.NodeStatus {
	return domain.NodeStatus{State: domain.NodeRunning, ClientPort: domain.IntPtr(port)}
}

// fakeSessions stands in for the session connector.
type fakeSessions struct {
	mu        sync.Mutex
	seq       uint64
	client    ports.ChatClient
	listeners listeners[SessionEvent]
}

func (s *fakeSessions) Client() (ports.ChatClient, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client, s.client != nil
}

func (s *fakeSessions) Subscribe(fn func(SessionEvent)) ports.Subscription {
	return s.listeners.add(fn)
}

func (s *fakeSessions) setClient(client ports.ChatClient) {
	s.mu.Lock()
	s.seq++
	s.client = client
	state := domain.SessionConnected
	if client == nil {
		state = domain.SessionIdle
	}
	event := SessionEvent{Seq: s.seq, Session: domain.Session{State: state}, Client: client}
	s.mu.Unlock()
	s.listeners.notify(event)
}

type sentEvent struct {
	RoomID  string
	Type    string
	Content map[string]any
	TxnID   string
}

type timelineHandler struct {
	roomID string
	fn     func(domain.TimelineEvent)
}

// fakeChatClient is an in-memory ChatClient. Live events are delivered by
// emit, synchronously and in call order.
type fakeChatClient struct {
	mu            sync.Mutex
	userID        string
	authenticated bool
	started       int
	stopped       int

	rooms      []domain.Room
	members    map[string][]string
	membersErr error
	events     map[string][]domain.TimelineEvent
	// afterRoomEvents runs once RoomEvents has taken its snapshot.
	afterRoomEvents func(roomID string)
	backfillErr     error
	backfills       []string

	onSend    func(roomID, body, txnID string) (string, error)
	sends     []sentEvent
	nextEvent int

	accountData    map[string][]byte
	accountDataErr error
	setDataErr     error
	setDataCalls   int

	receipts     map[string][]string
	receiptErrs  map[string]error
	receiptCalls int

	nextHandler int
	handlers    map[int]timelineHandler
}

func newFakeChatClient(userID string) *fakeChatClient {
	return &fakeChatClient{
		userID:        userID,
		authenticated: userID != "",
		members:       map[string][]string{},
		events:        map[string][]domain.TimelineEvent{},
		accountData:   map[string][]byte{},
		receipts:      map[string][]string{},
		receiptErrs:   map[string]error{},
		handlers:      map[int]timelineHandler{},
	}
}

func (c *fakeChatClient) UserID() string {
	return c.userID
}

func (c *fakeChatClient) Authenticated() bool {
	return c.authenticated
}

func (c *fakeChatClient) Start(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started++
	return nil
}

func (c *fakeChatClient) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped++
}

func (c *fakeChatClient) stopCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *fakeChatClient) JoinedRooms(context.Context) ([]domain.Room, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.rooms), nil
}

func (c *fakeChatClient) RoomMembers(_ context.Context, roomID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.membersErr != nil {
		return nil, c.membersErr
	}
	return slices.Clone(c.members[roomID]), nil
}

func (c *fakeChatClient) Backfill(_ context.Context, roomID string, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backfills = append(c.backfills, roomID)
	return c.backfillErr
}

func (c *fakeChatClient) RoomEvents(_ context.Context, roomID string) ([]domain.TimelineEvent, error) {
	c.mu.Lock()
	events := slices.Clone(c.events[roomID])
	after := c.afterRoomEvents
	c.mu.Unlock()

	if after != nil {
		after(roomID)
	}
	return events, nil
}

func (c *fakeChatClient) SubscribeTimeline(roomID string, handler func(domain.TimelineEvent)) ports.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextHandler
	c.nextHandler++
	c.handlers[id] = timelineHandler{roomID: roomID, fn: handler}
	return ports.NewSubscription(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers, id)
	})
}

func (c *fakeChatClient) subscriptions(roomID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, h := range c.handlers {
		if h.roomID == roomID {
			n++
		}
	}
	return n
}

func (c *fakeChatClient) emit(ev domain.TimelineEvent) {
	c.mu.Lock()
	var fns []func(domain.TimelineEvent)
	for id := 0; id < c.nextHandler; id++ {
		if h, ok := c.handlers[id]; ok && h.roomID == ev.RoomID {
			fns = append(fns, h.fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (c *fakeChatClient) SendEvent(_ context.Context, roomID, eventType string, content map[string]any, txnID string) (string, error) {
	c.mu.Lock()
	c.sends = append(c.sends, sentEvent{RoomID: roomID, Type: eventType, Content: content, TxnID: txnID})
	onSend := c.onSend
	c.nextEvent++
	eventID := fmt.Sprintf("$ev%d", c.nextEvent)
	c.mu.Unlock()

	if onSend != nil {
		body, _ := content["body"].(string)
		return onSend(roomID, body, txnID)
	}
	return eventID, nil
}

func (c *fakeChatClient) sendCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sends)
}

func (c *fakeChatClient) AccountData(_ context.Context, eventType string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accountDataErr != nil {
		return nil, c.accountDataErr
	}
	raw, ok := c.accountData[eventType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountDataNotFound, eventType)
	}
	return raw, nil
}

func (c *fakeChatClient) SetAccountData(_ context.Context, eventType string, content any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setDataCalls++
	if c.setDataErr != nil {
		return c.setDataErr
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return err
	}
	c.accountData[eventType] = raw
	return nil
}

func (c *fakeChatClient) EventReceipts(_ context.Context, _ string, eventID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receiptCalls++
	if err := c.receiptErrs[eventID]; err != nil {
		return nil, err
	}
	return slices.Clone(c.receipts[eventID]), nil
}

func (c *fakeChatClient) setReceipts(eventID string, users ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receipts[eventID] = users
}

var errUnreachable = errors.New("dial tcp 127.0.0.1:8008: connection refused")
