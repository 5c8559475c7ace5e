package ports

import (
	"context"
	"sync"

	"github.com/bnema/swarmchat/internal/domain"
)

// Subscription is an owned listener registration. Close is idempotent.
type Subscription interface {
	Close()
}

// ChatConnector performs the unauthenticated calls against a server and
// opens clients bound to it.
type ChatConnector interface {
	// Probe checks the server answers on baseURL.
	Probe(ctx context.Context, baseURL string) error
	Login(ctx context.Context, baseURL, username, password string) (domain.Credentials, error)
	Register(ctx context.Context, baseURL, username, password string) (domain.Credentials, error)
	// Open builds a client; creds nil means an anonymous client.
	Open(baseURL string, creds *domain.Credentials) (ChatClient, error)
}

type ChatClient interface {
	UserID() string
	Authenticated() bool

	// Start begins background syncing; Stop ends it and waits.
	Start(ctx context.Context) error
	Stop()

	JoinedRooms(ctx context.Context) ([]domain.Room, error)
	RoomMembers(ctx context.Context, roomID string) ([]string, error)

	// Backfill asks the server for up to limit older events of the room.
	Backfill(ctx context.Context, roomID string, limit int) error
	// RoomEvents returns the events currently held for the room.
	RoomEvents(ctx context.Context, roomID string) ([]domain.TimelineEvent, error)
	// SubscribeTimeline delivers live events of roomID in arrival order.
	SubscribeTimeline(roomID string, handler func(domain.TimelineEvent)) Subscription

	SendEvent(ctx context.Context, roomID, eventType string, content map[string]any, txnID string) (string, error)

	AccountData(ctx context.Context, eventType string) ([]byte, error)
	SetAccountData(ctx context.Context, eventType string, content any) error

	EventReceipts(ctx context.Context, roomID, eventID string) ([]string, error)
}

type subscription struct {
	once    sync.Once
	release func()
}

// NewSubscription wraps release so that it runs at most once.
func NewSubscription(release func()) Subscription {
	return &subscription{release: release}
}

func (s *subscription) Close() {
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}
