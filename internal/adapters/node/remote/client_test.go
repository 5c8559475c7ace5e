package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bnema/swarmchat/internal/adapters/node/httpapi"
	"github.com/bnema/swarmchat/internal/domain"
	"github.com/bnema/swarmchat/internal/ports"
	"github.com/bnema/swarmchat/internal/ports/mocks"
)

// fakeLogs is a log source that keeps every subscriber and a fixed backlog.
type fakeLogs struct {
	mu      sync.Mutex
	subs    []func(domain.NodeLogEvent)
	backlog []domain.NodeLogEvent
}

func (l *fakeLogs) SubscribeLogs(handler func(domain.NodeLogEvent)) ports.Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs = append(l.subs, handler)
	return ports.NewSubscription(nil)
}

func (l *fakeLogs) Backlog() []domain.NodeLogEvent {
	return l.backlog
}

func (l *fakeLogs) subscribed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs) > 0
}

func (l *fakeLogs) emit(ev domain.NodeLogEvent) {
	l.mu.Lock()
	subs := slices.Clone(l.subs)
	l.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func newSupervisorAPI(t *testing.T, logs ports.NodeLogSource) (*mocks.MockNodeProbe, *Client) {
	t.Helper()

	probe := mocks.NewMockNodeProbe(t)
	api := httpapi.NewServer(probe, logs, zerolog.Nop())
	server := httptest.NewServer(api.Handler())
	t.Cleanup(func() {
		api.Close()
		server.Close()
	})

	return probe, &Client{
		BaseURL:        server.URL,
		HTTPClient:     server.Client(),
		RequestTimeout: time.Second,
		ReconnectDelay: 10 * time.Millisecond,
		Logger:         zerolog.Nop(),
	}
}

func TestClientStatusNormalizesState(t *testing.T) {
	probe, client := newSupervisorAPI(t, nil)

	probe.EXPECT().Status(mock.Anything).Return(domain.NodeStatus{State: "RUNNING", ClientPort: domain.IntPtr(8008)}, nil).Once()
	probe.EXPECT().Status(mock.Anything).Return(domain.NodeStatus{State: "rebooting"}, nil).Once()

	status, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.NodeRunning, status.State)
	assert.True(t, status.Ready(true))

	status, err = client.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.NodeUnknown, status.State)
}

func TestClientLifecycleErrorsRoundTrip(t *testing.T) {
	probe, client := newSupervisorAPI(t, nil)

	probe.EXPECT().Start(mock.Anything).Return(domain.ErrNodeAlreadyRunning).Once()
	probe.EXPECT().Stop(mock.Anything).Return(domain.ErrNodeNotRunning).Once()
	probe.EXPECT().Start(mock.Anything).Return(nil).Once()

	require.ErrorIs(t, client.Start(context.Background()), domain.ErrNodeAlreadyRunning)
	require.ErrorIs(t, client.Stop(context.Background()), domain.ErrNodeNotRunning)
	require.NoError(t, client.Start(context.Background()))
}

func TestClientStatusUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	client := &Client{BaseURL: server.URL, RequestTimeout: time.Second}
	_, err := client.Status(context.Background())
	require.ErrorContains(t, err, "query node status")
}

func TestClientRejectsBadURL(t *testing.T) {
	client := &Client{BaseURL: "unix:///run/node.sock"}
	_, err := client.Status(context.Background())
	require.ErrorContains(t, err, "http or https")
}

func TestClientFetchBacklog(t *testing.T) {
	logs := &fakeLogs{backlog: []domain.NodeLogEvent{
		{Stream: domain.NodeLogStderr, Line: "warming up"},
		{Stream: domain.NodeLogPort, Port: 8008},
	}}
	_, client := newSupervisorAPI(t, logs)

	events, err := client.FetchBacklog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, logs.backlog, events)
	assert.False(t, logs.subscribed())
}

func TestClientFetchBacklogWithoutLogSource(t *testing.T) {
	_, client := newSupervisorAPI(t, nil)

	_, err := client.FetchBacklog(context.Background())
	require.ErrorContains(t, err, "fetch node logs")
}

func TestClientFollowsEventStream(t *testing.T) {
	logs := &fakeLogs{backlog: []domain.NodeLogEvent{{Stream: domain.NodeLogStderr, Line: "warming up"}}}
	_, client := newSupervisorAPI(t, logs)

	received := make(chan domain.NodeLogEvent, 8)
	sub := client.SubscribeLogs(func(ev domain.NodeLogEvent) { received <- ev })

	select {
	case ev := <-received:
		assert.Equal(t, "warming up", ev.Line)
	case <-time.After(5 * time.Second):
		t.Fatal("backlog not replayed")
	}

	require.Eventually(t, logs.subscribed, time.Second, 5*time.Millisecond)
	logs.emit(domain.NodeLogEvent{Stream: domain.NodeLogPort, Port: 8448})

	select {
	case ev := <-received:
		assert.Equal(t, 8448, ev.Port)
	case <-time.After(5 * time.Second):
		t.Fatal("live event not delivered")
	}

	sub.Close()
	sub.Close()
}
