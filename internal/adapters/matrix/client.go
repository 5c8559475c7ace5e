package matrix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bnema/swarmchat/internal/domain"
	"github.com/bnema/swarmchat/internal/ports"
)

const maxRoomEvents = 500

// Client is a ports.ChatClient bound to one homeserver and access token.
// Timeline handlers run on the sync goroutine, never under the client lock.
type Client struct {
	api        *api
	userID     string
	deviceID   string
	syncWait   time.Duration
	retryDelay time.Duration
	logger     zerolog.Logger

	mu          sync.Mutex
	since       string
	rooms       map[string]*roomState
	handlers    map[int]timelineHandler
	nextHandler int
	cancel      context.CancelFunc
	done        chan struct{}
}

type roomState struct {
	events    []domain.TimelineEvent
	seen      map[string]struct{}
	prevBatch string
	receipts  map[string][]string
}

type timelineHandler struct {
	roomID string
	fn     func(domain.TimelineEvent)
}

type delivery struct {
	fn func(domain.TimelineEvent)
	ev domain.TimelineEvent
}

var _ ports.ChatClient = (*Client)(nil)

func newClient(api *api, creds *domain.Credentials, syncWait, retryDelay time.Duration, logger zerolog.Logger) *Client {
	c := &Client{
		api:        api,
		syncWait:   syncWait,
		retryDelay: retryDelay,
		rooms:      map[string]*roomState{},
		handlers:   map[int]timelineHandler{},
	}
	if creds != nil {
		c.userID = creds.UserID
		c.deviceID = creds.DeviceID
	}
	c.logger = logger.With().Str("component", "matrix").Str("user_id", c.userID).Logger()
	return c
}

func (c *Client) UserID() string {
	return c.userID
}

func (c *Client) Authenticated() bool {
	return c.api.accessToken != ""
}

// Start runs one initial sync and then keeps syncing in the background
// until Stop. Anonymous clients do not sync.
func (c *Client) Start(ctx context.Context) error {
	if !c.Authenticated() {
		return nil
	}

	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.syncOnce(ctx, 0, false); err != nil {
		return fmt.Errorf("initial sync: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		cancel()
		return nil
	}
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		c.syncLoop(loopCtx)
	}()
	return nil
}

// Stop ends the sync loop and waits for it. It is safe to call more than once.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = func() {}
	c.mu.Unlock()

	if cancel == nil {
		// Never started; a later Start must stay a no-op.
		return
	}
	cancel()
	if done != nil {
		<-done
	}
}

func (c *Client) syncLoop(ctx context.Context) {
	for {
		err := c.syncOnce(ctx, c.syncWait, true)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			continue
		}

		c.logger.Warn().Err(err).Dur("retry_in", c.retryDelay).Msg("sync failed")
		timer := time.NewTimer(c.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (c *Client) syncOnce(ctx context.Context, wait time.Duration, dispatch bool) error {
	query := url.Values{}
	query.Set("timeout", strconv.FormatInt(wait.Milliseconds(), 10))

	c.mu.Lock()
	since := c.since
	c.mu.Unlock()
	if since != "" {
		query.Set("since", since)
	}

	var payload syncResponse
	if err := c.api.do(ctx, request{method: http.MethodGet, path: clientPath("sync"), query: query, extra: wait}, &payload); err != nil {
		return err
	}

	deliveries := c.applySync(payload, dispatch)
	for _, d := range deliveries {
		d.fn(d.ev)
	}
	return nil
}

// applySync folds a sync response into the room cache and returns the
// handler calls it triggers, in arrival order.
func (c *Client) applySync(payload syncResponse, dispatch bool) []delivery {
	c.mu.Lock()
	defer c.mu.Unlock()

	if payload.NextBatch != "" {
		c.since = payload.NextBatch
	}

	roomIDs := make([]string, 0, len(payload.Rooms.Join))
	for roomID := range payload.Rooms.Join {
		roomIDs = append(roomIDs, roomID)
	}
	slices.Sort(roomIDs)

	var deliveries []delivery
	for _, roomID := range roomIDs {
		joined := payload.Rooms.Join[roomID]
		room := c.roomLocked(roomID)
		if room.prevBatch == "" || joined.Timeline.Limited {
			room.prevBatch = joined.Timeline.PrevBatch
		}

		for _, raw := range joined.Ephemeral.Events {
			if raw.Type != "m.receipt" {
				continue
			}
			for eventID, users := range receiptsByEvent(raw.Content) {
				room.receipts[eventID] = domain.NormalizeUserSet(append(room.receipts[eventID], users...))
			}
		}

		for _, raw := range joined.Timeline.Events {
			ev := raw.timelineEvent(roomID)
			if !room.append(ev) || !dispatch {
				continue
			}
			for _, id := range c.handlerIDsLocked() {
				if h := c.handlers[id]; h.roomID == roomID {
					deliveries = append(deliveries, delivery{fn: h.fn, ev: ev})
				}
			}
		}
	}
	return deliveries
}

func (c *Client) handlerIDsLocked() []int {
	ids := make([]int, 0, len(c.handlers))
	for id := range c.handlers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (c *Client) roomLocked(roomID string) *roomState {
	room, ok := c.rooms[roomID]
	if !ok {
		room = &roomState{seen: map[string]struct{}{}, receipts: map[string][]string{}}
		c.rooms[roomID] = room
	}
	return room
}

// append adds ev at the tail and reports whether it was new.
func (r *roomState) append(ev domain.TimelineEvent) bool {
	if ev.ID != "" {
		if _, ok := r.seen[ev.ID]; ok {
			return false
		}
		r.seen[ev.ID] = struct{}{}
	}
	r.events = append(r.events, ev)
	if len(r.events) > maxRoomEvents {
		r.events = slices.Clone(r.events[len(r.events)-maxRoomEvents:])
	}
	return true
}

// prepend adds older events, oldest first, ahead of the cached ones.
func (r *roomState) prepend(older []domain.TimelineEvent) {
	fresh := make([]domain.TimelineEvent, 0, len(older))
	for _, ev := range older {
		if ev.ID != "" {
			if _, ok := r.seen[ev.ID]; ok {
				continue
			}
			r.seen[ev.ID] = struct{}{}
		}
		fresh = append(fresh, ev)
	}
	r.events = append(fresh, r.events...)
	if len(r.events) > maxRoomEvents {
		r.events = slices.Clone(r.events[len(r.events)-maxRoomEvents:])
	}
}

func (c *Client) JoinedRooms(ctx context.Context) ([]domain.Room, error) {
	var raw json.RawMessage
	if err := c.api.do(ctx, request{method: http.MethodGet, path: clientPath("joined_rooms")}, &raw); err != nil {
		return nil, fmt.Errorf("list joined rooms: %w", err)
	}

	ids := domain.DecodeRoomIDs(raw)
	rooms := make([]domain.Room, 0, len(ids))
	for _, id := range ids {
		rooms = append(rooms, domain.Room{ID: id, Name: c.roomName(ctx, id)})
	}
	return rooms, nil
}

// roomName resolves the m.room.name state; rooms without one get "".
func (c *Client) roomName(ctx context.Context, roomID string) string {
	var content roomNameContent
	err := c.api.do(ctx, request{method: http.MethodGet, path: clientPath("rooms", roomID, "state", "m.room.name", "")}, &content)
	if err != nil {
		if !isNotFound(err) {
			c.logger.Debug().Err(err).Str("room_id", roomID).Msg("room name lookup failed")
		}
		return ""
	}
	return content.Name
}

func (c *Client) RoomMembers(ctx context.Context, roomID string) ([]string, error) {
	var raw json.RawMessage
	if err := c.api.do(ctx, request{method: http.MethodGet, path: clientPath("rooms", roomID, "joined_members")}, &raw); err != nil {
		return nil, fmt.Errorf("list members of %s: %w", roomID, err)
	}
	return domain.DecodeMemberIDs(raw), nil
}

func (c *Client) Backfill(ctx context.Context, roomID string, limit int) error {
	if limit <= 0 {
		return nil
	}

	c.mu.Lock()
	from := c.roomLocked(roomID).prevBatch
	c.mu.Unlock()

	query := url.Values{}
	query.Set("dir", "b")
	query.Set("limit", strconv.Itoa(limit))
	if from != "" {
		query.Set("from", from)
	}

	var payload messagesResponse
	if err := c.api.do(ctx, request{method: http.MethodGet, path: clientPath("rooms", roomID, "messages"), query: query}, &payload); err != nil {
		return fmt.Errorf("backfill %s: %w", roomID, err)
	}

	// chunk is newest first.
	older := make([]domain.TimelineEvent, 0, len(payload.Chunk))
	for i := len(payload.Chunk) - 1; i >= 0; i-- {
		older = append(older, payload.Chunk[i].timelineEvent(roomID))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	room := c.roomLocked(roomID)
	room.prepend(older)
	if payload.End != "" {
		room.prevBatch = payload.End
	}
	return nil
}

func (c *Client) RoomEvents(_ context.Context, roomID string) ([]domain.TimelineEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	room, ok := c.rooms[roomID]
	if !ok {
		return []domain.TimelineEvent{}, nil
	}
	return slices.Clone(room.events), nil
}

func (c *Client) SubscribeTimeline(roomID string, handler func(domain.TimelineEvent)) ports.Subscription {
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

type sendResponse struct {
	EventID string `json:"event_id"`
}

func (c *Client) SendEvent(ctx context.Context, roomID, eventType string, content map[string]any, txnID string) (string, error) {
	var payload sendResponse
	req := request{method: http.MethodPut, path: clientPath("rooms", roomID, "send", eventType, txnID), body: content}
	if err := c.api.do(ctx, req, &payload); err != nil {
		return "", fmt.Errorf("send %s to %s: %w", eventType, roomID, err)
	}
	if payload.EventID == "" {
		return "", errors.New("send response is missing the event id")
	}
	return payload.EventID, nil
}

func (c *Client) AccountData(ctx context.Context, eventType string) ([]byte, error) {
	var raw json.RawMessage
	err := c.api.do(ctx, request{method: http.MethodGet, path: clientPath("user", c.userID, "account_data", eventType)}, &raw)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrAccountDataNotFound, eventType)
		}
		return nil, fmt.Errorf("read account data %s: %w", eventType, err)
	}
	return raw, nil
}

func (c *Client) SetAccountData(ctx context.Context, eventType string, content any) error {
	if err := c.api.do(ctx, request{method: http.MethodPut, path: clientPath("user", c.userID, "account_data", eventType), body: content}, nil); err != nil {
		return fmt.Errorf("write account data %s: %w", eventType, err)
	}
	return nil
}

// EventReceipts returns the users whose read receipts for eventID arrived
// through sync.
func (c *Client) EventReceipts(ctx context.Context, roomID, eventID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	room, ok := c.rooms[roomID]
	if !ok {
		return []string{}, nil
	}
	return slices.Clone(room.receipts[eventID]), nil
}
