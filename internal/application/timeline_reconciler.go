package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bnema/swarmchat/internal/domain"
	"github.com/bnema/swarmchat/internal/ports"
)

var ErrReconcilerClosed = errors.New("timeline reconciler closed")

const (
	DefaultBackfillLimit   = 30
	DefaultReceiptInterval = 5 * time.Second
)

type TimelineConfig struct {
	BackfillLimit   int
	ReceiptInterval time.Duration
	MatchWindow     time.Duration
}

func (c TimelineConfig) withDefaults() TimelineConfig {
	if c.BackfillLimit <= 0 {
		c.BackfillLimit = DefaultBackfillLimit
	}
	if c.ReceiptInterval <= 0 {
		c.ReceiptInterval = DefaultReceiptInterval
	}
	if c.MatchWindow <= 0 {
		c.MatchWindow = domain.DefaultMatchWindow
	}
	return c
}

// SessionSource is the part of the session connector that dependents use.
type SessionSource interface {
	Client() (ports.ChatClient, bool)
	Subscribe(fn func(SessionEvent)) ports.Subscription
}

type BlockChecker interface {
	IsBlocked(userID string) bool
}

// TimelineUpdate carries the full message list of a room after a change.
// Seq grows with every update; listeners may receive updates out of order
// and should drop those older than the last one applied.
type TimelineUpdate struct {
	Seq      uint64
	RoomID   string
	Messages []domain.Message
}

// TimelineReconciler keeps one RoomTimeline per room for the live client and
// feeds the selected room from history, live events, local sends and
// receipt polling.
type TimelineReconciler struct {
	sessions SessionSource
	blocks   BlockChecker
	ids      ports.IDGenerator
	clock    ports.Clock
	cfg      TimelineConfig
	logger   zerolog.Logger

	mu         sync.Mutex
	client     ports.ChatClient
	sessionSeq uint64
	roomID     string
	timelines  map[string]*domain.RoomTimeline
	updateSeq  uint64
	// gen changes on every room selection and client change. Async
	// continuations carrying an older gen must not touch state.
	gen        uint64
	sub        ports.Subscription
	stopPoll   context.CancelFunc
	closed     bool
	ctx        context.Context
	cancel     context.CancelFunc
	sessionSub ports.Subscription
	wg         sync.WaitGroup
	listeners  listeners[TimelineUpdate]
}

func NewTimelineReconciler(sessions SessionSource, blocks BlockChecker, ids ports.IDGenerator, clock ports.Clock, cfg TimelineConfig, logger zerolog.Logger) *TimelineReconciler {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())

	r := &TimelineReconciler{
		sessions:  sessions,
		blocks:    blocks,
		ids:       ids,
		clock:     clock,
		cfg:       cfg.withDefaults(),
		logger:    logger.With().Str("component", "timeline").Logger(),
		timelines: map[string]*domain.RoomTimeline{},
		ctx:       ctx,
		cancel:    cancel,
	}
	r.client, _ = sessions.Client()
	r.sessionSub = sessions.Subscribe(r.onSession)
	return r
}

// Close releases the room subscription, stops receipt polling and waits for
// background work.
func (r *TimelineReconciler) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.gen++
	r.releaseLocked()
	r.mu.Unlock()

	r.sessionSub.Close()
	r.cancel()
	r.wg.Wait()
}

func (r *TimelineReconciler) Subscribe(fn func(TimelineUpdate)) ports.Subscription {
	return r.listeners.add(fn)
}

func (r *TimelineReconciler) CurrentRoom() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roomID
}

// Rooms lists the rooms joined by the live client.
func (r *TimelineReconciler) Rooms(ctx context.Context) ([]domain.Room, error) {
	client, err := r.liveClient()
	if err != nil {
		return nil, err
	}

	rooms, err := client.JoinedRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("list joined rooms: %w", err)
	}
	return rooms, nil
}

// Messages returns the selected room's timeline.
func (r *TimelineReconciler) Messages() []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	tl, ok := r.timelines[r.roomID]
	if !ok {
		return []domain.Message{}
	}
	return tl.Messages()
}

// Visible is Messages without entries from blocked senders.
func (r *TimelineReconciler) Visible() []domain.Message {
	messages := r.Messages()
	if r.blocks == nil {
		return messages
	}

	visible := messages[:0]
	for _, m := range messages {
		if !r.blocks.IsBlocked(m.Sender) {
			visible = append(visible, m)
		}
	}
	return visible
}

// SelectRoom makes roomID the active room: the previous room's subscription
// and receipt polling are released, live events are subscribed and history
// is loaded. Events arriving while history loads land in the timeline and
// are deduplicated against it.
func (r *TimelineReconciler) SelectRoom(ctx context.Context, roomID string) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return domain.ErrNoRoomSelected
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrReconcilerClosed
	}
	client := r.client
	r.gen++
	gen := r.gen
	r.releaseLocked()
	r.roomID = roomID
	if client == nil {
		r.mu.Unlock()
		return domain.ErrNotConnected
	}
	tl := r.timelineLocked(roomID)
	r.mu.Unlock()

	logger := r.logger.With().Str("room_id", roomID).Logger()

	sub := client.SubscribeTimeline(roomID, func(ev domain.TimelineEvent) {
		r.onLive(gen, roomID, ev)
	})

	r.mu.Lock()
	if r.closed || r.gen != gen {
		r.mu.Unlock()
		sub.Close()
		return nil
	}
	r.sub = sub
	r.mu.Unlock()

	if err := client.Backfill(ctx, roomID, r.cfg.BackfillLimit); err != nil {
		logger.Debug().Err(err).Msg("backfill failed")
	}

	events, err := client.RoomEvents(ctx, roomID)
	if err != nil {
		logger.Warn().Err(err).Msg("read room events")
	}

	r.mu.Lock()
	if r.closed || r.gen != gen {
		r.mu.Unlock()
		return nil
	}
	tl.LoadHistory(events)
	update := r.updateLocked(roomID, tl)
	pollCtx, stop := context.WithCancel(r.ctx)
	r.stopPoll = stop
	r.wg.Add(1)
	r.mu.Unlock()

	r.listeners.notify(update)
	go r.pollReceipts(pollCtx, gen, client, roomID)

	logger.Debug().Int("messages", len(update.Messages)).Msg("room selected")
	return nil
}

// SendMessage appends a pending entry for body right away, then sends it.
// A failed send leaves the entry in place as Failed.
func (r *TimelineReconciler) SendMessage(ctx context.Context, body string) (domain.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return domain.Message{}, domain.ErrEmptyMessage
	}

	client, roomID, err := r.sendTarget(ctx)
	if err != nil {
		return domain.Message{}, err
	}

	txnID := r.ids.NewTransactionID()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return domain.Message{}, ErrReconcilerClosed
	}
	tl := r.timelineLocked(roomID)
	pending := tl.AppendPending(domain.Message{
		TransactionID: txnID,
		Sender:        client.UserID(),
		Body:          body,
		Timestamp:     r.clock.Now(),
	})
	update := r.updateLocked(roomID, tl)
	r.mu.Unlock()
	r.listeners.notify(update)

	return r.deliver(ctx, client, roomID, tl, pending)
}

// RetrySend resends a Failed entry, found by event or transaction id, under a
// fresh transaction id.
func (r *TimelineReconciler) RetrySend(ctx context.Context, idOrTxn string) (domain.Message, error) {
	client, roomID, err := r.sendTarget(ctx)
	if err != nil {
		return domain.Message{}, err
	}

	txnID := r.ids.NewTransactionID()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return domain.Message{}, ErrReconcilerClosed
	}
	tl := r.timelineLocked(roomID)
	pending, err := tl.PrepareRetry(idOrTxn, txnID, r.clock.Now())
	if err != nil {
		r.mu.Unlock()
		return domain.Message{}, fmt.Errorf("retry %s: %w", idOrTxn, err)
	}
	update := r.updateLocked(roomID, tl)
	r.mu.Unlock()
	r.listeners.notify(update)

	return r.deliver(ctx, client, roomID, tl, pending)
}

// sendTarget checks the send preconditions and returns the client and room.
func (r *TimelineReconciler) sendTarget(ctx context.Context) (ports.ChatClient, string, error) {
	r.mu.Lock()
	closed, client, roomID := r.closed, r.client, r.roomID
	r.mu.Unlock()

	switch {
	case closed:
		return nil, "", ErrReconcilerClosed
	case roomID == "":
		return nil, "", domain.ErrNoRoomSelected
	case client == nil:
		return nil, "", domain.ErrNotConnected
	}

	if partner, ok := r.directPartner(ctx, client, roomID); ok && r.isBlocked(partner) {
		return nil, "", fmt.Errorf("send to %s: %w", partner, domain.ErrBlockedParticipant)
	}
	return client, roomID, nil
}

// directPartner resolves the other member of a two-person room that
// includes the current user.
func (r *TimelineReconciler) directPartner(ctx context.Context, client ports.ChatClient, roomID string) (string, bool) {
	self := client.UserID()
	if self == "" {
		return "", false
	}

	members, err := client.RoomMembers(ctx, roomID)
	if err != nil {
		r.logger.Debug().Err(err).Str("room_id", roomID).Msg("resolve room members")
		return "", false
	}

	members = domain.NormalizeUserSet(members)
	if len(members) != 2 {
		return "", false
	}
	switch self {
	case members[0]:
		return members[1], true
	case members[1]:
		return members[0], true
	default:
		return "", false
	}
}

func (r *TimelineReconciler) deliver(ctx context.Context, client ports.ChatClient, roomID string, tl *domain.RoomTimeline, pending domain.Message) (domain.Message, error) {
	txnID := pending.TransactionID
	content := map[string]any{"msgtype": "m.text", "body": pending.Body}

	eventID, sendErr := client.SendEvent(ctx, roomID, domain.EventTypeMessage, content, txnID)

	r.mu.Lock()
	if r.closed || r.timelines[roomID] != tl {
		r.mu.Unlock()
		if sendErr != nil {
			return pending, fmt.Errorf("%w: %w", domain.ErrSendFailure, sendErr)
		}
		return pending, nil
	}

	var (
		result domain.Message
		err    error
	)
	if sendErr != nil {
		result, _ = tl.Fail(txnID)
		err = fmt.Errorf("%w: %w", domain.ErrSendFailure, sendErr)
	} else {
		result, _ = tl.Confirm(txnID, eventID)
	}
	update := r.updateLocked(roomID, tl)
	r.mu.Unlock()
	r.listeners.notify(update)

	if err != nil {
		r.logger.Warn().Err(sendErr).Str("room_id", roomID).Str("txn_id", txnID).Msg("send failed")
		return result, err
	}
	r.logger.Debug().Str("room_id", roomID).Str("txn_id", txnID).Str("event_id", eventID).Msg("message sent")
	return result, nil
}

func (r *TimelineReconciler) onLive(gen uint64, roomID string, ev domain.TimelineEvent) {
	r.mu.Lock()
	if r.closed || r.gen != gen {
		r.mu.Unlock()
		return
	}
	tl, ok := r.timelines[roomID]
	if !ok {
		r.mu.Unlock()
		return
	}

	outcome := tl.ApplyLive(ev, r.clock.Now())
	if outcome == domain.ApplyIgnored || outcome == domain.ApplyDuplicate {
		r.mu.Unlock()
		return
	}
	update := r.updateLocked(roomID, tl)
	r.mu.Unlock()

	r.logger.Debug().Str("room_id", roomID).Str("event_id", ev.ID).Stringer("outcome", outcome).Msg("live event applied")
	r.listeners.notify(update)
}

func (r *TimelineReconciler) pollReceipts(ctx context.Context, gen uint64, client ports.ChatClient, roomID string) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.ReceiptInterval)
	defer ticker.Stop()

	for {
		r.mergeReceipts(ctx, gen, client, roomID)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// mergeReceipts queries receipts for every Sent message from a non-blocked
// sender. One failed query does not stop the others.
func (r *TimelineReconciler) mergeReceipts(ctx context.Context, gen uint64, client ports.ChatClient, roomID string) {
	r.mu.Lock()
	if r.closed || r.gen != gen {
		r.mu.Unlock()
		return
	}
	tl := r.timelines[roomID]
	sent := tl.Sent()
	r.mu.Unlock()

	changed := false
	for _, m := range sent {
		if ctx.Err() != nil {
			return
		}
		if r.isBlocked(m.Sender) {
			continue
		}

		users, err := client.EventReceipts(ctx, roomID, m.ID)
		if err != nil {
			r.logger.Debug().Err(err).Str("room_id", roomID).Str("event_id", m.ID).Msg("receipt query failed")
			continue
		}

		r.mu.Lock()
		if r.closed || r.gen != gen {
			r.mu.Unlock()
			return
		}
		if tl.MergeReceipts(m.ID, users) {
			changed = true
		}
		r.mu.Unlock()
	}

	if !changed {
		return
	}

	r.mu.Lock()
	if r.closed || r.gen != gen {
		r.mu.Unlock()
		return
	}
	update := r.updateLocked(roomID, tl)
	r.mu.Unlock()
	r.listeners.notify(update)
}

// onSession swaps the client. Timelines belong to one client, so they are
// dropped, and the selected room is re-attached on the new client.
func (r *TimelineReconciler) onSession(ev SessionEvent) {
	r.mu.Lock()
	if r.closed || ev.Seq <= r.sessionSeq {
		r.mu.Unlock()
		return
	}
	r.sessionSeq = ev.Seq
	if ev.Client == r.client {
		r.mu.Unlock()
		return
	}

	r.gen++
	r.releaseLocked()
	r.client = ev.Client
	r.timelines = map[string]*domain.RoomTimeline{}
	roomID := r.roomID
	if ev.Client == nil || roomID == "" {
		r.updateSeq++
		cleared := TimelineUpdate{Seq: r.updateSeq, RoomID: roomID, Messages: []domain.Message{}}
		r.mu.Unlock()
		r.listeners.notify(cleared)
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		if err := r.SelectRoom(r.ctx, roomID); err != nil && !errors.Is(err, ErrReconcilerClosed) {
			r.logger.Warn().Err(err).Str("room_id", roomID).Msg("re-attach room")
		}
	}()
}

func (r *TimelineReconciler) liveClient() (ports.ChatClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrReconcilerClosed
	}
	if r.client == nil {
		return nil, domain.ErrNotConnected
	}
	return r.client, nil
}

func (r *TimelineReconciler) isBlocked(userID string) bool {
	return r.blocks != nil && r.blocks.IsBlocked(userID)
}

// releaseLocked drops the live subscription and receipt polling of the
// current room.
func (r *TimelineReconciler) releaseLocked() {
	if r.sub != nil {
		r.sub.Close()
		r.sub = nil
	}
	if r.stopPoll != nil {
		r.stopPoll()
		r.stopPoll = nil
	}
}

func (r *TimelineReconciler) timelineLocked(roomID string) *domain.RoomTimeline {
	tl, ok := r.timelines[roomID]
	if !ok {
		tl = domain.NewRoomTimeline(roomID, r.cfg.MatchWindow)
		r.timelines[roomID] = tl
	}
	return tl
}

func (r *TimelineReconciler) updateLocked(roomID string, tl *domain.RoomTimeline) TimelineUpdate {
	r.updateSeq++
	return TimelineUpdate{Seq: r.updateSeq, RoomID: roomID, Messages: tl.Messages()}
}
