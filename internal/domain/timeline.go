package domain

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"
)

// DefaultMatchWindow bounds how old a pending entry may be and still absorb a
// live event with the same sender and body.
const DefaultMatchWindow = 30 * time.Second

type ApplyOutcome int

const (
	ApplyIgnored ApplyOutcome = iota
	ApplyDuplicate
	ApplyUpgraded
	ApplyAppended
)

func (o ApplyOutcome) String() string {
	switch o {
	case ApplyDuplicate:
		return "duplicate"
	case ApplyUpgraded:
		return "upgraded"
	case ApplyAppended:
		return "appended"
	default:
		return "ignored"
	}
}

// RoomTimeline holds the ordered messages of one room. It is not safe for
// concurrent use; the owner serializes access.
type RoomTimeline struct {
	roomID   string
	window   time.Duration
	messages []Message
}

func NewRoomTimeline(roomID string, matchWindow time.Duration) *RoomTimeline {
	if matchWindow <= 0 {
		matchWindow = DefaultMatchWindow
	}
	return &RoomTimeline{roomID: roomID, window: matchWindow}
}

func (t *RoomTimeline) RoomID() string {
	return t.roomID
}

func (t *RoomTimeline) Len() int {
	return len(t.messages)
}

// Messages returns a copy of the timeline in display order.
func (t *RoomTimeline) Messages() []Message {
	out := make([]Message, len(t.messages))
	for i, m := range t.messages {
		out[i] = m.clone()
	}
	return out
}

// LoadHistory replaces the confirmed part of the timeline with the given
// events, oldest first. Local entries not covered by the history stay at the tail.
func (t *RoomTimeline) LoadHistory(events []TimelineEvent) {
	history := make([]Message, 0, len(events))
	seen := make(map[string]struct{}, len(events))
	for _, ev := range events {
		if !ev.IsMessage() || ev.ID == "" {
			continue
		}
		if _, ok := seen[ev.ID]; ok {
			continue
		}
		seen[ev.ID] = struct{}{}
		history = append(history, ev.toMessage())
	}
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Timestamp.Before(history[j].Timestamp)
	})

	for _, m := range t.messages {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		history = append(history, m)
	}
	t.messages = history
}

// ApplyLive merges one live event: duplicates by id are dropped, a matching
// recent pending entry is upgraded in place, anything else is appended.
func (t *RoomTimeline) ApplyLive(ev TimelineEvent, now time.Time) ApplyOutcome {
	if !ev.IsMessage() || ev.ID == "" {
		return ApplyIgnored
	}
	if t.indexByID(ev.ID) >= 0 {
		return ApplyDuplicate
	}

	if idx := t.matchPending(ev, now); idx >= 0 {
		entry := &t.messages[idx]
		entry.ID = ev.ID
		entry.Status = MessageSent
		if !ev.Timestamp.IsZero() {
			entry.Timestamp = ev.Timestamp
		}
		return ApplyUpgraded
	}

	t.messages = append(t.messages, ev.toMessage())
	return ApplyAppended
}

func (t *RoomTimeline) matchPending(ev TimelineEvent, now time.Time) int {
	body := strings.TrimSpace(ev.Body)
	for i, m := range t.messages {
		if m.Status != MessagePending || m.Sender != ev.Sender {
			continue
		}
		if strings.TrimSpace(m.Body) != body {
			continue
		}
		age := now.Sub(m.Timestamp)
		if age < 0 {
			age = -age
		}
		if age < t.window {
			return i
		}
	}
	return -1
}

// AppendPending adds an optimistic entry at the tail.
func (t *RoomTimeline) AppendPending(m Message) Message {
	m.Status = MessagePending
	if m.ID == "" {
		m.ID = m.TransactionID
	}
	t.messages = append(t.messages, m.clone())
	return m
}

// Confirm marks the entry owning txnID as sent under eventID. If the live
// echo of the same event was already appended separately, that copy is
// dropped so the entry keeps its original position.
func (t *RoomTimeline) Confirm(txnID, eventID string) (Message, bool) {
	idx := t.indexByTxn(txnID)
	if idx < 0 {
		return Message{}, false
	}
	if eventID != "" {
		if dup := t.indexByID(eventID); dup >= 0 && dup != idx {
			t.messages = slices.Delete(t.messages, dup, dup+1)
			if dup < idx {
				idx--
			}
		}
		t.messages[idx].ID = eventID
	}
	t.messages[idx].Status = MessageSent
	return t.messages[idx].clone(), true
}

// Fail marks the entry owning txnID as failed. The entry stays visible.
func (t *RoomTimeline) Fail(txnID string) (Message, bool) {
	idx := t.indexByTxn(txnID)
	if idx < 0 {
		return Message{}, false
	}
	t.messages[idx].Status = MessageFailed
	return t.messages[idx].clone(), true
}

// Find looks an entry up by final id or transaction id.
func (t *RoomTimeline) Find(idOrTxn string) (Message, bool) {
	idx := t.indexOf(idOrTxn)
	if idx < 0 {
		return Message{}, false
	}
	return t.messages[idx].clone(), true
}

// PrepareRetry resets a failed entry to pending under a fresh transaction id.
func (t *RoomTimeline) PrepareRetry(idOrTxn, txnID string, now time.Time) (Message, error) {
	idx := t.indexOf(idOrTxn)
	if idx < 0 {
		return Message{}, fmt.Errorf("%w: %q", ErrMessageNotFound, idOrTxn)
	}
	entry := &t.messages[idx]
	if entry.Status != MessageFailed {
		return Message{}, fmt.Errorf("%w: %q is %s", ErrMessageNotRetryable, idOrTxn, entry.Status)
	}
	entry.TransactionID = txnID
	entry.Status = MessagePending
	entry.Timestamp = now
	return entry.clone(), nil
}

// MergeReceipts unions users into the receipts of eventID. It reports
// whether anything changed.
func (t *RoomTimeline) MergeReceipts(eventID string, users []string) bool {
	idx := t.indexByID(eventID)
	if idx < 0 || len(users) == 0 {
		return false
	}
	entry := &t.messages[idx]
	changed := false
	for _, user := range users {
		if user == "" || slices.Contains(entry.Receipts, user) {
			continue
		}
		entry.Receipts = append(entry.Receipts, user)
		changed = true
	}
	if changed {
		slices.Sort(entry.Receipts)
	}
	return changed
}

// Sent returns the confirmed entries.
func (t *RoomTimeline) Sent() []Message {
	out := make([]Message, 0, len(t.messages))
	for _, m := range t.messages {
		if m.Status == MessageSent {
			out = append(out, m.clone())
		}
	}
	return out
}

func (t *RoomTimeline) indexOf(idOrTxn string) int {
	if idx := t.indexByID(idOrTxn); idx >= 0 {
		return idx
	}
	return t.indexByTxn(idOrTxn)
}

func (t *RoomTimeline) indexByID(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(t.messages, func(m Message) bool { return m.ID == id })
}

func (t *RoomTimeline) indexByTxn(txnID string) int {
	if txnID == "" {
		return -1
	}
	return slices.IndexFunc(t.messages, func(m Message) bool { return m.TransactionID == txnID })
}
