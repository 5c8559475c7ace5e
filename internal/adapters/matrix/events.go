package matrix

import (
	"encoding/json"
	"time"

	"github.com/bnema/swarmchat/internal/domain"
)

type rawEvent struct {
	EventID        string          `json:"event_id"`
	Type           string          `json:"type"`
	Sender         string          `json:"sender"`
	OriginServerTS int64           `json:"origin_server_ts"`
	Content        json.RawMessage `json:"content"`
}

type syncResponse struct {
	NextBatch string `json:"next_batch"`
	Rooms     struct {
		Join map[string]joinedRoom `json:"join"`
	} `json:"rooms"`
}

type joinedRoom struct {
	Timeline struct {
		Events    []rawEvent `json:"events"`
		PrevBatch string     `json:"prev_batch"`
		Limited   bool       `json:"limited"`
	} `json:"timeline"`
	Ephemeral struct {
		Events []rawEvent `json:"events"`
	} `json:"ephemeral"`
}

type messagesResponse struct {
	Chunk []rawEvent `json:"chunk"`
	Start string     `json:"start"`
	End   string     `json:"end"`
}

type roomNameContent struct {
	Name string `json:"name"`
}

func (e rawEvent) timelineEvent(roomID string) domain.TimelineEvent {
	var content struct {
		Body string `json:"body"`
	}
	_ = json.Unmarshal(e.Content, &content)

	ev := domain.TimelineEvent{
		ID:     e.EventID,
		Type:   e.Type,
		RoomID: roomID,
		Sender: e.Sender,
		Body:   content.Body,
	}
	if e.OriginServerTS > 0 {
		ev.Timestamp = time.UnixMilli(e.OriginServerTS)
	}
	return ev
}

// receiptsByEvent unpacks an m.receipt content into reading users per event.
func receiptsByEvent(content json.RawMessage) map[string][]string {
	var byEvent map[string]json.RawMessage
	if err := json.Unmarshal(content, &byEvent); err != nil {
		return nil
	}

	out := make(map[string][]string, len(byEvent))
	for eventID, raw := range byEvent {
		if users := domain.DecodeReceiptUsers(raw); len(users) > 0 {
			out[eventID] = users
		}
	}
	return out
}
