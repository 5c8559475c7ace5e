package domain

import (
	"slices"
	"time"
)

const EventTypeMessage = "m.room.message"

type MessageStatus string

const (
	MessagePending MessageStatus = "pending"
	MessageSent    MessageStatus = "sent"
	MessageFailed  MessageStatus = "failed"
)

// Message is one timeline entry. While Pending or Failed its ID is the local
// transaction id; once Sent it carries the server event id.
type Message struct {
	ID            string
	TransactionID string
	Sender        string
	Body          string
	Timestamp     time.Time
	Status        MessageStatus
	Receipts      []string
}

func (m Message) clone() Message {
	m.Receipts = slices.Clone(m.Receipts)
	return m
}

// TimelineEvent is the normalized form of a server event.
type TimelineEvent struct {
	ID        string
	Type      string
	RoomID    string
	Sender    string
	Body      string
	Timestamp time.Time
}

func (e TimelineEvent) IsMessage() bool {
	return e.Type == EventTypeMessage
}

func (e TimelineEvent) toMessage() Message {
	return Message{
		ID:        e.ID,
		Sender:    e.Sender,
		Body:      e.Body,
		Timestamp: e.Timestamp,
		Status:    MessageSent,
	}
}

type Room struct {
	ID   string
	Name string
}
