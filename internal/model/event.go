package model

import (
	"time"
)

// EventType represents a ticket lifecycle transition.
type EventType string

const (
	EventCreated  EventType = "created"
	EventMessage  EventType = "message"
	EventClosed   EventType = "closed"
	EventReopened EventType = "reopened"
	EventDeleted  EventType = "deleted"
)

// TicketEvent is an audit record published for every lifecycle transition.
type TicketEvent struct {
	ID        string         `json:"id"`
	TicketID  string         `json:"ticket_id"`
	ChatID    int64          `json:"chat_id"`
	Type      EventType      `json:"type"`
	Role      Role           `json:"role,omitempty"`
	Kind      Kind           `json:"kind,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Sequence  uint64         `json:"sequence,omitempty"`
}
