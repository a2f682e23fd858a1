// Package model defines the ticket domain types shared by the service, the
// bot front-ends and the ops API.
package model

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a ticket.
type Status string

const (
	StatusOpen   Status = "Open"
	StatusClosed Status = "Closed"
)

// IDPrefix prefixes every ticket id.
const IDPrefix = "TCK-"

// FormatTicketID renders a sequence number as a ticket id.
func FormatTicketID(n int) string {
	return fmt.Sprintf("%s%06d", IDPrefix, n)
}

// Ticket is a support case. JSON names match the records already stored in
// the database.
type Ticket struct {
	ID              string        `json:"TicketId"`
	Status          Status        `json:"Status"`
	CreatedAt       time.Time     `json:"CreatedDate"`
	RequesterChatID int64         `json:"ChatId"`
	Messages        []ChatMessage `json:"Messages,omitempty"`
}

// IsOpen reports whether the ticket is in the open partition.
func (t *Ticket) IsOpen() bool {
	return t.Status == StatusOpen
}

// FirstText returns the first non-empty text message, if any.
func (t *Ticket) FirstText() (string, bool) {
	for _, m := range t.Messages {
		if m.Kind == KindText && m.Text != "" {
			return m.Text, true
		}
	}
	return "", false
}

// Stats summarizes the ticket partitions.
type Stats struct {
	Open    int `json:"open"`
	Closed  int `json:"closed"`
	Total   int `json:"total"`
	Handled int `json:"handled"`
}

// UserData is the persisted per-user record.
type UserData struct {
	Language string `json:"Language,omitempty"`
}
