package service

import (
	"sync"

	"github.com/yodabot/support-desk/pkg/metrics"
)

// ActiveIndex maps a requester chat to its open ticket. It is a routing
// cache; the open partition in the store stays authoritative.
type ActiveIndex struct {
	mu     sync.RWMutex
	byChat map[int64]string
}

// NewActiveIndex creates an empty index.
func NewActiveIndex() *ActiveIndex {
	return &ActiveIndex{byChat: make(map[int64]string)}
}

// Get returns the ticket indexed for chatID.
func (x *ActiveIndex) Get(chatID int64) (string, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	id, ok := x.byChat[chatID]
	return id, ok
}

// Set indexes ticketID under chatID.
func (x *ActiveIndex) Set(chatID int64, ticketID string) {
	x.mu.Lock()
	x.byChat[chatID] = ticketID
	n := len(x.byChat)
	x.mu.Unlock()
	metrics.ActiveTickets.Set(float64(n))
}

// Delete removes chatID.
func (x *ActiveIndex) Delete(chatID int64) {
	x.mu.Lock()
	delete(x.byChat, chatID)
	n := len(x.byChat)
	x.mu.Unlock()
	metrics.ActiveTickets.Set(float64(n))
}

// DeleteIf removes chatID only while it still maps to ticketID.
func (x *ActiveIndex) DeleteIf(chatID int64, ticketID string) bool {
	x.mu.Lock()
	cur, ok := x.byChat[chatID]
	removed := ok && cur == ticketID
	if removed {
		delete(x.byChat, chatID)
	}
	n := len(x.byChat)
	x.mu.Unlock()
	metrics.ActiveTickets.Set(float64(n))
	return removed
}

// Replace swaps the whole mapping.
func (x *ActiveIndex) Replace(byChat map[int64]string) {
	x.mu.Lock()
	x.byChat = byChat
	x.mu.Unlock()
	metrics.ActiveTickets.Set(float64(len(byChat)))
}

// Len returns the number of indexed chats.
func (x *ActiveIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byChat)
}
