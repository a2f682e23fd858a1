package service

import (
	"sort"
	"sync"

	"github.com/yodabot/support-desk/pkg/metrics"
)

// Assignment is the ticket a staff member is currently replying to.
type Assignment struct {
	TicketID        string
	RequesterChatID int64
}

// AssignmentTracker records which staff chat is handling which ticket. State
// is process local and is lost on restart.
type AssignmentTracker struct {
	mu      sync.RWMutex
	byStaff map[int64]Assignment
	index   *ActiveIndex
}

// NewAssignmentTracker creates a tracker that mirrors assignments into index.
func NewAssignmentTracker(index *ActiveIndex) *AssignmentTracker {
	return &AssignmentTracker{
		byStaff: make(map[int64]Assignment),
		index:   index,
	}
}

// Assign makes staffChatID the handler of ticketID, replacing whatever it was
// handling before. Concurrent assignments of one ticket are not arbitrated:
// the last writer wins.
func (t *AssignmentTracker) Assign(staffChatID int64, ticketID string, requesterChatID int64) {
	t.mu.Lock()
	t.byStaff[staffChatID] = Assignment{TicketID: ticketID, RequesterChatID: requesterChatID}
	n := len(t.byStaff)
	t.mu.Unlock()

	metrics.HandlingActive.Set(float64(n))
	t.index.Set(requesterChatID, ticketID)
}

// Clear ends staffChatID's assignment and drops the index mirror if it still
// points at that ticket.
func (t *AssignmentTracker) Clear(staffChatID int64) (Assignment, bool) {
	t.mu.Lock()
	a, ok := t.byStaff[staffChatID]
	delete(t.byStaff, staffChatID)
	n := len(t.byStaff)
	t.mu.Unlock()

	metrics.HandlingActive.Set(float64(n))
	if ok {
		t.index.DeleteIf(a.RequesterChatID, a.TicketID)
	}
	return a, ok
}

// Current returns staffChatID's assignment.
func (t *AssignmentTracker) Current(staffChatID int64) (Assignment, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	a, ok := t.byStaff[staffChatID]
	return a, ok
}

// WhoIsHandling returns the staff chat handling ticketID. When several staff
// entries point at the ticket the lowest chat id is reported.
func (t *AssignmentTracker) WhoIsHandling(ticketID string) (int64, bool) {
	handlers := t.handlersOf(ticketID)
	if len(handlers) == 0 {
		return 0, false
	}
	return handlers[0], true
}

// ReleaseTicket clears every staff member handling ticketID and returns them.
func (t *AssignmentTracker) ReleaseTicket(ticketID string) []int64 {
	handlers := t.handlersOf(ticketID)

	t.mu.Lock()
	for _, staff := range handlers {
		if t.byStaff[staff].TicketID == ticketID {
			delete(t.byStaff, staff)
		}
	}
	n := len(t.byStaff)
	t.mu.Unlock()

	metrics.HandlingActive.Set(float64(n))
	return handlers
}

// Count returns the number of staff currently handling a ticket.
func (t *AssignmentTracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byStaff)
}

// HandledTickets returns the distinct ticket ids being handled.
func (t *AssignmentTracker) HandledTickets() map[string]struct{} {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]struct{}, len(t.byStaff))
	for _, a := range t.byStaff {
		out[a.TicketID] = struct{}{}
	}
	return out
}

func (t *AssignmentTracker) handlersOf(ticketID string) []int64 {
	t.mu.RLock()
	var out []int64
	for staff, a := range t.byStaff {
		if a.TicketID == ticketID {
			out = append(out, staff)
		}
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
