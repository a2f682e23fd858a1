package service

import "errors"

var (
	// ErrNotFound means no ticket with the requested id exists in the
	// partition(s) the operation looks at.
	ErrNotFound = errors.New("ticket not found")
	// ErrAlreadyOpen means the requester already has an open ticket.
	ErrAlreadyOpen = errors.New("requester already has an open ticket")
	// ErrTicketClosed means the ticket exists but is closed and cannot take
	// new messages.
	ErrTicketClosed = errors.New("ticket is closed")
	// ErrCounterExhausted means a unique ticket number could not be
	// confirmed within the retry budget.
	ErrCounterExhausted = errors.New("ticket number allocation exhausted")
	// ErrTicketIDTaken means another create persisted the same ticket id
	// after this one and the record no longer belongs to the caller.
	ErrTicketIDTaken = errors.New("ticket id taken by a concurrent create")
)

// isOutcome reports whether err is an expected result rather than a fault.
func isOutcome(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyOpen) ||
		errors.Is(err, ErrTicketClosed)
}
