package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/yodabot/support-desk/internal/middleware"
	"github.com/yodabot/support-desk/internal/model"
	"github.com/yodabot/support-desk/internal/service"
	"github.com/yodabot/support-desk/pkg/logger"
)

// TicketSummary is the list view of a ticket.
type TicketSummary struct {
	ID              string       `json:"id"`
	Status          model.Status `json:"status"`
	CreatedAt       time.Time    `json:"created_at"`
	RequesterChatID int64        `json:"requester_chat_id"`
	MessageCount    int          `json:"message_count"`
	HandledBy       *int64       `json:"handled_by,omitempty"`
}

// TicketDetail is a ticket with its history.
type TicketDetail struct {
	TicketSummary
	Messages []model.ChatMessage `json:"messages"`
}

// ListTicketsResponse is a page of tickets.
type ListTicketsResponse struct {
	Tickets []TicketSummary `json:"tickets"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// RequesterNotifier tells requesters about transitions made through the API.
type RequesterNotifier interface {
	NotifyTicketClosed(ctx context.Context, t *model.Ticket) error
	NotifyTicketReopened(ctx context.Context, t *model.Ticket) error
}

// TicketHandler serves the ticket endpoints of the ops API.
type TicketHandler struct {
	service  *service.TicketService
	notifier RequesterNotifier
	logger   *logger.Logger
}

// NewTicketHandler creates a new ticket handler. notifier may be nil.
func NewTicketHandler(svc *service.TicketService, notifier RequesterNotifier, log *logger.Logger) *TicketHandler {
	return &TicketHandler{
		service:  svc,
		notifier: notifier,
		logger:   log,
	}
}

func (h *TicketHandler) summarize(t *model.Ticket) TicketSummary {
	s := TicketSummary{
		ID:              t.ID,
		Status:          t.Status,
		CreatedAt:       t.CreatedAt,
		RequesterChatID: t.RequesterChatID,
		MessageCount:    len(t.Messages),
	}
	if staff, ok := h.service.Tracker().WhoIsHandling(t.ID); ok {
		s.HandledBy = &staff
	}
	return s
}

// List handles GET /api/v1/tickets
func (h *TicketHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, offset := pageParams(r)

	var (
		tickets []*model.Ticket
		err     error
	)
	switch status := strings.ToLower(r.URL.Query().Get("status")); status {
	case "", "all":
		tickets, err = h.service.ListAll(ctx)
	case "open":
		tickets, err = h.service.ListOpen(ctx)
	case "closed":
		tickets, err = h.service.ListClosed(ctx)
	default:
		writeError(w, http.StatusBadRequest, "status must be open, closed or all")
		return
	}
	if err != nil {
		h.logger.Error("failed to list tickets", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list tickets")
		return
	}

	resp := ListTicketsResponse{
		Tickets: []TicketSummary{},
		Total:   len(tickets),
		Limit:   limit,
		Offset:  offset,
	}
	if offset < len(tickets) {
		for _, t := range tickets[offset:min(offset+limit, len(tickets))] {
			resp.Tickets = append(resp.Tickets, h.summarize(t))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Search handles GET /api/v1/tickets/search
func (h *TicketHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if err := middleware.ValidateSearchQuery(q); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tickets, err := h.service.SearchTickets(r.Context(), q)
	if err != nil {
		h.logger.Error("failed to search tickets", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to search tickets")
		return
	}

	out := make([]TicketSummary, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, h.summarize(t))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"query":   q,
		"tickets": out,
	})
}

// Stats handles GET /api/v1/tickets/stats
func (h *TicketHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to compute stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Get handles GET /api/v1/tickets/{id}
func (h *TicketHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.GetTicket(r.Context(), chi.URLParam(r, "id"))
	if h.failed(w, err, "get") {
		return
	}
	messages := t.Messages
	if messages == nil {
		messages = []model.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, TicketDetail{TicketSummary: h.summarize(t), Messages: messages})
}

// Close handles POST /api/v1/tickets/{id}/close
func (h *TicketHandler) Close(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.CloseTicket(r.Context(), chi.URLParam(r, "id"))
	if h.failed(w, err, "close") {
		return
	}
	h.audit(r, "closed", t)
	if h.notifier != nil {
		if err := h.notifier.NotifyTicketClosed(r.Context(), t); err != nil {
			h.logger.Warn("failed to notify requester", zap.String("ticket_id", t.ID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, h.summarize(t))
}

// Reopen handles POST /api/v1/tickets/{id}/reopen
func (h *TicketHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.ReopenTicket(r.Context(), chi.URLParam(r, "id"))
	if h.failed(w, err, "reopen") {
		return
	}
	h.audit(r, "reopened", t)
	if h.notifier != nil {
		if err := h.notifier.NotifyTicketReopened(r.Context(), t); err != nil {
			h.logger.Warn("failed to notify requester", zap.String("ticket_id", t.ID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, h.summarize(t))
}

// Delete handles DELETE /api/v1/tickets/{id}
func (h *TicketHandler) Delete(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.DeleteTicket(r.Context(), chi.URLParam(r, "id"))
	if h.failed(w, err, "delete") {
		return
	}
	h.audit(r, "deleted", t)
	w.WriteHeader(http.StatusNoContent)
}

// failed writes the error response for err and reports whether it did.
// ErrNotFound maps to 404 for reads and 409 for transitions.
func (h *TicketHandler) failed(w http.ResponseWriter, err error, op string) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, service.ErrNotFound) && (op == "get" || op == "delete"):
		writeError(w, http.StatusNotFound, "ticket not found")
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusConflict, "ticket is not in a state that allows "+op)
	default:
		h.logger.Error("ticket operation failed", zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to "+op+" ticket")
	}
	return true
}

func (h *TicketHandler) audit(r *http.Request, action string, t *model.Ticket) {
	h.logger.WithTicket(t.ID, t.RequesterChatID).Info("ticket changed through ops API",
		zap.String("action", action),
		zap.String("subject", middleware.GetSubject(r.Context())),
		zap.String("correlation_id", middleware.GetCorrelationID(r.Context())),
	)
}
