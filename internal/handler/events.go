package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/yodabot/support-desk/internal/model"
	"github.com/yodabot/support-desk/internal/service"
	"github.com/yodabot/support-desk/pkg/logger"
	"github.com/yodabot/support-desk/pkg/metrics"
)

const (
	eventBatchSize    = 50
	heartbeatInterval = 30 * time.Second
	livePollInterval  = 5 * time.Second
)

// EventSource reads the audit history of a ticket.
type EventSource interface {
	GetTicketEvents(ctx context.Context, ticketID string, afterSequence uint64, limit int) ([]model.TicketEvent, uint64, bool, error)
}

// EventsResponse is a page of ticket events.
type EventsResponse struct {
	Events       []model.TicketEvent `json:"events"`
	LastSequence uint64              `json:"last_sequence"`
	HasMore      bool                `json:"has_more"`
}

// ReplayCompleteEvent marks the end of the replayed history on a stream.
type ReplayCompleteEvent struct {
	LastSequence uint64 `json:"last_sequence"`
	EventCount   int    `json:"event_count"`
}

// EventHandler serves the ticket audit feed.
type EventHandler struct {
	events  EventSource
	tickets *service.TicketService
	logger  *logger.Logger
}

// NewEventHandler creates a new event handler.
func NewEventHandler(events EventSource, tickets *service.TicketService, log *logger.Logger) *EventHandler {
	return &EventHandler{
		events:  events,
		tickets: tickets,
		logger:  log,
	}
}

func afterSequence(r *http.Request) uint64 {
	if s := r.URL.Query().Get("after_sequence"); s != "" {
		if seq, err := strconv.ParseUint(s, 10, 64); err == nil {
			return seq
		}
	}
	return 0
}

// List handles GET /api/v1/tickets/{id}/events
// Deleted tickets keep their history, so the ticket need not exist.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "id")
	limit, _ := pageParams(r)

	events, last, more, err := h.events.GetTicketEvents(r.Context(), ticketID, afterSequence(r), limit)
	if err != nil {
		h.logger.Error("failed to read ticket events", zap.String("ticket_id", ticketID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read ticket events")
		return
	}
	if events == nil {
		events = []model.TicketEvent{}
	}
	writeJSON(w, http.StatusOK, EventsResponse{Events: events, LastSequence: last, HasMore: more})
}

// Stream handles GET /api/v1/tickets/{id}/events/stream
// Supports ?after_sequence=N for resuming from a specific point. After the
// replay the stream keeps polling for new events until the client leaves.
func (h *EventHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ticketID := chi.URLParam(r, "id")

	if _, err := h.tickets.GetTicket(ctx, ticketID); errors.Is(err, service.ErrNotFound) {
		writeError(w, http.StatusNotFound, "ticket not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	log := h.logger.With(zap.String("ticket_id", ticketID))
	sendSSEEvent(w, flusher, "connected", map[string]string{"ticket_id": ticketID})

	cursor := afterSequence(r)
	replayed, err := h.drain(ctx, w, flusher, ticketID, &cursor)
	if err != nil {
		log.Error("failed to replay ticket events", zap.Error(err))
		sendSSEEvent(w, flusher, "error", map[string]string{"code": "replay_error"})
		return
	}
	sendSSEEvent(w, flusher, "replay_complete", &ReplayCompleteEvent{LastSequence: cursor, EventCount: replayed})

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	poll := time.NewTicker(livePollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("event stream client disconnected")
			return
		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", map[string]time.Time{"timestamp": time.Now().UTC()})
		case <-poll.C:
			if _, err := h.drain(ctx, w, flusher, ticketID, &cursor); err != nil && ctx.Err() == nil {
				log.Warn("failed to poll ticket events", zap.Error(err))
			}
		}
	}
}

// drain sends every event after *cursor and advances it.
func (h *EventHandler) drain(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, ticketID string, cursor *uint64) (int, error) {
	sent := 0
	for {
		events, last, more, err := h.events.GetTicketEvents(ctx, ticketID, *cursor, eventBatchSize)
		if err != nil {
			return sent, err
		}
		for _, e := range events {
			if ctx.Err() != nil {
				return sent, nil
			}
			sendSSEEvent(w, flusher, string(e.Type), e)
			sent++
		}
		if last > *cursor {
			*cursor = last
		}
		if !more || len(events) == 0 {
			return sent, nil
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}
