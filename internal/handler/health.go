package handler

import (
	"context"
	"net/http"
	"time"
)

const readyTimeout = 3 * time.Second

// Pinger checks connectivity of a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectionChecker reports whether a client is connected.
type ConnectionChecker interface {
	IsConnected() bool
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store Pinger
	nats  ConnectionChecker
}

// NewHealthHandler creates a new health handler. nats may be nil when the
// audit stream is disabled.
func NewHealthHandler(store Pinger, nats ConnectionChecker) *HealthHandler {
	return &HealthHandler{
		store: store,
		nats:  nats,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "store unreachable",
		})
		return
	}

	if h.nats != nil && !h.nats.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
