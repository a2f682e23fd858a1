// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks ops API request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "supportdesk_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total ops API requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportdesk_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// StoreOpDuration tracks tree store call latency.
	StoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "supportdesk_store_op_duration_seconds",
			Help:    "Store call duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"op", "status"},
	)

	// TicketTransitions counts lifecycle transitions.
	TicketTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportdesk_ticket_transitions_total",
			Help: "Ticket lifecycle transitions",
		},
		[]string{"transition"},
	)

	// MessagesTotal tracks messages appended to tickets.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportdesk_messages_total",
			Help: "Messages appended to tickets",
		},
		[]string{"role", "kind"},
	)

	// CounterRetries counts ticket number confirmations that had to retry.
	CounterRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "supportdesk_counter_retries_total",
			Help: "Ticket counter confirmation retries",
		},
	)

	// CounterExhausted counts allocations that gave up.
	CounterExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "supportdesk_counter_exhausted_total",
			Help: "Ticket number allocations that exhausted their retries",
		},
	)

	// CacheLookups tracks cache hits and misses.
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportdesk_cache_lookups_total",
			Help: "Cache lookups by cache and result",
		},
		[]string{"cache", "result"},
	)

	// UpdatesTotal tracks inbound chat updates per bot.
	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportdesk_updates_total",
			Help: "Inbound chat updates",
		},
		[]string{"bot", "kind", "status"},
	)

	// HandlingActive tracks staff members currently handling a ticket.
	HandlingActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "supportdesk_handling_active",
			Help: "Staff members currently handling a ticket",
		},
	)

	// ActiveTickets tracks entries in the active ticket index.
	ActiveTickets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "supportdesk_active_index_entries",
			Help: "Entries in the active ticket index",
		},
	)

	// EventsPublished tracks audit events sent to JetStream.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportdesk_events_published_total",
			Help: "Ticket events published",
		},
		[]string{"type", "status"},
	)

	// SSEConnections tracks open ticket event streams.
	SSEConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "supportdesk_sse_connections_active",
			Help: "Open ticket event streams",
		},
	)

	// LLMRequestDuration tracks transcript summary latency.
	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "supportdesk_llm_request_duration_seconds",
			Help:    "LLM summary request duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider", "status"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordStoreOp records a store call.
func RecordStoreOp(op, status string, duration float64) {
	StoreOpDuration.WithLabelValues(op, status).Observe(duration)
}

// RecordCache records a cache lookup.
func RecordCache(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(cache, result).Inc()
}

// RecordUpdate records an inbound chat update.
func RecordUpdate(bot, kind, status string) {
	UpdatesTotal.WithLabelValues(bot, kind, status).Inc()
}

// RecordLLM records a summary request.
func RecordLLM(provider, status string, duration float64) {
	LLMRequestDuration.WithLabelValues(provider, status).Observe(duration)
}

// IncrementSSEConnections marks an event stream as opened.
func IncrementSSEConnections() {
	SSEConnections.Inc()
}

// DecrementSSEConnections marks an event stream as closed.
func DecrementSSEConnections() {
	SSEConnections.Dec()
}
