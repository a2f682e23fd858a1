package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yodabot/support-desk/internal/middleware"
	"github.com/yodabot/support-desk/pkg/logger"
)

// RouterConfig wires the ops HTTP surface. Events may be nil when the audit
// stream is disabled.
type RouterConfig struct {
	Health            *HealthHandler
	Tickets           *TicketHandler
	Events            *EventHandler
	Logger            *logger.Logger
	JWTSecret         string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	CORSOrigins       []string
}

// NewRouter builds the ops API router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", cfg.Health.Health)
	r.Get("/ready", cfg.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/tickets", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireScope(middleware.ScopeRead))
				r.Get("/", cfg.Tickets.List)
				r.Get("/search", cfg.Tickets.Search)
				r.Get("/stats", cfg.Tickets.Stats)
			})

			r.Route("/{id}", func(r chi.Router) {
				r.Use(middleware.TicketIDParam)

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireScope(middleware.ScopeRead))
					r.Get("/", cfg.Tickets.Get)
					if cfg.Events != nil {
						r.Get("/events", cfg.Events.List)
						r.Get("/events/stream", cfg.Events.Stream)
					}
				})

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireScope(middleware.ScopeWrite))
					r.Post("/close", cfg.Tickets.Close)
					r.Post("/reopen", cfg.Tickets.Reopen)
					r.Delete("/", cfg.Tickets.Delete)
				})
			})
		})
	})

	return r
}
