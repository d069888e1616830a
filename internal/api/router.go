package api

import (
	"log/slog"
	"net/http"

	"github.com/Priya8975/campaign-mailer/internal/engine"
	ws "github.com/Priya8975/campaign-mailer/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Deps are the services the HTTP layer serves.
type Deps struct {
	Campaigns    *engine.CampaignService
	Suppressions *engine.SuppressionFilter
	Tracker      *engine.Tracker
	Breaker      *engine.CircuitBreaker
	Store        MetricsStore
	Queue        interface {
		QueueStats
		DeadLetterLister
	}
	Hub    *ws.Hub
	Logger *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(corsMiddleware)

	campaigns := NewCampaignHandler(d.Campaigns, d.Logger)
	suppressions := NewSuppressionHandler(d.Suppressions, d.Campaigns, d.Logger)
	tracking := NewTrackingHandler(d.Tracker, d.Logger)
	dlq := NewDeadLetterHandler(d.Queue, d.Logger)
	dash := NewDashboardHandler(d.Store, d.Queue, d.Breaker, d.Hub, d.Logger)

	if d.Hub != nil {
		r.Get("/ws", d.Hub.HandleWebSocket)
	}

	// Links inside sent emails.
	r.Get("/unsubscribe", suppressions.Unsubscribe)
	r.Post("/unsubscribe", suppressions.Unsubscribe)
	r.Get("/api/analytics/open", tracking.Open)
	r.Get("/api/analytics/click", tracking.Click)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler())

		r.Group(func(r chi.Router) {
			r.Use(requireOwner)

			r.Route("/campaigns", func(r chi.Router) {
				r.Get("/", campaigns.List)
				r.Post("/", campaigns.Create)
				r.Get("/stats", campaigns.Stats)
				r.Get("/merge-tags", campaigns.MergeTags)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", campaigns.Get)
					r.Patch("/", campaigns.Update)
					r.Delete("/", campaigns.Delete)
					r.Post("/send", campaigns.Send)
					r.Get("/preview", campaigns.Preview)
					r.Post("/send-test", campaigns.SendTest)
					r.Get("/analytics", campaigns.Analytics)
					r.Get("/logs", campaigns.Logs)
				})
			})

			r.Route("/suppressions", func(r chi.Router) {
				r.Get("/", suppressions.List)
				r.Post("/", suppressions.Create)
			})

			r.Get("/dead-letters", dlq.List)
			r.Get("/dashboard/metrics", dash.Metrics)
			r.Get("/mail-domains/{domain}/health", dash.DomainHealth)
		})
	})

	return r
}

// corsMiddleware adds CORS headers for dashboard development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+OwnerHeader)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
