package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Priya8975/campaign-mailer/internal/domain"
	"github.com/Priya8975/campaign-mailer/internal/engine"
	"github.com/Priya8975/campaign-mailer/internal/queue"
	ws "github.com/Priya8975/campaign-mailer/internal/websocket"
	"github.com/go-chi/chi/v5"
)

type MetricsStore interface {
	DashboardMetrics(ctx context.Context, ownerID string) (*domain.DashboardMetrics, error)
}

type QueueStats interface {
	Stats(ctx context.Context) (queue.Stats, error)
}

type DashboardHandler struct {
	store  MetricsStore
	queue  QueueStats
	cb     *engine.CircuitBreaker
	hub    *ws.Hub
	logger *slog.Logger
}

func NewDashboardHandler(s MetricsStore, q QueueStats, cb *engine.CircuitBreaker, hub *ws.Hub, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{store: s, queue: q, cb: cb, hub: hub, logger: logger}
}

// Metrics returns the owner's campaign and event totals with live queue
// depth.
func (h *DashboardHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.store.DashboardMetrics(r.Context(), ownerID(r))
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to get metrics")
		return
	}

	if stats, err := h.queue.Stats(r.Context()); err == nil {
		m.QueueReady = stats.Ready
		m.QueueInFlight = stats.InFlight
		m.DeadLetters = stats.DeadLetters
	} else {
		h.logger.Warn("queue stats unavailable", "error", err)
	}
	if h.hub != nil {
		m.WebSocketClients = h.hub.ClientCount()
	}
	respondJSON(w, http.StatusOK, m)
}

// DomainHealth reports the circuit breaker for one recipient mail domain.
func (h *DashboardHandler) DomainHealth(w http.ResponseWriter, r *http.Request) {
	mailDomain := strings.ToLower(chi.URLParam(r, "domain"))
	if mailDomain == "" {
		respondError(w, http.StatusBadRequest, "domain is required")
		return
	}
	respondJSON(w, http.StatusOK, h.cb.GetState(r.Context(), mailDomain))
}
