package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Priya8975/campaign-mailer/internal/api"
	"github.com/Priya8975/campaign-mailer/internal/config"
	"github.com/Priya8975/campaign-mailer/internal/content"
	"github.com/Priya8975/campaign-mailer/internal/engine"
	"github.com/Priya8975/campaign-mailer/internal/metrics"
	"github.com/Priya8975/campaign-mailer/internal/queue"
	"github.com/Priya8975/campaign-mailer/internal/store"
	"github.com/Priya8975/campaign-mailer/internal/store/memory"
	"github.com/Priya8975/campaign-mailer/internal/transport"
	ws "github.com/Priya8975/campaign-mailer/internal/websocket"
	"github.com/Priya8975/campaign-mailer/internal/worker"
)

type appStore interface {
	engine.Store
	api.MetricsStore
}

// app is the wired send pipeline shared by the serve and redispatch
// commands.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      appStore
	redis      *store.RedisStore
	metrics    *metrics.Metrics
	queue      *queue.RedisQueue
	hub        *ws.Hub
	audit      *engine.Audit
	reconciler *engine.Reconciler
	filter     *engine.SuppressionFilter
	dispatcher *engine.Dispatcher
	service    *engine.CampaignService
	tracker    *engine.Tracker
	breaker    *engine.CircuitBreaker
	limiter    *engine.RateLimiter
	deliverer  *worker.Deliverer

	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}

	switch cfg.StoreBackend {
	case "memory":
		a.store = memory.New()
		logger.Warn("using in-memory store, data is lost on exit")
	default:
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL, cfg.Worker.NumWorkers+10)
		if err != nil {
			return nil, err
		}
		a.store = pg
		a.closers = append(a.closers, pg.Close)
		logger.Info("connected to PostgreSQL")
	}

	rs, err := store.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.redis = rs
	a.closers = append(a.closers, func() { rs.Close() })
	logger.Info("connected to Redis")

	policy := queue.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Backoff:     queue.BackoffKind(cfg.Retry.Backoff),
		BaseDelay:   cfg.Retry.BaseDelay,
	}
	if err := policy.Validate(); err != nil {
		a.Close()
		return nil, err
	}

	tr, err := newTransport(cfg.Mail, logger.With("component", "transport"))
	if err != nil {
		a.Close()
		return nil, err
	}

	a.queue = queue.NewRedisQueue(rs.Client(), logger.With("component", "queue")).WithLease(cfg.Worker.JobLease)
	a.hub = ws.NewHub(logger.With("component", "websocket"))
	a.audit = engine.NewAudit(a.store, logger.With("component", "audit"), a.metrics)
	a.reconciler = engine.NewReconciler(a.store, a.audit, a.hub, a.metrics, logger.With("component", "reconciler"))
	a.filter = engine.NewSuppressionFilter(a.store, logger.With("component", "suppression"))

	renderer := content.NewBlockRenderer(cfg.AssetBaseURL)
	a.dispatcher = engine.NewDispatcher(a.store, a.queue, a.filter, renderer, a.audit, a.reconciler, a.metrics,
		engine.DispatcherConfig{PublicURL: cfg.PublicURL, Policy: policy},
		logger.With("component", "dispatcher"))
	a.service = engine.NewCampaignService(a.store, engine.NewResolver(a.store), a.filter, a.dispatcher,
		renderer, tr, a.audit, cfg.PublicURL, logger.With("component", "campaigns"))
	a.tracker = engine.NewTracker(a.store, logger.With("component", "tracking"))

	a.breaker = engine.NewCircuitBreaker(rs.Client(), logger.With("component", "circuit_breaker"))
	a.limiter = engine.NewRateLimiter(rs.Client(), logger.With("component", "rate_limiter"))
	a.deliverer = worker.NewDeliverer(a.store, tr, a.queue, a.audit, a.reconciler, a.metrics,
		worker.DelivererConfig{TrackingBaseURL: cfg.PublicURL, DomainRateLimit: cfg.Worker.DomainRateLimit},
		logger.With("component", "deliverer"),
	).WithGuards(a.breaker, a.limiter).WithPublisher(a.hub)

	return a, nil
}

func newTransport(cfg config.MailConfig, logger *slog.Logger) (transport.Transport, error) {
	switch cfg.Transport {
	case "smtp":
		t := transport.NewSMTPTransport(transport.SMTPConfig{
			Host:       cfg.SMTPHost,
			Port:       cfg.SMTPPort,
			Username:   cfg.SMTPUser,
			Password:   cfg.SMTPPassword,
			HelloName:  cfg.SMTPHello,
			RequireTLS: cfg.SMTPStartTLS,
		}, logger)
		if cfg.DKIMKeyFile != "" {
			signer, err := transport.LoadDKIMSigner(cfg.DKIMKeyFile, cfg.DKIMDomain, cfg.DKIMSelector)
			if err != nil {
				return nil, fmt.Errorf("loading dkim key: %w", err)
			}
			t.WithDKIM(signer)
			logger.Info("dkim signing enabled", "domain", cfg.DKIMDomain, "selector", cfg.DKIMSelector)
		}
		return t, nil
	case "http":
		return transport.NewHTTPTransport(cfg.APIURL, cfg.APIKey, 30*time.Second, logger), nil
	default:
		logger.Warn("using log transport, no email leaves this process")
		return transport.NewLogTransport(logger), nil
	}
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
