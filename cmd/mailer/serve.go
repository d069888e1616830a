package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Priya8975/campaign-mailer/internal/api"
	"github.com/Priya8975/campaign-mailer/internal/config"
	"github.com/Priya8975/campaign-mailer/internal/metrics"
	"github.com/Priya8975/campaign-mailer/internal/worker"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API, delivery workers and completion reconciler",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		return err
	}
	defer a.Close()

	pool := worker.NewPool(cfg.Worker.NumWorkers, a.deliverer, logger.With("component", "pool"))
	poller := worker.NewPoller(a.queue, pool, a.metrics, logger.With("component", "poller")).
		WithIntervals(cfg.Worker.PollInterval, cfg.Worker.ClaimBatch)

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: api.NewRouter(api.Deps{
			Campaigns:    a.service,
			Suppressions: a.filter,
			Tracker:      a.tracker,
			Breaker:      a.breaker,
			Store:        a.store,
			Queue:        a.queue,
			Hub:          a.hub,
			Logger:       logger.With("component", "api"),
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	metricsServer := metrics.NewServer(a.metrics, cfg.MetricsAddr, logger.With("component", "metrics"))

	g, gctx := errgroup.WithContext(ctx)

	// The reconciler outlives the pool so completions from in-flight jobs
	// are still applied during shutdown.
	reconcileCtx, stopReconciler := context.WithCancel(context.WithoutCancel(gctx))
	defer stopReconciler()

	pool.Start(gctx)
	g.Go(func() error { a.hub.Run(gctx); return nil })
	g.Go(func() error { a.reconciler.Run(reconcileCtx); return nil })
	g.Go(func() error {
		poller.Start(gctx)
		pool.Stop()
		stopReconciler()
		return nil
	})
	g.Go(func() error {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(metricsServer.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		metricsServer.Shutdown(shutdownCtx)
		// Let dispatch passes already running finish queueing.
		a.dispatcher.Wait()
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", "error", err)
		return err
	}
	logger.Info("server stopped")
	return nil
}
