package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/Priya8975/campaign-mailer/internal/metrics"
	"github.com/Priya8975/campaign-mailer/internal/queue"
)

// ClaimQueue is the read side of the delivery queue.
type ClaimQueue interface {
	Claim(ctx context.Context, limit int) ([]queue.Job, error)
	Reap(ctx context.Context) (int, error)
	Stats(ctx context.Context) (queue.Stats, error)
}

// Poller claims due jobs from Redis and feeds them to the pool. Claimed jobs
// are leased, so several poller processes can share one queue.
type Poller struct {
	queue        ClaimQueue
	pool         *Pool
	metrics      *metrics.Metrics
	logger       *slog.Logger
	pollInterval time.Duration
	reapInterval time.Duration
	batchSize    int
}

func NewPoller(q ClaimQueue, pool *Pool, m *metrics.Metrics, logger *slog.Logger) *Poller {
	return &Poller{
		queue:        q,
		pool:         pool,
		metrics:      m,
		logger:       logger,
		pollInterval: 100 * time.Millisecond,
		reapInterval: 10 * time.Second,
		batchSize:    10,
	}
}

// WithIntervals overrides the poll period and claim batch size.
func (p *Poller) WithIntervals(poll time.Duration, batch int) *Poller {
	if poll > 0 {
		p.pollInterval = poll
	}
	if batch > 0 {
		p.batchSize = batch
	}
	return p
}

// Start polls until ctx is cancelled.
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("poller started", "interval", p.pollInterval, "batch_size", p.batchSize)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	reaper := time.NewTicker(p.reapInterval)
	defer reaper.Stop()
	p.maintain(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopping")
			return
		case <-ticker.C:
			p.poll(ctx)
		case <-reaper.C:
			p.maintain(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	limit := min(p.batchSize, p.pool.Free())
	if limit <= 0 {
		return
	}

	jobs, err := p.queue.Claim(ctx, limit)
	if err != nil {
		p.logger.Error("failed to poll delivery queue", "error", err)
		return
	}
	for _, job := range jobs {
		p.pool.Submit(job)
	}
}

// maintain returns expired leases to the ready set and refreshes the queue
// gauges.
func (p *Poller) maintain(ctx context.Context) {
	if _, err := p.queue.Reap(ctx); err != nil {
		p.logger.Error("failed to reap leases", "error", err)
	}
	stats, err := p.queue.Stats(ctx)
	if err != nil {
		p.logger.Error("failed to read queue stats", "error", err)
		return
	}
	p.metrics.SetQueue(stats.Ready, stats.InFlight, stats.DeadLetters)
}
