package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Priya8975/campaign-mailer/internal/queue"
)

// JobHandler processes one claimed job to completion, including its
// requeue or dead-letter bookkeeping.
type JobHandler interface {
	Handle(ctx context.Context, job queue.Job)
}

// Pool runs a fixed number of goroutines that drain the jobs channel.
type Pool struct {
	numWorkers int
	jobs       chan queue.Job
	handler    JobHandler
	logger     *slog.Logger
	wg         sync.WaitGroup
}

func NewPool(numWorkers int, handler JobHandler, logger *slog.Logger) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan queue.Job, numWorkers*2),
		handler:    handler,
		logger:     logger,
	}
}

// Start launches the workers. They run until Stop closes the channel or ctx
// is cancelled; jobs left unprocessed keep their lease and are reaped.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.Info("worker pool started", "num_workers", p.numWorkers)
}

func (p *Pool) Submit(job queue.Job) {
	p.jobs <- job
}

// Free is how many more jobs can be submitted without blocking.
func (p *Pool) Free() int {
	return cap(p.jobs) - len(p.jobs)
}

func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for job := range p.jobs {
		select {
		case <-ctx.Done():
			return
		default:
			p.handler.Handle(ctx, job)
		}
	}
}
