package queue

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Pool is the bounded worker pool. Jobs beyond the buffer are rejected with
// ErrQueueFull; callers surface that as backpressure.
type Pool struct {
	executor *Executor
	jobs     chan Job
	workers  int
	logger   *slog.Logger

	active   atomic.Int64
	running  atomic.Int32
	wg       sync.WaitGroup
	stopOnce sync.Once
	quit     chan struct{}
}

// PoolHealth is a point-in-time snapshot for the health endpoint.
type PoolHealth struct {
	Workers    int   `json:"workers"`
	Running    int   `json:"running"`
	QueueDepth int   `json:"queue_depth"`
	Active     int64 `json:"active"`
}

// NewPool creates a pool; Start launches the workers.
func NewPool(executor *Executor, workers, buffer int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if buffer < 1 {
		buffer = workers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		executor: executor,
		jobs:     make(chan Job, buffer),
		workers:  workers,
		logger:   logger,
		quit:     make(chan struct{}),
	}
}

// Start spawns the worker goroutines.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("starting worker pool", "workers", p.workers, "buffer", cap(p.jobs))
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Submit enqueues a job without blocking.
func (p *Pool) Submit(job Job) error {
	select {
	case <-p.quit:
		return ErrStopped
	default:
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop rejects further submissions, lets in-flight jobs finish and returns.
// Jobs still queued are abandoned; orphan recovery reconciles them on the
// next startup.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
	})
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// Health returns pool statistics.
func (p *Pool) Health() PoolHealth {
	return PoolHealth{
		Workers:    p.workers,
		Running:    int(p.running.Load()),
		QueueDepth: len(p.jobs),
		Active:     p.active.Load(),
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	p.running.Add(1)
	defer p.running.Add(-1)
	logger := p.logger.With("worker", id)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.quit:
			return
		case job := <-p.jobs:
			p.active.Add(1)
			logger.Debug("executing job", "run_id", job.Run.ID, "resume", job.Resume)
			p.executor.Execute(ctx, job)
			p.active.Add(-1)
		}
	}
}
