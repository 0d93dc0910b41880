package worker

import (
	"context"
	"log/slog"
	"sync"
)

// Pool runs a fixed number of goroutines that drain a job channel through a
// handler. It bounds concurrency: at most numWorkers handlers run at once.
type Pool[T any] struct {
	numWorkers int
	jobs       chan T
	handle     func(context.Context, T)
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewPool creates a pool with the given number of workers. Values below one
// are raised to one.
func NewPool[T any](numWorkers int, handle func(context.Context, T), logger *slog.Logger) *Pool[T] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Pool[T]{
		numWorkers: numWorkers,
		jobs:       make(chan T, numWorkers*2),
		handle:     handle,
		logger:     logger,
	}
}

// Start launches the workers. They run until Stop closes the channel.
func (p *Pool[T]) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.logger.Debug("worker pool started", "num_workers", p.numWorkers)
}

// Submit blocks until a worker has buffer room for job.
func (p *Pool[T]) Submit(job T) {
	p.jobs <- job
}

// Stop closes the job channel and waits for every submitted job to finish.
func (p *Pool[T]) Stop() {
	close(p.jobs)
	p.wg.Wait()
	p.logger.Debug("worker pool stopped")
}

// Run processes jobs with bounded concurrency and returns once all are done.
func Run[T any](ctx context.Context, numWorkers int, jobs []T, handle func(context.Context, T), logger *slog.Logger) {
	p := NewPool(numWorkers, handle, logger)
	p.Start(ctx)
	for _, j := range jobs {
		p.Submit(j)
	}
	p.Stop()
}

func (p *Pool[T]) worker(ctx context.Context) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.handle(ctx, job)
	}
}
