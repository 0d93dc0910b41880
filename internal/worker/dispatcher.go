package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/Priya8975/notification-dispatch/internal/engine"
)

// Queue is the claim side of the scheduled delivery queue.
type Queue interface {
	Claim(ctx context.Context, now time.Time, limit int64) ([]engine.QueuedItem, error)
}

// Dispatcher polls the delivery queue for due scheduled sends and hands each
// one to the pool.
type Dispatcher struct {
	queue        Queue
	pool         *Pool[engine.QueuedItem]
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int64
}

func NewDispatcher(queue Queue, pool *Pool[engine.QueuedItem], logger *slog.Logger, pollInterval time.Duration) *Dispatcher {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Dispatcher{
		queue:        queue,
		pool:         pool,
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    10,
	}
}

// Start runs the polling loop until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("scheduled send dispatcher started", "poll_interval", d.pollInterval.String())

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("scheduled send dispatcher stopping")
			return
		case <-ticker.C:
			d.poll(ctx)
		}
	}
}

// poll claims one batch and submits all of it. Claimed items are already out
// of the queue, so they are submitted even if ctx is cancelled meanwhile.
func (d *Dispatcher) poll(ctx context.Context) {
	items, err := d.queue.Claim(ctx, time.Now(), d.batchSize)
	if err != nil {
		d.logger.Error("failed to poll delivery queue", "error", err)
	}
	for _, item := range items {
		d.pool.Submit(item)
	}
	if len(items) > 0 && ctx.Err() != nil {
		d.logger.Info("submitted claimed batch during shutdown", "count", len(items))
	}
}
