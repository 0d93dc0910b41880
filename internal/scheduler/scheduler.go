package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// CleanupSpec runs the resolved-failure purge once a day.
const CleanupSpec = "@daily"

// ResolvedRetention is how long resolved failure records are kept.
const ResolvedRetention = 30 * 24 * time.Hour

// Sweeper is the part of the dispatch service the scheduler drives.
type Sweeper interface {
	RetryFailed(ctx context.Context, ids []string) (int, error)
	PurgeResolved(ctx context.Context, olderThan time.Duration) (int, error)
}

// Scheduler runs the periodic retry sweep and cleanup.
type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// New registers the jobs. retrySpec is any robfig/cron expression such as
// "@every 10m".
func New(sweeper Sweeper, retrySpec string, logger *slog.Logger) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		sweeper: sweeper,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	cl := cronLogger{logger}
	s.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if _, err := s.cron.AddFunc(retrySpec, s.retrySweep); err != nil {
		cancel()
		return nil, fmt.Errorf("scheduling retry sweep %q: %w", retrySpec, err)
	}
	if _, err := s.cron.AddFunc(CleanupSpec, s.cleanup); err != nil {
		cancel()
		return nil, fmt.Errorf("scheduling cleanup: %w", err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) retrySweep() {
	start := time.Now()
	resolved, err := s.sweeper.RetryFailed(s.ctx, nil)
	if err != nil {
		s.logger.Warn("retry sweep finished with errors", "resolved", resolved, "error", err)
		return
	}
	s.logger.Info("retry sweep finished", "resolved", resolved, "duration_ms", time.Since(start).Milliseconds())
}

func (s *Scheduler) cleanup() {
	purged, err := s.sweeper.PurgeResolved(s.ctx, ResolvedRetention)
	if err != nil {
		s.logger.Error("failure cleanup failed", "purged", purged, "error", err)
		return
	}
	s.logger.Info("failure cleanup finished", "purged", purged)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
