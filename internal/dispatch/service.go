// Package dispatch is the notification fan-out core. It resolves the target
// endpoints for one logical notification, checks user preferences, renders
// one payload per channel and delivers with bounded concurrency while
// recording every attempt.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Priya8975/notification-dispatch/internal/channel"
	"github.com/Priya8975/notification-dispatch/internal/domain"
)

// Store is the persistence the dispatcher needs.
type Store interface {
	GetEndpointsMatching(ctx context.Context, f domain.EndpointFilter) ([]domain.Endpoint, error)
	GetEndpoint(ctx context.Context, id string) (*domain.Endpoint, error)
	FindEndpointByURL(ctx context.Context, url string) (*domain.Endpoint, error)
	UpsertEndpoint(ctx context.Context, ep *domain.Endpoint) error
	DeleteEndpoint(ctx context.Context, id string) (bool, error)
	CountActiveEndpoints(ctx context.Context) (int, error)

	RecordDeliveryAttempt(ctx context.Context, a *domain.DeliveryAttempt) error
	AppendFailureRecord(ctx context.Context, f *domain.FailureRecord) error
	ListFailures(ctx context.Context, f domain.FailureFilter) ([]domain.FailureRecord, error)
	UpdateFailure(ctx context.Context, f *domain.FailureRecord) error
	PurgeResolved(ctx context.Context, before time.Time, limit int) (int, error)
	CountUnresolvedFailures(ctx context.Context) (int, error)

	UpsertDailyStat(ctx context.Context, d domain.DailyStatDelta) error
	ListDailyStats(ctx context.Context, from, to time.Time) ([]domain.DailyStat, error)
}

// Preferences decides whether a user wants a notification on a channel.
type Preferences interface {
	Channels(ctx context.Context, userID string, t domain.NotificationType, p domain.Priority) map[domain.DeliveryChannel]bool
}

// RateLimiter rejects sends over a per-minute limit with domain.ErrRateLimited.
type RateLimiter interface {
	Allow(ctx context.Context, userID, endpointID string, limit int) error
}

// CircuitBreaker short-circuits sends to endpoints that keep failing.
type CircuitBreaker interface {
	Allow(ctx context.Context, endpointID string) error
	RecordSuccess(ctx context.Context, endpointID string)
	RecordFailure(ctx context.Context, endpointID string)
	Reset(ctx context.Context, endpointID string) error
}

// Realtime is the in-app push transport. Calls are best effort.
type Realtime interface {
	NotifyUser(userID, eventType string, payload any) error
	NotifyGroup(group, eventType string, payload any) error
	BroadcastAll(eventType string, payload any) error
}

// Scheduler queues a request for later delivery.
type Scheduler interface {
	Enqueue(ctx context.Context, dueAt time.Time, payload []byte) (string, error)
}

// Config tunes the dispatcher. Zero values take the defaults below.
type Config struct {
	// MaxConcurrency bounds in-flight sends per fan-out.
	MaxConcurrency int
	// SendTimeout bounds one transport call.
	SendTimeout time.Duration
	// SendDelay spaces successive chat sends and retry replays.
	SendDelay time.Duration
	// RateLimitPerMinute applies to endpoints without their own limit.
	// Zero or less means unlimited.
	RateLimitPerMinute int
	// RetryWindow is how far back the retry sweep looks.
	RetryWindow time.Duration
	// RecentWindow is the activity window behind SendRequest.RecentOnly.
	RecentWindow time.Duration
}

const (
	DefaultMaxConcurrency = 5
	DefaultSendTimeout    = 30 * time.Second
	DefaultRetryWindow    = 24 * time.Hour
	DefaultRecentWindow   = 30 * 24 * time.Hour
)

func (c Config) withDefaults() Config {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if c.RetryWindow <= 0 {
		c.RetryWindow = DefaultRetryWindow
	}
	if c.RecentWindow <= 0 {
		c.RecentWindow = DefaultRecentWindow
	}
	return c
}

// Service is the dispatch core.
type Service struct {
	store     Store
	prefs     Preferences
	adapters  *channel.Registry
	limiter   RateLimiter
	breaker   CircuitBreaker
	realtime  Realtime
	scheduler Scheduler
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time

	// background tracks fire-and-forget realtime work.
	background sync.WaitGroup
}

// Option wires an optional collaborator.
type Option func(*Service)

func WithRateLimiter(l RateLimiter) Option { return func(s *Service) { s.limiter = l } }

func WithCircuitBreaker(b CircuitBreaker) Option { return func(s *Service) { s.breaker = b } }

func WithRealtime(r Realtime) Option { return func(s *Service) { s.realtime = r } }

func WithScheduler(q Scheduler) Option { return func(s *Service) { s.scheduler = q } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(store Store, prefs Preferences, adapters *channel.Registry, cfg Config, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		prefs:    prefs,
		adapters: adapters,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Wait blocks until background realtime deliveries have finished.
func (s *Service) Wait() {
	s.background.Wait()
}
