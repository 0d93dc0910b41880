package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Priya8975/notification-dispatch/internal/domain"
)

// Circuit breaker states
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

// CircuitBreaker trips per endpoint after consecutive transient failures so
// a struggling provider is not hammered by every fan-out. State lives in a
// Redis hash so all instances share it.
//
// closed -> open after threshold failures; open -> half-open after the
// cooldown; half-open -> closed on success, back to open on failure.
type CircuitBreaker struct {
	redisClient      *redis.Client
	logger           *slog.Logger
	failureThreshold int
	cooldownPeriod   time.Duration
	now              func() time.Time
}

// CircuitState is the externally visible breaker state of one endpoint.
type CircuitState struct {
	State        string `json:"state"`
	Failures     int    `json:"failures"`
	LastFailedAt string `json:"last_failed_at,omitempty"`
}

func NewCircuitBreaker(redisClient *redis.Client, logger *slog.Logger, threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{
		redisClient:      redisClient,
		logger:           logger,
		failureThreshold: threshold,
		cooldownPeriod:   cooldown,
		now:              time.Now,
	}
}

func cbKey(endpointID string) string {
	return fmt.Sprintf("cb:%s", endpointID)
}

// Allow returns domain.ErrCircuitOpen while the endpoint's circuit is open.
// Redis errors let the request through.
func (cb *CircuitBreaker) Allow(ctx context.Context, endpointID string) error {
	key := cbKey(endpointID)

	data, err := cb.redisClient.HGetAll(ctx, key).Result()
	if err != nil {
		cb.logger.Error("reading circuit state", "error", err, "endpoint_id", endpointID)
		return nil
	}
	if data["state"] != StateOpen {
		return nil
	}

	lastFailedAt, _ := strconv.ParseInt(data["last_failed_at"], 10, 64)
	if cb.now().Unix()-lastFailedAt < int64(cb.cooldownPeriod.Seconds()) {
		return fmt.Errorf("%w: endpoint %s", domain.ErrCircuitOpen, endpointID)
	}

	if err := cb.redisClient.HSet(ctx, key, "state", StateHalfOpen).Err(); err != nil {
		cb.logger.Error("moving circuit to half-open", "error", err, "endpoint_id", endpointID)
	}
	cb.logger.Info("circuit breaker half-open", "endpoint_id", endpointID)
	return nil
}

// RecordSuccess closes the circuit and clears the failure count.
func (cb *CircuitBreaker) RecordSuccess(ctx context.Context, endpointID string) {
	key := cbKey(endpointID)

	prev, _ := cb.redisClient.HGet(ctx, key, "state").Result()
	if prev == "" {
		return
	}
	if err := cb.redisClient.Del(ctx, key).Err(); err != nil {
		cb.logger.Error("resetting circuit", "error", err, "endpoint_id", endpointID)
		return
	}
	if prev == StateHalfOpen {
		cb.logger.Info("circuit breaker closed (recovered)", "endpoint_id", endpointID)
	}
}

// RecordFailure counts a transient failure and opens the circuit at the
// threshold, or immediately when a half-open probe fails.
func (cb *CircuitBreaker) RecordFailure(ctx context.Context, endpointID string) {
	key := cbKey(endpointID)

	pipe := cb.redisClient.TxPipeline()
	incr := pipe.HIncrBy(ctx, key, "failures", 1)
	pipe.HSet(ctx, key, "last_failed_at", cb.now().Unix())
	state := pipe.HGet(ctx, key, "state")
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		cb.logger.Error("recording circuit failure", "error", err, "endpoint_id", endpointID)
		return
	}
	failures := incr.Val()

	switch {
	case state.Val() == StateHalfOpen:
		cb.redisClient.HSet(ctx, key, "state", StateOpen)
		cb.logger.Warn("circuit breaker re-opened (probe failed)", "endpoint_id", endpointID)
	case state.Val() != StateOpen && failures >= int64(cb.failureThreshold):
		cb.redisClient.HSet(ctx, key, "state", StateOpen)
		cb.logger.Warn("circuit breaker opened",
			"endpoint_id", endpointID,
			"failures", failures,
			"threshold", cb.failureThreshold,
		)
	case state.Val() == "":
		cb.redisClient.HSet(ctx, key, "state", StateClosed)
	}
}

// Reset forgets all breaker state for the endpoint.
func (cb *CircuitBreaker) Reset(ctx context.Context, endpointID string) error {
	return cb.redisClient.Del(ctx, cbKey(endpointID)).Err()
}

// State reports the endpoint's breaker state without changing it.
func (cb *CircuitBreaker) State(ctx context.Context, endpointID string) CircuitState {
	data, err := cb.redisClient.HGetAll(ctx, cbKey(endpointID)).Result()
	if err != nil || len(data) == 0 {
		return CircuitState{State: StateClosed}
	}

	failures, _ := strconv.Atoi(data["failures"])
	lastFailed, _ := strconv.ParseInt(data["last_failed_at"], 10, 64)
	state := data["state"]
	if state == "" {
		state = StateClosed
	}
	if state == StateOpen && cb.now().Unix()-lastFailed >= int64(cb.cooldownPeriod.Seconds()) {
		state = StateHalfOpen
	}

	out := CircuitState{State: state, Failures: failures}
	if lastFailed > 0 {
		out.LastFailedAt = time.Unix(lastFailed, 0).UTC().Format(time.RFC3339)
	}
	return out
}
