package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Priya8975/notification-dispatch/internal/domain"
)

// RateLimiter is a sliding-window limiter keyed by (user, endpoint). Each
// accepted send is a sorted-set member scored by its timestamp; a Lua script
// trims, counts and adds atomically.
type RateLimiter struct {
	redisClient *redis.Client
	logger      *slog.Logger
	script      *redis.Script
	window      time.Duration
}

var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

if redis.call('ZCARD', key) >= limit then
    return 0
end

redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window + 1000)
return 1
`)

func NewRateLimiter(redisClient *redis.Client, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		logger:      logger,
		script:      slidingWindowScript,
		window:      time.Minute,
	}
}

func rlKey(userID, endpointID string) string {
	return fmt.Sprintf("rl:%s:%s", userID, endpointID)
}

// Allow records one send for (userID, endpointID) and returns
// domain.ErrRateLimited when limit sends already happened inside the window.
// A limit <= 0 disables the check. Redis errors fail open.
func (rl *RateLimiter) Allow(ctx context.Context, userID, endpointID string, limit int) error {
	if limit <= 0 {
		return nil
	}

	now := time.Now().UnixMilli()
	result, err := rl.script.Run(ctx, rl.redisClient, []string{rlKey(userID, endpointID)},
		now, rl.window.Milliseconds(), limit, uuid.NewString(),
	).Int64()
	if err != nil {
		rl.logger.Error("rate limiter script failed",
			"error", err,
			"user_id", userID,
			"endpoint_id", endpointID,
		)
		return nil
	}

	if result == 0 {
		rl.logger.Debug("rate limited",
			"user_id", userID,
			"endpoint_id", endpointID,
			"limit", limit,
		)
		return fmt.Errorf("%w: %d per %s for endpoint %s", domain.ErrRateLimited, limit, rl.window, endpointID)
	}
	return nil
}
