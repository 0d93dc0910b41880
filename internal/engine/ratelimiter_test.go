package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/Priya8975/notification-dispatch/internal/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupTestRL(t *testing.T) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRateLimiter(client, testLogger()), mr
}

func TestRateLimiter_RejectsThirtyFirstInOneMinute(t *testing.T) {
	rl, _ := setupTestRL(t)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		if err := rl.Allow(ctx, "user-1", "ep-1", 30); err != nil {
			t.Fatalf("send %d should be allowed (limit=30): %v", i+1, err)
		}
	}

	err := rl.Allow(ctx, "user-1", "ep-1", 30)
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("send 31 should fail with ErrRateLimited, got %v", err)
	}
}

func TestRateLimiter_RejectionDoesNotConsumeQuota(t *testing.T) {
	rl, mr := setupTestRL(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rl.Allow(ctx, "user-1", "ep-1", 2)
	}

	n, err := mr.ZMembers(rlKey("user-1", "ep-1"))
	if err != nil {
		t.Fatalf("reading window: %v", err)
	}
	if len(n) != 2 {
		t.Errorf("expected 2 members in window, got %d", len(n))
	}
}

func TestRateLimiter_ZeroLimit_AllowsAll(t *testing.T) {
	rl, _ := setupTestRL(t)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		if err := rl.Allow(ctx, "user-1", "ep-1", 0); err != nil {
			t.Errorf("send %d should be allowed with limit=0 (unlimited)", i+1)
		}
	}
}

func TestRateLimiter_KeyedByUserAndEndpoint(t *testing.T) {
	rl, _ := setupTestRL(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		rl.Allow(ctx, "user-1", "ep-1", 2)
	}

	if err := rl.Allow(ctx, "user-1", "ep-1", 2); err == nil {
		t.Error("user-1/ep-1 should be blocked")
	}
	if err := rl.Allow(ctx, "user-1", "ep-2", 2); err != nil {
		t.Errorf("user-1/ep-2 should be allowed: %v", err)
	}
	if err := rl.Allow(ctx, "user-2", "ep-1", 2); err != nil {
		t.Errorf("user-2/ep-1 should be allowed: %v", err)
	}
}

func TestRateLimiter_FailsOpenWhenRedisDown(t *testing.T) {
	rl, mr := setupTestRL(t)
	mr.Close()

	if err := rl.Allow(context.Background(), "user-1", "ep-1", 1); err != nil {
		t.Errorf("limiter should fail open, got %v", err)
	}
}
