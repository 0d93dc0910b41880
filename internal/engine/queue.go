package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DeliveryQueueKey = "notification_queue"

// QueuedItem is one scheduled send request waiting in the delivery queue.
type QueuedItem struct {
	ID      string          `json:"id"`
	DueAt   time.Time       `json:"due_at"`
	Payload json.RawMessage `json:"payload"`
}

// DeliveryQueue is a Redis sorted set of scheduled requests scored by due
// time in microseconds.
type DeliveryQueue struct {
	redisClient *redis.Client
	key         string
}

func NewDeliveryQueue(redisClient *redis.Client) *DeliveryQueue {
	return &DeliveryQueue{redisClient: redisClient, key: DeliveryQueueKey}
}

// Enqueue schedules payload for dueAt and returns the item id.
func (q *DeliveryQueue) Enqueue(ctx context.Context, dueAt time.Time, payload []byte) (string, error) {
	item := QueuedItem{ID: uuid.NewString(), DueAt: dueAt.UTC(), Payload: payload}
	member, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("marshaling queued item: %w", err)
	}
	err = q.redisClient.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(dueAt.UnixMicro()),
		Member: string(member),
	}).Err()
	if err != nil {
		return "", fmt.Errorf("queuing scheduled send: %w", err)
	}
	return item.ID, nil
}

// Claim removes and returns up to limit items due at or before now. An item
// already removed by another instance is skipped.
func (q *DeliveryQueue) Claim(ctx context.Context, now time.Time, limit int64) ([]QueuedItem, error) {
	results, err := q.redisClient.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMicro(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("polling delivery queue: %w", err)
	}

	items := make([]QueuedItem, 0, len(results))
	for _, member := range results {
		removed, err := q.redisClient.ZRem(ctx, q.key, member).Result()
		if err != nil {
			return items, fmt.Errorf("removing queued item: %w", err)
		}
		if removed == 0 {
			continue
		}
		var item QueuedItem
		if err := json.Unmarshal([]byte(member), &item); err != nil {
			return items, fmt.Errorf("decoding queued item: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}

// Depth returns the number of queued items.
func (q *DeliveryQueue) Depth(ctx context.Context) (int64, error) {
	return q.redisClient.ZCard(ctx, q.key).Result()
}
