package reservation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"studieplekken/internal/metrics"
)

const poolQueueKey = "reservations:pool"

// PoolItem is one queued admission decision, pushed when a user reserves
// before the timeslot's reservable-from moment.
type PoolItem struct {
	TimeslotID int       `json:"timeslot_id"`
	UserID     int       `json:"user_id"`
	Queued     time.Time `json:"queued"`
	Tries      int       `json:"tries,omitempty"`
}

// Queue is the Redis list the pool processor drains. LPush with BRPop gives
// first-come first-served order across processor restarts.
type Queue struct {
	redis *redis.Client
}

func NewQueue(redisAddr string) *Queue {
	return &Queue{
		redis: redis.NewClient(&redis.Options{
			Addr: redisAddr,
		}),
	}
}

func (q *Queue) Push(ctx context.Context, item PoolItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal pool item: %w", err)
	}
	if err := q.redis.LPush(ctx, poolQueueKey, data).Err(); err != nil {
		return fmt.Errorf("queue pool item: %w", err)
	}
	metrics.PoolQueueLength.Inc()
	return nil
}

// Pop blocks until an item arrives or the timeout passes. A nil item with a
// nil error means the timeout hit.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*PoolItem, error) {
	result, err := q.redis.BRPop(ctx, timeout, poolQueueKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop pool item: %w", err)
	}
	metrics.PoolQueueLength.Dec()

	var item PoolItem
	if err := json.Unmarshal([]byte(result[1]), &item); err != nil {
		return nil, fmt.Errorf("unmarshal pool item: %w", err)
	}
	return &item, nil
}

// Requeue puts a popped item back at the head of the list, so it comes
// around again after everything queued before it.
func (q *Queue) Requeue(ctx context.Context, item PoolItem) error {
	return q.Push(ctx, item)
}

// Length reads the current list length from Redis. The list outlives the
// process, so the gauge is reseeded from this on processor startup.
func (q *Queue) Length(ctx context.Context) int64 {
	length, _ := q.redis.LLen(ctx, poolQueueKey).Result()
	return length
}

func (q *Queue) Close() error {
	return q.redis.Close()
}
