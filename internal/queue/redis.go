package queue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Redis keys
	pendingKey        = "pilot:queue:pending"
	defaultDequeueTTL = time.Second
)

// RedisQueue implements Queue using a Redis list (RPUSH / BLPOP)
type RedisQueue struct {
	client  *redis.Client
	key     string
	timeout time.Duration
	closed  atomic.Bool
}

// NewRedisQueue creates a Redis-backed queue on a shared client
func NewRedisQueue(client *redis.Client, dequeueTimeout time.Duration) (*RedisQueue, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if dequeueTimeout <= 0 {
		dequeueTimeout = defaultDequeueTTL
	}
	return &RedisQueue{
		client:  client,
		key:     pendingKey,
		timeout: dequeueTimeout,
	}, nil
}

// Enqueue appends a task ID to the tail of the list
func (rq *RedisQueue) Enqueue(ctx context.Context, taskID string) error {
	if taskID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	if rq.closed.Load() {
		return ErrClosed
	}

	if err := rq.client.RPush(ctx, rq.key, taskID).Err(); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// Dequeue pops the head of the list, blocking up to the dequeue timeout
func (rq *RedisQueue) Dequeue(ctx context.Context) (string, error) {
	if rq.closed.Load() {
		return "", ErrClosed
	}

	res, err := rq.client.BLPop(ctx, rq.timeout, rq.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoTask
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if rq.closed.Load() {
			return "", ErrClosed
		}
		return "", fmt.Errorf("failed to dequeue task: %w", err)
	}
	// BLPOP replies with [key, value]
	if len(res) != 2 {
		return "", fmt.Errorf("unexpected BLPOP reply: %v", res)
	}
	return res[1], nil
}

// Size returns the number of waiting IDs
func (rq *RedisQueue) Size(ctx context.Context) (int64, error) {
	size, err := rq.client.LLen(ctx, rq.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue size: %w", err)
	}
	return size, nil
}

// Health checks if the queue is healthy
func (rq *RedisQueue) Health(ctx context.Context) error {
	if rq.closed.Load() {
		return ErrClosed
	}
	return rq.client.Ping(ctx).Err()
}

// Close marks the queue closed. The shared client is closed by its owner.
func (rq *RedisQueue) Close() error {
	rq.closed.Store(true)
	return nil
}
