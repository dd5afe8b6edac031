package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aiassistantthx/browser-ai-agent/internal/task"
)

const (
	// Redis keys for storage
	taskStorePrefix = "pilot:store:task:"
	createdIndexKey = "pilot:index:created"

	defaultTaskTTL = 24 * time.Hour
)

// NewRedisClient creates a pooled Redis client and checks the connection.
// The client is shared by the Redis store and the Redis queue.
func NewRedisClient(addr, password string, db, poolSize int) (*redis.Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     poolSize,
		MinIdleConns: poolSize / 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// RedisStorage implements Storage using Redis strings plus a sorted set
// ordering task IDs by creation time
type RedisStorage struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStorage creates a new Redis storage backend
func NewRedisStorage(client *redis.Client, ttl time.Duration) *RedisStorage {
	if ttl <= 0 {
		ttl = defaultTaskTTL
	}
	return &RedisStorage{
		client: client,
		ttl:    ttl,
	}
}

// SaveTask persists a task to Redis
func (rs *RedisStorage) SaveTask(ctx context.Context, t *task.Task) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("invalid task")
	}

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	pipe := rs.client.TxPipeline()
	pipe.Set(ctx, taskStorePrefix+t.ID, data, rs.ttl)
	pipe.ZAdd(ctx, createdIndexKey, redis.Z{
		Score:  float64(t.CreatedAt.UnixNano()),
		Member: t.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}

	// Drop index entries whose records have certainly expired
	cutoff := time.Now().Add(-rs.ttl).UnixNano()
	rs.client.ZRemRangeByScore(ctx, createdIndexKey, "-inf", fmt.Sprintf("(%d", cutoff))

	return nil
}

// GetTask retrieves a task by ID
func (rs *RedisStorage) GetTask(ctx context.Context, taskID string) (*task.Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}

	data, err := rs.client.Get(ctx, taskStorePrefix+taskID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	var t task.Task
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}

	return &t, nil
}

// ListTasks returns up to limit tasks, newest first
func (rs *RedisStorage) ListTasks(ctx context.Context, limit int) ([]*task.Task, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	taskIDs, err := rs.client.ZRevRange(ctx, createdIndexKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get task IDs: %w", err)
	}

	tasks := make([]*task.Task, 0, len(taskIDs))
	for _, taskID := range taskIDs {
		t, err := rs.GetTask(ctx, taskID)
		if errors.Is(err, ErrTaskNotFound) {
			// Record expired before the index caught up
			rs.client.ZRem(ctx, createdIndexKey, taskID)
			continue
		}
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}

	return tasks, nil
}

// DeleteTask removes a task from storage
func (rs *RedisStorage) DeleteTask(ctx context.Context, taskID string) error {
	if taskID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}

	n, err := rs.client.Del(ctx, taskStorePrefix+taskID).Result()
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	rs.client.ZRem(ctx, createdIndexKey, taskID)

	if n == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return nil
}

// Close closes the Redis connection
func (rs *RedisStorage) Close() error {
	// Note: We don't close the client here as it might be shared
	// The caller should manage the Redis client lifecycle
	return nil
}
