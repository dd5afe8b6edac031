package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryQueue is a bounded channel-backed FIFO
type MemoryQueue struct {
	items   chan string
	timeout time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

// NewMemoryQueue creates an in-process queue holding up to capacity IDs
func NewMemoryQueue(capacity int, dequeueTimeout time.Duration) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	if dequeueTimeout <= 0 {
		dequeueTimeout = time.Second
	}
	return &MemoryQueue{
		items:   make(chan string, capacity),
		timeout: dequeueTimeout,
		done:    make(chan struct{}),
	}
}

// Enqueue appends without blocking; a full queue returns ErrFull
func (mq *MemoryQueue) Enqueue(ctx context.Context, taskID string) error {
	if taskID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	select {
	case <-mq.done:
		return ErrClosed
	default:
	}

	select {
	case mq.items <- taskID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrFull
	}
}

// Dequeue waits for the next ID
func (mq *MemoryQueue) Dequeue(ctx context.Context) (string, error) {
	timer := time.NewTimer(mq.timeout)
	defer timer.Stop()

	select {
	case id := <-mq.items:
		return id, nil
	case <-mq.done:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", ErrNoTask
	}
}

// Size returns the number of waiting IDs
func (mq *MemoryQueue) Size(context.Context) (int64, error) {
	return int64(len(mq.items)), nil
}

// Health reports ErrClosed after Close
func (mq *MemoryQueue) Health(context.Context) error {
	select {
	case <-mq.done:
		return ErrClosed
	default:
		return nil
	}
}

// Close stops the queue. Waiting IDs are dropped.
func (mq *MemoryQueue) Close() error {
	mq.closeOnce.Do(func() { close(mq.done) })
	return nil
}
