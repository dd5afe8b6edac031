package queue

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrNoTask = errors.New("no task available")
	ErrClosed = errors.New("queue closed")
	ErrFull   = errors.New("queue full")
)

// Queue is a FIFO of task IDs feeding the single execution worker. Records
// themselves live in storage; the queue only carries order.
type Queue interface {
	// Enqueue appends a task ID
	Enqueue(ctx context.Context, taskID string) error

	// Dequeue removes the oldest task ID, blocking up to the queue's
	// dequeue timeout. Returns ErrNoTask when nothing arrived in time.
	Dequeue(ctx context.Context) (string, error)

	// Size returns the number of waiting task IDs
	Size(ctx context.Context) (int64, error)

	// Health checks if the queue is ready to serve requests
	Health(ctx context.Context) error

	// Close stops the queue; later calls return ErrClosed
	Close() error
}
