package storage

import (
	"context"
	"errors"

	"github.com/aiassistantthx/browser-ai-agent/internal/task"
)

// Common errors
var (
	ErrTaskNotFound = errors.New("task not found")
)

// Storage defines the interface for persisting task records
type Storage interface {
	// SaveTask inserts or replaces a task record
	SaveTask(ctx context.Context, t *task.Task) error

	// GetTask retrieves a task by ID, ErrTaskNotFound if absent or evicted
	GetTask(ctx context.Context, taskID string) (*task.Task, error)

	// ListTasks returns up to limit tasks, newest first. limit <= 0 means all
	ListTasks(ctx context.Context, limit int) ([]*task.Task, error)

	// DeleteTask removes a task from storage
	DeleteTask(ctx context.Context, taskID string) error

	// Close releases resources held by the store
	Close() error
}
