package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/aiassistantthx/browser-ai-agent/internal/task"
)

// MemoryStorage keeps task records in process memory. Finished records are
// bounded by count and age and the oldest is evicted once maxTasks is
// reached. Scheduled and running records are never evicted; the queue
// capacity bounds them.
type MemoryStorage struct {
	mu     sync.RWMutex
	active map[string]*task.Task
	done   *expirable.LRU[string, *task.Task]
}

// NewMemoryStorage creates an in-memory store
func NewMemoryStorage(maxTasks int, ttl time.Duration) *MemoryStorage {
	if maxTasks <= 0 {
		maxTasks = 10000
	}
	return &MemoryStorage{
		active: make(map[string]*task.Task),
		done:   expirable.NewLRU[string, *task.Task](maxTasks, nil, ttl),
	}
}

// SaveTask stores a copy of t
func (ms *MemoryStorage) SaveTask(_ context.Context, t *task.Task) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("invalid task")
	}
	c := t.Clone()

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if c.Status.Terminal() {
		delete(ms.active, c.ID)
		ms.done.Add(c.ID, c)
		return nil
	}
	ms.done.Remove(c.ID)
	ms.active[c.ID] = c
	return nil
}

// GetTask returns a copy of the stored task
func (ms *MemoryStorage) GetTask(_ context.Context, taskID string) (*task.Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}

	ms.mu.RLock()
	defer ms.mu.RUnlock()
	if t, ok := ms.active[taskID]; ok {
		return t.Clone(), nil
	}
	t, ok := ms.done.Peek(taskID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return t.Clone(), nil
}

// ListTasks returns copies of stored tasks, newest first
func (ms *MemoryStorage) ListTasks(_ context.Context, limit int) ([]*task.Task, error) {
	ms.mu.RLock()
	finished := ms.done.Values()
	tasks := make([]*task.Task, 0, len(ms.active)+len(finished))
	for _, t := range ms.active {
		tasks = append(tasks, t.Clone())
	}
	ms.mu.RUnlock()

	for _, t := range finished {
		tasks = append(tasks, t.Clone())
	}
	sortNewestFirst(tasks)
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

// DeleteTask removes a task
func (ms *MemoryStorage) DeleteTask(_ context.Context, taskID string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := ms.active[taskID]; ok {
		delete(ms.active, taskID)
		return nil
	}
	if !ms.done.Remove(taskID) {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return nil
}

// Len returns the number of live records
func (ms *MemoryStorage) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.active) + ms.done.Len()
}

// Close drops all records
func (ms *MemoryStorage) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.active = make(map[string]*task.Task)
	ms.done.Purge()
	return nil
}

func sortNewestFirst(tasks []*task.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID > tasks[j].ID
		}
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
}
