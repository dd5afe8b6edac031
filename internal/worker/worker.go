package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aiassistantthx/browser-ai-agent/internal/logger"
	"github.com/aiassistantthx/browser-ai-agent/internal/queue"
)

// Processor runs one dequeued task to completion
type Processor interface {
	Process(ctx context.Context, taskID string) error
}

// Worker is the single consumer of the task queue. Tasks run one after
// another in dequeue order.
type Worker struct {
	id        string
	queue     queue.Queue
	processor Processor
	backoff   time.Duration
	logger    *logger.Logger

	// Graceful shutdown
	shutdownChan chan struct{}
	wg           sync.WaitGroup
	mu           sync.RWMutex
	running      bool

	// Stats
	tasksProcessed int64
	tasksFailed    int64
}

// Config holds worker configuration
type Config struct {
	ID string

	// ErrorBackoff is the pause after a queue error before dequeuing again
	ErrorBackoff time.Duration

	Logger *logger.Logger
}

// NewWorker creates a new worker instance
func NewWorker(q queue.Queue, p Processor, config Config) *Worker {
	if config.ErrorBackoff == 0 {
		config.ErrorBackoff = 500 * time.Millisecond
	}
	if config.ID == "" {
		config.ID = fmt.Sprintf("worker-%d", time.Now().UnixNano())
	}
	if config.Logger == nil {
		config.Logger = logger.Or("worker")
	}

	return &Worker{
		id:           config.ID,
		queue:        q,
		processor:    p,
		backoff:      config.ErrorBackoff,
		logger:       config.Logger,
		shutdownChan: make(chan struct{}),
	}
}

// Start begins the worker loop
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("worker %s is already running", w.id)
	}
	w.running = true
	w.shutdownChan = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("Starting", logger.Fields{"worker": w.id})

	w.wg.Add(1)
	go w.run(ctx)

	return nil
}

// Run starts the loop and blocks until ctx is done or Stop is called
func (w *Worker) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	w.wg.Wait()
	return nil
}

// run is the main worker loop
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	w.mu.RLock()
	shutdown := w.shutdownChan
	w.mu.RUnlock()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Context cancelled, shutting down", logger.Fields{"worker": w.id})
			return
		case <-shutdown:
			w.logger.Info("Shutdown signal received", logger.Fields{"worker": w.id})
			return
		default:
		}

		err := w.pollAndExecute(ctx)
		switch {
		case err == nil, errors.Is(err, queue.ErrNoTask):
		case errors.Is(err, queue.ErrClosed):
			w.logger.Info("Queue closed, stopping", logger.Fields{"worker": w.id})
			return
		case ctx.Err() != nil:
			return
		default:
			// Log error but continue running
			w.logger.Error("Worker error", logger.Fields{"worker": w.id, "error": err})
			select {
			case <-time.After(w.backoff):
			case <-shutdown:
			case <-ctx.Done():
			}
		}
	}
}

// pollAndExecute waits for a task ID and processes it
func (w *Worker) pollAndExecute(ctx context.Context) error {
	taskID, err := w.queue.Dequeue(ctx)
	if err != nil {
		return err
	}

	w.logger.Debug("Picked up task", logger.Fields{"worker": w.id, "task_id": taskID})

	if err := w.processor.Process(ctx, taskID); err != nil {
		w.mu.Lock()
		w.tasksFailed++
		w.mu.Unlock()
		return fmt.Errorf("task %s: %w", taskID, err)
	}

	w.mu.Lock()
	w.tasksProcessed++
	w.mu.Unlock()
	return nil
}

// Stop gracefully stops the worker. The task in progress, if any, finishes
// first.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("worker %s is not running", w.id)
	}
	w.running = false
	close(w.shutdownChan)
	w.mu.Unlock()

	w.logger.Info("Stopping...", logger.Fields{"worker": w.id})
	w.wg.Wait()
	w.logger.Info("Stopped", logger.Fields{"worker": w.id})
	return nil
}

// IsRunning returns whether the worker is currently running
func (w *Worker) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// Stats returns worker statistics
func (w *Worker) Stats() (processed, failed int64) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.tasksProcessed, w.tasksFailed
}

// ID returns the worker's unique identifier
func (w *Worker) ID() string {
	return w.id
}
