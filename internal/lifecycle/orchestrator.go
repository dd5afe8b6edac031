// Package lifecycle ties decomposition, validation, storage, the work queue,
// the engine and the broadcaster together. Every status change of a task goes
// through the Orchestrator, which stores the record and then publishes it.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aiassistantthx/browser-ai-agent/internal/action"
	"github.com/aiassistantthx/browser-ai-agent/internal/decompose"
	"github.com/aiassistantthx/browser-ai-agent/internal/engine"
	"github.com/aiassistantthx/browser-ai-agent/internal/events"
	"github.com/aiassistantthx/browser-ai-agent/internal/logger"
	"github.com/aiassistantthx/browser-ai-agent/internal/monitoring"
	"github.com/aiassistantthx/browser-ai-agent/internal/queue"
	"github.com/aiassistantthx/browser-ai-agent/internal/storage"
	"github.com/aiassistantthx/browser-ai-agent/internal/task"
)

// Common errors
var (
	ErrRejected       = errors.New("task rejected")
	ErrScheduleFailed = errors.New("task could not be scheduled")
	ErrNotCancellable = errors.New("task is not cancellable")
	ErrCancelled      = errors.New("task cancelled")
	ErrRecordLost     = errors.New("task record lost before completion")
)

// Executor runs a task's actions
type Executor interface {
	Execute(ctx context.Context, t *task.Task, observe engine.StepObserver) ([]task.ActionResult, error)
	Busy() bool
}

// CreateRequest is one submitted instruction
type CreateRequest struct {
	Text    string
	Context map[string]interface{}
	Model   string
}

// StatusView is the compact progress view of a task
type StatusView struct {
	TaskID        string      `json:"task_id"`
	Status        task.Status `json:"status"`
	CurrentStep   int         `json:"current_step"`
	TotalSteps    int         `json:"total_steps"`
	CurrentAction action.Kind `json:"current_action,omitempty"`
	Error         string      `json:"error,omitempty"`
}

// Health summarizes the pipeline for the health endpoint
type Health struct {
	QueueHealthy bool   `json:"queue_healthy"`
	QueueError   string `json:"queue_error,omitempty"`
	QueueSize    int64  `json:"queue_size"`
	EngineBusy   bool   `json:"engine_busy"`
	Subscribers  int    `json:"subscribers"`
}

// Orchestrator owns task lifecycle transitions
type Orchestrator struct {
	decomposer  *decompose.Decomposer
	store       storage.Storage
	queue       queue.Queue
	engine      Executor
	broadcaster *events.Broadcaster
	metrics     *monitoring.Metrics
	logger      *logger.Logger

	// mu serializes read-modify-write of task records so a cancel and the
	// worker never interleave on the same record
	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// Config wires an Orchestrator. Metrics and Logger are optional.
type Config struct {
	Decomposer  *decompose.Decomposer
	Store       storage.Storage
	Queue       queue.Queue
	Engine      Executor
	Broadcaster *events.Broadcaster
	Metrics     *monitoring.Metrics
	Logger      *logger.Logger
}

// New creates an orchestrator
func New(cfg Config) *Orchestrator {
	if cfg.Decomposer == nil {
		cfg.Decomposer = decompose.New(decompose.Options{})
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Or("lifecycle")
	}
	if cfg.Broadcaster == nil {
		cfg.Broadcaster = events.NewBroadcaster(cfg.Logger.WithComponent("broadcaster"))
	}
	return &Orchestrator{
		decomposer:  cfg.Decomposer,
		store:       cfg.Store,
		queue:       cfg.Queue,
		engine:      cfg.Engine,
		broadcaster: cfg.Broadcaster,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		running:     make(map[string]context.CancelFunc),
	}
}

// Broadcaster returns the event broadcaster subscribers register with
func (o *Orchestrator) Broadcaster() *events.Broadcaster {
	return o.broadcaster
}

// Create decomposes and validates the instruction, stores the task as
// scheduled and enqueues it. An invalid task is never stored and yields
// ErrRejected. If the enqueue fails the stored task is marked failed and
// returned together with ErrScheduleFailed.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) (*task.Task, error) {
	text := strings.TrimSpace(req.Text)
	plan := o.decomposer.Decompose(text)

	actions := plan.Actions
	if actions == nil {
		actions = []action.Action{}
	}
	t := task.New(text, plan.ParsedIntent, actions)
	t.EstimatedTime = plan.EstimatedDuration
	t.Context = req.Context
	t.Model = req.Model

	if err := task.Check(t); err != nil {
		o.metrics.RecordTaskRejected()
		o.logger.Info("Task rejected", logger.Fields{"reason": err.Error(), "intent": plan.ParsedIntent})
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}

	o.mu.Lock()
	if err := t.MarkScheduled(); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	if err := o.store.SaveTask(ctx, t); err != nil {
		o.mu.Unlock()
		return nil, fmt.Errorf("failed to store task: %w", err)
	}
	o.mu.Unlock()

	// The scheduled event must go out before the worker can pick the task up
	o.broadcaster.Broadcast(events.FromTask(t))

	if err := o.queue.Enqueue(ctx, t.ID); err != nil {
		o.logger.Error("Failed to enqueue task", logger.Fields{"task_id": t.ID, "error": err})
		failed, ferr := o.fail(context.WithoutCancel(ctx), t.ID, nil, fmt.Errorf("scheduling failed: %w", err))
		if ferr != nil {
			return nil, fmt.Errorf("%w: %v", ErrScheduleFailed, ferr)
		}
		return failed, fmt.Errorf("%w: %v", ErrScheduleFailed, err)
	}

	o.metrics.RecordTaskCreated()
	o.logger.Info("Task scheduled", logger.Fields{
		"task_id": t.ID,
		"intent":  t.ParsedIntent,
		"actions": len(t.Actions),
	})
	return t.Clone(), nil
}

// Get returns the current record
func (o *Orchestrator) Get(ctx context.Context, taskID string) (*task.Task, error) {
	return o.store.GetTask(ctx, taskID)
}

// List returns up to limit records, newest first
func (o *Orchestrator) List(ctx context.Context, limit int) ([]*task.Task, error) {
	return o.store.ListTasks(ctx, limit)
}

// Status returns the progress view of a task
func (o *Orchestrator) Status(ctx context.Context, taskID string) (StatusView, error) {
	t, err := o.store.GetTask(ctx, taskID)
	if err != nil {
		return StatusView{}, err
	}
	return statusView(t), nil
}

func statusView(t *task.Task) StatusView {
	v := StatusView{
		TaskID:      t.ID,
		Status:      t.Status,
		CurrentStep: len(t.Results),
		TotalSteps:  len(t.Actions),
		Error:       t.Error,
	}
	if t.Status == task.StatusRunning && v.CurrentStep < v.TotalSteps {
		v.CurrentAction = t.Actions[v.CurrentStep].Kind
	}
	return v
}

// Cancel stops a scheduled or running task. A scheduled task fails
// immediately; a running task fails once the engine returns. Both end with
// ErrCancelled as their error and a terminal event.
func (o *Orchestrator) Cancel(ctx context.Context, taskID string) (*task.Task, error) {
	o.mu.Lock()
	t, err := o.store.GetTask(ctx, taskID)
	if err != nil {
		o.mu.Unlock()
		return nil, err
	}

	switch t.Status {
	case task.StatusRunning:
		cancel, ok := o.running[taskID]
		o.mu.Unlock()
		if !ok {
			// Running in another process; nothing local to stop
			return nil, fmt.Errorf("%w: %s is running elsewhere", ErrNotCancellable, taskID)
		}
		cancel()
		o.metrics.RecordTaskCancelled()
		o.logger.Info("Cancelling running task", logger.Fields{"task_id": taskID})
		return t, nil

	case task.StatusScheduled, task.StatusCreated:
		if err := t.MarkFailed(nil, ErrCancelled); err != nil {
			o.mu.Unlock()
			return nil, err
		}
		if err := o.store.SaveTask(ctx, t); err != nil {
			o.mu.Unlock()
			return nil, fmt.Errorf("failed to store task: %w", err)
		}
		o.mu.Unlock()

		o.metrics.RecordTaskCancelled()
		o.metrics.RecordTaskFinished(string(task.StatusFailed), false, 0)
		o.logger.Info("Cancelled scheduled task", logger.Fields{"task_id": taskID})
		o.broadcaster.Broadcast(events.FromTask(t))
		return t.Clone(), nil

	default:
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is %s", ErrNotCancellable, taskID, t.Status)
	}
}

// Health reports queue and engine state
func (o *Orchestrator) Health(ctx context.Context) Health {
	h := Health{
		QueueHealthy: true,
		Subscribers:  o.broadcaster.Count(),
	}
	if o.engine != nil {
		h.EngineBusy = o.engine.Busy()
	}
	if err := o.queue.Health(ctx); err != nil {
		h.QueueHealthy = false
		h.QueueError = err.Error()
		return h
	}
	if size, err := o.queue.Size(ctx); err == nil {
		h.QueueSize = size
	}
	return h
}

// fail moves a non-terminal task to failed, stores and publishes it
func (o *Orchestrator) fail(ctx context.Context, taskID string, results []task.ActionResult, cause error) (*task.Task, error) {
	o.mu.Lock()
	t, err := o.store.GetTask(ctx, taskID)
	if err != nil {
		o.mu.Unlock()
		return nil, err
	}
	if err := t.MarkFailed(results, cause); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	if err := o.store.SaveTask(ctx, t); err != nil {
		o.mu.Unlock()
		return nil, fmt.Errorf("failed to store task: %w", err)
	}
	o.mu.Unlock()

	o.metrics.RecordTaskFinished(string(task.StatusFailed), false, 0)
	o.broadcaster.Broadcast(events.FromTask(t))
	return t.Clone(), nil
}
