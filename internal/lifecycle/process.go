package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aiassistantthx/browser-ai-agent/internal/events"
	"github.com/aiassistantthx/browser-ai-agent/internal/logger"
	"github.com/aiassistantthx/browser-ai-agent/internal/storage"
	"github.com/aiassistantthx/browser-ai-agent/internal/task"
)

// Process runs one dequeued task to a terminal status. Tasks that are no
// longer scheduled (cancelled while waiting) are skipped. A task that cannot
// be started is failed, or reported failed when its record is gone.
func (o *Orchestrator) Process(ctx context.Context, taskID string) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	t, err := o.begin(ctx, taskID, cancel)
	if err != nil {
		if errors.Is(err, storage.ErrTaskNotFound) {
			o.logger.Warn("Dequeued task no longer stored", logger.Fields{"task_id": taskID})
			o.broadcaster.Broadcast(lostEvent(taskID))
			return nil
		}
		o.logger.Error("Failed to start task", logger.Fields{"task_id": taskID, "error": err})
		if _, ferr := o.fail(context.WithoutCancel(ctx), taskID, nil, fmt.Errorf("could not start: %w", err)); ferr != nil {
			return errors.Join(err, ferr)
		}
		return nil
	}
	if t == nil {
		return nil
	}
	defer o.forget(taskID)

	o.metrics.RecordTaskStarted()
	o.logger.Info("Task running", logger.Fields{"task_id": t.ID, "actions": len(t.Actions)})
	o.broadcaster.Broadcast(events.FromTask(t))

	started := time.Now()
	progress := func(step, total int, r task.ActionResult) {
		o.progress(ctx, t.ID, step, total, r)
	}
	results, execErr := o.engine.Execute(runCtx, t, progress)

	// The terminal record is written even when ctx is already done
	final := context.WithoutCancel(ctx)

	var refused, interrupted error
	switch {
	case execErr != nil:
		refused = fmt.Errorf("execution refused: %w", execErr)
	case ctx.Err() != nil:
		interrupted = fmt.Errorf("interrupted by shutdown: %w", ctx.Err())
	case runCtx.Err() != nil:
		interrupted = ErrCancelled
	}

	done, err := o.finish(final, t.ID, results, refused, interrupted)
	if err != nil {
		o.logger.Error("Failed to record task outcome", logger.Fields{"task_id": t.ID, "error": err})
		if errors.Is(err, storage.ErrTaskNotFound) {
			o.broadcaster.Broadcast(lostEvent(t.ID))
		}
		return err
	}

	o.metrics.RecordTaskFinished(string(done.Status), true, time.Since(started))
	fields := logger.Fields{
		"task_id":  done.ID,
		"status":   string(done.Status),
		"results":  len(done.Results),
		"duration": time.Since(started).String(),
	}
	if done.Status == task.StatusFailed {
		fields["error"] = done.Error
		o.logger.Warn("Task failed", fields)
	} else {
		o.logger.Info("Task completed", fields)
	}
	o.broadcaster.Broadcast(events.FromTask(done))
	return nil
}

// begin moves a scheduled task to running and registers its cancel func.
// It returns nil, nil when the task is not in the scheduled status.
func (o *Orchestrator) begin(ctx context.Context, taskID string, cancel context.CancelFunc) (*task.Task, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	t, err := o.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status != task.StatusScheduled {
		o.logger.Debug("Skipping task", logger.Fields{"task_id": taskID, "status": string(t.Status)})
		return nil, nil
	}
	if err := t.MarkRunning(); err != nil {
		return nil, err
	}
	if err := o.store.SaveTask(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to store task: %w", err)
	}
	o.running[taskID] = cancel
	return t.Clone(), nil
}

// progress stores partial results and publishes a step event
func (o *Orchestrator) progress(ctx context.Context, taskID string, step, total int, r task.ActionResult) {
	o.mu.Lock()
	t, err := o.store.GetTask(ctx, taskID)
	if err == nil && t.Status == task.StatusRunning {
		t.Results = append(t.Results, r)
		err = o.store.SaveTask(ctx, t)
	}
	o.mu.Unlock()

	if err != nil {
		o.logger.Warn("Failed to record progress", logger.Fields{"task_id": taskID, "step": step, "error": err})
		return
	}
	o.broadcaster.Broadcast(events.FromTask(t).WithProgress(step, total))
}

// finish derives and stores the terminal status. refused forces failure;
// interrupted explains a run that stopped short but does not override a run
// that finished every action.
func (o *Orchestrator) finish(ctx context.Context, taskID string, results []task.ActionResult, refused, interrupted error) (*task.Task, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	t, err := o.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	switch {
	case refused != nil:
		err = t.MarkFailed(results, refused)
	case task.Outcome(results, len(t.Actions)) == task.StatusCompleted:
		err = t.MarkCompleted(results)
	case interrupted != nil:
		err = t.MarkFailed(results, interrupted)
	default:
		err = t.MarkFailed(results, failureCause(results, len(t.Actions)))
	}
	if err != nil {
		return nil, err
	}

	if err := o.store.SaveTask(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to store task: %w", err)
	}
	return t.Clone(), nil
}

func (o *Orchestrator) forget(taskID string) {
	o.mu.Lock()
	delete(o.running, taskID)
	o.mu.Unlock()
}

// lostEvent reports a task whose record disappeared before it finished
func lostEvent(taskID string) events.Event {
	return events.Event{
		Type:      events.TypeTaskUpdate,
		TaskID:    taskID,
		Status:    task.StatusFailed,
		Error:     ErrRecordLost.Error(),
		Timestamp: time.Now(),
	}
}

// failureCause names the action that stopped the run
func failureCause(results []task.ActionResult, total int) error {
	for i, r := range results {
		if r.Status == task.ResultError {
			return fmt.Errorf("step %d (%s) failed: %s", i+1, r.Kind, r.Detail)
		}
	}
	return fmt.Errorf("execution stopped after %d of %d actions", len(results), total)
}
