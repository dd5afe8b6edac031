// Package engine runs a task's actions against the single shared automation
// session, one task at a time, stopping at the first failure.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aiassistantthx/browser-ai-agent/internal/action"
	"github.com/aiassistantthx/browser-ai-agent/internal/driver"
	"github.com/aiassistantthx/browser-ai-agent/internal/logger"
	"github.com/aiassistantthx/browser-ai-agent/internal/monitoring"
	"github.com/aiassistantthx/browser-ai-agent/internal/task"
)

// Common errors
var (
	ErrBusy        = errors.New("engine busy")
	ErrSessionInit = errors.New("session initialization failed")
)

// StepObserver is called after every attempted action with the 1-based
// step number, the total action count and the action's result
type StepObserver func(step, total int, result task.ActionResult)

// Engine owns the automation session and the busy flag
type Engine struct {
	driver  driver.Driver
	logger  *logger.Logger
	metrics *monitoring.Metrics

	busy atomic.Bool

	mu      sync.Mutex
	session driver.Session
}

// New creates an engine. metrics may be nil.
func New(d driver.Driver, l *logger.Logger, m *monitoring.Metrics) *Engine {
	if l == nil {
		l = logger.Or("engine")
	}
	return &Engine{driver: d, logger: l, metrics: m}
}

// Busy reports whether a task is executing
func (e *Engine) Busy() bool {
	return e.busy.Load()
}

// Execute runs t's actions in order and returns one result per attempted
// action. It returns ErrBusy without running anything if another Execute is
// in progress. A cancelled ctx stops the run before the next action and
// records an error result for it.
func (e *Engine) Execute(ctx context.Context, t *task.Task, observe StepObserver) ([]task.ActionResult, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	e.metrics.SetEngineBusy(true)
	defer func() {
		e.busy.Store(false)
		e.metrics.SetEngineBusy(false)
	}()

	total := len(t.Actions)
	results := make([]task.ActionResult, 0, total)
	if total == 0 {
		return results, nil
	}

	record := func(r task.ActionResult) {
		results = append(results, r)
		if observe != nil {
			observe(len(results), total, r)
		}
	}

	session, err := e.ensureSession(ctx)
	if err != nil {
		e.logger.Error("Session initialization failed", logger.Fields{"task_id": t.ID, "error": err})
		record(task.Errored(t.Actions[0].Kind, fmt.Errorf("%w: %v", ErrSessionInit, err), 0))
		return results, nil
	}

	for i, a := range t.Actions {
		if err := ctx.Err(); err != nil {
			record(task.Errored(a.Kind, err, 0))
			break
		}

		start := time.Now()
		detail, err := dispatch(ctx, session, a)
		elapsed := time.Since(start)

		if err != nil {
			e.logger.Warn("Action failed", logger.Fields{
				"task_id": t.ID,
				"step":    i + 1,
				"action":  string(a.Kind),
				"error":   err,
			})
			e.metrics.RecordAction(string(a.Kind), string(task.ResultError), elapsed)
			record(task.Errored(a.Kind, err, elapsed))
			if errors.Is(err, driver.ErrSessionClosed) {
				e.mu.Lock()
				e.session = nil
				e.mu.Unlock()
			}
			break
		}

		e.logger.Debug("Action succeeded", logger.Fields{
			"task_id":  t.ID,
			"step":     i + 1,
			"action":   string(a.Kind),
			"duration": elapsed.String(),
		})
		e.metrics.RecordAction(string(a.Kind), string(task.ResultSuccess), elapsed)
		record(task.Succeeded(a.Kind, detail, elapsed))
	}

	return results, nil
}

// ensureSession starts the session on first use. A failed start leaves no
// session behind so the next call tries again.
func (e *Engine) ensureSession(ctx context.Context) (driver.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		return e.session, nil
	}

	s, err := e.driver.Start(ctx)
	e.metrics.RecordSessionStart(err)
	if err != nil {
		e.session = nil
		return nil, err
	}
	if s == nil {
		return nil, errors.New("driver returned no session")
	}

	e.session = s
	e.logger.Info("Automation session initialized")
	return s, nil
}

// dispatch maps an action kind to its driver call. Kinds outside the fixed
// set are rejected by validation, so reaching the default case is a bug.
func dispatch(ctx context.Context, s driver.Session, a action.Action) (string, error) {
	switch a.Kind {
	case action.KindNavigate:
		return "", s.Navigate(ctx, a.URL)
	case action.KindClick:
		return "", s.Click(ctx, a.Selector)
	case action.KindType:
		return "", s.Type(ctx, a.Selector, a.Text)
	case action.KindExtract:
		return s.Extract(ctx, a.Selector)
	case action.KindWait:
		if err := a.Validate(); err != nil {
			return "", err
		}
		return "", s.Wait(ctx, a.WaitDuration())
	default:
		panic(fmt.Sprintf("engine: dispatch of unknown action kind %q", a.Kind))
	}
}

// ResetSession closes and forgets the current session; the next task starts
// a fresh one
func (e *Engine) ResetSession(ctx context.Context) error {
	e.mu.Lock()
	s := e.session
	e.session = nil
	e.mu.Unlock()

	if s == nil {
		return nil
	}
	return s.Close(ctx)
}

// Close releases the session on shutdown
func (e *Engine) Close(ctx context.Context) error {
	if err := e.ResetSession(ctx); err != nil {
		e.logger.Warn("Failed to close session", logger.Fields{"error": err})
		return err
	}
	e.logger.Info("Engine closed")
	return nil
}
