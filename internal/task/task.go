package task

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aiassistantthx/browser-ai-agent/internal/action"
)

// Status represents the lifecycle position of a task
type Status string

const (
	StatusCreated   Status = "created"
	StatusScheduled Status = "scheduled"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ErrInvalidTransition is returned when a status change would move a task
// backwards or out of a terminal status
var ErrInvalidTransition = errors.New("invalid status transition")

// transitions lists the allowed next statuses for every non-terminal status
var transitions = map[Status][]Status{
	StatusCreated:   {StatusScheduled, StatusFailed},
	StatusScheduled: {StatusRunning, StatusFailed},
	StatusRunning:   {StatusCompleted, StatusFailed},
}

// Terminal reports whether no further transition is possible
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to next is allowed
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Task is one submitted instruction and its derived action sequence
type Task struct {
	ID            string                 `json:"task_id"`
	OriginalText  string                 `json:"original_text"`
	ParsedIntent  string                 `json:"parsed_intent"`
	Actions       []action.Action        `json:"planned_actions"`
	EstimatedTime string                 `json:"estimated_time,omitempty"`
	Status        Status                 `json:"status"`
	Results       []ActionResult         `json:"results"`
	Error         string                 `json:"error,omitempty"`
	Context       map[string]interface{} `json:"context,omitempty"`
	Model         string                 `json:"model,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	StartedAt     *time.Time             `json:"started_at,omitempty"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
}

// NewID generates a unique task identifier of the form task-<8 hex>-<unix seconds>
func NewID() string {
	return fmt.Sprintf("task-%s-%d", uuid.New().String()[:8], time.Now().Unix())
}

// New creates a task in the created status
func New(text, intent string, actions []action.Action) *Task {
	return &Task{
		ID:           NewID(),
		OriginalText: text,
		ParsedIntent: intent,
		Actions:      actions,
		Status:       StatusCreated,
		Results:      []ActionResult{},
		CreatedAt:    time.Now(),
	}
}

// transition moves the task to next or returns ErrInvalidTransition
func (t *Task) transition(next Status) error {
	if !t.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, next)
	}
	t.Status = next
	return nil
}

// MarkScheduled marks the task as accepted and waiting for the engine
func (t *Task) MarkScheduled() error {
	return t.transition(StatusScheduled)
}

// MarkRunning marks the task as started
func (t *Task) MarkRunning() error {
	if err := t.transition(StatusRunning); err != nil {
		return err
	}
	now := time.Now()
	t.StartedAt = &now
	return nil
}

// MarkCompleted marks the task as successfully completed
func (t *Task) MarkCompleted(results []ActionResult) error {
	if err := t.transition(StatusCompleted); err != nil {
		return err
	}
	t.finish(results)
	return nil
}

// MarkFailed marks the task as failed, keeping any partial results
func (t *Task) MarkFailed(results []ActionResult, err error) error {
	if terr := t.transition(StatusFailed); terr != nil {
		return terr
	}
	if err != nil {
		t.Error = err.Error()
	}
	t.finish(results)
	return nil
}

func (t *Task) finish(results []ActionResult) {
	if results != nil {
		t.Results = results
	}
	now := time.Now()
	t.CompletedAt = &now
}

// Clone returns a deep copy safe to hand to another goroutine
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Actions = append([]action.Action(nil), t.Actions...)
	c.Results = append([]ActionResult{}, t.Results...)
	if t.Context != nil {
		c.Context = make(map[string]interface{}, len(t.Context))
		for k, v := range t.Context {
			c.Context[k] = v
		}
	}
	if t.StartedAt != nil {
		started := *t.StartedAt
		c.StartedAt = &started
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		c.CompletedAt = &completed
	}
	return &c
}
