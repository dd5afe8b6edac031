// Package events fans task lifecycle updates out to connected observers.
package events

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aiassistantthx/browser-ai-agent/internal/logger"
	"github.com/aiassistantthx/browser-ai-agent/internal/task"
)

// TypeTaskUpdate is the only event type pushed to subscribers
const TypeTaskUpdate = "task_update"

// Common errors
var (
	ErrSubscriberClosed = errors.New("subscriber closed")
	ErrSubscriberSlow   = errors.New("subscriber buffer full")
)

// Event is one lifecycle update
type Event struct {
	Type       string              `json:"type"`
	TaskID     string              `json:"task_id"`
	Status     task.Status         `json:"status"`
	Step       *int                `json:"step,omitempty"`
	TotalSteps *int                `json:"total_steps,omitempty"`
	Results    []task.ActionResult `json:"results,omitempty"`
	Error      string              `json:"error,omitempty"`
	Timestamp  time.Time           `json:"timestamp"`
}

// FromTask builds an event describing the task's current status
func FromTask(t *task.Task) Event {
	return Event{
		Type:      TypeTaskUpdate,
		TaskID:    t.ID,
		Status:    t.Status,
		Results:   append([]task.ActionResult(nil), t.Results...),
		Error:     t.Error,
		Timestamp: time.Now(),
	}
}

// WithProgress sets step (1-based) and total
func (e Event) WithProgress(step, total int) Event {
	e.Step = &step
	e.TotalSteps = &total
	return e
}

// Subscriber receives events. Send must not block for long; a returned
// error removes the subscriber.
type Subscriber interface {
	ID() string
	Send(Event) error
}

// Broadcaster delivers events to every registered subscriber
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[string]Subscriber
	logger *logger.Logger

	// OnChange is called with the new count after membership changes
	OnChange func(count int)
}

// NewBroadcaster creates an empty broadcaster
func NewBroadcaster(l *logger.Logger) *Broadcaster {
	if l == nil {
		l = logger.Or("broadcaster")
	}
	return &Broadcaster{
		subs:   make(map[string]Subscriber),
		logger: l,
	}
}

// Subscribe registers s, replacing any subscriber with the same ID
func (b *Broadcaster) Subscribe(s Subscriber) {
	b.mu.Lock()
	b.subs[s.ID()] = s
	n := len(b.subs)
	b.mu.Unlock()

	b.logger.Debug("Subscriber added", logger.Fields{"subscriber": s.ID(), "count": n})
	b.changed(n)
}

// Unsubscribe removes the subscriber with id; unknown IDs are ignored
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	_, ok := b.subs[id]
	delete(b.subs, id)
	n := len(b.subs)
	b.mu.Unlock()

	if ok {
		b.logger.Debug("Subscriber removed", logger.Fields{"subscriber": id, "count": n})
		b.changed(n)
	}
}

// Count returns the number of live subscribers
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Broadcast sends e to every subscriber. The lock is not held during sends.
// Subscribers whose Send fails or panics are dropped.
func (b *Broadcaster) Broadcast(e Event) {
	if e.Type == "" {
		e.Type = TypeTaskUpdate
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	snapshot := make([]Subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		snapshot = append(snapshot, s)
	}
	b.mu.RUnlock()

	var failed []Subscriber
	for _, s := range snapshot {
		if err := deliver(s, e); err != nil {
			b.logger.Warn("Dropping subscriber", logger.Fields{
				"subscriber": s.ID(),
				"task_id":    e.TaskID,
				"error":      err,
			})
			failed = append(failed, s)
		}
	}

	if len(failed) == 0 {
		return
	}

	b.mu.Lock()
	for _, s := range failed {
		// Only remove the instance that failed; a reconnect may reuse the ID
		if cur, ok := b.subs[s.ID()]; ok && cur == s {
			delete(b.subs, s.ID())
		}
	}
	n := len(b.subs)
	b.mu.Unlock()
	b.changed(n)
}

func deliver(s Subscriber, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panicked: %v", r)
		}
	}()
	return s.Send(e)
}

func (b *Broadcaster) changed(n int) {
	if b.OnChange != nil {
		b.OnChange(n)
	}
}
