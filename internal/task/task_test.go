package task

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/aiassistantthx/browser-ai-agent/internal/action"
)

func newTestTask() *Task {
	return New("go to example.com", "navigation", []action.Action{action.Navigate("https://example.com")})
}

// TestNew verifies that New creates a task with correct defaults
func TestNew(t *testing.T) {
	tsk := newTestTask()

	if tsk.ID == "" {
		t.Error("Expected task ID to be generated")
	}
	if tsk.Status != StatusCreated {
		t.Errorf("Expected status %s, got %s", StatusCreated, tsk.Status)
	}
	if tsk.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}
	if tsk.Results == nil || len(tsk.Results) != 0 {
		t.Errorf("Expected empty non-nil results, got %v", tsk.Results)
	}
}

// TestNewID tests the identifier format and uniqueness
func TestNewID(t *testing.T) {
	pattern := regexp.MustCompile(`^task-[0-9a-f]{8}-\d+$`)
	seen := make(map[string]bool)

	for i := 0; i < 100; i++ {
		id := NewID()
		if !pattern.MatchString(id) {
			t.Fatalf("Unexpected id format: %s", id)
		}
		if seen[id] {
			t.Fatalf("Duplicate id: %s", id)
		}
		seen[id] = true
	}
}

// TestLifecycleHappyPath walks a task through every forward transition
func TestLifecycleHappyPath(t *testing.T) {
	tsk := newTestTask()

	if err := tsk.MarkScheduled(); err != nil {
		t.Fatalf("MarkScheduled: %v", err)
	}
	if err := tsk.MarkRunning(); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if tsk.StartedAt == nil {
		t.Error("Expected StartedAt to be set")
	}

	results := []ActionResult{Succeeded(action.KindNavigate, "", time.Millisecond)}
	if err := tsk.MarkCompleted(results); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if tsk.Status != StatusCompleted {
		t.Errorf("Expected status %s, got %s", StatusCompleted, tsk.Status)
	}
	if tsk.CompletedAt == nil {
		t.Error("Expected CompletedAt to be set")
	}
	if len(tsk.Results) != 1 {
		t.Errorf("Expected 1 result, got %d", len(tsk.Results))
	}
}

// TestStatusNeverMovesBackward checks that terminal and earlier statuses are unreachable
func TestStatusNeverMovesBackward(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
	}{
		{StatusCompleted, StatusRunning},
		{StatusFailed, StatusRunning},
		{StatusCompleted, StatusFailed},
		{StatusFailed, StatusCompleted},
		{StatusRunning, StatusScheduled},
		{StatusScheduled, StatusCreated},
		{StatusCreated, StatusRunning},
		{StatusScheduled, StatusCompleted},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			tsk := newTestTask()
			tsk.Status = tt.from

			if err := tsk.transition(tt.to); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("Expected ErrInvalidTransition, got %v", err)
			}
			if tsk.Status != tt.from {
				t.Errorf("Status changed to %s on rejected transition", tsk.Status)
			}
		})
	}
}

// TestMarkFailed tests failing a running task with partial results
func TestMarkFailed(t *testing.T) {
	tsk := newTestTask()
	_ = tsk.MarkScheduled()
	_ = tsk.MarkRunning()

	partial := []ActionResult{Errored(action.KindNavigate, errors.New("dns failure"), 0)}
	if err := tsk.MarkFailed(partial, errors.New("step 1 (navigate) failed")); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	if tsk.Status != StatusFailed {
		t.Errorf("Expected status %s, got %s", StatusFailed, tsk.Status)
	}
	if tsk.Error != "step 1 (navigate) failed" {
		t.Errorf("Unexpected error text %q", tsk.Error)
	}
	if tsk.Results[0].Detail != "dns failure" {
		t.Errorf("Unexpected detail %q", tsk.Results[0].Detail)
	}
	if err := tsk.MarkFailed(nil, nil); err == nil {
		t.Error("Expected second MarkFailed to be rejected")
	}
}

// TestMarkFailedFromScheduled covers cancellation before the engine picks the task up
func TestMarkFailedFromScheduled(t *testing.T) {
	tsk := newTestTask()
	_ = tsk.MarkScheduled()

	if err := tsk.MarkFailed(nil, errors.New("task cancelled")); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if len(tsk.Results) != 0 {
		t.Errorf("Expected no results, got %d", len(tsk.Results))
	}
}

// TestClone tests that a clone shares no mutable state with the original
func TestClone(t *testing.T) {
	tsk := newTestTask()
	tsk.Context = map[string]interface{}{"previous_tasks": []string{}}
	_ = tsk.MarkScheduled()
	_ = tsk.MarkRunning()

	c := tsk.Clone()
	c.Results = append(c.Results, Succeeded(action.KindNavigate, "", 0))
	c.Context["extra"] = true
	c.Actions[0] = action.Wait(1)
	*c.StartedAt = time.Time{}

	if len(tsk.Results) != 0 {
		t.Error("Clone shares results with original")
	}
	if _, ok := tsk.Context["extra"]; ok {
		t.Error("Clone shares context with original")
	}
	if tsk.Actions[0].Kind != action.KindNavigate {
		t.Error("Clone shares actions with original")
	}
	if tsk.StartedAt.IsZero() {
		t.Error("Clone shares StartedAt with original")
	}
	if (*Task)(nil).Clone() != nil {
		t.Error("Expected nil clone of nil task")
	}
}
