package task

import (
	"errors"
	"testing"

	"github.com/aiassistantthx/browser-ai-agent/internal/action"
)

// TestValidate covers every structural rule
func TestValidate(t *testing.T) {
	valid := func() *Task {
		return New("go to a.com then wait 1s", "navigation", []action.Action{
			action.Navigate("https://a.com"),
			action.Wait(1),
		})
	}

	tests := []struct {
		name    string
		mutate  func(*Task) *Task
		want    bool
		wantErr error
	}{
		{"well formed", func(t *Task) *Task { return t }, true, nil},
		{"nil task", func(*Task) *Task { return nil }, false, ErrMissingField},
		{"missing id", func(t *Task) *Task { t.ID = ""; return t }, false, ErrMissingField},
		{"missing text", func(t *Task) *Task { t.OriginalText = ""; return t }, false, ErrMissingField},
		{"missing intent", func(t *Task) *Task { t.ParsedIntent = ""; return t }, false, ErrMissingField},
		{"nil actions", func(t *Task) *Task { t.Actions = nil; return t }, false, ErrMissingField},
		{"empty actions", func(t *Task) *Task { t.Actions = []action.Action{}; return t }, false, ErrNoActions},
		{
			"unrecognized kind among valid actions",
			func(t *Task) *Task {
				t.Actions = append(t.Actions, action.Action{Kind: "scroll", Selector: "footer"})
				return t
			},
			false, ErrInvalidStep,
		},
		{
			"required param missing",
			func(t *Task) *Task {
				t.Actions = append(t.Actions, action.Action{Kind: action.KindClick})
				return t
			},
			false, ErrInvalidStep,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tsk := tt.mutate(valid())

			if got := Validate(tsk); got != tt.want {
				t.Errorf("Validate() = %v, want %v", got, tt.want)
			}
			err := Check(tsk)
			if tt.wantErr == nil && err != nil {
				t.Errorf("Check() unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Check() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
