package task

import (
	"errors"
	"fmt"
)

// Validation errors
var (
	ErrMissingField = errors.New("missing required task field")
	ErrNoActions    = errors.New("task has no actions")
	ErrInvalidStep  = errors.New("task contains an invalid action")
)

// Validate reports whether the task is structurally executable
func Validate(t *Task) bool {
	return Check(t) == nil
}

// Check explains why a task is not executable. It never panics; anything
// unexpected while inspecting the task is reported as an error.
func Check(t *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task validation: %v", r)
		}
	}()

	if t == nil {
		return fmt.Errorf("%w: task is nil", ErrMissingField)
	}
	switch {
	case t.ID == "":
		return fmt.Errorf("%w: task_id", ErrMissingField)
	case t.OriginalText == "":
		return fmt.Errorf("%w: original_text", ErrMissingField)
	case t.ParsedIntent == "":
		return fmt.Errorf("%w: parsed_intent", ErrMissingField)
	case t.Actions == nil:
		return fmt.Errorf("%w: planned_actions", ErrMissingField)
	}
	if len(t.Actions) == 0 {
		return ErrNoActions
	}
	for i, a := range t.Actions {
		if verr := a.Validate(); verr != nil {
			return fmt.Errorf("%w: step %d: %v", ErrInvalidStep, i+1, verr)
		}
	}
	return nil
}
