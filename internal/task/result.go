package task

import (
	"time"

	"github.com/aiassistantthx/browser-ai-agent/internal/action"
)

// ResultStatus is the outcome of a single attempted action
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultError   ResultStatus = "error"
)

// ActionResult represents the outcome of one attempted action
type ActionResult struct {
	Status   ResultStatus  `json:"status"`
	Kind     action.Kind   `json:"action"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Succeeded builds a success result; detail carries extracted data if any
func Succeeded(kind action.Kind, detail string, d time.Duration) ActionResult {
	return ActionResult{Status: ResultSuccess, Kind: kind, Detail: detail, Duration: d}
}

// Errored builds an error result from the driver failure
func Errored(kind action.Kind, err error, d time.Duration) ActionResult {
	r := ActionResult{Status: ResultError, Kind: kind, Duration: d}
	if err != nil {
		r.Detail = err.Error()
	}
	return r
}

// Outcome derives the terminal status for a run that attempted results out
// of total actions. Completed requires every action to have run and succeeded.
func Outcome(results []ActionResult, total int) Status {
	if len(results) != total {
		return StatusFailed
	}
	for _, r := range results {
		if r.Status != ResultSuccess {
			return StatusFailed
		}
	}
	return StatusCompleted
}

// FirstError returns the first error result, if any
func FirstError(results []ActionResult) (ActionResult, bool) {
	for _, r := range results {
		if r.Status == ResultError {
			return r, true
		}
	}
	return ActionResult{}, false
}
