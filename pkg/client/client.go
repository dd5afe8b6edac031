// Package client is a Go client for the task API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/aiassistantthx/browser-ai-agent/internal/action"
	"github.com/aiassistantthx/browser-ai-agent/internal/task"
)

// Errors returned via APIError.Unwrap
var (
	ErrNotFound    = errors.New("task not found")
	ErrRejected    = errors.New("task rejected")
	ErrConflict    = errors.New("task is not cancellable")
	ErrUnavailable = errors.New("service unavailable")
)

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration

	// RetryCount applies to GET requests only
	RetryCount int
}

// Client talks to the HTTP API
type Client struct {
	config Config
	http   *resty.Client
}

// CreateResponse acknowledges a submitted instruction
type CreateResponse struct {
	TaskID         string          `json:"task_id"`
	Status         task.Status     `json:"status"`
	Message        string          `json:"message"`
	ParsedIntent   string          `json:"parsed_intent"`
	PlannedActions []action.Action `json:"planned_actions"`
	EstimatedTime  string          `json:"estimated_time"`
	Error          string          `json:"error,omitempty"`
}

// StatusView is the compact progress view of a task
type StatusView struct {
	TaskID        string      `json:"task_id"`
	Status        task.Status `json:"status"`
	CurrentStep   int         `json:"current_step"`
	TotalSteps    int         `json:"total_steps"`
	CurrentAction string      `json:"current_action,omitempty"`
	Error         string      `json:"error,omitempty"`
}

// Health is the body of GET /health
type Health struct {
	Status  string `json:"status"`
	Details struct {
		QueueHealthy bool   `json:"queue_healthy"`
		QueueError   string `json:"queue_error,omitempty"`
		QueueSize    int64  `json:"queue_size"`
		EngineBusy   bool   `json:"engine_busy"`
		Subscribers  int    `json:"subscribers"`
	} `json:"details"`
}

// APIError is a non-2xx reply
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// Unwrap maps status codes to the package errors
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnprocessableEntity:
		return ErrRejected
	case http.StatusConflict:
		return ErrConflict
	case http.StatusServiceUnavailable:
		return ErrUnavailable
	default:
		return nil
	}
}

// New creates a new client instance
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	h := resty.New().
		SetBaseURL(config.BaseURL).
		SetTimeout(config.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetRetryCount(config.RetryCount).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second)
	h.AddRetryCondition(retryCondition)

	return &Client{config: config, http: h}, nil
}

// retryCondition retries idempotent requests on transport errors and 5xx
func retryCondition(r *resty.Response, err error) bool {
	if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
		return false
	}
	if err != nil {
		return true
	}
	return r.StatusCode() >= 500
}

// CreateTask submits an instruction. A 503 reply still carries the failed
// task, which is returned with the error.
func (c *Client) CreateTask(ctx context.Context, text string, taskCtx map[string]interface{}, model string) (*CreateResponse, error) {
	body := map[string]interface{}{"text": text}
	if taskCtx != nil {
		body["context"] = taskCtx
	}
	if model != "" {
		body["model"] = model
	}

	var out CreateResponse
	resp, err := c.do(ctx, http.MethodPost, "/api/tasks", body, &out)
	if err != nil {
		if resp != nil && resp.StatusCode() == http.StatusServiceUnavailable && out.TaskID != "" {
			return &out, err
		}
		return nil, err
	}
	return &out, nil
}

// GetTask fetches the full record
func (c *Client) GetTask(ctx context.Context, taskID string) (*task.Task, error) {
	var out task.Task
	if _, err := c.do(ctx, http.MethodGet, "/api/tasks/"+taskID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTasks returns up to limit records, newest first. limit <= 0 uses the
// server default.
func (c *Client) ListTasks(ctx context.Context, limit int) ([]*task.Task, error) {
	path := "/api/tasks"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Tasks []*task.Task `json:"tasks"`
	}
	if _, err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

// GetStatus fetches the progress view
func (c *Client) GetStatus(ctx context.Context, taskID string) (*StatusView, error) {
	var out StatusView
	if _, err := c.do(ctx, http.MethodGet, "/api/tasks/"+taskID+"/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelTask requests cancellation
func (c *Client) CancelTask(ctx context.Context, taskID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/tasks/"+taskID, nil, nil)
	return err
}

// Health fetches service health. An unhealthy service returns the body and
// an error wrapping ErrUnavailable.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	req := c.http.R().SetContext(ctx).SetResult(&out).SetError(&out)
	resp, err := req.Get("/health")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return &out, &APIError{StatusCode: resp.StatusCode(), Message: out.Status}
	}
	return &out, nil
}

// WaitForCompletion polls the status view until the task is terminal or ctx
// is done
func (c *Client) WaitForCompletion(ctx context.Context, taskID string, interval time.Duration) (*task.Task, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		v, err := c.GetStatus(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if v.Status.Terminal() {
			return c.GetTask(ctx, taskID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) (*resty.Response, error) {
	apiErr := &APIError{}
	req := c.http.R().SetContext(ctx).SetError(apiErr)
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return resp, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		apiErr.StatusCode = resp.StatusCode()
		if apiErr.Message == "" {
			apiErr.Message = resp.String()
		}
		// Create replies with the task on 503
		if result != nil && resp.StatusCode() == http.StatusServiceUnavailable {
			_ = json.Unmarshal(resp.Body(), result)
		}
		return resp, apiErr
	}
	return resp, nil
}
