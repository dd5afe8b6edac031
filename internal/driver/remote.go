package driver

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"

	"github.com/aiassistantthx/browser-ai-agent/internal/logger"
)

// RemoteConfig holds settings for the HTTP automation backend
type RemoteConfig struct {
	BaseURL      string
	Timeout      time.Duration
	StartRetries int
	RetryBase    time.Duration
	Headless     bool
}

// Remote drives an automation sidecar over JSON/HTTP:
//
//	POST   /sessions                 -> {"session_id": "..."}
//	POST   /sessions/{id}/actions    -> {"success": bool, "data": "...", "error": "..."}
//	DELETE /sessions/{id}
//
// An action answered with 404 means the selector matched nothing. 410 Gone
// means the sidecar no longer knows the session, e.g. after a restart.
type Remote struct {
	client    *resty.Client
	retries   int
	retryBase time.Duration
	headless  bool
	logger    *logger.Logger
}

type startRequest struct {
	Headless bool `json:"headless"`
}

type startResponse struct {
	SessionID string `json:"session_id"`
}

type actionRequest struct {
	Type     string `json:"type"`
	URL      string `json:"url,omitempty"`
	Selector string `json:"selector,omitempty"`
	Text     string `json:"text,omitempty"`
}

type actionResponse struct {
	Success bool   `json:"success"`
	Data    string `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// StatusError is a non-2xx answer from the backend
type StatusError struct {
	Op      string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: backend returned %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.Code, e.Message)
}

// Unwrap maps 404 to ErrElementNotFound and 410 to ErrSessionClosed so
// callers can check with errors.Is
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusNotFound:
		return ErrElementNotFound
	case http.StatusGone:
		return ErrSessionClosed
	default:
		return nil
	}
}

// NewRemote creates a remote driver
func NewRemote(cfg RemoteConfig, l *logger.Logger) *Remote {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryBase == 0 {
		cfg.RetryBase = 200 * time.Millisecond
	}
	if cfg.StartRetries < 0 {
		cfg.StartRetries = 0
	}
	if l == nil {
		l = logger.Or("driver")
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Remote{
		client:    client,
		retries:   cfg.StartRetries,
		retryBase: cfg.RetryBase,
		headless:  cfg.Headless,
		logger:    l,
	}
}

// Start opens a session, retrying transport failures and 5xx answers with
// exponential backoff
func (r *Remote) Start(ctx context.Context) (Session, error) {
	backoff := retry.WithMaxRetries(uint64(r.retries), retry.NewExponential(r.retryBase))

	var id string
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		var out startResponse
		var apiErr errorResponse
		resp, err := r.client.R().
			SetContext(ctx).
			SetBody(startRequest{Headless: r.headless}).
			SetResult(&out).
			SetError(&apiErr).
			Post("/sessions")
		if err != nil {
			r.logger.Warn("Session start failed", logger.Fields{"attempt": attempt, "error": err})
			return retry.RetryableError(fmt.Errorf("start session: %w", err))
		}
		if resp.IsError() {
			serr := &StatusError{Op: "start session", Code: resp.StatusCode(), Message: apiErr.Error}
			r.logger.Warn("Session start rejected", logger.Fields{"attempt": attempt, "status": resp.StatusCode()})
			if resp.StatusCode() >= 500 {
				return retry.RetryableError(serr)
			}
			return serr
		}
		if out.SessionID == "" {
			return fmt.Errorf("start session: backend returned no session id")
		}
		id = out.SessionID
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("Remote session started", logger.Fields{"session": id, "attempts": attempt})
	return &remoteSession{client: r.client, id: id}, nil
}

type remoteSession struct {
	client *resty.Client
	id     string
}

func (s *remoteSession) perform(ctx context.Context, req actionRequest) (string, error) {
	var out actionResponse
	var apiErr errorResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("id", s.id).
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post("/sessions/{id}/actions")
	if err != nil {
		return "", fmt.Errorf("%s: %w", req.Type, err)
	}
	if resp.IsError() {
		return "", &StatusError{Op: req.Type, Code: resp.StatusCode(), Message: apiErr.Error}
	}
	if !out.Success {
		if out.Error == "" {
			out.Error = "backend reported failure"
		}
		return "", fmt.Errorf("%s: %s", req.Type, out.Error)
	}
	return out.Data, nil
}

func (s *remoteSession) Navigate(ctx context.Context, url string) error {
	_, err := s.perform(ctx, actionRequest{Type: "navigate", URL: url})
	return err
}

func (s *remoteSession) Click(ctx context.Context, selector string) error {
	_, err := s.perform(ctx, actionRequest{Type: "click", Selector: selector})
	return err
}

func (s *remoteSession) Type(ctx context.Context, selector, text string) error {
	_, err := s.perform(ctx, actionRequest{Type: "type", Selector: selector, Text: text})
	return err
}

func (s *remoteSession) Extract(ctx context.Context, selector string) (string, error) {
	return s.perform(ctx, actionRequest{Type: "extract", Selector: selector})
}

// Wait pauses locally; the backend has nothing to do while the page idles
func (s *remoteSession) Wait(ctx context.Context, d time.Duration) error {
	return sleep(ctx, d)
}

func (s *remoteSession) Close(ctx context.Context) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("id", s.id).
		Delete("/sessions/{id}")
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if resp.IsError() && resp.StatusCode() != http.StatusNotFound && resp.StatusCode() != http.StatusGone {
		return &StatusError{Op: "close session", Code: resp.StatusCode()}
	}
	return nil
}
