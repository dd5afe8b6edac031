package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aiassistantthx/browser-ai-agent/internal/action"
	"github.com/aiassistantthx/browser-ai-agent/internal/lifecycle"
	"github.com/aiassistantthx/browser-ai-agent/internal/logger"
	"github.com/aiassistantthx/browser-ai-agent/internal/storage"
	"github.com/aiassistantthx/browser-ai-agent/internal/task"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// CreateTaskRequest is the body of POST /api/tasks. task_text is accepted as
// an alias of text.
type CreateTaskRequest struct {
	Text     string                 `json:"text"`
	TaskText string                 `json:"task_text,omitempty"`
	Context  map[string]interface{} `json:"context,omitempty"`
	Model    string                 `json:"model,omitempty"`
}

// CreateTaskResponse acknowledges a scheduled task
type CreateTaskResponse struct {
	TaskID         string          `json:"task_id"`
	Status         task.Status     `json:"status"`
	Message        string          `json:"message"`
	ParsedIntent   string          `json:"parsed_intent"`
	PlannedActions []action.Action `json:"planned_actions"`
	EstimatedTime  string          `json:"estimated_time"`
	Error          string          `json:"error,omitempty"`
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error string `json:"error"`
}

func newCreateResponse(t *task.Task, message string) CreateTaskResponse {
	return CreateTaskResponse{
		TaskID:         t.ID,
		Status:         t.Status,
		Message:        message,
		ParsedIntent:   t.ParsedIntent,
		PlannedActions: t.Actions,
		EstimatedTime:  t.EstimatedTime,
		Error:          t.Error,
	}
}

func (s *Server) handleCreate(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Warn("Failed to decode task request", logger.Fields{"error": err.Error()})
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.Text == "" {
		req.Text = req.TaskText
	}

	t, err := s.orch.Create(c.Request.Context(), lifecycle.CreateRequest{
		Text:    req.Text,
		Context: req.Context,
		Model:   req.Model,
	})
	if err != nil {
		if errors.Is(err, lifecycle.ErrScheduleFailed) && t != nil {
			c.JSON(http.StatusServiceUnavailable, newCreateResponse(t, "task could not be scheduled"))
			return
		}
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newCreateResponse(t, "task scheduled"))
}

func (s *Server) handleList(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxListLimit)
	}

	tasks, err := s.orch.List(c.Request.Context(), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "count": len(tasks)})
}

func (s *Server) handleGet(c *gin.Context) {
	t, err := s.orch.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleStatus(c *gin.Context) {
	v, err := s.orch.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) handleCancel(c *gin.Context) {
	t, err := s.orch.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"task_id": t.ID,
		"status":  t.Status,
		"message": "cancellation requested",
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	h := s.orch.Health(c.Request.Context())
	status := "healthy"
	code := http.StatusOK
	if !h.QueueHealthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "details": h})
}

// writeError maps orchestrator errors to status codes
func (s *Server) writeError(c *gin.Context, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		_ = c.Error(err)
		s.logger.Error("Request error", logger.Fields{"path": c.FullPath(), "error": err})
	}
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, lifecycle.ErrRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, lifecycle.ErrNotCancellable):
		return http.StatusConflict
	case errors.Is(err, lifecycle.ErrScheduleFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
