// Package server exposes the orchestrator over HTTP and streams task events
// to websocket clients.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/aiassistantthx/browser-ai-agent/internal/config"
	"github.com/aiassistantthx/browser-ai-agent/internal/lifecycle"
	"github.com/aiassistantthx/browser-ai-agent/internal/logger"
	"github.com/aiassistantthx/browser-ai-agent/internal/monitoring"
)

// Server serves the task API
type Server struct {
	cfg     *config.Config
	orch    *lifecycle.Orchestrator
	metrics *monitoring.Metrics
	logger  *logger.Logger

	router   *gin.Engine
	upgrader websocket.Upgrader

	serverMu sync.RWMutex
	server   *http.Server
	ready    chan struct{}
}

// New builds the router. metrics may be nil, in which case /metrics is not
// mounted.
func New(cfg *config.Config, orch *lifecycle.Orchestrator, m *monitoring.Metrics, l *logger.Logger) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	if l == nil {
		l = logger.Or("server")
	}

	s := &Server{
		cfg:     cfg,
		orch:    orch,
		metrics: m,
		logger:  l,
		ready:   make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware(s.logger))
	router.Use(corsMiddleware(s.cfg.Server.AllowedOrigins))

	api := router.Group("/api")
	{
		api.POST("/tasks", s.handleCreate)
		api.GET("/tasks", s.handleList)
		api.GET("/tasks/:id", s.handleGet)
		api.GET("/tasks/:id/status", s.handleStatus)
		api.DELETE("/tasks/:id", s.handleCancel)
	}

	router.GET("/health", s.handleHealth)
	router.GET("/ws", s.handleStream)

	if s.metrics != nil && s.cfg.Metrics.Enabled {
		path := s.cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(s.metrics.Handler()))
	}
	return router
}

// Handler returns the HTTP handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Ready is closed once the listener is about to serve
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Run serves until Shutdown is called. It returns nil on a clean shutdown.
func (s *Server) Run() error {
	srv := &http.Server{
		Addr:         s.cfg.Server.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	s.serverMu.Lock()
	s.server = srv
	s.serverMu.Unlock()
	close(s.ready)

	s.logger.Info("Starting HTTP server", logger.Fields{"address": srv.Addr})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.serverMu.RLock()
	srv := s.server
	s.serverMu.RUnlock()

	if srv == nil {
		return nil
	}
	s.logger.Info("Shutting down HTTP server")
	return srv.Shutdown(ctx)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return originAllowed(s.cfg.Server.AllowedOrigins, origin)
}

func originAllowed(allowed []string, origin string) bool {
	for _, o := range allowed {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
