package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aiassistantthx/browser-ai-agent/internal/logger"
)

// loggerMiddleware logs one line per request
func loggerMiddleware(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		fields := logger.Fields{
			"method":    c.Request.Method,
			"path":      path,
			"status":    c.Writer.Status(),
			"latency":   time.Since(start).String(),
			"client_ip": c.ClientIP(),
		}
		if msg := c.Errors.ByType(gin.ErrorTypePrivate).String(); msg != "" {
			fields["error"] = msg
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			l.Warn("Request failed", fields)
			return
		}
		l.Debug("Request completed", fields)
	}
}

// corsMiddleware answers preflight requests and sets CORS headers for
// allowed origins
func corsMiddleware(allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		switch {
		case len(allowed) == 0:
		case originAllowed(allowed, "*"):
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && originAllowed(allowed, origin):
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Add("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
