// Package httpmw holds the Gin middleware shared by the core HTTP server:
// structured request logging, panic recovery, and the permissive CORS
// policy the indicator UI and any local tool needs (spec.md §6).
package httpmw

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZAKERR/agent-desk/internal/common/logger"
)

const Version = "0.1.0"

// RequestLogger logs HTTP request details after the handler completes.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		fields := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration_ms", latency.Milliseconds(),
		}
		if status >= 500 {
			log.Sugar().Errorw("http", fields...)
		} else {
			log.Sugar().Debugw("http", fields...)
		}
	}
}

// Recovery converts a panicking handler into a 500 instead of killing the
// daemon over one bad request.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Sugar().Errorw("panic recovered", "error", r, "path", c.Request.URL.Path)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "internal error"})
			}
		}()
		c.Next()
	}
}

// CORS allows any origin/method/header, matching the local-only trust
// model: the core server only ever binds 127.0.0.1.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "*")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// VersionHeader stamps every response with the daemon's semver, per spec.md §6.
func VersionHeader() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("x-agent-desk-version", Version)
		c.Next()
	}
}
