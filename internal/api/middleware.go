package api

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/oremus-labs/genui-bridge/internal/logutil"
)

// Probe and scrape endpoints are only logged at debug level.
var quietPaths = map[string]bool{
	"/healthz": true,
	"/metrics": true,
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		requestID, _ := c.Get("requestID")
		fields := map[string]interface{}{
			"method":     method,
			"path":       path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"bytes":      c.Writer.Size(),
			"request_id": requestID,
		}
		if id := c.Param("id"); id != "" {
			fields["session_id"] = id
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			logutil.Warn("http_request", fields)
		case quietPaths[path]:
			logutil.Debug("http_request", fields)
		default:
			logutil.Info("http_request", fields)
		}
	}
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("requestID", id)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

// isStream reports whether the request will be answered with server-sent
// events.
func isStream(r *http.Request) bool {
	if strings.HasSuffix(r.URL.Path, "/events") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		stream := isStream(c.Request)
		if stream {
			httpStreamsInFlight.WithLabelValues(path).Inc()
			defer httpStreamsInFlight.WithLabelValues(path).Dec()
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		if !stream && !strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "text/event-stream") {
			httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
		}
	}
}

// authMiddleware accepts the token as a bearer credential or an X-API-Key
// header. An empty token disables auth.
func authMiddleware(token string) gin.HandlerFunc {
	if token == "" {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	return func(c *gin.Context) {
		presented := c.GetHeader("X-API-Key")
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			presented = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			httpUnauthorizedTotal.Inc()
			c.Header("WWW-Authenticate", `Bearer realm="genui"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
