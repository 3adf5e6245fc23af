package handlers

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oremus-labs/genui-bridge/internal/events"
)

// StreamSessionEvents relays bus events for one session as server-sent
// events. The types query parameter takes a comma separated list.
func (h *Handler) StreamSessionEvents(c *gin.Context) {
	if h.bus == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event bus not configured"})
		return
	}
	filter := events.Filter{SessionID: c.Param("id")}
	if raw := c.Query("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filter.Types = append(filter.Types, t)
			}
		}
	}

	ctx := c.Request.Context()
	ch, cancel, err := h.bus.Subscribe(ctx, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer cancel()

	heartbeat := time.NewTicker(h.opts.Heartbeat)
	defer heartbeat.Stop()

	streamHeaders(c)
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case evt, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(evt.Type, evt)
			return true
		case <-heartbeat.C:
			c.SSEvent("heartbeat", gin.H{"time": time.Now().UTC()})
			return true
		}
	})
}

// streamHeaders commits the event stream response so clients see it open
// before the first event arrives.
func streamHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()
}
