package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/oremus-labs/genui-bridge/internal/events"
	"github.com/oremus-labs/genui-bridge/internal/render"
	"github.com/oremus-labs/genui-bridge/internal/sessions"
	"github.com/oremus-labs/genui-bridge/internal/store"
)

type actionRequest struct {
	Name       string                 `json:"name" binding:"required"`
	ElementKey string                 `json:"elementKey,omitempty"`
	Params     map[string]interface{} `json:"params,omitempty"`
}

// StartSession persists a session and starts consuming the upstream
// stream. With a job queue configured the session is handed to a worker.
func (h *Handler) StartSession(c *gin.Context) {
	var req sessions.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.queue != nil {
		sess, err := h.sessions.Create(sessions.SourceQueue, req)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := h.queue.Enqueue(c.Request.Context(), sess.ID, req); err != nil {
			log.Printf("Failed to enqueue session %s: %v", sess.ID, err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to enqueue session"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"session": sess, "queued": true})
		return
	}

	sess, err := h.sessions.Start(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"session": sess, "queued": false})
}

// ListSessions returns recent sessions, newest first.
func (h *Handler) ListSessions(c *gin.Context) {
	status := store.SessionStatus(strings.ToLower(c.Query("status")))
	list, err := h.sessions.List(status, queryLimit(c, 50))
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": list})
}

// GetSession returns one session record.
func (h *Handler) GetSession(c *gin.Context) {
	sess, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sess)
}

// GetSessionTree returns the newest snapshot for a session. Pass
// validate=true to include a validation report.
func (h *Handler) GetSessionTree(c *gin.Context) {
	id := c.Param("id")
	tree, err := h.sessions.Snapshot(c.Request.Context(), id)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	resp := gin.H{"sessionId": id, "tree": tree}
	if queryBool(c, "validate") {
		resp["validation"] = h.validate(tree)
	}
	c.JSON(http.StatusOK, resp)
}

// GetSessionOutline renders the newest snapshot as a text outline.
func (h *Handler) GetSessionOutline(c *gin.Context) {
	tree, err := h.sessions.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.String(http.StatusOK, render.Outline(tree, h.registry))
}

// SessionHistory returns recorded patch failures and state changes.
func (h *Handler) SessionHistory(c *gin.Context) {
	entries, err := h.sessions.History(c.Param("id"), queryLimit(c, h.opts.HistoryLimit))
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

// CancelSession stops a running session. A session still waiting in the
// queue is marked cancelled so no worker runs it. Sessions running on another
// replica or a worker are cancelled through a session.cancel event.
func (h *Handler) CancelSession(c *gin.Context) {
	id := c.Param("id")
	err := h.sessions.Cancel(id)
	if err == nil {
		log.Printf("Cancelled session %s", id)
		c.JSON(http.StatusAccepted, gin.H{"status": "cancelling", "sessionId": id})
		return
	}
	if !errors.Is(err, sessions.ErrNotLive) {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	sess, getErr := h.sessions.Get(id)
	if getErr != nil {
		c.JSON(errorStatus(getErr), gin.H{"error": getErr.Error()})
		return
	}
	if sess.Status.Finished() {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "status": sess.Status})
		return
	}
	if sess.Status == store.SessionPending {
		cur, cancelErr := h.sessions.CancelPending(id)
		if cancelErr != nil {
			c.JSON(errorStatus(cancelErr), gin.H{"error": cancelErr.Error()})
			return
		}
		// A worker may have dequeued it already; let it stop too.
		if h.bus != nil {
			evt := events.Event{Type: events.TypeSessionCancel, SessionID: id}
			if err := h.bus.Publish(c.Request.Context(), evt); err != nil {
				log.Printf("Failed to forward cancel for session %s: %v", id, err)
			}
		}
		status := "cancelling"
		if cur.Status == store.SessionCancelled {
			status = string(cur.Status)
		}
		log.Printf("Cancelled queued session %s", id)
		c.JSON(http.StatusAccepted, gin.H{"status": status, "sessionId": id})
		return
	}
	if h.bus == nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	evt := events.Event{Type: events.TypeSessionCancel, SessionID: id}
	if err := h.bus.Publish(c.Request.Context(), evt); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	log.Printf("Forwarded cancel for session %s", id)
	c.JSON(http.StatusAccepted, gin.H{"status": "cancelling", "sessionId": id, "forwarded": true})
}

// DispatchAction publishes a user interaction with a rendered element.
func (h *Handler) DispatchAction(c *gin.Context) {
	if h.bus == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event bus not configured"})
		return
	}
	id := c.Param("id")
	if _, err := h.sessions.Get(id); err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	evt := events.Event{
		Type:      events.TypeUIAction,
		SessionID: id,
		Data:      req,
	}
	if err := h.bus.Publish(c.Request.Context(), evt); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "dispatched", "action": req.Name})
}
