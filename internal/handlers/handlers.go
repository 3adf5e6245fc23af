// Package handlers provides HTTP request handlers for the bridge API.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oremus-labs/genui-bridge/internal/events"
	"github.com/oremus-labs/genui-bridge/internal/jsonval"
	"github.com/oremus-labs/genui-bridge/internal/openapi"
	"github.com/oremus-labs/genui-bridge/internal/registry"
	"github.com/oremus-labs/genui-bridge/internal/sessions"
	"github.com/oremus-labs/genui-bridge/internal/store"
	"github.com/oremus-labs/genui-bridge/internal/validator"
)

// Options configures handler runtime behavior.
type Options struct {
	Version        string
	MaxUploadBytes int64
	HistoryLimit   int
	// Heartbeat is the keep-alive interval on event streams.
	Heartbeat time.Duration
}

type sessionService interface {
	Run(context.Context, io.ReadCloser, sessions.RunOptions) (*sessions.Result, error)
	Start(context.Context, sessions.StartRequest) (*store.Session, error)
	Create(string, sessions.StartRequest) (*store.Session, error)
	Cancel(string) error
	CancelPending(string) (*store.Session, error)
	Get(string) (*store.Session, error)
	List(store.SessionStatus, int) ([]store.Session, error)
	History(string, int) ([]store.HistoryEntry, error)
	Snapshot(context.Context, string) (jsonval.Value, error)
}

type treeValidator interface {
	Validate(jsonval.Value) validator.Result
}

type eventBus interface {
	Publish(context.Context, events.Event) error
	Subscribe(context.Context, events.Filter) (<-chan events.Event, func(), error)
}

type sessionQueue interface {
	Enabled() bool
	Enqueue(context.Context, string, sessions.StartRequest) error
}

// Handler encapsulates dependencies for HTTP handlers.
type Handler struct {
	sessions  sessionService
	registry  *registry.Registry
	validator treeValidator
	bus       eventBus
	queue     sessionQueue
	opts      Options
}

// New creates a new Handler instance. The validator, bus and queue are
// optional.
func New(svc sessionService, reg *registry.Registry, val treeValidator, bus eventBus, queue sessionQueue, opts Options) *Handler {
	if reg == nil {
		reg = registry.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 8 << 20
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 100
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 15 * time.Second
	}
	if queue != nil && !queue.Enabled() {
		queue = nil
	}
	return &Handler{
		sessions:  svc,
		registry:  reg,
		validator: val,
		bus:       bus,
		queue:     queue,
		opts:      opts,
	}
}

// Health returns the health status of the service.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": h.opts.Version})
}

// OpenAPISpec serves the API document as JSON, or as YAML with format=yaml.
func (h *Handler) OpenAPISpec(c *gin.Context) {
	if c.Query("format") == "yaml" {
		c.Data(http.StatusOK, "application/yaml", openapi.YAML())
		return
	}
	doc, err := openapi.JSON()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", doc)
}

// ListComponents returns the registered component types.
func (h *Handler) ListComponents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"components": h.registry.List(),
		"fallback":   h.registry.Fallback().Name,
	})
}

func (h *Handler) validate(tree jsonval.Value) *validator.Result {
	if h.validator == nil {
		return nil
	}
	res := h.validator.Validate(tree)
	return &res
}

func queryBool(c *gin.Context, name string) bool {
	v, err := strconv.ParseBool(c.Query(name))
	return err == nil && v
}

func queryLimit(c *gin.Context, def int) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, sessions.ErrNotLive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
