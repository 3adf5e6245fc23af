package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oremus-labs/genui-bridge/internal/handlers"
	"github.com/oremus-labs/genui-bridge/internal/logutil"
)

// Options configures the HTTP server wiring.
type Options struct {
	APIToken       string
	GraphQLHandler http.Handler
}

// Server wraps the Gin engine and associated configuration.
type Server struct {
	engine *gin.Engine
}

// NewServer constructs a Server with all HTTP routes configured.
func NewServer(handler *handlers.Handler, opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery(), requestIDMiddleware(), metricsMiddleware(), requestLogger())

	// Health + meta
	engine.GET("/healthz", handler.Health)
	engine.GET("/openapi", handler.OpenAPISpec)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/components", handler.ListComponents)

	// Sessions (read)
	engine.GET("/sessions", handler.ListSessions)
	engine.GET("/sessions/:id", handler.GetSession)
	engine.GET("/sessions/:id/tree", handler.GetSessionTree)
	engine.GET("/sessions/:id/outline", handler.GetSessionOutline)
	engine.GET("/sessions/:id/history", handler.SessionHistory)
	engine.GET("/sessions/:id/events", handler.StreamSessionEvents)

	if opts.GraphQLHandler != nil {
		engine.GET("/graphql", gin.WrapH(opts.GraphQLHandler))
		engine.POST("/graphql", gin.WrapH(opts.GraphQLHandler))
	}

	protected := engine.Group("/")
	protected.Use(authMiddleware(opts.APIToken))

	protected.POST("/render", handler.Render)
	protected.POST("/sessions", handler.StartSession)
	protected.POST("/sessions/:id/cancel", handler.CancelSession)
	protected.POST("/sessions/:id/actions", handler.DispatchAction)

	return &Server{engine: engine}
}

// Engine exposes the underlying Gin engine for advanced use (testing, etc.).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start launches the HTTP server on the provided address. There is no write
// timeout: renders and event streams stay open for as long as the stream runs.
func (s *Server) Start(addr string) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logutil.Error("http_server_failed", err, map[string]interface{}{"addr": addr})
			panic(err)
		}
	}()
	return srv
}
