// Package worker consumes queued sessions and runs them to completion.
package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/oremus-labs/genui-bridge/internal/logutil"
	"github.com/oremus-labs/genui-bridge/internal/queue"
	"github.com/oremus-labs/genui-bridge/internal/sessions"
	"github.com/oremus-labs/genui-bridge/internal/store"
)

type consumer interface {
	EnsureGroup(ctx context.Context) error
	Next(ctx context.Context) (*queue.SessionMessage, string, error)
	Ack(ctx context.Context, id string) error
}

type executor interface {
	Get(id string) (*store.Session, error)
	Execute(ctx context.Context, sess *store.Session, req sessions.StartRequest) (*sessions.Result, error)
}

// Options configure the background worker process.
type Options struct {
	Sessions executor
	Queue    consumer
	Logger   *log.Logger
	// Backoff is the pause after a failed read from the queue.
	Backoff time.Duration
}

// Runner pulls session requests from the queue.
type Runner struct {
	sessions executor
	queue    consumer
	logger   *log.Logger
	backoff  time.Duration
}

// New creates a new Runner.
func New(opts Options) *Runner {
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Runner{
		sessions: opts.Sessions,
		queue:    opts.Queue,
		logger:   opts.Logger,
		backoff:  backoff,
	}
}

// Run processes messages until ctx is cancelled. Without a queue it only
// waits, so the process stays up for health checks.
func (r *Runner) Run(ctx context.Context) error {
	if r.queue == nil {
		r.logger.Println("genui worker started without a queue; set REDIS_ADDR to consume sessions")
		<-ctx.Done()
		return ctx.Err()
	}
	if err := r.queue.EnsureGroup(ctx); err != nil {
		return err
	}
	r.logger.Println("genui worker started, waiting for queued sessions")

	for {
		if ctx.Err() != nil {
			r.logger.Println("worker shutting down")
			return ctx.Err()
		}
		msg, id, err := r.queue.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			r.logger.Printf("worker: queue read failed: %v", err)
			if id != "" {
				_ = r.queue.Ack(ctx, id)
			}
			r.sleep(ctx)
			continue
		}
		if msg == nil {
			continue
		}
		r.process(ctx, msg)
		if err := r.queue.Ack(ctx, id); err != nil {
			r.logger.Printf("worker: ack %s failed: %v", id, err)
		}
	}
}

func (r *Runner) process(ctx context.Context, msg *queue.SessionMessage) {
	sess, err := r.sessions.Get(msg.SessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logutil.Warn("worker_session_missing", map[string]interface{}{"sessionId": msg.SessionID})
			return
		}
		logutil.Error("worker_session_load_failed", err, map[string]interface{}{"sessionId": msg.SessionID})
		return
	}
	if sess.Status.Finished() {
		logutil.Info("worker_session_skipped", map[string]interface{}{
			"sessionId": sess.ID,
			"status":    string(sess.Status),
		})
		return
	}
	res, err := r.sessions.Execute(ctx, sess, msg.Request)
	if err != nil {
		logutil.Error("worker_session_failed", err, map[string]interface{}{"sessionId": sess.ID})
		return
	}
	logutil.Info("worker_session_completed", map[string]interface{}{
		"sessionId": sess.ID,
		"status":    string(res.Session.Status),
		"patches":   res.Session.Patches,
	})
}

func (r *Runner) sleep(ctx context.Context) {
	t := time.NewTimer(r.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
