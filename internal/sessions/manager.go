// Package sessions runs model streams through the orchestrator and keeps
// their progress visible: persisted in the store, cached in Redis and
// published on the event bus.
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oremus-labs/genui-bridge/internal/events"
	"github.com/oremus-labs/genui-bridge/internal/jsonval"
	"github.com/oremus-labs/genui-bridge/internal/logutil"
	"github.com/oremus-labs/genui-bridge/internal/metrics"
	"github.com/oremus-labs/genui-bridge/internal/patch"
	"github.com/oremus-labs/genui-bridge/internal/snapcache"
	"github.com/oremus-labs/genui-bridge/internal/store"
	"github.com/oremus-labs/genui-bridge/internal/stream"
	"github.com/oremus-labs/genui-bridge/internal/uitree"
	"github.com/oremus-labs/genui-bridge/internal/upstream"
)

// Session sources.
const (
	SourceUpload   = "upload"
	SourceUpstream = "upstream"
	SourceQueue    = "queue"
)

// maxFailures bounds the patch failures kept in a Result.
const maxFailures = 100

// ErrNotLive is returned when cancelling a session that is not running on
// this replica.
var ErrNotLive = errors.New("session is not running")

type opener interface {
	Open(ctx context.Context, req upstream.Request) (io.ReadCloser, error)
}

type eventPublisher interface {
	Publish(context.Context, events.Event) error
}

// Options configures the session manager.
type Options struct {
	Store          *store.Store
	Upstream       opener
	EventPublisher eventPublisher
	Cache          *snapcache.Cache
	ChunkSize      int
	SessionTimeout time.Duration
	Logger         *log.Logger
}

// Manager coordinates stream consumption for sessions.
type Manager struct {
	store    *store.Store
	upstream opener
	events   eventPublisher
	cache    *snapcache.Cache
	chunk    int
	timeout  time.Duration
	logger   *log.Logger

	mu   sync.Mutex
	live map[string]*liveSession
}

// New creates a session manager.
func New(opts Options) *Manager {
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = 10 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Manager{
		store:    opts.Store,
		upstream: opts.Upstream,
		events:   opts.EventPublisher,
		cache:    opts.Cache,
		chunk:    opts.ChunkSize,
		timeout:  opts.SessionTimeout,
		logger:   opts.Logger,
		live:     make(map[string]*liveSession),
	}
}

// StartRequest describes a session that pulls from the upstream model.
type StartRequest struct {
	Request      upstream.Request `json:"request"`
	TokenPatches bool             `json:"tokenPatches,omitempty"`
	InitialTree  json.RawMessage  `json:"initialTree,omitempty"`
}

// RunOptions tune a single consumption.
type RunOptions struct {
	Source       string
	TokenPatches bool
	InitialTree  jsonval.Value
	// OnToken and OnTree receive the same callbacks the event bus sees,
	// synchronously and in stream order.
	OnToken func(text string)
	OnTree  func(tree jsonval.Value, op patch.Op)
}

// PatchFailure is one rejected operation.
type PatchFailure struct {
	Op     patch.Op `json:"op"`
	Reason string   `json:"reason"`
	Error  string   `json:"error"`
}

// Result is the outcome of a finished session.
type Result struct {
	Session  *store.Session `json:"session"`
	Tree     jsonval.Value  `json:"tree"`
	Failures []PatchFailure `json:"failures,omitempty"`
	Summary  stream.Summary `json:"-"`
}

type liveSession struct {
	cancel context.CancelFunc

	mu    sync.RWMutex
	tree  jsonval.Value
	state stream.State
}

func (l *liveSession) snapshot() jsonval.Value {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tree
}

// Start persists a session and consumes the upstream stream in the
// background. The background run is not tied to ctx; use Cancel. The session
// is live before Start returns so an immediate cancel reaches it.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*store.Session, error) {
	sess, err := m.Create(SourceUpstream, req)
	if err != nil {
		return nil, err
	}
	initial, err := initialTree(req)
	if err != nil {
		return nil, m.fail(sess, err)
	}
	snapshot := *sess
	runCtx, cancel := context.WithTimeout(context.Background(), m.timeout)
	l := m.register(sess.ID, cancel, initial)
	go func() {
		if _, err := m.execute(runCtx, cancel, sess, req, l, initial); err != nil {
			m.logger.Printf("sessions: %s failed: %v", sess.ID, err)
		}
	}()
	return &snapshot, nil
}

// Create persists a pending session without running it. Queued sessions are
// created here and executed later by a worker.
func (m *Manager) Create(source string, req StartRequest) (*store.Session, error) {
	if m.store == nil {
		return nil, fmt.Errorf("session manager not configured")
	}
	if err := req.Request.Validate(); err != nil {
		return nil, err
	}
	if len(req.InitialTree) > 0 {
		if _, err := jsonval.Parse(req.InitialTree); err != nil {
			return nil, fmt.Errorf("initial tree: %w", err)
		}
	}
	payload := map[string]interface{}{}
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	sess := &store.Session{
		ID:      uuid.NewString(),
		Source:  source,
		Status:  store.SessionPending,
		Request: payload,
	}
	if err := m.store.CreateSession(sess); err != nil {
		return nil, err
	}
	m.emitState(sess.ID, string(sess.Status), "")
	return sess, nil
}

// Execute opens the upstream stream for an existing session and consumes it
// synchronously (used by workers). A session already finished in the store,
// for example cancelled while queued, is returned as is without running.
func (m *Manager) Execute(ctx context.Context, sess *store.Session, req StartRequest) (*Result, error) {
	initial, err := initialTree(req)
	if err != nil {
		return nil, m.fail(sess, err)
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	l := m.register(sess.ID, cancel, initial)
	return m.execute(ctx, cancel, sess, req, l, initial)
}

func (m *Manager) execute(ctx context.Context, cancel context.CancelFunc, sess *store.Session, req StartRequest, l *liveSession, initial jsonval.Value) (*Result, error) {
	defer cancel()
	defer m.unregister(sess.ID)

	if cur, err := m.Get(sess.ID); err == nil && cur.Status.Finished() {
		logutil.Info("session_skipped", map[string]interface{}{
			"sessionId": sess.ID,
			"status":    string(cur.Status),
		})
		*sess = *cur
		return &Result{Session: sess, Tree: initial}, nil
	}
	if m.upstream == nil {
		return nil, m.fail(sess, fmt.Errorf("upstream not configured"))
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		m.markCancelled(sess, "cancelled before start")
		return &Result{Session: sess, Tree: initial}, nil
	}

	body, err := m.upstream.Open(ctx, req.Request)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			m.markCancelled(sess, "cancelled before start")
			return &Result{Session: sess, Tree: initial}, nil
		}
		return nil, m.fail(sess, err)
	}
	return m.consume(ctx, sess, l, body, RunOptions{
		Source:       sess.Source,
		TokenPatches: req.TokenPatches,
		InitialTree:  initial,
	})
}

func initialTree(req StartRequest) (jsonval.Value, error) {
	if len(req.InitialTree) == 0 {
		return uitree.Empty(), nil
	}
	tree, err := jsonval.Parse(req.InitialTree)
	if err != nil {
		return jsonval.Value{}, fmt.Errorf("initial tree: %w", err)
	}
	return tree, nil
}

// Run consumes a stream supplied by the caller, such as an uploaded capture,
// and returns when it ends.
func (m *Manager) Run(ctx context.Context, r io.ReadCloser, opts RunOptions) (*Result, error) {
	if m.store == nil {
		_ = r.Close()
		return nil, fmt.Errorf("session manager not configured")
	}
	if opts.Source == "" {
		opts.Source = SourceUpload
	}
	if opts.InitialTree.IsNull() {
		opts.InitialTree = uitree.Empty()
	}
	sess := &store.Session{
		ID:     uuid.NewString(),
		Source: opts.Source,
		Status: store.SessionPending,
	}
	if err := m.store.CreateSession(sess); err != nil {
		_ = r.Close()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	l := m.register(sess.ID, cancel, opts.InitialTree)
	defer m.unregister(sess.ID)

	return m.consume(ctx, sess, l, r, opts)
}

func (m *Manager) consume(ctx context.Context, sess *store.Session, l *liveSession, body io.ReadCloser, opts RunOptions) (*Result, error) {
	start := time.Now()
	metrics.SessionStarted()
	defer metrics.SessionFinished()

	sess.Status = store.SessionRunning
	m.update(sess)
	m.emitState(sess.ID, string(sess.Status), "")

	var (
		text     strings.Builder
		failures []PatchFailure
		version  int
	)
	orch := stream.New(stream.Options{
		ChunkSize:    m.chunk,
		InitialTree:  opts.InitialTree,
		TokenPatches: opts.TokenPatches,
		Logger:       m.logger,
	})
	summary, err := orch.Consume(ctx, body, stream.Handlers{
		OnToken: func(token string) {
			text.WriteString(token)
			metrics.ObserveToken()
			if opts.OnToken != nil {
				opts.OnToken(token)
			}
			m.publish(events.Event{
				Type:      events.TypeSessionToken,
				SessionID: sess.ID,
				Data:      map[string]interface{}{"text": token},
			})
		},
		OnTree: func(tree jsonval.Value, op patch.Op) {
			version++
			l.mu.Lock()
			l.tree = tree
			l.mu.Unlock()
			metrics.ObservePatch(op.Op, "applied")
			if opts.OnTree != nil {
				opts.OnTree(tree, op)
			}
			m.publish(events.Event{
				Type:      events.TypeSessionTree,
				SessionID: sess.ID,
				Data: map[string]interface{}{
					"version": version,
					"op":      op,
					"tree":    tree,
				},
			})
			m.cacheSnapshot(ctx, sess.ID, tree)
		},
		OnPatchError: func(op patch.Op, err error) {
			reason := patch.Reason(err)
			metrics.ObservePatch(op.Op, reason)
			if len(failures) < maxFailures {
				failures = append(failures, PatchFailure{Op: op, Reason: reason, Error: err.Error()})
			}
			m.publish(events.Event{
				Type:      events.TypeSessionPatchError,
				SessionID: sess.ID,
				Data: map[string]interface{}{
					"op":     op,
					"reason": reason,
					"error":  err.Error(),
				},
			})
			m.appendHistory(sess.ID, "patch_failed", map[string]interface{}{
				"op":     op.Op,
				"path":   op.Path,
				"reason": reason,
			})
		},
		OnState: func(s stream.State) {
			l.mu.Lock()
			l.state = s
			l.mu.Unlock()
			m.emitState(sess.ID, string(sess.Status), s.String())
		},
	})

	sess.State = summary.Outcome.String()
	sess.Tokens = summary.Tokens
	sess.Patches = summary.Patches
	sess.PatchErrors = summary.PatchErrors
	sess.Bytes = summary.Bytes
	sess.Terminated = summary.Terminated
	sess.Text = text.String()
	if raw, mErr := summary.Tree.MarshalJSON(); mErr == nil {
		sess.Tree = raw
	}
	outcome := "completed"
	switch {
	case err != nil:
		outcome = "failed"
		sess.Status = store.SessionFailed
		sess.Error = err.Error()
	case summary.Outcome == stream.StateCancelled:
		outcome = "cancelled"
		sess.Status = store.SessionCancelled
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			sess.Error = "session timed out"
		}
		m.appendHistory(sess.ID, "session_cancelled", map[string]interface{}{"reason": sess.Error})
	default:
		sess.Status = store.SessionDone
	}
	m.update(sess)
	m.cacheSnapshot(context.Background(), sess.ID, summary.Tree)
	m.emitState(sess.ID, string(sess.Status), stream.StateClosed.String())
	metrics.ObserveStream(opts.Source, outcome, time.Since(start), summary.Bytes)

	fields := map[string]interface{}{
		"sessionId":   sess.ID,
		"source":      opts.Source,
		"outcome":     outcome,
		"tokens":      summary.Tokens,
		"patches":     summary.Patches,
		"patchErrors": summary.PatchErrors,
		"terminated":  summary.Terminated,
		"duration":    time.Since(start).String(),
	}
	if err != nil {
		logutil.Error("session_failed", err, fields)
	} else if summary.PatchErrors > 0 || summary.Malformed > 0 {
		fields["malformed"] = summary.Malformed
		logutil.Warn("session_completed_with_errors", fields)
	} else {
		logutil.Info("session_completed", fields)
	}

	return &Result{Session: sess, Tree: summary.Tree, Failures: failures, Summary: summary}, err
}

// Cancel stops a running session.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	l, ok := m.live[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s: %w", id, ErrNotLive)
	}
	l.cancel()
	return nil
}

// CancelPending marks a session that has not started yet as cancelled so a
// worker that later dequeues it skips the run. A session live on this
// replica is cancelled directly. The stored session is returned.
func (m *Manager) CancelPending(id string) (*store.Session, error) {
	if err := m.Cancel(id); err == nil {
		return m.Get(id)
	}
	sess, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if sess.Status == store.SessionPending {
		m.markCancelled(sess, "cancelled before start")
	}
	return sess, nil
}

// CancelObserver is the part of the event bus used to receive cancel
// requests from other replicas.
type CancelObserver interface {
	Observe(events.Observer) func()
}

// FollowCancels cancels live sessions when another replica publishes a
// session.cancel event. The returned func stops listening.
func (m *Manager) FollowCancels(bus CancelObserver) func() {
	return bus.Observe(func(evt events.Event) {
		if evt.Type != events.TypeSessionCancel || evt.SessionID == "" {
			return
		}
		if err := m.Cancel(evt.SessionID); err == nil {
			m.logger.Printf("sessions: %s cancelled by remote request", evt.SessionID)
		}
	})
}

// Live reports whether the session is consuming a stream on this replica.
func (m *Manager) Live(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.live[id]
	return ok
}

// Get loads a session by ID.
func (m *Manager) Get(id string) (*store.Session, error) {
	if m.store == nil {
		return nil, fmt.Errorf("session manager not configured")
	}
	return m.store.GetSession(id)
}

// List returns recent sessions, optionally filtered by status.
func (m *Manager) List(status store.SessionStatus, limit int) ([]store.Session, error) {
	if m.store == nil {
		return nil, fmt.Errorf("session manager not configured")
	}
	return m.store.ListSessions(status, limit)
}

// History returns recorded events for a session.
func (m *Manager) History(id string, limit int) ([]store.HistoryEntry, error) {
	if m.store == nil {
		return nil, fmt.Errorf("session manager not configured")
	}
	return m.store.ListHistory(id, limit)
}

// Snapshot returns the newest tree for a session: the live tree on this
// replica, then the Redis cache, then the stored final tree.
func (m *Manager) Snapshot(ctx context.Context, id string) (jsonval.Value, error) {
	m.mu.Lock()
	l, ok := m.live[id]
	m.mu.Unlock()
	if ok {
		return l.snapshot(), nil
	}
	if data, hit, err := m.cache.Get(ctx, id); err != nil {
		m.logger.Printf("sessions: snapshot cache read for %s failed: %v", id, err)
	} else if hit {
		if tree, err := jsonval.Parse(data); err == nil {
			return tree, nil
		}
	}
	sess, err := m.Get(id)
	if err != nil {
		return jsonval.Value{}, err
	}
	if len(sess.Tree) == 0 {
		return uitree.Empty(), nil
	}
	return jsonval.Parse(sess.Tree)
}

func (m *Manager) register(id string, cancel context.CancelFunc, initial jsonval.Value) *liveSession {
	l := &liveSession{cancel: cancel, tree: initial, state: stream.StateIdle}
	m.mu.Lock()
	m.live[id] = l
	m.mu.Unlock()
	return l
}

func (m *Manager) unregister(id string) {
	m.mu.Lock()
	delete(m.live, id)
	m.mu.Unlock()
}

func (m *Manager) fail(sess *store.Session, err error) error {
	sess.Status = store.SessionFailed
	sess.Error = err.Error()
	m.update(sess)
	m.emitState(sess.ID, string(sess.Status), "")
	logutil.Error("session_failed", err, map[string]interface{}{
		"sessionId": sess.ID,
		"source":    sess.Source,
	})
	return err
}

func (m *Manager) markCancelled(sess *store.Session, reason string) {
	sess.Status = store.SessionCancelled
	sess.Error = reason
	m.update(sess)
	m.appendHistory(sess.ID, "session_cancelled", map[string]interface{}{"reason": reason})
	m.emitState(sess.ID, string(sess.Status), "")
	logutil.Info("session_cancelled", map[string]interface{}{
		"sessionId": sess.ID,
		"reason":    reason,
	})
}

func (m *Manager) update(sess *store.Session) {
	if err := m.store.UpdateSession(sess); err != nil {
		m.logger.Printf("sessions: failed to update session %s: %v", sess.ID, err)
	}
}

func (m *Manager) appendHistory(id, event string, meta map[string]interface{}) {
	if err := m.store.AppendHistory(&store.HistoryEntry{
		Event:     event,
		SessionID: id,
		Metadata:  meta,
	}); err != nil {
		m.logger.Printf("sessions: failed to append history for %s: %v", id, err)
	}
}

func (m *Manager) cacheSnapshot(ctx context.Context, id string, tree jsonval.Value) {
	if !m.cache.Enabled() {
		return
	}
	raw, err := tree.MarshalJSON()
	if err != nil {
		return
	}
	if err := m.cache.Put(ctx, id, raw); err != nil {
		m.logger.Printf("sessions: %v", err)
	}
}

func (m *Manager) emitState(id, status, state string) {
	data := map[string]interface{}{"status": status}
	if state != "" {
		data["state"] = state
	}
	m.publish(events.Event{
		Type:      events.TypeSessionState,
		SessionID: id,
		Data:      data,
	})
}

func (m *Manager) publish(evt events.Event) {
	if m.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.events.Publish(ctx, evt); err != nil {
		m.logger.Printf("sessions: failed to publish %s for %s: %v", evt.Type, evt.SessionID, err)
	}
}

// LiveState returns the orchestrator state of a session running on this
// replica.
func (m *Manager) LiveState(id string) (stream.State, bool) {
	m.mu.Lock()
	l, ok := m.live[id]
	m.mu.Unlock()
	if !ok {
		return stream.StateIdle, false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state, true
}
