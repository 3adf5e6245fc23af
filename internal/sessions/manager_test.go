package sessions

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oremus-labs/genui-bridge/internal/events"
	"github.com/oremus-labs/genui-bridge/internal/store"
	"github.com/oremus-labs/genui-bridge/internal/stream"
	"github.com/oremus-labs/genui-bridge/internal/uitree"
	"github.com/oremus-labs/genui-bridge/internal/upstream"
)

const captured = `data: {"response":"Building "}

data: {"op":"add","path":"/root","value":"card"}

data: {"op":"add","path":"/elements/card","value":{"key":"card","type":"Card","props":{"title":"🚀 Launch"},"children":[]}}

data: {"op":"replace","path":"/elements/ghost","value":{}}

data: {"response":"done"}

data: [DONE]

`

type fakeOpener struct {
	body string
	err  error
	// block keeps the body open until the context is cancelled.
	block bool
}

func (f *fakeOpener) Open(ctx context.Context, req upstream.Request) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.block {
		return &blockingBody{ctx: ctx, closed: make(chan struct{})}, nil
	}
	return io.NopCloser(strings.NewReader(f.body)), nil
}

type blockingBody struct {
	ctx    context.Context
	once   sync.Once
	closed chan struct{}
}

func (b *blockingBody) Read(p []byte) (int, error) {
	select {
	case <-b.ctx.Done():
		return 0, b.ctx.Err()
	case <-b.closed:
		return 0, errors.New("body closed")
	}
}

func (b *blockingBody) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingPublisher) Publish(ctx context.Context, evt events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "state.db"), "sqlite")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func waitForStatus(t *testing.T, m *Manager, id string, want store.SessionStatus) *store.Session {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		sess, err := m.Get(id)
		if err == nil && sess.Status == want {
			return sess
		}
		time.Sleep(20 * time.Millisecond)
	}
	sess, _ := m.Get(id)
	t.Fatalf("session %s did not reach %s, last %+v", id, want, sess)
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestRunPersistsResult(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	m := New(Options{Store: openTestStore(t), EventPublisher: pub})

	var tokens []string
	res, err := m.Run(context.Background(), io.NopCloser(strings.NewReader(captured)), RunOptions{
		OnToken: func(text string) { tokens = append(tokens, text) },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.Join(tokens, "|") != "Building |done" {
		t.Fatalf("unexpected tokens %q", tokens)
	}
	if res.Session.Status != store.SessionDone || !res.Session.Terminated {
		t.Fatalf("unexpected session %+v", res.Session)
	}
	if len(res.Failures) != 1 || res.Failures[0].Reason != "path_not_found" {
		t.Fatalf("expected one path_not_found failure, got %+v", res.Failures)
	}
	el, ok := uitree.Lookup(res.Tree, "card")
	if !ok {
		t.Fatalf("card missing from tree")
	}
	if title, _ := el.Prop("title"); title != "Launch" {
		t.Fatalf("expected sanitized title, got %q", title)
	}

	stored, err := m.Get(res.Session.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Text != "Building done" || stored.Patches != 2 || stored.PatchErrors != 1 {
		t.Fatalf("unexpected stored session %+v", stored)
	}
	snap, err := m.Snapshot(context.Background(), res.Session.ID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if uitree.Root(snap) != "card" {
		t.Fatalf("expected stored snapshot with root card, got %s", snap)
	}

	history, err := m.History(res.Session.ID, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0].Event != "patch_failed" {
		t.Fatalf("unexpected history %+v", history)
	}

	types := strings.Join(pub.types(), ",")
	for _, want := range []string{events.TypeSessionToken, events.TypeSessionTree, events.TypeSessionPatchError, events.TypeSessionState} {
		if !strings.Contains(types, want) {
			t.Fatalf("expected %s event, got %s", want, types)
		}
	}
}

func TestStartConsumesUpstream(t *testing.T) {
	t.Parallel()

	m := New(Options{Store: openTestStore(t), Upstream: &fakeOpener{body: captured}})
	sess, err := m.Start(context.Background(), StartRequest{Request: upstream.Request{Prompt: "launch card"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sess.Source != SourceUpstream || sess.Request == nil {
		t.Fatalf("unexpected session %+v", sess)
	}
	done := waitForStatus(t, m, sess.ID, store.SessionDone)
	if done.Tokens != 2 || done.State != stream.StateDraining.String() {
		t.Fatalf("unexpected finished session %+v", done)
	}
}

func TestStartValidatesRequest(t *testing.T) {
	t.Parallel()

	m := New(Options{Store: openTestStore(t), Upstream: &fakeOpener{}})
	if _, err := m.Start(context.Background(), StartRequest{}); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := m.Start(context.Background(), StartRequest{
		Request:     upstream.Request{Prompt: "x"},
		InitialTree: []byte(`{"root":`),
	}); err == nil {
		t.Fatalf("expected initial tree error")
	}
}

func TestExecuteUpstreamFailure(t *testing.T) {
	t.Parallel()

	m := New(Options{Store: openTestStore(t), Upstream: &fakeOpener{err: errors.New("connection refused")}})
	sess, err := m.Create(SourceQueue, StartRequest{Request: upstream.Request{Prompt: "x"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := m.Execute(context.Background(), sess, StartRequest{Request: upstream.Request{Prompt: "x"}}); err == nil {
		t.Fatalf("expected execute error")
	}
	stored := waitForStatus(t, m, sess.ID, store.SessionFailed)
	if stored.Error != "connection refused" {
		t.Fatalf("unexpected error %q", stored.Error)
	}
}

func TestCancelLiveSession(t *testing.T) {
	t.Parallel()

	m := New(Options{Store: openTestStore(t), Upstream: &fakeOpener{block: true}})
	sess, err := m.Start(context.Background(), StartRequest{Request: upstream.Request{Prompt: "x"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool {
		state, ok := m.LiveState(sess.ID)
		return ok && state == stream.StateReading
	})
	if err := m.Cancel(sess.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	waitForStatus(t, m, sess.ID, store.SessionCancelled)
	waitFor(t, func() bool { return !m.Live(sess.ID) })

	if err := m.Cancel(sess.ID); !errors.Is(err, ErrNotLive) {
		t.Fatalf("expected ErrNotLive after completion, got %v", err)
	}
}

func TestFollowCancelsFromBus(t *testing.T) {
	t.Parallel()

	bus := events.NewBus(events.Options{})
	defer bus.Close()
	m := New(Options{Store: openTestStore(t), Upstream: &fakeOpener{block: true}})
	stop := m.FollowCancels(bus)
	defer stop()

	sess, err := m.Start(context.Background(), StartRequest{Request: upstream.Request{Prompt: "x"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { return m.Live(sess.ID) })

	_ = bus.Publish(context.Background(), events.Event{Type: events.TypeSessionCancel, SessionID: "someone-else"})
	if !m.Live(sess.ID) {
		t.Fatalf("cancel for another session should be ignored")
	}
	_ = bus.Publish(context.Background(), events.Event{Type: events.TypeSessionCancel, SessionID: sess.ID})
	waitForStatus(t, m, sess.ID, store.SessionCancelled)
}

type countingOpener struct {
	fakeOpener
	mu    sync.Mutex
	opens int
}

func (c *countingOpener) Open(ctx context.Context, req upstream.Request) (io.ReadCloser, error) {
	c.mu.Lock()
	c.opens++
	c.mu.Unlock()
	return c.fakeOpener.Open(ctx, req)
}

func TestCancelPendingSkipsExecution(t *testing.T) {
	t.Parallel()

	up := &countingOpener{fakeOpener: fakeOpener{body: captured}}
	m := New(Options{Store: openTestStore(t), Upstream: up})
	req := StartRequest{Request: upstream.Request{Prompt: "x"}}
	sess, err := m.Create(SourceUpstream, req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	cancelled, err := m.CancelPending(sess.ID)
	if err != nil {
		t.Fatalf("CancelPending: %v", err)
	}
	if cancelled.Status != store.SessionCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}

	// A worker that loaded the session before the cancel still must not run it.
	res, err := m.Execute(context.Background(), sess, req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Session.Status != store.SessionCancelled {
		t.Fatalf("expected cancelled result, got %s", res.Session.Status)
	}
	if up.opens != 0 {
		t.Fatalf("upstream opened %d times for a cancelled session", up.opens)
	}
	if m.Live(sess.ID) {
		t.Fatalf("skipped session should not stay live")
	}
	hist, err := m.History(sess.ID, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	found := false
	for _, h := range hist {
		if h.Event == "session_cancelled" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected session_cancelled history, got %+v", hist)
	}
}

func TestCancelPendingLeavesFinishedSessions(t *testing.T) {
	t.Parallel()

	m := New(Options{Store: openTestStore(t), Upstream: &fakeOpener{body: captured}})
	req := StartRequest{Request: upstream.Request{Prompt: "x"}}
	sess, err := m.Create(SourceUpstream, req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := m.Execute(context.Background(), sess, req); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got, err := m.CancelPending(sess.ID)
	if err != nil {
		t.Fatalf("CancelPending: %v", err)
	}
	if got.Status != store.SessionDone {
		t.Fatalf("finished session changed to %s", got.Status)
	}
}

func TestStartIsLiveImmediately(t *testing.T) {
	t.Parallel()

	m := New(Options{Store: openTestStore(t), Upstream: &fakeOpener{block: true}})
	sess, err := m.Start(context.Background(), StartRequest{Request: upstream.Request{Prompt: "x"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Cancel(sess.ID); err != nil {
		t.Fatalf("Cancel right after Start: %v", err)
	}
	waitForStatus(t, m, sess.ID, store.SessionCancelled)
	waitFor(t, func() bool { return !m.Live(sess.ID) })
}
