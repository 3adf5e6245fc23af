package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/oremus-labs/genui-bridge/internal/jsonval"
	"github.com/oremus-labs/genui-bridge/internal/patch"
	"github.com/oremus-labs/genui-bridge/internal/uitree"
)

// chunkReader yields one chunk per Read and records Close.
type chunkReader struct {
	mu     sync.Mutex
	chunks [][]byte
	err    error
	reads  int
	closed bool
}

func newChunkReader(chunks ...string) *chunkReader {
	r := &chunkReader{}
	for _, c := range chunks {
		r.chunks = append(r.chunks, []byte(c))
	}
	return r
}

func (r *chunkReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, errors.New("read on closed reader")
	}
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	r.reads++
	n := copy(p, r.chunks[0])
	if n < len(r.chunks[0]) {
		r.chunks[0] = r.chunks[0][n:]
	} else {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func (r *chunkReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

type recorder struct {
	calls  []string
	states []State
	trees  []jsonval.Value
}

func (rec *recorder) handlers() Handlers {
	return Handlers{
		OnToken: func(text string) { rec.calls = append(rec.calls, "token:"+text) },
		OnTree: func(tree jsonval.Value, op patch.Op) {
			rec.calls = append(rec.calls, "tree:"+op.String())
			rec.trees = append(rec.trees, tree)
		},
		OnPatchError: func(op patch.Op, err error) {
			rec.calls = append(rec.calls, "patch_error:"+patch.Reason(err))
		},
		OnState: func(s State) { rec.states = append(rec.states, s) },
	}
}

func TestConsumeJSONTokens(t *testing.T) {
	t.Parallel()

	r := newChunkReader(`data: {"response":"Hello"}` + "\n\n" + `data: {"response":" world"}` + "\n\ndata: [DONE]\n\n")
	rec := &recorder{}
	sum, err := New(Options{}).Consume(context.Background(), r, rec.handlers())
	if err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"token:Hello", "token: world"}, rec.calls); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
	if !sum.Terminated || sum.Outcome != StateDraining || sum.Patches != 0 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	wantStates := []State{StateReading, StateDraining, StateClosed}
	if diff := cmp.Diff(wantStates, rec.states); diff != "" {
		t.Fatalf("states mismatch (-want +got):\n%s", diff)
	}
	if !r.closed {
		t.Fatalf("reader was not closed")
	}
}

func TestConsumeRawTokensWithoutTerminator(t *testing.T) {
	t.Parallel()

	r := newChunkReader("data: plain-token-one\n\ndata: plain-token-two\n\n")
	rec := &recorder{}
	sum, err := New(Options{}).Consume(context.Background(), r, rec.handlers())
	if err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"token:plain-token-one", "token:plain-token-two"}, rec.calls); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
	if sum.Terminated || sum.Outcome != StateDraining {
		t.Fatalf("expected normal completion without terminator, got %+v", sum)
	}
	if !r.closed {
		t.Fatalf("reader was not closed")
	}
}

func TestConsumePreservesInterleavedOrder(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		`data: {"response":"a"}`,
		`data: {"op":"add","path":"/root","value":"card"}`,
		`data: {"response":"b"}`,
		`data: {"op":"add","path":"/elements/card","value":{"key":"card","type":"Card","props":{"title":"⚡ Stats"},"children":[]}}`,
		`data: {"op":"replace","path":"/elements/missing","value":1}`,
		`data: {"choices":[{"delta":{"content":"c"}}]}`,
		`data: {"op":"remove","path":"/elements/card/props/title"}`,
		"data: [DONE]",
		"",
	}, "\n")
	rec := &recorder{}
	sum, err := New(Options{ChunkSize: 7}).Consume(context.Background(), newChunkReader(input), rec.handlers())
	if err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}
	want := []string{
		"token:a",
		"tree:add /root",
		"token:b",
		"tree:add /elements/card",
		"patch_error:path_not_found",
		"token:c",
		"tree:remove /elements/card/props/title",
	}
	if diff := cmp.Diff(want, rec.calls); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
	if sum.Patches != 3 || sum.PatchErrors != 1 || sum.Tokens != 3 {
		t.Fatalf("unexpected counters %+v", sum)
	}

	title, err := patch.Resolve(rec.trees[1], "/elements/card/props/title")
	if err != nil {
		t.Fatalf("resolve title: %v", err)
	}
	if s, _ := title.AsString(); s != "Stats" {
		t.Fatalf("expected sanitized title, got %q", s)
	}
	if _, err := patch.Resolve(sum.Tree, "/elements/card/props/title"); !errors.Is(err, patch.ErrPathNotFound) {
		t.Fatalf("expected title removed from final tree, got %v", err)
	}
	if _, err := patch.Resolve(rec.trees[1], "/elements/card/props/title"); err != nil {
		t.Fatalf("earlier snapshot must not change: %v", err)
	}
}

func TestConsumeStopsAtTerminator(t *testing.T) {
	t.Parallel()

	r := newChunkReader(
		"data: one\n\ndata: [DONE]\n\ndata: after\n\n",
		"data: never-read\n\n",
	)
	rec := &recorder{}
	sum, err := New(Options{}).Consume(context.Background(), r, rec.handlers())
	if err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"token:one"}, rec.calls); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
	if r.reads != 1 {
		t.Fatalf("expected a single read, got %d", r.reads)
	}
	if !sum.Terminated {
		t.Fatalf("expected terminated summary")
	}
}

func TestConsumeWithoutBlankLines(t *testing.T) {
	t.Parallel()

	input := `data: {"response":"x"}` + "\n" + `data: {"response":"y"}` + "\n" + `data: {"response":"z"}` + "\n"
	rec := &recorder{}
	if _, err := New(Options{}).Consume(context.Background(), newChunkReader(input), rec.handlers()); err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"token:x", "token:y", "token:z"}, rec.calls); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestConsumeMultiLineJSONBlock(t *testing.T) {
	t.Parallel()

	input := "data: {\"choices\":\ndata: [{\"text\":\"joined\"}]}\n\ndata: {\"unfinished\":\n\n"
	rec := &recorder{}
	sum, err := New(Options{}).Consume(context.Background(), newChunkReader(input), rec.handlers())
	if err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"token:joined"}, rec.calls); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
	if sum.Malformed != 1 {
		t.Fatalf("expected one malformed block, got %d", sum.Malformed)
	}
}

func TestConsumeSplitMultiByteRunes(t *testing.T) {
	t.Parallel()

	input := "data: {\"response\":\"héllo \U0001F680\"}\n\n"
	rec := &recorder{}
	if _, err := New(Options{ChunkSize: 1}).Consume(context.Background(), newChunkReader(input), rec.handlers()); err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"token:héllo \U0001F680"}, rec.calls); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestConsumeFlushesUnterminatedLine(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	if _, err := New(Options{}).Consume(context.Background(), newChunkReader("data: first\n\ndata: last"), rec.handlers()); err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"token:first", "token:last"}, rec.calls); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestConsumeCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := newChunkReader("data: one\n\n", "data: two\n\n", "data: three\n\n")
	var tokens []string
	var states []State
	sum, err := New(Options{}).Consume(ctx, r, Handlers{
		OnToken: func(text string) {
			tokens = append(tokens, text)
			cancel()
		},
		OnState: func(s State) { states = append(states, s) },
	})
	if err != nil {
		t.Fatalf("cancellation must not be an error: %v", err)
	}
	if diff := cmp.Diff([]string{"one"}, tokens); diff != "" {
		t.Fatalf("tokens mismatch (-want +got):\n%s", diff)
	}
	if sum.Outcome != StateCancelled {
		t.Fatalf("expected cancelled outcome, got %s", sum.Outcome)
	}
	if diff := cmp.Diff([]State{StateReading, StateCancelled, StateClosed}, states); diff != "" {
		t.Fatalf("states mismatch (-want +got):\n%s", diff)
	}
	if !r.closed {
		t.Fatalf("reader was not closed")
	}
}

func TestConsumeAlreadyCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := newChunkReader("data: one\n\n")
	sum, err := New(Options{}).Consume(ctx, r, Handlers{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Outcome != StateCancelled || r.reads != 0 || !r.closed {
		t.Fatalf("unexpected result %+v reads=%d closed=%v", sum, r.reads, r.closed)
	}
}

func TestConsumeTransportError(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	r := newChunkReader("data: partial\n\n")
	r.err = boom
	var tokens []string
	sum, err := New(Options{}).Consume(context.Background(), r, Handlers{
		OnToken: func(text string) { tokens = append(tokens, text) },
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
	if sum.Outcome != StateErrored {
		t.Fatalf("expected errored outcome, got %s", sum.Outcome)
	}
	if len(tokens) != 1 || !r.closed {
		t.Fatalf("tokens=%v closed=%v", tokens, r.closed)
	}
}

func TestConsumeTokenPatches(t *testing.T) {
	t.Parallel()

	tokens := []string{
		`{"op":"add","path":"/root","val`,
		"ue\":\"main\"}\n",
		`{"op":"add","path":"/elements/main","value":{"key":"main","type":"Text","props":{"text":"hi"},"children":[]}}`,
	}
	var b strings.Builder
	for _, tok := range tokens {
		enc, _ := jsonval.Object(jsonval.Pair("response", jsonval.String(tok))).MarshalJSON()
		b.WriteString("data: ")
		b.Write(enc)
		b.WriteString("\n\n")
	}
	rec := &recorder{}
	sum, err := New(Options{TokenPatches: true}).Consume(context.Background(), newChunkReader(b.String()), rec.handlers())
	if err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}
	want := []string{
		"token:" + tokens[0],
		"token:" + tokens[1],
		"tree:add /root",
		"token:" + tokens[2],
		"tree:add /elements/main",
	}
	if diff := cmp.Diff(want, rec.calls); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
	if uitree.Root(sum.Tree) != "main" {
		t.Fatalf("expected root main, got %q", uitree.Root(sum.Tree))
	}
	if el, ok := uitree.Lookup(sum.Tree, "main"); !ok || el.Type != "Text" {
		t.Fatalf("expected Text element, got %+v", el)
	}
}

func TestConsumeInitialTree(t *testing.T) {
	t.Parallel()

	initial := jsonval.MustParse(`{"root":"t","elements":{"t":{"key":"t","type":"Text","props":{"text":"old"},"children":[]}}}`)
	input := `data: {"op":"replace","path":"/elements/t/props/text","value":"new"}` + "\n\n"
	sum, err := New(Options{InitialTree: initial}).Consume(context.Background(), newChunkReader(input), Handlers{})
	if err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}
	got, _ := patch.Resolve(sum.Tree, "/elements/t/props/text")
	if s, _ := got.AsString(); s != "new" {
		t.Fatalf("expected new text, got %q", s)
	}
	old, _ := patch.Resolve(initial, "/elements/t/props/text")
	if s, _ := old.AsString(); s != "old" {
		t.Fatalf("initial tree mutated: %q", s)
	}
}
