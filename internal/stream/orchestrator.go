// Package stream drives one model stream from raw bytes to tokens and tree
// snapshots.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/oremus-labs/genui-bridge/internal/classify"
	"github.com/oremus-labs/genui-bridge/internal/jsonval"
	"github.com/oremus-labs/genui-bridge/internal/patch"
	"github.com/oremus-labs/genui-bridge/internal/patchline"
	"github.com/oremus-labs/genui-bridge/internal/sse"
	"github.com/oremus-labs/genui-bridge/internal/uitree"
)

// DefaultChunkSize is the read size used when Options.ChunkSize is zero.
const DefaultChunkSize = 4096

// Options configures an Orchestrator.
type Options struct {
	// ChunkSize bounds each read from the transport.
	ChunkSize int
	// InitialTree seeds the applier. The zero value means uitree.Empty().
	InitialTree jsonval.Value
	// TokenPatches additionally parses token text as JSONL patch operations.
	TokenPatches bool
	// Logger receives diagnostics for dropped blocks and failed patches.
	Logger *log.Logger
}

// Handlers are invoked synchronously, in the order events appear in the
// stream. Any of them may be nil.
type Handlers struct {
	OnToken      func(text string)
	OnTree       func(tree jsonval.Value, op patch.Op)
	OnPatchError func(op patch.Op, err error)
	OnState      func(state State)
}

// Summary describes a finished Consume call.
type Summary struct {
	// Outcome is the state the read loop ended in: draining for a normal
	// end, cancelled or errored otherwise.
	Outcome     State
	Terminated  bool
	Tokens      int
	Patches     int
	PatchErrors int
	Malformed   int
	Bytes       int64
	Tree        jsonval.Value
}

// Orchestrator runs streams with a fixed configuration. Separate Consume
// calls share no state and may run in parallel.
type Orchestrator struct {
	opts Options
}

// New returns an orchestrator with defaults applied.
func New(opts Options) *Orchestrator {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	return &Orchestrator{opts: opts}
}

// Consume reads r until the terminator, end of input, cancellation of ctx
// or a read error. r is closed on every path. Only a read error that is not
// caused by cancellation is returned.
func (o *Orchestrator) Consume(ctx context.Context, r io.ReadCloser, h Handlers) (Summary, error) {
	initial := o.opts.InitialTree
	if initial.IsNull() {
		initial = uitree.Empty()
	}
	s := &session{
		opts:    o.opts,
		h:       h,
		applier: patch.NewApplier(initial),
	}
	s.framer = sse.NewFramer(s.dispatch)

	var closeOnce sync.Once
	closeReader := func() {
		closeOnce.Do(func() { _ = r.Close() })
	}
	defer closeReader()
	stop := context.AfterFunc(ctx, closeReader)
	defer stop()

	err := s.run(ctx, r)
	closeReader()
	s.transition(StateClosed)

	return s.summary(), err
}

type session struct {
	opts    Options
	h       Handlers
	state   State
	outcome State
	decoder sse.Decoder
	framer  *sse.Framer
	applier *patch.Applier
	lines   patchline.Assembler

	terminated  bool
	tokens      int
	patches     int
	patchErrors int
	malformed   int
	bytes       int64
}

func (s *session) run(ctx context.Context, r io.Reader) error {
	if ctx.Err() != nil {
		s.transition(StateCancelled)
		return nil
	}
	s.transition(StateReading)

	buf := make([]byte, s.opts.ChunkSize)
	for {
		if ctx.Err() != nil {
			s.transition(StateCancelled)
			return nil
		}
		n, err := r.Read(buf)
		if n > 0 {
			s.bytes += int64(n)
			s.framer.Feed(s.decoder.Decode(buf[:n]))
			if s.terminated {
				s.finish()
				return nil
			}
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			s.flush()
			s.finish()
			return nil
		}
		if ctx.Err() != nil {
			s.transition(StateCancelled)
			return nil
		}
		s.transition(StateErrored)
		return fmt.Errorf("read stream: %w", err)
	}
}

// flush processes whatever the transport left unterminated.
func (s *session) flush() {
	if text := s.decoder.Flush(); text != "" {
		s.framer.Feed(text)
	}
	s.framer.Flush()
}

func (s *session) finish() {
	if s.opts.TokenPatches {
		for _, op := range s.lines.Flush() {
			s.apply(op)
		}
	}
	s.transition(StateDraining)
}

func (s *session) dispatch(ev sse.Event, final bool) bool {
	res := classify.Classify(ev.Lines)
	switch res.Kind {
	case classify.Pending:
		if !final {
			return false
		}
		s.malformed++
		s.opts.Logger.Printf("stream: dropping unterminated block of %d lines", len(ev.Lines))
	case classify.Done:
		s.terminated = true
		s.framer.Stop()
	case classify.Token:
		s.token(res.Token)
	case classify.Patch:
		s.apply(res.Op)
	}
	return true
}

func (s *session) token(text string) {
	s.tokens++
	if s.h.OnToken != nil {
		s.h.OnToken(text)
	}
	if !s.opts.TokenPatches {
		return
	}
	for _, op := range s.lines.Write(text) {
		s.apply(op)
	}
}

func (s *session) apply(op patch.Op) {
	tree, err := s.applier.Apply(op)
	if err != nil {
		s.patchErrors++
		s.opts.Logger.Printf("stream: patch %s failed: %v", op, err)
		if s.h.OnPatchError != nil {
			s.h.OnPatchError(op, err)
		}
		return
	}
	s.patches++
	if s.h.OnTree != nil {
		s.h.OnTree(tree, op)
	}
}

func (s *session) transition(next State) {
	if s.state == next {
		return
	}
	s.state = next
	if next != StateClosed {
		s.outcome = next
	}
	if s.h.OnState != nil {
		s.h.OnState(next)
	}
}

func (s *session) summary() Summary {
	return Summary{
		Outcome:     s.outcome,
		Terminated:  s.terminated,
		Tokens:      s.tokens,
		Patches:     s.patches,
		PatchErrors: s.patchErrors,
		Malformed:   s.malformed,
		Bytes:       s.bytes,
		Tree:        s.applier.Tree(),
	}
}
