// Package sse frames a Server-Sent Events text stream into data blocks.
//
// Only the data field is honoured. Blocks are offered to the caller after
// every data line as well as at the blank line that terminates them, because
// some proxies and model servers drop the blank line between events.
package sse

import "strings"

// Event is one SSE block: the payloads of its data lines, in order.
type Event struct {
	Lines []string
}

// Text joins the data lines with newlines.
func (e Event) Text() string {
	return strings.Join(e.Lines, "\n")
}

// DispatchFunc receives the pending block. final is false when the block is
// offered eagerly after a data line and true when a blank line or the end of
// input closes it. Returning false for an eager offer keeps the lines pending
// so the next data line is appended; the return value of a final dispatch is
// ignored.
type DispatchFunc func(ev Event, final bool) bool

// Framer splits text into lines and groups data lines into blocks.
type Framer struct {
	dispatch DispatchFunc
	partial  string
	pending  []string
	stopped  bool
}

// NewFramer returns a framer that hands blocks to dispatch.
func NewFramer(dispatch DispatchFunc) *Framer {
	return &Framer{dispatch: dispatch}
}

// Feed consumes decoded text. A trailing fragment without a newline is kept
// until more text arrives or Flush is called.
func (f *Framer) Feed(text string) {
	if f.stopped {
		return
	}
	f.partial += text
	for !f.stopped {
		i := strings.IndexByte(f.partial, '\n')
		if i < 0 {
			return
		}
		line := f.partial[:i]
		f.partial = f.partial[i+1:]
		f.Line(line)
	}
	f.partial = ""
}

// Line processes one line without its terminating newline.
func (f *Framer) Line(line string) {
	if f.stopped {
		return
	}
	line = strings.TrimSuffix(line, "\r")
	switch {
	case line == "":
		if len(f.pending) > 0 {
			ev := f.take()
			f.dispatch(ev, true)
		}
		return
	case strings.HasPrefix(line, ":"):
		return
	case !strings.HasPrefix(line, "data:"):
		return
	}
	payload := strings.TrimPrefix(line[len("data:"):], " ")
	f.pending = append(f.pending, payload)
	ev := Event{Lines: append([]string(nil), f.pending...)}
	if f.dispatch(ev, false) {
		f.pending = f.pending[:0]
	}
}

// Flush processes a buffered partial line and closes any pending block, as
// if the stream had ended with a blank line.
func (f *Framer) Flush() {
	if f.stopped {
		return
	}
	if f.partial != "" {
		line := f.partial
		f.partial = ""
		f.Line(line)
	}
	if !f.stopped && len(f.pending) > 0 {
		f.dispatch(f.take(), true)
	}
}

// Stop discards buffered input and ignores everything fed afterwards. It is
// called once the terminator has been seen.
func (f *Framer) Stop() {
	f.stopped = true
	f.partial = ""
	f.pending = nil
}

// Stopped reports whether Stop has been called.
func (f *Framer) Stopped() bool { return f.stopped }

// Pending returns the number of data lines waiting for more input.
func (f *Framer) Pending() int { return len(f.pending) }

func (f *Framer) take() Event {
	ev := Event{Lines: append([]string(nil), f.pending...)}
	f.pending = f.pending[:0]
	return ev
}
