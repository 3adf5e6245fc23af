// Package patchline reassembles JSONL patch operations that a model writes
// inside its token stream, one operation per line.
package patchline

import (
	"strings"

	"github.com/oremus-labs/genui-bridge/internal/jsonval"
	"github.com/oremus-labs/genui-bridge/internal/patch"
)

// Assembler buffers token text until a newline completes a line, then
// parses the line as a patch operation. Lines that are not operations
// (prose, code fences) are skipped.
type Assembler struct {
	partial strings.Builder
	skipped int
}

// Write appends token text and returns the operations completed by it, in
// order.
func (a *Assembler) Write(text string) []patch.Op {
	if !strings.Contains(text, "\n") {
		a.partial.WriteString(text)
		return nil
	}
	var ops []patch.Op
	for {
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			a.partial.WriteString(text)
			return ops
		}
		a.partial.WriteString(text[:i])
		line := a.partial.String()
		a.partial.Reset()
		text = text[i+1:]
		if op, ok := a.parse(line); ok {
			ops = append(ops, op)
		}
	}
}

// Flush parses a final unterminated line.
func (a *Assembler) Flush() []patch.Op {
	line := a.partial.String()
	a.partial.Reset()
	if op, ok := a.parse(line); ok {
		return []patch.Op{op}
	}
	return nil
}

// Skipped counts non-empty lines that were not operations.
func (a *Assembler) Skipped() int { return a.skipped }

func (a *Assembler) parse(line string) (patch.Op, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "```") {
		return patch.Op{}, false
	}
	if !strings.HasPrefix(line, "{") {
		a.skipped++
		return patch.Op{}, false
	}
	v, err := jsonval.ParseString(line)
	if err != nil {
		a.skipped++
		return patch.Op{}, false
	}
	op, ok := patch.FromValue(v)
	if !ok {
		a.skipped++
		return patch.Op{}, false
	}
	return op, true
}
