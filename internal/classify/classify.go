// Package classify decides what an SSE data block means: a token, a patch
// operation, the end-of-stream terminator, or nothing.
package classify

import (
	"math"
	"strconv"
	"strings"

	"github.com/oremus-labs/genui-bridge/internal/jsonval"
	"github.com/oremus-labs/genui-bridge/internal/patch"
)

// Terminator is the sentinel payload that ends a generation stream.
const Terminator = "[DONE]"

// Kind is the classification of a block.
type Kind int

const (
	// Ignore covers empty blocks and valid JSON of an unknown shape, such as
	// heartbeats and usage metadata.
	Ignore Kind = iota
	// Token carries literal text.
	Token
	// Patch carries a tree operation.
	Patch
	// Done is the terminator.
	Done
	// Pending means the block looks like the start of a JSON document and
	// more lines are needed before deciding.
	Pending
)

func (k Kind) String() string {
	switch k {
	case Ignore:
		return "ignore"
	case Token:
		return "token"
	case Patch:
		return "patch"
	case Done:
		return "done"
	case Pending:
		return "pending"
	default:
		return "unknown"
	}
}

// Result is the outcome of classifying one block.
type Result struct {
	Kind  Kind
	Token string
	Op    patch.Op
}

// Classify inspects the data lines of one block.
func Classify(lines []string) Result {
	combined := strings.Join(lines, "\n")
	trimmed := strings.TrimSpace(combined)
	if trimmed == "" {
		return Result{Kind: Ignore}
	}
	if trimmed == Terminator {
		return Result{Kind: Done}
	}

	if v, err := jsonval.ParseString(trimmed); err == nil {
		return fromJSON(v)
	}

	if len(lines) == 1 && !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return Result{Kind: Token, Token: combined}
	}
	return Result{Kind: Pending}
}

func fromJSON(v jsonval.Value) Result {
	if v.Kind() != jsonval.KindObject {
		return Result{Kind: Ignore}
	}
	if resp, ok := v.Get("response"); ok {
		if resp.Kind() == jsonval.KindNumber {
			text, _ := resp.Scalar()
			return Result{Kind: Token, Token: numberToken(text)}
		}
		if text, ok := resp.Scalar(); ok {
			return Result{Kind: Token, Token: text}
		}
	}
	if choices, ok := v.Get("choices"); ok {
		if first, ok := choices.Index(0); ok {
			if text, ok := first.GetString("text"); ok {
				return Result{Kind: Token, Token: text}
			}
			if delta, ok := first.Get("delta"); ok {
				if text, ok := delta.GetString("content"); ok {
					return Result{Kind: Token, Token: text}
				}
				if text, ok := delta.GetString("text"); ok {
					return Result{Kind: Token, Token: text}
				}
			}
		}
	}
	if op, ok := patch.FromValue(v); ok {
		return Result{Kind: Patch, Op: op}
	}
	return Result{Kind: Ignore}
}

// numberToken renders a numeric response in its shortest form, so 1.50 and
// 1.5 yield the same token. Plain notation is used between 1e-6 and 1e21.
func numberToken(literal string) string {
	f, err := strconv.ParseFloat(literal, 64)
	if err != nil || math.IsInf(f, 0) {
		return literal
	}
	if f == 0 {
		return "0"
	}
	if abs := math.Abs(f); abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	out := strconv.FormatFloat(f, 'e', -1, 64)
	mant, exp, _ := strings.Cut(out, "e")
	sign, digits := exp[:1], strings.TrimLeft(exp[1:], "0")
	return mant + "e" + sign + digits
}
