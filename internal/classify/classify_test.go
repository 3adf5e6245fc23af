package classify

import (
	"strings"
	"testing"

	"github.com/oremus-labs/genui-bridge/internal/patch"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		lines []string
		kind  Kind
		token string
	}{
		{"empty", []string{""}, Ignore, ""},
		{"whitespace", []string{"   "}, Ignore, ""},
		{"terminator", []string{"[DONE]"}, Done, ""},
		{"terminator padded", []string{" [DONE] "}, Done, ""},
		{"response string", []string{`{"response":"Hello"}`}, Token, "Hello"},
		{"response number", []string{`{"response":42}`}, Token, "42"},
		{"response decimal trailing zero", []string{`{"response":1.50}`}, Token, "1.5"},
		{"response exponent", []string{`{"response":2E3}`}, Token, "2000"},
		{"response negative zero", []string{`{"response":-0.0}`}, Token, "0"},
		{"response tiny", []string{`{"response":1e-7}`}, Token, "1e-7"},
		{"response huge", []string{`{"response":1e21}`}, Token, "1e+21"},
		{"response bool", []string{`{"response":false}`}, Token, "false"},
		{"response object ignored", []string{`{"response":{"x":1}}`}, Ignore, ""},
		{"choices text", []string{`{"choices":[{"text":"abc"}]}`}, Token, "abc"},
		{"choices delta content", []string{`{"choices":[{"delta":{"content":"tok"}}]}`}, Token, "tok"},
		{"choices delta text", []string{`{"choices":[{"delta":{"text":"tok2"}}]}`}, Token, "tok2"},
		{"choices text wins over delta", []string{`{"choices":[{"text":"t","delta":{"content":"c"}}]}`}, Token, "t"},
		{"choices empty", []string{`{"choices":[]}`}, Ignore, ""},
		{"choices delta role only", []string{`{"choices":[{"delta":{"role":"assistant"}}]}`}, Ignore, ""},
		{"response wins over choices", []string{`{"response":"r","choices":[{"text":"c"}]}`}, Token, "r"},
		{"heartbeat", []string{`{"type":"ping"}`}, Ignore, ""},
		{"json array", []string{`[1,2]`}, Ignore, ""},
		{"raw token", []string{"plain-token-one"}, Token, "plain-token-one"},
		{"raw token keeps inner spacing", []string{" world"}, Token, " world"},
		{"incomplete object", []string{`{"response":`}, Pending, ""},
		{"incomplete array", []string{`[1,`}, Pending, ""},
		{"multi-line json", []string{`{"response":`, `"joined"}`}, Token, "joined"},
		{"multi-line raw text held", []string{"first", "second"}, Pending, ""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Classify(tc.lines)
			if got.Kind != tc.kind {
				t.Fatalf("Classify(%q) kind = %s, want %s", tc.lines, got.Kind, tc.kind)
			}
			if got.Token != tc.token {
				t.Fatalf("Classify(%q) token = %q, want %q", tc.lines, got.Token, tc.token)
			}
		})
	}
}

func TestClassifyPatch(t *testing.T) {
	t.Parallel()

	got := Classify([]string{`{"op":"add","path":"/elements/a","value":{"type":"Text"}}`})
	if got.Kind != Patch {
		t.Fatalf("expected patch, got %s", got.Kind)
	}
	if got.Op.Op != patch.OpAdd || got.Op.Path != "/elements/a" || !got.Op.HasValue {
		t.Fatalf("unexpected op %+v", got.Op)
	}

	rm := Classify([]string{`{"op":"remove","path":"/elements/a"}`})
	if rm.Kind != Patch || rm.Op.HasValue {
		t.Fatalf("unexpected remove classification %+v", rm)
	}

	if bad := Classify([]string{`{"op":"add","path":3}`}); bad.Kind != Ignore {
		t.Fatalf("non-string path should be ignored, got %s", bad.Kind)
	}
}

func TestClassifyLargeMultiLineJSON(t *testing.T) {
	t.Parallel()

	lines := strings.Split("{\n\"choices\": [\n{\"delta\": {\"content\": \"x\"}}\n]\n}", "\n")
	for i := 1; i < len(lines); i++ {
		if got := Classify(lines[:i]); got.Kind != Pending {
			t.Fatalf("prefix of %d lines: expected pending got %s", i, got.Kind)
		}
	}
	if got := Classify(lines); got.Kind != Token || got.Token != "x" {
		t.Fatalf("expected token x got %+v", got)
	}
}
