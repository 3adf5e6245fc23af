package render

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/oremus-labs/genui-bridge/internal/jsonval"
	"github.com/oremus-labs/genui-bridge/internal/registry"
	"github.com/oremus-labs/genui-bridge/internal/uitree"
)

func TestOutline(t *testing.T) {
	t.Parallel()

	tree := jsonval.MustParse(`{
		"root": "page",
		"elements": {
			"page": {"key": "page", "type": "Card", "props": {"title": "Revenue"}, "children": ["mrr", "ghost", "note", "secret", "widget"]},
			"mrr": {"key": "mrr", "type": "Metric", "props": {"label": "MRR", "value": "$12k"}, "children": []},
			"note": {"key": "note", "type": "Text", "props": {"text": "Updated hourly"}, "children": ["page"]},
			"secret": {"key": "secret", "type": "Text", "props": {"text": "hidden"}, "visible": false},
			"widget": {"key": "widget", "type": "Sparkline", "props": {}},
			"orphan": {"key": "orphan", "type": "Text", "props": {"text": "never shown"}}
		}
	}`)
	got := Outline(tree, registry.Default())
	want := "Card \"Revenue\"\n" +
		"  Metric MRR: $12k\n" +
		"  Text \"Updated hourly\"\n" +
		"  [unknown Sparkline]\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("outline mismatch (-want +got):\n%s", diff)
	}
}

func TestOutlineEmptyTree(t *testing.T) {
	t.Parallel()

	if got := Outline(uitree.Empty(), registry.Default()); got != "" {
		t.Fatalf("expected empty outline, got %q", got)
	}
}

func TestWalkDepths(t *testing.T) {
	t.Parallel()

	tree := jsonval.MustParse(`{"root":"a","elements":{
		"a":{"type":"Stack","children":["b"]},
		"b":{"type":"Stack","children":["c"]},
		"c":{"type":"Text","props":{"text":"leaf"}}}}`)
	var depths []int
	Walk(tree, func(el uitree.Element, depth int) { depths = append(depths, depth) })
	if diff := cmp.Diff([]int{0, 1, 2}, depths); diff != "" {
		t.Fatalf("depth mismatch (-want +got):\n%s", diff)
	}
}
