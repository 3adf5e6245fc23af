package queue

import (
	"context"
	"testing"

	"github.com/oremus-labs/genui-bridge/internal/sessions"
	"github.com/oremus-labs/genui-bridge/internal/upstream"
)

func TestDecodeMessage(t *testing.T) {
	t.Parallel()

	msg, err := decode(map[string]interface{}{
		"data": `{"sessionId":"s1","request":{"request":{"prompt":"pricing table"},"tokenPatches":true}}`,
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.SessionID != "s1" || msg.Request.Request.Prompt != "pricing table" || !msg.Request.TokenPatches {
		t.Fatalf("unexpected message %+v", msg)
	}

	if msg, err := decode(map[string]interface{}{"other": "x"}); msg != nil || err != nil {
		t.Fatalf("expected skip for message without data, got %+v %v", msg, err)
	}
	if _, err := decode(map[string]interface{}{"data": "{"}); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestUnconfiguredQueue(t *testing.T) {
	t.Parallel()

	p := NewProducer(nil, "")
	if p.Enabled() {
		t.Fatalf("producer without client should be disabled")
	}
	if err := p.Enqueue(context.Background(), "", sessionsRequest()); err == nil {
		t.Fatalf("expected error from unconfigured producer")
	}
	c := NewConsumer(nil, "", "", "")
	if err := c.EnsureGroup(context.Background()); err == nil {
		t.Fatalf("expected error from unconfigured consumer")
	}
	if err := c.Ack(context.Background(), "1-0"); err != nil {
		t.Fatalf("Ack without client should be a no-op: %v", err)
	}
}

func sessionsRequest() sessions.StartRequest {
	return sessions.StartRequest{Request: upstream.Request{Prompt: "x"}}
}
