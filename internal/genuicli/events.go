package genuicli

import (
	"encoding/json"
	"time"
)

// EventEnvelope mirrors the SSE payload emitted by /sessions/:id/events.
type EventEnvelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type tokenPayload struct {
	Text string `json:"text"`
}

type statePayload struct {
	Status string `json:"status"`
	State  string `json:"state"`
}

type patchErrorPayload struct {
	Op     json.RawMessage `json:"op"`
	Reason string          `json:"reason"`
	Error  string          `json:"error"`
}

type treePayload struct {
	Version int             `json:"version"`
	Tree    json.RawMessage `json:"tree"`
}
