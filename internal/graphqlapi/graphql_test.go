package graphqlapi

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/graphql-go/graphql"

	"github.com/oremus-labs/genui-bridge/internal/jsonval"
	"github.com/oremus-labs/genui-bridge/internal/registry"
	"github.com/oremus-labs/genui-bridge/internal/store"
)

type fakeSessions struct {
	sessions map[string]store.Session
	trees    map[string]string
}

func (f *fakeSessions) Get(id string) (*store.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

func (f *fakeSessions) List(status store.SessionStatus, limit int) ([]store.Session, error) {
	var out []store.Session
	for _, s := range f.sessions {
		if status == "" || s.Status == status {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSessions) History(id string, limit int) ([]store.HistoryEntry, error) {
	return []store.HistoryEntry{{ID: "1", Event: "patch_failed", SessionID: id, CreatedAt: time.Unix(0, 0)}}, nil
}

func (f *fakeSessions) Snapshot(ctx context.Context, id string) (jsonval.Value, error) {
	return jsonval.ParseString(f.trees[id])
}

func TestSessionQuery(t *testing.T) {
	t.Parallel()

	provider := &fakeSessions{
		sessions: map[string]store.Session{
			"s1": {ID: "s1", Status: store.SessionDone, Tokens: 3, Text: "hello"},
		},
		trees: map[string]string{
			"s1": `{"root":"c","elements":{"c":{"key":"c","type":"Card","props":{"title":"Hi"}}}}`,
		},
	}
	schema, err := NewSchema(Config{Sessions: provider, Registry: registry.Default()})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}

	res := graphql.Do(graphql.Params{
		Schema:        *schema,
		Context:       context.Background(),
		RequestString: `{ session(id: "s1") { id status tokens outline tree history { event } } missing: session(id: "nope") { id } }`,
	})
	if len(res.Errors) > 0 {
		t.Fatalf("query errors: %v", res.Errors)
	}
	raw, _ := json.Marshal(res.Data)
	var data struct {
		Session struct {
			ID      string                 `json:"id"`
			Status  string                 `json:"status"`
			Tokens  int                    `json:"tokens"`
			Outline string                 `json:"outline"`
			Tree    map[string]interface{} `json:"tree"`
			History []struct {
				Event string `json:"event"`
			} `json:"history"`
		} `json:"session"`
		Missing *struct{} `json:"missing"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.Session.ID != "s1" || data.Session.Status != "completed" || data.Session.Tokens != 3 {
		t.Fatalf("unexpected session %+v", data.Session)
	}
	if data.Session.Outline != "Card \"Hi\"\n" || data.Session.Tree["root"] != "c" {
		t.Fatalf("unexpected tree fields %+v", data.Session)
	}
	if len(data.Session.History) != 1 || data.Session.History[0].Event != "patch_failed" {
		t.Fatalf("unexpected history %+v", data.Session.History)
	}
	if data.Missing != nil {
		t.Fatalf("expected null for unknown session")
	}
}

func TestComponentsQuery(t *testing.T) {
	t.Parallel()

	schema, err := NewSchema(Config{})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	res := graphql.Do(graphql.Params{Schema: *schema, RequestString: `{ components { name container } }`})
	if len(res.Errors) > 0 {
		t.Fatalf("query errors: %v", res.Errors)
	}
	list := res.Data.(map[string]interface{})["components"].([]interface{})
	if len(list) != len(registry.Default().Names()) {
		t.Fatalf("expected every default component, got %d", len(list))
	}
}
