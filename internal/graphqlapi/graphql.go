// Package graphqlapi serves a read-only GraphQL view of sessions and the
// component registry.
package graphqlapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"

	"github.com/oremus-labs/genui-bridge/internal/jsonval"
	"github.com/oremus-labs/genui-bridge/internal/registry"
	"github.com/oremus-labs/genui-bridge/internal/render"
	"github.com/oremus-labs/genui-bridge/internal/store"
)

// SessionProvider exposes read-only session access.
type SessionProvider interface {
	Get(id string) (*store.Session, error)
	List(status store.SessionStatus, limit int) ([]store.Session, error)
	History(id string, limit int) ([]store.HistoryEntry, error)
	Snapshot(ctx context.Context, id string) (jsonval.Value, error)
}

// Config wires the GraphQL schema.
type Config struct {
	Sessions SessionProvider
	Registry *registry.Registry
}

// NewHandler returns an http.Handler that serves /graphql requests.
func NewHandler(cfg Config) (http.Handler, error) {
	schema, err := NewSchema(cfg)
	if err != nil {
		return nil, err
	}

	return handler.New(&handler.Config{
		Schema:   schema,
		Pretty:   true,
		GraphiQL: true,
	}), nil
}

// NewSchema builds the schema; exported for in-process queries.
func NewSchema(cfg Config) (*graphql.Schema, error) {
	if cfg.Registry == nil {
		cfg.Registry = registry.Default()
	}
	builder := schemaBuilder{cfg: cfg}
	return builder.buildSchema()
}

type schemaBuilder struct {
	cfg Config
}

func (b schemaBuilder) buildSchema() (*graphql.Schema, error) {
	jsonScalar := graphql.NewScalar(graphql.ScalarConfig{
		Name: "JSON",
		Serialize: func(value interface{}) interface{} {
			return value
		},
	})

	historyType := graphql.NewObject(graphql.ObjectConfig{
		Name: "HistoryEntry",
		Fields: graphql.Fields{
			"id":        {Type: graphql.NewNonNull(graphql.ID)},
			"event":     {Type: graphql.NewNonNull(graphql.String)},
			"metadata":  {Type: jsonScalar},
			"createdAt": {Type: graphql.String},
		},
	})

	componentType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Component",
		Fields: graphql.Fields{
			"name":        {Type: graphql.NewNonNull(graphql.String)},
			"description": {Type: graphql.String},
			"container":   {Type: graphql.Boolean},
			"props":       {Type: jsonScalar},
		},
	})

	sessionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Session",
		Fields: graphql.Fields{
			"id":          {Type: graphql.NewNonNull(graphql.ID)},
			"source":      {Type: graphql.String},
			"status":      {Type: graphql.NewNonNull(graphql.String)},
			"state":       {Type: graphql.String},
			"tokens":      {Type: graphql.Int},
			"patches":     {Type: graphql.Int},
			"patchErrors": {Type: graphql.Int},
			"bytes":       {Type: graphql.Int},
			"terminated":  {Type: graphql.Boolean},
			"text":        {Type: graphql.String},
			"error":       {Type: graphql.String},
			"request":     {Type: jsonScalar},
			"createdAt":   {Type: graphql.String},
			"updatedAt":   {Type: graphql.String},
			"tree": {
				Type: jsonScalar,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					tree, err := b.snapshot(p)
					if err != nil {
						return nil, err
					}
					return tree.ToGo(), nil
				},
			},
			"outline": {
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					tree, err := b.snapshot(p)
					if err != nil {
						return nil, err
					}
					return render.Outline(tree, b.cfg.Registry), nil
				},
			},
			"history": {
				Type: graphql.NewList(historyType),
				Args: graphql.FieldConfigArgument{
					"limit": {Type: graphql.Int},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := sourceID(p)
					if b.cfg.Sessions == nil || id == "" {
						return []interface{}{}, nil
					}
					entries, err := b.cfg.Sessions.History(id, intArg(p, "limit", 100))
					if err != nil {
						return nil, err
					}
					return mapHistory(entries), nil
				},
			},
		},
	})

	queryFields := graphql.Fields{
		"sessions": {
			Type: graphql.NewList(sessionType),
			Args: graphql.FieldConfigArgument{
				"status": {Type: graphql.String},
				"limit":  {Type: graphql.Int},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if b.cfg.Sessions == nil {
					return []interface{}{}, nil
				}
				status, _ := p.Args["status"].(string)
				list, err := b.cfg.Sessions.List(store.SessionStatus(strings.ToLower(status)), intArg(p, "limit", 25))
				if err != nil {
					return nil, err
				}
				return mapSessions(list), nil
			},
		},
		"session": {
			Type: sessionType,
			Args: graphql.FieldConfigArgument{
				"id": {Type: graphql.NewNonNull(graphql.ID)},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if b.cfg.Sessions == nil {
					return nil, nil
				}
				id, _ := p.Args["id"].(string)
				sess, err := b.cfg.Sessions.Get(id)
				if errors.Is(err, store.ErrNotFound) {
					return nil, nil
				}
				if err != nil {
					return nil, err
				}
				return mapSession(sess), nil
			},
		},
		"components": {
			Type: graphql.NewList(componentType),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return mapComponents(b.cfg.Registry.List()), nil
			},
		},
	}

	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: queryFields,
		}),
	})
	if err != nil {
		return nil, err
	}
	return &schema, nil
}

func (b schemaBuilder) snapshot(p graphql.ResolveParams) (jsonval.Value, error) {
	id := sourceID(p)
	if b.cfg.Sessions == nil || id == "" {
		return jsonval.Value{}, nil
	}
	ctx := p.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return b.cfg.Sessions.Snapshot(ctx, id)
}

func sourceID(p graphql.ResolveParams) string {
	src, ok := p.Source.(map[string]interface{})
	if !ok {
		return ""
	}
	id, _ := src["id"].(string)
	return id
}

func intArg(p graphql.ResolveParams, name string, def int) int {
	if v, ok := p.Args[name].(int); ok && v > 0 {
		return v
	}
	return def
}

func mapSessions(list []store.Session) []interface{} {
	out := make([]interface{}, 0, len(list))
	for i := range list {
		out = append(out, mapSession(&list[i]))
	}
	return out
}

func mapSession(sess *store.Session) map[string]interface{} {
	if sess == nil {
		return nil
	}
	return map[string]interface{}{
		"id":          sess.ID,
		"source":      sess.Source,
		"status":      string(sess.Status),
		"state":       sess.State,
		"tokens":      sess.Tokens,
		"patches":     sess.Patches,
		"patchErrors": sess.PatchErrors,
		"bytes":       int(sess.Bytes),
		"terminated":  sess.Terminated,
		"text":        sess.Text,
		"error":       sess.Error,
		"request":     sess.Request,
		"createdAt":   formatTime(sess.CreatedAt),
		"updatedAt":   formatTime(sess.UpdatedAt),
	}
}

func mapHistory(entries []store.HistoryEntry) []interface{} {
	out := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]interface{}{
			"id":        e.ID,
			"event":     e.Event,
			"metadata":  e.Metadata,
			"createdAt": formatTime(e.CreatedAt),
		})
	}
	return out
}

func mapComponents(components []registry.Component) []interface{} {
	out := make([]interface{}, 0, len(components))
	for _, c := range components {
		out = append(out, map[string]interface{}{
			"name":        c.Name,
			"description": c.Description,
			"container":   c.Container,
			"props":       c.Props,
		})
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
