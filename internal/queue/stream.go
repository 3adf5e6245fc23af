// Package queue carries session start requests over a Redis Stream so
// separate worker processes can consume them.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/oremus-labs/genui-bridge/internal/sessions"
)

const (
	defaultStream = "genui:sessions"
	defaultGroup  = "genui-workers"
)

// SessionMessage wraps the payload pushed through Redis.
type SessionMessage struct {
	SessionID string                `json:"sessionId"`
	Request   sessions.StartRequest `json:"request"`
}

// Producer publishes session requests onto a Redis Stream.
type Producer struct {
	client redis.UniversalClient
	stream string
}

// NewProducer constructs a producer for the provided stream.
func NewProducer(client redis.UniversalClient, stream string) *Producer {
	if stream == "" {
		stream = defaultStream
	}
	return &Producer{client: client, stream: stream}
}

// Enabled reports whether the producer has a Redis client.
func (p *Producer) Enabled() bool {
	return p != nil && p.client != nil
}

// Enqueue pushes a session start request to the stream.
func (p *Producer) Enqueue(ctx context.Context, sessionID string, req sessions.StartRequest) error {
	if !p.Enabled() {
		return fmt.Errorf("queue producer not configured")
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	data, err := json.Marshal(SessionMessage{SessionID: sessionID, Request: req})
	if err != nil {
		return err
	}
	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		ID:     "*",
		Values: map[string]interface{}{
			"data": data,
		},
	}).Err()
}

// Consumer pulls session requests from a Redis Stream consumer group.
type Consumer struct {
	client   redis.UniversalClient
	stream   string
	group    string
	name     string
	blockDur time.Duration
}

// NewConsumer creates a consumer bound to a stream + group.
func NewConsumer(client redis.UniversalClient, stream, group, name string) *Consumer {
	if stream == "" {
		stream = defaultStream
	}
	if group == "" {
		group = defaultGroup
	}
	if name == "" {
		name = uuid.NewString()
	}
	return &Consumer{
		client:   client,
		stream:   stream,
		group:    group,
		name:     name,
		blockDur: 5 * time.Second,
	}
}

// EnsureGroup ensures the consumer group exists.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("queue consumer not configured")
	}
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Next fetches the next message from the stream, blocking up to five
// seconds. A nil message with a nil error means nothing arrived.
func (c *Consumer) Next(ctx context.Context) (*SessionMessage, string, error) {
	if c == nil || c.client == nil {
		return nil, "", fmt.Errorf("queue consumer not configured")
	}
	args := &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{c.stream, ">"},
		Count:    1,
		Block:    c.blockDur,
	}
	res, err := c.client.XReadGroup(ctx, args).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, "", nil
		}
		return nil, "", err
	}
	for _, stream := range res {
		for _, msg := range stream.Messages {
			payload, err := decode(msg.Values)
			if err != nil {
				return nil, msg.ID, err
			}
			if payload == nil {
				continue
			}
			return payload, msg.ID, nil
		}
	}
	return nil, "", nil
}

func decode(values map[string]interface{}) (*SessionMessage, error) {
	raw, ok := values["data"]
	if !ok {
		return nil, nil
	}
	text, ok := raw.(string)
	if !ok {
		return nil, nil
	}
	var payload SessionMessage
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("decode session message: %w", err)
	}
	return &payload, nil
}

// Ack confirms processing of a message.
func (c *Consumer) Ack(ctx context.Context, id string) error {
	if c == nil || c.client == nil || id == "" {
		return nil
	}
	return c.client.XAck(ctx, c.stream, c.group, id).Err()
}
