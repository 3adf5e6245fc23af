// Package events fans session activity and UI actions out to subscribers,
// optionally mirrored across replicas through Redis pub/sub.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Event types published by the bridge.
const (
	TypeSessionToken      = "session.token"
	TypeSessionTree       = "session.tree"
	TypeSessionPatchError = "session.patch_error"
	TypeSessionState      = "session.state"
	TypeSessionCancel     = "session.cancel"
	TypeUIAction          = "ui.action"
)

// Event represents one notification on the bus.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Origin    string      `json:"origin,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Filter selects events for a subscriber. Empty fields match everything.
type Filter struct {
	SessionID string
	Types     []string
}

func (f Filter) match(evt Event) bool {
	if f.SessionID != "" && f.SessionID != evt.SessionID {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if t == evt.Type {
			return true
		}
	}
	return false
}

// Observer is a synchronous in-process handler.
type Observer func(Event)

type subscriber struct {
	ch     chan Event
	filter Filter
}

// Bus multiplexes events to connected clients (local + Redis backed).
type Bus struct {
	client redis.UniversalClient
	logger *log.Logger
	ch     string
	origin string
	buffer int

	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	observers   map[int]Observer
	nextID      int
	closed      bool
	cancel      context.CancelFunc
}

// Options configure the bus.
type Options struct {
	Client  redis.UniversalClient
	Logger  *log.Logger
	Channel string
	// Buffer is the per-subscriber channel capacity.
	Buffer int
}

// NewBus creates a new event bus.
func NewBus(opts Options) *Bus {
	channel := opts.Channel
	if channel == "" {
		channel = "genui-events"
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 64
	}
	bus := &Bus{
		client:      opts.Client,
		logger:      opts.Logger,
		ch:          channel,
		origin:      uuid.NewString(),
		buffer:      buffer,
		subscribers: make(map[*subscriber]struct{}),
		observers:   make(map[int]Observer),
	}
	if bus.client != nil {
		ctx, cancel := context.WithCancel(context.Background())
		bus.cancel = cancel
		go bus.observeRedis(ctx)
	}
	return bus
}

// Publish broadcasts an event to all subscribers and Redis.
func (b *Bus) Publish(ctx context.Context, evt Event) error {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	evt.Origin = b.origin

	b.broadcast(evt)

	if b.client != nil {
		payload, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if err := b.client.Publish(ctx, b.ch, payload).Err(); err != nil {
			return fmt.Errorf("redis publish: %w", err)
		}
	}
	return nil
}

// Subscribe registers a subscriber and returns a channel plus a cancel func.
// The channel is closed when ctx ends, cancel is called or the bus closes.
func (b *Bus) Subscribe(ctx context.Context, filter Filter) (<-chan Event, func(), error) {
	sub := &subscriber{ch: make(chan Event, b.buffer), filter: filter}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, nil, fmt.Errorf("event bus closed")
	}
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[sub]; ok {
			delete(b.subscribers, sub)
			close(sub.ch)
		}
		b.mu.Unlock()
	}

	go func() {
		<-ctx.Done()
		cancel()
	}()

	return sub.ch, cancel, nil
}

// Observe registers a synchronous handler and returns a func that removes
// it. Handlers may remove themselves, or others, while being called.
func (b *Bus) Observe(fn Observer) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.observers[id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.observers, id)
		b.mu.Unlock()
	}
}

// Subscribers returns the number of channel subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close stops the Redis mirror and closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for sub := range b.subscribers {
		delete(b.subscribers, sub)
		close(sub.ch)
	}
	b.observers = make(map[int]Observer)
	b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
	}
}

func (b *Bus) broadcast(evt Event) {
	b.mu.RLock()
	observers := make([]Observer, 0, len(b.observers))
	for _, fn := range b.observers {
		observers = append(observers, fn)
	}
	for sub := range b.subscribers {
		if !sub.filter.match(evt) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			if b.logger != nil {
				b.logger.Printf("events: dropping event %s (subscriber backlog)", evt.ID)
			}
		}
	}
	b.mu.RUnlock()

	for _, fn := range observers {
		fn(evt)
	}
}

func (b *Bus) observeRedis(ctx context.Context) {
	pubsub := b.client.Subscribe(ctx, b.ch)
	defer pubsub.Close()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if b.logger != nil {
				b.logger.Printf("events: redis subscriber error: %v", err)
			}
			time.Sleep(2 * time.Second)
			continue
		}

		var evt Event
		if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
			if b.logger != nil {
				b.logger.Printf("events: invalid payload: %v", err)
			}
			continue
		}
		if evt.Origin == b.origin {
			continue
		}
		b.broadcast(evt)
	}
}
