// Package events is the in-process lifecycle bus. Publishers never block on
// slow subscribers: a full subscriber channel drops the event.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cskr/pubsub"
)

// Topic names a lifecycle event.
type Topic string

const (
	TopicRegistered      Topic = "correspondence.registered"
	TopicPickedUp        Topic = "correspondence.picked_up"
	TopicNoticeCreated   Topic = "notice.created"
	TopicArtifactsStored Topic = "artifacts.stored"
	TopicArtifactFailed  Topic = "artifacts.failed"
)

// Event is published after the state it describes is committed.
type Event struct {
	Topic         Topic
	SubjectID     string
	CondominiumID string
	Protocol      string
	StaffID       string
	RequestID     string
	Detail        string
	At            time.Time
}

// Bus fans events out to topic subscribers.
type Bus struct {
	ps     *pubsub.PubSub
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

type Option func(*Bus)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) { b.logger = logger }
}

// NewBus creates a bus whose subscriber channels buffer capacity events.
func NewBus(capacity int, opts ...Option) *Bus {
	b := &Bus{ps: pubsub.New(capacity), logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish delivers e to current subscribers of e.Topic.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.ps.TryPub(e, string(e.Topic))
}

// Subscribe runs handle for every event on topics until ctx is cancelled or
// the bus is closed.
func (b *Bus) Subscribe(ctx context.Context, handle func(context.Context, Event), topics ...Topic) {
	names := make([]string, len(topics))
	for i, t := range topics {
		names[i] = string(t)
	}
	ch := b.ps.Sub(names...)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-ctx.Done():
				go b.ps.Unsub(ch, names...)
				// Drain until Unsub closes the channel so the pubsub loop is never
				// stuck delivering to us.
				for range ch {
				}
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				e, ok := msg.(Event)
				if !ok {
					b.logger.Warn("dropping unexpected bus message")
					continue
				}
				handle(ctx, e)
			}
		}
	}()
}

// Close stops delivery and waits for subscriber goroutines to exit.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()
	b.ps.Shutdown()
	b.wg.Wait()
}
