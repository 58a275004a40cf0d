// Package events is the in-process signal bus connecting the session store
// with the subsystems that clean up after it (chat widget, prompts).
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"qrguard/internal/observability"
)

// Topic names a signal.
type Topic string

// Signals raised inside the client.
const (
	// TokenExpired is raised by any caller that sees the backend reject the token.
	TokenExpired Topic = "token_expired"
	// SessionReset is raised by logout. Subscribers discard per-session data.
	SessionReset Topic = "session_reset"
	// ChatClose collapses the chat widget.
	ChatClose Topic = "chat_close"
	// AuthPromptOpen and AuthPromptClose track the "must authenticate" prompt.
	AuthPromptOpen  Topic = "auth_prompt_open"
	AuthPromptClose Topic = "auth_prompt_close"
)

// Handler receives a published payload.
type Handler func(ctx context.Context, payload any)

type subscription struct {
	id uint64
	fn Handler
}

// Bus dispatches published signals synchronously to subscribers in
// subscription order.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Topic][]subscription
	nextID uint64
	logger *slog.Logger
}

// NewBus creates an empty Bus. A nil logger uses the global logger.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[Topic][]subscription),
		logger: observability.ComponentLogger(logger, "events"),
	}
}

// Subscribe registers fn for topic and returns a func that removes it.
// Calling the returned func more than once is harmless.
func (b *Bus) Subscribe(topic Topic, fn Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(topic, id) })
	}
}

func (b *Bus) remove(topic Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[topic]
	for i, s := range list {
		if s.id == id {
			b.subs[topic] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(b.subs[topic]) == 0 {
		delete(b.subs, topic)
	}
}

// Publish delivers payload to every subscriber of topic. A panicking handler
// is logged and does not stop delivery to the rest.
func (b *Bus) Publish(ctx context.Context, topic Topic, payload any) {
	b.mu.RLock()
	list := make([]subscription, len(b.subs[topic]))
	copy(list, b.subs[topic])
	b.mu.RUnlock()

	for _, s := range list {
		b.deliver(ctx, topic, s.fn, payload)
	}
}

func (b *Bus) deliver(ctx context.Context, topic Topic, fn Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorContext(ctx, "event handler panicked",
				slog.String("topic", string(topic)),
				slog.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	fn(ctx, payload)
}

// Subscribers returns the number of handlers registered for topic.
func (b *Bus) Subscribers(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
