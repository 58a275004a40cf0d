// Package chat implements the assistant chat widget: an open/closed panel
// with a transcript persisted per user, backed by an HTTP or websocket
// transport.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"qrguard/internal/events"
	"qrguard/internal/models"
	"qrguard/internal/observability"
	"qrguard/internal/storage"
)

// Roles of transcript messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultHistory is how many prior turns are sent along with a message.
const DefaultHistory = 20

const anonScope = "anon"

// ErrEmptyMessage is returned by Send for blank input.
var ErrEmptyMessage = errors.New("chat: message is empty")

// Message is one transcript entry.
type Message struct {
	ID      string    `json:"id" yaml:"id"`
	Role    string    `json:"role" yaml:"role"`
	Content string    `json:"content" yaml:"content"`
	At      time.Time `json:"at" yaml:"at"`
}

// Widget is the chat panel. Transcripts live in the store under
// prefix+scope(), so logging out can purge every one of them at once.
type Widget struct {
	mu         sync.Mutex
	store      storage.Store
	prefix     string
	scope      func() string
	transport  Transport
	open       bool
	generation uint64
	history    int
	unsub      []func()
	log        *slog.Logger
	now        func() time.Time
}

// NewWidget creates a Widget. scope returns the current user id, or "" when
// anonymous. When bus is non-nil the widget purges transcripts on
// events.SessionReset and collapses on events.ChatClose.
func NewWidget(store storage.Store, prefix string, scope func() string, transport Transport, bus *events.Bus, logger *slog.Logger) *Widget {
	w := &Widget{
		store:     store,
		prefix:    prefix,
		scope:     scope,
		transport: transport,
		history:   DefaultHistory,
		log:       observability.ComponentLogger(logger, "chat"),
		now:       time.Now,
	}
	if bus != nil {
		w.unsub = append(w.unsub,
			bus.Subscribe(events.SessionReset, func(ctx context.Context, _ any) {
				if _, err := w.Purge(ctx); err != nil {
					w.log.WarnContext(ctx, "purge chat transcripts", "error", err)
				}
			}),
			bus.Subscribe(events.ChatClose, func(ctx context.Context, _ any) {
				w.Close()
				w.closeTransport(ctx)
			}),
		)
	}
	return w
}

// Detach drops the bus subscriptions.
func (w *Widget) Detach() {
	for _, fn := range w.unsub {
		fn()
	}
	w.unsub = nil
}

// Open expands the panel.
func (w *Widget) Open() {
	w.mu.Lock()
	w.open = true
	w.mu.Unlock()
}

// Close collapses the panel. The transcript is kept.
func (w *Widget) Close() {
	w.mu.Lock()
	w.open = false
	w.mu.Unlock()
}

// Toggle flips the panel and returns the new state.
func (w *Widget) Toggle() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.open = !w.open
	return w.open
}

// IsOpen reports whether the panel is expanded.
func (w *Widget) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open
}

// Key returns the storage key of the current transcript.
func (w *Widget) Key() string {
	scope := ""
	if w.scope != nil {
		scope = w.scope()
	}
	if scope == "" {
		scope = anonScope
	}
	return w.prefix + scope
}

// Send records text, forwards it with the recent history, and records the
// reply. The user message stays in the transcript when the transport fails.
// A reply that arrives after the transcript was purged is dropped.
func (w *Widget) Send(ctx context.Context, text string) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	w.mu.Lock()
	key := w.Key()
	transcript, err := w.load(ctx, key)
	if err != nil {
		w.mu.Unlock()
		return nil, err
	}
	turns := toTurns(transcript, w.history)
	transcript = append(transcript, w.message(RoleUser, text))
	if err := w.save(ctx, key, transcript); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	gen := w.generation
	w.mu.Unlock()
	observability.ChatMessagesTotal.WithLabelValues("sent").Inc()

	// The transport may publish token_expired, whose handlers re-enter the widget.
	reply, err := w.transport.Send(ctx, text, turns)
	if err != nil {
		return nil, fmt.Errorf("send chat message: %w", err)
	}
	observability.ChatMessagesTotal.WithLabelValues("received").Inc()

	msg := w.message(RoleAssistant, reply)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.generation != gen || w.Key() != key {
		w.log.DebugContext(ctx, "dropping reply for purged transcript")
		return &msg, nil
	}
	transcript, err = w.load(ctx, key)
	if err != nil {
		return nil, err
	}
	transcript = append(transcript, msg)
	if err := w.save(ctx, key, transcript); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Transcript returns the current user's messages, oldest first.
func (w *Widget) Transcript(ctx context.Context) ([]Message, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.load(ctx, w.Key())
}

// Clear removes the current user's transcript.
func (w *Widget) Clear(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.generation++
	if err := w.store.Delete(ctx, w.Key()); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("clear chat transcript: %w", err)
	}
	return nil
}

// Purge removes every transcript under the prefix and drops the transport
// connection, which was authenticated as the previous user.
func (w *Widget) Purge(ctx context.Context) (int, error) {
	w.mu.Lock()
	w.generation++
	n, err := w.store.DeletePrefix(ctx, w.prefix)
	w.mu.Unlock()

	w.closeTransport(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge chat transcripts: %w", err)
	}
	w.log.DebugContext(ctx, "purged chat transcripts", "count", n)
	return n, nil
}

func (w *Widget) closeTransport(ctx context.Context) {
	if err := w.transport.Close(); err != nil {
		w.log.WarnContext(ctx, "close chat transport", "error", err)
	}
}

func (w *Widget) message(role, content string) Message {
	return Message{ID: uuid.NewString(), Role: role, Content: content, At: w.now().UTC()}
}

func (w *Widget) load(ctx context.Context, key string) ([]Message, error) {
	raw, err := w.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load chat transcript: %w", err)
	}
	var out []Message
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		// A corrupt transcript is discarded rather than blocking the widget.
		w.log.WarnContext(ctx, "discarding unreadable chat transcript", "key", key, "error", err)
		return nil, nil
	}
	return out, nil
}

func (w *Widget) save(ctx context.Context, key string, transcript []Message) error {
	raw, err := json.Marshal(transcript)
	if err != nil {
		return fmt.Errorf("encode chat transcript: %w", err)
	}
	if err := w.store.Set(ctx, key, string(raw)); err != nil {
		return fmt.Errorf("save chat transcript: %w", err)
	}
	return nil
}

func toTurns(transcript []Message, limit int) []models.ChatTurn {
	if limit > 0 && len(transcript) > limit {
		transcript = transcript[len(transcript)-limit:]
	}
	turns := make([]models.ChatTurn, 0, len(transcript))
	for _, m := range transcript {
		turns = append(turns, models.ChatTurn{Role: m.Role, Content: m.Content})
	}
	return turns
}
