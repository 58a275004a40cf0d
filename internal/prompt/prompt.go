// Package prompt tracks the modal surfaces (auth prompt, drawers, dialogs)
// currently on screen. Every open modal holds one scroll lock.
package prompt

import (
	"context"
	"errors"
	"sort"
	"sync"

	"qrguard/internal/events"
	"qrguard/internal/scrolllock"
)

// AuthPrompt is the name of the "must authenticate" prompt.
const AuthPrompt = "auth"

var (
	// ErrMandatory is returned when the user tries to close a mandatory auth prompt.
	ErrMandatory = errors.New("prompt: authentication is required")
	// ErrNotOpen is returned when closing a modal that is not open.
	ErrNotOpen = errors.New("prompt: not open")
)

// AuthPayload is published with events.AuthPromptOpen.
type AuthPayload struct {
	Mandatory bool
}

// Manager owns the set of open modals.
type Manager struct {
	mu        sync.Mutex
	lock      *scrolllock.Lock
	bus       *events.Bus
	open      map[string]struct{}
	mandatory bool
}

// NewManager creates a Manager. bus may be nil.
func NewManager(lock *scrolllock.Lock, bus *events.Bus) *Manager {
	return &Manager{
		lock: lock,
		bus:  bus,
		open: make(map[string]struct{}),
	}
}

// Open shows the named modal. Opening an already open modal is a no-op.
func (m *Manager) Open(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openLocked(name)
}

func (m *Manager) openLocked(name string) bool {
	if _, ok := m.open[name]; ok {
		return false
	}
	m.open[name] = struct{}{}
	m.lock.Lock()
	return true
}

// Close hides the named modal as a user action. A mandatory auth prompt
// refuses with ErrMandatory.
func (m *Manager) Close(ctx context.Context, name string) error {
	m.mu.Lock()
	if name == AuthPrompt && m.mandatory {
		m.mu.Unlock()
		return ErrMandatory
	}
	closed := m.closeLocked(name)
	m.mu.Unlock()

	if !closed {
		return ErrNotOpen
	}
	if name == AuthPrompt {
		m.publish(ctx, events.AuthPromptClose, nil)
	}
	return nil
}

func (m *Manager) closeLocked(name string) bool {
	if _, ok := m.open[name]; !ok {
		return false
	}
	delete(m.open, name)
	if name == AuthPrompt {
		m.mandatory = false
	}
	m.lock.Unlock()
	return true
}

// ShowAuth opens the auth prompt. Showing it again can upgrade it to
// mandatory but never downgrades it.
func (m *Manager) ShowAuth(ctx context.Context, mandatory bool) {
	m.mu.Lock()
	m.openLocked(AuthPrompt)
	m.mandatory = m.mandatory || mandatory
	payload := AuthPayload{Mandatory: m.mandatory}
	m.mu.Unlock()

	m.publish(ctx, events.AuthPromptOpen, payload)
}

// DismissAuth closes the auth prompt whether or not it is mandatory.
// It is what a successful login calls.
func (m *Manager) DismissAuth(ctx context.Context) {
	m.mu.Lock()
	closed := m.closeLocked(AuthPrompt)
	m.mu.Unlock()

	if closed {
		m.publish(ctx, events.AuthPromptClose, nil)
	}
}

// AuthVisible reports whether the auth prompt is showing.
func (m *Manager) AuthVisible() bool {
	return m.IsOpen(AuthPrompt)
}

// AuthMandatory reports whether the showing auth prompt is mandatory.
func (m *Manager) AuthMandatory() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mandatory
}

// IsOpen reports whether the named modal is showing.
func (m *Manager) IsOpen(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.open[name]
	return ok
}

// Visible returns the open modal names in sorted order.
func (m *Manager) Visible() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.open))
	for n := range m.open {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CloseAll hides everything, mandatory prompt included, and force-resets the scroll lock.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	_, hadAuth := m.open[AuthPrompt]
	m.open = make(map[string]struct{})
	m.mandatory = false
	m.lock.Reset()
	m.mu.Unlock()

	if hadAuth {
		m.publish(ctx, events.AuthPromptClose, nil)
	}
}

func (m *Manager) publish(ctx context.Context, topic events.Topic, payload any) {
	if m.bus != nil {
		m.bus.Publish(ctx, topic, payload)
	}
}
