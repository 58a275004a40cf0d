// Package session owns the client's authentication state: whether a user is
// logged in, who they are, and whether the persisted token has been checked.
//
// The token itself lives behind tokenstore. The identity is decoded from it
// for display only.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"qrguard/internal/events"
	"qrguard/internal/identity"
	"qrguard/internal/observability"
)

// ErrEmptyToken is returned by Login when no token is given.
var ErrEmptyToken = errors.New("session: empty token")

// TokenStorage is the persisted token the store reads and purges.
type TokenStorage interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// Prompter shows and dismisses the "must authenticate" prompt.
type Prompter interface {
	ShowAuth(ctx context.Context, mandatory bool)
	DismissAuth(ctx context.Context)
}

// State is the observable session.
type State struct {
	IsLoggedIn bool              `json:"isLoggedIn" yaml:"isLoggedIn"`
	User       identity.Identity `json:"user" yaml:"user"`
	IsChecked  bool              `json:"isChecked" yaml:"isChecked"`
}

// Snapshot is State plus what the persisted token says about itself.
type Snapshot struct {
	State        `yaml:",inline"`
	TokenPresent bool       `json:"tokenPresent" yaml:"tokenPresent"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
}

// Store is the single owner of session state for one application.
type Store struct {
	mu          sync.Mutex
	state       State
	tokens      TokenStorage
	bus         *events.Bus
	prompts     Prompter
	log         *observability.SessionLogger
	now         func() time.Time
	unsubscribe func()
}

// NewStore creates a Store and subscribes it to events.TokenExpired.
// prompts may be nil.
func NewStore(tokens TokenStorage, bus *events.Bus, prompts Prompter, logger *slog.Logger) *Store {
	s := &Store{
		tokens:  tokens,
		bus:     bus,
		prompts: prompts,
		log:     observability.NewSessionLogger(logger),
		now:     time.Now,
	}
	s.unsubscribe = bus.Subscribe(events.TokenExpired, func(ctx context.Context, _ any) {
		s.OnTokenExpired(ctx)
	})
	return s
}

// Close detaches the store from the bus.
func (s *Store) Close() {
	s.unsubscribe()
}

// Initialize reads the persisted token once. An absent, undecodable or
// expired token leaves the session anonymous, and a stale one is purged.
// Later calls return the current state without touching storage.
func (s *Store) Initialize(ctx context.Context) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsChecked {
		return s.state
	}

	s.state = State{IsChecked: true}
	token, err := s.tokens.Load(ctx)
	if err != nil {
		s.log.LogError(ctx, "initialize", err)
		return s.state
	}
	if token == "" {
		return s.state
	}

	user, err := identity.Check(token, s.now())
	if err != nil {
		reason := "malformed"
		if errors.Is(err, identity.ErrExpired) {
			reason = "expired"
		}
		s.log.LogDegraded(ctx, reason, err)
		if err := s.tokens.Clear(ctx); err != nil {
			s.log.LogError(ctx, "purge", err)
		}
		return s.state
	}

	s.state = State{IsLoggedIn: true, User: user, IsChecked: true}
	observability.SessionTransitionsTotal.WithLabelValues("restore").Inc()
	s.log.LogTransition(ctx, "restore", true, user.ID)
	return s.state
}

// Login persists token and marks the session authenticated. A non-nil hint
// is taken as the identity verbatim. Otherwise the identity is decoded from
// token, and an undecodable token logs in anonymously.
func (s *Store) Login(ctx context.Context, token string, hint *identity.Identity) error {
	if token == "" {
		return ErrEmptyToken
	}

	var user identity.Identity
	if hint != nil {
		user = *hint
	} else {
		decoded, _, err := identity.Decode(token)
		if err != nil {
			s.log.LogDegraded(ctx, "login_decode", err)
		}
		user = decoded
	}

	s.mu.Lock()
	if err := s.tokens.Save(ctx, token); err != nil {
		s.mu.Unlock()
		s.log.LogError(ctx, "login", err)
		return fmt.Errorf("persist token: %w", err)
	}
	s.state = State{IsLoggedIn: true, User: user, IsChecked: true}
	s.mu.Unlock()

	observability.SessionTransitionsTotal.WithLabelValues("login").Inc()
	s.log.LogTransition(ctx, "login", true, user.ID)
	if s.prompts != nil {
		s.prompts.DismissAuth(ctx)
	}
	return nil
}

// Logout purges the token and resets to anonymous, then publishes
// events.SessionReset with the previous identity. A storage failure is
// logged but the in-memory state is reset regardless.
func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	prev := s.state.User
	if err := s.tokens.Clear(ctx); err != nil {
		s.log.LogError(ctx, "logout", err)
	}
	s.state = State{IsChecked: true}
	s.mu.Unlock()

	observability.SessionTransitionsTotal.WithLabelValues("logout").Inc()
	s.log.LogTransition(ctx, "logout", false, prev.ID)
	s.bus.Publish(ctx, events.SessionReset, prev)
}

// OnTokenExpired handles a backend rejecting the token: it logs out, shows
// the mandatory auth prompt and collapses the chat widget.
func (s *Store) OnTokenExpired(ctx context.Context) {
	observability.SessionTransitionsTotal.WithLabelValues("expired").Inc()
	s.Logout(ctx)
	if s.prompts != nil {
		s.prompts.ShowAuth(ctx, true)
	}
	s.bus.Publish(ctx, events.ChatClose, nil)
}

// UpdateIdentity replaces the displayed identity after a profile change.
// The token is left alone. It is a no-op while logged out.
func (s *Store) UpdateIdentity(user identity.Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.IsLoggedIn {
		return false
	}
	s.state.User = user
	return true
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UserID returns the logged in user id, or "" when anonymous.
func (s *Store) UserID() string {
	return s.State().User.ID
}

// RequireAuth reports whether a protected view should send the user to login.
// It stays false until the persisted token has been checked.
func (s *Store) RequireAuth() bool {
	st := s.State()
	return st.IsChecked && !st.IsLoggedIn
}

// Snapshot returns the state together with token presence and expiry.
func (s *Store) Snapshot(ctx context.Context) Snapshot {
	snap := Snapshot{State: s.State()}
	token, err := s.tokens.Load(ctx)
	if err != nil || token == "" {
		return snap
	}
	snap.TokenPresent = true
	if claims, err := identity.Claims(token); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			t := exp.UTC()
			snap.ExpiresAt = &t
		}
	}
	return snap
}
