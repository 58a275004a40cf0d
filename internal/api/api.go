// Package api exposes the backend operations the client performs. Every call
// goes through the gateway. Calls bound to the caller's identity raise
// events.TokenExpired when the backend answers 401.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"qrguard/internal/events"
	"qrguard/internal/featureflags"
	"qrguard/internal/gateway"
	"qrguard/internal/identity"
	"qrguard/internal/observability"
	"qrguard/internal/security"
	"qrguard/internal/session"
)

var (
	// ErrAlreadyModerated reports a report or delete rejected with 401, 403
	// or 404, which the backend sends once content is already removed.
	ErrAlreadyModerated = errors.New("content was already removed by moderation")
	// ErrFeatureDisabled is returned when a feature flag turns an operation off.
	ErrFeatureDisabled = errors.New("feature disabled")
	// ErrInvalidInput is returned for input rejected before any request is sent.
	ErrInvalidInput = errors.New("invalid input")
)

// Options tunes a Client. Zero values are usable.
type Options struct {
	Flags          *featureflags.Set
	ImageMaxEdgePx int
	Logger         *slog.Logger
}

// Client performs backend operations on behalf of one session.
type Client struct {
	gw       *gateway.Client
	session  *session.Store
	bus      *events.Bus
	sanitize *security.Sanitizer
	flags    *featureflags.Set
	maxEdge  int
	log      *slog.Logger
}

// New creates a Client.
func New(gw *gateway.Client, sess *session.Store, bus *events.Bus, opts Options) *Client {
	return &Client{
		gw:       gw,
		session:  sess,
		bus:      bus,
		sanitize: security.NewSanitizer(),
		flags:    opts.Flags,
		maxEdge:  opts.ImageMaxEdgePx,
		log:      observability.ComponentLogger(opts.Logger, "api"),
	}
}

// identityBound wraps err from a call that requires a valid token. A 401
// raises events.TokenExpired before the error is returned.
func (c *Client) identityBound(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if gateway.IsUnauthorized(err) {
		c.log.InfoContext(ctx, "token rejected by backend", slog.String("operation", op))
		c.bus.Publish(ctx, events.TokenExpired, op)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// moderated maps the statuses the backend uses for removed content to
// ErrAlreadyModerated. The original error stays in the chain.
func moderated(op string, err error) error {
	if err == nil {
		return nil
	}
	if gateway.IsAuthFailure(err) || gateway.IsNotFound(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrAlreadyModerated, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// enabled gates an optional feature. A flag that is not configured leaves
// the feature on.
func (c *Client) enabled(name string) bool {
	if _, ok := c.flags.Raw(name); !ok {
		return true
	}
	return c.flags.Enabled(name, c.session.UserID())
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func userIdentity(id uint, username string) *identity.Identity {
	if id == 0 {
		return nil
	}
	return &identity.Identity{ID: strconv.FormatUint(uint64(id), 10), Username: username}
}

func itoa(n uint) string { return strconv.FormatUint(uint64(n), 10) }
