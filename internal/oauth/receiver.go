// Package oauth receives the token an OAuth provider flow redirects back
// with, on a short lived loopback server.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"qrguard/internal/observability"
)

// CallbackPath is where the provider redirects to.
const CallbackPath = "/oauth/callback"

var (
	// ErrMissingToken is the result of a callback without ?token=.
	ErrMissingToken = errors.New("oauth: callback carried no token")
	// ErrDenied is the result of a callback with ?error=.
	ErrDenied = errors.New("oauth: provider denied sign in")
	// ErrTimeout is returned by Wait when no callback arrives in time.
	ErrTimeout = errors.New("oauth: timed out waiting for callback")
	// ErrNotStarted is returned when the receiver is used before Start.
	ErrNotStarted = errors.New("oauth: receiver not started")
)

// LoginFunc starts the session from the delivered token.
type LoginFunc func(ctx context.Context, token string) error

type result struct {
	token string
	err   error
}

// Receiver serves one callback. The first request decides the result; later
// requests get 409 and never reach the login func.
type Receiver struct {
	addr    string
	login   LoginFunc
	app     *fiber.App
	results chan result
	log     *slog.Logger

	mu      sync.Mutex
	ln      net.Listener
	ctx     context.Context
	done    bool
	stopped bool
}

// NewReceiver creates a Receiver listening on addr, e.g. 127.0.0.1:8765.
// Port 0 picks a free port.
func NewReceiver(addr string, login LoginFunc, logger *slog.Logger) *Receiver {
	r := &Receiver{
		addr:    addr,
		login:   login,
		results: make(chan result, 1),
		log:     observability.ComponentLogger(logger, "oauth"),
		ctx:     context.Background(),
	}
	r.app = fiber.New(fiber.Config{
		AppName:               "qrguard oauth callback",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
	})
	r.app.Get(CallbackPath, r.callback)
	return r
}

// Start begins listening and returns the callback URL to hand the provider.
// ctx is used for the login call.
func (r *Receiver) Start(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ln != nil {
		return r.callbackURL(), nil
	}
	ln, err := net.Listen("tcp", r.addr)
	if err != nil {
		return "", fmt.Errorf("listen for oauth callback: %w", err)
	}
	r.ln = ln
	r.ctx = ctx
	go func() {
		if err := r.app.Listener(ln); err != nil {
			r.log.Error("oauth callback server stopped", "error", err)
		}
	}()
	r.log.Debug("oauth callback listening", "addr", ln.Addr().String())
	return r.callbackURL(), nil
}

func (r *Receiver) callbackURL() string {
	return "http://" + r.ln.Addr().String() + CallbackPath
}

func (r *Receiver) callback(c *fiber.Ctx) error {
	// Query values alias the request buffer; copy before they outlive the handler.
	reason := utils.CopyString(c.Query("error"))
	token := utils.CopyString(c.Query("token"))

	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		r.log.Warn("rejecting repeated oauth callback")
		return c.Status(fiber.StatusConflict).SendString("Sign in already completed.")
	}
	r.done = true
	ctx := r.ctx
	r.mu.Unlock()

	if reason != "" {
		r.deliver(result{err: fmt.Errorf("%w: %s", ErrDenied, reason)})
		return c.Status(fiber.StatusBadRequest).SendString("Sign in was cancelled. You can close this window.")
	}
	if token == "" {
		r.deliver(result{err: ErrMissingToken})
		return c.Status(fiber.StatusBadRequest).SendString("Missing token.")
	}
	if err := r.login(ctx, token); err != nil {
		r.deliver(result{err: fmt.Errorf("oauth login: %w", err)})
		return c.Status(fiber.StatusInternalServerError).SendString("Sign in failed.")
	}
	r.deliver(result{token: token})
	return c.SendString("Signed in. You can close this window.")
}

func (r *Receiver) deliver(res result) {
	select {
	case r.results <- res:
	default:
		r.log.Debug("ignoring repeated oauth callback")
	}
}

// Wait blocks until the first callback, ctx is done, or timeout elapses.
// A non-positive timeout waits on ctx alone.
func (r *Receiver) Wait(ctx context.Context, timeout time.Duration) (string, error) {
	r.mu.Lock()
	started := r.ln != nil
	r.mu.Unlock()
	if !started {
		return "", ErrNotStarted
	}

	var expire <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expire = timer.C
	}
	select {
	case res := <-r.results:
		return res.token, res.err
	case <-expire:
		return "", ErrTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Shutdown stops the server. It is safe to call more than once.
func (r *Receiver) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.ln == nil || r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	r.mu.Unlock()
	if err := r.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("shutdown oauth callback: %w", err)
	}
	return nil
}
