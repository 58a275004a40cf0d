// Package app owns the single client application context: storage, session,
// request gateway, API client, prompts, notices and the chat widget, wired
// from one Config with an explicit New/Close lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"qrguard/internal/api"
	"qrguard/internal/chat"
	"qrguard/internal/config"
	"qrguard/internal/events"
	"qrguard/internal/featureflags"
	"qrguard/internal/gateway"
	"qrguard/internal/notice"
	"qrguard/internal/oauth"
	"qrguard/internal/observability"
	"qrguard/internal/prompt"
	"qrguard/internal/scrolllock"
	"qrguard/internal/session"
	"qrguard/internal/storage"
	"qrguard/internal/tokenstore"
)

// Version is reported to the tracer.
var Version = "dev"

// ErrChatDisabled is returned when the chat widget flag is off for the user.
var ErrChatDisabled = errors.New("app: chat is not enabled for this account")

// Application is the root of the object graph.
type Application struct {
	Config     *config.Config
	Log        *slog.Logger
	Store      storage.Store
	Tokens     *tokenstore.TokenStore
	Bus        *events.Bus
	Viewport   *scrolllock.Viewport
	ScrollLock *scrolllock.Lock
	Prompts    *prompt.Manager
	Session    *session.Store
	Gateway    *gateway.Client
	API        *api.Client
	Notices    *notice.Center
	Flags      *featureflags.Set
	Chat       *chat.Widget

	transport       chat.Transport
	metrics         *http.Server
	metricsAddr     string
	shutdownTracing func(context.Context) error
	closeOnce       sync.Once
	closeErr        error
}

// New builds the application from cfg and restores any persisted session.
// logger may be nil.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.GlobalLogger.Logger
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName:    "qrguard",
		ServiceVersion: Version,
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, fmt.Errorf("open storage: %w", err)
	}

	a := &Application{
		Config:          cfg,
		Log:             logger,
		Store:           store,
		Tokens:          tokenstore.New(store, cfg.TokenKey),
		Bus:             events.NewBus(logger),
		Viewport:        scrolllock.NewViewport(scrolllock.Style{Position: "static", Width: "auto", Overflow: "visible"}, 0),
		Notices:         notice.NewCenter(cfg.NoticeCapacity, cfg.NoticeTTL),
		Flags:           featureflags.Parse(cfg.FeatureFlags),
		shutdownTracing: shutdownTracing,
	}
	a.ScrollLock = scrolllock.New(a.Viewport)
	a.Prompts = prompt.NewManager(a.ScrollLock, a.Bus)
	a.Session = session.NewStore(a.Tokens, a.Bus, a.Prompts, logger)
	a.Session.Initialize(ctx)

	a.Gateway, err = gateway.New(cfg.APIBaseURL, &http.Client{Timeout: cfg.RequestTimeout}, a.Tokens, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.API = api.New(a.Gateway, a.Session, a.Bus, api.Options{
		Flags:          a.Flags,
		ImageMaxEdgePx: cfg.ImageMaxEdgePx,
		Logger:         logger,
	})

	a.transport = a.chatTransport()
	a.Chat = chat.NewWidget(store, cfg.ChatPrefix, a.Session.UserID, a.transport, a.Bus, logger)

	if cfg.MetricsAddr != "" {
		if err := a.serveMetrics(cfg.MetricsAddr); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *Application) chatTransport() chat.Transport {
	if a.Config.ChatTransport == config.ChatWebSocket || a.Feature(featureflags.ChatWebSocket) {
		return chat.NewWSTransport(a.Gateway, a.Tokens, a.Bus, a.Log)
	}
	return chat.NewHTTPTransport(a.API)
}

// Feature reports whether the named flag is on for the current user. Flags
// that are not configured at all are on, except chat_websocket which is an
// opt-in.
func (a *Application) Feature(name string) bool {
	if _, ok := a.Flags.Raw(name); !ok {
		return name != featureflags.ChatWebSocket
	}
	return a.Flags.Enabled(name, a.Session.UserID())
}

// SendChat opens the widget and sends text through it.
func (a *Application) SendChat(ctx context.Context, text string) (*chat.Message, error) {
	if !a.Feature(featureflags.ChatWidget) {
		return nil, ErrChatDisabled
	}
	a.Chat.Open()
	return a.Chat.Send(ctx, text)
}

// OAuthLogin runs the provider flow: it starts the loopback receiver, hands
// the provider URL to open, and waits for the callback to log the session in.
func (a *Application) OAuthLogin(ctx context.Context, provider string, open func(url string) error) error {
	r := oauth.NewReceiver(a.Config.OAuthCallback, a.API.CompleteOAuth, a.Log)
	callback, err := r.Start(ctx)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.Shutdown(sctx); err != nil {
			a.Log.Warn("stop oauth receiver", "error", err)
		}
	}()

	target, err := a.API.OAuthURL(provider, callback)
	if err != nil {
		return err
	}
	if err := open(target); err != nil {
		return fmt.Errorf("open oauth url: %w", err)
	}
	_, err = r.Wait(ctx, a.Config.OAuthTimeout)
	return err
}

// Notify posts err as a notice. Already moderated content and disabled
// features are informational, everything else is an error. A nil err posts
// nothing.
func (a *Application) Notify(err error) *notice.Notice {
	if err == nil {
		return nil
	}
	var n notice.Notice
	switch {
	case errors.Is(err, api.ErrAlreadyModerated):
		n = a.Notices.Info("This content has already been moderated.")
	case errors.Is(err, api.ErrFeatureDisabled), errors.Is(err, ErrChatDisabled):
		n = a.Notices.Info("This feature is not available for your account.")
	case errors.Is(err, session.ErrEmptyToken), gateway.IsUnauthorized(err):
		n = a.Notices.Error("Please sign in to continue.")
	default:
		n = a.Notices.Error("%v", err)
	}
	return &n
}

func (a *Application) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen for metrics: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	a.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	a.metricsAddr = ln.Addr().String()
	go func() {
		if err := a.metrics.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Error("metrics server stopped", "error", err)
		}
	}()
	return nil
}

// MetricsAddr is the bound metrics listener address, or "" when disabled.
func (a *Application) MetricsAddr() string { return a.metricsAddr }

// Close releases everything New acquired. It is safe to call more than once.
func (a *Application) Close() error {
	a.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var errs []error
		if a.Chat != nil {
			a.Chat.Detach()
		}
		if a.transport != nil {
			errs = append(errs, a.transport.Close())
		}
		if a.Session != nil {
			a.Session.Close()
		}
		if a.metrics != nil {
			errs = append(errs, a.metrics.Shutdown(ctx))
		}
		if a.shutdownTracing != nil {
			errs = append(errs, a.shutdownTracing(ctx))
		}
		if a.Store != nil {
			errs = append(errs, a.Store.Close())
		}
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}
