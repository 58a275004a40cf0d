package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"qrguard/internal/events"
	"qrguard/internal/gateway"
	"qrguard/internal/models"
	"qrguard/internal/observability"
	"qrguard/internal/tokenstore"
)

// ChatPath is the websocket endpoint.
const ChatPath = "/ws/chat"

const defaultExchangeTimeout = 30 * time.Second

// ErrNoToken is returned when the websocket transport has no token to offer.
var ErrNoToken = errors.New("chat: websocket requires a logged in session")

// Locator resolves websocket addresses against the backend base.
type Locator interface {
	WebSocketURL(path string, query url.Values) string
}

// WSTransport keeps one websocket to /ws/chat, authenticated with the
// ?token= query parameter, and exchanges one request frame for one reply
// frame per Send. The connection is dialed lazily and dropped on any error.
//
// sendMu serializes exchanges; mu guards conn only, so Close never waits
// behind a blocked read.
type WSTransport struct {
	sendMu sync.Mutex
	mu     sync.Mutex
	loc    Locator
	tokens tokenstore.Source
	bus    *events.Bus
	dialer *websocket.Dialer
	conn   *websocket.Conn
	log    *slog.Logger
}

// NewWSTransport creates a WSTransport. bus may be nil, in which case a
// rejected token is only returned as an error.
func NewWSTransport(loc Locator, tokens tokenstore.Source, bus *events.Bus, logger *slog.Logger) *WSTransport {
	return &WSTransport{
		loc:    loc,
		tokens: tokens,
		bus:    bus,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment},
		log:    observability.ComponentLogger(logger, "chat.ws"),
	}
}

// Send implements Transport. A handshake rejected with 401 publishes
// events.TokenExpired. The publish must happen without t.mu held: the
// session reset handlers call Close.
func (t *WSTransport) Send(ctx context.Context, message string, history []models.ChatTurn) (string, error) {
	reply, err := t.exchange(ctx, message, history)
	if gateway.IsUnauthorized(err) && t.bus != nil {
		t.log.InfoContext(ctx, "chat socket rejected token")
		t.bus.Publish(ctx, events.TokenExpired, "chat socket")
	}
	return reply, err
}

func (t *WSTransport) exchange(ctx context.Context, message string, history []models.ChatTurn) (string, error) {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	conn, err := t.current(ctx)
	if err != nil {
		return "", err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultExchangeTimeout)
	}
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.SetReadDeadline(deadline)

	if err := conn.WriteJSON(models.ChatRequest{Message: message, History: history}); err != nil {
		t.drop(conn)
		return "", fmt.Errorf("write chat frame: %w", err)
	}
	var resp models.ChatResponse
	if err := conn.ReadJSON(&resp); err != nil {
		t.drop(conn)
		return "", fmt.Errorf("read chat frame: %w", err)
	}
	return resp.Reply, nil
}

// current returns the open socket, dialing one if needed. Callers hold sendMu.
func (t *WSTransport) current(ctx context.Context) (*websocket.Conn, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn != nil {
		return conn, nil
	}
	conn, err := t.dial(ctx)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	return conn, nil
}

func (t *WSTransport) dial(ctx context.Context) (*websocket.Conn, error) {
	token := t.tokens.Token(ctx)
	if token == "" {
		return nil, ErrNoToken
	}
	target := t.loc.WebSocketURL(ChatPath, url.Values{"token": {token}})
	header := http.Header{}
	header.Set(gateway.RequestIDHeader, uuid.NewString())

	conn, resp, err := t.dialer.DialContext(ctx, target, header)
	if err == nil {
		t.log.DebugContext(ctx, "chat socket connected")
		return conn, nil
	}
	if resp == nil {
		return nil, fmt.Errorf("dial chat socket: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return nil, fmt.Errorf("dial chat socket: %w", gateway.NewAPIError(resp.StatusCode, body))
}

// drop closes conn and forgets it unless Close already replaced it.
func (t *WSTransport) drop(conn *websocket.Conn) {
	_ = conn.Close()
	t.mu.Lock()
	if t.conn == conn {
		t.conn = nil
	}
	t.mu.Unlock()
}

// Connected reports whether a socket is currently open.
func (t *WSTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Close sends a normal close frame and drops the socket. An exchange blocked
// on the socket fails at once.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = conn.Close()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("close chat socket: %w", err)
	}
	return nil
}
