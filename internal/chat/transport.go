package chat

import (
	"context"

	"qrguard/internal/models"
)

// Transport delivers one message and returns the assistant reply.
type Transport interface {
	Send(ctx context.Context, message string, history []models.ChatTurn) (string, error)
	Close() error
}

// Sender is the HTTP chat call, implemented by api.Client.
type Sender interface {
	SendChat(ctx context.Context, message string, history []models.ChatTurn) (string, error)
}

// HTTPTransport posts each message through the request gateway.
type HTTPTransport struct {
	sender Sender
}

// NewHTTPTransport wraps s.
func NewHTTPTransport(s Sender) *HTTPTransport {
	return &HTTPTransport{sender: s}
}

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, message string, history []models.ChatTurn) (string, error) {
	return t.sender.SendChat(ctx, message, history)
}

// Close implements Transport. There is nothing to release.
func (t *HTTPTransport) Close() error { return nil }
