package api

import (
	"context"
	"strings"

	"qrguard/internal/models"
)

// SendChat sends one message with the prior history and returns the reply.
func (c *Client) SendChat(ctx context.Context, message string, history []models.ChatTurn) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", invalid("message is empty")
	}
	if history == nil {
		history = []models.ChatTurn{}
	}
	var out models.ChatResponse
	if err := c.gw.Post(ctx, "/api/chat", models.ChatRequest{Message: message, History: history}, &out); err != nil {
		return "", c.identityBound(ctx, "send chat", err)
	}
	return out.Reply, nil
}
