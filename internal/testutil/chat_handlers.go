package testutil

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"qrguard/internal/models"
)

func (b *Backend) chat(c *fiber.Ctx) error {
	var req models.ChatRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		return respond(c, fiber.StatusBadRequest, models.CodeValidation, "message is required")
	}
	return c.JSON(models.ChatResponse{Reply: b.ChatReply(req.Message, req.History)})
}

// chatSocket answers each ChatRequest frame with one ChatResponse frame.
func (b *Backend) chatSocket(conn *websocket.Conn) {
	defer conn.Close()
	for {
		var req models.ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if err := conn.WriteJSON(models.ChatResponse{Reply: b.ChatReply(req.Message, req.History)}); err != nil {
			return
		}
	}
}
