package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/passwallet/passwallet/internal/messaging"
)

// RegisterMessagingRoutes wires messaging session endpoints. They take POST
// bodies throughout because every call carries the session private key.
func RegisterMessagingRoutes(r fiber.Router, h *messaging.Handler) {
	msg := r.Group("/messaging")
	msg.Post("/init", h.Init)
	msg.Post("/conversations", h.Conversations)
	msg.Post("/conversation/new", h.NewConversation)
	msg.Post("/message/send", h.Send)
	msg.Post("/messages", h.Messages)
}
