package messaging

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
)

// Handler exposes messaging session endpoints.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs a messaging HTTP handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type initRequest struct {
	PrivateKey string `json:"privateKey"`
}

// Init creates (or reuses) a messaging session for the key's identity.
func (h *Handler) Init(c *fiber.Ctx) error {
	var req initRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.PrivateKey == "" {
		return fiber.NewError(http.StatusBadRequest, "private key is required")
	}
	client, err := h.service.GetOrCreateClient(c.UserContext(), req.PrivateKey)
	if err != nil {
		if errors.Is(err, ErrInvalidKey) {
			return fiber.NewError(http.StatusBadRequest, "invalid private key")
		}
		h.logger.Error("init messaging client", "error", err)
		return fiber.NewError(http.StatusInternalServerError, "failed to initialize messaging client")
	}
	return c.JSON(fiber.Map{"success": true, "address": client.Address})
}

// Conversations lists the identity's threads.
func (h *Handler) Conversations(c *fiber.Ctx) error {
	var req initRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.PrivateKey == "" {
		return fiber.NewError(http.StatusBadRequest, "private key is required")
	}
	client, err := h.client(c, req.PrivateKey)
	if err != nil {
		return err
	}
	conversations, err := h.service.ListConversations(c.UserContext(), client)
	if err != nil {
		h.logger.Error("list conversations", "error", err)
		return fiber.NewError(http.StatusInternalServerError, "failed to list conversations")
	}
	return c.JSON(fiber.Map{"conversations": conversations})
}

type conversationRequest struct {
	PrivateKey  string `json:"privateKey"`
	PeerAddress string `json:"peerAddress"`
}

// NewConversation opens a thread with the peer, tolerating unreachable peers.
func (h *Handler) NewConversation(c *fiber.Ctx) error {
	var req conversationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.PrivateKey == "" {
		return fiber.NewError(http.StatusBadRequest, "private key is required")
	}
	if !common.IsHexAddress(req.PeerAddress) {
		return fiber.NewError(http.StatusBadRequest, "valid peer address is required")
	}
	client, err := h.client(c, req.PrivateKey)
	if err != nil {
		return err
	}
	conversation, err := h.service.StartConversation(c.UserContext(), client, req.PeerAddress)
	if err != nil {
		h.logger.Error("start conversation", "error", err)
		return fiber.NewError(http.StatusInternalServerError, "failed to start conversation")
	}
	if conversation.Warning != "" {
		h.logger.Warn("peer not reachable", "peer", req.PeerAddress)
	}
	return c.JSON(fiber.Map{"conversation": conversation})
}

type sendRequest struct {
	PrivateKey  string `json:"privateKey"`
	PeerAddress string `json:"peerAddress"`
	Content     string `json:"content"`
}

// Send delivers a message to the peer.
func (h *Handler) Send(c *fiber.Ctx) error {
	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.PrivateKey == "" {
		return fiber.NewError(http.StatusBadRequest, "private key is required")
	}
	if !common.IsHexAddress(req.PeerAddress) {
		return fiber.NewError(http.StatusBadRequest, "valid peer address is required")
	}
	if req.Content == "" {
		return fiber.NewError(http.StatusBadRequest, "message content is required")
	}
	client, err := h.client(c, req.PrivateKey)
	if err != nil {
		return err
	}
	message, err := h.service.SendMessage(c.UserContext(), client, req.PeerAddress, req.Content)
	if err != nil {
		h.logger.Error("send message", "error", err)
		return fiber.NewError(http.StatusInternalServerError, "failed to send message")
	}
	return c.JSON(fiber.Map{"message": message})
}

// Messages lists the thread with the peer.
func (h *Handler) Messages(c *fiber.Ctx) error {
	var req conversationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.PrivateKey == "" {
		return fiber.NewError(http.StatusBadRequest, "private key is required")
	}
	if !common.IsHexAddress(req.PeerAddress) {
		return fiber.NewError(http.StatusBadRequest, "valid peer address is required")
	}
	client, err := h.client(c, req.PrivateKey)
	if err != nil {
		return err
	}
	messages, err := h.service.ListMessages(c.UserContext(), client, req.PeerAddress)
	if err != nil {
		h.logger.Error("list messages", "error", err)
		return fiber.NewError(http.StatusInternalServerError, "failed to list messages")
	}
	return c.JSON(fiber.Map{"messages": messages})
}

func (h *Handler) client(c *fiber.Ctx, privateKey string) (*Client, error) {
	client, err := h.service.GetOrCreateClient(c.UserContext(), privateKey)
	if err != nil {
		if errors.Is(err, ErrInvalidKey) {
			return nil, fiber.NewError(http.StatusBadRequest, "invalid private key")
		}
		h.logger.Error("messaging client", "error", err)
		return nil, fiber.NewError(http.StatusInternalServerError, "failed to initialize messaging client")
	}
	return client, nil
}
