package passkey

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"

	"github.com/passwallet/passwallet/internal/identity"
)

// Handler exposes the passkey ceremony endpoints.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs a passkey HTTP handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type optionsRequest struct {
	Username string `json:"username"`
}

type verifyRequest struct {
	Username string          `json:"username"`
	Response json.RawMessage `json:"response"`
}

// RegisterOptions issues registration options for the client-side ceremony.
func (h *Handler) RegisterOptions(c *fiber.Ctx) error {
	var req optionsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Username == "" {
		return fiber.NewError(http.StatusBadRequest, "username is required")
	}
	creation, err := h.service.BeginRegistration(c.UserContext(), req.Username)
	if err != nil {
		h.logger.Error("begin registration", "username", req.Username, "error", err)
		return fiber.NewError(http.StatusInternalServerError, "failed to generate registration options")
	}
	return c.JSON(creation.Response)
}

// VerifyRegistration completes the registration ceremony.
func (h *Handler) VerifyRegistration(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Username == "" || len(req.Response) == 0 {
		return fiber.NewError(http.StatusBadRequest, "username and response are required")
	}
	if err := h.service.FinishRegistration(c.UserContext(), req.Username, req.Response); err != nil {
		return h.verifyError(c, req.Username, err)
	}
	return c.JSON(fiber.Map{"verified": true, "message": "Registration successful"})
}

// AuthOptions issues authentication options restricted to the user's passkeys.
func (h *Handler) AuthOptions(c *fiber.Ctx) error {
	var req optionsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Username == "" {
		return fiber.NewError(http.StatusBadRequest, "username is required")
	}
	assertion, err := h.service.BeginLogin(c.UserContext(), req.Username)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "user not found")
		}
		h.logger.Error("begin login", "username", req.Username, "error", err)
		return fiber.NewError(http.StatusInternalServerError, "failed to generate authentication options")
	}
	return c.JSON(assertion.Response)
}

// VerifyAuthentication completes the authentication ceremony and returns the
// authenticated user.
func (h *Handler) VerifyAuthentication(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Username == "" || len(req.Response) == 0 {
		return fiber.NewError(http.StatusBadRequest, "username and response are required")
	}
	user, err := h.service.FinishLogin(c.UserContext(), req.Username, req.Response)
	if err != nil {
		return h.verifyError(c, req.Username, err)
	}
	return c.JSON(fiber.Map{
		"verified": true,
		"message":  "Authentication successful",
		"user": fiber.Map{
			"id":         user.ID,
			"username":   user.Username,
			"ethAddress": user.EthAddress,
		},
	})
}

// UserInfo returns the stored user record.
func (h *Handler) UserInfo(c *fiber.Ctx) error {
	username := c.Params("username")
	user, err := h.service.UserInfo(c.UserContext(), username)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "user not found")
		}
		h.logger.Error("get user", "username", username, "error", err)
		return fiber.NewError(http.StatusInternalServerError, "failed to get user information")
	}
	return c.JSON(fiber.Map{
		"id":             user.ID,
		"username":       user.Username,
		"ethAddress":     user.EthAddress,
		"hasCredentials": user.HasCredentials(),
	})
}

type ethAddressRequest struct {
	Username   string `json:"username"`
	EthAddress string `json:"ethAddress"`
}

// SetEthAddress links a wallet address to an authenticated user record.
func (h *Handler) SetEthAddress(c *fiber.Ctx) error {
	var req ethAddressRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Username == "" {
		return fiber.NewError(http.StatusBadRequest, "username is required")
	}
	if !common.IsHexAddress(req.EthAddress) {
		return fiber.NewError(http.StatusBadRequest, "valid ethAddress is required")
	}
	if err := h.service.SetEthAddress(c.UserContext(), req.Username, req.EthAddress); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "user not found")
		}
		h.logger.Error("set eth address", "username", req.Username, "error", err)
		return fiber.NewError(http.StatusInternalServerError, "failed to set eth address")
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *Handler) verifyError(c *fiber.Ctx, username string, err error) error {
	switch {
	case errors.Is(err, identity.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "user not found")
	case errors.Is(err, ErrCredentialNotFound):
		return fiber.NewError(http.StatusNotFound, "credential not found")
	case errors.Is(err, ErrNoChallenge):
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"verified": false, "error": "no outstanding challenge"})
	case errors.Is(err, ErrClonedAuthenticator):
		h.logger.Warn("cloned authenticator rejected", "username", username)
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"verified": false, "error": "authenticator rejected"})
	case errors.Is(err, ErrVerificationFailed):
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"verified": false, "error": "verification failed"})
	default:
		h.logger.Error("ceremony verification", "username", username, "error", err)
		return fiber.NewError(http.StatusInternalServerError, "failed to verify response")
	}
}
