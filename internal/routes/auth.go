package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/passwallet/passwallet/internal/passkey"
)

// RegisterAuthRoutes wires the passkey ceremony endpoints. Options endpoints
// carry the challenge rate limiter.
func RegisterAuthRoutes(r fiber.Router, h *passkey.Handler, challengeLimiter fiber.Handler) {
	auth := r.Group("/auth")
	auth.Post("/register-options", challengeLimiter, h.RegisterOptions)
	auth.Post("/verify-registration", h.VerifyRegistration)
	auth.Post("/auth-options", challengeLimiter, h.AuthOptions)
	auth.Post("/verify-authentication", h.VerifyAuthentication)
	auth.Get("/user/:username", h.UserInfo)
	auth.Post("/eth-address", h.SetEthAddress)
}
