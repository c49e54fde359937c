package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/passwallet/passwallet/internal/chain"
)

// RegisterContractRoutes wires account provisioning and wallet endpoints.
func RegisterContractRoutes(r fiber.Router, h *chain.Handler) {
	contracts := r.Group("/contracts")
	contracts.Post("/create-account", h.CreateAccount)
	contracts.Get("/account/:ownerAddress", h.Account)
	contracts.Get("/validate/:accountAddress", h.Validate)
	contracts.Get("/balance/:accountAddress", h.Balance)
	contracts.Post("/transfer", h.Transfer)
	contracts.Post("/execute", h.Execute)
}
