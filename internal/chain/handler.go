package chain

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gofiber/fiber/v2"
)

// Handler exposes account provisioning and wallet endpoints.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs a chain HTTP handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type createAccountRequest struct {
	OwnerAddress string `json:"ownerAddress"`
}

// CreateAccount looks up or provisions a smart-contract account for the owner.
func (h *Handler) CreateAccount(c *fiber.Ctx) error {
	var req createAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if !common.IsHexAddress(req.OwnerAddress) {
		return fiber.NewError(http.StatusBadRequest, "valid owner address is required")
	}
	account, err := h.service.EnsureAccount(c.UserContext(), common.HexToAddress(req.OwnerAddress))
	if err != nil {
		return h.chainError(c, "create account", err)
	}
	return c.JSON(fiber.Map{"success": true, "accountAddress": account.Hex()})
}

// Account returns the owner's account address and its balance.
func (h *Handler) Account(c *fiber.Ctx) error {
	ownerParam := c.Params("ownerAddress")
	if !common.IsHexAddress(ownerParam) {
		return fiber.NewError(http.StatusBadRequest, "valid owner address is required")
	}
	owner := common.HexToAddress(ownerParam)
	account, err := h.service.AccountOf(c.UserContext(), owner)
	if err != nil {
		if errors.Is(err, ErrNoAccount) {
			return fiber.NewError(http.StatusNotFound, "account not found")
		}
		return h.chainError(c, "get account", err)
	}
	balance, err := h.service.BalanceOf(c.UserContext(), account)
	if err != nil {
		return h.chainError(c, "get balance", err)
	}
	return c.JSON(fiber.Map{
		"ownerAddress":   owner.Hex(),
		"accountAddress": account.Hex(),
		"balance":        FormatEther(balance),
	})
}

// Validate reports whether the factory minted the account.
func (h *Handler) Validate(c *fiber.Ctx) error {
	accountParam := c.Params("accountAddress")
	if !common.IsHexAddress(accountParam) {
		return fiber.NewError(http.StatusBadRequest, "valid account address is required")
	}
	valid, err := h.service.Validate(c.UserContext(), common.HexToAddress(accountParam))
	if err != nil {
		return h.chainError(c, "validate account", err)
	}
	return c.JSON(fiber.Map{"isValid": valid})
}

// Balance returns the account contract's balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	accountParam := c.Params("accountAddress")
	if !common.IsHexAddress(accountParam) {
		return fiber.NewError(http.StatusBadRequest, "valid account address is required")
	}
	account := common.HexToAddress(accountParam)
	balance, err := h.service.BalanceOf(c.UserContext(), account)
	if err != nil {
		return h.chainError(c, "get balance", err)
	}
	return c.JSON(fiber.Map{"accountAddress": account.Hex(), "balance": FormatEther(balance)})
}

type transferRequest struct {
	AccountAddress string `json:"accountAddress"`
	ToAddress      string `json:"toAddress"`
	Amount         string `json:"amount"`
}

// Transfer moves ether from the account to the recipient.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if !common.IsHexAddress(req.AccountAddress) || !common.IsHexAddress(req.ToAddress) {
		return fiber.NewError(http.StatusBadRequest, "valid addresses are required")
	}
	amount, err := ParseEther(req.Amount)
	if err != nil || amount.Sign() <= 0 {
		return fiber.NewError(http.StatusBadRequest, "valid amount is required")
	}
	hash, err := h.service.Transfer(c.UserContext(), common.HexToAddress(req.AccountAddress), common.HexToAddress(req.ToAddress), amount)
	if err != nil {
		return h.chainError(c, "transfer", err)
	}
	return c.JSON(fiber.Map{"success": true, "transactionHash": hash.Hex()})
}

type executeRequest struct {
	AccountAddress string `json:"accountAddress"`
	ToAddress      string `json:"toAddress"`
	Value          string `json:"value"`
	Data           string `json:"data"`
}

// Execute relays an arbitrary call through the account contract.
func (h *Handler) Execute(c *fiber.Ctx) error {
	var req executeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if !common.IsHexAddress(req.AccountAddress) || !common.IsHexAddress(req.ToAddress) {
		return fiber.NewError(http.StatusBadRequest, "valid addresses are required")
	}
	value, err := ParseEther(req.Value)
	if err != nil || value.Sign() < 0 {
		return fiber.NewError(http.StatusBadRequest, "valid value is required")
	}
	data := []byte{}
	if req.Data != "" && req.Data != "0x" {
		data, err = hexutil.Decode(req.Data)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "valid call data is required")
		}
	}
	hash, err := h.service.Execute(c.UserContext(), common.HexToAddress(req.AccountAddress), common.HexToAddress(req.ToAddress), value, data)
	if err != nil {
		return h.chainError(c, "execute", err)
	}
	return c.JSON(fiber.Map{"success": true, "transactionHash": hash.Hex()})
}

func (h *Handler) chainError(c *fiber.Ctx, op string, err error) error {
	if errors.Is(err, ErrUnconfigured) {
		h.logger.Error(op, "error", err)
		return fiber.NewError(http.StatusInternalServerError, "chain deployment not configured")
	}
	h.logger.Error(op, "error", err)
	return fiber.NewError(http.StatusInternalServerError, "failed to "+op)
}
