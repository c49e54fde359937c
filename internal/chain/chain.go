package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrUnconfigured indicates real-chain mode was requested but the signer
	// key or factory address is missing from the deployment configuration.
	ErrUnconfigured = errors.New("chain deployment not configured")

	// ErrCreationFailed indicates a creation transaction confirmed without
	// the expected AccountCreated event in its logs.
	ErrCreationFailed = errors.New("account creation failed")

	// ErrNoAccount indicates no smart-contract account exists for the owner.
	ErrNoAccount = errors.New("account not found")
)

// Factory is the connector to the on-chain account factory. The factory
// itself lives on-chain and stays the source of truth; implementations only
// relay calls.
type Factory interface {
	GetAccount(ctx context.Context, owner common.Address) (common.Address, error)
	CreateAccount(ctx context.Context, owner common.Address) (common.Address, error)
	IsValidAccount(ctx context.Context, account common.Address) (bool, error)
}

// Wallet relays operations against a deployed abstract account contract.
type Wallet interface {
	Balance(ctx context.Context, account common.Address) (*big.Int, error)
	Transfer(ctx context.Context, account, to common.Address, amount *big.Int) (common.Hash, error)
	Execute(ctx context.Context, account, to common.Address, value *big.Int, data []byte) (common.Hash, error)
}

var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// ParseEther converts a decimal ether amount into wei. Fractions below one
// wei are rejected.
func ParseEther(amount string) (*big.Int, error) {
	rat, ok := new(big.Rat).SetString(amount)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}
	wei := new(big.Rat).Mul(rat, new(big.Rat).SetInt(weiPerEther))
	if !wei.IsInt() {
		return nil, fmt.Errorf("amount %q has sub-wei precision", amount)
	}
	return wei.Num(), nil
}

// FormatEther renders a wei amount as a decimal ether string without
// trailing zeros.
func FormatEther(wei *big.Int) string {
	rat := new(big.Rat).SetFrac(wei, weiPerEther)
	out := rat.FloatString(18)
	out = strings.TrimRight(out, "0")
	out = strings.TrimSuffix(out, ".")
	if out == "" || out == "-" {
		return "0"
	}
	return out
}
