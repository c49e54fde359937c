package chain

import (
	"context"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/singleflight"
)

// Service provides the idempotent owner-to-account mapping and wallet
// pass-throughs. Resolved accounts are memoized per owner; the on-chain
// factory remains the source of truth and the cache is never invalidated.
type Service struct {
	factory Factory
	wallets Wallet
	logger  *slog.Logger

	mu       sync.RWMutex
	accounts map[common.Address]common.Address
	flight   singleflight.Group
}

// NewService builds the provisioning service over the selected connectors.
func NewService(factory Factory, wallets Wallet, logger *slog.Logger) *Service {
	return &Service{
		factory:  factory,
		wallets:  wallets,
		logger:   logger,
		accounts: make(map[common.Address]common.Address),
	}
}

// EnsureAccount returns the smart-contract account for the owner, creating
// one via the factory when none exists. Concurrent calls for the same owner
// share a single in-flight lookup/creation.
func (s *Service) EnsureAccount(ctx context.Context, owner common.Address) (common.Address, error) {
	if account, ok := s.cached(owner); ok {
		return account, nil
	}

	v, err, _ := s.flight.Do(flightKey(owner), func() (interface{}, error) {
		if account, ok := s.cached(owner); ok {
			return account, nil
		}

		existing, err := s.factory.GetAccount(ctx, owner)
		if err != nil {
			return common.Address{}, err
		}
		if existing != (common.Address{}) {
			s.store(owner, existing)
			return existing, nil
		}

		created, err := s.factory.CreateAccount(ctx, owner)
		if err != nil {
			return common.Address{}, err
		}
		s.logger.Info("account created", "owner", owner.Hex(), "account", created.Hex())
		s.store(owner, created)
		return created, nil
	})
	if err != nil {
		return common.Address{}, err
	}
	return v.(common.Address), nil
}

// AccountOf looks up the existing account for an owner without creating one.
func (s *Service) AccountOf(ctx context.Context, owner common.Address) (common.Address, error) {
	account, err := s.factory.GetAccount(ctx, owner)
	if err != nil {
		return common.Address{}, err
	}
	if account == (common.Address{}) {
		return common.Address{}, ErrNoAccount
	}
	return account, nil
}

// Validate reports whether the factory minted the given account.
func (s *Service) Validate(ctx context.Context, account common.Address) (bool, error) {
	return s.factory.IsValidAccount(ctx, account)
}

// BalanceOf returns the account contract's balance in wei.
func (s *Service) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return s.wallets.Balance(ctx, account)
}

// Transfer moves ether from the account to the recipient.
func (s *Service) Transfer(ctx context.Context, account, to common.Address, amount *big.Int) (common.Hash, error) {
	return s.wallets.Transfer(ctx, account, to, amount)
}

// Execute performs an arbitrary call through the account contract.
func (s *Service) Execute(ctx context.Context, account, to common.Address, value *big.Int, data []byte) (common.Hash, error) {
	return s.wallets.Execute(ctx, account, to, value, data)
}

func (s *Service) cached(owner common.Address) (common.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[owner]
	return account, ok
}

func (s *Service) store(owner, account common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[owner] = account
}

func flightKey(owner common.Address) string {
	return strings.ToLower(owner.Hex())
}
