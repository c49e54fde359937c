package chain

import (
	"context"
	"encoding/binary"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

var simBalance = new(big.Int).Mul(big.NewInt(15), new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil)) // 1.5 ether

// Simulator is the deterministic stand-in for the factory and account
// contracts, selected at startup when no Ethereum RPC endpoint is
// configured. Account addresses are derived from the owner address so
// repeated runs produce the same values.
type Simulator struct {
	mu       sync.RWMutex
	accounts map[common.Address]common.Address // owner -> account
	owners   map[common.Address]common.Address // account -> owner
	nonce    uint64
}

// NewSimulator builds an empty chain simulator.
func NewSimulator() *Simulator {
	return &Simulator{
		accounts: make(map[common.Address]common.Address),
		owners:   make(map[common.Address]common.Address),
	}
}

// GetAccount returns the simulated account for the owner, or the zero
// address when none has been created yet.
func (s *Simulator) GetAccount(_ context.Context, owner common.Address) (common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[owner], nil
}

// CreateAccount mints a deterministic account address for the owner.
func (s *Simulator) CreateAccount(_ context.Context, owner common.Address) (common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account, exists := s.accounts[owner]; exists {
		return account, nil
	}
	account := deriveAccountAddress(owner)
	s.accounts[owner] = account
	s.owners[account] = owner
	return account, nil
}

// IsValidAccount reports whether the address was minted by this simulator.
func (s *Simulator) IsValidAccount(_ context.Context, account common.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.owners[account]
	return ok, nil
}

// Balance returns a fixed demo balance for every account.
func (s *Simulator) Balance(_ context.Context, _ common.Address) (*big.Int, error) {
	return new(big.Int).Set(simBalance), nil
}

// Transfer returns a deterministic synthetic transaction hash.
func (s *Simulator) Transfer(_ context.Context, account, to common.Address, amount *big.Int) (common.Hash, error) {
	return s.txHash(account, to, amount, nil), nil
}

// Execute returns a deterministic synthetic transaction hash.
func (s *Simulator) Execute(_ context.Context, account, to common.Address, value *big.Int, data []byte) (common.Hash, error) {
	return s.txHash(account, to, value, data), nil
}

func (s *Simulator) txHash(account, to common.Address, amount *big.Int, data []byte) common.Hash {
	s.mu.Lock()
	nonce := s.nonce
	s.nonce++
	s.mu.Unlock()

	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], nonce)
	hash := sha3.NewLegacyKeccak256()
	hash.Write([]byte("passwallet.tx.v1"))
	hash.Write(account.Bytes())
	hash.Write(to.Bytes())
	hash.Write(amount.Bytes())
	hash.Write(data)
	hash.Write(seq[:])
	return common.BytesToHash(hash.Sum(nil))
}

func deriveAccountAddress(owner common.Address) common.Address {
	hash := sha3.NewLegacyKeccak256()
	hash.Write([]byte("passwallet.account.v1"))
	hash.Write(owner.Bytes())
	return common.BytesToAddress(hash.Sum(nil)[12:])
}
