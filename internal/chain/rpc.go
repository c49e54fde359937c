package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const factoryABIJSON = `[
  {"type":"function","name":"createAccount","stateMutability":"nonpayable","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"getAccount","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"isValidAccount","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"event","name":"AccountCreated","inputs":[{"name":"owner","type":"address","indexed":true},{"name":"account","type":"address","indexed":true}],"anonymous":false}
]`

const accountABIJSON = `[
  {"type":"function","name":"executeTransaction","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[{"name":"","type":"bytes"}]},
  {"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"getBalance","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
]`

// RPC relays factory and account operations to an Ethereum node. It
// implements both Factory and Wallet.
type RPC struct {
	client      *ethclient.Client
	signer      *bind.TransactOpts
	factoryAddr common.Address
	factoryABI  abi.ABI
	accountABI  abi.ABI
	factory     *bind.BoundContract
}

// NewRPC dials the node and prepares the signer and contract bindings. The
// signer key and factory address are required in this mode.
func NewRPC(ctx context.Context, rpcURL, privateKeyHex, factoryAddrHex string) (*RPC, error) {
	if privateKeyHex == "" {
		return nil, fmt.Errorf("%w: signer key missing", ErrUnconfigured)
	}
	if !common.IsHexAddress(factoryAddrHex) {
		return nil, fmt.Errorf("%w: factory address missing", ErrUnconfigured)
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial ethereum rpc: %w", err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("chain id: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: invalid signer key", ErrUnconfigured)
	}
	signer, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("build transactor: %w", err)
	}

	factoryABI, err := abi.JSON(strings.NewReader(factoryABIJSON))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("parse factory abi: %w", err)
	}
	accountABI, err := abi.JSON(strings.NewReader(accountABIJSON))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("parse account abi: %w", err)
	}

	factoryAddr := common.HexToAddress(factoryAddrHex)
	return &RPC{
		client:      client,
		signer:      signer,
		factoryAddr: factoryAddr,
		factoryABI:  factoryABI,
		accountABI:  accountABI,
		factory:     bind.NewBoundContract(factoryAddr, factoryABI, client, client, client),
	}, nil
}

// Close releases the underlying RPC connection.
func (r *RPC) Close() {
	r.client.Close()
}

// GetAccount queries the factory for an existing account.
func (r *RPC) GetAccount(ctx context.Context, owner common.Address) (common.Address, error) {
	var out []interface{}
	if err := r.factory.Call(&bind.CallOpts{Context: ctx}, &out, "getAccount", owner); err != nil {
		return common.Address{}, fmt.Errorf("getAccount: %w", err)
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// CreateAccount submits a creation transaction, waits for confirmation and
// extracts the new account address from the AccountCreated event log.
func (r *RPC) CreateAccount(ctx context.Context, owner common.Address) (common.Address, error) {
	opts := *r.signer
	opts.Context = ctx
	tx, err := r.factory.Transact(&opts, "createAccount", owner)
	if err != nil {
		return common.Address{}, fmt.Errorf("createAccount: %w", err)
	}
	receipt, err := bind.WaitMined(ctx, r.client, tx)
	if err != nil {
		return common.Address{}, fmt.Errorf("wait createAccount: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return common.Address{}, ErrCreationFailed
	}

	eventID := r.factoryABI.Events["AccountCreated"].ID
	for _, log := range receipt.Logs {
		if log.Address != r.factoryAddr || len(log.Topics) != 3 || log.Topics[0] != eventID {
			continue
		}
		return common.BytesToAddress(log.Topics[2].Bytes()), nil
	}
	return common.Address{}, ErrCreationFailed
}

// IsValidAccount asks the factory whether it minted the account.
func (r *RPC) IsValidAccount(ctx context.Context, account common.Address) (bool, error) {
	var out []interface{}
	if err := r.factory.Call(&bind.CallOpts{Context: ctx}, &out, "isValidAccount", account); err != nil {
		return false, fmt.Errorf("isValidAccount: %w", err)
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// Balance reads the account contract's balance.
func (r *RPC) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	var out []interface{}
	bound := r.bindAccount(account)
	if err := bound.Call(&bind.CallOpts{Context: ctx}, &out, "getBalance"); err != nil {
		return nil, fmt.Errorf("getBalance: %w", err)
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

// Transfer moves ether out of the account contract.
func (r *RPC) Transfer(ctx context.Context, account, to common.Address, amount *big.Int) (common.Hash, error) {
	return r.transact(ctx, account, "transfer", to, amount)
}

// Execute performs an arbitrary call through the account contract.
func (r *RPC) Execute(ctx context.Context, account, to common.Address, value *big.Int, data []byte) (common.Hash, error) {
	return r.transact(ctx, account, "executeTransaction", to, value, data)
}

func (r *RPC) transact(ctx context.Context, account common.Address, method string, args ...interface{}) (common.Hash, error) {
	opts := *r.signer
	opts.Context = ctx
	tx, err := r.bindAccount(account).Transact(&opts, method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%s: %w", method, err)
	}
	receipt, err := bind.WaitMined(ctx, r.client, tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("wait %s: %w", method, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return common.Hash{}, fmt.Errorf("%s reverted", method)
	}
	return tx.Hash(), nil
}

func (r *RPC) bindAccount(account common.Address) *bind.BoundContract {
	return bind.NewBoundContract(account, r.accountABI, r.client, r.client, r.client)
}
