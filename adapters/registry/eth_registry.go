package registry

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/layer-3/siweauth/core"
)

// RegistryABI is the read side of the profile registry contract
const RegistryABI = `[{"type":"function","name":"isRegistered","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"bool"}]}]`

// ContractCaller is the subset of ethclient.Client the registry needs
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// EthRegistry asks the on-chain registry whether an account has a profile
type EthRegistry struct {
	caller   ContractCaller
	contract common.Address
	abi      abi.ABI
	timeout  time.Duration
}

// Dial connects to rpcURL and returns a registry for contract
func Dial(ctx context.Context, rpcURL string, contract string, timeout time.Duration) (*EthRegistry, *ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rpc: %w", err)
	}
	reg, err := NewEthRegistry(client, contract, timeout)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return reg, client, nil
}

// NewEthRegistry creates a registry reader for contract
func NewEthRegistry(caller ContractCaller, contract string, timeout time.Duration) (*EthRegistry, error) {
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("registry contract %q: %w", contract, core.ErrInvalidAddress)
	}
	parsed, err := abi.JSON(strings.NewReader(RegistryABI))
	if err != nil {
		return nil, fmt.Errorf("parse registry abi: %w", err)
	}
	return &EthRegistry{
		caller:   caller,
		contract: common.HexToAddress(contract),
		abi:      parsed,
		timeout:  timeout,
	}, nil
}

// IsRegistered calls isRegistered(address) at the latest block
func (r *EthRegistry) IsRegistered(ctx context.Context, address string) (bool, error) {
	if !common.IsHexAddress(address) {
		return false, core.ErrInvalidAddress
	}
	data, err := r.abi.Pack("isRegistered", common.HexToAddress(address))
	if err != nil {
		return false, fmt.Errorf("pack call: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.contract, Data: data}, nil)
	if err != nil {
		return false, fmt.Errorf("registry call: %w: %v", core.ErrStoreUnavailable, err)
	}

	values, err := r.abi.Unpack("isRegistered", out)
	if err != nil || len(values) != 1 {
		return false, fmt.Errorf("unpack registry result: %w: %v", core.ErrStoreUnavailable, err)
	}
	registered, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected registry result type %T", values[0])
	}
	return registered, nil
}
