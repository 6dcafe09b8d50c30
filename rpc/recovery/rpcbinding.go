// Package recovery contains RPC wrappers for the LSP11 Basic Social Recovery
// contract.
package recovery

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/lsp-toolkit/socialrecovery/rpc/unwrap"
)

//go:embed abi.json
var abiJSON string

var contractABI = func() *abi.ABI {
	a, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		panic(fmt.Sprintf("parse LSP11BasicSocialRecovery ABI: %v", err))
	}
	return &a
}()

// ABI returns parsed ABI of the contract.
func ABI() *abi.ABI {
	return contractABI
}

// InterfaceID is the ERC165 interface ID of LSP11 Basic Social Recovery.
var InterfaceID = [4]byte{0xcb, 0x81, 0x04, 0x3b}

// Invoker is used by ContractReader to call safe methods.
type Invoker interface {
	Call(ctx context.Context, a *abi.ABI, contract common.Address, method string, args ...any) ([]any, error)
}

// Actor is used by Contract to send transactions calling state-changing
// methods directly, i.e. signed by the sender itself.
type Actor interface {
	SendCall(ctx context.Context, contract common.Address, data []byte) (*types.Receipt, error)
}

// ContractReader implements safe contract methods.
type ContractReader struct {
	invoker Invoker
	hash    common.Address
}

// Contract implements all contract methods callable directly by the sender.
// Owner-only methods are not sent directly: use Pack* functions to build the
// payload relayed through the Key Manager.
type Contract struct {
	ContractReader
	actor Actor
}

// NewReader creates an instance of ContractReader using provided contract
// address and the given Invoker.
func NewReader(invoker Invoker, hash common.Address) *ContractReader {
	return &ContractReader{invoker, hash}
}

// New creates an instance of Contract using provided contract address, the
// given Invoker for reads and Actor for transactions.
func New(actor Actor, invoker Invoker, hash common.Address) *Contract {
	return &Contract{ContractReader{invoker, hash}, actor}
}

// Address returns address of the contract.
func (c *ContractReader) Address() common.Address {
	return c.hash
}

// Account invokes `account` method of contract.
func (c *ContractReader) Account(ctx context.Context) (common.Address, error) {
	return unwrap.Address(c.invoker.Call(ctx, contractABI, c.hash, "account"))
}

// SupportsInterface invokes `supportsInterface` method of contract.
func (c *ContractReader) SupportsInterface(ctx context.Context, id [4]byte) (bool, error) {
	return unwrap.Bool(c.invoker.Call(ctx, contractABI, c.hash, "supportsInterface", id))
}

// GetGuardians invokes `getGuardians` method of contract.
func (c *ContractReader) GetGuardians(ctx context.Context) ([]common.Address, error) {
	return unwrap.ArrayOfAddresses(c.invoker.Call(ctx, contractABI, c.hash, "getGuardians"))
}

// GetGuardiansThreshold invokes `getGuardiansThreshold` method of contract.
func (c *ContractReader) GetGuardiansThreshold(ctx context.Context) (*big.Int, error) {
	return unwrap.BigInt(c.invoker.Call(ctx, contractABI, c.hash, "getGuardiansThreshold"))
}

// GetGuardianVote invokes `getGuardianVote` method of contract.
func (c *ContractReader) GetGuardianVote(ctx context.Context, processID [32]byte, guardian common.Address) (common.Address, error) {
	return unwrap.Address(c.invoker.Call(ctx, contractABI, c.hash, "getGuardianVote", processID, guardian))
}

// GetRecoverProcessesIds invokes `getRecoverProcessesIds` method of contract.
func (c *ContractReader) GetRecoverProcessesIds(ctx context.Context) ([][32]byte, error) {
	return unwrap.ArrayOfBytes32(c.invoker.Call(ctx, contractABI, c.hash, "getRecoverProcessesIds"))
}

// IsGuardian invokes `isGuardian` method of contract.
func (c *ContractReader) IsGuardian(ctx context.Context, addr common.Address) (bool, error) {
	return unwrap.Bool(c.invoker.Call(ctx, contractABI, c.hash, "isGuardian", addr))
}

// VoteToRecover creates a transaction invoking `voteToRecover` method of the
// contract, sends it and waits for the receipt.
func (c *Contract) VoteToRecover(ctx context.Context, processID [32]byte, newOwner common.Address) (*types.Receipt, error) {
	data, err := PackVoteToRecover(processID, newOwner)
	if err != nil {
		return nil, err
	}
	return c.actor.SendCall(ctx, c.hash, data)
}

// RecoverOwnership creates a transaction invoking `recoverOwnership` method of
// the contract, sends it and waits for the receipt.
func (c *Contract) RecoverOwnership(ctx context.Context, processID [32]byte, plainSecret string, newHash [32]byte) (*types.Receipt, error) {
	data, err := PackRecoverOwnership(processID, plainSecret, newHash)
	if err != nil {
		return nil, err
	}
	return c.actor.SendCall(ctx, c.hash, data)
}

// PackAddGuardian encodes call of `addGuardian` method.
func PackAddGuardian(guardian common.Address) ([]byte, error) {
	return contractABI.Pack("addGuardian", guardian)
}

// PackRemoveGuardian encodes call of `removeGuardian` method.
func PackRemoveGuardian(guardian common.Address) ([]byte, error) {
	return contractABI.Pack("removeGuardian", guardian)
}

// PackSetThreshold encodes call of `setThreshold` method.
func PackSetThreshold(threshold *big.Int) ([]byte, error) {
	if threshold == nil || threshold.Sign() < 0 {
		return nil, errors.New("threshold must be non-negative")
	}
	return contractABI.Pack("setThreshold", threshold)
}

// PackSetSecret encodes call of `setSecret` method.
func PackSetSecret(hash [32]byte) ([]byte, error) {
	return contractABI.Pack("setSecret", hash)
}

// PackVoteToRecover encodes call of `voteToRecover` method.
func PackVoteToRecover(processID [32]byte, newOwner common.Address) ([]byte, error) {
	return contractABI.Pack("voteToRecover", processID, newOwner)
}

// PackRecoverOwnership encodes call of `recoverOwnership` method.
func PackRecoverOwnership(processID [32]byte, plainSecret string, newHash [32]byte) ([]byte, error) {
	return contractABI.Pack("recoverOwnership", processID, plainSecret, newHash)
}

// DeployData returns creation code of the contract attached to the given
// account: compiled bytecode followed by ABI-encoded constructor arguments.
func DeployData(bytecode []byte, account common.Address) ([]byte, error) {
	if len(bytecode) == 0 {
		return nil, errors.New("empty contract bytecode")
	}

	args, err := contractABI.Pack("", account)
	if err != nil {
		return nil, fmt.Errorf("pack constructor arguments: %w", err)
	}

	return append(append(make([]byte, 0, len(bytecode)+len(args)), bytecode...), args...), nil
}
