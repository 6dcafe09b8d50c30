// Package account contains RPC wrappers for the ERC725Account (LSP0) contract
// backing a Universal Profile.
package account

import (
	"context"
	_ "embed"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lsp-toolkit/socialrecovery/rpc/unwrap"
	"github.com/lsp-toolkit/socialrecovery/schema"
)

//go:embed abi.json
var abiJSON string

var contractABI = mustParseABI(abiJSON)

func mustParseABI(s string) *abi.ABI {
	a, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("parse ERC725Account ABI: %v", err))
	}
	return &a
}

// ABI returns parsed ABI of the contract.
func ABI() *abi.ABI {
	return contractABI
}

// ERC725X operation types accepted by `execute`.
const (
	OperationCall = iota
	OperationCreate
	OperationCreate2
	OperationStaticCall
	OperationDelegateCall
)

// ERC165 interface IDs of the ERC725Account standard.
var (
	// InterfaceID is the current LSP0 ERC725Account interface ID.
	InterfaceID = [4]byte{0x9a, 0x3b, 0xfe, 0x88}

	// LegacyInterfaceID is the ERC725Account interface ID used by profiles
	// deployed before the LSP0 revision.
	LegacyInterfaceID = [4]byte{0x63, 0xcb, 0x74, 0x9b}
)

// Invoker is used by ContractReader to call safe methods.
type Invoker interface {
	Call(ctx context.Context, a *abi.ABI, contract common.Address, method string, args ...any) ([]any, error)
}

// ContractReader implements safe contract methods.
type ContractReader struct {
	invoker Invoker
	hash    common.Address
}

// NewReader creates an instance of ContractReader using provided contract
// address and the given Invoker.
func NewReader(invoker Invoker, hash common.Address) *ContractReader {
	return &ContractReader{invoker, hash}
}

// Address returns address of the contract.
func (c *ContractReader) Address() common.Address {
	return c.hash
}

// Owner invokes `owner` method of contract.
func (c *ContractReader) Owner(ctx context.Context) (common.Address, error) {
	return unwrap.Address(c.invoker.Call(ctx, contractABI, c.hash, "owner"))
}

// SupportsInterface invokes `supportsInterface` method of contract.
func (c *ContractReader) SupportsInterface(ctx context.Context, id [4]byte) (bool, error) {
	return unwrap.Bool(c.invoker.Call(ctx, contractABI, c.hash, "supportsInterface", id))
}

// GetData invokes `getData` method of contract.
func (c *ContractReader) GetData(ctx context.Context, key common.Hash) ([]byte, error) {
	return unwrap.Bytes(c.invoker.Call(ctx, contractABI, c.hash, "getData", [32]byte(key)))
}

// PackExecute encodes call of `execute` method: the account performs
// operation against target transferring value (nil means zero) with data.
func PackExecute(operation int64, target common.Address, value *big.Int, data []byte) ([]byte, error) {
	if value == nil {
		value = new(big.Int)
	}
	return contractABI.Pack("execute", big.NewInt(operation), target, value, data)
}

// PackSetData encodes call of `setData(bytes32[],bytes[])` method writing
// given changes.
func PackSetData(ch schema.DataChanges) ([]byte, error) {
	if len(ch.Keys) != len(ch.Values) {
		return nil, fmt.Errorf("mismatched number of keys (%d) and values (%d)", len(ch.Keys), len(ch.Values))
	}
	return contractABI.Pack("setData", ch.Keys, ch.Values)
}
