// Package keymanager contains RPC wrappers for the LSP6 Key Manager contract
// controlling a Universal Profile.
package keymanager

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lsp-toolkit/socialrecovery/rpc/unwrap"
)

//go:embed abi.json
var abiJSON string

var contractABI = func() *abi.ABI {
	a, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		panic(fmt.Sprintf("parse LSP6KeyManager ABI: %v", err))
	}
	return &a
}()

// ABI returns parsed ABI of the contract. Custom errors declared in it are
// used to decode Key Manager reverts.
func ABI() *abi.ABI {
	return contractABI
}

// InterfaceID is the ERC165 interface ID of LSP6 Key Manager.
var InterfaceID = [4]byte{0xc4, 0x03, 0xd4, 0x8f}

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

// SupportsInterface invokes `supportsInterface` method of contract.
func (c *ContractReader) SupportsInterface(ctx context.Context, id [4]byte) (bool, error) {
	return unwrap.Bool(c.invoker.Call(ctx, contractABI, c.hash, "supportsInterface", id))
}

// Target invokes `target` method of contract.
func (c *ContractReader) Target(ctx context.Context) (common.Address, error) {
	return unwrap.Address(c.invoker.Call(ctx, contractABI, c.hash, "target"))
}

// PackExecute encodes call of `execute(bytes)` method relaying payload to the
// controlled account.
func PackExecute(payload []byte) ([]byte, error) {
	return contractABI.Pack("execute", payload)
}
