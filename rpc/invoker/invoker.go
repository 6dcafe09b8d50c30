// Package invoker performs read-only contract calls and converts node errors
// into the module error taxonomy.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/lsp-toolkit/socialrecovery/internal/errs"
)

// Caller is the blockchain interface required to execute read-only calls.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Invoker executes read-only calls of contract methods on the latest state.
type Invoker struct {
	caller Caller
	from   common.Address
}

// New creates Invoker calling contracts through c. If from is not zero, calls
// are made on its behalf.
func New(c Caller, from common.Address) *Invoker {
	return &Invoker{caller: c, from: from}
}

// Call packs method call with args, executes it against contract and unpacks
// the returned values. Reverts are returned as *errs.Revert decoded with a,
// other node failures match errs.ErrProvider, undecodable results match
// errs.ErrCodec.
func (x *Invoker) Call(ctx context.Context, a *abi.ABI, contract common.Address, method string, args ...any) ([]any, error) {
	data, err := a.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack '%s' call: %w", method, err)
	}

	res, err := x.caller.CallContract(ctx, ethereum.CallMsg{
		From: x.from,
		To:   &contract,
		Data: data,
	}, nil)
	if err != nil {
		return nil, ParseError(err, a)
	}

	out, err := a.Unpack(method, res)
	if err != nil {
		return nil, errs.Codec("unpack '%s' result: %v", method, err)
	}

	return out, nil
}

// ParseError converts error returned by the node into *errs.Revert if the
// call was reverted, and into errs.ErrProvider otherwise. Custom Solidity
// errors are decoded using given ABIs.
func ParseError(err error, abis ...*abi.ABI) error {
	if err == nil {
		return nil
	}

	var de rpc.DataError
	if errors.As(err, &de) {
		if s, ok := de.ErrorData().(string); ok {
			if data, decErr := hexutil.Decode(s); decErr == nil {
				return DecodeRevert(data, abis...)
			}
		}
	}

	if strings.Contains(err.Error(), "execution reverted") {
		return &errs.Revert{Reason: strings.TrimPrefix(err.Error(), "execution reverted: ")}
	}

	return errs.Provider(err)
}

// DecodeRevert decodes revert payload: Error(string), Panic(uint256) or a
// custom error declared in one of the given ABIs.
func DecodeRevert(data []byte, abis ...*abi.ABI) *errs.Revert {
	res := &errs.Revert{Data: data}

	if reason, err := abi.UnpackRevert(data); err == nil {
		res.Reason = reason
		return res
	}

	if len(data) < 4 {
		return res
	}

	for _, a := range abis {
		if a == nil {
			continue
		}

		e, err := a.ErrorByID([4]byte(data[:4]))
		if err != nil {
			continue
		}

		res.Name = e.Name

		vals, err := e.Unpack(data)
		if err != nil {
			res.Reason = e.Name
		} else {
			res.Reason = fmt.Sprintf("%s%v", e.Name, vals)
		}

		return res
	}

	return res
}
