// Package unwrap converts values returned by invoker.Invoker into Go types.
// All functions accept the result pair of Invoker.Call directly.
package unwrap

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lsp-toolkit/socialrecovery/internal/errs"
)

func single[T any](res []any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if len(res) != 1 {
		return zero, errs.Codec("expected 1 returned value, got %d", len(res))
	}
	v, ok := res[0].(T)
	if !ok {
		return zero, errs.Codec("unexpected returned value type %T, expected %T", res[0], zero)
	}
	return v, nil
}

// Bool expects a single bool value.
func Bool(res []any, err error) (bool, error) {
	return single[bool](res, err)
}

// Address expects a single address value.
func Address(res []any, err error) (common.Address, error) {
	return single[common.Address](res, err)
}

// ArrayOfAddresses expects a single address[] value.
func ArrayOfAddresses(res []any, err error) ([]common.Address, error) {
	return single[[]common.Address](res, err)
}

// BigInt expects a single uint256 value.
func BigInt(res []any, err error) (*big.Int, error) {
	return single[*big.Int](res, err)
}

// Bytes expects a single bytes value.
func Bytes(res []any, err error) ([]byte, error) {
	return single[[]byte](res, err)
}

// ArrayOfBytes32 expects a single bytes32[] value.
func ArrayOfBytes32(res []any, err error) ([][32]byte, error) {
	return single[[][32]byte](res, err)
}
