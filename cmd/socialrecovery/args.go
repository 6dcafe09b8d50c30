package main

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/spf13/cobra"
)

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}

	return common.HexToAddress(s), nil
}

func parseAddresses(ss []string) ([]common.Address, error) {
	res := make([]common.Address, len(ss))
	for i := range ss {
		var err error
		if res[i], err = parseAddress(ss[i]); err != nil {
			return nil, err
		}
	}

	return res, nil
}

// parseProcessID decodes 0x-prefixed 32-byte recovery process ID.
func parseProcessID(s string) ([32]byte, error) {
	var id [32]byte

	b, err := hexutil.Decode(s)
	if err != nil {
		return id, fmt.Errorf("invalid process ID %q: %w", s, err)
	}

	if len(b) != len(id) {
		return id, fmt.Errorf("invalid process ID %q: %d bytes instead of %d", s, len(b), len(id))
	}

	copy(id[:], b)

	return id, nil
}

func parseThreshold(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("invalid threshold %q", s)
	}

	return n, nil
}

func printReceipt(cmd *cobra.Command, r *types.Receipt) {
	fmt.Fprintf(cmd.OutOrStdout(), "transaction %s included in block %s\n", r.TxHash.Hex(), r.BlockNumber)
}
