// Package network maps chain identifiers to LUKSO networks and their
// canonical RPC endpoints.
package network

import (
	"context"
	"fmt"
	"math/big"
	"slices"
	"strings"

	"github.com/lsp-toolkit/socialrecovery/internal/errs"
)

// Well-known LUKSO test networks.
const (
	ChainIDL16 = 2828
	ChainIDL14 = 22
)

// Network describes a single blockchain network.
type Network struct {
	// Human-readable name, e.g. 'L16'.
	Name string `yaml:"name"`

	// Canonical JSON-RPC endpoint.
	RPCURL string `yaml:"rpc_url"`
}

// Registry is a static mapping from chain ID to Network. Registry is
// injected into the components resolving endpoints, so new chains are added
// through configuration.
type Registry map[uint64]Network

// DefaultRegistry returns registry of the public LUKSO test networks.
func DefaultRegistry() Registry {
	return Registry{
		ChainIDL16: {Name: "L16", RPCURL: "https://rpc.l16.lukso.network/"},
		ChainIDL14: {Name: "L14", RPCURL: "https://rpc.l14.lukso.network/"},
	}
}

// Resolve returns Network registered for the given chain ID. Resolve returns
// ErrUnknownNetwork if there is no such network.
func (x Registry) Resolve(chainID uint64) (Network, error) {
	n, ok := x[chainID]
	if !ok {
		return Network{}, fmt.Errorf("%w: chain ID %d", errs.ErrUnknownNetwork, chainID)
	}

	return n, nil
}

// ChainIDReader is the interface of the connected endpoint required for
// chain ID resolution.
type ChainIDReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

// ResolveFrom requests chain ID from the connected endpoint and resolves it
// in the registry.
func (x Registry) ResolveFrom(ctx context.Context, r ChainIDReader) (uint64, Network, error) {
	id, err := r.ChainID(ctx)
	if err != nil {
		return 0, Network{}, fmt.Errorf("get chain ID: %w", errs.Provider(err))
	}

	if !id.IsUint64() {
		return 0, Network{}, fmt.Errorf("%w: chain ID %s", errs.ErrUnknownNetwork, id)
	}

	n, err := x.Resolve(id.Uint64())
	if err != nil {
		return 0, Network{}, err
	}

	return id.Uint64(), n, nil
}

// Lookup finds network by its case-insensitive name.
func (x Registry) Lookup(name string) (uint64, Network, error) {
	for id, n := range x {
		if strings.EqualFold(n.Name, name) {
			return id, n, nil
		}
	}

	return 0, Network{}, fmt.Errorf("%w: %q", errs.ErrUnknownNetwork, name)
}

// ChainIDs returns all registered chain IDs in ascending order.
func (x Registry) ChainIDs() []uint64 {
	ids := make([]uint64, 0, len(x))
	for id := range x {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

// Merge returns a copy of x overridden by the entries of other.
func (x Registry) Merge(other Registry) Registry {
	res := make(Registry, len(x)+len(other))
	for id, n := range x {
		res[id] = n
	}
	for id, n := range other {
		res[id] = n
	}

	return res
}
