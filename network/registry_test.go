package network

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/lsp-toolkit/socialrecovery/internal/errs"
	"github.com/stretchr/testify/require"
)

type chainIDReader struct {
	id  *big.Int
	err error
}

func (x chainIDReader) ChainID(context.Context) (*big.Int, error) {
	return x.id, x.err
}

func TestRegistry_Resolve(t *testing.T) {
	r := DefaultRegistry()

	n, err := r.Resolve(ChainIDL16)
	require.NoError(t, err)
	require.Equal(t, "L16", n.Name)
	require.Equal(t, "https://rpc.l16.lukso.network/", n.RPCURL)

	n, err = r.Resolve(ChainIDL14)
	require.NoError(t, err)
	require.Equal(t, "https://rpc.l14.lukso.network/", n.RPCURL)

	_, err = r.Resolve(1)
	require.ErrorIs(t, err, errs.ErrUnknownNetwork)
}

func TestRegistry_ResolveFrom(t *testing.T) {
	r := Registry{1337: {Name: "local", RPCURL: "http://127.0.0.1:8545"}}

	t.Run("known", func(t *testing.T) {
		id, n, err := r.ResolveFrom(context.Background(), chainIDReader{id: big.NewInt(1337)})
		require.NoError(t, err)
		require.EqualValues(t, 1337, id)
		require.Equal(t, "local", n.Name)
	})

	t.Run("unknown", func(t *testing.T) {
		_, _, err := r.ResolveFrom(context.Background(), chainIDReader{id: big.NewInt(ChainIDL16)})
		require.ErrorIs(t, err, errs.ErrUnknownNetwork)
	})

	t.Run("overflow", func(t *testing.T) {
		huge := new(big.Int).Lsh(big.NewInt(1), 70)
		_, _, err := r.ResolveFrom(context.Background(), chainIDReader{id: huge})
		require.ErrorIs(t, err, errs.ErrUnknownNetwork)
	})

	t.Run("transport failure", func(t *testing.T) {
		cause := errors.New("connection refused")
		_, _, err := r.ResolveFrom(context.Background(), chainIDReader{err: cause})
		require.ErrorIs(t, err, errs.ErrProvider)
		require.ErrorIs(t, err, cause)
	})
}

func TestRegistry_Lookup(t *testing.T) {
	r := DefaultRegistry()

	id, n, err := r.Lookup("l16")
	require.NoError(t, err)
	require.EqualValues(t, ChainIDL16, id)
	require.Equal(t, "L16", n.Name)

	_, _, err = r.Lookup("mainnet")
	require.ErrorIs(t, err, errs.ErrUnknownNetwork)
}

func TestRegistry_Merge(t *testing.T) {
	base := DefaultRegistry()
	merged := base.Merge(Registry{
		ChainIDL16: {Name: "L16", RPCURL: "http://localhost:8545"},
		42:         {Name: "mainnet", RPCURL: "https://rpc.mainnet.lukso.network"},
	})

	require.Equal(t, []uint64{ChainIDL14, 42, ChainIDL16}, merged.ChainIDs())
	require.Equal(t, "http://localhost:8545", merged[ChainIDL16].RPCURL)
	// source is untouched
	require.Equal(t, "https://rpc.l16.lukso.network/", base[ChainIDL16].RPCURL)
}
