package socialrecovery_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/lsp-toolkit/socialrecovery"
	"github.com/lsp-toolkit/socialrecovery/internal/chaintest"
	"github.com/lsp-toolkit/socialrecovery/network"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// newNode starts JSON-RPC server answering eth_chainId only.
func newNode(t *testing.T, chainID uint64) string {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}

		if req.Method == "eth_chainId" {
			resp["result"] = hexutil.EncodeUint64(chainID)
		} else {
			resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	return srv.URL
}

func TestDial(t *testing.T) {
	ctx := context.Background()
	target := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	url := newNode(t, chaintest.DefaultChainID)

	c, err := socialrecovery.Dial(ctx, target, url, hexutil.Encode(crypto.FromECDSA(key)), socialrecovery.Prm{
		Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	require.Equal(t, target, c.Target())

	id, n, err := c.Network(ctx)
	require.NoError(t, err)
	require.EqualValues(t, chaintest.DefaultChainID, id)
	require.Equal(t, network.DefaultRegistry()[network.ChainIDL16].Name, n.Name)

	t.Run("unknown network", func(t *testing.T) {
		c, err := socialrecovery.Dial(ctx, target, newNode(t, 1), "", socialrecovery.Prm{})
		require.NoError(t, err)
		t.Cleanup(c.Close)

		_, _, err = c.Network(ctx)
		require.ErrorIs(t, err, socialrecovery.ErrUnknownNetwork)
	})

	t.Run("invalid key", func(t *testing.T) {
		_, err := socialrecovery.Dial(ctx, target, url, "key", socialrecovery.Prm{})
		require.Error(t, err)
	})

	t.Run("unsupported endpoint", func(t *testing.T) {
		_, err := socialrecovery.Dial(ctx, target, "ftp://localhost", "", socialrecovery.Prm{})
		require.ErrorIs(t, err, socialrecovery.ErrProvider)

		_, err = socialrecovery.DialBackend(ctx, "ftp://localhost")
		require.ErrorIs(t, err, socialrecovery.ErrProvider)
	})
}
