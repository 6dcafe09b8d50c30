// Package chaintest provides an in-memory blockchain executing Universal
// Profile, LSP6 Key Manager and LSP11 Basic Social Recovery contracts over
// their real ABIs. Chain accepts signed transactions and serves the
// ethclient subset used by the module, so tests run the whole client stack
// without a node.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/lsp-toolkit/socialrecovery/schema"
)

// RecoveryBytecode is the creation code accepted by Chain as the Basic Social
// Recovery contract. Any non-empty code deploys the recovery contract.
var RecoveryBytecode = []byte{0x60, 0x80, 0x60, 0x40, 0x52, 0x34, 0x80, 0x15}

// Method names accepted by InjectFailure.
const (
	MethodChainID            = "ChainID"
	MethodCallContract       = "CallContract"
	MethodPendingNonceAt     = "PendingNonceAt"
	MethodSuggestGasPrice    = "SuggestGasPrice"
	MethodEstimateGas        = "EstimateGas"
	MethodSendTransaction    = "SendTransaction"
	MethodTransactionReceipt = "TransactionReceipt"
)

// DefaultChainID is the chain ID tests use unless they need another one.
const DefaultChainID = 2828

const (
	defaultGas      = 300_000
	defaultGasPrice = 1_000_000_000
)

// deployer of contracts created by the setup helpers.
var setupDeployer = common.HexToAddress("0x5e7a9000000000000000000000000000000000de")

// Chain is an in-memory blockchain. Each transaction is mined into its own
// block immediately. Chain is safe for concurrent use.
type Chain struct {
	mtx sync.Mutex

	chainID *big.Int

	state *world

	// history[n] is the state before block n.
	history map[uint64]*world
	block   uint64

	receipts     map[common.Hash]*types.Receipt
	receiptPolls map[common.Hash]int
	receiptDelay int

	txs []*types.Transaction

	setupNonce uint64

	failures       map[string]error
	skipEstimation bool

	inFlight    int
	maxInFlight int
}

// New creates empty Chain with the given ID.
func New(chainID uint64) *Chain {
	return &Chain{
		chainID:      new(big.Int).SetUint64(chainID),
		state:        newWorld(),
		history:      make(map[uint64]*world),
		receipts:     make(map[common.Hash]*types.Receipt),
		receiptPolls: make(map[common.Hash]int),
		failures:     make(map[string]error),
	}
}

// InjectFailure makes every subsequent call of the named backend method fail
// with err. Nil err removes the failure.
func (c *Chain) InjectFailure(method string, err error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if err == nil {
		delete(c.failures, method)
	} else {
		c.failures[method] = err
	}
}

// SetReceiptDelay makes TransactionReceipt report ethereum.NotFound n times
// for each transaction before returning its receipt.
func (c *Chain) SetReceiptDelay(n int) {
	c.mtx.Lock()
	c.receiptDelay = n
	c.mtx.Unlock()
}

// SkipEstimation makes EstimateGas return fixed gas without executing the
// call, so reverting transactions reach the chain.
func (c *Chain) SkipEstimation(skip bool) {
	c.mtx.Lock()
	c.skipEstimation = skip
	c.mtx.Unlock()
}

// Transactions returns all transactions accepted by the chain in order.
func (c *Chain) Transactions() []*types.Transaction {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return append([]*types.Transaction(nil), c.txs...)
}

// MaxInFlight returns the maximum number of transactions observed between
// submission and the first successful receipt request.
func (c *Chain) MaxInFlight() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.maxInFlight
}

func (c *Chain) failure(method string) error {
	return c.failures[method]
}

func (c *Chain) nextSetupAddress() common.Address {
	addr := crypto.CreateAddress(setupDeployer, c.setupNonce)
	c.setupNonce++
	return addr
}

// DeployProfile creates Universal Profile owned directly by owner. Legacy
// profiles answer only the pre-LSP0 ERC725Account interface ID.
func (c *Chain) DeployProfile(owner common.Address, legacy bool) common.Address {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	addr := c.nextSetupAddress()
	c.state.profiles[addr] = &profile{owner: owner, legacy: legacy, data: make(map[common.Hash][]byte)}

	return addr
}

// DeployControlledProfile creates Universal Profile owned by a new Key
// Manager and grants given permissions. Granted addresses are listed in
// AddressPermissions[] in the order of grants.
func (c *Chain) DeployControlledProfile(grants ...Grant) (account, keyManager common.Address) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	account = c.nextSetupAddress()
	keyManager = c.nextSetupAddress()

	p := &profile{owner: keyManager, data: make(map[common.Hash][]byte)}

	list := make([]common.Address, 0, len(grants))
	for i := range grants {
		perms := schema.EncodePermissions(grants[i].Permissions)
		p.data[schema.PermissionsKey(grants[i].Address)] = perms[:]
		list = append(list, grants[i].Address)
	}

	var ch schema.DataChanges
	ch.EncodeAddressArray(schema.AddressPermissionsArrayKey, list)
	for i := range ch.Keys {
		p.data[ch.Keys[i]] = ch.Values[i]
	}

	c.state.profiles[account] = p
	c.state.controllers[keyManager] = &controller{target: account}

	return account, keyManager
}

// Grant assigns permissions to an address in DeployControlledProfile.
type Grant struct {
	Address     common.Address
	Permissions schema.Permissions
}

// SetData writes ERC725Y value of the profile bypassing access control.
func (c *Chain) SetData(account common.Address, key common.Hash, value []byte) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	p, ok := c.state.profiles[account]
	if !ok {
		panic(fmt.Sprintf("no profile at %s", account))
	}

	p.setData(key, value)
}

// Data reads ERC725Y value of the profile.
func (c *Chain) Data(account common.Address, key common.Hash) []byte {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	p, ok := c.state.profiles[account]
	if !ok {
		return nil
	}

	return p.data[key]
}

// Secret returns secret hash stored in the recovery contract.
func (c *Chain) Secret(recovery common.Address) [32]byte {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	r, ok := c.state.recoveries[recovery]
	if !ok {
		return [32]byte{}
	}

	return r.secret
}

// ChainID implements ethclient method.
func (c *Chain) ChainID(context.Context) (*big.Int, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if err := c.failure(MethodChainID); err != nil {
		return nil, err
	}

	return new(big.Int).Set(c.chainID), nil
}

// CallContract implements ethclient method. Calls at a block number are
// executed against the state preceding that block.
func (c *Chain) CallContract(_ context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if err := c.failure(MethodCallContract); err != nil {
		return nil, err
	}

	w := c.state
	if blockNumber != nil && blockNumber.IsUint64() {
		if h, ok := c.history[blockNumber.Uint64()]; ok {
			w = h
		}
	}

	if msg.To == nil {
		return nil, errors.New("contract creation in call is not supported")
	}

	return w.clone().call(msg.From, *msg.To, msg.Data)
}

// PendingNonceAt implements ethclient method.
func (c *Chain) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if err := c.failure(MethodPendingNonceAt); err != nil {
		return 0, err
	}

	return c.state.nonces[account], nil
}

// SuggestGasPrice implements ethclient method.
func (c *Chain) SuggestGasPrice(context.Context) (*big.Int, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if err := c.failure(MethodSuggestGasPrice); err != nil {
		return nil, err
	}

	return big.NewInt(defaultGasPrice), nil
}

// EstimateGas implements ethclient method.
func (c *Chain) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if err := c.failure(MethodEstimateGas); err != nil {
		return 0, err
	}

	if c.skipEstimation {
		return defaultGas, nil
	}

	w := c.state.clone()

	var err error
	if msg.To == nil {
		_, err = w.create(msg.From, w.nonces[msg.From], msg.Data)
	} else {
		_, err = w.call(msg.From, *msg.To, msg.Data)
	}
	if err != nil {
		return 0, err
	}

	return defaultGas, nil
}

// SendTransaction implements ethclient method. The transaction is mined
// immediately.
func (c *Chain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if err := c.failure(MethodSendTransaction); err != nil {
		return err
	}

	from, err := types.Sender(types.LatestSignerForChainID(c.chainID), tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}

	if n := c.state.nonces[from]; tx.Nonce() != n {
		return fmt.Errorf("invalid nonce: have %d, want %d", tx.Nonce(), n)
	}

	c.block++
	c.history[c.block] = c.state.clone()

	receipt := &types.Receipt{
		Type:        tx.Type(),
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		GasUsed:     tx.Gas(),
		BlockNumber: new(big.Int).SetUint64(c.block),
	}

	next := c.state.clone()

	if tx.To() == nil {
		var addr common.Address
		addr, err = next.create(from, tx.Nonce(), tx.Data())
		receipt.ContractAddress = addr
	} else {
		_, err = next.call(from, *tx.To(), tx.Data())
	}

	if err != nil {
		var rev *RevertError
		if !errors.As(err, &rev) {
			return err
		}

		receipt.Status = types.ReceiptStatusFailed
		receipt.ContractAddress = common.Address{}
		next = c.state.clone()
	}

	next.nonces[from]++
	c.state = next

	c.receipts[tx.Hash()] = receipt
	c.txs = append(c.txs, tx)

	c.inFlight++
	if c.inFlight > c.maxInFlight {
		c.maxInFlight = c.inFlight
	}

	return nil
}

// TransactionReceipt implements ethclient method.
func (c *Chain) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if err := c.failure(MethodTransactionReceipt); err != nil {
		return nil, err
	}

	r, ok := c.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}

	polls := c.receiptPolls[txHash]
	if polls < c.receiptDelay {
		c.receiptPolls[txHash] = polls + 1
		return nil, ethereum.NotFound
	}

	if polls == c.receiptDelay {
		c.receiptPolls[txHash] = polls + 1
		c.inFlight--
	}

	return r, nil
}
