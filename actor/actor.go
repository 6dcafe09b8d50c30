// Package actor sends transactions on behalf of a single signer and waits for
// their confirmation.
//
// Actor is a serializing queue: it keeps at most one transaction of its
// signer in flight, from nonce resolution to the receipt. Concurrent callers
// sharing the Actor are queued, so back-to-back calls never race on the same
// nonce. Actor never retries: a failed submission is returned to the caller
// who decides whether to send again.
package actor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/lsp-toolkit/socialrecovery/internal/errs"
	"github.com/lsp-toolkit/socialrecovery/rpc/invoker"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// DefaultPollInterval is the default period of transaction receipt polling.
const DefaultPollInterval = time.Second

// Backend groups blockchain services required to compose, send and track
// transactions. It is implemented by ethclient.Client.
type Backend interface {
	invoker.Caller

	// ChainID returns ID of the connected chain used for replay-protected
	// signatures.
	ChainID(ctx context.Context) (*big.Int, error)

	// PendingNonceAt returns the next nonce of the account taking pending
	// transactions into account.
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)

	// SuggestGasPrice returns gas price for timely execution.
	SuggestGasPrice(ctx context.Context) (*big.Int, error)

	// EstimateGas executes msg against the pending state and returns gas it
	// needs. EstimateGas fails if execution reverts.
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)

	// SendTransaction submits signed transaction into the pending pool.
	SendTransaction(ctx context.Context, tx *types.Transaction) error

	// TransactionReceipt returns receipt of the mined transaction, or
	// ethereum.NotFound if it is still pending.
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Prm groups parameters of Actor.
type Prm struct {
	// Writes progress into the log. Optional.
	Logger *zap.Logger

	// Blockchain to send transactions to. Required.
	Backend Backend

	// Transaction signer. Required.
	Signer Signer

	// Period of receipt polling. Defaults to DefaultPollInterval.
	PollInterval time.Duration

	// ABIs with custom errors used to decode reverts. Optional.
	Errors []*abi.ABI

	// Transaction metrics. Optional.
	Metrics *Metrics
}

// Actor sends transactions signed by a single Signer, one at a time.
type Actor struct {
	log          *zap.Logger
	backend      Backend
	signer       Signer
	pollInterval time.Duration
	errABIs      []*abi.ABI
	metrics      *Metrics

	queue *semaphore.Weighted

	chainIDMtx sync.Mutex
	chainID    *big.Int
}

// New constructs Actor from the given parameters.
func New(prm Prm) (*Actor, error) {
	switch {
	case prm.Backend == nil:
		return nil, errors.New("missing blockchain backend")
	case prm.Signer == nil:
		return nil, errors.New("missing transaction signer")
	}

	if prm.Logger == nil {
		prm.Logger = zap.NewNop()
	}

	if prm.PollInterval <= 0 {
		prm.PollInterval = DefaultPollInterval
	}

	return &Actor{
		log:          prm.Logger,
		backend:      prm.Backend,
		signer:       prm.Signer,
		pollInterval: prm.PollInterval,
		errABIs:      prm.Errors,
		metrics:      prm.Metrics,
		queue:        semaphore.NewWeighted(1),
	}, nil
}

// Sender returns address signing all transactions of the Actor.
func (x *Actor) Sender() common.Address {
	return x.signer.Address()
}

// Call executes read-only call of the contract on behalf of the sender.
func (x *Actor) Call(ctx context.Context, contract common.Address, data []byte) ([]byte, error) {
	res, err := x.backend.CallContract(ctx, ethereum.CallMsg{
		From: x.signer.Address(),
		To:   &contract,
		Data: data,
	}, nil)
	if err != nil {
		return nil, invoker.ParseError(err, x.errABIs...)
	}
	return res, nil
}

// SendCall sends transaction calling the contract with data and waits for
// its confirmation. Reverted transactions return errs.ErrTransactionReverted
// (with the receipt if the transaction was mined).
func (x *Actor) SendCall(ctx context.Context, contract common.Address, data []byte) (*types.Receipt, error) {
	return x.send(ctx, &contract, data)
}

// Deploy sends contract creation transaction with the given code and waits
// for its confirmation. Address of the new contract is in
// Receipt.ContractAddress.
func (x *Actor) Deploy(ctx context.Context, code []byte) (*types.Receipt, error) {
	return x.send(ctx, nil, code)
}

func (x *Actor) send(ctx context.Context, to *common.Address, data []byte) (*types.Receipt, error) {
	err := x.queue.Acquire(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("wait for previous transaction: %w", err)
	}
	defer x.queue.Release(1)

	chainID, err := x.getChainID(ctx)
	if err != nil {
		return nil, err
	}

	from := x.signer.Address()
	msg := ethereum.CallMsg{From: from, To: to, Data: data}

	// estimation fails on revert, nothing is sent then
	gas, err := x.backend.EstimateGas(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", invoker.ParseError(err, x.errABIs...))
	}

	nonce, err := x.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("get pending nonce: %w", errs.Provider(err))
	}

	gasPrice, err := x.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get gas price: %w", errs.Provider(err))
	}

	tx, err := x.signer.SignTx(types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       to,
		Data:     data,
	}), chainID)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	err = x.backend.SendTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("send transaction: %w", invoker.ParseError(err, x.errABIs...))
	}

	x.metrics.transactionSent()
	sentAt := time.Now()

	x.log.Debug("transaction sent, waiting for confirmation...",
		zap.Stringer("tx", tx.Hash()), zap.Uint64("nonce", nonce), zap.Uint64("gas", gas))

	receipt, err := x.waitReceipt(ctx, tx.Hash())
	if err != nil {
		return nil, fmt.Errorf("wait for transaction %s: %w", tx.Hash(), err)
	}

	x.metrics.transactionConfirmed(time.Since(sentAt))

	if receipt.Status != types.ReceiptStatusSuccessful {
		x.metrics.transactionReverted()
		x.log.Info("transaction reverted", zap.Stringer("tx", tx.Hash()), zap.Stringer("block", receipt.BlockNumber))
		return receipt, fmt.Errorf("transaction %s: %w", tx.Hash(), x.replay(ctx, msg, receipt.BlockNumber))
	}

	x.log.Debug("transaction confirmed",
		zap.Stringer("tx", tx.Hash()), zap.Stringer("block", receipt.BlockNumber), zap.Uint64("gas used", receipt.GasUsed))

	return receipt, nil
}

func (x *Actor) getChainID(ctx context.Context) (*big.Int, error) {
	x.chainIDMtx.Lock()
	defer x.chainIDMtx.Unlock()

	if x.chainID != nil {
		return x.chainID, nil
	}

	id, err := x.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain ID: %w", errs.Provider(err))
	}

	x.chainID = id

	return id, nil
}

// waitReceipt polls the transaction receipt until it appears. The single
// confirmation is enough: the receipt exists only for mined transactions.
func (x *Actor) waitReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(x.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := x.backend.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}

		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, errs.Provider(err)
		}

		select {
		case <-ctx.Done():
			return nil, errs.Provider(ctx.Err())
		case <-ticker.C:
		}
	}
}

// replay re-executes mined and reverted transaction at its block to get the
// revert reason.
func (x *Actor) replay(ctx context.Context, msg ethereum.CallMsg, block *big.Int) error {
	_, err := x.backend.CallContract(ctx, msg, block)
	if err == nil {
		return &errs.Revert{}
	}

	err = invoker.ParseError(err, x.errABIs...)
	if errors.Is(err, errs.ErrTransactionReverted) {
		return err
	}

	x.log.Debug("failed to replay reverted transaction", zap.Error(err))

	return &errs.Revert{}
}
