// Package socialrecovery provides a client of the LSP11 Basic Social Recovery
// contract attached to a LUKSO Universal Profile.
//
// Client deploys the recovery contract, configures it (guardians, threshold,
// secret hash) and drives recovery processes (votes, ownership recovery).
// Configuration calls are privileged: they are relayed through the Key
// Manager owning the profile, so the signer must hold CALL permission on it.
// Votes and ownership recovery are sent directly to the recovery contract by
// guardians and by the nominated controller respectively.
//
// All reads are live queries of the latest chain state. Client methods may be
// called concurrently: transactions of the same signer are queued by the
// underlying actor.Actor. Clients sharing a signer should share the Actor
// too (see Prm.Actor).
package socialrecovery

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/lsp-toolkit/socialrecovery/actor"
	"github.com/lsp-toolkit/socialrecovery/internal/errs"
	"github.com/lsp-toolkit/socialrecovery/network"
	"github.com/lsp-toolkit/socialrecovery/profile"
	"github.com/lsp-toolkit/socialrecovery/relay"
	"github.com/lsp-toolkit/socialrecovery/rpc/account"
	"github.com/lsp-toolkit/socialrecovery/rpc/invoker"
	"github.com/lsp-toolkit/socialrecovery/rpc/keymanager"
	"github.com/lsp-toolkit/socialrecovery/rpc/recovery"
	"github.com/lsp-toolkit/socialrecovery/schema"
	"go.uber.org/zap"
)

// Prm groups parameters of Client.
type Prm struct {
	// Writes progress into the log. Optional.
	Logger *zap.Logger

	// Blockchain to work with. Required.
	Backend actor.Backend

	// Transaction signer. Client without signer and Actor is read-only: all
	// state-changing operations return ErrReadOnly.
	Signer actor.Signer

	// Transaction sender shared with other clients of the same signer.
	// Overrides Signer if set.
	Actor *actor.Actor

	// Networks allowed for privileged calls. Defaults to
	// network.DefaultRegistry.
	Networks network.Registry

	// Creation code of the recovery contract. Required by Deploy only.
	RecoveryBytecode []byte

	// Period of receipt polling of the Actor created from Signer.
	PollInterval time.Duration

	// Metrics of the Actor created from Signer. Optional.
	Metrics *actor.Metrics
}

// Client operates the Basic Social Recovery contract of a single Universal
// Profile.
type Client struct {
	log *zap.Logger

	target common.Address

	backend  actor.Backend
	networks network.Registry
	bytecode []byte

	inv       *invoker.Invoker
	inspector *profile.Inspector
	gate      *profile.Gate

	// nil for read-only clients
	actor *actor.Actor
	relay *relay.Relay

	closeFn func()
}

// RevertABIs returns ABIs whose custom errors Client decodes from reverts.
// Use them when constructing a shared actor.Actor.
func RevertABIs() []*abi.ABI {
	return []*abi.ABI{keymanager.ABI(), recovery.ABI(), account.ABI()}
}

// New constructs Client of the Universal Profile at target.
func New(target common.Address, prm Prm) (*Client, error) {
	if prm.Backend == nil {
		return nil, errors.New("missing blockchain backend")
	}

	if prm.Logger == nil {
		prm.Logger = zap.NewNop()
	}

	if prm.Networks == nil {
		prm.Networks = network.DefaultRegistry()
	}

	c := &Client{
		log:      prm.Logger.With(zap.Stringer("profile", target)),
		target:   target,
		backend:  prm.Backend,
		networks: prm.Networks,
		bytecode: prm.RecoveryBytecode,
		actor:    prm.Actor,
	}

	if c.actor == nil && prm.Signer != nil {
		var err error

		c.actor, err = actor.New(actor.Prm{
			Logger:       prm.Logger,
			Backend:      prm.Backend,
			Signer:       prm.Signer,
			PollInterval: prm.PollInterval,
			Errors:       RevertABIs(),
			Metrics:      prm.Metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("init transaction sender: %w", err)
		}
	}

	var from common.Address
	if c.actor != nil {
		from = c.actor.Sender()
	}

	c.inv = invoker.New(prm.Backend, from)
	c.inspector = profile.NewInspector(c.inv, prm.Logger)
	c.gate = profile.NewGate(c.inv)

	if c.actor != nil {
		var err error

		c.relay, err = relay.New(target, relay.Prm{
			Logger:    prm.Logger,
			Actor:     c.actor,
			Inspector: c.inspector,
			Gate:      c.gate,
			Networks:  prm.Networks,
			Chain:     prm.Backend,
		})
		if err != nil {
			return nil, fmt.Errorf("init key manager relay: %w", err)
		}
	}

	return c, nil
}

// Dial connects to the JSON-RPC endpoint and constructs Client of the
// Universal Profile at target. If privateKey is not empty, it is used as
// hex-encoded secp256k1 key of the signer overriding prm.Signer. The
// connection is released by Close.
func Dial(ctx context.Context, target common.Address, rpcURL, privateKey string, prm Prm) (*Client, error) {
	if privateKey != "" {
		s, err := actor.KeySignerFromHex(privateKey)
		if err != nil {
			return nil, err
		}
		prm.Signer = s
	}

	ec, err := DialBackend(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	prm.Backend = ec

	c, err := New(target, prm)
	if err != nil {
		ec.Close()
		return nil, err
	}

	c.closeFn = ec.Close

	return c, nil
}

// DialBackend connects to the JSON-RPC endpoint at rpcURL. Failures match
// ErrProvider.
func DialBackend(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, errs.Provider(err))
	}

	return ec, nil
}

// Close releases the connection opened by Dial. Close is a no-op for
// clients constructed by New.
func (c *Client) Close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}

// Target returns address of the Universal Profile.
func (c *Client) Target() common.Address {
	return c.target
}

// Network resolves the connected network in the registry.
func (c *Client) Network(ctx context.Context) (uint64, network.Network, error) {
	return c.networks.ResolveFrom(ctx, c.backend)
}

// Address returns address of the recovery contract the profile points to.
// Returns ErrInvalidTarget if the target is not a Universal Profile and
// ErrRecoveryNotDeployed if it points to nothing or to a recovery contract
// of another account.
func (c *Client) Address(ctx context.Context) (common.Address, error) {
	ok, err := c.inspector.IsIdentityAccount(ctx, c.target)
	if err != nil {
		return common.Address{}, err
	}

	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", ErrInvalidTarget, c.target)
	}

	addr, err := c.inspector.RecoveryAddress(ctx, c.target)
	if err != nil {
		return common.Address{}, err
	}

	acc, err := recovery.NewReader(c.inv, addr).Account(ctx)
	if err != nil {
		return common.Address{}, fmt.Errorf("get account of recovery contract %s: %w", addr, err)
	}

	if acc != c.target {
		return common.Address{}, fmt.Errorf("%w: recovery contract %s belongs to %s", ErrRecoveryNotDeployed, addr, acc)
	}

	return addr, nil
}

func (c *Client) reader(ctx context.Context) (*recovery.ContractReader, error) {
	addr, err := c.Address(ctx)
	if err != nil {
		return nil, err
	}

	return recovery.NewReader(c.inv, addr), nil
}

func (c *Client) contract(ctx context.Context) (*recovery.Contract, error) {
	if c.actor == nil {
		return nil, ErrReadOnly
	}

	addr, err := c.Address(ctx)
	if err != nil {
		return nil, err
	}

	return recovery.New(c.actor, c.inv, addr), nil
}

// GetGuardians returns guardians of the recovery contract.
func (c *Client) GetGuardians(ctx context.Context) ([]common.Address, error) {
	r, err := c.reader(ctx)
	if err != nil {
		return nil, err
	}

	return r.GetGuardians(ctx)
}

// GetGuardiansThreshold returns number of guardian votes required to recover
// the profile.
func (c *Client) GetGuardiansThreshold(ctx context.Context) (*big.Int, error) {
	r, err := c.reader(ctx)
	if err != nil {
		return nil, err
	}

	return r.GetGuardiansThreshold(ctx)
}

// GetGuardianVote returns address the guardian voted for in the recovery
// process. Zero address means no vote.
func (c *Client) GetGuardianVote(ctx context.Context, processID [32]byte, guardian common.Address) (common.Address, error) {
	r, err := c.reader(ctx)
	if err != nil {
		return common.Address{}, err
	}

	return r.GetGuardianVote(ctx, processID, guardian)
}

// GetRecoverProcessesIds returns IDs of the recovery processes with votes.
func (c *Client) GetRecoverProcessesIds(ctx context.Context) ([][32]byte, error) {
	r, err := c.reader(ctx)
	if err != nil {
		return nil, err
	}

	return r.GetRecoverProcessesIds(ctx)
}

// IsGuardian checks whether addr is a guardian of the recovery contract.
func (c *Client) IsGuardian(ctx context.Context, addr common.Address) (bool, error) {
	r, err := c.reader(ctx)
	if err != nil {
		return false, err
	}

	return r.IsGuardian(ctx, addr)
}

// Permissions returns permissions of addr on the profile.
func (c *Client) Permissions(ctx context.Context, addr common.Address) (schema.Permissions, error) {
	return c.gate.Permissions(ctx, c.target, addr)
}

// execute relays call of the recovery contract through the Key Manager.
func (c *Client) execute(ctx context.Context, bsr common.Address, data []byte, packErr error) (*types.Receipt, error) {
	if packErr != nil {
		return nil, fmt.Errorf("pack recovery contract call: %w", packErr)
	}

	return c.relay.Execute(ctx, bsr, data)
}

func (c *Client) relayed(ctx context.Context) (common.Address, error) {
	if c.relay == nil {
		return common.Address{}, ErrReadOnly
	}

	return c.Address(ctx)
}

// AddGuardian adds guardian to the recovery contract.
func (c *Client) AddGuardian(ctx context.Context, guardian common.Address) (*types.Receipt, error) {
	bsr, err := c.relayed(ctx)
	if err != nil {
		return nil, err
	}

	data, err := recovery.PackAddGuardian(guardian)

	return c.execute(ctx, bsr, data, err)
}

// RemoveGuardian removes guardian from the recovery contract.
func (c *Client) RemoveGuardian(ctx context.Context, guardian common.Address) (*types.Receipt, error) {
	bsr, err := c.relayed(ctx)
	if err != nil {
		return nil, err
	}

	data, err := recovery.PackRemoveGuardian(guardian)

	return c.execute(ctx, bsr, data, err)
}

// SetThreshold sets number of guardian votes required to recover the
// profile. The contract rejects thresholds above the number of guardians.
func (c *Client) SetThreshold(ctx context.Context, threshold *big.Int) (*types.Receipt, error) {
	bsr, err := c.relayed(ctx)
	if err != nil {
		return nil, err
	}

	data, err := recovery.PackSetThreshold(threshold)

	return c.execute(ctx, bsr, data, err)
}

// SetSecret sets hash of the secret required to recover the profile. See
// SecretHash.
func (c *Client) SetSecret(ctx context.Context, hash [32]byte) (*types.Receipt, error) {
	bsr, err := c.relayed(ctx)
	if err != nil {
		return nil, err
	}

	data, err := recovery.PackSetSecret(hash)

	return c.execute(ctx, bsr, data, err)
}

// VoteToRecover votes for nominee to become a controller of the profile in
// the recovery process. The signer must be a guardian.
func (c *Client) VoteToRecover(ctx context.Context, processID [32]byte, nominee common.Address) (*types.Receipt, error) {
	bsr, err := c.contract(ctx)
	if err != nil {
		return nil, err
	}

	c.log.Debug("voting to recover...", zap.Binary("process", processID[:]), zap.Stringer("nominee", nominee))

	return bsr.VoteToRecover(ctx, processID, nominee)
}

// RecoverOwnership finishes the recovery process: the signer presents the
// plain secret and becomes a controller of the profile if enough guardians
// voted for it. The stored secret hash is replaced with newHash.
func (c *Client) RecoverOwnership(ctx context.Context, processID [32]byte, plainSecret string, newHash [32]byte) (*types.Receipt, error) {
	bsr, err := c.contract(ctx)
	if err != nil {
		return nil, err
	}

	c.log.Debug("recovering ownership...", zap.Binary("process", processID[:]))

	return bsr.RecoverOwnership(ctx, processID, plainSecret, newHash)
}

// SecretHash returns hash of the plain secret as the recovery contract
// computes it.
func SecretHash(plain string) [32]byte {
	return crypto.Keccak256Hash([]byte(plain))
}
