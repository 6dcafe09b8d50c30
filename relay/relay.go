// Package relay routes state-changing calls of a Universal Profile through
// its LSP6 Key Manager.
//
// A relayed call is a two-layer envelope: the inner payload is wrapped into
// the profile's `execute` (or `setData`) call, which is in turn wrapped into
// the Key Manager's `execute(bytes)`. Before sending, Relay resolves the Key
// Manager, the network and checks the sender's permissions; the checks are
// best-effort prechecks and do not replace the on-chain enforcement.
package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/lsp-toolkit/socialrecovery/internal/errs"
	"github.com/lsp-toolkit/socialrecovery/network"
	"github.com/lsp-toolkit/socialrecovery/profile"
	"github.com/lsp-toolkit/socialrecovery/rpc/account"
	"github.com/lsp-toolkit/socialrecovery/rpc/keymanager"
	"github.com/lsp-toolkit/socialrecovery/schema"
	"go.uber.org/zap"
)

// Actor sends transactions on behalf of a single signer. Implemented by
// actor.Actor.
type Actor interface {
	Sender() common.Address
	SendCall(ctx context.Context, contract common.Address, data []byte) (*types.Receipt, error)
}

// Prm groups parameters of Relay.
type Prm struct {
	// Writes progress into the log. Optional.
	Logger *zap.Logger

	// Sends relayed transactions. Required.
	Actor Actor

	// Resolves the Key Manager of the profile. Required.
	Inspector *profile.Inspector

	// Checks permissions of the sender. Required.
	Gate *profile.Gate

	// Networks allowed for submissions. Required.
	Networks network.Registry

	// Connected endpoint reporting the chain ID. Required.
	Chain network.ChainIDReader
}

// Relay submits calls to a single Universal Profile through its Key
// Manager.
type Relay struct {
	log       *zap.Logger
	target    common.Address
	actor     Actor
	inspector *profile.Inspector
	gate      *profile.Gate
	networks  network.Registry
	chain     network.ChainIDReader
}

// New constructs Relay for the profile at target.
func New(target common.Address, prm Prm) (*Relay, error) {
	switch {
	case prm.Actor == nil:
		return nil, errors.New("missing actor")
	case prm.Inspector == nil:
		return nil, errors.New("missing profile inspector")
	case prm.Gate == nil:
		return nil, errors.New("missing permission gate")
	case prm.Networks == nil:
		return nil, errors.New("missing network registry")
	case prm.Chain == nil:
		return nil, errors.New("missing chain ID reader")
	}

	if prm.Logger == nil {
		prm.Logger = zap.NewNop()
	}

	return &Relay{
		log:       prm.Logger,
		target:    target,
		actor:     prm.Actor,
		inspector: prm.Inspector,
		gate:      prm.Gate,
		networks:  prm.Networks,
		chain:     prm.Chain,
	}, nil
}

// Target returns address of the profile.
func (x *Relay) Target() common.Address {
	return x.target
}

// Execute makes the profile call contract with inner data and zero value.
// The sender must hold CALL permission.
func (x *Relay) Execute(ctx context.Context, contract common.Address, inner []byte) (*types.Receipt, error) {
	payload, err := account.PackExecute(account.OperationCall, contract, nil, inner)
	if err != nil {
		return nil, fmt.Errorf("pack profile call: %w", err)
	}

	km, err := x.resolve(ctx)
	if err != nil {
		return nil, err
	}

	sender := x.actor.Sender()

	ok, err := x.gate.CallerIsAllowed(ctx, x.target, sender)
	if err != nil {
		return nil, fmt.Errorf("check sender permissions: %w", err)
	}

	if !ok {
		return nil, fmt.Errorf("%w: %s needs %s", errs.ErrPermissionDenied, sender, schema.PermCall)
	}

	return x.send(ctx, km, payload)
}

// DataPermissions returns permissions the precheck of SetData requires for
// ch: ADDPERMISSIONS for keys of the permission space and SETDATA for other
// keys.
func DataPermissions(ch schema.DataChanges) schema.Permissions {
	var res schema.Permissions

	for i := range ch.Keys {
		_, isPerms := schema.IsPermissionsKey(ch.Keys[i])
		if isPerms || schema.IsArrayKey(schema.AddressPermissionsArrayKey, ch.Keys[i]) {
			res |= schema.PermAddPermissions
		} else {
			res |= schema.PermSetData
		}
	}

	return res
}

// SetData writes ERC725Y data of the profile. See DataPermissions for the
// precheck.
func (x *Relay) SetData(ctx context.Context, ch schema.DataChanges) (*types.Receipt, error) {
	payload, err := account.PackSetData(ch)
	if err != nil {
		return nil, fmt.Errorf("pack data changes: %w", err)
	}

	return x.Submit(ctx, payload, DataPermissions(ch))
}

// Authorize runs the checks preceding relayed submissions without sending
// anything: it resolves the Key Manager (errs.ErrInvalidTarget,
// errs.ErrMissingController), the connected network (errs.ErrUnknownNetwork)
// and checks that the sender holds required permissions
// (errs.ErrPermissionDenied). Returns address of the Key Manager.
func (x *Relay) Authorize(ctx context.Context, required schema.Permissions) (common.Address, error) {
	km, err := x.resolve(ctx)
	if err != nil {
		return common.Address{}, err
	}

	sender := x.actor.Sender()

	have, err := x.gate.Permissions(ctx, x.target, sender)
	if err != nil {
		return common.Address{}, fmt.Errorf("check sender permissions: %w", err)
	}

	if !have.Has(required) {
		return common.Address{}, fmt.Errorf("%w: %s has %s, needs %s", errs.ErrPermissionDenied, sender, have, required)
	}

	return km, nil
}

// Submit relays the profile-level payload through the Key Manager after
// Authorize succeeds. On-chain authorization failures match both
// errs.ErrTransactionReverted and errs.ErrPermissionDenied.
func (x *Relay) Submit(ctx context.Context, payload []byte, required schema.Permissions) (*types.Receipt, error) {
	km, err := x.Authorize(ctx, required)
	if err != nil {
		return nil, err
	}

	return x.send(ctx, km, payload)
}

func (x *Relay) resolve(ctx context.Context) (common.Address, error) {
	km, err := x.inspector.ResolveController(ctx, x.target)
	if err != nil {
		return common.Address{}, fmt.Errorf("resolve key manager: %w", err)
	}

	chainID, n, err := x.networks.ResolveFrom(ctx, x.chain)
	if err != nil {
		return common.Address{}, fmt.Errorf("resolve network: %w", err)
	}

	x.log.Debug("key manager resolved",
		zap.Stringer("profile", x.target), zap.Stringer("key manager", km),
		zap.Uint64("chain", chainID), zap.String("network", n.Name))

	return km, nil
}

func (x *Relay) send(ctx context.Context, km common.Address, payload []byte) (*types.Receipt, error) {
	data, err := keymanager.PackExecute(payload)
	if err != nil {
		return nil, fmt.Errorf("pack key manager call: %w", err)
	}

	x.log.Debug("relaying call through key manager...", zap.Stringer("key manager", km))

	receipt, err := x.actor.SendCall(ctx, km, data)
	if err != nil {
		return receipt, fmt.Errorf("relay through key manager %s: %w", km, err)
	}

	x.log.Debug("call relayed successfully", zap.Stringer("tx", receipt.TxHash))

	return receipt, nil
}
