// Package profile inspects Universal Profiles: interface detection, owner and
// controller resolution, ERC725Y reads of the recovery pointer and of the
// permission list, and the permission gate.
//
// All reads are live. Nothing is cached between calls since permissions and
// ownership may change at any block.
package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lsp-toolkit/socialrecovery/internal/errs"
	"github.com/lsp-toolkit/socialrecovery/rpc/account"
	"github.com/lsp-toolkit/socialrecovery/rpc/keymanager"
	"github.com/lsp-toolkit/socialrecovery/schema"
	"go.uber.org/zap"
)

// Invoker calls read-only contract methods. Implemented by invoker.Invoker.
type Invoker interface {
	Call(ctx context.Context, a *abi.ABI, contract common.Address, method string, args ...any) ([]any, error)
}

// Inspector reads identity-related state of Universal Profiles.
type Inspector struct {
	log *zap.Logger
	inv Invoker
}

// NewInspector constructs Inspector reading contracts through inv. Nil
// logger is allowed.
func NewInspector(inv Invoker, log *zap.Logger) *Inspector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Inspector{log: log, inv: inv}
}

// IsIdentityAccount checks whether addr implements ERC725Account. The
// current interface ID is probed first, then the legacy one. Reverted or
// undecodable probes count as a negative answer; transport failures are
// returned as errs.ErrProvider.
func (x *Inspector) IsIdentityAccount(ctx context.Context, addr common.Address) (bool, error) {
	acc := account.NewReader(x.inv, addr)

	for _, id := range [][4]byte{account.InterfaceID, account.LegacyInterfaceID} {
		ok, err := acc.SupportsInterface(ctx, id)
		if err != nil {
			if errors.Is(err, errs.ErrProvider) {
				return false, fmt.Errorf("probe interface 0x%x: %w", id, err)
			}

			x.log.Debug("interface probe failed, considering unsupported",
				zap.Stringer("address", addr), zap.Binary("interface", id[:]), zap.Error(err))

			continue
		}

		if ok {
			return true, nil
		}
	}

	return false, nil
}

// ResolveOwner returns owner of the ERC725Account.
func (x *Inspector) ResolveOwner(ctx context.Context, addr common.Address) (common.Address, error) {
	owner, err := account.NewReader(x.inv, addr).Owner(ctx)
	if err != nil {
		return common.Address{}, fmt.Errorf("get owner of %s: %w", addr, err)
	}

	return owner, nil
}

// IsController checks whether addr implements LSP6 Key Manager. Any failure
// is treated as a negative answer.
func (x *Inspector) IsController(ctx context.Context, addr common.Address) bool {
	ok, err := keymanager.NewReader(x.inv, addr).SupportsInterface(ctx, keymanager.InterfaceID)
	if err != nil {
		x.log.Debug("controller probe failed", zap.Stringer("address", addr), zap.Error(err))
		return false
	}

	return ok
}

// ResolveController returns Key Manager owning the profile at addr. Returns
// errs.ErrInvalidTarget if addr is not a profile and errs.ErrMissingController
// if its owner is not a Key Manager targeting addr.
func (x *Inspector) ResolveController(ctx context.Context, addr common.Address) (common.Address, error) {
	ok, err := x.IsIdentityAccount(ctx, addr)
	if err != nil {
		return common.Address{}, err
	}

	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", errs.ErrInvalidTarget, addr)
	}

	owner, err := x.ResolveOwner(ctx, addr)
	if err != nil {
		return common.Address{}, err
	}

	if !x.IsController(ctx, owner) {
		return common.Address{}, fmt.Errorf("%w: owner %s of %s", errs.ErrMissingController, owner, addr)
	}

	target, err := keymanager.NewReader(x.inv, owner).Target(ctx)
	if err != nil {
		if errors.Is(err, errs.ErrProvider) {
			return common.Address{}, fmt.Errorf("get target of key manager %s: %w", owner, err)
		}
		return common.Address{}, fmt.Errorf("%w: target of %s: %w", errs.ErrMissingController, owner, err)
	}

	if target != addr {
		return common.Address{}, fmt.Errorf("%w: key manager %s controls %s, not %s",
			errs.ErrMissingController, owner, target, addr)
	}

	return owner, nil
}

// RecoveryAddress returns address of the Basic Social Recovery contract the
// profile points to. Returns errs.ErrRecoveryNotDeployed if the pointer is
// unset.
func (x *Inspector) RecoveryAddress(ctx context.Context, acc common.Address) (common.Address, error) {
	raw, err := account.NewReader(x.inv, acc).GetData(ctx, schema.RecoveryKey)
	if err != nil {
		return common.Address{}, fmt.Errorf("read recovery pointer: %w", err)
	}

	addr, err := schema.DecodeAddress(raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode recovery pointer: %w", err)
	}

	if addr == (common.Address{}) {
		return common.Address{}, errs.ErrRecoveryNotDeployed
	}

	return addr, nil
}

// PermissionList reads AddressPermissions[] of the profile: all addresses
// holding permissions, in the stored order.
func (x *Inspector) PermissionList(ctx context.Context, acc common.Address) ([]common.Address, error) {
	r := account.NewReader(x.inv, acc)

	raw, err := r.GetData(ctx, schema.AddressPermissionsArrayKey)
	if err != nil {
		return nil, fmt.Errorf("read permission list length: %w", err)
	}

	n, err := schema.DecodeArrayLength(raw)
	if err != nil {
		return nil, fmt.Errorf("decode permission list length: %w", err)
	}

	res := make([]common.Address, 0, n)

	for i := range n {
		raw, err = r.GetData(ctx, schema.ArrayElementKey(schema.AddressPermissionsArrayKey, i))
		if err != nil {
			return nil, fmt.Errorf("read permission list element #%d: %w", i, err)
		}

		addr, err := schema.DecodeAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("decode permission list element #%d: %w", i, err)
		}

		res = append(res, addr)
	}

	return res, nil
}
