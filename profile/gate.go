package profile

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lsp-toolkit/socialrecovery/rpc/account"
	"github.com/lsp-toolkit/socialrecovery/schema"
)

// Gate answers whether an address may relay calls through the Key Manager
// of a profile. The answer is a best-effort precheck: the Key Manager
// enforces permissions on-chain anyway.
type Gate struct {
	inv Invoker
}

// NewGate constructs Gate reading contracts through inv.
func NewGate(inv Invoker) *Gate {
	return &Gate{inv: inv}
}

// Permissions reads permissions of caller on the profile. Missing value
// means no permissions.
func (x *Gate) Permissions(ctx context.Context, acc, caller common.Address) (schema.Permissions, error) {
	raw, err := account.NewReader(x.inv, acc).GetData(ctx, schema.PermissionsKey(caller))
	if err != nil {
		return 0, fmt.Errorf("read permissions of %s: %w", caller, err)
	}

	p, err := schema.DecodePermissions(raw)
	if err != nil {
		return 0, fmt.Errorf("decode permissions of %s: %w", caller, err)
	}

	return p, nil
}

// CallerIsAllowed checks whether caller holds CALL permission on the profile.
func (x *Gate) CallerIsAllowed(ctx context.Context, acc, caller common.Address) (bool, error) {
	p, err := x.Permissions(ctx, acc, caller)
	if err != nil {
		return false, err
	}

	return p.Has(schema.PermCall), nil
}
