package socialrecovery

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/lsp-toolkit/socialrecovery/relay"
	"github.com/lsp-toolkit/socialrecovery/rpc/recovery"
	"github.com/lsp-toolkit/socialrecovery/schema"
	"go.uber.org/zap"
)

// Deployment steps reported to Progress.
const (
	StepProbeTarget      = "probe target"
	StepDeployContract   = "deploy recovery contract"
	StepGrantPermissions = "grant permissions to recovery contract"
	StepSetSecret        = "set secret"
	StepAddGuardian      = "add guardian"
	StepSetThreshold     = "set threshold"
	StepDone             = "done"
)

// DeployOptions groups optional initial configuration of the recovery
// contract.
type DeployOptions struct {
	// Hash of the recovery secret. See SecretHash. Not set if nil.
	SecretHash *[32]byte

	// Guardians added in the given order.
	Guardians []common.Address

	// Number of votes required for recovery. Not set if nil or zero.
	Threshold *big.Int
}

// Progress is called by Deploy before each step with nil error, and once
// more with the error if the step failed. Guardian steps are named
// StepAddGuardian followed by the guardian address.
type Progress func(step string, err error)

// DeployError is returned by Deploy when a step fails. Deployment is not
// atomic: steps preceding the failed one remain applied.
type DeployError struct {
	// Failed step.
	Step string

	// Address of the deployed recovery contract. Zero if the contract was
	// not deployed.
	Address common.Address

	Err error
}

// Error implements error.
func (e *DeployError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

// Unwrap returns the cause of the failure.
func (e *DeployError) Unwrap() error {
	return e.Err
}

// deployPermissions returns permissions the signer needs for the relayed
// steps of Deploy with opts.
func deployPermissions(opts DeployOptions) schema.Permissions {
	// keys of the grant do not depend on the grantee
	res := relay.DataPermissions(schema.EncodePermissionGrant(common.Address{}, nil))

	if opts.SecretHash != nil || len(opts.Guardians) > 0 || (opts.Threshold != nil && opts.Threshold.Sign() != 0) {
		res |= schema.PermCall
	}

	return res
}

// Deploy deploys a new recovery contract attached to the profile, grants it
// ADDPERMISSIONS and CHANGEPERMISSIONS, points the profile to it and applies
// the initial configuration. Before deploying, Deploy checks that the target
// is a profile controlled by a Key Manager and that the signer holds the
// permissions of the relayed steps, so nothing is sent if these fail. Each
// step is a separate transaction; on failure
// Deploy returns *DeployError and the caller may resume the remaining steps
// with the corresponding Client methods.
//
// Progress is optional.
func (c *Client) Deploy(ctx context.Context, opts DeployOptions, progress Progress) (common.Address, error) {
	if c.relay == nil {
		return common.Address{}, ErrReadOnly
	}

	if len(c.bytecode) == 0 {
		return common.Address{}, errors.New("missing recovery contract bytecode")
	}

	if progress == nil {
		progress = func(string, error) {}
	}

	log := c.log.With(zap.Stringer("deployment", uuid.New()))

	var bsr common.Address

	step := func(name string, f func() error) error {
		progress(name, nil)
		log.Info("doing deployment step...", zap.String("step", name))

		err := f()
		if err != nil {
			progress(name, err)
			log.Error("deployment step failed", zap.String("step", name), zap.Error(err))
			return &DeployError{Step: name, Address: bsr, Err: err}
		}

		log.Info("deployment step successfully done", zap.String("step", name))

		return nil
	}

	err := step(StepProbeTarget, func() error {
		km, err := c.relay.Authorize(ctx, deployPermissions(opts))
		if err != nil {
			return err
		}

		log.Debug("signer is allowed to deploy", zap.Stringer("key manager", km))

		return nil
	})
	if err != nil {
		return common.Address{}, err
	}

	err = step(StepDeployContract, func() error {
		code, err := recovery.DeployData(c.bytecode, c.target)
		if err != nil {
			return err
		}

		receipt, err := c.actor.Deploy(ctx, code)
		if err != nil {
			return err
		}

		bsr = receipt.ContractAddress
		log.Info("recovery contract deployed", zap.Stringer("address", bsr), zap.Stringer("tx", receipt.TxHash))

		return nil
	})
	if err != nil {
		return common.Address{}, err
	}

	err = step(StepGrantPermissions, func() error {
		current, err := c.inspector.PermissionList(ctx, c.target)
		if err != nil {
			return fmt.Errorf("read permission list: %w", err)
		}

		_, err = c.relay.SetData(ctx, schema.EncodePermissionGrant(bsr, current))

		return err
	})
	if err != nil {
		return bsr, err
	}

	if opts.SecretHash != nil {
		err = step(StepSetSecret, func() error {
			data, err := recovery.PackSetSecret(*opts.SecretHash)
			_, err = c.execute(ctx, bsr, data, err)
			return err
		})
		if err != nil {
			return bsr, err
		}
	}

	for _, g := range opts.Guardians {
		err = step(StepAddGuardian+" "+g.Hex(), func() error {
			data, err := recovery.PackAddGuardian(g)
			_, err = c.execute(ctx, bsr, data, err)
			return err
		})
		if err != nil {
			return bsr, err
		}
	}

	if opts.Threshold != nil && opts.Threshold.Sign() != 0 {
		err = step(StepSetThreshold, func() error {
			data, err := recovery.PackSetThreshold(opts.Threshold)
			_, err = c.execute(ctx, bsr, data, err)
			return err
		})
		if err != nil {
			return bsr, err
		}
	}

	progress(StepDone, nil)
	log.Info("recovery contract successfully deployed and configured", zap.Stringer("address", bsr))

	return bsr, nil
}
