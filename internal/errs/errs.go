// Package errs defines the error taxonomy shared by all packages of the
// module. Callers match errors with errors.Is against the sentinels; the
// root package re-exports them.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTarget is returned when an address does not answer the
	// ERC725Account interface probes.
	ErrInvalidTarget = errors.New("address is not a Universal Profile")

	// ErrMissingController is returned when the owner of the profile is not a
	// Key Manager.
	ErrMissingController = errors.New("owner is not a Key Manager")

	// ErrPermissionDenied is returned when the caller lacks the permission
	// required for the operation.
	ErrPermissionDenied = errors.New("caller is not allowed")

	// ErrRecoveryNotDeployed is returned when the profile holds no pointer to
	// a Basic Social Recovery contract.
	ErrRecoveryNotDeployed = errors.New("basic social recovery not deployed")

	// ErrTransactionReverted is returned when the chain rejects a call or a
	// transaction.
	ErrTransactionReverted = errors.New("transaction reverted")

	// ErrProvider is returned on transport, timeout and RPC failures.
	ErrProvider = errors.New("provider error")

	// ErrCodec is returned on malformed storage keys or values.
	ErrCodec = errors.New("codec error")

	// ErrUnknownNetwork is returned when a chain ID is missing from the
	// network registry.
	ErrUnknownNetwork = errors.New("unknown network")

	// ErrReadOnly is returned when a state-changing operation is requested
	// from a client without a signer.
	ErrReadOnly = errors.New("no signer configured")
)

// Provider wraps a transport failure so that it matches ErrProvider while
// keeping the original error in the chain.
func Provider(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrProvider, err)
}

// Codec returns an ErrCodec error with formatted details.
func Codec(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCodec, fmt.Sprintf(format, args...))
}

// Names of the Key Manager custom errors signalling a permission failure.
const (
	NotAuthorised    = "NotAuthorised"
	NoPermissionsSet = "NoPermissionsSet"
)

// Revert describes a call rejected by the EVM.
type Revert struct {
	// Reason is the Error(string) message, or a rendering of the custom
	// error if the latter is known. Empty if not decodable.
	Reason string

	// Name of the custom Solidity error, if any was recognised.
	Name string

	// Data is the raw revert payload.
	Data []byte
}

// Error implements error.
func (x *Revert) Error() string {
	if x.Reason == "" {
		return ErrTransactionReverted.Error()
	}
	return ErrTransactionReverted.Error() + ": " + x.Reason
}

// Is makes Revert match ErrTransactionReverted and, for Key Manager
// authorization failures, ErrPermissionDenied.
func (x *Revert) Is(target error) bool {
	switch target {
	case ErrTransactionReverted:
		return true
	case ErrPermissionDenied:
		return x.Name == NotAuthorised || x.Name == NoPermissionsSet
	}
	return false
}
