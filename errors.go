package socialrecovery

import "github.com/lsp-toolkit/socialrecovery/internal/errs"

// Errors returned by Client. Match them with errors.Is.
var (
	ErrInvalidTarget       = errs.ErrInvalidTarget
	ErrMissingController   = errs.ErrMissingController
	ErrPermissionDenied    = errs.ErrPermissionDenied
	ErrRecoveryNotDeployed = errs.ErrRecoveryNotDeployed
	ErrTransactionReverted = errs.ErrTransactionReverted
	ErrProvider            = errs.ErrProvider
	ErrCodec               = errs.ErrCodec
	ErrUnknownNetwork      = errs.ErrUnknownNetwork
	ErrReadOnly            = errs.ErrReadOnly
)

// Revert describes a call rejected by the chain. Errors matching
// ErrTransactionReverted can be unpacked into *Revert with errors.As to get
// the decoded reason.
type Revert = errs.Revert
