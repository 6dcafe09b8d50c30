package socialrecovery

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lsp-toolkit/socialrecovery/rpc/recovery"
)

// Phase is a stage of the recovery lifecycle of a profile.
type Phase uint8

// Lifecycle phases derivable from the chain state. Finished recovery is not
// a distinct phase: once the nominee recovers the profile, the process is
// closed and the contract returns to PhaseConfigured.
const (
	// Profile points to no recovery contract.
	PhaseNotDeployed Phase = iota
	// Recovery contract exists but has no guardians or zero threshold.
	PhaseDeployed
	// Guardians and threshold are set, no votes are cast.
	PhaseConfigured
	// At least one recovery process has votes.
	PhaseRecoveryInProgress
)

// String implements fmt.Stringer.
func (x Phase) String() string {
	switch x {
	case PhaseNotDeployed:
		return "NOT_DEPLOYED"
	case PhaseDeployed:
		return "DEPLOYED"
	case PhaseConfigured:
		return "CONFIGURED"
	case PhaseRecoveryInProgress:
		return "RECOVERY_IN_PROGRESS"
	default:
		return fmt.Sprintf("UNKNOWN#%d", x)
	}
}

// Process describes votes of a recovery process.
type Process struct {
	ID [32]byte

	// Nominee per guardian. Guardians who did not vote are omitted.
	Votes map[common.Address]common.Address
}

// Tally returns number of votes per nominee.
func (x Process) Tally() map[common.Address]int {
	res := make(map[common.Address]int, len(x.Votes))
	for _, nominee := range x.Votes {
		res[nominee]++
	}
	return res
}

// State is a snapshot of the recovery configuration of a profile.
type State struct {
	Phase Phase

	// Zero if not deployed.
	Address common.Address

	Guardians []common.Address
	Threshold *big.Int
	Processes []Process
}

// State reads the recovery state of the profile. State is not atomic: values
// are read one by one from the latest blocks.
func (c *Client) State(ctx context.Context) (State, error) {
	var res State

	addr, err := c.Address(ctx)
	if err != nil {
		if errors.Is(err, ErrRecoveryNotDeployed) {
			res.Phase = PhaseNotDeployed
			return res, nil
		}
		return res, err
	}

	r := recovery.NewReader(c.inv, addr)
	res.Address = addr

	res.Guardians, err = r.GetGuardians(ctx)
	if err != nil {
		return res, fmt.Errorf("get guardians: %w", err)
	}

	res.Threshold, err = r.GetGuardiansThreshold(ctx)
	if err != nil {
		return res, fmt.Errorf("get threshold: %w", err)
	}

	ids, err := r.GetRecoverProcessesIds(ctx)
	if err != nil {
		return res, fmt.Errorf("get recovery processes: %w", err)
	}

	for _, id := range ids {
		p := Process{ID: id, Votes: make(map[common.Address]common.Address)}

		for _, g := range res.Guardians {
			nominee, err := r.GetGuardianVote(ctx, id, g)
			if err != nil {
				return res, fmt.Errorf("get vote of guardian %s in process 0x%x: %w", g, id, err)
			}

			if nominee != (common.Address{}) {
				p.Votes[g] = nominee
			}
		}

		res.Processes = append(res.Processes, p)
	}

	switch {
	case len(res.Processes) > 0:
		res.Phase = PhaseRecoveryInProgress
	case len(res.Guardians) > 0 && res.Threshold.Sign() > 0:
		res.Phase = PhaseConfigured
	default:
		res.Phase = PhaseDeployed
	}

	return res, nil
}
