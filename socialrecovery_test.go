package socialrecovery_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/lsp-toolkit/socialrecovery"
	"github.com/lsp-toolkit/socialrecovery/actor"
	"github.com/lsp-toolkit/socialrecovery/internal/chaintest"
	"github.com/lsp-toolkit/socialrecovery/schema"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testEnv struct {
	chain      *chaintest.Chain
	controller *actor.KeySigner
	account    common.Address
	keyManager common.Address
}

func newSigner(t testing.TB) *actor.KeySigner {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return actor.NewKeySigner(key)
}

func newEnv(t testing.TB) testEnv {
	chain := chaintest.New(chaintest.DefaultChainID)
	controller := newSigner(t)

	acc, km := chain.DeployControlledProfile(chaintest.Grant{Address: controller.Address(), Permissions: schema.PermAll})

	return testEnv{
		chain:      chain,
		controller: controller,
		account:    acc,
		keyManager: km,
	}
}

func (e testEnv) client(t testing.TB, s actor.Signer) *socialrecovery.Client {
	return e.clientOf(t, e.account, s)
}

func (e testEnv) clientOf(t testing.TB, target common.Address, s actor.Signer) *socialrecovery.Client {
	c, err := socialrecovery.New(target, socialrecovery.Prm{
		Logger:           zaptest.NewLogger(t),
		Backend:          e.chain,
		Signer:           s,
		RecoveryBytecode: chaintest.RecoveryBytecode,
		PollInterval:     time.Millisecond,
	})
	require.NoError(t, err)

	return c
}

func newGuardians(t testing.TB, n int) ([]*actor.KeySigner, []common.Address) {
	signers := make([]*actor.KeySigner, n)
	addrs := make([]common.Address, n)

	for i := range signers {
		signers[i] = newSigner(t)
		addrs[i] = signers[i].Address()
	}

	return signers, addrs
}

func secretHash(s string) *[32]byte {
	h := socialrecovery.SecretHash(s)
	return &h
}

func TestNew(t *testing.T) {
	_, err := socialrecovery.New(common.Address{}, socialrecovery.Prm{})
	require.Error(t, err)
}

func TestSecretHash(t *testing.T) {
	require.Equal(t,
		common.HexToHash("0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"),
		common.Hash(socialrecovery.SecretHash("")))
	require.Equal(t, crypto.Keccak256Hash([]byte("my secret")), common.Hash(socialrecovery.SecretHash("my secret")))
}

func TestClient_Deploy(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	c := e.client(t, e.controller)

	_, guardians := newGuardians(t, 3)

	var steps []string

	bsr, err := c.Deploy(ctx, socialrecovery.DeployOptions{
		SecretHash: secretHash("secret"),
		Guardians:  guardians,
		Threshold:  big.NewInt(2),
	}, func(step string, err error) {
		require.NoError(t, err)
		steps = append(steps, step)
	})
	require.NoError(t, err)
	require.NotEqual(t, common.Address{}, bsr)

	require.Equal(t, []string{
		socialrecovery.StepProbeTarget,
		socialrecovery.StepDeployContract,
		socialrecovery.StepGrantPermissions,
		socialrecovery.StepSetSecret,
		socialrecovery.StepAddGuardian + " " + guardians[0].Hex(),
		socialrecovery.StepAddGuardian + " " + guardians[1].Hex(),
		socialrecovery.StepAddGuardian + " " + guardians[2].Hex(),
		socialrecovery.StepSetThreshold,
		socialrecovery.StepDone,
	}, steps)

	// deployment followed by relayed grant, secret, 3 guardians and threshold
	txs := e.chain.Transactions()
	require.Len(t, txs, 7)
	require.Nil(t, txs[0].To())
	for _, tx := range txs[1:] {
		require.Equal(t, e.keyManager, *tx.To())
	}

	addr, err := c.Address(ctx)
	require.NoError(t, err)
	require.Equal(t, bsr, addr)

	res, err := c.GetGuardians(ctx)
	require.NoError(t, err)
	require.Equal(t, guardians, res)

	threshold, err := c.GetGuardiansThreshold(ctx)
	require.NoError(t, err)
	require.Equal(t, "2", threshold.String())

	for _, g := range guardians {
		ok, err := c.IsGuardian(ctx, g)
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := c.IsGuardian(ctx, e.controller.Address())
	require.NoError(t, err)
	require.False(t, ok)

	perms, err := c.Permissions(ctx, bsr)
	require.NoError(t, err)
	require.Equal(t, schema.RecoveryPermissions, perms)
	require.Equal(t, map[string]bool{
		"CHANGEOWNER":       false,
		"CHANGEPERMISSIONS": true,
		"ADDPERMISSIONS":    true,
		"SETDATA":           false,
		"CALL":              false,
		"STATICCALL":        false,
		"DELEGATECALL":      false,
		"DEPLOY":            false,
		"TRANSFERVALUE":     false,
		"SIGN":              false,
	}, perms.Flags())

	require.Equal(t, [32]byte(*secretHash("secret")), e.chain.Secret(bsr))

	st, err := c.State(ctx)
	require.NoError(t, err)
	require.Equal(t, socialrecovery.PhaseConfigured, st.Phase)
	require.Equal(t, bsr, st.Address)
	require.Equal(t, guardians, st.Guardians)
	require.Empty(t, st.Processes)
}

func TestClient_Recovery(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	c := e.client(t, e.controller)

	guardianSigners, guardians := newGuardians(t, 3)

	bsr, err := c.Deploy(ctx, socialrecovery.DeployOptions{
		SecretHash: secretHash("secret"),
		Guardians:  guardians,
		Threshold:  big.NewInt(2),
	}, nil)
	require.NoError(t, err)

	nominee := newSigner(t)
	processID := [32]byte(crypto.Keccak256Hash([]byte("P1")))

	for _, g := range guardianSigners[:2] {
		_, err = e.client(t, g).VoteToRecover(ctx, processID, nominee.Address())
		require.NoError(t, err)
	}

	ids, err := c.GetRecoverProcessesIds(ctx)
	require.NoError(t, err)
	require.Equal(t, [][32]byte{processID}, ids)

	vote, err := c.GetGuardianVote(ctx, processID, guardians[1])
	require.NoError(t, err)
	require.Equal(t, nominee.Address(), vote)

	vote, err = c.GetGuardianVote(ctx, processID, guardians[2])
	require.NoError(t, err)
	require.Equal(t, common.Address{}, vote)

	st, err := c.State(ctx)
	require.NoError(t, err)
	require.Equal(t, socialrecovery.PhaseRecoveryInProgress, st.Phase)
	require.Len(t, st.Processes, 1)
	require.Equal(t, map[common.Address]int{nominee.Address(): 2}, st.Processes[0].Tally())

	nc := e.client(t, nominee)

	t.Run("stranger vote", func(t *testing.T) {
		_, err := nc.VoteToRecover(ctx, processID, nominee.Address())
		require.ErrorIs(t, err, socialrecovery.ErrTransactionReverted)
		require.ErrorContains(t, err, chaintest.ReasonCallerNotGuardian)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := nc.RecoverOwnership(ctx, processID, "not a secret", socialrecovery.SecretHash("new"))
		require.ErrorIs(t, err, socialrecovery.ErrTransactionReverted)
		require.ErrorContains(t, err, chaintest.ReasonWrongSecret)

		var rev *socialrecovery.Revert
		require.True(t, errors.As(err, &rev))
		require.Equal(t, chaintest.ReasonWrongSecret, rev.Reason)

		require.Equal(t, socialrecovery.SecretHash("secret"), e.chain.Secret(bsr))
	})

	t.Run("not a nominee", func(t *testing.T) {
		_, err := e.client(t, guardianSigners[2]).RecoverOwnership(ctx, processID, "secret", socialrecovery.SecretHash("new"))
		require.ErrorIs(t, err, socialrecovery.ErrTransactionReverted)
		require.ErrorContains(t, err, chaintest.ReasonThresholdNotReached)
	})

	_, err = nc.RecoverOwnership(ctx, processID, "secret", socialrecovery.SecretHash("new"))
	require.NoError(t, err)

	require.Equal(t, socialrecovery.SecretHash("new"), e.chain.Secret(bsr))

	perms, err := c.Permissions(ctx, nominee.Address())
	require.NoError(t, err)
	require.Equal(t, schema.PermAll, perms)

	// the recovered controller operates the profile
	_, err = nc.AddGuardian(ctx, nominee.Address())
	require.NoError(t, err)

	ok, err := c.IsGuardian(ctx, nominee.Address())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestClient_SetThreshold(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	c := e.client(t, e.controller)

	_, guardians := newGuardians(t, 2)

	_, err := c.Deploy(ctx, socialrecovery.DeployOptions{Guardians: guardians}, nil)
	require.NoError(t, err)

	_, err = c.SetThreshold(ctx, big.NewInt(3))
	require.ErrorIs(t, err, socialrecovery.ErrTransactionReverted)
	require.ErrorContains(t, err, chaintest.ReasonThresholdExceeds)

	threshold, err := c.GetGuardiansThreshold(ctx)
	require.NoError(t, err)
	require.Zero(t, threshold.Sign())

	_, err = c.SetThreshold(ctx, big.NewInt(2))
	require.NoError(t, err)

	_, err = c.RemoveGuardian(ctx, guardians[0])
	require.ErrorIs(t, err, socialrecovery.ErrTransactionReverted)
	require.ErrorContains(t, err, chaintest.ReasonGuardiansBelow)

	_, err = c.SetThreshold(ctx, big.NewInt(1))
	require.NoError(t, err)

	_, err = c.RemoveGuardian(ctx, guardians[0])
	require.NoError(t, err)

	res, err := c.GetGuardians(ctx)
	require.NoError(t, err)
	require.Equal(t, guardians[1:], res)

	_, err = c.SetThreshold(ctx, nil)
	require.Error(t, err)
}

func TestClient_PartialDeploy(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	c := e.client(t, e.controller)

	_, guardians := newGuardians(t, 3)

	var failedStep string

	bsr, err := c.Deploy(ctx, socialrecovery.DeployOptions{
		Guardians: guardians,
		Threshold: big.NewInt(4),
	}, func(step string, err error) {
		if err != nil {
			failedStep = step
		}
	})
	require.ErrorIs(t, err, socialrecovery.ErrTransactionReverted)
	require.Equal(t, socialrecovery.StepSetThreshold, failedStep)

	var de *socialrecovery.DeployError
	require.True(t, errors.As(err, &de))
	require.Equal(t, socialrecovery.StepSetThreshold, de.Step)
	require.NotEqual(t, common.Address{}, de.Address)
	require.Equal(t, de.Address, bsr)

	st, err := c.State(ctx)
	require.NoError(t, err)
	require.Equal(t, socialrecovery.PhaseDeployed, st.Phase)
	require.Equal(t, guardians, st.Guardians)

	// resume
	_, err = c.SetThreshold(ctx, big.NewInt(3))
	require.NoError(t, err)

	st, err = c.State(ctx)
	require.NoError(t, err)
	require.Equal(t, socialrecovery.PhaseConfigured, st.Phase)
}

func TestClient_PermissionDenied(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	stranger := newSigner(t)
	c := e.client(t, stranger)

	bsr, err := c.Deploy(ctx, socialrecovery.DeployOptions{}, nil)
	require.ErrorIs(t, err, socialrecovery.ErrPermissionDenied)
	require.Equal(t, common.Address{}, bsr)

	var de *socialrecovery.DeployError
	require.True(t, errors.As(err, &de))
	require.Equal(t, socialrecovery.StepProbeTarget, de.Step)
	require.Equal(t, common.Address{}, de.Address)

	require.Empty(t, e.chain.Transactions())

	_, err = e.client(t, e.controller).Deploy(ctx, socialrecovery.DeployOptions{}, nil)
	require.NoError(t, err)

	_, err = c.AddGuardian(ctx, stranger.Address())
	require.ErrorIs(t, err, socialrecovery.ErrPermissionDenied)

	t.Run("configuration without CALL", func(t *testing.T) {
		granter := newSigner(t)
		acc, _ := e.chain.DeployControlledProfile(chaintest.Grant{
			Address:     granter.Address(),
			Permissions: schema.PermAddPermissions | schema.PermChangePermissions | schema.PermSetData,
		})
		c := e.clientOf(t, acc, granter)

		_, guardians := newGuardians(t, 1)
		sent := len(e.chain.Transactions())

		_, err := c.Deploy(ctx, socialrecovery.DeployOptions{Guardians: guardians}, nil)
		require.ErrorIs(t, err, socialrecovery.ErrPermissionDenied)
		require.ErrorContains(t, err, schema.PermCall.String())
		require.True(t, errors.As(err, &de))
		require.Equal(t, socialrecovery.StepProbeTarget, de.Step)
		require.Len(t, e.chain.Transactions(), sent)

		// no relayed calls of the recovery contract
		bsr, err := c.Deploy(ctx, socialrecovery.DeployOptions{}, nil)
		require.NoError(t, err)
		require.NotEqual(t, common.Address{}, bsr)
	})
}

func TestClient_Target(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	t.Run("not deployed", func(t *testing.T) {
		c := e.client(t, e.controller)

		_, err := c.GetGuardians(ctx)
		require.ErrorIs(t, err, socialrecovery.ErrRecoveryNotDeployed)

		_, err = c.AddGuardian(ctx, e.controller.Address())
		require.ErrorIs(t, err, socialrecovery.ErrRecoveryNotDeployed)

		st, err := c.State(ctx)
		require.NoError(t, err)
		require.Equal(t, socialrecovery.PhaseNotDeployed, st.Phase)
	})

	t.Run("not a profile", func(t *testing.T) {
		c := e.clientOf(t, e.controller.Address(), e.controller)

		_, err := c.GetGuardians(ctx)
		require.ErrorIs(t, err, socialrecovery.ErrInvalidTarget)

		_, err = c.Deploy(ctx, socialrecovery.DeployOptions{}, nil)
		require.ErrorIs(t, err, socialrecovery.ErrInvalidTarget)

		var de *socialrecovery.DeployError
		require.True(t, errors.As(err, &de))
		require.Equal(t, socialrecovery.StepProbeTarget, de.Step)
		require.Equal(t, common.Address{}, de.Address)
	})

	t.Run("directly owned profile", func(t *testing.T) {
		acc := e.chain.DeployProfile(e.controller.Address(), false)
		c := e.clientOf(t, acc, e.controller)

		sent := len(e.chain.Transactions())

		bsr, err := c.Deploy(ctx, socialrecovery.DeployOptions{}, nil)
		require.ErrorIs(t, err, socialrecovery.ErrMissingController)
		require.Equal(t, common.Address{}, bsr)

		var de *socialrecovery.DeployError
		require.True(t, errors.As(err, &de))
		require.Equal(t, socialrecovery.StepProbeTarget, de.Step)
		require.Len(t, e.chain.Transactions(), sent)
	})

	t.Run("legacy profile", func(t *testing.T) {
		acc := e.chain.DeployProfile(e.controller.Address(), true)
		c := e.clientOf(t, acc, nil)

		st, err := c.State(ctx)
		require.NoError(t, err)
		require.Equal(t, socialrecovery.PhaseNotDeployed, st.Phase)
	})

	t.Run("recovery contract of another profile", func(t *testing.T) {
		owner, _ := e.chain.DeployControlledProfile(chaintest.Grant{Address: e.controller.Address(), Permissions: schema.PermAll})

		bsr, err := e.clientOf(t, owner, e.controller).Deploy(ctx, socialrecovery.DeployOptions{}, nil)
		require.NoError(t, err)

		acc := e.chain.DeployProfile(e.controller.Address(), false)
		e.chain.SetData(acc, schema.RecoveryKey, bsr.Bytes())

		c := e.clientOf(t, acc, nil)

		_, err = c.Address(ctx)
		require.ErrorIs(t, err, socialrecovery.ErrRecoveryNotDeployed)
		require.ErrorContains(t, err, owner.Hex())

		st, err := c.State(ctx)
		require.NoError(t, err)
		require.Equal(t, socialrecovery.PhaseNotDeployed, st.Phase)
	})
}

func TestClient_ReadOnly(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	_, guardians := newGuardians(t, 1)

	_, err := e.client(t, e.controller).Deploy(ctx, socialrecovery.DeployOptions{Guardians: guardians}, nil)
	require.NoError(t, err)

	c := e.client(t, nil)

	res, err := c.GetGuardians(ctx)
	require.NoError(t, err)
	require.Equal(t, guardians, res)

	_, err = c.Deploy(ctx, socialrecovery.DeployOptions{}, nil)
	require.ErrorIs(t, err, socialrecovery.ErrReadOnly)

	_, err = c.AddGuardian(ctx, guardians[0])
	require.ErrorIs(t, err, socialrecovery.ErrReadOnly)

	_, err = c.VoteToRecover(ctx, [32]byte{1}, guardians[0])
	require.ErrorIs(t, err, socialrecovery.ErrReadOnly)
}

func TestClient_Network(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	id, n, err := e.client(t, nil).Network(ctx)
	require.NoError(t, err)
	require.EqualValues(t, chaintest.DefaultChainID, id)
	require.Equal(t, "L16", n.Name)
}

func TestClient_Concurrent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	a, err := actor.New(actor.Prm{
		Logger:       zaptest.NewLogger(t),
		Backend:      e.chain,
		Signer:       e.controller,
		PollInterval: time.Millisecond,
		Errors:       socialrecovery.RevertABIs(),
	})
	require.NoError(t, err)

	newClient := func() *socialrecovery.Client {
		c, err := socialrecovery.New(e.account, socialrecovery.Prm{
			Logger:           zaptest.NewLogger(t),
			Backend:          e.chain,
			Actor:            a,
			RecoveryBytecode: chaintest.RecoveryBytecode,
		})
		require.NoError(t, err)
		return c
	}

	c1, c2 := newClient(), newClient()

	_, err = c1.Deploy(ctx, socialrecovery.DeployOptions{}, nil)
	require.NoError(t, err)

	e.chain.SetReceiptDelay(1)

	_, guardians := newGuardians(t, 6)

	var wg sync.WaitGroup
	errCh := make(chan error, len(guardians))

	for i, g := range guardians {
		c := c1
		if i%2 == 1 {
			c = c2
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.AddGuardian(ctx, g)
			errCh <- err
		}()
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}

	res, err := c2.GetGuardians(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, guardians, res)
	require.Equal(t, 1, e.chain.MaxInFlight())
}
