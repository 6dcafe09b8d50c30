package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lsp-toolkit/socialrecovery/internal/errs"
	"github.com/stretchr/testify/require"
)

func TestRevert(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		err := fmt.Errorf("send: %w", &errs.Revert{Reason: "not a guardian"})

		require.ErrorIs(t, err, errs.ErrTransactionReverted)
		require.NotErrorIs(t, err, errs.ErrPermissionDenied)
		require.NotErrorIs(t, err, errs.ErrProvider)
		require.EqualError(t, err, "send: transaction reverted: not a guardian")

		var r *errs.Revert
		require.ErrorAs(t, err, &r)
		require.Equal(t, "not a guardian", r.Reason)
	})

	t.Run("no reason", func(t *testing.T) {
		require.EqualError(t, new(errs.Revert), errs.ErrTransactionReverted.Error())
	})

	for _, name := range []string{errs.NotAuthorised, errs.NoPermissionsSet} {
		t.Run(name, func(t *testing.T) {
			err := fmt.Errorf("relay: %w", &errs.Revert{Name: name})
			require.ErrorIs(t, err, errs.ErrTransactionReverted)
			require.ErrorIs(t, err, errs.ErrPermissionDenied)
		})
	}
}

func TestProvider(t *testing.T) {
	require.NoError(t, errs.Provider(nil))

	cause := errors.New("connection refused")
	err := errs.Provider(cause)

	require.ErrorIs(t, err, errs.ErrProvider)
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, errs.ErrTransactionReverted)
}

func TestCodec(t *testing.T) {
	err := errs.Codec("invalid length %d", 7)
	require.ErrorIs(t, err, errs.ErrCodec)
	require.EqualError(t, err, "codec error: invalid length 7")
}
