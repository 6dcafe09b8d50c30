package schema

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/lsp-toolkit/socialrecovery/internal/errs"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	require.Equal(t, crypto.Keccak256Hash([]byte("AddressPermissions[]")), AddressPermissionsArrayKey)

	addr := common.HexToAddress("0xcafecafecafecafecafecafecafecafecafecafe")
	k := PermissionsKey(addr)
	require.Equal(t, common.HexToHash("0x4b80742de2bf82acb3630000cafecafecafecafecafecafecafecafecafecafe"), k)

	got, ok := IsPermissionsKey(k)
	require.True(t, ok)
	require.Equal(t, addr, got)

	_, ok = IsPermissionsKey(RecoveryKey)
	require.False(t, ok)

	el := ArrayElementKey(AddressPermissionsArrayKey, 5)
	require.Equal(t, common.HexToHash("0xdf30dba06db6a30e65354d9a64c6098600000000000000000000000000000005"), el)
	require.True(t, IsArrayKey(AddressPermissionsArrayKey, el))
	require.True(t, IsArrayKey(AddressPermissionsArrayKey, AddressPermissionsArrayKey))
	require.False(t, IsArrayKey(AddressPermissionsArrayKey, k))
}

func TestArrayLength(t *testing.T) {
	for _, n := range []uint64{0, 1, 3, 1 << 40} {
		got, err := DecodeArrayLength(EncodeArrayLength(n))
		require.NoError(t, err, n)
		require.Equal(t, n, got)
	}

	n, err := DecodeArrayLength(nil)
	require.NoError(t, err)
	require.Zero(t, n)

	require.Equal(t, common.LeftPadBytes([]byte{3}, 32), EncodeArrayLength(3))

	compact := common.LeftPadBytes([]byte{7}, 16)
	n, err = DecodeArrayLength(compact)
	require.NoError(t, err)
	require.EqualValues(t, 7, n)

	_, err = DecodeArrayLength([]byte{1, 2, 3})
	require.ErrorIs(t, err, errs.ErrCodec)

	overflow := bytes.Repeat([]byte{0xff}, 16)
	_, err = DecodeArrayLength(overflow)
	require.ErrorIs(t, err, errs.ErrCodec)
}

func TestDecodeAddress(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	got, err := DecodeAddress(addr.Bytes())
	require.NoError(t, err)
	require.Equal(t, addr, got)

	got, err = DecodeAddress(common.LeftPadBytes(addr.Bytes(), 32))
	require.NoError(t, err)
	require.Equal(t, addr, got)

	got, err = DecodeAddress(nil)
	require.NoError(t, err)
	require.Equal(t, common.Address{}, got)

	_, err = DecodeAddress(bytes.Repeat([]byte{1}, 32))
	require.ErrorIs(t, err, errs.ErrCodec)

	_, err = DecodeAddress([]byte{1, 2})
	require.ErrorIs(t, err, errs.ErrCodec)
}

func TestPermissionsRoundTrip(t *testing.T) {
	for p := Permissions(0); p <= PermAll; p++ {
		raw := EncodePermissions(p)
		got, err := DecodePermissions(raw[:])
		require.NoError(t, err)
		require.Equal(t, p, got)
		require.Equal(t, p.Flags(), got.Flags())
	}
}

func TestDecodePermissions(t *testing.T) {
	p, err := DecodePermissions(nil)
	require.NoError(t, err)
	require.Zero(t, p)

	for _, l := range []int{1, 20, 31, 33} {
		_, err = DecodePermissions(make([]byte, l))
		require.ErrorIs(t, err, errs.ErrCodec, l)
	}

	raw := common.FromHex("0x0000000000000000000000000000000000000000000000000000000000000010")
	p, err = DecodePermissions(raw)
	require.NoError(t, err)
	require.True(t, p.Has(PermCall))
	require.Equal(t, "CALL", p.String())
}

func TestParsePermissions(t *testing.T) {
	p, err := ParsePermissions("call", "SETDATA")
	require.NoError(t, err)
	require.Equal(t, PermCall|PermSetData, p)
	require.Equal(t, "SETDATA|CALL", p.String())

	_, err = ParsePermissions("FLY")
	require.Error(t, err)

	require.Equal(t, "NONE", Permissions(0).String())
	require.Equal(t, "CALL|0x400", (PermCall | 0x400).String())
}

func TestEncodePermissionGrant(t *testing.T) {
	var (
		grantee = common.HexToAddress("0x1111111111111111111111111111111111111111")
		a       = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
		b       = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
		current = []common.Address{a, b}
	)

	ch := EncodePermissionGrant(grantee, current)
	require.Equal(t, len(ch.Keys), len(ch.Values))
	// permissions, pointer, length, 3 elements
	require.Equal(t, 6, ch.Len())
	require.Equal(t, []common.Address{a, b}, current)

	raw, ok := ch.Get(PermissionsKey(grantee))
	require.True(t, ok)
	p, err := DecodePermissions(raw)
	require.NoError(t, err)
	require.Equal(t, RecoveryPermissions, p)

	flags := p.Flags()
	for name, set := range flags {
		switch name {
		case "ADDPERMISSIONS", "CHANGEPERMISSIONS":
			require.True(t, set, name)
		default:
			require.False(t, set, name)
		}
	}

	raw, ok = ch.Get(RecoveryKey)
	require.True(t, ok)
	ptr, err := DecodeAddress(raw)
	require.NoError(t, err)
	require.Equal(t, grantee, ptr)

	raw, ok = ch.Get(AddressPermissionsArrayKey)
	require.True(t, ok)
	require.Len(t, raw, 32)
	n, err := DecodeArrayLength(raw)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	for i, want := range []common.Address{a, b, grantee} {
		raw, ok = ch.Get(ArrayElementKey(AddressPermissionsArrayKey, uint64(i)))
		require.True(t, ok, i)
		require.Equal(t, want.Bytes(), raw, i)
	}

	t.Run("already listed", func(t *testing.T) {
		ch := EncodePermissionGrant(a, current)

		raw, ok := ch.Get(AddressPermissionsArrayKey)
		require.True(t, ok)
		n, err := DecodeArrayLength(raw)
		require.NoError(t, err)
		require.EqualValues(t, 2, n)
	})
}
