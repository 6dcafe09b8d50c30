// Package schema encodes and decodes the ERC725Y data keys and values used by
// the Basic Social Recovery client: the LSP11 contract pointer, LSP6
// per-address permission bitmaps and the LSP2 AddressPermissions[] array.
//
// Byte layouts follow LSP2 ERC725Y JSON Schema and must not be altered: the
// on-chain Key Manager reads exactly these keys.
package schema

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lsp-toolkit/socialrecovery/internal/errs"
)

// RecoveryKey is the Singleton key under which a Universal Profile stores
// address of its LSP11BasicSocialRecovery contract.
var RecoveryKey = common.HexToHash("0x372626dc510c09a8871d6c9731204d9d418b49e4da4d1945e745e3cbad9fed81")

// AddressPermissionsArrayKey is the LSP2 Array key listing all addresses
// holding permissions on the profile, keccak256('AddressPermissions[]').
var AddressPermissionsArrayKey = common.HexToHash("0xdf30dba06db6a30e65354d9a64c609861f089545ca58c6b4dbe31a5f338cb0e3")

// prefix of 'AddressPermissions:Permissions:<address>' MappingWithGrouping
// keys.
var permissionsKeyPrefix = [12]byte{0x4b, 0x80, 0x74, 0x2d, 0xe2, 0xbf, 0x82, 0xac, 0xb3, 0x63, 0x00, 0x00}

// PermissionsKey returns the 'AddressPermissions:Permissions:<address>' key
// of the given address.
func PermissionsKey(addr common.Address) common.Hash {
	var k common.Hash
	copy(k[:], permissionsKeyPrefix[:])
	copy(k[len(permissionsKeyPrefix):], addr[:])
	return k
}

// IsPermissionsKey checks whether k is an 'AddressPermissions:Permissions:<address>'
// key and returns the address part.
func IsPermissionsKey(k common.Hash) (common.Address, bool) {
	if [12]byte(k[:12]) != permissionsKeyPrefix {
		return common.Address{}, false
	}
	return common.BytesToAddress(k[12:]), true
}

// ArrayElementKey returns the key of the element at the given index of the
// LSP2 Array identified by arrayKey: first 16 bytes of arrayKey followed by
// uint128 index.
func ArrayElementKey(arrayKey common.Hash, index uint64) common.Hash {
	var k common.Hash
	copy(k[:16], arrayKey[:16])
	binary.BigEndian.PutUint64(k[24:], index)
	return k
}

// IsArrayKey checks whether k is either the length key or an element key of
// the LSP2 Array identified by arrayKey.
func IsArrayKey(arrayKey, k common.Hash) bool {
	return k == arrayKey || [16]byte(k[:16]) == [16]byte(arrayKey[:16])
}

// arrayLengthSize is the size of LSP2 Array length values (uint256) stored
// by the profiles answering the interface IDs probed by this module.
const arrayLengthSize = common.HashLength

// compactArrayLengthSize is the size of uint128 lengths written by later
// LSP2 revisions.
const compactArrayLengthSize = 16

// EncodeArrayLength encodes LSP2 Array length as uint256.
func EncodeArrayLength(n uint64) []byte {
	b := make([]byte, arrayLengthSize)
	binary.BigEndian.PutUint64(b[arrayLengthSize-8:], n)
	return b
}

// DecodeArrayLength decodes LSP2 Array length. Empty value means empty array.
// Besides uint256 values, uint128 values of later LSP2 revisions are
// accepted.
func DecodeArrayLength(raw []byte) (uint64, error) {
	switch len(raw) {
	case 0:
		return 0, nil
	case arrayLengthSize, compactArrayLengthSize:
	default:
		return 0, errs.Codec("array length of %d bytes", len(raw))
	}

	n := new(big.Int).SetBytes(raw)
	if !n.IsUint64() {
		return 0, errs.Codec("array length %s overflows uint64", n)
	}

	return n.Uint64(), nil
}

// DecodeAddress decodes address value. Empty value decodes into zero address.
// Both raw 20-byte and left-padded 32-byte values are accepted.
func DecodeAddress(raw []byte) (common.Address, error) {
	switch len(raw) {
	case 0:
		return common.Address{}, nil
	case common.AddressLength:
		return common.BytesToAddress(raw), nil
	case common.HashLength:
		for _, b := range raw[:common.HashLength-common.AddressLength] {
			if b != 0 {
				return common.Address{}, errs.Codec("non-zero padding in 32-byte address value")
			}
		}
		return common.BytesToAddress(raw), nil
	default:
		return common.Address{}, errs.Codec("address value of %d bytes", len(raw))
	}
}
