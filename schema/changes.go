package schema

import (
	"slices"

	"github.com/ethereum/go-ethereum/common"
)

// DataChanges is an ordered batch of ERC725Y key-value writes, ready to be
// passed into setData(bytes32[],bytes[]).
type DataChanges struct {
	Keys   [][32]byte
	Values [][]byte
}

// Set appends a write of value under key.
func (x *DataChanges) Set(key common.Hash, value []byte) {
	x.Keys = append(x.Keys, key)
	x.Values = append(x.Values, value)
}

// Len returns number of writes.
func (x DataChanges) Len() int {
	return len(x.Keys)
}

// Get returns the value set under key by the last write, if any.
func (x DataChanges) Get(key common.Hash) ([]byte, bool) {
	for i := len(x.Keys) - 1; i >= 0; i-- {
		if x.Keys[i] == key {
			return x.Values[i], true
		}
	}
	return nil, false
}

// EncodeAddressArray appends writes of the whole LSP2 Array of addresses:
// length followed by every element in order.
func (x *DataChanges) EncodeAddressArray(arrayKey common.Hash, list []common.Address) {
	x.Set(arrayKey, EncodeArrayLength(uint64(len(list))))
	for i := range list {
		x.Set(ArrayElementKey(arrayKey, uint64(i)), list[i].Bytes())
	}
}

// EncodePermissionGrant returns writes registering grantee as the recovery
// contract of the profile:
//  1. grantee's permissions set to ADDPERMISSIONS and CHANGEPERMISSIONS;
//  2. recovery contract pointer set to grantee;
//  3. AddressPermissions[] set to current list with grantee appended.
//
// Order of the current list is preserved. The grantee is not appended if
// already listed.
func EncodePermissionGrant(grantee common.Address, current []common.Address) DataChanges {
	var res DataChanges

	perms := EncodePermissions(RecoveryPermissions)
	res.Set(PermissionsKey(grantee), perms[:])
	res.Set(RecoveryKey, grantee.Bytes())

	list := slices.Clone(current)
	if !slices.Contains(list, grantee) {
		list = append(list, grantee)
	}

	res.EncodeAddressArray(AddressPermissionsArrayKey, list)

	return res
}
