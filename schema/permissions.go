package schema

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lsp-toolkit/socialrecovery/internal/errs"
)

// Permissions is a set of LSP6 permissions granted to an address. Bit values
// match the on-chain BitArray layout.
type Permissions uint64

// LSP6 permissions.
const (
	PermChangeOwner Permissions = 1 << iota
	PermChangePermissions
	PermAddPermissions
	PermSetData
	PermCall
	PermStaticCall
	PermDelegateCall
	PermDeploy
	PermTransferValue
	PermSign
)

// PermAll is the union of all named permissions.
const PermAll = PermChangeOwner | PermChangePermissions | PermAddPermissions | PermSetData |
	PermCall | PermStaticCall | PermDelegateCall | PermDeploy | PermTransferValue | PermSign

// RecoveryPermissions are granted to a freshly deployed recovery contract.
const RecoveryPermissions = PermAddPermissions | PermChangePermissions

var permissionNames = []struct {
	p    Permissions
	name string
}{
	{PermChangeOwner, "CHANGEOWNER"},
	{PermChangePermissions, "CHANGEPERMISSIONS"},
	{PermAddPermissions, "ADDPERMISSIONS"},
	{PermSetData, "SETDATA"},
	{PermCall, "CALL"},
	{PermStaticCall, "STATICCALL"},
	{PermDelegateCall, "DELEGATECALL"},
	{PermDeploy, "DEPLOY"},
	{PermTransferValue, "TRANSFERVALUE"},
	{PermSign, "SIGN"},
}

// Has checks whether all permissions of q are in p.
func (p Permissions) Has(q Permissions) bool {
	return p&q == q
}

// Flags returns named boolean flags of all known permissions.
func (p Permissions) Flags() map[string]bool {
	res := make(map[string]bool, len(permissionNames))
	for _, n := range permissionNames {
		res[n.name] = p.Has(n.p)
	}
	return res
}

// String returns '|'-separated names of the set permissions.
func (p Permissions) String() string {
	var names []string
	for _, n := range permissionNames {
		if p.Has(n.p) {
			names = append(names, n.name)
		}
	}
	if rest := p &^ PermAll; rest != 0 {
		names = append(names, fmt.Sprintf("0x%x", uint64(rest)))
	}
	if len(names) == 0 {
		return "NONE"
	}
	return strings.Join(names, "|")
}

// ParsePermissions builds Permissions from case-insensitive names.
func ParsePermissions(names ...string) (Permissions, error) {
	var res Permissions
loop:
	for _, name := range names {
		for _, n := range permissionNames {
			if strings.EqualFold(n.name, name) {
				res |= n.p
				continue loop
			}
		}
		return 0, fmt.Errorf("unknown permission %q", name)
	}
	return res, nil
}

// EncodePermissions encodes p as the 32-byte BitArray value.
func EncodePermissions(p Permissions) [32]byte {
	var res [32]byte
	binary.BigEndian.PutUint64(res[24:], uint64(p))
	return res
}

// DecodePermissions decodes the 32-byte BitArray value. Empty value means no
// permissions. Bits above the 64th are not named by LSP6 and are dropped.
func DecodePermissions(raw []byte) (Permissions, error) {
	switch len(raw) {
	case 0:
		return 0, nil
	case common.HashLength:
		return Permissions(binary.BigEndian.Uint64(raw[24:])), nil
	default:
		return 0, errs.Codec("permissions value of %d bytes", len(raw))
	}
}
