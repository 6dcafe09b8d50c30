package chaintest

import (
	"fmt"
	"maps"
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/lsp-toolkit/socialrecovery/rpc/account"
	"github.com/lsp-toolkit/socialrecovery/rpc/keymanager"
	"github.com/lsp-toolkit/socialrecovery/rpc/recovery"
	"github.com/lsp-toolkit/socialrecovery/schema"
)

// Revert messages of the Basic Social Recovery contract.
const (
	ReasonNotOwner            = "Ownable: caller is not the owner"
	ReasonAlreadyGuardian     = "Provided address is already a guardian"
	ReasonNotGuardian         = "Provided address is not a guardian"
	ReasonGuardiansBelow      = "Guardian number should be higher than threshold"
	ReasonThresholdExceeds    = "Threshold exceeds number of guardians"
	ReasonCallerNotGuardian   = "Caller is not a guardian"
	ReasonWrongSecret         = "Wrong plain secret"
	ReasonThresholdNotReached = "Threshold not reached"
	ReasonInvalidFunction     = "Invalid ERC725 function"
	ReasonUnsupportedOp       = "Unsupported operation type"
)

var erc165InterfaceID = [4]byte{0x01, 0xff, 0xc9, 0xa7}

// RevertError is returned by Chain when execution reverts. It carries the
// revert payload the way JSON-RPC nodes do.
type RevertError struct {
	data []byte
}

// Error implements error.
func (e *RevertError) Error() string {
	return "execution reverted"
}

// ErrorCode returns JSON-RPC error code of reverts.
func (e *RevertError) ErrorCode() int {
	return 3
}

// ErrorData returns hex-encoded revert payload.
func (e *RevertError) ErrorData() any {
	return hexutil.Encode(e.data)
}

var errorStringArgs = func() abi.Arguments {
	t, err := abi.NewType("string", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: t}}
}()

func revertReason(reason string) error {
	b, err := errorStringArgs.Pack(reason)
	if err != nil {
		panic(err)
	}
	// Error(string)
	return &RevertError{data: append([]byte{0x08, 0xc3, 0x79, 0xa0}, b...)}
}

func revertCustom(a *abi.ABI, name string, args ...any) error {
	e, ok := a.Errors[name]
	if !ok {
		panic(fmt.Sprintf("missing error %s in ABI", name))
	}

	b, err := e.Inputs.Pack(args...)
	if err != nil {
		panic(err)
	}

	return &RevertError{data: append(slices.Clone(e.ID[:4]), b...)}
}

type profile struct {
	owner  common.Address
	legacy bool
	data   map[common.Hash][]byte
}

func (p *profile) setData(key common.Hash, value []byte) {
	if len(value) == 0 {
		delete(p.data, key)
		return
	}
	p.data[key] = slices.Clone(value)
}

type controller struct {
	target common.Address
}

type socialRecovery struct {
	account   common.Address
	guardians []common.Address
	threshold *big.Int
	secret    [32]byte
	processes [][32]byte
	votes     map[[32]byte]map[common.Address]common.Address
}

type world struct {
	nonces      map[common.Address]uint64
	profiles    map[common.Address]*profile
	controllers map[common.Address]*controller
	recoveries  map[common.Address]*socialRecovery
}

func newWorld() *world {
	return &world{
		nonces:      make(map[common.Address]uint64),
		profiles:    make(map[common.Address]*profile),
		controllers: make(map[common.Address]*controller),
		recoveries:  make(map[common.Address]*socialRecovery),
	}
}

func (w *world) clone() *world {
	res := newWorld()

	maps.Copy(res.nonces, w.nonces)

	for addr, p := range w.profiles {
		res.profiles[addr] = &profile{owner: p.owner, legacy: p.legacy, data: maps.Clone(p.data)}
	}

	for addr, c := range w.controllers {
		res.controllers[addr] = &controller{target: c.target}
	}

	for addr, r := range w.recoveries {
		votes := make(map[[32]byte]map[common.Address]common.Address, len(r.votes))
		for id, v := range r.votes {
			votes[id] = maps.Clone(v)
		}

		res.recoveries[addr] = &socialRecovery{
			account:   r.account,
			guardians: slices.Clone(r.guardians),
			threshold: new(big.Int).Set(r.threshold),
			secret:    r.secret,
			processes: slices.Clone(r.processes),
			votes:     votes,
		}
	}

	return res
}

// create deploys the recovery contract. Constructor argument is the last 32
// bytes of code.
func (w *world) create(from common.Address, nonce uint64, code []byte) (common.Address, error) {
	if len(code) <= common.HashLength {
		return common.Address{}, revertReason("invalid creation code")
	}

	addr := crypto.CreateAddress(from, nonce)

	w.recoveries[addr] = &socialRecovery{
		account:   common.BytesToAddress(code[len(code)-common.HashLength:]),
		threshold: new(big.Int),
		votes:     make(map[[32]byte]map[common.Address]common.Address),
	}

	return addr, nil
}

// call executes message call. Calls to addresses without code succeed with
// empty result.
func (w *world) call(from, to common.Address, data []byte) ([]byte, error) {
	if p, ok := w.profiles[to]; ok {
		return w.callProfile(p, from, to, data)
	}

	if c, ok := w.controllers[to]; ok {
		return w.callController(c, from, to, data)
	}

	if r, ok := w.recoveries[to]; ok {
		return w.callRecovery(r, from, to, data)
	}

	return nil, nil
}

func dispatch(a *abi.ABI, data []byte) (*abi.Method, []any, error) {
	if len(data) < 4 {
		return nil, nil, &RevertError{}
	}

	m, err := a.MethodById(data[:4])
	if err != nil {
		return nil, nil, &RevertError{}
	}

	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, &RevertError{}
	}

	return m, args, nil
}

func (w *world) callProfile(p *profile, from, self common.Address, data []byte) ([]byte, error) {
	m, args, err := dispatch(account.ABI(), data)
	if err != nil {
		return nil, err
	}

	switch m.Name {
	case "owner":
		return m.Outputs.Pack(p.owner)
	case "supportsInterface":
		id := args[0].([4]byte)
		if p.legacy {
			return m.Outputs.Pack(id == account.LegacyInterfaceID || id == erc165InterfaceID)
		}
		return m.Outputs.Pack(id == account.InterfaceID || id == erc165InterfaceID)
	case "getData":
		return m.Outputs.Pack(p.data[args[0].([32]byte)])
	case "setData":
		if from != p.owner {
			return nil, revertReason(ReasonNotOwner)
		}

		keys, values := args[0].([][32]byte), args[1].([][]byte)
		if len(keys) != len(values) {
			return nil, revertReason("keys and values length mismatch")
		}

		for i := range keys {
			p.setData(keys[i], values[i])
		}

		return nil, nil
	case "execute":
		if from != p.owner {
			return nil, revertReason(ReasonNotOwner)
		}

		if args[0].(*big.Int).Cmp(big.NewInt(account.OperationCall)) != 0 {
			return nil, revertReason(ReasonUnsupportedOp)
		}

		res, err := w.call(self, args[1].(common.Address), args[3].([]byte))
		if err != nil {
			return nil, err
		}

		return m.Outputs.Pack(res)
	}

	return nil, &RevertError{}
}

func (w *world) permissionsOf(p *profile, addr common.Address) (schema.Permissions, bool) {
	raw, ok := p.data[schema.PermissionsKey(addr)]
	if !ok {
		return 0, false
	}

	perms, err := schema.DecodePermissions(raw)
	if err != nil {
		return 0, false
	}

	return perms, perms != 0
}

func (w *world) callController(c *controller, from, self common.Address, data []byte) ([]byte, error) {
	m, args, err := dispatch(keymanager.ABI(), data)
	if err != nil {
		return nil, err
	}

	switch m.Name {
	case "target":
		return m.Outputs.Pack(c.target)
	case "supportsInterface":
		id := args[0].([4]byte)
		return m.Outputs.Pack(id == keymanager.InterfaceID || id == erc165InterfaceID)
	case "execute":
		p, ok := w.profiles[c.target]
		if !ok {
			return nil, revertReason("no target")
		}

		payload := args[0].([]byte)

		perms, ok := w.permissionsOf(p, from)
		if !ok {
			return nil, revertCustom(keymanager.ABI(), "NoPermissionsSet", from)
		}

		if err := checkPermissions(p, perms, from, payload); err != nil {
			return nil, err
		}

		res, err := w.call(self, c.target, payload)
		if err != nil {
			return nil, err
		}

		return m.Outputs.Pack(res)
	}

	return nil, &RevertError{}
}

// checkPermissions verifies that caller holding perms may relay payload to
// the profile.
func checkPermissions(p *profile, perms schema.Permissions, caller common.Address, payload []byte) error {
	m, args, err := dispatch(account.ABI(), payload)
	if err != nil {
		return revertReason(ReasonInvalidFunction)
	}

	require := func(need schema.Permissions) error {
		if !perms.Has(need) {
			return revertCustom(keymanager.ABI(), "NotAuthorised", caller, need.String())
		}
		return nil
	}

	switch m.Name {
	case "execute":
		return require(schema.PermCall)
	case "setData":
		keys := args[0].([][32]byte)
		for i := range keys {
			if err := require(requiredToWrite(p, keys[i])); err != nil {
				return err
			}
		}
		return nil
	}

	return revertReason(ReasonInvalidFunction)
}

func requiredToWrite(p *profile, key common.Hash) schema.Permissions {
	_, isPerms := schema.IsPermissionsKey(key)
	if !isPerms && !schema.IsArrayKey(schema.AddressPermissionsArrayKey, key) {
		return schema.PermSetData
	}

	if len(p.data[key]) == 0 {
		return schema.PermAddPermissions
	}

	return schema.PermChangePermissions
}

func (w *world) callRecovery(r *socialRecovery, from, self common.Address, data []byte) ([]byte, error) {
	m, args, err := dispatch(recovery.ABI(), data)
	if err != nil {
		return nil, err
	}

	onlyAccount := func() error {
		if from != r.account {
			return revertReason(ReasonNotOwner)
		}
		return nil
	}

	switch m.Name {
	case "account":
		return m.Outputs.Pack(r.account)
	case "supportsInterface":
		id := args[0].([4]byte)
		return m.Outputs.Pack(id == recovery.InterfaceID || id == erc165InterfaceID)
	case "getGuardians":
		return m.Outputs.Pack(r.guardians)
	case "getGuardiansThreshold":
		return m.Outputs.Pack(r.threshold)
	case "isGuardian":
		return m.Outputs.Pack(slices.Contains(r.guardians, args[0].(common.Address)))
	case "getRecoverProcessesIds":
		return m.Outputs.Pack(r.processes)
	case "getGuardianVote":
		return m.Outputs.Pack(r.votes[args[0].([32]byte)][args[1].(common.Address)])
	case "addGuardian":
		if err := onlyAccount(); err != nil {
			return nil, err
		}

		g := args[0].(common.Address)
		if slices.Contains(r.guardians, g) {
			return nil, revertReason(ReasonAlreadyGuardian)
		}

		r.guardians = append(r.guardians, g)

		return nil, nil
	case "removeGuardian":
		if err := onlyAccount(); err != nil {
			return nil, err
		}

		i := slices.Index(r.guardians, args[0].(common.Address))
		if i < 0 {
			return nil, revertReason(ReasonNotGuardian)
		}

		if big.NewInt(int64(len(r.guardians))).Cmp(r.threshold) <= 0 {
			return nil, revertReason(ReasonGuardiansBelow)
		}

		// set semantics: the last element takes place of the removed one
		last := len(r.guardians) - 1
		r.guardians[i] = r.guardians[last]
		r.guardians = r.guardians[:last]

		return nil, nil
	case "setThreshold":
		if err := onlyAccount(); err != nil {
			return nil, err
		}

		t := args[0].(*big.Int)
		if t.Cmp(big.NewInt(int64(len(r.guardians)))) > 0 {
			return nil, revertReason(ReasonThresholdExceeds)
		}

		r.threshold = new(big.Int).Set(t)

		return nil, nil
	case "setSecret":
		if err := onlyAccount(); err != nil {
			return nil, err
		}

		r.secret = args[0].([32]byte)

		return nil, nil
	case "voteToRecover":
		if !slices.Contains(r.guardians, from) {
			return nil, revertReason(ReasonCallerNotGuardian)
		}

		id, nominee := args[0].([32]byte), args[1].(common.Address)

		if _, ok := r.votes[id]; !ok {
			r.votes[id] = make(map[common.Address]common.Address)
			r.processes = append(r.processes, id)
		}

		r.votes[id][from] = nominee

		return nil, nil
	case "recoverOwnership":
		id, plain, newHash := args[0].([32]byte), args[1].(string), args[2].([32]byte)

		if crypto.Keccak256Hash([]byte(plain)) != r.secret {
			return nil, revertReason(ReasonWrongSecret)
		}

		var votes int64
		for _, nominee := range r.votes[id] {
			if nominee == from {
				votes++
			}
		}

		if big.NewInt(votes).Cmp(r.threshold) < 0 {
			return nil, revertReason(ReasonThresholdNotReached)
		}

		delete(r.votes, id)
		r.processes = slices.DeleteFunc(r.processes, func(p [32]byte) bool { return p == id })
		r.secret = newHash

		return nil, w.grantRecovered(self, r.account, from)
	}

	return nil, &RevertError{}
}

// grantRecovered gives all permissions to the recovered controller through
// the Key Manager owning the account.
func (w *world) grantRecovered(self, acc, newController common.Address) error {
	p, ok := w.profiles[acc]
	if !ok {
		return revertReason("account is not a profile")
	}

	var current []common.Address
	raw := p.data[schema.AddressPermissionsArrayKey]
	n, err := schema.DecodeArrayLength(raw)
	if err != nil {
		return revertReason(err.Error())
	}

	for i := range n {
		addr, err := schema.DecodeAddress(p.data[schema.ArrayElementKey(schema.AddressPermissionsArrayKey, i)])
		if err != nil {
			return revertReason(err.Error())
		}
		current = append(current, addr)
	}

	var ch schema.DataChanges

	perms := schema.EncodePermissions(schema.PermAll)
	ch.Set(schema.PermissionsKey(newController), perms[:])

	if !slices.Contains(current, newController) {
		ch.Set(schema.AddressPermissionsArrayKey, schema.EncodeArrayLength(n+1))
		ch.Set(schema.ArrayElementKey(schema.AddressPermissionsArrayKey, n), newController.Bytes())
	}

	payload, err := account.PackSetData(ch)
	if err != nil {
		panic(err)
	}

	execData, err := keymanager.PackExecute(payload)
	if err != nil {
		panic(err)
	}

	_, err = w.call(self, p.owner, execData)

	return err
}
