// Package smartcontract implements the application engine (C5): the
// layer that drives vm.VM against a ledger snapshot, enforces call
// flags, resolves syscalls and native-contract calls, and collects
// notifications. It knows nothing about block application order or
// mempool policy — ledger.Blockchain is the caller that wires those in.
package smartcontract

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/n3node/core/hash"
	"github.com/n3node/core/store"
	"github.com/n3node/core/vm"
)

// Trigger names the circumstance under which a script is run, per §4.5.
type Trigger byte

const (
	TriggerOnPersist Trigger = iota
	TriggerPostPersist
	TriggerVerification
	TriggerApplication
)

func (t Trigger) String() string {
	switch t {
	case TriggerOnPersist:
		return "OnPersist"
	case TriggerPostPersist:
		return "PostPersist"
	case TriggerVerification:
		return "Verification"
	case TriggerApplication:
		return "Application"
	default:
		return "Unknown"
	}
}

// CallFlags is the bitfield that narrows what a loaded script's frame is
// permitted to do; syscalls declare the flags they require and the
// engine FAULTs any attempt made without them.
type CallFlags byte

const (
	ReadStates CallFlags = 1 << iota
	WriteStates
	AllowCall
	AllowNotify

	States   = ReadStates | WriteStates
	ReadOnly = ReadStates | AllowCall
	All      = States | AllowCall | AllowNotify
)

func (f CallFlags) Has(req CallFlags) bool { return f&req == req }

// Signer and Witness are the engine's own lightweight views of a
// transaction's authorization data — intentionally decoupled from
// ledger.Transaction (the engine must not import ledger: ledger's
// apply pipeline imports smartcontract, not the other way around).
// ledger converts its own Signer/Witness into these when it calls
// Create.
type Signer struct {
	Account          hash.Uint160
	Scopes           byte
	AllowedContracts []hash.Uint160
	AllowedGroups    [][]byte
}

type Witness struct {
	InvocationScript   []byte
	VerificationScript []byte
}

const (
	ScopeCalledByEntry   byte = 1 << 0
	ScopeCustomContracts byte = 1 << 4
	ScopeCustomGroups    byte = 1 << 5
	ScopeGlobal          byte = 1 << 7
)

// Notification is one entry in the engine's ordered log, emitted by the
// System.Runtime.Notify syscall (exposed here as Notify).
type Notification struct {
	Contract hash.Uint160
	Event    string
	State    vm.Item
}

// frame tracks the call-flags and executing contract hash for the VM
// context at the same invocation-stack depth, since vm.VM itself has no
// notion of either.
type frame struct {
	flags    CallFlags
	contract hash.Uint160
}

// NativeContract is implemented by every contract in smartcontract/native;
// the engine calls into one via CALLNATIVE without involving the VM script
// interpreter for the native's own body.
type NativeContract interface {
	ID() int32
	Hash() hash.Uint160
	Name() string
	Invoke(eng *Engine, method string, args []vm.Item) (vm.Item, error)
	OnPersist(eng *Engine) error
	PostPersist(eng *Engine) error
}

// Engine orchestrates one VM run against a snapshot.
type Engine struct {
	Trigger  Trigger
	GasLimit int64

	VM       *vm.VM
	Snapshot *store.Cache

	signers         []Signer
	witnessVerified map[hash.Uint160]bool
	containerHash   hash.Uint256

	persistingIndex     uint32
	persistingTimestamp uint64
	primaryAccount      hash.Uint160
	persistingFees      []FeeSettlement

	frames        []frame
	notifications []Notification

	natives map[hash.Uint160]NativeContract
	nativeByID map[int32]NativeContract
}

// Create builds an Engine for one run. containerHash/signers/witnesses
// describe the transaction driving Trigger=Application/Verification runs;
// for OnPersist/PostPersist they are empty (the persisting block itself
// is the container, identified only by its index/timestamp, which
// natives read via PersistingIndex/PersistingTimestamp).
func Create(trigger Trigger, snap *store.Cache, gasLimit int64, persistingIndex uint32, persistingTimestamp uint64) *Engine {
	return &Engine{
		Trigger:             trigger,
		GasLimit:            gasLimit,
		VM:                  vm.New(gasLimit),
		Snapshot:            snap,
		persistingIndex:     persistingIndex,
		persistingTimestamp: persistingTimestamp,
		natives:             make(map[hash.Uint160]NativeContract),
		nativeByID:          make(map[int32]NativeContract),
	}
}

// RegisterNative makes a native contract callable via CALLNATIVE and
// included in OnPersist/PostPersist sweeps.
func (e *Engine) RegisterNative(nc NativeContract) {
	e.natives[nc.Hash()] = nc
	e.nativeByID[nc.ID()] = nc
}

func (e *Engine) Native(h hash.Uint160) (NativeContract, bool) { nc, ok := e.natives[h]; return nc, ok }

// SetContainer attaches the transaction driving an Application or
// Verification trigger, running its witnesses' verification scripts
// immediately so CheckWitness has an answer ready.
func (e *Engine) SetContainer(containerHash hash.Uint256, signers []Signer, witnesses []Witness) error {
	e.containerHash = containerHash
	e.signers = signers
	e.witnessVerified = make(map[hash.Uint160]bool, len(signers))
	for i, s := range signers {
		if i >= len(witnesses) {
			continue
		}
		ok, err := verifyWitness(containerHash, witnesses[i].InvocationScript, witnesses[i].VerificationScript)
		if err != nil {
			return err
		}
		e.witnessVerified[s.Account] = ok
	}
	return nil
}

func (e *Engine) PersistingIndex() uint32     { return e.persistingIndex }
func (e *Engine) PersistingTimestamp() uint64 { return e.persistingTimestamp }
func (e *Engine) Notifications() []Notification { return e.notifications }

// SetPrimaryAccount records which validator proposed the block currently
// being persisted, so GASToken.PostPersist can credit the per-block
// reward (§4.6 "GAS mints block rewards to the primary"). Set once by
// ledger.Blockchain before running OnPersist/PostPersist for a block.
func (e *Engine) SetPrimaryAccount(account hash.Uint160) { e.primaryAccount = account }
func (e *Engine) PrimaryAccount() hash.Uint160           { return e.primaryAccount }

// FeeSettlement names one transaction's fee obligation against the
// block currently being persisted: its first signer owes SystemFee
// plus NetworkFee regardless of how the transaction's own script runs.
type FeeSettlement struct {
	Payer  hash.Uint160
	Amount *big.Int
}

// SetPersistingFees records the fee obligations of every transaction in
// the block currently being persisted, so GASToken.OnPersist can settle
// them before any transaction script runs — the §8 guarantee that fees
// are charged even for a transaction that ultimately FAULTs. Set once
// by ledger.Blockchain ahead of running OnPersist for a block.
func (e *Engine) SetPersistingFees(fees []FeeSettlement) { e.persistingFees = fees }
func (e *Engine) PersistingFees() []FeeSettlement        { return e.persistingFees }

// ContainerHash returns the hash of the transaction or block driving
// this run, as set by SetContainer.
func (e *Engine) ContainerHash() hash.Uint256 { return e.containerHash }

// LoadScript pushes a new frame over script with the given call flags,
// owned by contract (the zero value for an anonymous top-level entry
// script, e.g. a transaction's own Script).
func (e *Engine) LoadScript(contract hash.Uint160, script []byte, flags CallFlags) {
	e.frames = append(e.frames, frame{flags: flags, contract: contract})
	e.VM.Load(script)
	e.wireHandlers()
}

func (e *Engine) currentFrame() *frame {
	if len(e.frames) == 0 {
		return nil
	}
	return &e.frames[len(e.frames)-1]
}

// Execute runs the loaded script to termination.
func (e *Engine) Execute() vm.State {
	return e.VM.Execute()
}

// Notify appends an entry to the ordered notification log; requires
// AllowNotify on the current frame.
func (e *Engine) Notify(contract hash.Uint160, event string, state vm.Item) error {
	f := e.currentFrame()
	if f == nil || !f.flags.Has(AllowNotify) {
		return fmt.Errorf("smartcontract: notify requires AllowNotify")
	}
	e.notifications = append(e.notifications, Notification{Contract: contract, Event: event, State: state})
	return nil
}

// CheckWitness reports whether account authorized the current
// execution, per §4.5: present among the container's signers, scope
// covers the current frame, and its verification script was already
// run and accepted by SetContainer.
func (e *Engine) CheckWitness(account hash.Uint160) bool {
	if !e.witnessVerified[account] {
		return false
	}
	f := e.currentFrame()
	for _, s := range e.signers {
		if s.Account != account {
			continue
		}
		switch {
		case s.Scopes&ScopeGlobal != 0:
			return true
		case s.Scopes&ScopeCalledByEntry != 0 && len(e.frames) <= 1:
			return true
		case s.Scopes&ScopeCustomContracts != 0 && f != nil:
			for _, c := range s.AllowedContracts {
				if c == f.contract {
					return true
				}
			}
		}
	}
	return false
}

// CallContract resolves target via ContractManagement, intersects call
// flags, loads its script into a new frame and pushes args for it to
// consume (mirroring the calling convention INITSLOT/argslots expect).
func (e *Engine) CallContract(target hash.Uint160, method string, args []vm.Item, flags CallFlags) error {
	cur := e.currentFrame()
	if cur != nil {
		flags &= cur.flags
	}
	if !flags.Has(AllowCall) {
		return fmt.Errorf("smartcontract: call to %s requires AllowCall", target)
	}
	if nc, ok := e.natives[target]; ok {
		result, err := nc.Invoke(e, method, args)
		if err != nil {
			return err
		}
		e.VM.ResultStack().Push(result)
		return nil
	}
	mgmt, ok := e.natives[ContractManagementHash]
	if !ok {
		return fmt.Errorf("smartcontract: ContractManagement not registered")
	}
	cm, ok := mgmt.(interface {
		ScriptOf(eng *Engine, h hash.Uint160) ([]byte, error)
	})
	if !ok {
		return fmt.Errorf("smartcontract: ContractManagement cannot resolve scripts")
	}
	script, err := cm.ScriptOf(e, target)
	if err != nil {
		return err
	}
	for i := len(args) - 1; i >= 0; i-- {
		e.VM.ResultStack().Push(args[i])
	}
	e.LoadScript(target, script, flags)
	return nil
}

// ContractManagementHash is the hash used to look up the registered
// ContractManagement native. It is zero until native/registry.go sets
// it to ContractManagement's own hash, which, like every native hash,
// is derived from the contract's name.
var ContractManagementHash hash.Uint160

// SyscallID is the first 4 bytes of sha256("System.<Group>.<Name>"),
// the stable identifier every syscall is dispatched by.
func SyscallID(name string) uint32 {
	sum := sha256.Sum256([]byte(name))
	return binary.LittleEndian.Uint32(sum[:4])
}
