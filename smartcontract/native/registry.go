package native

import (
	"github.com/n3node/core/smartcontract"
)

// Set holds every native contract registered for a node, keyed for the
// callers (ledger.Blockchain's OnPersist/PostPersist sweep, cmd/n3node) that
// need to reach one by name rather than going through an Engine.
type Set struct {
	ContractManagement *ContractManagement
	Ledger             *LedgerContract
	NEO                *NEOToken
	GAS                *GASToken
	Policy             *PolicyContract
	RoleManagement     *RoleManagement
	Oracle             *OracleContract
	CryptoLib          *CryptoLib
	StdLib             *StdLib

	all []smartcontract.NativeContract
}

// NewSet constructs the fixed set of native contracts run by every node.
// Construction order matters only for readability; registration order
// (RegisterAll) does not affect behavior since each native is addressed
// by its own hash/id.
func NewSet() *Set {
	cm := NewContractManagement()
	s := &Set{
		ContractManagement: cm,
		Ledger:             NewLedgerContract(),
		NEO:                NewNEOToken(),
		GAS:                NewGASToken(),
		Policy:             NewPolicyContract(),
		RoleManagement:     NewRoleManagement(),
		Oracle:             NewOracleContract(),
		CryptoLib:          NewCryptoLib(),
		StdLib:             NewStdLib(),
	}
	s.all = []smartcontract.NativeContract{
		s.ContractManagement,
		s.Ledger,
		s.NEO,
		s.GAS,
		s.Policy,
		s.RoleManagement,
		s.Oracle,
		s.CryptoLib,
		s.StdLib,
	}
	return s
}

// RegisterAll wires every native onto eng and sets the package-level
// ContractManagementHash the engine's CallContract resolution needs.
func (s *Set) RegisterAll(eng *smartcontract.Engine) {
	smartcontract.ContractManagementHash = s.ContractManagement.Hash()
	for _, nc := range s.all {
		eng.RegisterNative(nc)
	}
}

// OnPersist runs every native's block-start hook in registration order,
// mirroring §4.6's "natives observe OnPersist/PostPersist the same as
// any other contract, just without a script to interpret".
func (s *Set) OnPersist(eng *smartcontract.Engine) error {
	for _, nc := range s.all {
		if err := nc.OnPersist(eng); err != nil {
			return err
		}
	}
	return nil
}

// PostPersist runs every native's block-end hook (such as GAS's
// per-block reward to the primary) in registration order.
func (s *Set) PostPersist(eng *smartcontract.Engine) error {
	for _, nc := range s.all {
		if err := nc.PostPersist(eng); err != nil {
			return err
		}
	}
	return nil
}
