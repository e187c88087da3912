package native

import (
	"fmt"
	"math/big"

	"github.com/n3node/core/hash"
	"github.com/n3node/core/smartcontract"
	"github.com/n3node/core/vm"
)

const PolicyContractID int32 = -7

var policyContractHash = deriveNativeHash("PolicyContract")

// Storage sub-keys for PolicyContract's individual parameters. The
// scalar parameters are nested under prefixPolicyValue; attribute fees
// are stored under their own top-level policyAttributeFee prefix, so a
// Find over prefixPolicyValue does not enumerate them.
const (
	policyFeePerByte      byte = 0x01
	policyExecFeeFactor   byte = 0x02
	policyStoragePrice    byte = 0x03
	policyMaxTraceable    byte = 0x04
	policyAttributeFee    byte = 0x05
)

const (
	defaultFeePerByte    int64 = 1000
	defaultExecFeeFactor int64 = 30
	defaultStoragePrice  int64 = 100000
	defaultMaxTraceable  int64 = 2_102_400
)

// PolicyContract holds the committee-controlled parameters of §4.6:
// fee-per-byte, exec-fee-factor, storage-price, the attribute-fee
// schedule, blocked accounts and max-traceable-blocks. Its setters do
// not check a committee witness.
type PolicyContract struct{}

func NewPolicyContract() *PolicyContract { return &PolicyContract{} }

func (p *PolicyContract) ID() int32          { return PolicyContractID }
func (p *PolicyContract) Hash() hash.Uint160 { return policyContractHash }
func (p *PolicyContract) Name() string       { return "PolicyContract" }
func (p *PolicyContract) OnPersist(*smartcontract.Engine) error   { return nil }
func (p *PolicyContract) PostPersist(*smartcontract.Engine) error { return nil }

func (p *PolicyContract) getInt(e *smartcontract.Engine, sub byte, def int64) int64 {
	v, ok := getBigInt(e, PolicyContractID, key(prefixPolicyValue, []byte{sub}))
	if !ok {
		return def
	}
	return v.Int64()
}

func (p *PolicyContract) setInt(e *smartcontract.Engine, sub byte, v int64) error {
	return putBigInt(e, PolicyContractID, key(prefixPolicyValue, []byte{sub}), big.NewInt(v))
}

func (p *PolicyContract) FeePerByte(e *smartcontract.Engine) int64 {
	return p.getInt(e, policyFeePerByte, defaultFeePerByte)
}

func (p *PolicyContract) ExecFeeFactor(e *smartcontract.Engine) int64 {
	return p.getInt(e, policyExecFeeFactor, defaultExecFeeFactor)
}

func (p *PolicyContract) StoragePrice(e *smartcontract.Engine) int64 {
	return p.getInt(e, policyStoragePrice, defaultStoragePrice)
}

func (p *PolicyContract) MaxTraceableBlocks(e *smartcontract.Engine) uint32 {
	return uint32(p.getInt(e, policyMaxTraceable, defaultMaxTraceable))
}

// AttributeFee returns the GAS fee required to attach attribute type t,
// defaulting to zero for attributes with no configured surcharge.
func (p *PolicyContract) AttributeFee(e *smartcontract.Engine, t byte) int64 {
	v, ok := getBigInt(e, PolicyContractID, key(policyAttributeFee, []byte{t}))
	if !ok {
		return 0
	}
	return v.Int64()
}

func (p *PolicyContract) SetAttributeFee(e *smartcontract.Engine, t byte, fee int64) error {
	return putBigInt(e, PolicyContractID, key(policyAttributeFee, []byte{t}), big.NewInt(fee))
}

func (p *PolicyContract) IsBlocked(e *smartcontract.Engine, account hash.Uint160) bool {
	_, err := e.Snapshot.Get(smartcontract.StorageKey(PolicyContractID, key(prefixBlockedAcct, account.BytesLE())))
	return err == nil
}

func (p *PolicyContract) BlockAccount(e *smartcontract.Engine, account hash.Uint160) error {
	return e.Snapshot.Put(smartcontract.StorageKey(PolicyContractID, key(prefixBlockedAcct, account.BytesLE())), []byte{1})
}

func (p *PolicyContract) UnblockAccount(e *smartcontract.Engine, account hash.Uint160) error {
	return e.Snapshot.Delete(smartcontract.StorageKey(PolicyContractID, key(prefixBlockedAcct, account.BytesLE())))
}

func (p *PolicyContract) Invoke(e *smartcontract.Engine, method string, args []vm.Item) (vm.Item, error) {
	switch method {
	case "getFeePerByte":
		return okInt(big.NewInt(p.FeePerByte(e)))
	case "getExecFeeFactor":
		return okInt(big.NewInt(p.ExecFeeFactor(e)))
	case "getStoragePrice":
		return okInt(big.NewInt(p.StoragePrice(e)))
	case "getMaxTraceableBlocks":
		return okInt(bigFromUint32(p.MaxTraceableBlocks(e)))
	case "setFeePerByte":
		v, err := intArg(args[0])
		if err != nil {
			return nil, err
		}
		return okBool(true), p.setInt(e, policyFeePerByte, v.Int64())
	case "setExecFeeFactor":
		v, err := intArg(args[0])
		if err != nil {
			return nil, err
		}
		return okBool(true), p.setInt(e, policyExecFeeFactor, v.Int64())
	case "setStoragePrice":
		v, err := intArg(args[0])
		if err != nil {
			return nil, err
		}
		return okBool(true), p.setInt(e, policyStoragePrice, v.Int64())
	case "isBlocked":
		if len(args) < 1 {
			return nil, fmt.Errorf("native: isBlocked requires (account)")
		}
		acc, err := popUint160(args[0])
		if err != nil {
			return nil, err
		}
		return okBool(p.IsBlocked(e, acc))
	case "blockAccount":
		acc, err := popUint160(args[0])
		if err != nil {
			return nil, err
		}
		return okBool(true), p.BlockAccount(e, acc)
	case "unblockAccount":
		acc, err := popUint160(args[0])
		if err != nil {
			return nil, err
		}
		return okBool(true), p.UnblockAccount(e, acc)
	default:
		return nil, fmt.Errorf("native: PolicyContract has no method %q", method)
	}
}
