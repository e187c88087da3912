// Package native implements the built-in contracts of §4.6: token
// economics (NEO, GAS), governance bookkeeping (PolicyContract,
// RoleManagement), the deployed-contract registry (ContractManagement),
// read-only chain access (LedgerContract), oracle request/response
// bookkeeping, and the pure-function helper libraries (CryptoLib,
// StdLib). Every contract here runs as a host-side Invoke call rather
// than VM bytecode, per §4.6's "addressable by well-known contract IDs"
// model, and is created fresh per node rather than as a process-wide
// singleton (§9 design notes on global singletons).
package native

import (
	"fmt"
	"math/big"

	"github.com/n3node/core/hash"
	"github.com/n3node/core/smartcontract"
	"github.com/n3node/core/vm"
)

// Storage-item prefix bytes, normative per §4.6 ("These prefixes are
// normative because RPC tooling reads them externally"). 0x0B and 0x14
// are named directly in the spec; the rest follow the same single-byte
// convention used by the reference implementation's native contracts.
const (
	prefixTotalSupply  byte = 0x0B
	prefixAccount      byte = 0x14
	prefixCandidate    byte = 0x21
	prefixCommittee    byte = 0x0E
	prefixGasPerBlock  byte = 0x29
	prefixRegisterPrice byte = 0x0D
	prefixRole         byte = 0x10
	prefixBlockHash    byte = 0x09
	prefixBlockData    byte = 0x01
	prefixTxData       byte = 0x02
	prefixCurrentBlock byte = 0x0C
	prefixPolicyValue  byte = 0x15
	prefixBlockedAcct  byte = 0x17
	prefixOracleReq    byte = 0x07
	prefixOracleID     byte = 0x08
)

// key builds a contract-local storage key (without the contract-id
// prefix smartcontract.StorageKey adds — natives call that themselves
// when they need the fully-qualified store key).
func key(prefix byte, parts ...[]byte) []byte {
	out := []byte{prefix}
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func putBigInt(e *smartcontract.Engine, id int32, k []byte, v *big.Int) error {
	return e.Snapshot.Put(smartcontract.StorageKey(id, k), v.Bytes())
}

func getBigInt(e *smartcontract.Engine, id int32, k []byte) (*big.Int, bool) {
	b, err := e.Snapshot.Get(smartcontract.StorageKey(id, k))
	if err != nil {
		return big.NewInt(0), false
	}
	return new(big.Int).SetBytes(b), true
}

func popUint160(it vm.Item) (hash.Uint160, error) {
	bs, ok := it.(vm.ByteString)
	if !ok || len(bs) != hash.Uint160Size {
		return hash.Uint160{}, fmt.Errorf("native: expected a 20-byte account")
	}
	return hash.Uint160FromBytes(bs)
}

func intArg(it vm.Item) (*big.Int, error) {
	i, ok := it.(vm.Integer)
	if !ok {
		return nil, fmt.Errorf("native: expected an Integer argument")
	}
	return i.Big(), nil
}

func bsArg(it vm.Item) ([]byte, error) {
	bs, ok := it.(vm.ByteString)
	if !ok {
		return nil, fmt.Errorf("native: expected a ByteString argument")
	}
	return bs, nil
}

func okInt(v *big.Int) (vm.Item, error) {
	i, err := vm.NewInteger(v)
	if err != nil {
		return nil, err
	}
	return i, nil
}

func okBool(b bool) (vm.Item, error) { return vm.Boolean(b), nil }

func okBytes(b []byte) (vm.Item, error) { return vm.NewByteString(b) }

func bigFromUint32(v uint32) *big.Int { return new(big.Int).SetUint64(uint64(v)) }

// itemsOf accepts either a packed Array (the normal compiled-contract
// calling convention) or reads a single item as a one-element list,
// mirroring smartcontract.itemsOf (unexported there, so natives carry
// their own copy rather than import a private helper across packages).
func itemsOf(it vm.Item) ([]vm.Item, error) {
	if arr, ok := it.(*vm.Array); ok {
		out := make([]vm.Item, arr.Len())
		for i := 0; i < arr.Len(); i++ {
			out[i] = arr.At(i)
		}
		return out, nil
	}
	return []vm.Item{it}, nil
}
