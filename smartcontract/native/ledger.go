package native

import (
	"encoding/binary"
	"fmt"

	"github.com/n3node/core/hash"
	"github.com/n3node/core/smartcontract"
	"github.com/n3node/core/vm"
)

const LedgerContractID int32 = 0

var ledgerContractHash = deriveNativeHash("LedgerContract")

// LedgerContract is the read-only chain-access native of §4.6: scripts
// query it for the current height/hash and for past block and
// transaction data. It does not itself decide block application order —
// ledger.Blockchain owns that pipeline and calls SetCurrentBlock/
// PutBlock/PutTransaction as each block commits, using the exact
// contract-id-0 prefixes this type reads back.
type LedgerContract struct{}

func NewLedgerContract() *LedgerContract { return &LedgerContract{} }

func (l *LedgerContract) ID() int32         { return LedgerContractID }
func (l *LedgerContract) Hash() hash.Uint160 { return ledgerContractHash }
func (l *LedgerContract) Name() string       { return "LedgerContract" }
func (l *LedgerContract) OnPersist(*smartcontract.Engine) error   { return nil }
func (l *LedgerContract) PostPersist(*smartcontract.Engine) error { return nil }

// SetCurrentBlock records the new chain tip; called once per block by
// the apply pipeline after every transaction in it has been processed.
func (l *LedgerContract) SetCurrentBlock(e *smartcontract.Engine, index uint32, blockHash hash.Uint256) error {
	var ib [4]byte
	binary.LittleEndian.PutUint32(ib[:], index)
	if err := e.Snapshot.Put(smartcontract.StorageKey(LedgerContractID, []byte{prefixCurrentBlock}), append(ib[:], blockHash.BytesLE()...)); err != nil {
		return err
	}
	return e.Snapshot.Put(smartcontract.StorageKey(LedgerContractID, key(prefixBlockHash, ib[:])), blockHash.BytesLE())
}

// CurrentBlock returns the recorded chain tip, or false on an empty store.
func (l *LedgerContract) CurrentBlock(e *smartcontract.Engine) (uint32, hash.Uint256, bool) {
	return l.currentBlock(e)
}

func (l *LedgerContract) currentBlock(e *smartcontract.Engine) (uint32, hash.Uint256, bool) {
	b, err := e.Snapshot.Get(smartcontract.StorageKey(LedgerContractID, []byte{prefixCurrentBlock}))
	if err != nil || len(b) != 4+hash.Uint256Size {
		return 0, hash.Uint256{}, false
	}
	index := binary.LittleEndian.Uint32(b[:4])
	h, err := hash.Uint256FromBytes(b[4:])
	if err != nil {
		return 0, hash.Uint256{}, false
	}
	return index, h, true
}

// PutBlock persists a block's raw encoded bytes, addressable by its hash.
func (l *LedgerContract) PutBlock(e *smartcontract.Engine, blockHash hash.Uint256, raw []byte) error {
	return e.Snapshot.Put(smartcontract.StorageKey(LedgerContractID, key(prefixBlockData, blockHash.BytesLE())), raw)
}

func (l *LedgerContract) GetBlock(e *smartcontract.Engine, blockHash hash.Uint256) ([]byte, bool) {
	b, err := e.Snapshot.Get(smartcontract.StorageKey(LedgerContractID, key(prefixBlockData, blockHash.BytesLE())))
	if err != nil {
		return nil, false
	}
	return b, true
}

// PutTransaction records where a committed transaction lives: the
// owning block's index and its position within it.
func (l *LedgerContract) PutTransaction(e *smartcontract.Engine, txHash hash.Uint256, blockIndex uint32, position uint32) error {
	var b [8]byte
	binary.LittleEndian.PutUint32(b[0:4], blockIndex)
	binary.LittleEndian.PutUint32(b[4:8], position)
	return e.Snapshot.Put(smartcontract.StorageKey(LedgerContractID, key(prefixTxData, txHash.BytesLE())), b[:])
}

func (l *LedgerContract) GetTransactionLocation(e *smartcontract.Engine, txHash hash.Uint256) (blockIndex, position uint32, ok bool) {
	b, err := e.Snapshot.Get(smartcontract.StorageKey(LedgerContractID, key(prefixTxData, txHash.BytesLE())))
	if err != nil || len(b) != 8 {
		return 0, 0, false
	}
	return binary.LittleEndian.Uint32(b[0:4]), binary.LittleEndian.Uint32(b[4:8]), true
}

func (l *LedgerContract) Invoke(e *smartcontract.Engine, method string, args []vm.Item) (vm.Item, error) {
	switch method {
	case "currentIndex":
		index, _, _ := l.currentBlock(e)
		return okInt(bigFromUint32(index))
	case "currentHash":
		_, h, ok := l.currentBlock(e)
		if !ok {
			return vm.Null{}, nil
		}
		return okBytes(h.BytesLE())
	case "getBlock":
		if len(args) < 1 {
			return nil, fmt.Errorf("native: getBlock requires (hash)")
		}
		hb, err := bsArg(args[0])
		if err != nil {
			return nil, err
		}
		h, err := hash.Uint256FromBytes(hb)
		if err != nil {
			return nil, err
		}
		raw, ok := l.GetBlock(e, h)
		if !ok {
			return vm.Null{}, nil
		}
		return okBytes(raw)
	case "getTransactionHeight":
		if len(args) < 1 {
			return nil, fmt.Errorf("native: getTransactionHeight requires (hash)")
		}
		hb, err := bsArg(args[0])
		if err != nil {
			return nil, err
		}
		h, err := hash.Uint256FromBytes(hb)
		if err != nil {
			return nil, err
		}
		index, _, ok := l.GetTransactionLocation(e, h)
		if !ok {
			return okInt(bigFromUint32(^uint32(0)))
		}
		return okInt(bigFromUint32(index))
	default:
		return nil, fmt.Errorf("native: LedgerContract has no method %q", method)
	}
}
