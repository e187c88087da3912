package smartcontract

import (
	"encoding/binary"
	"fmt"

	"github.com/n3node/core/hash"
	"github.com/n3node/core/store"
	"github.com/n3node/core/vm"
)

// StorageKey packs a contract-id and key suffix into the namespace every
// native and deployed contract shares (§3 "Storage Key / Storage Item").
// The contract-id prefix is little-endian and normative: external
// tooling (block explorers, RPC) depends on these exact prefix bytes to
// read native-contract state directly out of the store.
func StorageKey(contractID int32, key []byte) []byte {
	out := make([]byte, 4+len(key))
	binary.LittleEndian.PutUint32(out[:4], uint32(contractID))
	copy(out[4:], key)
	return out
}

// storageContext is the InteropInterface payload behind
// System.Storage.GetContext/GetReadOnlyContext/Contract.AsReadOnly.
type storageContext struct {
	contract   hash.Uint160
	id         int32
	idResolved bool
	readOnly   bool
}

func (e *Engine) contractIDOf(contract hash.Uint160) (int32, error) {
	mgmt, ok := e.natives[ContractManagementHash]
	if !ok {
		return 0, fmt.Errorf("smartcontract: ContractManagement not registered")
	}
	resolver, ok := mgmt.(interface {
		IDOf(eng *Engine, h hash.Uint160) (int32, error)
	})
	if !ok {
		return 0, fmt.Errorf("smartcontract: ContractManagement cannot resolve contract ids")
	}
	return resolver.IDOf(e, contract)
}

func popStorageContext(e *Engine) (storageContext, error) {
	item, err := e.VM.ResultStack().Pop()
	if err != nil {
		return storageContext{}, err
	}
	ii, ok := item.(vm.InteropInterface)
	if !ok {
		return storageContext{}, fmt.Errorf("smartcontract: expected a storage context")
	}
	sc, ok := ii.Value.(storageContext)
	if !ok {
		return storageContext{}, fmt.Errorf("smartcontract: expected a storage context")
	}
	if !sc.idResolved {
		id, err := e.contractIDOf(sc.contract)
		if err != nil {
			return storageContext{}, err
		}
		sc.id = id
		sc.idResolved = true
	}
	return sc, nil
}

func storageGet(e *Engine) error {
	sc, err := popStorageContext(e)
	if err != nil {
		return err
	}
	keyItem, err := e.VM.ResultStack().Pop()
	if err != nil {
		return err
	}
	keyBS, ok := keyItem.(vm.ByteString)
	if !ok {
		return fmt.Errorf("smartcontract: Storage.Get expects a ByteString key")
	}
	v, err := e.Snapshot.Get(StorageKey(sc.id, keyBS))
	if err == store.ErrNotFound {
		e.VM.ResultStack().Push(vm.Null{})
		return nil
	}
	if err != nil {
		return err
	}
	bs, err := vm.NewByteString(v)
	if err != nil {
		return err
	}
	e.VM.ResultStack().Push(bs)
	return nil
}

func storagePut(e *Engine) error {
	sc, err := popStorageContext(e)
	if err != nil {
		return err
	}
	if sc.readOnly {
		return fmt.Errorf("smartcontract: Storage.Put on a read-only context")
	}
	keyItem, err := e.VM.ResultStack().Pop()
	if err != nil {
		return err
	}
	valItem, err := e.VM.ResultStack().Pop()
	if err != nil {
		return err
	}
	keyBS, ok := keyItem.(vm.ByteString)
	if !ok {
		return fmt.Errorf("smartcontract: Storage.Put expects a ByteString key")
	}
	val, err := itemBytesPublic(valItem)
	if err != nil {
		return err
	}
	fullKey := StorageKey(sc.id, keyBS)
	oldLen := 0
	if old, err := e.Snapshot.Get(fullKey); err == nil {
		oldLen = len(old)
	}
	if len(val) > oldLen {
		if !e.VM.ConsumeGas(int64(len(val)-oldLen) * storagePricePerByte) {
			return fmt.Errorf("smartcontract: out of gas charging storage growth")
		}
	}
	return e.Snapshot.Put(fullKey, val)
}

func storageDelete(e *Engine) error {
	sc, err := popStorageContext(e)
	if err != nil {
		return err
	}
	if sc.readOnly {
		return fmt.Errorf("smartcontract: Storage.Delete on a read-only context")
	}
	keyItem, err := e.VM.ResultStack().Pop()
	if err != nil {
		return err
	}
	keyBS, ok := keyItem.(vm.ByteString)
	if !ok {
		return fmt.Errorf("smartcontract: Storage.Delete expects a ByteString key")
	}
	return e.Snapshot.Delete(StorageKey(sc.id, keyBS))
}

func storageFind(e *Engine) error {
	sc, err := popStorageContext(e)
	if err != nil {
		return err
	}
	prefixItem, err := e.VM.ResultStack().Pop()
	if err != nil {
		return err
	}
	prefixBS, ok := prefixItem.(vm.ByteString)
	if !ok {
		return fmt.Errorf("smartcontract: Storage.Find expects a ByteString prefix")
	}
	fullPrefix := StorageKey(sc.id, prefixBS)
	it := e.Snapshot.Find(fullPrefix, store.Forward)
	e.VM.ResultStack().Push(vm.InteropInterface{Value: &storageIterator{it: it, prefixLen: 4}})
	return nil
}

// storagePricePerByte is the GAS-per-byte Storage.Put charges for
// storage growth. PolicyContract's configurable storage price is not
// consulted here.
const storagePricePerByte int64 = 100000

// itemBytesPublic mirrors the vm package's internal itemBytes for the
// ByteString/Buffer conversion Storage.Put needs, since vm does not
// export that helper.
func itemBytesPublic(it vm.Item) ([]byte, error) {
	switch v := it.(type) {
	case vm.ByteString:
		return v, nil
	case *vm.Buffer:
		return v.Bytes(), nil
	default:
		return nil, fmt.Errorf("smartcontract: expected ByteString/Buffer, got %s", it.Type())
	}
}
