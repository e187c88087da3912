package smartcontract

import (
	"fmt"

	"github.com/n3node/core/store"
	"github.com/n3node/core/vm"
)

// storageIterator adapts a store.Iterator to the InteropInterface value
// System.Iterator.Next/Value operate on, stripping the contract-id
// prefix Storage.Find's key carried so contract code sees only the
// suffix it asked about.
type storageIterator struct {
	it        store.Iterator
	prefixLen int
	started   bool
}

func iteratorNext(e *Engine) error {
	item, err := e.VM.ResultStack().Pop()
	if err != nil {
		return err
	}
	ii, ok := item.(vm.InteropInterface)
	if !ok {
		return fmt.Errorf("smartcontract: Iterator.Next expects an iterator")
	}
	si, ok := ii.Value.(*storageIterator)
	if !ok {
		return fmt.Errorf("smartcontract: Iterator.Next expects a storage iterator")
	}
	has := si.it.Next()
	si.started = true
	e.VM.ResultStack().Push(vm.Boolean(has))
	return nil
}

func iteratorValue(e *Engine) error {
	item, err := e.VM.ResultStack().Pop()
	if err != nil {
		return err
	}
	ii, ok := item.(vm.InteropInterface)
	if !ok {
		return fmt.Errorf("smartcontract: Iterator.Value expects an iterator")
	}
	si, ok := ii.Value.(*storageIterator)
	if !ok || !si.started {
		return fmt.Errorf("smartcontract: Iterator.Value called before Next")
	}
	key := si.it.Key()
	if len(key) >= si.prefixLen {
		key = key[si.prefixLen:]
	}
	keyBS, err := vm.NewByteString(key)
	if err != nil {
		return err
	}
	valBS, err := vm.NewByteString(si.it.Value())
	if err != nil {
		return err
	}
	pair := vm.NewStruct([]vm.Item{keyBS, valBS})
	e.VM.ResultStack().Push(pair)
	return nil
}
