package smartcontract

import (
	"fmt"

	"github.com/n3node/core/hash"
	"github.com/n3node/core/vm"
)

// syscallDef pairs a syscall's required call flags with its handler. The
// table is built once from human-readable names so SyscallID stays the
// single source of truth for the 4-byte identifier.
type syscallDef struct {
	name    string
	flags   CallFlags
	gas     int64
	handler func(e *Engine) error
}

var syscallTable = map[uint32]syscallDef{}

func register(name string, flags CallFlags, gas int64, handler func(e *Engine) error) {
	syscallTable[SyscallID(name)] = syscallDef{name: name, flags: flags, gas: gas, handler: handler}
}

func init() {
	register("System.Runtime.Platform", ReadOnly, 1<<15, func(e *Engine) error {
		bs, _ := vm.NewByteString([]byte("NEO"))
		e.VM.ResultStack().Push(bs)
		return nil
	})
	register("System.Runtime.GetTrigger", ReadOnly, 1<<15, func(e *Engine) error {
		e.VM.ResultStack().Push(vm.NewIntegerFromInt64(int64(e.Trigger)))
		return nil
	})
	register("System.Runtime.GetTime", ReadOnly, 1<<15, func(e *Engine) error {
		e.VM.ResultStack().Push(vm.NewIntegerFromInt64(int64(e.persistingTimestamp)))
		return nil
	})
	register("System.Runtime.CheckWitness", ReadOnly, 1<<15, func(e *Engine) error {
		item, err := e.VM.ResultStack().Pop()
		if err != nil {
			return err
		}
		bs, ok := item.(vm.ByteString)
		if !ok || len(bs) != hash.Uint160Size {
			return fmt.Errorf("smartcontract: CheckWitness expects a 20-byte account")
		}
		account, err := hash.Uint160FromBytes(bs)
		if err != nil {
			return err
		}
		e.VM.ResultStack().Push(vm.Boolean(e.CheckWitness(account)))
		return nil
	})
	register("System.Runtime.Log", AllowNotify, 1<<15, func(e *Engine) error {
		_, err := e.VM.ResultStack().Pop()
		return err
	})
	register("System.Runtime.Notify", AllowNotify, 1<<15, func(e *Engine) error {
		state, err := e.VM.ResultStack().Pop()
		if err != nil {
			return err
		}
		nameItem, err := e.VM.ResultStack().Pop()
		if err != nil {
			return err
		}
		bs, ok := nameItem.(vm.ByteString)
		if !ok {
			return fmt.Errorf("smartcontract: Notify expects a ByteString event name")
		}
		f := e.currentFrame()
		var contract hash.Uint160
		if f != nil {
			contract = f.contract
		}
		return e.Notify(contract, string(bs), state)
	})
	register("System.Runtime.GasLeft", ReadOnly, 1<<15, func(e *Engine) error {
		e.VM.ResultStack().Push(vm.NewIntegerFromInt64(e.GasLimit - e.VM.GasConsumed()))
		return nil
	})

	register("System.Storage.GetContext", ReadStates, 1<<15, func(e *Engine) error {
		f := e.currentFrame()
		var contract hash.Uint160
		if f != nil {
			contract = f.contract
		}
		e.VM.ResultStack().Push(vm.InteropInterface{Value: storageContext{contract: contract, readOnly: false}})
		return nil
	})
	register("System.Storage.GetReadOnlyContext", ReadStates, 1<<15, func(e *Engine) error {
		f := e.currentFrame()
		var contract hash.Uint160
		if f != nil {
			contract = f.contract
		}
		e.VM.ResultStack().Push(vm.InteropInterface{Value: storageContext{contract: contract, readOnly: true}})
		return nil
	})
	register("System.Storage.AsReadOnly", ReadStates, 1<<15, func(e *Engine) error {
		item, err := e.VM.ResultStack().Pop()
		if err != nil {
			return err
		}
		ii, ok := item.(vm.InteropInterface)
		if !ok {
			return fmt.Errorf("smartcontract: Storage.AsReadOnly expects a storage context")
		}
		sc, ok := ii.Value.(storageContext)
		if !ok {
			return fmt.Errorf("smartcontract: Storage.AsReadOnly expects a storage context")
		}
		sc.readOnly = true
		e.VM.ResultStack().Push(vm.InteropInterface{Value: sc})
		return nil
	})
	register("System.Storage.Get", ReadStates, 1<<20, func(e *Engine) error {
		return storageGet(e)
	})
	register("System.Storage.Put", WriteStates, 1<<20, func(e *Engine) error {
		return storagePut(e)
	})
	register("System.Storage.Delete", WriteStates, 1<<20, func(e *Engine) error {
		return storageDelete(e)
	})
	register("System.Storage.Find", ReadStates, 1<<20, func(e *Engine) error {
		return storageFind(e)
	})

	register("System.Contract.Call", AllowCall, 1<<20, func(e *Engine) error {
		return contractCall(e)
	})
	register("System.Contract.GetCallFlags", ReadOnly, 1<<10, func(e *Engine) error {
		f := e.currentFrame()
		var flags CallFlags
		if f != nil {
			flags = f.flags
		}
		e.VM.ResultStack().Push(vm.NewIntegerFromInt64(int64(flags)))
		return nil
	})

	register("System.Crypto.CheckSig", ReadOnly, 1<<15, func(e *Engine) error {
		return cryptoCheckSig(e)
	})
	register("System.Crypto.CheckMultisig", ReadOnly, 1<<16, func(e *Engine) error {
		return cryptoCheckMultisig(e)
	})

	register("System.Iterator.Next", ReadOnly, 1<<15, func(e *Engine) error {
		return iteratorNext(e)
	})
	register("System.Iterator.Value", ReadOnly, 1<<4, func(e *Engine) error {
		return iteratorValue(e)
	})
}

// wireHandlers installs the syscall/native-call dispatchers on the
// underlying vm.VM; LoadScript calls it each time a script is loaded.
func (e *Engine) wireHandlers() {
	e.VM.Syscall = func(m *vm.VM, id uint32) error {
		def, ok := syscallTable[id]
		if !ok {
			return fmt.Errorf("smartcontract: unknown syscall %08x", id)
		}
		f := e.currentFrame()
		if f != nil && !f.flags.Has(def.flags) {
			return fmt.Errorf("smartcontract: syscall %s requires flags %02x", def.name, def.flags)
		}
		if !m.ConsumeGas(def.gas) {
			return fmt.Errorf("smartcontract: out of gas in syscall %s", def.name)
		}
		return def.handler(e)
	}
	e.VM.CallNative = func(m *vm.VM, contractID int32) error {
		nc, ok := e.nativeByID[contractID]
		if !ok {
			return fmt.Errorf("smartcontract: unknown native contract id %d", contractID)
		}
		return e.invokeNativeFromVM(nc)
	}
}

// invokeNativeFromVM pops a method name and a packed Array of arguments
// off the evaluation stack, the calling convention CALLNATIVE uses, and
// pushes the native's single return value.
func (e *Engine) invokeNativeFromVM(nc NativeContract) error {
	argsItem, err := e.VM.ResultStack().Pop()
	if err != nil {
		return err
	}
	methodItem, err := e.VM.ResultStack().Pop()
	if err != nil {
		return err
	}
	methodBS, ok := methodItem.(vm.ByteString)
	if !ok {
		return fmt.Errorf("smartcontract: CALLNATIVE method name must be a ByteString")
	}
	var args []vm.Item
	if arr, ok := argsItem.(*vm.Array); ok {
		for i := 0; i < arr.Len(); i++ {
			args = append(args, arr.At(i))
		}
	}
	result, err := nc.Invoke(e, string(methodBS), args)
	if err != nil {
		return err
	}
	e.VM.ResultStack().Push(result)
	return nil
}
