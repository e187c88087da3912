package smartcontract

import (
	"fmt"

	"github.com/n3node/core/hash"
	"github.com/n3node/core/vm"
)

// contractCall implements System.Contract.Call: pops (in push order)
// the target script hash, method name, packed argument array and
// requested call flags, then delegates to Engine.CallContract.
func contractCall(e *Engine) error {
	flagsItem, err := e.VM.ResultStack().Pop()
	if err != nil {
		return err
	}
	argsItem, err := e.VM.ResultStack().Pop()
	if err != nil {
		return err
	}
	methodItem, err := e.VM.ResultStack().Pop()
	if err != nil {
		return err
	}
	hashItem, err := e.VM.ResultStack().Pop()
	if err != nil {
		return err
	}

	flagsInt, ok := flagsItem.(vm.Integer)
	if !ok {
		return fmt.Errorf("smartcontract: Contract.Call expects integer call flags")
	}
	methodBS, ok := methodItem.(vm.ByteString)
	if !ok {
		return fmt.Errorf("smartcontract: Contract.Call expects a ByteString method name")
	}
	hashBS, ok := hashItem.(vm.ByteString)
	if !ok || len(hashBS) != hash.Uint160Size {
		return fmt.Errorf("smartcontract: Contract.Call expects a 20-byte script hash")
	}
	target, err := hash.Uint160FromBytes(hashBS)
	if err != nil {
		return err
	}

	var args []vm.Item
	if arr, ok := argsItem.(*vm.Array); ok {
		for i := 0; i < arr.Len(); i++ {
			args = append(args, arr.At(i))
		}
	} else if _, isNull := argsItem.(vm.Null); !isNull {
		return fmt.Errorf("smartcontract: Contract.Call expects a packed argument array")
	}

	return e.CallContract(target, string(methodBS), args, CallFlags(flagsInt.Big().Int64()))
}
