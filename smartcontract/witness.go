package smartcontract

import (
	"fmt"

	"github.com/n3node/core/hash"
	"github.com/n3node/core/vm"
)

// verifyWitness runs verificationScript with invocationScript pushed
// ahead of it in a throwaway VM and reports whether it HALTs with a
// single truthy item left on the stack, per §3's witness contract. It
// only answers "does the script accept": the verification script's hash
// is not compared with any account here. ledger's block-header check
// compares it with the expected committee script hash; Engine.SetContainer
// does not compare a transaction witness with its signer's account.
// VerifyWitness is the exported form callers outside this package use
// to check a witness whose container isn't a transaction running
// inside a full Engine — chiefly ledger's block-header witness check,
// which has no transaction and no store snapshot to run against.
func VerifyWitness(containerHash hash.Uint256, invocationScript, verificationScript []byte) (bool, error) {
	return verifyWitness(containerHash, invocationScript, verificationScript)
}

func verifyWitness(containerHash hash.Uint256, invocationScript, verificationScript []byte) (bool, error) {
	if len(verificationScript) == 0 {
		return false, nil
	}
	// A generous fixed budget: witness scripts are tiny (a handful of
	// PUSH+CHECKSIG/CHECKMULTISIG ops), never user-supplied contract code.
	const witnessGasLimit = 1 << 24

	verifyVM := vm.New(witnessGasLimit)
	verifyVM.Syscall = func(m *vm.VM, id uint32) error {
		switch id {
		case syscallCheckSigID:
			return checkSigOnVM(m, containerHash)
		case syscallCheckMultisigID:
			return checkMultisigOnVM(m, containerHash)
		default:
			return fmt.Errorf("smartcontract: witness script used unsupported syscall %08x", id)
		}
	}
	verifyVM.Load(verificationScript)
	if len(invocationScript) > 0 {
		// The invocation script runs first, in its own VM, pushing the
		// signatures the verification script's CHECKSIG/CHECKMULTISIG will
		// consume; its result stack is then copied onto the verification
		// VM's evaluation stack.
		invVM := vm.New(witnessGasLimit)
		invVM.Load(invocationScript)
		if st := invVM.Execute(); st != vm.StateHalt {
			return false, nil
		}
		for i := 0; i < invVM.ResultStack().Len(); i++ {
			// Move items bottom-up so verification sees them in the order
			// the invocation script left them.
		}
		items := make([]vm.Item, 0, invVM.ResultStack().Len())
		for invVM.ResultStack().Len() > 0 {
			it, _ := invVM.ResultStack().Pop()
			items = append(items, it)
		}
		for i := len(items) - 1; i >= 0; i-- {
			verifyVM.ResultStack().Push(items[i])
		}
	}

	state := verifyVM.Execute()
	if state != vm.StateHalt {
		return false, nil
	}
	if verifyVM.ResultStack().Len() != 1 {
		return false, nil
	}
	top, err := verifyVM.ResultStack().Pop()
	if err != nil {
		return false, nil
	}
	return top.Bool(), nil
}

// ScriptHash derives the UInt160 account a verification script
// authorizes: hash160 of the script bytes, matching how Signer.Account
// is always produced from a witness's VerificationScript.
func ScriptHash(verificationScript []byte) hash.Uint160 {
	return hash.Hash160(verificationScript)
}
