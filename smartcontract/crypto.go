package smartcontract

import (
	"fmt"

	"github.com/n3node/core/hash"
	"github.com/n3node/core/vm"
)

// syscallCheckSigID/syscallCheckMultisigID are computed once so witness
// verification (which runs outside a full Engine, see witness.go) can
// recognize the same two syscalls CHECKSIG/CHECKMULTISIG scripts use
// without re-deriving the id on every call.
var (
	syscallCheckSigID      = SyscallID("System.Crypto.CheckSig")
	syscallCheckMultisigID = SyscallID("System.Crypto.CheckMultisig")
)

// signMessage returns the bytes a CHECKSIG/CHECKMULTISIG verification is
// computed over: the container's hash, matching "sign what you see" —
// the witness proves the signer accepted this exact transaction/block.
func signMessage(container hash.Uint256) []byte { return container.BytesLE() }

func checkSigOnVM(m *vm.VM, container hash.Uint256) error {
	pubItem, err := m.ResultStack().Pop()
	if err != nil {
		return err
	}
	sigItem, err := m.ResultStack().Pop()
	if err != nil {
		return err
	}
	pub, ok := pubItem.(vm.ByteString)
	if !ok {
		return fmt.Errorf("smartcontract: CHECKSIG expects a ByteString pubkey")
	}
	sig, ok := sigItem.(vm.ByteString)
	if !ok {
		return fmt.Errorf("smartcontract: CHECKSIG expects a ByteString signature")
	}
	ok = hash.ECDSAVerify(hash.CurveSecp256r1, pub, signMessage(container), sig)
	m.ResultStack().Push(vm.Boolean(ok))
	return nil
}

func checkMultisigOnVM(m *vm.VM, container hash.Uint256) error {
	pubsItem, err := m.ResultStack().Pop()
	if err != nil {
		return err
	}
	sigsItem, err := m.ResultStack().Pop()
	if err != nil {
		return err
	}
	pubs, err := itemsOf(pubsItem)
	if err != nil {
		return fmt.Errorf("smartcontract: CHECKMULTISIG pubkeys: %w", err)
	}
	sigs, err := itemsOf(sigsItem)
	if err != nil {
		return fmt.Errorf("smartcontract: CHECKMULTISIG sigs: %w", err)
	}
	if len(sigs) == 0 || len(sigs) > len(pubs) {
		m.ResultStack().Push(vm.Boolean(false))
		return nil
	}
	msg := signMessage(container)
	si := 0
	matched := 0
	for pi := 0; pi < len(pubs) && si < len(sigs); pi++ {
		pub, ok := pubs[pi].(vm.ByteString)
		if !ok {
			return fmt.Errorf("smartcontract: CHECKMULTISIG pubkey must be a ByteString")
		}
		sig, ok := sigs[si].(vm.ByteString)
		if !ok {
			return fmt.Errorf("smartcontract: CHECKMULTISIG signature must be a ByteString")
		}
		if hash.ECDSAVerify(hash.CurveSecp256r1, pub, msg, sig) {
			si++
			matched++
		}
	}
	m.ResultStack().Push(vm.Boolean(matched == len(sigs)))
	return nil
}

// itemsOf accepts either a packed Array (the calling convention a
// compiled contract uses) or reads a single item as a one-element list,
// matching the reference VM's CHECKMULTISIG argument flexibility.
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

// cryptoCheckSig/cryptoCheckMultisig are the syscall handlers invoked
// from within a full Engine run (contract bytecode calling
// System.Crypto.CheckSig/CheckMultisig directly rather than through a
// witness's verification script).
func cryptoCheckSig(e *Engine) error {
	return checkSigOnVM(e.VM, e.containerHash)
}

func cryptoCheckMultisig(e *Engine) error {
	return checkMultisigOnVM(e.VM, e.containerHash)
}
