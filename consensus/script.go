package consensus

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/n3node/core/hash"
	"github.com/n3node/core/smartcontract"
	"github.com/n3node/core/vm"
)

var (
	checkSigSyscall      = smartcontract.SyscallID("System.Crypto.CheckSig")
	checkMultisigSyscall = smartcontract.SyscallID("System.Crypto.CheckMultisig")
)

func pushData(buf *bytes.Buffer, data []byte) {
	n := len(data)
	switch {
	case n < 0x100:
		buf.WriteByte(byte(vm.OpPushData1))
		buf.WriteByte(byte(n))
	case n < 0x10000:
		buf.WriteByte(byte(vm.OpPushData2))
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(n))
		buf.Write(b[:])
	default:
		buf.WriteByte(byte(vm.OpPushData4))
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(n))
		buf.Write(b[:])
	}
	buf.Write(data)
}

// pushSmallInt encodes 0 <= n <= 16 with a single-byte PUSHn opcode; the
// committee sizes this package builds scripts for never exceed that
// (§4.2's standby committee is sized in the low tens at most, but the
// validator subset a block witness covers is bounded by
// config.Network.ValidatorsCount, always well under 16 in practice and
// never attempted above it here).
func pushSmallInt(buf *bytes.Buffer, n int) {
	buf.WriteByte(byte(vm.OpPush0) + byte(n))
}

func writeSyscall(buf *bytes.Buffer, id uint32) {
	buf.WriteByte(byte(vm.OpSyscall))
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], id)
	buf.Write(b[:])
}

// packedScript builds "push each item (highest index first), push the
// count, PACK": the byte sequence vm.Array's PACK opcode turns into an
// array whose At(0) is items[0], because OpPack pops the count then
// pops the array elements directly off the evaluation stack — so the
// element that ends up at index 0 is whichever was pushed *last*.
func packedScript(items [][]byte) []byte {
	var buf bytes.Buffer
	for i := len(items) - 1; i >= 0; i-- {
		pushData(&buf, items[i])
	}
	pushSmallInt(&buf, len(items))
	buf.WriteByte(byte(vm.OpPack))
	return buf.Bytes()
}

// SortPubKeys returns a stable ascending copy of pubkeys, the canonical
// committee ordering §4.11 assumes for validator indexing and for
// deriving the next-consensus address.
func SortPubKeys(pubkeys [][]byte) [][]byte {
	out := make([][]byte, len(pubkeys))
	copy(out, pubkeys)
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i], out[j]) < 0 })
	return out
}

// Quorum returns the fault tolerance f and the signature threshold m
// for a committee of size n, per §4.11: f = floor((n-1)/3), m = n - f.
func Quorum(n int) (f, m int) {
	f = (n - 1) / 3
	return f, n - f
}

// MultisigVerificationScript builds the m-of-n verification script for
// an ascending-sorted pubkeys set: only the pubkey set is baked into
// the script, the threshold is enforced purely by how many signatures
// the paired invocation script supplies (the convention
// smartcontract/crypto.go's CHECKMULTISIG syscall implements).
func MultisigVerificationScript(pubkeys [][]byte) []byte {
	buf := bytes.NewBuffer(packedScript(pubkeys))
	writeSyscall(buf, checkMultisigSyscall)
	return buf.Bytes()
}

// MultisigInvocationScript packs sigs (already in ascending
// validator-index order, matching the pubkey positions they satisfy)
// into the array CHECKMULTISIG expects on top of the stack.
func MultisigInvocationScript(sigs [][]byte) []byte {
	return packedScript(sigs)
}

// SingleSigVerificationScript and SingleSigInvocationScript build the
// one-key equivalent, used by RecoveryMessage/ChangeView/PrepareResponse
// payload signatures rather than the final block witness.
func SingleSigVerificationScript(pubkey []byte) []byte {
	var buf bytes.Buffer
	pushData(&buf, pubkey)
	writeSyscall(&buf, checkSigSyscall)
	return buf.Bytes()
}

func SingleSigInvocationScript(sig []byte) []byte {
	var buf bytes.Buffer
	pushData(&buf, sig)
	return buf.Bytes()
}

// ConsensusAddress derives the next-consensus script hash a committee
// produces: hash160 of its m-of-n verification script, the value a
// block's Header.NextConsensus must equal for the following block's
// witness to authenticate against it.
func ConsensusAddress(pubkeys [][]byte) hash.Uint160 {
	return smartcontract.ScriptHash(MultisigVerificationScript(SortPubKeys(pubkeys)))
}
