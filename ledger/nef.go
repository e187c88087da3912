package ledger

import (
	"fmt"

	"github.com/n3node/core/hash"
	"github.com/n3node/core/wire"
)

// nefMagic is NEF3's fixed magic value, per §6.
const nefMagic uint32 = 0x3346454e // "NEF3" little-endian

// MethodToken is one entry of a NEF's external call table (§6): a
// pre-resolved reference to another contract's method, avoiding a
// string lookup at call time.
type MethodToken struct {
	Hash       hash.Uint160
	Method     string
	ParamCount uint16
	HasReturn  bool
	CallFlags  byte
}

func (t *MethodToken) EncodeWire(w *wire.Writer) error {
	w.WriteUint160(t.Hash)
	w.WriteVarString(t.Method)
	w.WriteUint16(t.ParamCount)
	w.WriteBool(t.HasReturn)
	w.WriteByte(t.CallFlags)
	return nil
}

func (t *MethodToken) DecodeWire(r *wire.Reader) error {
	t.Hash = r.ReadUint160()
	t.Method = r.ReadVarString(32)
	t.ParamCount = r.ReadUint16()
	t.HasReturn = r.ReadBool()
	t.CallFlags = r.ReadByte()
	return r.Err()
}

// NEF is the Neo Executable Format container (§6): the on-disk/on-wire
// wrapper around a deployed contract's VM script.
type NEF struct {
	Compiler     string
	Source       string
	Tokens       []MethodToken
	Script       []byte
}

func (n *NEF) encodeBody(w *wire.Writer) {
	w.WriteUint32(nefMagic)
	w.WriteFixedString(n.Compiler, 64)
	w.WriteVarString(n.Source)
	w.WriteByte(0) // reserved
	w.WriteVarInt(uint64(len(n.Tokens)))
	for i := range n.Tokens {
		n.Tokens[i].EncodeWire(w)
	}
	w.WriteUint16(0) // reserved
	w.WriteVarBytes(n.Script)
}

// Checksum is the first 4 bytes of hash256 over every preceding field,
// per §6.
func (n *NEF) Checksum() uint32 {
	w := wire.NewWriter()
	n.encodeBody(w)
	h := hash.Hash256(w.Bytes())
	return uint32(h[0]) | uint32(h[1])<<8 | uint32(h[2])<<16 | uint32(h[3])<<24
}

func (n *NEF) EncodeWire(w *wire.Writer) error {
	n.encodeBody(w)
	w.WriteUint32(n.Checksum())
	return nil
}

func (n *NEF) DecodeWire(r *wire.Reader) error {
	magic := r.ReadUint32()
	if magic != nefMagic {
		return fmt.Errorf("ledger: NEF magic mismatch")
	}
	n.Compiler = r.ReadFixedString(64)
	n.Source = r.ReadVarString(1 << 16)
	r.ReadByte() // reserved
	nt := r.ReadVarInt()
	n.Tokens = make([]MethodToken, nt)
	for i := range n.Tokens {
		if err := n.Tokens[i].DecodeWire(r); err != nil {
			return err
		}
	}
	r.ReadUint16() // reserved
	n.Script = r.ReadVarBytes(1 << 20)
	checksum := r.ReadUint32()
	if err := r.Err(); err != nil {
		return err
	}
	w := wire.NewWriter()
	n.encodeBody(w)
	want := hash.Hash256(w.Bytes())
	wantChecksum := uint32(want[0]) | uint32(want[1])<<8 | uint32(want[2])<<16 | uint32(want[3])<<24
	if checksum != wantChecksum {
		return fmt.Errorf("ledger: NEF checksum mismatch")
	}
	return nil
}
