// Package ledger defines the on-chain data types (transactions, blocks,
// signers, witnesses) and the block database / apply pipeline (C8). It
// is the layer that wires storage (store), the wire codec, cryptography
// and the application engine together into "add this block to the
// chain".
package ledger

import (
	"github.com/n3node/core/hash"
	"github.com/n3node/core/wire"
)

// WitnessScope bounds how far a signer's witness is trusted to cover,
// mirroring the call-flag-style narrowing used elsewhere in the engine.
type WitnessScope byte

const (
	ScopeNone            WitnessScope = 0
	ScopeCalledByEntry   WitnessScope = 1 << 0
	ScopeCustomContracts WitnessScope = 1 << 4
	ScopeCustomGroups    WitnessScope = 1 << 5
	ScopeGlobal          WitnessScope = 1 << 7
)

// Signer pairs an account with the scope its witness is valid within.
type Signer struct {
	Account          hash.Uint160
	Scopes           WitnessScope
	AllowedContracts []hash.Uint160
	AllowedGroups    [][]byte
}

func (s *Signer) EncodeWire(w *wire.Writer) error {
	w.WriteUint160(s.Account)
	w.WriteByte(byte(s.Scopes))
	if s.Scopes&ScopeCustomContracts != 0 {
		w.WriteVarInt(uint64(len(s.AllowedContracts)))
		for _, c := range s.AllowedContracts {
			w.WriteUint160(c)
		}
	}
	if s.Scopes&ScopeCustomGroups != 0 {
		w.WriteVarInt(uint64(len(s.AllowedGroups)))
		for _, g := range s.AllowedGroups {
			w.WriteVarBytes(g)
		}
	}
	return nil
}

func (s *Signer) DecodeWire(r *wire.Reader) error {
	s.Account = r.ReadUint160()
	s.Scopes = WitnessScope(r.ReadByte())
	if s.Scopes&ScopeCustomContracts != 0 {
		n := r.ReadVarInt()
		s.AllowedContracts = make([]hash.Uint160, n)
		for i := range s.AllowedContracts {
			s.AllowedContracts[i] = r.ReadUint160()
		}
	}
	if s.Scopes&ScopeCustomGroups != 0 {
		n := r.ReadVarInt()
		s.AllowedGroups = make([][]byte, n)
		for i := range s.AllowedGroups {
			s.AllowedGroups[i] = r.ReadVarBytes(1024)
		}
	}
	return r.Err()
}

// Witness carries the invocation and verification scripts proving a
// signer authorized the container (a transaction or a block header).
type Witness struct {
	InvocationScript   []byte
	VerificationScript []byte
}

func (w *Witness) EncodeWire(wr *wire.Writer) error {
	wr.WriteVarBytes(w.InvocationScript)
	wr.WriteVarBytes(w.VerificationScript)
	return nil
}

func (w *Witness) DecodeWire(r *wire.Reader) error {
	w.InvocationScript = r.ReadVarBytes(65536)
	w.VerificationScript = r.ReadVarBytes(65536)
	return r.Err()
}

// AttributeType names the kind of a transaction attribute.
type AttributeType byte

const (
	AttrHighPriority   AttributeType = 0x01
	AttrOracleResponse AttributeType = 0x11
	AttrNotValidBefore AttributeType = 0x20
	AttrConflicts      AttributeType = 0x21
)

// Attribute is an opaque, type-tagged blob attached to a transaction;
// semantics are interpreted by policy checks during verification, not
// by the wire codec.
type Attribute struct {
	Type AttributeType
	Data []byte
}

func (a *Attribute) EncodeWire(w *wire.Writer) error {
	w.WriteByte(byte(a.Type))
	w.WriteVarBytes(a.Data)
	return nil
}

func (a *Attribute) DecodeWire(r *wire.Reader) error {
	a.Type = AttributeType(r.ReadByte())
	a.Data = r.ReadVarBytes(65536)
	return r.Err()
}

// Transaction is a signed, fee-bearing unit of execution.
type Transaction struct {
	Version         byte
	Nonce           uint32
	SystemFee       int64
	NetworkFee      int64
	ValidUntilBlock uint32
	Signers         []Signer
	Attributes      []Attribute
	Script          []byte
	Witnesses       []Witness

	cachedHash *hash.Uint256
}

// encodeUnsigned writes everything that participates in the
// transaction's hash (everything except the witnesses), matching the
// "sign what you see" convention: a witness proves the signer accepted
// this exact byte sequence.
func (tx *Transaction) encodeUnsigned(w *wire.Writer) {
	w.WriteByte(tx.Version)
	w.WriteUint32(tx.Nonce)
	w.WriteInt64(tx.SystemFee)
	w.WriteInt64(tx.NetworkFee)
	w.WriteUint32(tx.ValidUntilBlock)
	w.WriteVarInt(uint64(len(tx.Signers)))
	for i := range tx.Signers {
		tx.Signers[i].EncodeWire(w)
	}
	w.WriteVarInt(uint64(len(tx.Attributes)))
	for i := range tx.Attributes {
		tx.Attributes[i].EncodeWire(w)
	}
	w.WriteVarBytes(tx.Script)
}

func (tx *Transaction) EncodeWire(w *wire.Writer) error {
	tx.encodeUnsigned(w)
	w.WriteVarInt(uint64(len(tx.Witnesses)))
	for i := range tx.Witnesses {
		tx.Witnesses[i].EncodeWire(w)
	}
	return nil
}

func (tx *Transaction) DecodeWire(r *wire.Reader) error {
	tx.Version = r.ReadByte()
	tx.Nonce = r.ReadUint32()
	tx.SystemFee = r.ReadInt64()
	tx.NetworkFee = r.ReadInt64()
	tx.ValidUntilBlock = r.ReadUint32()
	sn := r.ReadVarInt()
	tx.Signers = make([]Signer, sn)
	for i := range tx.Signers {
		tx.Signers[i].DecodeWire(r)
	}
	an := r.ReadVarInt()
	tx.Attributes = make([]Attribute, an)
	for i := range tx.Attributes {
		tx.Attributes[i].DecodeWire(r)
	}
	tx.Script = r.ReadVarBytes(1 << 20)
	wn := r.ReadVarInt()
	tx.Witnesses = make([]Witness, wn)
	for i := range tx.Witnesses {
		tx.Witnesses[i].DecodeWire(r)
	}
	return r.Err()
}

// Hash is hash256 of the unsigned encoding, cached after first use since
// a Transaction is logically immutable once constructed.
func (tx *Transaction) Hash() hash.Uint256 {
	if tx.cachedHash != nil {
		return *tx.cachedHash
	}
	w := wire.NewWriter()
	tx.encodeUnsigned(w)
	h := hash.Hash256(w.Bytes())
	tx.cachedHash = &h
	return h
}

// FeePerByte is the primary mempool ordering key (§4.7): network fee
// divided by the serialized size, in fixed-point, rounded down.
func (tx *Transaction) FeePerByte() int64 {
	size := tx.Size()
	if size == 0 {
		return 0
	}
	return tx.NetworkFee / int64(size)
}

func (tx *Transaction) Size() int {
	w := wire.NewWriter()
	tx.EncodeWire(w)
	return len(w.Bytes())
}

// Header is a block's signed metadata, transmissible and verifiable
// ahead of its transaction bodies (header-first sync, C10).
type Header struct {
	Version       uint32
	PrevHash      hash.Uint256
	MerkleRoot    hash.Uint256
	Timestamp     uint64
	Nonce         uint64
	Index         uint32
	PrimaryIndex  byte
	NextConsensus hash.Uint160
	Witness       Witness

	cachedHash *hash.Uint256
}

func (h *Header) encodeUnsigned(w *wire.Writer) {
	w.WriteUint32(h.Version)
	w.WriteUint256(h.PrevHash)
	w.WriteUint256(h.MerkleRoot)
	w.WriteUint64(h.Timestamp)
	w.WriteUint64(h.Nonce)
	w.WriteUint32(h.Index)
	w.WriteByte(h.PrimaryIndex)
	w.WriteUint160(h.NextConsensus)
}

func (h *Header) EncodeWire(w *wire.Writer) error {
	h.encodeUnsigned(w)
	w.WriteVarInt(1)
	h.Witness.EncodeWire(w)
	return nil
}

func (h *Header) DecodeWire(r *wire.Reader) error {
	h.Version = r.ReadUint32()
	h.PrevHash = r.ReadUint256()
	h.MerkleRoot = r.ReadUint256()
	h.Timestamp = r.ReadUint64()
	h.Nonce = r.ReadUint64()
	h.Index = r.ReadUint32()
	h.PrimaryIndex = r.ReadByte()
	h.NextConsensus = r.ReadUint160()
	n := r.ReadVarInt()
	if n != 1 {
		return wire.ErrNonCanonical
	}
	h.Witness.DecodeWire(r)
	return r.Err()
}

func (h *Header) Hash() hash.Uint256 {
	if h.cachedHash != nil {
		return *h.cachedHash
	}
	w := wire.NewWriter()
	h.encodeUnsigned(w)
	hh := hash.Hash256(w.Bytes())
	h.cachedHash = &hh
	return hh
}

// Block is a Header plus its ordered transactions.
type Block struct {
	Header
	Transactions []*Transaction
}

func (b *Block) EncodeWire(w *wire.Writer) error {
	b.Header.EncodeWire(w)
	w.WriteVarInt(uint64(len(b.Transactions)))
	for _, tx := range b.Transactions {
		tx.EncodeWire(w)
	}
	return nil
}

func (b *Block) DecodeWire(r *wire.Reader) error {
	if err := b.Header.DecodeWire(r); err != nil {
		return err
	}
	n := r.ReadVarInt()
	b.Transactions = make([]*Transaction, n)
	for i := range b.Transactions {
		tx := new(Transaction)
		if err := tx.DecodeWire(r); err != nil {
			return err
		}
		b.Transactions[i] = tx
	}
	return r.Err()
}

// ComputeMerkleRoot derives the block's merkle root from its current
// transaction set; callers set Header.MerkleRoot from this before
// signing/hashing the header.
func (b *Block) ComputeMerkleRoot() hash.Uint256 {
	leaves := make([]hash.Uint256, len(b.Transactions))
	for i, tx := range b.Transactions {
		leaves[i] = tx.Hash()
	}
	return hash.MerkleRoot(leaves)
}
