package p2p

import (
	"github.com/google/uuid"

	"github.com/n3node/core/hash"
	"github.com/n3node/core/wire"
)

// VersionPayload is exchanged during the handshake (§4.9 "Handshake"):
// each side advertises its protocol capability and height before
// either is willing to relay inventory.
type VersionPayload struct {
	Magic     uint32
	Version   uint32
	Services  uint64
	Timestamp uint64
	Port      uint16
	Nonce     uint32 // session nonce, detects self-dials
	UserAgent string
	StartHeight uint32
	Relay     bool
}

func (v *VersionPayload) EncodeWire(w *wire.Writer) error {
	w.WriteUint32(v.Magic)
	w.WriteUint32(v.Version)
	w.WriteUint64(v.Services)
	w.WriteUint64(v.Timestamp)
	w.WriteUint16(v.Port)
	w.WriteUint32(v.Nonce)
	w.WriteVarString(v.UserAgent)
	w.WriteUint32(v.StartHeight)
	w.WriteBool(v.Relay)
	return nil
}

func (v *VersionPayload) DecodeWire(r *wire.Reader) error {
	v.Magic = r.ReadUint32()
	v.Version = r.ReadUint32()
	v.Services = r.ReadUint64()
	v.Timestamp = r.ReadUint64()
	v.Port = r.ReadUint16()
	v.Nonce = r.ReadUint32()
	v.UserAgent = r.ReadVarString(256)
	v.StartHeight = r.ReadUint32()
	v.Relay = r.ReadBool()
	return r.Err()
}

// InventoryType names what kind of hash an Inventory entry refers to.
type InventoryType byte

const (
	InvTypeTx InventoryType = iota
	InvTypeBlock
	InvTypeConsensus
)

// Inventory is one entry in an Inv/GetData message: a type-tagged hash
// the sender has (Inv) or wants (GetData), per §4.9.
type Inventory struct {
	Type InventoryType
	Hash hash.Uint256
}

// InvPayload announces hashes the sender already has; GetDataPayload
// requests the full bodies for hashes the receiver already announced.
// Both share this shape.
type InvPayload struct {
	Items []Inventory
}

func (p *InvPayload) EncodeWire(w *wire.Writer) error {
	w.WriteVarInt(uint64(len(p.Items)))
	for _, it := range p.Items {
		w.WriteByte(byte(it.Type))
		w.WriteUint256(it.Hash)
	}
	return nil
}

// maxInventoryItems bounds a single Inv/GetData batch, per §4.9's
// bounded-request design (mirrors blocksync's outstanding-request cap).
const maxInventoryItems = 500

func (p *InvPayload) DecodeWire(r *wire.Reader) error {
	n := r.ReadVarInt()
	if n > maxInventoryItems {
		n = maxInventoryItems
	}
	p.Items = make([]Inventory, n)
	for i := range p.Items {
		p.Items[i].Type = InventoryType(r.ReadByte())
		p.Items[i].Hash = r.ReadUint256()
	}
	return r.Err()
}

// GetBlocksPayload requests headers/blocks starting after a known hash,
// bounding the response with Count (0 means "as many as the peer allows").
type GetBlocksPayload struct {
	HashStart hash.Uint256
	Count     int16
}

func (p *GetBlocksPayload) EncodeWire(w *wire.Writer) error {
	w.WriteUint256(p.HashStart)
	w.WriteUint16(uint16(p.Count))
	return nil
}

func (p *GetBlocksPayload) DecodeWire(r *wire.Reader) error {
	p.HashStart = r.ReadUint256()
	p.Count = int16(r.ReadUint16())
	return r.Err()
}

// AddrEntry is one peer address in an Addr payload.
type AddrEntry struct {
	Timestamp uint64
	Services  uint64
	Address   string
	Port      uint16
}

func (a *AddrEntry) EncodeWire(w *wire.Writer) error {
	w.WriteUint64(a.Timestamp)
	w.WriteUint64(a.Services)
	w.WriteVarString(a.Address)
	w.WriteUint16(a.Port)
	return nil
}

func (a *AddrEntry) DecodeWire(r *wire.Reader) error {
	a.Timestamp = r.ReadUint64()
	a.Services = r.ReadUint64()
	a.Address = r.ReadVarString(256)
	a.Port = r.ReadUint16()
	return r.Err()
}

type AddrPayload struct {
	Addresses []AddrEntry
}

const maxAddrEntries = 200

func (p *AddrPayload) EncodeWire(w *wire.Writer) error {
	w.WriteVarInt(uint64(len(p.Addresses)))
	for i := range p.Addresses {
		p.Addresses[i].EncodeWire(w)
	}
	return nil
}

func (p *AddrPayload) DecodeWire(r *wire.Reader) error {
	n := r.ReadVarInt()
	if n > maxAddrEntries {
		n = maxAddrEntries
	}
	p.Addresses = make([]AddrEntry, n)
	for i := range p.Addresses {
		if err := p.Addresses[i].DecodeWire(r); err != nil {
			return err
		}
	}
	return r.Err()
}

// RejectPayload reports why a peer's message was refused, per §4.9's
// Reject command.
type RejectPayload struct {
	Command string
	Code    byte
	Reason  string
}

func (p *RejectPayload) EncodeWire(w *wire.Writer) error {
	w.WriteVarString(p.Command)
	w.WriteByte(p.Code)
	w.WriteVarString(p.Reason)
	return nil
}

func (p *RejectPayload) DecodeWire(r *wire.Reader) error {
	p.Command = r.ReadVarString(commandSize)
	p.Code = r.ReadByte()
	p.Reason = r.ReadVarString(256)
	return r.Err()
}

// NewSessionID produces a peer-session identifier distinguishing
// multiple connections to/from the same address, wired to
// github.com/google/uuid per the domain stack's P2P session-ID binding.
func NewSessionID() uuid.UUID { return uuid.New() }
